// Package quic carries duokey sessions over QUIC. TLS here only frames
// the connection; peers prove who they are with signed announcements on
// the session's control stream.
package quic

import (
	"context"
	"net"
	"time"

	q "github.com/quic-go/quic-go"
)

const (
	DefaultHandshakeIdleTimeout = 5 * time.Second
	DefaultMaxIdleTimeout       = 30 * time.Second
)

// Config tunes the QUIC connections. Zero fields take the defaults.
type Config struct {
	HandshakeIdleTimeout time.Duration
	MaxIdleTimeout       time.Duration
	// KeepAlivePeriod enables keep-alive pings when positive.
	KeepAlivePeriod time.Duration
	// ServerName is the common name of listener certificates and the SNI
	// dialers send. Empty means DefaultServerName.
	ServerName string
}

func (c Config) serverName() string {
	if c.ServerName == "" {
		return DefaultServerName
	}
	return c.ServerName
}

func (c Config) quicConfig() *q.Config {
	qc := &q.Config{
		HandshakeIdleTimeout: c.HandshakeIdleTimeout,
		MaxIdleTimeout:       c.MaxIdleTimeout,
		KeepAlivePeriod:      c.KeepAlivePeriod,
	}
	if qc.HandshakeIdleTimeout <= 0 {
		qc.HandshakeIdleTimeout = DefaultHandshakeIdleTimeout
	}
	if qc.MaxIdleTimeout <= 0 {
		qc.MaxIdleTimeout = DefaultMaxIdleTimeout
	}
	return qc
}

type Listener struct {
	inner *q.Listener
}

func Listen(addr string, cfg Config) (*Listener, error) {
	tlsConf, err := NewServerTLSConfig(cfg.serverName())
	if err != nil {
		return nil, err
	}
	ln, err := q.ListenAddr(addr, tlsConf, cfg.quicConfig())
	if err != nil {
		return nil, err
	}
	return &Listener{inner: ln}, nil
}

func (l *Listener) Accept(ctx context.Context) (q.Connection, error) {
	return l.inner.Accept(ctx)
}

func (l *Listener) Addr() net.Addr { return l.inner.Addr() }

func (l *Listener) AddrString() string {
	if l.inner == nil {
		return ""
	}
	return l.inner.Addr().String()
}

func (l *Listener) Close() error { return l.inner.Close() }

func Dial(ctx context.Context, addr string, cfg Config) (q.Connection, error) {
	return q.DialAddr(ctx, addr, NewClientTLSConfig(cfg.serverName()), cfg.quicConfig())
}
