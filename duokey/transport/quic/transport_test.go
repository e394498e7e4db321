package quic

import (
	"context"
	"crypto/tls"
	"io"
	"testing"
	"time"
)

func TestConfigDefaults(t *testing.T) {
	qc := Config{}.quicConfig()
	if qc.HandshakeIdleTimeout != DefaultHandshakeIdleTimeout {
		t.Fatalf("handshake timeout = %v", qc.HandshakeIdleTimeout)
	}
	if qc.MaxIdleTimeout != DefaultMaxIdleTimeout {
		t.Fatalf("idle timeout = %v", qc.MaxIdleTimeout)
	}
	qc = Config{MaxIdleTimeout: time.Minute, KeepAlivePeriod: time.Second}.quicConfig()
	if qc.MaxIdleTimeout != time.Minute || qc.KeepAlivePeriod != time.Second {
		t.Fatalf("explicit values not kept: %+v", qc)
	}
	if n := (Config{}).serverName(); n != DefaultServerName {
		t.Fatalf("server name = %q", n)
	}
}

func TestTLSConfigs(t *testing.T) {
	srv, err := NewServerTLSConfig("bob")
	if err != nil {
		t.Fatalf("NewServerTLSConfig: %v", err)
	}
	if len(srv.Certificates) != 1 {
		t.Fatalf("server needs a certificate")
	}
	leaf := srv.Certificates[0].Leaf
	if leaf == nil || leaf.Subject.CommonName != "bob" {
		t.Fatalf("unexpected leaf %+v", leaf)
	}
	if time.Until(leaf.NotAfter) > certLifetime {
		t.Fatalf("certificate outlives %v", certLifetime)
	}

	cli := NewClientTLSConfig("bob")
	if cli.ServerName != "bob" || len(cli.Certificates) != 0 {
		t.Fatalf("unexpected client config")
	}
	for _, c := range [][]string{srv.NextProtos, cli.NextProtos} {
		if len(c) != 1 || c[0] != ALPN {
			t.Fatalf("unexpected ALPN %v", c)
		}
	}
	if err := cli.VerifyConnection(tls.ConnectionState{NegotiatedProtocol: "h3"}); err == nil {
		t.Fatalf("expected a foreign protocol to be refused")
	}
	if err := cli.VerifyConnection(tls.ConnectionState{NegotiatedProtocol: ALPN}); err != nil {
		t.Fatalf("VerifyConnection: %v", err)
	}
}

func TestListenDialStream(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ln, err := Listen("127.0.0.1:0", Config{ServerName: "bob"})
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	errCh := make(chan error, 1)
	got := make(chan string, 1)
	go func() {
		conn, err := ln.Accept(ctx)
		if err != nil {
			errCh <- err
			return
		}
		st, err := conn.AcceptStream(ctx)
		if err != nil {
			errCh <- err
			return
		}
		b, err := io.ReadAll(st)
		if err != nil {
			errCh <- err
			return
		}
		got <- string(b)
		errCh <- nil
	}()

	conn, err := Dial(ctx, ln.AddrString(), Config{ServerName: "bob"})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.CloseWithError(0, "")

	st, err := conn.OpenStreamSync(ctx)
	if err != nil {
		t.Fatalf("OpenStreamSync: %v", err)
	}
	if _, err := st.Write([]byte("wagvap$iawweca")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := <-errCh; err != nil {
		t.Fatalf("server: %v", err)
	}
	if s := <-got; s != "wagvap$iawweca" {
		t.Fatalf("server read %q", s)
	}
}
