package duokey

import (
	"context"
	"errors"
	"fmt"
	"net/netip"

	"github.com/TheusHen/duokey/duokey/discovery"
	"github.com/TheusHen/duokey/duokey/identity"
	"github.com/TheusHen/duokey/duokey/log"
	"github.com/TheusHen/duokey/duokey/session"
	"github.com/TheusHen/duokey/duokey/transport/quic"
)

var (
	ErrNotListening = errors.New("duokey: peer is not listening")
	ErrNoDirectory  = errors.New("duokey: peer has no directory")
	ErrNoAddress    = errors.New("duokey: directory entry has no address")
	// ErrHandshakeFailed wraps errors of a single rejected connection; the
	// listener keeps working.
	ErrHandshakeFailed = errors.New("duokey: handshake failed")
)

const handshakeFailed = 0x1

type Options struct {
	// Directory resolves fingerprints for DialFingerprint and pins the keys
	// peers announce.
	Directory discovery.Resolver
	// RequireKnown refuses peers Directory does not list.
	RequireKnown bool
	// Learn adds unknown peers to Directory after a successful handshake.
	Learn     bool
	Transport quic.Config
	Logger    log.Logger
}

// Peer is a high-level helper that combines transport + session for one
// identity.
type Peer struct {
	Identity *identity.Identity

	opts     Options
	log      log.Logger
	listener *quic.Listener
}

func NewPeer(id *identity.Identity, opts Options) *Peer {
	return &Peer{
		Identity: id,
		opts:     opts,
		log:      log.OrNop(opts.Logger).Named("peer").With("name", id.Name()),
	}
}

func (p *Peer) handshakeOptions(expect identity.Fingerprint) session.HandshakeOptions {
	return session.HandshakeOptions{
		Directory:    p.opts.Directory,
		RequireKnown: p.opts.RequireKnown,
		Learn:        p.opts.Learn,
		Expect:       expect,
		Logger:       p.opts.Logger,
	}
}

// Listen accepts QUIC connections on addr. Unless the transport names one,
// the listener certificate is issued to the identity's name.
func (p *Peer) Listen(addr string) error {
	cfg := p.opts.Transport
	if cfg.ServerName == "" {
		cfg.ServerName = p.Identity.Name()
	}
	ln, err := quic.Listen(addr, cfg)
	if err != nil {
		return err
	}
	p.listener = ln
	p.log.Infow("listening", "addr", ln.AddrString())
	return nil
}

func (p *Peer) Close() error {
	if p.listener == nil {
		return nil
	}
	return p.listener.Close()
}

func (p *Peer) ListenAddr() string {
	if p.listener == nil {
		return ""
	}
	return p.listener.AddrString()
}

// Register publishes the peer's key and addr in its directory.
func (p *Peer) Register(addr netip.AddrPort) error {
	if p.opts.Directory == nil {
		return ErrNoDirectory
	}
	pk, err := p.Identity.PublicKey()
	if err != nil {
		return err
	}
	return p.opts.Directory.Announce(discovery.NewEntry(p.Identity.Name(), pk, addr))
}

func (p *Peer) Accept(ctx context.Context) (*session.Session, error) {
	if p.listener == nil {
		return nil, ErrNotListening
	}
	conn, err := p.listener.Accept(ctx)
	if err != nil {
		return nil, err
	}
	sess, err := session.HandshakeServer(ctx, conn, p.Identity, p.handshakeOptions(identity.Fingerprint{}))
	if err != nil {
		_ = conn.CloseWithError(handshakeFailed, err.Error())
		p.log.Warnw("handshake failed", "remote", conn.RemoteAddr().String(), "err", err)
		return nil, fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}
	p.log.Infow("session accepted", "remote", sess.RemoteName(), "fingerprint", sess.RemoteFingerprint().String())
	return sess, nil
}

func (p *Peer) Dial(ctx context.Context, addr string) (*session.Session, error) {
	return p.dial(ctx, addr, identity.Fingerprint{})
}

// DialFingerprint looks fp up in the directory, dials its address and
// accepts only the key fp names.
func (p *Peer) DialFingerprint(ctx context.Context, fp identity.Fingerprint) (*session.Session, error) {
	if p.opts.Directory == nil {
		return nil, ErrNoDirectory
	}
	e, err := p.opts.Directory.Lookup(fp)
	if err != nil {
		return nil, err
	}
	if !e.Addr.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrNoAddress, fp)
	}
	return p.dial(ctx, e.Addr.String(), fp)
}

func (p *Peer) dial(ctx context.Context, addr string, expect identity.Fingerprint) (*session.Session, error) {
	conn, err := quic.Dial(ctx, addr, p.opts.Transport)
	if err != nil {
		return nil, err
	}
	sess, err := session.HandshakeClient(ctx, conn, p.Identity, p.handshakeOptions(expect))
	if err != nil {
		_ = conn.CloseWithError(handshakeFailed, err.Error())
		return nil, err
	}
	p.log.Debugw("session established", "remote", sess.RemoteName(), "addr", addr)
	return sess, nil
}
