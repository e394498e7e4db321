package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"

	"github.com/TheusHen/duokey/duokey/discovery"
	"github.com/TheusHen/duokey/duokey/identity"
	"github.com/TheusHen/duokey/duokey/log"
	"github.com/TheusHen/duokey/duokey/protocol"
	q "github.com/quic-go/quic-go"
)

var (
	ErrKeyMismatch = errors.New("session: announced key does not match the pinned key")
	ErrUnknownPeer = errors.New("session: peer not in directory")
)

type HandshakeOptions struct {
	// Directory pins announced keys. A peer announcing a name the
	// directory holds under another fingerprint is rejected.
	Directory discovery.Resolver
	// RequireKnown rejects peers whose fingerprint Directory does not list.
	RequireKnown bool
	// Expect, when non-zero, is the only fingerprint the peer may announce.
	Expect identity.Fingerprint
	// Learn adds peers Directory does not know yet, trusting them on first
	// use. Dialed peers are recorded with the address that was dialed.
	Learn  bool
	Logger log.Logger
}

// HandshakeClient performs the duokey session handshake as a client.
// The client opens the control stream and announces first.
func HandshakeClient(ctx context.Context, conn q.Connection, id *identity.Identity, opts HandshakeOptions) (*Session, error) {
	local, err := protocol.NewAnnounce(id)
	if err != nil {
		return nil, err
	}
	control, err := conn.OpenStreamSync(ctx)
	if err != nil {
		return nil, err
	}
	defer watch(ctx, control)()

	if err := writeAnnounce(control, local); err != nil {
		return nil, err
	}
	remote, err := readAnnounce(control)
	if err != nil {
		return nil, err
	}
	name, err := admit(remote, opts, remoteAddrPort(conn.RemoteAddr()))
	if err != nil {
		return nil, err
	}
	return newSession(conn, control, id, remote, name, opts.Logger), nil
}

// HandshakeServer performs the duokey session handshake as a server.
// The server accepts the control stream opened by the client and answers
// only once the client's announcement checks out.
func HandshakeServer(ctx context.Context, conn q.Connection, id *identity.Identity, opts HandshakeOptions) (*Session, error) {
	local, err := protocol.NewAnnounce(id)
	if err != nil {
		return nil, err
	}
	control, err := conn.AcceptStream(ctx)
	if err != nil {
		return nil, err
	}
	defer watch(ctx, control)()

	remote, err := readAnnounce(control)
	if err != nil {
		return nil, err
	}
	name, err := admit(remote, opts, netip.AddrPort{})
	if err != nil {
		return nil, err
	}
	if err := writeAnnounce(control, local); err != nil {
		return nil, err
	}
	return newSession(conn, control, id, remote, name, opts.Logger), nil
}

func writeAnnounce(st q.Stream, a protocol.Announce) error {
	payload, err := protocol.EncodeAnnounce(a)
	if err != nil {
		return err
	}
	return protocol.WriteFrame(st, protocol.Frame{Type: protocol.MessageTypeAnnounce, Payload: payload})
}

func readAnnounce(st q.Stream) (protocol.Announce, error) {
	frame, err := protocol.ReadFrame(st)
	if err != nil {
		return protocol.Announce{}, err
	}
	if frame.Type != protocol.MessageTypeAnnounce {
		return protocol.Announce{}, fmt.Errorf("%w: got %s, want %s", protocol.ErrUnexpectedType, frame.Type, protocol.MessageTypeAnnounce)
	}
	a, err := protocol.DecodeAnnounce(frame.Payload)
	if err != nil {
		return protocol.Announce{}, err
	}
	if err := a.Verify(); err != nil {
		return protocol.Announce{}, err
	}
	return a, nil
}

// admit pins a verified announcement and, when opts.Learn is set, records
// a peer seen for the first time at addr.
func admit(a protocol.Announce, opts HandshakeOptions, addr netip.AddrPort) (string, error) {
	name, known, err := pin(a, opts)
	if err != nil || known || !opts.Learn || opts.Directory == nil {
		return name, err
	}
	pk, _ := a.PublicKey()
	if err := opts.Directory.Announce(discovery.NewEntry(name, pk, addr)); err != nil {
		return "", fmt.Errorf("session: learn peer: %w", err)
	}
	log.OrNop(opts.Logger).Named("session").Infow("learned peer", "name", name, "fingerprint", pk.Fingerprint().String())
	return name, nil
}

// pin checks a verified announcement against opts and returns the name to
// know the peer by, and whether the directory already lists it. Directory
// names take precedence over announced ones.
func pin(a protocol.Announce, opts HandshakeOptions) (string, bool, error) {
	pk, err := a.PublicKey()
	if err != nil {
		return "", false, err
	}
	fp := pk.Fingerprint()
	if opts.Expect != (identity.Fingerprint{}) && opts.Expect != fp {
		return "", false, fmt.Errorf("%w: got %s, want %s", ErrKeyMismatch, fp, opts.Expect)
	}
	if opts.Directory == nil {
		if opts.RequireKnown {
			return "", false, ErrUnknownPeer
		}
		return a.Name, false, nil
	}

	e, err := opts.Directory.Lookup(fp)
	switch {
	case err == nil:
		return e.Name, true, nil
	case !errors.Is(err, discovery.ErrNotFound):
		return "", false, err
	case opts.RequireKnown:
		return "", false, fmt.Errorf("%w: %s", ErrUnknownPeer, fp)
	}

	if a.Name == "" {
		return "", false, nil
	}
	all, err := opts.Directory.List()
	if err != nil {
		return "", false, err
	}
	for _, e := range all {
		if e.Name == a.Name {
			return "", false, fmt.Errorf("%w: %q is pinned to %s", ErrKeyMismatch, a.Name, e.Fingerprint)
		}
	}
	return a.Name, false, nil
}

func remoteAddrPort(addr net.Addr) netip.AddrPort {
	if u, ok := addr.(*net.UDPAddr); ok {
		ap := u.AddrPort()
		return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
	}
	return netip.AddrPort{}
}
