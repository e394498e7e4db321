package session

import (
	"context"
	"errors"
	"net/netip"
	"testing"
	"time"

	"github.com/TheusHen/duokey/duokey/discovery"
	"github.com/TheusHen/duokey/duokey/discovery/memory"
	"github.com/TheusHen/duokey/duokey/identity"
	"github.com/TheusHen/duokey/duokey/protocol"
	"github.com/TheusHen/duokey/duokey/transport/quic"
)

func keyedIdentity(t *testing.T, name string, p, q int) *identity.Identity {
	t.Helper()
	id := identity.New(identity.Options{Name: name})
	if err := id.GenerateKeyPair(p, q); err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	return id
}

type accepted struct {
	sess *Session
	err  error
}

// serve accepts one connection on ln and runs the server handshake.
func serve(ctx context.Context, ln *quic.Listener, id *identity.Identity, opts HandshakeOptions) <-chan accepted {
	ch := make(chan accepted, 1)
	go func() {
		conn, err := ln.Accept(ctx)
		if err != nil {
			ch <- accepted{err: err}
			return
		}
		sess, err := HandshakeServer(ctx, conn, id, opts)
		if err != nil {
			_ = conn.CloseWithError(1, err.Error())
		}
		ch <- accepted{sess: sess, err: err}
	}()
	return ch
}

func listen(t *testing.T) *quic.Listener {
	t.Helper()
	ln, err := quic.Listen("127.0.0.1:0", quic.Config{})
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	if ln.AddrString() == "" {
		t.Fatalf("expected listener addr")
	}
	return ln
}

func connect(t *testing.T, ctx context.Context, client, server *identity.Identity, opts HandshakeOptions) (*Session, *Session) {
	t.Helper()
	ln := listen(t)
	srv := serve(ctx, ln, server, HandshakeOptions{})

	conn, err := quic.Dial(ctx, ln.AddrString(), quic.Config{})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	cs, err := HandshakeClient(ctx, conn, client, opts)
	if err != nil {
		t.Fatalf("HandshakeClient: %v", err)
	}
	res := <-srv
	if res.err != nil {
		t.Fatalf("server handshake: %v", res.err)
	}
	t.Cleanup(func() {
		_ = cs.Close()
		_ = res.sess.Close()
	})
	return cs, res.sess
}

func TestHandshakeClientServer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice := keyedIdentity(t, "alice", 3, 11)
	bob := keyedIdentity(t, "bob", 5, 7)

	cs, ss := connect(t, ctx, alice, bob, HandshakeOptions{})

	bobFP, _ := bob.Fingerprint()
	aliceFP, _ := alice.Fingerprint()
	if cs.RemoteFingerprint() != bobFP {
		t.Fatalf("client expected bob's fingerprint")
	}
	if ss.RemoteFingerprint() != aliceFP {
		t.Fatalf("server expected alice's fingerprint")
	}
	if cs.RemoteName() != "bob" || ss.RemoteName() != "alice" {
		t.Fatalf("unexpected names %q, %q", cs.RemoteName(), ss.RemoteName())
	}
	pk, err := cs.PublicKey()
	if err != nil {
		t.Fatalf("PublicKey: %v", err)
	}
	if pk != (identity.PublicKey{Modulus: 35, Exponent: 5}) {
		t.Fatalf("unexpected remote key %+v", pk)
	}
	if cs.Local() != alice {
		t.Fatalf("local identity not kept")
	}
}

func TestHandshakeRejectsUnexpectedKey(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice := keyedIdentity(t, "alice", 3, 11)
	bob := keyedIdentity(t, "bob", 5, 7)
	carol := keyedIdentity(t, "carol", 5, 11)
	carolFP, _ := carol.Fingerprint()

	ln := listen(t)
	srv := serve(ctx, ln, bob, HandshakeOptions{})
	conn, err := quic.Dial(ctx, ln.AddrString(), quic.Config{})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.CloseWithError(0, "")

	if _, err := HandshakeClient(ctx, conn, alice, HandshakeOptions{Expect: carolFP}); !errors.Is(err, ErrKeyMismatch) {
		t.Fatalf("expected ErrKeyMismatch, got %v", err)
	}
	<-srv
}

func TestHandshakeRequiresSignableKey(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	small := keyedIdentity(t, "small", 3, 5)
	// The announcement is built before any stream is touched.
	if _, err := HandshakeClient(ctx, nil, small, HandshakeOptions{}); !errors.Is(err, protocol.ErrModulusTooSmall) {
		t.Fatalf("expected ErrModulusTooSmall, got %v", err)
	}
	if _, err := HandshakeServer(ctx, nil, identity.New(identity.Options{}), HandshakeOptions{}); err != identity.ErrNoKeys {
		t.Fatalf("expected ErrNoKeys, got %v", err)
	}
}

func announceOf(t *testing.T, id *identity.Identity) protocol.Announce {
	t.Helper()
	a, err := protocol.NewAnnounce(id)
	if err != nil {
		t.Fatalf("NewAnnounce: %v", err)
	}
	return a
}

func TestPin(t *testing.T) {
	alice := keyedIdentity(t, "alice", 3, 11)
	bob := keyedIdentity(t, "bob", 5, 7)
	aliceKey, _ := alice.PublicKey()
	aliceFP, _ := alice.Fingerprint()

	dir := memory.New()
	if err := dir.Announce(discovery.NewEntry("alice-from-directory", aliceKey, netip.AddrPort{})); err != nil {
		t.Fatalf("Announce: %v", err)
	}
	// A different key already holds bob's name.
	if err := dir.Announce(discovery.NewEntry("bob", identity.PublicKey{Modulus: 55, Exponent: 3}, netip.AddrPort{})); err != nil {
		t.Fatalf("Announce: %v", err)
	}

	cases := []struct {
		name     string
		announce protocol.Announce
		opts     HandshakeOptions
		want     string
		err      error
	}{
		{"no directory", announceOf(t, bob), HandshakeOptions{}, "bob", nil},
		{"no directory but required", announceOf(t, bob), HandshakeOptions{RequireKnown: true}, "", ErrUnknownPeer},
		{"expected fingerprint", announceOf(t, alice), HandshakeOptions{Expect: aliceFP}, "alice", nil},
		{"other fingerprint", announceOf(t, bob), HandshakeOptions{Expect: aliceFP}, "", ErrKeyMismatch},
		{"directory name wins", announceOf(t, alice), HandshakeOptions{Directory: dir}, "alice-from-directory", nil},
		{"pinned name", announceOf(t, bob), HandshakeOptions{Directory: dir}, "", ErrKeyMismatch},
		{"unknown required", announceOf(t, bob), HandshakeOptions{Directory: memory.New(), RequireKnown: true}, "", ErrUnknownPeer},
		{"unknown allowed", announceOf(t, bob), HandshakeOptions{Directory: memory.New()}, "bob", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			name, _, err := pin(tc.announce, tc.opts)
			if !errors.Is(err, tc.err) {
				t.Fatalf("expected %v, got %v", tc.err, err)
			}
			if name != tc.want {
				t.Fatalf("name = %q, want %q", name, tc.want)
			}
		})
	}
}

func TestAdmitLearnsNewPeers(t *testing.T) {
	bob := keyedIdentity(t, "bob", 5, 7)
	bobFP, _ := bob.Fingerprint()
	addr := netip.MustParseAddrPort("127.0.0.1:4243")

	dir := memory.New()
	name, err := admit(announceOf(t, bob), HandshakeOptions{Directory: dir}, addr)
	if err != nil || name != "bob" {
		t.Fatalf("admit = %q, %v", name, err)
	}
	if _, err := dir.Lookup(bobFP); err != discovery.ErrNotFound {
		t.Fatalf("peer recorded without Learn")
	}

	name, err = admit(announceOf(t, bob), HandshakeOptions{Directory: dir, Learn: true}, addr)
	if err != nil || name != "bob" {
		t.Fatalf("admit = %q, %v", name, err)
	}
	e, err := dir.Lookup(bobFP)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if e.Name != "bob" || e.Addr != addr {
		t.Fatalf("unexpected entry %+v", e)
	}

	// Once learned, another key cannot take the name.
	impostor := keyedIdentity(t, "bob", 5, 11)
	if _, err := admit(announceOf(t, impostor), HandshakeOptions{Directory: dir, Learn: true}, addr); !errors.Is(err, ErrKeyMismatch) {
		t.Fatalf("expected ErrKeyMismatch, got %v", err)
	}
}
