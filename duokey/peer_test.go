package duokey

import (
	"context"
	"errors"
	"net/netip"
	"testing"
	"time"

	"github.com/TheusHen/duokey/duokey/discovery"
	"github.com/TheusHen/duokey/duokey/discovery/memory"
	"github.com/TheusHen/duokey/duokey/identity"
	"github.com/TheusHen/duokey/duokey/session"
)

func newIdentity(t *testing.T, name string, p, q int) *identity.Identity {
	t.Helper()
	id := identity.New(identity.Options{Name: name})
	if err := id.GenerateKeyPair(p, q); err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	return id
}

func TestPeerDialFingerprint(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	dir := memory.New()
	alice := NewPeer(newIdentity(t, "alice", 3, 11), Options{Directory: dir})
	bob := NewPeer(newIdentity(t, "bob", 5, 7), Options{Directory: dir})

	if err := bob.Listen("127.0.0.1:0"); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer bob.Close()
	if err := bob.Register(netip.MustParseAddrPort(bob.ListenAddr())); err != nil {
		t.Fatalf("Register: %v", err)
	}

	type accepted struct {
		sess *session.Session
		err  error
	}
	acc := make(chan accepted, 1)
	go func() {
		sess, err := bob.Accept(ctx)
		acc <- accepted{sess, err}
	}()

	bobFP, _ := bob.Identity.Fingerprint()
	sess, err := alice.DialFingerprint(ctx, bobFP)
	if err != nil {
		t.Fatalf("DialFingerprint: %v", err)
	}
	defer sess.Close()
	if sess.RemoteName() != "bob" {
		t.Fatalf("unexpected remote name %q", sess.RemoteName())
	}

	a := <-acc
	if a.err != nil {
		t.Fatalf("Accept: %v", a.err)
	}
	defer a.sess.Close()

	got := make(chan identity.Result, 1)
	go func() {
		res, _ := a.sess.Accept(ctx)
		got <- res
	}()
	res, err := sess.Send("hello there")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !res.Authenticated() {
		t.Fatalf("expected authenticated verdict")
	}
	if pt, ok := (<-got).Plaintext(); !ok || pt != "hello there" {
		t.Fatalf("bob read %q", pt)
	}
}

func TestPeerRequireKnownRejectsStrangers(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	bob := NewPeer(newIdentity(t, "bob", 5, 7), Options{Directory: memory.New(), RequireKnown: true})
	if err := bob.Listen("127.0.0.1:0"); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer bob.Close()

	errCh := make(chan error, 1)
	go func() {
		_, err := bob.Accept(ctx)
		errCh <- err
	}()

	mallory := NewPeer(newIdentity(t, "mallory", 3, 11), Options{})
	if _, err := mallory.Dial(ctx, bob.ListenAddr()); err == nil {
		t.Fatalf("expected the stranger's dial to fail")
	}
	err := <-errCh
	if !errors.Is(err, session.ErrUnknownPeer) || !errors.Is(err, ErrHandshakeFailed) {
		t.Fatalf("expected a failed handshake with ErrUnknownPeer, got %v", err)
	}

	// Once the listener is gone, Accept fails without ErrHandshakeFailed.
	if err := bob.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := bob.Accept(ctx); err == nil || errors.Is(err, ErrHandshakeFailed) {
		t.Fatalf("expected a listener error, got %v", err)
	}
}

func TestPeerErrors(t *testing.T) {
	ctx := context.Background()
	p := NewPeer(newIdentity(t, "alice", 3, 11), Options{})
	if _, err := p.Accept(ctx); err != ErrNotListening {
		t.Fatalf("expected ErrNotListening, got %v", err)
	}
	if err := p.Register(netip.AddrPort{}); err != ErrNoDirectory {
		t.Fatalf("expected ErrNoDirectory, got %v", err)
	}
	if _, err := p.DialFingerprint(ctx, identity.Fingerprint{}); err != ErrNoDirectory {
		t.Fatalf("expected ErrNoDirectory, got %v", err)
	}
	if p.ListenAddr() != "" || p.Close() != nil {
		t.Fatalf("idle peer must have no listener")
	}

	dir := memory.New()
	pk := identity.PublicKey{Modulus: 35, Exponent: 5}
	_ = dir.Announce(discovery.NewEntry("bob", pk, netip.AddrPort{}))
	p = NewPeer(p.Identity, Options{Directory: dir})
	if _, err := p.DialFingerprint(ctx, pk.Fingerprint()); !errors.Is(err, ErrNoAddress) {
		t.Fatalf("expected ErrNoAddress, got %v", err)
	}
	if _, err := p.DialFingerprint(ctx, identity.Fingerprint{}); err != discovery.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPeerLearnsOnFirstUse(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	aliceDir, bobDir := memory.New(), memory.New()
	alice := NewPeer(newIdentity(t, "alice", 3, 11), Options{Directory: aliceDir, Learn: true})
	bob := NewPeer(newIdentity(t, "bob", 5, 7), Options{Directory: bobDir, Learn: true})
	if err := bob.Listen("127.0.0.1:0"); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer bob.Close()

	type accepted struct {
		sess *session.Session
		err  error
	}
	acc := make(chan accepted, 1)
	go func() {
		sess, err := bob.Accept(ctx)
		acc <- accepted{sess, err}
	}()
	sess, err := alice.Dial(ctx, bob.ListenAddr())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer sess.Close()
	a := <-acc
	if a.err != nil {
		t.Fatalf("Accept: %v", a.err)
	}
	defer a.sess.Close()

	bobFP, _ := bob.Identity.Fingerprint()
	e, err := aliceDir.Lookup(bobFP)
	if err != nil {
		t.Fatalf("alice did not learn bob: %v", err)
	}
	if e.Name != "bob" || e.Addr.String() != bob.ListenAddr() {
		t.Fatalf("unexpected entry %+v", e)
	}

	aliceFP, _ := alice.Identity.Fingerprint()
	e, err = bobDir.Lookup(aliceFP)
	if err != nil {
		t.Fatalf("bob did not learn alice: %v", err)
	}
	if e.Name != "alice" || e.Addr.IsValid() {
		t.Fatalf("unexpected entry %+v", e)
	}
}
