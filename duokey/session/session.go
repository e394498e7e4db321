// Package session binds QUIC connections to duokey identities.
//
// A handshake exchanges signed announcements on a control stream. The
// resulting Session stands in for the remote identity: handing it an
// envelope ships the envelope to the peer, whose identity decides whether
// it is authentic. Key agreement channels for the symmetric engine run on
// streams of their own.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/TheusHen/duokey/duokey/identity"
	"github.com/TheusHen/duokey/duokey/log"
	"github.com/TheusHen/duokey/duokey/protocol"
	q "github.com/quic-go/quic-go"
)

var ErrNoIdentity = errors.New("session: local identity required")

// Session is an authenticated duokey session over a QUIC connection.
// Envelopes travel on the control stream, one exchange at a time.
type Session struct {
	conn       q.Connection
	control    q.Stream
	local      *identity.Identity
	remote     protocol.Announce
	remoteName string
	log        log.Logger

	mu sync.Mutex
}

func newSession(conn q.Connection, control q.Stream, local *identity.Identity, remote protocol.Announce, name string, l log.Logger) *Session {
	fp, _ := identity.ParseFingerprintHex(remote.Fingerprint)
	return &Session{
		conn:       conn,
		control:    control,
		local:      local,
		remote:     remote,
		remoteName: name,
		log:        log.OrNop(l).Named("session").With("remote", fp.String()),
	}
}

func (s *Session) Connection() q.Connection { return s.conn }

func (s *Session) Local() *identity.Identity { return s.local }

// RemoteName is the directory name of the peer, or its announced name.
func (s *Session) RemoteName() string { return s.remoteName }

func (s *Session) RemoteFingerprint() identity.Fingerprint {
	fp, _ := identity.ParseFingerprintHex(s.remote.Fingerprint)
	return fp
}

// PublicKey returns the peer's announced public key.
func (s *Session) PublicKey() (identity.PublicKey, error) {
	return s.remote.PublicKey()
}

// ReceiveMessage delivers an envelope to the peer and returns its verdict.
// An authenticated verdict is Acknowledged: the plaintext stays with the
// peer. The peer checks the signature against the key announced on this
// session, whatever sender claims.
func (s *Session) ReceiveMessage(ciphertext, signature string, sender identity.Peer) (identity.Result, error) {
	if sender == nil {
		return identity.Result{}, identity.ErrNoPeer
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	env := protocol.EnvelopeMessage{Ciphertext: ciphertext, Signature: signature}
	if err := protocol.WriteMessage(s.control, protocol.MessageTypeEnvelope, env); err != nil {
		return identity.Result{}, fmt.Errorf("session: send envelope: %w", err)
	}
	var v protocol.VerdictMessage
	if err := protocol.ReadMessage(s.control, protocol.MessageTypeVerdict, &v); err != nil {
		return identity.Result{}, fmt.Errorf("session: read verdict: %w", err)
	}
	if !v.Authenticated {
		return identity.Unauthenticated(), nil
	}
	return identity.Acknowledged(), nil
}

// Send encrypts plaintext for the peer, signs it with the local identity
// and returns the peer's verdict.
func (s *Session) Send(plaintext string) (identity.Result, error) {
	if s.local == nil {
		return identity.Result{}, ErrNoIdentity
	}
	rec := &recorder{Receiver: s}
	if _, err := s.local.SendMessage(plaintext, rec); err != nil {
		return identity.Result{}, err
	}
	return rec.result, nil
}

type recorder struct {
	identity.Receiver
	result identity.Result
}

func (r *recorder) ReceiveMessage(ciphertext, signature string, sender identity.Peer) (identity.Result, error) {
	res, err := r.Receiver.ReceiveMessage(ciphertext, signature, sender)
	r.result = res
	return res, err
}

// Accept reads the next envelope from the peer, passes it through the
// local identity's authenticity check and answers with the verdict.
func (s *Session) Accept(ctx context.Context) (identity.Result, error) {
	if s.local == nil {
		return identity.Result{}, ErrNoIdentity
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	defer watch(ctx, s.control)()

	var env protocol.EnvelopeMessage
	if err := protocol.ReadMessage(s.control, protocol.MessageTypeEnvelope, &env); err != nil {
		return identity.Result{}, err
	}
	res, err := s.local.ReceiveMessage(env.Ciphertext, env.Signature, s.remote)
	if err != nil {
		return identity.Result{}, err
	}
	s.log.Debugw("envelope received", "outcome", res.Outcome().String())

	v := protocol.VerdictMessage{Authenticated: res.Authenticated()}
	if err := protocol.WriteMessage(s.control, protocol.MessageTypeVerdict, v); err != nil {
		return identity.Result{}, fmt.Errorf("session: send verdict: %w", err)
	}
	return res, nil
}

// Close tells the peer the session is over, unless an exchange is in
// flight, and closes the connection.
func (s *Session) Close() error {
	if s.mu.TryLock() {
		_ = protocol.WriteClose(s.control)
		_ = s.control.Close()
		s.mu.Unlock()
	}
	return s.conn.CloseWithError(0, "session closed")
}

func (s *Session) CloseWithError(code q.ApplicationErrorCode, msg string) error {
	return s.conn.CloseWithError(code, msg)
}

// watch aborts blocked stream I/O when ctx ends. The returned func stops
// watching and clears any deadline it set.
func watch(ctx context.Context, st q.Stream) func() {
	stop := context.AfterFunc(ctx, func() {
		_ = st.SetDeadline(time.Now())
	})
	return func() {
		if !stop() {
			_ = st.SetDeadline(time.Time{})
		}
	}
}
