package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/TheusHen/duokey/duokey/exchange"
	"github.com/TheusHen/duokey/duokey/log"
	"github.com/TheusHen/duokey/duokey/protocol"
	q "github.com/quic-go/quic-go"
)

// CloseTimeout bounds how long Channel.Close waits for the peer.
const CloseTimeout = 5 * time.Second

// Channel is a stream keyed by a Diffie-Hellman agreement between two
// exchange.Senders. Only partial keys cross the wire during the agreement.
type Channel struct {
	stream q.Stream
	sender *exchange.Sender
	group  exchange.Group
	log    log.Logger
}

// OpenChannel opens a stream and runs the key agreement as the initiator,
// proposing g. The peer must answer with the same group.
func (s *Session) OpenChannel(ctx context.Context, sender *exchange.Sender, g exchange.Group) (*Channel, error) {
	if sender == nil {
		return nil, exchange.ErrNoSender
	}
	g = g.WithDefaults()
	if err := sender.GeneratePartialKey(g.Prime, g.Base); err != nil {
		return nil, err
	}
	partial, err := sender.PartialKey()
	if err != nil {
		return nil, err
	}

	st, err := s.conn.OpenStreamSync(ctx)
	if err != nil {
		return nil, err
	}
	defer watch(ctx, st)()

	offer := protocol.PartialKeyMessage{Prime: g.Prime, Base: g.Base, PartialKey: partial}
	if err := protocol.WriteMessage(st, protocol.MessageTypePartialKey, offer); err != nil {
		abort(st)
		return nil, err
	}
	var answer protocol.PartialKeyMessage
	if err := protocol.ReadMessage(st, protocol.MessageTypePartialKey, &answer); err != nil {
		abort(st)
		return nil, err
	}
	if answer.Prime != g.Prime || answer.Base != g.Base {
		abort(st)
		return nil, fmt.Errorf("%w: answered (%d, %d)", exchange.ErrGroupMismatch, answer.Prime, answer.Base)
	}
	if err := sender.GenerateSecretKey(g.Prime, answer.PartialKey); err != nil {
		abort(st)
		return nil, err
	}
	return s.newChannel(st, sender, g), nil
}

// AcceptChannel accepts the next stream the peer opens and answers its key
// agreement in the group it proposed.
func (s *Session) AcceptChannel(ctx context.Context, sender *exchange.Sender) (*Channel, error) {
	if sender == nil {
		return nil, exchange.ErrNoSender
	}
	st, err := s.conn.AcceptStream(ctx)
	if err != nil {
		return nil, err
	}
	defer watch(ctx, st)()

	var offer protocol.PartialKeyMessage
	if err := protocol.ReadMessage(st, protocol.MessageTypePartialKey, &offer); err != nil {
		abort(st)
		return nil, err
	}
	if err := sender.GeneratePartialKey(offer.Prime, offer.Base); err != nil {
		abort(st)
		return nil, err
	}
	partial, err := sender.PartialKey()
	if err != nil {
		abort(st)
		return nil, err
	}
	if err := sender.GenerateSecretKey(offer.Prime, offer.PartialKey); err != nil {
		abort(st)
		return nil, err
	}
	answer := protocol.PartialKeyMessage{Prime: offer.Prime, Base: offer.Base, PartialKey: partial}
	if err := protocol.WriteMessage(st, protocol.MessageTypePartialKey, answer); err != nil {
		abort(st)
		return nil, err
	}
	return s.newChannel(st, sender, exchange.Group{Prime: offer.Prime, Base: offer.Base}), nil
}

func abort(st q.Stream) {
	st.CancelRead(0)
	st.CancelWrite(0)
}

func (s *Session) newChannel(st q.Stream, sender *exchange.Sender, g exchange.Group) *Channel {
	c := &Channel{
		stream: st,
		sender: sender,
		group:  g,
		log:    s.log.With("stream", int64(st.StreamID())),
	}
	c.log.Debugw("channel keyed", "prime", g.Prime, "base", g.Base)
	return c
}

func (c *Channel) Group() exchange.Group { return c.group }

// Send encrypts plaintext and writes it to the peer. It returns the
// ciphertext that went on the wire.
func (c *Channel) Send(plaintext string) (string, error) {
	return c.sender.SendMessage(plaintext, c)
}

// ReceiveMessage writes ciphertext to the peer. It makes the channel the
// exchange.Receiver of its own sender; the returned plaintext is always
// empty since decryption happens on the other side.
func (c *Channel) ReceiveMessage(ciphertext string) (string, error) {
	return "", protocol.WriteMessage(c.stream, protocol.MessageTypeCipher, protocol.CipherMessage{Ciphertext: ciphertext})
}

// Receive reads and decrypts the next message. It returns io.EOF once the
// peer has closed the channel, after closing this side too.
func (c *Channel) Receive() (string, error) {
	var m protocol.CipherMessage
	if err := protocol.ReadMessage(c.stream, protocol.MessageTypeCipher, &m); err != nil {
		if errors.Is(err, protocol.ErrClosed) || errors.Is(err, io.EOF) {
			_ = c.stream.Close()
			return "", io.EOF
		}
		return "", err
	}
	return c.sender.ReceiveMessage(m.Ciphertext)
}

// Close announces the end of the channel, closes the write side and waits
// up to CloseTimeout for the peer to close its side.
func (c *Channel) Close() error {
	if err := protocol.WriteClose(c.stream); err != nil {
		return err
	}
	if err := c.stream.Close(); err != nil {
		return err
	}
	_ = c.stream.SetReadDeadline(time.Now().Add(CloseTimeout))
	_, _ = io.Copy(io.Discard, c.stream)
	return nil
}
