// Package exchange implements the symmetric duokey engine: a
// Diffie-Hellman style agreement on a small shared secret, and an XOR
// stream cipher keyed by that secret.
//
// A Sender moves through three states. It starts unkeyed, becomes
// partially keyed once GeneratePartialKey has run, and is secured after
// GenerateSecretKey has combined the peer's partial key with its own
// private integer. Only the partial key is ever meant to leave a Sender.
package exchange

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"sync"

	"github.com/TheusHen/duokey/duokey/log"
	"github.com/TheusHen/duokey/duokey/numtheory"
)

const (
	DefaultKeyLimit = 10
	DefaultPrime    = 23
	DefaultBase     = 5
)

var (
	ErrInvalidKeyLimit   = errors.New("exchange: key limit must not be negative")
	ErrInvalidPrime      = errors.New("exchange: modulus must be a prime")
	ErrInvalidBase       = errors.New("exchange: base must be positive")
	ErrInvalidPartialKey = errors.New("exchange: partial key out of range")
	ErrGroupMismatch     = errors.New("exchange: secret key prime differs from partial key prime")
	ErrNoPartialKey      = errors.New("exchange: partial key not generated")
	ErrNoSecretKey       = errors.New("exchange: secret key not generated")
	ErrNoSender          = errors.New("exchange: missing sender")
)

type state uint8

const (
	stateUnkeyed state = iota
	statePartialKeyed
	stateSecured
)

// Receiver accepts ciphertext from a Sender.
type Receiver interface {
	ReceiveMessage(ciphertext string) (string, error)
}

type Options struct {
	// KeyLimit bounds the private integer to [0, KeyLimit). Zero means
	// DefaultKeyLimit.
	KeyLimit int
	// Rand is read once, when the private integer is drawn. Nil means
	// crypto/rand.Reader.
	Rand   io.Reader
	Logger log.Logger
}

// Sender is one party of the symmetric protocol.
type Sender struct {
	mu             sync.Mutex
	privateInteger int
	prime          int
	partialKey     int
	secretKey      int
	state          state
	log            log.Logger
}

// NewSender draws a private integer uniformly from [0, KeyLimit).
func NewSender(opts Options) (*Sender, error) {
	limit := opts.KeyLimit
	if limit == 0 {
		limit = DefaultKeyLimit
	}
	if limit < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidKeyLimit, limit)
	}
	r := opts.Rand
	if r == nil {
		r = rand.Reader
	}
	n, err := rand.Int(r, big.NewInt(int64(limit)))
	if err != nil {
		return nil, fmt.Errorf("exchange: draw private integer: %w", err)
	}
	return &Sender{
		privateInteger: int(n.Int64()),
		log:            log.OrNop(opts.Logger).Named("exchange"),
	}, nil
}

// GeneratePartialKey computes base^private mod prime, the value that is
// disclosed to the peer. Any previously derived secret is discarded.
func (s *Sender) GeneratePartialKey(prime, base int) error {
	if !isPrime(prime) {
		return fmt.Errorf("%w: %d", ErrInvalidPrime, prime)
	}
	if base <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidBase, base)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.prime = prime
	s.partialKey = numtheory.ModExp(base, s.privateInteger, prime)
	s.secretKey = 0
	s.state = statePartialKeyed
	return nil
}

// PartialKey returns the value to send to the peer.
func (s *Sender) PartialKey() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state < statePartialKeyed {
		return 0, ErrNoPartialKey
	}
	return s.partialKey, nil
}

// GenerateSecretKey combines the peer's partial key with the private
// integer: peerPartialKey^private mod prime.
func (s *Sender) GenerateSecretKey(prime, peerPartialKey int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state < statePartialKeyed {
		return ErrNoPartialKey
	}
	if prime != s.prime {
		return fmt.Errorf("%w: %d != %d", ErrGroupMismatch, prime, s.prime)
	}
	if peerPartialKey < 0 || peerPartialKey >= prime {
		return fmt.Errorf("%w: %d", ErrInvalidPartialKey, peerPartialKey)
	}
	s.secretKey = numtheory.ModExp(peerPartialKey, s.privateInteger, prime)
	s.state = stateSecured
	s.log.Debugw("secret key derived", "prime", prime)
	return nil
}

// Secured reports whether a secret key has been derived.
func (s *Sender) Secured() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateSecured
}

func (s *Sender) secret() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateSecured {
		return 0, ErrNoSecretKey
	}
	return s.secretKey, nil
}

// SendMessage encrypts plaintext, hands the ciphertext to recipient and
// returns it.
func (s *Sender) SendMessage(plaintext string, recipient Receiver) (string, error) {
	if recipient == nil {
		return "", ErrNoSender
	}
	ciphertext, err := s.EncryptMessage(plaintext)
	if err != nil {
		return "", err
	}
	s.log.Debugw("sending message", "ciphertext", ciphertext)
	if _, err := recipient.ReceiveMessage(ciphertext); err != nil {
		return "", fmt.Errorf("exchange: deliver: %w", err)
	}
	return ciphertext, nil
}

// ReceiveMessage decrypts ciphertext. There is no integrity check.
func (s *Sender) ReceiveMessage(ciphertext string) (string, error) {
	plaintext, err := s.DecryptMessage(ciphertext)
	if err != nil {
		return "", err
	}
	s.log.Debugw("message received", "length", len(plaintext))
	return plaintext, nil
}

// Group is the public (prime, base) pair both parties agree on. Zero
// fields take the defaults 23 and 5.
type Group struct {
	Prime int
	Base  int
}

// WithDefaults fills zero fields with DefaultPrime and DefaultBase.
func (g Group) WithDefaults() Group {
	if g.Prime == 0 {
		g.Prime = DefaultPrime
	}
	if g.Base == 0 {
		g.Base = DefaultBase
	}
	return g
}

// ExchangeKeys runs the whole agreement between a and b. Only the partial
// keys cross between them; afterwards both hold the same secret key.
func ExchangeKeys(a, b *Sender, g Group) error {
	if a == nil || b == nil {
		return ErrNoSender
	}
	g = g.WithDefaults()

	if err := a.GeneratePartialKey(g.Prime, g.Base); err != nil {
		return err
	}
	if err := b.GeneratePartialKey(g.Prime, g.Base); err != nil {
		return err
	}
	pa, err := a.PartialKey()
	if err != nil {
		return err
	}
	pb, err := b.PartialKey()
	if err != nil {
		return err
	}
	if err := a.GenerateSecretKey(g.Prime, pb); err != nil {
		return err
	}
	return b.GenerateSecretKey(g.Prime, pa)
}

func isPrime(n int) bool {
	return n >= 2 && big.NewInt(int64(n)).ProbablyPrime(0)
}
