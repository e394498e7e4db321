// Package identity implements the asymmetric duokey engine: textbook RSA
// over the duokey alphabet, with signatures and an authenticated
// send/receive protocol between named identities.
package identity

import (
	"errors"
	"fmt"
	"sync"

	"github.com/TheusHen/duokey/duokey/log"
)

var (
	ErrNoKeys               = errors.New("identity: key pair not generated")
	ErrKeysAlreadyGenerated = errors.New("identity: key pair already generated")
	ErrNoPeer               = errors.New("identity: missing peer")
)

// Peer is anything that can disclose a public key.
type Peer interface {
	PublicKey() (PublicKey, error)
}

// Receiver accepts a ciphertext and its signature from a sender.
type Receiver interface {
	Peer
	ReceiveMessage(ciphertext, signature string, sender Peer) (Result, error)
}

// Envelope is what SendMessage hands over: the ciphertext for the
// recipient, the sender's signature of that ciphertext, and the sender.
type Envelope struct {
	Ciphertext string
	Signature  string
	Sender     Peer
}

type Options struct {
	Name   string
	Logger log.Logger
}

// Identity is a party of the asymmetric protocol. It starts without keys;
// GenerateKeyPair moves it, once, to the keyed state.
type Identity struct {
	mu   sync.RWMutex
	name string
	keys *KeyPair
	log  log.Logger
}

func New(opts Options) *Identity {
	return &Identity{
		name: opts.Name,
		log:  log.OrNop(opts.Logger).Named("identity").With("name", opts.Name),
	}
}

// FromKeyPair returns an identity that already owns kp.
func FromKeyPair(kp KeyPair, opts Options) (*Identity, error) {
	if err := kp.Validate(); err != nil {
		return nil, err
	}
	id := New(opts)
	id.keys = &kp
	return id, nil
}

func (id *Identity) Name() string { return id.name }

// GenerateKeyPair derives and stores the identity's key pair from the
// distinct primes p and q.
func (id *Identity) GenerateKeyPair(p, q int) error {
	id.mu.Lock()
	defer id.mu.Unlock()

	if id.keys != nil {
		return ErrKeysAlreadyGenerated
	}
	kp, err := GenerateKeyPair(p, q)
	if err != nil {
		return err
	}
	id.keys = &kp
	id.log.Debugw("key pair generated", "modulus", kp.Modulus, "public_exponent", kp.PublicExponent)
	return nil
}

// HasKeys reports whether the key pair has been generated.
func (id *Identity) HasKeys() bool {
	id.mu.RLock()
	defer id.mu.RUnlock()
	return id.keys != nil
}

func (id *Identity) keyPair() (KeyPair, error) {
	id.mu.RLock()
	defer id.mu.RUnlock()
	if id.keys == nil {
		return KeyPair{}, ErrNoKeys
	}
	return *id.keys, nil
}

func (id *Identity) PublicKey() (PublicKey, error) {
	kp, err := id.keyPair()
	if err != nil {
		return PublicKey{}, err
	}
	return kp.Public(), nil
}

func (id *Identity) Fingerprint() (Fingerprint, error) {
	pk, err := id.PublicKey()
	if err != nil {
		return Fingerprint{}, err
	}
	return pk.Fingerprint(), nil
}

// SignMessage encrypts text with the identity's private exponent.
func (id *Identity) SignMessage(text string) (string, error) {
	kp, err := id.keyPair()
	if err != nil {
		return "", err
	}
	return EncryptMessage(text, kp.PrivateExponent, kp.Modulus)
}

// SendMessage encrypts plaintext for recipient, signs the ciphertext and
// delivers both to recipient before returning the envelope.
func (id *Identity) SendMessage(plaintext string, recipient Receiver) (Envelope, error) {
	if recipient == nil {
		return Envelope{}, ErrNoPeer
	}
	to, err := recipient.PublicKey()
	if err != nil {
		return Envelope{}, fmt.Errorf("identity: recipient key: %w", err)
	}
	if err := to.Validate(); err != nil {
		return Envelope{}, err
	}
	ciphertext, err := EncryptMessage(plaintext, to.Exponent, to.Modulus)
	if err != nil {
		return Envelope{}, err
	}
	signature, err := id.SignMessage(ciphertext)
	if err != nil {
		return Envelope{}, err
	}
	res, err := recipient.ReceiveMessage(ciphertext, signature, id)
	if err != nil {
		return Envelope{}, fmt.Errorf("identity: deliver: %w", err)
	}
	id.log.Debugw("message sent", "recipient", to.Fingerprint().String(), "outcome", res.Outcome().String())
	return Envelope{Ciphertext: ciphertext, Signature: signature, Sender: id}, nil
}

// ReceiveMessage checks that signature is sender's signature of ciphertext
// and only then decrypts it. A failed check is reported as an
// unauthenticated Result, not as an error.
func (id *Identity) ReceiveMessage(ciphertext, signature string, sender Peer) (Result, error) {
	if sender == nil {
		return Result{}, ErrNoPeer
	}
	from, err := sender.PublicKey()
	if err != nil {
		return Result{}, fmt.Errorf("identity: sender key: %w", err)
	}
	if !ConfirmAuthenticity(ciphertext, signature, from.Exponent, from.Modulus) {
		id.log.Warnw("identity not authenticated", "sender", from.Fingerprint().String())
		return Unauthenticated(), nil
	}

	kp, err := id.keyPair()
	if err != nil {
		return Result{}, err
	}
	plaintext, err := DecryptMessage(ciphertext, kp.PrivateExponent, kp.Modulus)
	if err != nil {
		return Result{}, err
	}
	return Authenticated(plaintext), nil
}
