package identity

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/TheusHen/duokey/duokey/numtheory"
)

// MaxPrime bounds the primes accepted by GenerateKeyPair so that the
// modulus and phi always fit in an int.
const MaxPrime = 1<<31 - 1

var (
	ErrNotPrime       = errors.New("identity: key generation requires primes")
	ErrSamePrimes     = errors.New("identity: key generation requires two distinct primes")
	ErrPrimeTooLarge  = errors.New("identity: prime too large")
	ErrInvalidKeyPair = errors.New("identity: invalid key pair")
)

// KeyPair holds the textbook RSA parameters of an identity.
// PrivateExponent must never leave the identity that owns it.
type KeyPair struct {
	Modulus         int
	PublicExponent  int
	PrivateExponent int
}

// PublicKey is the part of a KeyPair that is safe to disclose.
type PublicKey struct {
	Modulus  int `json:"modulus"`
	Exponent int `json:"exponent"`
}

// GenerateKeyPair derives a key pair from two distinct primes p and q.
// The public exponent is the smallest integer >= 2 coprime with
// phi = (p-1)(q-1) and the private exponent is its inverse modulo phi.
func GenerateKeyPair(p, q int) (KeyPair, error) {
	if p == q {
		return KeyPair{}, fmt.Errorf("%w: %d", ErrSamePrimes, p)
	}
	for _, n := range []int{p, q} {
		if n > MaxPrime {
			return KeyPair{}, fmt.Errorf("%w: %d", ErrPrimeTooLarge, n)
		}
		if n < 2 || !big.NewInt(int64(n)).ProbablyPrime(0) {
			return KeyPair{}, fmt.Errorf("%w: %d", ErrNotPrime, n)
		}
	}

	phi := (p - 1) * (q - 1)
	pub, err := numtheory.SmallestCoprime(phi)
	if err != nil {
		return KeyPair{}, fmt.Errorf("identity: public exponent for phi %d: %w", phi, err)
	}
	priv, err := numtheory.ModInverse(pub, phi)
	if err != nil {
		return KeyPair{}, fmt.Errorf("identity: private exponent for phi %d: %w", phi, err)
	}
	return KeyPair{Modulus: p * q, PublicExponent: pub, PrivateExponent: priv}, nil
}

// Validate checks that every field is usable by the transforms.
func (kp KeyPair) Validate() error {
	if kp.Modulus <= 0 {
		return fmt.Errorf("%w: modulus %d", ErrInvalidKeyPair, kp.Modulus)
	}
	if kp.PublicExponent <= 0 || kp.PrivateExponent <= 0 {
		return fmt.Errorf("%w: exponents must be positive", ErrInvalidKeyPair)
	}
	return nil
}

// Public returns the disclosable half of the key pair.
func (kp KeyPair) Public() PublicKey {
	return PublicKey{Modulus: kp.Modulus, Exponent: kp.PublicExponent}
}

// Validate checks that the public key can be used to encrypt or verify.
func (pk PublicKey) Validate() error {
	if pk.Modulus <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidModulus, pk.Modulus)
	}
	if pk.Exponent <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidExponent, pk.Exponent)
	}
	return nil
}
