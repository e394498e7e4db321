package identity

import (
	"errors"
	"fmt"

	"github.com/TheusHen/duokey/duokey/alphabet"
	"github.com/TheusHen/duokey/duokey/numtheory"
)

var (
	ErrInvalidModulus  = errors.New("identity: modulus must be positive")
	ErrInvalidExponent = errors.New("identity: exponent must be positive")
)

// EncryptMessage raises the alphabet index of every symbol of plaintext to
// key modulo modulus and maps the result back onto the alphabet.
func EncryptMessage(plaintext string, key, modulus int) (string, error) {
	return transform(plaintext, key, modulus)
}

// DecryptMessage is EncryptMessage with the complementary exponent.
func DecryptMessage(ciphertext string, key, modulus int) (string, error) {
	return transform(ciphertext, key, modulus)
}

// ConfirmAuthenticity reports whether signature, decrypted with the
// claimed signer's public exponent and modulus, equals text.
func ConfirmAuthenticity(text, signature string, key, modulus int) bool {
	decrypted, err := DecryptMessage(signature, key, modulus)
	if err != nil {
		return false
	}
	return decrypted == text
}

func transform(text string, key, modulus int) (string, error) {
	if modulus <= 0 {
		return "", fmt.Errorf("%w: %d", ErrInvalidModulus, modulus)
	}
	if key <= 0 {
		return "", fmt.Errorf("%w: %d", ErrInvalidExponent, key)
	}
	indices, err := alphabet.Indices(text)
	if err != nil {
		return "", err
	}
	for i, x := range indices {
		indices[i] = numtheory.ModExp(x, key, modulus)
	}
	return alphabet.FromIndices(indices), nil
}
