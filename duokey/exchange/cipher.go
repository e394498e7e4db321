package exchange

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

var ErrInvalidCodePoint = errors.New("exchange: transformed character is not a valid code point")

// EncryptMessage XORs the code point of every character with the secret
// key. Text that is not valid UTF-8 is refused with ErrInvalidCodePoint.
func (s *Sender) EncryptMessage(plaintext string) (string, error) {
	return s.transform(plaintext)
}

// DecryptMessage is EncryptMessage: XOR is its own inverse.
func (s *Sender) DecryptMessage(ciphertext string) (string, error) {
	return s.transform(ciphertext)
}

func (s *Sender) transform(text string) (string, error) {
	key, err := s.secret()
	if err != nil {
		return "", err
	}
	if !utf8.ValidString(text) {
		return "", fmt.Errorf("%w: text is not valid UTF-8", ErrInvalidCodePoint)
	}
	out := make([]rune, 0, len(text))
	for _, r := range text {
		x := r ^ rune(key)
		if !utf8.ValidRune(x) {
			return "", fmt.Errorf("%w: %U", ErrInvalidCodePoint, r)
		}
		out = append(out, x)
	}
	return string(out), nil
}
