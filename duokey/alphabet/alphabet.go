// Package alphabet maps symbols of the fixed duokey alphabet to integer
// indices and back.
//
// The table order is part of the wire format: two implementations only
// produce the same ciphertext if they agree on it symbol for symbol.
package alphabet

import (
	"errors"
	"fmt"
	"strings"
)

// symbols is the ordered symbol table.
const symbols = "abcdefghijklmnopqrstuvwxyz " +
	"ABCDEFGHIJKLMNOPQRSTUVWXYZ" +
	"1234567890" +
	"`~!@#$%^&*()-_=+[]"

var ErrUnknownSymbol = errors.New("alphabet: unknown symbol")

// Size returns the number of symbols in the table.
func Size() int { return len(symbols) }

// Contains reports whether r is part of the alphabet.
func Contains(r rune) bool {
	return strings.IndexRune(symbols, r) >= 0
}

// SymbolToIndex returns the position of r in the table.
func SymbolToIndex(r rune) (int, error) {
	i := strings.IndexRune(symbols, r)
	if i < 0 {
		return 0, fmt.Errorf("%w: %q", ErrUnknownSymbol, r)
	}
	return i, nil
}

// IndexToSymbol returns the symbol at index i. Indices outside [0, Size())
// wrap around modulo Size(), so every integer maps onto some symbol.
func IndexToSymbol(i int) rune {
	n := len(symbols)
	i %= n
	if i < 0 {
		i += n
	}
	return rune(symbols[i])
}

// Validate returns ErrUnknownSymbol for the first symbol of text that is
// not in the table.
func Validate(text string) error {
	for _, r := range text {
		if !Contains(r) {
			return fmt.Errorf("%w: %q", ErrUnknownSymbol, r)
		}
	}
	return nil
}

// Indices converts text to its index sequence.
func Indices(text string) ([]int, error) {
	out := make([]int, 0, len(text))
	for _, r := range text {
		i, err := SymbolToIndex(r)
		if err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, nil
}

// FromIndices converts an index sequence back to text, wrapping as
// IndexToSymbol does.
func FromIndices(indices []int) string {
	var b strings.Builder
	b.Grow(len(indices))
	for _, i := range indices {
		b.WriteRune(IndexToSymbol(i))
	}
	return b.String()
}
