// Package numtheory provides the small integer helpers the duokey engines
// are built on: divisor enumeration, coprimality, modular inverses and
// modular exponentiation.
//
// The searches are linear scans. They are meant for the toy key sizes used
// by duokey, not for real RSA moduli.
package numtheory

import (
	"errors"
	"math/bits"
)

var (
	ErrNoCoprime = errors.New("numtheory: no coprime below n")
	ErrNoInverse = errors.New("numtheory: no modular inverse exists")
)

// Factors returns every divisor of n, including 1 and n itself.
//
// Candidates are scanned from 1 up to floor(sqrt(n)); 0 is never a
// candidate. Factors(0) is {0} and a negative n yields {n}.
func Factors(n int) map[int]struct{} {
	out := map[int]struct{}{}
	for i := 1; i*i <= n; i++ {
		if n%i == 0 {
			out[i] = struct{}{}
			out[n/i] = struct{}{}
		}
	}
	out[n] = struct{}{}
	return out
}

// IsCoprime reports whether a and b share no divisor other than 1.
// It compares the two divisor sets rather than computing a gcd; for
// positive inputs the answer is the same as GCD(a, b) == 1.
func IsCoprime(a, b int) bool {
	fa := Factors(a)
	fb := Factors(b)
	delete(fa, 1)
	delete(fb, 1)

	smaller, larger := fa, fb
	if len(fb) < len(fa) {
		smaller, larger = fb, fa
	}
	for d := range smaller {
		if _, ok := larger[d]; ok {
			return false
		}
	}
	return true
}

// GCD returns the greatest common divisor of |a| and |b|.
func GCD(a, b int) int {
	if a < 0 {
		a = -a
	}
	if b < 0 {
		b = -b
	}
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// SmallestCoprime returns the smallest integer in [2, n) that is coprime
// with n.
func SmallestCoprime(n int) (int, error) {
	for i := 2; i < n; i++ {
		if IsCoprime(i, n) {
			return i, nil
		}
	}
	return 0, ErrNoCoprime
}

// ModInverse returns the smallest i in [1, mod) with a*i ≡ 1 (mod mod).
func ModInverse(a, mod int) (int, error) {
	if mod <= 1 {
		return 0, ErrNoInverse
	}
	m := uint64(mod)
	r := uint64(reduce(a, mod))
	for i := uint64(1); i < m; i++ {
		if mulMod(r, i, m) == 1 {
			return int(i), nil
		}
	}
	return 0, ErrNoInverse
}

// ModExp computes base^exp mod mod by square-and-multiply. Intermediate
// products are 128 bits wide, so the result is exact for every positive
// int modulus. It panics if mod <= 0 or exp < 0.
func ModExp(base, exp, mod int) int {
	if mod <= 0 {
		panic("numtheory: modulus must be positive")
	}
	if exp < 0 {
		panic("numtheory: negative exponent")
	}
	m := uint64(mod)
	b := uint64(reduce(base, mod))
	result := 1 % m
	for e := uint64(exp); e > 0; e >>= 1 {
		if e&1 == 1 {
			result = mulMod(result, b, m)
		}
		b = mulMod(b, b, m)
	}
	return int(result)
}

func reduce(a, mod int) int {
	a %= mod
	if a < 0 {
		a += mod
	}
	return a
}

func mulMod(a, b, m uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	return bits.Rem64(hi, lo, m)
}
