package numtheory

import (
	"math/big"
	"testing"
)

func TestFactors(t *testing.T) {
	got := Factors(20)
	want := []int{1, 2, 4, 5, 10, 20}
	if len(got) != len(want) {
		t.Fatalf("Factors(20) = %v", got)
	}
	for _, d := range want {
		if _, ok := got[d]; !ok {
			t.Fatalf("Factors(20) missing %d", d)
		}
	}

	sq := Factors(36)
	if _, ok := sq[6]; !ok || len(sq) != 9 {
		t.Fatalf("Factors(36) = %v", sq)
	}

	if z := Factors(0); len(z) != 1 {
		t.Fatalf("Factors(0) = %v", z)
	}
	if p := Factors(13); len(p) != 2 {
		t.Fatalf("Factors(13) = %v", p)
	}
}

func TestIsCoprimeMatchesGCD(t *testing.T) {
	for a := 1; a <= 150; a++ {
		for b := 1; b <= 150; b++ {
			want := GCD(a, b) == 1
			if got := IsCoprime(a, b); got != want {
				t.Fatalf("IsCoprime(%d, %d) = %v, gcd says %v", a, b, got, want)
			}
		}
	}
}

func TestGCD(t *testing.T) {
	cases := [][3]int{{12, 18, 6}, {17, 5, 1}, {0, 9, 9}, {-8, 12, 4}, {7, 0, 7}}
	for _, c := range cases {
		if got := GCD(c[0], c[1]); got != c[2] {
			t.Fatalf("GCD(%d, %d) = %d, want %d", c[0], c[1], got, c[2])
		}
	}
}

func TestSmallestCoprime(t *testing.T) {
	cases := map[int]int{20: 3, 24: 5, 9: 2, 30: 7, 60: 7}
	for n, want := range cases {
		got, err := SmallestCoprime(n)
		if err != nil {
			t.Fatalf("SmallestCoprime(%d): %v", n, err)
		}
		if got != want {
			t.Fatalf("SmallestCoprime(%d) = %d, want %d", n, got, want)
		}
	}
	for _, n := range []int{0, 1, 2} {
		if _, err := SmallestCoprime(n); err != ErrNoCoprime {
			t.Fatalf("SmallestCoprime(%d): expected ErrNoCoprime, got %v", n, err)
		}
	}
}

func TestModInverse(t *testing.T) {
	got, err := ModInverse(3, 20)
	if err != nil {
		t.Fatalf("ModInverse: %v", err)
	}
	if got != 7 {
		t.Fatalf("ModInverse(3, 20) = %d, want 7", got)
	}

	for mod := 2; mod < 120; mod++ {
		for a := 1; a < mod; a++ {
			inv, err := ModInverse(a, mod)
			if GCD(a, mod) != 1 {
				if err != ErrNoInverse {
					t.Fatalf("ModInverse(%d, %d): expected ErrNoInverse, got %v", a, mod, err)
				}
				continue
			}
			if err != nil {
				t.Fatalf("ModInverse(%d, %d): %v", a, mod, err)
			}
			if a*inv%mod != 1 {
				t.Fatalf("ModInverse(%d, %d) = %d is not an inverse", a, mod, inv)
			}
		}
	}

	if _, err := ModInverse(4, 1); err != ErrNoInverse {
		t.Fatalf("expected ErrNoInverse for mod 1, got %v", err)
	}
}

func TestModExp(t *testing.T) {
	cases := []struct{ base, exp, mod, want int }{
		{17, 7, 13, 4},
		{3, 7, 13, 3},
		{18, 7, 33, 6},
		{4, 7, 33, 16},
		{2, 7, 33, 29},
		{5, 0, 23, 1},
		{5, 0, 1, 0},
		{0, 0, 13, 1},
		{0, 5, 13, 0},
		{-2, 3, 7, 6},
	}
	for _, c := range cases {
		if got := ModExp(c.base, c.exp, c.mod); got != c.want {
			t.Fatalf("ModExp(%d, %d, %d) = %d, want %d", c.base, c.exp, c.mod, got, c.want)
		}
	}
}

func TestModExpLargeOperands(t *testing.T) {
	// Products here overflow 64 bits; compare against math/big.
	bases := []int{2, 80, 123456789, 1<<40 + 7}
	mods := []int{1<<61 - 1, 4294967311, 999999999989}
	for _, b := range bases {
		for _, m := range mods {
			for _, e := range []int{1, 65537, 1<<31 - 1} {
				want := new(big.Int).Exp(big.NewInt(int64(b)), big.NewInt(int64(e)), big.NewInt(int64(m)))
				if got := ModExp(b, e, m); int64(got) != want.Int64() {
					t.Fatalf("ModExp(%d, %d, %d) = %d, want %s", b, e, m, got, want)
				}
			}
		}
	}
}

func TestModExpPanicsOnBadModulus(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	ModExp(2, 3, 0)
}

func BenchmarkModExp(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = ModExp(80, 1<<20+1, 999999999989)
	}
}
