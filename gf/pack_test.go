package gf

import (
	"math/rand"
	"testing"
)

func TestPackedLen(t *testing.T) {
	cases := []struct {
		n    int
		q    uint8
		want int
	}{
		{16, 8, 16},
		{16, 1, 2},
		{16, 3, 6},
		{32, 7, 28},
	}
	for _, c := range cases {
		if got := PackedLen(c.n, c.q); got != c.want {
			t.Errorf("PackedLen(%d,%d) = %d, want %d", c.n, c.q, got, c.want)
		}
	}
}

func TestGetSetElementRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for _, q := range []uint8{1, 2, 3, 4, 5, 6, 7, 8} {
		n := 37
		buf := make([]byte, PackedLen(n, q))
		want := make([]byte, n)
		for i := 0; i < n; i++ {
			v := byte(rng.Intn(1 << q))
			want[i] = v
			SetElement(buf, i, q, v)
		}
		for i := 0; i < n; i++ {
			if got := GetElement(buf, i, q); got != want[i] {
				t.Fatalf("q=%d i=%d: got %d want %d", q, i, got, want[i])
			}
		}
	}
}

func TestGetElementOutOfRangePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic reading out of range element")
		}
	}()
	buf := make([]byte, 1)
	GetElement(buf, 100, 8)
}

func TestRandCoeffRange(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, q := range []uint8{1, 3, 8} {
		for i := 0; i < 1000; i++ {
			v := RandCoeff(rng, q)
			if int(v) >= 1<<q {
				t.Fatalf("q=%d: coefficient %d out of range", q, v)
			}
		}
	}
}

func TestRandNonZeroCoeffNeverZero(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	for _, q := range []uint8{1, 2, 8} {
		for i := 0; i < 1000; i++ {
			if RandNonZeroCoeff(rng, q) == 0 {
				t.Fatalf("q=%d: RandNonZeroCoeff returned 0", q)
			}
		}
	}
}
