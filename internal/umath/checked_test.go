package umath_test

import (
	"math"
	"testing"

	"BeliefMarket/internal/umath"
)

func TestAdd_Overflow(t *testing.T) {
	if _, ok := umath.Add(math.MaxUint64, 1); ok {
		t.Error("MaxUint64 + 1 should overflow")
	}
	sum, ok := umath.Add(math.MaxUint64-1, 1)
	if !ok || sum != math.MaxUint64 {
		t.Errorf("got (%d, %v), want (MaxUint64, true)", sum, ok)
	}
}

func TestSub_Underflow(t *testing.T) {
	if _, ok := umath.Sub(0, 1); ok {
		t.Error("0 - 1 should underflow")
	}
	diff, ok := umath.Sub(10, 3)
	if !ok || diff != 7 {
		t.Errorf("got (%d, %v), want (7, true)", diff, ok)
	}
}

func TestMul_Overflow(t *testing.T) {
	if _, ok := umath.Mul(math.MaxUint64, 2); ok {
		t.Error("MaxUint64 * 2 should overflow")
	}
	p, ok := umath.Mul(1<<32, 1<<31)
	if !ok || p != 1<<63 {
		t.Errorf("got (%d, %v), want (1<<63, true)", p, ok)
	}
}

func TestDiv_Zero(t *testing.T) {
	if _, ok := umath.Div(1, 0); ok {
		t.Error("division by zero should fail")
	}
}

func TestMulDiv(t *testing.T) {
	tests := []struct {
		a, b, den uint64
		want      uint64
		ok        bool
	}{
		{100_000_000, 250, 10_000, 2_500_000, true},             // fee computation
		{math.MaxUint64, math.MaxUint64, math.MaxUint64, math.MaxUint64, true}, // 128-bit intermediate
		{math.MaxUint64, 2, 1, 0, false},                        // quotient overflows
		{1, 1, 0, 0, false},                                     // zero divisor
		{7, 3, 2, 10, true},                                     // floor(21/2)
	}
	for _, tc := range tests {
		got, ok := umath.MulDiv(tc.a, tc.b, tc.den)
		if ok != tc.ok || (ok && got != tc.want) {
			t.Errorf("MulDiv(%d, %d, %d) = (%d, %v), want (%d, %v)",
				tc.a, tc.b, tc.den, got, ok, tc.want, tc.ok)
		}
	}
}

func TestSumSlice(t *testing.T) {
	total, ok := umath.SumSlice([]uint64{1, 2, 3})
	if !ok || total != 6 {
		t.Errorf("got (%d, %v), want (6, true)", total, ok)
	}
	if _, ok := umath.SumSlice([]uint64{math.MaxUint64, 1}); ok {
		t.Error("overflowing sum should fail")
	}
}
