package umath

import "math/bits"

// Checked unsigned 64-bit arithmetic for money and share amounts.
// Every operation either returns an exact result or reports failure;
// nothing wraps, nothing saturates silently.

// Add returns a + b, reporting overflow.
func Add(a, b uint64) (uint64, bool) {
	sum, carry := bits.Add64(a, b, 0)
	return sum, carry == 0
}

// Sub returns a - b, reporting underflow.
func Sub(a, b uint64) (uint64, bool) {
	diff, borrow := bits.Sub64(a, b, 0)
	return diff, borrow == 0
}

// Mul returns a * b, reporting overflow.
func Mul(a, b uint64) (uint64, bool) {
	hi, lo := bits.Mul64(a, b)
	return lo, hi == 0
}

// Div returns a / b, reporting a zero divisor.
func Div(a, b uint64) (uint64, bool) {
	if b == 0 {
		return 0, false
	}
	return a / b, true
}

// MulDiv returns floor(a * b / den) using a 128-bit intermediate, so the
// product may exceed 64 bits as long as the quotient fits. Fails when den
// is zero or the quotient overflows.
func MulDiv(a, b, den uint64) (uint64, bool) {
	if den == 0 {
		return 0, false
	}
	hi, lo := bits.Mul64(a, b)
	if hi >= den {
		// Quotient would not fit in 64 bits.
		return 0, false
	}
	q, _ := bits.Div64(hi, lo, den)
	return q, true
}

// SumSlice returns the sum of all values, reporting overflow.
func SumSlice(vals []uint64) (uint64, bool) {
	var total uint64
	for _, v := range vals {
		var ok bool
		total, ok = Add(total, v)
		if !ok {
			return 0, false
		}
	}
	return total, true
}
