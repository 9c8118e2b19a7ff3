// Package umath provides overflow-safe unsigned integer math for reserve and
// fee arithmetic. All intermediate products are computed in 128 bits so that
// uint64 reserves and basis-point multipliers can never silently wrap.
package umath

import (
	"errors"

	"lukechampine.com/uint128"
)

// ErrOverflow is returned when a result does not fit in 64 bits.
var ErrOverflow = errors.New("math overflow")

// MulDivFloor computes floor(a * b / d) with a 128-bit intermediate product.
func MulDivFloor(a, b, d uint64) (uint64, error) {
	if d == 0 {
		return 0, ErrOverflow
	}
	q := uint128.From64(a).Mul64(b).Div64(d)
	if q.Hi != 0 {
		return 0, ErrOverflow
	}
	return q.Lo, nil
}

// MulDivCeil computes ceil(a * b / d) with a 128-bit intermediate product.
func MulDivCeil(a, b, d uint64) (uint64, error) {
	if d == 0 {
		return 0, ErrOverflow
	}
	q, r := uint128.From64(a).Mul64(b).QuoRem64(d)
	if r > 0 {
		q = q.Add64(1)
	}
	if q.Hi != 0 {
		return 0, ErrOverflow
	}
	return q.Lo, nil
}

// Mul128 returns the full 128-bit product a * b.
func Mul128(a, b uint64) uint128.Uint128 {
	return uint128.From64(a).Mul64(b)
}

// CeilDiv128 divides a 128-bit numerator by a uint64 divisor, rounding up.
// The quotient must fit in 64 bits.
func CeilDiv128(n uint128.Uint128, d uint64) (uint64, error) {
	if d == 0 {
		return 0, ErrOverflow
	}
	q, r := n.QuoRem64(d)
	if r > 0 {
		q = q.Add64(1)
	}
	if q.Hi != 0 {
		return 0, ErrOverflow
	}
	return q.Lo, nil
}
