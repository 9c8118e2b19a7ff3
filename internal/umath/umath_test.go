package umath

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMulDivFloor(t *testing.T) {
	got, err := MulDivFloor(1000, 150, 10_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(15), got)

	// Truncates toward zero.
	got, err = MulDivFloor(999, 150, 10_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(14), got)

	// Intermediate product exceeds 64 bits but the quotient fits.
	got, err = MulDivFloor(math.MaxUint64, 5000, 10_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64/2), got)
}

func TestMulDivCeil(t *testing.T) {
	got, err := MulDivCeil(999, 150, 10_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(15), got)

	// Exact division does not round up.
	got, err = MulDivCeil(1000, 150, 10_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(15), got)
}

func TestMulDivOverflow(t *testing.T) {
	_, err := MulDivFloor(math.MaxUint64, math.MaxUint64, 2)
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = MulDivCeil(math.MaxUint64, 2, 1)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestMulDivZeroDenominator(t *testing.T) {
	_, err := MulDivFloor(1, 1, 0)
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = MulDivCeil(1, 1, 0)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestCeilDiv128(t *testing.T) {
	n := Mul128(30_000_000_000, 1_073_000_000_000_000)

	// Exact division.
	got, err := CeilDiv128(n, 1_073_000_000_000_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(30_000_000_000), got)

	// Any remainder rounds the quotient up.
	got, err = CeilDiv128(Mul128(10, 10), 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(34), got)

	_, err = CeilDiv128(n, 0)
	assert.ErrorIs(t, err, ErrOverflow)
}
