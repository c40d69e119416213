package math

import (
	"errors"
	"math/big"
	"sync"
)

// ErrOverflow is returned when a result does not fit in int64.
var ErrOverflow = errors.New("int64 overflow")

// Int128 is a pooled big.Int for intermediate calculations
var int128Pool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getInt128() *big.Int {
	return int128Pool.Get().(*big.Int)
}

func putInt128(v *big.Int) {
	v.SetInt64(0) // Clear before returning to pool
	int128Pool.Put(v)
}

// MultiplyInt128 performs a * b using int128 to prevent overflow.
// The caller releases the result with putInt128.
func MultiplyInt128(a, b int64) *big.Int {
	result := getInt128()
	result.Mul(big.NewInt(a), big.NewInt(b))
	return result
}

type RoundingMode int

const (
	RoundHalfEven RoundingMode = iota // Banker's rounding
	RoundDown                         // Floor (toward negative infinity)
	RoundUp                           // Ceiling
)

// DivideInt128 performs numerator / denominator with rounding.
// denominator must be positive. The quotient is not range-checked; use
// DivideInt128Checked when it may exceed int64.
func DivideInt128(numerator *big.Int, denominator int64, roundingMode RoundingMode) int64 {
	q := divide(numerator, denominator, roundingMode)
	result := q.Int64()
	putInt128(q)
	return result
}

// DivideInt128Checked is DivideInt128 returning ErrOverflow when the
// quotient leaves the int64 range.
func DivideInt128Checked(numerator *big.Int, denominator int64, roundingMode RoundingMode) (int64, error) {
	q := divide(numerator, denominator, roundingMode)
	defer putInt128(q)
	if !q.IsInt64() {
		return 0, ErrOverflow
	}
	return q.Int64(), nil
}

// divide returns a pooled quotient. big.Int DivMod is Euclidean, so for a
// positive denominator the raw quotient is already the floor.
func divide(numerator *big.Int, denominator int64, roundingMode RoundingMode) *big.Int {
	denom := big.NewInt(denominator)
	quotient := getInt128()
	remainder := getInt128()
	defer putInt128(remainder)

	quotient.DivMod(numerator, denom, remainder)

	switch roundingMode {
	case RoundHalfEven:
		half := big.NewInt(denominator / 2)
		cmp := remainder.Cmp(half)
		if cmp > 0 || (cmp == 0 && denominator%2 == 0 && quotient.Bit(0) == 1) {
			quotient.Add(quotient, big.NewInt(1))
		}
	case RoundUp:
		if remainder.Sign() != 0 {
			quotient.Add(quotient, big.NewInt(1))
		}
	}

	return quotient
}
