package math

import (
	gomath "math"
	"math/big"
)

const (
	// MinimumPremium is the policy-wide floor, independent of coverage scale.
	MinimumPremium int64 = 50

	// Premium rate: 2 per 100 of coverage per year.
	PremiumRateNumerator   int64 = 2
	PremiumRateDenominator int64 = 100

	// PercentDenominator scales guarantee percentages.
	PercentDenominator int64 = 100
)

// ComputePremium returns floor(coverage × years × 2 / 100).
//
// The product is evaluated in 128-bit so it cannot wrap. A result above
// MaxInt64 returns ErrOverflow. A result below MinInt64 is clamped there,
// since it is under MinimumPremium either way.
func ComputePremium(coverage, years int64) (int64, error) {
	product := MultiplyInt128(coverage, years)
	defer putInt128(product)
	product.Mul(product, big.NewInt(PremiumRateNumerator))

	premium, err := DivideInt128Checked(product, PremiumRateDenominator, RoundDown)
	if err != nil {
		if product.Sign() < 0 {
			return gomath.MinInt64, nil
		}
		return 0, err
	}
	return premium, nil
}

// MeetsMinimumPremium reports whether premium clears the policy floor.
func MeetsMinimumPremium(premium int64) bool {
	return premium >= MinimumPremium
}

// ComputeGuaranteedValue returns floor(initialValue × percentage / 100).
// percentage is expected in 0..100, so the result always fits in int64.
func ComputeGuaranteedValue(initialValue, percentage int64) int64 {
	product := MultiplyInt128(initialValue, percentage)
	defer putInt128(product)
	return DivideInt128(product, PercentDenominator, RoundDown)
}
