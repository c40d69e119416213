package state

import "math"

// InsuranceFund holds the decision rules for the shared fund.
// The balance itself lives in the ledger (system:insurance_fund account);
// these helpers only decide whether a movement may happen.
type InsuranceFund struct{}

func NewInsuranceFund() *InsuranceFund {
	return &InsuranceFund{}
}

// CanCoverPayout reports whether the fund can pay out without going negative.
// Payouts are refused, never clamped.
func (f *InsuranceFund) CanCoverPayout(fundBalance int64, payout int64) bool {
	return payout >= 0 && fundBalance >= payout
}

// CanAcceptDeposit reports whether adding amount keeps the balance representable.
func (f *InsuranceFund) CanAcceptDeposit(fundBalance int64, amount int64) bool {
	if amount < 0 {
		return false
	}
	return fundBalance <= math.MaxInt64-amount
}
