package ledger

import (
	"fmt"
)

// InvariantValidator checks ledger invariants
type InvariantValidator struct {
	tracker *BalanceTracker
}

func NewInvariantValidator(tracker *BalanceTracker) *InvariantValidator {
	return &InvariantValidator{
		tracker: tracker,
	}
}

// ValidateBatchBalance verifies every entry in the batch is a positive,
// balanced transfer.
func (v *InvariantValidator) ValidateBatchBalance(batch *Batch) error {
	return batch.Validate()
}

// ValidateGlobalBalance verifies the ledger is zero-sum.
func (v *InvariantValidator) ValidateGlobalBalance() error {
	if total := v.tracker.ComputeGlobalBalance(); total != 0 {
		return fmt.Errorf("global balance is non-zero: %d", total)
	}
	return nil
}

// ValidateFundNonNegative verifies the insurance fund never goes negative.
func (v *InvariantValidator) ValidateFundNonNegative() error {
	return v.tracker.ValidateNonNegative(InsuranceFundAccount())
}

// ValidateAll runs every post-apply check.
func (v *InvariantValidator) ValidateAll() error {
	if err := v.ValidateGlobalBalance(); err != nil {
		return err
	}
	return v.ValidateFundNonNegative()
}
