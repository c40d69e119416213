package core

import (
	"CoverLedger/internal/event"
	"CoverLedger/internal/state"

	"github.com/google/uuid"
)

// Typed entry points for in-process callers. Each wraps ProcessEvent with a
// fresh request id; transports that carry their own id build the event and
// call ProcessEvent directly.

// PolicyQuote is the result of CreatePolicy.
type PolicyQuote struct {
	PolicyID        uint64
	PremiumRequired int64
}

// CreatePolicy appends an inactive policy owned by caller.
func (c *DeterministicCore) CreatePolicy(
	caller state.Principal,
	instrumentID, brand string,
	coverageAmount, startDate, durationYears int64,
) (PolicyQuote, error) {
	out, err := c.ProcessEvent(&event.CreatePolicy{
		RequestID:      uuid.New(),
		Principal:      caller,
		InstrumentID:   instrumentID,
		Brand:          brand,
		CoverageAmount: coverageAmount,
		StartDate:      startDate,
		DurationYears:  durationYears,
	})
	if err != nil {
		return PolicyQuote{}, err
	}
	return PolicyQuote{PolicyID: out.PolicyID, PremiumRequired: out.PremiumRequired}, nil
}

// PayPremium pays a policy's premium and activates it.
func (c *DeterministicCore) PayPremium(caller state.Principal, policyID uint64, amount int64) error {
	_, err := c.ProcessEvent(&event.PayPremium{
		RequestID: uuid.New(),
		Principal: caller,
		PolicyID:  policyID,
		Amount:    amount,
	})
	return err
}

// FileClaim files a claim and returns its id.
func (c *DeterministicCore) FileClaim(
	caller state.Principal,
	policyID uint64,
	claimAmount int64,
	reason string,
	evidenceHash state.EvidenceHash,
) (uint64, error) {
	out, err := c.ProcessEvent(&event.FileClaim{
		RequestID:    uuid.New(),
		Principal:    caller,
		PolicyID:     policyID,
		ClaimAmount:  claimAmount,
		Reason:       reason,
		EvidenceHash: evidenceHash,
	})
	if err != nil {
		return 0, err
	}
	return out.ClaimID, nil
}

// AdjudicateClaim approves or rejects a claim and returns the payout.
func (c *DeterministicCore) AdjudicateClaim(caller state.Principal, claimID uint64, approve bool, statusMessage string) (int64, error) {
	out, err := c.ProcessEvent(&event.AdjudicateClaim{
		RequestID:     uuid.New(),
		Principal:     caller,
		ClaimID:       claimID,
		Approve:       approve,
		StatusMessage: statusMessage,
	})
	if err != nil {
		return 0, err
	}
	return out.Payout, nil
}

// CreateWarranty issues a warranty to owner (the admin when empty).
func (c *DeterministicCore) CreateWarranty(
	caller, owner state.Principal,
	instrumentID, brand string,
	guaranteePercentage, startDate, durationYears int64,
) (uint64, error) {
	out, err := c.ProcessEvent(&event.CreateWarranty{
		RequestID:           uuid.New(),
		Principal:           caller,
		Owner:               owner,
		InstrumentID:        instrumentID,
		Brand:               brand,
		GuaranteePercentage: guaranteePercentage,
		StartDate:           startDate,
		DurationYears:       durationYears,
	})
	if err != nil {
		return 0, err
	}
	return out.WarrantyID, nil
}

// SetCurrentYear moves the ledger clock.
func (c *DeterministicCore) SetCurrentYear(caller state.Principal, year int64) error {
	_, err := c.ProcessEvent(&event.SetCurrentYear{
		RequestID: uuid.New(),
		Principal: caller,
		Year:      year,
	})
	return err
}

// TransferAdmin hands the admin role to newAdmin.
func (c *DeterministicCore) TransferAdmin(caller, newAdmin state.Principal) error {
	_, err := c.ProcessEvent(&event.TransferAdmin{
		RequestID: uuid.New(),
		Principal: caller,
		NewAdmin:  newAdmin,
	})
	return err
}
