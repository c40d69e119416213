package core

import (
	"fmt"

	"CoverLedger/internal/event"
	fpmath "CoverLedger/internal/math"
	"CoverLedger/internal/state"
)

// handleCreatePolicy appends an inactive policy and quotes its premium.
func (c *DeterministicCore) handleCreatePolicy(evt *event.CreatePolicy) (*applied, error) {
	if err := state.ValidatePolicyText(evt.InstrumentID, evt.Brand); err != nil {
		return nil, err
	}

	if evt.StartDate < c.currentYear {
		return nil, fmt.Errorf("%w: start %d is before current year %d", state.ErrInvalidDate, evt.StartDate, c.currentYear)
	}
	// Signed addition wraps, so an overflowing term lands at or below the start.
	endDate := evt.StartDate + evt.DurationYears
	if endDate <= evt.StartDate {
		return nil, fmt.Errorf("%w: duration %d years from %d", state.ErrInvalidDate, evt.DurationYears, evt.StartDate)
	}

	premium, err := fpmath.ComputePremium(evt.CoverageAmount, evt.DurationYears)
	if err != nil {
		return nil, fmt.Errorf("%w: premium for coverage %d over %d years: %v",
			state.ErrInvalidPolicy, evt.CoverageAmount, evt.DurationYears, err)
	}
	if !fpmath.MeetsMinimumPremium(premium) {
		return nil, fmt.Errorf("%w: premium %d below %d", state.ErrMinimumPremiumNotMet, premium, fpmath.MinimumPremium)
	}

	policy := state.Policy{
		InstrumentID:   evt.InstrumentID,
		Brand:          evt.Brand,
		CoverageAmount: evt.CoverageAmount,
		StartDate:      evt.StartDate,
		EndDate:        endDate,
		Owner:          evt.Principal,
	}
	id, err := c.store.AppendPolicy(policy)
	if err != nil {
		return nil, err
	}
	policy.ID = id

	return &applied{
		batch: c.journalGen.EmptyBatch(evt.IdempotencyKey(), c.sequence),
		outcome: event.Outcome{
			PolicyID:        id,
			PremiumRequired: premium,
		},
		delta: RecordDelta{Policy: &policy},
	}, nil
}

// handlePayPremium activates a policy and deposits the payment in the fund.
// The required premium is recomputed from stored terms. Overpayment is kept
// by the fund and re-payment adds to it again.
func (c *DeterministicCore) handlePayPremium(evt *event.PayPremium) (*applied, error) {
	policy, ok := c.store.GetPolicy(evt.PolicyID)
	if !ok {
		return nil, fmt.Errorf("%w: policy %d not found", state.ErrInvalidPolicy, evt.PolicyID)
	}
	if policy.Owner != evt.Principal {
		return nil, fmt.Errorf("%w: policy %d is not owned by %q", state.ErrUnauthorized, policy.ID, evt.Principal)
	}

	required, err := fpmath.ComputePremium(policy.CoverageAmount, policy.DurationYears())
	if err != nil {
		return nil, fmt.Errorf("%w: policy %d premium: %v", state.ErrInvalidPolicy, policy.ID, err)
	}
	if evt.Amount < required {
		return nil, fmt.Errorf("%w: paid %d, required %d", state.ErrInsufficientPremium, evt.Amount, required)
	}
	if !c.fund.CanAcceptDeposit(c.balanceTracker.FundBalance(), evt.Amount) {
		return nil, fmt.Errorf("%w: payment %d would overflow the fund", state.ErrInvalidPolicy, evt.Amount)
	}

	batch, err := c.journalGen.GeneratePremiumCollect(evt.IdempotencyKey(), c.sequence, policy.ID, evt.Amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", state.ErrInsufficientPremium, err)
	}

	policy.PremiumPaid = evt.Amount
	policy.Active = true
	if err := c.store.PutPolicy(policy); err != nil {
		return nil, err
	}

	if c.metrics != nil {
		c.metrics.PremiumsCollected.Add(float64(evt.Amount))
	}

	return &applied{
		batch:   batch,
		outcome: event.Outcome{PolicyID: policy.ID},
		delta:   RecordDelta{Policy: &policy},
	}, nil
}
