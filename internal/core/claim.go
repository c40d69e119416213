package core

import (
	"fmt"

	"CoverLedger/internal/event"
	"CoverLedger/internal/state"
)

// handleFileClaim files the one claim a policy may carry.
// Checks run in a fixed order and the first failure wins.
func (c *DeterministicCore) handleFileClaim(evt *event.FileClaim) (*applied, error) {
	policy, ok := c.store.GetPolicy(evt.PolicyID)
	if !ok {
		return nil, fmt.Errorf("%w: policy %d not found", state.ErrInvalidPolicy, evt.PolicyID)
	}
	if policy.Owner != evt.Principal {
		return nil, fmt.Errorf("%w: policy %d is not owned by %q", state.ErrUnauthorized, policy.ID, evt.Principal)
	}
	if !policy.Active {
		return nil, fmt.Errorf("%w: policy %d is not active", state.ErrInvalidPolicy, policy.ID)
	}
	if policy.ExpiredAt(c.currentYear) {
		return nil, fmt.Errorf("%w: policy %d ended %d, current year %d", state.ErrPolicyExpired, policy.ID, policy.EndDate, c.currentYear)
	}
	if evt.ClaimAmount < 0 || evt.ClaimAmount > policy.CoverageAmount {
		return nil, fmt.Errorf("%w: amount %d outside 0..%d", state.ErrInvalidClaim, evt.ClaimAmount, policy.CoverageAmount)
	}
	if err := state.ValidateReason(evt.Reason); err != nil {
		return nil, err
	}
	if existing, claimed := c.store.ClaimForPolicy(policy.ID); claimed {
		return nil, fmt.Errorf("%w: policy %d already has claim %d", state.ErrAlreadyClaimed, policy.ID, existing)
	}

	claim := state.Claim{
		PolicyID:     policy.ID,
		ClaimAmount:  evt.ClaimAmount,
		ClaimDate:    c.currentYear,
		Reason:       evt.Reason,
		Status:       state.ClaimStatusPending,
		EvidenceHash: evt.EvidenceHash,
	}
	id, err := c.store.AppendClaim(claim)
	if err != nil {
		return nil, err
	}
	claim.ID = id

	return &applied{
		batch:   c.journalGen.EmptyBatch(evt.IdempotencyKey(), c.sequence),
		outcome: event.Outcome{PolicyID: policy.ID, ClaimID: id},
		delta:   RecordDelta{Claim: &claim},
	}, nil
}

// handleAdjudicateClaim records the decision and, on approval, pays the
// claim amount out of the fund. The whole operation is atomic: when the fund
// cannot cover the payout the claim keeps its previous decision and status.
func (c *DeterministicCore) handleAdjudicateClaim(evt *event.AdjudicateClaim) (*applied, error) {
	if err := c.requireAdmin(evt.Principal); err != nil {
		return nil, err
	}

	claim, ok := c.store.GetClaim(evt.ClaimID)
	if !ok {
		return nil, fmt.Errorf("%w: claim %d not found", state.ErrInvalidClaim, evt.ClaimID)
	}
	if err := state.ValidateStatus(evt.StatusMessage); err != nil {
		return nil, err
	}

	batch := c.journalGen.EmptyBatch(evt.IdempotencyKey(), c.sequence)
	var payout int64
	if evt.Approve {
		payout = claim.ClaimAmount
		if !c.fund.CanCoverPayout(c.balanceTracker.FundBalance(), payout) {
			return nil, fmt.Errorf("%w: payout %d, fund %d", state.ErrInsufficientFunds, payout, c.balanceTracker.FundBalance())
		}
		if payout > 0 {
			var err error
			batch, err = c.journalGen.GenerateClaimPayout(evt.IdempotencyKey(), c.sequence, claim.ID, payout)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", state.ErrInvalidClaim, err)
			}
		}
	}

	claim.Approved = evt.Approve
	claim.Status = evt.StatusMessage
	if err := c.store.PutClaim(claim); err != nil {
		return nil, err
	}

	if c.metrics != nil && payout > 0 {
		c.metrics.PayoutsApproved.Add(float64(payout))
	}

	return &applied{
		batch:   batch,
		outcome: event.Outcome{PolicyID: claim.PolicyID, ClaimID: claim.ID, Payout: payout},
		delta:   RecordDelta{Claim: &claim},
	}, nil
}
