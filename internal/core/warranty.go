package core

import (
	"context"
	"fmt"

	"CoverLedger/internal/event"
	fpmath "CoverLedger/internal/math"
	"CoverLedger/internal/state"
)

// GuaranteeResult is the outcome of a point-in-time warranty evaluation.
type GuaranteeResult struct {
	HasGuarantee    bool  `json:"has_guarantee"`
	GuaranteedValue int64 `json:"guaranteed_value"`
	Shortfall       int64 `json:"shortfall"`
}

// handleCreateWarranty issues an active warranty. Admin only.
func (c *DeterministicCore) handleCreateWarranty(evt *event.CreateWarranty) (*applied, error) {
	if err := c.requireAdmin(evt.Principal); err != nil {
		return nil, err
	}
	if err := state.ValidateWarrantyTerms(evt.InstrumentID, evt.Brand, evt.GuaranteePercentage); err != nil {
		return nil, err
	}
	if evt.StartDate < c.currentYear {
		return nil, fmt.Errorf("%w: start %d is before current year %d", state.ErrInvalidDate, evt.StartDate, c.currentYear)
	}
	if evt.DurationYears <= 0 || evt.StartDate+evt.DurationYears <= evt.StartDate {
		return nil, fmt.Errorf("%w: duration %d years from %d", state.ErrInvalidDate, evt.DurationYears, evt.StartDate)
	}

	owner := evt.Owner
	if owner == "" {
		owner = c.admin
	}

	warranty := state.Warranty{
		InstrumentID:        evt.InstrumentID,
		Brand:               evt.Brand,
		GuaranteePercentage: evt.GuaranteePercentage,
		StartDate:           evt.StartDate,
		DurationYears:       evt.DurationYears,
		Owner:               owner,
		Active:              true,
	}
	id, err := c.store.AppendWarranty(warranty)
	if err != nil {
		return nil, err
	}
	warranty.ID = id

	return &applied{
		batch:   c.journalGen.EmptyBatch(evt.IdempotencyKey(), c.sequence),
		outcome: event.Outcome{WarrantyID: id},
		delta:   RecordDelta{Warranty: &warranty},
	}, nil
}

// CheckWarrantyGuarantee evaluates a warranty against a current valuation.
// Read-only. The ledger lock is released before the oracle is consulted.
func (c *DeterministicCore) CheckWarrantyGuarantee(ctx context.Context, warrantyID uint64, currentValue int64) (GuaranteeResult, error) {
	if currentValue < 0 {
		return GuaranteeResult{}, fmt.Errorf("%w: negative current value %d", state.ErrInvalidWarranty, currentValue)
	}

	c.mu.RLock()
	warranty, ok := c.store.GetWarranty(warrantyID)
	year := c.currentYear
	c.mu.RUnlock()

	if !ok {
		return GuaranteeResult{}, fmt.Errorf("%w: warranty %d not found", state.ErrInvalidWarranty, warrantyID)
	}
	if warranty.ExpiredAt(year) {
		return GuaranteeResult{}, fmt.Errorf("%w: warranty %d expired %d, current year %d",
			state.ErrWarrantyExpired, warranty.ID, warranty.Expiry(), year)
	}

	initialValue, err := c.oracle.InitialValue(ctx, warranty.InstrumentID, warranty.Brand)
	if err != nil {
		return GuaranteeResult{}, fmt.Errorf("initial value for %s/%s: %w", warranty.Brand, warranty.InstrumentID, err)
	}

	guaranteed := fpmath.ComputeGuaranteedValue(initialValue, warranty.GuaranteePercentage)
	if currentValue < guaranteed {
		return GuaranteeResult{
			HasGuarantee:    true,
			GuaranteedValue: guaranteed,
			Shortfall:       guaranteed - currentValue,
		}, nil
	}
	return GuaranteeResult{GuaranteedValue: guaranteed}, nil
}
