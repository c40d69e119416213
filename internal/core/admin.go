package core

import (
	"fmt"

	"CoverLedger/internal/event"
	"CoverLedger/internal/state"
)

// handleSetCurrentYear overwrites the ledger clock. Moving backwards is
// allowed; simulations rely on it.
func (c *DeterministicCore) handleSetCurrentYear(evt *event.SetCurrentYear) (*applied, error) {
	if err := c.requireAdmin(evt.Principal); err != nil {
		return nil, err
	}
	c.currentYear = evt.Year
	return &applied{batch: c.journalGen.EmptyBatch(evt.IdempotencyKey(), c.sequence)}, nil
}

// handleTransferAdmin hands the privileged role to another principal.
func (c *DeterministicCore) handleTransferAdmin(evt *event.TransferAdmin) (*applied, error) {
	if err := c.requireAdmin(evt.Principal); err != nil {
		return nil, err
	}
	if evt.NewAdmin == "" {
		return nil, fmt.Errorf("%w: empty admin principal", state.ErrUnauthorized)
	}
	c.admin = evt.NewAdmin
	return &applied{batch: c.journalGen.EmptyBatch(evt.IdempotencyKey(), c.sequence)}, nil
}

// --- Queries ---

// GetPolicy returns a copy of the policy.
func (c *DeterministicCore) GetPolicy(id uint64) (state.Policy, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.store.GetPolicy(id)
	if !ok {
		return state.Policy{}, fmt.Errorf("%w: policy %d not found", state.ErrInvalidPolicy, id)
	}
	return p, nil
}

// GetClaim returns a copy of the claim.
func (c *DeterministicCore) GetClaim(id uint64) (state.Claim, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cl, ok := c.store.GetClaim(id)
	if !ok {
		return state.Claim{}, fmt.Errorf("%w: claim %d not found", state.ErrInvalidClaim, id)
	}
	return cl, nil
}

// GetWarranty returns a copy of the warranty.
func (c *DeterministicCore) GetWarranty(id uint64) (state.Warranty, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	w, ok := c.store.GetWarranty(id)
	if !ok {
		return state.Warranty{}, fmt.Errorf("%w: warranty %d not found", state.ErrInvalidWarranty, id)
	}
	return w, nil
}

// GetMyPolicies returns the caller's policies in creation order; never nil.
func (c *DeterministicCore) GetMyPolicies(caller state.Principal) []state.Policy {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store.PoliciesByOwner(caller)
}

// GetFundBalance returns the insurance fund balance.
func (c *DeterministicCore) GetFundBalance() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.balanceTracker.FundBalance()
}

// GetCurrentYear returns the ledger clock.
func (c *DeterministicCore) GetCurrentYear() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentYear
}

// GetAdmin returns the privileged principal.
func (c *DeterministicCore) GetAdmin() state.Principal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.admin
}

// Stats is a consistent point-in-time summary of the ledger.
type Stats struct {
	NextSequence int64           `json:"next_sequence"`
	LastSequence int64           `json:"last_sequence"`
	StateHash    [32]byte        `json:"-"`
	CurrentYear  int64           `json:"current_year"`
	Admin        state.Principal `json:"admin"`
	FundBalance  int64           `json:"fund_balance"`
	Policies     int             `json:"policies"`
	Claims       int             `json:"claims"`
	Warranties   int             `json:"warranties"`
	MaxRecords   int             `json:"max_records"`
}

// GetStats returns all summary figures under one read lock.
func (c *DeterministicCore) GetStats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		NextSequence: c.sequence,
		StateHash:    c.hasher.GetPrevHash(),
		CurrentYear:  c.currentYear,
		Admin:        c.admin,
		FundBalance:  c.balanceTracker.FundBalance(),
		Policies:     c.store.PolicyCount(),
		Claims:       c.store.ClaimCount(),
		Warranties:   c.store.WarrantyCount(),
		MaxRecords:   c.store.MaxRecords(),
		LastSequence: c.sequence - 1,
	}
}
