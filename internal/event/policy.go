package event

import (
	"CoverLedger/internal/state"

	"github.com/google/uuid"
)

// CreatePolicy requests a new, inactive policy owned by the caller.
// Idempotency key: request_id.
type CreatePolicy struct {
	RequestID      uuid.UUID       `json:"request_id"`
	Principal      state.Principal `json:"principal"`
	InstrumentID   string          `json:"instrument_id"`
	Brand          string          `json:"brand"`
	CoverageAmount int64           `json:"coverage_amount"`
	StartDate      int64           `json:"start_date"`
	DurationYears  int64           `json:"duration_years"`
}

func (c *CreatePolicy) IdempotencyKey() string {
	return c.RequestID.String()
}

func (c *CreatePolicy) EventType() EventType {
	return EventTypePolicyCreated
}

func (c *CreatePolicy) Caller() state.Principal {
	return c.Principal
}

// PayPremium pays (or re-pays) the premium of a policy and activates it.
type PayPremium struct {
	RequestID uuid.UUID       `json:"request_id"`
	Principal state.Principal `json:"principal"`
	PolicyID  uint64          `json:"policy_id"`
	Amount    int64           `json:"amount"`
}

func (p *PayPremium) IdempotencyKey() string {
	return p.RequestID.String()
}

func (p *PayPremium) EventType() EventType {
	return EventTypePremiumPaid
}

func (p *PayPremium) Caller() state.Principal {
	return p.Principal
}
