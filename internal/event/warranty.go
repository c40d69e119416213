package event

import (
	"CoverLedger/internal/state"

	"github.com/google/uuid"
)

// CreateWarranty issues an active warranty. Admin only.
// Owner is the principal the warranty is issued to; empty means the admin.
type CreateWarranty struct {
	RequestID           uuid.UUID       `json:"request_id"`
	Principal           state.Principal `json:"principal"`
	Owner               state.Principal `json:"owner,omitempty"`
	InstrumentID        string          `json:"instrument_id"`
	Brand               string          `json:"brand"`
	GuaranteePercentage int64           `json:"guarantee_percentage"`
	StartDate           int64           `json:"start_date"`
	DurationYears       int64           `json:"duration_years"`
}

func (c *CreateWarranty) IdempotencyKey() string {
	return c.RequestID.String()
}

func (c *CreateWarranty) EventType() EventType {
	return EventTypeWarrantyIssued
}

func (c *CreateWarranty) Caller() state.Principal {
	return c.Principal
}
