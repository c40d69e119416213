package event

import (
	"CoverLedger/internal/state"

	"github.com/google/uuid"
)

// SetCurrentYear moves the ledger clock. Admin only; may move backwards.
type SetCurrentYear struct {
	RequestID uuid.UUID       `json:"request_id"`
	Principal state.Principal `json:"principal"`
	Year      int64           `json:"year"`
}

func (s *SetCurrentYear) IdempotencyKey() string {
	return s.RequestID.String()
}

func (s *SetCurrentYear) EventType() EventType {
	return EventTypeYearAdvanced
}

func (s *SetCurrentYear) Caller() state.Principal {
	return s.Principal
}

// TransferAdmin hands the privileged role to another principal.
type TransferAdmin struct {
	RequestID uuid.UUID       `json:"request_id"`
	Principal state.Principal `json:"principal"`
	NewAdmin  state.Principal `json:"new_admin"`
}

func (t *TransferAdmin) IdempotencyKey() string {
	return t.RequestID.String()
}

func (t *TransferAdmin) EventType() EventType {
	return EventTypeAdminTransferred
}

func (t *TransferAdmin) Caller() state.Principal {
	return t.Principal
}
