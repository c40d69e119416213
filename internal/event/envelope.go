package event

import (
	"CoverLedger/internal/state"
)

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypePolicyCreated
	EventTypePremiumPaid
	EventTypeClaimFiled
	EventTypeClaimAdjudicated
	EventTypeWarrantyIssued
	EventTypeYearAdvanced
	EventTypeAdminTransferred
)

// AllEventTypes lists every concrete type, in discriminator order.
var AllEventTypes = []EventType{
	EventTypePolicyCreated,
	EventTypePremiumPaid,
	EventTypeClaimFiled,
	EventTypeClaimAdjudicated,
	EventTypeWarrantyIssued,
	EventTypeYearAdvanced,
	EventTypeAdminTransferred,
}

// EventEnvelope wraps every accepted command in the log
type EventEnvelope struct {
	// Global monotonic sequence assigned by core
	Sequence int64

	// Stable idempotency key from upstream
	IdempotencyKey string

	// Event type discriminator
	EventType EventType

	// Principal that issued the command
	Caller state.Principal

	// Ledger year after applying this event (NOT wall-clock)
	Year int64

	// JSON-encoded command
	Payload []byte

	// What the command produced (assigned ids, premium, payout)
	Outcome Outcome

	// SHA-256 of state AFTER applying this event
	StateHash [32]byte

	// Previous event's state hash (chain integrity)
	PrevHash [32]byte
}

// Outcome is the result of an accepted command. Only the fields relevant
// to the command type are set.
type Outcome struct {
	PolicyID        uint64 `json:"policy_id,omitempty"`
	ClaimID         uint64 `json:"claim_id,omitempty"`
	WarrantyID      uint64 `json:"warranty_id,omitempty"`
	PremiumRequired int64  `json:"premium_required,omitempty"`
	Payout          int64  `json:"payout,omitempty"`

	// Duplicate is set when the idempotency key was already applied and the
	// command was skipped. Never persisted.
	Duplicate bool `json:"-"`
}

// Event is the interface all command payloads must implement
type Event interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// EventType returns the discriminator
	EventType() EventType

	// Caller returns the principal issuing the command
	Caller() state.Principal
}

func (et EventType) String() string {
	switch et {
	case EventTypePolicyCreated:
		return "PolicyCreated"
	case EventTypePremiumPaid:
		return "PremiumPaid"
	case EventTypeClaimFiled:
		return "ClaimFiled"
	case EventTypeClaimAdjudicated:
		return "ClaimAdjudicated"
	case EventTypeWarrantyIssued:
		return "WarrantyIssued"
	case EventTypeYearAdvanced:
		return "YearAdvanced"
	case EventTypeAdminTransferred:
		return "AdminTransferred"
	default:
		return "Unknown"
	}
}

// ParseEventType is the inverse of EventType.String.
func ParseEventType(s string) EventType {
	for _, et := range AllEventTypes {
		if et.String() == s {
			return et
		}
	}
	return EventTypeUnknown
}
