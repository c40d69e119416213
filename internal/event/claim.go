package event

import (
	"CoverLedger/internal/state"

	"github.com/google/uuid"
)

// FileClaim files the single claim a policy may ever carry.
type FileClaim struct {
	RequestID    uuid.UUID          `json:"request_id"`
	Principal    state.Principal    `json:"principal"`
	PolicyID     uint64             `json:"policy_id"`
	ClaimAmount  int64              `json:"claim_amount"`
	Reason       string             `json:"reason"`
	EvidenceHash state.EvidenceHash `json:"evidence_hash"`
}

func (f *FileClaim) IdempotencyKey() string {
	return f.RequestID.String()
}

func (f *FileClaim) EventType() EventType {
	return EventTypeClaimFiled
}

func (f *FileClaim) Caller() state.Principal {
	return f.Principal
}

// AdjudicateClaim approves or rejects a claim. Admin only.
// An approval carries the payout in the envelope outcome; the settlement
// sink moves the money.
type AdjudicateClaim struct {
	RequestID     uuid.UUID       `json:"request_id"`
	Principal     state.Principal `json:"principal"`
	ClaimID       uint64          `json:"claim_id"`
	Approve       bool            `json:"approve"`
	StatusMessage string          `json:"status_message"`
}

func (a *AdjudicateClaim) IdempotencyKey() string {
	return a.RequestID.String()
}

func (a *AdjudicateClaim) EventType() EventType {
	return EventTypeClaimAdjudicated
}

func (a *AdjudicateClaim) Caller() state.Principal {
	return a.Principal
}
