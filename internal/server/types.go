package server

import (
	"CoverLedger/internal/core"
	"CoverLedger/internal/query"
	"CoverLedger/internal/state"
)

// Mutating requests carry an optional request_id. Retrying with the same id
// is a no-op that reports duplicate=true; an empty id gets a fresh one.

type CreatePolicyRequest struct {
	RequestID      string `json:"request_id,omitempty"`
	InstrumentID   string `json:"instrument_id"`
	Brand          string `json:"brand"`
	CoverageAmount int64  `json:"coverage_amount"`
	StartDate      int64  `json:"start_date"`
	DurationYears  int64  `json:"duration_years"`
}

type PayPremiumRequest struct {
	RequestID string `json:"request_id,omitempty"`
	PolicyID  uint64 `json:"policy_id"`
	Amount    int64  `json:"amount"`
}

type FileClaimRequest struct {
	RequestID    string             `json:"request_id,omitempty"`
	PolicyID     uint64             `json:"policy_id"`
	ClaimAmount  int64              `json:"claim_amount"`
	Reason       string             `json:"reason"`
	EvidenceHash state.EvidenceHash `json:"evidence_hash"`
}

type AdjudicateClaimRequest struct {
	RequestID     string `json:"request_id,omitempty"`
	ClaimID       uint64 `json:"claim_id"`
	Approve       bool   `json:"approve"`
	StatusMessage string `json:"status_message"`
}

type CreateWarrantyRequest struct {
	RequestID           string          `json:"request_id,omitempty"`
	Owner               state.Principal `json:"owner,omitempty"`
	InstrumentID        string          `json:"instrument_id"`
	Brand               string          `json:"brand"`
	GuaranteePercentage int64           `json:"guarantee_percentage"`
	StartDate           int64           `json:"start_date"`
	DurationYears       int64           `json:"duration_years"`
}

type SetCurrentYearRequest struct {
	RequestID string `json:"request_id,omitempty"`
	Year      int64  `json:"year"`
}

type TransferAdminRequest struct {
	RequestID string          `json:"request_id,omitempty"`
	NewAdmin  state.Principal `json:"new_admin"`
}

// CommandResponse reports what an accepted command produced. Only the
// fields relevant to the command are set.
type CommandResponse struct {
	PolicyID        uint64 `json:"policy_id,omitempty"`
	ClaimID         uint64 `json:"claim_id,omitempty"`
	WarrantyID      uint64 `json:"warranty_id,omitempty"`
	PremiumRequired int64  `json:"premium_required,omitempty"`
	Payout          int64  `json:"payout,omitempty"`
	Duplicate       bool   `json:"duplicate,omitempty"`
}

type GetPolicyRequest struct {
	PolicyID uint64 `json:"policy_id"`
}

type GetClaimRequest struct {
	ClaimID uint64 `json:"claim_id"`
}

type GetWarrantyRequest struct {
	WarrantyID uint64 `json:"warranty_id"`
}

type CheckWarrantyGuaranteeRequest struct {
	WarrantyID   uint64 `json:"warranty_id"`
	CurrentValue int64  `json:"current_value"`
}

type Empty struct{}

type PolicyList struct {
	Policies []state.Policy `json:"policies"`
}

type FundBalanceResponse struct {
	Balance int64 `json:"balance"`
}

type CurrentYearResponse struct {
	Year int64 `json:"year"`
}

type AdminResponse struct {
	Admin state.Principal `json:"admin"`
}

type StatsResponse struct {
	core.Stats
	StateHash string `json:"state_hash"`
}

// Back-office messages.

type ListPoliciesRequest struct {
	Owner   state.Principal `json:"owner"`
	Limit   int             `json:"limit,omitempty"`
	AfterID uint64          `json:"after_id,omitempty"`
}

type ListClaimsRequest struct {
	Status  string `json:"status,omitempty"`
	Limit   int    `json:"limit,omitempty"`
	AfterID uint64 `json:"after_id,omitempty"`
}

type JournalHistoryRequest struct {
	Account        string `json:"account"`
	Limit          int    `json:"limit,omitempty"`
	BeforeSequence int64  `json:"before_sequence,omitempty"`
}

type EventLogInfoResponse struct {
	LastSequence int64 `json:"last_sequence"`
	CoreSequence int64 `json:"core_sequence"`
}

type SnapshotResponse struct {
	Sequence int64 `json:"sequence"`
}

type PolicyViewList struct {
	Policies []query.PolicyView `json:"policies"`
}

type ClaimViewList struct {
	Claims []query.ClaimView `json:"claims"`
}

type JournalList struct {
	Journals []query.JournalHistoryEntry `json:"journals"`
}
