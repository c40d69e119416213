package query

import "time"

// PolicyView is a policy row from projections.policies.
type PolicyView struct {
	PolicyID       uint64    `json:"policy_id"`
	Owner          string    `json:"owner"`
	InstrumentID   string    `json:"instrument_id"`
	Brand          string    `json:"brand"`
	CoverageAmount int64     `json:"coverage_amount"`
	PremiumPaid    int64     `json:"premium_paid"`
	StartDate      int64     `json:"start_date"`
	EndDate        int64     `json:"end_date"`
	Active         bool      `json:"active"`
	LastSequence   int64     `json:"last_sequence"`
	UpdatedAt      time.Time `json:"updated_at"`
	AsOfSequence   int64     `json:"as_of_sequence"`
}

// ClaimView is a claim row from projections.claims.
type ClaimView struct {
	ClaimID      uint64    `json:"claim_id"`
	PolicyID     uint64    `json:"policy_id"`
	ClaimAmount  int64     `json:"claim_amount"`
	ClaimDate    int64     `json:"claim_date"`
	Reason       string    `json:"reason"`
	Status       string    `json:"status"`
	Approved     bool      `json:"approved"`
	EvidenceHash string    `json:"evidence_hash"` // hex
	LastSequence int64     `json:"last_sequence"`
	UpdatedAt    time.Time `json:"updated_at"`
	AsOfSequence int64     `json:"as_of_sequence"`
}

// WarrantyView is a warranty row from projections.warranties.
type WarrantyView struct {
	WarrantyID          uint64    `json:"warranty_id"`
	Owner               string    `json:"owner"`
	InstrumentID        string    `json:"instrument_id"`
	Brand               string    `json:"brand"`
	GuaranteePercentage int64     `json:"guarantee_percentage"`
	StartDate           int64     `json:"start_date"`
	DurationYears       int64     `json:"duration_years"`
	Active              bool      `json:"active"`
	LastSequence        int64     `json:"last_sequence"`
	UpdatedAt           time.Time `json:"updated_at"`
	AsOfSequence        int64     `json:"as_of_sequence"`
}

// FundView is the singleton projections.fund row.
type FundView struct {
	Balance      int64     `json:"balance"`
	CurrentYear  int64     `json:"current_year"`
	Admin        string    `json:"admin"`
	LastSequence int64     `json:"last_sequence"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// JournalHistoryEntry represents a journal entry for API queries.
type JournalHistoryEntry struct {
	JournalID     string    `json:"journal_id"`
	BatchID       string    `json:"batch_id"`
	EventRef      string    `json:"event_ref"`
	Sequence      int64     `json:"sequence"`
	DebitAccount  string    `json:"debit_account"`
	CreditAccount string    `json:"credit_account"`
	Amount        int64     `json:"amount"`
	JournalType   string    `json:"journal_type"`
	CreatedAt     time.Time `json:"created_at"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy       bool          `json:"is_healthy"`
	LatestSequence  int64         `json:"latest_sequence"`
	SequenceGaps    []int64       `json:"sequence_gaps,omitempty"`
	HashChainBreaks []int64       `json:"hash_chain_breaks,omitempty"`
	Fund            *FundMismatch `json:"fund_mismatch,omitempty"`
}

// FundMismatch is reported when the fund projection disagrees with the
// journal sum at the same watermark.
type FundMismatch struct {
	Projected int64 `json:"projected"`
	Journaled int64 `json:"journaled"`
}
