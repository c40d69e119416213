package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// JournalType represents the purpose of a journal entry
type JournalType int32

const (
	JournalTypeFundSeed JournalType = iota
	JournalTypePremiumCollect
	JournalTypeClaimPayout
)

func (t JournalType) String() string {
	switch t {
	case JournalTypeFundSeed:
		return "FundSeed"
	case JournalTypePremiumCollect:
		return "PremiumCollect"
	case JournalTypeClaimPayout:
		return "ClaimPayout"
	default:
		return "Unknown"
	}
}

// Journal represents a single double-entry journal entry
type Journal struct {
	JournalID     uuid.UUID   // Derived from EventRef, stable across replays
	BatchID       uuid.UUID   // Groups balanced entries
	EventRef      string      // Idempotency key of source command
	Sequence      int64       // Global event sequence
	DebitAccount  AccountKey  // Account receiving debit (balance increases)
	CreditAccount AccountKey  // Account receiving credit (balance decreases)
	Amount        int64       // ALWAYS positive
	JournalType   JournalType // Entry type
}

// Batch represents a balanced set of journal entries.
// Commands that move no money produce an empty batch.
type Batch struct {
	BatchID  uuid.UUID
	EventRef string
	Sequence int64
	Journals []Journal
}

// Validate ensures the batch is well-formed.
// Each journal moves one positive amount from the credit account to the
// debit account, so every entry is balanced on its own.
func (b *Batch) Validate() error {
	if len(b.Journals) == 0 {
		return fmt.Errorf("batch %s is empty", b.BatchID)
	}

	for _, j := range b.Journals {
		if j.Amount <= 0 {
			return fmt.Errorf("journal %s has non-positive amount: %d", j.JournalID, j.Amount)
		}

		if j.BatchID != b.BatchID {
			return fmt.Errorf("journal %s has mismatched batch_id", j.JournalID)
		}

		if j.DebitAccount == j.CreditAccount {
			return fmt.Errorf("journal %s has same debit and credit account", j.JournalID)
		}
	}

	return nil
}

// IsEmpty reports whether the batch moves no money.
func (b *Batch) IsEmpty() bool {
	return b == nil || len(b.Journals) == 0
}
