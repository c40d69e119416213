package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// journalNamespace seeds name-based batch and journal ids so that replaying
// the same command yields the same ids and re-persisting is a no-op.
var journalNamespace = uuid.MustParse("6f1c2b8e-3d4a-5e6f-8a9b-0c1d2e3f4a5b")

// JournalGenerator creates balanced journal batches from accepted commands
type JournalGenerator struct{}

func NewJournalGenerator() *JournalGenerator {
	return &JournalGenerator{}
}

// EmptyBatch is the batch for commands that move no money.
func (jg *JournalGenerator) EmptyBatch(eventRef string, sequence int64) *Batch {
	return &Batch{
		BatchID:  batchID(eventRef),
		EventRef: eventRef,
		Sequence: sequence,
	}
}

// GenerateFundSeed moves the initial fund in from outside:
// external:capital → system:insurance_fund
func (jg *JournalGenerator) GenerateFundSeed(eventRef string, sequence int64, amount int64) (*Batch, error) {
	return jg.single(eventRef, sequence, InsuranceFundAccount(), CapitalAccount(), amount, JournalTypeFundSeed)
}

// GeneratePremiumCollect deposits a premium payment:
// external:premiums:policy:N → system:insurance_fund
func (jg *JournalGenerator) GeneratePremiumCollect(eventRef string, sequence int64, policyID uint64, amount int64) (*Batch, error) {
	return jg.single(eventRef, sequence, InsuranceFundAccount(), PremiumsAccount(policyID), amount, JournalTypePremiumCollect)
}

// GenerateClaimPayout debits an approved payout:
// system:insurance_fund → external:settlement:claim:N
func (jg *JournalGenerator) GenerateClaimPayout(eventRef string, sequence int64, claimID uint64, amount int64) (*Batch, error) {
	return jg.single(eventRef, sequence, SettlementAccount(claimID), InsuranceFundAccount(), amount, JournalTypeClaimPayout)
}

func (jg *JournalGenerator) single(
	eventRef string,
	sequence int64,
	debit, credit AccountKey,
	amount int64,
	journalType JournalType,
) (*Batch, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%s journal requires a positive amount, got %d", journalType, amount)
	}

	batch := jg.EmptyBatch(eventRef, sequence)
	batch.Journals = append(batch.Journals, Journal{
		JournalID:     uuid.NewSHA1(journalNamespace, []byte(fmt.Sprintf("%s:journal:0", eventRef))),
		BatchID:       batch.BatchID,
		EventRef:      eventRef,
		Sequence:      sequence,
		DebitAccount:  debit,
		CreditAccount: credit,
		Amount:        amount,
		JournalType:   journalType,
	})
	return batch, nil
}

func batchID(eventRef string) uuid.UUID {
	return uuid.NewSHA1(journalNamespace, []byte(eventRef+":batch"))
}
