package persistence

import (
	"testing"

	"CoverLedger/internal/core"
	"CoverLedger/internal/event"
	"CoverLedger/internal/ledger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "($1, $2, $3)", placeholders(0, 3))
	assert.Equal(t, "($9, $10)", placeholders(8, 2))
}

func TestRowsFromOutput_RoundTripsEnvelope(t *testing.T) {
	gen := ledger.NewJournalGenerator()
	batch, err := gen.GenerateClaimPayout("req-1", 7, 3, 25_000)
	require.NoError(t, err)

	env := &event.EventEnvelope{
		Sequence:       7,
		IdempotencyKey: "req-1",
		EventType:      event.EventTypeClaimAdjudicated,
		Caller:         "admin",
		Year:           2024,
		Payload:        []byte(`{"claim_id":3}`),
		Outcome:        event.Outcome{PolicyID: 2, ClaimID: 3, Payout: 25_000},
		StateHash:      [32]byte{1, 2, 3},
		PrevHash:       [32]byte{9},
	}

	row, journals, err := RowsFromOutput(core.CoreOutput{Envelope: env, Batch: batch})
	require.NoError(t, err)

	assert.Equal(t, "ClaimAdjudicated", row.EventType)
	assert.Equal(t, "admin", row.Caller)
	require.Len(t, journals, 1)
	assert.Equal(t, "external:settlement:claim:3", journals[0].DebitAccount)
	assert.Equal(t, "system:insurance_fund", journals[0].CreditAccount)
	assert.Equal(t, int64(25_000), journals[0].Amount)
	assert.Equal(t, "ClaimPayout", journals[0].JournalType)

	back, err := row.Envelope()
	require.NoError(t, err)
	assert.Equal(t, env, back)
}

func TestEventRowEnvelope_RejectsMalformedRows(t *testing.T) {
	_, err := EventRow{Sequence: 1, EventType: "Nope", StateHash: make([]byte, 32), PrevHash: make([]byte, 32)}.Envelope()
	assert.Error(t, err)

	_, err = EventRow{Sequence: 1, EventType: "YearAdvanced", StateHash: []byte{1}, PrevHash: make([]byte, 32)}.Envelope()
	assert.Error(t, err)
}
