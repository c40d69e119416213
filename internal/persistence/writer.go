package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"CoverLedger/internal/core"
	"CoverLedger/internal/event"
	"CoverLedger/internal/state"
)

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// EventLogWriter writes events and journals to Postgres using multi-row INSERTs.
type EventLogWriter struct {
	db *sql.DB
}

// EventRow represents a row in event_log.events
type EventRow struct {
	Sequence       int64
	EventType      string
	IdempotencyKey string
	Caller         string
	Year           int64
	Payload        []byte // JSON command payload
	Outcome        []byte // JSON outcome
	StateHash      []byte
	PrevHash       []byte
	CreatedAt      time.Time
}

// JournalRow represents a row in event_log.journals
type JournalRow struct {
	JournalID     string
	BatchID       string
	EventRef      string
	Sequence      int64
	DebitAccount  string
	CreditAccount string
	Amount        int64
	JournalType   string
}

func NewEventLogWriter(db *sql.DB) *EventLogWriter {
	return &EventLogWriter{db: db}
}

// RowsFromOutput flattens a core output into its event-log rows.
func RowsFromOutput(out core.CoreOutput) (EventRow, []JournalRow, error) {
	env := out.Envelope
	outcome, err := json.Marshal(env.Outcome)
	if err != nil {
		return EventRow{}, nil, fmt.Errorf("marshal outcome seq %d: %w", env.Sequence, err)
	}

	row := EventRow{
		Sequence:       env.Sequence,
		EventType:      env.EventType.String(),
		IdempotencyKey: env.IdempotencyKey,
		Caller:         string(env.Caller),
		Year:           env.Year,
		Payload:        env.Payload,
		Outcome:        outcome,
		StateHash:      append([]byte(nil), env.StateHash[:]...),
		PrevHash:       append([]byte(nil), env.PrevHash[:]...),
		CreatedAt:      time.Now().UTC(),
	}

	var journals []JournalRow
	if out.Batch != nil {
		journals = make([]JournalRow, 0, len(out.Batch.Journals))
		for _, j := range out.Batch.Journals {
			journals = append(journals, JournalRow{
				JournalID:     j.JournalID.String(),
				BatchID:       j.BatchID.String(),
				EventRef:      j.EventRef,
				Sequence:      j.Sequence,
				DebitAccount:  j.DebitAccount.AccountPath(),
				CreditAccount: j.CreditAccount.AccountPath(),
				Amount:        j.Amount,
				JournalType:   j.JournalType.String(),
			})
		}
	}
	return row, journals, nil
}

// Envelope rebuilds the sealed envelope from a stored row for replay.
func (e EventRow) Envelope() (*event.EventEnvelope, error) {
	et := event.ParseEventType(e.EventType)
	if et == event.EventTypeUnknown {
		return nil, fmt.Errorf("seq %d: unknown event type %q", e.Sequence, e.EventType)
	}
	if len(e.StateHash) != 32 || len(e.PrevHash) != 32 {
		return nil, fmt.Errorf("seq %d: malformed hash", e.Sequence)
	}

	env := &event.EventEnvelope{
		Sequence:       e.Sequence,
		IdempotencyKey: e.IdempotencyKey,
		EventType:      et,
		Caller:         state.Principal(e.Caller),
		Year:           e.Year,
		Payload:        e.Payload,
	}
	if len(e.Outcome) > 0 {
		if err := json.Unmarshal(e.Outcome, &env.Outcome); err != nil {
			return nil, fmt.Errorf("seq %d: outcome: %w", e.Sequence, err)
		}
	}
	copy(env.StateHash[:], e.StateHash)
	copy(env.PrevHash[:], e.PrevHash)
	return env, nil
}

// WriteEventBatch writes a batch of events to event_log.events.
func (w *EventLogWriter) WriteEventBatch(ctx context.Context, events []EventRow, ex execer) error {
	if len(events) == 0 {
		return nil
	}
	if ex == nil {
		ex = w.db
	}

	query := `INSERT INTO event_log.events
		(sequence, event_type, idempotency_key, caller, year, payload, outcome, state_hash, prev_hash, created_at)
		VALUES `

	const cols = 10
	values := make([]string, 0, len(events))
	args := make([]any, 0, len(events)*cols)

	for i, e := range events {
		values = append(values, placeholders(i*cols, cols))
		// JSONB columns take text; lib/pq would send []byte as bytea.
		args = append(args,
			e.Sequence, e.EventType, e.IdempotencyKey, e.Caller, e.Year,
			string(e.Payload), string(e.Outcome), e.StateHash, e.PrevHash, e.CreatedAt,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING"

	_, err := ex.ExecContext(ctx, query, args...)
	return err
}

// WriteJournalBatch writes a batch of journal entries to event_log.journals.
func (w *EventLogWriter) WriteJournalBatch(ctx context.Context, journals []JournalRow, ex execer) error {
	if len(journals) == 0 {
		return nil
	}
	if ex == nil {
		ex = w.db
	}

	query := `INSERT INTO event_log.journals
		(journal_id, batch_id, event_ref, sequence, debit_account, credit_account, amount, journal_type)
		VALUES `

	const cols = 8
	values := make([]string, 0, len(journals))
	args := make([]any, 0, len(journals)*cols)

	for i, j := range journals {
		values = append(values, placeholders(i*cols, cols))
		args = append(args,
			j.JournalID, j.BatchID, j.EventRef, j.Sequence,
			j.DebitAccount, j.CreditAccount, j.Amount, j.JournalType,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (journal_id) DO NOTHING"

	_, err := ex.ExecContext(ctx, query, args...)
	return err
}

// placeholders renders "($base+1, ..., $base+n)".
func placeholders(base, n int) string {
	var b strings.Builder
	b.WriteByte('(')
	for i := 1; i <= n; i++ {
		if i > 1 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "$%d", base+i)
	}
	b.WriteByte(')')
	return b.String()
}
