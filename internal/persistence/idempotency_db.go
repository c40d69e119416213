package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"CoverLedger/internal/event"
)

// PostgresIdempotencyChecker is the core's tier-2 dedup lookup against the
// event log's (event_type, idempotency_key) unique index.
type PostgresIdempotencyChecker struct {
	db      *sql.DB
	timeout time.Duration
}

func NewPostgresIdempotencyChecker(db *sql.DB) *PostgresIdempotencyChecker {
	return &PostgresIdempotencyChecker{
		db:      db,
		timeout: 500 * time.Millisecond,
	}
}

// LookupOutcome checks if event exists in Postgres event log and returns the
// outcome it was recorded with.
func (pic *PostgresIdempotencyChecker) LookupOutcome(eventType string, idempotencyKey string) (event.Outcome, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), pic.timeout)
	defer cancel()

	var raw []byte
	err := pic.db.QueryRowContext(ctx, `
		SELECT outcome
		FROM event_log.events
		WHERE event_type = $1 AND idempotency_key = $2
		LIMIT 1
	`, eventType, idempotencyKey).Scan(&raw)

	if errors.Is(err, sql.ErrNoRows) {
		return event.Outcome{}, false, nil
	}
	if err != nil {
		return event.Outcome{}, false, err
	}

	var outcome event.Outcome
	if err := json.Unmarshal(raw, &outcome); err != nil {
		return event.Outcome{}, false, fmt.Errorf("decode outcome %s/%s: %w", eventType, idempotencyKey, err)
	}
	return outcome, true, nil
}
