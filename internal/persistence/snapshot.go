package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"CoverLedger/internal/core"
	"CoverLedger/internal/observability"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// snapshotFormatVersion v1: JSON-encoded core.SnapshotState.
const snapshotFormatVersion = 1

// SnapshotManager stores core snapshots and reads the event log back for
// recovery.
type SnapshotManager struct {
	db *sql.DB
}

func NewSnapshotManager(db *sql.DB) *SnapshotManager {
	return &SnapshotManager{db: db}
}

// SaveSnapshot persists an unverified snapshot. It becomes eligible for
// restore once VerifyPending sees every event up to its sequence durable.
func (sm *SnapshotManager) SaveSnapshot(ctx context.Context, snap *core.SnapshotState) (int, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return 0, fmt.Errorf("marshal snapshot: %w", err)
	}

	_, err = sm.db.ExecContext(ctx, `
		INSERT INTO event_log.snapshots
			(snapshot_id, sequence, data, state_hash, format_version, size_bytes, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
		ON CONFLICT (sequence) DO UPDATE SET data = $3, state_hash = $4, size_bytes = $6
	`, uuid.New(), snap.Sequence, string(data), snap.StateHash[:], snapshotFormatVersion, len(data), time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("save snapshot %d: %w", snap.Sequence, err)
	}
	return len(data), nil
}

// VerifyPending marks every snapshot whose sequence is covered by the
// durable event log as verified, and returns how many it marked.
func (sm *SnapshotManager) VerifyPending(ctx context.Context) (int64, error) {
	res, err := sm.db.ExecContext(ctx, `
		UPDATE event_log.snapshots s
		SET verified = TRUE
		WHERE s.verified = FALSE
		  AND EXISTS (
			SELECT 1 FROM event_log.events e
			WHERE e.sequence = s.sequence AND e.state_hash = s.state_hash
		  )
	`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// LoadLatestSnapshot loads the most recent verified snapshot, or nil on a
// cold start.
func (sm *SnapshotManager) LoadLatestSnapshot(ctx context.Context) (*core.SnapshotState, error) {
	row := sm.db.QueryRowContext(ctx, `
		SELECT data FROM event_log.snapshots
		WHERE verified = TRUE AND format_version = $1
		ORDER BY sequence DESC
		LIMIT 1
	`, snapshotFormatVersion)

	var data []byte
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var snap core.SnapshotState
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// LoadEventsFrom loads up to limit events starting at fromSequence.
func (sm *SnapshotManager) LoadEventsFrom(ctx context.Context, fromSequence int64, limit int) ([]EventRow, error) {
	rows, err := sm.db.QueryContext(ctx, `
		SELECT sequence, event_type, idempotency_key, caller, year, payload,
		       outcome, state_hash, prev_hash, created_at
		FROM event_log.events
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, fromSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		if err := rows.Scan(
			&e.Sequence, &e.EventType, &e.IdempotencyKey, &e.Caller, &e.Year, &e.Payload,
			&e.Outcome, &e.StateHash, &e.PrevHash, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

// GetLatestSequence returns the highest sequence in the event log, 0 when empty.
func (sm *SnapshotManager) GetLatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := sm.db.QueryRowContext(ctx, `
		SELECT MAX(sequence) FROM event_log.events
	`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}

// Snapshotter periodically captures the core's state.
type Snapshotter struct {
	core     *core.DeterministicCore
	manager  *SnapshotManager
	interval time.Duration
	metrics  *observability.Metrics
	logger   zerolog.Logger

	mu      sync.Mutex
	lastSeq int64
}

func NewSnapshotter(
	c *core.DeterministicCore,
	manager *SnapshotManager,
	interval time.Duration,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Snapshotter {
	return &Snapshotter{
		core:     c,
		manager:  manager,
		interval: interval,
		metrics:  metrics,
		logger:   logger,
	}
}

// Run takes a snapshot every interval when the ledger has moved.
func (s *Snapshotter) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.TakeSnapshot(ctx); err != nil {
				s.logger.Warn().Err(err).Msg("snapshot failed")
			}
		}
	}
}

// TakeSnapshot saves the current state (if it changed since the last one)
// and verifies any snapshot the event log now covers.
func (s *Snapshotter) TakeSnapshot(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := time.Now()

	snap := s.core.CreateSnapshotState()
	if snap.Sequence > 0 && snap.Sequence != s.lastSeq {
		size, err := s.manager.SaveSnapshot(ctx, snap)
		if err != nil {
			return err
		}
		s.lastSeq = snap.Sequence

		if s.metrics != nil {
			s.metrics.SnapshotTaken.Inc()
			s.metrics.SnapshotDuration.Observe(time.Since(start).Seconds())
			s.metrics.SnapshotSizeBytes.Set(float64(size))
			s.metrics.SnapshotLastSeq.Set(float64(snap.Sequence))
		}
		s.logger.Info().Int64("sequence", snap.Sequence).Int("bytes", size).Msg("snapshot saved")
	}

	verified, err := s.manager.VerifyPending(ctx)
	if err != nil {
		return fmt.Errorf("verify snapshots: %w", err)
	}
	if verified > 0 {
		s.logger.Debug().Int64("verified", verified).Msg("snapshots verified")
	}
	return nil
}
