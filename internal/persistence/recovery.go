package persistence

import (
	"context"
	"fmt"
	"time"

	"CoverLedger/internal/core"
	"CoverLedger/internal/observability"

	"github.com/rs/zerolog"
)

const replayPageSize = 1000

// Recover restores the core from the latest verified snapshot and replays
// every later event, checking each state hash against the log. Returns the
// number of replayed events.
func Recover(
	ctx context.Context,
	c *core.DeterministicCore,
	sm *SnapshotManager,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) (int64, error) {
	start := time.Now()

	snap, err := sm.LoadLatestSnapshot(ctx)
	if err != nil {
		return 0, err
	}
	if snap != nil {
		if err := c.RestoreFromSnapshot(snap); err != nil {
			return 0, err
		}
		logger.Info().Int64("sequence", snap.Sequence).Msg("restored snapshot")
	} else {
		logger.Info().Msg("no snapshot, replaying full event log")
	}

	var replayed int64
	next := c.GetSequence()
	for {
		rows, err := sm.LoadEventsFrom(ctx, next, replayPageSize)
		if err != nil {
			return replayed, fmt.Errorf("load events from %d: %w", next, err)
		}
		if len(rows) == 0 {
			break
		}

		for _, row := range rows {
			env, err := row.Envelope()
			if err != nil {
				return replayed, err
			}
			if err := c.ReplayEnvelope(env); err != nil {
				return replayed, err
			}
			replayed++
		}
		next = c.GetSequence()

		if err := ctx.Err(); err != nil {
			return replayed, err
		}
	}

	if metrics != nil {
		metrics.ReplayEventsTotal.Add(float64(replayed))
		metrics.ReplayDuration.Set(time.Since(start).Seconds())
	}
	logger.Info().
		Int64("replayed", replayed).
		Int64("next_sequence", next).
		Dur("took", time.Since(start)).
		Msg("recovery complete")
	return replayed, nil
}
