package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"CoverLedger/internal/core"
	"CoverLedger/internal/observability"

	"github.com/rs/zerolog"
)

// PersistenceWorker drains the persist channel and batch-writes to Postgres.
// The core sends on this channel with a blocking send, so if the worker falls
// behind the core stalls and no accepted event is lost.
type PersistenceWorker struct {
	writer       *EventLogWriter
	inputChan    <-chan core.CoreOutput
	batchSize    int
	flushTimeout time.Duration
	metrics      *observability.Metrics
	logger       zerolog.Logger

	// onFlush, when set, observes every committed batch. The slice is
	// reused after the call returns.
	onFlush func(outputs []core.CoreOutput)
}

func NewPersistenceWorker(
	db *sql.DB,
	inputChan <-chan core.CoreOutput,
	batchSize int,
	flushTimeout time.Duration,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *PersistenceWorker {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &PersistenceWorker{
		writer:       NewEventLogWriter(db),
		inputChan:    inputChan,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		metrics:      metrics,
		logger:       logger,
	}
}

// OnFlush registers a callback invoked with every committed batch.
func (pw *PersistenceWorker) OnFlush(fn func(outputs []core.CoreOutput)) {
	pw.onFlush = fn
}

// Run starts the persistence worker loop. It batches incoming outputs
// and flushes either when the batch is full or the flush timeout expires.
// Blocks until ctx is cancelled or the input channel is closed.
func (pw *PersistenceWorker) Run(ctx context.Context) error {
	pending := make([]core.CoreOutput, 0, pw.batchSize)

	timer := time.NewTimer(pw.flushTimeout)
	defer timer.Stop()

	flush := func(ctx context.Context) {
		if len(pending) == 0 {
			return
		}
		if err := pw.flushWithRetry(ctx, pending); err != nil {
			pw.logger.Error().Err(err).Int("events", len(pending)).Msg("batch flush failed after retries")
		}
		pending = pending[:0]
	}

	for {
		select {
		case <-ctx.Done():
			// Drain whatever the core already handed over, then flush.
			for drained := false; !drained; {
				select {
				case output, ok := <-pw.inputChan:
					if !ok {
						drained = true
						break
					}
					pending = append(pending, output)
				default:
					drained = true
				}
			}
			flush(context.Background())
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				flush(context.Background())
				return nil
			}

			pending = append(pending, output)
			if len(pending) >= pw.batchSize {
				flush(ctx)
				timer.Reset(pw.flushTimeout)
			}

		case <-timer.C:
			flush(ctx)
			timer.Reset(pw.flushTimeout)
		}
	}
}

// flushWithRetry retries with exponential backoff. The worker never drops
// events: it retries until the write succeeds or ctx is cancelled, and on
// cancellation makes one final attempt with a background context.
func (pw *PersistenceWorker) flushWithRetry(ctx context.Context, outputs []core.CoreOutput) error {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			pw.logger.Warn().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Int("events", len(outputs)).
				Msg("persistence retry")
			if pw.metrics != nil {
				pw.metrics.PersistRetry.Inc()
			}
			select {
			case <-ctx.Done():
				if err := pw.flush(context.Background(), outputs); err != nil {
					return fmt.Errorf("final flush on shutdown failed: %w", err)
				}
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		err := pw.flush(ctx, outputs)
		if err == nil {
			if attempt > 0 {
				pw.logger.Info().Int("retries", attempt).Msg("persistence flush succeeded")
			}
			return nil
		}
		pw.logger.Error().Err(err).Msg("persistence flush failed")
	}
}

func (pw *PersistenceWorker) flush(ctx context.Context, outputs []core.CoreOutput) error {
	start := time.Now()

	events := make([]EventRow, 0, len(outputs))
	var journals []JournalRow
	for _, out := range outputs {
		row, js, err := RowsFromOutput(out)
		if err != nil {
			pw.recordError("encode")
			return err
		}
		events = append(events, row)
		journals = append(journals, js...)
	}

	// Events and journals commit together
	tx, err := pw.writer.db.BeginTx(ctx, nil)
	if err != nil {
		pw.recordError("tx_begin")
		return err
	}
	defer tx.Rollback()

	if err := pw.writer.WriteEventBatch(ctx, events, tx); err != nil {
		pw.recordError("write_events")
		return err
	}

	if err := pw.writer.WriteJournalBatch(ctx, journals, tx); err != nil {
		pw.recordError("write_journals")
		return err
	}

	if err := tx.Commit(); err != nil {
		pw.recordError("tx_commit")
		return err
	}

	if pw.metrics != nil {
		pw.metrics.PersistBatchDur.Observe(time.Since(start).Seconds())
		pw.metrics.PersistBatchSize.Observe(float64(len(events)))
		pw.metrics.PersistEventsWritten.Add(float64(len(events)))
		pw.metrics.PersistJournalsWritten.Add(float64(len(journals)))
		pw.metrics.PersistLastSequence.Set(float64(events[len(events)-1].Sequence))
	}

	if pw.onFlush != nil {
		pw.onFlush(outputs)
	}
	return nil
}

func (pw *PersistenceWorker) recordError(kind string) {
	if pw.metrics != nil {
		pw.metrics.PersistErrors.WithLabelValues(kind).Inc()
	}
}
