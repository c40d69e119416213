package ingestion

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"CoverLedger/internal/core"
	"CoverLedger/internal/event"
	"CoverLedger/internal/observability"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// OutboundPublisher publishes committed events to NATS for downstream
// consumers (settlement sink, notification services).
// Events are only published after the persistence worker has committed them.
// Subjects follow the pattern: cover.ledger.events.{event_type}
type OutboundPublisher struct {
	js        jetstream.JetStream
	inputChan chan PublishableEvent
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

// PublishableEvent is a committed event ready for outbound publishing.
type PublishableEvent struct {
	Sequence       int64           `json:"sequence"`
	EventType      string          `json:"event_type"`
	IdempotencyKey string          `json:"idempotency_key"`
	Caller         string          `json:"caller"`
	Year           int64           `json:"year"`
	Payload        json.RawMessage `json:"payload"`
	Outcome        event.Outcome   `json:"outcome"`
	StateHash      string          `json:"state_hash"`
	Timestamp      time.Time       `json:"timestamp"`
}

// PublishableFromOutput converts a committed core output.
func PublishableFromOutput(out core.CoreOutput) PublishableEvent {
	env := out.Envelope
	return PublishableEvent{
		Sequence:       env.Sequence,
		EventType:      env.EventType.String(),
		IdempotencyKey: env.IdempotencyKey,
		Caller:         string(env.Caller),
		Year:           env.Year,
		Payload:        json.RawMessage(env.Payload),
		Outcome:        env.Outcome,
		StateHash:      hex.EncodeToString(env.StateHash[:]),
		Timestamp:      time.Now().UTC(),
	}
}

func NewOutboundPublisher(js jetstream.JetStream, bufferSize int, metrics *observability.Metrics, logger zerolog.Logger) *OutboundPublisher {
	return &OutboundPublisher{
		js:        js,
		inputChan: make(chan PublishableEvent, bufferSize),
		metrics:   metrics,
		logger:    logger,
	}
}

// Enqueue is registered as the persistence worker's flush callback.
// It never blocks the writer: when the buffer is full the event is dropped
// and counted; consumers can always read the event log directly.
func (op *OutboundPublisher) Enqueue(outputs []core.CoreOutput) {
	for _, out := range outputs {
		select {
		case op.inputChan <- PublishableFromOutput(out):
		default:
			if op.metrics != nil {
				op.metrics.PublishDrops.Inc()
			}
			op.logger.Warn().Int64("sequence", out.Envelope.Sequence).Msg("publish buffer full, dropping event")
		}
	}
}

// Run starts the outbound publisher loop.
func (op *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case evt := <-op.inputChan:
			if err := op.publish(ctx, evt); err != nil {
				// Non-fatal: downstream consumers can query the event log directly
				op.logger.Warn().Err(err).Int64("sequence", evt.Sequence).Msg("outbound publish failed")
			}
		}
	}
}

func (op *OutboundPublisher) publish(ctx context.Context, evt PublishableEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	// Msg-Id lets the stream drop republished sequences inside its window.
	_, err = op.js.Publish(ctx, EventSubject(evt.EventType), data,
		jetstream.WithMsgID(strconv.FormatInt(evt.Sequence, 10)))
	return err
}

// EventSubject is the outbound subject for an event type name.
func EventSubject(eventType string) string {
	return "cover.ledger.events." + eventType
}
