package ingestion

import (
	"context"
	"errors"

	"CoverLedger/internal/event"
	"CoverLedger/internal/observability"
	"CoverLedger/internal/state"

	"github.com/rs/zerolog"
)

// Ledger is the part of the core the intake loop needs.
type Ledger interface {
	ProcessEvent(evt event.Event) (event.Outcome, error)
}

// CommandProcessor drains raw NATS messages, decodes them and applies them
// to the ledger one at a time.
//
// Ack rules: applied, duplicate and domain-rejected commands are acked (a
// rejection is a final answer); malformed payloads are terminated; anything
// else is nak'ed for redelivery.
type CommandProcessor struct {
	ledger    Ledger
	inputChan <-chan RawEvent
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

func NewCommandProcessor(ledger Ledger, inputChan <-chan RawEvent, metrics *observability.Metrics, logger zerolog.Logger) *CommandProcessor {
	return &CommandProcessor{
		ledger:    ledger,
		inputChan: inputChan,
		metrics:   metrics,
		logger:    logger,
	}
}

// Run processes messages until ctx is cancelled or the channel closes.
func (cp *CommandProcessor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-cp.inputChan:
			if !ok {
				return nil
			}
			cp.Handle(raw)
		}
	}
}

// Handle processes a single message and settles its ack state.
func (cp *CommandProcessor) Handle(raw RawEvent) {
	evt, err := ParseRawEvent(raw, raw.EventType)
	if err != nil {
		cp.logger.Warn().Err(err).Str("subject", raw.Subject).Msg("dropping malformed command")
		cp.record(raw.Subject, "malformed")
		settle(raw.TermFunc)
		return
	}

	outcome, err := cp.ledger.ProcessEvent(evt)
	switch {
	case err == nil && outcome.Duplicate:
		cp.record(raw.Subject, "duplicate")
		settle(raw.AckFunc)

	case err == nil:
		cp.record(raw.Subject, "applied")
		settle(raw.AckFunc)

	case state.CodeOf(err) != state.CodeNone:
		cp.logger.Info().
			Str("subject", raw.Subject).
			Str("idempotency_key", evt.IdempotencyKey()).
			Str("code", state.CodeOf(err).String()).
			Err(err).
			Msg("command rejected")
		cp.record(raw.Subject, "rejected")
		settle(raw.AckFunc)

	case errors.Is(err, ErrMalformed):
		cp.record(raw.Subject, "malformed")
		settle(raw.TermFunc)

	default:
		cp.logger.Error().Err(err).Str("subject", raw.Subject).Msg("command failed, will redeliver")
		cp.record(raw.Subject, "error")
		settle(raw.NakFunc)
	}
}

func (cp *CommandProcessor) record(subject, outcome string) {
	if cp.metrics != nil {
		cp.metrics.IngestMessages.WithLabelValues(subject, outcome).Inc()
	}
}

func settle(fn func()) {
	if fn != nil {
		fn()
	}
}
