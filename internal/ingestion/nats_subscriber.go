package ingestion

import (
	"context"
	"fmt"
	"time"

	"CoverLedger/internal/event"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

const (
	CommandStream = "COVER_COMMANDS"
	EventStream   = "COVER_LEDGER_EVENTS"
)

// NATSSubscriber subscribes to the command subjects and feeds raw messages
// to the CommandProcessor via eventChan. Each subject maps to one command type.
type NATSSubscriber struct {
	js        jetstream.JetStream
	eventChan chan<- RawEvent
	consumers []jetstream.ConsumeContext
	logger    zerolog.Logger
}

// RawEvent is an undecoded command from NATS plus its ack controls.
type RawEvent struct {
	Subject   string
	EventType event.EventType
	Data      []byte
	Timestamp time.Time
	AckFunc   func() // processed (accepted, rejected or duplicate)
	NakFunc   func() // transient failure, redeliver
	TermFunc  func() // malformed, never redeliver
}

// SubjectConfig maps a NATS subject to a command type.
type SubjectConfig struct {
	Subject      string
	EventType    event.EventType
	ConsumerName string
	StreamName   string
}

// DefaultSubjects returns the standard command subjects.
func DefaultSubjects() []SubjectConfig {
	return []SubjectConfig{
		{Subject: "cover.commands.policy.create", EventType: event.EventTypePolicyCreated, ConsumerName: "ledger-policy-create", StreamName: CommandStream},
		{Subject: "cover.commands.policy.pay", EventType: event.EventTypePremiumPaid, ConsumerName: "ledger-policy-pay", StreamName: CommandStream},
		{Subject: "cover.commands.claim.file", EventType: event.EventTypeClaimFiled, ConsumerName: "ledger-claim-file", StreamName: CommandStream},
		{Subject: "cover.commands.claim.adjudicate", EventType: event.EventTypeClaimAdjudicated, ConsumerName: "ledger-claim-adjudicate", StreamName: CommandStream},
		{Subject: "cover.commands.warranty.create", EventType: event.EventTypeWarrantyIssued, ConsumerName: "ledger-warranty-create", StreamName: CommandStream},
		{Subject: "cover.commands.admin.year", EventType: event.EventTypeYearAdvanced, ConsumerName: "ledger-admin-year", StreamName: CommandStream},
		{Subject: "cover.commands.admin.transfer", EventType: event.EventTypeAdminTransferred, ConsumerName: "ledger-admin-transfer", StreamName: CommandStream},
	}
}

func NewNATSSubscriber(js jetstream.JetStream, eventChan chan<- RawEvent, logger zerolog.Logger) *NATSSubscriber {
	return &NATSSubscriber{
		js:        js,
		eventChan: eventChan,
		logger:    logger,
	}
}

// Subscribe creates JetStream consumers for all configured subjects.
// Consumers use explicit ACK, max_deliver=5, ack_wait=30s.
func (ns *NATSSubscriber) Subscribe(ctx context.Context, subjects []SubjectConfig) error {
	for _, cfg := range subjects {
		consumer, err := ns.js.CreateOrUpdateConsumer(ctx, cfg.StreamName, jetstream.ConsumerConfig{
			Durable:       cfg.ConsumerName,
			FilterSubject: cfg.Subject,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       30 * time.Second,
			MaxDeliver:    5,
			DeliverPolicy: jetstream.DeliverAllPolicy,
		})
		if err != nil {
			return fmt.Errorf("create consumer %s: %w", cfg.ConsumerName, err)
		}

		eventType := cfg.EventType
		consumerContext, err := consumer.Consume(func(msg jetstream.Msg) {
			raw := RawEvent{
				Subject:   msg.Subject(),
				EventType: eventType,
				Data:      msg.Data(),
				Timestamp: time.Now(),
				AckFunc:   func() { _ = msg.Ack() },
				NakFunc:   func() { _ = msg.Nak() },
				TermFunc:  func() { _ = msg.Term() },
			}

			select {
			case ns.eventChan <- raw:
			case <-ctx.Done():
				_ = msg.Nak()
			}
		})
		if err != nil {
			return fmt.Errorf("consume %s: %w", cfg.ConsumerName, err)
		}

		ns.consumers = append(ns.consumers, consumerContext)
		ns.logger.Info().Str("subject", cfg.Subject).Str("consumer", cfg.ConsumerName).Msg("subscribed")
	}

	return nil
}

// EnsureStreams creates the command and outbound event streams.
// Streams use FileStorage, retention=Limits, max_age=72h.
func EnsureStreams(ctx context.Context, js jetstream.JetStream, logger zerolog.Logger) error {
	streams := []jetstream.StreamConfig{
		{
			Name:      CommandStream,
			Subjects:  []string{"cover.commands.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:       EventStream,
			Subjects:   []string{"cover.ledger.events.>"},
			Storage:    jetstream.FileStorage,
			Retention:  jetstream.LimitsPolicy,
			MaxAge:     72 * time.Hour,
			Replicas:   1,
			Duplicates: 10 * time.Minute,
		},
	}

	for _, cfg := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
		logger.Info().Str("stream", cfg.Name).Msg("ensured stream")
	}

	return nil
}

// Stop gracefully stops all consumers.
func (ns *NATSSubscriber) Stop() {
	for _, cc := range ns.consumers {
		cc.Stop()
	}
	ns.logger.Info().Msg("NATS subscribers stopped")
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string, logger zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.Name("coverledger"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
