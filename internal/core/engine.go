package core

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"CoverLedger/internal/event"
	"CoverLedger/internal/ledger"
	"CoverLedger/internal/observability"
	"CoverLedger/internal/oracle"
	"CoverLedger/internal/state"

	"github.com/rs/zerolog"
)

// genesisRef is the journal reference of the initial fund seed.
const genesisRef = "genesis"

// CoreConfig holds the ledger's construction-time parameters.
type CoreConfig struct {
	Admin               state.Principal
	InitialFund         int64
	InitialYear         int64
	MaxRecords          int
	IdempotencyCapacity int

	// StartSequence is the first sequence assigned (1 on a fresh ledger).
	StartSequence int64

	Logger zerolog.Logger
}

// DeterministicCore is the single-writer coverage ledger.
// Commands are serialized by writeMu from validation through the hand-off to
// the workers, so outputs leave in sequence order. mu guards the state and is
// released before the blocking persist send; queries share its read lock and
// keep running while persistence is backed up.
type DeterministicCore struct {
	writeMu sync.Mutex
	mu      sync.RWMutex

	sequence       int64
	hasher         *StateHasher
	balanceTracker *ledger.BalanceTracker
	journalGen     *ledger.JournalGenerator
	validator      *ledger.InvariantValidator
	fund           *state.InsuranceFund
	store          *state.Store
	idempotency    *IdempotencyChecker
	oracle         oracle.PriceOracle
	metrics        *observability.Metrics
	logger         zerolog.Logger

	admin       state.Principal
	currentYear int64

	persistChan    chan<- CoreOutput
	projectionChan chan<- CoreOutput
}

// CoreOutput is everything downstream workers need about one accepted command.
type CoreOutput struct {
	Envelope *event.EventEnvelope
	Batch    *ledger.Batch
	Delta    RecordDelta
}

// RecordDelta carries the post-apply copies of records the command touched.
type RecordDelta struct {
	Policy      *state.Policy
	Claim       *state.Claim
	Warranty    *state.Warranty
	FundBalance int64
	CurrentYear int64
	Admin       state.Principal
}

// applied is a handler's result. Handlers validate everything before they
// mutate, so a returned error always means nothing changed.
type applied struct {
	batch   *ledger.Batch
	outcome event.Outcome
	delta   RecordDelta
}

func NewDeterministicCore(
	cfg CoreConfig,
	persistChan, projectionChan chan<- CoreOutput,
	dbChecker DBIdempotencyChecker,
	priceOracle oracle.PriceOracle,
	metrics *observability.Metrics,
) (*DeterministicCore, error) {
	if cfg.Admin == "" {
		return nil, errors.New("core: admin principal is required")
	}
	if cfg.InitialFund < 0 {
		return nil, fmt.Errorf("core: negative initial fund %d", cfg.InitialFund)
	}
	if cfg.StartSequence <= 0 {
		cfg.StartSequence = 1
	}
	if cfg.IdempotencyCapacity <= 0 {
		cfg.IdempotencyCapacity = 1_000_000
	}
	if priceOracle == nil {
		priceOracle = oracle.NewFixed(oracle.DefaultInitialValue)
	}

	balanceTracker := ledger.NewBalanceTracker()
	c := &DeterministicCore{
		sequence:       cfg.StartSequence,
		hasher:         NewStateHasher(),
		balanceTracker: balanceTracker,
		journalGen:     ledger.NewJournalGenerator(),
		validator:      ledger.NewInvariantValidator(balanceTracker),
		fund:           state.NewInsuranceFund(),
		store:          state.NewStore(cfg.MaxRecords),
		idempotency:    NewIdempotencyChecker(cfg.IdempotencyCapacity, dbChecker, metrics),
		oracle:         priceOracle,
		metrics:        metrics,
		logger:         cfg.Logger,
		admin:          cfg.Admin,
		currentYear:    cfg.InitialYear,
		persistChan:    persistChan,
		projectionChan: projectionChan,
	}

	if cfg.InitialFund > 0 {
		seed, err := c.journalGen.GenerateFundSeed(genesisRef, 0, cfg.InitialFund)
		if err != nil {
			return nil, fmt.Errorf("core: seed fund: %w", err)
		}
		if err := c.balanceTracker.ApplyBatch(seed); err != nil {
			return nil, fmt.Errorf("core: seed fund: %w", err)
		}
	}

	c.updateStateGauges()
	return c, nil
}

// ProcessEvent is the main processing pipeline. It returns the command's
// outcome, or a domain error (match with errors.Is against state.Err*) when
// the command is rejected. A rejected command changes nothing.
//
// A redelivered command returns the original outcome with Duplicate set.
// When the idempotency key cannot be checked the command is refused with
// ErrDedupUnavailable.
func (c *DeterministicCore) ProcessEvent(evt event.Event) (event.Outcome, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	outcome, output, err := c.process(evt, false)
	c.mu.Unlock()
	if err != nil || output == nil {
		return outcome, err
	}

	c.emit(*output)
	return outcome, nil
}

// process runs one command and returns the output to emit, which is nil for
// a duplicate. In replay mode the command comes from the event log itself,
// so the dedup lookup is skipped.
func (c *DeterministicCore) process(evt event.Event, replay bool) (event.Outcome, *CoreOutput, error) {
	start := time.Now()
	eventType := evt.EventType().String()
	idempotencyKey := evt.IdempotencyKey()

	// Step 1: Idempotency check (two-tier)
	if !replay {
		prior, dup, err := c.idempotency.Lookup(eventType, idempotencyKey)
		if err != nil {
			c.recordRejected(eventType, "dedup_unavailable")
			c.logger.Warn().
				Str("event_type", eventType).
				Str("idempotency_key", idempotencyKey).
				Err(err).
				Msg("command refused, idempotency unknown")
			return event.Outcome{}, nil, err
		}
		if dup {
			c.recordRejected(eventType, "duplicate")
			prior.Duplicate = true
			return prior, nil, nil
		}
	}

	if evt.Caller() == "" {
		c.recordRejected(eventType, state.CodeUnauthorized.String())
		return event.Outcome{}, nil, fmt.Errorf("%w: anonymous caller", state.ErrUnauthorized)
	}

	// Step 2: Encode before any mutation so a codec failure stays a rejection
	payload, err := event.Marshal(evt)
	if err != nil {
		c.recordRejected(eventType, "encode")
		return event.Outcome{}, nil, err
	}

	// Step 3: Validate and apply to records
	res, err := c.dispatchEvent(evt)
	if err != nil {
		reason := state.CodeOf(err).String()
		c.recordRejected(eventType, reason)
		c.logger.Debug().
			Str("event_type", eventType).
			Str("idempotency_key", idempotencyKey).
			Str("reason", reason).
			Err(err).
			Msg("command rejected")
		return event.Outcome{}, nil, err
	}

	// Step 4: Apply money movement
	if !res.batch.IsEmpty() {
		if err := c.validator.ValidateBatchBalance(res.batch); err != nil {
			panic(fmt.Sprintf("FATAL: unbalanced batch: %v", err))
		}
		if err := c.balanceTracker.ApplyBatch(res.batch); err != nil {
			panic(fmt.Sprintf("FATAL: apply batch failed after validation: %v", err))
		}
	}

	// Step 5: Post-checks
	if err := c.validator.ValidateAll(); err != nil {
		panic(fmt.Sprintf("FATAL: invariant violated: %v", err))
	}

	res.delta.FundBalance = c.balanceTracker.FundBalance()
	res.delta.CurrentYear = c.currentYear
	res.delta.Admin = c.admin

	// Step 6: Seal the envelope
	prevHash := c.hasher.GetPrevHash()
	stateHash := c.hasher.ComputeHash(c.sequence, c.computeStateDigest(evt, res))

	envelope := &event.EventEnvelope{
		Sequence:       c.sequence,
		IdempotencyKey: idempotencyKey,
		EventType:      evt.EventType(),
		Caller:         evt.Caller(),
		Year:           c.currentYear,
		Payload:        payload,
		Outcome:        res.outcome,
		StateHash:      stateHash,
		PrevHash:       prevHash,
	}
	output := CoreOutput{
		Envelope: envelope,
		Batch:    res.batch,
		Delta:    res.delta,
	}
	c.sequence++

	// Step 7: Mark as processed (add to LRU)
	c.idempotency.MarkProcessed(eventType, idempotencyKey, res.outcome)

	if c.metrics != nil {
		c.metrics.CoreEventsApplied.WithLabelValues(eventType).Inc()
		c.metrics.CoreEventDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
		c.metrics.CoreSequence.Set(float64(envelope.Sequence))
		for _, j := range res.batch.Journals {
			c.metrics.CoreJournals.WithLabelValues(j.JournalType.String()).Inc()
		}
	}
	c.updateStateGauges()

	return res.outcome, &output, nil
}

// emit hands the output to the workers. Called with writeMu held and mu
// released. The persist send blocks
// (backpressure, no accepted event is lost). The projection send drops when
// the channel is full; projections can be rebuilt from the event log.
func (c *DeterministicCore) emit(output CoreOutput) {
	if c.persistChan != nil {
		c.persistChan <- output
	}

	if c.projectionChan != nil {
		select {
		case c.projectionChan <- output:
		default:
			if c.metrics != nil {
				c.metrics.ProjectionDrops.WithLabelValues("core").Inc()
			}
		}
	}
}

func (c *DeterministicCore) dispatchEvent(evt event.Event) (*applied, error) {
	switch e := evt.(type) {
	case *event.CreatePolicy:
		return c.handleCreatePolicy(e)
	case *event.PayPremium:
		return c.handlePayPremium(e)
	case *event.FileClaim:
		return c.handleFileClaim(e)
	case *event.AdjudicateClaim:
		return c.handleAdjudicateClaim(e)
	case *event.CreateWarranty:
		return c.handleCreateWarranty(e)
	case *event.SetCurrentYear:
		return c.handleSetCurrentYear(e)
	case *event.TransferAdmin:
		return c.handleTransferAdmin(e)
	default:
		return nil, fmt.Errorf("unknown event type: %T", evt)
	}
}

// computeStateDigest serializes everything the command could have changed:
// ledger clock and admin, touched records, and affected account balances.
func (c *DeterministicCore) computeStateDigest(evt event.Event, res *applied) []byte {
	digest := make([]byte, 0, 256)
	digest = append(digest, byte(evt.EventType()))
	digest = appendInt64LE(digest, c.currentYear)
	digest = append(digest, byte(len(c.admin)))
	digest = append(digest, c.admin...)

	if p := res.delta.Policy; p != nil {
		digest = append(digest, p.CanonicalBytes()...)
	}
	if cl := res.delta.Claim; cl != nil {
		digest = append(digest, cl.CanonicalBytes()...)
	}
	if w := res.delta.Warranty; w != nil {
		digest = append(digest, w.CanonicalBytes()...)
	}

	affected := map[ledger.AccountKey]bool{ledger.InsuranceFundAccount(): true}
	for _, j := range res.batch.Journals {
		affected[j.DebitAccount] = true
		affected[j.CreditAccount] = true
	}

	accounts := make([]ledger.AccountKey, 0, len(affected))
	for key := range affected {
		accounts = append(accounts, key)
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].AccountPath() < accounts[j].AccountPath()
	})

	for _, key := range accounts {
		path := key.AccountPath()
		digest = append(digest, byte(len(path)))
		digest = append(digest, path...)
		digest = appendInt64LE(digest, c.balanceTracker.GetBalance(key))
	}

	return digest
}

func appendInt64LE(buf []byte, v int64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}

func (c *DeterministicCore) recordRejected(eventType, reason string) {
	if c.metrics != nil {
		c.metrics.CoreEventsRejected.WithLabelValues(eventType, reason).Inc()
	}
}

func (c *DeterministicCore) updateStateGauges() {
	if c.metrics == nil {
		return
	}
	c.metrics.InsuranceFundBalance.Set(float64(c.balanceTracker.FundBalance()))
	c.metrics.CurrentYear.Set(float64(c.currentYear))
	c.metrics.Records.WithLabelValues("policy").Set(float64(c.store.PolicyCount()))
	c.metrics.Records.WithLabelValues("claim").Set(float64(c.store.ClaimCount()))
	c.metrics.Records.WithLabelValues("warranty").Set(float64(c.store.WarrantyCount()))
}

// requireAdmin fails with ErrUnauthorized unless caller holds the admin role.
func (c *DeterministicCore) requireAdmin(caller state.Principal) error {
	if caller != c.admin {
		return fmt.Errorf("%w: %q is not the admin", state.ErrUnauthorized, caller)
	}
	return nil
}

// GetSequence returns the next sequence number to be assigned.
func (c *DeterministicCore) GetSequence() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sequence
}

// GetStateHash returns the current state hash (chain tip).
func (c *DeterministicCore) GetStateHash() [32]byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hasher.GetPrevHash()
}
