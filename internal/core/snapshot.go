package core

import (
	"bytes"
	"fmt"

	"CoverLedger/internal/event"
	"CoverLedger/internal/ledger"
	"CoverLedger/internal/state"
)

// SnapshotState holds the serializable in-memory state for restore.
// Balances are keyed by account path so the struct encodes as plain JSON.
type SnapshotState struct {
	Sequence    int64              `json:"sequence"` // last processed
	StateHash   [32]byte           `json:"state_hash"`
	Admin       state.Principal    `json:"admin"`
	CurrentYear int64              `json:"current_year"`
	Balances    map[string]int64   `json:"balances"`
	Records     state.Records      `json:"records"`
	Idempotency []IdempotencyEntry `json:"idempotency"`
}

// CreateSnapshotState captures the current in-memory state for persistence.
func (c *DeterministicCore) CreateSnapshotState() *SnapshotState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	balances := make(map[string]int64)
	for key, balance := range c.balanceTracker.Snapshot() {
		balances[key.AccountPath()] = balance
	}

	return &SnapshotState{
		Sequence:    c.sequence - 1,
		StateHash:   c.hasher.GetPrevHash(),
		Admin:       c.admin,
		CurrentYear: c.currentYear,
		Balances:    balances,
		Records:     c.store.Export(),
		Idempotency: c.idempotency.lru.Entries(),
	}
}

// RestoreFromSnapshot replaces the core's in-memory state with a snapshot.
// On warm restart: restore the latest snapshot, then replay later events.
func (c *DeterministicCore) RestoreFromSnapshot(snap *SnapshotState) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()

	if snap.Admin == "" {
		return fmt.Errorf("restore snapshot %d: empty admin", snap.Sequence)
	}

	balances := make(map[ledger.AccountKey]int64, len(snap.Balances))
	for path, balance := range snap.Balances {
		key, err := ledger.ParseAccountPath(path)
		if err != nil {
			return fmt.Errorf("restore snapshot %d: %w", snap.Sequence, err)
		}
		balances[key] = balance
	}

	store := state.NewStore(c.store.MaxRecords())
	if err := store.Import(snap.Records); err != nil {
		return fmt.Errorf("restore snapshot %d: %w", snap.Sequence, err)
	}

	c.store = store
	c.balanceTracker.Reset()
	for key, balance := range balances {
		c.balanceTracker.SetBalance(key, balance)
	}
	if err := c.validator.ValidateAll(); err != nil {
		return fmt.Errorf("restore snapshot %d: %w", snap.Sequence, err)
	}

	c.sequence = snap.Sequence + 1
	c.hasher.SetPrevHash(snap.StateHash)
	c.admin = snap.Admin
	c.currentYear = snap.CurrentYear
	c.idempotency.lru.WarmFromEntries(snap.Idempotency)

	c.updateStateGauges()
	return nil
}

// WarmLRU loads recent idempotency entries into the LRU cache,
// avoiding cold-path DB lookups for recently processed commands.
func (c *DeterministicCore) WarmLRU(entries []IdempotencyEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.idempotency.lru.WarmFromEntries(entries)
}

// ReplayEnvelope re-applies a persisted command without emitting it and
// verifies that it lands on the same sequence and state hash.
func (c *DeterministicCore) ReplayEnvelope(env *event.EventEnvelope) error {
	evt, err := event.Unmarshal(env.EventType, env.Payload)
	if err != nil {
		return fmt.Errorf("replay seq %d: %w", env.Sequence, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()

	if env.Sequence != c.sequence {
		return fmt.Errorf("replay seq %d: core expects %d", env.Sequence, c.sequence)
	}

	if _, _, err := c.process(evt, true); err != nil {
		return fmt.Errorf("replay seq %d: command rejected: %w", env.Sequence, err)
	}

	got := c.hasher.GetPrevHash()
	if !bytes.Equal(got[:], env.StateHash[:]) {
		return fmt.Errorf("replay seq %d: state hash mismatch (got %x, want %x)", env.Sequence, got, env.StateHash)
	}
	return nil
}
