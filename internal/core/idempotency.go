package core

import (
	"container/list"
	"errors"
	"fmt"

	"CoverLedger/internal/event"
	"CoverLedger/internal/observability"
)

// ErrDedupUnavailable rejects a command whose idempotency key could not be
// checked against the event log. The command is not applied; retry later.
var ErrDedupUnavailable = errors.New("idempotency lookup unavailable")

// IdempotencyChecker implements two-tier deduplication
type IdempotencyChecker struct {
	// Tier 1: In-memory LRU
	lru *IdempotencyLRU

	// Tier 2: Postgres event log (injected via interface, may be nil)
	dbChecker DBIdempotencyChecker

	metrics *observability.Metrics
}

// DBIdempotencyChecker is the interface for Postgres dedup lookup. found
// reports whether the key is in the event log; outcome is what the original
// command produced.
type DBIdempotencyChecker interface {
	LookupOutcome(eventType string, idempotencyKey string) (outcome event.Outcome, found bool, err error)
}

// IdempotencyEntry is one remembered key and the outcome it produced.
type IdempotencyEntry struct {
	Key     string        `json:"key"`
	Outcome event.Outcome `json:"outcome"`
}

func NewIdempotencyChecker(capacity int, dbChecker DBIdempotencyChecker, metrics *observability.Metrics) *IdempotencyChecker {
	return &IdempotencyChecker{
		lru:       NewIdempotencyLRU(capacity),
		dbChecker: dbChecker,
		metrics:   metrics,
	}
}

func compositeKey(eventType, idempotencyKey string) string {
	return fmt.Sprintf("%s:%s", eventType, idempotencyKey)
}

// Lookup checks if event has been processed (two-tier lookup) and returns
// the original outcome when it has. A failed tier-2 lookup returns
// ErrDedupUnavailable: the command may be a redelivery, so it must not run.
func (ic *IdempotencyChecker) Lookup(eventType string, idempotencyKey string) (event.Outcome, bool, error) {
	key := compositeKey(eventType, idempotencyKey)

	// Tier 1: LRU check (hot path)
	if outcome, ok := ic.lru.Get(key); ok {
		ic.recordDuplicate(eventType, "lru")
		return outcome, true, nil
	}

	// Tier 2: Postgres check (cold path)
	if ic.dbChecker != nil {
		outcome, found, err := ic.dbChecker.LookupOutcome(eventType, idempotencyKey)
		if err != nil {
			if ic.metrics != nil {
				ic.metrics.DedupTier2Errors.Inc()
			}
			return event.Outcome{}, false, fmt.Errorf("%w: %s: %v", ErrDedupUnavailable, key, err)
		}

		if found {
			ic.recordDuplicate(eventType, "postgres")
			ic.lru.Add(key, outcome)
			return outcome, true, nil
		}
	}

	return event.Outcome{}, false, nil
}

// MarkProcessed remembers key and its outcome after successful processing
func (ic *IdempotencyChecker) MarkProcessed(eventType string, idempotencyKey string, outcome event.Outcome) {
	ic.lru.Add(compositeKey(eventType, idempotencyKey), outcome)
	if ic.metrics != nil {
		ic.metrics.DedupLRUSize.Set(float64(ic.lru.Size()))
	}
}

func (ic *IdempotencyChecker) recordDuplicate(eventType, tier string) {
	if ic.metrics != nil {
		ic.metrics.IdempotencyDuplicates.WithLabelValues(eventType, tier).Inc()
	}
}

// --- LRU Implementation ---

// IdempotencyLRU is an LRU cache of idempotency keys and their outcomes.
// Not thread-safe; only accessed under the core's write lock.
type IdempotencyLRU struct {
	capacity int
	cache    map[string]*list.Element
	lruList  *list.List

	evictions int64
}


func NewIdempotencyLRU(capacity int) *IdempotencyLRU {
	if capacity <= 0 {
		capacity = 1
	}
	return &IdempotencyLRU{
		capacity: capacity,
		cache:    make(map[string]*list.Element, capacity),
		lruList:  list.New(),
	}
}

// Get returns the outcome stored for key (promotes to front)
func (lru *IdempotencyLRU) Get(key string) (event.Outcome, bool) {
	elem, exists := lru.cache[key]
	if !exists {
		return event.Outcome{}, false
	}
	lru.lruList.MoveToFront(elem)
	return elem.Value.(*IdempotencyEntry).Outcome, true
}

// Contains checks if key exists (promotes to front)
func (lru *IdempotencyLRU) Contains(key string) bool {
	_, ok := lru.Get(key)
	return ok
}

// Add inserts a key (or promotes and updates it if it exists)
func (lru *IdempotencyLRU) Add(key string, outcome event.Outcome) {
	outcome.Duplicate = false
	if elem, exists := lru.cache[key]; exists {
		elem.Value.(*IdempotencyEntry).Outcome = outcome
		lru.lruList.MoveToFront(elem)
		return
	}

	elem := lru.lruList.PushFront(&IdempotencyEntry{Key: key, Outcome: outcome})
	lru.cache[key] = elem

	if lru.lruList.Len() > lru.capacity {
		lru.evictOldest()
	}
}

func (lru *IdempotencyLRU) evictOldest() {
	elem := lru.lruList.Back()
	if elem != nil {
		lru.lruList.Remove(elem)
		entry := elem.Value.(*IdempotencyEntry)
		delete(lru.cache, entry.Key)
		lru.evictions++
	}
}

// WarmFromEntries loads composite keys, oldest first, so the most recent key
// ends up most recently used.
func (lru *IdempotencyLRU) WarmFromEntries(entries []IdempotencyEntry) {
	for _, e := range entries {
		lru.Add(e.Key, e.Outcome)
	}
}

// Entries returns entries from least to most recently used, the order
// WarmFromEntries expects.
func (lru *IdempotencyLRU) Entries() []IdempotencyEntry {
	entries := make([]IdempotencyEntry, 0, lru.lruList.Len())
	for elem := lru.lruList.Back(); elem != nil; elem = elem.Prev() {
		entries = append(entries, *elem.Value.(*IdempotencyEntry))
	}
	return entries
}

// Size returns current number of entries
func (lru *IdempotencyLRU) Size() int {
	return lru.lruList.Len()
}

// Evictions returns total evictions
func (lru *IdempotencyLRU) Evictions() int64 {
	return lru.evictions
}
