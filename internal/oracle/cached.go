package oracle

import (
	"context"
	"sync"
	"time"

	"CoverLedger/internal/observability"
)

type cachedPrice struct {
	value     int64
	expiresAt time.Time
}

// Cached keeps successful lookups of an inner oracle for a TTL.
// Errors are never cached.
type Cached struct {
	inner   PriceOracle
	ttl     time.Duration
	now     func() time.Time
	metrics *observability.Metrics

	mu      sync.Mutex
	entries map[string]cachedPrice
}

func NewCached(inner PriceOracle, ttl time.Duration, metrics *observability.Metrics) *Cached {
	return &Cached{
		inner:   inner,
		ttl:     ttl,
		now:     time.Now,
		metrics: metrics,
		entries: make(map[string]cachedPrice),
	}
}

func (c *Cached) InitialValue(ctx context.Context, instrumentID, brand string) (int64, error) {
	if c.ttl <= 0 {
		return c.inner.InitialValue(ctx, instrumentID, brand)
	}

	key := PriceKey(brand, instrumentID)
	now := c.now()

	c.mu.Lock()
	entry, ok := c.entries[key]
	c.mu.Unlock()
	if ok && now.Before(entry.expiresAt) {
		recordLookup(c.metrics, "cache", "hit")
		return entry.value, nil
	}

	value, err := c.inner.InitialValue(ctx, instrumentID, brand)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	c.entries[key] = cachedPrice{value: value, expiresAt: now.Add(c.ttl)}
	c.mu.Unlock()
	recordLookup(c.metrics, "cache", "miss")
	return value, nil
}

// Invalidate drops a cached value, e.g. after a republish.
func (c *Cached) Invalidate(instrumentID, brand string) {
	c.mu.Lock()
	delete(c.entries, PriceKey(brand, instrumentID))
	c.mu.Unlock()
}
