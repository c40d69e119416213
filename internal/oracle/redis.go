package oracle

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"CoverLedger/internal/observability"

	"github.com/redis/go-redis/v9"
)

const priceKeyPrefix = "cover:price:"

// PriceKey is the Redis key holding an instrument's value. The companion
// key PriceKey+":ts" holds the unix second it was published.
func PriceKey(brand, instrumentID string) string {
	return priceKeyPrefix + brand + ":" + instrumentID
}

// Redis reads published valuations from Redis.
type Redis struct {
	client   *redis.Client
	fallback PriceOracle
	maxAge   time.Duration
	now      func() time.Time
	metrics  *observability.Metrics
}

// RedisOption configures a Redis oracle.
type RedisOption func(*Redis)

// WithFallback answers misses from another oracle instead of failing.
func WithFallback(fallback PriceOracle) RedisOption {
	return func(r *Redis) { r.fallback = fallback }
}

// WithMaxAge rejects values published longer ago than maxAge. Zero disables
// the check.
func WithMaxAge(maxAge time.Duration) RedisOption {
	return func(r *Redis) { r.maxAge = maxAge }
}

// WithClock overrides time.Now for staleness checks.
func WithClock(now func() time.Time) RedisOption {
	return func(r *Redis) { r.now = now }
}

// WithMetrics records lookups.
func WithMetrics(m *observability.Metrics) RedisOption {
	return func(r *Redis) { r.metrics = m }
}

func NewRedis(client *redis.Client, opts ...RedisOption) *Redis {
	r := &Redis{
		client: client,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// InitialValue reads the value and its publish time in one round trip.
func (r *Redis) InitialValue(ctx context.Context, instrumentID, brand string) (int64, error) {
	key := PriceKey(brand, instrumentID)

	vals, err := r.client.MGet(ctx, key, key+":ts").Result()
	if err != nil {
		recordLookup(r.metrics, "redis", "error")
		return 0, fmt.Errorf("redis price lookup %s: %w", key, err)
	}

	raw, ok := vals[0].(string)
	if !ok {
		return r.miss(ctx, instrumentID, brand)
	}

	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value < 0 {
		recordLookup(r.metrics, "redis", "error")
		return 0, fmt.Errorf("redis price %s: malformed value %q", key, raw)
	}

	if r.maxAge > 0 {
		ts, _ := vals[1].(string)
		publishedAt, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			recordLookup(r.metrics, "redis", "stale")
			return 0, fmt.Errorf("%w: %s has no publish time", ErrStalePrice, key)
		}
		if age := r.now().Sub(time.Unix(publishedAt, 0)); age > r.maxAge {
			recordLookup(r.metrics, "redis", "stale")
			return 0, fmt.Errorf("%w: %s is %s old", ErrStalePrice, key, age.Truncate(time.Second))
		}
	}

	recordLookup(r.metrics, "redis", "hit")
	return value, nil
}

func (r *Redis) miss(ctx context.Context, instrumentID, brand string) (int64, error) {
	if r.fallback == nil {
		recordLookup(r.metrics, "redis", "miss")
		return 0, fmt.Errorf("%w: %s/%s", ErrPriceUnavailable, brand, instrumentID)
	}
	recordLookup(r.metrics, "redis", "fallback")
	return r.fallback.InitialValue(ctx, instrumentID, brand)
}

// Publish stores a valuation and its publish time atomically.
func (r *Redis) Publish(ctx context.Context, instrumentID, brand string, value int64, at time.Time) error {
	if value < 0 {
		return fmt.Errorf("publish price: negative value %d", value)
	}
	key := PriceKey(brand, instrumentID)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, strconv.FormatInt(value, 10), 0)
		pipe.Set(ctx, key+":ts", strconv.FormatInt(at.Unix(), 10), 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("publish price %s: %w", key, err)
	}
	return nil
}

// Health pings Redis.
func (r *Redis) Health(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}
