package oracle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingOracle struct {
	calls int
	value int64
	err   error
}

func (c *countingOracle) InitialValue(ctx context.Context, instrumentID, brand string) (int64, error) {
	c.calls++
	return c.value, c.err
}

func TestFixed_DefaultsToReferenceValue(t *testing.T) {
	v, err := NewFixed(0).InitialValue(context.Background(), "any", "brand")
	require.NoError(t, err)
	assert.Equal(t, DefaultInitialValue, v)

	v, _ = NewFixed(42).InitialValue(context.Background(), "any", "brand")
	assert.Equal(t, int64(42), v)
}

func TestCached_HitsUntilExpiry(t *testing.T) {
	inner := &countingOracle{value: 7}
	c := NewCached(inner, time.Minute, nil)
	now := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return now }

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		v, err := c.InitialValue(ctx, "violin-1", "Stradivari")
		require.NoError(t, err)
		assert.Equal(t, int64(7), v)
	}
	assert.Equal(t, 1, inner.calls)

	now = now.Add(2 * time.Minute)
	_, err := c.InitialValue(ctx, "violin-1", "Stradivari")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)

	c.Invalidate("violin-1", "Stradivari")
	_, _ = c.InitialValue(ctx, "violin-1", "Stradivari")
	assert.Equal(t, 3, inner.calls)
}

func TestCached_DoesNotCacheErrors(t *testing.T) {
	inner := &countingOracle{err: ErrPriceUnavailable}
	c := NewCached(inner, time.Minute, nil)

	ctx := context.Background()
	_, err := c.InitialValue(ctx, "x", "y")
	assert.True(t, errors.Is(err, ErrPriceUnavailable))
	_, _ = c.InitialValue(ctx, "x", "y")
	assert.Equal(t, 2, inner.calls)
}

func TestCached_ZeroTTLPassesThrough(t *testing.T) {
	inner := &countingOracle{value: 1}
	c := NewCached(inner, 0, nil)

	_, _ = c.InitialValue(context.Background(), "x", "y")
	_, _ = c.InitialValue(context.Background(), "x", "y")
	assert.Equal(t, 2, inner.calls)
}

func TestPriceKey(t *testing.T) {
	assert.Equal(t, "cover:price:Stradivari:violin-1", PriceKey("Stradivari", "violin-1"))
}
