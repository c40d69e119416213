//go:build integration

package oracle_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"CoverLedger/internal/oracle"
	"CoverLedger/internal/testutil/containers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisOracle_PublishThenRead(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()

	o := oracle.NewRedis(rc.Client)
	require.NoError(t, o.Publish(ctx, "violin-1", "Stradivari", 250_000, time.Now()))

	v, err := o.InitialValue(ctx, "violin-1", "Stradivari")
	require.NoError(t, err)
	assert.Equal(t, int64(250_000), v)
	require.NoError(t, o.Health(ctx))
}

func TestRedisOracle_MissUsesFallback(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()

	strict := oracle.NewRedis(rc.Client)
	_, err := strict.InitialValue(ctx, "unknown", "brand")
	assert.True(t, errors.Is(err, oracle.ErrPriceUnavailable))

	lenient := oracle.NewRedis(rc.Client, oracle.WithFallback(oracle.NewFixed(0)))
	v, err := lenient.InitialValue(ctx, "unknown", "brand")
	require.NoError(t, err)
	assert.Equal(t, oracle.DefaultInitialValue, v)
}

func TestRedisOracle_RejectsStaleValue(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()

	now := time.Unix(1_800_000_000, 0)
	o := oracle.NewRedis(rc.Client,
		oracle.WithMaxAge(time.Hour),
		oracle.WithClock(func() time.Time { return now }),
	)

	require.NoError(t, o.Publish(ctx, "cello", "Amati", 90_000, now.Add(-2*time.Hour)))
	_, err := o.InitialValue(ctx, "cello", "Amati")
	assert.True(t, errors.Is(err, oracle.ErrStalePrice))

	require.NoError(t, o.Publish(ctx, "cello", "Amati", 90_000, now.Add(-time.Minute)))
	v, err := o.InitialValue(ctx, "cello", "Amati")
	require.NoError(t, err)
	assert.Equal(t, int64(90_000), v)
}
