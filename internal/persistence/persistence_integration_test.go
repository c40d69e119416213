//go:build integration

package persistence_test

import (
	"context"
	"testing"
	"time"

	"CoverLedger/internal/core"
	"CoverLedger/internal/event"
	"CoverLedger/internal/observability"
	"CoverLedger/internal/persistence"
	"CoverLedger/internal/state"
	"CoverLedger/internal/testutil/containers"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const admin = state.Principal("admin")

func newCore(t *testing.T, persistChan chan core.CoreOutput, dbChecker core.DBIdempotencyChecker) *core.DeterministicCore {
	t.Helper()
	c, err := core.NewDeterministicCore(core.CoreConfig{
		Admin:       admin,
		InitialFund: 1_000_000,
		InitialYear: 2023,
	}, persistChan, nil, dbChecker, nil, nil)
	require.NoError(t, err)
	return c
}

func runScript(t *testing.T, c *core.DeterministicCore) {
	t.Helper()
	quote, err := c.CreatePolicy("alice", "SN-1", "Acme", 50_000, 2023, 5)
	require.NoError(t, err)
	require.NoError(t, c.PayPremium("alice", quote.PolicyID, quote.PremiumRequired))
	claimID, err := c.FileClaim("alice", quote.PolicyID, 25_000, "water damage", state.EvidenceHash{7})
	require.NoError(t, err)
	_, err = c.AdjudicateClaim(admin, claimID, true, "approved")
	require.NoError(t, err)
	_, err = c.CreateWarranty(admin, "bob", "SN-2", "Acme", 80, 2023, 2)
	require.NoError(t, err)
	require.NoError(t, c.SetCurrentYear(admin, 2024))
}

func migrate(t *testing.T, pg *containers.PostgresContainer) {
	t.Helper()
	m := persistence.NewMigrator(pg.DB, persistence.MigrationsFS(), observability.NewNopLogger())
	n, err := m.Up(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func persistAll(t *testing.T, pg *containers.PostgresContainer, ch chan core.CoreOutput) {
	t.Helper()
	close(ch)
	worker := persistence.NewPersistenceWorker(pg.DB, ch, 4, 10*time.Millisecond, nil, observability.NewNopLogger())
	require.NoError(t, worker.Run(context.Background()))
}

func TestMigrator_UpDownStatus(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	ctx := context.Background()
	m := persistence.NewMigrator(pg.DB, persistence.MigrationsFS(), observability.NewNopLogger())

	n, err := m.Up(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = m.Up(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "second up is a no-op")

	status, err := m.Status(ctx)
	require.NoError(t, err)
	require.Len(t, status, 2)
	assert.True(t, status[0].Applied)
	assert.True(t, status[1].Applied)

	rolled, err := m.Down(ctx)
	require.NoError(t, err)
	assert.True(t, rolled)

	status, err = m.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status[0].Applied)
	assert.False(t, status[1].Applied)
}

func TestWorker_PersistsAndRecoverReplays(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	migrate(t, pg)
	ctx := context.Background()

	ch := make(chan core.CoreOutput, 64)
	src := newCore(t, ch, nil)
	runScript(t, src)
	persistAll(t, pg, ch)

	sm := persistence.NewSnapshotManager(pg.DB)
	latest, err := sm.GetLatestSequence(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(6), latest)

	var journals int
	require.NoError(t, pg.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM event_log.journals`).Scan(&journals))
	assert.Equal(t, 2, journals)

	// Cold start: no snapshot, full replay.
	dst := newCore(t, nil, persistence.NewPostgresIdempotencyChecker(pg.DB))
	replayed, err := persistence.Recover(ctx, dst, sm, nil, observability.NewNopLogger())
	require.NoError(t, err)
	assert.Equal(t, int64(6), replayed)
	assert.Equal(t, src.GetStateHash(), dst.GetStateHash())
	assert.Equal(t, src.GetFundBalance(), dst.GetFundBalance())
}

func TestSnapshot_VerifiedThenRestored(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	migrate(t, pg)
	ctx := context.Background()
	sm := persistence.NewSnapshotManager(pg.DB)

	ch := make(chan core.CoreOutput, 64)
	src := newCore(t, ch, nil)
	runScript(t, src)

	snapper := persistence.NewSnapshotter(src, sm, time.Hour, nil, observability.NewNopLogger())
	require.NoError(t, snapper.TakeSnapshot(ctx))

	// Events are not durable yet, so the snapshot stays unverified.
	snap, err := sm.LoadLatestSnapshot(ctx)
	require.NoError(t, err)
	assert.Nil(t, snap)

	persistAll(t, pg, ch)
	require.NoError(t, snapper.TakeSnapshot(ctx))

	snap, err = sm.LoadLatestSnapshot(ctx)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, int64(6), snap.Sequence)

	dst := newCore(t, nil, nil)
	replayed, err := persistence.Recover(ctx, dst, sm, nil, observability.NewNopLogger())
	require.NoError(t, err)
	assert.Zero(t, replayed)
	assert.Equal(t, src.GetStats(), dst.GetStats())
}

func TestPostgresIdempotencyChecker(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	migrate(t, pg)

	ch := make(chan core.CoreOutput, 8)
	c := newCore(t, ch, nil)
	cmd := &event.CreatePolicy{
		RequestID: uuid.New(), Principal: "alice",
		InstrumentID: "SN-1", Brand: "Acme", CoverageAmount: 50_000, StartDate: 2023, DurationYears: 5,
	}
	first, err := c.ProcessEvent(cmd)
	require.NoError(t, err)
	persistAll(t, pg, ch)

	checker := persistence.NewPostgresIdempotencyChecker(pg.DB)
	stored, found, err := checker.LookupOutcome(event.EventTypePolicyCreated.String(), cmd.IdempotencyKey())
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, first, stored)

	_, found, err = checker.LookupOutcome(event.EventTypePolicyCreated.String(), uuid.NewString())
	require.NoError(t, err)
	assert.False(t, found)

	// A fresh core backed by the event log answers the redelivery with the
	// original outcome.
	fresh := newCore(t, nil, checker)
	out, err := fresh.ProcessEvent(cmd)
	require.NoError(t, err)
	assert.True(t, out.Duplicate)
	assert.Equal(t, first.PolicyID, out.PolicyID)
	assert.Equal(t, int64(5000), out.PremiumRequired)
	assert.Zero(t, fresh.GetStats().Policies)
}
