//go:build integration

package testutil

import (
	"context"
	"testing"
	"time"

	"CoverLedger/internal/core"
	"CoverLedger/internal/observability"
	"CoverLedger/internal/persistence"
	"CoverLedger/internal/projection"
	"CoverLedger/internal/testutil/containers"
)

// MigratedPostgres starts a Postgres container with every migration applied.
func MigratedPostgres(t *testing.T) *containers.PostgresContainer {
	t.Helper()

	pg := containers.NewPostgresContainer(t)
	m := persistence.NewMigrator(pg.DB, persistence.MigrationsFS(), observability.NewNopLogger())
	if _, err := m.Up(context.Background()); err != nil {
		t.Fatalf("migrate up: %v", err)
	}
	return pg
}

// Flush closes the core's output channels and runs the persistence and
// projection workers until both have drained. Either channel may be nil.
func Flush(t *testing.T, pg *containers.PostgresContainer, persistCh, projCh chan core.CoreOutput) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	logger := observability.NewNopLogger()

	if persistCh != nil {
		close(persistCh)
		w := persistence.NewPersistenceWorker(pg.DB, persistCh, 16, 10*time.Millisecond, nil, logger)
		if err := w.Run(ctx); err != nil {
			t.Fatalf("persistence worker: %v", err)
		}
	}
	if projCh != nil {
		close(projCh)
		if err := projection.NewProjectionWorker(pg.DB, projCh, nil, logger).Run(ctx); err != nil {
			t.Fatalf("projection worker: %v", err)
		}
	}
}
