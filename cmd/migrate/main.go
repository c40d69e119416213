// Package main provides the CoverLedger schema migration CLI.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"CoverLedger/internal/config"
	"CoverLedger/internal/observability"
	"CoverLedger/internal/persistence"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	dsn     string
	dir     string
	timeout time.Duration
}

func rootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the CoverLedger Postgres schema",
		Long: `Apply, roll back or inspect CoverLedger schema migrations.

The DSN defaults to the service configuration (COVER_CONFIG_FILE and
COVER_POSTGRES_DSN). Migrations default to the set embedded in the binary.

Examples:
  migrate up
  migrate down
  migrate status --dsn postgres://localhost:5432/coverledger?sslmode=disable
  migrate up --dir ./internal/persistence/migrations
`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.dsn, "dsn", "", "Postgres connection string (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.dir, "dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", time.Minute, "Overall timeout")

	cmd.AddCommand(upCmd(opts), downCmd(opts), statusCmd(opts))
	return cmd
}

func upCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(opts, func(ctx context.Context, m *persistence.Migrator) error {
				n, err := m.Up(ctx)
				if err != nil {
					return fmt.Errorf("migrate up: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", n)
				return nil
			})
		},
	}
}

func downCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "down",
		Short: "Roll back the last applied migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(opts, func(ctx context.Context, m *persistence.Migrator) error {
				rolledBack, err := m.Down(ctx)
				if err != nil {
					return fmt.Errorf("migrate down: %w", err)
				}
				if !rolledBack {
					fmt.Fprintln(cmd.OutOrStdout(), "nothing to roll back")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), "rolled back last migration")
				return nil
			})
		},
	}
}

func statusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List migrations and whether each is applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(opts, func(ctx context.Context, m *persistence.Migrator) error {
				status, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("migrate status: %w", err)
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "VERSION\tFILE\tAPPLIED")
				for _, s := range status {
					applied := "no"
					if s.Applied {
						applied = s.AppliedAt.Format(time.RFC3339)
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Version, s.Filename, applied)
				}
				return tw.Flush()
			})
		},
	}
}

func withMigrator(opts *options, fn func(context.Context, *persistence.Migrator) error) error {
	dsn := opts.dsn
	if dsn == "" {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		dsn = cfg.Postgres.DSN
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping db: %w", err)
	}

	var fsys fs.FS = persistence.MigrationsFS()
	if opts.dir != "" {
		fsys = os.DirFS(opts.dir)
	}

	logger := observability.NewLogger("migrate")
	return fn(ctx, persistence.NewMigrator(db, fsys, logger))
}
