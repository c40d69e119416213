package projection

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"CoverLedger/internal/core"
	"CoverLedger/internal/ledger"
	"CoverLedger/internal/observability"
	"CoverLedger/internal/state"

	"github.com/rs/zerolog"
)

const workerID = "main"

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// ProjectionWorker updates the read-model tables from core outputs.
// The projection channel is non-blocking with drop, so a gap is possible;
// Rebuild restores the tables from a consistent core snapshot.
type ProjectionWorker struct {
	db        *sql.DB
	inputChan <-chan core.CoreOutput
	metrics   *observability.Metrics
	logger    zerolog.Logger
	lastSeq   int64
}

func NewProjectionWorker(
	db *sql.DB,
	inputChan <-chan core.CoreOutput,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *ProjectionWorker {
	return &ProjectionWorker{
		db:        db,
		inputChan: inputChan,
		metrics:   metrics,
		logger:    logger,
	}
}

// Run starts the projection worker loop.
func (pw *ProjectionWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				return nil
			}

			seq := output.Envelope.Sequence
			if pw.lastSeq != 0 && seq != pw.lastSeq+1 {
				pw.logger.Warn().
					Int64("expected", pw.lastSeq+1).
					Int64("got", seq).
					Msg("projection gap, rebuild recommended")
			}

			start := time.Now()
			if err := pw.Apply(ctx, output); err != nil {
				// Projections are eventually consistent and can be rebuilt
				pw.logger.Warn().Err(err).Int64("sequence", seq).Msg("projection update failed")
				continue
			}
			if pw.metrics != nil {
				pw.metrics.ProjectionUpdateDur.WithLabelValues(output.Envelope.EventType.String()).
					Observe(time.Since(start).Seconds())
				pw.metrics.ProjectionLastSeq.Set(float64(seq))
			}
			pw.lastSeq = seq
		}
	}
}

// Apply writes one output's delta in a single transaction.
func (pw *ProjectionWorker) Apply(ctx context.Context, output core.CoreOutput) error {
	seq := output.Envelope.Sequence

	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	d := output.Delta
	if d.Policy != nil {
		if err := upsertPolicy(ctx, tx, d.Policy, seq); err != nil {
			return fmt.Errorf("policy projection: %w", err)
		}
	}
	if d.Claim != nil {
		if err := upsertClaim(ctx, tx, d.Claim, seq); err != nil {
			return fmt.Errorf("claim projection: %w", err)
		}
	}
	if d.Warranty != nil {
		if err := upsertWarranty(ctx, tx, d.Warranty, seq); err != nil {
			return fmt.Errorf("warranty projection: %w", err)
		}
	}
	if err := upsertFund(ctx, tx, d.FundBalance, d.CurrentYear, d.Admin, seq); err != nil {
		return fmt.Errorf("fund projection: %w", err)
	}
	if err := setWatermark(ctx, tx, seq); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	return tx.Commit()
}

// Rebuild replaces every projection table with the contents of a core
// snapshot. Use after drops or on startup.
func Rebuild(ctx context.Context, db *sql.DB, snap *core.SnapshotState) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`TRUNCATE projections.policies, projections.claims, projections.warranties, projections.fund`,
		`DELETE FROM projections.watermark WHERE worker_id = 'main'`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate failed: %w", err)
		}
	}

	seq := snap.Sequence
	for i := range snap.Records.Policies {
		if err := upsertPolicy(ctx, tx, &snap.Records.Policies[i], seq); err != nil {
			return err
		}
	}
	for i := range snap.Records.Claims {
		if err := upsertClaim(ctx, tx, &snap.Records.Claims[i], seq); err != nil {
			return err
		}
	}
	for i := range snap.Records.Warranties {
		if err := upsertWarranty(ctx, tx, &snap.Records.Warranties[i], seq); err != nil {
			return err
		}
	}

	fund := snap.Balances[ledger.InsuranceFundAccount().AccountPath()]
	if err := upsertFund(ctx, tx, fund, snap.CurrentYear, snap.Admin, seq); err != nil {
		return err
	}
	if err := setWatermark(ctx, tx, seq); err != nil {
		return err
	}

	return tx.Commit()
}

func upsertPolicy(ctx context.Context, ex execer, p *state.Policy, seq int64) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO projections.policies
			(policy_id, owner, instrument_id, brand, coverage_amount, premium_paid,
			 start_date, end_date, active, last_sequence, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (policy_id) DO UPDATE SET
			premium_paid = EXCLUDED.premium_paid,
			active = EXCLUDED.active,
			last_sequence = EXCLUDED.last_sequence,
			updated_at = NOW()
	`, int64(p.ID), string(p.Owner), p.InstrumentID, p.Brand, p.CoverageAmount, p.PremiumPaid,
		p.StartDate, p.EndDate, p.Active, seq)
	return err
}

func upsertClaim(ctx context.Context, ex execer, c *state.Claim, seq int64) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO projections.claims
			(claim_id, policy_id, claim_amount, claim_date, reason, status, approved,
			 evidence_hash, last_sequence, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (claim_id) DO UPDATE SET
			status = EXCLUDED.status,
			approved = EXCLUDED.approved,
			last_sequence = EXCLUDED.last_sequence,
			updated_at = NOW()
	`, int64(c.ID), int64(c.PolicyID), c.ClaimAmount, c.ClaimDate, c.Reason, c.Status, c.Approved,
		c.EvidenceHash[:], seq)
	return err
}

func upsertWarranty(ctx context.Context, ex execer, w *state.Warranty, seq int64) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO projections.warranties
			(warranty_id, owner, instrument_id, brand, guarantee_percentage, start_date,
			 duration_years, active, last_sequence, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (warranty_id) DO UPDATE SET
			active = EXCLUDED.active,
			last_sequence = EXCLUDED.last_sequence,
			updated_at = NOW()
	`, int64(w.ID), string(w.Owner), w.InstrumentID, w.Brand, w.GuaranteePercentage, w.StartDate,
		w.DurationYears, w.Active, seq)
	return err
}

func upsertFund(ctx context.Context, ex execer, balance, year int64, admin state.Principal, seq int64) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO projections.fund (id, balance, current_year, admin, last_sequence, updated_at)
		VALUES (1, $1, $2, $3, $4, NOW())
		ON CONFLICT (id) DO UPDATE SET
			balance = EXCLUDED.balance,
			current_year = EXCLUDED.current_year,
			admin = EXCLUDED.admin,
			last_sequence = EXCLUDED.last_sequence,
			updated_at = NOW()
		WHERE projections.fund.last_sequence <= EXCLUDED.last_sequence
	`, balance, year, string(admin), seq)
	return err
}

func setWatermark(ctx context.Context, ex execer, seq int64) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET last_sequence = EXCLUDED.last_sequence, updated_at = NOW()
	`, workerID, seq)
	return err
}
