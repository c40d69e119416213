package query

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"

	"CoverLedger/internal/ledger"
	"CoverLedger/internal/state"
)

// ErrNotFound is returned when a projection row does not exist (yet).
var ErrNotFound = errors.New("not found")

// DefaultPageSize bounds list queries when the caller passes no limit.
const DefaultPageSize = 100

// QueryService provides read-only access to projection tables for
// back-office reads. Responses carry as_of_sequence for freshness; the
// authoritative state is the core itself.
type QueryService struct {
	db          *sql.DB
	initialFund int64
}

// NewQueryService needs the ledger's initial fund to reconcile the fund
// projection against the journals, since the genesis seed is not journaled
// in the event log.
func NewQueryService(db *sql.DB, initialFund int64) *QueryService {
	return &QueryService{db: db, initialFund: initialFund}
}

// GetPolicy returns one projected policy.
func (qs *QueryService) GetPolicy(ctx context.Context, policyID uint64) (*PolicyView, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	p := PolicyView{AsOfSequence: asOfSeq}
	err = qs.db.QueryRowContext(ctx, policySelect+` WHERE policy_id = $1`, int64(policyID)).
		Scan(policyDest(&p)...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("policy %d: %w", policyID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPoliciesByOwner pages an owner's policies in id order.
func (qs *QueryService) ListPoliciesByOwner(
	ctx context.Context,
	owner state.Principal,
	limit int,
	afterID uint64,
) ([]PolicyView, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := qs.db.QueryContext(ctx,
		policySelect+` WHERE owner = $1 AND policy_id > $2 ORDER BY policy_id LIMIT $3`,
		string(owner), int64(afterID), pageSize(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	policies := make([]PolicyView, 0)
	for rows.Next() {
		p := PolicyView{AsOfSequence: asOfSeq}
		if err := rows.Scan(policyDest(&p)...); err != nil {
			return nil, err
		}
		policies = append(policies, p)
	}
	return policies, rows.Err()
}

// GetClaim returns one projected claim.
func (qs *QueryService) GetClaim(ctx context.Context, claimID uint64) (*ClaimView, error) {
	return qs.getClaimWhere(ctx, `claim_id = $1`, int64(claimID))
}

// GetClaimByPolicy returns the claim filed against a policy, if any.
func (qs *QueryService) GetClaimByPolicy(ctx context.Context, policyID uint64) (*ClaimView, error) {
	return qs.getClaimWhere(ctx, `policy_id = $1`, int64(policyID))
}

func (qs *QueryService) getClaimWhere(ctx context.Context, where string, arg any) (*ClaimView, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	c := ClaimView{AsOfSequence: asOfSeq}
	var evidence []byte
	err = qs.db.QueryRowContext(ctx, claimSelect+` WHERE `+where, arg).
		Scan(claimDest(&c, &evidence)...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("claim: %w", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	c.EvidenceHash = hex.EncodeToString(evidence)
	return &c, nil
}

// ListClaims pages claims in id order, optionally filtered by status.
func (qs *QueryService) ListClaims(ctx context.Context, status *string, limit int, afterID uint64) ([]ClaimView, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	query := claimSelect + ` WHERE claim_id > $1`
	args := []any{int64(afterID)}
	argIdx := 2

	if status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, *status)
		argIdx++
	}

	query += " ORDER BY claim_id"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, pageSize(limit))

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	claims := make([]ClaimView, 0)
	for rows.Next() {
		c := ClaimView{AsOfSequence: asOfSeq}
		var evidence []byte
		if err := rows.Scan(claimDest(&c, &evidence)...); err != nil {
			return nil, err
		}
		c.EvidenceHash = hex.EncodeToString(evidence)
		claims = append(claims, c)
	}
	return claims, rows.Err()
}

// GetWarranty returns one projected warranty.
func (qs *QueryService) GetWarranty(ctx context.Context, warrantyID uint64) (*WarrantyView, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	w := WarrantyView{AsOfSequence: asOfSeq}
	err = qs.db.QueryRowContext(ctx, `
		SELECT warranty_id, owner, instrument_id, brand, guarantee_percentage,
		       start_date, duration_years, active, last_sequence, updated_at
		FROM projections.warranties
		WHERE warranty_id = $1
	`, int64(warrantyID)).Scan(
		&w.WarrantyID, &w.Owner, &w.InstrumentID, &w.Brand, &w.GuaranteePercentage,
		&w.StartDate, &w.DurationYears, &w.Active, &w.LastSequence, &w.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("warranty %d: %w", warrantyID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// GetFund returns the projected fund row.
func (qs *QueryService) GetFund(ctx context.Context) (*FundView, error) {
	var f FundView
	err := qs.db.QueryRowContext(ctx, `
		SELECT balance, current_year, admin, last_sequence, updated_at
		FROM projections.fund WHERE id = 1
	`).Scan(&f.Balance, &f.CurrentYear, &f.Admin, &f.LastSequence, &f.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("fund: %w", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// GetJournalHistory returns journal entries touching an account, newest first.
func (qs *QueryService) GetJournalHistory(
	ctx context.Context,
	accountPath string,
	limit int,
	beforeSequence *int64,
) ([]JournalHistoryEntry, error) {
	query := `
		SELECT journal_id, batch_id, event_ref, sequence,
		       debit_account, credit_account, amount, journal_type, created_at
		FROM event_log.journals
		WHERE (debit_account = $1 OR credit_account = $1)
	`
	args := []any{accountPath}
	argIdx := 2

	if beforeSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *beforeSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, pageSize(limit))

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]JournalHistoryEntry, 0)
	for rows.Next() {
		var e JournalHistoryEntry
		if err := rows.Scan(
			&e.JournalID, &e.BatchID, &e.EventRef, &e.Sequence,
			&e.DebitAccount, &e.CreditAccount, &e.Amount, &e.JournalType, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- Admin APIs ---

// VerifyIntegrity checks sequence density, hash chain continuity, and the
// fund projection against the journal sum.
func (qs *QueryService) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	if err := qs.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) FROM event_log.events`,
	).Scan(&report.LatestSequence); err != nil {
		return nil, err
	}

	gaps, err := qs.collectSequences(ctx, `
		SELECT e.sequence FROM event_log.events e
		WHERE e.sequence > 1
		  AND NOT EXISTS (SELECT 1 FROM event_log.events p WHERE p.sequence = e.sequence - 1)
		ORDER BY e.sequence
		LIMIT 10
	`)
	if err != nil {
		return nil, fmt.Errorf("sequence gaps: %w", err)
	}
	report.SequenceGaps = gaps

	breaks, err := qs.collectSequences(ctx, `
		SELECT e.sequence FROM event_log.events e
		JOIN event_log.events p ON p.sequence = e.sequence - 1
		WHERE e.prev_hash <> p.state_hash
		ORDER BY e.sequence
		LIMIT 10
	`)
	if err != nil {
		return nil, fmt.Errorf("hash chain: %w", err)
	}
	report.HashChainBreaks = breaks

	fund, err := qs.GetFund(ctx)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return nil, err
	default:
		journaled, err := qs.journaledFund(ctx, fund.LastSequence)
		if err != nil {
			return nil, fmt.Errorf("fund journals: %w", err)
		}
		if journaled != fund.Balance {
			report.Fund = &FundMismatch{Projected: fund.Balance, Journaled: journaled}
		}
	}

	report.IsHealthy = len(report.SequenceGaps) == 0 &&
		len(report.HashChainBreaks) == 0 &&
		report.Fund == nil
	return report, nil
}

// journaledFund is initialFund plus fund debits minus fund credits up to seq.
func (qs *QueryService) journaledFund(ctx context.Context, seq int64) (int64, error) {
	fundPath := ledger.InsuranceFundAccount().AccountPath()
	var net int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(CASE WHEN debit_account = $1 THEN amount ELSE -amount END), 0)
		FROM event_log.journals
		WHERE (debit_account = $1 OR credit_account = $1) AND sequence <= $2
	`, fundPath, seq).Scan(&net)
	if err != nil {
		return 0, err
	}
	return qs.initialFund + net, nil
}

// --- helpers ---

const policySelect = `
	SELECT policy_id, owner, instrument_id, brand, coverage_amount, premium_paid,
	       start_date, end_date, active, last_sequence, updated_at
	FROM projections.policies`

func policyDest(p *PolicyView) []any {
	return []any{
		&p.PolicyID, &p.Owner, &p.InstrumentID, &p.Brand, &p.CoverageAmount, &p.PremiumPaid,
		&p.StartDate, &p.EndDate, &p.Active, &p.LastSequence, &p.UpdatedAt,
	}
}

const claimSelect = `
	SELECT claim_id, policy_id, claim_amount, claim_date, reason, status, approved,
	       evidence_hash, last_sequence, updated_at
	FROM projections.claims`

func claimDest(c *ClaimView, evidence *[]byte) []any {
	return []any{
		&c.ClaimID, &c.PolicyID, &c.ClaimAmount, &c.ClaimDate, &c.Reason, &c.Status, &c.Approved,
		evidence, &c.LastSequence, &c.UpdatedAt,
	}
}

func (qs *QueryService) collectSequences(ctx context.Context, query string) ([]int64, error) {
	rows, err := qs.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var seqs []int64
	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		seqs = append(seqs, seq)
	}
	return seqs, rows.Err()
}

func (qs *QueryService) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT last_sequence FROM projections.watermark WHERE worker_id = 'main'
	`).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return seq, err
}

func pageSize(limit int) int {
	if limit <= 0 || limit > DefaultPageSize {
		return DefaultPageSize
	}
	return limit
}
