package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"indexcover/internal/types"
)

// ClaimRepository persists claim drafts. Drafts are append-only facts with
// the same existence-check plus insert-complement write path as risk
// events; downstream status transitions happen outside the core.
type ClaimRepository struct {
	db DBTX
}

// NewClaimRepository creates a ClaimRepository backed by the given database
// connection (pool or transaction).
func NewClaimRepository(db DBTX) *ClaimRepository {
	return &ClaimRepository{db: db}
}

const claimColumns = `id, policy_id, product_id, product_version, risk_event_id, region_code, tier_level, payout_percentage, payout_amount, triggered_at, period_start, period_end, status, rules_hash, source`

// ExistingIDs returns the subset of ids already present, as a set.
func (r *ClaimRepository) ExistingIDs(ctx context.Context, ids []string) (map[string]struct{}, error) {
	if len(ids) == 0 {
		return map[string]struct{}{}, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT id FROM claims WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("db: claim existence query failed: %w", err)
	}
	defer rows.Close()

	existing := make(map[string]struct{}, len(ids))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("db: claim id scan failed: %w", err)
		}
		existing[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db: claim existence iteration failed: %w", err)
	}
	return existing, nil
}

// InsertBatch writes the given drafts. The per-period uniqueness constraint
// on (policy_id, triggered_at, tier_level) backs up the deterministic ID
// against concurrent writers. Returns the number of rows actually written.
func (r *ClaimRepository) InsertBatch(ctx context.Context, drafts []types.ClaimDraft) (int, error) {
	if len(drafts) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, d := range drafts {
		batch.Queue(`INSERT INTO claims
			(`+claimColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			ON CONFLICT DO NOTHING`,
			d.ID, d.PolicyID, d.ProductID, d.ProductVersion, d.RiskEventID,
			d.RegionCode, int(d.TierLevel), d.PayoutPercentage, d.PayoutAmount,
			d.TriggeredAt.UTC(), d.PeriodStart.UTC(), d.PeriodEnd.UTC(),
			string(d.Status), d.RulesHash, d.Source,
		)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	written := 0
	for range drafts {
		tag, err := results.Exec()
		if err != nil {
			return written, fmt.Errorf("db: claim insert failed: %w", err)
		}
		written += int(tag.RowsAffected())
	}
	return written, nil
}

// ListByPolicy returns the policy's drafts inside the inclusive range,
// ordered by triggered_at.
func (r *ClaimRepository) ListByPolicy(ctx context.Context, policyID string, start, end time.Time) ([]types.ClaimDraft, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+claimColumns+`
		FROM claims
		WHERE policy_id = $1
		  AND triggered_at >= $2
		  AND triggered_at <= $3
		ORDER BY triggered_at ASC`,
		policyID, start, end)
	if err != nil {
		return nil, fmt.Errorf("db: claim query failed: %w", err)
	}
	defer rows.Close()

	var drafts []types.ClaimDraft
	for rows.Next() {
		d, err := scanClaim(rows)
		if err != nil {
			return nil, fmt.Errorf("db: claim scan failed: %w", err)
		}
		drafts = append(drafts, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db: claim iteration failed: %w", err)
	}
	return drafts, nil
}

// UpdateStatus moves a single draft to a new status. Admin corrections
// only; the calculators never transition drafts.
func (r *ClaimRepository) UpdateStatus(ctx context.Context, id string, status types.ClaimStatus) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE claims SET status = $1 WHERE id = $2`,
		string(status), id)
	if err != nil {
		return fmt.Errorf("db: claim status update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundClaim, "claim not found", nil)
	}
	return nil
}

// DeleteByID removes a single draft. Admin corrections only.
func (r *ClaimRepository) DeleteByID(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM claims WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("db: claim delete failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundClaim, "claim not found", nil)
	}
	return nil
}

// DeleteBefore removes computed drafts older than the cutoff for
// housekeeping. Drafts that advanced past computed are never touched.
func (r *ClaimRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM claims WHERE status = $1 AND triggered_at < $2`,
		string(types.ClaimComputed), cutoff)
	if err != nil {
		return 0, fmt.Errorf("db: claim delete failed: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanClaim(row pgx.Row) (types.ClaimDraft, error) {
	var d types.ClaimDraft
	var tier int
	var status string
	err := row.Scan(
		&d.ID,
		&d.PolicyID,
		&d.ProductID,
		&d.ProductVersion,
		&d.RiskEventID,
		&d.RegionCode,
		&tier,
		&d.PayoutPercentage,
		&d.PayoutAmount,
		&d.TriggeredAt,
		&d.PeriodStart,
		&d.PeriodEnd,
		&status,
		&d.RulesHash,
		&d.Source,
	)
	if err != nil {
		return types.ClaimDraft{}, err
	}
	d.TierLevel = types.TierLevel(tier)
	d.Status = types.ClaimStatus(status)
	return d, nil
}
