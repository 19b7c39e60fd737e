package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"indexcover/internal/types"
)

// PolicyFilter narrows an active-policy listing for dispatch.
type PolicyFilter struct {
	ProductID  string
	RegionCode string
}

// PolicyRepository provides read access to the policies table.
type PolicyRepository struct {
	db DBTX
}

// NewPolicyRepository creates a PolicyRepository backed by the given
// database connection (pool or transaction).
func NewPolicyRepository(db DBTX) *PolicyRepository {
	return &PolicyRepository{db: db}
}

const policyColumns = `id, product_id, coverage_region, coverage_amount, timezone, coverage_start, coverage_end, is_active`

// GetByID returns the policy, or nil when no such policy exists.
func (r *PolicyRepository) GetByID(ctx context.Context, id string) (*types.Policy, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+policyColumns+` FROM policies WHERE id = $1`, id)

	policy, err := scanPolicy(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("db: policy lookup failed: %w", err)
	}
	return policy, nil
}

// ListActive returns active policies matching the filter, ordered by id
// for deterministic dispatch. Empty filter fields match everything.
func (r *PolicyRepository) ListActive(ctx context.Context, filter PolicyFilter) ([]types.Policy, error) {
	sql := `SELECT ` + policyColumns + ` FROM policies WHERE is_active = TRUE`
	var args []any

	if filter.ProductID != "" {
		args = append(args, filter.ProductID)
		sql += fmt.Sprintf(` AND product_id = $%d`, len(args))
	}
	if filter.RegionCode != "" {
		args = append(args, filter.RegionCode)
		sql += fmt.Sprintf(` AND coverage_region = $%d`, len(args))
	}
	sql += ` ORDER BY id`

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("db: active policies query failed: %w", err)
	}
	defer rows.Close()

	var policies []types.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("db: policy scan failed: %w", err)
		}
		policies = append(policies, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db: active policies iteration failed: %w", err)
	}
	return policies, nil
}

func scanPolicy(row pgx.Row) (*types.Policy, error) {
	var p types.Policy
	err := row.Scan(
		&p.ID,
		&p.ProductID,
		&p.CoverageRegion,
		&p.CoverageAmount,
		&p.Timezone,
		&p.CoverageStart,
		&p.CoverageEnd,
		&p.IsActive,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
