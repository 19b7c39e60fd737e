package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"indexcover/internal/types"
)

// ProductRepository provides admin-mode read access to the products table.
// The calculation core always reads rules unredacted; any field trimming
// for external exposure happens downstream.
type ProductRepository struct {
	db DBTX
}

// NewProductRepository creates a ProductRepository backed by the given
// database connection (pool or transaction).
func NewProductRepository(db DBTX) *ProductRepository {
	return &ProductRepository{db: db}
}

const productColumns = `id, version, name, weather_type, risk_rules, payout_rules, is_active, created_at, updated_at`

// GetByID returns the product with its full rule configurations, or nil
// when no such product exists.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*types.Product, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id)

	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("db: product lookup failed: %w", err)
	}
	return product, nil
}

// ListActive returns all active products, ordered by id for deterministic
// dispatch.
func (r *ProductRepository) ListActive(ctx context.Context) ([]types.Product, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+productColumns+` FROM products WHERE is_active = TRUE ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("db: active products query failed: %w", err)
	}
	defer rows.Close()

	var products []types.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("db: product scan failed: %w", err)
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db: active products iteration failed: %w", err)
	}
	return products, nil
}

func scanProduct(row pgx.Row) (*types.Product, error) {
	var p types.Product
	var weatherType string
	var payoutRules *types.PayoutRulesJSON

	err := row.Scan(
		&p.ID,
		&p.Version,
		&p.Name,
		&weatherType,
		&p.RiskRules,
		&payoutRules,
		&p.IsActive,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.WeatherType = types.WeatherType(weatherType)
	p.PayoutRules = payoutRules
	return &p, nil
}
