package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"indexcover/internal/types"
)

// RiskEventQuery selects the historical risk events feeding one claim
// computation. Time bounds are inclusive.
type RiskEventQuery struct {
	RegionCode  string
	WeatherType types.WeatherType
	ProductID   string
	Start       time.Time
	End         time.Time
}

// RiskEventRepository persists risk events. Events are append-only facts:
// the write path is existence-check plus insert of the complement, keyed by
// deterministic IDs.
type RiskEventRepository struct {
	db DBTX
}

// NewRiskEventRepository creates a RiskEventRepository backed by the given
// database connection (pool or transaction).
func NewRiskEventRepository(db DBTX) *RiskEventRepository {
	return &RiskEventRepository{db: db}
}

const riskEventColumns = `id, timestamp, region_code, weather_type, tier_level, trigger_value, threshold_value, product_id, product_version, data_type, prediction_run_id`

// ExistingIDs returns the subset of ids already present, as a set. One
// round-trip regardless of batch size.
func (r *RiskEventRepository) ExistingIDs(ctx context.Context, ids []string) (map[string]struct{}, error) {
	if len(ids) == 0 {
		return map[string]struct{}{}, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT id FROM risk_events WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("db: risk event existence query failed: %w", err)
	}
	defer rows.Close()

	existing := make(map[string]struct{}, len(ids))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("db: risk event id scan failed: %w", err)
		}
		existing[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db: risk event existence iteration failed: %w", err)
	}
	return existing, nil
}

// InsertBatch writes the given events. Callers filter out existing IDs
// first; the ON CONFLICT guard only covers the race between check and
// insert. Returns the number of rows actually written.
func (r *RiskEventRepository) InsertBatch(ctx context.Context, events []types.RiskEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, e := range events {
		batch.Queue(`INSERT INTO risk_events
			(`+riskEventColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (id) DO NOTHING`,
			e.ID, e.Timestamp.UTC(), e.RegionCode, string(e.WeatherType), int(e.TierLevel),
			e.TriggerValue, e.ThresholdValue, e.ProductID, e.ProductVersion,
			string(e.DataType), e.PredictionRunID,
		)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	written := 0
	for range events {
		tag, err := results.Exec()
		if err != nil {
			return written, fmt.Errorf("db: risk event insert failed: %w", err)
		}
		written += int(tag.RowsAffected())
	}
	return written, nil
}

// QueryEvents returns the time-ordered historical events for the query.
// Only historical events ever feed claims, so data_type is pinned here
// rather than left to the caller.
func (r *RiskEventRepository) QueryEvents(ctx context.Context, q RiskEventQuery) ([]types.RiskEvent, error) {
	sql := `SELECT ` + riskEventColumns + `
		FROM risk_events
		WHERE region_code = $1
		  AND weather_type = $2
		  AND data_type = $3
		  AND timestamp >= $4
		  AND timestamp <= $5`
	args := []any{q.RegionCode, string(q.WeatherType), string(types.DataHistorical), q.Start, q.End}

	if q.ProductID != "" {
		args = append(args, q.ProductID)
		sql += fmt.Sprintf(` AND product_id = $%d`, len(args))
	}
	sql += ` ORDER BY timestamp ASC`

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("db: risk event query failed: %w", err)
	}
	defer rows.Close()

	var events []types.RiskEvent
	for rows.Next() {
		e, err := scanRiskEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("db: risk event scan failed: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db: risk event iteration failed: %w", err)
	}
	return events, nil
}

// DeleteByID removes a single event. Admin corrections only; recomputing
// the same range regenerates the event under the same ID.
func (r *RiskEventRepository) DeleteByID(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM risk_events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("db: risk event delete failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundEvent, "risk event not found", nil)
	}
	return nil
}

// DeleteBefore removes events older than the cutoff for housekeeping.
// Predicted events from superseded runs are the usual target.
func (r *RiskEventRepository) DeleteBefore(ctx context.Context, dataType types.DataType, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM risk_events WHERE data_type = $1 AND timestamp < $2`,
		string(dataType), cutoff)
	if err != nil {
		return 0, fmt.Errorf("db: risk event delete failed: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanRiskEvent(row pgx.Row) (types.RiskEvent, error) {
	var e types.RiskEvent
	var weatherType, dataType string
	var tier int
	err := row.Scan(
		&e.ID,
		&e.Timestamp,
		&e.RegionCode,
		&weatherType,
		&tier,
		&e.TriggerValue,
		&e.ThresholdValue,
		&e.ProductID,
		&e.ProductVersion,
		&dataType,
		&e.PredictionRunID,
	)
	if err != nil {
		return types.RiskEvent{}, err
	}
	e.WeatherType = types.WeatherType(weatherType)
	e.DataType = types.DataType(dataType)
	e.TierLevel = types.TierLevel(tier)
	return e, nil
}
