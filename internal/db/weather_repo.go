package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"indexcover/internal/types"
)

// WeatherQuery selects one homogeneous slice of the weather_data table.
// Callers are responsible for requesting the extended calculation range,
// not the display range.
type WeatherQuery struct {
	RegionCode      string
	WeatherType     types.WeatherType
	DataType        types.DataType
	Start           time.Time
	End             time.Time
	PredictionRunID *string
}

// WeatherRepository provides read access to the weather_data table plus the
// upsert path used by the observation sync job.
type WeatherRepository struct {
	db DBTX
}

// NewWeatherRepository creates a WeatherRepository backed by the given
// database connection (pool or transaction).
func NewWeatherRepository(db DBTX) *WeatherRepository {
	return &WeatherRepository{db: db}
}

const weatherColumns = `timestamp, region_code, weather_type, value, unit, data_type, prediction_run_id`

// QuerySeries returns the time-ordered homogeneous series for the query.
// For historical data the prediction_run_id predicate is IS NULL; for
// predicted data it pins the requested run.
func (r *WeatherRepository) QuerySeries(ctx context.Context, q WeatherQuery) ([]types.WeatherDataPoint, error) {
	sql := `SELECT ` + weatherColumns + `
		FROM weather_data
		WHERE region_code = $1
		  AND weather_type = $2
		  AND data_type = $3
		  AND timestamp >= $4
		  AND timestamp <= $5`
	args := []any{q.RegionCode, string(q.WeatherType), string(q.DataType), q.Start, q.End}

	if q.DataType == types.DataPredicted && q.PredictionRunID != nil {
		sql += ` AND prediction_run_id = $6`
		args = append(args, *q.PredictionRunID)
	} else {
		sql += ` AND prediction_run_id IS NULL`
	}
	sql += ` ORDER BY timestamp ASC`

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("db: weather series query failed: %w", err)
	}
	defer rows.Close()

	var series []types.WeatherDataPoint
	for rows.Next() {
		point, err := scanWeatherPoint(rows)
		if err != nil {
			return nil, fmt.Errorf("db: weather series scan failed: %w", err)
		}
		series = append(series, point)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db: weather series iteration failed: %w", err)
	}
	return series, nil
}

// UpsertBatch writes observation points idempotently. Re-delivered points
// are ignored on the (timestamp, region, type, data_type, run) natural key.
func (r *WeatherRepository) UpsertBatch(ctx context.Context, points []types.WeatherDataPoint) (int, error) {
	if len(points) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, p := range points {
		batch.Queue(`INSERT INTO weather_data
			(timestamp, region_code, weather_type, value, unit, data_type, prediction_run_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT ON CONSTRAINT weather_data_natural_key DO NOTHING`,
			p.Timestamp.UTC(), p.RegionCode, string(p.WeatherType), p.Value, p.Unit,
			string(p.DataType), p.PredictionRunID,
		)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	inserted := 0
	for range points {
		tag, err := results.Exec()
		if err != nil {
			return inserted, fmt.Errorf("db: weather upsert failed: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

func scanWeatherPoint(row pgx.Row) (types.WeatherDataPoint, error) {
	var p types.WeatherDataPoint
	var weatherType, dataType string
	err := row.Scan(
		&p.Timestamp,
		&p.RegionCode,
		&weatherType,
		&p.Value,
		&p.Unit,
		&dataType,
		&p.PredictionRunID,
	)
	if err != nil {
		return types.WeatherDataPoint{}, err
	}
	p.WeatherType = types.WeatherType(weatherType)
	p.DataType = types.DataType(dataType)
	return p, nil
}
