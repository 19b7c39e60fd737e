// Package compute orchestrates one computation unit end to end: lease
// acquisition, data loading over the extended range, the pure calculation,
// and the idempotent fact write. Runners own no calculation logic of their
// own; they wire repositories to the risk and claim engines and translate
// outcomes into TaskResults.
package compute

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"indexcover/internal/db"
	"indexcover/internal/facts"
	"indexcover/internal/lock"
	"indexcover/internal/observability"
	"indexcover/internal/risk"
	"indexcover/internal/timealign"
	"indexcover/internal/types"
)

// ProductStore is the product read surface a runner needs.
type ProductStore interface {
	GetByID(ctx context.Context, id string) (*types.Product, error)
}

// WeatherStore is the weather read surface the risk runner needs.
type WeatherStore interface {
	QuerySeries(ctx context.Context, q db.WeatherQuery) ([]types.WeatherDataPoint, error)
}

// RiskEventStore is the fact persistence surface for risk events.
type RiskEventStore interface {
	ExistingIDs(ctx context.Context, ids []string) (map[string]struct{}, error)
	InsertBatch(ctx context.Context, events []types.RiskEvent) (int, error)
	QueryEvents(ctx context.Context, q db.RiskEventQuery) ([]types.RiskEvent, error)
}

// RiskTaskRunner executes RiskComputeTask units.
type RiskTaskRunner struct {
	products ProductStore
	weather  WeatherStore
	events   RiskEventStore
	lease    lock.Lease
	zones    *timealign.RegionZones
	metrics  observability.TaskMetrics
	logger   *slog.Logger
	lockTTL  time.Duration
}

// NewRiskTaskRunner wires a risk runner. lockTTL bounds how long a crashed
// worker can block recomputation of the same unit.
func NewRiskTaskRunner(
	products ProductStore,
	weather WeatherStore,
	events RiskEventStore,
	lease lock.Lease,
	zones *timealign.RegionZones,
	metrics observability.TaskMetrics,
	logger *slog.Logger,
	lockTTL time.Duration,
) *RiskTaskRunner {
	return &RiskTaskRunner{
		products: products,
		weather:  weather,
		events:   events,
		lease:    lease,
		zones:    zones,
		metrics:  metrics,
		logger:   logger,
		lockTTL:  lockTTL,
	}
}

// HandleMessage unmarshals a raw queue body and runs the task. It is the
// bridge between the SQS consumer loop and Run.
func (r *RiskTaskRunner) HandleMessage(ctx context.Context, body []byte) error {
	var task types.RiskComputeTask
	if err := json.Unmarshal(body, &task); err != nil {
		return types.NewAppError(types.ErrCodeInputMalformedTask, "malformed risk task payload", err)
	}
	_, err := r.Run(ctx, task)
	return err
}

// Run executes one risk computation unit. The result reports what happened
// even when nothing was written; a concurrent-lock skip is a success from
// the queue's point of view.
func (r *RiskTaskRunner) Run(ctx context.Context, task types.RiskComputeTask) (types.TaskResult, error) {
	start := time.Now()
	ctx = types.WithTraceID(ctx, task.TraceID)
	logger := r.logger.With(
		"product_id", task.ProductID,
		"region_code", task.RegionCode,
		"batch_id", task.BatchID,
		"trace_id", task.TraceID,
	)

	display := types.TimeRange{Start: task.RangeStart.UTC(), End: task.RangeEnd.UTC()}
	if !display.Valid() {
		return types.TaskResult{}, types.NewAppErrorWithDetails(
			types.ErrCodeInputInvalidTimeRange, "task range end must be after start", nil,
			map[string]any{"start": task.RangeStart, "end": task.RangeEnd})
	}

	key := lock.RiskKey(task.ProductID, task.RegionCode, display.Start, display.End)
	acquired, err := r.lease.TryAcquire(ctx, key, r.lockTTL)
	if err != nil {
		return types.TaskResult{}, err
	}
	if !acquired {
		logger.InfoContext(ctx, "risk computation already running, skipping",
			"lock_key", key,
		)
		result := types.TaskResult{
			Status:     types.TaskSkipped,
			Reason:     types.SkipConcurrentLock,
			ProductID:  task.ProductID,
			RegionCode: task.RegionCode,
		}
		r.metrics.RecordOutcome(ctx, observability.TaskTypeRisk, result.Status)
		return result, nil
	}
	defer func() {
		if err := r.lease.Release(ctx, key); err != nil {
			logger.WarnContext(ctx, "lock release failed, lease will expire by TTL",
				"lock_key", key,
				"error", err.Error(),
			)
		}
	}()

	result, err := r.compute(ctx, task, display, logger)
	if err != nil {
		return types.TaskResult{}, err
	}

	r.metrics.RecordOutcome(ctx, observability.TaskTypeRisk, result.Status)
	r.metrics.RecordLatency(ctx, observability.TaskTypeRisk, time.Since(start))
	r.metrics.RecordFactsWritten(ctx, "risk_event", result.EventsWritten)

	logger.InfoContext(ctx, "risk computation finished",
		"status", string(result.Status),
		"events_calculated", result.EventsCalculated,
		"events_written", result.EventsWritten,
		"events_skipped", result.EventsSkipped,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

func (r *RiskTaskRunner) compute(ctx context.Context, task types.RiskComputeTask, display types.TimeRange, logger *slog.Logger) (types.TaskResult, error) {
	product, err := r.products.GetByID(ctx, task.ProductID)
	if err != nil {
		return types.TaskResult{}, types.NewAppError(types.ErrCodeInternalDB, "product load failed", err)
	}
	if product == nil {
		return types.TaskResult{}, types.NewAppErrorWithDetails(
			types.ErrCodeNotFoundProduct, "product not found", nil,
			map[string]any{"product_id": task.ProductID})
	}

	rules := product.RiskRules.RiskRules
	if err := rules.Validate(); err != nil {
		return types.TaskResult{}, err
	}

	dataType := types.DataHistorical
	if task.PredictionRunID != nil && *task.PredictionRunID != "" {
		dataType = types.DataPredicted
	}

	zone, err := r.zones.Zone(task.RegionCode)
	if err != nil {
		return types.TaskResult{}, err
	}

	// The calculation needs lookback before the display range so the first
	// displayed window has a full complement of points.
	calcRange, err := timealign.ExtendedRange(display, rules.TimeWindow.Type, rules.TimeWindow.Size, zone)
	if err != nil {
		return types.TaskResult{}, err
	}

	series, err := r.weather.QuerySeries(ctx, db.WeatherQuery{
		RegionCode:      task.RegionCode,
		WeatherType:     rules.WeatherType,
		DataType:        dataType,
		Start:           calcRange.CalcStart,
		End:             calcRange.CalcEnd,
		PredictionRunID: task.PredictionRunID,
	})
	if err != nil {
		return types.TaskResult{}, types.NewAppError(types.ErrCodeInternalDB, "weather series load failed", err)
	}

	logger.DebugContext(ctx, "weather series loaded",
		"points", len(series),
		"calc_start", calcRange.CalcStart,
		"calc_end", calcRange.CalcEnd,
		"extension_hours", calcRange.ExtensionHours(),
	)

	events, err := risk.Calculate(risk.Input{
		Series:         series,
		Rules:          rules,
		ProductID:      product.ID,
		ProductVersion: product.Version,
		RegionZone:     zone,
		Display:        &display,
	})
	if err != nil {
		return types.TaskResult{}, err
	}

	for i := range events {
		events[i].ID = facts.RiskEventID(events[i])
	}

	written, skipped, err := r.persist(ctx, events)
	if err != nil {
		return types.TaskResult{}, err
	}

	return types.TaskResult{
		Status:           types.TaskCompleted,
		ProductID:        task.ProductID,
		RegionCode:       task.RegionCode,
		EventsCalculated: len(events),
		EventsWritten:    written,
		EventsSkipped:    skipped,
	}, nil
}

// persist applies the existence-check plus insert-complement write path.
// Already-present IDs are counted as skipped, never rewritten.
func (r *RiskTaskRunner) persist(ctx context.Context, events []types.RiskEvent) (written, skipped int, err error) {
	if len(events) == 0 {
		return 0, 0, nil
	}

	ids := make([]string, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}

	existing, err := r.events.ExistingIDs(ctx, ids)
	if err != nil {
		return 0, 0, types.NewAppError(types.ErrCodeInternalDB, "risk event existence check failed", err)
	}

	fresh := make([]types.RiskEvent, 0, len(events))
	for _, e := range events {
		if _, ok := existing[e.ID]; ok {
			skipped++
			continue
		}
		fresh = append(fresh, e)
	}

	written, err = r.events.InsertBatch(ctx, fresh)
	if err != nil {
		return written, skipped, types.NewAppError(types.ErrCodeInternalDB, "risk event insert failed", err)
	}
	// Rows lost to the insert-time conflict guard count as skipped too.
	skipped += len(fresh) - written
	return written, skipped, nil
}
