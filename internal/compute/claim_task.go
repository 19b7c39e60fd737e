package compute

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"indexcover/internal/claim"
	"indexcover/internal/db"
	"indexcover/internal/facts"
	"indexcover/internal/lock"
	"indexcover/internal/observability"
	"indexcover/internal/timealign"
	"indexcover/internal/types"
)

// PolicyStore is the policy read surface the claim runner needs.
type PolicyStore interface {
	GetByID(ctx context.Context, id string) (*types.Policy, error)
}

// ClaimStore is the fact persistence surface for claim drafts.
type ClaimStore interface {
	ExistingIDs(ctx context.Context, ids []string) (map[string]struct{}, error)
	InsertBatch(ctx context.Context, drafts []types.ClaimDraft) (int, error)
}

// ClaimTaskRunner executes ClaimComputeTask units.
type ClaimTaskRunner struct {
	policies PolicyStore
	products ProductStore
	events   RiskEventStore
	claims   ClaimStore
	lease    lock.Lease
	calc     *claim.Calculator
	metrics  observability.TaskMetrics
	logger   *slog.Logger
	lockTTL  time.Duration
}

// NewClaimTaskRunner wires a claim runner.
func NewClaimTaskRunner(
	policies PolicyStore,
	products ProductStore,
	events RiskEventStore,
	claims ClaimStore,
	lease lock.Lease,
	calc *claim.Calculator,
	metrics observability.TaskMetrics,
	logger *slog.Logger,
	lockTTL time.Duration,
) *ClaimTaskRunner {
	return &ClaimTaskRunner{
		policies: policies,
		products: products,
		events:   events,
		claims:   claims,
		lease:    lease,
		calc:     calc,
		metrics:  metrics,
		logger:   logger,
		lockTTL:  lockTTL,
	}
}

// HandleMessage unmarshals a raw queue body and runs the task.
func (r *ClaimTaskRunner) HandleMessage(ctx context.Context, body []byte) error {
	var task types.ClaimComputeTask
	if err := json.Unmarshal(body, &task); err != nil {
		return types.NewAppError(types.ErrCodeInputMalformedTask, "malformed claim task payload", err)
	}
	_, err := r.Run(ctx, task)
	return err
}

// Run executes one claim computation unit. Missing policy timezone and
// missing payout rules are reported as skips, not errors: they are data
// states the insurer resolves out of band, and requeueing cannot fix them.
func (r *ClaimTaskRunner) Run(ctx context.Context, task types.ClaimComputeTask) (types.TaskResult, error) {
	start := time.Now()
	ctx = types.WithTraceID(ctx, task.TraceID)
	logger := r.logger.With(
		"policy_id", task.PolicyID,
		"batch_id", task.BatchID,
		"trace_id", task.TraceID,
	)

	display := types.TimeRange{Start: task.RangeStart.UTC(), End: task.RangeEnd.UTC()}
	if !display.Valid() {
		return types.TaskResult{}, types.NewAppErrorWithDetails(
			types.ErrCodeInputInvalidTimeRange, "task range end must be after start", nil,
			map[string]any{"start": task.RangeStart, "end": task.RangeEnd})
	}

	key := lock.ClaimKey(task.PolicyID, display.Start, display.End)
	acquired, err := r.lease.TryAcquire(ctx, key, r.lockTTL)
	if err != nil {
		return types.TaskResult{}, err
	}
	if !acquired {
		logger.InfoContext(ctx, "claim computation already running, skipping",
			"lock_key", key,
		)
		result := types.TaskResult{
			Status:   types.TaskSkipped,
			Reason:   types.SkipConcurrentLock,
			PolicyID: task.PolicyID,
		}
		r.metrics.RecordOutcome(ctx, observability.TaskTypeClaim, result.Status)
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

	r.metrics.RecordOutcome(ctx, observability.TaskTypeClaim, result.Status)
	r.metrics.RecordLatency(ctx, observability.TaskTypeClaim, time.Since(start))
	r.metrics.RecordFactsWritten(ctx, "claim", result.ClaimsWritten)

	logger.InfoContext(ctx, "claim computation finished",
		"status", string(result.Status),
		"reason", string(result.Reason),
		"risk_events_read", result.RiskEventsRead,
		"claims_generated", result.ClaimsGenerated,
		"claims_written", result.ClaimsWritten,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

func (r *ClaimTaskRunner) compute(ctx context.Context, task types.ClaimComputeTask, display types.TimeRange, logger *slog.Logger) (types.TaskResult, error) {
	policy, err := r.policies.GetByID(ctx, task.PolicyID)
	if err != nil {
		return types.TaskResult{}, types.NewAppError(types.ErrCodeInternalDB, "policy load failed", err)
	}
	if policy == nil {
		return types.TaskResult{}, types.NewAppErrorWithDetails(
			types.ErrCodeNotFoundPolicy, "policy not found", nil,
			map[string]any{"policy_id": task.PolicyID})
	}

	zone, zoneErr := timealign.LoadZone(policy.Timezone)
	if zoneErr != nil {
		// Claims cannot be grouped into natural days without a business
		// time zone. The skip is deliberate: a claim anchored to the wrong
		// zone is worse than a delayed claim.
		logger.WarnContext(ctx, "policy has no usable timezone, skipping claim computation",
			"timezone", policy.Timezone,
			"error", zoneErr.Error(),
		)
		return types.TaskResult{
			Status:   types.TaskSkipped,
			Reason:   types.SkipMissingPolicyTimezone,
			PolicyID: task.PolicyID,
		}, nil
	}

	productID := policy.ProductID
	if task.ProductID != "" {
		productID = task.ProductID
	}
	product, err := r.products.GetByID(ctx, productID)
	if err != nil {
		return types.TaskResult{}, types.NewAppError(types.ErrCodeInternalDB, "product load failed", err)
	}
	if product == nil {
		return types.TaskResult{}, types.NewAppErrorWithDetails(
			types.ErrCodeNotFoundProduct, "product not found", nil,
			map[string]any{"product_id": productID})
	}
	if product.PayoutRules == nil {
		logger.WarnContext(ctx, "product has no payout rules, skipping claim computation",
			"product_id", productID,
		)
		return types.TaskResult{
			Status:    types.TaskSkipped,
			Reason:    types.SkipMissingPayoutRules,
			PolicyID:  task.PolicyID,
			ProductID: productID,
		}, nil
	}
	payout := product.PayoutRules.PayoutRules

	events, err := r.events.QueryEvents(ctx, db.RiskEventQuery{
		RegionCode:  policy.CoverageRegion,
		WeatherType: product.WeatherType,
		ProductID:   productID,
		Start:       display.Start,
		End:         display.End,
	})
	if err != nil {
		return types.TaskResult{}, types.NewAppError(types.ErrCodeInternalDB, "risk event load failed", err)
	}

	drafts, err := r.calc.Calculate(claim.Input{
		Events:         events,
		Payout:         payout,
		PolicyID:       policy.ID,
		ProductID:      product.ID,
		ProductVersion: product.Version,
		CoverageAmount: policy.CoverageAmount,
		PolicyZone:     zone,
		RegionCode:     policy.CoverageRegion,
		DataType:       types.DataHistorical,
		Coverage:       types.TimeRange{Start: policy.CoverageStart, End: policy.CoverageEnd},
		Display:        &display,
	})
	if err != nil {
		return types.TaskResult{}, err
	}

	rulesHash, err := facts.HashPayoutRules(payout)
	if err != nil {
		return types.TaskResult{}, types.NewAppError(types.ErrCodeInternalUnexpected, "payout rules hash failed", err)
	}
	for i := range drafts {
		drafts[i].ID = facts.ClaimID(drafts[i].PolicyID, drafts[i].TriggeredAt, drafts[i].TierLevel)
		drafts[i].RulesHash = rulesHash
	}

	written, err := r.persist(ctx, drafts)
	if err != nil {
		return types.TaskResult{}, err
	}

	return types.TaskResult{
		Status:          types.TaskCompleted,
		PolicyID:        task.PolicyID,
		ProductID:       productID,
		RegionCode:      policy.CoverageRegion,
		RiskEventsRead:  len(events),
		ClaimsGenerated: len(drafts),
		ClaimsWritten:   written,
	}, nil
}

// persist applies the existence-check plus insert-complement write path.
func (r *ClaimTaskRunner) persist(ctx context.Context, drafts []types.ClaimDraft) (int, error) {
	if len(drafts) == 0 {
		return 0, nil
	}

	ids := make([]string, len(drafts))
	for i, d := range drafts {
		ids[i] = d.ID
	}

	existing, err := r.claims.ExistingIDs(ctx, ids)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "claim existence check failed", err)
	}

	fresh := make([]types.ClaimDraft, 0, len(drafts))
	for _, d := range drafts {
		if _, ok := existing[d.ID]; ok {
			continue
		}
		fresh = append(fresh, d)
	}

	written, err := r.claims.InsertBatch(ctx, fresh)
	if err != nil {
		return written, types.NewAppError(types.ErrCodeInternalDB, "claim insert failed", err)
	}
	return written, nil
}
