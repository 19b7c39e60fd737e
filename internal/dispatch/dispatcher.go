// Package dispatch fans a computation request out into independent task
// units. Risk dispatch targets (product, region) pairs derived from active
// policies; claim dispatch targets individual active policies. A single
// ephemeral BatchID and TraceID are stamped onto every task of one
// dispatch run for distributed traceability.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"indexcover/internal/db"
	"indexcover/internal/types"
)

// DefaultSendConcurrency bounds concurrent SQS sends per dispatch run.
const DefaultSendConcurrency = 8

// ProductLister is the product read surface the dispatcher needs.
type ProductLister interface {
	ListActive(ctx context.Context) ([]types.Product, error)
}

// PolicyLister is the policy read surface the dispatcher needs.
type PolicyLister interface {
	ListActive(ctx context.Context, filter db.PolicyFilter) ([]types.Policy, error)
}

// TaskSender is the queue producer surface, implemented by queue.TaskTrigger.
type TaskSender interface {
	SendRiskTask(ctx context.Context, task types.RiskComputeTask, reason string) error
	SendClaimTask(ctx context.Context, task types.ClaimComputeTask, reason string) error
}

// RiskScope selects the risk units of one dispatch run. Empty ProductID or
// RegionCode means all. PredictionRunID switches the run to forecast data.
type RiskScope struct {
	RangeStart      time.Time
	RangeEnd        time.Time
	ProductID       string
	RegionCode      string
	PredictionRunID *string
	Reason          string
}

// ClaimScope selects the claim units of one dispatch run.
type ClaimScope struct {
	RangeStart time.Time
	RangeEnd   time.Time
	ProductID  string
	RegionCode string
	Reason     string
}

// Dispatcher enumerates computation units and enqueues them.
type Dispatcher struct {
	Products    ProductLister
	Policies    PolicyLister
	Sender      TaskSender
	Log         *slog.Logger
	Concurrency int
}

// DispatchRisk enqueues one RiskComputeTask per (active product, coverage
// region) pair carrying active policies. Regions come from the policies
// themselves, so products without any active policy dispatch nothing.
// Returns the number of tasks enqueued.
func (d *Dispatcher) DispatchRisk(ctx context.Context, scope RiskScope) (int, error) {
	if !scope.RangeEnd.After(scope.RangeStart) {
		return 0, types.NewAppError(types.ErrCodeInputInvalidTimeRange, "dispatch range end must be after start", nil)
	}

	products, err := d.Products.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("dispatch: failed to list active products: %w", err)
	}

	batchID := uuid.New().String()
	traceID := uuid.New().String()
	reason := scope.Reason
	if reason == "" {
		reason = "scheduled"
	}

	var tasks []types.RiskComputeTask
	for _, product := range products {
		if scope.ProductID != "" && product.ID != scope.ProductID {
			continue
		}

		policies, err := d.Policies.ListActive(ctx, db.PolicyFilter{
			ProductID:  product.ID,
			RegionCode: scope.RegionCode,
		})
		if err != nil {
			return 0, fmt.Errorf("dispatch: failed to list policies for product %s: %w", product.ID, err)
		}

		seen := make(map[string]struct{})
		for _, policy := range policies {
			if _, ok := seen[policy.CoverageRegion]; ok {
				continue
			}
			seen[policy.CoverageRegion] = struct{}{}
			tasks = append(tasks, types.RiskComputeTask{
				ProductID:       product.ID,
				RegionCode:      policy.CoverageRegion,
				RangeStart:      scope.RangeStart.UTC(),
				RangeEnd:        scope.RangeEnd.UTC(),
				PredictionRunID: scope.PredictionRunID,
				BatchID:         batchID,
				TraceID:         traceID,
			})
		}
	}

	if err := d.sendAll(ctx, len(tasks), func(g *errgroup.Group) {
		for _, task := range tasks {
			g.Go(func() error {
				return d.Sender.SendRiskTask(ctx, task, reason)
			})
		}
	}); err != nil {
		return 0, err
	}

	d.Log.InfoContext(ctx, "risk dispatch completed",
		"batch_id", batchID,
		"trace_id", traceID,
		"task_count", len(tasks),
		"reason", reason,
	)
	return len(tasks), nil
}

// DispatchClaims enqueues one ClaimComputeTask per active policy in scope.
// Returns the number of tasks enqueued.
func (d *Dispatcher) DispatchClaims(ctx context.Context, scope ClaimScope) (int, error) {
	if !scope.RangeEnd.After(scope.RangeStart) {
		return 0, types.NewAppError(types.ErrCodeInputInvalidTimeRange, "dispatch range end must be after start", nil)
	}

	policies, err := d.Policies.ListActive(ctx, db.PolicyFilter{
		ProductID:  scope.ProductID,
		RegionCode: scope.RegionCode,
	})
	if err != nil {
		return 0, fmt.Errorf("dispatch: failed to list active policies: %w", err)
	}

	batchID := uuid.New().String()
	traceID := uuid.New().String()
	reason := scope.Reason
	if reason == "" {
		reason = "scheduled"
	}

	tasks := make([]types.ClaimComputeTask, 0, len(policies))
	for _, policy := range policies {
		tasks = append(tasks, types.ClaimComputeTask{
			PolicyID:   policy.ID,
			ProductID:  policy.ProductID,
			RangeStart: scope.RangeStart.UTC(),
			RangeEnd:   scope.RangeEnd.UTC(),
			BatchID:    batchID,
			TraceID:    traceID,
		})
	}

	if err := d.sendAll(ctx, len(tasks), func(g *errgroup.Group) {
		for _, task := range tasks {
			g.Go(func() error {
				return d.Sender.SendClaimTask(ctx, task, reason)
			})
		}
	}); err != nil {
		return 0, err
	}

	d.Log.InfoContext(ctx, "claim dispatch completed",
		"batch_id", batchID,
		"trace_id", traceID,
		"task_count", len(tasks),
		"reason", reason,
	)
	return len(tasks), nil
}

// sendAll runs the queued sends with bounded concurrency and fails the
// dispatch on the first send error. Workers are idempotent, so a partially
// dispatched batch that gets re-dispatched only re-derives existing facts.
func (d *Dispatcher) sendAll(ctx context.Context, count int, enqueue func(*errgroup.Group)) error {
	if count == 0 {
		return nil
	}
	limit := d.Concurrency
	if limit <= 0 {
		limit = DefaultSendConcurrency
	}
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	enqueue(g)
	if err := g.Wait(); err != nil {
		return fmt.Errorf("dispatch: task send failed: %w", err)
	}
	return nil
}
