package compute

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"indexcover/internal/claim"
	"indexcover/internal/lock"
	"indexcover/internal/observability"
	"indexcover/internal/types"
)

func payoutProduct() *types.Product {
	p := riskProduct()
	p.PayoutRules = &types.PayoutRulesJSON{PayoutRules: types.PayoutRules{
		FrequencyLimit: types.OncePerDayPerPolicy,
		PayoutPercentages: types.PayoutPercentages{
			Tier1: mustDec("10"),
			Tier2: mustDec("50"),
			Tier3: mustDec("100"),
		},
	}}
	return p
}

func shanghaiPolicy() *types.Policy {
	return &types.Policy{
		ID:             "pol-001",
		ProductID:      "prod-rain-01",
		CoverageRegion: "CN-SH",
		CoverageAmount: mustDec("50000"),
		Timezone:       "Asia/Shanghai",
		CoverageStart:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		CoverageEnd:    time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
		IsActive:       true,
	}
}

func storedEvent(id string, ts time.Time, tier types.TierLevel) types.RiskEvent {
	return types.RiskEvent{
		ID:             id,
		Timestamp:      ts,
		RegionCode:     "CN-SH",
		WeatherType:    types.WeatherRainfall,
		TierLevel:      tier,
		TriggerValue:   mustDec("60"),
		ThresholdValue: mustDec("50"),
		ProductID:      "prod-rain-01",
		ProductVersion: "1",
		DataType:       types.DataHistorical,
	}
}

func newClaimRunner(policies *mockPolicyStore, products *mockProductStore, events *mockRiskEventStore, claims *mockClaimStore, lease lock.Lease) *ClaimTaskRunner {
	return NewClaimTaskRunner(policies, products, events, claims, lease,
		claim.NewCalculator(discardLogger()), observability.NopTaskMetrics{},
		discardLogger(), 10*time.Minute)
}

func claimTask() types.ClaimComputeTask {
	return types.ClaimComputeTask{
		PolicyID:   "pol-001",
		RangeStart: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		RangeEnd:   time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		BatchID:    "batch-1",
		TraceID:    "trace-1",
	}
}

func TestClaimTaskRunner_WritesOneDraftPerPeriod(t *testing.T) {
	policies := &mockPolicyStore{policies: map[string]*types.Policy{"pol-001": shanghaiPolicy()}}
	products := &mockProductStore{products: map[string]*types.Product{"prod-rain-01": payoutProduct()}}
	events := &mockRiskEventStore{events: []types.RiskEvent{
		storedEvent("re_a", time.Date(2025, 1, 20, 2, 0, 0, 0, time.UTC), types.Tier1),
		storedEvent("re_b", time.Date(2025, 1, 20, 14, 0, 0, 0, time.UTC), types.Tier2),
	}}
	claims := &mockClaimStore{}
	runner := newClaimRunner(policies, products, events, claims, lock.NewMemoryLease())

	result, err := runner.Run(context.Background(), claimTask())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Status != types.TaskCompleted {
		t.Errorf("status = %s, want completed", result.Status)
	}
	if result.RiskEventsRead != 2 || result.ClaimsGenerated != 1 || result.ClaimsWritten != 1 {
		t.Errorf("counts = %d/%d/%d, want 2/1/1",
			result.RiskEventsRead, result.ClaimsGenerated, result.ClaimsWritten)
	}

	if len(claims.inserted) != 1 {
		t.Fatalf("inserted %d drafts, want 1", len(claims.inserted))
	}
	d := claims.inserted[0]
	if !strings.HasPrefix(d.ID, "cl_") {
		t.Errorf("draft ID %s missing deterministic prefix", d.ID)
	}
	if d.RulesHash == "" {
		t.Error("draft missing the payout rules hash")
	}
	if d.TierLevel != types.Tier2 || !d.PayoutAmount.Equal(mustDec("25000")) {
		t.Errorf("draft = tier %d, payout %s; want tier 2, payout 25000", d.TierLevel, d.PayoutAmount)
	}

	// The event read must be scoped to the policy's region and the
	// product's metric.
	if events.lastQuery.RegionCode != "CN-SH" || events.lastQuery.WeatherType != types.WeatherRainfall {
		t.Errorf("event query scoped to %s/%s, want CN-SH/rainfall",
			events.lastQuery.RegionCode, events.lastQuery.WeatherType)
	}
	if events.lastQuery.ProductID != "prod-rain-01" {
		t.Errorf("event query product = %s, want prod-rain-01", events.lastQuery.ProductID)
	}
}

func TestClaimTaskRunner_RerunWritesNothing(t *testing.T) {
	policies := &mockPolicyStore{policies: map[string]*types.Policy{"pol-001": shanghaiPolicy()}}
	products := &mockProductStore{products: map[string]*types.Product{"prod-rain-01": payoutProduct()}}
	events := &mockRiskEventStore{events: []types.RiskEvent{
		storedEvent("re_a", time.Date(2025, 1, 20, 2, 0, 0, 0, time.UTC), types.Tier2),
	}}
	claims := &mockClaimStore{existing: make(map[string]struct{})}
	runner := newClaimRunner(policies, products, events, claims, lock.NewMemoryLease())

	first, err := runner.Run(context.Background(), claimTask())
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	if first.ClaimsWritten != 1 {
		t.Fatalf("first run wrote %d, want 1", first.ClaimsWritten)
	}
	for _, d := range claims.inserted {
		claims.existing[d.ID] = struct{}{}
	}

	second, err := runner.Run(context.Background(), claimTask())
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if second.ClaimsWritten != 0 {
		t.Errorf("rerun wrote %d claims, want 0", second.ClaimsWritten)
	}
	if second.ClaimsGenerated != 1 {
		t.Errorf("rerun generated %d claims, want 1", second.ClaimsGenerated)
	}
}

func TestClaimTaskRunner_TaskProductOverridesPolicyProduct(t *testing.T) {
	override := payoutProduct()
	override.ID = "prod-rain-02"

	policies := &mockPolicyStore{policies: map[string]*types.Policy{"pol-001": shanghaiPolicy()}}
	products := &mockProductStore{products: map[string]*types.Product{"prod-rain-02": override}}
	events := &mockRiskEventStore{}
	runner := newClaimRunner(policies, products, events, &mockClaimStore{}, lock.NewMemoryLease())

	task := claimTask()
	task.ProductID = "prod-rain-02"

	result, err := runner.Run(context.Background(), task)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.ProductID != "prod-rain-02" {
		t.Errorf("result product = %s, want prod-rain-02", result.ProductID)
	}
	if events.lastQuery.ProductID != "prod-rain-02" {
		t.Errorf("event query product = %s, want prod-rain-02", events.lastQuery.ProductID)
	}
}

func TestClaimTaskRunner_MissingTimezoneSkips(t *testing.T) {
	tests := []struct {
		name     string
		timezone string
	}{
		{"empty", ""},
		{"unknown", "Mars/Olympus"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := shanghaiPolicy()
			policy.Timezone = tt.timezone
			policies := &mockPolicyStore{policies: map[string]*types.Policy{"pol-001": policy}}
			products := &mockProductStore{products: map[string]*types.Product{"prod-rain-01": payoutProduct()}}
			claims := &mockClaimStore{}
			runner := newClaimRunner(policies, products, &mockRiskEventStore{}, claims, lock.NewMemoryLease())

			result, err := runner.Run(context.Background(), claimTask())
			if err != nil {
				t.Fatalf("Run failed: %v", err)
			}
			if result.Status != types.TaskSkipped || result.Reason != types.SkipMissingPolicyTimezone {
				t.Errorf("result = %s/%s, want skipped/missing_policy_timezone", result.Status, result.Reason)
			}
			if len(claims.inserted) != 0 {
				t.Error("a skipped run must not write")
			}
		})
	}
}

func TestClaimTaskRunner_MissingPayoutRulesSkips(t *testing.T) {
	product := riskProduct() // no payout rules attached

	policies := &mockPolicyStore{policies: map[string]*types.Policy{"pol-001": shanghaiPolicy()}}
	products := &mockProductStore{products: map[string]*types.Product{"prod-rain-01": product}}
	runner := newClaimRunner(policies, products, &mockRiskEventStore{}, &mockClaimStore{}, lock.NewMemoryLease())

	result, err := runner.Run(context.Background(), claimTask())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Status != types.TaskSkipped || result.Reason != types.SkipMissingPayoutRules {
		t.Errorf("result = %s/%s, want skipped/missing_payout_rules", result.Status, result.Reason)
	}
}

func TestClaimTaskRunner_HeldLockSkips(t *testing.T) {
	policies := &mockPolicyStore{policies: map[string]*types.Policy{"pol-001": shanghaiPolicy()}}
	runner := newClaimRunner(policies, &mockProductStore{}, &mockRiskEventStore{}, &mockClaimStore{}, stuckLease{})

	result, err := runner.Run(context.Background(), claimTask())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Status != types.TaskSkipped || result.Reason != types.SkipConcurrentLock {
		t.Errorf("result = %s/%s, want skipped/concurrent_lock", result.Status, result.Reason)
	}
}

func TestClaimTaskRunner_UnknownPolicyIsFatal(t *testing.T) {
	runner := newClaimRunner(&mockPolicyStore{policies: map[string]*types.Policy{}},
		&mockProductStore{}, &mockRiskEventStore{}, &mockClaimStore{}, lock.NewMemoryLease())

	_, err := runner.Run(context.Background(), claimTask())
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %v", err)
	}
	if appErr.Code != types.ErrCodeNotFoundPolicy {
		t.Errorf("code = %s, want %s", appErr.Code, types.ErrCodeNotFoundPolicy)
	}
	if !appErr.Fatal() {
		t.Error("unknown policy must be fatal")
	}
}

func TestClaimTaskRunner_HandleMessageRejectsMalformedPayload(t *testing.T) {
	runner := newClaimRunner(&mockPolicyStore{}, &mockProductStore{}, &mockRiskEventStore{}, &mockClaimStore{}, lock.NewMemoryLease())

	err := runner.HandleMessage(context.Background(), []byte("not json at all"))
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %v", err)
	}
	if appErr.Code != types.ErrCodeInputMalformedTask {
		t.Errorf("code = %s, want %s", appErr.Code, types.ErrCodeInputMalformedTask)
	}
}
