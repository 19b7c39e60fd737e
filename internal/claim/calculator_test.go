package claim

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"indexcover/internal/types"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func testCalculator() *Calculator {
	return NewCalculator(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func shanghai(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		t.Fatalf("load zone: %v", err)
	}
	return loc
}

func riskEvent(id string, ts time.Time, tier types.TierLevel) types.RiskEvent {
	return types.RiskEvent{
		ID:             id,
		Timestamp:      ts,
		RegionCode:     "CN-SH",
		WeatherType:    types.WeatherRainfall,
		TierLevel:      tier,
		TriggerValue:   dec("60"),
		ThresholdValue: dec("50"),
		ProductID:      "prod-rain-01",
		ProductVersion: "1",
		DataType:       types.DataHistorical,
	}
}

func baseInput(t *testing.T, events []types.RiskEvent) Input {
	return Input{
		Events: events,
		Payout: types.PayoutRules{
			FrequencyLimit: types.OncePerDayPerPolicy,
			PayoutPercentages: types.PayoutPercentages{
				Tier1: dec("10"),
				Tier2: dec("50"),
				Tier3: dec("100"),
			},
		},
		PolicyID:       "pol-001",
		ProductID:      "prod-rain-01",
		ProductVersion: "1",
		CoverageAmount: dec("50000"),
		PolicyZone:     shanghai(t),
		RegionCode:     "CN-SH",
		DataType:       types.DataHistorical,
		Coverage: types.TimeRange{
			Start: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
		},
	}
}

func TestCalculate_HighestTierInNaturalDayWins(t *testing.T) {
	// 02:00Z and 14:00Z are 10:00 and 22:00 Shanghai local: the same
	// natural day. Only the tier2 event pays.
	events := []types.RiskEvent{
		riskEvent("re_a", time.Date(2025, 1, 20, 2, 0, 0, 0, time.UTC), types.Tier1),
		riskEvent("re_b", time.Date(2025, 1, 20, 14, 0, 0, 0, time.UTC), types.Tier2),
	}

	drafts, err := testCalculator().Calculate(baseInput(t, events))
	if err != nil {
		t.Fatalf("Calculate failed: %v", err)
	}
	if len(drafts) != 1 {
		t.Fatalf("got %d drafts, want 1", len(drafts))
	}

	d := drafts[0]
	if d.TierLevel != types.Tier2 {
		t.Errorf("tier = %d, want 2", d.TierLevel)
	}
	if d.RiskEventID != "re_b" {
		t.Errorf("risk event id = %s, want re_b", d.RiskEventID)
	}
	if !d.PayoutAmount.Equal(dec("25000")) {
		t.Errorf("payout = %s, want 25000 (50%% of 50000)", d.PayoutAmount)
	}
	if !d.PayoutPercentage.Equal(dec("50")) {
		t.Errorf("percentage = %s, want 50", d.PayoutPercentage)
	}
	if d.Status != types.ClaimComputed || d.Source != "task" {
		t.Errorf("draft status/source = %s/%s, want computed/task", d.Status, d.Source)
	}
	// The period is the Shanghai natural day: Jan 20 00:00 local.
	if want := time.Date(2025, 1, 19, 16, 0, 0, 0, time.UTC); !d.PeriodStart.Equal(want) {
		t.Errorf("period start = %v, want %v", d.PeriodStart, want)
	}
	if want := time.Date(2025, 1, 20, 16, 0, 0, 0, time.UTC).Add(-time.Microsecond); !d.PeriodEnd.Equal(want) {
		t.Errorf("period end = %v, want %v", d.PeriodEnd, want)
	}
}

func TestCalculate_LocalMidnightSplitsPeriods(t *testing.T) {
	// 14:00Z is 22:00 local Jan 20; 20:00Z is 04:00 local Jan 21. Two
	// Shanghai days, two claims, even though both fall on Jan 20 in UTC.
	events := []types.RiskEvent{
		riskEvent("re_a", time.Date(2025, 1, 20, 14, 0, 0, 0, time.UTC), types.Tier1),
		riskEvent("re_b", time.Date(2025, 1, 20, 20, 0, 0, 0, time.UTC), types.Tier1),
	}

	drafts, err := testCalculator().Calculate(baseInput(t, events))
	if err != nil {
		t.Fatalf("Calculate failed: %v", err)
	}
	if len(drafts) != 2 {
		t.Fatalf("got %d drafts, want 2", len(drafts))
	}
	for i, d := range drafts {
		if !d.PayoutAmount.Equal(dec("5000")) {
			t.Errorf("draft %d payout = %s, want 5000", i, d.PayoutAmount)
		}
	}
	if drafts[0].RiskEventID != "re_a" || drafts[1].RiskEventID != "re_b" {
		t.Errorf("drafts out of period order: %s, %s", drafts[0].RiskEventID, drafts[1].RiskEventID)
	}
}

func TestCalculate_FirstOccurrenceWinsTierTies(t *testing.T) {
	events := []types.RiskEvent{
		riskEvent("re_first", time.Date(2025, 1, 20, 2, 0, 0, 0, time.UTC), types.Tier2),
		riskEvent("re_second", time.Date(2025, 1, 20, 6, 0, 0, 0, time.UTC), types.Tier2),
	}

	drafts, err := testCalculator().Calculate(baseInput(t, events))
	if err != nil {
		t.Fatalf("Calculate failed: %v", err)
	}
	if len(drafts) != 1 {
		t.Fatalf("got %d drafts, want 1", len(drafts))
	}
	if drafts[0].RiskEventID != "re_first" {
		t.Errorf("risk event id = %s, want re_first", drafts[0].RiskEventID)
	}
	if !drafts[0].TriggeredAt.Equal(events[0].Timestamp) {
		t.Errorf("triggered_at = %v, want %v", drafts[0].TriggeredAt, events[0].Timestamp)
	}
}

func TestCalculate_MonthlyFrequencyCollapsesAMonth(t *testing.T) {
	in := baseInput(t, []types.RiskEvent{
		riskEvent("re_a", time.Date(2025, 1, 5, 2, 0, 0, 0, time.UTC), types.Tier1),
		riskEvent("re_b", time.Date(2025, 1, 25, 2, 0, 0, 0, time.UTC), types.Tier3),
		riskEvent("re_c", time.Date(2025, 2, 10, 2, 0, 0, 0, time.UTC), types.Tier1),
	})
	in.Payout.FrequencyLimit = types.OncePerMonthPerPolicy

	drafts, err := testCalculator().Calculate(in)
	if err != nil {
		t.Fatalf("Calculate failed: %v", err)
	}
	if len(drafts) != 2 {
		t.Fatalf("got %d drafts, want 2 (one per month)", len(drafts))
	}
	if drafts[0].TierLevel != types.Tier3 || drafts[0].RiskEventID != "re_b" {
		t.Errorf("january draft = tier %d from %s, want tier 3 from re_b", drafts[0].TierLevel, drafts[0].RiskEventID)
	}
	if drafts[1].TierLevel != types.Tier1 || drafts[1].RiskEventID != "re_c" {
		t.Errorf("february draft = tier %d from %s, want tier 1 from re_c", drafts[1].TierLevel, drafts[1].RiskEventID)
	}
}

func TestCalculate_PredictedDataNeverPays(t *testing.T) {
	in := baseInput(t, []types.RiskEvent{
		riskEvent("re_a", time.Date(2025, 1, 20, 2, 0, 0, 0, time.UTC), types.Tier3),
	})
	in.DataType = types.DataPredicted

	drafts, err := testCalculator().Calculate(in)
	if err != nil {
		t.Fatalf("predicted input must not error: %v", err)
	}
	if len(drafts) != 0 {
		t.Fatalf("got %d drafts from predicted data, want 0", len(drafts))
	}
}

func TestCalculate_ZeroPercentageTierProducesNoClaim(t *testing.T) {
	in := baseInput(t, []types.RiskEvent{
		riskEvent("re_a", time.Date(2025, 1, 20, 2, 0, 0, 0, time.UTC), types.Tier1),
	})
	in.Payout.PayoutPercentages.Tier1 = decimal.Zero

	drafts, err := testCalculator().Calculate(in)
	if err != nil {
		t.Fatalf("Calculate failed: %v", err)
	}
	if len(drafts) != 0 {
		t.Fatalf("got %d drafts for a zero-percentage tier, want 0", len(drafts))
	}
}

func TestCalculate_TotalCapLimitsPayout(t *testing.T) {
	capPct := dec("30")
	in := baseInput(t, []types.RiskEvent{
		riskEvent("re_a", time.Date(2025, 1, 20, 2, 0, 0, 0, time.UTC), types.Tier3),
	})
	in.Payout.TotalCap = &capPct

	drafts, err := testCalculator().Calculate(in)
	if err != nil {
		t.Fatalf("Calculate failed: %v", err)
	}
	if len(drafts) != 1 {
		t.Fatalf("got %d drafts, want 1", len(drafts))
	}
	// Tier3 is 100% of 50000 but the cap holds it at 30%.
	if !drafts[0].PayoutAmount.Equal(dec("15000")) {
		t.Errorf("payout = %s, want 15000", drafts[0].PayoutAmount)
	}
	// The recorded percentage stays the tier's own percentage.
	if !drafts[0].PayoutPercentage.Equal(dec("100")) {
		t.Errorf("percentage = %s, want 100", drafts[0].PayoutPercentage)
	}
}

func TestCalculate_CoverageWindowFiltersEvents(t *testing.T) {
	in := baseInput(t, []types.RiskEvent{
		riskEvent("re_early", time.Date(2024, 12, 20, 2, 0, 0, 0, time.UTC), types.Tier3),
		riskEvent("re_in", time.Date(2025, 6, 20, 2, 0, 0, 0, time.UTC), types.Tier1),
		riskEvent("re_late", time.Date(2026, 1, 20, 2, 0, 0, 0, time.UTC), types.Tier3),
	})

	drafts, err := testCalculator().Calculate(in)
	if err != nil {
		t.Fatalf("Calculate failed: %v", err)
	}
	if len(drafts) != 1 {
		t.Fatalf("got %d drafts, want 1 inside coverage", len(drafts))
	}
	if drafts[0].RiskEventID != "re_in" {
		t.Errorf("risk event id = %s, want re_in", drafts[0].RiskEventID)
	}
}

func TestCalculate_DisplayClipsByTriggeredAt(t *testing.T) {
	in := baseInput(t, []types.RiskEvent{
		riskEvent("re_a", time.Date(2025, 1, 20, 2, 0, 0, 0, time.UTC), types.Tier1),
		riskEvent("re_b", time.Date(2025, 2, 20, 2, 0, 0, 0, time.UTC), types.Tier1),
	})
	in.Display = &types.TimeRange{
		Start: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	}

	drafts, err := testCalculator().Calculate(in)
	if err != nil {
		t.Fatalf("Calculate failed: %v", err)
	}
	if len(drafts) != 1 {
		t.Fatalf("got %d drafts, want 1", len(drafts))
	}
	if drafts[0].RiskEventID != "re_b" {
		t.Errorf("risk event id = %s, want re_b", drafts[0].RiskEventID)
	}
}

func TestCalculate_UnknownFrequencyFallsBackToDaily(t *testing.T) {
	in := baseInput(t, []types.RiskEvent{
		riskEvent("re_a", time.Date(2025, 1, 20, 2, 0, 0, 0, time.UTC), types.Tier1),
		riskEvent("re_b", time.Date(2025, 1, 21, 2, 0, 0, 0, time.UTC), types.Tier1),
	})
	in.Payout.FrequencyLimit = types.FrequencyLimit("once_per_decade")

	drafts, err := testCalculator().Calculate(in)
	if err != nil {
		t.Fatalf("Calculate failed: %v", err)
	}
	// Daily fallback: two different Shanghai days, two drafts.
	if len(drafts) != 2 {
		t.Fatalf("got %d drafts, want 2 under the daily fallback", len(drafts))
	}
}

func TestCalculate_NoEvents(t *testing.T) {
	drafts, err := testCalculator().Calculate(baseInput(t, nil))
	if err != nil {
		t.Fatalf("Calculate failed: %v", err)
	}
	if drafts != nil {
		t.Fatalf("got %v, want nil", drafts)
	}
}
