package risk

import (
	"errors"
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

func rainfallRules() types.RiskRules {
	return types.RiskRules{
		TimeWindow: types.TimeWindow{Type: types.WindowHourly, Size: 4},
		Thresholds: types.Thresholds{Tier1: dec("50"), Tier2: dec("100"), Tier3: dec("150")},
		Calculation: types.Calculation{
			Aggregation: types.AggSum,
			Operator:    types.OpGreaterEq,
			Unit:        "mm",
		},
		WeatherType: types.WeatherRainfall,
	}
}

// hourlySeries builds n historical rainfall points at one-hour spacing
// starting at start, all with the same value.
func hourlySeries(start time.Time, n int, value string) []types.WeatherDataPoint {
	points := make([]types.WeatherDataPoint, n)
	for i := range points {
		points[i] = types.WeatherDataPoint{
			Timestamp:   start.Add(time.Duration(i) * time.Hour),
			RegionCode:  "CN-SH",
			WeatherType: types.WeatherRainfall,
			Value:       dec(value),
			Unit:        "mm",
			DataType:    types.DataHistorical,
		}
	}
	return points
}

func TestCalculate_RollingSumCrossesTier1(t *testing.T) {
	start := time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC)
	in := Input{
		Series:         hourlySeries(start, 8, "15"),
		Rules:          rainfallRules(),
		ProductID:      "prod-rain-01",
		ProductVersion: "1",
		RegionZone:     time.UTC,
	}

	events, err := Calculate(in)
	if err != nil {
		t.Fatalf("Calculate failed: %v", err)
	}

	// A four-point window is first complete at 03:00; every later end has
	// a full window too, each summing to 60 >= tier1.
	if len(events) != 5 {
		t.Fatalf("got %d events, want 5", len(events))
	}
	for i, e := range events {
		wantTS := start.Add(time.Duration(3+i) * time.Hour)
		if !e.Timestamp.Equal(wantTS) {
			t.Errorf("event %d timestamp = %v, want %v", i, e.Timestamp, wantTS)
		}
		if e.TierLevel != types.Tier1 {
			t.Errorf("event %d tier = %d, want 1", i, e.TierLevel)
		}
		if !e.TriggerValue.Equal(dec("60")) {
			t.Errorf("event %d trigger value = %s, want 60", i, e.TriggerValue)
		}
		if !e.ThresholdValue.Equal(dec("50")) {
			t.Errorf("event %d threshold value = %s, want 50", i, e.ThresholdValue)
		}
		if e.RegionCode != "CN-SH" || e.ProductID != "prod-rain-01" || e.DataType != types.DataHistorical {
			t.Errorf("event %d carries wrong provenance: %+v", i, e)
		}
	}
}

func TestCalculate_DisplayRangeClipsOutput(t *testing.T) {
	start := time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC)
	in := Input{
		Series:     hourlySeries(start, 8, "15"),
		Rules:      rainfallRules(),
		RegionZone: time.UTC,
		Display: &types.TimeRange{
			Start: start.Add(3 * time.Hour),
			End:   start.Add(5 * time.Hour),
		},
	}

	events, err := Calculate(in)
	if err != nil {
		t.Fatalf("Calculate failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3 inside the display range", len(events))
	}
	for _, e := range events {
		if e.Timestamp.Before(in.Display.Start) || e.Timestamp.After(in.Display.End) {
			t.Errorf("event at %v escaped the display range", e.Timestamp)
		}
	}
}

func TestCalculate_StepThrottlesWindowEnds(t *testing.T) {
	start := time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC)
	step := 2
	rules := rainfallRules()
	rules.TimeWindow.Step = &step

	events, err := Calculate(Input{
		Series:     hourlySeries(start, 8, "15"),
		Rules:      rules,
		RegionZone: time.UTC,
	})
	if err != nil {
		t.Fatalf("Calculate failed: %v", err)
	}

	// Candidates are 00, 02, 04, 06; only 04 and 06 have full windows.
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if !events[0].Timestamp.Equal(start.Add(4 * time.Hour)) {
		t.Errorf("first event at %v, want %v", events[0].Timestamp, start.Add(4*time.Hour))
	}
	if !events[1].Timestamp.Equal(start.Add(6 * time.Hour)) {
		t.Errorf("second event at %v, want %v", events[1].Timestamp, start.Add(6*time.Hour))
	}
}

func TestCalculate_UndersuppliedWindowIsSkipped(t *testing.T) {
	start := time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC)

	// Only 3 points can never fill a size-4 window even though their sum
	// would not cross anything anyway; use big values to prove the skip
	// is about window completeness, not thresholds.
	events, err := Calculate(Input{
		Series:     hourlySeries(start, 3, "500"),
		Rules:      rainfallRules(),
		RegionZone: time.UTC,
	})
	if err != nil {
		t.Fatalf("Calculate failed: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("got %d events from undersupplied windows, want 0", len(events))
	}
}

func TestCalculate_TierBoundaryBelongsToHigherTier(t *testing.T) {
	start := time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC)

	// 4 points of 25 sum to exactly 100: with >= the aggregate sits on the
	// tier2 threshold and must be classified tier2, not tier1.
	events, err := Calculate(Input{
		Series:     hourlySeries(start, 4, "25"),
		Rules:      rainfallRules(),
		RegionZone: time.UTC,
	})
	if err != nil {
		t.Fatalf("Calculate failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].TierLevel != types.Tier2 {
		t.Errorf("tier = %d, want 2", events[0].TierLevel)
	}
	if !events[0].ThresholdValue.Equal(dec("100")) {
		t.Errorf("threshold = %s, want 100", events[0].ThresholdValue)
	}
}

func TestCalculate_DescendingThresholdsForLessThan(t *testing.T) {
	start := time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC)
	rules := types.RiskRules{
		TimeWindow: types.TimeWindow{Type: types.WindowHourly, Size: 2},
		// Cold-snap style: lower is worse.
		Thresholds: types.Thresholds{Tier1: dec("5"), Tier2: dec("0"), Tier3: dec("-5")},
		Calculation: types.Calculation{
			Aggregation: types.AggMin,
			Operator:    types.OpLessEq,
			Unit:        "celsius",
		},
		WeatherType: types.WeatherTemperature,
	}

	series := []types.WeatherDataPoint{
		{Timestamp: start, RegionCode: "CN-SH", WeatherType: types.WeatherTemperature, Value: dec("3"), Unit: "celsius", DataType: types.DataHistorical},
		{Timestamp: start.Add(time.Hour), RegionCode: "CN-SH", WeatherType: types.WeatherTemperature, Value: dec("-2"), Unit: "celsius", DataType: types.DataHistorical},
		{Timestamp: start.Add(2 * time.Hour), RegionCode: "CN-SH", WeatherType: types.WeatherTemperature, Value: dec("-2"), Unit: "celsius", DataType: types.DataHistorical},
	}

	events, err := Calculate(Input{Series: series, Rules: rules, RegionZone: time.UTC})
	if err != nil {
		t.Fatalf("Calculate failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	// min(3, -2) = -2 <= 0 but not <= -5: tier2.
	for i, e := range events {
		if e.TierLevel != types.Tier2 {
			t.Errorf("event %d tier = %d, want 2", i, e.TierLevel)
		}
		if !e.TriggerValue.Equal(dec("-2")) {
			t.Errorf("event %d trigger = %s, want -2", i, e.TriggerValue)
		}
	}
}

func TestCalculate_EmptySeries(t *testing.T) {
	events, err := Calculate(Input{Rules: rainfallRules(), RegionZone: time.UTC})
	if err != nil {
		t.Fatalf("empty series must not error: %v", err)
	}
	if events != nil {
		t.Fatalf("got %v, want nil", events)
	}
}

func TestCalculate_InputOrderDoesNotMatter(t *testing.T) {
	start := time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC)
	series := hourlySeries(start, 6, "20")
	shuffled := []types.WeatherDataPoint{series[4], series[0], series[5], series[2], series[1], series[3]}

	sorted, err := Calculate(Input{Series: series, Rules: rainfallRules(), RegionZone: time.UTC})
	if err != nil {
		t.Fatalf("Calculate failed: %v", err)
	}
	unsorted, err := Calculate(Input{Series: shuffled, Rules: rainfallRules(), RegionZone: time.UTC})
	if err != nil {
		t.Fatalf("Calculate failed: %v", err)
	}

	if len(sorted) != len(unsorted) {
		t.Fatalf("event counts differ: %d vs %d", len(sorted), len(unsorted))
	}
	for i := range sorted {
		if !sorted[i].Timestamp.Equal(unsorted[i].Timestamp) || sorted[i].TierLevel != unsorted[i].TierLevel {
			t.Errorf("event %d differs across input orderings", i)
		}
	}
}

func TestCalculate_SeriesValidation(t *testing.T) {
	start := time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC)
	runID := "run-42"

	mixedRegion := hourlySeries(start, 4, "15")
	mixedRegion[2].RegionCode = "CN-BJ"

	mixedType := hourlySeries(start, 4, "15")
	mixedType[1].WeatherType = types.WeatherWind

	historicalWithRun := hourlySeries(start, 4, "15")
	historicalWithRun[0].PredictionRunID = &runID

	predictedNoRun := hourlySeries(start, 4, "15")
	for i := range predictedNoRun {
		predictedNoRun[i].DataType = types.DataPredicted
	}

	tests := []struct {
		name     string
		series   []types.WeatherDataPoint
		wantCode types.ErrorCode
	}{
		{"mixed region", mixedRegion, types.ErrCodeInputMixedSeries},
		{"mixed weather type", mixedType, types.ErrCodeInputMixedSeries},
		{"historical with run id", historicalWithRun, types.ErrCodeInputUnexpectedRunID},
		{"predicted without run id", predictedNoRun, types.ErrCodeInputMissingPredictionRun},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Calculate(Input{Series: tt.series, Rules: rainfallRules(), RegionZone: time.UTC})
			var appErr *types.AppError
			if !errors.As(err, &appErr) {
				t.Fatalf("expected AppError, got %v", err)
			}
			if appErr.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", appErr.Code, tt.wantCode)
			}
		})
	}
}

func TestCalculate_RulesWeatherTypeMustMatchSeries(t *testing.T) {
	start := time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC)
	rules := rainfallRules()
	rules.WeatherType = types.WeatherWind
	// Validate() would pass: the mismatch only surfaces against the series.
	rules.Calculation.Unit = "m/s"

	_, err := Calculate(Input{Series: hourlySeries(start, 4, "15"), Rules: rules, RegionZone: time.UTC})
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %v", err)
	}
	if appErr.Code != types.ErrCodeInputWeatherTypeMismatch {
		t.Errorf("code = %s, want %s", appErr.Code, types.ErrCodeInputWeatherTypeMismatch)
	}
}

func TestCalculate_RejectsMisorderedThresholds(t *testing.T) {
	start := time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC)
	rules := rainfallRules()
	rules.Thresholds = types.Thresholds{Tier1: dec("150"), Tier2: dec("100"), Tier3: dec("50")}

	_, err := Calculate(Input{Series: hourlySeries(start, 4, "15"), Rules: rules, RegionZone: time.UTC})
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %v", err)
	}
	if appErr.Code != types.ErrCodeConfigThresholdOrder {
		t.Errorf("code = %s, want %s", appErr.Code, types.ErrCodeConfigThresholdOrder)
	}
}
