// Package risk implements the risk calculation engine. It consumes a
// homogeneous weather time series plus a product's risk rule set and emits
// tier-crossing events. The engine is pure: no I/O, no clock, no store
// access. It reads only risk rules, never payout rules.
package risk

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"indexcover/internal/timealign"
	"indexcover/internal/types"
)

// Input bundles one risk computation request. Series is expected to cover
// the extended calculation range; Display, when set, strictly clips the
// emitted events back to the caller's display range.
type Input struct {
	Series         []types.WeatherDataPoint
	Rules          types.RiskRules
	ProductID      string
	ProductVersion string
	RegionZone     *time.Location
	Display        *types.TimeRange
}

// Calculate evaluates the rule set over the series and returns the risk
// events whose window ends crossed a tier threshold.
//
// Candidate window ends are the series' own timestamps, throttled so that
// consecutive candidates are at least one step unit apart. Windows with
// fewer than size points are silently skipped: an undersupplied window is
// unknown, not risk-free. The extended lookback is a computation aid only;
// output is clipped to Display before returning.
func Calculate(in Input) ([]types.RiskEvent, error) {
	if len(in.Series) == 0 {
		return nil, nil
	}
	if err := in.Rules.Validate(); err != nil {
		return nil, err
	}

	series := make([]types.WeatherDataPoint, len(in.Series))
	copy(series, in.Series)
	sort.SliceStable(series, func(i, j int) bool {
		return series[i].Timestamp.Before(series[j].Timestamp)
	})

	if err := validateSeries(series, in.Rules); err != nil {
		return nil, err
	}

	window := in.Rules.TimeWindow
	ends, err := selectWindowEnds(series, window.Type, window.StepOrDefault(), in.RegionZone)
	if err != nil {
		return nil, err
	}

	var events []types.RiskEvent
	for _, end := range ends {
		start, err := timealign.WindowStart(end, window.Type, window.Size, in.RegionZone)
		if err != nil {
			return nil, err
		}

		values := collectWindow(series, start, end)
		if len(values) < window.Size {
			continue
		}

		aggregate, err := aggregateValues(values, in.Rules.Calculation.Aggregation)
		if err != nil {
			return nil, err
		}
		tier, err := determineTier(aggregate, in.Rules.Thresholds, in.Rules.Calculation.Operator)
		if err != nil {
			return nil, err
		}
		if tier == types.TierNone {
			continue
		}

		events = append(events, types.RiskEvent{
			Timestamp:       end,
			RegionCode:      series[0].RegionCode,
			WeatherType:     in.Rules.WeatherType,
			TierLevel:       tier,
			TriggerValue:    aggregate,
			ThresholdValue:  in.Rules.Thresholds.ForTier(tier),
			ProductID:       in.ProductID,
			ProductVersion:  in.ProductVersion,
			DataType:        series[0].DataType,
			PredictionRunID: series[0].PredictionRunID,
		})
	}

	if in.Display != nil && in.Display.Valid() {
		clipped := events[:0]
		for _, e := range events {
			if in.Display.Contains(e.Timestamp) {
				clipped = append(clipped, e)
			}
		}
		events = clipped
	}

	return events, nil
}

// validateSeries enforces the homogeneity contract on an already-sorted
// series: one region, one weather type, one data type, one prediction run.
// Predicted series must carry a run ID; historical series must not.
func validateSeries(series []types.WeatherDataPoint, rules types.RiskRules) error {
	if len(series) == 0 {
		return types.NewAppError(types.ErrCodeInputEmptySeries, "weather series must not be empty", nil)
	}

	first := series[0]
	for _, p := range series {
		if p.RegionCode != first.RegionCode {
			return types.NewAppError(types.ErrCodeInputMixedSeries, "weather series contains mixed region_code", nil)
		}
		if p.WeatherType != first.WeatherType {
			return types.NewAppError(types.ErrCodeInputMixedSeries, "weather series contains mixed weather_type", nil)
		}
		if p.DataType != first.DataType {
			return types.NewAppError(types.ErrCodeInputMixedSeries, "weather series contains mixed data_type", nil)
		}
		if p.DataType == types.DataPredicted && !sameRunID(p.PredictionRunID, first.PredictionRunID) {
			return types.NewAppError(types.ErrCodeInputMixedSeries, "weather series contains mixed prediction_run_id", nil)
		}
	}

	switch first.DataType {
	case types.DataPredicted:
		if first.PredictionRunID == nil || *first.PredictionRunID == "" {
			return types.NewAppError(types.ErrCodeInputMissingPredictionRun,
				"prediction_run_id required for predicted weather series", nil)
		}
	case types.DataHistorical:
		if first.PredictionRunID != nil && *first.PredictionRunID != "" {
			return types.NewAppError(types.ErrCodeInputUnexpectedRunID,
				"historical weather series must not carry a prediction_run_id", nil)
		}
	}

	if rules.WeatherType != first.WeatherType {
		return types.NewAppErrorWithDetails(types.ErrCodeInputWeatherTypeMismatch,
			"risk rules weather_type must match the series", nil,
			map[string]any{
				"rules_weather_type":  string(rules.WeatherType),
				"series_weather_type": string(first.WeatherType),
			})
	}

	return nil
}

func sameRunID(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// selectWindowEnds walks the sorted series and keeps a timestamp only if it
// is at least one step unit past the previously selected one. The first
// point is always selected. This throttling is intentional sampling over
// sparse or irregular series, not an optimization to be "fixed".
func selectWindowEnds(series []types.WeatherDataPoint, windowType types.WindowType, step int, loc *time.Location) ([]time.Time, error) {
	var selected []time.Time
	var last time.Time

	for i, p := range series {
		t := p.Timestamp.UTC()
		if i == 0 {
			selected = append(selected, t)
			last = t
			continue
		}
		reached, err := timealign.StepReached(last, t, windowType, step, loc)
		if err != nil {
			return nil, err
		}
		if reached {
			selected = append(selected, t)
			last = t
		}
	}

	return selected, nil
}

// collectWindow returns the values with start < timestamp <= end.
func collectWindow(series []types.WeatherDataPoint, start, end time.Time) []decimal.Decimal {
	var values []decimal.Decimal
	for _, p := range series {
		t := p.Timestamp.UTC()
		if t.After(start) && !t.After(end) {
			values = append(values, p.Value)
		}
	}
	return values
}

func aggregateValues(values []decimal.Decimal, agg types.Aggregation) (decimal.Decimal, error) {
	switch agg {
	case types.AggSum:
		return decimal.Sum(values[0], values[1:]...), nil
	case types.AggAvg:
		return decimal.Avg(values[0], values[1:]...), nil
	case types.AggMax:
		return decimal.Max(values[0], values[1:]...), nil
	case types.AggMin:
		return decimal.Min(values[0], values[1:]...), nil
	default:
		return decimal.Zero, types.NewAppErrorWithDetails(types.ErrCodeConfigUnknownAggregation,
			"unknown aggregation", nil, map[string]any{"aggregation": string(agg)})
	}
}

// determineTier compares the aggregate against the thresholds with the
// rule's operator. Tier 3 is checked first so the highest tier wins when an
// aggregate sits exactly on a shared boundary.
func determineTier(value decimal.Decimal, th types.Thresholds, op types.CompareOperator) (types.TierLevel, error) {
	var crossed func(threshold decimal.Decimal) bool
	switch op {
	case types.OpGreaterEq:
		crossed = func(t decimal.Decimal) bool { return value.GreaterThanOrEqual(t) }
	case types.OpGreater:
		crossed = func(t decimal.Decimal) bool { return value.GreaterThan(t) }
	case types.OpLessEq:
		crossed = func(t decimal.Decimal) bool { return value.LessThanOrEqual(t) }
	case types.OpLess:
		crossed = func(t decimal.Decimal) bool { return value.LessThan(t) }
	default:
		return types.TierNone, types.NewAppErrorWithDetails(types.ErrCodeConfigUnknownOperator,
			"unknown comparison operator", nil, map[string]any{"operator": string(op)})
	}

	switch {
	case crossed(th.Tier3):
		return types.Tier3, nil
	case crossed(th.Tier2):
		return types.Tier2, nil
	case crossed(th.Tier1):
		return types.Tier1, nil
	default:
		return types.TierNone, nil
	}
}
