package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// WeatherDataPoint is a single observation or forecast value. Values are
// exact decimals; float64 never touches monetary or metric arithmetic.
type WeatherDataPoint struct {
	Timestamp       time.Time       `json:"timestamp" db:"timestamp"`
	RegionCode      string          `json:"region_code" db:"region_code"`
	WeatherType     WeatherType     `json:"weather_type" db:"weather_type"`
	Value           decimal.Decimal `json:"value" db:"value"`
	Unit            string          `json:"unit" db:"unit"`
	DataType        DataType        `json:"data_type" db:"data_type"`
	PredictionRunID *string         `json:"prediction_run_id,omitempty" db:"prediction_run_id"`
}

// TimeWindow configures the risk calculation window.
type TimeWindow struct {
	Type WindowType `json:"type" validate:"required,oneof=hourly daily weekly monthly"`
	Size int        `json:"size" validate:"required,min=1"`
	// Step throttles candidate window-end selection, in Type units.
	// Nil means 1.
	Step *int `json:"step,omitempty" validate:"omitempty,min=1"`
}

// StepOrDefault returns the configured step, defaulting to 1.
func (w TimeWindow) StepOrDefault() int {
	if w.Step == nil || *w.Step < 1 {
		return 1
	}
	return *w.Step
}

// Thresholds holds the three-tier trigger values. Ordering depends on the
// operator direction: ascending for >= and >, descending for <= and <.
type Thresholds struct {
	Tier1 decimal.Decimal `json:"tier1"`
	Tier2 decimal.Decimal `json:"tier2"`
	Tier3 decimal.Decimal `json:"tier3"`
}

// ForTier returns the threshold value for the given tier, zero for TierNone.
func (t Thresholds) ForTier(tier TierLevel) decimal.Decimal {
	switch tier {
	case Tier1:
		return t.Tier1
	case Tier2:
		return t.Tier2
	case Tier3:
		return t.Tier3
	}
	return decimal.Zero
}

// Calculation configures how window values are aggregated and compared.
type Calculation struct {
	Aggregation Aggregation     `json:"aggregation" validate:"required,oneof=sum avg max min"`
	Operator    CompareOperator `json:"operator" validate:"required,oneof=>= > <= <"`
	Unit        string          `json:"unit" validate:"required"`
}

// RiskRules is the product-owned rule set consumed by the risk calculator.
// It is read-only input and never carries payout information.
type RiskRules struct {
	TimeWindow  TimeWindow  `json:"time_window" validate:"required"`
	Thresholds  Thresholds  `json:"thresholds" validate:"required"`
	Calculation Calculation `json:"calculation" validate:"required"`
	WeatherType WeatherType `json:"weather_type" validate:"required,oneof=rainfall wind temperature"`
}

// Validate enforces the rule-set invariants that the struct tags cannot
// express: positive window size, known enum members, and threshold ordering
// consistent with the operator direction.
func (r RiskRules) Validate() error {
	if r.TimeWindow.Size < 1 {
		return NewAppError(ErrCodeConfigWindowSize, "timeWindow.size must be positive", nil)
	}
	switch r.TimeWindow.Type {
	case WindowHourly, WindowDaily, WindowWeekly, WindowMonthly:
	default:
		return NewAppErrorWithDetails(ErrCodeConfigUnknownWindowType, "unknown window type", nil,
			map[string]any{"window_type": string(r.TimeWindow.Type)})
	}
	switch r.Calculation.Aggregation {
	case AggSum, AggAvg, AggMax, AggMin:
	default:
		return NewAppErrorWithDetails(ErrCodeConfigUnknownAggregation, "unknown aggregation", nil,
			map[string]any{"aggregation": string(r.Calculation.Aggregation)})
	}
	switch r.Calculation.Operator {
	case OpGreaterEq, OpGreater:
		if !(r.Thresholds.Tier1.LessThan(r.Thresholds.Tier2) && r.Thresholds.Tier2.LessThan(r.Thresholds.Tier3)) {
			return NewAppError(ErrCodeConfigThresholdOrder,
				"thresholds must be strictly ascending for "+string(r.Calculation.Operator), nil)
		}
	case OpLessEq, OpLess:
		if !(r.Thresholds.Tier1.GreaterThan(r.Thresholds.Tier2) && r.Thresholds.Tier2.GreaterThan(r.Thresholds.Tier3)) {
			return NewAppError(ErrCodeConfigThresholdOrder,
				"thresholds must be strictly descending for "+string(r.Calculation.Operator), nil)
		}
	default:
		return NewAppErrorWithDetails(ErrCodeConfigUnknownOperator, "unknown comparison operator", nil,
			map[string]any{"operator": string(r.Calculation.Operator)})
	}
	return nil
}

// PayoutPercentages holds the per-tier payout ratios, in percent of the
// policy coverage amount. Tiers must be strictly ascending.
type PayoutPercentages struct {
	Tier1 decimal.Decimal `json:"tier1"`
	Tier2 decimal.Decimal `json:"tier2"`
	Tier3 decimal.Decimal `json:"tier3"`
}

// ForTier returns the payout percentage for the given tier, zero for TierNone.
func (p PayoutPercentages) ForTier(tier TierLevel) decimal.Decimal {
	switch tier {
	case Tier1:
		return p.Tier1
	case Tier2:
		return p.Tier2
	case Tier3:
		return p.Tier3
	}
	return decimal.Zero
}

// PayoutRules is the product-owned payout rule set consumed by the claim
// calculator.
type PayoutRules struct {
	FrequencyLimit    FrequencyLimit    `json:"frequency_limit"`
	PayoutPercentages PayoutPercentages `json:"payout_percentages"`
	// TotalCap is a percentage of coverage_amount; nil means uncapped.
	TotalCap *decimal.Decimal `json:"total_cap,omitempty"`
}

// Product carries the versioned rule configurations for one insurance
// product. Rules are stored as JSONB and must be read in admin mode so the
// calculators never see redacted values.
type Product struct {
	ID          string           `json:"id" db:"id"`
	Version     string           `json:"version" db:"version"`
	Name        string           `json:"name" db:"name"`
	WeatherType WeatherType      `json:"weather_type" db:"weather_type"`
	RiskRules   RiskRulesJSON    `json:"risk_rules" db:"risk_rules"`
	PayoutRules *PayoutRulesJSON `json:"payout_rules,omitempty" db:"payout_rules"`
	IsActive    bool             `json:"is_active" db:"is_active"`
	CreatedAt   time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at" db:"updated_at"`
}

// Policy is the external coverage contract a claim computation runs against.
// Timezone is the IANA name of the policy's business time zone and is
// mandatory for claim computation.
type Policy struct {
	ID             string          `json:"id" db:"id"`
	ProductID      string          `json:"product_id" db:"product_id"`
	CoverageRegion string          `json:"coverage_region" db:"coverage_region"`
	CoverageAmount decimal.Decimal `json:"coverage_amount" db:"coverage_amount"`
	Timezone       string          `json:"timezone" db:"timezone"`
	CoverageStart  time.Time       `json:"coverage_start" db:"coverage_start"`
	CoverageEnd    time.Time       `json:"coverage_end" db:"coverage_end"`
	IsActive       bool            `json:"is_active" db:"is_active"`
}

// RiskEvent is a timestamped tier crossing. It exists only as the
// deterministic output of one window evaluation and is never mutated after
// creation. ID is the deterministic fact identifier assigned before insert.
type RiskEvent struct {
	ID              string          `json:"id" db:"id"`
	Timestamp       time.Time       `json:"timestamp" db:"timestamp"`
	RegionCode      string          `json:"region_code" db:"region_code"`
	WeatherType     WeatherType     `json:"weather_type" db:"weather_type"`
	TierLevel       TierLevel       `json:"tier_level" db:"tier_level"`
	TriggerValue    decimal.Decimal `json:"trigger_value" db:"trigger_value"`
	ThresholdValue  decimal.Decimal `json:"threshold_value" db:"threshold_value"`
	ProductID       string          `json:"product_id" db:"product_id"`
	ProductVersion  string          `json:"product_version" db:"product_version"`
	DataType        DataType        `json:"data_type" db:"data_type"`
	PredictionRunID *string         `json:"prediction_run_id,omitempty" db:"prediction_run_id"`
}

// ClaimDraft is a computed payout fact for one (policy, frequency period).
// At most one draft exists per period regardless of how many risk events
// fall inside it. ID and RulesHash are assigned before insert.
type ClaimDraft struct {
	ID               string          `json:"id" db:"id"`
	PolicyID         string          `json:"policy_id" db:"policy_id"`
	ProductID        string          `json:"product_id" db:"product_id"`
	ProductVersion   string          `json:"product_version" db:"product_version"`
	RiskEventID      string          `json:"risk_event_id" db:"risk_event_id"`
	RegionCode       string          `json:"region_code" db:"region_code"`
	TierLevel        TierLevel       `json:"tier_level" db:"tier_level"`
	PayoutPercentage decimal.Decimal `json:"payout_percentage" db:"payout_percentage"`
	PayoutAmount     decimal.Decimal `json:"payout_amount" db:"payout_amount"`
	TriggeredAt      time.Time       `json:"triggered_at" db:"triggered_at"`
	PeriodStart      time.Time       `json:"period_start" db:"period_start"`
	PeriodEnd        time.Time       `json:"period_end" db:"period_end"`
	Status           ClaimStatus     `json:"status" db:"status"`
	RulesHash        string          `json:"rules_hash" db:"rules_hash"`
	Source           string          `json:"source" db:"source"`
}

// TimeRange is a half-open-by-convention UTC display range [Start, End].
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the range, bounds inclusive.
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// Valid reports whether End is after Start.
func (r TimeRange) Valid() bool {
	return r.End.After(r.Start)
}

// TaskResult is the structured outcome of one computation unit. Skips are
// expected states reported through Status/Reason, never through errors.
type TaskResult struct {
	Status           TaskStatus `json:"status"`
	Reason           SkipReason `json:"reason,omitempty"`
	ProductID        string     `json:"product_id,omitempty"`
	PolicyID         string     `json:"policy_id,omitempty"`
	RegionCode       string     `json:"region_code,omitempty"`
	EventsCalculated int        `json:"events_calculated"`
	EventsWritten    int        `json:"events_written"`
	EventsSkipped    int        `json:"events_skipped"`
	ClaimsGenerated  int        `json:"claims_generated"`
	ClaimsWritten    int        `json:"claims_written"`
	RiskEventsRead   int        `json:"risk_events_read"`
}
