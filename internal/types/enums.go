package types

// DataType distinguishes observed weather facts from forecast batches.
type DataType string

const (
	DataHistorical DataType = "historical"
	DataPredicted  DataType = "predicted"
)

// WeatherType identifies the metric a product's rules are written against.
type WeatherType string

const (
	WeatherRainfall    WeatherType = "rainfall"
	WeatherWind        WeatherType = "wind"
	WeatherTemperature WeatherType = "temperature"
)

// WindowType defines the granularity of a risk calculation window.
// Hourly windows are continuous UTC lookbacks; daily, weekly and monthly
// windows snap to calendar boundaries in the risk region's time zone.
type WindowType string

const (
	WindowHourly  WindowType = "hourly"
	WindowDaily   WindowType = "daily"
	WindowWeekly  WindowType = "weekly"
	WindowMonthly WindowType = "monthly"
)

// Aggregation is the closed set of window aggregation functions.
// Anything outside this set is a fatal configuration error, not a
// runtime fallback.
type Aggregation string

const (
	AggSum Aggregation = "sum"
	AggAvg Aggregation = "avg"
	AggMax Aggregation = "max"
	AggMin Aggregation = "min"
)

// CompareOperator defines how an aggregate is compared against the tier
// thresholds. The operator also fixes the required threshold ordering:
// ascending for >= and >, descending for <= and <.
type CompareOperator string

const (
	OpGreaterEq CompareOperator = ">="
	OpGreater   CompareOperator = ">"
	OpLessEq    CompareOperator = "<="
	OpLess      CompareOperator = "<"
)

// TierLevel is one of the three ordered severity levels a metric can cross.
// Zero means no tier was reached and no event is emitted.
type TierLevel int

const (
	TierNone TierLevel = 0
	Tier1    TierLevel = 1
	Tier2    TierLevel = 2
	Tier3    TierLevel = 3
)

// FrequencyLimit bounds how often a policy can generate a claim.
type FrequencyLimit string

const (
	OncePerDayPerPolicy   FrequencyLimit = "once_per_day_per_policy"
	OncePerMonthPerPolicy FrequencyLimit = "once_per_month_per_policy"
)

// TaskStatus is the terminal outcome of one computation unit. Skips are
// expected outcomes and never surface as errors.
type TaskStatus string

const (
	TaskCompleted TaskStatus = "completed"
	TaskSkipped   TaskStatus = "skipped"
	TaskQueued    TaskStatus = "queued"
)

// SkipReason explains a TaskSkipped outcome.
type SkipReason string

const (
	SkipConcurrentLock        SkipReason = "concurrent_lock"
	SkipPredictedNotSupported SkipReason = "predicted_not_supported"
	SkipMissingPolicyTimezone SkipReason = "missing_policy_timezone"
	SkipMissingPayoutRules    SkipReason = "missing_payout_rules"
)

// ClaimStatus is the lifecycle state of a persisted claim. The calculation
// core only ever writes ClaimComputed; review transitions belong to the
// claims management surface.
type ClaimStatus string

const (
	ClaimComputed ClaimStatus = "computed"
	ClaimApproved ClaimStatus = "approved"
	ClaimRejected ClaimStatus = "rejected"
)
