package types

import "time"

// RiskComputeTask is the SQS payload for one risk computation unit: one
// (product, region, UTC time range). JSON tags use snake_case to match the
// dispatcher contract. Tasks carry no ordering guarantee; outputs are keyed
// by deterministic content, not submission order.
type RiskComputeTask struct {
	ProductID  string    `json:"product_id"`
	RegionCode string    `json:"region_code"`
	RangeStart time.Time `json:"time_range_start"`
	RangeEnd   time.Time `json:"time_range_end"`

	// PredictionRunID scopes a forecast batch. Nil for historical runs.
	PredictionRunID *string `json:"prediction_run_id,omitempty"`

	// Observability
	BatchID string `json:"batch_id"`
	TraceID string `json:"trace_id"`
}

// ClaimComputeTask is the SQS payload for one claim computation unit: one
// (policy, UTC time range). ProductID is optional; when empty the worker
// resolves it from the policy.
type ClaimComputeTask struct {
	PolicyID   string    `json:"policy_id"`
	ProductID  string    `json:"product_id,omitempty"`
	RangeStart time.Time `json:"time_range_start"`
	RangeEnd   time.Time `json:"time_range_end"`

	// Observability
	BatchID string `json:"batch_id"`
	TraceID string `json:"trace_id"`
}
