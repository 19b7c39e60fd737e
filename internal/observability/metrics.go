// Package observability emits CloudWatch telemetry for the computation
// workers and the dispatcher.
package observability

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"indexcover/internal/types"
)

// MetricNamespace is the CloudWatch namespace for all core metrics.
const MetricNamespace = "IndexCover"

// Metric and dimension names.
const (
	MetricTaskOutcome  = "TaskOutcome"
	MetricTaskLatency  = "TaskLatency"
	MetricFactsWritten = "FactsWritten"
	MetricQueueLag     = "QueueLag"

	DimTaskType = "TaskType"
	DimOutcome  = "Outcome"
	DimFactType = "FactType"
)

// TaskType dimension values.
const (
	TaskTypeRisk  = "risk"
	TaskTypeClaim = "claim"
)

// CloudWatchClient abstracts the PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// TaskMetrics records per-task telemetry. Metric emission never fails a
// task: publish errors are logged and swallowed.
type TaskMetrics interface {
	RecordOutcome(ctx context.Context, taskType string, status types.TaskStatus)
	RecordLatency(ctx context.Context, taskType string, duration time.Duration)
	RecordFactsWritten(ctx context.Context, factType string, count int)
	RecordQueueLag(ctx context.Context, lag time.Duration)
}

// CloudWatchTaskMetrics implements TaskMetrics against AWS CloudWatch.
type CloudWatchTaskMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

var _ TaskMetrics = (*CloudWatchTaskMetrics)(nil)

// NewCloudWatchTaskMetrics creates a TaskMetrics publishing to the
// IndexCover namespace.
func NewCloudWatchTaskMetrics(client CloudWatchClient, logger *slog.Logger) *CloudWatchTaskMetrics {
	return &CloudWatchTaskMetrics{
		client:    client,
		namespace: MetricNamespace,
		logger:    logger,
	}
}

// RecordOutcome emits one TaskOutcome count with TaskType and Outcome
// dimensions. Skips are a first-class outcome, not an error.
func (m *CloudWatchTaskMetrics) RecordOutcome(ctx context.Context, taskType string, status types.TaskStatus) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(MetricTaskOutcome),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String(DimTaskType), Value: aws.String(taskType)},
			{Name: aws.String(DimOutcome), Value: aws.String(string(status))},
		},
	})
}

// RecordLatency emits the wall-clock duration of one task in milliseconds.
func (m *CloudWatchTaskMetrics) RecordLatency(ctx context.Context, taskType string, duration time.Duration) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(MetricTaskLatency),
		Value:      aws.Float64(float64(duration.Milliseconds())),
		Unit:       cwtypes.StandardUnitMilliseconds,
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String(DimTaskType), Value: aws.String(taskType)},
		},
	})
}

// RecordFactsWritten emits the number of new facts persisted by one task.
func (m *CloudWatchTaskMetrics) RecordFactsWritten(ctx context.Context, factType string, count int) {
	if count == 0 {
		return
	}
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(MetricFactsWritten),
		Value:      aws.Float64(float64(count)),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String(DimFactType), Value: aws.String(factType)},
		},
	})
}

// RecordQueueLag emits the time between task enqueue and processing start.
func (m *CloudWatchTaskMetrics) RecordQueueLag(ctx context.Context, lag time.Duration) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(MetricQueueLag),
		Value:      aws.Float64(float64(lag.Milliseconds())),
		Unit:       cwtypes.StandardUnitMilliseconds,
	})
}

func (m *CloudWatchTaskMetrics) put(ctx context.Context, datum cwtypes.MetricDatum) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{datum},
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.ErrorContext(ctx, "failed to publish metric",
			"metric", aws.ToString(datum.MetricName),
			"error", err.Error(),
		)
	}
}

// NopTaskMetrics discards all telemetry. Used in tests and local runs.
type NopTaskMetrics struct{}

var _ TaskMetrics = NopTaskMetrics{}

func (NopTaskMetrics) RecordOutcome(context.Context, string, types.TaskStatus) {}
func (NopTaskMetrics) RecordLatency(context.Context, string, time.Duration)    {}
func (NopTaskMetrics) RecordFactsWritten(context.Context, string, int)         {}
func (NopTaskMetrics) RecordQueueLag(context.Context, time.Duration)           {}
