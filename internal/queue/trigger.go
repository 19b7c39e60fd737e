// Package queue provides SQS-based producers and consumers for the
// computation task queues. The dispatcher produces RiskComputeTask and
// ClaimComputeTask payloads; worker processes consume them with long
// polling.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"indexcover/internal/types"
)

// SQSClient abstracts the SQS operations used by this package for
// testability. Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSClient interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// TaskTrigger sends computation tasks to the risk and claim queues. Each
// task is one independent computation unit; SQS provides no ordering and
// none is needed because outputs are keyed by deterministic content.
type TaskTrigger struct {
	client        SQSClient
	riskQueueURL  string
	claimQueueURL string
	logger        *slog.Logger
}

// NewTaskTrigger creates a TaskTrigger publishing to the given queue URLs.
func NewTaskTrigger(client SQSClient, riskQueueURL, claimQueueURL string, logger *slog.Logger) *TaskTrigger {
	return &TaskTrigger{
		client:        client,
		riskQueueURL:  riskQueueURL,
		claimQueueURL: claimQueueURL,
		logger:        logger,
	}
}

// SendRiskTask enqueues one risk computation unit.
func (t *TaskTrigger) SendRiskTask(ctx context.Context, task types.RiskComputeTask, reason string) error {
	return t.send(ctx, t.riskQueueURL, task, reason, []any{
		"product_id", task.ProductID,
		"region_code", task.RegionCode,
		"batch_id", task.BatchID,
		"trace_id", task.TraceID,
	})
}

// SendClaimTask enqueues one claim computation unit.
func (t *TaskTrigger) SendClaimTask(ctx context.Context, task types.ClaimComputeTask, reason string) error {
	return t.send(ctx, t.claimQueueURL, task, reason, []any{
		"policy_id", task.PolicyID,
		"batch_id", task.BatchID,
		"trace_id", task.TraceID,
	})
}

func (t *TaskTrigger) send(ctx context.Context, queueURL string, task any, reason string, logAttrs []any) error {
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal task: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"reason": {
				DataType:    aws.String("String"),
				StringValue: aws.String(reason),
			},
		},
	}

	if _, err := t.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("queue: failed to send task to %s: %w", queueURL, err)
	}

	attrs := append([]any{"queue_url", queueURL, "reason", reason}, logAttrs...)
	t.logger.InfoContext(ctx, "computation task sent", attrs...)
	return nil
}
