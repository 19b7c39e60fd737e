package queue

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"golang.org/x/sync/errgroup"

	"indexcover/internal/types"
)

// Handler processes one raw task body. A nil return acknowledges the
// message. A fatal AppError (config_/input_/not_found_ codes) also
// acknowledges: redelivery cannot fix bad input. Any other error leaves
// the message for the visibility timeout to redeliver; the queue's
// redrive policy bounds the attempts and parks poison messages on the
// DLQ.
type Handler func(ctx context.Context, body []byte) error

// Consumer is a long-polling SQS worker loop. One Consumer owns one queue;
// messages within a receive batch are processed concurrently up to the
// configured limit.
type Consumer struct {
	client      SQSClient
	queueURL    string
	handler     Handler
	logger      *slog.Logger
	concurrency int
	waitTime    int32
	batchSize   int32
	backoff     time.Duration
}

// ConsumerOptions tunes the polling loop. Zero values fall back to
// defaults: 10 messages per receive, 20s long poll, 4 concurrent handlers,
// 5s backoff after a failed receive.
type ConsumerOptions struct {
	Concurrency    int
	WaitSeconds    int32
	BatchSize      int32
	ReceiveBackoff time.Duration
}

// NewConsumer creates a Consumer for the given queue.
func NewConsumer(client SQSClient, queueURL string, handler Handler, logger *slog.Logger, opts ConsumerOptions) *Consumer {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.WaitSeconds <= 0 {
		opts.WaitSeconds = 20
	}
	if opts.BatchSize <= 0 || opts.BatchSize > 10 {
		opts.BatchSize = 10
	}
	if opts.ReceiveBackoff <= 0 {
		opts.ReceiveBackoff = 5 * time.Second
	}
	return &Consumer{
		client:      client,
		queueURL:    queueURL,
		handler:     handler,
		logger:      logger,
		concurrency: opts.Concurrency,
		waitTime:    opts.WaitSeconds,
		batchSize:   opts.BatchSize,
		backoff:     opts.ReceiveBackoff,
	}
}

// Run polls the queue until the context is canceled. Receive errors are
// logged and retried with a short backoff rather than terminating the
// loop; only context cancellation stops a worker.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.InfoContext(ctx, "consumer started",
		"queue_url", c.queueURL,
		"concurrency", c.concurrency,
	)

	for {
		if err := ctx.Err(); err != nil {
			c.logger.InfoContext(ctx, "consumer stopping", "queue_url", c.queueURL)
			return err
		}

		out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:              aws.String(c.queueURL),
			MaxNumberOfMessages:   c.batchSize,
			WaitTimeSeconds:       c.waitTime,
			MessageAttributeNames: []string{"All"},
			AttributeNames:        []sqsTypes.QueueAttributeName{sqsTypes.QueueAttributeNameAll},
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.ErrorContext(ctx, "receive failed",
				"queue_url", c.queueURL,
				"error", err.Error(),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.backoff):
			}
			continue
		}

		if len(out.Messages) == 0 {
			continue
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(c.concurrency)
		for _, msg := range out.Messages {
			g.Go(func() error {
				c.processMessage(gctx, msg)
				return nil
			})
		}
		// Handlers never return errors through the group; this only waits.
		_ = g.Wait()
	}
}

// processMessage runs the handler and decides the message's fate.
func (c *Consumer) processMessage(ctx context.Context, msg sqsTypes.Message) {
	start := time.Now()
	messageID := aws.ToString(msg.MessageId)

	err := c.handler(ctx, []byte(aws.ToString(msg.Body)))
	if err == nil {
		c.delete(ctx, msg)
		c.logger.DebugContext(ctx, "message processed",
			"message_id", messageID,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return
	}

	var appErr *types.AppError
	if errors.As(err, &appErr) && appErr.Code.Fatal() {
		// Bad input cannot be fixed by redelivery; acknowledge and move on.
		c.logger.ErrorContext(ctx, "message dropped (non-retryable)",
			"message_id", messageID,
			"error_code", string(appErr.Code),
			"error", err.Error(),
		)
		c.delete(ctx, msg)
		return
	}

	// Transient failure: leave the message for redelivery.
	c.logger.WarnContext(ctx, "message processing failed, will be redelivered",
		"message_id", messageID,
		"error", err.Error(),
	)
}

func (c *Consumer) delete(ctx context.Context, msg sqsTypes.Message) {
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: msg.ReceiptHandle,
	})
	if err != nil {
		// The visibility timeout will redeliver; idempotent handlers make
		// the duplicate a no-op.
		c.logger.WarnContext(ctx, "failed to delete message",
			"message_id", aws.ToString(msg.MessageId),
			"error", err.Error(),
		)
	}
}
