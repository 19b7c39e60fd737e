// Package main is the entry point for the dispatcher CLI.
//
// The dispatcher fans one computation request out into independent queue
// tasks and exits. It is invoked on a schedule (EventBridge, cron) for
// routine runs and by operators for backfills:
//
//	dispatcher -mode risk  -start 2025-01-20T00:00:00Z -end 2025-01-21T00:00:00Z
//	dispatcher -mode claim -start ... -end ... -product prod_123
//	dispatcher -mode both                      # trailing 24h, all scopes
//
// Omitting -start/-end dispatches the trailing 24-hour window aligned to
// the current hour.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"indexcover/internal/config"
	"indexcover/internal/db"
	"indexcover/internal/dispatch"
	"indexcover/internal/queue"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		mode          = flag.String("mode", "both", "what to dispatch: risk, claim, or both")
		startFlag     = flag.String("start", "", "range start (RFC3339, UTC); default: 24h before -end")
		endFlag       = flag.String("end", "", "range end (RFC3339, UTC); default: current hour")
		productID     = flag.String("product", "", "restrict to one product")
		regionCode    = flag.String("region", "", "restrict to one region")
		predictionRun = flag.String("prediction-run", "", "forecast batch ID; switches risk dispatch to predicted data")
		reason        = flag.String("reason", "scheduled", "dispatch reason recorded on every task")
	)
	flag.Parse()

	cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION")))
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)

	rangeStart, rangeEnd, err := resolveRange(*startFlag, *endFlag)
	if err != nil {
		return err
	}

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return fmt.Errorf("loading AWS config: %w", err)
	}
	sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})

	d := &dispatch.Dispatcher{
		Products: db.NewProductRepository(pool),
		Policies: db.NewPolicyRepository(pool),
		Sender:   queue.NewTaskTrigger(sqsClient, cfg.AWS.RiskQueueURL, cfg.AWS.ClaimQueueURL, logger),
		Log:      logger,
	}

	logger.Info("dispatch starting",
		"mode", *mode,
		"range_start", rangeStart,
		"range_end", rangeEnd,
		"product_id", *productID,
		"region_code", *regionCode,
		"reason", *reason,
	)

	var runID *string
	if *predictionRun != "" {
		runID = predictionRun
	}

	if *mode == "risk" || *mode == "both" {
		n, err := d.DispatchRisk(ctx, dispatch.RiskScope{
			RangeStart:      rangeStart,
			RangeEnd:        rangeEnd,
			ProductID:       *productID,
			RegionCode:      *regionCode,
			PredictionRunID: runID,
			Reason:          *reason,
		})
		if err != nil {
			return err
		}
		logger.Info("risk tasks dispatched", "count", n)
	}

	if *mode == "claim" || *mode == "both" {
		n, err := d.DispatchClaims(ctx, dispatch.ClaimScope{
			RangeStart: rangeStart,
			RangeEnd:   rangeEnd,
			ProductID:  *productID,
			RegionCode: *regionCode,
			Reason:     *reason,
		})
		if err != nil {
			return err
		}
		logger.Info("claim tasks dispatched", "count", n)
	}

	return nil
}

// resolveRange applies the defaults: end = current hour, start = end - 24h.
func resolveRange(startFlag, endFlag string) (time.Time, time.Time, error) {
	end := time.Now().UTC().Truncate(time.Hour)
	if endFlag != "" {
		parsed, err := time.Parse(time.RFC3339, endFlag)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid -end: %w", err)
		}
		end = parsed.UTC()
	}

	start := end.Add(-24 * time.Hour)
	if startFlag != "" {
		parsed, err := time.Parse(time.RFC3339, startFlag)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid -start: %w", err)
		}
		start = parsed.UTC()
	}

	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("range end %s must be after start %s", end, start)
	}
	return start, end, nil
}

// newLogger creates a structured JSON logger for the given level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
