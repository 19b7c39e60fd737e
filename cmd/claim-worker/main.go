// Package main is the entry point for the claim worker process.
//
// The claim worker long-polls the claim task queue. Each task names one
// (policy, time range) computation unit; the worker acquires the unit's
// lease, loads the policy's historical risk events, applies the product's
// payout rules per frequency period, and persists new claim drafts
// idempotently.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/redis/go-redis/v9"

	"indexcover/internal/claim"
	"indexcover/internal/compute"
	"indexcover/internal/config"
	"indexcover/internal/core"
	"indexcover/internal/db"
	"indexcover/internal/lock"
	"indexcover/internal/observability"
	"indexcover/internal/queue"
)

func main() {
	if err := run(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION")))
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("claim worker starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	redisOpts, err := redis.ParseURL(cfg.Lock.RedisURL.Unmask())
	if err != nil {
		return fmt.Errorf("invalid redis URL: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return fmt.Errorf("loading AWS config: %w", err)
	}
	sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})
	cwClient := cloudwatch.NewFromConfig(awsCfg)

	runner := compute.NewClaimTaskRunner(
		db.NewPolicyRepository(pool),
		db.NewProductRepository(pool),
		db.NewRiskEventRepository(pool),
		db.NewClaimRepository(pool),
		lock.NewRedisLease(redisClient),
		claim.NewCalculator(logger),
		observability.NewCloudWatchTaskMetrics(cwClient, logger),
		logger,
		cfg.Lock.ClaimTTL,
	)

	consumer := queue.NewConsumer(sqsClient, cfg.AWS.ClaimQueueURL, runner.HandleMessage, logger, queue.ConsumerOptions{
		Concurrency: cfg.Worker.Concurrency,
		WaitSeconds: cfg.Worker.WaitSeconds,
		BatchSize:   cfg.Worker.BatchSize,
	})

	health := &core.HealthServer{
		Probes: []core.HealthProbe{
			core.PoolProbe{Pool: pool},
			core.RedisProbe{Client: redisClient},
		},
		Build: cfg.Build,
	}
	httpServer := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: health.Router(),
	}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("health listener failed", "error", err.Error())
		}
	}()

	err = consumer.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info("claim worker stopped")
	return err
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
