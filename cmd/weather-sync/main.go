// Package main is the entry point for the weather sync process.
//
// The syncer periodically pulls the trailing observation window for every
// configured (region, weather type) series from the upstream provider and
// lands it in the weather fact table. Ingestion is idempotent on the
// series natural key, so overlapping windows are harmless.
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

	"github.com/jonboulle/clockwork"

	"indexcover/internal/config"
	"indexcover/internal/core"
	"indexcover/internal/db"
	"indexcover/internal/external"
	"indexcover/internal/ingest"
	"indexcover/internal/types"
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
	logger.Info("weather sync starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"lookback", cfg.Weather.SyncLookback.String(),
		"interval", cfg.Weather.SyncInterval.String(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	entries, err := cfg.Weather.Series()
	if err != nil {
		return err
	}
	series := make([]ingest.Series, 0, len(entries))
	for _, e := range entries {
		series = append(series, ingest.Series{
			RegionCode:  e.RegionCode,
			WeatherType: types.WeatherType(e.WeatherType),
		})
	}
	if len(series) == 0 {
		return fmt.Errorf("no sync series configured (WEATHER_SYNC_SERIES)")
	}

	provider := external.NewWeatherAPIClient(
		external.NewBaseClient(
			&http.Client{Timeout: cfg.Weather.Timeout},
			"weather-api",
			external.DefaultRetryPolicy(),
			cfg.Weather.UserAgent,
		),
		cfg.Weather.BaseURL,
		cfg.Weather.APIKey.Unmask(),
	)

	clock := clockwork.NewRealClock()
	syncer := ingest.NewSyncer(provider, db.NewWeatherRepository(pool), clock, logger)

	health := &core.HealthServer{
		Probes: []core.HealthProbe{core.PoolProbe{Pool: pool}},
		Build:  cfg.Build,
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

	// First sync runs immediately; failures are logged and retried on the
	// next tick rather than crashing the process.
	if err := syncer.SyncRecent(ctx, series, cfg.Weather.SyncLookback); err != nil {
		logger.Error("initial sync failed", "error", err.Error())
	}

	ticker := clock.NewTicker(cfg.Weather.SyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = httpServer.Shutdown(shutdownCtx)
			logger.Info("weather sync stopped")
			return ctx.Err()
		case <-ticker.Chan():
			if err := syncer.SyncRecent(ctx, series, cfg.Weather.SyncLookback); err != nil {
				logger.Error("sync failed", "error", err.Error())
			}
		}
	}
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
