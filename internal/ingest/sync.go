// Package ingest pulls weather observations from the upstream provider and
// lands them in the fact store. The sync is idempotent: re-fetching an
// already-ingested window only re-derives rows the natural key rejects.
package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"indexcover/internal/external"
	"indexcover/internal/types"
)

// WeatherWriter is the persistence surface the syncer needs.
type WeatherWriter interface {
	UpsertBatch(ctx context.Context, points []types.WeatherDataPoint) (int, error)
}

// Series identifies one homogeneous stream to keep in sync.
type Series struct {
	RegionCode  string
	WeatherType types.WeatherType
}

// Syncer drives periodic observation ingestion for a fixed set of series.
type Syncer struct {
	provider external.ObservationProvider
	store    WeatherWriter
	clock    clockwork.Clock
	logger   *slog.Logger
}

// NewSyncer wires a syncer. The clock is injectable for tests.
func NewSyncer(provider external.ObservationProvider, store WeatherWriter, clock clockwork.Clock, logger *slog.Logger) *Syncer {
	return &Syncer{
		provider: provider,
		store:    store,
		clock:    clock,
		logger:   logger,
	}
}

// SyncRecent fetches and stores the trailing lookback window for every
// series. Series failures are isolated: one provider outage for a region
// does not abort the rest of the run. The first error is returned after
// all series have been attempted.
func (s *Syncer) SyncRecent(ctx context.Context, series []Series, lookback time.Duration) error {
	end := s.clock.Now().UTC()
	start := end.Add(-lookback)

	var firstErr error
	for _, sr := range series {
		if err := s.syncOne(ctx, sr, start, end); err != nil {
			s.logger.ErrorContext(ctx, "series sync failed",
				"region_code", sr.RegionCode,
				"weather_type", string(sr.WeatherType),
				"error", err.Error(),
			)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (s *Syncer) syncOne(ctx context.Context, sr Series, start, end time.Time) error {
	points, err := s.provider.FetchObservations(ctx, external.ObservationRequest{
		RegionCode:  sr.RegionCode,
		WeatherType: sr.WeatherType,
		DataType:    types.DataHistorical,
		Start:       start,
		End:         end,
	})
	if err != nil {
		return err
	}

	inserted, err := s.store.UpsertBatch(ctx, points)
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "series synced",
		"region_code", sr.RegionCode,
		"weather_type", string(sr.WeatherType),
		"fetched", len(points),
		"inserted", inserted,
		"window_start", start,
		"window_end", end,
	)
	return nil
}
