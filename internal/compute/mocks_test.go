package compute

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"indexcover/internal/db"
	"indexcover/internal/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustDec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

type mockProductStore struct {
	products map[string]*types.Product
	err      error
}

func (m *mockProductStore) GetByID(_ context.Context, id string) (*types.Product, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.products[id], nil
}

type mockWeatherStore struct {
	series    []types.WeatherDataPoint
	err       error
	lastQuery db.WeatherQuery
}

func (m *mockWeatherStore) QuerySeries(_ context.Context, q db.WeatherQuery) ([]types.WeatherDataPoint, error) {
	m.lastQuery = q
	if m.err != nil {
		return nil, m.err
	}
	return m.series, nil
}

type mockRiskEventStore struct {
	existing  map[string]struct{}
	events    []types.RiskEvent
	existErr  error
	insertErr error
	queryErr  error

	inserted  []types.RiskEvent
	lastQuery db.RiskEventQuery
}

func (m *mockRiskEventStore) ExistingIDs(_ context.Context, ids []string) (map[string]struct{}, error) {
	if m.existErr != nil {
		return nil, m.existErr
	}
	found := make(map[string]struct{})
	for _, id := range ids {
		if _, ok := m.existing[id]; ok {
			found[id] = struct{}{}
		}
	}
	return found, nil
}

func (m *mockRiskEventStore) InsertBatch(_ context.Context, events []types.RiskEvent) (int, error) {
	if m.insertErr != nil {
		return 0, m.insertErr
	}
	m.inserted = append(m.inserted, events...)
	return len(events), nil
}

func (m *mockRiskEventStore) QueryEvents(_ context.Context, q db.RiskEventQuery) ([]types.RiskEvent, error) {
	m.lastQuery = q
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	return m.events, nil
}

type mockPolicyStore struct {
	policies map[string]*types.Policy
	err      error
}

func (m *mockPolicyStore) GetByID(_ context.Context, id string) (*types.Policy, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.policies[id], nil
}

type mockClaimStore struct {
	existing  map[string]struct{}
	existErr  error
	insertErr error

	inserted []types.ClaimDraft
}

func (m *mockClaimStore) ExistingIDs(_ context.Context, ids []string) (map[string]struct{}, error) {
	if m.existErr != nil {
		return nil, m.existErr
	}
	found := make(map[string]struct{})
	for _, id := range ids {
		if _, ok := m.existing[id]; ok {
			found[id] = struct{}{}
		}
	}
	return found, nil
}

func (m *mockClaimStore) InsertBatch(_ context.Context, drafts []types.ClaimDraft) (int, error) {
	if m.insertErr != nil {
		return 0, m.insertErr
	}
	m.inserted = append(m.inserted, drafts...)
	return len(drafts), nil
}

// stuckLease reports every key as held by someone else.
type stuckLease struct{}

func (stuckLease) TryAcquire(context.Context, string, time.Duration) (bool, error) {
	return false, nil
}

func (stuckLease) Release(context.Context, string) error { return nil }
