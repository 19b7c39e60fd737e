package core

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"indexcover/internal/config"
)

type staticProbe struct {
	name string
	err  error
}

func (p staticProbe) Name() string                { return p.name }
func (p staticProbe) Check(context.Context) error { return p.err }

type hangingProbe struct{ name string }

func (p hangingProbe) Name() string { return p.name }

func (p hangingProbe) Check(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

type panickyProbe struct{ name string }

func (p panickyProbe) Name() string                { return p.name }
func (p panickyProbe) Check(context.Context) error { panic("probe exploded") }

func getHealth(t *testing.T, s *HealthServer) (*httptest.ResponseRecorder, healthResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var body healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("health response is not valid JSON: %v", err)
	}
	return rec, body
}

func TestHealth_AllProbesHealthy(t *testing.T) {
	s := &HealthServer{Probes: []HealthProbe{
		staticProbe{name: "database"},
		staticProbe{name: "redis"},
	}}

	rec, body := getHealth(t, s)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if body.Status != "healthy" {
		t.Errorf("overall status = %s, want healthy", body.Status)
	}
	if body.Components["database"].Status != "healthy" || body.Components["redis"].Status != "healthy" {
		t.Errorf("components = %v", body.Components)
	}
}

func TestHealth_OneFailingProbeIsServiceUnavailable(t *testing.T) {
	s := &HealthServer{Probes: []HealthProbe{
		staticProbe{name: "database"},
		staticProbe{name: "redis", err: errors.New("connection refused")},
	}}

	rec, body := getHealth(t, s)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if body.Status != "unhealthy" {
		t.Errorf("overall status = %s, want unhealthy", body.Status)
	}
	if body.Components["database"].Status != "healthy" {
		t.Error("healthy component was not reported as healthy")
	}
	if body.Components["redis"].Message != "connection refused" {
		t.Errorf("redis message = %s", body.Components["redis"].Message)
	}
}

func TestHealth_HangingProbeTimesOut(t *testing.T) {
	s := &HealthServer{Probes: []HealthProbe{
		staticProbe{name: "database"},
		hangingProbe{name: "redis"},
	}}

	rec, body := getHealth(t, s)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if body.Components["database"].Status != "healthy" {
		t.Error("the fast probe must still report in a partial response")
	}
	if body.Components["redis"].Status != "unhealthy" {
		t.Errorf("redis status = %s, want unhealthy", body.Components["redis"].Status)
	}
}

func TestHealth_PanickingProbeIsContained(t *testing.T) {
	s := &HealthServer{Probes: []HealthProbe{
		panickyProbe{name: "database"},
		staticProbe{name: "redis"},
	}}

	rec, body := getHealth(t, s)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if body.Components["database"].Status != "unhealthy" {
		t.Error("panicking probe must report unhealthy")
	}
	if body.Components["redis"].Status != "healthy" {
		t.Error("a panic in one probe must not poison the others")
	}
}

func TestHealth_NoProbes(t *testing.T) {
	rec, body := getHealth(t, &HealthServer{})
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if body.Status != "healthy" {
		t.Errorf("overall status = %s", body.Status)
	}
}

func TestVersion(t *testing.T) {
	s := &HealthServer{Build: config.BuildInfo{
		Version:   "1.4.2",
		Commit:    "abc1234",
		BuildTime: "2025-01-20T00:00:00Z",
	}}

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/version", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("version response is not valid JSON: %v", err)
	}
	if body["version"] != "1.4.2" || body["commit"] != "abc1234" {
		t.Errorf("body = %v", body)
	}
}
