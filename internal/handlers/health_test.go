package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
)

type stubHealthProvider struct {
	report domain.HealthReport
	err    error
}

func (s *stubHealthProvider) HealthReport(context.Context) (domain.HealthReport, error) {
	return s.report, s.err
}

func TestHealthHandlersHealthz(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start.Add(30 * time.Second)
	handlers := NewHealthHandlers(
		WithHealthBuildInfo(domain.BuildInfo{
			Version:     "1.0.0",
			CommitSHA:   "abc123",
			Environment: "prod",
			StartedAt:   start,
		}),
		WithHealthClock(func() time.Time { return now }),
	)

	rr := httptest.NewRecorder()
	handlers.Healthz(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["status"] != domain.HealthStatusOK {
		t.Fatalf("expected status ok, got %v", body["status"])
	}
	if body["version"] != "1.0.0" || body["commitSha"] != "abc123" || body["environment"] != "prod" {
		t.Fatalf("unexpected build info %v", body)
	}
	if body["uptime"] != "30s" {
		t.Fatalf("expected uptime 30s, got %v", body["uptime"])
	}
}

func TestHealthHandlersReadyzSuccess(t *testing.T) {
	svc := &stubHealthProvider{report: domain.HealthReport{
		Status:  domain.HealthStatusOK,
		Version: "1.0.0",
		Uptime:  time.Minute,
		Checks: map[string]domain.HealthCheck{
			"cart": {Status: domain.HealthStatusOK, Latency: 3 * time.Millisecond},
		},
		GeneratedAt: time.Date(2024, 1, 1, 0, 1, 0, 0, time.UTC),
	}}
	handlers := NewHealthHandlers(WithHealthSystemService(svc))

	rr := httptest.NewRecorder()
	handlers.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	checks, ok := body["checks"].(map[string]any)
	if !ok {
		t.Fatalf("expected checks object, got %T", body["checks"])
	}
	cart, ok := checks["cart"].(map[string]any)
	if !ok || cart["status"] != domain.HealthStatusOK || cart["latencyMs"] != float64(3) {
		t.Fatalf("unexpected cart check %v", checks["cart"])
	}
	if _, ok := body["details"]; ok {
		t.Fatalf("expected no details for a healthy report")
	}
}

func TestHealthHandlersReadyzFailingDependency(t *testing.T) {
	svc := &stubHealthProvider{report: domain.HealthReport{
		Status: domain.HealthStatusError,
		Checks: map[string]domain.HealthCheck{
			"redis": {Status: domain.HealthStatusError, Error: "connection refused"},
			"cart":  {Status: domain.HealthStatusError, Error: "timeout"},
		},
	}}
	handlers := NewHealthHandlers(WithHealthSystemService(svc))

	rr := httptest.NewRecorder()
	handlers.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	details, ok := decodeBody(t, rr)["details"].([]any)
	if !ok || len(details) != 2 || details[0] != "cart: timeout" {
		t.Fatalf("unexpected details %v", details)
	}
}

func TestHealthHandlersReadyzReportError(t *testing.T) {
	handlers := NewHealthHandlers(WithHealthSystemService(&stubHealthProvider{err: errors.New("boom")}))

	rr := httptest.NewRecorder()
	handlers.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assertErrorCode(t, rr, http.StatusServiceUnavailable, "readiness_unavailable")
}
