package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cros-updates/cros-updates/internal/change"
	"github.com/cros-updates/cros-updates/internal/poller"
	"github.com/cros-updates/cros-updates/internal/scheduler"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeRuns struct {
	result poller.RunResult
	ok     bool
}

func (f fakeRuns) LastResult() (poller.RunResult, bool) {
	return f.result, f.ok
}

func newTestApp(runs RunReporter, staleAfter func() time.Duration, now time.Time, reg *prometheus.Registry) *App {
	log := zerolog.Nop()
	router := NewDefaultRouter("")
	router.Use(LoggingMiddleware(&log))

	health := NewHealthRegistrar(runs, staleAfter)
	health.now = func() time.Time { return now }

	app := NewApp(":0", router, health, NewMetricsRegistrar(reg))
	app.SetupRoutes()
	return app
}

func TestHealth(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ok := poller.DeviceOutcome{Event: change.Event{Kind: change.Unchanged}, Stage: poller.StageDone}
	failed := poller.DeviceOutcome{Stage: poller.StageFailed, Err: errors.New("boom")}

	tests := []struct {
		name       string
		runs       fakeRuns
		staleAfter func() time.Duration
		wantStatus string
		wantCode   int
	}{
		{
			name:       "no run yet",
			wantStatus: StatusStarting,
			wantCode:   http.StatusOK,
		},
		{
			name: "partial failure is healthy",
			runs: fakeRuns{ok: true, result: poller.RunResult{
				RunID: "r1", Started: now.Add(-time.Minute), Outcomes: []poller.DeviceOutcome{ok, failed},
			}},
			wantStatus: StatusHealthy,
			wantCode:   http.StatusOK,
		},
		{
			name: "all devices failed",
			runs: fakeRuns{ok: true, result: poller.RunResult{
				RunID: "r2", Started: now.Add(-time.Minute), Outcomes: []poller.DeviceOutcome{failed},
			}},
			wantStatus: StatusDegraded,
			wantCode:   http.StatusServiceUnavailable,
		},
		{
			name: "stale run",
			runs: fakeRuns{ok: true, result: poller.RunResult{
				RunID: "r3", Started: now.Add(-3 * time.Hour), Outcomes: []poller.DeviceOutcome{ok},
			}},
			staleAfter: func() time.Duration { return 2 * time.Hour },
			wantStatus: StatusDegraded,
			wantCode:   http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(tt.runs, tt.staleAfter, now, prometheus.NewRegistry())

			rec := httptest.NewRecorder()
			app.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			require.Equal(t, tt.wantCode, rec.Code)
			require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body HealthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			require.Equal(t, tt.wantStatus, body.Status)
			require.Equal(t, tt.runs.result.RunID, body.LastRunID)
		})
	}
}

type idleProcess struct{}

func (idleProcess) Name() string { return "idle" }
func (idleProcess) Execute(context.Context) error { return nil }
func (idleProcess) IsRunning() bool { return false }
func (idleProcess) IsComplete() bool { return false }

func TestHealthFollowsIntervalChange(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	log := zerolog.Nop()
	sched, err := scheduler.NewSchedulerWithInterval("@every 1h", idleProcess{}, &log)
	require.NoError(t, err)

	runs := fakeRuns{ok: true, result: poller.RunResult{
		RunID:    "r1",
		Started:  now.Add(-3 * time.Hour),
		Outcomes: []poller.DeviceOutcome{{Event: change.Event{Kind: change.Unchanged}, Stage: poller.StageDone}},
	}}
	app := newTestApp(runs, func() time.Duration { return 2 * sched.GetInterval() }, now, prometheus.NewRegistry())

	status := func() (int, string) {
		rec := httptest.NewRecorder()
		app.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		var body HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		return rec.Code, body.Status
	}

	code, got := status()
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Equal(t, StatusDegraded, got)

	require.NoError(t, sched.ResetIntervalFromExpr("@every 6h"))

	code, got = status()
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, StatusHealthy, got)
}

func TestHealthRejectsOtherMethods(t *testing.T) {
	app := newTestApp(fakeRuns{}, nil, time.Now(), prometheus.NewRegistry())

	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "cros_updates_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	app := newTestApp(fakeRuns{}, nil, time.Now(), reg)

	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "cros_updates_test_total 1")
}
