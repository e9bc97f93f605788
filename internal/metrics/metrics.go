package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	RunSucceeded = "success"
	RunPartial   = "partial"
	RunFailed    = "failed"

	NotificationSent   = "sent"
	NotificationFailed = "failed"
)

// Metrics bundles poller metrics. A nil *Metrics records nothing.
type Metrics struct {
	RunsTotal          *prometheus.CounterVec
	RunDuration        prometheus.Histogram
	DevicesTotal       *prometheus.CounterVec
	NotificationsTotal *prometheus.CounterVec
	LastRunTimestamp   prometheus.Gauge
}

// New constructs the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cros_updates_runs_total",
				Help: "Total poll runs by result",
			},
			[]string{"result"},
		),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cros_updates_run_duration_seconds",
			Help:    "Poll run duration in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		DevicesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cros_updates_devices_total",
				Help: "Total device checks by outcome",
			},
			[]string{"outcome"},
		),
		NotificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cros_updates_notifications_total",
				Help: "Total update notifications by status",
			},
			[]string{"status"},
		),
		LastRunTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cros_updates_last_run_timestamp_seconds",
			Help: "Unix time of the last completed poll run",
		}),
	}
	reg.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.DevicesTotal,
		m.NotificationsTotal,
		m.LastRunTimestamp,
	)
	return m
}

func (m *Metrics) ObserveRun(result string, duration time.Duration, finished time.Time) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(result).Inc()
	m.RunDuration.Observe(duration.Seconds())
	m.LastRunTimestamp.Set(float64(finished.Unix()))
}

func (m *Metrics) ObserveDevice(outcome string) {
	if m == nil {
		return
	}
	m.DevicesTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveNotification(status string) {
	if m == nil {
		return
	}
	m.NotificationsTotal.WithLabelValues(status).Inc()
}
