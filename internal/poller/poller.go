// Package poller runs the per-device update pipeline: fetch the update
// response, normalize it, compare it with the stored fingerprint, persist and
// notify.
package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cros-updates/cros-updates/internal/fingerprint"
	"github.com/cros-updates/cros-updates/internal/logger"
	"github.com/cros-updates/cros-updates/internal/metrics"
	"github.com/cros-updates/cros-updates/internal/notifier"
	"github.com/cros-updates/cros-updates/internal/store"
	"github.com/cros-updates/cros-updates/pkg/config"
	"github.com/rs/zerolog"
)

var (
	ErrNoDevices        = errors.New("no devices configured")
	ErrAllDevicesFailed = errors.New("all devices failed")

	ErrFetch      = errors.New("fetch update response")
	ErrStoreRead  = errors.New("read stored fingerprint")
	ErrStoreWrite = errors.New("write fingerprint")
	ErrNotify     = errors.New("send notification")
)

// Fetcher queries the update server for one device.
type Fetcher interface {
	Fetch(ctx context.Context, device config.Device) (fingerprint.RawUpdateResponse, error)
}

// Normalizer turns a raw response into a comparable fingerprint.
type Normalizer interface {
	Normalize(ctx context.Context, raw fingerprint.RawUpdateResponse, deviceID, productKey string) (fingerprint.Fingerprint, error)
}

// DeviceSource supplies the device list at the start of each scheduled run.
type DeviceSource interface {
	Devices() []config.Device
}

// StaticDevices is a DeviceSource with a fixed device list.
type StaticDevices []config.Device

func (d StaticDevices) Devices() []config.Device {
	return d
}

type Poller struct {
	fetcher     Fetcher
	normalizer  Normalizer
	store       store.Store
	notifier    notifier.Notifier
	source      DeviceSource
	concurrency int
	log         *zerolog.Logger
	audit       *logger.AuditLogger
	metrics     *metrics.Metrics
	now         func() time.Time

	running atomic.Bool
	mu      sync.RWMutex
	last    *RunResult
}

type Option func(*Poller)

func WithConcurrency(n int) Option {
	return func(p *Poller) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

func WithLogger(log *zerolog.Logger) Option {
	return func(p *Poller) {
		if log != nil {
			p.log = log
		}
	}
}

func WithAuditLogger(audit *logger.AuditLogger) Option {
	return func(p *Poller) {
		p.audit = audit
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Poller) {
		p.metrics = m
	}
}

func WithDeviceSource(source DeviceSource) Option {
	return func(p *Poller) {
		p.source = source
	}
}

func New(fetcher Fetcher, normalizer Normalizer, st store.Store, n notifier.Notifier, opts ...Option) *Poller {
	nop := zerolog.Nop()
	p := &Poller{
		fetcher:     fetcher,
		normalizer:  normalizer,
		store:       st,
		notifier:    n,
		concurrency: config.DefaultConcurrency,
		log:         &nop,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// LastResult returns the result of the most recent completed run.
func (p *Poller) LastResult() (RunResult, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.last == nil {
		return RunResult{}, false
	}
	return *p.last, true
}

func (p *Poller) setLastResult(result RunResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last = &result
}
