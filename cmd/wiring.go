package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/cros-updates/cros-updates/internal/fingerprint"
	"github.com/cros-updates/cros-updates/internal/logger"
	"github.com/cros-updates/cros-updates/internal/metrics"
	"github.com/cros-updates/cros-updates/internal/notifier"
	"github.com/cros-updates/cros-updates/internal/omaha"
	"github.com/cros-updates/cros-updates/internal/poller"
	"github.com/cros-updates/cros-updates/internal/recovery"
	"github.com/cros-updates/cros-updates/internal/store"
	"github.com/cros-updates/cros-updates/pkg/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
)

// components holds everything a poll run needs and the resources to release afterwards.
type components struct {
	poller   *poller.Poller
	registry *prometheus.Registry
	closers  []io.Closer
}

func (c *components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func newFetcher(cfg *config.Config) poller.OmahaFetcher {
	return poller.OmahaFetcher{
		Client: omaha.NewClient(cfg.AUServerURL, omaha.WithTimeout(cfg.RequestTimeout)),
	}
}

func newNormalizer(cfg *config.Config, log *zerolog.Logger) *fingerprint.Normalizer {
	catalog := recovery.NewCatalog(cfg.RecoveryURLs,
		recovery.WithTTL(cfg.CatalogTTL),
		recovery.WithLogger(log.With().Str("component", "recovery").Logger()),
	)
	return fingerprint.NewNormalizer(catalog)
}

// buildComponents wires the store, notifiers, metrics and audit log into a poller.
func buildComponents(ctx context.Context, cfg *config.Config, log *zerolog.Logger, opts ...poller.Option) (*components, error) {
	c := &components{registry: prometheus.NewRegistry()}
	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Backend, err)
	}
	c.closers = append(c.closers, st)

	n, err := notifier.New(cfg.Notifier, log)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to set up notifiers: %w", err)
	}
	c.closers = append(c.closers, n)

	auditWriter, err := logger.NewFileAuditWriter(cfg.AuditLogPath)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	var audit *logger.AuditLogger
	if auditWriter != nil {
		c.closers = append(c.closers, auditWriter)
		audit = logger.NewAuditLogger(auditWriter)
	}

	log.Debug().
		Str("store", cfg.Store.Backend).
		Int("notifiers", n.Len()).
		Bool("audit", audit != nil).
		Msg("Components initialized")

	opts = append([]poller.Option{
		poller.WithConcurrency(cfg.Concurrency),
		poller.WithLogger(log),
		poller.WithMetrics(metrics.New(c.registry)),
		poller.WithAuditLogger(audit),
	}, opts...)

	c.poller = poller.New(newFetcher(cfg), newNormalizer(cfg, log), st, n, opts...)
	return c, nil
}
