package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cros-updates/cros-updates/internal/hotreload"
	"github.com/cros-updates/cros-updates/internal/poller"
	"github.com/cros-updates/cros-updates/internal/scheduler"
	"github.com/cros-updates/cros-updates/internal/server"
	"github.com/cros-updates/cros-updates/internal/watcher"
	"github.com/cros-updates/cros-updates/pkg/config"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

type serveOptions struct {
	interval    string
	metricsAddr string
	pprof       bool
	watch       bool
}

func newServeCommand(opts *globalOptions) *cobra.Command {
	serveOpts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Poll devices on a schedule and expose /metrics and /health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), opts, serveOpts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&serveOpts.interval, "interval", "", "override poll_interval, e.g. \"@every 30m\"")
	flags.StringVar(&serveOpts.metricsAddr, "metrics-addr", "", "override metrics_addr")
	flags.BoolVar(&serveOpts.pprof, "pprof", false, "expose /debug/pprof")
	flags.BoolVar(&serveOpts.watch, "watch", true, "reload the config file when it changes")
	return cmd
}

func serve(ctx context.Context, opts *globalOptions, serveOpts *serveOptions) error {
	log := opts.log
	if serveOpts.interval != "" {
		if err := config.ValidatePollInterval(serveOpts.interval); err != nil {
			return fmt.Errorf("invalid --interval: %w", err)
		}
	}
	cm := opts.cm.With(
		config.SetPollInterval(serveOpts.interval),
		config.SetMetricsAddr(serveOpts.metricsAddr),
	)
	cfg := cm.Config()

	c, err := buildComponents(ctx, cfg, log, poller.WithDeviceSource(cm))
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to release resources")
		}
	}()

	pollScheduler, err := scheduler.NewSchedulerWithInterval(cfg.PollInterval, c.poller, log)
	if err != nil {
		return fmt.Errorf("failed to create poll scheduler: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	router := server.NewDefaultRouter("")
	router.Use(server.LoggingMiddleware(log))
	registrars := []server.RouteRegistrar{
		server.NewHealthRegistrar(c.poller, func() time.Duration { return 2 * pollScheduler.GetInterval() }),
		server.NewMetricsRegistrar(c.registry),
	}
	if serveOpts.pprof {
		registrars = append(registrars, &server.DebugRegistrar{})
	}
	app := server.NewApp(cfg.MetricsAddr, router, registrars...)
	app.SetupRoutes()

	g.Go(func() error {
		log.Info().Str("addr", cfg.MetricsAddr).Msg("Starting metrics server")
		if err := app.Start(); err != nil {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return app.Shutdown(shutdownCtx)
	})

	if serveOpts.watch {
		if _, err := os.Stat(cm.Path()); err == nil {
			events := make(chan struct{}, 1)
			hrm := hotreload.NewHotReloadManager(cm, log, pollScheduler)
			g.Go(func() error {
				return watcher.WatchChanges(ctx, *log, cm.Path(), events)
			})
			g.Go(func() error {
				hrm.Run(ctx, events)
				return nil
			})
		} else {
			log.Info().Str("path", cm.Path()).Msg("No config file to watch, hot reload disabled")
		}
	}

	pollScheduler.Start(ctx)
	g.Go(func() error {
		<-ctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return pollScheduler.Stop(stopCtx)
	})

	log.Info().Int("devices", len(cm.Devices())).Str("interval", cfg.PollInterval).Msg("Startup complete 🚀")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
