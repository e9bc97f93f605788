package utils

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/cros-updates/cros-updates/internal/logger"
	"github.com/cros-updates/cros-updates/pkg/config"
	"github.com/rs/zerolog"
)

// SetupContext returns a context cancelled on SIGTERM or SIGINT.
func SetupContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
}

// InitConfig loads the config at path and applies mutators, typically
// command line overrides.
func InitConfig(path string, mutators ...func(*config.Config)) (*config.Manager, []string, error) {
	cm, warnings, err := config.InitManager(path)
	if err != nil {
		return nil, warnings, err
	}
	return cm.With(mutators...), warnings, nil
}

// InitLogger sets up the logger for cfg, stores it in ctx and flushes the
// warnings collected while loading the config.
func InitLogger(ctx context.Context, cfg *config.Config, warnings []string) (context.Context, *zerolog.Logger) {
	ctx = logger.AddLoggerToContext(ctx, cfg.LogLevel, cfg.JSONLogging)
	log := logger.FromContext(ctx)
	logger.HandleWarnings(log, warnings)
	return ctx, log
}
