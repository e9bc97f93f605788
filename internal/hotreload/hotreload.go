package hotreload

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cros-updates/cros-updates/internal/logger"
	"github.com/cros-updates/cros-updates/pkg/config"
	"github.com/rs/zerolog"
)

// IntervalResetter is implemented by *scheduler.Scheduler.
type IntervalResetter interface {
	ResetIntervalFromExpr(intervalExpr string) error
}

type HotReloadManager struct {
	cm              *config.Manager
	log             *zerolog.Logger
	pollScheduler   IntervalResetter
	changeCallbacks map[config.ConfigChangeType][]config.ConfigChangeCallback
	callbackMu      sync.RWMutex
}

func NewHotReloadManager(cm *config.Manager, log *zerolog.Logger, pollScheduler IntervalResetter) *HotReloadManager {
	manager := &HotReloadManager{
		cm:              cm,
		log:             log,
		pollScheduler:   pollScheduler,
		changeCallbacks: make(map[config.ConfigChangeType][]config.ConfigChangeCallback),
	}

	manager.registerCallbacks()

	return manager
}

func (hrm *HotReloadManager) registerCallbacks() {
	hrm.RegisterChangeCallback(config.IntervalChanged, hrm.handleIntervalChange)
	hrm.RegisterChangeCallback(config.LogLevelChanged, hrm.handleLogLevelChange)
	hrm.RegisterChangeCallback(config.DevicesChanged, hrm.handleDevicesChange)
	hrm.RegisterChangeCallback(config.RestartRequired, hrm.handleRestartRequired)
}

// RegisterChangeCallback adds callback for changes of changeType.
func (hrm *HotReloadManager) RegisterChangeCallback(changeType config.ConfigChangeType, callback config.ConfigChangeCallback) {
	hrm.callbackMu.Lock()
	defer hrm.callbackMu.Unlock()

	hrm.changeCallbacks[changeType] = append(hrm.changeCallbacks[changeType], callback)
}

func (hrm *HotReloadManager) notifyChangeCallbacks(change config.ConfigChange) []error {
	hrm.callbackMu.RLock()
	defer hrm.callbackMu.RUnlock()

	var errs []error
	for _, callback := range hrm.changeCallbacks[change.Type] {
		if err := callback(change); err != nil {
			errs = append(errs, err)
		}
		hrm.log.Info().Str("change_type", string(change.Type)).Msg("Configuration change processed")
	}
	return errs
}

func (hrm *HotReloadManager) handleIntervalChange(change config.ConfigChange) error {
	hrm.log.Info().
		Str("type", string(change.Type)).
		Interface("old_value", change.OldValue).
		Interface("new_value", change.NewValue).
		Msg("Handling poll interval change")

	if hrm.pollScheduler == nil {
		return nil
	}
	if err := hrm.pollScheduler.ResetIntervalFromExpr(hrm.cm.Config().PollInterval); err != nil {
		return fmt.Errorf("unable to reset poll scheduler: %w", err)
	}
	return nil
}

func (hrm *HotReloadManager) handleLogLevelChange(change config.ConfigChange) error {
	newLogLevel, ok := change.NewValue.(string)
	if !ok {
		return fmt.Errorf("invalid log level type: %T", change.NewValue)
	}

	logger.SetLevel(newLogLevel)
	hrm.log.Info().Str("new_level", newLogLevel).Msg("Log level updated")
	return nil
}

// handleDevicesChange only logs: the poller reads the device list from the
// manager at the start of each run.
func (hrm *HotReloadManager) handleDevicesChange(change config.ConfigChange) error {
	hrm.log.Info().
		Interface("old_count", change.OldValue).
		Interface("new_count", change.NewValue).
		Msg("Device list changed, applies from the next run")
	return nil
}

// handleRestartRequired warns about sections whose components were built at
// startup. The new values are visible through the manager but not used yet.
func (hrm *HotReloadManager) handleRestartRequired(change config.ConfigChange) error {
	hrm.log.Warn().
		Interface("sections", change.NewValue).
		Msg("Configuration change requires restart to take effect")
	return nil
}

// Reload re-reads the config file and applies the resulting changes. An
// invalid file leaves the running config untouched.
func (hrm *HotReloadManager) Reload() error {
	changes, warnings, err := hrm.cm.Reload()
	logger.HandleWarnings(hrm.log, warnings)
	if err != nil {
		return err
	}
	if len(changes) == 0 {
		hrm.log.Debug().Msg("Config file changed without effective changes")
		return nil
	}
	return hrm.ProcessConfigChanges(changes)
}

func (hrm *HotReloadManager) ProcessConfigChanges(changes []config.ConfigChange) error {
	hrm.log.Info().Int("change_count", len(changes)).Msg("Processing configuration changes")

	var errs []error
	for _, change := range changes {
		hrm.log.Debug().
			Str("change_type", string(change.Type)).
			Interface("old_value", change.OldValue).
			Interface("new_value", change.NewValue).
			Msg("Processing configuration change")

		errs = append(errs, hrm.notifyChangeCallbacks(change)...)
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors occurred while processing configuration changes: %w", errors.Join(errs...))
	}

	hrm.log.Info().Msg("All configuration changes processed successfully")
	return nil
}

// Run reloads the config for every signal on events until ctx is done.
func (hrm *HotReloadManager) Run(ctx context.Context, events <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-events:
			if err := hrm.Reload(); err != nil {
				hrm.log.Error().Err(err).Msg("Failed to apply config change, keeping previous configuration")
			}
		}
	}
}
