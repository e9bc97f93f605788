package config

import (
	"fmt"
	"slices"
	"sync"
)

type ConfigChangeType string

const (
	LogLevelChanged ConfigChangeType = "log_level"
	IntervalChanged ConfigChangeType = "poll_interval"
	DevicesChanged  ConfigChangeType = "devices"
	// RestartRequired lists changed sections that are only read at startup.
	RestartRequired ConfigChangeType = "restart_required"
)

type ConfigChange struct {
	Type     ConfigChangeType
	OldValue interface{}
	NewValue interface{}
}

type ConfigChangeCallback func(change ConfigChange) error

// Manager guards the active configuration. Readers get copies; Reload swaps
// the whole config after validation so a bad file never replaces a good one.
type Manager struct {
	config     *Config
	configPath string
	mu         sync.RWMutex
}

func NewManager(configPath string, config *Config) *Manager {
	return &Manager{config: config, configPath: configPath}
}

// InitManager loads and validates the config at configPath.
func InitManager(configPath string) (*Manager, []string, error) {
	cfg, warnings, err := Load(configPath)
	if err != nil {
		return nil, warnings, err
	}
	return NewManager(configPath, cfg), warnings, nil
}

func (m *Manager) With(mutators ...func(*Config)) *Manager {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mutate := range mutators {
		mutate(m.config)
	}
	return m
}

// Config returns a copy of the active configuration.
func (m *Manager) Config() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.Clone()
}

// Devices returns a copy of the active device list.
func (m *Manager) Devices() []Device {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Device(nil), m.config.Devices...)
}

func (m *Manager) Path() string {
	return m.configPath
}

// Reload re-reads the config file and swaps it in if it validates.
func (m *Manager) Reload() ([]ConfigChange, []string, error) {
	newConfig, warnings, err := Load(m.configPath)
	if err != nil {
		return nil, warnings, fmt.Errorf("failed to reload config: %w", err)
	}
	return m.Replace(newConfig), warnings, nil
}

// Replace swaps in an already validated config and reports what changed.
func (m *Manager) Replace(newConfig *Config) []ConfigChange {
	m.mu.Lock()
	defer m.mu.Unlock()

	changes := detectChanges(m.config, newConfig)
	m.config = newConfig
	return changes
}

func detectChanges(oldConfig *Config, newConfig *Config) []ConfigChange {
	var changes []ConfigChange

	if oldConfig.LogLevel != newConfig.LogLevel {
		changes = append(changes, ConfigChange{
			Type:     LogLevelChanged,
			OldValue: oldConfig.LogLevel,
			NewValue: newConfig.LogLevel,
		})
	}

	if oldConfig.PollInterval != newConfig.PollInterval {
		changes = append(changes, ConfigChange{
			Type:     IntervalChanged,
			OldValue: oldConfig.PollInterval,
			NewValue: newConfig.PollInterval,
		})
	}

	if !slices.Equal(oldConfig.Devices, newConfig.Devices) {
		changes = append(changes, ConfigChange{
			Type:     DevicesChanged,
			OldValue: len(oldConfig.Devices),
			NewValue: len(newConfig.Devices),
		})
	}

	if sections := staticChanges(oldConfig, newConfig); len(sections) > 0 {
		changes = append(changes, ConfigChange{
			Type:     RestartRequired,
			NewValue: sections,
		})
	}

	return changes
}

// staticChanges names the changed keys whose components are built once at startup.
func staticChanges(oldConfig *Config, newConfig *Config) []string {
	var sections []string
	add := func(name string, changed bool) {
		if changed {
			sections = append(sections, name)
		}
	}
	add("json_logging", oldConfig.JSONLogging != newConfig.JSONLogging)
	add("audit_log_path", oldConfig.AuditLogPath != newConfig.AuditLogPath)
	add("concurrency", oldConfig.Concurrency != newConfig.Concurrency)
	add("auserver_url", oldConfig.AUServerURL != newConfig.AUServerURL)
	add("request_timeout", oldConfig.RequestTimeout != newConfig.RequestTimeout)
	add("recovery_urls", !slices.Equal(oldConfig.RecoveryURLs, newConfig.RecoveryURLs))
	add("catalog_ttl", oldConfig.CatalogTTL != newConfig.CatalogTTL)
	add("metrics_addr", oldConfig.MetricsAddr != newConfig.MetricsAddr)
	add("store", oldConfig.Store != newConfig.Store)
	add("notifier", oldConfig.Notifier != newConfig.Notifier)
	return sections
}
