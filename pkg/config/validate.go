package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

var ErrNoDevices = errors.New("no devices configured")

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
	"fatal": true,
	"panic": true,
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateAndEnforceDefaults fills in defaults for missing values and returns
// warnings for values that were replaced. Errors are fatal for the run.
func ValidateAndEnforceDefaults(config *Config) (*Config, []string, error) {
	if config == nil {
		return nil, nil, fmt.Errorf("config cannot be nil")
	}

	var warnings []string

	if config.LogLevel == "" {
		config.LogLevel = zerolog.LevelInfoValue
	} else if !validLogLevels[strings.ToLower(config.LogLevel)] {
		warnings = append(warnings, fmt.Sprintf(
			"invalid log_level '%s' provided. Valid options are: info, debug, panic, error, warn, fatal. Defaulting to 'info'.",
			config.LogLevel,
		))
		config.LogLevel = zerolog.LevelInfoValue
	}

	if config.PollInterval == "" {
		config.PollInterval = DefaultPollInterval
	} else if !isValidEveryExpression(config.PollInterval) {
		warnings = append(warnings, fmt.Sprintf("invalid schedule provided for poll_interval, using default schedule %s", DefaultPollInterval))
		config.PollInterval = DefaultPollInterval
	}

	if config.Concurrency <= 0 {
		config.Concurrency = DefaultConcurrency
	}

	if config.AUServerURL == "" {
		config.AUServerURL = DefaultAUServerURL
	}
	if _, err := url.ParseRequestURI(config.AUServerURL); err != nil {
		return nil, warnings, fmt.Errorf("invalid URL provided for auserver_url: %w", err)
	}

	if config.RequestTimeout <= 0 {
		config.RequestTimeout = mustDuration(DefaultRequestTimeout)
	}
	if config.CatalogTTL <= 0 {
		config.CatalogTTL = mustDuration(DefaultCatalogTTL)
	}
	if len(config.RecoveryURLs) == 0 {
		config.RecoveryURLs = append([]string(nil), DefaultRecoveryURLs...)
	}
	if config.MetricsAddr == "" {
		config.MetricsAddr = DefaultMetricsAddr
	}

	storeWarnings, err := validateStore(&config.Store)
	warnings = append(warnings, storeWarnings...)
	if err != nil {
		return nil, warnings, err
	}

	warnings = append(warnings, validateNotifier(&config.Notifier)...)

	if err := validateDevices(config.Devices); err != nil {
		return nil, warnings, err
	}

	return config, warnings, nil
}

func validateStore(store *StoreConfig) ([]string, error) {
	var warnings []string
	if store.Backend == "" {
		store.Backend = DefaultStoreBackend
	}
	if store.Table == "" {
		store.Table = DefaultTableName
	}

	switch store.Backend {
	case StoreBackendFile:
		if store.Path == "" {
			store.Path = DefaultStatePath
		}
	case StoreBackendSQLite:
		if store.Path == "" && store.DSN == "" {
			store.Path = "cros-updates.db"
		}
	case StoreBackendPG:
		if store.DSN == "" {
			return warnings, fmt.Errorf("store.dsn is required for the %s backend", StoreBackendPG)
		}
	case StoreBackendNATS:
		if store.NATSURL == "" {
			return warnings, fmt.Errorf("store.nats_url is required for the %s backend", StoreBackendNATS)
		}
		if store.Bucket == "" {
			store.Bucket = DefaultNATSBucket
		}
	case StoreBackendMemory:
	default:
		return warnings, fmt.Errorf("unknown store backend %q", store.Backend)
	}

	if store.Backend == StoreBackendSQLite || store.Backend == StoreBackendPG {
		warning, err := sqlTableName(store)
		if warning != "" {
			warnings = append(warnings, warning)
		}
		if err != nil {
			return warnings, err
		}
	}
	return warnings, nil
}

// sqlTableName makes store.Table usable as an SQL identifier. Hyphens, as in
// the legacy TABLE_NAME default "cros-updates", become underscores.
func sqlTableName(store *StoreConfig) (string, error) {
	if identifierPattern.MatchString(store.Table) {
		return "", nil
	}
	mapped := strings.ReplaceAll(store.Table, "-", "_")
	if !identifierPattern.MatchString(mapped) {
		return "", fmt.Errorf("invalid store table name %q", store.Table)
	}
	warning := fmt.Sprintf("store table name '%s' is not a valid SQL identifier, using '%s'", store.Table, mapped)
	store.Table = mapped
	return warning, nil
}

func validateNotifier(n *NotifierConfig) []string {
	var warnings []string
	if n.WebhookURL != "" {
		if _, err := url.ParseRequestURI(n.WebhookURL); err != nil {
			warnings = append(warnings, fmt.Sprintf("invalid notifier.webhook_url %q ignored: %v", n.WebhookURL, err))
			n.WebhookURL = ""
		}
	}
	if n.NATSURL != "" && n.NATSSubject == "" {
		n.NATSSubject = DefaultNATSSubject
	}
	if !n.Log && n.WebhookURL == "" && n.NATSURL == "" {
		warnings = append(warnings, "no notification channel configured, notifications will only be logged")
		n.Log = true
	}
	return warnings
}

func validateDevices(devices []Device) error {
	if len(devices) == 0 {
		return ErrNoDevices
	}

	seen := make(map[string]int, len(devices))
	var errs []error
	for i := range devices {
		d := &devices[i]
		if d.AppID == "" || d.Board == "" || d.HardwareClass == "" {
			errs = append(errs, fmt.Errorf("device %d: appid, board and hardware_class are required", i))
			continue
		}
		if d.ID == "" {
			d.ID = d.HardwareClass
		}
		if d.Track == "" {
			d.Track = DefaultTrack
		}
		if d.ProductKey == "" {
			d.ProductKey = d.HardwareClass
		}
		if prev, ok := seen[d.ID]; ok {
			errs = append(errs, fmt.Errorf("device %d: duplicate id %q (also used by device %d)", i, d.ID, prev))
			continue
		}
		seen[d.ID] = i
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid device list: %w", errors.Join(errs...))
	}
	return nil
}

// isValidEveryExpression accepts only "@every <duration>" schedules, which is what the scheduler runs on.
// ValidatePollInterval reports whether expr is usable as poll_interval.
func ValidatePollInterval(expr string) error {
	if !isValidEveryExpression(expr) {
		return fmt.Errorf("%q is not a positive \"@every <duration>\" expression", expr)
	}
	return nil
}

func isValidEveryExpression(expr string) bool {
	if !strings.HasPrefix(expr, "@every ") {
		return false
	}
	if _, err := cron.ParseStandard(expr); err != nil {
		return false
	}
	d, err := time.ParseDuration(strings.TrimPrefix(expr, "@every "))
	return err == nil && d > 0
}

func mustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		panic(err)
	}
	return d
}
