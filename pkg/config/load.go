package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// keys lists every configuration key so that environment overrides are
// visible to Unmarshal even when the config file does not mention them.
var keys = []string{
	"log_level",
	"json_logging",
	"audit_log_path",
	"poll_interval",
	"concurrency",
	"auserver_url",
	"request_timeout",
	"recovery_urls",
	"catalog_ttl",
	"metrics_addr",
	"store.backend",
	"store.path",
	"store.dsn",
	"store.table",
	"store.nats_url",
	"store.bucket",
	"notifier.log",
	"notifier.webhook_url",
	"notifier.nats_url",
	"notifier.nats_subject",
}

// NewViper returns a viper instance reading path (if non-empty) and CROS_* environment variables.
func NewViper(path string) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range keys {
		_ = v.BindEnv(key)
	}
	if path != "" {
		v.SetConfigFile(path)
	}
	return v
}

// Load reads the configuration at path, applies environment overrides and
// defaults, and validates the result. A missing file at DefaultConfigPath is
// tolerated; any other read error is returned.
func Load(path string) (*Config, []string, error) {
	v := NewViper(path)
	if err := readInConfig(v, path); err != nil {
		return nil, nil, err
	}
	return Decode(v)
}

// Decode builds a validated Config from an already prepared viper instance.
func Decode(v *viper.Viper) (*Config, []string, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := applyLegacyEnv(cfg); err != nil {
		return nil, nil, err
	}

	return ValidateAndEnforceDefaults(cfg)
}

func readInConfig(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	err := v.ReadInConfig()
	if err == nil {
		return nil
	}
	var notFound viper.ConfigFileNotFoundError
	if (errors.Is(err, os.ErrNotExist) || errors.As(err, &notFound)) && path == DefaultConfigPath {
		return nil
	}
	return fmt.Errorf("failed to read config file %s: %w", path, err)
}

func applyLegacyEnv(cfg *Config) error {
	if raw := os.Getenv(LegacyDevicesEnv); raw != "" && len(cfg.Devices) == 0 {
		var devices []Device
		if err := json.Unmarshal([]byte(raw), &devices); err != nil {
			return fmt.Errorf("invalid %s: %w", LegacyDevicesEnv, err)
		}
		cfg.Devices = devices
	}
	if server := os.Getenv(LegacyAUServerEnv); server != "" && cfg.AUServerURL == "" {
		cfg.AUServerURL = server
	}
	if table := os.Getenv(LegacyTableNameEnv); table != "" {
		if cfg.Store.Table == "" {
			cfg.Store.Table = table
		}
		if cfg.Store.Bucket == "" {
			cfg.Store.Bucket = table
		}
	}
	return nil
}
