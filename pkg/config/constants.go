package config

// Default config file path, used if the user does not provide one with --config.
// A missing file at the default path is not an error: everything can come from the environment.
const DefaultConfigPath string = "config.yaml"

// Environment variables are read with this prefix, e.g. CROS_STORE_BACKEND.
const EnvPrefix string = "CROS"

// Legacy environment variables understood for compatibility with the Lambda deployment.
const (
	LegacyDevicesEnv   = "CHROMEBOOKS_JSON"
	LegacyAUServerEnv  = "AUSERVER"
	LegacyTableNameEnv = "TABLE_NAME"
)

const PollJobName string = "poll_updates"

// The values below are used when the user does not provide a value, or provides one in the wrong format.
const (
	DefaultPollInterval   = "@every 01h00m00s"
	DefaultAUServerURL    = "https://tools.google.com/service/update2"
	DefaultTrack          = "stable-channel"
	DefaultConcurrency    = 4
	DefaultLogLevel       = "info"
	DefaultMetricsAddr    = ":9090"
	DefaultStoreBackend   = StoreBackendFile
	DefaultStatePath      = "state.json"
	DefaultTableName      = "cros_updates"
	DefaultNATSBucket     = "cros-updates"
	DefaultNATSSubject    = "cros.updates"
	DefaultRequestTimeout = "30s"
	DefaultCatalogTTL     = "24h"
)

var DefaultRecoveryURLs = []string{
	"https://dl.google.com/dl/edgedl/chromeos/recovery/recovery2.json",
	"https://dl.google.com/dl/edgedl/chromeos/recovery/cloudready_recovery2.json",
}

const (
	StoreBackendFile   = "file"
	StoreBackendSQLite = "sqlite"
	StoreBackendPG     = "postgres"
	StoreBackendNATS   = "nats"
	StoreBackendMemory = "memory"
)
