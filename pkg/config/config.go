package config

import (
	"strings"
	"time"
)

// Device is one Chromebook to poll. ID is the state key; the remaining
// fields are sent to the update server as-is.
type Device struct {
	ID            string `mapstructure:"id" json:"id,omitempty"`
	AppID         string `mapstructure:"appid" json:"appid"`
	Track         string `mapstructure:"track" json:"track,omitempty"`
	Board         string `mapstructure:"board" json:"board"`
	HardwareClass string `mapstructure:"hardware_class" json:"hardware_class"`
	ProductKey    string `mapstructure:"product_key" json:"product_key,omitempty"`
}

// ShortHardwareClass returns the model part of the hardware class, e.g. "KEVIN" for "KEVIN D25-A3E-B2A-O8Y".
func (d Device) ShortHardwareClass() string {
	fields := strings.Fields(d.HardwareClass)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

type StoreConfig struct {
	Backend string `mapstructure:"backend" json:"backend"`
	// Path is the JSON state file for the file backend or the database file for sqlite.
	Path    string `mapstructure:"path" json:"path,omitempty"`
	DSN     string `mapstructure:"dsn" json:"dsn,omitempty"`
	Table   string `mapstructure:"table" json:"table,omitempty"`
	NATSURL string `mapstructure:"nats_url" json:"nats_url,omitempty"`
	Bucket  string `mapstructure:"bucket" json:"bucket,omitempty"`
}

type NotifierConfig struct {
	// Log writes every notification to the application log.
	Log         bool   `mapstructure:"log" json:"log"`
	WebhookURL  string `mapstructure:"webhook_url" json:"webhook_url,omitempty"`
	NATSURL     string `mapstructure:"nats_url" json:"nats_url,omitempty"`
	NATSSubject string `mapstructure:"nats_subject" json:"nats_subject,omitempty"`
}

type Config struct {
	LogLevel       string         `mapstructure:"log_level" json:"log_level,omitempty"`
	JSONLogging    bool           `mapstructure:"json_logging" json:"json_logging,omitempty"`
	AuditLogPath   string         `mapstructure:"audit_log_path" json:"audit_log_path,omitempty"`
	PollInterval   string         `mapstructure:"poll_interval" json:"poll_interval,omitempty"`
	Concurrency    int            `mapstructure:"concurrency" json:"concurrency,omitempty"`
	AUServerURL    string         `mapstructure:"auserver_url" json:"auserver_url,omitempty"`
	RequestTimeout time.Duration  `mapstructure:"request_timeout" json:"request_timeout,omitempty"`
	RecoveryURLs   []string       `mapstructure:"recovery_urls" json:"recovery_urls,omitempty"`
	CatalogTTL     time.Duration  `mapstructure:"catalog_ttl" json:"catalog_ttl,omitempty"`
	MetricsAddr    string         `mapstructure:"metrics_addr" json:"metrics_addr,omitempty"`
	Devices        []Device       `mapstructure:"devices" json:"devices"`
	Store          StoreConfig    `mapstructure:"store" json:"store"`
	Notifier       NotifierConfig `mapstructure:"notifier" json:"notifier"`
}

// Clone returns a deep copy of the config.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	out := *c
	out.Devices = append([]Device(nil), c.Devices...)
	out.RecoveryURLs = append([]string(nil), c.RecoveryURLs...)
	return &out
}
