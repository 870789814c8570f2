package config

import (
	"errors"
	"fmt"
	"time"
)

type Config struct {
	Logging     LoggingConfig     `json:"logging"`
	Storage     StorageConfig     `json:"storage"`
	Credentials CredentialsConfig `json:"credentials"`
	Transport   TransportConfig   `json:"transport"`
	Notifier    *NotifierConfig   `json:"notifier,omitempty"`
}

type LoggingConfig struct {
	Level   string        `json:"level,omitempty"` // trace|debug|info|warn|error
	Console *bool         `json:"console,omitempty"`
	File    FileLogConfig `json:"file,omitempty"`
}

type FileLogConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// StorageConfig locates the sqlite database holding session/task rows.
type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

// CredentialsConfig locates the per-session credential bundle directories.
type CredentialsConfig struct {
	Dir string `json:"dir"`
}

// TransportConfig selects the protocol driver.
//
// ConnectTimeout bounds a single connect attempt; there is no automatic
// reconnect after a non-logout disconnect, so the timeout only matters for
// explicit start requests.
type TransportConfig struct {
	Driver         string `json:"driver"`
	ConnectTimeout string `json:"connect_timeout,omitempty"` // Go duration string, default 60s
}

// NotifierConfig controls the async event publish pipeline.
// If the whole section is omitted, the notifier defaults to enabled.
type NotifierConfig struct {
	Enabled     *bool `json:"enabled,omitempty"`
	Workers     int   `json:"workers,omitempty"`
	QueueSize   int   `json:"queue_size,omitempty"`
	RatePerSec  int   `json:"rate_per_sec,omitempty"`
	HistorySize int   `json:"history_size,omitempty"`
}

// Default returns the config used when optional fields are omitted.
func Default() *Config {
	console := true
	return &Config{
		Logging: LoggingConfig{Level: "info", Console: &console},
		Storage: StorageConfig{Path: "./wabot.db"},
		Credentials: CredentialsConfig{
			Dir: "./sessions",
		},
		Transport: TransportConfig{Driver: "loopback", ConnectTimeout: "60s"},
	}
}

// Validate checks static constraints. Duration fields are validated here so
// a hot-reloaded config cannot smuggle in an unparseable value.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.Storage.Path == "" {
		return errors.New("storage.path is required")
	}
	if c.Credentials.Dir == "" {
		return errors.New("credentials.dir is required")
	}
	if c.Transport.Driver == "" {
		return errors.New("transport.driver is required")
	}
	if _, err := parseDuration("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		return err
	}
	if _, err := parseDuration("transport.connect_timeout", c.Transport.ConnectTimeout); err != nil {
		return err
	}
	if n := c.Notifier; n != nil {
		if n.Workers < 0 || n.QueueSize < 0 || n.RatePerSec < 0 || n.HistorySize < 0 {
			return errors.New("notifier: counts must be >= 0")
		}
	}
	return nil
}

// ConnectTimeout returns the parsed transport connect timeout.
func (c *Config) ConnectTimeout() time.Duration {
	d, err := durationOrDefault("transport.connect_timeout", c.Transport.ConnectTimeout, 60*time.Second)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// BusyTimeout returns the parsed sqlite busy timeout.
func (c *Config) BusyTimeout() time.Duration {
	d, err := parseDuration("storage.busy_timeout", c.Storage.BusyTimeout)
	if err != nil {
		return 0
	}
	return d
}

// ConsoleEnabled resolves the tri-state console flag (default on).
func (l LoggingConfig) ConsoleEnabled() bool {
	if l.Console == nil {
		return true
	}
	return *l.Console
}

// String renders a short diagnostic summary (no secrets in this config,
// but keep the habit of not dumping the whole struct).
func (c *Config) String() string {
	return fmt.Sprintf("config{driver=%s storage=%s creds=%s}", c.Transport.Driver, c.Storage.Path, c.Credentials.Dir)
}
