// Package config loads the dashboard and backend configuration from YAML,
// fills defaults and applies environment overrides.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Collections the dashboard can subscribe to.
const (
	ViewSensors   = "sensores"
	ViewActuators = "atuadores"
	ViewCommands  = "comandos"
	ViewReadings  = "leituras"
	ViewAlerts    = "alertas"
)

// AllViews lists every collection in refresh order.
var AllViews = []string{ViewSensors, ViewActuators, ViewCommands, ViewReadings, ViewAlerts}

// Config holds all configuration for the dashboard
type Config struct {
	Backend  BackendConfig  `yaml:"backend"`
	Sync     SyncConfig     `yaml:"sync"`
	Ordering OrderingConfig `yaml:"ordering"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// BackendConfig contains connection settings for the backend
type BackendConfig struct {
	URL                  string        `yaml:"url"`
	DeviceAPIKey         string        `yaml:"device_api_key"`
	Timeout              time.Duration `yaml:"timeout"`
	StreamURL            string        `yaml:"stream_url"`
	ReconnectInterval    time.Duration `yaml:"reconnect_interval"`
	MaxReconnectInterval time.Duration `yaml:"max_reconnect_interval"`
}

// EventStreamURL returns StreamURL, or the backend URL with a ws scheme and
// the /api/stream path when StreamURL is empty.
func (b BackendConfig) EventStreamURL() string {
	if b.StreamURL != "" {
		return b.StreamURL
	}
	u, err := url.Parse(b.URL)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/stream"
	return u.String()
}

// SyncConfig controls the refresh cycle
type SyncConfig struct {
	Interval     time.Duration `yaml:"interval"`
	SimulateTick *bool         `yaml:"simulate_tick"`
	FlushPending *bool         `yaml:"flush_pending"`
	Views        []string      `yaml:"views"`
	Follow       bool          `yaml:"follow"`
}

// TickEnabled reports whether each cycle starts with a simulation tick
func (s SyncConfig) TickEnabled() bool {
	return s.SimulateTick == nil || *s.SimulateTick
}

// FlushEnabled reports whether each cycle flushes the backend's pending buffer
func (s SyncConfig) FlushEnabled() bool {
	return s.FlushPending == nil || *s.FlushPending
}

// OrderingConfig selects how identity collections are ordered
type OrderingConfig struct {
	Identity string `yaml:"identity"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	FilePath string `yaml:"file_path"`
}

// ApplyDefaults fills unset logging fields
func (l *LoggingConfig) ApplyDefaults() {
	if l.Level == "" {
		l.Level = "info"
	}
	if l.Format == "" {
		l.Format = "json"
	}
}

// Validate checks the logging format
func (l *LoggingConfig) Validate() error {
	switch l.Format {
	case "json", "text":
		return nil
	default:
		return fmt.Errorf("logging format must be json or text, got %q", l.Format)
	}
}

// LoadConfig loads the dashboard configuration. An empty path skips the
// file and uses defaults plus environment overrides.
func LoadConfig(path string) (*Config, error) {
	var config Config

	if path != "" {
		yamlData, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(yamlData, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	config.ApplyDefaults()
	if err := config.OverrideFromEnv(); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &config, nil
}

// ApplyDefaults sets default values for any unset fields
func (c *Config) ApplyDefaults() {
	if c.Backend.URL == "" {
		c.Backend.URL = "http://localhost:8081"
	}
	if c.Backend.Timeout == 0 {
		c.Backend.Timeout = 10 * time.Second
	}
	if c.Backend.ReconnectInterval == 0 {
		c.Backend.ReconnectInterval = time.Second
	}
	if c.Backend.MaxReconnectInterval == 0 {
		c.Backend.MaxReconnectInterval = time.Minute
	}
	if c.Sync.Interval == 0 {
		c.Sync.Interval = 5 * time.Second
	}
	if len(c.Sync.Views) == 0 {
		c.Sync.Views = append([]string(nil), AllViews...)
	}
	if c.Ordering.Identity == "" {
		c.Ordering.Identity = "reverse"
	}
	c.Logging.ApplyDefaults()
}

// OverrideFromEnv overrides config values from environment variables
func (c *Config) OverrideFromEnv() error {
	if v := os.Getenv("HYDRO_BACKEND_URL"); v != "" {
		c.Backend.URL = v
	}
	if v := os.Getenv("HYDRO_DEVICE_API_KEY"); v != "" {
		c.Backend.DeviceAPIKey = v
	}
	if v := os.Getenv("HYDRO_SYNC_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("HYDRO_SYNC_INTERVAL: %w", err)
		}
		c.Sync.Interval = d
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	u, err := url.Parse(c.Backend.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("backend URL must be an http(s) URL, got %q", c.Backend.URL)
	}
	if c.Backend.DeviceAPIKey == "" && (c.Sync.TickEnabled() || c.Sync.FlushEnabled()) {
		return fmt.Errorf("backend device_api_key is required when simulate_tick or flush_pending is on")
	}
	if c.Backend.Timeout < 0 {
		return fmt.Errorf("backend timeout must not be negative")
	}
	if c.Sync.Interval < 100*time.Millisecond {
		return fmt.Errorf("sync interval must be at least 100ms")
	}
	for _, v := range c.Sync.Views {
		if !knownView(v) {
			return fmt.Errorf("unknown view %q (want one of %s)", v, strings.Join(AllViews, ", "))
		}
	}
	switch c.Ordering.Identity {
	case "reverse", "preserve":
	default:
		return fmt.Errorf("ordering identity must be reverse or preserve, got %q", c.Ordering.Identity)
	}
	return c.Logging.Validate()
}

// String returns a safe string representation (hides the device key)
func (c *Config) String() string {
	return fmt.Sprintf("Config{Backend: [URL=%s, Key=%s, Timeout=%s], Sync: [Interval=%s, Tick=%t, Flush=%t, Views=%v], Ordering: %s, Logging: %+v}",
		c.Backend.URL,
		maskToken(c.Backend.DeviceAPIKey),
		c.Backend.Timeout,
		c.Sync.Interval,
		c.Sync.TickEnabled(),
		c.Sync.FlushEnabled(),
		c.Sync.Views,
		c.Ordering.Identity,
		c.Logging,
	)
}

func knownView(v string) bool {
	for _, known := range AllViews {
		if v == known {
			return true
		}
	}
	return false
}

// maskToken masks all but the first 4 characters of a secret
func maskToken(token string) string {
	if len(token) <= 4 {
		return "****"
	}
	return token[:4] + "****"
}
