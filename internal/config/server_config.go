package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig holds the backend server configuration
type AppConfig struct {
	Server     ServerSettings     `yaml:"server"`
	Storage    StorageSettings    `yaml:"storage"`
	Simulation SimulationSettings `yaml:"simulation"`
	MQTT       MQTTSettings       `yaml:"mqtt"`
	Logging    LoggingConfig      `yaml:"logging"`
}

// ServerSettings contains HTTP server configuration
type ServerSettings struct {
	Port           int           `yaml:"port"`
	Host           string        `yaml:"host"`
	DeviceAPIKey   string        `yaml:"device_api_key"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

// Addr returns host:port
func (s ServerSettings) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StorageSettings contains storage configuration
type StorageSettings struct {
	Driver        string        `yaml:"driver"`
	DBPath        string        `yaml:"db_path"`
	MemoryLimit   int           `yaml:"memory_limit"`
	RetentionDays int           `yaml:"retention_days"`
	CleanupPeriod time.Duration `yaml:"cleanup_period"`
	PendingSize   int           `yaml:"pending_size"`
	PendingPath   string        `yaml:"pending_path"`
	BatchSize     int           `yaml:"batch_size"`
	FlushPeriod   time.Duration `yaml:"flush_period"`
	ChannelSize   int           `yaml:"channel_size"`
}

// SimulationSettings controls how ticks generate readings
type SimulationSettings struct {
	InRangeRatio float64          `yaml:"in_range_ratio"`
	Seed         int64            `yaml:"seed"`
	Hardware     HardwareSettings `yaml:"hardware"`
}

// HardwareSettings enables a real DHT11 for temperature and humidity sensors
type HardwareSettings struct {
	Enabled bool `yaml:"enabled"`
	GPIOPin int  `yaml:"gpio_pin"`
}

// MQTTSettings configures device ingestion over MQTT
type MQTTSettings struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	QoS      byte   `yaml:"qos"`
}

// LoadAppConfig loads server configuration from a YAML file
func LoadAppConfig(path string) (*AppConfig, error) {
	yamlData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config AppConfig
	if err := yaml.Unmarshal(yamlData, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
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

// ApplyDefaults sets default values for server config
func (ac *AppConfig) ApplyDefaults() {
	if ac.Server.Port == 0 {
		ac.Server.Port = 8081
	}
	if ac.Server.Host == "" {
		ac.Server.Host = "localhost"
	}
	if ac.Server.ReadTimeout == 0 {
		ac.Server.ReadTimeout = 60 * time.Second
	}
	if ac.Server.WriteTimeout == 0 {
		ac.Server.WriteTimeout = 10 * time.Second
	}
	if ac.Storage.Driver == "" {
		ac.Storage.Driver = "sqlite"
	}
	if ac.Storage.DBPath == "" {
		ac.Storage.DBPath = "./data/hydro-monitor.db"
	}
	if ac.Storage.RetentionDays == 0 {
		ac.Storage.RetentionDays = 30
	}
	if ac.Storage.CleanupPeriod == 0 {
		ac.Storage.CleanupPeriod = time.Hour
	}
	if ac.Storage.PendingSize == 0 {
		ac.Storage.PendingSize = 1000
	}
	if ac.Storage.PendingPath == "" {
		ac.Storage.PendingPath = "./data/leituras_pendentes.json"
	}
	if ac.Storage.BatchSize == 0 {
		ac.Storage.BatchSize = 100
	}
	if ac.Storage.FlushPeriod == 0 {
		ac.Storage.FlushPeriod = 5 * time.Second
	}
	if ac.Storage.ChannelSize == 0 {
		ac.Storage.ChannelSize = 1000
	}
	if ac.Simulation.InRangeRatio == 0 {
		ac.Simulation.InRangeRatio = 0.8
	}
	if ac.MQTT.ClientID == "" {
		ac.MQTT.ClientID = "hydro-monitor-server"
	}
	if ac.MQTT.Topic == "" {
		ac.MQTT.Topic = "hidroponia/leituras/#"
	}
	ac.Logging.ApplyDefaults()
}

// OverrideFromEnv overrides config from environment variables
func (ac *AppConfig) OverrideFromEnv() error {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SERVER_PORT: %w", err)
		}
		ac.Server.Port = port
	}
	if v := os.Getenv("SERVER_HOST"); v != "" {
		ac.Server.Host = v
	}
	if v := os.Getenv("DEVICE_API_KEY"); v != "" {
		ac.Server.DeviceAPIKey = v
	}
	if v := os.Getenv("MQTT_BROKER"); v != "" {
		ac.MQTT.Broker = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		ac.Logging.Level = v
	}
	return nil
}

// Validate checks if server configuration is valid
func (ac *AppConfig) Validate() error {
	if ac.Server.Port < 1 || ac.Server.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	if ac.Server.DeviceAPIKey == "" {
		return fmt.Errorf("device API key is required")
	}
	switch ac.Storage.Driver {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("storage driver must be sqlite or memory, got %q", ac.Storage.Driver)
	}
	if ac.Storage.PendingSize < 10 {
		return fmt.Errorf("pending size must be at least 10")
	}
	if ac.Storage.RetentionDays < 1 {
		return fmt.Errorf("retention days must be positive")
	}
	if ac.Simulation.InRangeRatio < 0 || ac.Simulation.InRangeRatio > 1 {
		return fmt.Errorf("in_range_ratio must be between 0 and 1")
	}
	if ac.Simulation.Hardware.Enabled && ac.Simulation.Hardware.GPIOPin <= 0 {
		return fmt.Errorf("GPIO pin must be greater than 0 when hardware is enabled")
	}
	if ac.MQTT.Enabled && ac.MQTT.Broker == "" {
		return fmt.Errorf("mqtt broker is required when mqtt is enabled")
	}
	if ac.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt qos must be 0, 1 or 2")
	}
	return ac.Logging.Validate()
}

// String returns a safe string representation (hides secrets)
func (ac *AppConfig) String() string {
	server := ac.Server
	server.DeviceAPIKey = maskToken(server.DeviceAPIKey)
	mqtt := ac.MQTT
	if mqtt.Password != "" {
		mqtt.Password = maskToken(mqtt.Password)
	}
	return fmt.Sprintf("AppConfig{Server: %+v, Storage: %+v, Simulation: %+v, MQTT: %+v, Logging: %+v}",
		server,
		ac.Storage,
		ac.Simulation,
		mqtt,
		ac.Logging,
	)
}
