package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Serial    SerialConfig    `yaml:"serial"`
	HTTP      HTTPConfig      `yaml:"http"`
	Moisture  MoistureConfig  `yaml:"moisture"`
	Watering  WateringConfig  `yaml:"watering"`
	History   HistoryConfig   `yaml:"history"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	NTP       NTPConfig       `yaml:"ntp"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Mock      MockConfig      `yaml:"mock"`
	Log       LogConfig       `yaml:"log"`
}

// SerialConfig contains the serial link configuration.
type SerialConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

// HTTPConfig contains the HTTP API configuration.
type HTTPConfig struct {
	Listen         string   `yaml:"listen"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// MoistureConfig contains sensor calibration and trend parameters.
type MoistureConfig struct {
	// DryValue/WetValue are the raw ADC readings observed in bone-dry soil and
	// in freshly watered soil. Readings are mapped linearly between them.
	DryValue uint16 `yaml:"dry_value"`
	WetValue uint16 `yaml:"wet_value"`

	WindowSeconds    float64 `yaml:"window_seconds"`     // Trend window duration
	EventThreshold   float64 `yaml:"event_threshold"`    // Watering detection threshold (percent/hour)
	MinEventDuration float64 `yaml:"min_event_duration"` // Minimum event duration in seconds (filters noise)
	AverageSamples   int     `yaml:"average_samples"`    // Number of samples to average (0 = disabled, default)
}

// WateringConfig contains pump calibration and dosing limits.
type WateringConfig struct {
	// MlPerSecond is the calibrated pump rate: run the pump for a known
	// duration and measure the dispensed water (e.g. 10s -> 35ml = 3.5 ml/s).
	MlPerSecond   float64 `yaml:"ml_per_second"`
	MinMl         int     `yaml:"min_ml"`          // Minimum amount per dispense
	MaxMl         int     `yaml:"max_ml"`          // Maximum amount per dispense
	DailyBudgetMl int     `yaml:"daily_budget_ml"` // Rolling 24h allowance
	SchedulesFile string  `yaml:"schedules_file"`
}

// HistoryConfig contains watering history storage configuration.
type HistoryConfig struct {
	File             string `yaml:"file"`
	MaxMemoryEntries int    `yaml:"max_memory_entries"`
}

// MQTTConfig contains MQTT and Home Assistant discovery configuration.
type MQTTConfig struct {
	Enabled            bool   `yaml:"enabled"`
	Broker             string `yaml:"broker"` // tcp://IP:PORT
	Username           string `yaml:"username"`
	Password           string `yaml:"password"`
	ClientID           string `yaml:"client_id"`
	TopicPrefix        string `yaml:"topic_prefix"`
	HADiscoveryEnabled bool   `yaml:"ha_discovery_enabled"`
	HADiscoveryPrefix  string `yaml:"ha_discovery_prefix"`
}

// NTPConfig contains time synchronization configuration.
type NTPConfig struct {
	Server string `yaml:"server"`
}

// DiscoveryConfig contains mDNS registration configuration.
type DiscoveryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Instance string `yaml:"instance"`
}

// MockConfig contains mock device configuration.
type MockConfig struct {
	InitialMoisture uint16        `yaml:"initial_moisture"`  // Starting raw reading
	DryFloor        uint16        `yaml:"dry_floor"`         // Raw reading the soil dries towards
	DryRatePerHour  float64       `yaml:"dry_rate_per_hour"` // Raw counts lost per hour
	WateringBoost   float64       `yaml:"watering_boost"`    // Raw counts gained per pump second
	NoiseLevel      float64       `yaml:"noise_level"`       // Noise amplitude in raw counts
	SampleRate      time.Duration `yaml:"sample_rate"`
}

// LogConfig contains logging configuration.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Port: "/dev/ttyACM0", // "COM3" on Windows
			Baud: 115200,
		},
		HTTP: HTTPConfig{
			Listen:         ":8080",
			AllowedOrigins: []string{"http://localhost:8080"},
		},
		Moisture: MoistureConfig{
			DryValue:         1500,
			WetValue:         3000,
			WindowSeconds:    3600,
			EventThreshold:   20.0, // percent/hour
			MinEventDuration: 5.0,
			AverageSamples:   0,
		},
		Watering: WateringConfig{
			MlPerSecond:   3.5,
			MinMl:         10,
			MaxMl:         100,
			DailyBudgetMl: 500,
			SchedulesFile: "schedules.json",
		},
		History: HistoryConfig{
			File:             "data/water_history.jsonl",
			MaxMemoryEntries: 1000,
		},
		MQTT: MQTTConfig{
			Enabled:           false,
			Broker:            "tcp://localhost:1883",
			ClientID:          "gardener",
			TopicPrefix:       "gardener",
			HADiscoveryPrefix: "homeassistant",
		},
		NTP: NTPConfig{
			Server: "pool.ntp.org",
		},
		Discovery: DiscoveryConfig{
			Enabled:  false,
			Instance: "gardener",
		},
		Mock: MockConfig{
			InitialMoisture: 2000,
			DryFloor:        1500,
			DryRatePerHour:  120,
			WateringBoost:   25,
			NoiseLevel:      4,
			SampleRate:      time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			// File doesn't exist, return defaults
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Ensure minimum required fields are set (use defaults if missing)
	cfg.ensureDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.Baud == 0 {
		c.Serial.Baud = def.Serial.Baud
	}

	if c.HTTP.Listen == "" {
		c.HTTP.Listen = def.HTTP.Listen
	}
	if len(c.HTTP.AllowedOrigins) == 0 {
		c.HTTP.AllowedOrigins = def.HTTP.AllowedOrigins
	}

	if c.Moisture.DryValue == 0 && c.Moisture.WetValue == 0 {
		c.Moisture.DryValue = def.Moisture.DryValue
		c.Moisture.WetValue = def.Moisture.WetValue
	}
	if c.Moisture.WindowSeconds == 0 {
		c.Moisture.WindowSeconds = def.Moisture.WindowSeconds
	}
	if c.Moisture.EventThreshold == 0 {
		c.Moisture.EventThreshold = def.Moisture.EventThreshold
	}
	if c.Moisture.MinEventDuration == 0 {
		c.Moisture.MinEventDuration = def.Moisture.MinEventDuration
	}

	if c.Watering.MlPerSecond == 0 {
		c.Watering.MlPerSecond = def.Watering.MlPerSecond
	}
	if c.Watering.MinMl == 0 {
		c.Watering.MinMl = def.Watering.MinMl
	}
	if c.Watering.MaxMl == 0 {
		c.Watering.MaxMl = def.Watering.MaxMl
	}
	if c.Watering.DailyBudgetMl == 0 {
		c.Watering.DailyBudgetMl = def.Watering.DailyBudgetMl
	}
	if c.Watering.SchedulesFile == "" {
		c.Watering.SchedulesFile = def.Watering.SchedulesFile
	}

	if c.History.File == "" {
		c.History.File = def.History.File
	}
	if c.History.MaxMemoryEntries == 0 {
		c.History.MaxMemoryEntries = def.History.MaxMemoryEntries
	}

	if c.MQTT.Broker == "" {
		c.MQTT.Broker = def.MQTT.Broker
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = def.MQTT.ClientID
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = def.MQTT.TopicPrefix
	}
	if c.MQTT.HADiscoveryPrefix == "" {
		c.MQTT.HADiscoveryPrefix = def.MQTT.HADiscoveryPrefix
	}

	if c.NTP.Server == "" {
		c.NTP.Server = def.NTP.Server
	}

	if c.Discovery.Instance == "" {
		c.Discovery.Instance = def.Discovery.Instance
	}

	if c.Mock.InitialMoisture == 0 {
		c.Mock.InitialMoisture = def.Mock.InitialMoisture
	}
	if c.Mock.DryFloor == 0 {
		c.Mock.DryFloor = def.Mock.DryFloor
	}
	if c.Mock.DryRatePerHour == 0 {
		c.Mock.DryRatePerHour = def.Mock.DryRatePerHour
	}
	if c.Mock.WateringBoost == 0 {
		c.Mock.WateringBoost = def.Mock.WateringBoost
	}
	if c.Mock.SampleRate == 0 {
		c.Mock.SampleRate = def.Mock.SampleRate
	}

	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
}

// validate rejects configurations that cannot produce sane behavior.
func (c *Config) validate() error {
	if c.Moisture.DryValue >= c.Moisture.WetValue {
		return fmt.Errorf("config error: 'dry_value' (%d) must be below 'wet_value' (%d)",
			c.Moisture.DryValue, c.Moisture.WetValue)
	}
	if c.Watering.MlPerSecond <= 0 {
		return fmt.Errorf("config error: 'ml_per_second' must be positive")
	}
	if c.Watering.MlPerSecond > 100 {
		return fmt.Errorf("config error: 'ml_per_second' %.1f seems unreasonably high, verify pump calibration",
			c.Watering.MlPerSecond)
	}
	if c.Watering.MinMl > c.Watering.MaxMl {
		return fmt.Errorf("config error: 'min_ml' (%d) must not exceed 'max_ml' (%d)",
			c.Watering.MinMl, c.Watering.MaxMl)
	}
	return nil
}
