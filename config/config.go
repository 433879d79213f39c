package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Service     ServiceConfig     `yaml:"service"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	Logging     LogConfig         `yaml:"logging"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	Breaker     BreakerConfig     `yaml:"breaker"`
}

// ServiceConfig describes the service this process provides over MQTT
type ServiceConfig struct {
	Name       string   `yaml:"name"`
	BaseTopic  string   `yaml:"baseTopic"`
	Operations []string `yaml:"operations"`
}

type MQTTConfig struct {
	Address        string        `yaml:"address"`
	Port           int           `yaml:"port"`
	Secure         bool          `yaml:"secure"`
	ClientID       string        `yaml:"clientId"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	QoS            int           `yaml:"qos"`
	ConnectTimeout time.Duration `yaml:"connectTimeout"`
	TLS            TLSConfig     `yaml:"tls"`
}

// TLSConfig points at the key and trust stores used for secure connections
type TLSConfig struct {
	KeyStoreType       string `yaml:"keyStoreType"` // pem or pkcs12
	KeyStore           string `yaml:"keyStore"`
	KeyStorePassword   string `yaml:"keyStorePassword"`
	TrustStore         string `yaml:"trustStore"`
	TrustStorePassword string `yaml:"trustStorePassword"`
}

type LogConfig struct {
	Level      string `yaml:"level"`      // debug, info, warn, error
	OutputPath string `yaml:"outputPath"` // file path or "stdout"
	Encoding   string `yaml:"encoding"`   // json or console
}

type MetricsConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Address        string        `yaml:"address"`
	Path           string        `yaml:"path"`
	UpdateInterval time.Duration `yaml:"updateInterval"`
}

// ConcurrencyConfig sizes the shared task pool and tunes the latency governor
type ConcurrencyConfig struct {
	MinWorkers       int           `yaml:"minWorkers"`
	MaxWorkers       int           `yaml:"maxWorkers"`
	QueueSize        int           `yaml:"queueSize"`
	IdleTimeout      time.Duration `yaml:"idleTimeout"`
	WindowSize       int           `yaml:"windowSize"`
	LatencyThreshold time.Duration `yaml:"latencyThreshold"`
}

type BreakerConfig struct {
	FailureThreshold int           `yaml:"failureThreshold"`
	ResetTimeout     time.Duration `yaml:"resetTimeout"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.SetDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// SetDefaults fills in every unset value
func (c *Config) SetDefaults() {
	if c.MQTT.Port == 0 {
		if c.MQTT.Secure {
			c.MQTT.Port = 8883
		} else {
			c.MQTT.Port = 1883
		}
	}
	if c.MQTT.ConnectTimeout <= 0 {
		c.MQTT.ConnectTimeout = 10 * time.Second
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.OutputPath == "" {
		c.Logging.OutputPath = "stdout"
	}
	if c.Logging.Encoding == "" {
		c.Logging.Encoding = "json"
	}

	if c.Metrics.Address == "" {
		c.Metrics.Address = ":2112"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Metrics.UpdateInterval <= 0 {
		c.Metrics.UpdateInterval = 15 * time.Second
	}

	if c.Concurrency.MinWorkers <= 0 {
		c.Concurrency.MinWorkers = runtime.NumCPU()
	}
	if c.Concurrency.MaxWorkers <= 0 {
		c.Concurrency.MaxWorkers = 512
	}
	if c.Concurrency.QueueSize <= 0 {
		c.Concurrency.QueueSize = 1000
	}
	if c.Concurrency.IdleTimeout <= 0 {
		c.Concurrency.IdleTimeout = time.Minute
	}
	if c.Concurrency.WindowSize <= 0 {
		c.Concurrency.WindowSize = 50
	}
	if c.Concurrency.LatencyThreshold <= 0 {
		c.Concurrency.LatencyThreshold = 500 * time.Millisecond
	}

	if c.Breaker.FailureThreshold <= 0 {
		c.Breaker.FailureThreshold = 5
	}
	if c.Breaker.ResetTimeout <= 0 {
		c.Breaker.ResetTimeout = 30 * time.Second
	}
}

// Validate performs validation of all configuration values
func (c *Config) Validate() error {
	if c.MQTT.Address == "" {
		return fmt.Errorf("mqtt address is required")
	}
	if c.MQTT.Port < 1 || c.MQTT.Port > 65535 {
		return fmt.Errorf("invalid mqtt port: %d", c.MQTT.Port)
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("invalid mqtt qos: %d", c.MQTT.QoS)
	}

	// Store contents are checked when the secure connection is built
	if c.MQTT.Secure && c.MQTT.TLS.KeyStoreType == "" {
		return fmt.Errorf("tls key store type is required when secure is enabled")
	}

	if c.Service.BaseTopic != "" && c.Service.BaseTopic[len(c.Service.BaseTopic)-1] != '/' {
		return fmt.Errorf("service base topic must end with '/': %s", c.Service.BaseTopic)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	switch c.Logging.Encoding {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log encoding: %s", c.Logging.Encoding)
	}

	if c.Concurrency.MinWorkers < 1 {
		return fmt.Errorf("min workers must be greater than 0")
	}
	if c.Concurrency.MaxWorkers < c.Concurrency.MinWorkers {
		return fmt.Errorf("max workers (%d) must not be below min workers (%d)",
			c.Concurrency.MaxWorkers, c.Concurrency.MinWorkers)
	}
	if c.Concurrency.QueueSize < 1 {
		return fmt.Errorf("queue size must be greater than 0")
	}
	if c.Concurrency.WindowSize < 1 {
		return fmt.Errorf("window size must be greater than 0")
	}

	return nil
}

// ApplyOverrides applies command line flag overrides to the configuration
func (c *Config) ApplyOverrides(maxWorkers, queueSize, windowSize int, threshold time.Duration, metricsAddr, metricsPath string) {
	if maxWorkers > 0 {
		c.Concurrency.MaxWorkers = maxWorkers
	}
	if queueSize > 0 {
		c.Concurrency.QueueSize = queueSize
	}
	if windowSize > 0 {
		c.Concurrency.WindowSize = windowSize
	}
	if threshold > 0 {
		c.Concurrency.LatencyThreshold = threshold
	}
	if metricsAddr != "" {
		c.Metrics.Address = metricsAddr
	}
	if metricsPath != "" {
		c.Metrics.Path = metricsPath
	}
}
