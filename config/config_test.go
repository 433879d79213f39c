package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
service:
  name: inventory
  baseTopic: inventory/
  operations: [getItem, putItem]
mqtt:
  address: localhost
  clientId: inventory-1
concurrency:
  windowSize: 20
  latencyThreshold: 250ms
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "inventory/", cfg.Service.BaseTopic)
	assert.Equal(t, []string{"getItem", "putItem"}, cfg.Service.Operations)
	assert.Equal(t, 1883, cfg.MQTT.Port)
	assert.Equal(t, 10*time.Second, cfg.MQTT.ConnectTimeout)
	assert.Equal(t, 20, cfg.Concurrency.WindowSize)
	assert.Equal(t, 250*time.Millisecond, cfg.Concurrency.LatencyThreshold)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Encoding)
	assert.Equal(t, ":2112", cfg.Metrics.Address)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "mqtt: [not, a, map"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "logging:\n  level: verbose\n"))
	assert.Error(t, err)
}

func TestDefaultSecurePort(t *testing.T) {
	cfg := &Config{MQTT: MQTTConfig{Address: "broker", Secure: true}}
	cfg.SetDefaults()
	assert.Equal(t, 8883, cfg.MQTT.Port)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{MQTT: MQTTConfig{Address: "localhost"}}
		cfg.SetDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid config", func(*Config) {}, false},
		{"missing address", func(c *Config) { c.MQTT.Address = "" }, true},
		{"bad port", func(c *Config) { c.MQTT.Port = 70000 }, true},
		{"bad qos", func(c *Config) { c.MQTT.QoS = 3 }, true},
		{"secure without store type", func(c *Config) { c.MQTT.Secure = true }, true},
		{"secure with store type", func(c *Config) {
			c.MQTT.Secure = true
			c.MQTT.TLS.KeyStoreType = "pem"
		}, false},
		{"base topic without separator", func(c *Config) { c.Service.BaseTopic = "inventory" }, true},
		{"bad encoding", func(c *Config) { c.Logging.Encoding = "xml" }, true},
		{"max below min", func(c *Config) {
			c.Concurrency.MinWorkers = 8
			c.Concurrency.MaxWorkers = 4
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestApplyOverrides(t *testing.T) {
	cfg := &Config{MQTT: MQTTConfig{Address: "localhost"}}
	cfg.SetDefaults()

	cfg.ApplyOverrides(64, 0, 10, time.Second, ":9090", "")

	assert.Equal(t, 64, cfg.Concurrency.MaxWorkers)
	assert.Equal(t, 1000, cfg.Concurrency.QueueSize)
	assert.Equal(t, 10, cfg.Concurrency.WindowSize)
	assert.Equal(t, time.Second, cfg.Concurrency.LatencyThreshold)
	assert.Equal(t, ":9090", cfg.Metrics.Address)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}
