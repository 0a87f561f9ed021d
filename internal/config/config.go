// Package config handles configuration loading and defaults for heraldmesh
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for heraldmesh
type Config struct {
	Node      NodeConfig      `toml:"node"`
	Transport TransportConfig `toml:"transport"`
	Discovery DiscoveryConfig `toml:"discovery"`
	Limits    LimitsConfig    `toml:"limits"`
	Logging   LoggingConfig   `toml:"logging"`
}

// NodeConfig identifies this peer
type NodeConfig struct {
	UID     string `toml:"uid"`
	Name    string `toml:"name"`
	DataDir string `toml:"data_dir"`
}

// TransportConfig holds HTTP transport settings
type TransportConfig struct {
	ListenAddr    string `toml:"listen_addr"`
	ReceptionPath string `toml:"reception_path"`
	MetricsPort   int    `toml:"metrics_port"`
	MetricsBind   string `toml:"metrics_bind"`
}

// DiscoveryConfig holds bootstrap pull settings
type DiscoveryConfig struct {
	BootstrapPeers []string      `toml:"bootstrap_peers"`
	PullInterval   time.Duration `toml:"pull_interval"`
	PullAttempts   int           `toml:"pull_attempts"`
}

// LimitsConfig holds inbound rate limit settings
type LimitsConfig struct {
	MessagesPerSecond float64 `toml:"messages_per_second"`
	Burst             int     `toml:"burst"`
}

// LoggingConfig holds logging-related settings
type LoggingConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Node: NodeConfig{
			DataDir: filepath.Join(homeDir, ".local", "share", "heraldmesh"),
		},
		Transport: TransportConfig{
			ListenAddr:    "0.0.0.0:8800",
			ReceptionPath: "/herald",
			MetricsPort:   8801,
			MetricsBind:   "127.0.0.1",
		},
		Discovery: DiscoveryConfig{
			PullInterval: 5 * time.Minute,
			PullAttempts: 3,
		},
		Limits: LimitsConfig{
			MessagesPerSecond: 50,
			Burst:             100,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// Load reads configuration from a file, merging with defaults
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Use defaults if no config file
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to a file
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Validate checks the configuration for invalid settings
func (c *Config) Validate() error {
	if c.Transport.ReceptionPath == "" || c.Transport.ReceptionPath[0] != '/' {
		return fmt.Errorf("transport.reception_path must start with '/', got %q", c.Transport.ReceptionPath)
	}
	if c.Transport.MetricsPort < 0 || c.Transport.MetricsPort > 65535 {
		return fmt.Errorf("transport.metrics_port out of range: %d", c.Transport.MetricsPort)
	}
	if c.Discovery.PullInterval < 0 {
		return fmt.Errorf("discovery.pull_interval must not be negative")
	}
	if c.Discovery.PullAttempts < 0 {
		return fmt.Errorf("discovery.pull_attempts must not be negative")
	}
	if c.Limits.MessagesPerSecond < 0 {
		return fmt.Errorf("limits.messages_per_second must not be negative")
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}

	return nil
}
