package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/lbarthe/vidwatch/tracker"
)

// Config holds the full vidwatch configuration.
type Config struct {
	Listen       string         `yaml:"listen"`
	DBPath       string         `yaml:"db_path"`
	APIKey       string         `yaml:"api_key"`
	QuotaBudget  int64          `yaml:"quota_budget"`
	MCPTransport string         `yaml:"mcp_transport"` // "" or "stdio"
	Tracker      tracker.Config `yaml:"tracker"`
}

// DefaultConfig returns sane defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:      ":8086",
		DBPath:      "db/vidwatch.db",
		QuotaBudget: 10000,
	}
}

// LoadConfig reads and parses a YAML config file, merged over DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that required fields are present. Called after env
// overrides are applied.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("api_key is required (or set YOUTUBE_API_KEY)")
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	switch c.MCPTransport {
	case "", "stdio":
	default:
		return fmt.Errorf("unsupported mcp_transport %q (use stdio)", c.MCPTransport)
	}
	return nil
}
