package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Timezone == "" {
		cfg.Server.Timezone = "UTC"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./data/smsmock.db"
	}
	if cfg.Provider == "" {
		cfg.Provider = "twilio"
	}
	if cfg.Twilio.DefaultBehavior == "" {
		cfg.Twilio.DefaultBehavior = "success"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}
