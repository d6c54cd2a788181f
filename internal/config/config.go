package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// applyDefaults sets default values for unset fields
func applyDefaults(cfg *Config) {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.StatusPort == 0 {
		cfg.StatusPort = DefaultStatusPort
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.QuietWindow == 0 {
		cfg.QuietWindow = DefaultQuietWindow
	}
	if cfg.MaxBodySize == 0 {
		cfg.MaxBodySize = DefaultMaxBodySize
	}
	if cfg.TransportTimeout == 0 {
		cfg.TransportTimeout = DefaultTransportTimeout
	}
	if cfg.JournalSize == 0 {
		cfg.JournalSize = DefaultJournalSize
	}

	for i := range cfg.Transports {
		if cfg.Transports[i].Kind == "" {
			cfg.Transports[i].Kind = KindHTTP
		}
		if cfg.Transports[i].MessageTimeout == 0 {
			cfg.Transports[i].MessageTimeout = DefaultMessageTimeout
		}
		if cfg.Transports[i].PingInterval == 0 {
			cfg.Transports[i].PingInterval = DefaultPingInterval
		}
	}
}

// validate checks the configuration for errors
func validate(cfg *Config) error {
	if len(cfg.Transports) == 0 {
		return errors.New("at least one transport is required")
	}

	names := make(map[string]bool)
	for i, tr := range cfg.Transports {
		if tr.Name == "" {
			return fmt.Errorf("transport[%d]: name is required", i)
		}

		if names[tr.Name] {
			return fmt.Errorf("transport[%d]: duplicate transport name '%s'", i, tr.Name)
		}
		names[tr.Name] = true

		if tr.Kind != KindHTTP && tr.Kind != KindWS {
			return fmt.Errorf("transport '%s': kind must be 'http' or 'ws'", tr.Name)
		}

		if tr.URL == "" {
			return fmt.Errorf("transport '%s': url is required", tr.Name)
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}

	if cfg.StatusPort < 1 || cfg.StatusPort > 65535 {
		return fmt.Errorf("statusPort must be between 1 and 65535")
	}

	if cfg.Port == cfg.StatusPort {
		return fmt.Errorf("port and statusPort must differ")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("logLevel must be one of: debug, info, warn, error")
	}

	if cfg.QuietWindow < 0 {
		return fmt.Errorf("quietWindow must be non-negative")
	}

	if cfg.TransportTimeout < 0 {
		return fmt.Errorf("transportTimeout must be non-negative")
	}

	if cfg.JournalSize < 0 {
		return fmt.Errorf("journalSize must be non-negative")
	}

	return nil
}
