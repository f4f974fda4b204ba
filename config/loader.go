package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with environment overrides
type Loader struct {
	validation bool
	envPrefix  string
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		validation: true,
		envPrefix:  "MAVRELAY",
	}
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads configuration from a single file. The format is chosen by
// extension: .yaml/.yml use YAML, everything else JSON. An empty path yields
// defaults plus environment overrides.
func (l *Loader) LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied config path
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}

		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", path, err)
			}
		default:
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", path, err)
			}
		}
	}

	l.applyEnvOverrides(cfg)

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// applyEnvOverrides applies MAVRELAY_* environment variables over the loaded
// configuration. Only the settings that change between deployments have
// overrides; structural settings stay in the file.
func (l *Loader) applyEnvOverrides(cfg *Config) {
	if v := l.env("UPSTREAM_HOST"); v != "" {
		cfg.Upstream.Host = v
	}
	if v := l.envInt("UPSTREAM_PORT"); v != 0 {
		cfg.Upstream.Port = v
	}
	if v := l.env("FORWARD_ENDPOINTS"); v != "" {
		cfg.Forward.Enabled = true
		cfg.Forward.Endpoints = splitAndTrim(v)
	}
	if v := l.env("LOG_DIR"); v != "" {
		cfg.Archive.Dir = v
		cfg.JSONLog.Dir = v
	}
	if v := l.env("FILE_PREFIX"); v != "" {
		cfg.Archive.FilePrefix = v
		cfg.JSONLog.FilePrefix = v
	}
	if v := l.envInt("QUEUE_CAPACITY"); v != 0 {
		cfg.Queue.Capacity = v
	}
	if v := l.env("STRICT_DECODE"); v != "" {
		cfg.Decode.Strict = isTruthy(v)
	}
	if v := l.env("NATS_URL"); v != "" {
		cfg.Live.Enabled = true
		cfg.Live.URL = v
	}
	if v := l.env("NATS_SUBJECT"); v != "" {
		cfg.Live.Subject = v
	}
	if v := l.envInt("METRICS_PORT"); v != 0 {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Port = v
	}
	if v := l.envInt("HEALTH_PORT"); v != 0 {
		cfg.Health.Enabled = true
		cfg.Health.Port = v
	}
	if v := l.env("SHUTDOWN_GRACE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Shutdown.Grace = Duration(d)
		}
	}
}

func (l *Loader) env(key string) string {
	return os.Getenv(l.envPrefix + "_" + key)
}

func (l *Loader) envInt(key string) int {
	v := l.env(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func isTruthy(s string) bool {
	switch strings.ToLower(s) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
