package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Config represents the complete relay configuration.
type Config struct {
	Upstream UpstreamConfig `json:"upstream" yaml:"upstream"`
	Forward  ForwardConfig  `json:"forward" yaml:"forward"`
	Archive  ArchiveConfig  `json:"archive" yaml:"archive"`
	JSONLog  JSONLogConfig  `json:"jsonlog" yaml:"jsonlog"`
	Live     LiveConfig     `json:"live,omitempty" yaml:"live,omitempty"`
	Queue    QueueConfig    `json:"queue" yaml:"queue"`
	Decode   DecodeConfig   `json:"decode" yaml:"decode"`
	Metrics  MetricsConfig  `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Health   HealthConfig   `json:"health,omitempty" yaml:"health,omitempty"`
	Shutdown ShutdownConfig `json:"shutdown" yaml:"shutdown"`
}

// UpstreamConfig describes the UDP socket frames arrive on and the
// failure policy that declares the upstream unreachable.
type UpstreamConfig struct {
	Host            string `json:"host" yaml:"host"`
	Port            int    `json:"port" yaml:"port"`
	ReadBufferBytes int    `json:"read_buffer_bytes,omitempty" yaml:"read_buffer_bytes,omitempty"`

	// FailureThreshold consecutive receive errors (timeouts excluded)
	// within FailureWindow mark the upstream as gone.
	FailureThreshold int      `json:"failure_threshold,omitempty" yaml:"failure_threshold,omitempty"`
	FailureWindow    Duration `json:"failure_window,omitempty" yaml:"failure_window,omitempty"`
}

// Addr returns the host:port string to bind.
func (u UpstreamConfig) Addr() string {
	return net.JoinHostPort(u.Host, strconv.Itoa(u.Port))
}

// ForwardConfig describes the raw UDP forwarding sink.
type ForwardConfig struct {
	Enabled   bool     `json:"enabled" yaml:"enabled"`
	Endpoints []string `json:"endpoints,omitempty" yaml:"endpoints,omitempty"` // "host:port"
}

// ArchiveConfig describes the binary tlog archive sink.
type ArchiveConfig struct {
	Enabled        bool     `json:"enabled" yaml:"enabled"`
	Dir            string   `json:"dir,omitempty" yaml:"dir,omitempty"`
	FilePrefix     string   `json:"file_prefix,omitempty" yaml:"file_prefix,omitempty"`
	FlushInterval  Duration `json:"flush_interval,omitempty" yaml:"flush_interval,omitempty"`
	FlushThreshold int      `json:"flush_threshold,omitempty" yaml:"flush_threshold,omitempty"`
}

// JSONLogConfig describes the structured JSON Lines sink.
type JSONLogConfig struct {
	Enabled        bool     `json:"enabled" yaml:"enabled"`
	Dir            string   `json:"dir,omitempty" yaml:"dir,omitempty"`
	FilePrefix     string   `json:"file_prefix,omitempty" yaml:"file_prefix,omitempty"`
	FlushInterval  Duration `json:"flush_interval,omitempty" yaml:"flush_interval,omitempty"`
	FlushThreshold int      `json:"flush_threshold,omitempty" yaml:"flush_threshold,omitempty"`
}

// LiveConfig describes the optional NATS live feed sink.
type LiveConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	URL     string `json:"url,omitempty" yaml:"url,omitempty"`
	Subject string `json:"subject,omitempty" yaml:"subject,omitempty"`
}

// QueueConfig sizes the per-sink frame queues.
type QueueConfig struct {
	Capacity int `json:"capacity,omitempty" yaml:"capacity,omitempty"`
}

// DecodeConfig controls MAVLink decoding behavior.
type DecodeConfig struct {
	// Strict rejects frames with unknown message IDs instead of logging
	// them as UNKNOWN with an empty payload.
	Strict bool `json:"strict" yaml:"strict"`
}

// MetricsConfig describes the Prometheus scrape endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Port    int    `json:"port,omitempty" yaml:"port,omitempty"`
	Path    string `json:"path,omitempty" yaml:"path,omitempty"`
}

// HealthConfig describes the HTTP health endpoint.
type HealthConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	Port    int  `json:"port,omitempty" yaml:"port,omitempty"`
}

// ShutdownConfig controls graceful shutdown behavior.
type ShutdownConfig struct {
	// Grace bounds how long sinks may spend draining queued frames.
	Grace Duration `json:"grace,omitempty" yaml:"grace,omitempty"`
}

// Default creates a configuration with production defaults: listen on the
// standard MAVLink GCS port, archive and JSON log enabled, forwarding and
// live feed off until endpoints are configured.
func Default() *Config {
	return &Config{
		Upstream: UpstreamConfig{
			Host:             "0.0.0.0",
			Port:             14550,
			ReadBufferBytes:  2048,
			FailureThreshold: 3,
			FailureWindow:    Duration(5 * time.Second),
		},
		Forward: ForwardConfig{
			Enabled: false,
		},
		Archive: ArchiveConfig{
			Enabled:        true,
			Dir:            "logs",
			FilePrefix:     "mav",
			FlushInterval:  Duration(time.Second),
			FlushThreshold: 64,
		},
		JSONLog: JSONLogConfig{
			Enabled:        true,
			Dir:            "logs",
			FilePrefix:     "mav",
			FlushInterval:  Duration(time.Second),
			FlushThreshold: 64,
		},
		Live: LiveConfig{
			Enabled: false,
			URL:     "nats://localhost:4222",
			Subject: "mavlink.live",
		},
		Queue: QueueConfig{
			Capacity: 1024,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
			Path:    "/metrics",
		},
		Health: HealthConfig{
			Enabled: false,
			Port:    8081,
		},
		Shutdown: ShutdownConfig{
			Grace: Duration(5 * time.Second),
		},
	}
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}

	data, err := json.Marshal(c)
	if err != nil {
		copied := *c
		return &copied
	}

	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		copied := *c
		return &copied
	}

	return &clone
}

// Validate checks if the config is valid
func (c *Config) Validate() error {
	if c.Upstream.Host == "" {
		return errors.New("upstream.host is required")
	}
	// Port 0 binds an OS-assigned ephemeral port
	if c.Upstream.Port != 0 {
		if err := validatePort(c.Upstream.Port); err != nil {
			return fmt.Errorf("upstream.port: %w", err)
		}
	}
	if c.Upstream.ReadBufferBytes < 0 {
		return errors.New("upstream.read_buffer_bytes cannot be negative")
	}
	if c.Upstream.FailureThreshold < 0 {
		return errors.New("upstream.failure_threshold cannot be negative")
	}

	if c.Forward.Enabled {
		if len(c.Forward.Endpoints) == 0 {
			return errors.New("forward.endpoints is required when forwarding is enabled")
		}
		for i, ep := range c.Forward.Endpoints {
			if err := validateEndpoint(ep); err != nil {
				return fmt.Errorf("forward.endpoints[%d]: %w", i, err)
			}
		}
	}

	if c.Archive.Enabled {
		if c.Archive.Dir == "" {
			return errors.New("archive.dir is required when the archive is enabled")
		}
		if err := validateFilePrefix(c.Archive.FilePrefix); err != nil {
			return fmt.Errorf("archive.file_prefix: %w", err)
		}
		if c.Archive.FlushThreshold < 0 {
			return errors.New("archive.flush_threshold cannot be negative")
		}
	}

	if c.JSONLog.Enabled {
		if c.JSONLog.Dir == "" {
			return errors.New("jsonlog.dir is required when the JSON log is enabled")
		}
		if err := validateFilePrefix(c.JSONLog.FilePrefix); err != nil {
			return fmt.Errorf("jsonlog.file_prefix: %w", err)
		}
		if c.JSONLog.FlushThreshold < 0 {
			return errors.New("jsonlog.flush_threshold cannot be negative")
		}
	}

	if c.Live.Enabled {
		if c.Live.URL == "" {
			return errors.New("live.url is required when the live feed is enabled")
		}
		if c.Live.Subject == "" {
			return errors.New("live.subject is required when the live feed is enabled")
		}
		if !isValidNATSSubject(c.Live.Subject) {
			return fmt.Errorf("live.subject %q is not a valid NATS subject", c.Live.Subject)
		}
	}

	if c.Queue.Capacity <= 0 {
		return errors.New("queue.capacity must be positive")
	}

	if c.Metrics.Enabled {
		if err := validatePort(c.Metrics.Port); err != nil {
			return fmt.Errorf("metrics.port: %w", err)
		}
		if c.Metrics.Path != "" && !strings.HasPrefix(c.Metrics.Path, "/") {
			return errors.New("metrics.path must start with /")
		}
	}

	if c.Health.Enabled {
		if err := validatePort(c.Health.Port); err != nil {
			return fmt.Errorf("health.port: %w", err)
		}
	}

	if c.Shutdown.Grace < 0 {
		return errors.New("shutdown.grace cannot be negative")
	}

	return nil
}

func validatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("invalid port %d (must be 1-65535)", port)
	}
	return nil
}

func validateEndpoint(ep string) error {
	host, portStr, err := net.SplitHostPort(ep)
	if err != nil {
		return fmt.Errorf("invalid endpoint %q: %w", ep, err)
	}
	if host == "" {
		return fmt.Errorf("invalid endpoint %q: missing host", ep)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid endpoint %q: %w", ep, err)
	}
	return validatePort(port)
}

func validateFilePrefix(prefix string) error {
	if prefix == "" {
		return errors.New("file prefix is required")
	}
	for _, r := range prefix {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_' {
			return fmt.Errorf("invalid file prefix %q (alphanumeric, dash, underscore only)", prefix)
		}
	}
	return nil
}

// isValidNATSSubject checks if a string is a valid NATS publish subject.
// Wildcards are rejected: the live feed publishes, it never subscribes.
func isValidNATSSubject(s string) bool {
	if s == "" {
		return false
	}
	for _, token := range strings.Split(s, ".") {
		if token == "" || token == "*" || token == ">" {
			return false
		}
		for _, r := range token {
			if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_' {
				return false
			}
		}
	}
	return true
}
