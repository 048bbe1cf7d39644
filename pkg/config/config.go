// Package config holds the bridge process configuration: defaults, YAML
// file loading and validation.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// Duration wraps time.Duration so YAML accepts "30s"/"5m" strings.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the standard library duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full bridge configuration.
type Config struct {
	// ListenAddr is the TCP endpoint for client connections.
	ListenAddr string `yaml:"listen_addr" validate:"required"`

	// MetricsAddr serves Prometheus metrics over HTTP; empty disables it.
	MetricsAddr string `yaml:"metrics_addr"`

	// EventsAddr binds the mangos PUB socket for mutation events
	// (e.g. "tcp://127.0.0.1:9410"); empty disables external publishing.
	EventsAddr string `yaml:"events_addr"`

	// AuditDir enables the durable audit file sink; empty keeps the audit
	// trail in memory only.
	AuditDir string `yaml:"audit_dir"`

	// MaxConnections caps concurrent client sessions.
	MaxConnections int `yaml:"max_connections" validate:"min=1,max=1024"`

	// MaxEnvelopeSize bounds one envelope line in bytes.
	MaxEnvelopeSize int `yaml:"max_envelope_size" validate:"min=1024"`

	// FramingErrorLimit closes a connection after this many consecutive
	// framing errors.
	FramingErrorLimit int `yaml:"framing_error_limit" validate:"min=1"`

	// HostQueueSize bounds tasks waiting for the authoritative thread.
	HostQueueSize int `yaml:"host_queue_size" validate:"min=1"`

	// HostTimeout bounds the hand-off to the authoritative thread.
	HostTimeout Duration `yaml:"host_timeout"`

	// TokenTTL is the lifetime of MEDIUM and HIGH confirmation tokens.
	TokenTTL Duration `yaml:"token_ttl"`

	// CriticalTokenTTL is kept short to narrow the replay window.
	CriticalTokenTTL Duration `yaml:"critical_token_ttl"`

	// AuditBufferSize is the in-memory audit ring size.
	AuditBufferSize int `yaml:"audit_buffer_size" validate:"min=16"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" validate:"oneof=debug info warn error"`

	// ShutdownTimeout bounds graceful drain on stop.
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		ListenAddr:        ":9400",
		MaxConnections:    32,
		MaxEnvelopeSize:   1 << 20,
		FramingErrorLimit: 5,
		HostQueueSize:     128,
		HostTimeout:       Duration(5 * time.Second),
		TokenTTL:          Duration(5 * time.Minute),
		CriticalTokenTTL:  Duration(30 * time.Second),
		AuditBufferSize:   1024,
		LogLevel:          "info",
		ShutdownTimeout:   Duration(10 * time.Second),
	}
}

// Load reads a YAML config file over the defaults. Fields absent from the
// file keep their default values.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.HostTimeout.Std() < 100*time.Millisecond {
		return fmt.Errorf("invalid config: host_timeout below 100ms")
	}
	if c.TokenTTL.Std() < time.Second || c.CriticalTokenTTL.Std() < time.Second {
		return fmt.Errorf("invalid config: token TTLs must be at least 1s")
	}
	if c.CriticalTokenTTL.Std() > c.TokenTTL.Std() {
		return fmt.Errorf("invalid config: critical_token_ttl exceeds token_ttl")
	}
	if c.ShutdownTimeout.Std() < time.Second {
		return fmt.Errorf("invalid config: shutdown_timeout below 1s")
	}
	return nil
}
