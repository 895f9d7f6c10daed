// Package config loads the admission core's runtime tunables from a YAML
// file, following the same load/parse split as internal/policy's
// FileLoader: reading bytes is a narrow, test-substitutable concern kept
// separate from parsing and defaulting.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every global limit and tunable named in the concurrency
// and resource model: peer/message caps, bucket rates, sandbox capacity,
// audit rotation/cache sizing, and the continuous verifier's interval.
type Config struct {
	AuditDir string `yaml:"audit_dir"`

	MaxPeers             int           `yaml:"max_peers"`
	MaxMessageSize       int           `yaml:"max_message_size"`
	ConnectionsPerMinute int           `yaml:"connections_per_minute"`
	MessagesPerSecond    int           `yaml:"messages_per_second"`
	SandboxCapacity      int           `yaml:"sandbox_capacity"`
	AuditRotationBytes   int64         `yaml:"audit_rotation_bytes"`
	AuditTailCacheSize   int           `yaml:"audit_tail_cache_size"`
	VerifyInterval       time.Duration `yaml:"verify_interval"`

	EstablishTimeout time.Duration `yaml:"establish_timeout"`
	SandboxTimeout   time.Duration `yaml:"sandbox_timeout"`

	PolicyFile string `yaml:"policy_file"` // empty = use the baked-in default policy set

	RedisAddr string `yaml:"redis_addr"` // empty = in-memory rate limiter groups
}

// Default returns the baseline global limits: max peers 1,000, max
// message size 10 MiB, connection bucket 100/min, message bucket 10/s,
// audit rotation at 100 MiB, audit tail cache 1,000 events, verify
// interval 5 minutes.
func Default() Config {
	return Config{
		AuditDir:             "/var/lib/zonode/audit",
		MaxPeers:             1000,
		MaxMessageSize:       10 * 1024 * 1024,
		ConnectionsPerMinute: 100,
		MessagesPerSecond:    10,
		SandboxCapacity:      16,
		AuditRotationBytes:   100 * 1024 * 1024,
		AuditTailCacheSize:   1000,
		VerifyInterval:       5 * time.Minute,
		EstablishTimeout:     10 * time.Second,
		SandboxTimeout:       5 * time.Second,
	}
}

// Validate rejects a Config with a nonsensical tunable rather than let a
// zero or negative value silently disable a limit at runtime.
func (c Config) Validate() error {
	switch {
	case c.AuditDir == "":
		return fmt.Errorf("audit_dir must be set")
	case c.MaxPeers <= 0:
		return fmt.Errorf("max_peers must be positive, got %d", c.MaxPeers)
	case c.MaxMessageSize <= 0:
		return fmt.Errorf("max_message_size must be positive, got %d", c.MaxMessageSize)
	case c.ConnectionsPerMinute <= 0:
		return fmt.Errorf("connections_per_minute must be positive, got %d", c.ConnectionsPerMinute)
	case c.MessagesPerSecond <= 0:
		return fmt.Errorf("messages_per_second must be positive, got %d", c.MessagesPerSecond)
	case c.SandboxCapacity <= 0:
		return fmt.Errorf("sandbox_capacity must be positive, got %d", c.SandboxCapacity)
	case c.AuditRotationBytes <= 0:
		return fmt.Errorf("audit_rotation_bytes must be positive, got %d", c.AuditRotationBytes)
	case c.AuditTailCacheSize <= 0:
		return fmt.Errorf("audit_tail_cache_size must be positive, got %d", c.AuditTailCacheSize)
	case c.VerifyInterval <= 0:
		return fmt.Errorf("verify_interval must be positive, got %v", c.VerifyInterval)
	}
	return nil
}

// fileAPI is the narrow filesystem dependency, in the same SSMAPI/
// DynamoDBAPI style of isolating I/O behind a one-method interface so
// tests can substitute an in-memory filesystem.
type fileAPI interface {
	ReadFile(name string) ([]byte, error)
}

type osFileAPI struct{}

func (osFileAPI) ReadFile(name string) ([]byte, error) { return os.ReadFile(name) }

// Load reads and parses path, overlaying its fields onto Default(). A
// missing file is not an error: the node starts with defaults. A
// present-but-invalid file (bad YAML, or a tunable failing Validate) is.
func Load(path string) (Config, error) {
	return load(osFileAPI{}, path)
}

func load(fs fileAPI, path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := fs.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config file %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}
