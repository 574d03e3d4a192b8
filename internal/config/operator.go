package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/quantica-technologies/kafka-backup-operator/pkg/logger"
)

// EnvPrefix selects the environment variables read by LoadOperator. Nested
// keys are separated by a double underscore, e.g.
// KAFKA_BACKUP_STORAGE__PVC_ROOT.
const EnvPrefix = "KAFKA_BACKUP_"

// OperatorConfig is the process-wide configuration of the manager
type OperatorConfig struct {
	MetricsAddr             string               `koanf:"metrics_addr"`
	ProbeAddr               string               `koanf:"probe_addr"`
	LeaderElection          LeaderElectionConfig `koanf:"leader_election"`
	Log                     logger.Config        `koanf:"log"`
	Storage                 StorageOptions       `koanf:"storage"`
	Kafka                   KafkaOptions         `koanf:"kafka"`
	MaxConcurrentReconciles int                  `koanf:"max_concurrent_reconciles"`
	ShutdownTimeout         time.Duration        `koanf:"shutdown_timeout"`
}

// LeaderElectionConfig configures leader election between replicas
type LeaderElectionConfig struct {
	Enabled   bool   `koanf:"enabled"`
	ID        string `koanf:"id"`
	Namespace string `koanf:"namespace"`
}

// StorageOptions apply to every storage backend
type StorageOptions struct {
	Timeout            time.Duration `koanf:"timeout"`
	MaxAttempts        int           `koanf:"max_attempts"`
	InitialBackoff     time.Duration `koanf:"initial_backoff"`
	StreamingThreshold int64         `koanf:"streaming_threshold"`
	PVCRoot            string        `koanf:"pvc_root"`
}

// KafkaOptions apply to every Kafka client
type KafkaOptions struct {
	Version          string        `koanf:"version"`
	ClientID         string        `koanf:"client_id"`
	FetchIdleTimeout time.Duration `koanf:"fetch_idle_timeout"`
}

// LoadOperator merges the YAML file at path (if present) with environment
// variables and applies defaults.
func LoadOperator(path string) (*OperatorConfig, error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, "__", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	var cfg OperatorConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultOperatorConfig returns the configuration used without a file.
func DefaultOperatorConfig() *OperatorConfig {
	cfg := &OperatorConfig{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero values.
func (c *OperatorConfig) ApplyDefaults() {
	if c.MetricsAddr == "" {
		c.MetricsAddr = ":8080"
	}
	if c.ProbeAddr == "" {
		c.ProbeAddr = ":8081"
	}
	if c.LeaderElection.ID == "" {
		c.LeaderElection.ID = "kafka-backup-operator.backup.kafka.io"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Storage.Timeout == 0 {
		c.Storage.Timeout = 5 * time.Minute
	}
	if c.Storage.MaxAttempts == 0 {
		c.Storage.MaxAttempts = 3
	}
	if c.Storage.InitialBackoff == 0 {
		c.Storage.InitialBackoff = time.Second
	}
	if c.Storage.StreamingThreshold == 0 {
		c.Storage.StreamingThreshold = 64 * 1024 * 1024
	}
	if c.Storage.PVCRoot == "" {
		c.Storage.PVCRoot = "/data"
	}
	if c.Kafka.ClientID == "" {
		c.Kafka.ClientID = "kafka-backup-operator"
	}
	if c.Kafka.FetchIdleTimeout == 0 {
		c.Kafka.FetchIdleTimeout = 10 * time.Second
	}
	if c.MaxConcurrentReconciles == 0 {
		c.MaxConcurrentReconciles = 4
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
}

// Validate rejects settings the manager cannot start with.
func (c *OperatorConfig) Validate() error {
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "console", "text":
	default:
		return fmt.Errorf("invalid log format %q: must be json or console", c.Log.Format)
	}
	if c.Storage.Timeout < 0 || c.Storage.InitialBackoff < 0 || c.Kafka.FetchIdleTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if c.Storage.MaxAttempts < 1 {
		return fmt.Errorf("storage.max_attempts must be at least 1")
	}
	if c.MaxConcurrentReconciles < 1 {
		return fmt.Errorf("max_concurrent_reconciles must be at least 1")
	}
	return nil
}
