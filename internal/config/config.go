package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/quantica-technologies/kafka-backup-operator/internal/domain"
	"github.com/quantica-technologies/kafka-backup-operator/internal/infrastructure/kafka"
	apperrors "github.com/quantica-technologies/kafka-backup-operator/pkg/errors"
	"github.com/quantica-technologies/kafka-backup-operator/pkg/logger"
)

// Config is a job file for running the engines outside the cluster
type Config struct {
	Kafka   KafkaConfig   `yaml:"kafka"`
	Storage StorageConfig `yaml:"storage"`
	Backup  BackupConfig  `yaml:"backup"`
	Restore RestoreConfig `yaml:"restore"`
	Offsets OffsetsConfig `yaml:"offsets"`
	Log     logger.Config `yaml:"log"`
}

// KafkaConfig holds Kafka connection settings
type KafkaConfig struct {
	BootstrapServers []string          `yaml:"bootstrap_servers"`
	SecurityProtocol string            `yaml:"security_protocol"`
	ClientID         string            `yaml:"client_id"`
	Version          string            `yaml:"version"`
	SASL             SASLConfig        `yaml:"sasl"`
	TLS              TLSConfig         `yaml:"tls"`
	Properties       map[string]string `yaml:"properties"`
}

// SASLConfig holds SASL authentication settings
type SASLConfig struct {
	Mechanism string `yaml:"mechanism"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
}

// TLSConfig holds TLS settings
type TLSConfig struct {
	Enabled            bool   `yaml:"enabled"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
	CAFile             string `yaml:"ca_file"`
	CertFile           string `yaml:"cert_file"`
	KeyFile            string `yaml:"key_file"`
}

// StorageConfig holds storage backend settings
type StorageConfig struct {
	Type   string      `yaml:"type"` // local, s3, azure, gcs
	Path   string      `yaml:"path"` // base directory for local storage
	Prefix string      `yaml:"prefix"`
	S3     S3Config    `yaml:"s3"`
	Azure  AzureConfig `yaml:"azure"`
	GCS    GCSConfig   `yaml:"gcs"`
}

// S3Config holds AWS S3 specific settings
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style"`
}

// AzureConfig holds Azure Blob Storage settings
type AzureConfig struct {
	AccountName         string `yaml:"account_name"`
	Container           string `yaml:"container"`
	Endpoint            string `yaml:"endpoint"`
	AccountKey          string `yaml:"account_key"`
	SASToken            string `yaml:"sas_token"`
	ClientID            string `yaml:"client_id"`
	TenantID            string `yaml:"tenant_id"`
	ClientSecret        string `yaml:"client_secret"`
	UseWorkloadIdentity bool   `yaml:"use_workload_identity"`
}

// GCSConfig holds Google Cloud Storage settings
type GCSConfig struct {
	Bucket          string `yaml:"bucket"`
	ProjectID       string `yaml:"project_id"`
	Endpoint        string `yaml:"endpoint"`
	CredentialsFile string `yaml:"credentials_file"`
}

// LimitsConfig bounds one run
type LimitsConfig struct {
	MaxConcurrentPartitions int `yaml:"max_concurrent_partitions"`
	RecordsPerSec           int `yaml:"records_per_sec"`
	BytesPerSec             int `yaml:"bytes_per_sec"`
}

// BreakerConfig configures the per-run circuit breaker
type BreakerConfig struct {
	Enabled          *bool         `yaml:"enabled"`
	FailureThreshold int           `yaml:"failure_threshold"`
	ResetTimeout     time.Duration `yaml:"reset_timeout"`
	OperationTimeout time.Duration `yaml:"operation_timeout"`
}

// BackupConfig holds backup-specific settings
type BackupConfig struct {
	Name               string        `yaml:"name"`
	RunID              string        `yaml:"run_id"`
	Topics             []string      `yaml:"topics"`
	ConsumerGroups     []string      `yaml:"consumer_groups"`
	Compression        string        `yaml:"compression"`
	CompressionLevel   int           `yaml:"compression_level"`
	Checkpoint         *bool         `yaml:"checkpoint"`
	CheckpointInterval time.Duration `yaml:"checkpoint_interval"`
	SegmentMaxRecords  int           `yaml:"segment_max_records"`
	SegmentMaxBytes    int           `yaml:"segment_max_bytes"`
	Limits             LimitsConfig  `yaml:"limits"`
	Breaker            BreakerConfig `yaml:"circuit_breaker"`
	Retention          struct {
		MaxBackups int           `yaml:"max_backups"`
		MaxAge     time.Duration `yaml:"max_age"`
	} `yaml:"retention"`
}

// RestoreConfig holds restore-specific settings
type RestoreConfig struct {
	ID                    string             `yaml:"id"`
	BackupName            string             `yaml:"backup_name"`
	BackupID              string             `yaml:"backup_id"`
	Topics                []string           `yaml:"topics"`
	TopicMapping          map[string]string  `yaml:"topic_mapping"`
	PartitionFilter       map[string][]int32 `yaml:"partition_filter"`
	PITRStart             *time.Time         `yaml:"pitr_start"`
	PITREnd               *time.Time         `yaml:"pitr_end"`
	RecoverOffsets        bool               `yaml:"recover_offsets"`
	ConsumerGroups        []string           `yaml:"consumer_groups"`
	SnapshotBeforeRestore *bool              `yaml:"snapshot_before_restore"`
	AutoRollbackOnFailure bool               `yaml:"auto_rollback_on_failure"`
	CreateTopics          *bool              `yaml:"create_topics"`
	DryRun                bool               `yaml:"dry_run"`
	Limits                LimitsConfig       `yaml:"limits"`
	Breaker               BreakerConfig      `yaml:"circuit_breaker"`
}

// OffsetsConfig holds consumer group offset settings
type OffsetsConfig struct {
	Reset    ResetConfig    `yaml:"reset"`
	Rollback RollbackConfig `yaml:"rollback"`
}

// ResetConfig describes an offset reset
type ResetConfig struct {
	Name                string     `yaml:"name"`
	Groups              []string   `yaml:"groups"`
	Topics              []string   `yaml:"topics"`
	Strategy            string     `yaml:"strategy"`
	Timestamp           *time.Time `yaml:"timestamp"`
	Offset              *int64     `yaml:"offset"`
	MappingPath         string     `yaml:"mapping_path"`
	Parallelism         int        `yaml:"parallelism"`
	DryRun              bool       `yaml:"dry_run"`
	ContinueOnError     bool       `yaml:"continue_on_error"`
	SnapshotBeforeReset *bool      `yaml:"snapshot_before_reset"`
	SnapshotID          string     `yaml:"snapshot_id"`
}

// RollbackConfig describes an offset rollback
type RollbackConfig struct {
	Name         string   `yaml:"name"`
	SnapshotID   string   `yaml:"snapshot_id"`
	SnapshotPath string   `yaml:"snapshot_path"`
	Groups       []string `yaml:"groups"`
	Parallelism  int      `yaml:"parallelism"`
	DryRun       bool     `yaml:"dry_run"`
	Verify       *bool    `yaml:"verify"`
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.overrideFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Kafka: KafkaConfig{
			BootstrapServers: []string{"localhost:9092"},
			SecurityProtocol: "PLAINTEXT",
			Properties:       make(map[string]string),
		},
		Storage: StorageConfig{
			Type: "local",
			Path: "./backup",
		},
		Backup: BackupConfig{
			Compression:      "zstd",
			CompressionLevel: 3,
		},
		Offsets: OffsetsConfig{
			Reset:    ResetConfig{Parallelism: domain.DefaultParallelism},
			Rollback: RollbackConfig{Parallelism: domain.DefaultParallelism},
		},
		Log: logger.Config{Level: "info", Format: "json"},
	}
}

// Validate checks the settings shared by every command. Command specific
// settings are checked when the request is built.
func (c *Config) Validate() error {
	v := NewValidator()

	if len(c.Kafka.BootstrapServers) == 0 {
		return apperrors.Configuration("At least one bootstrap server must be specified")
	}
	if err := v.ValidateSecurityProtocol(c.Kafka.SecurityProtocol); err != nil {
		return err
	}

	switch c.Storage.Type {
	case "local":
		if c.Storage.Path == "" {
			return apperrors.Configuration("storage path must be specified")
		}
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return apperrors.Configuration("s3 bucket must be specified")
		}
	case "azure":
		if c.Storage.Azure.AccountName == "" || c.Storage.Azure.Container == "" {
			return apperrors.Configuration("azure account name and container must be specified")
		}
	case "gcs":
		if c.Storage.GCS.Bucket == "" {
			return apperrors.Configuration("gcs bucket must be specified")
		}
	default:
		return apperrors.Configuration("unsupported storage type: %s", c.Storage.Type)
	}

	return v.ValidateCompression(c.Backup.Compression, c.Backup.CompressionLevel)
}

// overrideFromEnv overrides configuration from environment variables
func (c *Config) overrideFromEnv() {
	// Kafka overrides
	if val := os.Getenv("KAFKA_BOOTSTRAP_SERVERS"); val != "" {
		c.Kafka.BootstrapServers = strings.Split(val, ",")
	}
	if val := os.Getenv("KAFKA_SECURITY_PROTOCOL"); val != "" {
		c.Kafka.SecurityProtocol = val
	}
	if val := os.Getenv("KAFKA_SASL_USERNAME"); val != "" {
		c.Kafka.SASL.Username = val
	}
	if val := os.Getenv("KAFKA_SASL_PASSWORD"); val != "" {
		c.Kafka.SASL.Password = val
	}

	// Storage overrides
	if val := os.Getenv("STORAGE_TYPE"); val != "" {
		c.Storage.Type = val
	}
	if val := os.Getenv("STORAGE_PATH"); val != "" {
		c.Storage.Path = val
	}
	if val := os.Getenv("STORAGE_REGION"); val != "" {
		c.Storage.S3.Region = val
	}

	// S3 overrides
	if val := os.Getenv("AWS_ACCESS_KEY_ID"); val != "" {
		c.Storage.S3.AccessKeyID = val
	}
	if val := os.Getenv("AWS_SECRET_ACCESS_KEY"); val != "" {
		c.Storage.S3.SecretAccessKey = val
	}

	// Azure overrides
	if val := os.Getenv("AZURE_STORAGE_ACCOUNT"); val != "" {
		c.Storage.Azure.AccountName = val
	}
	if val := os.Getenv("AZURE_STORAGE_KEY"); val != "" {
		c.Storage.Azure.AccountKey = val
	}
	if val := os.Getenv("AZURE_SAS_TOKEN"); val != "" {
		c.Storage.Azure.SASToken = val
	}

	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}
}

// ToBackupRequest converts the backup section into a request
func (c *Config) ToBackupRequest() (*domain.BackupRequest, error) {
	cluster, err := c.toCluster()
	if err != nil {
		return nil, err
	}
	storage, err := c.toStorage()
	if err != nil {
		return nil, err
	}

	b := c.Backup
	req := &domain.BackupRequest{
		Name:               b.Name,
		RunID:              b.RunID,
		Cluster:            cluster,
		Storage:            storage,
		Topics:             b.Topics,
		ConsumerGroups:     b.ConsumerGroups,
		Compression:        b.Compression,
		CompressionLevel:   b.CompressionLevel,
		CheckpointEnabled:  boolOr(b.Checkpoint, true),
		CheckpointInterval: b.CheckpointInterval,
		SegmentMaxRecords:  b.SegmentMaxRecords,
		SegmentMaxBytes:    b.SegmentMaxBytes,
		Limits:             b.Limits.toDomain(),
		Breaker:            b.Breaker.toDomain(),
		Retention: domain.RetentionPolicy{
			MaxBackups: b.Retention.MaxBackups,
			MaxAge:     b.Retention.MaxAge,
		},
	}
	return req, req.Validate()
}

// ToRestoreRequest converts the restore section into a request
func (c *Config) ToRestoreRequest() (*domain.RestoreRequest, error) {
	cluster, err := c.toCluster()
	if err != nil {
		return nil, err
	}
	storage, err := c.toStorage()
	if err != nil {
		return nil, err
	}

	r := c.Restore
	req := &domain.RestoreRequest{
		Name:                  r.ID,
		RestoreID:             r.ID,
		BackupName:            r.BackupName,
		BackupID:              r.BackupID,
		Cluster:               cluster,
		Storage:               storage,
		Topics:                r.Topics,
		TopicMapping:          r.TopicMapping,
		PartitionFilter:       r.PartitionFilter,
		OffsetRecovery:        domain.OffsetRecovery{Enabled: r.RecoverOffsets, Groups: r.ConsumerGroups},
		SnapshotBeforeRestore: boolOr(r.SnapshotBeforeRestore, true),
		AutoRollbackOnFailure: r.AutoRollbackOnFailure,
		CreateTopics:          boolOr(r.CreateTopics, true),
		DryRun:                r.DryRun,
		Limits:                r.Limits.toDomain(),
		Breaker:               r.Breaker.toDomain(),
	}
	if req.RestoreID == "" {
		req.RestoreID = domain.NewRunID("restore", time.Now())
		req.Name = req.RestoreID
	}
	if r.PITRStart != nil || r.PITREnd != nil {
		req.PITR = &domain.TimeWindow{Start: r.PITRStart, End: r.PITREnd}
	}
	return req, req.Validate()
}

// ToOffsetResetRequest converts the offsets.reset section into a request
func (c *Config) ToOffsetResetRequest() (*domain.OffsetResetRequest, error) {
	cluster, err := c.toCluster()
	if err != nil {
		return nil, err
	}
	storage, err := c.toStorage()
	if err != nil {
		return nil, err
	}

	r := c.Offsets.Reset
	req := &domain.OffsetResetRequest{
		Name:                r.Name,
		Cluster:             cluster,
		Storage:             storage,
		Groups:              r.Groups,
		Topics:              r.Topics,
		Strategy:            domain.ParseResetStrategy(r.Strategy),
		Timestamp:           r.Timestamp,
		Offset:              r.Offset,
		MappingPath:         r.MappingPath,
		Parallelism:         r.Parallelism,
		DryRun:              r.DryRun,
		ContinueOnError:     r.ContinueOnError,
		SnapshotBeforeReset: boolOr(r.SnapshotBeforeReset, true),
		SnapshotID:          r.SnapshotID,
	}
	return req, req.Validate()
}

// ToOffsetRollbackRequest converts the offsets.rollback section into a request
func (c *Config) ToOffsetRollbackRequest() (*domain.OffsetRollbackRequest, error) {
	cluster, err := c.toCluster()
	if err != nil {
		return nil, err
	}
	storage, err := c.toStorage()
	if err != nil {
		return nil, err
	}

	r := c.Offsets.Rollback
	req := &domain.OffsetRollbackRequest{
		Name:                r.Name,
		Cluster:             cluster,
		Storage:             storage,
		SnapshotID:          r.SnapshotID,
		SnapshotPath:        r.SnapshotPath,
		Groups:              r.Groups,
		Parallelism:         r.Parallelism,
		DryRun:              r.DryRun,
		VerifyAfterRollback: boolOr(r.Verify, true),
	}
	return req, req.Validate()
}

func (c *Config) toCluster() (*domain.KafkaCluster, error) {
	props := make(map[string]string, len(c.Kafka.Properties)+1)
	for k, v := range c.Kafka.Properties {
		props[k] = v
	}
	if c.Kafka.Version != "" {
		props[kafka.PropertyVersion] = c.Kafka.Version
	}

	cluster := &domain.KafkaCluster{
		ID:               strings.Join(c.Kafka.BootstrapServers, ","),
		BootstrapServers: c.Kafka.BootstrapServers,
		ClientID:         c.Kafka.ClientID,
		SecurityConfig: domain.SecurityConfig{
			Protocol:      domain.SecurityProtocol(c.Kafka.SecurityProtocol),
			SASLMechanism: domain.SASLMechanism(c.Kafka.SASL.Mechanism),
			Username:      c.Kafka.SASL.Username,
			Password:      c.Kafka.SASL.Password,
		},
		Properties: props,
	}

	tls := c.Kafka.TLS
	if !tls.Enabled {
		return cluster, nil
	}
	tlsConfig := &domain.TLSConfig{Enabled: true, InsecureSkipVerify: tls.InsecureSkipVerify}
	var err error
	if tlsConfig.CACert, err = readOptional(tls.CAFile); err != nil {
		return nil, err
	}
	if tlsConfig.ClientCert, err = readOptional(tls.CertFile); err != nil {
		return nil, err
	}
	if tlsConfig.ClientKey, err = readOptional(tls.KeyFile); err != nil {
		return nil, err
	}
	cluster.SecurityConfig.TLSConfig = tlsConfig
	return cluster, nil
}

func (c *Config) toStorage() (*domain.StorageConfig, error) {
	s := c.Storage
	switch s.Type {
	case "s3":
		backend := &domain.S3Config{
			Bucket:       s.S3.Bucket,
			Region:       s.S3.Region,
			Endpoint:     s.S3.Endpoint,
			UsePathStyle: s.S3.UsePathStyle,
		}
		if s.S3.AccessKeyID != "" || s.S3.SecretAccessKey != "" {
			backend.Credentials = &domain.StaticCredentials{
				AccessKeyID:     s.S3.AccessKeyID,
				SecretAccessKey: s.S3.SecretAccessKey,
			}
		}
		return &domain.StorageConfig{Type: domain.StorageTypeS3, Prefix: s.Prefix, Backend: backend}, nil
	case "azure":
		return &domain.StorageConfig{Type: domain.StorageTypeAzure, Prefix: s.Prefix, Backend: &domain.AzureConfig{
			AccountName:         s.Azure.AccountName,
			Container:           s.Azure.Container,
			Endpoint:            s.Azure.Endpoint,
			AccountKey:          s.Azure.AccountKey,
			SASToken:            s.Azure.SASToken,
			ClientID:            s.Azure.ClientID,
			TenantID:            s.Azure.TenantID,
			ClientSecret:        s.Azure.ClientSecret,
			UseWorkloadIdentity: s.Azure.UseWorkloadIdentity,
		}}, nil
	case "gcs":
		creds, err := readOptional(s.GCS.CredentialsFile)
		if err != nil {
			return nil, err
		}
		return &domain.StorageConfig{Type: domain.StorageTypeGCS, Prefix: s.Prefix, Backend: &domain.GCSConfig{
			Bucket:          s.GCS.Bucket,
			ProjectID:       s.GCS.ProjectID,
			Endpoint:        s.GCS.Endpoint,
			CredentialsJSON: creds,
		}}, nil
	default:
		return &domain.StorageConfig{Type: domain.StorageTypeLocal, Prefix: s.Prefix, Backend: &domain.LocalConfig{BasePath: s.Path}}, nil
	}
}

func (l LimitsConfig) toDomain() domain.RateLimits {
	return domain.RateLimits{
		MaxConcurrentPartitions: l.MaxConcurrentPartitions,
		RecordsPerSec:           l.RecordsPerSec,
		BytesPerSec:             l.BytesPerSec,
	}
}

func (b BreakerConfig) toDomain() domain.BreakerSettings {
	return domain.BreakerSettings{
		Enabled:          boolOr(b.Enabled, true),
		FailureThreshold: b.FailureThreshold,
		ResetTimeout:     b.ResetTimeout,
		OperationTimeout: b.OperationTimeout,
	}
}

func readOptional(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

// Save writes the configuration to a YAML file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
