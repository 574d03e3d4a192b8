package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/quantica-technologies/kafka-backup-operator/internal/domain"
	"github.com/quantica-technologies/kafka-backup-operator/internal/infrastructure/kafka"
	apperrors "github.com/quantica-technologies/kafka-backup-operator/pkg/errors"
)

const jobFile = `
kafka:
  bootstrap_servers: ["kafka-0:9092", "kafka-1:9092"]
  security_protocol: SASL_SSL
  version: "3.6.0"
  sasl:
    mechanism: SCRAM-SHA-512
    username: backup
    password: from-file
storage:
  type: s3
  prefix: prod
  s3:
    bucket: kafka-backups
    region: eu-west-1
backup:
  name: orders
  topics: [orders, payments]
  consumer_groups: [billing]
  compression: lz4
  checkpoint_interval: 15s
  limits:
    max_concurrent_partitions: 8
  retention:
    max_backups: 7
restore:
  backup_name: orders
  topic_mapping:
    orders: orders-restored
  pitr_end: 2024-03-01T12:00:00Z
  create_topics: false
offsets:
  reset:
    groups: [billing]
    topics: [orders]
    strategy: to-offset
    offset: 42
    dry_run: true
  rollback:
    snapshot_id: orders-restore-pre-restore
`

func writeJobFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "job.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFromFileBuildsBackupRequest(t *testing.T) {
	t.Setenv("KAFKA_SASL_PASSWORD", "from-env")
	t.Setenv("AWS_ACCESS_KEY_ID", "AKIA")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "secret")

	cfg, err := LoadFromFile(writeJobFile(t, jobFile))
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}

	req, err := cfg.ToBackupRequest()
	if err != nil {
		t.Fatalf("ToBackupRequest: %v", err)
	}

	wantCluster := &domain.KafkaCluster{
		ID:               "kafka-0:9092,kafka-1:9092",
		BootstrapServers: []string{"kafka-0:9092", "kafka-1:9092"},
		SecurityConfig: domain.SecurityConfig{
			Protocol:      domain.SecurityProtocolSASLSSL,
			SASLMechanism: domain.SASLMechanismScramSHA512,
			Username:      "backup",
			Password:      "from-env",
		},
		Properties: map[string]string{kafka.PropertyVersion: "3.6.0"},
	}
	if diff := cmp.Diff(wantCluster, req.Cluster); diff != "" {
		t.Errorf("cluster mismatch (-want +got):\n%s", diff)
	}

	wantStorage := &domain.StorageConfig{
		Type:   domain.StorageTypeS3,
		Prefix: "prod",
		Backend: &domain.S3Config{
			Bucket:      "kafka-backups",
			Region:      "eu-west-1",
			Credentials: &domain.StaticCredentials{AccessKeyID: "AKIA", SecretAccessKey: "secret"},
		},
	}
	if diff := cmp.Diff(wantStorage, req.Storage); diff != "" {
		t.Errorf("storage mismatch (-want +got):\n%s", diff)
	}

	if req.Name != "orders" || req.Compression != "lz4" || !req.CheckpointEnabled {
		t.Errorf("request = %+v", req)
	}
	if req.CheckpointInterval != 15*time.Second || req.Limits.MaxConcurrentPartitions != 8 || req.Retention.MaxBackups != 7 {
		t.Errorf("tuning = interval %v limits %+v retention %+v", req.CheckpointInterval, req.Limits, req.Retention)
	}
	if !req.Breaker.Enabled {
		t.Error("circuit breaker should default to enabled")
	}
}

func TestJobFileBuildsRestoreAndOffsetRequests(t *testing.T) {
	cfg, err := LoadFromFile(writeJobFile(t, jobFile))
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}

	restore, err := cfg.ToRestoreRequest()
	if err != nil {
		t.Fatalf("ToRestoreRequest: %v", err)
	}
	if restore.BackupName != "orders" || restore.CreateTopics || !restore.SnapshotBeforeRestore {
		t.Errorf("restore = %+v", restore)
	}
	if !strings.HasPrefix(restore.RestoreID, "restore-") {
		t.Errorf("generated restore id = %q", restore.RestoreID)
	}
	wantEnd := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	if restore.PITR == nil || restore.PITR.Start != nil || restore.PITR.End == nil || !restore.PITR.End.Equal(wantEnd) {
		t.Errorf("pitr = %+v", restore.PITR)
	}
	if got := restore.GetMappedTopicName("orders"); got != "orders-restored" {
		t.Errorf("mapped topic = %q", got)
	}

	reset, err := cfg.ToOffsetResetRequest()
	if err != nil {
		t.Fatalf("ToOffsetResetRequest: %v", err)
	}
	if reset.Strategy != domain.ResetToOffset || reset.Offset == nil || *reset.Offset != 42 || !reset.DryRun {
		t.Errorf("reset = %+v", reset)
	}
	if reset.Parallelism != domain.DefaultParallelism {
		t.Errorf("parallelism = %d, want %d", reset.Parallelism, domain.DefaultParallelism)
	}

	rollback, err := cfg.ToOffsetRollbackRequest()
	if err != nil {
		t.Fatalf("ToOffsetRollbackRequest: %v", err)
	}
	if rollback.SnapshotID != "orders-restore-pre-restore" || !rollback.VerifyAfterRollback {
		t.Errorf("rollback = %+v", rollback)
	}
}

func TestJobFileLocalStorageAndTLSFiles(t *testing.T) {
	dir := t.TempDir()
	caFile := filepath.Join(dir, "ca.crt")
	if err := os.WriteFile(caFile, []byte("ca-pem"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	cfg.Storage.Path = dir
	cfg.Kafka.TLS = TLSConfig{Enabled: true, CAFile: caFile}
	cfg.Backup.Name = "orders"
	cfg.Backup.Topics = []string{"orders"}

	req, err := cfg.ToBackupRequest()
	if err != nil {
		t.Fatalf("ToBackupRequest: %v", err)
	}
	if diff := cmp.Diff(&domain.LocalConfig{BasePath: dir}, req.Storage.Backend); diff != "" {
		t.Errorf("backend mismatch (-want +got):\n%s", diff)
	}
	if tls := req.Cluster.SecurityConfig.TLSConfig; tls == nil || string(tls.CACert) != "ca-pem" || tls.ClientCert != nil {
		t.Errorf("tls = %+v", tls)
	}

	cfg.Kafka.TLS.CertFile = filepath.Join(dir, "missing.crt")
	if _, err := cfg.ToBackupRequest(); err == nil {
		t.Fatal("expected an error for an unreadable certificate file")
	}
}

func TestJobFileValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"servers", func(c *Config) { c.Kafka.BootstrapServers = nil }, "At least one bootstrap server must be specified"},
		{"protocol", func(c *Config) { c.Kafka.SecurityProtocol = "TLS" }, "invalid security protocol"},
		{"storage", func(c *Config) { c.Storage.Type = "ftp" }, "unsupported storage type: ftp"},
		{"bucket", func(c *Config) { c.Storage.Type = "gcs" }, "gcs bucket must be specified"},
		{"compression", func(c *Config) { c.Backup.Compression = "snappy" }, "Invalid compression 'snappy'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error = %v, want %q", err, tt.want)
			}
			if !apperrors.IsKind(err, apperrors.KindConfiguration) {
				t.Errorf("error %v is not a configuration error", err)
			}
		})
	}
}

func TestBackupRequestRequiresTopics(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backup.Name = "orders"

	_, err := cfg.ToBackupRequest()
	if err == nil || !strings.Contains(err.Error(), "At least one topic must be specified") {
		t.Fatalf("error = %v", err)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backup.Name = "orders"
	cfg.Backup.Topics = []string{"orders"}

	path := filepath.Join(t.TempDir(), "saved.yaml")
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if diff := cmp.Diff(cfg.Backup.Topics, loaded.Backup.Topics); diff != "" {
		t.Errorf("topics mismatch (-want +got):\n%s", diff)
	}
}
