package config

import (
	"strings"
	"testing"

	"github.com/quantica-technologies/kafka-backup-operator/api/v1alpha1"
	apperrors "github.com/quantica-technologies/kafka-backup-operator/pkg/errors"
)

func validBackupSpec() *v1alpha1.KafkaBackupSpec {
	return &v1alpha1.KafkaBackupSpec{
		KafkaCluster: v1alpha1.KafkaClusterSpec{BootstrapServers: []string{"kafka:9092"}},
		Topics:       []string{"orders", "payments"},
		Storage: v1alpha1.StorageSpec{
			StorageType: "pvc",
			PVC:         &v1alpha1.PVCStorageSpec{ClaimName: "backups"},
		},
	}
}

func TestValidateBackup(t *testing.T) {
	v := NewValidator()
	tests := []struct {
		name   string
		mutate func(*v1alpha1.KafkaBackupSpec)
		want   string
	}{
		{"valid", func(*v1alpha1.KafkaBackupSpec) {}, ""},
		{"no topics", func(s *v1alpha1.KafkaBackupSpec) { s.Topics = nil }, "At least one topic must be specified"},
		{"bad topic", func(s *v1alpha1.KafkaBackupSpec) { s.Topics = []string{"orders/eu"} }, `contains invalid character '/'`},
		{"no servers", func(s *v1alpha1.KafkaBackupSpec) { s.KafkaCluster.BootstrapServers = nil }, "At least one bootstrap server must be specified"},
		{"sasl without secret", func(s *v1alpha1.KafkaBackupSpec) { s.KafkaCluster.SecurityProtocol = "SASL_SSL" }, "requires saslSecret"},
		{"bad protocol", func(s *v1alpha1.KafkaBackupSpec) { s.KafkaCluster.SecurityProtocol = "TLS" }, "invalid security protocol: TLS"},
		{"pvc missing", func(s *v1alpha1.KafkaBackupSpec) { s.Storage.PVC = nil }, "PVC storage selected but pvc configuration is missing"},
		{"bad schedule", func(s *v1alpha1.KafkaBackupSpec) { s.Schedule = "every day" }, "Invalid cron schedule 'every day'"},
		{"zstd level", func(s *v1alpha1.KafkaBackupSpec) { s.Compression, s.CompressionLevel = "zstd", 23 }, "Invalid zstd compression level 23"},
		{"zstd default level", func(s *v1alpha1.KafkaBackupSpec) { s.Compression, s.CompressionLevel = "zstd", 0 }, ""},
		{"codec", func(s *v1alpha1.KafkaBackupSpec) { s.Compression = "gzip" }, "Invalid compression 'gzip'"},
		{"negative rate", func(s *v1alpha1.KafkaBackupSpec) {
			s.RateLimiting = &v1alpha1.RateLimitingSpec{RecordsPerSec: -1}
		}, "rate limits must not be negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := validBackupSpec()
			tt.mutate(spec)
			checkValidation(t, v.ValidateBackup(spec), tt.want)
		})
	}
}

func TestValidateStorage(t *testing.T) {
	v := NewValidator()
	tests := []struct {
		name string
		spec v1alpha1.StorageSpec
		want string
	}{
		{"s3", v1alpha1.StorageSpec{StorageType: "s3", S3: &v1alpha1.S3StorageSpec{Bucket: "b", Region: "eu-west-1"}}, ""},
		{"s3 bucket", v1alpha1.StorageSpec{StorageType: "s3", S3: &v1alpha1.S3StorageSpec{Region: "eu-west-1"}}, "S3 bucket must be specified"},
		{"azure auth", v1alpha1.StorageSpec{StorageType: "azure", Azure: &v1alpha1.AzureStorageSpec{Container: "c", AccountName: "a"}},
			"Azure storage requires either useWorkloadIdentity: true or credentialsSecret to be configured"},
		{"azure sas", v1alpha1.StorageSpec{StorageType: "azure", Azure: &v1alpha1.AzureStorageSpec{
			Container: "c", AccountName: "a", SASTokenSecret: &v1alpha1.AzureSASTokenRef{Name: "sas"},
		}}, ""},
		{"gcs missing", v1alpha1.StorageSpec{StorageType: "gcs"}, "GCS storage selected but gcs configuration is missing"},
		{"unknown", v1alpha1.StorageSpec{StorageType: "nfs"}, "Invalid storage type 'nfs': must be one of: pvc, s3, azure, gcs"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := tt.spec
			checkValidation(t, v.ValidateStorage(&spec), tt.want)
		})
	}
}

func TestValidateRestore(t *testing.T) {
	v := NewValidator()
	start, end := int64(2000), int64(1000)
	cluster := v1alpha1.KafkaClusterSpec{BootstrapServers: []string{"kafka:9092"}}

	checkValidation(t, v.ValidateRestore(&v1alpha1.KafkaRestoreSpec{KafkaCluster: cluster}),
		"Either backup name or direct storage reference must be specified")

	checkValidation(t, v.ValidateRestore(&v1alpha1.KafkaRestoreSpec{
		KafkaCluster: cluster,
		BackupRef:    v1alpha1.BackupRef{Name: "orders"},
		PITR:         &v1alpha1.PITRSpec{StartTimestamp: &start, EndTimestamp: &end},
	}), "PITR start timestamp must be before end timestamp")

	checkValidation(t, v.ValidateRestore(&v1alpha1.KafkaRestoreSpec{
		KafkaCluster: cluster,
		BackupRef:    v1alpha1.BackupRef{Name: "orders"},
		TopicMapping: map[string]string{"orders": "orders restored"},
	}), `invalid topic mapping for "orders"`)
}

func TestValidateOffsetReset(t *testing.T) {
	v := NewValidator()
	base := func() *v1alpha1.KafkaOffsetResetSpec {
		return &v1alpha1.KafkaOffsetResetSpec{
			KafkaCluster:   v1alpha1.KafkaClusterSpec{BootstrapServers: []string{"kafka:9092"}},
			ConsumerGroups: []string{"billing"},
			Topics:         []string{"orders"},
			ResetStrategy:  "to-earliest",
		}
	}
	zero := 0
	tests := []struct {
		name   string
		mutate func(*v1alpha1.KafkaOffsetResetSpec)
		want   string
	}{
		{"valid", func(*v1alpha1.KafkaOffsetResetSpec) {}, ""},
		{"earliest alias", func(s *v1alpha1.KafkaOffsetResetSpec) { s.ResetStrategy = "earliest" }, ""},
		{"latest alias", func(s *v1alpha1.KafkaOffsetResetSpec) { s.ResetStrategy = "latest" }, ""},
		{"groups", func(s *v1alpha1.KafkaOffsetResetSpec) { s.ConsumerGroups = nil }, "At least one consumer group must be specified"},
		{"timestamp", func(s *v1alpha1.KafkaOffsetResetSpec) { s.ResetStrategy = "to-timestamp" }, "resetTimestamp is required when using to-timestamp strategy"},
		{"offset", func(s *v1alpha1.KafkaOffsetResetSpec) { s.ResetStrategy = "to-offset" }, "resetOffset is required when using to-offset strategy"},
		{"mapping", func(s *v1alpha1.KafkaOffsetResetSpec) { s.ResetStrategy = "from-mapping" }, "offsetMappingRef is required when using from-mapping strategy"},
		{"strategy", func(s *v1alpha1.KafkaOffsetResetSpec) { s.ResetStrategy = "to-middle" }, "Invalid reset strategy 'to-middle'"},
		{"parallelism", func(s *v1alpha1.KafkaOffsetResetSpec) { s.Parallelism = &zero }, "parallelism must be greater than 0"},
		{"topics", func(s *v1alpha1.KafkaOffsetResetSpec) { s.Topics = nil }, "At least one topic must be specified"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := base()
			tt.mutate(spec)
			checkValidation(t, v.ValidateOffsetReset(spec), tt.want)
		})
	}
}

func TestValidateOffsetRollback(t *testing.T) {
	v := NewValidator()
	spec := &v1alpha1.KafkaOffsetRollbackSpec{
		KafkaCluster: v1alpha1.KafkaClusterSpec{BootstrapServers: []string{"kafka:9092"}},
	}
	checkValidation(t, v.ValidateOffsetRollback(spec), "Either snapshot name or path must be specified")

	spec.SnapshotRef.RestoreRef = "orders-restore"
	checkValidation(t, v.ValidateOffsetRollback(spec), "")
}

func TestValidateTopicName(t *testing.T) {
	v := NewValidator()
	for _, name := range []string{"orders", "orders.eu_west-1", strings.Repeat("a", 249)} {
		if err := v.ValidateTopicName(name); err != nil {
			t.Errorf("ValidateTopicName(%q) = %v", name, err)
		}
	}
	for _, name := range []string{"", ".", "..", strings.Repeat("a", 250), "orders*"} {
		if err := v.ValidateTopicName(name); err == nil {
			t.Errorf("ValidateTopicName(%q) accepted an invalid name", name)
		}
	}
}

func checkValidation(t *testing.T, err error, want string) {
	t.Helper()
	if want == "" {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return
	}
	if err == nil {
		t.Fatalf("expected error containing %q", want)
	}
	if !apperrors.IsKind(err, apperrors.KindConfiguration) {
		t.Errorf("error %v is not a configuration error", err)
	}
	if !strings.Contains(err.Error(), want) {
		t.Errorf("error = %q, want it to contain %q", err.Error(), want)
	}
}
