package config

import (
	"strings"

	"github.com/quantica-technologies/kafka-backup-operator/api/v1alpha1"
	"github.com/quantica-technologies/kafka-backup-operator/internal/domain"
	"github.com/quantica-technologies/kafka-backup-operator/internal/schedule"
	apperrors "github.com/quantica-technologies/kafka-backup-operator/pkg/errors"
)

// Validator checks custom resource specs before anything is resolved. Every
// error it returns is a configuration error.
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateBackup validates a KafkaBackup spec
func (v *Validator) ValidateBackup(spec *v1alpha1.KafkaBackupSpec) error {
	if len(spec.Topics) == 0 {
		return apperrors.Configuration("At least one topic must be specified")
	}
	for _, topic := range spec.Topics {
		if err := v.ValidateTopicName(topic); err != nil {
			return err
		}
	}
	if err := v.ValidateCluster(&spec.KafkaCluster); err != nil {
		return err
	}
	if err := v.ValidateStorage(&spec.Storage); err != nil {
		return err
	}
	if spec.Schedule != "" {
		if _, err := schedule.Parse(spec.Schedule); err != nil {
			return err
		}
	}
	if err := v.ValidateCompression(spec.Compression, spec.CompressionLevel); err != nil {
		return err
	}
	return v.ValidateRateLimiting(spec.RateLimiting)
}

// ValidateRestore validates a KafkaRestore spec
func (v *Validator) ValidateRestore(spec *v1alpha1.KafkaRestoreSpec) error {
	if spec.BackupRef.Name == "" && spec.BackupRef.Storage == nil {
		return apperrors.Configuration("Either backup name or direct storage reference must be specified")
	}
	if err := v.ValidateCluster(&spec.KafkaCluster); err != nil {
		return err
	}
	if spec.BackupRef.Storage != nil {
		if err := v.ValidateStorage(spec.BackupRef.Storage); err != nil {
			return err
		}
	}
	if p := spec.PITR; p != nil && p.StartTimestamp != nil && p.EndTimestamp != nil && *p.StartTimestamp >= *p.EndTimestamp {
		return apperrors.Configuration("PITR start timestamp must be before end timestamp")
	}
	for source, target := range spec.TopicMapping {
		if err := v.ValidateTopicName(target); err != nil {
			return apperrors.Configuration("invalid topic mapping for %q: %s", source, apperrors.Message(err))
		}
	}
	for topic, partitions := range spec.PartitionFilter {
		for _, p := range partitions {
			if p < 0 {
				return apperrors.Configuration("partition filter for %q contains negative partition %d", topic, p)
			}
		}
	}
	return v.ValidateRateLimiting(spec.RateLimiting)
}

// ValidateOffsetReset validates a KafkaOffsetReset spec
func (v *Validator) ValidateOffsetReset(spec *v1alpha1.KafkaOffsetResetSpec) error {
	if err := v.ValidateCluster(&spec.KafkaCluster); err != nil {
		return err
	}
	if len(spec.ConsumerGroups) == 0 {
		return apperrors.Configuration("At least one consumer group must be specified")
	}
	strategy := domain.ParseResetStrategy(spec.ResetStrategy)
	switch strategy {
	case domain.ResetToEarliest, domain.ResetToLatest:
	case domain.ResetToTimestamp:
		if spec.ResetTimestamp == nil {
			return apperrors.Configuration("resetTimestamp is required when using to-timestamp strategy")
		}
	case domain.ResetToOffset:
		if spec.ResetOffset == nil {
			return apperrors.Configuration("resetOffset is required when using to-offset strategy")
		}
	case domain.ResetFromMapping:
		if ref := spec.OffsetMappingRef; ref == nil || (ref.RestoreName == "" && ref.Path == "") {
			return apperrors.Configuration("offsetMappingRef is required when using from-mapping strategy")
		}
	default:
		return apperrors.Configuration("Invalid reset strategy '%s': must be one of: to-earliest, to-latest, to-timestamp, to-offset, from-mapping", spec.ResetStrategy)
	}
	if spec.Parallelism != nil && *spec.Parallelism <= 0 {
		return apperrors.Configuration("parallelism must be greater than 0")
	}
	if strategy != domain.ResetFromMapping && len(spec.Topics) == 0 {
		return apperrors.Configuration("At least one topic must be specified")
	}
	if spec.Storage != nil {
		return v.ValidateStorage(spec.Storage)
	}
	return nil
}

// ValidateOffsetRollback validates a KafkaOffsetRollback spec
func (v *Validator) ValidateOffsetRollback(spec *v1alpha1.KafkaOffsetRollbackSpec) error {
	if err := v.ValidateCluster(&spec.KafkaCluster); err != nil {
		return err
	}
	ref := spec.SnapshotRef
	if ref.Name == "" && ref.Path == "" && ref.RestoreRef == "" && ref.OffsetResetRef == "" {
		return apperrors.Configuration("Either snapshot name or path must be specified")
	}
	if spec.Parallelism != nil && *spec.Parallelism <= 0 {
		return apperrors.Configuration("parallelism must be greater than 0")
	}
	if spec.Storage != nil {
		return v.ValidateStorage(spec.Storage)
	}
	return nil
}

// ValidateCluster validates the connection settings of a cluster
func (v *Validator) ValidateCluster(spec *v1alpha1.KafkaClusterSpec) error {
	if len(spec.BootstrapServers) == 0 {
		return apperrors.Configuration("At least one bootstrap server must be specified")
	}
	for _, server := range spec.BootstrapServers {
		if strings.TrimSpace(server) == "" {
			return apperrors.Configuration("bootstrap server entries must not be empty")
		}
	}
	protocol := spec.SecurityProtocol
	if protocol == "" {
		protocol = string(domain.SecurityProtocolPlaintext)
	}
	if err := v.ValidateSecurityProtocol(protocol); err != nil {
		return err
	}
	sec := domain.SecurityConfig{Protocol: domain.SecurityProtocol(protocol)}
	if sec.UsesSASL() && spec.SASLSecret == nil {
		return apperrors.Configuration("security protocol %s requires saslSecret", protocol)
	}
	if spec.SASLSecret != nil && spec.SASLSecret.Name == "" {
		return apperrors.Configuration("saslSecret name must be specified")
	}
	if spec.TLSSecret != nil && spec.TLSSecret.Name == "" {
		return apperrors.Configuration("tlsSecret name must be specified")
	}
	return nil
}

// ValidateStorage validates a storage spec
func (v *Validator) ValidateStorage(spec *v1alpha1.StorageSpec) error {
	storageType := spec.StorageType
	if storageType == "" {
		storageType = "pvc"
	}
	switch storageType {
	case "pvc":
		if spec.PVC == nil {
			return apperrors.Configuration("PVC storage selected but pvc configuration is missing")
		}
		if spec.PVC.ClaimName == "" {
			return apperrors.Configuration("PVC claim name must be specified")
		}
	case "s3":
		if spec.S3 == nil {
			return apperrors.Configuration("S3 storage selected but s3 configuration is missing")
		}
		if spec.S3.Bucket == "" {
			return apperrors.Configuration("S3 bucket must be specified")
		}
	case "azure":
		azure := spec.Azure
		if azure == nil {
			return apperrors.Configuration("Azure storage selected but azure configuration is missing")
		}
		if !azure.UseWorkloadIdentity && azure.CredentialsSecret == nil && azure.SASTokenSecret == nil && azure.ServicePrincipalSecret == nil {
			return apperrors.Configuration("Azure storage requires either useWorkloadIdentity: true or credentialsSecret to be configured")
		}
	case "gcs":
		if spec.GCS == nil {
			return apperrors.Configuration("GCS storage selected but gcs configuration is missing")
		}
		if spec.GCS.Bucket == "" {
			return apperrors.Configuration("GCS bucket must be specified")
		}
	default:
		return apperrors.Configuration("Invalid storage type '%s': must be one of: pvc, s3, azure, gcs", spec.StorageType)
	}
	return nil
}

// ValidateCompression validates the segment codec and its level
func (v *Validator) ValidateCompression(compression string, level int) error {
	switch compression {
	case "", "none", "lz4":
	case "zstd":
		if level != 0 && (level < 1 || level > 22) {
			return apperrors.Configuration("Invalid zstd compression level %d: must be between 1 and 22", level)
		}
	default:
		return apperrors.Configuration("Invalid compression '%s': must be one of: none, lz4, zstd", compression)
	}
	return nil
}

// ValidateRateLimiting rejects negative limits
func (v *Validator) ValidateRateLimiting(spec *v1alpha1.RateLimitingSpec) error {
	if spec == nil {
		return nil
	}
	if spec.RecordsPerSec < 0 || spec.BytesPerSec < 0 {
		return apperrors.Configuration("rate limits must not be negative")
	}
	if spec.MaxConcurrentPartitions < 0 {
		return apperrors.Configuration("maxConcurrentPartitions must be greater than 0")
	}
	return nil
}

// ValidateTopicName validates a Kafka topic name
func (v *Validator) ValidateTopicName(name string) error {
	if name == "" {
		return apperrors.Configuration("topic name cannot be empty")
	}
	if name == "." || name == ".." {
		return apperrors.Configuration("topic name cannot be %q", name)
	}
	if len(name) > 249 {
		return apperrors.Configuration("topic name %q exceeds 249 characters", name)
	}
	for _, c := range name {
		if !isTopicChar(c) {
			return apperrors.Configuration("topic name %q contains invalid character %q", name, c)
		}
	}
	return nil
}

// ValidateSecurityProtocol validates Kafka security protocol
func (v *Validator) ValidateSecurityProtocol(protocol string) error {
	switch domain.SecurityProtocol(protocol) {
	case domain.SecurityProtocolPlaintext, domain.SecurityProtocolSASLPlain,
		domain.SecurityProtocolSASLSSL, domain.SecurityProtocolSSL:
		return nil
	}
	return apperrors.Configuration("invalid security protocol: %s. Valid protocols: PLAINTEXT, SASL_PLAINTEXT, SASL_SSL, SSL", protocol)
}

func isTopicChar(c rune) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' ||
		c == '.' || c == '_' || c == '-'
}
