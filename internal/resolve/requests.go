package resolve

import (
	"context"
	"fmt"
	"strings"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/quantica-technologies/kafka-backup-operator/api/v1alpha1"
	"github.com/quantica-technologies/kafka-backup-operator/internal/domain"
	apperrors "github.com/quantica-technologies/kafka-backup-operator/pkg/errors"
)

// Defaults for fields the API server leaves unset when defaulting is off
const (
	DefaultCompression      = "zstd"
	DefaultCompressionLevel = 3
)

// BackupRequest builds the request for one run of kb. An empty runID starts a
// new run.
func (r *Resolver) BackupRequest(ctx context.Context, kb *v1alpha1.KafkaBackup, runID string) (*domain.BackupRequest, error) {
	spec := &kb.Spec
	if err := r.validator.ValidateBackup(spec); err != nil {
		return nil, err
	}
	cluster, err := r.Cluster(ctx, kb.Namespace, &spec.KafkaCluster)
	if err != nil {
		return nil, err
	}
	storage, err := r.Storage(ctx, kb.Namespace, &spec.Storage)
	if err != nil {
		return nil, err
	}

	req := &domain.BackupRequest{
		Name:              kb.Name,
		Namespace:         kb.Namespace,
		RunID:             runID,
		Cluster:           cluster,
		Storage:           storage,
		Topics:            append([]string(nil), spec.Topics...),
		ConsumerGroups:    append([]string(nil), spec.ConsumerGroups...),
		Compression:       spec.Compression,
		CompressionLevel:  spec.CompressionLevel,
		CheckpointEnabled: true,
		SegmentMaxRecords: spec.SegmentMaxRecords,
		SegmentMaxBytes:   spec.SegmentMaxBytes,
		Limits:            limits(spec.RateLimiting),
		Breaker:           breaker(spec.CircuitBreaker),
	}
	if req.Compression == "" {
		req.Compression = DefaultCompression
	}
	if req.Compression == "zstd" && req.CompressionLevel == 0 {
		req.CompressionLevel = DefaultCompressionLevel
	}
	if cp := spec.Checkpoint; cp != nil {
		req.CheckpointEnabled = v1alpha1.BoolOr(cp.Enabled, true)
		req.CheckpointInterval = time.Duration(cp.IntervalSecs) * time.Second
	}
	if ret := spec.Retention; ret != nil {
		req.Retention = domain.RetentionPolicy{
			MaxBackups: ret.MaxBackups,
			MaxAge:     time.Duration(ret.MaxAgeHours) * time.Hour,
		}
	}
	return req, nil
}

// BackupStorage resolves only the storage of kb.
func (r *Resolver) BackupStorage(ctx context.Context, kb *v1alpha1.KafkaBackup) (*domain.StorageConfig, error) {
	return r.Storage(ctx, kb.Namespace, &kb.Spec.Storage)
}

// RestoreID names the restore of one generation of kr. It is stable across
// reconciles so an interrupted restore resumes from its checkpoints.
func RestoreID(kr *v1alpha1.KafkaRestore) string {
	return fmt.Sprintf("%s-%s-g%d", kr.Name, shortUID(kr.UID), kr.Generation)
}

// ResetSnapshotID names the snapshot taken before one generation of a reset.
func ResetSnapshotID(kor *v1alpha1.KafkaOffsetReset) string {
	return fmt.Sprintf("%s-%s-g%d-pre-reset", kor.Name, shortUID(kor.UID), kor.Generation)
}

func shortUID(uid types.UID) string {
	s := strings.ReplaceAll(string(uid), "-", "")
	if len(s) > 8 {
		s = s[:8]
	}
	if s == "" {
		s = "local"
	}
	return s
}

// RestoreRequest builds the request for the current generation of kr.
func (r *Resolver) RestoreRequest(ctx context.Context, kr *v1alpha1.KafkaRestore) (*domain.RestoreRequest, error) {
	spec := &kr.Spec
	if err := r.validator.ValidateRestore(spec); err != nil {
		return nil, err
	}
	cluster, err := r.Cluster(ctx, kr.Namespace, &spec.KafkaCluster)
	if err != nil {
		return nil, err
	}
	storage, backupName, err := r.RestoreStorage(ctx, kr)
	if err != nil {
		return nil, err
	}

	req := &domain.RestoreRequest{
		Name:                  kr.Name,
		Namespace:             kr.Namespace,
		RestoreID:             RestoreID(kr),
		BackupName:            backupName,
		BackupID:              spec.BackupRef.BackupID,
		Cluster:               cluster,
		Storage:               storage,
		Topics:                append([]string(nil), spec.Topics...),
		TopicMapping:          spec.TopicMapping,
		PartitionFilter:       spec.PartitionFilter,
		SnapshotBeforeRestore: true,
		CreateTopics:          v1alpha1.BoolOr(spec.CreateTopics, true),
		DryRun:                spec.DryRun,
		Limits:                limits(spec.RateLimiting),
		Breaker:               breaker(spec.CircuitBreaker),
	}
	if p := spec.PITR; p != nil && (p.StartTimestamp != nil || p.EndTimestamp != nil) {
		req.PITR = &domain.TimeWindow{Start: millis(p.StartTimestamp), End: millis(p.EndTimestamp)}
	}
	if rec := spec.OffsetRecovery; rec != nil {
		req.OffsetRecovery = domain.OffsetRecovery{Enabled: rec.Enabled, Groups: append([]string(nil), rec.Groups...)}
	}
	if rb := spec.Rollback; rb != nil {
		req.SnapshotBeforeRestore = v1alpha1.BoolOr(rb.SnapshotBeforeRestore, true)
		req.AutoRollbackOnFailure = rb.AutoRollbackOnFailure
	}
	return req, nil
}

// RestoreStorage returns the storage holding the backup kr reads and the
// backup name within it.
func (r *Resolver) RestoreStorage(ctx context.Context, kr *v1alpha1.KafkaRestore) (*domain.StorageConfig, string, error) {
	ref := kr.Spec.BackupRef
	if ref.Storage != nil {
		storage, err := r.Storage(ctx, kr.Namespace, ref.Storage)
		return storage, ref.Name, err
	}

	namespace := ref.Namespace
	if namespace == "" {
		namespace = kr.Namespace
	}
	var kb v1alpha1.KafkaBackup
	if err := r.get(ctx, namespace, ref.Name, &kb, "KafkaBackup"); err != nil {
		return nil, "", err
	}
	storage, err := r.BackupStorage(ctx, &kb)
	return storage, kb.Name, err
}

// OffsetResetRequest builds the request for the current generation of kor.
func (r *Resolver) OffsetResetRequest(ctx context.Context, kor *v1alpha1.KafkaOffsetReset) (*domain.OffsetResetRequest, error) {
	spec := &kor.Spec
	if err := r.validator.ValidateOffsetReset(spec); err != nil {
		return nil, err
	}
	cluster, err := r.Cluster(ctx, kor.Namespace, &spec.KafkaCluster)
	if err != nil {
		return nil, err
	}

	req := &domain.OffsetResetRequest{
		Name:                kor.Name,
		Namespace:           kor.Namespace,
		Cluster:             cluster,
		Groups:              append([]string(nil), spec.ConsumerGroups...),
		Topics:              append([]string(nil), spec.Topics...),
		Strategy:            domain.ParseResetStrategy(spec.ResetStrategy),
		Timestamp:           millis(spec.ResetTimestamp),
		Offset:              spec.ResetOffset,
		Parallelism:         parallelism(spec.Parallelism),
		DryRun:              spec.DryRun,
		ContinueOnError:     spec.ContinueOnError,
		SnapshotBeforeReset: v1alpha1.BoolOr(spec.SnapshotBeforeReset, true),
		SnapshotID:          ResetSnapshotID(kor),
	}

	var restore *v1alpha1.KafkaRestore
	if ref := spec.OffsetMappingRef; ref != nil && ref.RestoreName != "" {
		restore = &v1alpha1.KafkaRestore{}
		if err := r.get(ctx, kor.Namespace, ref.RestoreName, restore, "KafkaRestore"); err != nil {
			return nil, err
		}
	}

	switch {
	case spec.Storage != nil:
		if req.Storage, err = r.Storage(ctx, kor.Namespace, spec.Storage); err != nil {
			return nil, err
		}
	case restore != nil:
		if req.Storage, _, err = r.RestoreStorage(ctx, restore); err != nil {
			return nil, err
		}
	}

	if req.Strategy == domain.ResetFromMapping {
		if req.MappingPath, err = mappingPath(spec.OffsetMappingRef, restore); err != nil {
			return nil, err
		}
	}

	if req.Storage == nil {
		switch {
		case req.Strategy == domain.ResetFromMapping:
			return nil, apperrors.Configuration("storage is required to read the offset mapping %s", req.MappingPath)
		case req.SnapshotBeforeReset && !req.DryRun:
			return nil, apperrors.Configuration("storage is required when snapshotBeforeReset is enabled")
		}
	}
	return req, nil
}

func mappingPath(ref *v1alpha1.OffsetMappingRef, restore *v1alpha1.KafkaRestore) (string, error) {
	if ref.Path != "" {
		return ref.Path, nil
	}
	if restore.Status.OffsetMappingPath != "" {
		return restore.Status.OffsetMappingPath, nil
	}
	return "", apperrors.Transient(
		fmt.Errorf("restore phase is %q", restore.Status.Phase),
		fmt.Sprintf("KafkaRestore %s has not written an offset mapping yet", restore.Name),
	)
}

// OffsetRollbackRequest builds the request for the current generation of korb.
func (r *Resolver) OffsetRollbackRequest(ctx context.Context, korb *v1alpha1.KafkaOffsetRollback) (*domain.OffsetRollbackRequest, error) {
	spec := &korb.Spec
	if err := r.validator.ValidateOffsetRollback(spec); err != nil {
		return nil, err
	}
	cluster, err := r.Cluster(ctx, korb.Namespace, &spec.KafkaCluster)
	if err != nil {
		return nil, err
	}

	req := &domain.OffsetRollbackRequest{
		Name:                korb.Name,
		Namespace:           korb.Namespace,
		Cluster:             cluster,
		SnapshotID:          spec.SnapshotRef.Name,
		SnapshotPath:        spec.SnapshotRef.Path,
		Groups:              append([]string(nil), spec.ConsumerGroups...),
		Parallelism:         parallelism(spec.Parallelism),
		DryRun:              spec.DryRun,
		VerifyAfterRollback: v1alpha1.BoolOr(spec.VerifyAfterRollback, true),
	}

	var refStorage *domain.StorageConfig
	switch ref := spec.SnapshotRef; {
	case ref.RestoreRef != "":
		var kr v1alpha1.KafkaRestore
		if err := r.get(ctx, korb.Namespace, ref.RestoreRef, &kr, "KafkaRestore"); err != nil {
			return nil, err
		}
		if req.SnapshotID == "" && req.SnapshotPath == "" {
			rb := kr.Status.Rollback
			if rb == nil || (rb.SnapshotID == "" && rb.SnapshotPath == "") {
				return nil, apperrors.Configuration("KafkaRestore %s has no offset snapshot", kr.Name)
			}
			req.SnapshotID, req.SnapshotPath = rb.SnapshotID, rb.SnapshotPath
		}
		if spec.Storage == nil {
			if refStorage, _, err = r.RestoreStorage(ctx, &kr); err != nil {
				return nil, err
			}
		}

	case ref.OffsetResetRef != "":
		var kor v1alpha1.KafkaOffsetReset
		if err := r.get(ctx, korb.Namespace, ref.OffsetResetRef, &kor, "KafkaOffsetReset"); err != nil {
			return nil, err
		}
		if req.SnapshotID == "" && req.SnapshotPath == "" {
			if kor.Status.SnapshotID == "" && kor.Status.SnapshotPath == "" {
				return nil, apperrors.Configuration("KafkaOffsetReset %s has no offset snapshot", kor.Name)
			}
			req.SnapshotID, req.SnapshotPath = kor.Status.SnapshotID, kor.Status.SnapshotPath
		}
		if spec.Storage == nil {
			if refStorage, err = r.resetStorage(ctx, &kor); err != nil {
				return nil, err
			}
		}
	}

	switch {
	case spec.Storage != nil:
		if req.Storage, err = r.Storage(ctx, korb.Namespace, spec.Storage); err != nil {
			return nil, err
		}
	case refStorage != nil:
		req.Storage = refStorage
	default:
		return nil, apperrors.Configuration("storage is required to read the offset snapshot")
	}
	return req, nil
}

func (r *Resolver) resetStorage(ctx context.Context, kor *v1alpha1.KafkaOffsetReset) (*domain.StorageConfig, error) {
	if kor.Spec.Storage != nil {
		return r.Storage(ctx, kor.Namespace, kor.Spec.Storage)
	}
	if ref := kor.Spec.OffsetMappingRef; ref != nil && ref.RestoreName != "" {
		var kr v1alpha1.KafkaRestore
		if err := r.get(ctx, kor.Namespace, ref.RestoreName, &kr, "KafkaRestore"); err != nil {
			return nil, err
		}
		storage, _, err := r.RestoreStorage(ctx, &kr)
		return storage, err
	}
	return nil, apperrors.Configuration("KafkaOffsetReset %s has no storage to read its snapshot from", kor.Name)
}

func (r *Resolver) get(ctx context.Context, namespace, name string, obj client.Object, kind string) error {
	if err := r.client.Get(ctx, types.NamespacedName{Namespace: namespace, Name: name}, obj); err != nil {
		if apierrors.IsNotFound(err) {
			return apperrors.Transient(err, fmt.Sprintf("%s %s/%s not found", kind, namespace, name))
		}
		return apperrors.Transient(err, fmt.Sprintf("failed to get %s %s/%s", kind, namespace, name))
	}
	return nil
}

func limits(spec *v1alpha1.RateLimitingSpec) domain.RateLimits {
	if spec == nil {
		return domain.RateLimits{}
	}
	return domain.RateLimits{
		MaxConcurrentPartitions: spec.MaxConcurrentPartitions,
		RecordsPerSec:           spec.RecordsPerSec,
		BytesPerSec:             spec.BytesPerSec,
	}
}

func breaker(spec *v1alpha1.CircuitBreakerSpec) domain.BreakerSettings {
	if spec == nil {
		return domain.BreakerSettings{Enabled: true}
	}
	return domain.BreakerSettings{
		Enabled:          v1alpha1.BoolOr(spec.Enabled, true),
		FailureThreshold: spec.FailureThreshold,
		ResetTimeout:     time.Duration(spec.ResetTimeoutSecs) * time.Second,
		OperationTimeout: time.Duration(spec.OperationTimeoutMs) * time.Millisecond,
	}
}

func parallelism(p *int) int {
	if p == nil {
		return domain.DefaultParallelism
	}
	return *p
}

func millis(ms *int64) *time.Time {
	if ms == nil {
		return nil
	}
	t := time.UnixMilli(*ms).UTC()
	return &t
}
