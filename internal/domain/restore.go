package domain

import (
	"time"

	apperrors "github.com/quantica-technologies/kafka-backup-operator/pkg/errors"
)

// TimeWindow bounds point-in-time recovery. Nil bounds are open.
type TimeWindow struct {
	Start *time.Time
	End   *time.Time
}

// Contains reports whether ts lies within the window, inclusive.
func (w *TimeWindow) Contains(ts time.Time) bool {
	if w == nil {
		return true
	}
	if w.Start != nil && ts.Before(*w.Start) {
		return false
	}
	if w.End != nil && ts.After(*w.End) {
		return false
	}
	return true
}

// OffsetRecovery selects the consumer groups carried over to the target
type OffsetRecovery struct {
	Enabled bool
	Groups  []string
}

// RestoreRequest is everything one restore run needs, already resolved
type RestoreRequest struct {
	Name      string
	Namespace string
	RestoreID string

	BackupName string
	BackupID   string

	Cluster *KafkaCluster
	Storage *StorageConfig

	Topics          []string
	TopicMapping    map[string]string
	PartitionFilter map[string][]int32
	PITR            *TimeWindow

	OffsetRecovery        OffsetRecovery
	SnapshotBeforeRestore bool
	AutoRollbackOnFailure bool
	CreateTopics          bool
	DryRun                bool

	Limits  RateLimits
	Breaker BreakerSettings
}

// Validate checks the request before any I/O happens.
func (r *RestoreRequest) Validate() error {
	if r.BackupName == "" && r.BackupID == "" {
		return apperrors.Configuration("Either backup name or direct storage reference must be specified")
	}
	if r.PITR != nil && r.PITR.Start != nil && r.PITR.End != nil && !r.PITR.Start.Before(*r.PITR.End) {
		return apperrors.Configuration("PITR start timestamp must be before end timestamp")
	}
	if err := r.Cluster.Validate(); err != nil {
		return err
	}
	return r.Storage.Validate()
}

// GetMappedTopicName returns the mapped topic name or original if no mapping
func (r *RestoreRequest) GetMappedTopicName(originalName string) string {
	if mapped, ok := r.TopicMapping[originalName]; ok && mapped != "" {
		return mapped
	}
	return originalName
}

// ShouldRestoreTopic checks the requested topic subset
func (r *RestoreRequest) ShouldRestoreTopic(topic string) bool {
	if len(r.Topics) == 0 {
		return true
	}
	for _, t := range r.Topics {
		if t == topic {
			return true
		}
	}
	return false
}

// ShouldRestorePartition checks if a partition should be restored
func (r *RestoreRequest) ShouldRestorePartition(topic string, partition int32) bool {
	if r.PartitionFilter == nil {
		return true
	}

	if partitions, ok := r.PartitionFilter[topic]; ok {
		for _, p := range partitions {
			if p == partition {
				return true
			}
		}
		return false
	}

	return true
}

// SnapshotGroups returns the groups captured before data is written.
func (r *RestoreRequest) SnapshotGroups() []string {
	if !r.SnapshotBeforeRestore {
		return nil
	}
	return r.OffsetRecovery.Groups
}

type RestorePhase string

const (
	RestorePhasePending             RestorePhase = "Pending"
	RestorePhaseValidating          RestorePhase = "Validating"
	RestorePhaseSnapshottingOffsets RestorePhase = "SnapshottingOffsets"
	RestorePhaseRestoring           RestorePhase = "Restoring"
	RestorePhaseCompleted           RestorePhase = "Completed"
	RestorePhaseFailed              RestorePhase = "Failed"
	RestorePhaseRollingBack         RestorePhase = "RollingBack"
	RestorePhaseRolledBack          RestorePhase = "RolledBack"
)

// SnapshotRef points at a stored offset snapshot
type SnapshotRef struct {
	ID        string
	Path      string
	CreatedAt time.Time
}

// RestoreResult summarises a restore run. It is returned alongside the error
// on failure so the caller can still report partial progress.
type RestoreResult struct {
	RestoreID         string
	BackupID          string
	Phase             RestorePhase
	DryRun            bool
	TopicsPlanned     []string
	SegmentsPlanned   int
	SegmentsProcessed int
	Records           int64
	Bytes             int64
	FilteredByPITR    int64
	Snapshot          *SnapshotRef
	OffsetMappingPath string
	GroupsRecovered   []string
	StartedAt         time.Time
	CompletedAt       time.Time
	Duration          time.Duration
}

// RestoreProgress is reported while a restore is in flight
type RestoreProgress struct {
	Phase             RestorePhase
	SegmentsPlanned   int
	SegmentsProcessed int
	Records           int64
	Bytes             int64
}

// PercentComplete is the share of planned segments already replayed.
func (p RestoreProgress) PercentComplete() int {
	if p.SegmentsPlanned == 0 {
		if p.Phase == RestorePhaseCompleted {
			return 100
		}
		return 0
	}
	return int(int64(p.SegmentsProcessed) * 100 / int64(p.SegmentsPlanned))
}
