package domain

import (
	"time"

	apperrors "github.com/quantica-technologies/kafka-backup-operator/pkg/errors"
)

// Defaults applied to requests that leave a field zero
const (
	DefaultCheckpointInterval = 30 * time.Second
	DefaultSegmentMaxRecords  = 100000
	DefaultSegmentMaxBytes    = 128 * 1024 * 1024
	DefaultPartitionAttempts  = 3
)

// RateLimits bounds partition-level work within one run
type RateLimits struct {
	MaxConcurrentPartitions int
	RecordsPerSec           int
	BytesPerSec             int
}

// BreakerSettings configures the per-run circuit breaker
type BreakerSettings struct {
	Enabled          bool
	FailureThreshold int
	ResetTimeout     time.Duration
	OperationTimeout time.Duration
}

// RetentionPolicy limits the runs kept in storage. Zero values disable a limit.
type RetentionPolicy struct {
	MaxBackups int
	MaxAge     time.Duration
}

// BackupRequest is everything one backup run needs, already resolved
type BackupRequest struct {
	Name      string
	Namespace string
	RunID     string

	Cluster *KafkaCluster
	Storage *StorageConfig

	Topics         []string
	ConsumerGroups []string

	Compression        string
	CompressionLevel   int
	CheckpointEnabled  bool
	CheckpointInterval time.Duration
	SegmentMaxRecords  int
	SegmentMaxBytes    int

	Limits    RateLimits
	Breaker   BreakerSettings
	Retention RetentionPolicy
}

// Validate checks the request before any I/O happens.
func (r *BackupRequest) Validate() error {
	if r.Name == "" {
		return apperrors.Configuration("backup name must be specified")
	}
	if len(r.Topics) == 0 {
		return apperrors.Configuration("At least one topic must be specified")
	}
	if err := r.Cluster.Validate(); err != nil {
		return err
	}
	return r.Storage.Validate()
}

// ApplyDefaults fills zero values.
func (r *BackupRequest) ApplyDefaults(now time.Time) {
	if r.RunID == "" {
		r.RunID = NewRunID(r.Name, now)
	}
	if r.CheckpointInterval <= 0 {
		r.CheckpointInterval = DefaultCheckpointInterval
	}
	if r.SegmentMaxRecords <= 0 {
		r.SegmentMaxRecords = DefaultSegmentMaxRecords
	}
	if r.SegmentMaxBytes <= 0 {
		r.SegmentMaxBytes = DefaultSegmentMaxBytes
	}
}

// BackupResult summarises a finished run
type BackupResult struct {
	RunID             string
	ManifestKey       string
	Resumed           bool
	Records           int64
	Bytes             int64
	Segments          int
	PartitionSegments map[string]int
	Duration          time.Duration
	StartedAt         time.Time
	CompletedAt       time.Time
	RetentionDeleted  []string
}

// BackupProgress is reported while a run is in flight
type BackupProgress struct {
	RunID          string
	Records        int64
	Bytes          int64
	Segments       int
	PartitionsDone int
	Partitions     int
	LastCheckpoint time.Time
}

// PartitionRange is the fixed work of one partition within a run. Target is
// the high-water mark observed when the run started; records at or beyond it
// belong to a later run.
type PartitionRange struct {
	Topic     string `json:"topic"`
	Partition int32  `json:"partition"`
	Low       int64  `json:"low"`
	Target    int64  `json:"target"`
}

func (p PartitionRange) Key() PartitionKey {
	return PartitionKey{Topic: p.Topic, Partition: p.Partition}
}

// Empty reports whether there is nothing to copy.
func (p PartitionRange) Empty() bool {
	return p.Target <= p.Low
}

// RunDescriptor is persisted when a run starts so that a resumed run works
// against the same boundaries.
type RunDescriptor struct {
	SchemaVersion    int                                    `json:"schemaVersion"`
	RunID            string                                 `json:"runId"`
	BackupName       string                                 `json:"backupName"`
	Namespace        string                                 `json:"namespace,omitempty"`
	StartedAt        time.Time                              `json:"startedAt"`
	Compression      string                                 `json:"compression"`
	CompressionLevel int                                    `json:"compressionLevel,omitempty"`
	Topics           []TopicMetadata                        `json:"topics"`
	Partitions       []PartitionRange                       `json:"partitions"`
	GroupOffsets     map[string]map[string]map[int32]int64 `json:"groupOffsets,omitempty"`
}

// Checkpoint is the durable progress marker of one partition. It is written
// only after the segment it describes is stored.
type Checkpoint struct {
	RunID        string           `json:"runId"`
	Topic        string           `json:"topic"`
	Partition    int32            `json:"partition"`
	Offset       int64            `json:"offset"`
	SegmentID    int              `json:"segmentId"`
	BytesWritten int64            `json:"bytesWritten"`
	Records      int64            `json:"records"`
	Done         bool             `json:"done"`
	Segment      *SegmentMetadata `json:"segment,omitempty"`
	Mappings     []OffsetRange    `json:"mappings,omitempty"`
	WrittenAt    time.Time        `json:"writtenAt"`
}

func (c *Checkpoint) Key() PartitionKey {
	return PartitionKey{Topic: c.Topic, Partition: c.Partition}
}

// RunInfo describes a run found in storage
type RunInfo struct {
	RunID     string
	StartedAt time.Time
	Complete  bool
}
