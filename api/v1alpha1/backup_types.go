package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// KafkaBackupSpec defines the desired state of KafkaBackup
type KafkaBackupSpec struct {
	// KafkaCluster is the source cluster
	KafkaCluster KafkaClusterSpec `json:"kafkaCluster"`

	// Topics to back up
	// +kubebuilder:validation:MinItems=1
	Topics []string `json:"topics"`

	// Storage receives the segments and manifests
	Storage StorageSpec `json:"storage"`

	// Schedule for periodic backups (cron format). Without it the backup
	// runs once per spec generation.
	// +optional
	Schedule string `json:"schedule,omitempty"`

	// Compression algorithm for segments
	// +optional
	// +kubebuilder:default="zstd"
	// +kubebuilder:validation:Enum=none;lz4;zstd
	Compression string `json:"compression,omitempty"`

	// CompressionLevel applies to zstd (1-22)
	// +optional
	// +kubebuilder:default=3
	CompressionLevel int `json:"compressionLevel,omitempty"`

	// +optional
	Checkpoint *CheckpointSpec `json:"checkpoint,omitempty"`

	// +optional
	RateLimiting *RateLimitingSpec `json:"rateLimiting,omitempty"`

	// +optional
	CircuitBreaker *CircuitBreakerSpec `json:"circuitBreaker,omitempty"`

	// +optional
	Retention *RetentionSpec `json:"retention,omitempty"`

	// ConsumerGroups whose committed offsets are captured with every run
	// +optional
	ConsumerGroups []string `json:"consumerGroups,omitempty"`

	// SegmentMaxRecords closes a segment after this many records
	// +optional
	SegmentMaxRecords int `json:"segmentMaxRecords,omitempty"`

	// SegmentMaxBytes closes a segment after this many uncompressed bytes
	// +optional
	SegmentMaxBytes int `json:"segmentMaxBytes,omitempty"`

	// Suspend stops new runs. A run in flight continues.
	// +optional
	Suspend bool `json:"suspend,omitempty"`
}

// CheckpointSpec configures resumable backups
type CheckpointSpec struct {
	// +optional
	// +kubebuilder:default=true
	Enabled *bool `json:"enabled,omitempty"`

	// +optional
	// +kubebuilder:default=30
	IntervalSecs int `json:"intervalSecs,omitempty"`
}

// RetentionSpec limits the runs kept in storage
type RetentionSpec struct {
	// +optional
	MaxBackups int `json:"maxBackups,omitempty"`

	// +optional
	MaxAgeHours int `json:"maxAgeHours,omitempty"`
}

// BackupPhase represents the phase of a backup
// +kubebuilder:validation:Enum=Pending;Ready;Running;Completed;Failed;Suspended
type BackupPhase string

const (
	BackupPhasePending   BackupPhase = "Pending"
	BackupPhaseReady     BackupPhase = "Ready"
	BackupPhaseRunning   BackupPhase = "Running"
	BackupPhaseCompleted BackupPhase = "Completed"
	BackupPhaseFailed    BackupPhase = "Failed"
	BackupPhaseSuspended BackupPhase = "Suspended"
)

// Outcomes of the last finished run
const (
	RunStatusSucceeded = "Succeeded"
	RunStatusFailed    = "Failed"
)

// KafkaBackupStatus defines the observed state of KafkaBackup
type KafkaBackupStatus struct {
	// +optional
	Phase BackupPhase `json:"phase,omitempty"`

	// +optional
	Message string `json:"message,omitempty"`

	// LastBackupTime is when the last run finished, successfully or not
	// +optional
	LastBackupTime *metav1.Time `json:"lastBackupTime,omitempty"`

	// +optional
	// +kubebuilder:validation:Enum=Succeeded;Failed
	LastBackupStatus string `json:"lastBackupStatus,omitempty"`

	// +optional
	LastError string `json:"lastError,omitempty"`

	// BackupCount is the number of successful runs
	// +optional
	BackupCount int64 `json:"backupCount,omitempty"`

	// +optional
	NextScheduledBackup *metav1.Time `json:"nextScheduledBackup,omitempty"`

	// BackupID is the current or last run id
	// +optional
	BackupID string `json:"backupId,omitempty"`

	// Resumable is set when BackupID has durable progress but no manifest
	// +optional
	Resumable bool `json:"resumable,omitempty"`

	// +optional
	RecordsProcessed int64 `json:"recordsProcessed,omitempty"`

	// +optional
	BytesProcessed int64 `json:"bytesProcessed,omitempty"`

	// +optional
	SegmentsCompleted int64 `json:"segmentsCompleted,omitempty"`

	// +optional
	LastCheckpointTime *metav1.Time `json:"lastCheckpointTime,omitempty"`

	// +optional
	DurationSeconds int64 `json:"durationSeconds,omitempty"`

	// +optional
	ObservedGeneration int64 `json:"observedGeneration,omitempty"`

	// +optional
	Conditions []metav1.Condition `json:"conditions,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:shortName=kb
// +kubebuilder:printcolumn:name="Phase",type=string,JSONPath=`.status.phase`
// +kubebuilder:printcolumn:name="Last Backup",type=string,JSONPath=`.status.lastBackupTime`
// +kubebuilder:printcolumn:name="Records",type=integer,JSONPath=`.status.recordsProcessed`
// +kubebuilder:printcolumn:name="Resumable",type=boolean,JSONPath=`.status.resumable`
// +kubebuilder:printcolumn:name="Age",type=date,JSONPath=`.metadata.creationTimestamp`

// KafkaBackup is the Schema for the kafkabackups API
type KafkaBackup struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   KafkaBackupSpec   `json:"spec,omitempty"`
	Status KafkaBackupStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// KafkaBackupList contains a list of KafkaBackup
type KafkaBackupList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []KafkaBackup `json:"items"`
}

func init() {
	SchemeBuilder.Register(&KafkaBackup{}, &KafkaBackupList{})
}
