package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// KafkaRestoreSpec defines the desired state of KafkaRestore
type KafkaRestoreSpec struct {
	// BackupRef selects the backup to restore from
	BackupRef BackupRef `json:"backupRef"`

	// KafkaCluster is the target cluster, which may differ from the source
	KafkaCluster KafkaClusterSpec `json:"kafkaCluster"`

	// Topics to restore. Empty restores every topic in the backup.
	// +optional
	Topics []string `json:"topics,omitempty"`

	// TopicMapping renames topics during restore (source -> target)
	// +optional
	TopicMapping map[string]string `json:"topicMapping,omitempty"`

	// PartitionFilter restricts the restored partitions per source topic
	// +optional
	PartitionFilter map[string][]int32 `json:"partitionFilter,omitempty"`

	// +optional
	PITR *PITRSpec `json:"pitr,omitempty"`

	// +optional
	OffsetRecovery *OffsetRecoverySpec `json:"offsetRecovery,omitempty"`

	// +optional
	Rollback *RollbackSpec `json:"rollback,omitempty"`

	// CreateTopics creates missing target topics with the backed-up layout
	// +optional
	// +kubebuilder:default=true
	CreateTopics *bool `json:"createTopics,omitempty"`

	// +optional
	RateLimiting *RateLimitingSpec `json:"rateLimiting,omitempty"`

	// +optional
	CircuitBreaker *CircuitBreakerSpec `json:"circuitBreaker,omitempty"`

	// DryRun validates and plans without writing
	// +optional
	DryRun bool `json:"dryRun,omitempty"`
}

// BackupRef names a KafkaBackup or points directly at storage
type BackupRef struct {
	// Name of the KafkaBackup resource, or the backup name in Storage
	// +optional
	Name string `json:"name,omitempty"`

	// Namespace of the KafkaBackup, defaults to the restore's namespace
	// +optional
	Namespace string `json:"namespace,omitempty"`

	// BackupID pins a run, otherwise the latest completed run is used
	// +optional
	BackupID string `json:"backupId,omitempty"`

	// Storage reads an external backup without a KafkaBackup resource
	// +optional
	Storage *StorageSpec `json:"storage,omitempty"`
}

// PITRSpec bounds restored records by timestamp (epoch milliseconds)
type PITRSpec struct {
	// +optional
	StartTimestamp *int64 `json:"startTimestamp,omitempty"`

	// +optional
	EndTimestamp *int64 `json:"endTimestamp,omitempty"`
}

// OffsetRecoverySpec commits translated consumer group offsets after a
// restore
type OffsetRecoverySpec struct {
	// +optional
	Enabled bool `json:"enabled,omitempty"`

	// Groups to recover. Empty recovers every group captured with the backup.
	// +optional
	Groups []string `json:"groups,omitempty"`
}

// RollbackSpec makes the restore reversible
type RollbackSpec struct {
	// +optional
	// +kubebuilder:default=true
	SnapshotBeforeRestore *bool `json:"snapshotBeforeRestore,omitempty"`

	// +optional
	AutoRollbackOnFailure bool `json:"autoRollbackOnFailure,omitempty"`
}

// RestorePhase represents the phase of a restore
// +kubebuilder:validation:Enum=Pending;Validating;SnapshottingOffsets;Restoring;Completed;Failed;RollingBack;RolledBack
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

// IsTerminal reports whether the phase awaits a spec change.
func (p RestorePhase) IsTerminal() bool {
	switch p {
	case RestorePhaseCompleted, RestorePhaseFailed, RestorePhaseRolledBack:
		return true
	}
	return false
}

// KafkaRestoreStatus defines the observed state of KafkaRestore
type KafkaRestoreStatus struct {
	// +optional
	Phase RestorePhase `json:"phase,omitempty"`

	// +optional
	Message string `json:"message,omitempty"`

	// +optional
	// +kubebuilder:validation:Enum=Succeeded;Failed
	LastRestoreStatus string `json:"lastRestoreStatus,omitempty"`

	// +optional
	LastError string `json:"lastError,omitempty"`

	// +optional
	BackupID string `json:"backupId,omitempty"`

	// +optional
	RestoreID string `json:"restoreId,omitempty"`

	// +optional
	StartTime *metav1.Time `json:"startTime,omitempty"`

	// +optional
	CompletionTime *metav1.Time `json:"completionTime,omitempty"`

	// +optional
	RecordsRestored int64 `json:"recordsRestored,omitempty"`

	// +optional
	BytesRestored int64 `json:"bytesRestored,omitempty"`

	// +optional
	SegmentsProcessed int64 `json:"segmentsProcessed,omitempty"`

	// +optional
	RecordsFilteredByPITR int64 `json:"recordsFilteredByPitr,omitempty"`

	// +optional
	ProgressPercent int `json:"progressPercent,omitempty"`

	// +optional
	OffsetMappingPath string `json:"offsetMappingPath,omitempty"`

	// +optional
	Rollback *RollbackStatus `json:"rollback,omitempty"`

	// +optional
	ObservedGeneration int64 `json:"observedGeneration,omitempty"`

	// +optional
	Conditions []metav1.Condition `json:"conditions,omitempty"`
}

// RollbackStatus points at the offset snapshot taken before the restore
type RollbackStatus struct {
	SnapshotID        string       `json:"snapshotId"`
	SnapshotPath      string       `json:"snapshotPath"`
	SnapshotTime      *metav1.Time `json:"snapshotTime,omitempty"`
	RollbackAvailable bool         `json:"rollbackAvailable"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:shortName=kr
// +kubebuilder:printcolumn:name="Phase",type=string,JSONPath=`.status.phase`
// +kubebuilder:printcolumn:name="Progress",type=integer,JSONPath=`.status.progressPercent`
// +kubebuilder:printcolumn:name="Records",type=integer,JSONPath=`.status.recordsRestored`
// +kubebuilder:printcolumn:name="Age",type=date,JSONPath=`.metadata.creationTimestamp`

// KafkaRestore is the Schema for the kafkarestores API
type KafkaRestore struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   KafkaRestoreSpec   `json:"spec,omitempty"`
	Status KafkaRestoreStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// KafkaRestoreList contains a list of KafkaRestore
type KafkaRestoreList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []KafkaRestore `json:"items"`
}

func init() {
	SchemeBuilder.Register(&KafkaRestore{}, &KafkaRestoreList{})
}
