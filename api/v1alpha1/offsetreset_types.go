package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// KafkaOffsetResetSpec defines the desired state of KafkaOffsetReset
type KafkaOffsetResetSpec struct {
	// KafkaCluster holding the consumer groups
	KafkaCluster KafkaClusterSpec `json:"kafkaCluster"`

	// ConsumerGroups to reset
	// +kubebuilder:validation:MinItems=1
	ConsumerGroups []string `json:"consumerGroups"`

	// ResetStrategy selects the target offsets
	// +kubebuilder:validation:Enum=to-earliest;to-latest;earliest;latest;to-timestamp;to-offset;from-mapping
	ResetStrategy string `json:"resetStrategy"`

	// ResetTimestamp for to-timestamp (epoch milliseconds)
	// +optional
	ResetTimestamp *int64 `json:"resetTimestamp,omitempty"`

	// ResetOffset for to-offset
	// +optional
	ResetOffset *int64 `json:"resetOffset,omitempty"`

	// Topics to reset. Required unless the strategy is from-mapping.
	// +optional
	Topics []string `json:"topics,omitempty"`

	// +optional
	// +kubebuilder:default=50
	Parallelism *int `json:"parallelism,omitempty"`

	// +optional
	DryRun bool `json:"dryRun,omitempty"`

	// ContinueOnError resets the remaining groups after one fails
	// +optional
	ContinueOnError bool `json:"continueOnError,omitempty"`

	// OffsetMappingRef locates the mapping written by a restore
	// +optional
	OffsetMappingRef *OffsetMappingRef `json:"offsetMappingRef,omitempty"`

	// SnapshotBeforeReset stores the current offsets so the reset can be
	// rolled back
	// +optional
	// +kubebuilder:default=true
	SnapshotBeforeReset *bool `json:"snapshotBeforeReset,omitempty"`

	// Storage for snapshots and mappings. Defaults to the storage of the
	// referenced restore's backup.
	// +optional
	Storage *StorageSpec `json:"storage,omitempty"`
}

// OffsetMappingRef points at an offset mapping
type OffsetMappingRef struct {
	// RestoreName is a KafkaRestore in the same namespace
	// +optional
	RestoreName string `json:"restoreName,omitempty"`

	// Path is the object key of the mapping
	// +optional
	Path string `json:"path,omitempty"`
}

// OffsetOperationPhase is the phase of a reset or rollback
// +kubebuilder:validation:Enum=Pending;Running;Completed;PartiallyCompleted;Failed
type OffsetOperationPhase string

const (
	OffsetPhasePending            OffsetOperationPhase = "Pending"
	OffsetPhaseRunning            OffsetOperationPhase = "Running"
	OffsetPhaseCompleted          OffsetOperationPhase = "Completed"
	OffsetPhasePartiallyCompleted OffsetOperationPhase = "PartiallyCompleted"
	OffsetPhaseFailed             OffsetOperationPhase = "Failed"
)

// IsTerminal reports whether the phase awaits a spec change.
func (p OffsetOperationPhase) IsTerminal() bool {
	switch p {
	case OffsetPhaseCompleted, OffsetPhasePartiallyCompleted, OffsetPhaseFailed:
		return true
	}
	return false
}

// GroupResetResult is the outcome for one consumer group
type GroupResetResult struct {
	GroupID string `json:"groupId"`
	Success bool   `json:"success"`

	// +optional
	Error string `json:"error,omitempty"`

	// +optional
	PartitionsReset int `json:"partitionsReset,omitempty"`
}

// KafkaOffsetResetStatus defines the observed state of KafkaOffsetReset
type KafkaOffsetResetStatus struct {
	// +optional
	Phase OffsetOperationPhase `json:"phase,omitempty"`

	// +optional
	Message string `json:"message,omitempty"`

	// +optional
	StartTime *metav1.Time `json:"startTime,omitempty"`

	// +optional
	CompletionTime *metav1.Time `json:"completionTime,omitempty"`

	// +optional
	GroupsTotal int `json:"groupsTotal,omitempty"`

	// +optional
	GroupsReset int `json:"groupsReset,omitempty"`

	// +optional
	GroupsFailed int `json:"groupsFailed,omitempty"`

	// +optional
	Duration string `json:"duration,omitempty"`

	// +optional
	SnapshotID string `json:"snapshotId,omitempty"`

	// +optional
	SnapshotPath string `json:"snapshotPath,omitempty"`

	// +optional
	GroupResults []GroupResetResult `json:"groupResults,omitempty"`

	// +optional
	ObservedGeneration int64 `json:"observedGeneration,omitempty"`

	// +optional
	Conditions []metav1.Condition `json:"conditions,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:shortName=kor
// +kubebuilder:printcolumn:name="Phase",type=string,JSONPath=`.status.phase`
// +kubebuilder:printcolumn:name="Groups",type=integer,JSONPath=`.status.groupsReset`
// +kubebuilder:printcolumn:name="Failed",type=integer,JSONPath=`.status.groupsFailed`
// +kubebuilder:printcolumn:name="Age",type=date,JSONPath=`.metadata.creationTimestamp`

// KafkaOffsetReset is the Schema for the kafkaoffsetresets API
type KafkaOffsetReset struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   KafkaOffsetResetSpec   `json:"spec,omitempty"`
	Status KafkaOffsetResetStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// KafkaOffsetResetList contains a list of KafkaOffsetReset
type KafkaOffsetResetList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []KafkaOffsetReset `json:"items"`
}

func init() {
	SchemeBuilder.Register(&KafkaOffsetReset{}, &KafkaOffsetResetList{})
}
