package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// KafkaOffsetRollbackSpec defines the desired state of KafkaOffsetRollback
type KafkaOffsetRollbackSpec struct {
	// SnapshotRef selects the snapshot to restore offsets from
	SnapshotRef SnapshotRef `json:"snapshotRef"`

	// KafkaCluster holding the consumer groups
	KafkaCluster KafkaClusterSpec `json:"kafkaCluster"`

	// ConsumerGroups to roll back. Empty rolls back every group in the
	// snapshot.
	// +optional
	ConsumerGroups []string `json:"consumerGroups,omitempty"`

	// +optional
	// +kubebuilder:default=50
	Parallelism *int `json:"parallelism,omitempty"`

	// +optional
	DryRun bool `json:"dryRun,omitempty"`

	// +optional
	// +kubebuilder:default=true
	VerifyAfterRollback *bool `json:"verifyAfterRollback,omitempty"`

	// Storage holding the snapshot. Defaults to the storage used by the
	// referenced restore or reset.
	// +optional
	Storage *StorageSpec `json:"storage,omitempty"`
}

// SnapshotRef names a snapshot directly or through the resource that took it
type SnapshotRef struct {
	// Name is the snapshot id
	// +optional
	Name string `json:"name,omitempty"`

	// Path is the object key of the snapshot
	// +optional
	Path string `json:"path,omitempty"`

	// RestoreRef is a KafkaRestore whose pre-restore snapshot is used
	// +optional
	RestoreRef string `json:"restoreRef,omitempty"`

	// OffsetResetRef is a KafkaOffsetReset whose pre-reset snapshot is used
	// +optional
	OffsetResetRef string `json:"offsetResetRef,omitempty"`
}

// VerificationResult compares committed offsets with the snapshot
type VerificationResult struct {
	AllMatched    bool `json:"allMatched"`
	TotalGroups   int  `json:"totalGroups"`
	MatchedGroups int  `json:"matchedGroups"`

	// +optional
	MismatchedGroups []string `json:"mismatchedGroups,omitempty"`
}

// KafkaOffsetRollbackStatus defines the observed state of KafkaOffsetRollback
type KafkaOffsetRollbackStatus struct {
	// +optional
	Phase OffsetOperationPhase `json:"phase,omitempty"`

	// +optional
	Message string `json:"message,omitempty"`

	// +optional
	StartTime *metav1.Time `json:"startTime,omitempty"`

	// +optional
	CompletionTime *metav1.Time `json:"completionTime,omitempty"`

	// +optional
	SnapshotID string `json:"snapshotId,omitempty"`

	// +optional
	GroupsRolledBack int `json:"groupsRolledBack,omitempty"`

	// +optional
	GroupsFailed int `json:"groupsFailed,omitempty"`

	// +optional
	Verification *VerificationResult `json:"verification,omitempty"`

	// +optional
	ObservedGeneration int64 `json:"observedGeneration,omitempty"`

	// +optional
	Conditions []metav1.Condition `json:"conditions,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:shortName=korb
// +kubebuilder:printcolumn:name="Phase",type=string,JSONPath=`.status.phase`
// +kubebuilder:printcolumn:name="Groups",type=integer,JSONPath=`.status.groupsRolledBack`
// +kubebuilder:printcolumn:name="Age",type=date,JSONPath=`.metadata.creationTimestamp`

// KafkaOffsetRollback is the Schema for the kafkaoffsetrollbacks API
type KafkaOffsetRollback struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   KafkaOffsetRollbackSpec   `json:"spec,omitempty"`
	Status KafkaOffsetRollbackStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// KafkaOffsetRollbackList contains a list of KafkaOffsetRollback
type KafkaOffsetRollbackList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []KafkaOffsetRollback `json:"items"`
}

func init() {
	SchemeBuilder.Register(&KafkaOffsetRollback{}, &KafkaOffsetRollbackList{})
}
