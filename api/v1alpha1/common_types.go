package v1alpha1

// Finalizers held by each kind while the operator may still act on it
const (
	BackupFinalizer         = "backup.kafka.io/backup-finalizer"
	RestoreFinalizer        = "backup.kafka.io/restore-finalizer"
	OffsetResetFinalizer    = "backup.kafka.io/offset-reset-finalizer"
	OffsetRollbackFinalizer = "backup.kafka.io/offset-rollback-finalizer"
)

// ConditionReady is the single condition every kind reports
const ConditionReady = "Ready"

// Ready condition reasons
const (
	ReasonValidationFailed  = "ValidationFailed"
	ReasonScheduleActive    = "ScheduleActive"
	ReasonSuspended         = "Suspended"
	ReasonInProgress        = "InProgress"
	ReasonBackupSucceeded   = "BackupSucceeded"
	ReasonBackupFailed      = "BackupFailed"
	ReasonRestoreSucceeded  = "RestoreSucceeded"
	ReasonRestoreFailed     = "RestoreFailed"
	ReasonRolledBack        = "RolledBack"
	ReasonDryRunPassed      = "DryRunPassed"
	ReasonResetSucceeded    = "ResetSucceeded"
	ReasonPartialFailure    = "PartialFailure"
	ReasonResetFailed       = "ResetFailed"
	ReasonRollbackSucceeded = "RollbackSucceeded"
	ReasonRollbackFailed    = "RollbackFailed"
)

// KafkaClusterSpec describes how to reach a Kafka cluster
type KafkaClusterSpec struct {
	// BootstrapServers is the list of broker addresses
	// +kubebuilder:validation:MinItems=1
	BootstrapServers []string `json:"bootstrapServers"`

	// SecurityProtocol defines the security protocol
	// +optional
	// +kubebuilder:default="PLAINTEXT"
	// +kubebuilder:validation:Enum=PLAINTEXT;SASL_PLAINTEXT;SASL_SSL;SSL
	SecurityProtocol string `json:"securityProtocol,omitempty"`

	// TLSSecret holds the CA and optional client certificate
	// +optional
	TLSSecret *TLSSecretRef `json:"tlsSecret,omitempty"`

	// SASLSecret holds SASL credentials
	// +optional
	SASLSecret *SASLSecretRef `json:"saslSecret,omitempty"`
}

// TLSSecretRef references a secret with PEM material
type TLSSecretRef struct {
	// Name of the secret
	Name string `json:"name"`

	// CAKey is the key of the CA certificate
	// +optional
	// +kubebuilder:default="ca.crt"
	CAKey string `json:"caKey,omitempty"`

	// CertKey is the key of the client certificate
	// +optional
	CertKey string `json:"certKey,omitempty"`

	// KeyKey is the key of the client private key
	// +optional
	KeyKey string `json:"keyKey,omitempty"`

	// InsecureSkipVerify skips broker certificate verification
	// +optional
	InsecureSkipVerify bool `json:"insecureSkipVerify,omitempty"`
}

// SASLSecretRef references a secret with SASL credentials
type SASLSecretRef struct {
	// Name of the secret
	Name string `json:"name"`

	// Mechanism is the SASL mechanism
	// +kubebuilder:validation:Enum=PLAIN;SCRAM-SHA-256;SCRAM-SHA-512
	Mechanism string `json:"mechanism"`

	// +optional
	// +kubebuilder:default="username"
	UsernameKey string `json:"usernameKey,omitempty"`

	// +optional
	// +kubebuilder:default="password"
	PasswordKey string `json:"passwordKey,omitempty"`
}

// StorageSpec selects a storage backend
type StorageSpec struct {
	// StorageType is one of pvc, s3, azure, gcs
	// +optional
	// +kubebuilder:default="pvc"
	StorageType string `json:"storageType,omitempty"`

	// +optional
	PVC *PVCStorageSpec `json:"pvc,omitempty"`

	// +optional
	S3 *S3StorageSpec `json:"s3,omitempty"`

	// +optional
	Azure *AzureStorageSpec `json:"azure,omitempty"`

	// +optional
	GCS *GCSStorageSpec `json:"gcs,omitempty"`
}

// PVCStorageSpec stores data on a volume mounted into the operator pod
type PVCStorageSpec struct {
	// ClaimName of the mounted claim
	ClaimName string `json:"claimName"`

	// SubPath within the claim
	// +optional
	SubPath string `json:"subPath,omitempty"`
}

// S3StorageSpec stores data in an S3 or S3-compatible bucket
type S3StorageSpec struct {
	Bucket string `json:"bucket"`
	Region string `json:"region"`

	// Endpoint for S3-compatible storage such as MinIO
	// +optional
	Endpoint string `json:"endpoint,omitempty"`

	// +optional
	Prefix string `json:"prefix,omitempty"`

	// ForcePathStyle uses path-style bucket addressing
	// +optional
	ForcePathStyle bool `json:"forcePathStyle,omitempty"`

	// CredentialsSecret holds static keys. Without it the default AWS
	// credential chain is used.
	// +optional
	CredentialsSecret *S3CredentialsRef `json:"credentialsSecret,omitempty"`
}

// S3CredentialsRef references a secret with an access key pair
type S3CredentialsRef struct {
	Name string `json:"name"`

	// +optional
	// +kubebuilder:default="AWS_ACCESS_KEY_ID"
	AccessKeyIDKey string `json:"accessKeyIdKey,omitempty"`

	// +optional
	// +kubebuilder:default="AWS_SECRET_ACCESS_KEY"
	SecretAccessKeyKey string `json:"secretAccessKeyKey,omitempty"`
}

// AzureStorageSpec stores data in an Azure Blob container
type AzureStorageSpec struct {
	Container   string `json:"container"`
	AccountName string `json:"accountName"`

	// +optional
	Prefix string `json:"prefix,omitempty"`

	// Endpoint overrides the public blob endpoint
	// +optional
	Endpoint string `json:"endpoint,omitempty"`

	// UseWorkloadIdentity authenticates with the pod's federated token
	// +optional
	UseWorkloadIdentity bool `json:"useWorkloadIdentity,omitempty"`

	// +optional
	CredentialsSecret *AzureCredentialsRef `json:"credentialsSecret,omitempty"`

	// +optional
	SASTokenSecret *AzureSASTokenRef `json:"sasTokenSecret,omitempty"`

	// +optional
	ServicePrincipalSecret *AzureServicePrincipalRef `json:"servicePrincipalSecret,omitempty"`
}

// AzureCredentialsRef references a secret with an account key
type AzureCredentialsRef struct {
	Name string `json:"name"`

	// +optional
	// +kubebuilder:default="AZURE_STORAGE_KEY"
	AccountKeyKey string `json:"accountKeyKey,omitempty"`
}

// AzureSASTokenRef references a secret with a SAS token
type AzureSASTokenRef struct {
	Name string `json:"name"`

	// +optional
	// +kubebuilder:default="AZURE_SAS_TOKEN"
	SASTokenKey string `json:"sasTokenKey,omitempty"`
}

// AzureServicePrincipalRef references a secret with service principal
// credentials
type AzureServicePrincipalRef struct {
	Name string `json:"name"`

	// +optional
	// +kubebuilder:default="AZURE_CLIENT_ID"
	ClientIDKey string `json:"clientIdKey,omitempty"`

	// +optional
	// +kubebuilder:default="AZURE_TENANT_ID"
	TenantIDKey string `json:"tenantIdKey,omitempty"`

	// +optional
	// +kubebuilder:default="AZURE_CLIENT_SECRET"
	ClientSecretKey string `json:"clientSecretKey,omitempty"`
}

// GCSStorageSpec stores data in a Google Cloud Storage bucket
type GCSStorageSpec struct {
	Bucket string `json:"bucket"`

	// +optional
	Prefix string `json:"prefix,omitempty"`

	// CredentialsSecret holds a service account key. Without it application
	// default credentials are used.
	// +optional
	CredentialsSecret *GCSCredentialsRef `json:"credentialsSecret,omitempty"`
}

// GCSCredentialsRef references a secret with a service account key
type GCSCredentialsRef struct {
	Name string `json:"name"`

	// +optional
	// +kubebuilder:default="SERVICE_ACCOUNT_JSON"
	ServiceAccountJSONKey string `json:"serviceAccountJsonKey,omitempty"`
}

// RateLimitingSpec bounds partition concurrency and throughput of one run
type RateLimitingSpec struct {
	// RecordsPerSec caps records per second, 0 means unlimited
	// +optional
	RecordsPerSec int `json:"recordsPerSec,omitempty"`

	// BytesPerSec caps bytes per second, 0 means unlimited
	// +optional
	BytesPerSec int `json:"bytesPerSec,omitempty"`

	// +optional
	// +kubebuilder:default=2
	// +kubebuilder:validation:Minimum=1
	MaxConcurrentPartitions int `json:"maxConcurrentPartitions,omitempty"`
}

// CircuitBreakerSpec configures the per-run circuit breaker
type CircuitBreakerSpec struct {
	// +optional
	// +kubebuilder:default=true
	Enabled *bool `json:"enabled,omitempty"`

	// +optional
	// +kubebuilder:default=5
	FailureThreshold int `json:"failureThreshold,omitempty"`

	// +optional
	// +kubebuilder:default=60
	ResetTimeoutSecs int `json:"resetTimeoutSecs,omitempty"`

	// +optional
	// +kubebuilder:default=30000
	OperationTimeoutMs int `json:"operationTimeoutMs,omitempty"`
}

// BoolOr returns *b, or def when b is nil.
func BoolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}
