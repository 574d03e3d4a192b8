package domain

import (
	apperrors "github.com/quantica-technologies/kafka-backup-operator/pkg/errors"
)

// StorageConfig is a resolved storage target. It carries credentials already
// read from secrets and is rebuilt on every reconciliation.
type StorageConfig struct {
	Type    StorageType
	Prefix  string
	Backend BackendConfig
}

type StorageType string

const (
	StorageTypeS3    StorageType = "s3"
	StorageTypeAzure StorageType = "azure"
	StorageTypeGCS   StorageType = "gcs"
	StorageTypeLocal StorageType = "local"
)

// BackendConfig is a marker interface for storage-specific configs
type BackendConfig interface {
	Validate() error
}

// Validate checks the type and backend agree.
func (s *StorageConfig) Validate() error {
	if s == nil {
		return apperrors.Configuration("storage configuration is missing")
	}
	if s.Backend == nil {
		return apperrors.Configuration("%s storage selected but %s configuration is missing", s.Type, s.Type)
	}
	var ok bool
	switch s.Type {
	case StorageTypeLocal:
		_, ok = s.Backend.(*LocalConfig)
	case StorageTypeS3:
		_, ok = s.Backend.(*S3Config)
	case StorageTypeAzure:
		_, ok = s.Backend.(*AzureConfig)
	case StorageTypeGCS:
		_, ok = s.Backend.(*GCSConfig)
	default:
		return apperrors.Configuration("unsupported storage type: %s", s.Type)
	}
	if !ok {
		return apperrors.Configuration("%s storage selected but %s configuration is missing", s.Type, s.Type)
	}
	return s.Backend.Validate()
}

// StaticCredentials is an explicit key pair
type StaticCredentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// S3Config holds S3-specific configuration
type S3Config struct {
	Bucket       string
	Region       string
	Endpoint     string
	UsePathStyle bool
	Credentials  *StaticCredentials
}

func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return apperrors.Configuration("S3 bucket must be specified")
	}
	if c.Region == "" && c.Endpoint == "" {
		return apperrors.Configuration("S3 region must be specified")
	}
	if c.Credentials != nil && (c.Credentials.AccessKeyID == "" || c.Credentials.SecretAccessKey == "") {
		return apperrors.Configuration("S3 static credentials require both access key id and secret access key")
	}
	return nil
}

// AzureConfig holds Azure Blob Storage configuration
type AzureConfig struct {
	AccountName string
	Container   string
	Endpoint    string

	AccountKey string
	SASToken   string

	ClientID     string
	TenantID     string
	ClientSecret string

	UseWorkloadIdentity bool
	FederatedTokenFile  string
}

func (c *AzureConfig) Validate() error {
	if c.AccountName == "" {
		return apperrors.Configuration("Azure storage account name must be specified")
	}
	if c.Container == "" {
		return apperrors.Configuration("Azure container must be specified")
	}
	if c.ClientSecret != "" && (c.ClientID == "" || c.TenantID == "") {
		return apperrors.Configuration("Azure service principal requires client id and tenant id")
	}
	return nil
}

// ServiceURL returns the blob endpoint for the account.
func (c *AzureConfig) ServiceURL() string {
	if c.Endpoint != "" {
		return c.Endpoint
	}
	return "https://" + c.AccountName + ".blob.core.windows.net/"
}

// GCSConfig holds Google Cloud Storage configuration
type GCSConfig struct {
	Bucket          string
	ProjectID       string
	Endpoint        string
	CredentialsJSON []byte
}

func (c *GCSConfig) Validate() error {
	if c.Bucket == "" {
		return apperrors.Configuration("GCS bucket must be specified")
	}
	return nil
}

// LocalConfig holds local filesystem configuration, used for PVC mounts
type LocalConfig struct {
	BasePath string
}

func (c *LocalConfig) Validate() error {
	if c.BasePath == "" {
		return apperrors.Configuration("local storage path must be specified")
	}
	return nil
}
