package repository

import (
	"context"
	"io"
	"time"

	"github.com/quantica-technologies/kafka-backup-operator/internal/domain"
)

// StorageRepository defines operations for storage backends. Keys are
// relative to the backend prefix. Every operation is idempotent per key.
type StorageRepository interface {
	// Put stores data at the given key. A failed Put never leaves a partial
	// object visible. A negative or unknown metadata.Size selects the
	// streaming path.
	Put(ctx context.Context, key string, data io.Reader, metadata *ObjectMetadata) error

	// Get retrieves data from the given key
	Get(ctx context.Context, key string) (io.ReadCloser, *ObjectMetadata, error)

	// List returns all keys with the given prefix
	List(ctx context.Context, prefix string) ([]*ObjectInfo, error)

	// Delete removes data at the given key. Missing keys are not an error.
	Delete(ctx context.Context, key string) error

	// Exists checks if a key exists
	Exists(ctx context.Context, key string) (bool, error)

	// GetMetadata gets metadata for an object
	GetMetadata(ctx context.Context, key string) (*ObjectMetadata, error)

	// Close closes the storage connection
	Close() error

	// HealthCheck checks storage connectivity
	HealthCheck(ctx context.Context) error
}

// ObjectMetadata contains metadata about stored objects
type ObjectMetadata struct {
	Key            string
	Size           int64
	ContentType    string
	LastModified   time.Time
	ETag           string
	CustomMetadata map[string]string
}

// ObjectInfo contains basic information about a stored object
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
	ETag         string
}

// Stores groups the repositories that live on one storage target
type Stores struct {
	Objects     StorageRepository
	Metadata    MetadataRepository
	Checkpoints CheckpointRepository
}

// Close closes the underlying storage connection
func (s *Stores) Close() error {
	if s == nil || s.Objects == nil {
		return nil
	}
	return s.Objects.Close()
}

// StoreOpener builds the stores for a resolved storage target. Engines call
// it once per run because credentials are resolved per reconciliation.
type StoreOpener func(ctx context.Context, cfg *domain.StorageConfig) (*Stores, error)
