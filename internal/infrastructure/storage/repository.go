package storage

import (
	"context"

	"github.com/quantica-technologies/kafka-backup-operator/internal/domain"
	"github.com/quantica-technologies/kafka-backup-operator/internal/repository"
	apperrors "github.com/quantica-technologies/kafka-backup-operator/pkg/errors"
)

// NewRepository creates a storage repository for cfg, wrapped with retries
// and metrics.
func NewRepository(ctx context.Context, cfg *domain.StorageConfig, opts Options) (repository.StorageRepository, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	var (
		inner repository.StorageRepository
		err   error
	)
	switch backend := cfg.Backend.(type) {
	case *domain.LocalConfig:
		inner, err = NewLocalRepository(backend, cfg.Prefix)
	case *domain.S3Config:
		inner, err = NewS3Repository(ctx, backend, cfg.Prefix, opts)
	case *domain.AzureConfig:
		inner, err = NewAzureRepository(ctx, backend, cfg.Prefix, opts)
	case *domain.GCSConfig:
		inner, err = NewGCSRepository(ctx, backend, cfg.Prefix, opts)
	default:
		return nil, apperrors.Configuration("unsupported storage type: %s", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	if src, ok := inner.(interface{ CredentialSource() string }); ok {
		opts.Logger.Debug("Storage credentials resolved", "type", cfg.Type, "source", src.CredentialSource())
	}

	return WithRetry(inner, string(cfg.Type), opts), nil
}

// NewStores opens cfg and wires the metadata and checkpoint repositories on
// top of it.
func NewStores(ctx context.Context, cfg *domain.StorageConfig, opts Options) (*repository.Stores, error) {
	objects, err := NewRepository(ctx, cfg, opts)
	if err != nil {
		return nil, err
	}
	return StoresFor(objects), nil
}

// StoresFor wires repositories on an already opened backend.
func StoresFor(objects repository.StorageRepository) *repository.Stores {
	return &repository.Stores{
		Objects:     objects,
		Metadata:    NewMetadataRepository(objects),
		Checkpoints: NewCheckpointStore(objects),
	}
}

// Opener returns a StoreOpener that applies opts to every target.
func Opener(opts Options) repository.StoreOpener {
	return func(ctx context.Context, cfg *domain.StorageConfig) (*repository.Stores, error) {
		return NewStores(ctx, cfg, opts)
	}
}
