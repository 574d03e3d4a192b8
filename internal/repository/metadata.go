package repository

import (
	"context"

	"github.com/quantica-technologies/kafka-backup-operator/internal/domain"
)

// MetadataRepository stores run-level records: run descriptors, manifests,
// offset snapshots and offset mappings
type MetadataRepository interface {
	// SaveRunDescriptor persists the boundaries of a run
	SaveRunDescriptor(ctx context.Context, descriptor *domain.RunDescriptor) error

	// GetRunDescriptor returns a not-found error when the run never started
	GetRunDescriptor(ctx context.Context, runID string) (*domain.RunDescriptor, error)

	// SaveManifest writes the manifest of a completed run and returns its key
	SaveManifest(ctx context.Context, manifest *domain.Manifest) (string, error)

	// GetManifest retrieves the manifest of a completed run
	GetManifest(ctx context.Context, runID string) (*domain.Manifest, error)

	// ListRuns lists the runs of one backup, oldest first
	ListRuns(ctx context.Context, backupName string) ([]domain.RunInfo, error)

	// DeleteRun removes every object of a run
	DeleteRun(ctx context.Context, runID string) error

	// SaveSnapshot writes an offset snapshot and returns its key. Snapshots
	// are immutable: saving an existing id fails.
	SaveSnapshot(ctx context.Context, snapshot *domain.OffsetSnapshot) (string, error)

	// GetSnapshot loads a snapshot by id or by key
	GetSnapshot(ctx context.Context, id, key string) (*domain.OffsetSnapshot, error)

	// SaveOffsetMapping writes the mapping of a restore and returns its key
	SaveOffsetMapping(ctx context.Context, mapping *domain.OffsetMapping) (string, error)

	// GetOffsetMapping loads a mapping by key
	GetOffsetMapping(ctx context.Context, key string) (*domain.OffsetMapping, error)
}
