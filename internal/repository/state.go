package repository

import (
	"context"

	"github.com/quantica-technologies/kafka-backup-operator/internal/domain"
)

// CheckpointRepository records per-partition progress of a run
type CheckpointRepository interface {
	// Save appends a checkpoint. Each call writes a new object.
	Save(ctx context.Context, checkpoint *domain.Checkpoint) error

	// Load returns the latest checkpoint per partition. A run without
	// checkpoints yields an empty map.
	Load(ctx context.Context, runID string) (map[domain.PartitionKey]*domain.Checkpoint, error)

	// History returns every checkpoint of a run ordered by partition and segment
	History(ctx context.Context, runID string) ([]*domain.Checkpoint, error)
}
