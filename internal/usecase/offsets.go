package usecase

import (
	"context"

	"github.com/quantica-technologies/kafka-backup-operator/internal/domain"
)

// OffsetUseCase defines consumer group offset operations
type OffsetUseCase interface {
	// Reset moves the committed offsets of groups according to a strategy
	Reset(ctx context.Context, req *domain.OffsetResetRequest) (*domain.OffsetResetResult, error)

	// Rollback restores committed offsets from a snapshot
	Rollback(ctx context.Context, req *domain.OffsetRollbackRequest) (*domain.OffsetRollbackResult, error)

	// Snapshot captures the committed offsets of groups and stores them
	Snapshot(ctx context.Context, cluster *domain.KafkaCluster, storage *domain.StorageConfig, groups []string, id string) (*domain.SnapshotRef, error)
}
