package usecase

import (
	"context"

	"github.com/quantica-technologies/kafka-backup-operator/internal/domain"
)

// BackupProgressFunc receives progress after every durable checkpoint
type BackupProgressFunc func(domain.BackupProgress)

// BackupUseCase defines the interface for backup operations
type BackupUseCase interface {
	// Run executes or resumes the run named by req.RunID
	Run(ctx context.Context, req *domain.BackupRequest, progress BackupProgressFunc) (*domain.BackupResult, error)

	// FindIncompleteRun returns the id of the latest run that has a
	// descriptor but no manifest, or "" when the latest run is complete
	FindIncompleteRun(ctx context.Context, storage *domain.StorageConfig, backupName string) (string, error)
}
