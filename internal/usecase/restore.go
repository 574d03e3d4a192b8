package usecase

import (
	"context"

	"github.com/quantica-technologies/kafka-backup-operator/internal/domain"
)

// PhaseObserver is told about every phase transition of a restore
type PhaseObserver func(phase domain.RestorePhase, progress domain.RestoreProgress)

// RestoreUseCase defines the interface for restore operations
type RestoreUseCase interface {
	// Run validates, plans and, unless req.DryRun, executes a restore
	Run(ctx context.Context, req *domain.RestoreRequest, observer PhaseObserver) (*domain.RestoreResult, error)
}
