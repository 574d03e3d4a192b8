package backup

import (
	"context"
	"time"

	"github.com/quantica-technologies/kafka-backup-operator/internal/domain"
	"github.com/quantica-technologies/kafka-backup-operator/internal/repository"
	"github.com/quantica-technologies/kafka-backup-operator/pkg/logger"
)

// expiredRuns selects the runs the policy removes: completed runs beyond
// MaxBackups (newest kept) or older than MaxAge, plus incomplete runs that a
// later completed run superseded. current is never selected. runs must be
// ordered oldest first.
func expiredRuns(runs []domain.RunInfo, policy domain.RetentionPolicy, current string, now time.Time) []string {
	if policy.MaxBackups <= 0 && policy.MaxAge <= 0 {
		return nil
	}

	var complete []domain.RunInfo
	for _, run := range runs {
		if run.Complete {
			complete = append(complete, run)
		}
	}

	expired := make(map[string]bool)
	if policy.MaxBackups > 0 && len(complete) > policy.MaxBackups {
		for _, run := range complete[:len(complete)-policy.MaxBackups] {
			expired[run.RunID] = true
		}
	}
	if policy.MaxAge > 0 {
		for _, run := range complete {
			if now.Sub(run.StartedAt) > policy.MaxAge {
				expired[run.RunID] = true
			}
		}
	}
	if len(complete) > 0 {
		newest := complete[len(complete)-1].StartedAt
		for _, run := range runs {
			if !run.Complete && run.StartedAt.Before(newest) {
				expired[run.RunID] = true
			}
		}
	}

	var out []string
	for _, run := range runs {
		if expired[run.RunID] && run.RunID != current {
			out = append(out, run.RunID)
		}
	}
	return out
}

// applyRetention deletes expired runs. Failures are logged and left for the
// next run to retry.
func (e *Engine) applyRetention(ctx context.Context, meta repository.MetadataRepository, req *domain.BackupRequest, current string, log logger.Logger) []string {
	if req.Retention.MaxBackups <= 0 && req.Retention.MaxAge <= 0 {
		return nil
	}

	runs, err := meta.ListRuns(ctx, req.Name)
	if err != nil {
		log.Warn("Failed to list runs for retention", "error", err)
		return nil
	}

	var deleted []string
	for _, runID := range expiredRuns(runs, req.Retention, current, e.now()) {
		if err := meta.DeleteRun(ctx, runID); err != nil {
			log.Warn("Failed to delete expired run", "expiredRunID", runID, "error", err)
			continue
		}
		log.Info("Deleted expired run", "expiredRunID", runID)
		e.metrics.RetentionDeletions.WithLabelValues(req.Namespace, req.Name).Inc()
		deleted = append(deleted, runID)
	}
	return deleted
}
