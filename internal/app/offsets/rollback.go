package offsets

import (
	"context"
	"fmt"

	"github.com/quantica-technologies/kafka-backup-operator/internal/domain"
	"github.com/quantica-technologies/kafka-backup-operator/internal/repository"
	apperrors "github.com/quantica-technologies/kafka-backup-operator/pkg/errors"
	"github.com/quantica-technologies/kafka-backup-operator/pkg/metrics"
)

// Rollback commits the offsets recorded in a snapshot verbatim. Every
// requested group must be present in the snapshot; groups then run
// independently and a failure in one does not stop the others.
func (e *Engine) Rollback(ctx context.Context, req *domain.OffsetRollbackRequest) (*domain.OffsetRollbackResult, error) {
	started := e.now()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	parallelism := req.Parallelism
	if parallelism == 0 {
		parallelism = domain.DefaultParallelism
	}

	stores, err := e.openStores(ctx, req.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	defer stores.Close()

	snap, err := stores.Metadata.GetSnapshot(ctx, req.SnapshotID, req.SnapshotPath)
	if err != nil {
		return nil, err
	}

	groups := req.Groups
	if len(groups) == 0 {
		groups = snap.GroupIDs()
	}
	for _, g := range groups {
		if _, ok := snap.Groups[g]; !ok {
			return nil, apperrors.Configuration("consumer group %s is not in snapshot %s", g, snap.ID)
		}
	}

	log := e.logger.WithFields(map[string]interface{}{
		"offsetRollback": req.Name,
		"namespace":      req.Namespace,
		"snapshotID":     snap.ID,
	})

	admin, err := e.kafkaRepo.CreateAdmin(ctx, req.Cluster)
	if err != nil {
		return nil, fmt.Errorf("failed to create admin client: %w", err)
	}
	defer admin.Close()

	results := runGroups(ctx, groups, parallelism, func(ctx context.Context, group string) domain.GroupResult {
		offsets := snap.Groups[group]
		res := domain.GroupResult{GroupID: group, Offsets: offsets, PartitionsReset: offsets.Count()}
		if !req.DryRun {
			if err := e.commit(ctx, admin, group, offsets); err != nil {
				log.Warn("Failed to roll back group", "group", group, "error", err)
				res.Error = err.Error()
				return res
			}
		}
		res.Success = true
		return res
	})

	result := &domain.OffsetRollbackResult{SnapshotID: snap.ID, DryRun: req.DryRun, GroupResults: results}
	var failed []string
	for _, res := range results {
		if res.Success {
			result.GroupsRolledBack++
		} else {
			result.GroupsFailed++
			failed = append(failed, res.GroupID)
		}
	}

	if req.VerifyAfterRollback && !req.DryRun {
		v, err := verify(ctx, admin, snap, groups)
		if err != nil {
			return nil, err
		}
		result.Verification = v
	}
	result.Duration = e.now().Sub(started)

	outcome := metrics.OutcomeSuccess
	switch {
	case req.DryRun && len(failed) == 0:
		outcome = metrics.OutcomeDryRun
	case len(failed) > 0 && result.GroupsRolledBack > 0:
		outcome = metrics.OutcomePartial
	case len(failed) > 0:
		outcome = metrics.OutcomeFailure
	}
	e.metrics.OffsetRollbacks.WithLabelValues(outcome, req.Namespace).Inc()

	if len(failed) > 0 {
		err := fmt.Errorf("failed to roll back %d of %d groups: %v", len(failed), len(groups), failed)
		log.Error("Offset rollback failed", "error", err)
		return result, err
	}
	log.Info("Offset rollback finished", "groups", result.GroupsRolledBack, "dryRun", req.DryRun)
	return result, nil
}

// verify re-reads committed offsets and compares them with the snapshot
func verify(ctx context.Context, admin repository.Admin, snap *domain.OffsetSnapshot, groups []string) (*domain.Verification, error) {
	v := &domain.Verification{TotalGroups: len(groups)}
	for _, group := range groups {
		want := snap.Groups[group]
		got, err := admin.FetchGroupOffsets(ctx, group, sortedTopics(want))
		if err != nil {
			return nil, fmt.Errorf("failed to verify group %s: %w", group, err)
		}
		if got.Equal(want) {
			v.MatchedGroups++
		} else {
			v.MismatchedGroups = append(v.MismatchedGroups, group)
		}
	}
	v.AllMatched = len(v.MismatchedGroups) == 0
	return v, nil
}
