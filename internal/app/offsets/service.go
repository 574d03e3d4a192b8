// Package offsets moves committed consumer group offsets: resets by
// strategy, rollbacks to a stored snapshot and the snapshots themselves.
package offsets

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/quantica-technologies/kafka-backup-operator/internal/domain"
	"github.com/quantica-technologies/kafka-backup-operator/internal/repository"
	"github.com/quantica-technologies/kafka-backup-operator/internal/usecase"
	apperrors "github.com/quantica-technologies/kafka-backup-operator/pkg/errors"
	"github.com/quantica-technologies/kafka-backup-operator/pkg/logger"
	"github.com/quantica-technologies/kafka-backup-operator/pkg/metrics"
)

// Snapshot sources recorded on the snapshot and its metric
const (
	SourceReset   = "reset"
	SourceRestore = "restore"
)

// Engine implements the offset use case
type Engine struct {
	kafkaRepo  repository.KafkaRepository
	openStores repository.StoreOpener
	metrics    *metrics.Metrics
	logger     logger.Logger
	now        func() time.Time
}

// NewEngine creates a new offset engine
func NewEngine(kafkaRepo repository.KafkaRepository, openStores repository.StoreOpener, m *metrics.Metrics, log logger.Logger) *Engine {
	if m == nil {
		m = metrics.NewNop()
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Engine{
		kafkaRepo:  kafkaRepo,
		openStores: openStores,
		metrics:    m,
		logger:     log,
		now:        time.Now,
	}
}

var _ usecase.OffsetUseCase = (*Engine)(nil)

// Snapshot captures the committed offsets of groups ahead of a restore. An
// empty id gets a random one.
func (e *Engine) Snapshot(ctx context.Context, cluster *domain.KafkaCluster, storage *domain.StorageConfig, groups []string, id string) (*domain.SnapshotRef, error) {
	admin, err := e.kafkaRepo.CreateAdmin(ctx, cluster)
	if err != nil {
		return nil, fmt.Errorf("failed to create admin client: %w", err)
	}
	defer admin.Close()

	stores, err := e.openStores(ctx, storage)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	defer stores.Close()

	return e.snapshot(ctx, admin, stores.Metadata, groups, id, SourceRestore)
}

func (e *Engine) snapshot(ctx context.Context, admin repository.Admin, meta repository.MetadataRepository, groups []string, id, source string) (*domain.SnapshotRef, error) {
	if id == "" {
		id = uuid.NewString()
	}
	snap := &domain.OffsetSnapshot{
		ID:        id,
		CreatedAt: e.now().UTC(),
		Source:    source,
		Groups:    make(map[string]domain.GroupOffsets, len(groups)),
	}
	for _, group := range groups {
		offsets, err := admin.FetchGroupOffsets(ctx, group, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch offsets of group %s: %w", group, err)
		}
		snap.Groups[group] = offsets
	}

	key, err := meta.SaveSnapshot(ctx, snap)
	if err != nil {
		return nil, err
	}
	e.metrics.OffsetSnapshots.WithLabelValues(source).Inc()
	e.logger.Info("Offset snapshot saved", "snapshotID", id, "groups", len(groups), "path", key)

	return &domain.SnapshotRef{ID: id, Path: key, CreatedAt: snap.CreatedAt}, nil
}

// Reset moves the committed offsets of every requested group. Groups run in
// parallel up to req.Parallelism. Unless ContinueOnError is set the first
// failing group cancels the rest and its error is returned.
func (e *Engine) Reset(ctx context.Context, req *domain.OffsetResetRequest) (*domain.OffsetResetResult, error) {
	started := e.now()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	parallelism := req.Parallelism
	if parallelism == 0 {
		parallelism = domain.DefaultParallelism
	}

	log := e.logger.WithFields(map[string]interface{}{
		"offsetReset": req.Name,
		"namespace":   req.Namespace,
		"strategy":    req.Strategy,
	})

	admin, err := e.kafkaRepo.CreateAdmin(ctx, req.Cluster)
	if err != nil {
		return nil, fmt.Errorf("failed to create admin client: %w", err)
	}
	defer admin.Close()

	result := &domain.OffsetResetResult{GroupsTotal: len(req.Groups), DryRun: req.DryRun}

	var stores *repository.Stores
	if req.Strategy == domain.ResetFromMapping || (req.SnapshotBeforeReset && !req.DryRun) {
		stores, err = e.openStores(ctx, req.Storage)
		if err != nil {
			return nil, fmt.Errorf("failed to open storage: %w", err)
		}
		defer stores.Close()
	}

	var mapping *domain.OffsetMapping
	if req.Strategy == domain.ResetFromMapping {
		mapping, err = stores.Metadata.GetOffsetMapping(ctx, req.MappingPath)
		if err != nil {
			return nil, err
		}
	}

	if req.SnapshotBeforeReset && !req.DryRun {
		ref, err := e.snapshot(ctx, admin, stores.Metadata, req.Groups, req.SnapshotID, SourceReset)
		if err != nil {
			return nil, fmt.Errorf("failed to snapshot offsets before reset: %w", err)
		}
		result.Snapshot = ref
	}

	results := make([]domain.GroupResult, len(req.Groups))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for i, group := range req.Groups {
		g.Go(func() error {
			res, err := e.resetGroup(gctx, admin, req, mapping, group)
			if err != nil {
				res.Error = err.Error()
				log.Warn("Failed to reset group", "group", group, "error", err)
				if !req.ContinueOnError {
					results[i] = res
					return fmt.Errorf("failed to reset group %s: %w", group, err)
				}
			}
			results[i] = res
			return nil
		})
	}
	err = g.Wait()

	result.GroupResults = results
	for _, res := range results {
		if res.Success {
			result.GroupsReset++
		} else {
			result.GroupsFailed++
		}
	}
	result.Duration = e.now().Sub(started)

	outcome := metrics.OutcomeSuccess
	switch {
	case req.DryRun && err == nil:
		outcome = metrics.OutcomeDryRun
	case result.GroupsFailed > 0 && result.GroupsReset > 0:
		outcome = metrics.OutcomePartial
	case result.GroupsFailed > 0:
		outcome = metrics.OutcomeFailure
	}
	e.metrics.OffsetResets.WithLabelValues(outcome, req.Namespace).Inc()
	e.metrics.OffsetResetDuration.WithLabelValues(req.Namespace).Observe(result.Duration.Seconds())

	if err != nil {
		log.Error("Offset reset failed", "error", err)
		return result, err
	}
	log.Info("Offset reset finished", "reset", result.GroupsReset, "failed", result.GroupsFailed, "dryRun", req.DryRun)
	return result, nil
}

func (e *Engine) resetGroup(ctx context.Context, admin repository.Admin, req *domain.OffsetResetRequest, mapping *domain.OffsetMapping, group string) (domain.GroupResult, error) {
	res := domain.GroupResult{GroupID: group}

	targets, err := computeTargets(ctx, admin, req, mapping, group)
	if err != nil {
		return res, err
	}
	res.Offsets = targets
	res.PartitionsReset = targets.Count()

	if req.DryRun {
		res.Success = true
		return res, nil
	}

	if err := e.commit(ctx, admin, group, targets); err != nil {
		return res, err
	}
	res.Success = true
	return res, nil
}

func (e *Engine) commit(ctx context.Context, admin repository.Admin, group string, offsets domain.GroupOffsets) error {
	err := ensureInactive(ctx, admin, group)
	if err == nil {
		err = admin.CommitGroupOffsets(ctx, group, offsets)
	}
	if err != nil {
		e.metrics.OffsetCommitsOutcomes.WithLabelValues(metrics.OutcomeFailure).Inc()
		return err
	}
	e.metrics.OffsetCommitsOutcomes.WithLabelValues(metrics.OutcomeSuccess).Inc()
	return nil
}

// ensureInactive rejects groups with live members; the coordinator would
// refuse the commit anyway.
func ensureInactive(ctx context.Context, admin repository.Admin, group string) error {
	state, err := admin.GroupState(ctx, group)
	if err != nil {
		return fmt.Errorf("failed to describe group %s: %w", group, err)
	}
	switch state {
	case "", "Empty", "Dead":
		return nil
	default:
		return apperrors.Configuration("consumer group %s is %s: stop its consumers before moving offsets", group, state)
	}
}

// runGroups applies fn to every group with at most parallelism in flight and
// collects results in input order. A failing group never cancels the others.
func runGroups(ctx context.Context, groups []string, parallelism int, fn func(ctx context.Context, group string) domain.GroupResult) []domain.GroupResult {
	results := make([]domain.GroupResult, len(groups))
	var g errgroup.Group
	g.SetLimit(parallelism)
	for i, group := range groups {
		g.Go(func() error {
			results[i] = fn(ctx, group)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func sortedTopics(offsets domain.GroupOffsets) []string {
	topics := make([]string, 0, len(offsets))
	for t := range offsets {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}
