// Package restore replays backed-up segments into a target cluster,
// translating consumer group offsets and rolling them back when a restore
// fails after they were moved.
package restore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/quantica-technologies/kafka-backup-operator/internal/domain"
	"github.com/quantica-technologies/kafka-backup-operator/internal/repository"
	"github.com/quantica-technologies/kafka-backup-operator/internal/usecase"
	apperrors "github.com/quantica-technologies/kafka-backup-operator/pkg/errors"
	"github.com/quantica-technologies/kafka-backup-operator/pkg/logger"
	"github.com/quantica-technologies/kafka-backup-operator/pkg/metrics"
)

// rollbackTimeout bounds the automatic rollback, which outlives the
// restore's own context.
const rollbackTimeout = 5 * time.Minute

// Engine implements the restore use case
type Engine struct {
	kafkaRepo    repository.KafkaRepository
	openStores   repository.StoreOpener
	offsets      usecase.OffsetUseCase
	metrics      *metrics.Metrics
	logger       logger.Logger
	now          func() time.Time
	retryBackoff time.Duration
}

// Option customises an Engine
type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithRetryBackoff sets the initial wait between partition attempts.
func WithRetryBackoff(d time.Duration) Option {
	return func(e *Engine) { e.retryBackoff = d }
}

// NewEngine creates a new restore engine. offsets takes the pre-restore
// snapshot and performs automatic rollbacks.
func NewEngine(
	kafkaRepo repository.KafkaRepository,
	openStores repository.StoreOpener,
	offsets usecase.OffsetUseCase,
	m *metrics.Metrics,
	log logger.Logger,
	opts ...Option,
) *Engine {
	if m == nil {
		m = metrics.NewNop()
	}
	if log == nil {
		log = logger.NewNop()
	}
	e := &Engine{
		kafkaRepo:    kafkaRepo,
		openStores:   openStores,
		offsets:      offsets,
		metrics:      m,
		logger:       log,
		now:          time.Now,
		retryBackoff: time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var _ usecase.RestoreUseCase = (*Engine)(nil)

// SnapshotID names the offset snapshot taken before restoreID writes data.
func SnapshotID(restoreID string) string {
	return restoreID + "-pre-restore"
}

// run carries the state of one Run call
type run struct {
	req      *domain.RestoreRequest
	result   *domain.RestoreResult
	observer usecase.PhaseObserver
	log      logger.Logger
	progress domain.RestoreProgress
}

func (r *run) enter(phase domain.RestorePhase) {
	r.result.Phase = phase
	r.progress.Phase = phase
	r.log.Info("Restore phase changed", "phase", phase)
	if r.observer != nil {
		r.observer(phase, r.progress)
	}
}

// Run validates and plans a restore and, unless it is a dry run, replays
// the plan. On failure the partial result is returned with the error.
func (e *Engine) Run(ctx context.Context, req *domain.RestoreRequest, observer usecase.PhaseObserver) (*domain.RestoreResult, error) {
	started := e.now()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	restoreID := req.RestoreID
	if restoreID == "" {
		restoreID = domain.NewRunID(req.Name, started)
	}
	r := &run{
		req:      req,
		observer: observer,
		result: &domain.RestoreResult{
			RestoreID: restoreID,
			DryRun:    req.DryRun,
			StartedAt: started.UTC(),
		},
		log: e.logger.WithFields(map[string]interface{}{
			"restore":   req.Name,
			"namespace": req.Namespace,
			"restoreID": restoreID,
		}),
	}

	r.enter(domain.RestorePhaseValidating)

	stores, err := e.openStores(ctx, req.Storage)
	if err != nil {
		return e.fail(ctx, r, fmt.Errorf("failed to open storage: %w", err))
	}
	defer stores.Close()

	manifest, err := resolveManifest(ctx, stores.Metadata, req)
	if err != nil {
		return e.fail(ctx, r, err)
	}
	r.result.BackupID = manifest.RunID

	p, err := buildPlan(manifest, req)
	if err != nil {
		return e.fail(ctx, r, err)
	}
	groups, err := recoveryGroups(req, manifest)
	if err != nil {
		return e.fail(ctx, r, err)
	}
	r.result.TopicsPlanned = p.topicNames()
	r.result.SegmentsPlanned = p.segments
	r.result.FilteredByPITR = p.skippedRecords()
	r.progress.SegmentsPlanned = p.segments
	r.log.Info("Restore planned", "backupID", manifest.RunID, "topics", len(p.topics), "segments", p.segments)

	if req.DryRun {
		r.result.Records = p.plannedRecords()
		return e.complete(r, started, metrics.OutcomeDryRun), nil
	}

	admin, err := e.kafkaRepo.CreateAdmin(ctx, req.Cluster)
	if err != nil {
		return e.fail(ctx, r, fmt.Errorf("failed to create admin client: %w", err))
	}
	defer admin.Close()

	if err := prepareTopics(ctx, admin, p, req); err != nil {
		return e.fail(ctx, r, err)
	}

	if req.SnapshotBeforeRestore && len(groups) > 0 {
		r.enter(domain.RestorePhaseSnapshottingOffsets)
		ref, err := e.ensureSnapshot(ctx, stores.Metadata, req, groups, restoreID)
		if err != nil {
			return e.fail(ctx, r, fmt.Errorf("failed to snapshot offsets before restore: %w", err))
		}
		r.result.Snapshot = ref
	}

	r.enter(domain.RestorePhaseRestoring)
	for topic, n := range p.skipped {
		if n > 0 {
			e.metrics.PitrFiltered.WithLabelValues(topic).Add(float64(n))
		}
	}

	history, err := stores.Checkpoints.History(ctx, domain.RestoreRunID(restoreID))
	if err != nil {
		return e.fail(ctx, r, fmt.Errorf("failed to load restore checkpoints: %w", err))
	}
	done := make(map[domain.PartitionKey]map[int]*domain.Checkpoint)
	for _, cp := range history {
		if done[cp.Key()] == nil {
			done[cp.Key()] = make(map[int]*domain.Checkpoint)
		}
		done[cp.Key()][cp.SegmentID] = cp
	}

	producer, err := e.kafkaRepo.CreateProducer(ctx, req.Cluster, repository.ProducerConfig{MaxRetries: 5, Idempotent: true})
	if err != nil {
		return e.fail(ctx, r, fmt.Errorf("failed to create producer: %w", err))
	}
	defer producer.Close()

	coordinator := NewCoordinator(restoreID, req, p, done, producer, stores, e.metrics, r.log)
	coordinator.now = e.now
	coordinator.retryBackoff = e.retryBackoff
	coordinator.onProgress = func(progress domain.RestoreProgress) {
		r.progress = progress
		if observer != nil {
			observer(domain.RestorePhaseRestoring, progress)
		}
	}

	err = coordinator.Start(ctx)
	progress, mapping, filtered := coordinator.totals()
	r.progress = progress
	r.result.SegmentsProcessed = progress.SegmentsProcessed
	r.result.Records = progress.Records
	r.result.Bytes = progress.Bytes
	r.result.FilteredByPITR = filtered
	if err != nil {
		return e.fail(ctx, r, err)
	}

	for group, offsets := range manifest.GroupOffsets {
		mapping.GroupOffsets[group] = offsets
	}
	mapping.CreatedAt = e.now().UTC()
	key, err := stores.Metadata.SaveOffsetMapping(ctx, mapping)
	if err != nil {
		return e.fail(ctx, r, err)
	}
	r.result.OffsetMappingPath = key

	if req.OffsetRecovery.Enabled {
		for _, group := range groups {
			if err := e.recoverGroup(ctx, admin, mapping, group, r.log); err != nil {
				return e.fail(ctx, r, err)
			}
			r.result.GroupsRecovered = append(r.result.GroupsRecovered, group)
		}
	}

	return e.complete(r, started, metrics.OutcomeSuccess), nil
}

func (e *Engine) complete(r *run, started time.Time, outcome string) *domain.RestoreResult {
	r.result.CompletedAt = e.now().UTC()
	r.result.Duration = e.now().Sub(started)
	e.metrics.RestoresTotal.WithLabelValues(outcome, r.req.Namespace, r.req.Name).Inc()
	e.metrics.RestoreDuration.WithLabelValues(r.req.Namespace, r.req.Name).Observe(r.result.Duration.Seconds())
	r.enter(domain.RestorePhaseCompleted)
	r.log.Info("Restore completed",
		"records", r.result.Records, "segments", r.result.SegmentsProcessed, "filteredByPITR", r.result.FilteredByPITR, "dryRun", r.req.DryRun)
	return r.result
}

// fail marks the restore Failed and, when a snapshot was taken and the
// request asks for it, puts the snapshotted offsets back. Records already
// written stay on the target.
func (e *Engine) fail(ctx context.Context, r *run, cause error) (*domain.RestoreResult, error) {
	r.log.Error("Restore failed", "phase", r.result.Phase, "error", cause)
	r.enter(domain.RestorePhaseFailed)
	outcome := metrics.OutcomeFailure

	if r.req.AutoRollbackOnFailure && r.result.Snapshot != nil {
		r.enter(domain.RestorePhaseRollingBack)
		if err := e.rollback(ctx, r); err != nil {
			r.log.Error("Automatic rollback failed", "snapshotID", r.result.Snapshot.ID, "error", err)
			cause = fmt.Errorf("%w (rollback to snapshot %s failed: %v)", cause, r.result.Snapshot.ID, err)
			r.enter(domain.RestorePhaseFailed)
		} else {
			outcome = metrics.OutcomeRolledBack
			r.enter(domain.RestorePhaseRolledBack)
		}
	}

	r.result.CompletedAt = e.now().UTC()
	r.result.Duration = r.result.CompletedAt.Sub(r.result.StartedAt)
	e.metrics.RestoresTotal.WithLabelValues(outcome, r.req.Namespace, r.req.Name).Inc()
	e.metrics.RestoreDuration.WithLabelValues(r.req.Namespace, r.req.Name).Observe(r.result.Duration.Seconds())
	return r.result, cause
}

func (e *Engine) rollback(ctx context.Context, r *run) error {
	rbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()

	res, err := e.offsets.Rollback(rbCtx, &domain.OffsetRollbackRequest{
		Name:                r.req.Name,
		Namespace:           r.req.Namespace,
		Cluster:             r.req.Cluster,
		Storage:             r.req.Storage,
		SnapshotID:          r.result.Snapshot.ID,
		SnapshotPath:        r.result.Snapshot.Path,
		VerifyAfterRollback: true,
	})
	if err != nil {
		return err
	}
	if v := res.Verification; v != nil && !v.AllMatched {
		return fmt.Errorf("offsets of %v do not match the snapshot after rollback", v.MismatchedGroups)
	}
	return nil
}

// ensureSnapshot reuses the snapshot of an earlier attempt of the same
// restore. Its offsets predate any write, which a new snapshot would not
// guarantee.
func (e *Engine) ensureSnapshot(ctx context.Context, meta repository.MetadataRepository, req *domain.RestoreRequest, groups []string, restoreID string) (*domain.SnapshotRef, error) {
	id := SnapshotID(restoreID)
	existing, err := meta.GetSnapshot(ctx, id, "")
	if err == nil {
		return &domain.SnapshotRef{ID: existing.ID, Path: domain.SnapshotKey(id), CreatedAt: existing.CreatedAt}, nil
	}
	if !apperrors.IsNotFound(err) {
		return nil, err
	}
	return e.offsets.Snapshot(ctx, req.Cluster, req.Storage, groups, id)
}

// recoverGroup commits the group's backed-up offsets translated onto the
// target partitions.
func (e *Engine) recoverGroup(ctx context.Context, admin repository.Admin, mapping *domain.OffsetMapping, group string, log logger.Logger) error {
	offsets := mapping.TranslateGroup(group)
	if offsets.Count() == 0 {
		log.Info("No restored partitions to recover offsets for", "group", group)
		return nil
	}

	state, err := admin.GroupState(ctx, group)
	if err != nil {
		return fmt.Errorf("failed to describe group %s: %w", group, err)
	}
	switch state {
	case "", "Empty", "Dead":
	default:
		return apperrors.Configuration("consumer group %s is %s: stop its consumers before recovering offsets", group, state)
	}

	if err := admin.CommitGroupOffsets(ctx, group, offsets); err != nil {
		e.metrics.OffsetCommitsOutcomes.WithLabelValues(metrics.OutcomeFailure).Inc()
		return fmt.Errorf("failed to commit offsets of group %s: %w", group, err)
	}
	e.metrics.OffsetCommitsOutcomes.WithLabelValues(metrics.OutcomeSuccess).Inc()
	log.Info("Recovered consumer group offsets", "group", group, "partitions", offsets.Count())
	return nil
}

// recoveryGroups returns the groups whose offsets a restore moves: the
// requested ones, or every group captured with the backup.
func recoveryGroups(req *domain.RestoreRequest, manifest *domain.Manifest) ([]string, error) {
	if len(req.OffsetRecovery.Groups) == 0 {
		if !req.OffsetRecovery.Enabled {
			return nil, nil
		}
		groups := make([]string, 0, len(manifest.GroupOffsets))
		for g := range manifest.GroupOffsets {
			groups = append(groups, g)
		}
		sort.Strings(groups)
		return groups, nil
	}

	seen := make(map[string]bool)
	var groups []string
	for _, g := range req.OffsetRecovery.Groups {
		if g == "" || seen[g] {
			continue
		}
		seen[g] = true
		if _, ok := manifest.GroupOffsets[g]; req.OffsetRecovery.Enabled && !ok {
			return nil, apperrors.Configuration("consumer group %s has no offsets in backup %s", g, manifest.RunID)
		}
		groups = append(groups, g)
	}
	return groups, nil
}
