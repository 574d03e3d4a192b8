// Package backup copies the partitions of a set of topics into segment
// objects, checkpointing after every segment so a failed run can resume.
package backup

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
	"github.com/quantica-technologies/kafka-backup-operator/pkg/utils"
)

// Engine implements the backup use case
type Engine struct {
	kafkaRepo    repository.KafkaRepository
	openStores   repository.StoreOpener
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

// NewEngine creates a new backup engine
func NewEngine(
	kafkaRepo repository.KafkaRepository,
	openStores repository.StoreOpener,
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

var _ usecase.BackupUseCase = (*Engine)(nil)

// Run executes the run named by req.RunID, resuming it when a descriptor
// already exists. A run whose manifest exists is not repeated.
func (e *Engine) Run(ctx context.Context, req *domain.BackupRequest, progress usecase.BackupProgressFunc) (*domain.BackupResult, error) {
	started := e.now()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	req.ApplyDefaults(started)
	if _, err := utils.NewCodec(req.Compression, req.CompressionLevel); err != nil {
		return nil, apperrors.WithKind(err, apperrors.KindConfiguration, "invalid compression settings")
	}

	log := e.logger.WithFields(map[string]interface{}{
		"backup": req.Name,
		"runID":  req.RunID,
	})

	stores, err := e.openStores(ctx, req.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	defer stores.Close()

	manifest, err := stores.Metadata.GetManifest(ctx, req.RunID)
	switch {
	case err == nil:
		log.Info("Run already completed")
		return resultFromManifest(manifest, domain.ManifestKey(req.RunID), true), nil
	case !apperrors.IsNotFound(err):
		return nil, fmt.Errorf("failed to check for an existing manifest: %w", err)
	}

	admin, err := e.kafkaRepo.CreateAdmin(ctx, req.Cluster)
	if err != nil {
		return nil, fmt.Errorf("failed to create admin client: %w", err)
	}
	defer admin.Close()

	descriptor, resumed, err := e.loadOrCreateDescriptor(ctx, stores.Metadata, admin, req, started)
	if err != nil {
		return nil, err
	}
	if resumed {
		log.Info("Resuming backup run", "startedAt", descriptor.StartedAt)
	} else {
		log.Info("Starting backup run", "partitions", len(descriptor.Partitions))
	}

	// A resumed run keeps the encoding it started with.
	codec, err := utils.NewCodec(descriptor.Compression, descriptor.CompressionLevel)
	if err != nil {
		return nil, apperrors.WithKind(err, apperrors.KindConfiguration, "invalid compression recorded in run descriptor")
	}

	states, err := e.recoverStates(ctx, stores.Checkpoints, descriptor, req.CheckpointEnabled)
	if err != nil {
		return nil, err
	}

	consumer, err := e.kafkaRepo.CreateConsumer(ctx, req.Cluster, repository.ConsumerConfig{})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}
	defer consumer.Close()

	coordinator := NewCoordinator(req, descriptor, states, codec, consumer, admin, stores, e.metrics, log)
	coordinator.now = e.now
	coordinator.retryBackoff = e.retryBackoff
	coordinator.onProgress = progress

	if err := coordinator.Start(ctx); err != nil {
		log.Error("Backup run failed, checkpoints kept for resume", "error", err)
		return nil, err
	}

	history, err := stores.Checkpoints.History(ctx, descriptor.RunID)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint history: %w", err)
	}
	manifest, err = BuildManifest(descriptor, history, e.now())
	if err != nil {
		return nil, err
	}
	key, err := stores.Metadata.SaveManifest(ctx, manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to save manifest: %w", err)
	}

	result := resultFromManifest(manifest, key, resumed)
	result.Duration = e.now().Sub(started)
	result.RetentionDeleted = e.applyRetention(ctx, stores.Metadata, req, descriptor.RunID, log)

	log.Info("Backup run completed",
		"records", result.Records, "bytes", result.Bytes, "segments", result.Segments, "duration", result.Duration)
	return result, nil
}

// FindIncompleteRun returns the latest run of backupName when it has no
// manifest yet.
func (e *Engine) FindIncompleteRun(ctx context.Context, storage *domain.StorageConfig, backupName string) (string, error) {
	stores, err := e.openStores(ctx, storage)
	if err != nil {
		return "", fmt.Errorf("failed to open storage: %w", err)
	}
	defer stores.Close()

	runs, err := stores.Metadata.ListRuns(ctx, backupName)
	if err != nil {
		return "", err
	}
	if len(runs) == 0 || runs[len(runs)-1].Complete {
		return "", nil
	}
	return runs[len(runs)-1].RunID, nil
}

func (e *Engine) loadOrCreateDescriptor(
	ctx context.Context,
	meta repository.MetadataRepository,
	admin repository.Admin,
	req *domain.BackupRequest,
	started time.Time,
) (*domain.RunDescriptor, bool, error) {
	existing, err := meta.GetRunDescriptor(ctx, req.RunID)
	if err == nil {
		return existing, true, nil
	}
	if !apperrors.IsNotFound(err) {
		return nil, false, fmt.Errorf("failed to load run descriptor: %w", err)
	}

	if ts, ok := domain.ParseRunID(req.Name, req.RunID); ok {
		started = ts
	}
	descriptor := &domain.RunDescriptor{
		SchemaVersion:    domain.ManifestSchemaVersion,
		RunID:            req.RunID,
		BackupName:       req.Name,
		Namespace:        req.Namespace,
		StartedAt:        started.UTC(),
		Compression:      req.Compression,
		CompressionLevel: req.CompressionLevel,
	}
	if descriptor.Compression == "" {
		descriptor.Compression = utils.CompressionNone
	}

	topics := uniqueSorted(req.Topics)
	for _, name := range topics {
		topic, err := admin.DescribeTopic(ctx, name)
		if err != nil {
			if apperrors.IsNotFound(err) {
				return nil, false, apperrors.Configuration("topic %s not found", name)
			}
			return nil, false, fmt.Errorf("failed to describe topic %s: %w", name, err)
		}
		descriptor.Topics = append(descriptor.Topics, domain.TopicMetadata{
			Name:              topic.Name,
			Partitions:        topic.Partitions,
			ReplicationFactor: topic.ReplicationFactor,
			Config:            topic.Config,
		})

		partitions, err := admin.GetPartitions(ctx, name)
		if err != nil {
			return nil, false, fmt.Errorf("failed to list partitions of %s: %w", name, err)
		}
		sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })
		for _, p := range partitions {
			low, high, err := admin.GetOffsets(ctx, name, p)
			if err != nil {
				return nil, false, fmt.Errorf("failed to get offsets of %s/%d: %w", name, p, err)
			}
			descriptor.Partitions = append(descriptor.Partitions, domain.PartitionRange{
				Topic: name, Partition: p, Low: low, Target: high,
			})
		}
	}

	for _, group := range uniqueSorted(req.ConsumerGroups) {
		offsets, err := admin.FetchGroupOffsets(ctx, group, topics)
		if err != nil {
			return nil, false, fmt.Errorf("failed to fetch offsets of group %s: %w", group, err)
		}
		if descriptor.GroupOffsets == nil {
			descriptor.GroupOffsets = make(map[string]map[string]map[int32]int64)
		}
		descriptor.GroupOffsets[group] = offsets
	}

	if err := meta.SaveRunDescriptor(ctx, descriptor); err != nil {
		return nil, false, fmt.Errorf("failed to save run descriptor: %w", err)
	}
	return descriptor, false, nil
}

// recoverStates rebuilds per-partition progress. Without checkpointing every
// partition starts over; the segments it rewrites replace the old keys.
func (e *Engine) recoverStates(
	ctx context.Context,
	checkpoints repository.CheckpointRepository,
	descriptor *domain.RunDescriptor,
	resume bool,
) (map[domain.PartitionKey]*partitionState, error) {
	states := make(map[domain.PartitionKey]*partitionState, len(descriptor.Partitions))
	if !resume {
		for _, rng := range descriptor.Partitions {
			states[rng.Key()] = freshState(rng)
		}
		return states, nil
	}

	history, err := checkpoints.History(ctx, descriptor.RunID)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoints: %w", err)
	}
	chains := groupByPartition(history)
	for _, rng := range descriptor.Partitions {
		states[rng.Key()] = walkChain(rng, chains[rng.Key()])
	}
	return states, nil
}

// BuildManifest assembles the manifest of a finished run from its
// descriptor and checkpoint history. Every non-empty partition must have a
// complete checkpoint chain.
func BuildManifest(descriptor *domain.RunDescriptor, history []*domain.Checkpoint, completedAt time.Time) (*domain.Manifest, error) {
	manifest := &domain.Manifest{
		SchemaVersion:    domain.ManifestSchemaVersion,
		RunID:            descriptor.RunID,
		BackupName:       descriptor.BackupName,
		Namespace:        descriptor.Namespace,
		StartedAt:        descriptor.StartedAt,
		CompletedAt:      completedAt.UTC(),
		Compression:      descriptor.Compression,
		CompressionLevel: descriptor.CompressionLevel,
		Topics:           descriptor.Topics,
		Segments:         []domain.SegmentMetadata{},
		GroupOffsets:     descriptor.GroupOffsets,
	}

	chains := groupByPartition(history)
	for _, rng := range descriptor.Partitions {
		st := walkChain(rng, chains[rng.Key()])
		if !st.done {
			return nil, apperrors.DataIntegrity("partition %s has no complete checkpoint chain (stopped at offset %d of %d)",
				rng.Key(), st.cursor, rng.Target)
		}
		manifest.Segments = append(manifest.Segments, st.segments...)
	}
	domain.SortSegments(manifest.Segments)
	return manifest, nil
}

func groupByPartition(history []*domain.Checkpoint) map[domain.PartitionKey][]*domain.Checkpoint {
	chains := make(map[domain.PartitionKey][]*domain.Checkpoint)
	for _, cp := range history {
		chains[cp.Key()] = append(chains[cp.Key()], cp)
	}
	for _, chain := range chains {
		sort.SliceStable(chain, func(i, j int) bool { return chain[i].SegmentID < chain[j].SegmentID })
	}
	return chains
}

func resultFromManifest(manifest *domain.Manifest, key string, resumed bool) *domain.BackupResult {
	result := &domain.BackupResult{
		RunID:             manifest.RunID,
		ManifestKey:       key,
		Resumed:           resumed,
		Records:           manifest.TotalRecords(),
		Bytes:             manifest.TotalBytes(),
		Segments:          len(manifest.Segments),
		PartitionSegments: make(map[string]int),
		StartedAt:         manifest.StartedAt,
		CompletedAt:       manifest.CompletedAt,
		Duration:          manifest.CompletedAt.Sub(manifest.StartedAt),
	}
	for _, seg := range manifest.Segments {
		result.PartitionSegments[domain.PartitionKey{Topic: seg.Topic, Partition: seg.Partition}.String()]++
	}
	return result
}

func uniqueSorted(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok || s == "" {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
