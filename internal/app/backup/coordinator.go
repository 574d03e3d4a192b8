package backup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/quantica-technologies/kafka-backup-operator/internal/domain"
	"github.com/quantica-technologies/kafka-backup-operator/internal/repository"
	"github.com/quantica-technologies/kafka-backup-operator/internal/usecase"
	apperrors "github.com/quantica-technologies/kafka-backup-operator/pkg/errors"
	"github.com/quantica-technologies/kafka-backup-operator/pkg/logger"
	"github.com/quantica-technologies/kafka-backup-operator/pkg/metrics"
	"github.com/quantica-technologies/kafka-backup-operator/pkg/ratelimit"
	"github.com/quantica-technologies/kafka-backup-operator/pkg/utils"
)

// Coordinator fans the partitions of one run out to workers under a gate
type Coordinator struct {
	req          *domain.BackupRequest
	descriptor   *domain.RunDescriptor
	codec        utils.Codec
	consumer     repository.Consumer
	admin        repository.Admin
	stores       *repository.Stores
	gate         *ratelimit.Gate
	states       map[domain.PartitionKey]*partitionState
	metrics      *metrics.Metrics
	logger       logger.Logger
	now          func() time.Time
	retryBackoff time.Duration

	mu         sync.Mutex
	progress   domain.BackupProgress
	onProgress usecase.BackupProgressFunc
}

// NewCoordinator creates a coordinator for a run whose partition states
// have already been recovered.
func NewCoordinator(
	req *domain.BackupRequest,
	descriptor *domain.RunDescriptor,
	states map[domain.PartitionKey]*partitionState,
	codec utils.Codec,
	consumer repository.Consumer,
	admin repository.Admin,
	stores *repository.Stores,
	m *metrics.Metrics,
	log logger.Logger,
) *Coordinator {
	c := &Coordinator{
		req:          req,
		descriptor:   descriptor,
		codec:        codec,
		consumer:     consumer,
		admin:        admin,
		stores:       stores,
		states:       states,
		metrics:      m,
		logger:       log,
		now:          time.Now,
		retryBackoff: time.Second,
	}

	c.gate = ratelimit.New(ratelimit.Config{
		Name:             "backup/" + descriptor.RunID,
		MaxConcurrent:    req.Limits.MaxConcurrentPartitions,
		BreakerDisabled:  !req.Breaker.Enabled,
		FailureThreshold: uint32(req.Breaker.FailureThreshold),
		ResetTimeout:     req.Breaker.ResetTimeout,
		RecordsPerSec:    req.Limits.RecordsPerSec,
		BytesPerSec:      req.Limits.BytesPerSec,
		OnStateChange: func(from, to ratelimit.State) {
			log.Warn("Circuit breaker changed state", "from", from, "to", to)
			if to == ratelimit.StateOpen {
				m.CircuitBreakerTrips.WithLabelValues("backup").Inc()
			}
		},
	})

	c.progress = domain.BackupProgress{RunID: descriptor.RunID, Partitions: len(descriptor.Partitions)}
	for _, st := range states {
		c.progress.Records += st.records
		c.progress.Bytes += st.bytes
		c.progress.Segments += len(st.segments)
		if st.done {
			c.progress.PartitionsDone++
		}
		if st.lastSave.After(c.progress.LastCheckpoint) {
			c.progress.LastCheckpoint = st.lastSave
		}
	}
	return c
}

// Start copies every unfinished partition and returns the first partition
// error once all workers have stopped.
func (c *Coordinator) Start(ctx context.Context) error {
	pending := 0
	for _, rng := range c.descriptor.Partitions {
		if !c.states[rng.Key()].done {
			pending++
		}
	}
	c.logger.Info("Starting backup coordinator", "partitions", len(c.descriptor.Partitions), "pending", pending)

	g, gctx := errgroup.WithContext(ctx)
	for _, rng := range c.descriptor.Partitions {
		st := c.states[rng.Key()]
		if st.done {
			continue
		}
		worker := &Worker{
			runID:     c.descriptor.RunID,
			rng:       rng,
			req:       c.req,
			codec:     c.codec,
			consumer:  c.consumer,
			admin:     c.admin,
			stores:    c.stores,
			gate:      c.gate,
			state:     st,
			onSegment: c.segmentCommitted,
			now:       c.now,
			logger: c.logger.WithFields(map[string]interface{}{
				"topic":     rng.Topic,
				"partition": rng.Partition,
			}),
		}
		g.Go(func() error {
			return c.runPartition(gctx, worker)
		})
	}

	err := g.Wait()
	c.metrics.InFlightPartitions.WithLabelValues("backup").Set(0)
	if err != nil {
		return err
	}
	c.logger.Info("All partitions copied", "segments", c.progress.Segments, "records", c.progress.Records)
	return nil
}

// runPartition gives a partition a bounded number of attempts. Each attempt
// holds a gate permit, so breaker rejections count as attempts too.
func (c *Coordinator) runPartition(ctx context.Context, w *Worker) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryBackoff
	policy.MaxElapsedTime = 0

	attempt := 0
	operation := func() error {
		if attempt > 0 {
			c.metrics.PartitionRetries.WithLabelValues("backup").Inc()
		}
		attempt++

		err := c.attempt(ctx, w)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		switch apperrors.KindOf(err) {
		case apperrors.KindConfiguration, apperrors.KindDataIntegrity:
			return backoff.Permanent(err)
		}
		w.logger.Warn("Partition attempt failed", "attempt", attempt, "cursor", w.state.cursor, "error", err)
		return err
	}

	err := backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(policy, uint64(domain.DefaultPartitionAttempts-1)), ctx))
	if err != nil {
		w.logger.Error("Partition failed", "attempts", attempt, "error", err)
		return fmt.Errorf("failed to back up %s: %w", w.rng.Key(), err)
	}
	return nil
}

func (c *Coordinator) attempt(ctx context.Context, w *Worker) error {
	permit, err := c.gate.Acquire(ctx)
	if err != nil {
		return err
	}
	c.metrics.InFlightPartitions.WithLabelValues("backup").Set(float64(c.gate.InFlight()))

	err = w.Run(ctx)
	permit.Done(err)
	c.metrics.InFlightPartitions.WithLabelValues("backup").Set(float64(c.gate.InFlight()))
	return err
}

// segmentCommitted is called by workers after each durable checkpoint. A nil
// segment marks a partition finished without a new segment.
func (c *Coordinator) segmentCommitted(rng domain.PartitionRange, seg *domain.SegmentMetadata, done bool) {
	if seg != nil {
		c.metrics.BackupSegments.WithLabelValues(rng.Topic).Inc()
		c.metrics.BackupMessages.WithLabelValues(rng.Topic).Add(float64(seg.Records))
		c.metrics.BackupBytes.WithLabelValues(rng.Topic).Add(float64(seg.SizeBytes))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if seg != nil {
		c.progress.Records += seg.Records
		c.progress.Bytes += seg.SizeBytes
		c.progress.Segments++
	}
	if done {
		c.progress.PartitionsDone++
	}
	c.progress.LastCheckpoint = c.now().UTC()
	if c.onProgress != nil {
		c.onProgress(c.progress)
	}
}
