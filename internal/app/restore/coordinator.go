package restore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/quantica-technologies/kafka-backup-operator/internal/domain"
	"github.com/quantica-technologies/kafka-backup-operator/internal/repository"
	apperrors "github.com/quantica-technologies/kafka-backup-operator/pkg/errors"
	"github.com/quantica-technologies/kafka-backup-operator/pkg/logger"
	"github.com/quantica-technologies/kafka-backup-operator/pkg/metrics"
	"github.com/quantica-technologies/kafka-backup-operator/pkg/ratelimit"
)

// Coordinator replays the planned partitions of one restore under a gate
// and assembles the offset mapping as segments land.
type Coordinator struct {
	restoreID    string
	req          *domain.RestoreRequest
	plan         *plan
	producer     repository.Producer
	stores       *repository.Stores
	gate         *ratelimit.Gate
	done         map[domain.PartitionKey]map[int]*domain.Checkpoint
	metrics      *metrics.Metrics
	logger       logger.Logger
	now          func() time.Time
	retryBackoff time.Duration

	mu         sync.Mutex
	mapping    *domain.OffsetMapping
	progress   domain.RestoreProgress
	filtered   int64
	onProgress func(domain.RestoreProgress)
}

// NewCoordinator creates a coordinator. done holds the checkpoints of
// segments an earlier attempt of the same restore already replayed.
func NewCoordinator(
	restoreID string,
	req *domain.RestoreRequest,
	p *plan,
	done map[domain.PartitionKey]map[int]*domain.Checkpoint,
	producer repository.Producer,
	stores *repository.Stores,
	m *metrics.Metrics,
	log logger.Logger,
) *Coordinator {
	c := &Coordinator{
		restoreID:    restoreID,
		req:          req,
		plan:         p,
		producer:     producer,
		stores:       stores,
		done:         done,
		metrics:      m,
		logger:       log,
		now:          time.Now,
		retryBackoff: time.Second,
		mapping:      domain.NewOffsetMapping(restoreID, p.manifest.RunID),
		progress: domain.RestoreProgress{
			Phase:           domain.RestorePhaseRestoring,
			SegmentsPlanned: p.segments,
		},
		filtered: p.skippedRecords(),
	}

	c.gate = ratelimit.New(ratelimit.Config{
		Name:             "restore/" + restoreID,
		MaxConcurrent:    req.Limits.MaxConcurrentPartitions,
		BreakerDisabled:  !req.Breaker.Enabled,
		FailureThreshold: uint32(req.Breaker.FailureThreshold),
		ResetTimeout:     req.Breaker.ResetTimeout,
		RecordsPerSec:    req.Limits.RecordsPerSec,
		BytesPerSec:      req.Limits.BytesPerSec,
		OnStateChange: func(from, to ratelimit.State) {
			log.Warn("Circuit breaker changed state", "from", from, "to", to)
			if to == ratelimit.StateOpen {
				m.CircuitBreakerTrips.WithLabelValues("restore").Inc()
			}
		},
	})

	// Segments are walked in plan order so recovered ranges merge exactly as
	// they would have in one uninterrupted attempt.
	for _, pp := range p.partitions {
		if c.done[pp.key()] == nil {
			c.done[pp.key()] = make(map[int]*domain.Checkpoint)
		}
		for _, sp := range pp.segments {
			if cp, ok := c.done[pp.key()][sp.meta.Sequence]; ok {
				c.record(pp, outcomeFromCheckpoint(sp.meta, cp))
			}
		}
	}
	return c
}

// Start replays every partition and returns the first partition error once
// all workers have stopped.
func (c *Coordinator) Start(ctx context.Context) error {
	c.logger.Info("Starting restore coordinator",
		"partitions", len(c.plan.partitions), "segments", c.plan.segments, "alreadyReplayed", c.progress.SegmentsProcessed)

	g, gctx := errgroup.WithContext(ctx)
	for _, pp := range c.plan.partitions {
		worker := &Worker{
			restoreRunID:     domain.RestoreRunID(c.restoreID),
			plan:             pp,
			req:              c.req,
			compressionLevel: c.plan.manifest.CompressionLevel,
			producer:         c.producer,
			stores:           c.stores,
			gate:             c.gate,
			done:             c.done[pp.key()],
			onSegment:        c.segmentReplayed,
			metrics:          c.metrics,
			now:              c.now,
			logger: c.logger.WithFields(map[string]interface{}{
				"topic":       pp.sourceTopic,
				"targetTopic": pp.targetTopic,
				"partition":   pp.partition,
			}),
		}
		g.Go(func() error {
			return c.runPartition(gctx, worker)
		})
	}

	err := g.Wait()
	c.metrics.InFlightPartitions.WithLabelValues("restore").Set(0)
	return err
}

// runPartition mirrors the backup retry policy: bounded attempts, each one
// through the gate, with configuration and integrity failures final.
func (c *Coordinator) runPartition(ctx context.Context, w *Worker) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryBackoff
	policy.MaxElapsedTime = 0

	attempt := 0
	operation := func() error {
		if attempt > 0 {
			c.metrics.PartitionRetries.WithLabelValues("restore").Inc()
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
		w.logger.Warn("Partition attempt failed", "attempt", attempt, "error", err)
		return err
	}

	err := backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(policy, uint64(domain.DefaultPartitionAttempts-1)), ctx))
	if err != nil {
		w.logger.Error("Partition failed", "attempts", attempt, "error", err)
		return fmt.Errorf("failed to restore %s: %w", w.plan.key(), err)
	}
	return nil
}

func (c *Coordinator) attempt(ctx context.Context, w *Worker) error {
	permit, err := c.gate.Acquire(ctx)
	if err != nil {
		return err
	}
	c.metrics.InFlightPartitions.WithLabelValues("restore").Set(float64(c.gate.InFlight()))

	err = w.Run(ctx)
	permit.Done(err)
	c.metrics.InFlightPartitions.WithLabelValues("restore").Set(float64(c.gate.InFlight()))
	return err
}

func (c *Coordinator) segmentReplayed(p *partitionPlan, out segmentOutcome) {
	c.metrics.RestoreMessages.WithLabelValues(p.targetTopic).Add(float64(out.records))
	c.metrics.RestoreBytes.WithLabelValues(p.targetTopic).Add(float64(out.bytes))
	if out.filtered > 0 {
		c.metrics.PitrFiltered.WithLabelValues(p.sourceTopic).Add(float64(out.filtered))
	}
	c.record(p, out)
}

func (c *Coordinator) record(p *partitionPlan, out segmentOutcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, r := range out.mappings {
		c.mapping.Add(p.sourceTopic, p.targetTopic, p.partition, r)
	}
	c.mapping.SourceTopics[p.targetTopic] = p.sourceTopic
	c.progress.SegmentsProcessed++
	c.progress.Records += out.records
	c.progress.Bytes += out.bytes
	c.filtered += out.filtered
	if c.onProgress != nil {
		c.onProgress(c.progress)
	}
}

// totals returns the progress, mapping and PITR-filtered count so far
func (c *Coordinator) totals() (domain.RestoreProgress, *domain.OffsetMapping, int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.progress, c.mapping, c.filtered
}
