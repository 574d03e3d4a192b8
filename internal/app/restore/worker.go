package restore

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/quantica-technologies/kafka-backup-operator/internal/domain"
	"github.com/quantica-technologies/kafka-backup-operator/internal/repository"
	apperrors "github.com/quantica-technologies/kafka-backup-operator/pkg/errors"
	"github.com/quantica-technologies/kafka-backup-operator/pkg/logger"
	"github.com/quantica-technologies/kafka-backup-operator/pkg/metrics"
	"github.com/quantica-technologies/kafka-backup-operator/pkg/ratelimit"
	"github.com/quantica-technologies/kafka-backup-operator/pkg/utils"
)

// produceBatchSize bounds the records handed to the producer at once
const produceBatchSize = 500

// segmentOutcome is what one replayed segment contributed
type segmentOutcome struct {
	records  int64
	bytes    int64
	filtered int64
	mappings []domain.OffsetRange
}

// outcomeFromCheckpoint recovers the outcome of a segment replayed by an
// earlier attempt.
func outcomeFromCheckpoint(seg domain.SegmentMetadata, cp *domain.Checkpoint) segmentOutcome {
	return segmentOutcome{
		records:  cp.Records,
		bytes:    cp.BytesWritten,
		filtered: seg.Records - cp.Records,
		mappings: cp.Mappings,
	}
}

// Worker replays the planned segments of one partition in offset order
type Worker struct {
	restoreRunID     string
	plan             *partitionPlan
	req              *domain.RestoreRequest
	compressionLevel int
	producer         repository.Producer
	stores           *repository.Stores
	gate             *ratelimit.Gate
	done             map[int]*domain.Checkpoint
	onSegment        func(p *partitionPlan, out segmentOutcome)
	metrics          *metrics.Metrics
	now              func() time.Time
	logger           logger.Logger
}

// Run replays every segment without a checkpoint. A failed Run keeps the
// checkpoints of finished segments, so the next attempt skips them.
func (w *Worker) Run(ctx context.Context) error {
	for _, sp := range w.plan.segments {
		if _, ok := w.done[sp.meta.Sequence]; ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.replay(ctx, sp); err != nil {
			return fmt.Errorf("segment %s: %w", sp.meta.Key, err)
		}
	}
	return nil
}

func (w *Worker) operationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if timeout := w.req.Breaker.OperationTimeout; timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}

func (w *Worker) replay(ctx context.Context, sp segmentPlan) error {
	messages, err := w.load(ctx, sp.meta)
	if err != nil {
		return err
	}

	out := segmentOutcome{}
	if sp.filter {
		kept := messages[:0]
		for _, msg := range messages {
			if w.req.PITR.Contains(msg.Timestamp) {
				kept = append(kept, msg)
			}
		}
		out.filtered = int64(len(messages) - len(kept))
		messages = kept
	}

	for start := 0; start < len(messages); start += produceBatchSize {
		end := start + produceBatchSize
		if end > len(messages) {
			end = len(messages)
		}
		if err := w.produce(ctx, messages[start:end], &out); err != nil {
			return err
		}
	}

	opCtx, cancel := w.operationContext(ctx)
	defer cancel()
	cp := &domain.Checkpoint{
		RunID:        w.restoreRunID,
		Topic:        w.plan.sourceTopic,
		Partition:    w.plan.partition,
		Offset:       sp.meta.EndOffset,
		SegmentID:    sp.meta.Sequence,
		BytesWritten: out.bytes,
		Records:      out.records,
		Segment:      &sp.meta,
		Mappings:     out.mappings,
		WrittenAt:    w.now().UTC(),
	}
	if err := w.stores.Checkpoints.Save(opCtx, cp); err != nil {
		return err
	}
	w.done[sp.meta.Sequence] = cp

	w.logger.Debug("Segment replayed", "segment", sp.meta.Sequence, "records", out.records, "filtered", out.filtered)
	w.onSegment(w.plan, out)
	return nil
}

// load fetches a segment and checks it against its manifest entry before
// anything is produced.
func (w *Worker) load(ctx context.Context, seg domain.SegmentMetadata) ([]*domain.Message, error) {
	opCtx, cancel := w.operationContext(ctx)
	defer cancel()

	body, _, err := w.stores.Objects.Get(opCtx, seg.Key)
	if err != nil {
		if apperrors.IsNotFound(err) {
			w.metrics.IntegrityFailure.WithLabelValues(seg.Topic).Inc()
			return nil, apperrors.DataIntegrity("segment %s listed in the manifest is missing", seg.Key)
		}
		return nil, err
	}
	data, err := io.ReadAll(body)
	_ = body.Close()
	if err != nil {
		return nil, apperrors.Transient(err, "failed to read segment")
	}

	if !utils.VerifyChecksum(data, seg.Checksum) {
		w.metrics.IntegrityFailure.WithLabelValues(seg.Topic).Inc()
		return nil, apperrors.DataIntegrity("checksum mismatch for segment %s", seg.Key)
	}

	codec, err := utils.NewCodec(seg.Compression, w.compressionLevel)
	if err != nil {
		return nil, apperrors.WithKind(err, apperrors.KindConfiguration, "unsupported segment compression")
	}
	raw, err := codec.Decompress(data)
	if err != nil {
		w.metrics.IntegrityFailure.WithLabelValues(seg.Topic).Inc()
		return nil, apperrors.WithKind(err, apperrors.KindDataIntegrity, "failed to decompress segment")
	}
	messages, err := domain.UnmarshalSegment(raw)
	if err != nil {
		w.metrics.IntegrityFailure.WithLabelValues(seg.Topic).Inc()
		return nil, apperrors.WithKind(err, apperrors.KindDataIntegrity, "failed to decode segment")
	}

	if err := verifyRange(seg, messages); err != nil {
		w.metrics.IntegrityFailure.WithLabelValues(seg.Topic).Inc()
		return nil, err
	}
	return messages, nil
}

// verifyRange checks the record count and that offsets ascend inside
// [StartOffset, EndOffset], ending at EndOffset.
func verifyRange(seg domain.SegmentMetadata, messages []*domain.Message) error {
	if int64(len(messages)) != seg.Records {
		return apperrors.DataIntegrity("segment %s holds %d records, manifest lists %d", seg.Key, len(messages), seg.Records)
	}
	prev := seg.StartOffset - 1
	for _, msg := range messages {
		if msg.Offset <= prev || msg.Offset > seg.EndOffset {
			return apperrors.DataIntegrity("segment %s has offset %d outside [%d, %d] or out of order",
				seg.Key, msg.Offset, seg.StartOffset, seg.EndOffset)
		}
		prev = msg.Offset
	}
	if len(messages) > 0 && prev != seg.EndOffset {
		return apperrors.DataIntegrity("segment %s ends at %d, manifest lists %d", seg.Key, prev, seg.EndOffset)
	}
	return nil
}

func (w *Worker) produce(ctx context.Context, batch []*domain.Message, out *segmentOutcome) error {
	size := 0
	for _, msg := range batch {
		size += msg.Size()
	}
	if err := w.gate.WaitRecords(ctx, len(batch)); err != nil {
		return err
	}
	if err := w.gate.WaitBytes(ctx, size); err != nil {
		return err
	}

	opCtx, cancel := w.operationContext(ctx)
	defer cancel()
	offsets, err := w.producer.ProduceBatch(opCtx, w.plan.targetTopic, w.plan.partition, batch)
	if err != nil {
		return err
	}
	if len(offsets) != len(batch) {
		return apperrors.New(apperrors.ErrCodeInternal,
			fmt.Sprintf("producer acknowledged %d of %d records", len(offsets), len(batch)))
	}

	for i, msg := range batch {
		out.mappings = domain.AppendRange(out.mappings, domain.OffsetRange{
			SourceStart: msg.Offset,
			TargetStart: offsets[i],
			Count:       1,
		})
	}
	out.records += int64(len(batch))
	out.bytes += int64(size)
	return nil
}
