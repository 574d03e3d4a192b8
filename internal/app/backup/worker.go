package backup

import (
	"bytes"
	"context"
	"errors"
	"io"
	"time"

	"github.com/quantica-technologies/kafka-backup-operator/internal/domain"
	"github.com/quantica-technologies/kafka-backup-operator/internal/repository"
	apperrors "github.com/quantica-technologies/kafka-backup-operator/pkg/errors"
	"github.com/quantica-technologies/kafka-backup-operator/pkg/logger"
	"github.com/quantica-technologies/kafka-backup-operator/pkg/ratelimit"
	"github.com/quantica-technologies/kafka-backup-operator/pkg/utils"
)

// partitionState is the durable progress of one partition, rebuilt from the
// checkpoint chain.
type partitionState struct {
	// cursor is the next offset to read
	cursor   int64
	seq      int
	records  int64
	bytes    int64
	done     bool
	segments []domain.SegmentMetadata
	lastSave time.Time
}

func freshState(rng domain.PartitionRange) *partitionState {
	return &partitionState{cursor: rng.Low, done: rng.Empty()}
}

// walkChain replays the checkpoints of one partition in segment order and
// stops at the first one that does not continue the previous. Checkpoints
// left behind by an earlier attempt with different segment boundaries are
// therefore ignored.
func walkChain(rng domain.PartitionRange, chain []*domain.Checkpoint) *partitionState {
	st := freshState(rng)
	if st.done {
		return st
	}
	for _, cp := range chain {
		if cp.SegmentID != st.seq {
			break
		}
		if cp.Segment != nil {
			if cp.Segment.StartOffset != st.cursor || cp.Segment.Sequence != cp.SegmentID {
				break
			}
			st.segments = append(st.segments, *cp.Segment)
		} else if !cp.Done {
			break
		}
		st.cursor = cp.Offset + 1
		st.seq++
		st.records = cp.Records
		st.bytes = cp.BytesWritten
		st.lastSave = cp.WrittenAt
		if cp.Done {
			st.done = true
			break
		}
	}
	return st
}

// Worker copies one partition range into segments
type Worker struct {
	runID     string
	rng       domain.PartitionRange
	req       *domain.BackupRequest
	codec     utils.Codec
	consumer  repository.Consumer
	admin     repository.Admin
	stores    *repository.Stores
	gate      *ratelimit.Gate
	state     *partitionState
	onSegment func(rng domain.PartitionRange, seg *domain.SegmentMetadata, done bool)
	now       func() time.Time
	logger    logger.Logger
}

// segmentBuilder accumulates the records of the segment being cut
type segmentBuilder struct {
	start    int64
	opened   time.Time
	messages []*domain.Message
	size     int
}

func (b *segmentBuilder) add(msg *domain.Message) {
	b.messages = append(b.messages, msg)
	b.size += msg.Size()
}

func (b *segmentBuilder) full(req *domain.BackupRequest, now time.Time) bool {
	if len(b.messages) >= req.SegmentMaxRecords || b.size >= req.SegmentMaxBytes {
		return true
	}
	return req.CheckpointEnabled && now.Sub(b.opened) >= req.CheckpointInterval
}

// Run reads from the partition cursor up to the target, flushing a segment
// and a checkpoint whenever one is full. A failed Run leaves every flushed
// segment committed, so the next attempt continues from the cursor.
func (w *Worker) Run(ctx context.Context) error {
	if w.state.done {
		return nil
	}

	from := w.state.cursor
	low, _, err := w.admin.GetOffsets(ctx, w.rng.Topic, w.rng.Partition)
	if err != nil {
		return err
	}
	if from < low {
		w.logger.Warn("Records below the log start offset were deleted before they were copied",
			"cursor", from, "low", low)
		from = low
	}

	if from < w.rng.Target {
		if err := w.copyRange(ctx, from); err != nil {
			return err
		}
	}

	if !w.state.done {
		return w.markDone(ctx)
	}
	return nil
}

func (w *Worker) copyRange(ctx context.Context, from int64) error {
	reader, err := w.consumer.ReadPartition(ctx, w.rng.Topic, w.rng.Partition, from, w.rng.Target)
	if err != nil {
		return err
	}
	defer reader.Close()

	seg := &segmentBuilder{start: w.state.cursor, opened: w.now()}
	for {
		msg, err := reader.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}

		if err := w.gate.WaitRecords(ctx, 1); err != nil {
			return err
		}
		if err := w.gate.WaitBytes(ctx, msg.Size()); err != nil {
			return err
		}
		seg.add(msg)

		if seg.full(w.req, w.now()) {
			if err := w.flush(ctx, seg, msg.Offset >= w.rng.Target-1); err != nil {
				return err
			}
			seg = &segmentBuilder{start: msg.Offset + 1, opened: w.now()}
		}
	}

	if len(seg.messages) > 0 {
		last := seg.messages[len(seg.messages)-1].Offset
		return w.flush(ctx, seg, last >= w.rng.Target-1)
	}
	return nil
}

func (w *Worker) operationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if timeout := w.req.Breaker.OperationTimeout; timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}

// flush stores the segment and then its checkpoint.
func (w *Worker) flush(ctx context.Context, seg *segmentBuilder, done bool) error {
	payload, err := domain.MarshalSegment(seg.messages)
	if err != nil {
		return err
	}
	compressed, err := w.codec.Compress(payload)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to compress segment")
	}

	meta := domain.SegmentMetadata{
		Topic:       w.rng.Topic,
		Partition:   w.rng.Partition,
		Sequence:    w.state.seq,
		StartOffset: seg.start,
		EndOffset:   seg.messages[len(seg.messages)-1].Offset,
		Records:     int64(len(seg.messages)),
		SizeBytes:   int64(len(compressed)),
		Key:         domain.SegmentKey(w.runID, w.rng.Topic, w.rng.Partition, w.state.seq, utils.Extension(w.codec.Name())),
		Checksum:    utils.Checksum(compressed),
		Compression: w.codec.Name(),
	}
	for i, msg := range seg.messages {
		ts := msg.Timestamp.UTC()
		if i == 0 || ts.Before(meta.MinTimestamp) {
			meta.MinTimestamp = ts
		}
		if i == 0 || ts.After(meta.MaxTimestamp) {
			meta.MaxTimestamp = ts
		}
	}

	opCtx, cancel := w.operationContext(ctx)
	defer cancel()

	err = w.stores.Objects.Put(opCtx, meta.Key, bytes.NewReader(compressed), &repository.ObjectMetadata{
		Key:         meta.Key,
		Size:        meta.SizeBytes,
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return err
	}

	cp := &domain.Checkpoint{
		RunID:        w.runID,
		Topic:        w.rng.Topic,
		Partition:    w.rng.Partition,
		Offset:       meta.EndOffset,
		SegmentID:    w.state.seq,
		BytesWritten: w.state.bytes + meta.SizeBytes,
		Records:      w.state.records + meta.Records,
		Done:         done,
		Segment:      &meta,
		WrittenAt:    w.now().UTC(),
	}
	if err := w.stores.Checkpoints.Save(opCtx, cp); err != nil {
		return err
	}

	w.state.cursor = meta.EndOffset + 1
	w.state.seq++
	w.state.records = cp.Records
	w.state.bytes = cp.BytesWritten
	w.state.done = done
	w.state.segments = append(w.state.segments, meta)
	w.state.lastSave = cp.WrittenAt

	w.logger.Debug("Segment flushed", "segment", meta.Sequence, "start", meta.StartOffset, "end", meta.EndOffset, "records", meta.Records)
	w.onSegment(w.rng, &meta, done)
	return nil
}

// markDone closes a partition once the reader has confirmed that the rest of
// the range holds no records, such as a tail of transaction markers or one
// compacted away.
func (w *Worker) markDone(ctx context.Context) error {
	opCtx, cancel := w.operationContext(ctx)
	defer cancel()

	cp := &domain.Checkpoint{
		RunID:        w.runID,
		Topic:        w.rng.Topic,
		Partition:    w.rng.Partition,
		Offset:       w.rng.Target - 1,
		SegmentID:    w.state.seq,
		BytesWritten: w.state.bytes,
		Records:      w.state.records,
		Done:         true,
		WrittenAt:    w.now().UTC(),
	}
	if err := w.stores.Checkpoints.Save(opCtx, cp); err != nil {
		return err
	}
	w.state.cursor = w.rng.Target
	w.state.seq++
	w.state.done = true
	w.state.lastSave = cp.WrittenAt
	w.onSegment(w.rng, nil, true)
	return nil
}
