package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/quantica-technologies/kafka-backup-operator/internal/domain"
	"github.com/quantica-technologies/kafka-backup-operator/internal/infrastructure/kafka/kafkatest"
	"github.com/quantica-technologies/kafka-backup-operator/internal/repository"
	apperrors "github.com/quantica-technologies/kafka-backup-operator/pkg/errors"
	"github.com/quantica-technologies/kafka-backup-operator/pkg/logger"
	"github.com/quantica-technologies/kafka-backup-operator/pkg/ratelimit"
	"github.com/quantica-technologies/kafka-backup-operator/pkg/utils"
)

// scriptedConsumer serves a fixed list of offsets and then ends with err,
// io.EOF when err is nil.
type scriptedConsumer struct {
	offsets []int64
	err     error
}

func (c *scriptedConsumer) ReadPartition(_ context.Context, topic string, partition int32, start, end int64) (repository.PartitionReader, error) {
	var msgs []*domain.Message
	for _, off := range c.offsets {
		if off >= start && off < end {
			msgs = append(msgs, &domain.Message{
				Offset:    off,
				Partition: partition,
				Value:     []byte(fmt.Sprintf("%s-%d", topic, off)),
				Timestamp: base,
			})
		}
	}
	return &scriptedReader{msgs: msgs, err: c.err}, nil
}

func (c *scriptedConsumer) Close() error { return nil }

type scriptedReader struct {
	msgs []*domain.Message
	err  error
}

func (r *scriptedReader) Next(context.Context) (*domain.Message, error) {
	if len(r.msgs) == 0 {
		if r.err != nil {
			return nil, r.err
		}
		return nil, io.EOF
	}
	msg := r.msgs[0]
	r.msgs = r.msgs[1:]
	return msg, nil
}

func (r *scriptedReader) Close() error { return nil }

func offsetRange(from, to int64) []int64 {
	var out []int64
	for off := from; off < to; off++ {
		out = append(out, off)
	}
	return out
}

func TestWorkerMarksPartitionDone(t *testing.T) {
	type checkpoint struct {
		SegmentID int
		Offset    int64
		Done      bool
		Segment   bool
	}

	tests := []struct {
		name     string
		consumer *scriptedConsumer
		wantErr  bool
		want     []checkpoint
	}{
		{
			name:     "full range",
			consumer: &scriptedConsumer{offsets: offsetRange(0, 10)},
			want: []checkpoint{
				{SegmentID: 0, Offset: 3, Segment: true},
				{SegmentID: 1, Offset: 7, Segment: true},
				{SegmentID: 2, Offset: 9, Done: true, Segment: true},
			},
		},
		{
			name:     "tail without records is closed by a marker",
			consumer: &scriptedConsumer{offsets: offsetRange(0, 6)},
			want: []checkpoint{
				{SegmentID: 0, Offset: 3, Segment: true},
				{SegmentID: 1, Offset: 5, Segment: true},
				{SegmentID: 2, Offset: 9, Done: true},
			},
		},
		{
			name: "stalled reader leaves the partition open",
			consumer: &scriptedConsumer{
				offsets: offsetRange(0, 6),
				err:     apperrors.Transient(errors.New("no records received"), "consumer stalled"),
			},
			wantErr: true,
			want: []checkpoint{
				{SegmentID: 0, Offset: 3, Segment: true},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			cluster := kafkatest.NewCluster()
			cluster.AddTopic("orders", 1, nil)
			cluster.Append("orders", 0, base, "a", "b", "c", "d", "e", "f", "g", "h", "i", "j")

			req := ordersRequest(localStorage(t))
			req.SegmentMaxRecords = 4
			req.ApplyDefaults(base)
			stores := openStores(t, req.Storage)

			admin, err := cluster.CreateAdmin(ctx, req.Cluster)
			if err != nil {
				t.Fatal(err)
			}
			codec, err := utils.NewCodec(utils.CompressionNone, 0)
			if err != nil {
				t.Fatal(err)
			}

			rng := domain.PartitionRange{Topic: "orders", Partition: 0, Low: 0, Target: 10}
			var doneReported bool
			w := &Worker{
				runID:    req.RunID,
				rng:      rng,
				req:      req,
				codec:    codec,
				consumer: tt.consumer,
				admin:    admin,
				stores:   stores,
				gate:     ratelimit.New(ratelimit.Config{BreakerDisabled: true}),
				state:    freshState(rng),
				onSegment: func(_ domain.PartitionRange, _ *domain.SegmentMetadata, done bool) {
					doneReported = doneReported || done
				},
				now:    func() time.Time { return base },
				logger: logger.NewNop(),
			}

			err = w.Run(ctx)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Run() error = %v, wantErr %t", err, tt.wantErr)
			}
			if doneReported == tt.wantErr {
				t.Errorf("done reported = %t", doneReported)
			}
			if w.state.done == tt.wantErr {
				t.Errorf("state done = %t", w.state.done)
			}

			history, err := stores.Checkpoints.History(ctx, req.RunID)
			if err != nil {
				t.Fatalf("History returned error: %v", err)
			}
			var got []checkpoint
			for _, cp := range history {
				got = append(got, checkpoint{SegmentID: cp.SegmentID, Offset: cp.Offset, Done: cp.Done, Segment: cp.Segment != nil})
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("checkpoints mismatch (-want +got):\n%s", diff)
			}

			replayed := walkChain(rng, history)
			if replayed.done != !tt.wantErr {
				t.Errorf("replayed chain done = %t", replayed.done)
			}
		})
	}
}
