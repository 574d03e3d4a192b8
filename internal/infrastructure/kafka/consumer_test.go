package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/go-cmp/cmp"

	apperrors "github.com/quantica-technologies/kafka-backup-operator/pkg/errors"
)

const testTopic = "orders"

// newMockConsumer points a Consumer at a single mock broker leading
// orders/0, whose log spans [oldest, newest).
func newMockConsumer(t *testing.T, fetch sarama.MockResponse, oldest, newest int64) *Consumer {
	t.Helper()

	broker := sarama.NewMockBroker(t, 1)
	t.Cleanup(broker.Close)
	broker.SetHandlerByMap(map[string]sarama.MockResponse{
		"MetadataRequest": sarama.NewMockMetadataResponse(t).
			SetBroker(broker.Addr(), broker.BrokerID()).
			SetLeader(testTopic, 0, broker.BrokerID()),
		"OffsetRequest": sarama.NewMockOffsetResponse(t).
			SetOffset(testTopic, 0, sarama.OffsetOldest, oldest).
			SetOffset(testTopic, 0, sarama.OffsetNewest, newest),
		"FetchRequest": fetch,
	})

	conf := sarama.NewConfig()
	conf.Consumer.Return.Errors = true
	client, err := sarama.NewClient([]string{broker.Addr()}, conf)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		t.Fatalf("NewConsumerFromClient returned error: %v", err)
	}

	c := &Consumer{client: client, consumer: consumer, idleTimeout: 300 * time.Millisecond}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func fetchResponse(t *testing.T, hwm int64, offsets ...int64) *sarama.MockFetchResponse {
	res := sarama.NewMockFetchResponse(t, 1)
	for _, off := range offsets {
		res.SetMessage(testTopic, 0, off, sarama.StringEncoder(fmt.Sprintf("order-%d", off)))
	}
	return res.SetHighWaterMark(testTopic, 0, hwm)
}

// drain reads until the reader fails and returns the offsets seen.
func drain(t *testing.T, c *Consumer, start, end int64) ([]int64, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	reader, err := c.ReadPartition(ctx, testTopic, 0, start, end)
	if err != nil {
		t.Fatalf("ReadPartition returned error: %v", err)
	}
	defer reader.Close()

	var offsets []int64
	for {
		msg, err := reader.Next(ctx)
		if err != nil {
			return offsets, err
		}
		offsets = append(offsets, msg.Offset)
	}
}

func TestPartitionReaderStopsAtRangeEnd(t *testing.T) {
	c := newMockConsumer(t, fetchResponse(t, 10, 0, 1, 2, 3, 4, 5, 6, 7, 8, 9), 0, 10)

	got, err := drain(t, c, 2, 6)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("Next returned %v, want io.EOF", err)
	}
	if diff := cmp.Diff([]int64{2, 3, 4, 5}, got); diff != "" {
		t.Errorf("offsets mismatch (-want +got):\n%s", diff)
	}
}

func TestPartitionReaderStallIsTransient(t *testing.T) {
	// the broker reports a high-water mark of 10 but only ever serves 0..4
	c := newMockConsumer(t, fetchResponse(t, 10, 0, 1, 2, 3, 4), 0, 10)

	got, err := drain(t, c, 0, 10)
	if errors.Is(err, io.EOF) {
		t.Fatalf("stalled reader reported the end of the range after %d records", len(got))
	}
	if !apperrors.IsRetryable(err) {
		t.Fatalf("Next returned %v, want a retryable error", err)
	}
	if diff := cmp.Diff([]int64{0, 1, 2, 3, 4}, got); diff != "" {
		t.Errorf("offsets mismatch (-want +got):\n%s", diff)
	}
}

func TestPartitionReaderSkipsCompactedOffsets(t *testing.T) {
	// 3 and 4 were compacted away; the next record lies beyond the range
	c := newMockConsumer(t, fetchResponse(t, 6, 0, 1, 2, 5), 0, 6)

	got, err := drain(t, c, 0, 5)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("Next returned %v, want io.EOF", err)
	}
	if diff := cmp.Diff([]int64{0, 1, 2}, got); diff != "" {
		t.Errorf("offsets mismatch (-want +got):\n%s", diff)
	}
}

func TestPartitionReaderEndsOnTransactionMarker(t *testing.T) {
	res := &sarama.FetchResponse{Version: 10}
	for off := int64(0); off < 4; off++ {
		res.AddRecord(testTopic, 0, nil, sarama.StringEncoder(fmt.Sprintf("order-%d", off)), off)
	}
	res.SetLastOffsetDelta(testTopic, 0, 3)
	res.AddControlRecord(testTopic, 0, 4, 7, sarama.ControlRecordCommit)
	block := res.GetBlock(testTopic, 0)
	block.HighWaterMarkOffset = 5
	block.LastStableOffset = 5

	c := newMockConsumer(t, sarama.NewMockWrapper(res), 0, 5)

	got, err := drain(t, c, 0, 5)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("Next returned %v, want io.EOF", err)
	}
	if diff := cmp.Diff([]int64{0, 1, 2, 3}, got); diff != "" {
		t.Errorf("offsets mismatch (-want +got):\n%s", diff)
	}
}

func TestPartitionReaderEmptyRange(t *testing.T) {
	c := &Consumer{idleTimeout: time.Millisecond}
	reader, err := c.ReadPartition(context.Background(), testTopic, 0, 7, 7)
	if err != nil {
		t.Fatalf("ReadPartition returned error: %v", err)
	}
	if _, err := reader.Next(context.Background()); !errors.Is(err, io.EOF) {
		t.Fatalf("Next returned %v, want io.EOF", err)
	}
}

func TestScanRecords(t *testing.T) {
	data := func(first int64, deltas ...int64) *sarama.Records {
		batch := &sarama.RecordBatch{Version: 2, FirstOffset: first}
		for _, d := range deltas {
			batch.Records = append(batch.Records, &sarama.Record{OffsetDelta: d})
			batch.LastOffsetDelta = int32(d)
		}
		return &sarama.Records{RecordBatch: batch}
	}
	control := data(8, 0)
	control.RecordBatch.Control = true
	partial := data(6, 0)
	partial.RecordBatch.PartialTrailingRecord = true
	partial.RecordBatch.LastOffsetDelta = 4

	tests := []struct {
		name        string
		records     *sarama.Records
		wantNext    int64
		wantPending bool
	}{
		{"data below the range", data(0, 0, 1, 2), 3, false},
		{"data inside the range", data(4, 0, 1), 6, true},
		{"data beyond the range", data(10, 0), 11, false},
		{"transaction marker", control, 9, false},
		{"partial batch reaching into the range", partial, 11, true},
		{"legacy messages", &sarama.Records{MsgSet: &sarama.MessageSet{Messages: []*sarama.MessageBlock{
			{Offset: 3, Msg: &sarama.Message{}},
			{Offset: 5, Msg: &sarama.Message{}},
		}}}, 6, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, pending := scanRecords(tt.records, 4, 10)
			if next != tt.wantNext || pending != tt.wantPending {
				t.Errorf("scanRecords() = %d, %t; want %d, %t", next, pending, tt.wantNext, tt.wantPending)
			}
		})
	}
}

func TestNewFetchRequestMatchesConsumerVersion(t *testing.T) {
	tests := []struct {
		version sarama.KafkaVersion
		want    int16
	}{
		{sarama.V0_10_0_0, 2},
		{sarama.V0_11_0_0, 5},
		{sarama.V2_1_0_0, 10},
		{sarama.V3_6_0_0, 11},
	}
	for _, tt := range tests {
		conf := sarama.NewConfig()
		conf.Version = tt.version
		if got := newFetchRequest(conf).Version; got != tt.want {
			t.Errorf("newFetchRequest(%s).Version = %d, want %d", tt.version, got, tt.want)
		}
	}
}
