package kafka

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/IBM/sarama"

	"github.com/quantica-technologies/kafka-backup-operator/internal/domain"
	"github.com/quantica-technologies/kafka-backup-operator/internal/repository"
	apperrors "github.com/quantica-technologies/kafka-backup-operator/pkg/errors"
)

const defaultFetchIdleTimeout = 10 * time.Second

// Consumer wraps Sarama consumer
type Consumer struct {
	client      sarama.Client
	consumer    sarama.Consumer
	idleTimeout time.Duration
}

// ReadPartition starts a partition consumer at start. Records at or beyond
// end are never returned.
func (c *Consumer) ReadPartition(ctx context.Context, topic string, partition int32, start, end int64) (repository.PartitionReader, error) {
	if start >= end {
		return &partitionReader{next: start, end: end}, nil
	}

	pc, err := c.consumer.ConsumePartition(topic, partition, start)
	if err != nil {
		return nil, classify(err, "failed to consume %s/%d from offset %d", topic, partition, start)
	}

	return &partitionReader{
		client:      c.client,
		pc:          pc,
		topic:       topic,
		partition:   partition,
		next:        start,
		end:         end,
		idleTimeout: c.idleTimeout,
	}, nil
}

func (c *Consumer) Close() error {
	if c.consumer != nil {
		c.consumer.Close()
	}
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

type partitionReader struct {
	client      sarama.Client
	pc          sarama.PartitionConsumer
	topic       string
	partition   int32
	next        int64
	end         int64
	idleTimeout time.Duration
}

// Next returns io.EOF once the range is exhausted. Offsets can be skipped
// (compaction, transaction markers), so when the consumer goes idle below end
// the reader asks the leader directly whether anything is left to deliver.
// An idle consumer with records still pending is a stall and fails with a
// transient error.
func (r *partitionReader) Next(ctx context.Context) (*domain.Message, error) {
	if r.next >= r.end || r.pc == nil {
		return nil, io.EOF
	}

	idle := time.NewTimer(r.idleTimeout)
	defer idle.Stop()

	for {
		select {
		case msg, ok := <-r.pc.Messages():
			if !ok {
				return nil, r.closed()
			}
			if msg.Offset < r.next {
				continue
			}
			if msg.Offset >= r.end {
				r.next = r.end
				return nil, io.EOF
			}
			r.next = msg.Offset + 1
			return convertMessage(msg), nil

		case err, ok := <-r.pc.Errors():
			if !ok {
				return nil, r.closed()
			}
			return nil, classify(err, "failed to read %s/%d", r.topic, r.partition)

		case <-idle.C:
			if err := r.confirmEnd(); err != nil {
				return nil, err
			}
			r.next = r.end
			return nil, io.EOF

		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (r *partitionReader) closed() error {
	return apperrors.Transient(io.ErrUnexpectedEOF,
		fmt.Sprintf("partition consumer for %s/%d closed at offset %d", r.topic, r.partition, r.next))
}

// confirmEnd fetches from the partition leader at the reader position and
// returns nil only when the log holds no data record in [next, end).
func (r *partitionReader) confirmEnd() error {
	stalled := func(cause error) error {
		return apperrors.Transient(cause, fmt.Sprintf("consumer of %s/%d stalled at offset %d below %d", r.topic, r.partition, r.next, r.end))
	}
	if r.client == nil {
		return stalled(sarama.ErrNotConnected)
	}

	leader, err := r.client.Leader(r.topic, r.partition)
	if err != nil {
		return classify(err, "failed to find the leader of %s/%d", r.topic, r.partition)
	}

	conf := r.client.Config()
	req := newFetchRequest(conf)
	req.AddBlock(r.topic, r.partition, r.next, conf.Consumer.Fetch.Default, -1)

	res, err := leader.Fetch(req)
	if err != nil {
		return classify(err, "failed to fetch %s/%d at offset %d", r.topic, r.partition, r.next)
	}
	block := res.GetBlock(r.topic, r.partition)
	if block == nil {
		return stalled(sarama.ErrIncompleteResponse)
	}

	switch block.Err {
	case sarama.ErrNoError:
	case sarama.ErrOffsetOutOfRange:
		// deleted by retention while the run was in flight
		oldest, err := r.client.GetOffset(r.topic, r.partition, sarama.OffsetOldest)
		if err != nil {
			return classify(err, "failed to get the log start offset of %s/%d", r.topic, r.partition)
		}
		if oldest >= r.end {
			return nil
		}
		return stalled(block.Err)
	default:
		return classify(block.Err, "failed to fetch %s/%d at offset %d", r.topic, r.partition, r.next)
	}

	covered := r.next
	for _, records := range block.RecordsSet {
		next, pending := scanRecords(records, r.next, r.end)
		if pending {
			return stalled(context.DeadlineExceeded)
		}
		if next > covered {
			covered = next
		}
	}
	if covered < r.end {
		return stalled(context.DeadlineExceeded)
	}
	return nil
}

// scanRecords returns the offset following the last one covered by records
// and whether a data record in [from, end) is among them. A batch cut short
// by the fetch size is reported as pending when it may reach into the range.
func scanRecords(records *sarama.Records, from, end int64) (next int64, pending bool) {
	if records == nil {
		return 0, false
	}
	inRange := func(off int64) bool { return off >= from && off < end }

	if batch := records.RecordBatch; batch != nil {
		next = batch.LastOffset() + 1
		if batch.PartialTrailingRecord && batch.FirstOffset < end && next > from {
			return next, true
		}
		for _, rec := range batch.Records {
			off := batch.FirstOffset + rec.OffsetDelta
			if off+1 > next {
				next = off + 1
			}
			if !batch.Control && inRange(off) {
				pending = true
			}
		}
		return next, pending
	}

	if set := records.MsgSet; set != nil {
		for _, block := range set.Messages {
			inner := block.Messages()
			for _, m := range inner {
				off := m.Offset
				if block.Msg != nil && block.Msg.Set != nil && block.Msg.Version >= 1 {
					// inner offsets of a compressed v1 wrapper are relative
					off = block.Offset - inner[len(inner)-1].Offset + m.Offset
				}
				if off+1 > next {
					next = off + 1
				}
				if inRange(off) {
					pending = true
				}
			}
		}
		if set.PartialTrailingMessage && next < end {
			pending = true
		}
	}
	return next, pending
}

// newFetchRequest builds a fetch with the same protocol version the sarama
// consumer would use for conf.
func newFetchRequest(conf *sarama.Config) *sarama.FetchRequest {
	req := &sarama.FetchRequest{
		MinBytes:    1,
		MaxWaitTime: int32(conf.Consumer.MaxWaitTime / time.Millisecond),
	}
	v := conf.Version
	switch {
	case v.IsAtLeast(sarama.V2_3_0_0):
		req.Version = 11
	case v.IsAtLeast(sarama.V2_1_0_0):
		req.Version = 10
	case v.IsAtLeast(sarama.V2_0_0_0):
		req.Version = 8
	case v.IsAtLeast(sarama.V1_1_0_0):
		req.Version = 7
	case v.IsAtLeast(sarama.V1_0_0_0):
		req.Version = 6
	case v.IsAtLeast(sarama.V0_11_0_0):
		req.Version = 5
	case v.IsAtLeast(sarama.V0_10_1_0):
		req.Version = 3
	case v.IsAtLeast(sarama.V0_10_0_0):
		req.Version = 2
	case v.IsAtLeast(sarama.V0_9_0_0):
		req.Version = 1
	}
	if req.Version >= 3 {
		req.MaxBytes = sarama.MaxResponseSize
	}
	if req.Version >= 4 {
		req.Isolation = conf.Consumer.IsolationLevel
	}
	if req.Version >= 7 {
		req.SessionID = 0
		req.SessionEpoch = -1
	}
	return req
}

func (r *partitionReader) Close() error {
	if r.pc == nil {
		return nil
	}
	return r.pc.Close()
}

func convertMessage(msg *sarama.ConsumerMessage) *domain.Message {
	var headers []domain.Header
	if len(msg.Headers) > 0 {
		headers = make([]domain.Header, len(msg.Headers))
		for i, h := range msg.Headers {
			headers[i] = domain.Header{
				Key:   string(h.Key),
				Value: h.Value,
			}
		}
	}

	return &domain.Message{
		Offset:    msg.Offset,
		Partition: msg.Partition,
		Key:       msg.Key,
		Value:     msg.Value,
		Timestamp: msg.Timestamp,
		Headers:   headers,
	}
}
