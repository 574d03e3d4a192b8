package kafka

import (
	"context"
	"errors"

	"github.com/IBM/sarama"

	"github.com/quantica-technologies/kafka-backup-operator/internal/domain"
)

// Producer wraps Sarama producer
type Producer struct {
	client   sarama.Client
	producer sarama.SyncProducer
}

// ProduceBatch sends messages to one partition and returns the offsets the
// broker assigned, in input order. Original timestamps and headers are kept.
func (p *Producer) ProduceBatch(ctx context.Context, topic string, partition int32, messages []*domain.Message) ([]int64, error) {
	if len(messages) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	batch := make([]*sarama.ProducerMessage, len(messages))
	for i, msg := range messages {
		batch[i] = convertProducerMessage(topic, partition, msg)
	}

	if err := p.producer.SendMessages(batch); err != nil {
		var perrs sarama.ProducerErrors
		if errors.As(err, &perrs) && len(perrs) > 0 {
			return nil, classify(perrs[0].Err, "failed to produce %d records to %s/%d", len(perrs), topic, partition)
		}
		return nil, classify(err, "failed to produce to %s/%d", topic, partition)
	}

	offsets := make([]int64, len(batch))
	for i, msg := range batch {
		offsets[i] = msg.Offset
	}
	return offsets, nil
}

func (p *Producer) Close() error {
	if p.producer != nil {
		if err := p.producer.Close(); err != nil {
			return err
		}
	}
	if p.client != nil && !p.client.Closed() {
		return p.client.Close()
	}
	return nil
}

func convertProducerMessage(topic string, partition int32, msg *domain.Message) *sarama.ProducerMessage {
	headers := make([]sarama.RecordHeader, len(msg.Headers))
	for i, h := range msg.Headers {
		headers[i] = sarama.RecordHeader{
			Key:   []byte(h.Key),
			Value: h.Value,
		}
	}

	out := &sarama.ProducerMessage{
		Topic:     topic,
		Partition: partition,
		Timestamp: msg.Timestamp,
		Headers:   headers,
	}
	if msg.Key != nil {
		out.Key = sarama.ByteEncoder(msg.Key)
	}
	if msg.Value != nil {
		out.Value = sarama.ByteEncoder(msg.Value)
	}
	return out
}
