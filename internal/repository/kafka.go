package repository

import (
	"context"
	"time"

	"github.com/quantica-technologies/kafka-backup-operator/internal/domain"
)

// KafkaRepository defines operations for interacting with Kafka
type KafkaRepository interface {
	// Consumer operations
	CreateConsumer(ctx context.Context, cluster *domain.KafkaCluster, config ConsumerConfig) (Consumer, error)

	// Producer operations
	CreateProducer(ctx context.Context, cluster *domain.KafkaCluster, config ProducerConfig) (Producer, error)

	// Admin operations
	CreateAdmin(ctx context.Context, cluster *domain.KafkaCluster) (Admin, error)

	// Health check
	HealthCheck(ctx context.Context, cluster *domain.KafkaCluster) error
}

// Consumer reads bounded ranges of partitions
type Consumer interface {
	// ReadPartition returns a reader over [start, end). Next returns io.EOF
	// once the range is exhausted.
	ReadPartition(ctx context.Context, topic string, partition int32, start, end int64) (PartitionReader, error)

	// Close closes the consumer
	Close() error
}

// PartitionReader iterates records of one partition
type PartitionReader interface {
	Next(ctx context.Context) (*domain.Message, error)
	Close() error
}

// Producer defines operations for producing messages
type Producer interface {
	// ProduceBatch writes messages to one partition in order and returns the
	// offsets the broker assigned.
	ProduceBatch(ctx context.Context, topic string, partition int32, messages []*domain.Message) ([]int64, error)

	// Close closes the producer
	Close() error
}

// Admin defines admin operations
type Admin interface {
	// ListTopics lists all topics
	ListTopics(ctx context.Context) ([]*domain.Topic, error)

	// DescribeTopic gets topic details
	DescribeTopic(ctx context.Context, name string) (*domain.Topic, error)

	// CreateTopic creates a new topic. An existing topic is not an error.
	CreateTopic(ctx context.Context, topic *domain.Topic) error

	// GetPartitions gets partitions for a topic
	GetPartitions(ctx context.Context, topic string) ([]int32, error)

	// GetOffsets gets the earliest retained offset and the high-water mark
	GetOffsets(ctx context.Context, topic string, partition int32) (low, high int64, err error)

	// GetOffsetForTime returns the earliest offset whose timestamp is at or
	// after ts, or -1 when there is none
	GetOffsetForTime(ctx context.Context, topic string, partition int32, ts time.Time) (int64, error)

	// FetchGroupOffsets returns committed offsets of a group. Nil topics
	// means every topic the group has committed.
	FetchGroupOffsets(ctx context.Context, group string, topics []string) (domain.GroupOffsets, error)

	// CommitGroupOffsets sets committed offsets, moving backwards if needed
	CommitGroupOffsets(ctx context.Context, group string, offsets domain.GroupOffsets) error

	// GroupState returns the coordinator state (Empty, Stable, Dead, ...)
	GroupState(ctx context.Context, group string) (string, error)

	// Close closes the admin client
	Close() error
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	FetchIdleTimeout time.Duration
	MaxFetchBytes    int32
}

// ProducerConfig holds producer configuration
type ProducerConfig struct {
	MaxRetries  int
	Compression string
	Idempotent  bool
}
