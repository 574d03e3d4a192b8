package kafka

import (
	"context"

	"github.com/IBM/sarama"

	"github.com/quantica-technologies/kafka-backup-operator/internal/domain"
	"github.com/quantica-technologies/kafka-backup-operator/internal/repository"
	"github.com/quantica-technologies/kafka-backup-operator/pkg/logger"
)

// Repository implements KafkaRepository using Sarama. Every call opens its
// own client; callers close what they create.
type Repository struct {
	log logger.Logger
}

// NewRepository creates a new Kafka repository
func NewRepository(log logger.Logger) *Repository {
	if log == nil {
		log = logger.NewNop()
	}
	return &Repository{log: log}
}

var _ repository.KafkaRepository = (*Repository)(nil)

func (r *Repository) newClient(cluster *domain.KafkaCluster, tune func(*sarama.Config)) (sarama.Client, error) {
	config, err := buildSaramaConfig(cluster)
	if err != nil {
		return nil, err
	}
	if tune != nil {
		tune(config)
	}
	client, err := sarama.NewClient(cluster.BootstrapServers, config)
	if err != nil {
		return nil, classify(err, "failed to connect to Kafka cluster %s", describeCluster(cluster))
	}
	return client, nil
}

// CreateConsumer creates a Kafka consumer
func (r *Repository) CreateConsumer(
	ctx context.Context,
	cluster *domain.KafkaCluster,
	config repository.ConsumerConfig,
) (repository.Consumer, error) {
	client, err := r.newClient(cluster, func(c *sarama.Config) {
		c.Consumer.Return.Errors = true
		c.Consumer.Offsets.AutoCommit.Enable = false
		if config.MaxFetchBytes > 0 {
			c.Consumer.Fetch.Max = config.MaxFetchBytes
		}
	})
	if err != nil {
		return nil, err
	}

	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		client.Close()
		return nil, classify(err, "failed to create consumer")
	}

	idle := config.FetchIdleTimeout
	if idle <= 0 {
		idle = fetchIdleTimeout(cluster)
	}

	return &Consumer{
		client:      client,
		consumer:    consumer,
		idleTimeout: idle,
	}, nil
}

// CreateProducer creates a Kafka producer. Records are sent to the partition
// set on each message.
func (r *Repository) CreateProducer(
	ctx context.Context,
	cluster *domain.KafkaCluster,
	config repository.ProducerConfig,
) (repository.Producer, error) {
	client, err := r.newClient(cluster, func(c *sarama.Config) {
		c.Producer.Return.Successes = true
		c.Producer.Return.Errors = true
		c.Producer.RequiredAcks = sarama.WaitForAll
		c.Producer.Partitioner = sarama.NewManualPartitioner
		c.Producer.Compression = producerCompression(config.Compression)
		if config.MaxRetries > 0 {
			c.Producer.Retry.Max = config.MaxRetries
		}
		if config.Idempotent {
			c.Producer.Idempotent = true
			c.Net.MaxOpenRequests = 1
		}
	})
	if err != nil {
		return nil, err
	}

	producer, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		client.Close()
		return nil, classify(err, "failed to create producer")
	}

	return &Producer{
		client:   client,
		producer: producer,
	}, nil
}

// CreateAdmin creates a Kafka admin client
func (r *Repository) CreateAdmin(
	ctx context.Context,
	cluster *domain.KafkaCluster,
) (repository.Admin, error) {
	client, err := r.newClient(cluster, func(c *sarama.Config) {
		c.Consumer.Return.Errors = true
		c.Consumer.Offsets.AutoCommit.Enable = false
	})
	if err != nil {
		return nil, err
	}

	admin, err := sarama.NewClusterAdminFromClient(client)
	if err != nil {
		client.Close()
		return nil, classify(err, "failed to create admin")
	}

	return &Admin{
		client: client,
		admin:  admin,
		log:    r.log,
	}, nil
}

// HealthCheck checks Kafka cluster connectivity
func (r *Repository) HealthCheck(ctx context.Context, cluster *domain.KafkaCluster) error {
	client, err := r.newClient(cluster, nil)
	if err != nil {
		return err
	}
	defer client.Close()

	if len(client.Brokers()) == 0 {
		return classify(sarama.ErrOutOfBrokers, "no brokers available in %s", describeCluster(cluster))
	}
	return nil
}

func producerCompression(name string) sarama.CompressionCodec {
	switch name {
	case "gzip":
		return sarama.CompressionGZIP
	case "snappy":
		return sarama.CompressionSnappy
	case "lz4":
		return sarama.CompressionLZ4
	case "zstd":
		return sarama.CompressionZSTD
	default:
		return sarama.CompressionNone
	}
}
