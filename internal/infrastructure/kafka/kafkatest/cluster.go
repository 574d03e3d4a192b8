// Package kafkatest provides an in-memory Kafka cluster that implements the
// repository interfaces, for engine and controller tests.
package kafkatest

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/quantica-technologies/kafka-backup-operator/internal/domain"
	"github.com/quantica-technologies/kafka-backup-operator/internal/repository"
	apperrors "github.com/quantica-technologies/kafka-backup-operator/pkg/errors"
)

type partitionLog struct {
	low     int64
	next    int64
	records []*domain.Message
}

type topicState struct {
	replication int16
	config      map[string]string
	partitions  []*partitionLog
}

// Cluster is a single in-memory cluster. The zero value is not usable; use
// NewCluster.
type Cluster struct {
	mu     sync.Mutex
	topics map[string]*topicState
	groups map[string]domain.GroupOffsets
	states map[string]string

	// ProduceHook runs before every batch; a non-nil error fails the batch.
	ProduceHook func(topic string, partition int32, batch []*domain.Message) error
	// ReadHook runs before every record is returned by a reader.
	ReadHook func(topic string, partition int32, offset int64) error
	// CommitHook runs before offsets of a group are committed.
	CommitHook func(group string, offsets domain.GroupOffsets) error
}

// NewCluster creates an empty cluster
func NewCluster() *Cluster {
	return &Cluster{
		topics: make(map[string]*topicState),
		groups: make(map[string]domain.GroupOffsets),
		states: make(map[string]string),
	}
}

var _ repository.KafkaRepository = (*Cluster)(nil)

// AddTopic creates a topic with empty partitions.
func (c *Cluster) AddTopic(name string, partitions int32, config map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addTopicLocked(name, partitions, 1, config)
}

func (c *Cluster) addTopicLocked(name string, partitions int32, replication int16, config map[string]string) {
	if _, ok := c.topics[name]; ok {
		return
	}
	t := &topicState{replication: replication, config: config}
	for i := int32(0); i < partitions; i++ {
		t.partitions = append(t.partitions, &partitionLog{})
	}
	c.topics[name] = t
}

// Append writes records to a partition, assigning offsets. Timestamps left
// zero are set from ts.
func (c *Cluster) Append(topic string, partition int32, ts time.Time, values ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	log := c.partitionLocked(topic, partition)
	for i, v := range values {
		c.appendLocked(log, partition, &domain.Message{
			Value:     []byte(v),
			Timestamp: ts.Add(time.Duration(i) * time.Millisecond),
		})
	}
}

// AppendMessages writes fully formed records to a partition.
func (c *Cluster) AppendMessages(topic string, partition int32, msgs ...*domain.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	log := c.partitionLocked(topic, partition)
	for _, m := range msgs {
		cp := *m
		c.appendLocked(log, partition, &cp)
	}
}

func (c *Cluster) appendLocked(log *partitionLog, partition int32, msg *domain.Message) int64 {
	msg.Offset = log.next
	msg.Partition = partition
	log.records = append(log.records, msg)
	log.next++
	return msg.Offset
}

// Truncate drops records below low, like retention would.
func (c *Cluster) Truncate(topic string, partition int32, low int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	log := c.partitionLocked(topic, partition)
	kept := log.records[:0]
	for _, r := range log.records {
		if r.Offset >= low {
			kept = append(kept, r)
		}
	}
	log.records = kept
	if low > log.low {
		log.low = low
	}
}

// Records returns a copy of the records in a partition.
func (c *Cluster) Records(topic string, partition int32) []*domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	log := c.partitionLocked(topic, partition)
	out := make([]*domain.Message, len(log.records))
	for i, r := range log.records {
		cp := *r
		out[i] = &cp
	}
	return out
}

// HasTopic reports whether the topic exists.
func (c *Cluster) HasTopic(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.topics[name]
	return ok
}

// SetGroupOffsets replaces the committed offsets of a group.
func (c *Cluster) SetGroupOffsets(group string, offsets domain.GroupOffsets) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.groups[group] = copyOffsets(offsets)
}

// GroupOffsets returns the committed offsets of a group.
func (c *Cluster) GroupOffsets(group string) domain.GroupOffsets {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyOffsets(c.groups[group])
}

// SetGroupState overrides the coordinator state reported for a group.
func (c *Cluster) SetGroupState(group, state string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states[group] = state
}

func (c *Cluster) partitionLocked(topic string, partition int32) *partitionLog {
	t, ok := c.topics[topic]
	if !ok {
		c.addTopicLocked(topic, partition+1, 1, nil)
		t = c.topics[topic]
	}
	for int32(len(t.partitions)) <= partition {
		t.partitions = append(t.partitions, &partitionLog{})
	}
	return t.partitions[partition]
}

func (c *Cluster) lookup(topic string, partition int32) (*partitionLog, error) {
	t, ok := c.topics[topic]
	if !ok || partition < 0 || int(partition) >= len(t.partitions) {
		return nil, apperrors.WithKind(apperrors.ErrNotFound, apperrors.KindConfiguration,
			"unknown topic or partition "+domain.PartitionKey{Topic: topic, Partition: partition}.String())
	}
	return t.partitions[partition], nil
}

func copyOffsets(in domain.GroupOffsets) domain.GroupOffsets {
	out := make(domain.GroupOffsets)
	for topic, partitions := range in {
		for p, o := range partitions {
			out.Set(topic, p, o)
		}
	}
	return out
}

func (c *Cluster) CreateConsumer(ctx context.Context, cluster *domain.KafkaCluster, config repository.ConsumerConfig) (repository.Consumer, error) {
	if err := cluster.Validate(); err != nil {
		return nil, err
	}
	return &consumer{cluster: c}, nil
}

func (c *Cluster) CreateProducer(ctx context.Context, cluster *domain.KafkaCluster, config repository.ProducerConfig) (repository.Producer, error) {
	if err := cluster.Validate(); err != nil {
		return nil, err
	}
	return &producer{cluster: c}, nil
}

func (c *Cluster) CreateAdmin(ctx context.Context, cluster *domain.KafkaCluster) (repository.Admin, error) {
	if err := cluster.Validate(); err != nil {
		return nil, err
	}
	return &admin{cluster: c}, nil
}

func (c *Cluster) HealthCheck(ctx context.Context, cluster *domain.KafkaCluster) error {
	return cluster.Validate()
}

type consumer struct {
	cluster *Cluster
}

func (k *consumer) ReadPartition(ctx context.Context, topic string, partition int32, start, end int64) (repository.PartitionReader, error) {
	k.cluster.mu.Lock()
	defer k.cluster.mu.Unlock()

	log, err := k.cluster.lookup(topic, partition)
	if err != nil {
		return nil, err
	}
	if start < log.low && start < end {
		return nil, apperrors.Configuration("offset %d of %s/%d is out of range", start, topic, partition)
	}

	var records []*domain.Message
	for _, r := range log.records {
		if r.Offset >= start && r.Offset < end {
			cp := *r
			records = append(records, &cp)
		}
	}
	return &reader{cluster: k.cluster, topic: topic, partition: partition, records: records}, nil
}

func (k *consumer) Close() error { return nil }

type reader struct {
	cluster   *Cluster
	topic     string
	partition int32
	records   []*domain.Message
	pos       int
}

func (r *reader) Next(ctx context.Context) (*domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.pos >= len(r.records) {
		return nil, io.EOF
	}
	msg := r.records[r.pos]
	if hook := r.cluster.ReadHook; hook != nil {
		if err := hook(r.topic, r.partition, msg.Offset); err != nil {
			return nil, err
		}
	}
	r.pos++
	return msg, nil
}

func (r *reader) Close() error { return nil }

type producer struct {
	cluster *Cluster
}

func (p *producer) ProduceBatch(ctx context.Context, topic string, partition int32, messages []*domain.Message) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if hook := p.cluster.ProduceHook; hook != nil {
		if err := hook(topic, partition, messages); err != nil {
			return nil, err
		}
	}

	p.cluster.mu.Lock()
	defer p.cluster.mu.Unlock()

	log, err := p.cluster.lookup(topic, partition)
	if err != nil {
		return nil, err
	}
	offsets := make([]int64, len(messages))
	for i, m := range messages {
		cp := *m
		offsets[i] = p.cluster.appendLocked(log, partition, &cp)
	}
	return offsets, nil
}

func (p *producer) Close() error { return nil }

type admin struct {
	cluster *Cluster
}

func (a *admin) ListTopics(ctx context.Context) ([]*domain.Topic, error) {
	a.cluster.mu.Lock()
	defer a.cluster.mu.Unlock()

	topics := make([]*domain.Topic, 0, len(a.cluster.topics))
	for name, t := range a.cluster.topics {
		topics = append(topics, &domain.Topic{
			Name:              name,
			Partitions:        int32(len(t.partitions)),
			ReplicationFactor: t.replication,
			Config:            t.config,
		})
	}
	sort.Slice(topics, func(i, j int) bool { return topics[i].Name < topics[j].Name })
	return topics, nil
}

func (a *admin) DescribeTopic(ctx context.Context, name string) (*domain.Topic, error) {
	a.cluster.mu.Lock()
	defer a.cluster.mu.Unlock()

	t, ok := a.cluster.topics[name]
	if !ok {
		return nil, apperrors.NotFound("topic "+name, nil)
	}
	return &domain.Topic{
		Name:              name,
		Partitions:        int32(len(t.partitions)),
		ReplicationFactor: t.replication,
		Config:            t.config,
	}, nil
}

func (a *admin) CreateTopic(ctx context.Context, topic *domain.Topic) error {
	a.cluster.mu.Lock()
	defer a.cluster.mu.Unlock()
	a.cluster.addTopicLocked(topic.Name, topic.Partitions, topic.ReplicationFactor, topic.Config)
	return nil
}

func (a *admin) GetPartitions(ctx context.Context, topic string) ([]int32, error) {
	a.cluster.mu.Lock()
	defer a.cluster.mu.Unlock()

	t, ok := a.cluster.topics[topic]
	if !ok {
		return nil, apperrors.NotFound("topic "+topic, nil)
	}
	partitions := make([]int32, len(t.partitions))
	for i := range t.partitions {
		partitions[i] = int32(i)
	}
	return partitions, nil
}

func (a *admin) GetOffsets(ctx context.Context, topic string, partition int32) (int64, int64, error) {
	a.cluster.mu.Lock()
	defer a.cluster.mu.Unlock()

	log, err := a.cluster.lookup(topic, partition)
	if err != nil {
		return 0, 0, err
	}
	return log.low, log.next, nil
}

func (a *admin) GetOffsetForTime(ctx context.Context, topic string, partition int32, ts time.Time) (int64, error) {
	a.cluster.mu.Lock()
	defer a.cluster.mu.Unlock()

	log, err := a.cluster.lookup(topic, partition)
	if err != nil {
		return 0, err
	}
	for _, r := range log.records {
		if !r.Timestamp.Before(ts) {
			return r.Offset, nil
		}
	}
	return -1, nil
}

func (a *admin) FetchGroupOffsets(ctx context.Context, group string, topics []string) (domain.GroupOffsets, error) {
	a.cluster.mu.Lock()
	defer a.cluster.mu.Unlock()

	all := a.cluster.groups[group]
	if topics == nil {
		return copyOffsets(all), nil
	}
	out := make(domain.GroupOffsets)
	for _, topic := range topics {
		for p, o := range all[topic] {
			out.Set(topic, p, o)
		}
	}
	return out, nil
}

func (a *admin) CommitGroupOffsets(ctx context.Context, group string, offsets domain.GroupOffsets) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if hook := a.cluster.CommitHook; hook != nil {
		if err := hook(group, offsets); err != nil {
			return err
		}
	}

	a.cluster.mu.Lock()
	defer a.cluster.mu.Unlock()

	current, ok := a.cluster.groups[group]
	if !ok {
		current = make(domain.GroupOffsets)
		a.cluster.groups[group] = current
	}
	for topic, partitions := range offsets {
		for p, o := range partitions {
			current.Set(topic, p, o)
		}
	}
	return nil
}

func (a *admin) GroupState(ctx context.Context, group string) (string, error) {
	a.cluster.mu.Lock()
	defer a.cluster.mu.Unlock()

	if state, ok := a.cluster.states[group]; ok {
		return state, nil
	}
	if _, ok := a.cluster.groups[group]; ok {
		return "Empty", nil
	}
	return "Dead", nil
}

func (a *admin) Close() error { return nil }
