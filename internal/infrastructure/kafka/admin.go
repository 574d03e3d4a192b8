package kafka

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/IBM/sarama"

	"github.com/quantica-technologies/kafka-backup-operator/internal/domain"
	apperrors "github.com/quantica-technologies/kafka-backup-operator/pkg/errors"
	"github.com/quantica-technologies/kafka-backup-operator/pkg/logger"
)

// Admin wraps Sarama cluster admin
type Admin struct {
	client sarama.Client
	admin  sarama.ClusterAdmin
	log    logger.Logger
}

func (a *Admin) ListTopics(ctx context.Context) ([]*domain.Topic, error) {
	details, err := a.admin.ListTopics()
	if err != nil {
		return nil, classify(err, "failed to list topics")
	}

	topics := make([]*domain.Topic, 0, len(details))
	for name, detail := range details {
		topics = append(topics, &domain.Topic{
			Name:              name,
			Partitions:        detail.NumPartitions,
			ReplicationFactor: detail.ReplicationFactor,
			Config:            fromConfigEntries(detail.ConfigEntries),
		})
	}
	sort.Slice(topics, func(i, j int) bool { return topics[i].Name < topics[j].Name })

	return topics, nil
}

// DescribeTopic returns partition count, replication factor and the
// topic-level config overrides.
func (a *Admin) DescribeTopic(ctx context.Context, name string) (*domain.Topic, error) {
	metadata, err := a.admin.DescribeTopics([]string{name})
	if err != nil {
		return nil, classify(err, "failed to describe topic %s", name)
	}
	if len(metadata) == 0 {
		return nil, apperrors.NotFound("topic "+name, nil)
	}

	detail := metadata[0]
	if errors.Is(detail.Err, sarama.ErrUnknownTopicOrPartition) {
		return nil, apperrors.NotFound("topic "+name, detail.Err)
	}
	if detail.Err != sarama.ErrNoError {
		return nil, classify(detail.Err, "failed to describe topic %s", name)
	}

	topic := &domain.Topic{
		Name:       detail.Name,
		Partitions: int32(len(detail.Partitions)),
	}
	if len(detail.Partitions) > 0 {
		topic.ReplicationFactor = int16(len(detail.Partitions[0].Replicas))
	}

	entries, err := a.admin.DescribeConfig(sarama.ConfigResource{
		Type: sarama.TopicResource,
		Name: name,
	})
	if err != nil {
		return nil, classify(err, "failed to describe config of topic %s", name)
	}
	for _, entry := range entries {
		if entry.Source != sarama.SourceTopic || entry.Sensitive {
			continue
		}
		if topic.Config == nil {
			topic.Config = make(map[string]string)
		}
		topic.Config[entry.Name] = entry.Value
	}

	return topic, nil
}

func (a *Admin) CreateTopic(ctx context.Context, topic *domain.Topic) error {
	topicDetail := &sarama.TopicDetail{
		NumPartitions:     topic.Partitions,
		ReplicationFactor: topic.ReplicationFactor,
		ConfigEntries:     toConfigEntries(topic.Config),
	}

	err := a.admin.CreateTopic(topic.Name, topicDetail, false)
	if err == nil {
		return nil
	}
	var topicErr *sarama.TopicError
	if errors.As(err, &topicErr) && topicErr.Err == sarama.ErrTopicAlreadyExists {
		return nil
	}
	if errors.Is(err, sarama.ErrTopicAlreadyExists) {
		return nil
	}
	return classify(err, "failed to create topic %s", topic.Name)
}

func (a *Admin) GetPartitions(ctx context.Context, topic string) ([]int32, error) {
	if err := a.client.RefreshMetadata(topic); err != nil {
		return nil, classify(err, "failed to refresh metadata for %s", topic)
	}
	partitions, err := a.client.Partitions(topic)
	if err != nil {
		return nil, classify(err, "failed to list partitions of %s", topic)
	}
	return partitions, nil
}

func (a *Admin) GetOffsets(ctx context.Context, topic string, partition int32) (low, high int64, err error) {
	low, err = a.client.GetOffset(topic, partition, sarama.OffsetOldest)
	if err != nil {
		return 0, 0, classify(err, "failed to get earliest offset of %s/%d", topic, partition)
	}

	high, err = a.client.GetOffset(topic, partition, sarama.OffsetNewest)
	if err != nil {
		return 0, 0, classify(err, "failed to get latest offset of %s/%d", topic, partition)
	}

	return low, high, nil
}

func (a *Admin) GetOffsetForTime(ctx context.Context, topic string, partition int32, ts time.Time) (int64, error) {
	offset, err := a.client.GetOffset(topic, partition, ts.UnixMilli())
	if err != nil {
		return 0, classify(err, "failed to look up offset for %s/%d at %s", topic, partition, ts.Format(time.RFC3339))
	}
	return offset, nil
}

func (a *Admin) FetchGroupOffsets(ctx context.Context, group string, topics []string) (domain.GroupOffsets, error) {
	var request map[string][]int32
	if topics != nil {
		request = make(map[string][]int32, len(topics))
		for _, topic := range topics {
			partitions, err := a.client.Partitions(topic)
			if err != nil {
				return nil, classify(err, "failed to list partitions of %s", topic)
			}
			request[topic] = partitions
		}
	}

	resp, err := a.admin.ListConsumerGroupOffsets(group, request)
	if err != nil {
		return nil, classify(err, "failed to fetch offsets of group %s", group)
	}
	if resp.Err != sarama.ErrNoError {
		return nil, classify(resp.Err, "failed to fetch offsets of group %s", group)
	}

	offsets := make(domain.GroupOffsets)
	for topic, blocks := range resp.Blocks {
		for partition, block := range blocks {
			if block == nil || block.Err != sarama.ErrNoError || block.Offset < 0 {
				continue
			}
			offsets.Set(topic, partition, block.Offset)
		}
	}
	return offsets, nil
}

// CommitGroupOffsets resets offsets through an offset manager, which may move
// them backwards, then reads them back to confirm the broker accepted them.
func (a *Admin) CommitGroupOffsets(ctx context.Context, group string, offsets domain.GroupOffsets) error {
	om, err := sarama.NewOffsetManagerFromClient(group, a.client)
	if err != nil {
		return classify(err, "failed to create offset manager for %s", group)
	}
	defer om.Close()

	var poms []sarama.PartitionOffsetManager
	defer func() {
		for _, pom := range poms {
			pom.AsyncClose()
		}
	}()

	for topic, partitions := range offsets {
		for partition, offset := range partitions {
			pom, err := om.ManagePartition(topic, partition)
			if err != nil {
				return classify(err, "failed to manage %s/%d for group %s", topic, partition, group)
			}
			poms = append(poms, pom)
			pom.ResetOffset(offset, "")
		}
	}

	om.Commit()

	for _, pom := range poms {
		select {
		case cerr := <-pom.Errors():
			return classify(cerr.Err, "failed to commit offsets of group %s", group)
		default:
		}
	}

	topics := make([]string, 0, len(offsets))
	for topic := range offsets {
		topics = append(topics, topic)
	}
	committed, err := a.FetchGroupOffsets(ctx, group, topics)
	if err != nil {
		return err
	}
	for topic, partitions := range offsets {
		for partition, want := range partitions {
			got, ok := committed[topic][partition]
			if !ok || got != want {
				return apperrors.Transient(
					fmt.Errorf("committed offset %d, broker reports %d", want, got),
					fmt.Sprintf("offset commit for group %s on %s/%d was not applied", group, topic, partition),
				)
			}
		}
	}

	a.log.Debug("Committed group offsets", "group", group, "partitions", offsets.Count())
	return nil
}

func (a *Admin) GroupState(ctx context.Context, group string) (string, error) {
	groups, err := a.admin.DescribeConsumerGroups([]string{group})
	if err != nil {
		return "", classify(err, "failed to describe group %s", group)
	}
	if len(groups) == 0 {
		return "Dead", nil
	}
	if groups[0].Err != sarama.ErrNoError {
		return "", classify(groups[0].Err, "failed to describe group %s", group)
	}
	return groups[0].State, nil
}

func (a *Admin) Close() error {
	if a.admin != nil {
		// Closing the admin also closes the client it was built from.
		return a.admin.Close()
	}
	if a.client != nil {
		return a.client.Close()
	}
	return nil
}

func fromConfigEntries(entries map[string]*string) map[string]string {
	if len(entries) == 0 {
		return nil
	}
	out := make(map[string]string, len(entries))
	for k, v := range entries {
		if v != nil {
			out[k] = *v
		}
	}
	return out
}

func toConfigEntries(config map[string]string) map[string]*string {
	if len(config) == 0 {
		return nil
	}
	out := make(map[string]*string, len(config))
	for k, v := range config {
		v := v
		out[k] = &v
	}
	return out
}
