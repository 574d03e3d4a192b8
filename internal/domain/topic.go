package domain

import "fmt"

// Topic represents a Kafka topic
type Topic struct {
	Name              string
	Partitions        int32
	ReplicationFactor int16
	Config            map[string]string
}

// PartitionKey identifies one partition of one topic.
type PartitionKey struct {
	Topic     string `json:"topic"`
	Partition int32  `json:"partition"`
}

func (k PartitionKey) String() string {
	return fmt.Sprintf("%s/%d", k.Topic, k.Partition)
}

// Less orders keys by topic, then partition.
func (k PartitionKey) Less(other PartitionKey) bool {
	if k.Topic != other.Topic {
		return k.Topic < other.Topic
	}
	return k.Partition < other.Partition
}
