package domain

import (
	"sort"
	"time"
)

// ManifestSchemaVersion is bumped on incompatible manifest changes. Readers
// ignore unknown fields, so additive changes keep the same version.
const ManifestSchemaVersion = 1

// Manifest is written once when a backup run completes. It is the unit a
// restore resolves against.
type Manifest struct {
	SchemaVersion    int                                    `json:"schemaVersion"`
	RunID            string                                 `json:"runId"`
	BackupName       string                                 `json:"backupName"`
	Namespace        string                                 `json:"namespace,omitempty"`
	StartedAt        time.Time                              `json:"startedAt"`
	CompletedAt      time.Time                              `json:"completedAt"`
	Compression      string                                 `json:"compression"`
	CompressionLevel int                                    `json:"compressionLevel,omitempty"`
	Topics           []TopicMetadata                        `json:"topics"`
	Segments         []SegmentMetadata                      `json:"segments"`
	GroupOffsets     map[string]map[string]map[int32]int64 `json:"groupOffsets,omitempty"`
}

// TopicMetadata contains metadata about a backed-up topic
type TopicMetadata struct {
	Name              string            `json:"name"`
	Partitions        int32             `json:"partitions"`
	ReplicationFactor int16             `json:"replicationFactor"`
	Config            map[string]string `json:"config,omitempty"`
}

// SegmentMetadata describes one stored segment object
type SegmentMetadata struct {
	Topic        string    `json:"topic"`
	Partition    int32     `json:"partition"`
	Sequence     int       `json:"sequence"`
	StartOffset  int64     `json:"startOffset"`
	EndOffset    int64     `json:"endOffset"`
	MinTimestamp time.Time `json:"minTimestamp"`
	MaxTimestamp time.Time `json:"maxTimestamp"`
	Records      int64     `json:"records"`
	SizeBytes    int64     `json:"sizeBytes"`
	Key          string    `json:"key"`
	Checksum     string    `json:"checksum"`
	Compression  string    `json:"compression"`
}

// TotalRecords sums records over all segments.
func (m *Manifest) TotalRecords() int64 {
	var n int64
	for _, s := range m.Segments {
		n += s.Records
	}
	return n
}

// TotalBytes sums stored bytes over all segments.
func (m *Manifest) TotalBytes() int64 {
	var n int64
	for _, s := range m.Segments {
		n += s.SizeBytes
	}
	return n
}

// Topic returns the metadata of name, if present.
func (m *Manifest) Topic(name string) (TopicMetadata, bool) {
	for _, t := range m.Topics {
		if t.Name == name {
			return t, true
		}
	}
	return TopicMetadata{}, false
}

// SegmentsFor returns the segments of one partition in offset order.
func (m *Manifest) SegmentsFor(topic string, partition int32) []SegmentMetadata {
	var out []SegmentMetadata
	for _, s := range m.Segments {
		if s.Topic == topic && s.Partition == partition {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartOffset < out[j].StartOffset })
	return out
}

// SortSegments orders segments by topic, partition and offset.
func SortSegments(segments []SegmentMetadata) {
	sort.Slice(segments, func(i, j int) bool {
		a, b := segments[i], segments[j]
		if a.Topic != b.Topic {
			return a.Topic < b.Topic
		}
		if a.Partition != b.Partition {
			return a.Partition < b.Partition
		}
		return a.StartOffset < b.StartOffset
	})
}

// Overlaps reports whether any record of the segment may fall inside
// [start, end]. A nil bound is open.
func (s *SegmentMetadata) Overlaps(start, end *time.Time) bool {
	if start != nil && s.MaxTimestamp.Before(*start) {
		return false
	}
	if end != nil && s.MinTimestamp.After(*end) {
		return false
	}
	return true
}

// Within reports whether every record of the segment falls inside [start, end].
func (s *SegmentMetadata) Within(start, end *time.Time) bool {
	if start != nil && s.MinTimestamp.Before(*start) {
		return false
	}
	if end != nil && s.MaxTimestamp.After(*end) {
		return false
	}
	return true
}
