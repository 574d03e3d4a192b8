package domain

import (
	"sort"
	"strings"
	"time"

	apperrors "github.com/quantica-technologies/kafka-backup-operator/pkg/errors"
)

// GroupOffsets maps topic -> partition -> committed offset
type GroupOffsets map[string]map[int32]int64

// Set records one offset.
func (g GroupOffsets) Set(topic string, partition int32, offset int64) {
	if g[topic] == nil {
		g[topic] = make(map[int32]int64)
	}
	g[topic][partition] = offset
}

// Count returns the number of partitions recorded.
func (g GroupOffsets) Count() int {
	n := 0
	for _, parts := range g {
		n += len(parts)
	}
	return n
}

// Equal compares two offset sets exactly.
func (g GroupOffsets) Equal(other GroupOffsets) bool {
	if g.Count() != other.Count() {
		return false
	}
	for topic, parts := range g {
		for p, off := range parts {
			got, ok := other[topic][p]
			if !ok || got != off {
				return false
			}
		}
	}
	return true
}

// OffsetSnapshot is captured before a mutating operation and never modified.
type OffsetSnapshot struct {
	ID        string                  `json:"id"`
	CreatedAt time.Time               `json:"createdAt"`
	Source    string                  `json:"source,omitempty"`
	Groups    map[string]GroupOffsets `json:"groups"`
}

// GroupIDs returns the snapshotted groups in sorted order.
func (s *OffsetSnapshot) GroupIDs() []string {
	ids := make([]string, 0, len(s.Groups))
	for id := range s.Groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// OffsetRange maps a run of consecutive source offsets to the offsets the
// same records received on the target.
type OffsetRange struct {
	SourceStart int64 `json:"sourceStart"`
	TargetStart int64 `json:"targetStart"`
	Count       int64 `json:"count"`
}

// OffsetMapping is written by a restore and read by the from-mapping reset
// strategy.
type OffsetMapping struct {
	RestoreID string    `json:"restoreId"`
	BackupID  string    `json:"backupId"`
	CreatedAt time.Time `json:"createdAt"`
	// Partitions is keyed by target topic.
	Partitions map[string]map[int32][]OffsetRange `json:"partitions"`
	// SourceTopics maps target topic -> source topic.
	SourceTopics map[string]string `json:"sourceTopics"`
	// GroupOffsets are committed source offsets captured with the backup.
	GroupOffsets map[string]GroupOffsets `json:"groupOffsets,omitempty"`
}

// NewOffsetMapping returns an empty mapping.
func NewOffsetMapping(restoreID, backupID string) *OffsetMapping {
	return &OffsetMapping{
		RestoreID:    restoreID,
		BackupID:     backupID,
		Partitions:   make(map[string]map[int32][]OffsetRange),
		SourceTopics: make(map[string]string),
		GroupOffsets: make(map[string]GroupOffsets),
	}
}

// Add appends a range to a target partition, merging it into the previous
// one when both are contiguous on source and target.
func (m *OffsetMapping) Add(sourceTopic, targetTopic string, partition int32, r OffsetRange) {
	if r.Count <= 0 {
		return
	}
	m.SourceTopics[targetTopic] = sourceTopic
	if m.Partitions[targetTopic] == nil {
		m.Partitions[targetTopic] = make(map[int32][]OffsetRange)
	}
	m.Partitions[targetTopic][partition] = AppendRange(m.Partitions[targetTopic][partition], r)
}

// AppendRange appends r to ranges, extending the last range instead when r
// continues it on both sides.
func AppendRange(ranges []OffsetRange, r OffsetRange) []OffsetRange {
	if r.Count <= 0 {
		return ranges
	}
	if n := len(ranges); n > 0 {
		last := &ranges[n-1]
		if last.SourceStart+last.Count == r.SourceStart && last.TargetStart+last.Count == r.TargetStart {
			last.Count += r.Count
			return ranges
		}
	}
	return append(ranges, r)
}

// Normalize sorts ranges by source offset.
func (m *OffsetMapping) Normalize() {
	for _, parts := range m.Partitions {
		for p, ranges := range parts {
			sort.Slice(ranges, func(i, j int) bool { return ranges[i].SourceStart < ranges[j].SourceStart })
			parts[p] = ranges
		}
	}
}

// Translate converts a committed source offset into the target offset a
// consumer should resume from. An offset inside a range maps linearly; one
// falling before or between ranges maps to the start of the next range; one
// beyond every range maps to the end of the last. ok is false when nothing
// was restored for the partition.
func (m *OffsetMapping) Translate(targetTopic string, partition int32, source int64) (int64, bool) {
	ranges := m.Partitions[targetTopic][partition]
	if len(ranges) == 0 {
		return 0, false
	}
	for _, r := range ranges {
		if source < r.SourceStart {
			return r.TargetStart, true
		}
		if source < r.SourceStart+r.Count {
			return r.TargetStart + (source - r.SourceStart), true
		}
	}
	last := ranges[len(ranges)-1]
	return last.TargetStart + last.Count, true
}

// TranslateGroup maps every source offset of group onto the target topics.
func (m *OffsetMapping) TranslateGroup(group string) GroupOffsets {
	src := m.GroupOffsets[group]
	out := make(GroupOffsets)
	for target, source := range m.SourceTopics {
		for p, off := range src[source] {
			if t, ok := m.Translate(target, p, off); ok {
				out.Set(target, p, t)
			}
		}
	}
	return out
}

// ResetStrategy selects how target offsets are computed
type ResetStrategy string

const (
	ResetToEarliest  ResetStrategy = "to-earliest"
	ResetToLatest    ResetStrategy = "to-latest"
	ResetToTimestamp ResetStrategy = "to-timestamp"
	ResetToOffset    ResetStrategy = "to-offset"
	ResetFromMapping ResetStrategy = "from-mapping"
)

// ParseResetStrategy accepts the kafka-consumer-groups spellings "earliest"
// and "latest" as well as the canonical names.
func ParseResetStrategy(s string) ResetStrategy {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "earliest", string(ResetToEarliest):
		return ResetToEarliest
	case "latest", string(ResetToLatest):
		return ResetToLatest
	}
	return ResetStrategy(s)
}

// DefaultParallelism bounds concurrent group operations when unset
const DefaultParallelism = 50

// OffsetResetRequest is everything one reset needs, already resolved
type OffsetResetRequest struct {
	Name      string
	Namespace string

	Cluster *KafkaCluster
	Storage *StorageConfig

	Groups    []string
	Topics    []string
	Strategy  ResetStrategy
	Timestamp *time.Time
	Offset    *int64

	MappingPath string

	Parallelism         int
	DryRun              bool
	ContinueOnError     bool
	SnapshotBeforeReset bool
	SnapshotID          string
}

// Validate checks the request before any I/O happens.
func (r *OffsetResetRequest) Validate() error {
	if len(r.Groups) == 0 {
		return apperrors.Configuration("At least one consumer group must be specified")
	}
	switch r.Strategy {
	case ResetToEarliest, ResetToLatest:
	case ResetToTimestamp:
		if r.Timestamp == nil {
			return apperrors.Configuration("resetTimestamp is required when using to-timestamp strategy")
		}
	case ResetToOffset:
		if r.Offset == nil {
			return apperrors.Configuration("resetOffset is required when using to-offset strategy")
		}
	case ResetFromMapping:
		if r.MappingPath == "" {
			return apperrors.Configuration("offsetMappingRef is required when using from-mapping strategy")
		}
	default:
		return apperrors.Configuration("unsupported reset strategy %q", r.Strategy)
	}
	if r.Parallelism < 0 {
		return apperrors.Configuration("parallelism must be greater than 0")
	}
	if r.Strategy != ResetFromMapping && len(r.Topics) == 0 {
		return apperrors.Configuration("At least one topic must be specified")
	}
	if err := r.Cluster.Validate(); err != nil {
		return err
	}
	if r.needsStorage() {
		return r.Storage.Validate()
	}
	return nil
}

func (r *OffsetResetRequest) needsStorage() bool {
	return r.Strategy == ResetFromMapping || (r.SnapshotBeforeReset && !r.DryRun)
}

// GroupResult is the outcome for one consumer group
type GroupResult struct {
	GroupID         string
	Success         bool
	Error           string
	PartitionsReset int
	Offsets         GroupOffsets
}

// OffsetResetResult summarises a reset
type OffsetResetResult struct {
	GroupsTotal  int
	GroupsReset  int
	GroupsFailed int
	DryRun       bool
	Snapshot     *SnapshotRef
	GroupResults []GroupResult
	Duration     time.Duration
}

// OffsetRollbackRequest restores offsets from a snapshot
type OffsetRollbackRequest struct {
	Name      string
	Namespace string

	Cluster *KafkaCluster
	Storage *StorageConfig

	SnapshotID   string
	SnapshotPath string
	Groups       []string

	Parallelism         int
	DryRun              bool
	VerifyAfterRollback bool
}

// Validate checks the request before any I/O happens.
func (r *OffsetRollbackRequest) Validate() error {
	if r.SnapshotID == "" && r.SnapshotPath == "" {
		return apperrors.Configuration("Either snapshot name or path must be specified")
	}
	if r.Parallelism < 0 {
		return apperrors.Configuration("parallelism must be greater than 0")
	}
	if err := r.Cluster.Validate(); err != nil {
		return err
	}
	return r.Storage.Validate()
}

// Verification compares committed offsets against the snapshot after a rollback
type Verification struct {
	AllMatched       bool
	TotalGroups      int
	MatchedGroups    int
	MismatchedGroups []string
}

// OffsetRollbackResult summarises a rollback
type OffsetRollbackResult struct {
	SnapshotID       string
	GroupsRolledBack int
	GroupsFailed     int
	DryRun           bool
	GroupResults     []GroupResult
	Verification     *Verification
	Duration         time.Duration
}
