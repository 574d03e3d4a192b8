package restore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/quantica-technologies/kafka-backup-operator/internal/domain"
	"github.com/quantica-technologies/kafka-backup-operator/internal/repository"
	apperrors "github.com/quantica-technologies/kafka-backup-operator/pkg/errors"
)

// segmentPlan is one stored segment selected for replay
type segmentPlan struct {
	meta domain.SegmentMetadata
	// filter is set when the segment straddles a PITR bound and its records
	// must be checked one by one
	filter bool
}

// partitionPlan is the ordered work for one target partition
type partitionPlan struct {
	sourceTopic string
	targetTopic string
	partition   int32
	segments    []segmentPlan
}

func (p *partitionPlan) key() domain.PartitionKey {
	return domain.PartitionKey{Topic: p.sourceTopic, Partition: p.partition}
}

// plan is everything Validating decides
type plan struct {
	manifest   *domain.Manifest
	topics     []domain.TopicMetadata
	partitions []*partitionPlan
	segments   int
	// skipped counts records of segments entirely outside the PITR window
	skipped map[string]int64
}

func (p *plan) skippedRecords() int64 {
	var n int64
	for _, c := range p.skipped {
		n += c
	}
	return n
}

// plannedRecords counts the records of every planned segment. Segments that
// straddle a PITR bound are counted whole.
func (p *plan) plannedRecords() int64 {
	var n int64
	for _, pp := range p.partitions {
		for _, sp := range pp.segments {
			n += sp.meta.Records
		}
	}
	return n
}

func (p *plan) topicNames() []string {
	names := make([]string, len(p.topics))
	for i, t := range p.topics {
		names[i] = t.Name
	}
	return names
}

// resolveManifest loads the manifest named by BackupID, or the latest
// completed run of BackupName.
func resolveManifest(ctx context.Context, meta repository.MetadataRepository, req *domain.RestoreRequest) (*domain.Manifest, error) {
	runID := req.BackupID
	if runID == "" {
		runs, err := meta.ListRuns(ctx, req.BackupName)
		if err != nil {
			return nil, err
		}
		for i := len(runs) - 1; i >= 0; i-- {
			if runs[i].Complete {
				runID = runs[i].RunID
				break
			}
		}
		if runID == "" {
			return nil, apperrors.Configuration("no completed backup found for %s", req.BackupName)
		}
	}

	manifest, err := meta.GetManifest(ctx, runID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.Configuration("backup %s has no manifest", runID)
		}
		return nil, err
	}
	return manifest, nil
}

// buildPlan selects segments by topic subset, partition filter and PITR
// window.
func buildPlan(manifest *domain.Manifest, req *domain.RestoreRequest) (*plan, error) {
	for _, topic := range req.Topics {
		if _, ok := manifest.Topic(topic); !ok {
			return nil, apperrors.Configuration("topic %s is not in backup %s", topic, manifest.RunID)
		}
	}

	p := &plan{manifest: manifest, skipped: make(map[string]int64)}
	targets := make(map[string]string)

	start, end := windowBounds(req.PITR)
	for _, topic := range manifest.Topics {
		if !req.ShouldRestoreTopic(topic.Name) {
			continue
		}
		target := req.GetMappedTopicName(topic.Name)
		if other, ok := targets[target]; ok {
			return nil, apperrors.Configuration("topics %s and %s both map to %s", other, topic.Name, target)
		}
		targets[target] = topic.Name
		p.topics = append(p.topics, topic)

		for partition := int32(0); partition < topic.Partitions; partition++ {
			if !req.ShouldRestorePartition(topic.Name, partition) {
				continue
			}
			pp := &partitionPlan{sourceTopic: topic.Name, targetTopic: target, partition: partition}
			for _, seg := range manifest.SegmentsFor(topic.Name, partition) {
				if !seg.Overlaps(start, end) {
					p.skipped[topic.Name] += seg.Records
					continue
				}
				pp.segments = append(pp.segments, segmentPlan{meta: seg, filter: !seg.Within(start, end)})
			}
			if len(pp.segments) > 0 {
				p.partitions = append(p.partitions, pp)
				p.segments += len(pp.segments)
			}
		}
	}

	sort.Slice(p.partitions, func(i, j int) bool { return p.partitions[i].key().Less(p.partitions[j].key()) })
	return p, nil
}

func windowBounds(w *domain.TimeWindow) (start, end *time.Time) {
	if w == nil {
		return nil, nil
	}
	return w.Start, w.End
}

// prepareTopics makes sure every target topic exists with enough partitions.
func prepareTopics(ctx context.Context, admin repository.Admin, p *plan, req *domain.RestoreRequest) error {
	for _, topic := range p.topics {
		target := req.GetMappedTopicName(topic.Name)
		if req.CreateTopics {
			err := admin.CreateTopic(ctx, &domain.Topic{
				Name:              target,
				Partitions:        topic.Partitions,
				ReplicationFactor: topic.ReplicationFactor,
				Config:            topic.Config,
			})
			if err != nil && !apperrors.Is(err, apperrors.ErrAlreadyExists) {
				return fmt.Errorf("failed to create topic %s: %w", target, err)
			}
		}

		existing, err := admin.DescribeTopic(ctx, target)
		if err != nil {
			if apperrors.IsNotFound(err) {
				return apperrors.Configuration("target topic %s does not exist and createTopics is disabled", target)
			}
			return fmt.Errorf("failed to describe topic %s: %w", target, err)
		}
		if existing.Partitions < topic.Partitions {
			return apperrors.Configuration("target topic %s has %d partitions, backup of %s needs %d",
				target, existing.Partitions, topic.Name, topic.Partitions)
		}
	}
	return nil
}
