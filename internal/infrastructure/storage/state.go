package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/quantica-technologies/kafka-backup-operator/internal/domain"
	"github.com/quantica-technologies/kafka-backup-operator/internal/repository"
)

// CheckpointStore keeps checkpoints as one JSON object per segment under
// {run}/checkpoints/. Objects are never overwritten, so the latest
// checkpoint of a partition is the one with the highest segment id.
type CheckpointStore struct {
	storage repository.StorageRepository
}

// NewCheckpointStore creates a new checkpoint store
func NewCheckpointStore(storage repository.StorageRepository) *CheckpointStore {
	return &CheckpointStore{storage: storage}
}

var _ repository.CheckpointRepository = (*CheckpointStore)(nil)

func (s *CheckpointStore) Save(ctx context.Context, checkpoint *domain.Checkpoint) error {
	if checkpoint.WrittenAt.IsZero() {
		checkpoint.WrittenAt = time.Now().UTC()
	}
	key := domain.CheckpointKey(checkpoint.RunID, checkpoint.Topic, checkpoint.Partition, checkpoint.SegmentID)
	if err := putJSON(ctx, s.storage, key, checkpoint); err != nil {
		return fmt.Errorf("failed to save checkpoint %s: %w", key, err)
	}
	return nil
}

func (s *CheckpointStore) Load(ctx context.Context, runID string) (map[domain.PartitionKey]*domain.Checkpoint, error) {
	history, err := s.History(ctx, runID)
	if err != nil {
		return nil, err
	}
	latest := make(map[domain.PartitionKey]*domain.Checkpoint)
	for _, cp := range history {
		latest[cp.Key()] = cp
	}
	return latest, nil
}

func (s *CheckpointStore) History(ctx context.Context, runID string) ([]*domain.Checkpoint, error) {
	objects, err := s.storage.List(ctx, domain.CheckpointPrefix(runID))
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints of %s: %w", runID, err)
	}

	var checkpoints []*domain.Checkpoint
	for _, obj := range objects {
		if _, _, _, ok := domain.ParseCheckpointKey(runID, obj.Key); !ok {
			continue
		}
		var cp domain.Checkpoint
		if err := getJSON(ctx, s.storage, obj.Key, &cp); err != nil {
			return nil, fmt.Errorf("failed to read checkpoint %s: %w", obj.Key, err)
		}
		checkpoints = append(checkpoints, &cp)
	}

	sort.Slice(checkpoints, func(i, j int) bool {
		a, b := checkpoints[i], checkpoints[j]
		if a.Key() != b.Key() {
			return a.Key().Less(b.Key())
		}
		return a.SegmentID < b.SegmentID
	})
	return checkpoints, nil
}

func putJSON(ctx context.Context, storage repository.StorageRepository, key string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return storage.Put(ctx, key, bytes.NewReader(data), &repository.ObjectMetadata{
		Key:         key,
		Size:        int64(len(data)),
		ContentType: "application/json",
	})
}

func getJSON(ctx context.Context, storage repository.StorageRepository, key string, v interface{}) error {
	reader, _, err := storage.Get(ctx, key)
	if err != nil {
		return err
	}
	defer reader.Close()

	if err := json.NewDecoder(reader).Decode(v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}
