package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/quantica-technologies/kafka-backup-operator/internal/domain"
	"github.com/quantica-technologies/kafka-backup-operator/internal/repository"
	apperrors "github.com/quantica-technologies/kafka-backup-operator/pkg/errors"
)

// MetadataRepository implements metadata storage as JSON objects
type MetadataRepository struct {
	storage repository.StorageRepository
}

// NewMetadataRepository creates a new metadata repository
func NewMetadataRepository(storage repository.StorageRepository) *MetadataRepository {
	return &MetadataRepository{
		storage: storage,
	}
}

var _ repository.MetadataRepository = (*MetadataRepository)(nil)

func (m *MetadataRepository) SaveRunDescriptor(ctx context.Context, descriptor *domain.RunDescriptor) error {
	if descriptor.SchemaVersion == 0 {
		descriptor.SchemaVersion = domain.ManifestSchemaVersion
	}
	return putJSON(ctx, m.storage, domain.RunDescriptorKey(descriptor.RunID), descriptor)
}

func (m *MetadataRepository) GetRunDescriptor(ctx context.Context, runID string) (*domain.RunDescriptor, error) {
	var descriptor domain.RunDescriptor
	if err := getJSON(ctx, m.storage, domain.RunDescriptorKey(runID), &descriptor); err != nil {
		return nil, err
	}
	return &descriptor, nil
}

func (m *MetadataRepository) SaveManifest(ctx context.Context, manifest *domain.Manifest) (string, error) {
	if manifest.SchemaVersion == 0 {
		manifest.SchemaVersion = domain.ManifestSchemaVersion
	}
	domain.SortSegments(manifest.Segments)

	key := domain.ManifestKey(manifest.RunID)
	if err := putJSON(ctx, m.storage, key, manifest); err != nil {
		return "", fmt.Errorf("failed to save manifest: %w", err)
	}
	return key, nil
}

func (m *MetadataRepository) GetManifest(ctx context.Context, runID string) (*domain.Manifest, error) {
	var manifest domain.Manifest
	if err := getJSON(ctx, m.storage, domain.ManifestKey(runID), &manifest); err != nil {
		return nil, err
	}
	if manifest.SchemaVersion > domain.ManifestSchemaVersion {
		return nil, apperrors.Configuration("manifest %s has unsupported schema version %d", runID, manifest.SchemaVersion)
	}
	return &manifest, nil
}

func (m *MetadataRepository) ListRuns(ctx context.Context, backupName string) ([]domain.RunInfo, error) {
	objects, err := m.storage.List(ctx, backupName+"-")
	if err != nil {
		return nil, fmt.Errorf("failed to list runs of %s: %w", backupName, err)
	}

	runs := make(map[string]*domain.RunInfo)
	for _, obj := range objects {
		runID := domain.RunIDFromKey(obj.Key)
		startedAt, ok := domain.ParseRunID(backupName, runID)
		if !ok {
			continue
		}
		info, found := runs[runID]
		if !found {
			info = &domain.RunInfo{RunID: runID, StartedAt: startedAt}
			runs[runID] = info
		}
		if strings.TrimPrefix(obj.Key, "/") == domain.ManifestKey(runID) {
			info.Complete = true
		}
	}

	result := make([]domain.RunInfo, 0, len(runs))
	for _, info := range runs {
		result = append(result, *info)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].StartedAt.Equal(result[j].StartedAt) {
			return result[i].StartedAt.Before(result[j].StartedAt)
		}
		return result[i].RunID < result[j].RunID
	})
	return result, nil
}

// DeleteRun removes the manifest first so a partially deleted run is never
// mistaken for a complete one.
func (m *MetadataRepository) DeleteRun(ctx context.Context, runID string) error {
	if err := m.storage.Delete(ctx, domain.ManifestKey(runID)); err != nil {
		return fmt.Errorf("failed to delete manifest of %s: %w", runID, err)
	}

	objects, err := m.storage.List(ctx, runID+"/")
	if err != nil {
		return fmt.Errorf("failed to list objects of %s: %w", runID, err)
	}
	for _, obj := range objects {
		if err := m.storage.Delete(ctx, obj.Key); err != nil {
			return fmt.Errorf("failed to delete %s: %w", obj.Key, err)
		}
	}
	return nil
}

func (m *MetadataRepository) SaveSnapshot(ctx context.Context, snapshot *domain.OffsetSnapshot) (string, error) {
	key := domain.SnapshotKey(snapshot.ID)
	exists, err := m.storage.Exists(ctx, key)
	if err != nil {
		return "", fmt.Errorf("failed to check snapshot %s: %w", snapshot.ID, err)
	}
	if exists {
		return "", apperrors.WithKind(apperrors.ErrAlreadyExists, apperrors.KindConfiguration,
			fmt.Sprintf("offset snapshot %s already exists", snapshot.ID))
	}
	if err := putJSON(ctx, m.storage, key, snapshot); err != nil {
		return "", fmt.Errorf("failed to save snapshot %s: %w", snapshot.ID, err)
	}
	return key, nil
}

// GetSnapshot prefers an explicit key over the id.
func (m *MetadataRepository) GetSnapshot(ctx context.Context, id, key string) (*domain.OffsetSnapshot, error) {
	if key == "" {
		if id == "" {
			return nil, apperrors.Configuration("Either snapshot name or path must be specified")
		}
		key = domain.SnapshotKey(id)
	}

	var snapshot domain.OffsetSnapshot
	if err := getJSON(ctx, m.storage, key, &snapshot); err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.WithKind(err, apperrors.KindConfiguration, fmt.Sprintf("offset snapshot %s not found", key))
		}
		return nil, err
	}
	return &snapshot, nil
}

func (m *MetadataRepository) SaveOffsetMapping(ctx context.Context, mapping *domain.OffsetMapping) (string, error) {
	mapping.Normalize()
	key := domain.OffsetMappingKey(mapping.RestoreID)
	if err := putJSON(ctx, m.storage, key, mapping); err != nil {
		return "", fmt.Errorf("failed to save offset mapping: %w", err)
	}
	return key, nil
}

func (m *MetadataRepository) GetOffsetMapping(ctx context.Context, key string) (*domain.OffsetMapping, error) {
	var mapping domain.OffsetMapping
	if err := getJSON(ctx, m.storage, key, &mapping); err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.WithKind(err, apperrors.KindConfiguration, fmt.Sprintf("offset mapping %s not found", key))
		}
		return nil, err
	}
	return &mapping, nil
}
