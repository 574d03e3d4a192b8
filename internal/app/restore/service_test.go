package restore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/quantica-technologies/kafka-backup-operator/internal/app/backup"
	"github.com/quantica-technologies/kafka-backup-operator/internal/app/offsets"
	"github.com/quantica-technologies/kafka-backup-operator/internal/domain"
	"github.com/quantica-technologies/kafka-backup-operator/internal/infrastructure/kafka/kafkatest"
	"github.com/quantica-technologies/kafka-backup-operator/internal/infrastructure/storage"
	"github.com/quantica-technologies/kafka-backup-operator/internal/repository"
	apperrors "github.com/quantica-technologies/kafka-backup-operator/pkg/errors"
	"github.com/quantica-technologies/kafka-backup-operator/pkg/metrics"
	"github.com/quantica-technologies/kafka-backup-operator/pkg/utils"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// first is the timestamp of offset 0 in every source partition
var first = base.Add(-time.Hour)

var opener = storage.Opener(storage.Options{
	Timeout:        5 * time.Second,
	MaxAttempts:    1,
	InitialBackoff: time.Millisecond,
})

var kafkaCluster = &domain.KafkaCluster{BootstrapServers: []string{"kafka:9092"}}

// backedUp is a completed backup of orders (3 partitions x 100 records,
// segments of 10) with committed offsets of billing and shipping.
type backedUp struct {
	storage *domain.StorageConfig
	runID   string
}

func backupOrders(t *testing.T) backedUp {
	t.Helper()
	source := kafkatest.NewCluster()
	source.AddTopic("orders", 3, map[string]string{"cleanup.policy": "delete"})
	for p := int32(0); p < 3; p++ {
		values := make([]string, 100)
		for i := range values {
			values[i] = fmt.Sprintf("order-%d-%d", p, i)
		}
		source.Append("orders", p, first, values...)
	}
	source.SetGroupOffsets("billing", domain.GroupOffsets{"orders": {0: 50, 1: 60, 2: 100}})
	source.SetGroupOffsets("shipping", domain.GroupOffsets{"orders": {0: 10, 1: 10, 2: 10}})

	target := &domain.StorageConfig{
		Type:    domain.StorageTypeLocal,
		Backend: &domain.LocalConfig{BasePath: t.TempDir()},
	}
	engine := backup.NewEngine(source, opener, nil, nil,
		backup.WithClock(func() time.Time { return base }),
		backup.WithRetryBackoff(time.Millisecond))
	res, err := engine.Run(context.Background(), &domain.BackupRequest{
		Name:              "orders",
		Namespace:         "default",
		Cluster:           kafkaCluster,
		Storage:           target,
		Topics:            []string{"orders"},
		ConsumerGroups:    []string{"billing", "shipping"},
		Compression:       utils.CompressionLZ4,
		SegmentMaxRecords: 10,
		CheckpointEnabled: true,
		Limits:            domain.RateLimits{MaxConcurrentPartitions: 3},
	}, nil)
	if err != nil {
		t.Fatalf("backup failed: %v", err)
	}
	return backedUp{storage: target, runID: res.RunID}
}

func (b backedUp) request() *domain.RestoreRequest {
	return &domain.RestoreRequest{
		Name:         "orders-restore",
		Namespace:    "default",
		RestoreID:    "orders-restore-1",
		BackupName:   "orders",
		Cluster:      kafkaCluster,
		Storage:      b.storage,
		TopicMapping: map[string]string{"orders": "orders-restored"},
		CreateTopics: true,
		Limits:       domain.RateLimits{MaxConcurrentPartitions: 3},
	}
}

func newTestEngine(cluster *kafkatest.Cluster, m *metrics.Metrics) *Engine {
	return NewEngine(cluster, opener, offsets.NewEngine(cluster, opener, m, nil), m, nil,
		WithClock(func() time.Time { return base }),
		WithRetryBackoff(time.Millisecond))
}

func values(records []*domain.Message) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = string(r.Value)
	}
	return out
}

func expectedValues(p int32, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("order-%d-%d", p, i)
	}
	return out
}

// phaseRecorder keeps phase transitions, dropping repeated progress reports
type phaseRecorder struct {
	phases []domain.RestorePhase
}

func (r *phaseRecorder) observe(phase domain.RestorePhase, _ domain.RestoreProgress) {
	if n := len(r.phases); n > 0 && r.phases[n-1] == phase {
		return
	}
	r.phases = append(r.phases, phase)
}

func TestEngineRestoresEveryRecordAndRecoversOffsets(t *testing.T) {
	b := backupOrders(t)
	target := kafkatest.NewCluster()
	req := b.request()
	req.OffsetRecovery = domain.OffsetRecovery{Enabled: true}

	res, err := newTestEngine(target, nil).Run(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if res.Phase != domain.RestorePhaseCompleted {
		t.Errorf("Phase = %s, want Completed", res.Phase)
	}
	if res.BackupID != b.runID {
		t.Errorf("BackupID = %s, want latest run %s", res.BackupID, b.runID)
	}
	if res.Records != 300 || res.SegmentsProcessed != 30 || res.SegmentsPlanned != 30 {
		t.Errorf("records/processed/planned = %d/%d/%d, want 300/30/30", res.Records, res.SegmentsProcessed, res.SegmentsPlanned)
	}
	if res.OffsetMappingPath != domain.OffsetMappingKey("orders-restore-1") {
		t.Errorf("OffsetMappingPath = %s", res.OffsetMappingPath)
	}
	if diff := cmp.Diff([]string{"billing", "shipping"}, res.GroupsRecovered); diff != "" {
		t.Errorf("GroupsRecovered mismatch (-want +got):\n%s", diff)
	}

	for p := int32(0); p < 3; p++ {
		if diff := cmp.Diff(expectedValues(p, 100), values(target.Records("orders-restored", p))); diff != "" {
			t.Errorf("partition %d records mismatch (-want +got):\n%s", p, diff)
		}
	}
	want := domain.GroupOffsets{"orders-restored": {0: 50, 1: 60, 2: 100}}
	if diff := cmp.Diff(want, target.GroupOffsets("billing")); diff != "" {
		t.Errorf("billing offsets mismatch (-want +got):\n%s", diff)
	}
}

func TestEnginePITRNeverRestoresRecordsPastCutoff(t *testing.T) {
	b := backupOrders(t)
	target := kafkatest.NewCluster()
	m := metrics.NewNop()

	// Offset 44 carries the last timestamp inside the window, so the segment
	// holding 40..49 straddles the bound and 50.. are skipped whole.
	cutoff := first.Add(44 * time.Millisecond)
	req := b.request()
	req.PITR = &domain.TimeWindow{End: &cutoff}

	res, err := newTestEngine(target, m).Run(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if res.Records != 135 {
		t.Errorf("Records = %d, want 135", res.Records)
	}
	if res.FilteredByPITR != 165 {
		t.Errorf("FilteredByPITR = %d, want 165", res.FilteredByPITR)
	}
	if res.SegmentsPlanned != 15 {
		t.Errorf("SegmentsPlanned = %d, want 15", res.SegmentsPlanned)
	}

	for p := int32(0); p < 3; p++ {
		records := target.Records("orders-restored", p)
		for _, r := range records {
			if r.Timestamp.After(cutoff) {
				t.Fatalf("partition %d restored record %q at %s past the cutoff %s", p, r.Value, r.Timestamp, cutoff)
			}
		}
		if diff := cmp.Diff(expectedValues(p, 45), values(records)); diff != "" {
			t.Errorf("partition %d records mismatch (-want +got):\n%s", p, diff)
		}
	}
	if got := testutil.ToFloat64(m.PitrFiltered.WithLabelValues("orders")); got != 165 {
		t.Errorf("pitr filtered metric = %v, want 165", got)
	}
}

func TestEngineAutoRollbackRestoresSnapshotExactly(t *testing.T) {
	b := backupOrders(t)
	target := kafkatest.NewCluster()
	target.AddTopic("orders-restored", 3, nil)
	for p := int32(0); p < 3; p++ {
		target.Append("orders-restored", p, base, "old-0", "old-1", "old-2", "old-3", "old-4")
	}
	billing := domain.GroupOffsets{"orders-restored": {0: 5, 1: 3, 2: 0}}
	shipping := domain.GroupOffsets{"orders-restored": {0: 1, 1: 1, 2: 1}}
	target.SetGroupOffsets("billing", billing)
	target.SetGroupOffsets("shipping", shipping)

	var failed atomic.Bool
	target.CommitHook = func(group string, _ domain.GroupOffsets) error {
		if group == "shipping" && failed.CompareAndSwap(false, true) {
			return errors.New("coordinator not available")
		}
		return nil
	}

	req := b.request()
	req.OffsetRecovery = domain.OffsetRecovery{Enabled: true, Groups: []string{"billing", "shipping"}}
	req.SnapshotBeforeRestore = true
	req.AutoRollbackOnFailure = true

	m := metrics.NewNop()
	rec := &phaseRecorder{}
	res, err := newTestEngine(target, m).Run(context.Background(), req, rec.observe)
	if err == nil {
		t.Fatal("expected the restore to fail")
	}
	if res.Phase != domain.RestorePhaseRolledBack {
		t.Fatalf("Phase = %s, want RolledBack", res.Phase)
	}
	if res.Snapshot == nil || res.Snapshot.ID != SnapshotID("orders-restore-1") {
		t.Fatalf("unexpected snapshot %+v", res.Snapshot)
	}

	wantPhases := []domain.RestorePhase{
		domain.RestorePhaseValidating,
		domain.RestorePhaseSnapshottingOffsets,
		domain.RestorePhaseRestoring,
		domain.RestorePhaseFailed,
		domain.RestorePhaseRollingBack,
		domain.RestorePhaseRolledBack,
	}
	if diff := cmp.Diff(wantPhases, rec.phases); diff != "" {
		t.Errorf("phase sequence mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(billing, target.GroupOffsets("billing")); diff != "" {
		t.Errorf("billing offsets mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(shipping, target.GroupOffsets("shipping")); diff != "" {
		t.Errorf("shipping offsets mismatch (-want +got):\n%s", diff)
	}
	if got := testutil.ToFloat64(m.RestoresTotal.WithLabelValues(metrics.OutcomeRolledBack, "default", "orders-restore")); got != 1 {
		t.Errorf("rolled back restores = %v, want 1", got)
	}
}

func TestEngineDryRunPlansWithoutWriting(t *testing.T) {
	b := backupOrders(t)
	target := kafkatest.NewCluster()
	m := metrics.NewNop()

	req := b.request()
	req.DryRun = true
	req.SnapshotBeforeRestore = true
	req.OffsetRecovery = domain.OffsetRecovery{Enabled: true}
	req.PartitionFilter = map[string][]int32{"orders": {0, 2}}

	res, err := newTestEngine(target, m).Run(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if res.Phase != domain.RestorePhaseCompleted || !res.DryRun {
		t.Errorf("phase/dryRun = %s/%v, want Completed/true", res.Phase, res.DryRun)
	}
	if res.SegmentsPlanned != 20 || res.SegmentsProcessed != 0 {
		t.Errorf("planned/processed = %d/%d, want 20/0", res.SegmentsPlanned, res.SegmentsProcessed)
	}
	if res.Records != 200 {
		t.Errorf("Records = %d, want 200", res.Records)
	}
	if diff := cmp.Diff([]string{"orders"}, res.TopicsPlanned); diff != "" {
		t.Errorf("TopicsPlanned mismatch (-want +got):\n%s", diff)
	}
	if target.HasTopic("orders-restored") {
		t.Error("dry run created the target topic")
	}
	if res.Snapshot != nil {
		t.Error("dry run took an offset snapshot")
	}
	if got := testutil.ToFloat64(m.RestoresTotal.WithLabelValues(metrics.OutcomeDryRun, "default", "orders-restore")); got != 1 {
		t.Errorf("dry run restores = %v, want 1", got)
	}
}

func TestEngineDryRunCountsRecordsInsidePITRWindow(t *testing.T) {
	b := backupOrders(t)
	target := kafkatest.NewCluster()

	// segments 0..9 through 40..49 overlap the window, 50.. lie past it
	cutoff := first.Add(44 * time.Millisecond)
	req := b.request()
	req.DryRun = true
	req.PITR = &domain.TimeWindow{End: &cutoff}

	res, err := newTestEngine(target, metrics.NewNop()).Run(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if res.Records != 150 {
		t.Errorf("Records = %d, want 150", res.Records)
	}
	if res.FilteredByPITR != 150 {
		t.Errorf("FilteredByPITR = %d, want 150", res.FilteredByPITR)
	}
	if res.SegmentsPlanned != 15 {
		t.Errorf("SegmentsPlanned = %d, want 15", res.SegmentsPlanned)
	}
	if target.HasTopic("orders-restored") {
		t.Error("dry run created the target topic")
	}
}

func TestEngineRejectsCorruptSegment(t *testing.T) {
	b := backupOrders(t)
	ctx := context.Background()

	stores, err := opener(ctx, b.storage)
	if err != nil {
		t.Fatalf("failed to open stores: %v", err)
	}
	defer stores.Close()
	manifest, err := stores.Metadata.GetManifest(ctx, b.runID)
	if err != nil {
		t.Fatalf("GetManifest returned error: %v", err)
	}
	corrupt := manifest.SegmentsFor("orders", 1)[3]
	garbage := []byte("not a segment")
	if err := stores.Objects.Put(ctx, corrupt.Key, bytes.NewReader(garbage), &repository.ObjectMetadata{Size: int64(len(garbage))}); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}

	target := kafkatest.NewCluster()
	m := metrics.NewNop()
	res, err := newTestEngine(target, m).Run(ctx, b.request(), nil)
	if !apperrors.IsKind(err, apperrors.KindDataIntegrity) {
		t.Fatalf("expected data integrity error, got %v", err)
	}
	if res.Phase != domain.RestorePhaseFailed {
		t.Errorf("Phase = %s, want Failed", res.Phase)
	}
	if got := testutil.ToFloat64(m.IntegrityFailure.WithLabelValues("orders")); got != 1 {
		t.Errorf("integrity failures = %v, want 1", got)
	}
	// Nothing at or past the corrupt segment reaches the target.
	if got := len(target.Records("orders-restored", 1)); got > int(corrupt.StartOffset) {
		t.Errorf("partition 1 holds %d records, corrupt segment starts at %d", got, corrupt.StartOffset)
	}
}

func TestEngineRetrySkipsReplayedSegments(t *testing.T) {
	b := backupOrders(t)
	target := kafkatest.NewCluster()

	var produced atomic.Int64
	var fail atomic.Bool
	fail.Store(true)
	target.ProduceHook = func(topic string, partition int32, batch []*domain.Message) error {
		if partition == 1 && batch[0].Offset == 70 && fail.Load() {
			return apperrors.Configuration("topic authorization failed")
		}
		produced.Add(int64(len(batch)))
		return nil
	}

	req := b.request()
	req.Limits.MaxConcurrentPartitions = 1

	res, err := newTestEngine(target, nil).Run(context.Background(), req, nil)
	if !apperrors.IsKind(err, apperrors.KindConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if res.Phase != domain.RestorePhaseFailed {
		t.Fatalf("Phase = %s, want Failed", res.Phase)
	}
	if got := len(target.Records("orders-restored", 1)); got != 70 {
		t.Fatalf("partition 1 holds %d records after the failure, want 70", got)
	}

	fail.Store(false)
	res, err = newTestEngine(target, nil).Run(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("retry returned error: %v", err)
	}
	if res.Records != 300 || res.SegmentsProcessed != 30 {
		t.Errorf("records/processed = %d/%d, want 300/30", res.Records, res.SegmentsProcessed)
	}
	if got := produced.Load(); got != 300 {
		t.Errorf("produced %d records over both attempts, want 300", got)
	}
	for p := int32(0); p < 3; p++ {
		if diff := cmp.Diff(expectedValues(p, 100), values(target.Records("orders-restored", p))); diff != "" {
			t.Errorf("partition %d records mismatch (-want +got):\n%s", p, diff)
		}
	}

	stores, err := opener(context.Background(), b.storage)
	if err != nil {
		t.Fatalf("failed to open stores: %v", err)
	}
	defer stores.Close()
	mapping, err := stores.Metadata.GetOffsetMapping(context.Background(), res.OffsetMappingPath)
	if err != nil {
		t.Fatalf("GetOffsetMapping returned error: %v", err)
	}
	want := []domain.OffsetRange{{SourceStart: 0, TargetStart: 0, Count: 100}}
	if diff := cmp.Diff(want, mapping.Partitions["orders-restored"][1]); diff != "" {
		t.Errorf("partition 1 mapping mismatch (-want +got):\n%s", diff)
	}
}

func TestEngineConfigurationErrors(t *testing.T) {
	b := backupOrders(t)

	tests := []struct {
		name   string
		mutate func(req *domain.RestoreRequest, target *kafkatest.Cluster)
	}{
		{
			name:   "unknown backup id",
			mutate: func(req *domain.RestoreRequest, _ *kafkatest.Cluster) { req.BackupID = "orders-20200101-000000" },
		},
		{
			name:   "topic not in backup",
			mutate: func(req *domain.RestoreRequest, _ *kafkatest.Cluster) { req.Topics = []string{"payments"} },
		},
		{
			name: "target topic missing without createTopics",
			mutate: func(req *domain.RestoreRequest, _ *kafkatest.Cluster) {
				req.CreateTopics = false
			},
		},
		{
			name: "target topic too small",
			mutate: func(_ *domain.RestoreRequest, target *kafkatest.Cluster) {
				target.AddTopic("orders-restored", 2, nil)
			},
		},
		{
			name: "recovery group not captured",
			mutate: func(req *domain.RestoreRequest, _ *kafkatest.Cluster) {
				req.OffsetRecovery = domain.OffsetRecovery{Enabled: true, Groups: []string{"analytics"}}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := kafkatest.NewCluster()
			req := b.request()
			tt.mutate(req, target)

			res, err := newTestEngine(target, nil).Run(context.Background(), req, nil)
			if !apperrors.IsKind(err, apperrors.KindConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
			if res.Phase != domain.RestorePhaseFailed {
				t.Errorf("Phase = %s, want Failed", res.Phase)
			}
			if got := len(target.Records("orders-restored", 0)); got != 0 {
				t.Errorf("%d records written despite the configuration error", got)
			}
		})
	}
}
