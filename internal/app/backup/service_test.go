package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/quantica-technologies/kafka-backup-operator/internal/domain"
	"github.com/quantica-technologies/kafka-backup-operator/internal/infrastructure/kafka/kafkatest"
	"github.com/quantica-technologies/kafka-backup-operator/internal/infrastructure/storage"
	"github.com/quantica-technologies/kafka-backup-operator/internal/repository"
	apperrors "github.com/quantica-technologies/kafka-backup-operator/pkg/errors"
	"github.com/quantica-technologies/kafka-backup-operator/pkg/metrics"
	"github.com/quantica-technologies/kafka-backup-operator/pkg/utils"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

var opener = storage.Opener(storage.Options{
	Timeout:        5 * time.Second,
	MaxAttempts:    1,
	InitialBackoff: time.Millisecond,
})

func seedOrders(t *testing.T) *kafkatest.Cluster {
	t.Helper()
	cluster := kafkatest.NewCluster()
	cluster.AddTopic("orders", 3, map[string]string{"cleanup.policy": "delete"})
	for p := int32(0); p < 3; p++ {
		values := make([]string, 100)
		for i := range values {
			values[i] = fmt.Sprintf("order-%d-%d", p, i)
		}
		cluster.Append("orders", p, base.Add(-time.Hour), values...)
	}
	return cluster
}

func localStorage(t *testing.T) *domain.StorageConfig {
	t.Helper()
	return &domain.StorageConfig{
		Type:    domain.StorageTypeLocal,
		Backend: &domain.LocalConfig{BasePath: t.TempDir()},
	}
}

func ordersRequest(target *domain.StorageConfig) *domain.BackupRequest {
	return &domain.BackupRequest{
		Name:               "orders",
		Namespace:          "default",
		Cluster:            &domain.KafkaCluster{BootstrapServers: []string{"kafka:9092"}},
		Storage:            target,
		Topics:             []string{"orders"},
		Compression:        utils.CompressionZstd,
		CheckpointEnabled:  true,
		CheckpointInterval: time.Hour,
		SegmentMaxRecords:  10,
		Limits:             domain.RateLimits{MaxConcurrentPartitions: 3},
	}
}

func newTestEngine(cluster *kafkatest.Cluster, m *metrics.Metrics, now func() time.Time) *Engine {
	if now == nil {
		now = func() time.Time { return base }
	}
	return NewEngine(cluster, opener, m, nil, WithClock(now), WithRetryBackoff(time.Millisecond))
}

func openStores(t *testing.T, target *domain.StorageConfig) *repository.Stores {
	t.Helper()
	stores, err := opener(context.Background(), target)
	if err != nil {
		t.Fatalf("failed to open stores: %v", err)
	}
	t.Cleanup(func() { _ = stores.Close() })
	return stores
}

// readBackup decodes every segment of a run and returns the stored offsets
// per partition.
func readBackup(t *testing.T, target *domain.StorageConfig, runID string) (*domain.Manifest, map[int32][]int64) {
	t.Helper()
	ctx := context.Background()
	stores := openStores(t, target)

	manifest, err := stores.Metadata.GetManifest(ctx, runID)
	if err != nil {
		t.Fatalf("GetManifest returned error: %v", err)
	}

	offsets := make(map[int32][]int64)
	for _, seg := range manifest.Segments {
		body, _, err := stores.Objects.Get(ctx, seg.Key)
		if err != nil {
			t.Fatalf("Get(%s) returned error: %v", seg.Key, err)
		}
		data, err := io.ReadAll(body)
		_ = body.Close()
		if err != nil {
			t.Fatalf("ReadAll returned error: %v", err)
		}
		if !utils.VerifyChecksum(data, seg.Checksum) {
			t.Fatalf("segment %s checksum mismatch", seg.Key)
		}
		codec, err := utils.NewCodec(seg.Compression, manifest.CompressionLevel)
		if err != nil {
			t.Fatalf("NewCodec returned error: %v", err)
		}
		raw, err := codec.Decompress(data)
		if err != nil {
			t.Fatalf("Decompress returned error: %v", err)
		}
		messages, err := domain.UnmarshalSegment(raw)
		if err != nil {
			t.Fatalf("UnmarshalSegment returned error: %v", err)
		}
		if int64(len(messages)) != seg.Records {
			t.Fatalf("segment %s holds %d records, manifest says %d", seg.Key, len(messages), seg.Records)
		}
		for _, msg := range messages {
			offsets[seg.Partition] = append(offsets[seg.Partition], msg.Offset)
		}
	}
	return manifest, offsets
}

func assertExactlyOnce(t *testing.T, offsets map[int32][]int64, partitions int32, count int64) {
	t.Helper()
	total := 0
	for p := int32(0); p < partitions; p++ {
		got := offsets[p]
		total += len(got)
		want := make([]int64, count)
		for i := range want {
			want[i] = int64(i)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("partition %d offsets mismatch (-want +got):\n%s", p, diff)
		}
	}
	if int64(total) != int64(partitions)*count {
		t.Errorf("stored %d records, want %d", total, int64(partitions)*count)
	}
}

func TestEngineRunBacksUpEveryPartition(t *testing.T) {
	cluster := seedOrders(t)
	cluster.SetGroupOffsets("billing", domain.GroupOffsets{"orders": {0: 40, 1: 100}})
	target := localStorage(t)

	req := ordersRequest(target)
	req.ConsumerGroups = []string{"billing"}

	var last domain.BackupProgress
	calls := 0
	result, err := newTestEngine(cluster, metrics.NewNop(), nil).Run(context.Background(), req, func(p domain.BackupProgress) {
		calls++
		last = p
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if result.RunID != "orders-20240301-120000" {
		t.Errorf("RunID = %q", result.RunID)
	}
	if result.Resumed {
		t.Error("first run reported as resumed")
	}
	if result.Records != 300 || result.Segments != 30 {
		t.Errorf("records=%d segments=%d, want 300 and 30", result.Records, result.Segments)
	}
	if diff := cmp.Diff(map[string]int{"orders/0": 10, "orders/1": 10, "orders/2": 10}, result.PartitionSegments); diff != "" {
		t.Errorf("partition segments mismatch (-want +got):\n%s", diff)
	}
	if calls != 30 || last.PartitionsDone != 3 || last.Records != 300 {
		t.Errorf("progress: calls=%d last=%+v", calls, last)
	}

	manifest, offsets := readBackup(t, target, result.RunID)
	assertExactlyOnce(t, offsets, 3, 100)

	if manifest.Compression != utils.CompressionZstd {
		t.Errorf("manifest compression = %q", manifest.Compression)
	}
	wantTopics := []domain.TopicMetadata{{
		Name: "orders", Partitions: 3, ReplicationFactor: 1,
		Config: map[string]string{"cleanup.policy": "delete"},
	}}
	if diff := cmp.Diff(wantTopics, manifest.Topics); diff != "" {
		t.Errorf("topics mismatch (-want +got):\n%s", diff)
	}
	wantGroups := map[string]map[string]map[int32]int64{"billing": {"orders": {0: 40, 1: 100}}}
	if diff := cmp.Diff(wantGroups, manifest.GroupOffsets); diff != "" {
		t.Errorf("group offsets mismatch (-want +got):\n%s", diff)
	}

	first := manifest.SegmentsFor("orders", 0)[0]
	if first.StartOffset != 0 || first.EndOffset != 9 || first.Records != 10 {
		t.Errorf("first segment = %+v", first)
	}
	if first.MinTimestamp.After(first.MaxTimestamp) {
		t.Errorf("timestamps out of order: %v > %v", first.MinTimestamp, first.MaxTimestamp)
	}
}

func TestEngineResumedRunMatchesUninterruptedRun(t *testing.T) {
	ctx := context.Background()
	cluster := seedOrders(t)

	uninterrupted := localStorage(t)
	want, err := newTestEngine(cluster, metrics.NewNop(), nil).Run(ctx, ordersRequest(uninterrupted), nil)
	if err != nil {
		t.Fatalf("uninterrupted Run returned error: %v", err)
	}

	interrupted := localStorage(t)
	engine := newTestEngine(cluster, metrics.NewNop(), nil)
	cluster.ReadHook = func(topic string, partition int32, offset int64) error {
		if partition == 1 && offset == 55 {
			return apperrors.Configuration("injected failure")
		}
		return nil
	}
	if _, err := engine.Run(ctx, ordersRequest(interrupted), nil); err == nil {
		t.Fatal("expected the interrupted run to fail")
	}
	cluster.ReadHook = nil

	runID, err := engine.FindIncompleteRun(ctx, interrupted, "orders")
	if err != nil {
		t.Fatalf("FindIncompleteRun returned error: %v", err)
	}
	if runID != want.RunID {
		t.Fatalf("FindIncompleteRun = %q, want %q", runID, want.RunID)
	}

	req := ordersRequest(interrupted)
	req.RunID = runID
	got, err := engine.Run(ctx, req, nil)
	if err != nil {
		t.Fatalf("resumed Run returned error: %v", err)
	}
	if !got.Resumed {
		t.Error("resumed run not reported as resumed")
	}

	wantManifest, _ := readBackup(t, uninterrupted, want.RunID)
	gotManifest, offsets := readBackup(t, interrupted, got.RunID)
	if diff := cmp.Diff(wantManifest, gotManifest, cmpopts.IgnoreFields(domain.Manifest{}, "CompletedAt")); diff != "" {
		t.Errorf("resumed manifest differs (-uninterrupted +resumed):\n%s", diff)
	}
	assertExactlyOnce(t, offsets, 3, 100)

	if runID, err := engine.FindIncompleteRun(ctx, interrupted, "orders"); err != nil || runID != "" {
		t.Errorf("FindIncompleteRun after completion = %q, %v", runID, err)
	}
}

func TestEngineResumeIgnoresRecordsProducedDuringRun(t *testing.T) {
	ctx := context.Background()
	cluster := seedOrders(t)
	target := localStorage(t)
	engine := newTestEngine(cluster, metrics.NewNop(), nil)

	cluster.ReadHook = func(topic string, partition int32, offset int64) error {
		if partition == 0 && offset == 42 {
			return apperrors.Configuration("injected failure")
		}
		return nil
	}
	if _, err := engine.Run(ctx, ordersRequest(target), nil); err == nil {
		t.Fatal("expected the first attempt to fail")
	}
	cluster.ReadHook = nil
	cluster.Append("orders", 0, base, "late-1", "late-2", "late-3")

	req := ordersRequest(target)
	req.RunID = domain.NewRunID("orders", base)
	result, err := engine.Run(ctx, req, nil)
	if err != nil {
		t.Fatalf("resumed Run returned error: %v", err)
	}

	_, offsets := readBackup(t, target, result.RunID)
	assertExactlyOnce(t, offsets, 3, 100)
}

func TestEngineRetriesTransientPartitionFailures(t *testing.T) {
	cluster := seedOrders(t)
	target := localStorage(t)
	m := metrics.NewNop()

	var failures atomic.Int32
	cluster.ReadHook = func(topic string, partition int32, offset int64) error {
		if partition == 2 && offset == 30 && failures.Add(1) == 1 {
			return apperrors.Transient(errors.New("broker went away"), "fetch")
		}
		return nil
	}

	result, err := newTestEngine(cluster, m, nil).Run(context.Background(), ordersRequest(target), nil)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if got := testutil.ToFloat64(m.PartitionRetries.WithLabelValues("backup")); got != 1 {
		t.Errorf("partition retries = %v, want 1", got)
	}

	_, offsets := readBackup(t, target, result.RunID)
	assertExactlyOnce(t, offsets, 3, 100)
}

func TestEngineGivesUpAfterThreeAttempts(t *testing.T) {
	cluster := seedOrders(t)
	target := localStorage(t)
	m := metrics.NewNop()

	var attempts atomic.Int32
	cluster.ReadHook = func(topic string, partition int32, offset int64) error {
		if partition == 1 && offset == 20 {
			attempts.Add(1)
			return apperrors.Transient(errors.New("broker went away"), "fetch")
		}
		return nil
	}

	_, err := newTestEngine(cluster, m, nil).Run(context.Background(), ordersRequest(target), nil)
	if !apperrors.IsKind(err, apperrors.KindTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if got := attempts.Load(); got != int32(domain.DefaultPartitionAttempts) {
		t.Errorf("attempts = %d, want %d", got, domain.DefaultPartitionAttempts)
	}
}

func TestEngineRunMissingTopicIsConfigurationError(t *testing.T) {
	cluster := seedOrders(t)
	req := ordersRequest(localStorage(t))
	req.Topics = []string{"orders", "payments"}

	_, err := newTestEngine(cluster, metrics.NewNop(), nil).Run(context.Background(), req, nil)
	if !apperrors.IsKind(err, apperrors.KindConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestEngineRunInvalidCompression(t *testing.T) {
	req := ordersRequest(localStorage(t))
	req.Compression = "brotli"

	_, err := newTestEngine(seedOrders(t), metrics.NewNop(), nil).Run(context.Background(), req, nil)
	if !apperrors.IsKind(err, apperrors.KindConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestEngineCompletedRunIsNotRepeated(t *testing.T) {
	ctx := context.Background()
	cluster := seedOrders(t)
	target := localStorage(t)
	engine := newTestEngine(cluster, metrics.NewNop(), nil)

	first, err := engine.Run(ctx, ordersRequest(target), nil)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	cluster.ReadHook = func(string, int32, int64) error {
		t.Error("completed run read from Kafka again")
		return nil
	}
	req := ordersRequest(target)
	req.RunID = first.RunID
	second, err := engine.Run(ctx, req, nil)
	if err != nil {
		t.Fatalf("second Run returned error: %v", err)
	}
	if second.ManifestKey != first.ManifestKey || second.Records != first.Records {
		t.Errorf("second result %+v differs from first %+v", second, first)
	}
}

func TestEngineEmptyAndTruncatedPartitions(t *testing.T) {
	cluster := kafkatest.NewCluster()
	cluster.AddTopic("audit", 2, nil)
	cluster.Append("audit", 1, base, "a", "b", "c", "d", "e")
	cluster.Truncate("audit", 1, 2)
	target := localStorage(t)

	req := ordersRequest(target)
	req.Name = "audit"
	req.Topics = []string{"audit"}

	result, err := newTestEngine(cluster, metrics.NewNop(), nil).Run(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	manifest, offsets := readBackup(t, target, result.RunID)
	if len(manifest.SegmentsFor("audit", 0)) != 0 {
		t.Errorf("empty partition produced segments")
	}
	if diff := cmp.Diff([]int64{2, 3, 4}, offsets[1]); diff != "" {
		t.Errorf("partition 1 offsets mismatch (-want +got):\n%s", diff)
	}
}

func TestEngineRetentionKeepsNewestRuns(t *testing.T) {
	ctx := context.Background()
	cluster := seedOrders(t)
	target := localStorage(t)

	now := base
	engine := newTestEngine(cluster, metrics.NewNop(), func() time.Time { return now })

	var results []*domain.BackupResult
	for i := 0; i < 3; i++ {
		now = base.Add(time.Duration(i) * time.Hour)
		req := ordersRequest(target)
		req.Retention = domain.RetentionPolicy{MaxBackups: 2}
		result, err := engine.Run(ctx, req, nil)
		if err != nil {
			t.Fatalf("run %d returned error: %v", i, err)
		}
		results = append(results, result)
	}

	if diff := cmp.Diff([]string{results[0].RunID}, results[2].RetentionDeleted); diff != "" {
		t.Errorf("deleted runs mismatch (-want +got):\n%s", diff)
	}

	runs, err := openStores(t, target).Metadata.ListRuns(ctx, "orders")
	if err != nil {
		t.Fatalf("ListRuns returned error: %v", err)
	}
	var kept []string
	for _, run := range runs {
		kept = append(kept, run.RunID)
	}
	if diff := cmp.Diff([]string{results[1].RunID, results[2].RunID}, kept); diff != "" {
		t.Errorf("kept runs mismatch (-want +got):\n%s", diff)
	}
}

func TestExpiredRuns(t *testing.T) {
	run := func(hours int, complete bool) domain.RunInfo {
		ts := base.Add(time.Duration(hours) * time.Hour)
		return domain.RunInfo{RunID: domain.NewRunID("orders", ts), StartedAt: ts, Complete: complete}
	}
	now := base.Add(10 * time.Hour)

	for _, tc := range []struct {
		name    string
		runs    []domain.RunInfo
		policy  domain.RetentionPolicy
		current string
		want    []string
	}{
		{
			name:   "no policy keeps everything",
			runs:   []domain.RunInfo{run(0, true), run(1, false), run(2, true)},
			policy: domain.RetentionPolicy{},
		},
		{
			name:    "max backups",
			runs:    []domain.RunInfo{run(0, true), run(1, true), run(2, true)},
			policy:  domain.RetentionPolicy{MaxBackups: 1},
			current: run(2, true).RunID,
			want:    []string{run(0, true).RunID, run(1, true).RunID},
		},
		{
			name:    "max age",
			runs:    []domain.RunInfo{run(0, true), run(8, true), run(9, true)},
			policy:  domain.RetentionPolicy{MaxAge: 5 * time.Hour},
			current: run(9, true).RunID,
			want:    []string{run(0, true).RunID},
		},
		{
			name:    "abandoned incomplete runs",
			runs:    []domain.RunInfo{run(0, false), run(1, true), run(2, false)},
			policy:  domain.RetentionPolicy{MaxBackups: 5},
			current: run(1, true).RunID,
			want:    []string{run(0, false).RunID},
		},
		{
			name:    "current run is never deleted",
			runs:    []domain.RunInfo{run(0, true)},
			policy:  domain.RetentionPolicy{MaxAge: time.Hour},
			current: run(0, true).RunID,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got := expiredRuns(tc.runs, tc.policy, tc.current, now)
			if diff := cmp.Diff(tc.want, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("expiredRuns mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestWalkChain(t *testing.T) {
	rng := domain.PartitionRange{Topic: "orders", Partition: 0, Low: 0, Target: 30}
	seg := func(seq int, start, end int64) *domain.Checkpoint {
		return &domain.Checkpoint{
			Topic: "orders", SegmentID: seq, Offset: end, Records: end + 1,
			Segment: &domain.SegmentMetadata{Sequence: seq, StartOffset: start, EndOffset: end, Records: end - start + 1},
		}
	}

	t.Run("stale checkpoint with other boundaries is ignored", func(t *testing.T) {
		st := walkChain(rng, []*domain.Checkpoint{seg(0, 0, 9), seg(1, 10, 19), seg(2, 25, 29)})
		if st.cursor != 20 || st.seq != 2 || st.done || len(st.segments) != 2 {
			t.Errorf("state = %+v", st)
		}
	})

	t.Run("gap at the tail closed by a marker", func(t *testing.T) {
		marker := &domain.Checkpoint{Topic: "orders", SegmentID: 1, Offset: 29, Done: true}
		st := walkChain(rng, []*domain.Checkpoint{seg(0, 0, 24), marker})
		if !st.done || st.cursor != 30 || len(st.segments) != 1 {
			t.Errorf("state = %+v", st)
		}
	})

	t.Run("stops at done", func(t *testing.T) {
		last := seg(1, 10, 29)
		last.Done = true
		st := walkChain(rng, []*domain.Checkpoint{seg(0, 0, 9), last, seg(2, 30, 39)})
		if !st.done || len(st.segments) != 2 {
			t.Errorf("state = %+v", st)
		}
	})

	t.Run("empty range is done", func(t *testing.T) {
		st := walkChain(domain.PartitionRange{Low: 5, Target: 5}, nil)
		if !st.done {
			t.Errorf("state = %+v", st)
		}
	})
}
