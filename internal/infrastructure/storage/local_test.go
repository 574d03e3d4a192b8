package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/quantica-technologies/kafka-backup-operator/internal/domain"
	apperrors "github.com/quantica-technologies/kafka-backup-operator/pkg/errors"
)

func newLocal(t *testing.T, prefix string) *LocalRepository {
	t.Helper()
	repo, err := NewLocalRepository(&domain.LocalConfig{BasePath: t.TempDir()}, prefix)
	if err != nil {
		t.Fatalf("NewLocalRepository returned error: %v", err)
	}
	return repo
}

func TestLocalRepositoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newLocal(t, "cluster-a")

	payload := []byte("segment bytes")
	if err := repo.Put(ctx, "orders-20240101-000000/topics/orders/partition=0/segment-000000.zst", bytes.NewReader(payload), nil); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}

	reader, meta, err := repo.Get(ctx, "orders-20240101-000000/topics/orders/partition=0/segment-000000.zst")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	defer reader.Close()

	got, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("ReadAll returned error: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("Get returned %q, want %q", got, payload)
	}
	if meta.Size != int64(len(payload)) {
		t.Errorf("metadata size = %d, want %d", meta.Size, len(payload))
	}

	exists, err := repo.Exists(ctx, "orders-20240101-000000/topics/orders/partition=0/segment-000000.zst")
	if err != nil || !exists {
		t.Errorf("Exists = %v, %v; want true, nil", exists, err)
	}
}

func TestLocalRepositoryGetMissingIsNotFound(t *testing.T) {
	repo := newLocal(t, "")

	_, _, err := repo.Get(context.Background(), "missing/key.json")
	if !apperrors.IsNotFound(err) {
		t.Fatalf("expected not-found error, got %v", err)
	}
	if _, err := repo.GetMetadata(context.Background(), "missing/key.json"); !apperrors.IsNotFound(err) {
		t.Fatalf("expected not-found error from GetMetadata, got %v", err)
	}
}

func TestLocalRepositoryListMatchesPartialPrefix(t *testing.T) {
	ctx := context.Background()
	repo := newLocal(t, "")

	for _, key := range []string{
		"orders-20240101-000000/run.json",
		"orders-20240102-000000/run.json",
		"orders-eu-20240101-000000/run.json",
		"payments-20240101-000000/run.json",
	} {
		if err := repo.Put(ctx, key, strings.NewReader("{}"), nil); err != nil {
			t.Fatalf("Put(%s) returned error: %v", key, err)
		}
	}

	objects, err := repo.List(ctx, "orders-")
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	var keys []string
	for _, obj := range objects {
		keys = append(keys, obj.Key)
	}
	sort.Strings(keys)

	want := []string{
		"orders-20240101-000000/run.json",
		"orders-20240102-000000/run.json",
		"orders-eu-20240101-000000/run.json",
	}
	if diff := cmp.Diff(want, keys); diff != "" {
		t.Errorf("List mismatch (-want +got):\n%s", diff)
	}

	objects, err = repo.List(ctx, "nothing-here/")
	if err != nil {
		t.Fatalf("List of missing dir returned error: %v", err)
	}
	if len(objects) != 0 {
		t.Errorf("expected no objects, got %d", len(objects))
	}
}

type failingReader struct {
	n int
}

func (f *failingReader) Read(p []byte) (int, error) {
	if f.n == 0 {
		return 0, errors.New("connection reset")
	}
	n := copy(p, bytes.Repeat([]byte("x"), f.n))
	f.n = 0
	return n, nil
}

func TestLocalRepositoryFailedPutLeavesNothing(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	repo, err := NewLocalRepository(&domain.LocalConfig{BasePath: base}, "")
	if err != nil {
		t.Fatalf("NewLocalRepository returned error: %v", err)
	}

	if err := repo.Put(ctx, "run/manifest.json", &failingReader{n: 16}, nil); err == nil {
		t.Fatal("expected Put to fail")
	}

	exists, err := repo.Exists(ctx, "run/manifest.json")
	if err != nil {
		t.Fatalf("Exists returned error: %v", err)
	}
	if exists {
		t.Error("partial object became visible")
	}

	entries, err := os.ReadDir(filepath.Join(base, "run"))
	if err != nil {
		t.Fatalf("ReadDir returned error: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("temp files left behind: %v", entries)
	}
}

func TestLocalRepositoryKeysCannotEscapeRoot(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	repo, err := NewLocalRepository(&domain.LocalConfig{BasePath: filepath.Join(base, "root")}, "")
	if err != nil {
		t.Fatalf("NewLocalRepository returned error: %v", err)
	}

	if err := repo.Put(ctx, "../outside.json", strings.NewReader("{}"), nil); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(base, "outside.json")); !os.IsNotExist(err) {
		t.Errorf("object was written outside the root")
	}
	if _, err := os.Stat(filepath.Join(base, "root", "outside.json")); err != nil {
		t.Errorf("object not written under the root: %v", err)
	}
}

func TestLocalRepositoryDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := newLocal(t, "")

	if err := repo.Put(ctx, "run/a/b.json", strings.NewReader("{}"), nil); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}
	if err := repo.Delete(ctx, "run/a/b.json"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if err := repo.Delete(ctx, "run/a/b.json"); err != nil {
		t.Fatalf("second Delete returned error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(repo.root(), "run")); !os.IsNotExist(err) {
		t.Errorf("empty directories were not pruned")
	}
}

func TestLocalRepositoryHealthCheck(t *testing.T) {
	base := t.TempDir()
	repo, err := NewLocalRepository(&domain.LocalConfig{BasePath: base}, "")
	if err != nil {
		t.Fatalf("NewLocalRepository returned error: %v", err)
	}
	if err := repo.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}

	if err := os.RemoveAll(base); err != nil {
		t.Fatalf("RemoveAll returned error: %v", err)
	}
	err = repo.HealthCheck(context.Background())
	if !apperrors.IsKind(err, apperrors.KindConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
