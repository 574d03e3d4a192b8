package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/quantica-technologies/kafka-backup-operator/internal/domain"
	"github.com/quantica-technologies/kafka-backup-operator/internal/repository"
	apperrors "github.com/quantica-technologies/kafka-backup-operator/pkg/errors"
)

const tempPrefix = ".tmp-"

// LocalRepository implements StorageRepository for local filesystem and
// mounted PVCs. Writes go to a temp file that is renamed into place, so a
// reader never sees a partial object.
type LocalRepository struct {
	basePath string
	prefix   string
}

// NewLocalRepository creates the base directory if needed.
func NewLocalRepository(cfg *domain.LocalConfig, prefix string) (*LocalRepository, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	root := filepath.Join(cfg.BasePath, filepath.FromSlash(strings.Trim(prefix, "/")))
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &LocalRepository{basePath: cfg.BasePath, prefix: strings.Trim(prefix, "/")}, nil
}

func (l *LocalRepository) root() string {
	return filepath.Join(l.basePath, filepath.FromSlash(l.prefix))
}

func (l *LocalRepository) fullPath(key string) (string, error) {
	clean := path.Clean("/" + key)
	if clean == "/" {
		return "", apperrors.Configuration("invalid storage key %q", key)
	}
	return filepath.Join(l.root(), filepath.FromSlash(clean)), nil
}

func (l *LocalRepository) Put(ctx context.Context, key string, data io.Reader, metadata *repository.ObjectMetadata) error {
	fullPath, err := l.fullPath(key)
	if err != nil {
		return err
	}

	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: data}); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		return fmt.Errorf("failed to commit file: %w", err)
	}
	committed = true
	return nil
}

func (l *LocalRepository) Get(ctx context.Context, key string) (io.ReadCloser, *repository.ObjectMetadata, error) {
	fullPath, err := l.fullPath(key)
	if err != nil {
		return nil, nil, err
	}

	file, err := os.Open(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, apperrors.NotFound(key, err)
		}
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, nil, fmt.Errorf("failed to stat file: %w", err)
	}

	return file, &repository.ObjectMetadata{
		Key:          key,
		Size:         info.Size(),
		LastModified: info.ModTime(),
	}, nil
}

// List walks the deepest directory implied by prefix and filters by the full
// prefix, so partial names such as "orders-" work like object store listings.
func (l *LocalRepository) List(ctx context.Context, prefix string) ([]*repository.ObjectInfo, error) {
	prefix = strings.TrimPrefix(prefix, "/")
	dir := prefix
	if !strings.HasSuffix(prefix, "/") {
		dir = path.Dir(prefix)
		if dir == "." {
			dir = ""
		}
	}
	searchPath := filepath.Join(l.root(), filepath.FromSlash(dir))

	var objects []*repository.ObjectInfo
	err := filepath.WalkDir(searchPath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), tempPrefix) {
			return nil
		}
		rel, err := filepath.Rel(l.root(), p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		objects = append(objects, &repository.ObjectInfo{
			Key:          key,
			Size:         info.Size(),
			LastModified: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %q: %w", prefix, err)
	}
	return objects, nil
}

func (l *LocalRepository) Delete(ctx context.Context, key string) error {
	fullPath, err := l.fullPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	l.pruneEmptyDirs(filepath.Dir(fullPath))
	return nil
}

// pruneEmptyDirs removes directories left empty by a delete, up to the root.
func (l *LocalRepository) pruneEmptyDirs(dir string) {
	root := l.root()
	for dir != root && strings.HasPrefix(dir, root) {
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

func (l *LocalRepository) Exists(ctx context.Context, key string) (bool, error) {
	fullPath, err := l.fullPath(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(fullPath)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (l *LocalRepository) GetMetadata(ctx context.Context, key string) (*repository.ObjectMetadata, error) {
	fullPath, err := l.fullPath(key)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperrors.NotFound(key, err)
		}
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	return &repository.ObjectMetadata{
		Key:          key,
		Size:         info.Size(),
		LastModified: info.ModTime(),
	}, nil
}

func (l *LocalRepository) Close() error {
	return nil
}

func (l *LocalRepository) HealthCheck(ctx context.Context) error {
	info, err := os.Stat(l.root())
	if err != nil {
		return apperrors.Configuration("storage path %s is not accessible: %v", l.root(), err)
	}
	if !info.IsDir() {
		return apperrors.Configuration("storage path %s is not a directory", l.root())
	}
	return nil
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
