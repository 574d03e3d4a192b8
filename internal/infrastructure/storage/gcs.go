package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/quantica-technologies/kafka-backup-operator/internal/domain"
	"github.com/quantica-technologies/kafka-backup-operator/internal/repository"
	apperrors "github.com/quantica-technologies/kafka-backup-operator/pkg/errors"
)

// GCSRepository implements StorageRepository for Google Cloud Storage
type GCSRepository struct {
	client             *gcs.Client
	bucket             *gcs.BucketHandle
	bucketName         string
	prefix             string
	streamingThreshold int64
	credentialSource   string
}

// NewGCSRepository builds the client from a service account key or, when
// none is given, from workload identity / application default credentials.
func NewGCSRepository(ctx context.Context, cfg *domain.GCSConfig, prefix string, opts Options) (*GCSRepository, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var clientOpts []option.ClientOption
	source := CredentialSourceDefault
	if len(cfg.CredentialsJSON) > 0 {
		source = CredentialSourceStatic
		clientOpts = append(clientOpts, option.WithCredentialsJSON(cfg.CredentialsJSON))
	}
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(cfg.Endpoint))
	}

	client, err := gcs.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, apperrors.WithKind(err, apperrors.KindConfiguration,
			"no GCS credentials: configure a service account secret or workload identity")
	}

	return &GCSRepository{
		client:             client,
		bucket:             client.Bucket(cfg.Bucket),
		bucketName:         cfg.Bucket,
		prefix:             strings.Trim(prefix, "/"),
		streamingThreshold: opts.StreamingThreshold,
		credentialSource:   source,
	}, nil
}

func (g *GCSRepository) objectName(key string) string {
	if g.prefix == "" {
		return strings.TrimPrefix(key, "/")
	}
	return path.Join(g.prefix, key)
}

func (g *GCSRepository) relKey(name string) string {
	if g.prefix == "" {
		return name
	}
	return strings.TrimPrefix(strings.TrimPrefix(name, g.prefix), "/")
}

// Put uses a resumable upload; the object only appears once Close succeeds.
// Cancelling the writer's context on failure abandons the upload.
func (g *GCSRepository) Put(ctx context.Context, key string, data io.Reader, metadata *repository.ObjectMetadata) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := g.bucket.Object(g.objectName(key)).NewWriter(ctx)
	if metadata != nil {
		w.ContentType = metadata.ContentType
		w.Metadata = metadata.CustomMetadata
	}
	if !useStreaming(metadata, g.streamingThreshold) {
		// Small objects go up in a single request.
		w.ChunkSize = 0
	}

	if _, err := io.Copy(w, data); err != nil {
		cancel()
		_ = w.Close()
		return classifyGCS(err, "upload", key)
	}
	if err := w.Close(); err != nil {
		return classifyGCS(err, "upload", key)
	}
	return nil
}

func (g *GCSRepository) Get(ctx context.Context, key string) (io.ReadCloser, *repository.ObjectMetadata, error) {
	r, err := g.bucket.Object(g.objectName(key)).NewReader(ctx)
	if err != nil {
		return nil, nil, classifyGCS(err, "get", key)
	}
	return r, &repository.ObjectMetadata{
		Key:          key,
		Size:         r.Attrs.Size,
		ContentType:  r.Attrs.ContentType,
		LastModified: r.Attrs.LastModified,
	}, nil
}

func (g *GCSRepository) List(ctx context.Context, prefix string) ([]*repository.ObjectInfo, error) {
	fullPrefix := g.objectName(prefix)
	if (strings.HasSuffix(prefix, "/") || prefix == "") && fullPrefix != "" && !strings.HasSuffix(fullPrefix, "/") {
		fullPrefix += "/"
	}

	var objects []*repository.ObjectInfo
	it := g.bucket.Objects(ctx, &gcs.Query{Prefix: fullPrefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, classifyGCS(err, "list", prefix)
		}
		objects = append(objects, &repository.ObjectInfo{
			Key:          g.relKey(attrs.Name),
			Size:         attrs.Size,
			LastModified: attrs.Updated,
			ETag:         attrs.Etag,
		})
	}
	return objects, nil
}

func (g *GCSRepository) Delete(ctx context.Context, key string) error {
	err := g.bucket.Object(g.objectName(key)).Delete(ctx)
	if err != nil {
		err = classifyGCS(err, "delete", key)
		if apperrors.IsNotFound(err) {
			return nil
		}
		return err
	}
	return nil
}

func (g *GCSRepository) Exists(ctx context.Context, key string) (bool, error) {
	_, err := g.GetMetadata(ctx, key)
	if err == nil {
		return true, nil
	}
	if apperrors.IsNotFound(err) {
		return false, nil
	}
	return false, err
}

func (g *GCSRepository) GetMetadata(ctx context.Context, key string) (*repository.ObjectMetadata, error) {
	attrs, err := g.bucket.Object(g.objectName(key)).Attrs(ctx)
	if err != nil {
		return nil, classifyGCS(err, "head", key)
	}
	return &repository.ObjectMetadata{
		Key:            key,
		Size:           attrs.Size,
		ContentType:    attrs.ContentType,
		LastModified:   attrs.Updated,
		ETag:           attrs.Etag,
		CustomMetadata: attrs.Metadata,
	}, nil
}

func (g *GCSRepository) Close() error {
	return g.client.Close()
}

func (g *GCSRepository) HealthCheck(ctx context.Context) error {
	if _, err := g.bucket.Attrs(ctx); err != nil {
		if errors.Is(err, gcs.ErrBucketNotExist) {
			return apperrors.Configuration("GCS bucket %s does not exist", g.bucketName)
		}
		return classifyGCS(err, "get bucket", g.bucketName)
	}
	return nil
}

// CredentialSource reports which step of the chain produced credentials.
func (g *GCSRepository) CredentialSource() string {
	return g.credentialSource
}

func classifyGCS(err error, op, key string) error {
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return apperrors.NotFound(key, err)
	}

	msg := fmt.Sprintf("gcs %s %s", op, key)

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch code := apiErr.Code; {
		case code == http.StatusNotFound:
			return apperrors.NotFound(key, err)
		case code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= 500:
			return apperrors.Transient(err, msg)
		case code == http.StatusForbidden || code == http.StatusUnauthorized:
			return apperrors.WithKind(err, apperrors.KindConfiguration, msg)
		}
	}

	return classifyNetwork(err, msg)
}
