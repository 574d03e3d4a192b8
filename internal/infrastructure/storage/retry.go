package storage

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/quantica-technologies/kafka-backup-operator/internal/repository"
	apperrors "github.com/quantica-technologies/kafka-backup-operator/pkg/errors"
	"github.com/quantica-technologies/kafka-backup-operator/pkg/logger"
	"github.com/quantica-technologies/kafka-backup-operator/pkg/metrics"
)

// Defaults for Options
const (
	DefaultOperationTimeout   = 5 * time.Minute
	DefaultMaxAttempts        = 3
	DefaultInitialBackoff     = 500 * time.Millisecond
	DefaultStreamingThreshold = 256 << 20
)

// Options tunes every backend built by NewRepository
type Options struct {
	// Timeout bounds a single attempt of one operation
	Timeout time.Duration
	// MaxAttempts includes the first try
	MaxAttempts    int
	InitialBackoff time.Duration
	// StreamingThreshold is the payload size above which uploads are
	// multipart/chunked instead of a single request
	StreamingThreshold int64

	Metrics *metrics.Metrics
	Logger  logger.Logger
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultOperationTimeout
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = DefaultInitialBackoff
	}
	if o.StreamingThreshold <= 0 {
		o.StreamingThreshold = DefaultStreamingThreshold
	}
	if o.Logger == nil {
		o.Logger = logger.NewNop()
	}
	return o
}

// useStreaming reports whether a payload should go through the multipart
// path. Unknown sizes always stream.
func useStreaming(metadata *repository.ObjectMetadata, threshold int64) bool {
	if metadata == nil || metadata.Size < 0 {
		return true
	}
	return metadata.Size > threshold
}

// classifyNetwork is the fallback for errors no backend-specific rule matched.
func classifyNetwork(err error, msg string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Transient(err, msg)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apperrors.Transient(err, msg)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return apperrors.Transient(err, msg)
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return apperrors.Transient(err, msg)
	}
	return apperrors.Wrap(err, apperrors.ErrCodeInternal, msg)
}

type retryRepository struct {
	inner   repository.StorageRepository
	backend string
	opts    Options
}

// WithRetry decorates inner with a per-attempt timeout, bounded exponential
// retries of transient failures and storage metrics.
func WithRetry(inner repository.StorageRepository, backend string, opts Options) repository.StorageRepository {
	return &retryRepository{inner: inner, backend: backend, opts: opts.withDefaults()}
}

func (r *retryRepository) policy(ctx context.Context, attempts int) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.opts.InitialBackoff
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}

func (r *retryRepository) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return r.doN(ctx, op, r.opts.MaxAttempts, fn)
}

// doN runs fn until it succeeds, fails permanently or runs out of attempts.
// Cancellation of the parent context is never retried.
func (r *retryRepository) doN(ctx context.Context, op string, attempts int, fn func(ctx context.Context) error) error {
	attempt := 0
	operation := func() error {
		if attempt > 0 && r.opts.Metrics != nil {
			r.opts.Metrics.StorageRetries.WithLabelValues(r.backend, op).Inc()
		}
		attempt++

		attemptCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()

		start := time.Now()
		err := fn(attemptCtx)
		r.opts.Metrics.ObserveStorage(r.backend, op, start, err)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return apperrors.Transient(err, "storage "+op+" timed out")
		}
		if !apperrors.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		r.opts.Logger.Debug("Retrying storage operation", "backend", r.backend, "operation", op, "attempt", attempt, "error", err)
		return err
	}

	return backoff.Retry(operation, r.policy(ctx, attempts))
}

// Put replays seekable payloads from the start on every retry. Other readers
// get a single attempt.
func (r *retryRepository) Put(ctx context.Context, key string, data io.Reader, metadata *repository.ObjectMetadata) error {
	seeker, seekable := data.(io.Seeker)
	if !seekable {
		return r.doN(ctx, "put", 1, func(ctx context.Context) error {
			return r.inner.Put(ctx, key, data, metadata)
		})
	}

	first := true
	return r.do(ctx, "put", func(ctx context.Context) error {
		if !first {
			if _, err := seeker.Seek(0, io.SeekStart); err != nil {
				return err
			}
		}
		first = false
		return r.inner.Put(ctx, key, data, metadata)
	})
}

// Get opens the object under the caller's context because the returned body
// outlives the attempt.
func (r *retryRepository) Get(ctx context.Context, key string) (io.ReadCloser, *repository.ObjectMetadata, error) {
	var (
		body io.ReadCloser
		meta *repository.ObjectMetadata
	)
	err := r.do(ctx, "get", func(context.Context) error {
		var err error
		body, meta, err = r.inner.Get(ctx, key)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return body, meta, nil
}

func (r *retryRepository) List(ctx context.Context, prefix string) ([]*repository.ObjectInfo, error) {
	var objects []*repository.ObjectInfo
	err := r.do(ctx, "list", func(ctx context.Context) error {
		var err error
		objects, err = r.inner.List(ctx, prefix)
		return err
	})
	return objects, err
}

func (r *retryRepository) Delete(ctx context.Context, key string) error {
	return r.do(ctx, "delete", func(ctx context.Context) error {
		return r.inner.Delete(ctx, key)
	})
}

func (r *retryRepository) Exists(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := r.do(ctx, "exists", func(ctx context.Context) error {
		var err error
		exists, err = r.inner.Exists(ctx, key)
		return err
	})
	return exists, err
}

func (r *retryRepository) GetMetadata(ctx context.Context, key string) (*repository.ObjectMetadata, error) {
	var meta *repository.ObjectMetadata
	err := r.do(ctx, "head", func(ctx context.Context) error {
		var err error
		meta, err = r.inner.GetMetadata(ctx, key)
		return err
	})
	return meta, err
}

func (r *retryRepository) Close() error {
	return r.inner.Close()
}

func (r *retryRepository) HealthCheck(ctx context.Context) error {
	return r.do(ctx, "health", func(ctx context.Context) error {
		return r.inner.HealthCheck(ctx)
	})
}
