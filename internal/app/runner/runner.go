// Package runner executes at most one long-running engine task per custom
// resource, outside the reconcile loop.
package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"k8s.io/apimachinery/pkg/types"

	"github.com/quantica-technologies/kafka-backup-operator/pkg/logger"
	"github.com/quantica-technologies/kafka-backup-operator/pkg/metrics"
)

// Task is the body of one run. report may be called any number of times.
type Task[P, R any] func(ctx context.Context, report func(P)) (R, error)

// Status is a snapshot of the task of one resource
type Status[P, R any] struct {
	// ID identifies the run, e.g. the backup run id or restore id.
	ID         string
	Generation int64
	Running    bool
	StartedAt  time.Time
	FinishedAt time.Time
	Progress   P
	Result     R
	Err        error
}

type task[P, R any] struct {
	cancel context.CancelFunc
	done   chan struct{}
	status Status[P, R]
}

// Runner owns the tasks of one resource kind. A finished task stays until
// Forget so the reconciler can persist its outcome.
type Runner[P, R any] struct {
	kind    string
	metrics *metrics.Metrics
	logger  logger.Logger
	now     func() time.Time

	mu       sync.Mutex
	tasks    map[types.NamespacedName]*task[P, R]
	onDone   func(types.NamespacedName)
	stopping bool
}

// New creates a runner. onDone is called after a task finishes, typically to
// enqueue a reconcile of its resource.
func New[P, R any](kind string, m *metrics.Metrics, log logger.Logger, onDone func(types.NamespacedName)) *Runner[P, R] {
	if m == nil {
		m = metrics.NewNop()
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Runner[P, R]{
		kind:    kind,
		metrics: m,
		logger:  log.WithFields(map[string]interface{}{"kind": kind}),
		now:     time.Now,
		tasks:   make(map[types.NamespacedName]*task[P, R]),
		onDone:  onDone,
	}
}

// Submit starts fn for key unless a task is already running there. A
// finished task that was not forgotten is replaced.
func (r *Runner[P, R]) Submit(key types.NamespacedName, id string, generation int64, fn Task[P, R]) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopping {
		return fmt.Errorf("runner for %s is shutting down", r.kind)
	}
	if t, ok := r.tasks[key]; ok && t.status.Running {
		return fmt.Errorf("%s %s already has task %s running", r.kind, key, t.status.ID)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &task[P, R]{
		cancel: cancel,
		done:   make(chan struct{}),
		status: Status[P, R]{
			ID:         id,
			Generation: generation,
			Running:    true,
			StartedAt:  r.now().UTC(),
		},
	}
	r.tasks[key] = t
	r.metrics.ManagedResources.WithLabelValues(r.kind).Inc()
	r.logger.Info("Task started", "resource", key.String(), "id", id)

	go r.run(ctx, key, t, fn)
	return nil
}

func (r *Runner[P, R]) run(ctx context.Context, key types.NamespacedName, t *task[P, R], fn Task[P, R]) {
	report := func(p P) {
		r.mu.Lock()
		t.status.Progress = p
		r.mu.Unlock()
	}

	result, err := r.call(ctx, fn, report)

	r.mu.Lock()
	t.status.Running = false
	t.status.FinishedAt = r.now().UTC()
	t.status.Result = result
	t.status.Err = err
	t.cancel()
	close(t.done)
	r.mu.Unlock()

	r.metrics.ManagedResources.WithLabelValues(r.kind).Dec()
	if err != nil {
		r.logger.Warn("Task failed", "resource", key.String(), "id", t.status.ID, "error", err)
	} else {
		r.logger.Info("Task finished", "resource", key.String(), "id", t.status.ID)
	}
	if r.onDone != nil {
		r.onDone(key)
	}
}

// call runs fn and turns a panic into an error so one broken run cannot take
// the manager down.
func (r *Runner[P, R]) call(ctx context.Context, fn Task[P, R], report func(P)) (result R, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("task panicked: %v", p)
		}
	}()
	return fn(ctx, report)
}

// Get returns the status of the task for key.
func (r *Runner[P, R]) Get(key types.NamespacedName) (Status[P, R], bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[key]
	if !ok {
		return Status[P, R]{}, false
	}
	return t.status, true
}

// Forget drops a finished task. Running tasks are kept.
func (r *Runner[P, R]) Forget(key types.NamespacedName) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tasks[key]; ok && !t.status.Running {
		delete(r.tasks, key)
	}
}

// Wait blocks until the task for key has finished or ctx is done.
func (r *Runner[P, R]) Wait(ctx context.Context, key types.NamespacedName) error {
	r.mu.Lock()
	t, ok := r.tasks[key]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel stops the task for key and waits for it to return. Engines
// checkpoint before returning, so nothing durable is lost.
func (r *Runner[P, R]) Cancel(ctx context.Context, key types.NamespacedName) error {
	r.mu.Lock()
	t, ok := r.tasks[key]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	t.cancel()
	if err := r.Wait(ctx, key); err != nil {
		return err
	}
	r.Forget(key)
	return nil
}

// Stop cancels every task and waits for them, refusing new submissions.
func (r *Runner[P, R]) Stop(ctx context.Context) error {
	r.mu.Lock()
	r.stopping = true
	keys := make([]types.NamespacedName, 0, len(r.tasks))
	for key, t := range r.tasks {
		t.cancel()
		keys = append(keys, key)
	}
	r.mu.Unlock()

	for _, key := range keys {
		if err := r.Wait(ctx, key); err != nil {
			return fmt.Errorf("failed to stop %s tasks: %w", r.kind, err)
		}
	}
	return nil
}

// Start implements manager.Runnable: it blocks until ctx is done and then
// stops every task.
func (r *Runner[P, R]) Start(ctx context.Context) error {
	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return r.Stop(stopCtx)
}
