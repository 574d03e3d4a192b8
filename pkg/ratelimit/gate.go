// Package ratelimit bounds the partition-level work of a single backup or
// restore run: a weighted semaphore caps concurrency, a two-step circuit
// breaker short-circuits attempts after repeated failures, and optional token
// buckets throttle records and bytes per second.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	apperrors "github.com/quantica-technologies/kafka-backup-operator/pkg/errors"
)

// Defaults applied when a Config field is zero
const (
	DefaultMaxConcurrent    = 2
	DefaultFailureThreshold = 5
	DefaultResetTimeout     = 60 * time.Second
)

// State mirrors the breaker state for callers that should not import gobreaker.
type State string

const (
	StateClosed   State = "Closed"
	StateOpen     State = "Open"
	StateHalfOpen State = "HalfOpen"
)

// Config describes one gate
type Config struct {
	Name             string
	MaxConcurrent    int
	BreakerDisabled  bool
	FailureThreshold uint32
	ResetTimeout     time.Duration
	RecordsPerSec    int
	BytesPerSec      int

	// OnStateChange is called on every breaker transition
	OnStateChange func(from, to State)
}

// Gate is scoped to one run and safe for concurrent use.
type Gate struct {
	name     string
	sem      *semaphore.Weighted
	breaker  *gobreaker.TwoStepCircuitBreaker
	records  *rate.Limiter
	bytes    *rate.Limiter
	inFlight atomic.Int64
	peak     atomic.Int64
}

// New builds a gate from cfg
func New(cfg Config) *Gate {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = DefaultResetTimeout
	}

	g := &Gate{
		name: cfg.Name,
		sem:  semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
	}

	if !cfg.BreakerDisabled {
		threshold := cfg.FailureThreshold
		onChange := cfg.OnStateChange
		g.breaker = gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
			Name:        cfg.Name,
			MaxRequests: 1,
			Timeout:     cfg.ResetTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			OnStateChange: func(_ string, from, to gobreaker.State) {
				if onChange != nil {
					onChange(convertState(from), convertState(to))
				}
			},
		})
	}

	if cfg.RecordsPerSec > 0 {
		g.records = rate.NewLimiter(rate.Limit(cfg.RecordsPerSec), cfg.RecordsPerSec)
	}
	if cfg.BytesPerSec > 0 {
		g.bytes = rate.NewLimiter(rate.Limit(cfg.BytesPerSec), cfg.BytesPerSec)
	}

	return g
}

// Permit is held for the duration of one partition operation. Its probe flag
// is set when the permit was granted while the breaker was half-open.
type Permit struct {
	gate  *Gate
	done  func(success bool)
	probe bool
	once  sync.Once
}

// Acquire waits for a concurrency slot and then asks the breaker for
// permission. A breaker rejection releases the slot and returns a
// CircuitOpen error.
func (g *Gate) Acquire(ctx context.Context) (*Permit, error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	var (
		done  func(bool)
		probe bool
	)
	if g.breaker != nil {
		var err error
		done, err = g.breaker.Allow()
		if err != nil {
			g.sem.Release(1)
			return nil, apperrors.CircuitOpen(fmt.Errorf("%s: %w", g.name, err))
		}
		probe = g.breaker.State() == gobreaker.StateHalfOpen
	}

	n := g.inFlight.Add(1)
	for {
		peak := g.peak.Load()
		if n <= peak || g.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	return &Permit{gate: g, done: done, probe: probe}, nil
}

// Done records the outcome and releases the slot. Only the first call has an
// effect, so it is safe to defer alongside an explicit call.
//
// A cancelled attempt says nothing about the remote side: it is left out of
// the closed-state counts, and a cancelled half-open probe reopens the
// breaker since the probe never succeeded.
func (p *Permit) Done(err error) {
	if p == nil {
		return
	}
	p.once.Do(func() {
		if p.done != nil {
			switch {
			case err == nil:
				p.done(true)
			case errors.Is(err, context.Canceled):
				if p.probe {
					p.done(false)
				}
			default:
				p.done(false)
			}
		}
		p.gate.inFlight.Add(-1)
		p.gate.sem.Release(1)
	})
}

// Do runs fn under a permit.
func (g *Gate) Do(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	permit, err := g.Acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			permit.Done(fmt.Errorf("panic: %v", r))
			panic(r)
		}
		permit.Done(err)
	}()
	return fn(ctx)
}

// WaitRecords blocks until n records may be processed.
func (g *Gate) WaitRecords(ctx context.Context, n int) error {
	return waitN(ctx, g.records, n)
}

// WaitBytes blocks until n bytes may be processed.
func (g *Gate) WaitBytes(ctx context.Context, n int) error {
	return waitN(ctx, g.bytes, n)
}

func waitN(ctx context.Context, limiter *rate.Limiter, n int) error {
	if limiter == nil || n <= 0 {
		return nil
	}
	burst := limiter.Burst()
	for n > 0 {
		chunk := n
		if chunk > burst {
			chunk = burst
		}
		if err := limiter.WaitN(ctx, chunk); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}

// InFlight returns the number of permits currently held.
func (g *Gate) InFlight() int {
	return int(g.inFlight.Load())
}

// Peak returns the highest number of permits held at once.
func (g *Gate) Peak() int {
	return int(g.peak.Load())
}

// State returns the breaker state; a gate without a breaker is always closed.
func (g *Gate) State() State {
	if g.breaker == nil {
		return StateClosed
	}
	return convertState(g.breaker.State())
}

func convertState(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}
