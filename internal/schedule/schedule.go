// Package schedule decides when a scheduled backup is due.
package schedule

import (
	"time"

	cron "github.com/robfig/cron/v3"

	apperrors "github.com/quantica-technologies/kafka-backup-operator/pkg/errors"
)

// MaxRequeue caps how long a reconcile waits before looking at a schedule
// again, so spec edits and clock jumps are noticed.
const MaxRequeue = 5 * time.Minute

// parser accepts the five standard fields, an optional leading seconds
// field and descriptors such as @hourly.
var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Decision is the outcome of evaluating a schedule at one instant
type Decision struct {
	// Due is set when a run should start now.
	Due bool
	// NextRun is the next fire time after the run that is due, or after
	// lastRun when nothing is due.
	NextRun time.Time
	// RequeueAfter is how long to wait before evaluating again.
	RequeueAfter time.Duration
}

// Parse validates a cron expression.
func Parse(expr string) (cron.Schedule, error) {
	sch, err := parser.Parse(expr)
	if err != nil {
		return nil, apperrors.Configuration("Invalid cron schedule '%s': %v", expr, err)
	}
	return sch, nil
}

// Next evaluates expr at now. A schedule that never ran is due at once; one
// that did is due when its first fire time after lastRun has passed.
// Missed fire times collapse into a single due run.
func Next(expr string, now time.Time, lastRun *time.Time) (Decision, error) {
	sch, err := Parse(expr)
	if err != nil {
		return Decision{}, err
	}
	now = now.UTC()

	if lastRun == nil || lastRun.IsZero() {
		return due(sch, now), nil
	}

	fire := sch.Next(lastRun.UTC())
	if fire.IsZero() {
		return Decision{RequeueAfter: MaxRequeue}, nil
	}
	if !now.Before(fire) {
		return due(sch, now), nil
	}
	return Decision{NextRun: fire, RequeueAfter: requeue(fire.Sub(now))}, nil
}

func due(sch cron.Schedule, now time.Time) Decision {
	next := sch.Next(now)
	d := Decision{Due: true, NextRun: next, RequeueAfter: MaxRequeue}
	if !next.IsZero() {
		d.RequeueAfter = requeue(next.Sub(now))
	}
	return d
}

func requeue(d time.Duration) time.Duration {
	if d > MaxRequeue {
		return MaxRequeue
	}
	if d < time.Second {
		return time.Second
	}
	return d
}
