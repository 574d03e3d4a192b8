package schedule

import (
	"testing"
	"time"

	apperrors "github.com/quantica-technologies/kafka-backup-operator/pkg/errors"
)

func at(hour, minute, second int) time.Time {
	return time.Date(2024, 3, 1, hour, minute, second, 0, time.UTC)
}

func ptr(t time.Time) *time.Time { return &t }

func TestNext(t *testing.T) {
	tests := []struct {
		name        string
		expr        string
		now         time.Time
		lastRun     *time.Time
		wantDue     bool
		wantNext    time.Time
		wantRequeue time.Duration
	}{
		{
			name:        "never ran",
			expr:        "0 * * * *",
			now:         at(10, 20, 0),
			wantDue:     true,
			wantNext:    at(11, 0, 0),
			wantRequeue: MaxRequeue,
		},
		{
			name:        "fire time not reached",
			expr:        "0 * * * *",
			now:         at(10, 58, 0),
			lastRun:     ptr(at(10, 0, 5)),
			wantNext:    at(11, 0, 0),
			wantRequeue: 2 * time.Minute,
		},
		{
			name:        "requeue capped",
			expr:        "0 * * * *",
			now:         at(10, 20, 0),
			lastRun:     ptr(at(10, 0, 5)),
			wantNext:    at(11, 0, 0),
			wantRequeue: MaxRequeue,
		},
		{
			name:        "fire time reached",
			expr:        "0 * * * *",
			now:         at(11, 0, 0),
			lastRun:     ptr(at(10, 0, 5)),
			wantDue:     true,
			wantNext:    at(12, 0, 0),
			wantRequeue: MaxRequeue,
		},
		{
			name:        "missed runs collapse",
			expr:        "*/15 * * * *",
			now:         at(13, 7, 0),
			lastRun:     ptr(at(10, 0, 0)),
			wantDue:     true,
			wantNext:    at(13, 15, 0),
			wantRequeue: MaxRequeue,
		},
		{
			name:        "seconds field",
			expr:        "30 * * * * *",
			now:         at(10, 0, 10),
			lastRun:     ptr(at(9, 59, 30)),
			wantNext:    at(10, 0, 30),
			wantRequeue: 20 * time.Second,
		},
		{
			name:        "descriptor",
			expr:        "@daily",
			now:         at(23, 59, 0),
			lastRun:     ptr(at(0, 0, 1)),
			wantNext:    time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC),
			wantRequeue: time.Minute,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Next(tt.expr, tt.now, tt.lastRun)
			if err != nil {
				t.Fatalf("Next returned error: %v", err)
			}
			if got.Due != tt.wantDue {
				t.Errorf("Due = %v, want %v", got.Due, tt.wantDue)
			}
			if !got.NextRun.Equal(tt.wantNext) {
				t.Errorf("NextRun = %s, want %s", got.NextRun, tt.wantNext)
			}
			if got.RequeueAfter != tt.wantRequeue {
				t.Errorf("RequeueAfter = %s, want %s", got.RequeueAfter, tt.wantRequeue)
			}
		})
	}
}

func TestNextIsPure(t *testing.T) {
	last := at(10, 0, 0)
	first, err := Next("*/5 * * * *", at(10, 3, 0), &last)
	if err != nil {
		t.Fatalf("Next returned error: %v", err)
	}
	second, _ := Next("*/5 * * * *", at(10, 3, 0), &last)
	if first != second {
		t.Errorf("repeated evaluation differs: %+v vs %+v", first, second)
	}
}

func TestParseRejectsInvalidExpressions(t *testing.T) {
	for _, expr := range []string{"", "every hour", "61 * * * *", "* * * *"} {
		_, err := Parse(expr)
		if !apperrors.IsKind(err, apperrors.KindConfiguration) {
			t.Errorf("Parse(%q) = %v, want configuration error", expr, err)
		}
	}
}
