// Package controllers reconciles the backup.kafka.io resources. Engines run
// as runner tasks outside the reconcile loop; a finished task enqueues its
// resource through a channel source so the outcome lands in status promptly.
package controllers

import (
	"context"
	"time"

	"k8s.io/apimachinery/pkg/api/equality"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/event"

	"github.com/quantica-technologies/kafka-backup-operator/api/v1alpha1"
	apperrors "github.com/quantica-technologies/kafka-backup-operator/pkg/errors"
	"github.com/quantica-technologies/kafka-backup-operator/pkg/metrics"
)

// Resource kinds, used as runner and metric labels
const (
	KindBackup         = "KafkaBackup"
	KindRestore        = "KafkaRestore"
	KindOffsetReset    = "KafkaOffsetReset"
	KindOffsetRollback = "KafkaOffsetRollback"
)

const (
	transientRequeue   = 5 * time.Minute
	circuitOpenRequeue = 10 * time.Minute
	progressRequeue    = 30 * time.Second
	suspendedRequeue   = 60 * time.Second

	// cancelTimeout bounds how long deletion waits for a task to stop
	cancelTimeout = 2 * time.Minute

	eventBuffer = 256
)

// requeueFor maps an error to the reconcile result. Configuration and data
// integrity errors cannot resolve themselves and wait for a spec change.
func requeueFor(err error) (ctrl.Result, error) {
	switch apperrors.KindOf(err) {
	case "":
		return ctrl.Result{}, nil
	case apperrors.KindConfiguration, apperrors.KindDataIntegrity:
		return ctrl.Result{}, nil
	case apperrors.KindTransient:
		return ctrl.Result{RequeueAfter: transientRequeue}, nil
	case apperrors.KindCircuitOpen:
		return ctrl.Result{RequeueAfter: circuitOpenRequeue}, nil
	}
	return ctrl.Result{}, err
}

// retryDelay is how long a failed backup run waits before it is resumed.
func retryDelay(err error) time.Duration {
	if apperrors.IsKind(err, apperrors.KindCircuitOpen) {
		return circuitOpenRequeue
	}
	return transientRequeue
}

// resumable reports whether a failed run may be picked up again.
func resumable(err error) bool {
	switch apperrors.KindOf(err) {
	case apperrors.KindConfiguration, apperrors.KindDataIntegrity:
		return false
	}
	return true
}

// observe records one reconcile. Use as defer observe(m, kind, time.Now(), &err).
func observe(m *metrics.Metrics, kind string, start time.Time, err *error) {
	m.Reconciliations.WithLabelValues(kind).Inc()
	m.ReconcileDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	if *err != nil {
		m.ReconciliationErrors.WithLabelValues(kind).Inc()
	}
}

func setReady(conditions *[]metav1.Condition, generation int64, status metav1.ConditionStatus, reason, message string) {
	meta.SetStatusCondition(conditions, metav1.Condition{
		Type:               v1alpha1.ConditionReady,
		Status:             status,
		Reason:             reason,
		Message:            message,
		ObservedGeneration: generation,
	})
}

// updateStatus writes the status subresource only when it changed, so a
// reconcile with nothing to do leaves the object untouched.
func updateStatus(ctx context.Context, c client.Client, obj client.Object, before, after interface{}) error {
	if equality.Semantic.DeepEqual(before, after) {
		return nil
	}
	return c.Status().Update(ctx, obj)
}

// notifier turns finished runner tasks into reconcile requests.
type notifier struct {
	events chan event.GenericEvent
	newObj func() client.Object
}

func newNotifier(newObj func() client.Object) *notifier {
	return &notifier{events: make(chan event.GenericEvent, eventBuffer), newObj: newObj}
}

// notify never blocks the task goroutine. A dropped event is covered by the
// periodic requeue of running resources.
func (n *notifier) notify(key types.NamespacedName) {
	obj := n.newObj()
	obj.SetNamespace(key.Namespace)
	obj.SetName(key.Name)
	select {
	case n.events <- event.GenericEvent{Object: obj}:
	default:
	}
}

func metaTime(t time.Time) *metav1.Time {
	if t.IsZero() {
		return nil
	}
	mt := metav1.NewTime(t)
	return &mt
}
