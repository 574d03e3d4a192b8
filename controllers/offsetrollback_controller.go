package controllers

import (
	"context"
	"fmt"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"
	"sigs.k8s.io/controller-runtime/pkg/handler"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/source"

	"github.com/quantica-technologies/kafka-backup-operator/api/v1alpha1"
	"github.com/quantica-technologies/kafka-backup-operator/internal/app/runner"
	"github.com/quantica-technologies/kafka-backup-operator/internal/domain"
	"github.com/quantica-technologies/kafka-backup-operator/internal/resolve"
	"github.com/quantica-technologies/kafka-backup-operator/internal/usecase"
	apperrors "github.com/quantica-technologies/kafka-backup-operator/pkg/errors"
	"github.com/quantica-technologies/kafka-backup-operator/pkg/logger"
	"github.com/quantica-technologies/kafka-backup-operator/pkg/metrics"
)

type rollbackTask = runner.Runner[struct{}, *domain.OffsetRollbackResult]

// KafkaOffsetRollbackReconciler reconciles a KafkaOffsetRollback object
type KafkaOffsetRollbackReconciler struct {
	client.Client
	Scheme   *runtime.Scheme
	Resolver *resolve.Resolver
	Engine   usecase.OffsetUseCase
	Metrics  *metrics.Metrics

	MaxConcurrentReconciles int

	runner   *rollbackTask
	notifier *notifier
	now      func() time.Time
}

func NewKafkaOffsetRollbackReconciler(c client.Client, scheme *runtime.Scheme, resolver *resolve.Resolver,
	engine usecase.OffsetUseCase, m *metrics.Metrics, log logger.Logger) *KafkaOffsetRollbackReconciler {

	n := newNotifier(func() client.Object { return &v1alpha1.KafkaOffsetRollback{} })
	return &KafkaOffsetRollbackReconciler{
		Client:   c,
		Scheme:   scheme,
		Resolver: resolver,
		Engine:   engine,
		Metrics:  m,
		runner:   runner.New[struct{}, *domain.OffsetRollbackResult](KindOffsetRollback, m, log, n.notify),
		notifier: n,
		now:      time.Now,
	}
}

// +kubebuilder:rbac:groups=backup.kafka.io,resources=kafkaoffsetrollbacks,verbs=get;list;watch;update;patch
// +kubebuilder:rbac:groups=backup.kafka.io,resources=kafkaoffsetrollbacks/status,verbs=get;update;patch
// +kubebuilder:rbac:groups=backup.kafka.io,resources=kafkaoffsetrollbacks/finalizers,verbs=update

func (r *KafkaOffsetRollbackReconciler) Reconcile(ctx context.Context, req ctrl.Request) (result ctrl.Result, err error) {
	defer observe(r.Metrics, KindOffsetRollback, time.Now(), &err)

	korb := &v1alpha1.KafkaOffsetRollback{}
	if err := r.Get(ctx, req.NamespacedName, korb); err != nil {
		if apierrors.IsNotFound(err) {
			r.runner.Forget(req.NamespacedName)
			return ctrl.Result{}, nil
		}
		return ctrl.Result{}, err
	}

	if !korb.DeletionTimestamp.IsZero() {
		return r.finalize(ctx, korb)
	}

	if controllerutil.AddFinalizer(korb, v1alpha1.OffsetRollbackFinalizer) {
		if err := r.Update(ctx, korb); err != nil {
			return ctrl.Result{}, err
		}
	}

	before := korb.Status.DeepCopy()

	if st, ok := r.runner.Get(req.NamespacedName); ok {
		if st.Running {
			return ctrl.Result{RequeueAfter: progressRequeue}, nil
		}
		r.applyOutcome(korb, st)
		if err := updateStatus(ctx, r.Client, korb, before, &korb.Status); err != nil {
			return ctrl.Result{}, err
		}
		r.runner.Forget(req.NamespacedName)
		log.FromContext(ctx).Info("Offset rollback finished", "snapshotID", korb.Status.SnapshotID, "phase", korb.Status.Phase)
		return ctrl.Result{}, nil
	}

	if korb.Status.ObservedGeneration == korb.Generation && korb.Status.Phase.IsTerminal() {
		return ctrl.Result{}, nil
	}

	rreq, err := r.Resolver.OffsetRollbackRequest(ctx, korb)
	if err != nil {
		return r.rejected(ctx, korb, before, err)
	}

	key := client.ObjectKeyFromObject(korb)
	err = r.runner.Submit(key, rreq.SnapshotID, korb.Generation, func(ctx context.Context, _ func(struct{})) (*domain.OffsetRollbackResult, error) {
		return r.Engine.Rollback(ctx, rreq)
	})
	if err != nil {
		return ctrl.Result{}, err
	}

	st := &korb.Status
	*st = v1alpha1.KafkaOffsetRollbackStatus{Conditions: st.Conditions}
	st.Phase = v1alpha1.OffsetPhaseRunning
	st.StartTime = metaTime(r.now().UTC())
	st.SnapshotID = rreq.SnapshotID
	st.ObservedGeneration = korb.Generation
	st.Message = fmt.Sprintf("Rolling back offsets from snapshot %s", rreq.SnapshotID)
	setReady(&st.Conditions, korb.Generation, metav1.ConditionFalse, v1alpha1.ReasonInProgress, st.Message)

	if err := updateStatus(ctx, r.Client, korb, before, st); err != nil {
		return ctrl.Result{}, err
	}
	return ctrl.Result{RequeueAfter: progressRequeue}, nil
}

func (r *KafkaOffsetRollbackReconciler) rejected(ctx context.Context, korb *v1alpha1.KafkaOffsetRollback, before *v1alpha1.KafkaOffsetRollbackStatus, cause error) (ctrl.Result, error) {
	st := &korb.Status
	st.Message = apperrors.Message(cause)
	if apperrors.IsKind(cause, apperrors.KindConfiguration) {
		st.Phase = v1alpha1.OffsetPhaseFailed
		st.ObservedGeneration = korb.Generation
		setReady(&st.Conditions, korb.Generation, metav1.ConditionFalse, v1alpha1.ReasonValidationFailed, st.Message)
	} else {
		st.Phase = v1alpha1.OffsetPhasePending
		setReady(&st.Conditions, korb.Generation, metav1.ConditionFalse, v1alpha1.ReasonRollbackFailed, st.Message)
	}
	r.Metrics.ReconciliationErrors.WithLabelValues(KindOffsetRollback).Inc()
	log.FromContext(ctx).Info("Offset rollback cannot start", "error", cause.Error(), "kind", apperrors.KindOf(cause))

	if err := updateStatus(ctx, r.Client, korb, before, st); err != nil {
		return ctrl.Result{}, err
	}
	return requeueFor(cause)
}

// applyOutcome maps a finished rollback to its terminal phase. Offsets that
// were written but do not verify against the snapshot count as partial.
func (r *KafkaOffsetRollbackReconciler) applyOutcome(korb *v1alpha1.KafkaOffsetRollback, task runner.Status[struct{}, *domain.OffsetRollbackResult]) {
	st := &korb.Status
	st.ObservedGeneration = task.Generation
	st.CompletionTime = metaTime(task.FinishedAt)

	res := task.Result
	dryRun := false
	if res != nil {
		dryRun = res.DryRun
		if res.SnapshotID != "" {
			st.SnapshotID = res.SnapshotID
		}
		st.GroupsRolledBack = res.GroupsRolledBack
		st.GroupsFailed = res.GroupsFailed
		st.Verification = nil
		if v := res.Verification; v != nil {
			st.Verification = &v1alpha1.VerificationResult{
				AllMatched:       v.AllMatched,
				TotalGroups:      v.TotalGroups,
				MatchedGroups:    v.MatchedGroups,
				MismatchedGroups: v.MismatchedGroups,
			}
		}
	}

	switch {
	case task.Err == nil && st.Verification != nil && !st.Verification.AllMatched:
		st.Phase = v1alpha1.OffsetPhasePartiallyCompleted
		st.Message = fmt.Sprintf("Rolled back %d consumer groups but %d did not verify",
			st.GroupsRolledBack, len(st.Verification.MismatchedGroups))
		setReady(&st.Conditions, korb.Generation, metav1.ConditionFalse, v1alpha1.ReasonPartialFailure, st.Message)

	case task.Err == nil:
		st.Phase = v1alpha1.OffsetPhaseCompleted
		if dryRun {
			st.Message = fmt.Sprintf("Dry run passed for snapshot %s", st.SnapshotID)
			setReady(&st.Conditions, korb.Generation, metav1.ConditionTrue, v1alpha1.ReasonDryRunPassed, st.Message)
			return
		}
		st.Message = fmt.Sprintf("Rolled back %d consumer groups", st.GroupsRolledBack)
		setReady(&st.Conditions, korb.Generation, metav1.ConditionTrue, v1alpha1.ReasonRollbackSucceeded, st.Message)

	case st.GroupsRolledBack > 0:
		st.Phase = v1alpha1.OffsetPhasePartiallyCompleted
		st.Message = fmt.Sprintf("Rolled back %d consumer groups, %d failed: %s",
			st.GroupsRolledBack, st.GroupsFailed, apperrors.Message(task.Err))
		setReady(&st.Conditions, korb.Generation, metav1.ConditionFalse, v1alpha1.ReasonPartialFailure, st.Message)

	default:
		st.Phase = v1alpha1.OffsetPhaseFailed
		st.Message = "Offset rollback failed: " + apperrors.Message(task.Err)
		setReady(&st.Conditions, korb.Generation, metav1.ConditionFalse, v1alpha1.ReasonRollbackFailed, st.Message)
	}
}

func (r *KafkaOffsetRollbackReconciler) finalize(ctx context.Context, korb *v1alpha1.KafkaOffsetRollback) (ctrl.Result, error) {
	if !controllerutil.ContainsFinalizer(korb, v1alpha1.OffsetRollbackFinalizer) {
		return ctrl.Result{}, nil
	}
	key := client.ObjectKeyFromObject(korb)

	cancelCtx, cancel := context.WithTimeout(ctx, cancelTimeout)
	defer cancel()
	if err := r.runner.Cancel(cancelCtx, key); err != nil {
		return ctrl.Result{}, fmt.Errorf("failed to stop offset rollback task: %w", err)
	}
	r.runner.Forget(key)

	controllerutil.RemoveFinalizer(korb, v1alpha1.OffsetRollbackFinalizer)
	if err := r.Update(ctx, korb); err != nil {
		return ctrl.Result{}, err
	}
	r.Metrics.Cleanups.WithLabelValues(KindOffsetRollback).Inc()
	return ctrl.Result{}, nil
}

// SetupWithManager sets up the controller with the Manager.
func (r *KafkaOffsetRollbackReconciler) SetupWithManager(mgr ctrl.Manager) error {
	if err := mgr.Add(r.runner); err != nil {
		return err
	}
	return ctrl.NewControllerManagedBy(mgr).
		For(&v1alpha1.KafkaOffsetRollback{}).
		WatchesRawSource(source.Channel(r.notifier.events, &handler.EnqueueRequestForObject{})).
		WithOptions(controller.Options{MaxConcurrentReconciles: r.MaxConcurrentReconciles}).
		Named("kafkaoffsetrollback").
		Complete(r)
}
