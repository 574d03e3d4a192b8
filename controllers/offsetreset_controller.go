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

type resetTask = runner.Runner[struct{}, *domain.OffsetResetResult]

// KafkaOffsetResetReconciler reconciles a KafkaOffsetReset object
type KafkaOffsetResetReconciler struct {
	client.Client
	Scheme   *runtime.Scheme
	Resolver *resolve.Resolver
	Engine   usecase.OffsetUseCase
	Metrics  *metrics.Metrics

	MaxConcurrentReconciles int

	runner   *resetTask
	notifier *notifier
	now      func() time.Time
}

func NewKafkaOffsetResetReconciler(c client.Client, scheme *runtime.Scheme, resolver *resolve.Resolver,
	engine usecase.OffsetUseCase, m *metrics.Metrics, log logger.Logger) *KafkaOffsetResetReconciler {

	n := newNotifier(func() client.Object { return &v1alpha1.KafkaOffsetReset{} })
	return &KafkaOffsetResetReconciler{
		Client:   c,
		Scheme:   scheme,
		Resolver: resolver,
		Engine:   engine,
		Metrics:  m,
		runner:   runner.New[struct{}, *domain.OffsetResetResult](KindOffsetReset, m, log, n.notify),
		notifier: n,
		now:      time.Now,
	}
}

// +kubebuilder:rbac:groups=backup.kafka.io,resources=kafkaoffsetresets,verbs=get;list;watch;update;patch
// +kubebuilder:rbac:groups=backup.kafka.io,resources=kafkaoffsetresets/status,verbs=get;update;patch
// +kubebuilder:rbac:groups=backup.kafka.io,resources=kafkaoffsetresets/finalizers,verbs=update

func (r *KafkaOffsetResetReconciler) Reconcile(ctx context.Context, req ctrl.Request) (result ctrl.Result, err error) {
	defer observe(r.Metrics, KindOffsetReset, time.Now(), &err)

	kor := &v1alpha1.KafkaOffsetReset{}
	if err := r.Get(ctx, req.NamespacedName, kor); err != nil {
		if apierrors.IsNotFound(err) {
			r.runner.Forget(req.NamespacedName)
			return ctrl.Result{}, nil
		}
		return ctrl.Result{}, err
	}

	if !kor.DeletionTimestamp.IsZero() {
		return r.finalize(ctx, kor)
	}

	if controllerutil.AddFinalizer(kor, v1alpha1.OffsetResetFinalizer) {
		if err := r.Update(ctx, kor); err != nil {
			return ctrl.Result{}, err
		}
	}

	before := kor.Status.DeepCopy()

	if st, ok := r.runner.Get(req.NamespacedName); ok {
		if st.Running {
			return ctrl.Result{RequeueAfter: progressRequeue}, nil
		}
		r.applyOutcome(kor, st)
		if err := updateStatus(ctx, r.Client, kor, before, &kor.Status); err != nil {
			return ctrl.Result{}, err
		}
		r.runner.Forget(req.NamespacedName)
		log.FromContext(ctx).Info("Offset reset finished", "phase", kor.Status.Phase,
			"groupsReset", kor.Status.GroupsReset, "groupsFailed", kor.Status.GroupsFailed)
		return ctrl.Result{}, nil
	}

	if kor.Status.ObservedGeneration == kor.Generation && kor.Status.Phase.IsTerminal() {
		return ctrl.Result{}, nil
	}

	oreq, err := r.Resolver.OffsetResetRequest(ctx, kor)
	if err != nil {
		return r.rejected(ctx, kor, before, err)
	}

	key := client.ObjectKeyFromObject(kor)
	err = r.runner.Submit(key, oreq.SnapshotID, kor.Generation, func(ctx context.Context, _ func(struct{})) (*domain.OffsetResetResult, error) {
		return r.Engine.Reset(ctx, oreq)
	})
	if err != nil {
		return ctrl.Result{}, err
	}

	st := &kor.Status
	*st = v1alpha1.KafkaOffsetResetStatus{Conditions: st.Conditions}
	st.Phase = v1alpha1.OffsetPhaseRunning
	st.StartTime = metaTime(r.now().UTC())
	st.GroupsTotal = len(oreq.Groups)
	st.ObservedGeneration = kor.Generation
	st.Message = fmt.Sprintf("Resetting %d consumer groups with strategy %s", len(oreq.Groups), oreq.Strategy)
	setReady(&st.Conditions, kor.Generation, metav1.ConditionFalse, v1alpha1.ReasonInProgress, st.Message)

	if err := updateStatus(ctx, r.Client, kor, before, st); err != nil {
		return ctrl.Result{}, err
	}
	return ctrl.Result{RequeueAfter: progressRequeue}, nil
}

func (r *KafkaOffsetResetReconciler) rejected(ctx context.Context, kor *v1alpha1.KafkaOffsetReset, before *v1alpha1.KafkaOffsetResetStatus, cause error) (ctrl.Result, error) {
	st := &kor.Status
	st.Message = apperrors.Message(cause)
	if apperrors.IsKind(cause, apperrors.KindConfiguration) {
		st.Phase = v1alpha1.OffsetPhaseFailed
		st.ObservedGeneration = kor.Generation
		setReady(&st.Conditions, kor.Generation, metav1.ConditionFalse, v1alpha1.ReasonValidationFailed, st.Message)
	} else {
		st.Phase = v1alpha1.OffsetPhasePending
		setReady(&st.Conditions, kor.Generation, metav1.ConditionFalse, v1alpha1.ReasonResetFailed, st.Message)
	}
	r.Metrics.ReconciliationErrors.WithLabelValues(KindOffsetReset).Inc()
	log.FromContext(ctx).Info("Offset reset cannot start", "error", cause.Error(), "kind", apperrors.KindOf(cause))

	if err := updateStatus(ctx, r.Client, kor, before, st); err != nil {
		return ctrl.Result{}, err
	}
	return requeueFor(cause)
}

// applyOutcome maps a finished reset to its terminal phase. A reset that
// continued past failing groups ends PartiallyCompleted.
func (r *KafkaOffsetResetReconciler) applyOutcome(kor *v1alpha1.KafkaOffsetReset, task runner.Status[struct{}, *domain.OffsetResetResult]) {
	st := &kor.Status
	st.ObservedGeneration = task.Generation
	st.CompletionTime = metaTime(task.FinishedAt)
	st.Duration = task.FinishedAt.Sub(task.StartedAt).Round(time.Millisecond).String()

	res := task.Result
	dryRun := false
	if res != nil {
		dryRun = res.DryRun
		st.GroupsTotal = res.GroupsTotal
		st.GroupsReset = res.GroupsReset
		st.GroupsFailed = res.GroupsFailed
		st.Duration = res.Duration.Round(time.Millisecond).String()
		if res.Snapshot != nil {
			st.SnapshotID = res.Snapshot.ID
			st.SnapshotPath = res.Snapshot.Path
		}
		st.GroupResults = make([]v1alpha1.GroupResetResult, 0, len(res.GroupResults))
		for _, g := range res.GroupResults {
			st.GroupResults = append(st.GroupResults, v1alpha1.GroupResetResult{
				GroupID:         g.GroupID,
				Success:         g.Success,
				Error:           g.Error,
				PartitionsReset: g.PartitionsReset,
			})
		}
	}

	switch {
	case task.Err == nil && st.GroupsFailed == 0:
		st.Phase = v1alpha1.OffsetPhaseCompleted
		if dryRun {
			st.Message = fmt.Sprintf("Dry run passed for %d consumer groups", st.GroupsTotal)
			setReady(&st.Conditions, kor.Generation, metav1.ConditionTrue, v1alpha1.ReasonDryRunPassed, st.Message)
			return
		}
		st.Message = fmt.Sprintf("Reset %d consumer groups", st.GroupsReset)
		setReady(&st.Conditions, kor.Generation, metav1.ConditionTrue, v1alpha1.ReasonResetSucceeded, st.Message)

	case st.GroupsFailed > 0 && st.GroupsReset > 0:
		st.Phase = v1alpha1.OffsetPhasePartiallyCompleted
		st.Message = fmt.Sprintf("Reset %d of %d consumer groups, %d failed", st.GroupsReset, st.GroupsTotal, st.GroupsFailed)
		setReady(&st.Conditions, kor.Generation, metav1.ConditionFalse, v1alpha1.ReasonPartialFailure, st.Message)

	default:
		st.Phase = v1alpha1.OffsetPhaseFailed
		if task.Err != nil {
			st.Message = "Offset reset failed: " + apperrors.Message(task.Err)
		} else {
			st.Message = fmt.Sprintf("All %d consumer groups failed to reset", st.GroupsFailed)
		}
		setReady(&st.Conditions, kor.Generation, metav1.ConditionFalse, v1alpha1.ReasonResetFailed, st.Message)
	}
}

func (r *KafkaOffsetResetReconciler) finalize(ctx context.Context, kor *v1alpha1.KafkaOffsetReset) (ctrl.Result, error) {
	if !controllerutil.ContainsFinalizer(kor, v1alpha1.OffsetResetFinalizer) {
		return ctrl.Result{}, nil
	}
	key := client.ObjectKeyFromObject(kor)

	cancelCtx, cancel := context.WithTimeout(ctx, cancelTimeout)
	defer cancel()
	if err := r.runner.Cancel(cancelCtx, key); err != nil {
		return ctrl.Result{}, fmt.Errorf("failed to stop offset reset task: %w", err)
	}
	r.runner.Forget(key)

	controllerutil.RemoveFinalizer(kor, v1alpha1.OffsetResetFinalizer)
	if err := r.Update(ctx, kor); err != nil {
		return ctrl.Result{}, err
	}
	r.Metrics.Cleanups.WithLabelValues(KindOffsetReset).Inc()
	return ctrl.Result{}, nil
}

// SetupWithManager sets up the controller with the Manager.
func (r *KafkaOffsetResetReconciler) SetupWithManager(mgr ctrl.Manager) error {
	if err := mgr.Add(r.runner); err != nil {
		return err
	}
	return ctrl.NewControllerManagedBy(mgr).
		For(&v1alpha1.KafkaOffsetReset{}).
		WatchesRawSource(source.Channel(r.notifier.events, &handler.EnqueueRequestForObject{})).
		WithOptions(controller.Options{MaxConcurrentReconciles: r.MaxConcurrentReconciles}).
		Named("kafkaoffsetreset").
		Complete(r)
}
