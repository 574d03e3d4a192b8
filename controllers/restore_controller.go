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

type restoreTask = runner.Runner[domain.RestoreProgress, *domain.RestoreResult]

// KafkaRestoreReconciler reconciles a KafkaRestore object
type KafkaRestoreReconciler struct {
	client.Client
	Scheme   *runtime.Scheme
	Resolver *resolve.Resolver
	Engine   usecase.RestoreUseCase
	Metrics  *metrics.Metrics

	MaxConcurrentReconciles int

	runner   *restoreTask
	notifier *notifier
	now      func() time.Time
}

// NewKafkaRestoreReconciler wires a reconciler and its task runner.
func NewKafkaRestoreReconciler(c client.Client, scheme *runtime.Scheme, resolver *resolve.Resolver,
	engine usecase.RestoreUseCase, m *metrics.Metrics, log logger.Logger) *KafkaRestoreReconciler {

	n := newNotifier(func() client.Object { return &v1alpha1.KafkaRestore{} })
	return &KafkaRestoreReconciler{
		Client:   c,
		Scheme:   scheme,
		Resolver: resolver,
		Engine:   engine,
		Metrics:  m,
		runner:   runner.New[domain.RestoreProgress, *domain.RestoreResult](KindRestore, m, log, n.notify),
		notifier: n,
		now:      time.Now,
	}
}

// +kubebuilder:rbac:groups=backup.kafka.io,resources=kafkarestores,verbs=get;list;watch;update;patch
// +kubebuilder:rbac:groups=backup.kafka.io,resources=kafkarestores/status,verbs=get;update;patch
// +kubebuilder:rbac:groups=backup.kafka.io,resources=kafkarestores/finalizers,verbs=update
// +kubebuilder:rbac:groups=backup.kafka.io,resources=kafkabackups,verbs=get;list;watch

func (r *KafkaRestoreReconciler) Reconcile(ctx context.Context, req ctrl.Request) (result ctrl.Result, err error) {
	defer observe(r.Metrics, KindRestore, time.Now(), &err)

	kr := &v1alpha1.KafkaRestore{}
	if err := r.Get(ctx, req.NamespacedName, kr); err != nil {
		if apierrors.IsNotFound(err) {
			r.runner.Forget(req.NamespacedName)
			return ctrl.Result{}, nil
		}
		return ctrl.Result{}, err
	}

	if !kr.DeletionTimestamp.IsZero() {
		return r.finalize(ctx, kr)
	}

	if controllerutil.AddFinalizer(kr, v1alpha1.RestoreFinalizer) {
		if err := r.Update(ctx, kr); err != nil {
			return ctrl.Result{}, err
		}
	}

	before := kr.Status.DeepCopy()

	if st, ok := r.runner.Get(req.NamespacedName); ok {
		if st.Running {
			r.applyProgress(kr, st)
			if err := updateStatus(ctx, r.Client, kr, before, &kr.Status); err != nil {
				return ctrl.Result{}, err
			}
			return ctrl.Result{RequeueAfter: progressRequeue}, nil
		}

		r.applyOutcome(kr, st)
		if err := updateStatus(ctx, r.Client, kr, before, &kr.Status); err != nil {
			return ctrl.Result{}, err
		}
		r.runner.Forget(req.NamespacedName)
		log.FromContext(ctx).Info("Restore finished", "restoreID", st.ID, "phase", kr.Status.Phase)
		return ctrl.Result{}, nil
	}

	// A terminal phase of the current generation awaits a spec change
	if kr.Status.ObservedGeneration == kr.Generation && kr.Status.Phase.IsTerminal() {
		return ctrl.Result{}, nil
	}

	return r.start(ctx, kr, before)
}

// start submits the restore of the current generation. The restore id is
// derived from the generation, so a restore interrupted by an operator
// restart resumes from its segment checkpoints.
func (r *KafkaRestoreReconciler) start(ctx context.Context, kr *v1alpha1.KafkaRestore, before *v1alpha1.KafkaRestoreStatus) (ctrl.Result, error) {
	rreq, err := r.Resolver.RestoreRequest(ctx, kr)
	if err != nil {
		return r.rejected(ctx, kr, before, err)
	}

	key := client.ObjectKeyFromObject(kr)
	err = r.runner.Submit(key, rreq.RestoreID, kr.Generation, func(ctx context.Context, report func(domain.RestoreProgress)) (*domain.RestoreResult, error) {
		return r.Engine.Run(ctx, rreq, func(phase domain.RestorePhase, progress domain.RestoreProgress) {
			progress.Phase = phase
			report(progress)
		})
	})
	if err != nil {
		return ctrl.Result{}, err
	}

	st := &kr.Status
	if st.ObservedGeneration != kr.Generation || st.StartTime == nil {
		*st = v1alpha1.KafkaRestoreStatus{Conditions: st.Conditions}
		st.StartTime = metaTime(r.now().UTC())
	}
	st.Phase = v1alpha1.RestorePhaseValidating
	st.RestoreID = rreq.RestoreID
	st.ObservedGeneration = kr.Generation
	st.Message = fmt.Sprintf("Restore %s started", rreq.RestoreID)
	setReady(&st.Conditions, kr.Generation, metav1.ConditionFalse, v1alpha1.ReasonInProgress, st.Message)

	log.FromContext(ctx).Info("Restore started", "restoreID", rreq.RestoreID, "backup", rreq.BackupName, "dryRun", rreq.DryRun)
	if err := updateStatus(ctx, r.Client, kr, before, st); err != nil {
		return ctrl.Result{}, err
	}
	return ctrl.Result{RequeueAfter: progressRequeue}, nil
}

// rejected records an error raised before the restore could start. Only
// configuration errors are terminal.
func (r *KafkaRestoreReconciler) rejected(ctx context.Context, kr *v1alpha1.KafkaRestore, before *v1alpha1.KafkaRestoreStatus, cause error) (ctrl.Result, error) {
	st := &kr.Status
	st.LastError = apperrors.Message(cause)
	st.Message = st.LastError
	if apperrors.IsKind(cause, apperrors.KindConfiguration) {
		st.Phase = v1alpha1.RestorePhaseFailed
		st.LastRestoreStatus = v1alpha1.RunStatusFailed
		st.ObservedGeneration = kr.Generation
		setReady(&st.Conditions, kr.Generation, metav1.ConditionFalse, v1alpha1.ReasonValidationFailed, st.LastError)
	} else {
		st.Phase = v1alpha1.RestorePhasePending
		setReady(&st.Conditions, kr.Generation, metav1.ConditionFalse, v1alpha1.ReasonRestoreFailed, st.LastError)
	}
	r.Metrics.ReconciliationErrors.WithLabelValues(KindRestore).Inc()
	log.FromContext(ctx).Info("Restore cannot start", "error", cause.Error(), "kind", apperrors.KindOf(cause))

	if err := updateStatus(ctx, r.Client, kr, before, st); err != nil {
		return ctrl.Result{}, err
	}
	return requeueFor(cause)
}

func (r *KafkaRestoreReconciler) applyProgress(kr *v1alpha1.KafkaRestore, task runner.Status[domain.RestoreProgress, *domain.RestoreResult]) {
	st := &kr.Status
	p := task.Progress
	st.RestoreID = task.ID
	st.ObservedGeneration = task.Generation
	st.Phase = v1alpha1.RestorePhaseValidating
	if p.Phase != "" {
		st.Phase = v1alpha1.RestorePhase(p.Phase)
	}
	st.RecordsRestored = p.Records
	st.BytesRestored = p.Bytes
	st.SegmentsProcessed = int64(p.SegmentsProcessed)
	st.ProgressPercent = p.PercentComplete()
}

// applyOutcome maps a finished restore to its terminal phase.
func (r *KafkaRestoreReconciler) applyOutcome(kr *v1alpha1.KafkaRestore, task runner.Status[domain.RestoreProgress, *domain.RestoreResult]) {
	st := &kr.Status
	st.RestoreID = task.ID
	st.ObservedGeneration = task.Generation
	st.CompletionTime = metaTime(task.FinishedAt)

	res := task.Result
	if res != nil {
		st.BackupID = res.BackupID
		st.RecordsRestored = res.Records
		st.BytesRestored = res.Bytes
		st.SegmentsProcessed = int64(res.SegmentsProcessed)
		st.RecordsFilteredByPITR = res.FilteredByPITR
		st.OffsetMappingPath = res.OffsetMappingPath
		st.ProgressPercent = domain.RestoreProgress{
			Phase:             res.Phase,
			SegmentsPlanned:   res.SegmentsPlanned,
			SegmentsProcessed: res.SegmentsProcessed,
		}.PercentComplete()
		if snap := res.Snapshot; snap != nil {
			st.Rollback = &v1alpha1.RollbackStatus{
				SnapshotID:        snap.ID,
				SnapshotPath:      snap.Path,
				SnapshotTime:      metaTime(snap.CreatedAt),
				RollbackAvailable: res.Phase != domain.RestorePhaseRolledBack,
			}
		}
	}

	switch {
	case task.Err == nil:
		st.Phase = v1alpha1.RestorePhaseCompleted
		st.LastRestoreStatus = v1alpha1.RunStatusSucceeded
		st.LastError = ""
		st.ProgressPercent = 100
		if res != nil && res.DryRun {
			st.Message = fmt.Sprintf("Dry run passed: %d records in %d segments planned across %d topics",
				res.Records, res.SegmentsPlanned, len(res.TopicsPlanned))
			setReady(&st.Conditions, kr.Generation, metav1.ConditionTrue, v1alpha1.ReasonDryRunPassed, st.Message)
			return
		}
		st.Message = fmt.Sprintf("Restored %d records from backup %s", st.RecordsRestored, st.BackupID)
		setReady(&st.Conditions, kr.Generation, metav1.ConditionTrue, v1alpha1.ReasonRestoreSucceeded, st.Message)

	case res != nil && res.Phase == domain.RestorePhaseRolledBack:
		st.Phase = v1alpha1.RestorePhaseRolledBack
		st.LastRestoreStatus = v1alpha1.RunStatusFailed
		st.LastError = apperrors.Message(task.Err)
		st.Message = "Restore failed and consumer group offsets were rolled back: " + st.LastError
		setReady(&st.Conditions, kr.Generation, metav1.ConditionFalse, v1alpha1.ReasonRolledBack, st.Message)

	default:
		st.Phase = v1alpha1.RestorePhaseFailed
		st.LastRestoreStatus = v1alpha1.RunStatusFailed
		st.LastError = apperrors.Message(task.Err)
		st.Message = "Restore failed: " + st.LastError
		setReady(&st.Conditions, kr.Generation, metav1.ConditionFalse, v1alpha1.ReasonRestoreFailed, st.Message)
	}
}

func (r *KafkaRestoreReconciler) finalize(ctx context.Context, kr *v1alpha1.KafkaRestore) (ctrl.Result, error) {
	if !controllerutil.ContainsFinalizer(kr, v1alpha1.RestoreFinalizer) {
		return ctrl.Result{}, nil
	}
	key := client.ObjectKeyFromObject(kr)

	cancelCtx, cancel := context.WithTimeout(ctx, cancelTimeout)
	defer cancel()
	if err := r.runner.Cancel(cancelCtx, key); err != nil {
		return ctrl.Result{}, fmt.Errorf("failed to stop restore task: %w", err)
	}
	r.runner.Forget(key)

	controllerutil.RemoveFinalizer(kr, v1alpha1.RestoreFinalizer)
	if err := r.Update(ctx, kr); err != nil {
		return ctrl.Result{}, err
	}
	r.Metrics.Cleanups.WithLabelValues(KindRestore).Inc()
	return ctrl.Result{}, nil
}

// SetupWithManager sets up the controller with the Manager.
func (r *KafkaRestoreReconciler) SetupWithManager(mgr ctrl.Manager) error {
	if err := mgr.Add(r.runner); err != nil {
		return err
	}
	return ctrl.NewControllerManagedBy(mgr).
		For(&v1alpha1.KafkaRestore{}).
		WatchesRawSource(source.Channel(r.notifier.events, &handler.EnqueueRequestForObject{})).
		WithOptions(controller.Options{MaxConcurrentReconciles: r.MaxConcurrentReconciles}).
		Named("kafkarestore").
		Complete(r)
}
