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
	"github.com/quantica-technologies/kafka-backup-operator/internal/config"
	"github.com/quantica-technologies/kafka-backup-operator/internal/domain"
	"github.com/quantica-technologies/kafka-backup-operator/internal/resolve"
	"github.com/quantica-technologies/kafka-backup-operator/internal/schedule"
	"github.com/quantica-technologies/kafka-backup-operator/internal/usecase"
	apperrors "github.com/quantica-technologies/kafka-backup-operator/pkg/errors"
	"github.com/quantica-technologies/kafka-backup-operator/pkg/logger"
	"github.com/quantica-technologies/kafka-backup-operator/pkg/metrics"
)

type backupTask = runner.Runner[domain.BackupProgress, *domain.BackupResult]

// KafkaBackupReconciler reconciles a KafkaBackup object
type KafkaBackupReconciler struct {
	client.Client
	Scheme   *runtime.Scheme
	Resolver *resolve.Resolver
	Engine   usecase.BackupUseCase
	Metrics  *metrics.Metrics

	MaxConcurrentReconciles int

	runner    *backupTask
	notifier  *notifier
	validator *config.Validator
	now       func() time.Time
}

// NewKafkaBackupReconciler wires a reconciler and its task runner.
func NewKafkaBackupReconciler(c client.Client, scheme *runtime.Scheme, resolver *resolve.Resolver,
	engine usecase.BackupUseCase, m *metrics.Metrics, log logger.Logger) *KafkaBackupReconciler {

	n := newNotifier(func() client.Object { return &v1alpha1.KafkaBackup{} })
	return &KafkaBackupReconciler{
		Client:    c,
		Scheme:    scheme,
		Resolver:  resolver,
		Engine:    engine,
		Metrics:   m,
		runner:    runner.New[domain.BackupProgress, *domain.BackupResult](KindBackup, m, log, n.notify),
		notifier:  n,
		validator: config.NewValidator(),
		now:       time.Now,
	}
}

// +kubebuilder:rbac:groups=backup.kafka.io,resources=kafkabackups,verbs=get;list;watch;update;patch
// +kubebuilder:rbac:groups=backup.kafka.io,resources=kafkabackups/status,verbs=get;update;patch
// +kubebuilder:rbac:groups=backup.kafka.io,resources=kafkabackups/finalizers,verbs=update
// +kubebuilder:rbac:groups=core,resources=secrets,verbs=get;list;watch

func (r *KafkaBackupReconciler) Reconcile(ctx context.Context, req ctrl.Request) (result ctrl.Result, err error) {
	defer observe(r.Metrics, KindBackup, time.Now(), &err)
	log := log.FromContext(ctx)

	kb := &v1alpha1.KafkaBackup{}
	if err := r.Get(ctx, req.NamespacedName, kb); err != nil {
		if apierrors.IsNotFound(err) {
			r.runner.Forget(req.NamespacedName)
			return ctrl.Result{}, nil
		}
		return ctrl.Result{}, err
	}

	// Handle deletion
	if !kb.DeletionTimestamp.IsZero() {
		return r.finalize(ctx, kb)
	}

	if controllerutil.AddFinalizer(kb, v1alpha1.BackupFinalizer) {
		if err := r.Update(ctx, kb); err != nil {
			return ctrl.Result{}, err
		}
	}

	before := kb.Status.DeepCopy()

	if st, ok := r.runner.Get(req.NamespacedName); ok {
		if st.Running {
			r.applyProgress(kb, st)
			if err := updateStatus(ctx, r.Client, kb, before, &kb.Status); err != nil {
				return ctrl.Result{}, err
			}
			return ctrl.Result{RequeueAfter: progressRequeue}, nil
		}

		r.applyOutcome(kb, st)
		if err := updateStatus(ctx, r.Client, kb, before, &kb.Status); err != nil {
			return ctrl.Result{}, err
		}
		r.runner.Forget(req.NamespacedName)
		if st.Err != nil {
			log.Info("Backup run failed", "runID", st.ID, "error", st.Err.Error(), "resumable", kb.Status.Resumable)
		} else {
			log.Info("Backup run completed", "runID", st.ID, "records", kb.Status.RecordsProcessed)
		}
		before = kb.Status.DeepCopy()
	}

	if err := r.validator.ValidateBackup(&kb.Spec); err != nil {
		return r.rejected(ctx, kb, before, err)
	}

	// Handle suspension
	if kb.Spec.Suspend {
		kb.Status.Phase = v1alpha1.BackupPhaseSuspended
		kb.Status.NextScheduledBackup = nil
		setReady(&kb.Status.Conditions, kb.Generation, metav1.ConditionFalse, v1alpha1.ReasonSuspended, "Backup is suspended")
		if err := updateStatus(ctx, r.Client, kb, before, &kb.Status); err != nil {
			return ctrl.Result{}, err
		}
		return ctrl.Result{RequeueAfter: suspendedRequeue}, nil
	}

	now := r.now().UTC()
	plan, err := r.plan(kb, now)
	if err != nil {
		return r.rejected(ctx, kb, before, err)
	}
	if !plan.due {
		r.idle(kb, plan)
		if err := updateStatus(ctx, r.Client, kb, before, &kb.Status); err != nil {
			return ctrl.Result{}, err
		}
		return ctrl.Result{RequeueAfter: plan.requeue}, nil
	}

	return r.start(ctx, kb, before, plan, now)
}

// backupPlan is what the controller does with an idle backup
type backupPlan struct {
	due      bool
	resumeID string
	next     *metav1.Time
	requeue  time.Duration
}

// plan decides whether a run starts now. Runs interrupted by an operator
// restart and retryable failures resume their run id; scheduled backups
// follow the cron expression; one-shot backups run once per generation.
func (r *KafkaBackupReconciler) plan(kb *v1alpha1.KafkaBackup, now time.Time) (backupPlan, error) {
	st := &kb.Status

	if st.Phase == v1alpha1.BackupPhaseRunning && st.BackupID != "" {
		return backupPlan{due: true, resumeID: st.BackupID}, nil
	}

	if st.Resumable && st.BackupID != "" && st.ObservedGeneration == kb.Generation {
		retryAt := st.NextScheduledBackup
		if retryAt == nil || !now.Before(retryAt.Time) {
			return backupPlan{due: true, resumeID: st.BackupID}, nil
		}
		return backupPlan{next: retryAt, requeue: capRequeue(retryAt.Sub(now))}, nil
	}

	if kb.Spec.Schedule != "" {
		var lastRun *time.Time
		if st.LastBackupTime != nil {
			lastRun = &st.LastBackupTime.Time
		}
		d, err := schedule.Next(kb.Spec.Schedule, now, lastRun)
		if err != nil {
			return backupPlan{}, err
		}
		return backupPlan{due: d.Due, next: metaTime(d.NextRun), requeue: d.RequeueAfter}, nil
	}

	return backupPlan{due: st.ObservedGeneration != kb.Generation}, nil
}

func capRequeue(d time.Duration) time.Duration {
	if d > schedule.MaxRequeue {
		return schedule.MaxRequeue
	}
	if d < time.Second {
		return time.Second
	}
	return d
}

// idle settles the status of a backup with nothing to start.
func (r *KafkaBackupReconciler) idle(kb *v1alpha1.KafkaBackup, plan backupPlan) {
	st := &kb.Status
	st.NextScheduledBackup = plan.next

	switch st.Phase {
	case "", v1alpha1.BackupPhasePending, v1alpha1.BackupPhaseSuspended:
	default:
		return
	}
	switch st.LastBackupStatus {
	case v1alpha1.RunStatusSucceeded:
		st.Phase = v1alpha1.BackupPhaseCompleted
		setReady(&st.Conditions, kb.Generation, metav1.ConditionTrue, v1alpha1.ReasonBackupSucceeded, "Last backup succeeded")
	case v1alpha1.RunStatusFailed:
		st.Phase = v1alpha1.BackupPhaseFailed
		setReady(&st.Conditions, kb.Generation, metav1.ConditionFalse, v1alpha1.ReasonBackupFailed, st.LastError)
	default:
		st.Phase = v1alpha1.BackupPhaseReady
		setReady(&st.Conditions, kb.Generation, metav1.ConditionTrue, v1alpha1.ReasonScheduleActive, "Waiting for the next scheduled backup")
	}
}

func (r *KafkaBackupReconciler) start(ctx context.Context, kb *v1alpha1.KafkaBackup, before *v1alpha1.KafkaBackupStatus,
	plan backupPlan, now time.Time) (ctrl.Result, error) {

	log := log.FromContext(ctx)
	key := client.ObjectKeyFromObject(kb)

	// Storage is the source of truth for resumability; status may be lost.
	// A status that never recorded a run is treated as lost.
	runID := plan.resumeID
	lost := kb.Status.ObservedGeneration == 0 || kb.Status.BackupID == ""
	if runID == "" && (lost || kb.Status.ObservedGeneration == kb.Generation) {
		storage, err := r.Resolver.BackupStorage(ctx, kb)
		if err != nil {
			return r.rejected(ctx, kb, before, err)
		}
		if runID, err = r.Engine.FindIncompleteRun(ctx, storage, kb.Name); err != nil {
			return r.rejected(ctx, kb, before, err)
		}
	}
	resumed := runID != ""
	if !resumed {
		runID = domain.NewRunID(kb.Name, now)
	}

	breq, err := r.Resolver.BackupRequest(ctx, kb, runID)
	if err != nil {
		return r.rejected(ctx, kb, before, err)
	}

	err = r.runner.Submit(key, runID, kb.Generation, func(ctx context.Context, report func(domain.BackupProgress)) (*domain.BackupResult, error) {
		return r.Engine.Run(ctx, breq, report)
	})
	if err != nil {
		return ctrl.Result{}, err
	}

	st := &kb.Status
	st.Phase = v1alpha1.BackupPhaseRunning
	st.BackupID = runID
	st.Resumable = false
	st.ObservedGeneration = kb.Generation
	st.NextScheduledBackup = plan.next
	if !resumed {
		st.RecordsProcessed, st.BytesProcessed, st.SegmentsCompleted = 0, 0, 0
		st.LastCheckpointTime = nil
	}
	st.Message = fmt.Sprintf("Backup run %s started", runID)
	setReady(&st.Conditions, kb.Generation, metav1.ConditionFalse, v1alpha1.ReasonInProgress, fmt.Sprintf("Backup run %s in progress", runID))

	log.Info("Backup run started", "runID", runID, "resumed", resumed)
	if err := updateStatus(ctx, r.Client, kb, before, st); err != nil {
		return ctrl.Result{}, err
	}
	return ctrl.Result{RequeueAfter: progressRequeue}, nil
}

// rejected records an error raised before a run could start.
func (r *KafkaBackupReconciler) rejected(ctx context.Context, kb *v1alpha1.KafkaBackup, before *v1alpha1.KafkaBackupStatus, cause error) (ctrl.Result, error) {
	st := &kb.Status
	st.LastError = apperrors.Message(cause)
	if apperrors.IsKind(cause, apperrors.KindConfiguration) {
		st.Phase = v1alpha1.BackupPhaseFailed
		st.ObservedGeneration = kb.Generation
		st.NextScheduledBackup = nil
		setReady(&st.Conditions, kb.Generation, metav1.ConditionFalse, v1alpha1.ReasonValidationFailed, st.LastError)
	} else {
		if st.Phase == "" {
			st.Phase = v1alpha1.BackupPhasePending
		}
		setReady(&st.Conditions, kb.Generation, metav1.ConditionFalse, v1alpha1.ReasonBackupFailed, st.LastError)
	}
	r.Metrics.ReconciliationErrors.WithLabelValues(KindBackup).Inc()
	log.FromContext(ctx).Info("Backup cannot start", "error", cause.Error(), "kind", apperrors.KindOf(cause))

	if err := updateStatus(ctx, r.Client, kb, before, st); err != nil {
		return ctrl.Result{}, err
	}
	return requeueFor(cause)
}

func (r *KafkaBackupReconciler) applyProgress(kb *v1alpha1.KafkaBackup, task runner.Status[domain.BackupProgress, *domain.BackupResult]) {
	st := &kb.Status
	p := task.Progress
	st.Phase = v1alpha1.BackupPhaseRunning
	st.BackupID = task.ID
	st.ObservedGeneration = task.Generation
	st.RecordsProcessed = p.Records
	st.BytesProcessed = p.Bytes
	st.SegmentsCompleted = int64(p.Segments)
	if !p.LastCheckpoint.IsZero() {
		st.LastCheckpointTime = metaTime(p.LastCheckpoint)
	}
	if p.Partitions > 0 {
		st.Message = fmt.Sprintf("%d/%d partitions done", p.PartitionsDone, p.Partitions)
	}
	setReady(&st.Conditions, kb.Generation, metav1.ConditionFalse, v1alpha1.ReasonInProgress, fmt.Sprintf("Backup run %s in progress", task.ID))
}

// applyOutcome summarises a finished run into status and metrics.
func (r *KafkaBackupReconciler) applyOutcome(kb *v1alpha1.KafkaBackup, task runner.Status[domain.BackupProgress, *domain.BackupResult]) {
	st := &kb.Status
	st.BackupID = task.ID
	st.ObservedGeneration = task.Generation
	st.LastBackupTime = metaTime(task.FinishedAt)
	st.DurationSeconds = int64(task.FinishedAt.Sub(task.StartedAt).Seconds())
	st.NextScheduledBackup = nil

	if res := task.Result; res != nil {
		st.RecordsProcessed = res.Records
		st.BytesProcessed = res.Bytes
		st.SegmentsCompleted = int64(res.Segments)
		if res.Duration > 0 {
			st.DurationSeconds = int64(res.Duration.Seconds())
		}
	}

	if task.Err == nil {
		st.Phase = v1alpha1.BackupPhaseCompleted
		st.LastBackupStatus = v1alpha1.RunStatusSucceeded
		st.LastError = ""
		st.Resumable = false
		st.BackupCount++
		st.Message = fmt.Sprintf("Backup %s completed: %d records, %d bytes", task.ID, st.RecordsProcessed, st.BytesProcessed)
		setReady(&st.Conditions, kb.Generation, metav1.ConditionTrue, v1alpha1.ReasonBackupSucceeded, st.Message)

		r.Metrics.BackupsTotal.WithLabelValues(metrics.OutcomeSuccess, kb.Namespace, kb.Name).Inc()
		r.Metrics.BackupSizeBytes.WithLabelValues(kb.Namespace, kb.Name).Set(float64(st.BytesProcessed))
		r.Metrics.BackupRecords.WithLabelValues(kb.Namespace, kb.Name).Set(float64(st.RecordsProcessed))
		r.Metrics.BackupDuration.WithLabelValues(kb.Namespace, kb.Name).Observe(float64(st.DurationSeconds))
		return
	}

	st.Phase = v1alpha1.BackupPhaseFailed
	st.LastBackupStatus = v1alpha1.RunStatusFailed
	st.LastError = apperrors.Message(task.Err)
	st.Resumable = resumable(task.Err)
	st.Message = fmt.Sprintf("Backup %s failed: %s", task.ID, st.LastError)
	setReady(&st.Conditions, kb.Generation, metav1.ConditionFalse, v1alpha1.ReasonBackupFailed, st.Message)
	r.Metrics.BackupsTotal.WithLabelValues(metrics.OutcomeFailure, kb.Namespace, kb.Name).Inc()

	if st.Resumable {
		retryAt := task.FinishedAt.Add(retryDelay(task.Err))
		if kb.Spec.Schedule != "" {
			if d, err := schedule.Next(kb.Spec.Schedule, task.FinishedAt, &task.FinishedAt); err == nil && !d.NextRun.IsZero() && d.NextRun.Before(retryAt) {
				retryAt = d.NextRun
			}
		}
		st.NextScheduledBackup = metaTime(retryAt)
	}
}

// finalize stops a running task and releases the resource. Stored backups
// are never deleted.
func (r *KafkaBackupReconciler) finalize(ctx context.Context, kb *v1alpha1.KafkaBackup) (ctrl.Result, error) {
	if !controllerutil.ContainsFinalizer(kb, v1alpha1.BackupFinalizer) {
		return ctrl.Result{}, nil
	}
	key := client.ObjectKeyFromObject(kb)

	cancelCtx, cancel := context.WithTimeout(ctx, cancelTimeout)
	defer cancel()
	if err := r.runner.Cancel(cancelCtx, key); err != nil {
		return ctrl.Result{}, fmt.Errorf("failed to stop backup task: %w", err)
	}
	r.runner.Forget(key)

	controllerutil.RemoveFinalizer(kb, v1alpha1.BackupFinalizer)
	if err := r.Update(ctx, kb); err != nil {
		return ctrl.Result{}, err
	}
	r.Metrics.Cleanups.WithLabelValues(KindBackup).Inc()
	log.FromContext(ctx).Info("KafkaBackup released", "lastRunID", kb.Status.BackupID)
	return ctrl.Result{}, nil
}

// SetupWithManager sets up the controller with the Manager.
func (r *KafkaBackupReconciler) SetupWithManager(mgr ctrl.Manager) error {
	if err := mgr.Add(r.runner); err != nil {
		return err
	}
	return ctrl.NewControllerManagedBy(mgr).
		For(&v1alpha1.KafkaBackup{}).
		WatchesRawSource(source.Channel(r.notifier.events, &handler.EnqueueRequestForObject{})).
		WithOptions(controller.Options{MaxConcurrentReconciles: r.MaxConcurrentReconciles}).
		Named("kafkabackup").
		Complete(r)
}
