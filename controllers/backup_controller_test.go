package controllers

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"

	"github.com/quantica-technologies/kafka-backup-operator/api/v1alpha1"
	"github.com/quantica-technologies/kafka-backup-operator/internal/domain"
	apperrors "github.com/quantica-technologies/kafka-backup-operator/pkg/errors"
	"github.com/quantica-technologies/kafka-backup-operator/pkg/logger"
	"github.com/quantica-technologies/kafka-backup-operator/pkg/metrics"
)

var _ = Describe("KafkaBackupReconciler", func() {
	var (
		ctx    context.Context
		key    types.NamespacedName
		kb     *v1alpha1.KafkaBackup
		c      client.Client
		m      *metrics.Metrics
		engine *fakeBackupEngine
		r      *KafkaBackupReconciler
	)

	build := func() {
		c = newFakeClient(kb)
		m = newTestMetrics()
		r = NewKafkaBackupReconciler(c, testScheme, newResolver(c), engine, m, logger.NewNop())
		r.now = func() time.Time { return testNow }
	}

	reconcile := func() ctrl.Result {
		GinkgoHelper()
		res, err := r.Reconcile(ctx, ctrl.Request{NamespacedName: key})
		Expect(err).NotTo(HaveOccurred())
		return res
	}

	fetch := func() *v1alpha1.KafkaBackup {
		GinkgoHelper()
		got := &v1alpha1.KafkaBackup{}
		Expect(c.Get(ctx, key, got)).To(Succeed())
		return got
	}

	waitForTask := func() {
		GinkgoHelper()
		Expect(r.runner.Wait(ctx, key)).To(Succeed())
	}

	BeforeEach(func() {
		ctx = context.Background()
		kb = newKafkaBackup("orders")
		key = client.ObjectKeyFromObject(kb)
		engine = &fakeBackupEngine{result: &domain.BackupResult{Records: 120, Bytes: 4096, Segments: 3}}
	})

	It("runs a one-shot backup once per generation", func() {
		build()

		res := reconcile()
		Expect(res.RequeueAfter).To(Equal(progressRequeue))

		got := fetch()
		Expect(controllerutil.ContainsFinalizer(got, v1alpha1.BackupFinalizer)).To(BeTrue())
		Expect(got.Status.Phase).To(Equal(v1alpha1.BackupPhaseRunning))
		Expect(got.Status.BackupID).To(Equal("orders-20240301-120000"))

		waitForTask()
		res = reconcile()
		Expect(res).To(Equal(ctrl.Result{}))

		got = fetch()
		Expect(got.Status.Phase).To(Equal(v1alpha1.BackupPhaseCompleted))
		Expect(got.Status.LastBackupStatus).To(Equal(v1alpha1.RunStatusSucceeded))
		Expect(got.Status.BackupCount).To(Equal(int64(1)))
		Expect(got.Status.RecordsProcessed).To(Equal(int64(120)))
		Expect(got.Status.BytesProcessed).To(Equal(int64(4096)))
		Expect(got.Status.ObservedGeneration).To(Equal(int64(1)))

		cond := readyCondition(got.Status.Conditions)
		Expect(cond).NotTo(BeNil())
		Expect(cond.Status).To(Equal(metav1.ConditionTrue))
		Expect(cond.Reason).To(Equal(v1alpha1.ReasonBackupSucceeded))

		Expect(testutil.ToFloat64(m.BackupsTotal.WithLabelValues(metrics.OutcomeSuccess, testNamespace, "orders"))).To(Equal(1.0))
		Expect(testutil.ToFloat64(m.BackupRecords.WithLabelValues(testNamespace, "orders"))).To(Equal(120.0))

		By("reconciling again without a spec change")
		version := got.ResourceVersion
		Expect(reconcile()).To(Equal(ctrl.Result{}))
		Expect(engine.calls()).To(HaveLen(1))
		Expect(fetch().ResourceVersion).To(Equal(version))
	})

	It("resumes a run that failed with a transient error", func() {
		build()
		engine.set(nil, apperrors.Transient(errors.New("connection refused"), "failed to fetch"))

		reconcile()
		waitForTask()
		res := reconcile()
		Expect(res.RequeueAfter).To(BeNumerically(">", 0))

		got := fetch()
		Expect(got.Status.Phase).To(Equal(v1alpha1.BackupPhaseFailed))
		Expect(got.Status.Resumable).To(BeTrue())
		Expect(got.Status.LastError).To(Equal("failed to fetch: connection refused"))
		Expect(got.Status.NextScheduledBackup).NotTo(BeNil())
		Expect(testutil.ToFloat64(m.BackupsTotal.WithLabelValues(metrics.OutcomeFailure, testNamespace, "orders"))).To(Equal(1.0))

		By("retrying once the delay has passed")
		engine.set(&domain.BackupResult{Records: 7}, nil)
		r.now = func() time.Time { return time.Now().Add(transientRequeue + time.Minute) }

		reconcile()
		waitForTask()
		reconcile()

		Expect(engine.calls()).To(Equal([]string{"orders-20240301-120000", "orders-20240301-120000"}))
		got = fetch()
		Expect(got.Status.Phase).To(Equal(v1alpha1.BackupPhaseCompleted))
		Expect(got.Status.Resumable).To(BeFalse())
		Expect(got.Status.LastError).To(BeEmpty())
	})

	It("does not retry a data integrity failure", func() {
		build()
		engine.set(nil, apperrors.DataIntegrity("checksum mismatch in segment %d", 4))

		reconcile()
		waitForTask()
		reconcile()

		got := fetch()
		Expect(got.Status.Phase).To(Equal(v1alpha1.BackupPhaseFailed))
		Expect(got.Status.Resumable).To(BeFalse())
		Expect(got.Status.NextScheduledBackup).To(BeNil())

		r.now = func() time.Time { return testNow.Add(time.Hour) }
		reconcile()
		Expect(engine.calls()).To(HaveLen(1))
	})

	It("resumes the incomplete run found in storage on a scheduled fire", func() {
		kb.Spec.Schedule = "0 * * * *"
		kb.Status = v1alpha1.KafkaBackupStatus{
			Phase:              v1alpha1.BackupPhaseCompleted,
			LastBackupStatus:   v1alpha1.RunStatusSucceeded,
			LastBackupTime:     &metav1.Time{Time: testNow.Add(-90 * time.Minute)},
			ObservedGeneration: 1,
		}
		engine.resumeID = "orders-20240301-100000"
		build()

		reconcile()
		waitForTask()
		reconcile()

		Expect(engine.calls()).To(Equal([]string{"orders-20240301-100000"}))
		got := fetch()
		Expect(got.Status.Phase).To(Equal(v1alpha1.BackupPhaseCompleted))
		Expect(got.Status.BackupCount).To(Equal(int64(1)))
	})

	It("resumes the run found in storage when the status was lost", func() {
		engine.resumeID = "orders-20240301-100000"
		build()

		reconcile()
		Expect(fetch().Status.BackupID).To(Equal("orders-20240301-100000"))
		waitForTask()
		reconcile()

		Expect(engine.calls()).To(Equal([]string{"orders-20240301-100000"}))
		got := fetch()
		Expect(got.Status.Phase).To(Equal(v1alpha1.BackupPhaseCompleted))
		Expect(got.Status.LastBackupStatus).To(Equal(v1alpha1.RunStatusSucceeded))
	})

	It("waits for the next fire time of a schedule", func() {
		kb.Spec.Schedule = "30 * * * *"
		kb.Status = v1alpha1.KafkaBackupStatus{
			Phase:              v1alpha1.BackupPhaseCompleted,
			LastBackupStatus:   v1alpha1.RunStatusSucceeded,
			LastBackupTime:     &metav1.Time{Time: testNow.Add(-time.Minute)},
			ObservedGeneration: 1,
		}
		build()

		res := reconcile()
		Expect(res.RequeueAfter).To(BeNumerically(">", 0))
		Expect(engine.calls()).To(BeEmpty())

		got := fetch()
		Expect(got.Status.NextScheduledBackup).NotTo(BeNil())
		Expect(got.Status.NextScheduledBackup.Time.Equal(testNow.Add(30 * time.Minute))).To(BeTrue())
	})

	It("does nothing while suspended", func() {
		kb.Spec.Suspend = true
		build()

		res := reconcile()
		Expect(res.RequeueAfter).To(Equal(suspendedRequeue))
		Expect(engine.calls()).To(BeEmpty())

		got := fetch()
		Expect(got.Status.Phase).To(Equal(v1alpha1.BackupPhaseSuspended))
		Expect(readyCondition(got.Status.Conditions).Reason).To(Equal(v1alpha1.ReasonSuspended))
	})

	It("rejects an invalid spec without requeueing", func() {
		kb.Spec.Compression = "gzip"
		build()

		Expect(reconcile()).To(Equal(ctrl.Result{}))
		Expect(engine.calls()).To(BeEmpty())

		got := fetch()
		Expect(got.Status.Phase).To(Equal(v1alpha1.BackupPhaseFailed))
		Expect(got.Status.LastError).To(ContainSubstring("Invalid compression 'gzip'"))
		cond := readyCondition(got.Status.Conditions)
		Expect(cond.Reason).To(Equal(v1alpha1.ReasonValidationFailed))
		Expect(cond.Status).To(Equal(metav1.ConditionFalse))
	})

	It("keeps a backup pending while a credentials secret is missing", func() {
		kb.Spec.KafkaCluster.SecurityProtocol = "SASL_SSL"
		kb.Spec.KafkaCluster.SASLSecret = &v1alpha1.SASLSecretRef{Name: "kafka-user", Mechanism: "SCRAM-SHA-512"}
		build()

		res := reconcile()
		Expect(res.RequeueAfter).To(Equal(transientRequeue))
		Expect(engine.calls()).To(BeEmpty())
		Expect(fetch().Status.Phase).To(Equal(v1alpha1.BackupPhasePending))
	})

	It("releases the finalizer on deletion", func() {
		build()
		reconcile()
		waitForTask()

		Expect(c.Delete(ctx, fetch())).To(Succeed())
		Expect(reconcile()).To(Equal(ctrl.Result{}))

		err := c.Get(ctx, key, &v1alpha1.KafkaBackup{})
		Expect(apierrors.IsNotFound(err)).To(BeTrue())
		Expect(testutil.ToFloat64(m.Cleanups.WithLabelValues(KindBackup))).To(Equal(1.0))
	})
})
