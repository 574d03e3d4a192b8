package controllers

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/quantica-technologies/kafka-backup-operator/api/v1alpha1"
	"github.com/quantica-technologies/kafka-backup-operator/internal/domain"
	"github.com/quantica-technologies/kafka-backup-operator/internal/resolve"
	apperrors "github.com/quantica-technologies/kafka-backup-operator/pkg/errors"
	"github.com/quantica-technologies/kafka-backup-operator/pkg/logger"
)

var _ = Describe("KafkaRestoreReconciler", func() {
	var (
		ctx    context.Context
		key    types.NamespacedName
		kr     *v1alpha1.KafkaRestore
		c      client.Client
		engine *fakeRestoreEngine
		r      *KafkaRestoreReconciler
	)

	build := func(objs ...client.Object) {
		c = newFakeClient(append(objs, kr)...)
		r = NewKafkaRestoreReconciler(c, testScheme, newResolver(c), engine, newTestMetrics(), logger.NewNop())
		r.now = func() time.Time { return testNow }
	}

	reconcile := func() ctrl.Result {
		GinkgoHelper()
		res, err := r.Reconcile(ctx, ctrl.Request{NamespacedName: key})
		Expect(err).NotTo(HaveOccurred())
		return res
	}

	fetch := func() *v1alpha1.KafkaRestore {
		GinkgoHelper()
		got := &v1alpha1.KafkaRestore{}
		Expect(c.Get(ctx, key, got)).To(Succeed())
		return got
	}

	runToCompletion := func() {
		GinkgoHelper()
		Expect(reconcile().RequeueAfter).To(Equal(progressRequeue))
		Expect(r.runner.Wait(ctx, key)).To(Succeed())
		Expect(reconcile()).To(Equal(ctrl.Result{}))
	}

	BeforeEach(func() {
		ctx = context.Background()
		kr = &v1alpha1.KafkaRestore{
			ObjectMeta: metav1.ObjectMeta{Name: "orders-restore", Namespace: testNamespace, Generation: 1},
			Spec: v1alpha1.KafkaRestoreSpec{
				BackupRef:    v1alpha1.BackupRef{Name: "orders"},
				KafkaCluster: clusterSpec(),
			},
		}
		key = client.ObjectKeyFromObject(kr)
		engine = &fakeRestoreEngine{result: &domain.RestoreResult{
			BackupID:          "orders-20240301-100000",
			Phase:             domain.RestorePhaseCompleted,
			SegmentsPlanned:   4,
			SegmentsProcessed: 4,
			Records:           900,
			Bytes:             65536,
			FilteredByPITR:    12,
			OffsetMappingPath: "restores/orders/offset-mapping.json",
			Snapshot: &domain.SnapshotRef{
				ID:        "orders-restore-pre-restore",
				Path:      "snapshots/orders-restore-pre-restore.json",
				CreatedAt: testNow,
			},
		}}
	})

	It("restores from the referenced backup", func() {
		build(newKafkaBackup("orders"))
		runToCompletion()

		got := fetch()
		Expect(got.Status.Phase).To(Equal(v1alpha1.RestorePhaseCompleted))
		Expect(got.Status.RestoreID).To(Equal(resolve.RestoreID(got)))
		Expect(got.Status.BackupID).To(Equal("orders-20240301-100000"))
		Expect(got.Status.RecordsRestored).To(Equal(int64(900)))
		Expect(got.Status.RecordsFilteredByPITR).To(Equal(int64(12)))
		Expect(got.Status.ProgressPercent).To(Equal(100))
		Expect(got.Status.OffsetMappingPath).To(Equal("restores/orders/offset-mapping.json"))
		Expect(got.Status.StartTime).NotTo(BeNil())
		Expect(got.Status.CompletionTime).NotTo(BeNil())

		Expect(got.Status.Rollback).NotTo(BeNil())
		Expect(got.Status.Rollback.SnapshotID).To(Equal("orders-restore-pre-restore"))
		Expect(got.Status.Rollback.RollbackAvailable).To(BeTrue())
		Expect(readyCondition(got.Status.Conditions).Reason).To(Equal(v1alpha1.ReasonRestoreSucceeded))

		By("leaving a completed restore alone")
		Expect(reconcile()).To(Equal(ctrl.Result{}))
		Expect(engine.calls()).To(Equal(1))
	})

	It("reports a dry run", func() {
		kr.Spec.DryRun = true
		engine.result = &domain.RestoreResult{
			Phase:           domain.RestorePhaseCompleted,
			DryRun:          true,
			TopicsPlanned:   []string{"orders"},
			SegmentsPlanned: 4,
			Records:         40,
		}
		build(newKafkaBackup("orders"))
		runToCompletion()

		got := fetch()
		Expect(got.Status.Phase).To(Equal(v1alpha1.RestorePhaseCompleted))
		Expect(got.Status.RecordsRestored).To(Equal(int64(40)))
		cond := readyCondition(got.Status.Conditions)
		Expect(cond.Reason).To(Equal(v1alpha1.ReasonDryRunPassed))
		Expect(cond.Message).To(Equal("Dry run passed: 40 records in 4 segments planned across 1 topics"))
	})

	It("records an automatic rollback", func() {
		engine.result.Phase = domain.RestorePhaseRolledBack
		engine.err = apperrors.Transient(errors.New("NOT_LEADER_OR_FOLLOWER"), "failed to produce")
		build(newKafkaBackup("orders"))
		runToCompletion()

		got := fetch()
		Expect(got.Status.Phase).To(Equal(v1alpha1.RestorePhaseRolledBack))
		Expect(got.Status.LastRestoreStatus).To(Equal(v1alpha1.RunStatusFailed))
		Expect(got.Status.LastError).To(Equal("failed to produce: NOT_LEADER_OR_FOLLOWER"))
		Expect(got.Status.Rollback.RollbackAvailable).To(BeFalse())
		Expect(readyCondition(got.Status.Conditions).Reason).To(Equal(v1alpha1.ReasonRolledBack))

		Expect(reconcile()).To(Equal(ctrl.Result{}))
		Expect(engine.calls()).To(Equal(1))
	})

	It("fails without rollback", func() {
		engine.result.Phase = domain.RestorePhaseFailed
		engine.err = apperrors.DataIntegrity("checksum mismatch for segment %s", "orders/0/00000.seg")
		build(newKafkaBackup("orders"))
		runToCompletion()

		got := fetch()
		Expect(got.Status.Phase).To(Equal(v1alpha1.RestorePhaseFailed))
		Expect(got.Status.Rollback.RollbackAvailable).To(BeTrue())
		Expect(readyCondition(got.Status.Conditions).Reason).To(Equal(v1alpha1.ReasonRestoreFailed))
	})

	It("waits for a missing backup", func() {
		build()

		res := reconcile()
		Expect(res.RequeueAfter).To(Equal(transientRequeue))
		Expect(engine.calls()).To(BeZero())
		Expect(fetch().Status.Phase).To(Equal(v1alpha1.RestorePhasePending))
	})

	It("rejects an inverted PITR window", func() {
		start, end := int64(2000), int64(1000)
		kr.Spec.PITR = &v1alpha1.PITRSpec{StartTimestamp: &start, EndTimestamp: &end}
		build(newKafkaBackup("orders"))

		Expect(reconcile()).To(Equal(ctrl.Result{}))
		got := fetch()
		Expect(got.Status.Phase).To(Equal(v1alpha1.RestorePhaseFailed))
		Expect(readyCondition(got.Status.Conditions).Reason).To(Equal(v1alpha1.ReasonValidationFailed))
		Expect(engine.calls()).To(BeZero())
	})
})
