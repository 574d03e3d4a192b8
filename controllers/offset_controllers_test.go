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

var _ = Describe("KafkaOffsetResetReconciler", func() {
	var (
		ctx    context.Context
		key    types.NamespacedName
		kor    *v1alpha1.KafkaOffsetReset
		c      client.Client
		engine *fakeOffsetEngine
		r      *KafkaOffsetResetReconciler
	)

	run := func() *v1alpha1.KafkaOffsetReset {
		GinkgoHelper()
		c = newFakeClient(kor)
		r = NewKafkaOffsetResetReconciler(c, testScheme, newResolver(c), engine, newTestMetrics(), logger.NewNop())
		r.now = func() time.Time { return testNow }

		res, err := r.Reconcile(ctx, ctrl.Request{NamespacedName: key})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.RequeueAfter).To(Equal(progressRequeue))
		Expect(r.runner.Wait(ctx, key)).To(Succeed())

		res, err = r.Reconcile(ctx, ctrl.Request{NamespacedName: key})
		Expect(err).NotTo(HaveOccurred())
		Expect(res).To(Equal(ctrl.Result{}))

		got := &v1alpha1.KafkaOffsetReset{}
		Expect(c.Get(ctx, key, got)).To(Succeed())
		return got
	}

	BeforeEach(func() {
		ctx = context.Background()
		storage := pvcStorage()
		kor = &v1alpha1.KafkaOffsetReset{
			ObjectMeta: metav1.ObjectMeta{Name: "billing-reset", Namespace: testNamespace, Generation: 1},
			Spec: v1alpha1.KafkaOffsetResetSpec{
				KafkaCluster:   clusterSpec(),
				ConsumerGroups: []string{"billing", "audit"},
				Topics:         []string{"orders"},
				ResetStrategy:  "to-earliest",
				Storage:        &storage,
			},
		}
		key = client.ObjectKeyFromObject(kor)
		engine = &fakeOffsetEngine{}
	})

	It("completes when every group was reset", func() {
		engine.resetResult = &domain.OffsetResetResult{
			GroupsTotal: 2,
			GroupsReset: 2,
			Snapshot:    &domain.SnapshotRef{ID: "billing-reset-pre-reset", Path: "snapshots/billing-reset-pre-reset.json"},
			GroupResults: []domain.GroupResult{
				{GroupID: "billing", Success: true, PartitionsReset: 3},
				{GroupID: "audit", Success: true, PartitionsReset: 3},
			},
			Duration: 1500 * time.Millisecond,
		}

		got := run()
		Expect(got.Status.Phase).To(Equal(v1alpha1.OffsetPhaseCompleted))
		Expect(got.Status.GroupsReset).To(Equal(2))
		Expect(got.Status.SnapshotID).To(Equal("billing-reset-pre-reset"))
		Expect(got.Status.Duration).To(Equal("1.5s"))
		Expect(got.Status.GroupResults).To(ConsistOf(
			v1alpha1.GroupResetResult{GroupID: "billing", Success: true, PartitionsReset: 3},
			v1alpha1.GroupResetResult{GroupID: "audit", Success: true, PartitionsReset: 3},
		))
		Expect(readyCondition(got.Status.Conditions).Reason).To(Equal(v1alpha1.ReasonResetSucceeded))

		resets, _ := engine.counts()
		Expect(resets).To(Equal(1))
		Expect(engine.resets[0].SnapshotID).To(Equal(resolve.ResetSnapshotID(got)))
		Expect(engine.resets[0].SnapshotBeforeReset).To(BeTrue())
	})

	It("reports a partial reset when some groups failed", func() {
		kor.Spec.ContinueOnError = true
		engine.resetResult = &domain.OffsetResetResult{
			GroupsTotal:  2,
			GroupsReset:  1,
			GroupsFailed: 1,
			GroupResults: []domain.GroupResult{
				{GroupID: "billing", Success: true, PartitionsReset: 3},
				{GroupID: "audit", Error: "group is not empty"},
			},
		}

		got := run()
		Expect(got.Status.Phase).To(Equal(v1alpha1.OffsetPhasePartiallyCompleted))
		Expect(got.Status.Message).To(Equal("Reset 1 of 2 consumer groups, 1 failed"))
		Expect(readyCondition(got.Status.Conditions).Reason).To(Equal(v1alpha1.ReasonPartialFailure))
	})

	It("fails when the reset aborted", func() {
		engine.resetResult = &domain.OffsetResetResult{GroupsTotal: 2, GroupsFailed: 1}
		engine.resetErr = apperrors.Transient(errors.New("coordinator not available"), "failed to commit offsets for group billing")

		got := run()
		Expect(got.Status.Phase).To(Equal(v1alpha1.OffsetPhaseFailed))
		Expect(got.Status.Message).To(ContainSubstring("coordinator not available"))
		Expect(readyCondition(got.Status.Conditions).Reason).To(Equal(v1alpha1.ReasonResetFailed))

		res, err := r.Reconcile(ctx, ctrl.Request{NamespacedName: key})
		Expect(err).NotTo(HaveOccurred())
		Expect(res).To(Equal(ctrl.Result{}))
		resets, _ := engine.counts()
		Expect(resets).To(Equal(1))
	})

	It("passes a dry run", func() {
		kor.Spec.DryRun = true
		engine.resetResult = &domain.OffsetResetResult{GroupsTotal: 2, DryRun: true}

		got := run()
		Expect(got.Status.Phase).To(Equal(v1alpha1.OffsetPhaseCompleted))
		Expect(readyCondition(got.Status.Conditions).Reason).To(Equal(v1alpha1.ReasonDryRunPassed))
	})

	It("rejects a reset without a target offset", func() {
		kor.Spec.ResetStrategy = "to-offset"
		c = newFakeClient(kor)
		r = NewKafkaOffsetResetReconciler(c, testScheme, newResolver(c), engine, newTestMetrics(), logger.NewNop())

		res, err := r.Reconcile(ctx, ctrl.Request{NamespacedName: key})
		Expect(err).NotTo(HaveOccurred())
		Expect(res).To(Equal(ctrl.Result{}))

		got := &v1alpha1.KafkaOffsetReset{}
		Expect(c.Get(ctx, key, got)).To(Succeed())
		Expect(got.Status.Phase).To(Equal(v1alpha1.OffsetPhaseFailed))
		Expect(got.Status.Message).To(ContainSubstring("resetOffset is required when using to-offset strategy"))
		resets, _ := engine.counts()
		Expect(resets).To(BeZero())
	})
})

var _ = Describe("KafkaOffsetRollbackReconciler", func() {
	var (
		ctx    context.Context
		key    types.NamespacedName
		korb   *v1alpha1.KafkaOffsetRollback
		c      client.Client
		engine *fakeOffsetEngine
		r      *KafkaOffsetRollbackReconciler
	)

	run := func(objs ...client.Object) *v1alpha1.KafkaOffsetRollback {
		GinkgoHelper()
		c = newFakeClient(append(objs, korb)...)
		r = NewKafkaOffsetRollbackReconciler(c, testScheme, newResolver(c), engine, newTestMetrics(), logger.NewNop())
		r.now = func() time.Time { return testNow }

		res, err := r.Reconcile(ctx, ctrl.Request{NamespacedName: key})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.RequeueAfter).To(Equal(progressRequeue))
		Expect(r.runner.Wait(ctx, key)).To(Succeed())

		res, err = r.Reconcile(ctx, ctrl.Request{NamespacedName: key})
		Expect(err).NotTo(HaveOccurred())
		Expect(res).To(Equal(ctrl.Result{}))

		got := &v1alpha1.KafkaOffsetRollback{}
		Expect(c.Get(ctx, key, got)).To(Succeed())
		return got
	}

	BeforeEach(func() {
		ctx = context.Background()
		korb = &v1alpha1.KafkaOffsetRollback{
			ObjectMeta: metav1.ObjectMeta{Name: "undo-restore", Namespace: testNamespace, Generation: 1},
			Spec: v1alpha1.KafkaOffsetRollbackSpec{
				SnapshotRef:  v1alpha1.SnapshotRef{RestoreRef: "orders-restore"},
				KafkaCluster: clusterSpec(),
			},
		}
		key = client.ObjectKeyFromObject(korb)
		engine = &fakeOffsetEngine{}
	})

	restore := func() *v1alpha1.KafkaRestore {
		return &v1alpha1.KafkaRestore{
			ObjectMeta: metav1.ObjectMeta{Name: "orders-restore", Namespace: testNamespace, Generation: 1},
			Spec: v1alpha1.KafkaRestoreSpec{
				BackupRef:    v1alpha1.BackupRef{Name: "orders"},
				KafkaCluster: clusterSpec(),
			},
			Status: v1alpha1.KafkaRestoreStatus{
				Phase: v1alpha1.RestorePhaseCompleted,
				Rollback: &v1alpha1.RollbackStatus{
					SnapshotID:        "orders-restore-pre-restore",
					SnapshotPath:      "snapshots/orders-restore-pre-restore.json",
					RollbackAvailable: true,
				},
			},
		}
	}

	It("rolls back the snapshot of a restore and verifies it", func() {
		engine.rollbackResult = &domain.OffsetRollbackResult{
			SnapshotID:       "orders-restore-pre-restore",
			GroupsRolledBack: 2,
			Verification:     &domain.Verification{AllMatched: true, TotalGroups: 2, MatchedGroups: 2},
		}

		got := run(newKafkaBackup("orders"), restore())
		Expect(got.Status.Phase).To(Equal(v1alpha1.OffsetPhaseCompleted))
		Expect(got.Status.SnapshotID).To(Equal("orders-restore-pre-restore"))
		Expect(got.Status.GroupsRolledBack).To(Equal(2))
		Expect(got.Status.Verification).To(Equal(&v1alpha1.VerificationResult{AllMatched: true, TotalGroups: 2, MatchedGroups: 2}))
		Expect(readyCondition(got.Status.Conditions).Reason).To(Equal(v1alpha1.ReasonRollbackSucceeded))

		_, rollbacks := engine.counts()
		Expect(rollbacks).To(Equal(1))
		Expect(engine.rollbacks[0].SnapshotPath).To(Equal("snapshots/orders-restore-pre-restore.json"))
		Expect(engine.rollbacks[0].VerifyAfterRollback).To(BeTrue())
	})

	It("is partial when verification finds mismatches", func() {
		engine.rollbackResult = &domain.OffsetRollbackResult{
			GroupsRolledBack: 2,
			Verification: &domain.Verification{
				TotalGroups:      2,
				MatchedGroups:    1,
				MismatchedGroups: []string{"audit"},
			},
		}

		got := run(newKafkaBackup("orders"), restore())
		Expect(got.Status.Phase).To(Equal(v1alpha1.OffsetPhasePartiallyCompleted))
		Expect(got.Status.Verification.MismatchedGroups).To(ConsistOf("audit"))
		Expect(readyCondition(got.Status.Conditions).Reason).To(Equal(v1alpha1.ReasonPartialFailure))
	})

	It("fails when no group could be rolled back", func() {
		engine.rollbackResult = &domain.OffsetRollbackResult{GroupsFailed: 2}
		engine.rollbackErr = errors.New("2 consumer groups failed to roll back")

		got := run(newKafkaBackup("orders"), restore())
		Expect(got.Status.Phase).To(Equal(v1alpha1.OffsetPhaseFailed))
		Expect(got.Status.Message).To(Equal("Offset rollback failed: 2 consumer groups failed to roll back"))
		Expect(readyCondition(got.Status.Conditions).Reason).To(Equal(v1alpha1.ReasonRollbackFailed))
	})

	It("waits for the referenced restore", func() {
		c = newFakeClient(korb)
		r = NewKafkaOffsetRollbackReconciler(c, testScheme, newResolver(c), engine, newTestMetrics(), logger.NewNop())

		res, err := r.Reconcile(ctx, ctrl.Request{NamespacedName: key})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.RequeueAfter).To(Equal(transientRequeue))

		got := &v1alpha1.KafkaOffsetRollback{}
		Expect(c.Get(ctx, key, got)).To(Succeed())
		Expect(got.Status.Phase).To(Equal(v1alpha1.OffsetPhasePending))
		_, rollbacks := engine.counts()
		Expect(rollbacks).To(BeZero())
	})
})
