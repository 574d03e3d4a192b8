package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "kafka_backup_operator"

// Outcome label values
const (
	OutcomeSuccess    = "success"
	OutcomeFailure    = "failure"
	OutcomeRolledBack = "rolled_back"
	OutcomeDryRun     = "dry_run"
	OutcomePartial    = "partial"
)

// Metrics holds every collector exported by the operator. It is created once
// in main and handed to controllers and engines.
type Metrics struct {
	Reconciliations      *prometheus.CounterVec
	ReconciliationErrors *prometheus.CounterVec
	ReconcileDuration    *prometheus.HistogramVec
	Cleanups             *prometheus.CounterVec
	ManagedResources     *prometheus.GaugeVec

	// Backup metrics
	BackupsTotal       *prometheus.CounterVec
	BackupSizeBytes    *prometheus.GaugeVec
	BackupRecords      *prometheus.GaugeVec
	BackupDuration     *prometheus.HistogramVec
	BackupSegments     *prometheus.CounterVec
	BackupMessages     *prometheus.CounterVec
	BackupBytes        *prometheus.CounterVec
	PartitionRetries   *prometheus.CounterVec
	RetentionDeletions *prometheus.CounterVec

	// Restore metrics
	RestoresTotal    *prometheus.CounterVec
	RestoreDuration  *prometheus.HistogramVec
	RestoreMessages  *prometheus.CounterVec
	RestoreBytes     *prometheus.CounterVec
	PitrFiltered     *prometheus.CounterVec
	IntegrityFailure *prometheus.CounterVec

	// Offset metrics
	OffsetResets          *prometheus.CounterVec
	OffsetResetDuration   *prometheus.HistogramVec
	OffsetRollbacks       *prometheus.CounterVec
	OffsetSnapshots       *prometheus.CounterVec
	OffsetCommitsOutcomes *prometheus.CounterVec

	// Storage metrics
	StorageOperations *prometheus.CounterVec
	StorageLatency    *prometheus.HistogramVec
	StorageRetries    *prometheus.CounterVec

	// Circuit breaker
	CircuitBreakerTrips *prometheus.CounterVec
	InFlightPartitions  *prometheus.GaugeVec
}

// New registers all collectors with reg. A nil reg yields unregistered
// collectors, which is what tests usually want.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		Reconciliations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliations_total",
			Help:      "Total number of reconciliations",
		}, []string{"kind"}),
		ReconciliationErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliation_errors_total",
			Help:      "Total number of reconciliation errors",
		}, []string{"kind"}),
		ReconcileDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reconcile_duration_seconds",
			Help:      "Duration of reconciliation",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0, 30.0, 60.0},
		}, []string{"kind"}),
		Cleanups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanups_total",
			Help:      "Total number of finalizer cleanups",
		}, []string{"kind"}),
		ManagedResources: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "managed_resources",
			Help:      "Number of resources with an active task",
		}, []string{"kind"}),

		BackupsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backups_total",
			Help:      "Total number of backup runs by outcome",
		}, []string{"outcome", "namespace", "name"}),
		BackupSizeBytes: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backup_size_bytes",
			Help:      "Size of the last backup in bytes",
		}, []string{"namespace", "name"}),
		BackupRecords: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backup_records_total",
			Help:      "Number of records in the last backup",
		}, []string{"namespace", "name"}),
		BackupDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backup_duration_seconds",
			Help:      "Duration of backup runs",
			Buckets:   []float64{1, 10, 30, 60, 300, 600, 1800, 3600, 7200},
		}, []string{"namespace", "name"}),
		BackupSegments: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backup_segments_written_total",
			Help:      "Segments written to storage",
		}, []string{"topic"}),
		BackupMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backup_messages_processed_total",
			Help:      "Records read from Kafka by backup runs",
		}, []string{"topic"}),
		BackupBytes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backup_bytes_processed_total",
			Help:      "Compressed bytes written by backup runs",
		}, []string{"topic"}),
		PartitionRetries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "partition_retries_total",
			Help:      "Partition attempts retried after a failure",
		}, []string{"operation"}),
		RetentionDeletions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retention_deleted_runs_total",
			Help:      "Backup runs removed by the retention policy",
		}, []string{"namespace", "name"}),

		RestoresTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "restores_total",
			Help:      "Total number of restores by outcome",
		}, []string{"outcome", "namespace", "name"}),
		RestoreDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "restore_duration_seconds",
			Help:      "Duration of restores",
			Buckets:   []float64{1, 10, 30, 60, 300, 600, 1800, 3600, 7200},
		}, []string{"namespace", "name"}),
		RestoreMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "restore_messages_processed_total",
			Help:      "Records produced by restores",
		}, []string{"topic"}),
		RestoreBytes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "restore_bytes_processed_total",
			Help:      "Segment bytes read by restores",
		}, []string{"topic"}),
		PitrFiltered: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "restore_pitr_filtered_records_total",
			Help:      "Records skipped because they fall outside the PITR window",
		}, []string{"topic"}),
		IntegrityFailure: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "restore_integrity_failures_total",
			Help:      "Segments rejected by checksum or offset validation",
		}, []string{"topic"}),

		OffsetResets: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "offset_resets_total",
			Help:      "Total number of offset resets by outcome",
		}, []string{"outcome", "namespace"}),
		OffsetResetDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "offset_reset_duration_seconds",
			Help:      "Duration of offset resets",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
		}, []string{"namespace"}),
		OffsetRollbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "offset_rollbacks_total",
			Help:      "Total number of offset rollbacks by outcome",
		}, []string{"outcome", "namespace"}),
		OffsetSnapshots: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "offset_snapshots_total",
			Help:      "Offset snapshots written",
		}, []string{"source"}),
		OffsetCommitsOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "offset_group_commits_total",
			Help:      "Consumer group offset commits by outcome",
		}, []string{"outcome"}),

		StorageOperations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_operations_total",
			Help:      "Total storage operations",
		}, []string{"backend", "operation", "status"}),
		StorageLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "storage_operation_duration_seconds",
			Help:      "Storage operation latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"backend", "operation"}),
		StorageRetries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_retries_total",
			Help:      "Storage operations retried after a transient failure",
		}, []string{"backend", "operation"}),

		CircuitBreakerTrips: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_trips_total",
			Help:      "Circuit breaker transitions into the open state",
		}, []string{"scope"}),
		InFlightPartitions: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "in_flight_partitions",
			Help:      "Partition operations currently holding a concurrency slot",
		}, []string{"scope"}),
	}
}

// NewNop returns unregistered collectors.
func NewNop() *Metrics {
	return New(nil)
}

// ObserveStorage records one storage call.
func (m *Metrics) ObserveStorage(backend, operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.StorageOperations.WithLabelValues(backend, operation, status).Inc()
	m.StorageLatency.WithLabelValues(backend, operation).Observe(time.Since(start).Seconds())
}
