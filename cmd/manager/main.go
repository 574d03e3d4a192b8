package main

import (
	"flag"
	"fmt"
	"os"

	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	_ "k8s.io/client-go/plugin/pkg/client/auth"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	ctrlmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"
	metricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"

	"github.com/quantica-technologies/kafka-backup-operator/api/v1alpha1"
	"github.com/quantica-technologies/kafka-backup-operator/controllers"
	"github.com/quantica-technologies/kafka-backup-operator/internal/app/backup"
	"github.com/quantica-technologies/kafka-backup-operator/internal/app/offsets"
	"github.com/quantica-technologies/kafka-backup-operator/internal/app/restore"
	"github.com/quantica-technologies/kafka-backup-operator/internal/config"
	"github.com/quantica-technologies/kafka-backup-operator/internal/infrastructure/kafka"
	"github.com/quantica-technologies/kafka-backup-operator/internal/infrastructure/storage"
	"github.com/quantica-technologies/kafka-backup-operator/internal/resolve"
	"github.com/quantica-technologies/kafka-backup-operator/pkg/logger"
	"github.com/quantica-technologies/kafka-backup-operator/pkg/metrics"
)

const version = "1.0.0"

var scheme = runtime.NewScheme()

func init() {
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	utilruntime.Must(v1alpha1.AddToScheme(scheme))
}

func main() {
	var (
		configFile  = flag.String("config", "/etc/kafka-backup-operator/config.yaml", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("Kafka Backup Operator v%s\n", version)
		return
	}

	cfg, err := config.LoadOperator(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log)
	ctrl.SetLogger(log.Logr())

	mgr, err := ctrl.NewManager(ctrl.GetConfigOrDie(), ctrl.Options{
		Scheme: scheme,
		Metrics: metricsserver.Options{
			BindAddress: cfg.MetricsAddr,
		},
		HealthProbeBindAddress:  cfg.ProbeAddr,
		LeaderElection:          cfg.LeaderElection.Enabled,
		LeaderElectionID:        cfg.LeaderElection.ID,
		LeaderElectionNamespace: cfg.LeaderElection.Namespace,
		GracefulShutdownTimeout: &cfg.ShutdownTimeout,
	})
	if err != nil {
		log.Fatal("Failed to create manager", "error", err)
	}

	m := metrics.New(ctrlmetrics.Registry)

	openStores := storage.Opener(storage.Options{
		Timeout:            cfg.Storage.Timeout,
		MaxAttempts:        cfg.Storage.MaxAttempts,
		InitialBackoff:     cfg.Storage.InitialBackoff,
		StreamingThreshold: cfg.Storage.StreamingThreshold,
		Metrics:            m,
		Logger:             log.WithFields(map[string]interface{}{"component": "storage"}),
	})
	kafkaRepo := kafka.NewRepository(log.WithFields(map[string]interface{}{"component": "kafka"}))

	offsetEngine := offsets.NewEngine(kafkaRepo, openStores, m, log.WithFields(map[string]interface{}{"component": "offsets"}))
	backupEngine := backup.NewEngine(kafkaRepo, openStores, m, log.WithFields(map[string]interface{}{"component": "backup"}))
	restoreEngine := restore.NewEngine(kafkaRepo, openStores, offsetEngine, m, log.WithFields(map[string]interface{}{"component": "restore"}))

	resolver := resolve.New(mgr.GetClient(), resolve.Options{
		PVCRoot:          cfg.Storage.PVCRoot,
		ClientID:         cfg.Kafka.ClientID,
		KafkaVersion:     cfg.Kafka.Version,
		FetchIdleTimeout: cfg.Kafka.FetchIdleTimeout,
	})

	backupReconciler := controllers.NewKafkaBackupReconciler(mgr.GetClient(), mgr.GetScheme(), resolver, backupEngine, m, log)
	backupReconciler.MaxConcurrentReconciles = cfg.MaxConcurrentReconciles
	if err := backupReconciler.SetupWithManager(mgr); err != nil {
		log.Fatal("Failed to set up controller", "controller", controllers.KindBackup, "error", err)
	}

	restoreReconciler := controllers.NewKafkaRestoreReconciler(mgr.GetClient(), mgr.GetScheme(), resolver, restoreEngine, m, log)
	restoreReconciler.MaxConcurrentReconciles = cfg.MaxConcurrentReconciles
	if err := restoreReconciler.SetupWithManager(mgr); err != nil {
		log.Fatal("Failed to set up controller", "controller", controllers.KindRestore, "error", err)
	}

	resetReconciler := controllers.NewKafkaOffsetResetReconciler(mgr.GetClient(), mgr.GetScheme(), resolver, offsetEngine, m, log)
	resetReconciler.MaxConcurrentReconciles = cfg.MaxConcurrentReconciles
	if err := resetReconciler.SetupWithManager(mgr); err != nil {
		log.Fatal("Failed to set up controller", "controller", controllers.KindOffsetReset, "error", err)
	}

	rollbackReconciler := controllers.NewKafkaOffsetRollbackReconciler(mgr.GetClient(), mgr.GetScheme(), resolver, offsetEngine, m, log)
	rollbackReconciler.MaxConcurrentReconciles = cfg.MaxConcurrentReconciles
	if err := rollbackReconciler.SetupWithManager(mgr); err != nil {
		log.Fatal("Failed to set up controller", "controller", controllers.KindOffsetRollback, "error", err)
	}

	if err := mgr.AddHealthzCheck("healthz", healthz.Ping); err != nil {
		log.Fatal("Failed to set up health check", "error", err)
	}
	if err := mgr.AddReadyzCheck("readyz", healthz.Ping); err != nil {
		log.Fatal("Failed to set up ready check", "error", err)
	}

	log.Info("Starting manager", "version", version, "metricsAddr", cfg.MetricsAddr, "leaderElection", cfg.LeaderElection.Enabled)
	if err := mgr.Start(ctrl.SetupSignalHandler()); err != nil {
		log.Fatal("Manager stopped", "error", err)
	}
}
