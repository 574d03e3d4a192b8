// Package cmd implements the kafka-backup command line, which runs the
// operator's engines once against a YAML job file.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/quantica-technologies/kafka-backup-operator/internal/app/backup"
	"github.com/quantica-technologies/kafka-backup-operator/internal/app/offsets"
	"github.com/quantica-technologies/kafka-backup-operator/internal/app/restore"
	"github.com/quantica-technologies/kafka-backup-operator/internal/config"
	"github.com/quantica-technologies/kafka-backup-operator/internal/infrastructure/kafka"
	"github.com/quantica-technologies/kafka-backup-operator/internal/infrastructure/storage"
	"github.com/quantica-technologies/kafka-backup-operator/pkg/logger"
	"github.com/quantica-technologies/kafka-backup-operator/pkg/metrics"
)

const version = "1.0.0"

var rootFlags struct {
	config   string
	logLevel string
}

// job is what every subcommand needs, built once from the job file
type job struct {
	cfg      *config.Config
	log      logger.Logger
	backups  *backup.Engine
	restores *restore.Engine
	offsets  *offsets.Engine
}

var current *job

var rootCmd = &cobra.Command{
	Use:           "kafka-backup",
	Short:         "Back up and restore Kafka topics and consumer group offsets",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadFromFile(rootFlags.config)
		if err != nil {
			return err
		}
		if rootFlags.logLevel != "" {
			cfg.Log.Level = rootFlags.logLevel
		}
		current = newJob(cfg)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&rootFlags.config, "config", "c", "config.yaml", "Path to the job file")
	rootCmd.PersistentFlags().StringVar(&rootFlags.logLevel, "log-level", "", "Override the log level of the job file")

	rootCmd.AddCommand(backupCmd, restoreCmd, offsetsCmd)
}

// Execute runs the root command.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

func newJob(cfg *config.Config) *job {
	log := logger.New(cfg.Log)
	m := metrics.NewNop()

	openStores := storage.Opener(storage.Options{Metrics: m, Logger: log})
	kafkaRepo := kafka.NewRepository(log)
	offsetEngine := offsets.NewEngine(kafkaRepo, openStores, m, log)

	return &job{
		cfg:      cfg,
		log:      log,
		backups:  backup.NewEngine(kafkaRepo, openStores, m, log),
		restores: restore.NewEngine(kafkaRepo, openStores, offsetEngine, m, log),
		offsets:  offsetEngine,
	}
}
