package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/quantica-technologies/kafka-backup-operator/internal/domain"
)

var backupFlags struct {
	runID  string
	resume bool
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Run the backup described by the job file",
	Long: `Run the backup described by the backup section of the job file.

With --resume the latest incomplete run of the backup is continued from its
checkpoints instead of starting a new run.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if backupFlags.runID != "" {
			current.cfg.Backup.RunID = backupFlags.runID
		}
		req, err := current.cfg.ToBackupRequest()
		if err != nil {
			return err
		}

		if backupFlags.resume && req.RunID == "" {
			runID, err := current.backups.FindIncompleteRun(ctx, req.Storage, req.Name)
			if err != nil {
				return fmt.Errorf("failed to look up incomplete runs: %w", err)
			}
			if runID != "" {
				current.log.Info("Resuming incomplete run", "runID", runID)
				req.RunID = runID
			}
		}

		lastReport := time.Time{}
		res, err := current.backups.Run(ctx, req, func(p domain.BackupProgress) {
			if time.Since(lastReport) < 10*time.Second {
				return
			}
			lastReport = time.Now()
			current.log.Info("Backup progress", "runID", p.RunID, "records", p.Records,
				"partitions", fmt.Sprintf("%d/%d", p.PartitionsDone, p.Partitions))
		})
		if err != nil {
			return fmt.Errorf("backup failed: %w", err)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		defer w.Flush()
		fmt.Fprintf(w, "RUN ID\t%s\n", res.RunID)
		fmt.Fprintf(w, "MANIFEST\t%s\n", res.ManifestKey)
		fmt.Fprintf(w, "RESUMED\t%t\n", res.Resumed)
		fmt.Fprintf(w, "RECORDS\t%d\n", res.Records)
		fmt.Fprintf(w, "BYTES\t%d\n", res.Bytes)
		fmt.Fprintf(w, "SEGMENTS\t%d\n", res.Segments)
		fmt.Fprintf(w, "DURATION\t%s\n", res.Duration.Round(time.Millisecond))
		if len(res.RetentionDeleted) > 0 {
			fmt.Fprintf(w, "EXPIRED RUNS\t%d\n", len(res.RetentionDeleted))
		}
		return nil
	},
}

func init() {
	backupCmd.Flags().StringVar(&backupFlags.runID, "run-id", "", "Run id to execute or continue")
	backupCmd.Flags().BoolVar(&backupFlags.resume, "resume", false, "Continue the latest incomplete run if there is one")
}
