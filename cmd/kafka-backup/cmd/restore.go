package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/quantica-technologies/kafka-backup-operator/internal/domain"
)

var restoreFlags struct {
	backupID string
	dryRun   bool
}

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore topics from a backup",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if restoreFlags.backupID != "" {
			current.cfg.Restore.BackupID = restoreFlags.backupID
		}
		if restoreFlags.dryRun {
			current.cfg.Restore.DryRun = true
		}
		req, err := current.cfg.ToRestoreRequest()
		if err != nil {
			return err
		}

		res, runErr := current.restores.Run(cmd.Context(), req, func(phase domain.RestorePhase, p domain.RestoreProgress) {
			current.log.Info("Restore progress", "phase", phase, "percent", p.PercentComplete(), "records", p.Records)
		})
		if res != nil {
			printRestore(cmd, res)
		}
		if runErr != nil {
			return fmt.Errorf("restore failed: %w", runErr)
		}
		return nil
	},
}

func printRestore(cmd *cobra.Command, res *domain.RestoreResult) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	defer w.Flush()
	fmt.Fprintf(w, "RESTORE ID\t%s\n", res.RestoreID)
	fmt.Fprintf(w, "BACKUP ID\t%s\n", res.BackupID)
	fmt.Fprintf(w, "PHASE\t%s\n", res.Phase)
	fmt.Fprintf(w, "TOPICS\t%s\n", strings.Join(res.TopicsPlanned, ","))
	fmt.Fprintf(w, "SEGMENTS\t%d/%d\n", res.SegmentsProcessed, res.SegmentsPlanned)
	fmt.Fprintf(w, "RECORDS\t%d\n", res.Records)
	fmt.Fprintf(w, "FILTERED BY PITR\t%d\n", res.FilteredByPITR)
	if res.DryRun {
		return
	}
	if res.Snapshot != nil {
		fmt.Fprintf(w, "OFFSET SNAPSHOT\t%s\n", res.Snapshot.ID)
	}
	if res.OffsetMappingPath != "" {
		fmt.Fprintf(w, "OFFSET MAPPING\t%s\n", res.OffsetMappingPath)
	}
	fmt.Fprintf(w, "DURATION\t%s\n", res.Duration.Round(time.Millisecond))
}

func init() {
	restoreCmd.Flags().StringVar(&restoreFlags.backupID, "backup-id", "", "Restore this run instead of the latest one")
	restoreCmd.Flags().BoolVar(&restoreFlags.dryRun, "dry-run", false, "Validate and plan without producing")
}
