package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/quantica-technologies/kafka-backup-operator/internal/domain"
)

var offsetsFlags struct {
	dryRun     bool
	snapshotID string
}

var offsetsCmd = &cobra.Command{
	Use:   "offsets",
	Short: "Reset or roll back consumer group offsets",
}

var offsetsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset consumer group offsets as described by the job file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if offsetsFlags.dryRun {
			current.cfg.Offsets.Reset.DryRun = true
		}
		req, err := current.cfg.ToOffsetResetRequest()
		if err != nil {
			return err
		}

		res, runErr := current.offsets.Reset(cmd.Context(), req)
		if res != nil {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			printGroups(w, res.GroupResults)
			fmt.Fprintf(w, "\nRESET\t%d/%d\n", res.GroupsReset, res.GroupsTotal)
			if res.Snapshot != nil {
				fmt.Fprintf(w, "SNAPSHOT\t%s\n", res.Snapshot.ID)
			}
			w.Flush()
		}
		if runErr != nil {
			return fmt.Errorf("offset reset failed: %w", runErr)
		}
		if res != nil && res.GroupsFailed > 0 {
			return fmt.Errorf("%d of %d consumer groups failed to reset", res.GroupsFailed, res.GroupsTotal)
		}
		return nil
	},
}

var offsetsRollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Restore consumer group offsets from a snapshot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if offsetsFlags.snapshotID != "" {
			current.cfg.Offsets.Rollback.SnapshotID = offsetsFlags.snapshotID
		}
		if offsetsFlags.dryRun {
			current.cfg.Offsets.Rollback.DryRun = true
		}
		req, err := current.cfg.ToOffsetRollbackRequest()
		if err != nil {
			return err
		}

		res, runErr := current.offsets.Rollback(cmd.Context(), req)
		if res != nil {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			printGroups(w, res.GroupResults)
			fmt.Fprintf(w, "\nSNAPSHOT\t%s\n", res.SnapshotID)
			fmt.Fprintf(w, "ROLLED BACK\t%d\n", res.GroupsRolledBack)
			if v := res.Verification; v != nil {
				fmt.Fprintf(w, "VERIFIED\t%d/%d\n", v.MatchedGroups, v.TotalGroups)
			}
			w.Flush()
		}
		if runErr != nil {
			return fmt.Errorf("offset rollback failed: %w", runErr)
		}
		if res == nil {
			return nil
		}
		if v := res.Verification; v != nil && !v.AllMatched {
			return fmt.Errorf("offsets of %v do not match the snapshot", v.MismatchedGroups)
		}
		return nil
	},
}

func printGroups(w *tabwriter.Writer, groups []domain.GroupResult) {
	fmt.Fprintln(w, "GROUP\tSTATUS\tPARTITIONS\tERROR")
	for _, g := range groups {
		status := "ok"
		if !g.Success {
			status = "failed"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", g.GroupID, status, g.PartitionsReset, g.Error)
	}
}

func init() {
	offsetsCmd.PersistentFlags().BoolVar(&offsetsFlags.dryRun, "dry-run", false, "Compute target offsets without committing them")
	offsetsRollbackCmd.Flags().StringVar(&offsetsFlags.snapshotID, "snapshot-id", "", "Snapshot to roll back to")

	offsetsCmd.AddCommand(offsetsResetCmd, offsetsRollbackCmd)
}
