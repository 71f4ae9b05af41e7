// ABOUTME: Sweep command deleting items expired longer than the retention window
// ABOUTME: Supports a dry run that lists the items that would be deleted

package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harper/syndicate/internal/sweep"
	"github.com/harper/syndicate/internal/timeutil"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete items expired longer than the retention window",
	Long: `Permanently delete items that have been expired for longer than the
retention window (30d by default, see retention in the config).

Items that were republished since they expired are never deleted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		override, _ := cmd.Flags().GetString("retention")
		out := cmd.OutOrStdout()

		retention, err := cfg.GetRetention()
		if err != nil {
			return err
		}
		if override != "" {
			if retention, err = timeutil.ParseRetention(override); err != nil {
				return err
			}
		}

		sweeper := sweep.New(store, log)
		now := time.Now()
		faint := color.New(color.Faint).SprintFunc()

		if dryRun {
			candidates, err := sweeper.Candidates(cmd.Context(), retention, now)
			if err != nil {
				return err
			}
			for _, item := range candidates {
				fmt.Fprintf(out, "%s %s %s\n", faint(shortID(item.ID)), item.Title, faint("expired "+formatTime(&item.ModifiedAt)))
			}
			fmt.Fprintf(out, "%d item(s) expired more than %s ago would be deleted\n", len(candidates), timeutil.FormatRetention(retention))
			return nil
		}

		deleted, err := sweeper.Sweep(cmd.Context(), retention, now)
		if err != nil {
			return err
		}
		color.New(color.FgGreen).Fprintf(out, "Deleted %d expired item(s)\n", deleted)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
	sweepCmd.Flags().Bool("dry-run", false, "list the items that would be deleted")
	sweepCmd.Flags().String("retention", "", "override the retention window (e.g. 30d, 720h)")
}
