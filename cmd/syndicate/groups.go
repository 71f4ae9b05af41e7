// ABOUTME: Groups command listing source groups with item counts and poll health
// ABOUTME: Flags groups whose feed has left the registry

package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var groupsCmd = &cobra.Command{
	Use:     "groups",
	Aliases: []string{"g"},
	Short:   "List source groups",
	Long:    "List one source group per polled feed with per-state item counts, last fetch time and poll errors",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		stats, err := store.GetGroupStats(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to get group stats: %w", err)
		}
		if len(stats) == 0 {
			fmt.Fprintln(out, "No groups yet. Run 'syndicate poll' first")
			return nil
		}

		bold := color.New(color.Bold).SprintFunc()
		faint := color.New(color.Faint).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()

		for _, st := range stats {
			fmt.Fprintf(out, "%s %s", faint(shortID(st.GroupKey)), bold(st.DisplayName))
			feed, registered := reg.Lookup(st.FeedURL)
			switch {
			case !registered:
				fmt.Fprintf(out, " %s", yellow("[unregistered]"))
			case !feed.Display:
				fmt.Fprintf(out, " %s", faint("[hidden]"))
			}
			fmt.Fprintln(out)
			fmt.Fprintf(out, "  %s\n", st.FeedURL)
			fmt.Fprintf(out, "  %d published, %d expired, %d suppressed, last fetched %s\n",
				st.Published, st.Expired, st.Suppressed, formatTime(st.LastFetchedAt))
			if st.LastError != nil && *st.LastError != "" {
				fmt.Fprintf(out, "  %s %s (%d)\n", red("error:"), *st.LastError, st.ErrorCount)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(groupsCmd)
}
