// ABOUTME: Poll command to reconcile registered feeds against the store once
// ABOUTME: Polls every feed or a single URL and prints a colored per-feed report

package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harper/syndicate/internal/syndicate"
)

var pollCmd = &cobra.Command{
	Use:   "poll [url]",
	Short: "Poll registered feeds once",
	Long: `Fetch registered feeds and reconcile their items with the store.

Uses HTTP caching headers (ETag, Last-Modified) to skip unchanged feeds.
Use --force to ignore cache headers and fetch unconditionally.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		out := cmd.OutOrStdout()

		if reg.Len() == 0 {
			fmt.Fprintf(out, "No feeds registered. Add one with 'syndicate feed add <url>'\n")
			return nil
		}

		svc, closeLocker, err := newService(cmd.Context())
		if err != nil {
			return err
		}
		defer closeLocker()

		var opts []syndicate.PollOption
		if force {
			opts = append(opts, syndicate.WithForce())
		}

		var results []syndicate.PollResult
		if len(args) == 1 {
			report, err := svc.Poll(cmd.Context(), args[0], opts...)
			results = []syndicate.PollResult{{FeedURL: args[0], Report: report, Err: err}}
		} else {
			results = svc.PollAll(cmd.Context(), opts...)
		}

		failed := printPollResults(out, results)
		if failed > 0 {
			return fmt.Errorf("%d feed(s) failed", failed)
		}
		return nil
	},
}

// printPollResults writes one line per feed plus a summary and returns the
// number of feeds that failed outright.
func printPollResults(out io.Writer, results []syndicate.PollResult) int {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	faint := color.New(color.Faint).SprintFunc()

	var writes, failed, partial, cached int
	for _, r := range results {
		fmt.Fprintf(out, "%s ", r.FeedURL)
		switch {
		case r.Err != nil:
			fmt.Fprintf(out, "%s %s\n", red("x"), r.Err.Error())
			failed++
			continue
		case r.Report.NotModified:
			fmt.Fprintf(out, "%s (not modified)\n", faint("-"))
			cached++
			continue
		}

		rep := r.Report
		mark := green("v")
		if rep.HasErrors() {
			mark = yellow("!")
			partial++
		}
		fmt.Fprintf(out, "%s %d created, %d updated, %d expired, %d republished, %d unchanged",
			mark, rep.Created, rep.Updated, rep.Expired, rep.Republished, rep.Unchanged)
		if rep.Skipped > 0 {
			fmt.Fprintf(out, ", %d skipped", rep.Skipped)
		}
		if rep.Protected > 0 {
			fmt.Fprintf(out, ", %d protected", rep.Protected)
		}
		fmt.Fprintln(out)
		for _, e := range rep.Errors {
			fmt.Fprintf(out, "    %s\n", faint(e.Error()))
		}
		writes += rep.Writes()
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Summary: %d feed(s) polled, %d write(s)\n", len(results), writes)
	if cached > 0 {
		fmt.Fprintf(out, "  %s %d not modified\n", faint("-"), cached)
	}
	if partial > 0 {
		fmt.Fprintf(out, "  %s %d with item errors (retried next poll)\n", yellow("!"), partial)
	}
	if failed > 0 {
		fmt.Fprintf(out, "  %s %d failed\n", red("x"), failed)
	}
	return failed
}

func init() {
	rootCmd.AddCommand(pollCmd)
	pollCmd.Flags().BoolP("force", "f", false, "ignore cache headers and force fetch")
}
