// ABOUTME: Show command for viewing one syndicated item
// ABOUTME: Renders the item body as Markdown in the terminal with glamour

package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harper/syndicate/internal/config"
	"github.com/harper/syndicate/internal/sanitize"
)

var showCmd = &cobra.Command{
	Use:     "show <item-id>",
	Aliases: []string{"read"},
	Short:   "Show a syndicated item",
	Long:    "Display the full content of a syndicated item by ID or ID prefix",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, _ := cmd.Flags().GetBool("raw")
		out := cmd.OutOrStdout()

		item, err := store.GetItemByIDOrPrefix(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("item not found: %s", args[0])
		}
		group, err := store.GetGroup(cmd.Context(), item.GroupKey)
		if err != nil {
			return fmt.Errorf("failed to get group: %w", err)
		}

		bold := color.New(color.Bold).SprintFunc()
		faint := color.New(color.Faint).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()

		fmt.Fprintln(out, strings.Repeat("─", config.SeparatorWidth))
		fmt.Fprintf(out, "%s\n\n", bold(item.Title))
		fmt.Fprintf(out, "%s %s\n", faint("Source:"), group.DisplayName)
		fmt.Fprintf(out, "%s %s\n", faint("State:"), item.State)
		fmt.Fprintf(out, "%s %s\n", faint("Published:"), item.PublishedAt.Local().Format(config.DateFormatLong))
		if link := item.Link(); link != "" {
			fmt.Fprintf(out, "%s %s\n", faint("Link:"), cyan(link))
		}
		fmt.Fprintln(out, strings.Repeat("─", config.SeparatorWidth))
		fmt.Fprintln(out)

		body := item.Body
		if body == "" {
			body = item.Summary
		}
		if body == "" {
			fmt.Fprintln(out, faint("(no content)"))
			return nil
		}
		if raw {
			fmt.Fprintln(out, body)
			return nil
		}

		markdown := sanitize.Markdown(body)
		rendered, err := glamour.Render(markdown, "auto")
		if err != nil {
			fmt.Fprintln(out, markdown)
			return nil
		}
		fmt.Fprint(out, rendered)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().Bool("raw", false, "print the stored HTML instead of rendering it")
}
