// ABOUTME: Search command for full-text search over syndicated items
// ABOUTME: Uses the store's FTS index and hides feeds not marked for display

package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harper/syndicate/internal/config"
	"github.com/harper/syndicate/internal/models"
	"github.com/harper/syndicate/internal/storage"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search item titles and bodies",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		allGroups, _ := cmd.Flags().GetBool("all-groups")
		limit, _ := cmd.Flags().GetInt("limit")
		out := cmd.OutOrStdout()

		filter := &storage.ItemFilter{Limit: &limit}
		if !allGroups {
			filter.ExcludedGroups = reg.ExcludedGroups()
		}

		items, err := store.Search(cmd.Context(), strings.Join(args, " "), filter)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Fprintln(out, "No matches")
			return nil
		}

		names, err := groupNames(cmd)
		if err != nil {
			return err
		}
		faint := color.New(color.Faint).SprintFunc()
		for _, item := range items {
			fmt.Fprintf(out, "%s %s %s\n", faint(shortID(item.ID)),
				models.PrefixedTitle(names[item.GroupKey], item.Title), faint("["+item.State.String()+"]"))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().BoolP("all-groups", "a", false, "include feeds not marked for display")
	searchCmd.Flags().IntP("limit", "n", config.DefaultListLimit, "max results")
}
