// ABOUTME: List command for viewing syndicated items with filtering options
// ABOUTME: Hides feeds not marked for display unless --all-groups is set

package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harper/syndicate/internal/config"
	"github.com/harper/syndicate/internal/models"
	"github.com/harper/syndicate/internal/storage"
	"github.com/harper/syndicate/internal/timeutil"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls", "l"},
	Short:   "List syndicated items",
	Long:    "List syndicated items, newest first, with optional filtering by group, state and publication time",
	RunE: func(cmd *cobra.Command, args []string) error {
		groupFilter, _ := cmd.Flags().GetString("group")
		stateFlag, _ := cmd.Flags().GetString("state")
		allGroups, _ := cmd.Flags().GetBool("all-groups")
		since, _ := cmd.Flags().GetString("since")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		out := cmd.OutOrStdout()

		state, err := models.ParseState(stateFlag)
		if err != nil {
			return err
		}

		filter := &storage.ItemFilter{
			States: []models.State{state},
			Limit:  &limit,
			Offset: &offset,
		}
		if !allGroups {
			filter.ExcludedGroups = reg.ExcludedGroups()
		}
		if groupFilter != "" {
			groupKey, err := resolveGroup(cmd, groupFilter)
			if err != nil {
				return err
			}
			filter.GroupKeys = []string{groupKey}
		}
		if since != "" {
			t, err := timeutil.ParseSince(since, timeNow())
			if err != nil {
				return err
			}
			filter.Since = &t
		}

		items, err := store.ListItems(cmd.Context(), filter)
		if err != nil {
			return fmt.Errorf("failed to list items: %w", err)
		}
		if len(items) == 0 {
			fmt.Fprintln(out, "No items found")
			return nil
		}

		names, err := groupNames(cmd)
		if err != nil {
			return err
		}

		faint := color.New(color.Faint).SprintFunc()
		for _, item := range items {
			fmt.Fprintf(out, "%s %s %s\n",
				faint(shortID(item.ID)),
				models.PrefixedTitle(names[item.GroupKey], item.Title),
				faint(item.PublishedAt.Local().Format(config.DateFormatShort)))
		}
		return nil
	},
}

// resolveGroup accepts a group key or a registered feed URL.
func resolveGroup(cmd *cobra.Command, ref string) (string, error) {
	if feed, ok := reg.Lookup(ref); ok {
		return feed.GroupKey(), nil
	}
	group, err := store.GetGroup(cmd.Context(), ref)
	if err != nil {
		return "", fmt.Errorf("unknown group %q: %w", ref, err)
	}
	return group.GroupKey, nil
}

func groupNames(cmd *cobra.Command) (map[string]string, error) {
	groups, err := store.ListGroups(cmd.Context())
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	names := make(map[string]string, len(groups))
	for _, g := range groups {
		names[g.GroupKey] = g.DisplayName
	}
	return names, nil
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringP("group", "g", "", "filter by group key or feed URL")
	listCmd.Flags().StringP("state", "s", "published", "item state: published, expired, suppressed")
	listCmd.Flags().BoolP("all-groups", "a", false, "include feeds not marked for display")
	listCmd.Flags().String("since", "", "only items published since: today, yesterday, week, month, 7d, or RFC 3339")
	listCmd.Flags().IntP("limit", "n", config.DefaultListLimit, "max items to show")
	listCmd.Flags().IntP("offset", "o", 0, "number of items to skip (for pagination)")
}
