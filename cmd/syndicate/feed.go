// ABOUTME: Feed management commands editing the feed registry file
// ABOUTME: Adds feeds with discovery, lists them with flags, toggles ingest/display, and removes them

package main

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harper/syndicate/internal/discover"
	"github.com/harper/syndicate/internal/models"
	"github.com/harper/syndicate/internal/registry"
)

var feedCmd = &cobra.Command{
	Use:     "feed",
	Aliases: []string{"f"},
	Short:   "Manage the feed registry",
	Long:    "Add, list, update, and remove entries in the feed registry file",
}

var feedAddCmd = &cobra.Command{
	Use:   "add <url>",
	Short: "Register a feed",
	Long: `Register a feed in the registry file.

The URL may be the feed itself or a page that links to it; the feed is
discovered unless --no-discover is set. Title and site link default to the
values found in the feed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		site, _ := cmd.Flags().GetString("site")
		folder, _ := cmd.Flags().GetString("folder")
		noDiscover, _ := cmd.Flags().GetBool("no-discover")
		noIngest, _ := cmd.Flags().GetBool("no-ingest")
		hidden, _ := cmd.Flags().GetBool("hidden")
		out := cmd.OutOrStdout()

		entry := models.FeedConfig{
			Title:    title,
			FeedURL:  args[0],
			SiteLink: site,
			Folder:   folder,
			Ingest:   !noIngest,
			Display:  !hidden,
		}

		if !noDiscover {
			found, err := discover.New(newFetcher()).Discover(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("discovery failed (use --no-discover to register as-is): %w", err)
			}
			entry.FeedURL = found.URL
			if entry.Title == "" {
				entry.Title = found.Title
			}
			if entry.SiteLink == "" {
				entry.SiteLink = found.SiteLink
			}
		}
		if entry.Title == "" {
			entry.Title = entry.FeedURL
		}
		if entry.SiteLink == "" {
			entry.SiteLink = entry.FeedURL
		}

		if _, exists := reg.Lookup(entry.FeedURL); exists {
			return fmt.Errorf("feed already registered: %s", entry.FeedURL)
		}
		if err := saveRegistry(append(reg.All(), entry)); err != nil {
			return err
		}

		fmt.Fprintf(out, "Registered %s\n", entry.FeedURL)
		fmt.Fprintf(out, "  Title: %s\n  Site:  %s\n  Group: %s\n", entry.Title, entry.SiteLink, entry.GroupKey())
		return nil
	},
}

var feedListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List registered feeds",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		feeds := reg.All()
		if len(feeds) == 0 {
			fmt.Fprintln(out, "No feeds registered. Add one with 'syndicate feed add <url>'")
			return nil
		}

		faint := color.New(color.Faint).SprintFunc()
		fmt.Fprintf(out, "Found %d feed(s):\n\n", len(feeds))
		for _, feed := range feeds {
			if feed.Folder != "" {
				fmt.Fprintf(out, "[%s] %s", feed.Folder, feed.Title)
			} else {
				fmt.Fprint(out, feed.Title)
			}
			if !feed.Ingest {
				fmt.Fprint(out, faint(" [no ingest]"))
			}
			if !feed.Display {
				fmt.Fprint(out, faint(" [hidden]"))
			}
			fmt.Fprintf(out, "\n  URL:  %s\n  Site: %s\n\n", feed.FeedURL, feed.SiteLink)
		}
		return nil
	},
}

var feedSetCmd = &cobra.Command{
	Use:   "set <url>",
	Short: "Change a feed's ingest or display flag",
	Long: `Change the ingest or display flag of a registered feed.

With ingest off, new items are skipped and edited items expire on the next poll.
With display off, the feed's items are hidden from listings.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cmd.Flags().Changed("ingest") && !cmd.Flags().Changed("display") {
			return errors.New("nothing to change: pass --ingest and/or --display")
		}
		ingest, _ := cmd.Flags().GetBool("ingest")
		display, _ := cmd.Flags().GetBool("display")

		feeds := reg.All()
		found := false
		for i := range feeds {
			if feeds[i].FeedURL != args[0] {
				continue
			}
			found = true
			if cmd.Flags().Changed("ingest") {
				feeds[i].Ingest = ingest
			}
			if cmd.Flags().Changed("display") {
				feeds[i].Display = display
			}
		}
		if !found {
			return fmt.Errorf("feed not registered: %s", args[0])
		}
		if err := saveRegistry(feeds); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Updated %s\n", args[0])
		return nil
	},
}

var feedRemoveCmd = &cobra.Command{
	Use:   "remove <url>",
	Short: "Remove a feed from the registry",
	Long: `Remove a feed from the registry file.

Stored items are kept; a running daemon stops polling the feed at its next trigger.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, ok := reg.Lookup(args[0]); !ok {
			return fmt.Errorf("feed not registered: %s", args[0])
		}
		var kept []models.FeedConfig
		for _, feed := range reg.All() {
			if feed.FeedURL != args[0] {
				kept = append(kept, feed)
			}
		}
		if err := saveRegistry(kept); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed feed: %s\n", args[0])
		return nil
	},
}

// saveRegistry validates feeds, swaps them into the loaded registry and
// writes the registry file.
func saveRegistry(feeds []models.FeedConfig) error {
	if err := reg.Replace(feeds); err != nil {
		return fmt.Errorf("invalid registry: %w", err)
	}
	if err := registry.WriteFile(cfg.GetFeedsFile(), feeds); err != nil {
		return fmt.Errorf("failed to write registry: %w", err)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(feedCmd)
	feedCmd.AddCommand(feedAddCmd)
	feedCmd.AddCommand(feedListCmd)
	feedCmd.AddCommand(feedSetCmd)
	feedCmd.AddCommand(feedRemoveCmd)

	feedAddCmd.Flags().StringP("title", "t", "", "feed title (defaults to the feed's own title)")
	feedAddCmd.Flags().String("site", "", "site link for the source group (defaults to the feed's channel link)")
	feedAddCmd.Flags().StringP("folder", "f", "", "folder to organize the feed in")
	feedAddCmd.Flags().Bool("no-discover", false, "register the URL as given without fetching it")
	feedAddCmd.Flags().Bool("no-ingest", false, "register with ingest disabled")
	feedAddCmd.Flags().Bool("hidden", false, "register with display disabled")

	feedSetCmd.Flags().Bool("ingest", true, "create and update items from this feed")
	feedSetCmd.Flags().Bool("display", true, "show this feed's items in listings")
}
