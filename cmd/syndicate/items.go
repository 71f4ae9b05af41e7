// ABOUTME: Item commands for local operator actions on syndicated items
// ABOUTME: Suppresses, restores, and opens items in the browser

package main

import (
	"fmt"
	"net/url"
	"os/exec"
	"runtime"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harper/syndicate/internal/syndicate"
)

var suppressCmd = &cobra.Command{
	Use:     "suppress <item-id>",
	Aliases: []string{"trash"},
	Short:   "Suppress an item locally",
	Long: `Suppress an item by ID or ID prefix (minimum 6 characters).

Suppressed items are never updated, expired, republished or swept by later
polls, whatever the upstream feed does. Use 'syndicate restore' to undo.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		item, err := syndicate.Suppress(cmd.Context(), store, args[0], timeNow())
		if err != nil {
			return fmt.Errorf("failed to suppress item: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Suppressed: %s\n", color.New(color.FgYellow).Sprint("v"), item.Title)
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <item-id>",
	Short: "Restore a suppressed item",
	Long:  "Return a locally suppressed item to published by ID or ID prefix (minimum 6 characters)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		item, err := syndicate.Restore(cmd.Context(), store, args[0], timeNow())
		if err != nil {
			return fmt.Errorf("failed to restore item: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Restored: %s\n", color.New(color.FgGreen).Sprint("v"), item.Title)
		return nil
	},
}

var openCmd = &cobra.Command{
	Use:   "open <item-id>",
	Short: "Open an item's link in the browser",
	Long:  "Open an item's source permalink (or its group's site) in your default browser by ID or ID prefix",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		item, err := store.GetItemByIDOrPrefix(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to find item: %w", err)
		}

		link := item.Link()
		if link == "" {
			group, err := store.GetGroup(cmd.Context(), item.GroupKey)
			if err != nil {
				return fmt.Errorf("failed to get group: %w", err)
			}
			link = group.Link()
		}

		parsedURL, err := url.Parse(link)
		if err != nil {
			return fmt.Errorf("item has malformed link: %w", err)
		}
		if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
			return fmt.Errorf("item link must be http or https, got: %s", parsedURL.Scheme)
		}
		if !reg.IsAllowedHost(parsedURL.Hostname()) {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s %s is not a registered partner host\n",
				color.New(color.FgYellow).Sprint("warning:"), strings.ToLower(parsedURL.Hostname()))
		}

		if err := openBrowser(parsedURL.String()); err != nil {
			return fmt.Errorf("failed to open browser: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "v Opened: %s\n", item.Title)
		return nil
	},
}

// openBrowser opens a URL in the default browser for the current platform
func openBrowser(urlStr string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", urlStr)
	case "linux":
		cmd = exec.Command("xdg-open", urlStr)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", urlStr)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}

	// Reap the process asynchronously to prevent zombie processes
	go cmd.Wait()

	return nil
}

func init() {
	rootCmd.AddCommand(suppressCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(openCmd)
}
