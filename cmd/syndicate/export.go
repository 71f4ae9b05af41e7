// ABOUTME: Export command for writing the feed registry as OPML or YAML to stdout
// ABOUTME: Keeps folders and ingest/display toggles for backup or import elsewhere

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/harper/syndicate/internal/registry"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the feed registry to stdout",
	Long:  "Export the current feed registry as OPML (default) or YAML to standard output",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		switch format {
		case "opml":
			return registry.ToOPML("Syndicated Feeds", reg.All()).Write(cmd.OutOrStdout())
		case "yaml":
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			defer enc.Close()
			return enc.Encode(map[string]any{"feeds": reg.All()})
		default:
			return fmt.Errorf("unknown format %q: must be opml or yaml", format)
		}
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().String("format", "opml", "output format: opml or yaml")
}
