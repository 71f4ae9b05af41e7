// ABOUTME: MCP server command for syndicate CLI
// ABOUTME: Starts stdio-based MCP server for AI agent integration

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harper/syndicate/internal/logger"
	"github.com/harper/syndicate/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server for AI agents",
	Long: `Start the Model Context Protocol (MCP) server on stdio.

This lets AI agents inspect syndicated items and source groups, trigger
polls and sweeps, and suppress or restore items through structured tools.

The server communicates via JSON-RPC on stdin/stdout.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, closeLocker, err := newService(cmd.Context())
		if err != nil {
			return err
		}
		defer closeLocker()

		server := mcp.NewServer(store, reg, svc, logger.Component("mcp"))
		if err := server.ServeStdio(); err != nil {
			return fmt.Errorf("MCP server error: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
