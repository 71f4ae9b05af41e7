// ABOUTME: MCP prompt definitions and handlers
// ABOUTME: Provides workflow templates for feed health checks and expired item review

package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	s.registerFeedHealthPrompt()
	s.registerReviewExpiredPrompt()
}

func (s *Server) registerFeedHealthPrompt() {
	s.mcpServer.AddPrompt(
		mcp.Prompt{
			Name:        "feed-health",
			Description: "Check every syndicated feed for poll failures, stale fetches and registry drift",
			Arguments:   []mcp.PromptArgument{},
		},
		s.handleFeedHealth,
	)
}

func (s *Server) handleFeedHealth(_ context.Context, _ mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	template := `# Feed Health Check

## Overview
Review the state of every syndicated feed and report the ones that need attention.

## Workflow Steps

### Step 1: Load group health
Read the syndicate://groups resource (or call list_groups).
- Note groups with error_count > 0 and read their last_error.
- Note groups whose last_fetched_at is older than a few poll intervals.
- Note groups with registered=false: their feed was removed from the registry and they are no longer polled.

### Step 2: Check recent polls
Read syndicate://reports.
- A report with item_errors means some items failed to persist; they are retried on the next poll.
- A report with not_modified=true means the upstream answered 304 and nothing was reconciled.
- Large expired counts in one poll can mean the upstream feed was truncated or broken.

### Step 3: Retry failing feeds
For each failing registered feed, call poll_feed with its url and force=true.
Compare the new report with the previous error.

### Step 4: Summarize
List, per feed: status (healthy, failing, stale, unregistered), the last error if any, and a suggested action.
`

	return &mcp.GetPromptResult{
		Description: "Health check workflow for syndicated feeds",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: template,
				},
			},
		},
	}, nil
}

func (s *Server) registerReviewExpiredPrompt() {
	s.mcpServer.AddPrompt(
		mcp.Prompt{
			Name:        "review-expired",
			Description: "Review expired items before the retention sweep deletes them",
			Arguments: []mcp.PromptArgument{
				{
					Name:        "group",
					Description: "Optional source group key to focus on",
					Required:    false,
				},
			},
		},
		s.handleReviewExpired,
	)
}

func (s *Server) handleReviewExpired(_ context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	scope := "every group"
	listCall := `list_items with state="expired"`
	if req.Params.Arguments != nil {
		if g, ok := req.Params.Arguments["group"]; ok && g != "" {
			scope = fmt.Sprintf("group %s", g)
			listCall = fmt.Sprintf(`list_items with state="expired" and group=%q`, g)
		}
	}

	template := fmt.Sprintf(`# Review Expired Items

## Overview
Expired items left their upstream feed (or changed while ingest was off). They stay in the store for %s
and are then deleted by the sweep. This workflow reviews expired items in %s.

## Workflow Steps

### Step 1: List expired items
Call %s, with include_hidden=true to cover hidden feeds.

### Step 2: Inspect candidates
Call get_item for anything that looks important. Expired items that reappear upstream are republished
automatically on the next poll when the feed has ingest enabled.

### Step 3: Protect what must stay
An expired item the operator wants kept out of reach of the sweep and of republication can be suppressed with
suppress_item. Suppressed items are never touched by polls or sweeps.

### Step 4: Preview the sweep
Call sweep_expired with dry_run=true and report how many items would be deleted.
`, "the retention window", scope, listCall)

	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Expired item review for %s", scope),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: template,
				},
			},
		},
	}, nil
}
