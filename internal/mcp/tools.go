// ABOUTME: MCP tool definitions and handlers for syndicated items, groups and polls
// ABOUTME: Listing tools apply the registry's display flags as an explicit visibility filter

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/harper/syndicate/internal/models"
	"github.com/harper/syndicate/internal/reconcile"
	"github.com/harper/syndicate/internal/sanitize"
	"github.com/harper/syndicate/internal/storage"
	"github.com/harper/syndicate/internal/syndicate"
	"github.com/harper/syndicate/internal/timeutil"
)

// Type definitions for input/output structures

type ListItemsInput struct {
	Group         *string `json:"group,omitempty"`
	State         *string `json:"state,omitempty"`
	Since         *string `json:"since,omitempty"`
	Until         *string `json:"until,omitempty"`
	Limit         *int    `json:"limit,omitempty"`
	Offset        *int    `json:"offset,omitempty"`
	IncludeHidden *bool   `json:"include_hidden,omitempty"`
}

type ItemOutput struct {
	ID          string    `json:"id"`
	GroupKey    string    `json:"group_key"`
	Title       string    `json:"title"`
	Link        string    `json:"link"`
	State       string    `json:"state"`
	PublishedAt time.Time `json:"published_at"`
	ModifiedAt  time.Time `json:"modified_at"`
}

type ListItemsOutput struct {
	Items   []ItemOutput   `json:"items"`
	Count   int            `json:"count"`
	Filters map[string]any `json:"filters"`
}

type GetItemInput struct {
	ItemID string `json:"item_id"`
}

type GetItemOutput struct {
	ItemOutput
	GroupName string `json:"group_name,omitempty"`
	GUID      string `json:"guid"`
	Summary   string `json:"summary,omitempty"`
	Content   string `json:"content,omitempty"`
}

type GroupOutput struct {
	GroupKey      string     `json:"group_key"`
	Name          string     `json:"name"`
	FeedURL       string     `json:"feed_url"`
	Link          string     `json:"link"`
	Registered    bool       `json:"registered"`
	Display       bool       `json:"display"`
	LastFetchedAt *time.Time `json:"last_fetched_at,omitempty"`
	LastError     *string    `json:"last_error,omitempty"`
	ErrorCount    int        `json:"error_count"`
	Published     int        `json:"published"`
	Expired       int        `json:"expired"`
	Suppressed    int        `json:"suppressed"`
}

type ListGroupsOutput struct {
	Groups []GroupOutput `json:"groups"`
	Count  int           `json:"count"`
}

type ListFeedsInput struct {
	IncludeHidden *bool `json:"include_hidden,omitempty"`
}

type FeedOutput struct {
	Title    string `json:"title"`
	FeedURL  string `json:"feed_url"`
	SiteLink string `json:"site_link"`
	Folder   string `json:"folder,omitempty"`
	Ingest   bool   `json:"ingest"`
	Display  bool   `json:"display"`
	GroupKey string `json:"group_key"`
}

type ListFeedsOutput struct {
	Feeds []FeedOutput `json:"feeds"`
	Count int          `json:"count"`
}

type PollFeedInput struct {
	URL   *string `json:"url,omitempty"`
	Force *bool   `json:"force,omitempty"`
}

type PollResult struct {
	FeedURL     string   `json:"feed_url"`
	NotModified bool     `json:"not_modified"`
	Created     int      `json:"created"`
	Updated     int      `json:"updated"`
	Expired     int      `json:"expired"`
	Republished int      `json:"republished"`
	Unchanged   int      `json:"unchanged"`
	Skipped     int      `json:"skipped"`
	ItemErrors  []string `json:"item_errors,omitempty"`
	Error       *string  `json:"error,omitempty"`
}

type PollFeedOutput struct {
	Results     []PollResult `json:"results"`
	TotalFeeds  int          `json:"total_feeds"`
	TotalWrites int          `json:"total_writes"`
	TotalErrors int          `json:"total_errors"`
}

type SweepInput struct {
	DryRun *bool `json:"dry_run,omitempty"`
}

type SweepOutput struct {
	DryRun    bool      `json:"dry_run"`
	Retention string    `json:"retention"`
	Cutoff    time.Time `json:"cutoff"`
	Count     int       `json:"count"`
	Message   string    `json:"message"`
}

type SearchItemsInput struct {
	Query         string `json:"query"`
	Limit         *int   `json:"limit,omitempty"`
	IncludeHidden *bool  `json:"include_hidden,omitempty"`
}

type ItemActionInput struct {
	ItemID string `json:"item_id"`
}

type ItemActionOutput struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	ItemID  string `json:"item_id"`
	State   string `json:"state"`
}

// Tool registration

func (s *Server) registerTools() {
	s.registerListItemsTool()
	s.registerGetItemTool()
	s.registerListGroupsTool()
	s.registerListFeedsTool()
	s.registerPollFeedTool()
	s.registerSweepTool()
	s.registerSearchItemsTool()
	s.registerSuppressItemTool()
	s.registerRestoreItemTool()
}

func stringProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": description}
}

func intProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "integer", "description": description}
}

func boolProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "boolean", "description": description}
}

func (s *Server) registerListItemsTool() {
	tool := mcp.Tool{
		Name:        "list_items",
		Description: "List syndicated items, newest first. By default only published items from feeds marked for display are returned; set include_hidden to see items from hidden feeds. Filter by group key, state, and publication window.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"group":          stringProp("Restrict to one source group key (see list_groups)."),
				"state":          stringProp("Item state: 'published' (default), 'expired', or 'suppressed'."),
				"since":          stringProp("Only items published after this time: today, yesterday, week, month, 7d, or RFC 3339."),
				"until":          stringProp("Only items published before this time, same formats as since."),
				"limit":          intProp("Maximum number of items to return (default 20)."),
				"offset":         intProp("Number of items to skip for pagination."),
				"include_hidden": boolProp("Include items from feeds whose display flag is off."),
			},
		},
	}
	s.mcpServer.AddTool(tool, s.handleListItems)
}

func (s *Server) registerGetItemTool() {
	tool := mcp.Tool{
		Name:        "get_item",
		Description: "Get one syndicated item by ID or ID prefix (at least 6 characters), including its summary and content converted to Markdown.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"item_id": stringProp("Item ID or unique ID prefix."),
			},
			Required: []string{"item_id"},
		},
	}
	s.mcpServer.AddTool(tool, s.handleGetItem)
}

func (s *Server) registerListGroupsTool() {
	tool := mcp.Tool{
		Name:        "list_groups",
		Description: "List source groups (one per polled feed) with item counts per state, last fetch time and poll errors. Groups whose feed left the registry are marked registered=false.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
	s.mcpServer.AddTool(tool, s.handleListGroups)
}

func (s *Server) registerListFeedsTool() {
	tool := mcp.Tool{
		Name:        "list_feeds",
		Description: "List the feeds in the registry with their ingest and display flags, sorted by title. Hidden feeds are omitted unless include_hidden is set.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"include_hidden": boolProp("Include feeds whose display flag is off."),
			},
		},
	}
	s.mcpServer.AddTool(tool, s.handleListFeeds)
}

func (s *Server) registerPollFeedTool() {
	tool := mcp.Tool{
		Name:        "poll_feed",
		Description: "Fetch a registered feed and reconcile its items: new items are created, edited items updated, missing items expired, and returning items republished. Omit url to poll every registered feed. Returns a report per feed.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"url":   stringProp("Feed URL from the registry. Omit to poll all feeds."),
				"force": boolProp("Ignore cached ETag/Last-Modified headers and fetch unconditionally."),
			},
		},
	}
	s.mcpServer.AddTool(tool, s.handlePollFeed)
}

func (s *Server) registerSweepTool() {
	tool := mcp.Tool{
		Name:        "sweep_expired",
		Description: "Permanently delete items that have been expired for longer than the retention window (30 days by default). Use dry_run to count what would be deleted.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"dry_run": boolProp("Only count the items that would be deleted."),
			},
		},
	}
	s.mcpServer.AddTool(tool, s.handleSweep)
}

func (s *Server) registerSearchItemsTool() {
	tool := mcp.Tool{
		Name:        "search_items",
		Description: "Full-text search over item titles and bodies. Items from hidden feeds are excluded unless include_hidden is set.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query":          stringProp("Search terms."),
				"limit":          intProp("Maximum number of results (default 20)."),
				"include_hidden": boolProp("Include items from feeds whose display flag is off."),
			},
			Required: []string{"query"},
		},
	}
	s.mcpServer.AddTool(tool, s.handleSearchItems)
}

func (s *Server) registerSuppressItemTool() {
	tool := mcp.Tool{
		Name:        "suppress_item",
		Description: "Locally suppress an item. Suppressed items are never republished, updated or expired by later polls until restored.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"item_id": stringProp("Item ID or unique ID prefix."),
			},
			Required: []string{"item_id"},
		},
	}
	s.mcpServer.AddTool(tool, s.handleSuppressItem)
}

func (s *Server) registerRestoreItemTool() {
	tool := mcp.Tool{
		Name:        "restore_item",
		Description: "Restore a locally suppressed item to published.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"item_id": stringProp("Item ID or unique ID prefix."),
			},
			Required: []string{"item_id"},
		},
	}
	s.mcpServer.AddTool(tool, s.handleRestoreItem)
}

// Handlers

func (s *Server) handleListItems(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var input ListItemsInput
	if err := req.BindArguments(&input); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	now := s.now()
	filter := &storage.ItemFilter{States: []models.State{models.StatePublished}}
	filters := make(map[string]any)

	if input.IncludeHidden == nil || !*input.IncludeHidden {
		filter.ExcludedGroups = s.registry.ExcludedGroups()
	} else {
		filters["include_hidden"] = true
	}
	if input.Group != nil {
		filter.GroupKeys = []string{*input.Group}
		filters["group"] = *input.Group
	}
	if input.State != nil {
		state, err := models.ParseState(*input.State)
		if err != nil {
			return nil, fmt.Errorf("invalid state: %w", err)
		}
		filter.States = []models.State{state}
		filters["state"] = state.String()
	}
	if input.Since != nil {
		t, err := parseDateString(*input.Since, now)
		if err != nil {
			return nil, fmt.Errorf("invalid since value: %w", err)
		}
		filter.Since = &t
		filters["since"] = t
	}
	if input.Until != nil {
		t, err := parseDateString(*input.Until, now)
		if err != nil {
			return nil, fmt.Errorf("invalid until value: %w", err)
		}
		filter.Until = &t
		filters["until"] = t
	}
	if input.Offset != nil && *input.Offset < 0 {
		return nil, fmt.Errorf("offset must be non-negative, got %d", *input.Offset)
	}
	if input.Limit != nil && *input.Limit < 0 {
		return nil, fmt.Errorf("limit must be non-negative, got %d", *input.Limit)
	}
	limit := 20
	if input.Limit != nil {
		limit = *input.Limit
	}
	filter.Limit = &limit
	filter.Offset = input.Offset
	filters["limit"] = limit
	if input.Offset != nil {
		filters["offset"] = *input.Offset
	}

	items, err := s.store.ListItems(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	names, err := s.groupNames(ctx)
	if err != nil {
		return nil, err
	}

	outputs := make([]ItemOutput, 0, len(items))
	for _, item := range items {
		outputs = append(outputs, toItemOutput(item, names))
	}

	return jsonResult(ListItemsOutput{Items: outputs, Count: len(outputs), Filters: filters})
}

func (s *Server) handleGetItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var input GetItemInput
	if err := req.BindArguments(&input); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if input.ItemID == "" {
		return nil, fmt.Errorf("item_id is required")
	}

	item, err := s.store.GetItemByIDOrPrefix(ctx, input.ItemID)
	if err != nil {
		return nil, fmt.Errorf("item not found: %w", err)
	}
	names, err := s.groupNames(ctx)
	if err != nil {
		return nil, err
	}

	return jsonResult(GetItemOutput{
		ItemOutput: toItemOutput(item, names),
		GroupName:  names[item.GroupKey],
		GUID:       item.SourceGUID,
		Summary:    sanitize.Markdown(item.Summary),
		Content:    sanitize.Markdown(item.Body),
	})
}

func (s *Server) handleListGroups(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	groups, err := s.groupOutputs(ctx)
	if err != nil {
		return nil, err
	}
	return jsonResult(ListGroupsOutput{Groups: groups, Count: len(groups)})
}

func (s *Server) handleListFeeds(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var input ListFeedsInput
	if err := req.BindArguments(&input); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	feeds := s.registry.Displayed()
	if input.IncludeHidden != nil && *input.IncludeHidden {
		feeds = s.registry.All()
	}

	outputs := make([]FeedOutput, 0, len(feeds))
	for _, f := range feeds {
		outputs = append(outputs, FeedOutput{
			Title:    f.Title,
			FeedURL:  f.FeedURL,
			SiteLink: f.SiteLink,
			Folder:   f.Folder,
			Ingest:   f.Ingest,
			Display:  f.Display,
			GroupKey: f.GroupKey(),
		})
	}
	return jsonResult(ListFeedsOutput{Feeds: outputs, Count: len(outputs)})
}

func (s *Server) handlePollFeed(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var input PollFeedInput
	if err := req.BindArguments(&input); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	var opts []syndicate.PollOption
	if input.Force != nil && *input.Force {
		opts = append(opts, syndicate.WithForce())
	}

	var results []syndicate.PollResult
	if input.URL != nil && *input.URL != "" {
		report, err := s.service.Poll(ctx, *input.URL, opts...)
		results = []syndicate.PollResult{{FeedURL: *input.URL, Report: report, Err: err}}
	} else {
		results = s.service.PollAll(ctx, opts...)
	}

	output := PollFeedOutput{Results: make([]PollResult, 0, len(results)), TotalFeeds: len(results)}
	for _, r := range results {
		pr := toPollResult(r.FeedURL, r.Report, r.Err)
		if pr.Error != nil || len(pr.ItemErrors) > 0 {
			output.TotalErrors++
		}
		if r.Report != nil {
			output.TotalWrites += r.Report.Writes()
		}
		output.Results = append(output.Results, pr)
	}
	return jsonResult(output)
}

func (s *Server) handleSweep(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var input SweepInput
	if err := req.BindArguments(&input); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	now := s.now()
	retention := s.service.Retention()
	output := SweepOutput{
		DryRun:    input.DryRun != nil && *input.DryRun,
		Retention: timeutil.FormatRetention(retention),
		Cutoff:    now.UTC().Add(-retention),
	}

	if output.DryRun {
		candidates, err := s.service.SweepCandidates(ctx, now)
		if err != nil {
			return nil, fmt.Errorf("failed to list expired items: %w", err)
		}
		output.Count = len(candidates)
		output.Message = fmt.Sprintf("%d expired item(s) would be deleted", output.Count)
		return jsonResult(output)
	}

	deleted, err := s.service.Sweep(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("sweep failed: %w", err)
	}
	output.Count = deleted
	output.Message = fmt.Sprintf("deleted %d expired item(s)", deleted)
	return jsonResult(output)
}

func (s *Server) handleSearchItems(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var input SearchItemsInput
	if err := req.BindArguments(&input); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if input.Query == "" {
		return nil, fmt.Errorf("query is required")
	}

	limit := 20
	if input.Limit != nil && *input.Limit > 0 {
		limit = *input.Limit
	}
	filter := &storage.ItemFilter{Limit: &limit}
	if input.IncludeHidden == nil || !*input.IncludeHidden {
		filter.ExcludedGroups = s.registry.ExcludedGroups()
	}

	items, err := s.store.Search(ctx, input.Query, filter)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	names, err := s.groupNames(ctx)
	if err != nil {
		return nil, err
	}

	outputs := make([]ItemOutput, 0, len(items))
	for _, item := range items {
		outputs = append(outputs, toItemOutput(item, names))
	}
	return jsonResult(ListItemsOutput{
		Items:   outputs,
		Count:   len(outputs),
		Filters: map[string]any{"query": input.Query, "limit": limit},
	})
}

func (s *Server) handleSuppressItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var input ItemActionInput
	if err := req.BindArguments(&input); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	item, err := syndicate.Suppress(ctx, s.store, input.ItemID, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to suppress item: %w", err)
	}
	return jsonResult(ItemActionOutput{
		Success: true,
		Message: fmt.Sprintf("Suppressed %q; polls will no longer touch it", item.Title),
		ItemID:  item.ID,
		State:   item.State.String(),
	})
}

func (s *Server) handleRestoreItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var input ItemActionInput
	if err := req.BindArguments(&input); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	item, err := syndicate.Restore(ctx, s.store, input.ItemID, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to restore item: %w", err)
	}
	return jsonResult(ItemActionOutput{
		Success: true,
		Message: fmt.Sprintf("Restored %q", item.Title),
		ItemID:  item.ID,
		State:   item.State.String(),
	})
}

// Helpers

func (s *Server) groupNames(ctx context.Context) (map[string]string, error) {
	groups, err := s.store.ListGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	names := make(map[string]string, len(groups))
	for _, g := range groups {
		names[g.GroupKey] = g.DisplayName
	}
	return names, nil
}

func (s *Server) groupOutputs(ctx context.Context) ([]GroupOutput, error) {
	stats, err := s.store.GetGroupStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get group stats: %w", err)
	}
	groups, err := s.store.ListGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	links := make(map[string]string, len(groups))
	for _, g := range groups {
		links[g.GroupKey] = g.Link()
	}

	outputs := make([]GroupOutput, 0, len(stats))
	for _, st := range stats {
		cfg, registered := s.registry.Lookup(st.FeedURL)
		outputs = append(outputs, GroupOutput{
			GroupKey:      st.GroupKey,
			Name:          st.DisplayName,
			FeedURL:       st.FeedURL,
			Link:          links[st.GroupKey],
			Registered:    registered,
			Display:       registered && cfg.Display,
			LastFetchedAt: st.LastFetchedAt,
			LastError:     st.LastError,
			ErrorCount:    st.ErrorCount,
			Published:     st.Published,
			Expired:       st.Expired,
			Suppressed:    st.Suppressed,
		})
	}
	return outputs, nil
}

func toItemOutput(item *models.SyndicatedItem, names map[string]string) ItemOutput {
	return ItemOutput{
		ID:          item.ID,
		GroupKey:    item.GroupKey,
		Title:       models.PrefixedTitle(names[item.GroupKey], item.Title),
		Link:        item.Link(),
		State:       item.State.String(),
		PublishedAt: item.PublishedAt,
		ModifiedAt:  item.ModifiedAt,
	}
}

func toPollResult(feedURL string, report *reconcile.Report, err error) PollResult {
	pr := PollResult{FeedURL: feedURL}
	if err != nil {
		msg := err.Error()
		pr.Error = &msg
		return pr
	}
	pr.NotModified = report.NotModified
	pr.Created = report.Created
	pr.Updated = report.Updated
	pr.Expired = report.Expired
	pr.Republished = report.Republished
	pr.Unchanged = report.Unchanged
	pr.Skipped = report.Skipped
	for _, e := range report.Errors {
		pr.ItemErrors = append(pr.ItemErrors, e.Error())
	}
	return pr
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal output: %w", err)
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

// parseDateString accepts a named period, a 7d-style window, RFC 3339, or YYYY-MM-DD.
func parseDateString(s string, now time.Time) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return timeutil.ParseSince(s, now)
}
