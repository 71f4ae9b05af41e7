// ABOUTME: MCP resource providers for syndicate
// ABOUTME: Exposes read-only views of feeds, visible items, groups, statistics and poll reports

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/harper/syndicate/internal/models"
	"github.com/harper/syndicate/internal/storage"
)

// ResourceData is the standard response format for all resources.
type ResourceData struct {
	Metadata ResourceMetadata  `json:"metadata"`
	Data     interface{}       `json:"data"`
	Links    map[string]string `json:"links"`
}

// ResourceMetadata contains metadata about the resource response.
type ResourceMetadata struct {
	Timestamp   time.Time      `json:"timestamp"`
	Count       int            `json:"count"`
	ResourceURI string         `json:"resource_uri"`
	Filters     map[string]any `json:"filters,omitempty"`
}

const (
	uriFeeds     = "syndicate://feeds"
	uriPublished = "syndicate://items/published"
	uriExpired   = "syndicate://items/expired"
	uriGroups    = "syndicate://groups"
	uriStats     = "syndicate://stats"
	uriReports   = "syndicate://reports"
)

var resourceLinks = map[string]string{
	"feeds":     uriFeeds,
	"published": uriPublished,
	"expired":   uriExpired,
	"groups":    uriGroups,
	"stats":     uriStats,
	"reports":   uriReports,
}

// recentItemLimit caps the item lists served as resources.
const recentItemLimit = 50

type resourceFunc func(ctx context.Context) (data interface{}, count int, filters map[string]any, err error)

func (s *Server) registerResources() {
	s.addResource(uriFeeds, "Registered Feeds", "Every feed in the registry with its ingest and display flags", s.feedsResource)
	s.addResource(uriPublished, "Published Items", "The most recent published items from feeds marked for display", s.itemsResource(models.StatePublished))
	s.addResource(uriExpired, "Expired Items", "The most recently expired items awaiting the retention sweep", s.itemsResource(models.StateExpired))
	s.addResource(uriGroups, "Source Groups", "Source groups with per-state item counts and poll health", s.groupsResource)
	s.addResource(uriStats, "Statistics", "Overall item counts by state", s.statsResource)
	s.addResource(uriReports, "Poll Reports", "Reports of the most recent polls, newest first", s.reportsResource)
}

func (s *Server) addResource(uri, name, description string, fn resourceFunc) {
	s.mcpServer.AddResource(
		mcp.Resource{
			URI:         uri,
			Name:        name,
			Description: description,
			MIMEType:    "application/json",
		},
		func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			data, count, filters, err := fn(ctx)
			if err != nil {
				return nil, err
			}

			resourceData := ResourceData{
				Metadata: ResourceMetadata{
					Timestamp:   s.now(),
					Count:       count,
					ResourceURI: uri,
					Filters:     filters,
				},
				Data:  data,
				Links: resourceLinks,
			}

			jsonBytes, err := json.MarshalIndent(resourceData, "", "  ")
			if err != nil {
				return nil, fmt.Errorf("failed to marshal resource data: %w", err)
			}

			return []mcp.ResourceContents{
				&mcp.TextResourceContents{
					URI:      request.Params.URI,
					MIMEType: "application/json",
					Text:     string(jsonBytes),
				},
			}, nil
		},
	)
}

func (s *Server) feedsResource(context.Context) (interface{}, int, map[string]any, error) {
	feeds := s.registry.All()
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
	return outputs, len(outputs), nil, nil
}

func (s *Server) itemsResource(state models.State) resourceFunc {
	return func(ctx context.Context) (interface{}, int, map[string]any, error) {
		limit := recentItemLimit
		filter := &storage.ItemFilter{
			States:         []models.State{state},
			ExcludedGroups: s.registry.ExcludedGroups(),
			Limit:          &limit,
		}
		items, err := s.store.ListItems(ctx, filter)
		if err != nil {
			return nil, 0, nil, fmt.Errorf("failed to list items: %w", err)
		}
		names, err := s.groupNames(ctx)
		if err != nil {
			return nil, 0, nil, err
		}
		outputs := make([]ItemOutput, 0, len(items))
		for _, item := range items {
			outputs = append(outputs, toItemOutput(item, names))
		}
		filters := map[string]any{"state": state.String(), "limit": limit, "excluded_groups": len(filter.ExcludedGroups)}
		return outputs, len(outputs), filters, nil
	}
}

func (s *Server) groupsResource(ctx context.Context) (interface{}, int, map[string]any, error) {
	groups, err := s.groupOutputs(ctx)
	if err != nil {
		return nil, 0, nil, err
	}
	return groups, len(groups), nil, nil
}

func (s *Server) statsResource(ctx context.Context) (interface{}, int, map[string]any, error) {
	stats, err := s.store.GetOverallStats(ctx)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("failed to get stats: %w", err)
	}
	data := map[string]interface{}{
		"groups":     stats.TotalGroups,
		"items":      stats.TotalItems,
		"published":  stats.Published,
		"expired":    stats.Expired,
		"suppressed": stats.Suppressed,
		"feeds":      s.registry.Len(),
	}
	return data, stats.TotalItems, nil, nil
}

func (s *Server) reportsResource(context.Context) (interface{}, int, map[string]any, error) {
	reports := s.service.Reports()
	outputs := make([]PollResult, 0, len(reports))
	for _, r := range reports {
		outputs = append(outputs, toPollResult(r.FeedURL, r, nil))
	}
	return outputs, len(outputs), nil, nil
}
