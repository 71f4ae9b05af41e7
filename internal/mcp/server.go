// ABOUTME: MCP server implementation for syndicate
// ABOUTME: Provides tools, resources, and prompts for AI agents to inspect and drive feed syndication

package mcp

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/harper/syndicate/internal/models"
	"github.com/harper/syndicate/internal/reconcile"
	"github.com/harper/syndicate/internal/registry"
	"github.com/harper/syndicate/internal/storage"
	"github.com/harper/syndicate/internal/syndicate"
)

// Syndicator is the polling surface the tools drive.
type Syndicator interface {
	Poll(ctx context.Context, feedURL string, opts ...syndicate.PollOption) (*reconcile.Report, error)
	PollAll(ctx context.Context, opts ...syndicate.PollOption) []syndicate.PollResult
	Sweep(ctx context.Context, now time.Time) (int, error)
	SweepCandidates(ctx context.Context, now time.Time) ([]*models.SyndicatedItem, error)
	Retention() time.Duration
	Reports() []*reconcile.Report
}

// Server wraps the MCP server with syndicate-specific context
type Server struct {
	mcpServer *server.MCPServer
	store     storage.Store
	registry  *registry.Registry
	service   Syndicator
	log       zerolog.Logger
	now       func() time.Time
}

// NewServer creates a new MCP server instance
func NewServer(store storage.Store, reg *registry.Registry, service Syndicator, log zerolog.Logger) *Server {
	s := &Server{
		store:    store,
		registry: reg,
		service:  service,
		log:      log,
		now:      time.Now,
	}

	s.mcpServer = server.NewMCPServer(
		"syndicate",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
		server.WithPromptCapabilities(true),
	)

	s.registerTools()
	s.registerResources()
	s.registerPrompts()

	return s
}

// ServeStdio starts the MCP server on stdio
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}
