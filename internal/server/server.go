// ABOUTME: HTTP status API for the run daemon built on chi
// ABOUTME: Serves visible items, groups, allowed hosts, recent poll reports and manual poll triggers

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/harper/syndicate/internal/models"
	"github.com/harper/syndicate/internal/reconcile"
	"github.com/harper/syndicate/internal/registry"
	"github.com/harper/syndicate/internal/storage"
	"github.com/harper/syndicate/internal/syndicate"
)

// Syndicator is the poll surface the API exposes.
type Syndicator interface {
	Poll(ctx context.Context, feedURL string, opts ...syndicate.PollOption) (*reconcile.Report, error)
	Reports() []*reconcile.Report
}

// Server is the HTTP status server.
type Server struct {
	store    storage.Store
	registry *registry.Registry
	service  Syndicator
	log      zerolog.Logger
	router   chi.Router
}

// New creates a server and its routes.
func New(store storage.Store, reg *registry.Registry, service Syndicator, log zerolog.Logger) *Server {
	s := &Server{
		store:    store,
		registry: reg,
		service:  service,
		log:      log,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/items", s.handleListItems)
		r.Get("/items/{id}", s.handleGetItem)
		r.Get("/groups", s.handleListGroups)
		r.Get("/feeds", s.handleListFeeds)
		r.Get("/hosts", s.handleHosts)
		r.Get("/reports", s.handleReports)
		r.Post("/poll", s.handlePoll)
	})

	s.router = r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("status server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

// --- Views ---

type itemView struct {
	ID          string    `json:"id"`
	Group       string    `json:"group"`
	Title       string    `json:"title"`
	Link        string    `json:"link"`
	Summary     string    `json:"summary"`
	Body        string    `json:"body,omitempty"`
	State       string    `json:"state"`
	PublishedAt time.Time `json:"published_at"`
	ModifiedAt  time.Time `json:"modified_at"`
}

type groupView struct {
	GroupKey    string     `json:"group_key"`
	Name        string     `json:"name"`
	Link        string     `json:"link"`
	FeedURL     string     `json:"feed_url"`
	Display     bool       `json:"display"`
	LastFetched *time.Time `json:"last_fetched_at,omitempty"`
	LastError   *string    `json:"last_error,omitempty"`
	ErrorCount  int        `json:"error_count"`
	Published   int        `json:"published"`
	Expired     int        `json:"expired"`
	Suppressed  int        `json:"suppressed"`
}

type feedView struct {
	Title    string `json:"title"`
	FeedURL  string `json:"feed_url"`
	SiteLink string `json:"site_link"`
	Ingest   bool   `json:"ingest"`
	Display  bool   `json:"display"`
}

type reportView struct {
	FeedURL     string    `json:"feed_url"`
	GroupKey    string    `json:"group_key"`
	NotModified bool      `json:"not_modified"`
	Created     int       `json:"created"`
	Updated     int       `json:"updated"`
	Expired     int       `json:"expired"`
	Republished int       `json:"republished"`
	Unchanged   int       `json:"unchanged"`
	Skipped     int       `json:"skipped"`
	Protected   int       `json:"protected"`
	Errors      []string  `json:"errors,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

func toReportView(r *reconcile.Report) reportView {
	v := reportView{
		FeedURL:     r.FeedURL,
		GroupKey:    r.GroupKey,
		NotModified: r.NotModified,
		Created:     r.Created,
		Updated:     r.Updated,
		Expired:     r.Expired,
		Republished: r.Republished,
		Unchanged:   r.Unchanged,
		Skipped:     r.Skipped,
		Protected:   r.Protected,
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
	}
	for _, e := range r.Errors {
		v.Errors = append(v.Errors, e.Error())
	}
	return v
}

func toItemView(item *models.SyndicatedItem, names map[string]string, withBody bool) itemView {
	v := itemView{
		ID:          item.ID,
		Group:       item.GroupKey,
		Title:       models.PrefixedTitle(names[item.GroupKey], item.Title),
		Link:        item.Link(),
		Summary:     item.Summary,
		State:       item.State.String(),
		PublishedAt: item.PublishedAt,
		ModifiedAt:  item.ModifiedAt,
	}
	if withBody {
		v.Body = item.Body
	}
	return v
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"feeds":  s.registry.Len(),
	})
}

// handleListItems lists items visible under the registry's display flags.
// all_groups=1 drops the visibility filter.
func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := &storage.ItemFilter{}

	if q.Get("all_groups") != "1" {
		filter.ExcludedGroups = s.registry.ExcludedGroups()
	}
	if g := q.Get("group"); g != "" {
		filter.GroupKeys = []string{g}
	}
	if st := q.Get("state"); st != "" {
		state, err := models.ParseState(st)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.States = []models.State{state}
	} else {
		filter.States = []models.State{models.StatePublished}
	}

	limit, err := intParam(q.Get("limit"), 20)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	offset, err := intParam(q.Get("offset"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid offset")
		return
	}
	filter.Limit, filter.Offset = &limit, &offset

	items, err := s.store.ListItems(r.Context(), filter)
	if err != nil {
		s.log.Error().Err(err).Msg("list items")
		writeError(w, http.StatusInternalServerError, "failed to list items")
		return
	}

	names, err := s.groupNames(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list groups")
		return
	}

	views := make([]itemView, 0, len(items))
	for _, item := range items {
		views = append(views, toItemView(item, names, false))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	item, err := s.store.GetItemByIDOrPrefix(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "item not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	names, err := s.groupNames(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list groups")
		return
	}
	writeJSON(w, http.StatusOK, toItemView(item, names, true))
}

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetGroupStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load group stats")
		return
	}
	groups, err := s.store.ListGroups(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list groups")
		return
	}
	links := make(map[string]string, len(groups))
	for _, g := range groups {
		links[g.GroupKey] = g.Link()
	}

	views := make([]groupView, 0, len(stats))
	for _, st := range stats {
		display := true
		if cfg, ok := s.registry.Lookup(st.FeedURL); ok {
			display = cfg.Display
		}
		views = append(views, groupView{
			GroupKey:    st.GroupKey,
			Name:        st.DisplayName,
			Link:        links[st.GroupKey],
			FeedURL:     st.FeedURL,
			Display:     display,
			LastFetched: st.LastFetchedAt,
			LastError:   st.LastError,
			ErrorCount:  st.ErrorCount,
			Published:   st.Published,
			Expired:     st.Expired,
			Suppressed:  st.Suppressed,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleListFeeds(w http.ResponseWriter, r *http.Request) {
	feeds := s.registry.Displayed()
	if r.URL.Query().Get("all") == "1" {
		feeds = s.registry.All()
	}
	views := make([]feedView, 0, len(feeds))
	for _, f := range feeds {
		views = append(views, feedView{Title: f.Title, FeedURL: f.FeedURL, SiteLink: f.SiteLink, Ingest: f.Ingest, Display: f.Display})
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleHosts(w http.ResponseWriter, r *http.Request) {
	if host := r.URL.Query().Get("check"); host != "" {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"host":    strings.ToLower(host),
			"allowed": s.registry.IsAllowedHost(host),
		})
		return
	}
	writeJSON(w, http.StatusOK, s.registry.AllowedHosts())
}

func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	reports := s.service.Reports()
	views := make([]reportView, 0, len(reports))
	for _, rep := range reports {
		views = append(views, toReportView(rep))
	}
	writeJSON(w, http.StatusOK, views)
}

// handlePoll polls the feed named by the url query parameter.
func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	feedURL := r.URL.Query().Get("url")
	if feedURL == "" {
		writeError(w, http.StatusBadRequest, "url parameter required")
		return
	}

	var opts []syndicate.PollOption
	if r.URL.Query().Get("force") == "1" {
		opts = append(opts, syndicate.WithForce())
	}

	report, err := s.service.Poll(r.Context(), feedURL, opts...)
	switch {
	case errors.Is(err, syndicate.ErrConfigDrift):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeJSON(w, http.StatusOK, toReportView(report))
	}
}

func (s *Server) groupNames(ctx context.Context) (map[string]string, error) {
	groups, err := s.store.ListGroups(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(groups))
	for _, g := range groups {
		names[g.GroupKey] = g.DisplayName
	}
	return names, nil
}

func intParam(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New("invalid integer")
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
