// ABOUTME: Poll orchestration tying registry, fetch, parse, group and item reconciliation together
// ABOUTME: Polls one feed per call, records fetch state on its group and keeps recent reports

package syndicate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/harper/syndicate/internal/fetch"
	"github.com/harper/syndicate/internal/groups"
	"github.com/harper/syndicate/internal/lease"
	"github.com/harper/syndicate/internal/models"
	"github.com/harper/syndicate/internal/parse"
	"github.com/harper/syndicate/internal/reconcile"
	"github.com/harper/syndicate/internal/storage"
	"github.com/harper/syndicate/internal/sweep"
)

// Registry resolves feed URLs to their configuration.
type Registry interface {
	Lookup(feedURL string) (models.FeedConfig, bool)
	URLs() []string
}

// Fetcher retrieves raw feed documents.
type Fetcher interface {
	Fetch(ctx context.Context, url string, etag, lastModified *string) (*fetch.Result, error)
}

// Options configures a Service.
type Options struct {
	FullContent    bool
	LeaseTTL       time.Duration
	MaxConcurrency int
	Retention      time.Duration
	HistorySize    int
	Now            func() time.Time
	GroupEvents    func(groups.GroupEvent)
}

// Service polls registered feeds into the store.
type Service struct {
	store    storage.Store
	registry Registry
	fetcher  Fetcher
	locker   lease.Locker
	groups   *groups.Reconciler
	items    *reconcile.Reconciler
	sweeper  *sweep.Sweeper
	log      zerolog.Logger
	opts     Options

	mu      sync.Mutex
	history []*reconcile.Report
}

// New creates a Service. A nil locker selects an in-process one.
func New(store storage.Store, registry Registry, fetcher Fetcher, locker lease.Locker, log zerolog.Logger, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.LeaseTTL <= 0 {
		opts.LeaseTTL = 10 * time.Minute
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 4
	}
	if opts.Retention <= 0 {
		opts.Retention = sweep.DefaultRetention
	}
	if opts.HistorySize <= 0 {
		opts.HistorySize = 100
	}
	if locker == nil {
		locker = lease.NewLocalLocker()
	}

	groupOpts := []groups.Option{groups.WithClock(opts.Now)}
	if opts.GroupEvents != nil {
		groupOpts = append(groupOpts, groups.WithEvents(opts.GroupEvents))
	}

	return &Service{
		store:    store,
		registry: registry,
		fetcher:  fetcher,
		locker:   locker,
		groups:   groups.NewReconciler(store, log.With().Str("component", "groups").Logger(), groupOpts...),
		items:    reconcile.New(store, log.With().Str("component", "reconcile").Logger(), reconcile.Options{FullContent: opts.FullContent, Now: opts.Now}),
		sweeper:  sweep.New(store, log.With().Str("component", "sweep").Logger()),
		log:      log,
		opts:     opts,
	}
}

// PollOption adjusts a single poll.
type PollOption func(*pollConfig)

type pollConfig struct {
	force bool
}

// WithForce ignores stored caching headers and fetches unconditionally.
func WithForce() PollOption {
	return func(c *pollConfig) { c.force = true }
}

// Poll fetches and reconciles one feed. A feed missing from the registry
// returns *ConfigDriftError. A fetch, parse or group failure aborts the poll
// before any item is written. Per-item failures are in the report.
func (s *Service) Poll(ctx context.Context, feedURL string, opts ...PollOption) (*reconcile.Report, error) {
	var pc pollConfig
	for _, opt := range opts {
		opt(&pc)
	}

	cfg, ok := s.registry.Lookup(feedURL)
	if !ok {
		return nil, &ConfigDriftError{FeedURL: feedURL}
	}

	held, err := s.locker.Acquire(ctx, cfg.GroupKey(), s.opts.LeaseTTL)
	if err != nil {
		return nil, fmt.Errorf("poll %s: %w", feedURL, err)
	}
	defer func() {
		if err := held.Release(context.WithoutCancel(ctx)); err != nil {
			s.log.Warn().Err(err).Str("feed", feedURL).Msg("failed to release poll lease")
		}
	}()

	log := s.log.With().Str("feed", feedURL).Logger()

	existing, err := s.store.GetGroup(ctx, cfg.GroupKey())
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, &groups.GroupPersistError{FeedURL: feedURL, Op: "load", Err: err}
	}

	var etag, lastModified *string
	if existing != nil && !pc.force {
		etag, lastModified = existing.ETag, existing.LastModified
	}

	result, err := s.fetcher.Fetch(ctx, feedURL, etag, lastModified)
	if err != nil {
		s.recordError(ctx, log, existing, err)
		return nil, err
	}

	if result.NotModified {
		report := &reconcile.Report{
			FeedURL:     feedURL,
			GroupKey:    cfg.GroupKey(),
			NotModified: true,
			StartedAt:   s.opts.Now().UTC(),
		}
		report.FinishedAt = report.StartedAt
		if existing != nil {
			if err := s.store.UpdateGroupFetchState(ctx, existing.GroupKey, existing.ETag, existing.LastModified, report.FinishedAt); err != nil {
				log.Warn().Err(err).Msg("failed to record fetch state")
			}
		}
		s.remember(report)
		log.Info().Object("report", report).Msg("feed not modified")
		return report, nil
	}

	parsed, err := parse.Parse(result.Body)
	if err != nil {
		s.recordError(ctx, log, existing, err)
		return nil, err
	}

	group, err := s.groups.Ensure(ctx, cfg)
	if err != nil {
		s.recordError(ctx, log, existing, err)
		return nil, err
	}

	report, err := s.items.Reconcile(ctx, parsed.Items, cfg, group)
	if err != nil {
		s.recordError(ctx, log, group, err)
		return nil, fmt.Errorf("reconcile %s: %w", feedURL, err)
	}
	report.Dropped = parsed.Dropped

	s.recordFetch(ctx, log, group, result, report)
	s.remember(report)

	event := log.Info()
	if report.HasErrors() {
		event = log.Warn()
		for _, itemErr := range report.Errors {
			log.Warn().Err(itemErr).Msg("item not persisted")
		}
	}
	event.Object("report", report).Msg("reconciled feed")
	return report, nil
}

// recordFetch stores the caching headers of a successful poll. When any
// item failed, the headers are cleared so the next poll refetches the full
// document and retries those items.
func (s *Service) recordFetch(ctx context.Context, log zerolog.Logger, group *models.SourceGroup, result *fetch.Result, report *reconcile.Report) {
	etag, lastModified := optional(result.ETag), optional(result.LastModified)
	if report.HasErrors() {
		etag, lastModified = nil, nil
	}
	if err := s.store.UpdateGroupFetchState(ctx, group.GroupKey, etag, lastModified, report.FinishedAt); err != nil {
		log.Warn().Err(err).Msg("failed to record fetch state")
		return
	}
	if report.HasErrors() {
		msg := fmt.Sprintf("%d item(s) failed to persist", len(report.Errors))
		if err := s.store.UpdateGroupError(ctx, group.GroupKey, msg); err != nil {
			log.Warn().Err(err).Msg("failed to record poll error")
		}
	}
}

// recordError notes an aborted poll on the group, if the group exists yet.
func (s *Service) recordError(ctx context.Context, log zerolog.Logger, group *models.SourceGroup, cause error) {
	log.Error().Err(cause).Msg("poll aborted")
	if group == nil {
		return
	}
	if err := s.store.UpdateGroupError(ctx, group.GroupKey, cause.Error()); err != nil {
		log.Warn().Err(err).Msg("failed to record poll error")
	}
}

// PollResult is the outcome of one feed in PollAll.
type PollResult struct {
	FeedURL string
	Report  *reconcile.Report
	Err     error
}

// PollAll polls every registered feed, at most MaxConcurrency at a time.
// Results follow registry order.
func (s *Service) PollAll(ctx context.Context, opts ...PollOption) []PollResult {
	urls := s.registry.URLs()
	results := make([]PollResult, len(urls))
	sem := make(chan struct{}, s.opts.MaxConcurrency)

	var wg sync.WaitGroup
	for i, url := range urls {
		wg.Add(1)
		go func(i int, url string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results[i] = PollResult{FeedURL: url, Err: ctx.Err()}
				return
			}
			defer func() { <-sem }()

			report, err := s.Poll(ctx, url, opts...)
			results[i] = PollResult{FeedURL: url, Report: report, Err: err}
		}(i, url)
	}
	wg.Wait()
	return results
}

// Sweep deletes records expired longer than the configured retention.
func (s *Service) Sweep(ctx context.Context, now time.Time) (int, error) {
	return s.sweeper.Sweep(ctx, s.opts.Retention, now)
}

// SweepCandidates lists the records Sweep would delete at now.
func (s *Service) SweepCandidates(ctx context.Context, now time.Time) ([]*models.SyndicatedItem, error) {
	return s.sweeper.Candidates(ctx, s.opts.Retention, now)
}

// Retention returns the configured retention window.
func (s *Service) Retention() time.Duration {
	return s.opts.Retention
}

// Reports returns the most recent poll reports, newest first.
func (s *Service) Reports() []*reconcile.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*reconcile.Report, 0, len(s.history))
	for i := len(s.history) - 1; i >= 0; i-- {
		out = append(out, s.history[i])
	}
	return out
}

func (s *Service) remember(report *reconcile.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, report)
	if over := len(s.history) - s.opts.HistorySize; over > 0 {
		s.history = append([]*reconcile.Report(nil), s.history[over:]...)
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
