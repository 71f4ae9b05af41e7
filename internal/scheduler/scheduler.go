// ABOUTME: Recurring triggers polling each registered feed and sweeping expired records
// ABOUTME: One goroutine per feed; a feed that left the registry cancels its own trigger

package scheduler

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/harper/syndicate/internal/lease"
	"github.com/harper/syndicate/internal/reconcile"
	"github.com/harper/syndicate/internal/syndicate"
)

// Poller is the work a trigger performs.
type Poller interface {
	Poll(ctx context.Context, feedURL string, opts ...syndicate.PollOption) (*reconcile.Report, error)
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// Options configures a Scheduler.
type Options struct {
	PollInterval  time.Duration
	SweepInterval time.Duration
	// RunOnStart fires every trigger once as soon as it starts.
	RunOnStart bool
	Now        func() time.Time
}

type trigger struct {
	cancel context.CancelFunc
	// synced counts the Sync calls that listed this trigger's URL.
	synced uint64
}

// Scheduler owns one poll trigger per feed URL plus a sweep trigger.
type Scheduler struct {
	poller Poller
	log    zerolog.Logger
	opts   Options

	mu       sync.Mutex
	base     context.Context
	triggers map[string]*trigger
	wg       sync.WaitGroup
}

// New creates a Scheduler. Intervals default to hourly polls and daily sweeps.
func New(poller Poller, log zerolog.Logger, opts Options) *Scheduler {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Hour
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 24 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scheduler{
		poller:   poller,
		log:      log,
		opts:     opts,
		triggers: make(map[string]*trigger),
	}
}

// Sync ensures a trigger exists for every URL in feeds. Existing triggers
// are kept as they are. Triggers for URLs missing from feeds are left to
// cancel themselves when their next poll reports drift.
func (s *Scheduler) Sync(feeds []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, url := range feeds {
		if t, ok := s.triggers[url]; ok {
			t.synced++
			continue
		}
		t := &trigger{}
		s.triggers[url] = t
		if s.base != nil {
			s.startPoll(url, t)
		}
		s.log.Debug().Str("feed", url).Msg("scheduled feed")
	}
}

// Cancel stops the trigger for url. It reports whether one existed.
func (s *Scheduler) Cancel(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.triggers[url]
	if !ok {
		return false
	}
	if t.cancel != nil {
		t.cancel()
	}
	delete(s.triggers, url)
	s.log.Info().Str("feed", url).Msg("cancelled feed schedule")
	return true
}

// cancelDrifted removes t after its poll reported drift, unless t was
// replaced or a Sync listed its URL again while the poll was running.
func (s *Scheduler) cancelDrifted(url string, t *trigger, synced uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.triggers[url] != t || t.synced != synced {
		s.log.Info().Str("feed", url).Msg("feed re-registered during poll, keeping schedule")
		return false
	}
	if t.cancel != nil {
		t.cancel()
	}
	delete(s.triggers, url)
	s.log.Info().Str("feed", url).Msg("cancelled feed schedule")
	return true
}

// Scheduled returns the URLs with an active trigger, sorted.
func (s *Scheduler) Scheduled() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	urls := make([]string, 0, len(s.triggers))
	for url := range s.triggers {
		urls = append(urls, url)
	}
	slices.Sort(urls)
	return urls
}

// Run starts every trigger and blocks until ctx is done and all triggers
// have returned.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.base != nil {
		s.mu.Unlock()
		return errors.New("scheduler already running")
	}
	s.base = ctx
	for url, t := range s.triggers {
		s.startPoll(url, t)
	}
	s.wg.Add(1)
	go s.loop(ctx, s.opts.SweepInterval, s.fireSweep)
	s.mu.Unlock()

	s.log.Info().
		Dur("poll_interval", s.opts.PollInterval).
		Dur("sweep_interval", s.opts.SweepInterval).
		Msg("scheduler started")

	<-ctx.Done()
	s.wg.Wait()

	s.mu.Lock()
	s.base = nil
	s.mu.Unlock()
	return nil
}

// startPoll launches the goroutine for one feed. Callers hold s.mu.
func (s *Scheduler) startPoll(url string, t *trigger) {
	ctx, cancel := context.WithCancel(s.base)
	t.cancel = cancel
	s.wg.Add(1)
	go s.loop(ctx, s.opts.PollInterval, func(ctx context.Context) { s.firePoll(ctx, url, t) })
}

// loop fires on every tick. A fire that outlasts the interval swallows the
// ticks it overlaps, so one trigger never runs twice at once.
func (s *Scheduler) loop(ctx context.Context, interval time.Duration, fire func(context.Context)) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if s.opts.RunOnStart {
		fire(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fire(ctx)
		}
	}
}

func (s *Scheduler) firePoll(ctx context.Context, url string, t *trigger) {
	if ctx.Err() != nil {
		return
	}
	s.mu.Lock()
	synced := t.synced
	s.mu.Unlock()

	report, err := s.poller.Poll(ctx, url)
	switch {
	case errors.Is(err, syndicate.ErrConfigDrift):
		s.log.Info().Str("feed", url).Msg("feed removed from registry")
		s.cancelDrifted(url, t, synced)
	case errors.Is(err, lease.ErrPollInFlight):
		s.log.Debug().Str("feed", url).Msg("poll skipped, another poll holds the lease")
	case err != nil:
		s.log.Error().Err(err).Str("feed", url).Msg("poll failed")
	default:
		s.log.Debug().Object("report", report).Msg("poll finished")
	}
}

func (s *Scheduler) fireSweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	deleted, err := s.poller.Sweep(ctx, s.opts.Now())
	if err != nil {
		s.log.Error().Err(err).Msg("sweep failed")
		return
	}
	s.log.Debug().Int("deleted", deleted).Msg("sweep finished")
}

func (s *Scheduler) running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.base != nil
}
