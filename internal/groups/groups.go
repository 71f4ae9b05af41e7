// ABOUTME: Source group reconciliation keeping one group per configured feed
// ABOUTME: Creates or refreshes the group's display name and site link from the feed config

package groups

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/harper/syndicate/internal/models"
	"github.com/harper/syndicate/internal/sanitize"
	"github.com/harper/syndicate/internal/storage"
)

// EventKind names what Ensure did to a group.
type EventKind string

const (
	EventCreated EventKind = "created"
	EventUpdated EventKind = "updated"
)

// GroupEvent is emitted after a group is created or updated.
type GroupEvent struct {
	Kind  EventKind
	Group *models.SourceGroup
}

// GroupPersistError reports a store failure while ensuring a group.
// Item processing for the feed must not start after it.
type GroupPersistError struct {
	FeedURL string
	Op      string
	Err     error
}

func (e *GroupPersistError) Error() string {
	return fmt.Sprintf("%s group for %s: %v", e.Op, e.FeedURL, e.Err)
}

func (e *GroupPersistError) Unwrap() error { return e.Err }

// Reconciler maintains source groups in the store.
type Reconciler struct {
	store  storage.Store
	log    zerolog.Logger
	now    func() time.Time
	events func(GroupEvent)
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithEvents registers a callback invoked for every create or update.
func WithEvents(fn func(GroupEvent)) Option {
	return func(r *Reconciler) { r.events = fn }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// NewReconciler creates a group reconciler.
func NewReconciler(store storage.Store, log zerolog.Logger, opts ...Option) *Reconciler {
	r := &Reconciler{
		store: store,
		log:   log,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Ensure returns the group for cfg, creating it or updating its display
// name and source link when they differ from the config. Calling it twice
// with the same config performs no second write.
func (r *Reconciler) Ensure(ctx context.Context, cfg models.FeedConfig) (*models.SourceGroup, error) {
	name := sanitize.StripMarkup(cfg.Title)
	groupKey := cfg.GroupKey()

	group, err := r.store.GetGroup(ctx, groupKey)
	if errors.Is(err, storage.ErrNotFound) {
		group = models.NewSourceGroup(cfg.FeedURL, name, cfg.SiteLink)
		now := r.now().UTC()
		group.CreatedAt, group.UpdatedAt = now, now

		if err := r.store.CreateGroup(ctx, group); err != nil {
			return nil, &GroupPersistError{FeedURL: cfg.FeedURL, Op: "create", Err: err}
		}
		r.log.Info().Str("feed", cfg.FeedURL).Str("group", groupKey).Str("name", name).Msg("created source group")
		r.emit(EventCreated, group)
		return group, nil
	}
	if err != nil {
		return nil, &GroupPersistError{FeedURL: cfg.FeedURL, Op: "load", Err: err}
	}

	if group.DisplayName == name && group.SourceLink == cfg.SiteLink {
		return group, nil
	}

	group.DisplayName = name
	group.SourceLink = cfg.SiteLink
	group.UpdatedAt = r.now().UTC()
	if err := r.store.UpdateGroup(ctx, group); err != nil {
		return nil, &GroupPersistError{FeedURL: cfg.FeedURL, Op: "update", Err: err}
	}
	r.log.Info().Str("feed", cfg.FeedURL).Str("group", groupKey).Str("name", name).Msg("updated source group")
	r.emit(EventUpdated, group)
	return group, nil
}

func (r *Reconciler) emit(kind EventKind, group *models.SourceGroup) {
	if r.events != nil {
		r.events(GroupEvent{Kind: kind, Group: group})
	}
}
