// ABOUTME: Item reconciliation applying one feed's fresh items to its stored records
// ABOUTME: Expires absent records first, then creates, updates, expires or republishes per item

package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tomakado/containers/set"

	"github.com/harper/syndicate/internal/hash"
	"github.com/harper/syndicate/internal/models"
	"github.com/harper/syndicate/internal/sanitize"
	"github.com/harper/syndicate/internal/storage"
)

// Options control content selection and timestamps.
type Options struct {
	// FullContent stores the item's full content as the body instead of its description.
	FullContent bool
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Reconciler applies upstream items to the store.
type Reconciler struct {
	store storage.Store
	log   zerolog.Logger
	opts  Options
}

// New creates a Reconciler.
func New(store storage.Store, log zerolog.Logger, opts Options) *Reconciler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Reconciler{store: store, log: log, opts: opts}
}

// Reconcile brings the records of group in line with items. Records missing
// from items are expired before any item is looked at. Per-item store
// failures are collected in the report; the returned error is set only when
// the group's published records cannot be listed, in which case no item is
// processed.
//
// Once started, a reconcile runs to completion even if ctx is canceled.
func (r *Reconciler) Reconcile(ctx context.Context, items []models.UpstreamItem, cfg models.FeedConfig, group *models.SourceGroup) (*Report, error) {
	ctx = context.WithoutCancel(ctx)
	report := &Report{
		FeedURL:   cfg.FeedURL,
		GroupKey:  group.GroupKey,
		StartedAt: r.opts.Now().UTC(),
	}
	log := r.log.With().Str("feed", cfg.FeedURL).Str("group", group.GroupKey).Logger()

	keys := make([]string, 0, len(items))
	for _, item := range items {
		keys = append(keys, hash.ItemKey(item.GUID))
	}
	present := set.New(keys...)

	if err := r.expireAbsent(ctx, log, group.GroupKey, present.Contains, report); err != nil {
		report.FinishedAt = r.opts.Now().UTC()
		return report, err
	}

	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		key := hash.ItemKey(item.GUID)
		if _, dup := seen[key]; dup {
			log.Debug().Str("guid", item.GUID).Msg("ignoring duplicate guid")
			continue
		}
		seen[key] = struct{}{}
		r.apply(ctx, log, item, key, cfg, group, report)
	}

	report.FinishedAt = r.opts.Now().UTC()
	return report, nil
}

func (r *Reconciler) expireAbsent(ctx context.Context, log zerolog.Logger, groupKey string, isPresent func(string) bool, report *Report) error {
	published := models.StatePublished
	records, err := r.store.FindItems(ctx, groupKey, &published)
	if err != nil {
		return fmt.Errorf("list published items: %w", err)
	}

	for _, rec := range records {
		if isPresent(rec.ItemKey) {
			continue
		}
		if err := r.store.SetItemState(ctx, rec.ID, models.StateExpired, r.opts.Now().UTC()); err != nil {
			report.addError(rec.ItemKey, "expire", err)
			continue
		}
		report.Expired++
		log.Debug().Str("item", rec.ItemKey).Msg("expired item absent from feed")
	}
	return nil
}

func (r *Reconciler) apply(ctx context.Context, log zerolog.Logger, item models.UpstreamItem, key string, cfg models.FeedConfig, group *models.SourceGroup, report *Report) {
	existing, err := r.store.FindByItemKey(ctx, group.GroupKey, key)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		report.addError(key, "load", err)
		return
	}
	if err != nil {
		existing = nil
	}

	fresh := SelectFields(item, r.opts.FullContent)
	decision := Decide(existing, fresh, cfg.Ingest)
	now := r.opts.Now().UTC()

	switch decision.Action {
	case ActionCreate:
		published := now
		if item.Date != nil {
			published = item.Date.UTC()
		}
		rec := models.NewSyndicatedItem(group.GroupKey, item.GUID, fresh, published, now)
		if err := r.store.CreateItem(ctx, rec); err != nil {
			report.addError(key, "create", err)
			return
		}
		report.Created++

	case ActionUpdate:
		if err := r.store.UpdateItemFields(ctx, existing.ID, fresh, decision.Changed, now); err != nil {
			report.addError(key, "update", err)
			return
		}
		report.Updated++

	case ActionExpire:
		if err := r.store.SetItemState(ctx, existing.ID, models.StateExpired, now); err != nil {
			report.addError(key, "expire", err)
			return
		}
		report.Expired++

	case ActionRepublish:
		existing.Apply(fresh)
		existing.State = models.StatePublished
		existing.Slug = key
		existing.ModifiedAt = now
		if err := r.store.UpdateItem(ctx, existing); err != nil {
			report.addError(key, "republish", err)
			return
		}
		report.Republished++

	case ActionUnchanged:
		report.Unchanged++
	case ActionSkip:
		report.Skipped++
	case ActionProtected:
		report.Protected++
	}

	log.Debug().
		Str("item", key).
		Stringer("action", decision.Action).
		Strs("changed", decision.Changed).
		Msg("reconciled item")
}

// SelectFields builds the sanitized mirrored fields of an upstream item.
// The body is the full content when fullContent is set and the description
// otherwise, each falling back to the other when empty. The summary is the
// description, or the content when an item carries no description.
func SelectFields(item models.UpstreamItem, fullContent bool) models.ItemFields {
	body := item.Description
	if fullContent && strings.TrimSpace(item.Content) != "" {
		body = item.Content
	}
	if strings.TrimSpace(body) == "" {
		body = item.Content
	}
	summary := item.Description
	if strings.TrimSpace(summary) == "" {
		summary = item.Content
	}

	return models.ItemFields{
		Title:           sanitize.StripMarkup(item.Title),
		Body:            sanitize.Safe(body),
		Summary:         sanitize.Safe(summary),
		SourcePermalink: strings.TrimSpace(item.Permalink),
	}
}
