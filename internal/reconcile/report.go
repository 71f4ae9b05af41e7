// ABOUTME: ReconciliationReport summarizing one feed poll
// ABOUTME: Counts each outcome and collects per-item persist errors without aborting

package reconcile

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// ItemPersistError reports a failed store call for one item. It is
// collected in the report and never aborts sibling items.
type ItemPersistError struct {
	ItemKey string
	Op      string
	Err     error
}

func (e *ItemPersistError) Error() string {
	return fmt.Sprintf("%s item %s: %v", e.Op, e.ItemKey, e.Err)
}

func (e *ItemPersistError) Unwrap() error { return e.Err }

// Report is the result of reconciling one feed.
type Report struct {
	FeedURL     string
	GroupKey    string
	NotModified bool // upstream answered 304, nothing was reconciled
	Created     int
	Updated     int
	Expired     int
	Republished int
	Unchanged   int
	Skipped     int
	Protected   int
	Dropped     int // upstream entries without any identifier
	Errors      []*ItemPersistError
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Writes returns the number of records written.
func (r *Report) Writes() int {
	return r.Created + r.Updated + r.Expired + r.Republished
}

// HasErrors reports whether any item failed to persist.
func (r *Report) HasErrors() bool {
	return len(r.Errors) > 0
}

// Duration returns how long the reconcile took.
func (r *Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

func (r *Report) addError(itemKey, op string, err error) {
	r.Errors = append(r.Errors, &ItemPersistError{ItemKey: itemKey, Op: op, Err: err})
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (r *Report) MarshalZerologObject(e *zerolog.Event) {
	e.Str("feed", r.FeedURL).
		Str("group", r.GroupKey).
		Bool("not_modified", r.NotModified).
		Int("created", r.Created).
		Int("updated", r.Updated).
		Int("expired", r.Expired).
		Int("republished", r.Republished).
		Int("unchanged", r.Unchanged).
		Int("skipped", r.Skipped).
		Int("protected", r.Protected).
		Int("dropped", r.Dropped).
		Int("errors", len(r.Errors)).
		Dur("took", r.Duration())
}
