// ABOUTME: Orchestrator errors for polls of feeds that left the registry
// ABOUTME: ConfigDriftError is not a failure; schedulers cancel the feed's trigger on it

package syndicate

import (
	"errors"
	"fmt"
)

// ErrConfigDrift matches every ConfigDriftError.
var ErrConfigDrift = errors.New("feed no longer registered")

// ConfigDriftError is returned when a poll names a feed URL that is not in
// the registry. No reconciliation is performed.
type ConfigDriftError struct {
	FeedURL string
}

func (e *ConfigDriftError) Error() string {
	return fmt.Sprintf("%s: %v", e.FeedURL, ErrConfigDrift)
}

func (e *ConfigDriftError) Unwrap() error { return ErrConfigDrift }
