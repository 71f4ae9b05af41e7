// ABOUTME: Pure per-item reconciliation decisions
// ABOUTME: Maps an existing record, fresh upstream fields and the ingest flag to one action

package reconcile

import "github.com/harper/syndicate/internal/models"

// Action is what reconciliation does to one upstream item.
type Action int

const (
	// ActionCreate stores a new Published record.
	ActionCreate Action = iota
	// ActionSkip leaves the item alone because ingest is off.
	ActionSkip
	// ActionUpdate writes changed fields of a Published record.
	ActionUpdate
	// ActionExpire moves a Published record whose source changed to Expired.
	ActionExpire
	// ActionRepublish moves an Expired record back to Published with fresh fields.
	ActionRepublish
	// ActionUnchanged means the Published record already matches upstream.
	ActionUnchanged
	// ActionProtected means the record is locally suppressed and never written.
	ActionProtected
)

var actionNames = map[Action]string{
	ActionCreate:    "create",
	ActionSkip:      "skip",
	ActionUpdate:    "update",
	ActionExpire:    "expire",
	ActionRepublish: "republish",
	ActionUnchanged: "unchanged",
	ActionProtected: "protected",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return "unknown"
}

// Decision is the outcome of Decide. Changed lists the mirrored fields that
// differ from upstream and is only set for ActionUpdate and ActionExpire.
type Decision struct {
	Action  Action
	Changed []string
}

// Decide computes the action for one upstream item. existing is nil when no
// record matches the item key.
func Decide(existing *models.SyndicatedItem, fresh models.ItemFields, ingest bool) Decision {
	if existing == nil {
		if !ingest {
			return Decision{Action: ActionSkip}
		}
		return Decision{Action: ActionCreate}
	}

	switch existing.State {
	case models.StateExpired:
		if !ingest {
			return Decision{Action: ActionSkip}
		}
		return Decision{Action: ActionRepublish}
	case models.StatePublished:
		changed := existing.Fields().Diff(fresh)
		switch {
		case len(changed) == 0:
			return Decision{Action: ActionUnchanged}
		case ingest:
			return Decision{Action: ActionUpdate, Changed: changed}
		default:
			return Decision{Action: ActionExpire, Changed: changed}
		}
	default:
		// Suppressed, or any state this package did not produce.
		return Decision{Action: ActionProtected}
	}
}
