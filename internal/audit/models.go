package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"chronicle/pkg/requestcontext"
)

// Action classifies what an audit record describes.
type Action string

const (
	ActionCreate      Action = "CREATE"
	ActionUpdate      Action = "UPDATE"
	ActionDelete      Action = "DELETE"
	ActionLogin       Action = "LOGIN"
	ActionLogout      Action = "LOGOUT"
	ActionFailedLogin Action = "FAILED_LOGIN"
	ActionSystem      Action = "SYSTEM"
)

// RecordID is the opaque identity a store assigns on append.
type RecordID = uuid.UUID

// RecordEntityType is the type label audit records themselves would carry.
// The schema registry refuses to register it so the trail never audits itself.
const RecordEntityType = "audit.Record"

// Snapshot is a flat mapping of an entity's field names to their values at one
// instant. References are flattened to the raw foreign-key value, file fields
// to their logical path. A nil Snapshot means "no state on this side".
type Snapshot map[string]any

// Clone returns a shallow copy. Snapshot values are scalars by construction,
// so a shallow copy is a full copy.
func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return nil
	}
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Record is one immutable entry in the audit trail. Records are append-only:
// nothing in the normal flow mutates or deletes them once stored.
type Record struct {
	ID         uuid.UUID `json:"id"`
	Action     Action    `json:"actionType"`
	EntityType string    `json:"entityType"`
	EntityID   string    `json:"entityId,omitempty"`
	Before     Snapshot  `json:"beforeSnapshot,omitempty"`
	After      Snapshot  `json:"afterSnapshot,omitempty"`
	ActorID    string    `json:"actorUserId,omitempty"`
	SourceIP   string    `json:"sourceIp,omitempty"`
	SessionKey string    `json:"sessionKey,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Validate enforces the per-action snapshot invariants. Stores call this on
// append; a violation is a programming error in the caller, not bad input.
func (r Record) Validate() error {
	switch r.Action {
	case ActionCreate:
		if r.Before != nil {
			return fmt.Errorf("CREATE record must not carry a before-snapshot")
		}
	case ActionDelete:
		if r.After != nil {
			return fmt.Errorf("DELETE record must not carry an after-snapshot")
		}
	case ActionUpdate, ActionLogin, ActionLogout, ActionFailedLogin, ActionSystem:
	default:
		return fmt.Errorf("unknown action type %q", r.Action)
	}
	if r.EntityType == "" {
		return fmt.Errorf("record missing entity type")
	}
	return nil
}

// Clone returns a deep copy of the record so stored records stay immutable
// even when callers mutate the returned snapshots.
func (r Record) Clone() Record {
	r.Before = r.Before.Clone()
	r.After = r.After.Clone()
	return r
}

// Attribution reads the actor triple from the unit-of-work context.
func Attribution(ctx context.Context) (actorID, sourceIP, sessionKey string) {
	return requestcontext.ActorID(ctx), requestcontext.SourceIP(ctx), requestcontext.SessionKey(ctx)
}

// Filter narrows a Find query. Zero-valued fields are ignored.
type Filter struct {
	EntityType string
	EntityID   string
	ActorID    string
	Action     Action
	Since      time.Time
	Until      time.Time
	Limit      int
}

// Matches reports whether the record satisfies every set criterion.
func (f Filter) Matches(r Record) bool {
	if f.EntityType != "" && r.EntityType != f.EntityType {
		return false
	}
	if f.EntityID != "" && r.EntityID != f.EntityID {
		return false
	}
	if f.ActorID != "" && r.ActorID != f.ActorID {
		return false
	}
	if f.Action != "" && r.Action != f.Action {
		return false
	}
	if !f.Since.IsZero() && r.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && r.Timestamp.After(f.Until) {
		return false
	}
	return true
}
