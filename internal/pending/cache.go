// Package pending bridges the gap between the pre-mutation and post-mutation
// hooks: the before-snapshot captured at pre-write is staged here and consumed
// by the matching post-write of the same logical mutation.
package pending

import (
	"context"

	"chronicle/internal/audit"
)

// Key identifies one staged before-snapshot. EntityID is empty for entities
// being created (no identity yet); UnitID scopes the entry to its unit of
// work so two concurrent creates of the same type never collide and orphaned
// entries can be released when the unit ends.
type Key struct {
	EntityType string
	EntityID   string
	UnitID     string
}

// Cache stages before-snapshots between hook invocations.
//
// A staged nil snapshot is an explicit "no prior state" marker, distinct from
// "nothing staged": Consume reports the difference through its second return.
// Entries that are never consumed (the write failed after staging, or the
// unit was cancelled) must not be attributed to an unrelated future mutation
// of the same key; ReleaseUnit drops them at end of unit of work, and
// implementations additionally expire entries after a TTL as a backstop.
type Cache interface {
	Stage(ctx context.Context, key Key, before audit.Snapshot) error
	Consume(ctx context.Context, key Key) (before audit.Snapshot, staged bool, err error)
	ReleaseUnit(ctx context.Context, unitID string) error
}
