// Package entity defines the persistence surface the audit engine hooks into.
// Stores are interface-driven to keep the engine testable and to allow
// swapping in-memory or database-backed persistence without rewiring the
// hooks.
package entity

import "context"

// Hooks is the mutation interception contract a participating store calls
// around its writes: PreWrite/PreDelete before committing, PostWrite after.
// Implemented by the interceptor; a store may run with nil hooks (unaudited).
type Hooks interface {
	PreWrite(ctx context.Context, entityType string, entity any)
	PostWrite(ctx context.Context, entityType string, entity any)
	PreDelete(ctx context.Context, entityType string, entity any)
}

// Store persists registered domain entities.
//
// Save assigns an identity to new entities (empty ID) and overwrites existing
// ones. Implementations must serialize concurrent writes to one entity
// identity; the audit engine's before/after pairing relies on that ordering
// instead of adding its own per-entity lock.
type Store interface {
	Save(ctx context.Context, entityType string, entity any) error
	FindByID(ctx context.Context, entityType, id string) (any, error)
	Delete(ctx context.Context, entityType, id string) error

	// RunInTx runs fn atomically with respect to other writes. Rollback uses
	// it so a restore either fully persists or leaves no partial effect.
	RunInTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the store surface available inside a transaction.
type Tx interface {
	Save(ctx context.Context, entityType string, entity any) error
	FindByID(ctx context.Context, entityType, id string) (any, error)
	Delete(ctx context.Context, entityType, id string) error
}
