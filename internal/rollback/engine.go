// Package rollback restores an entity's editable fields to a previously
// recorded before-snapshot.
package rollback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"chronicle/internal/audit"
	"chronicle/internal/audit/metrics"
	"chronicle/internal/entity"
	"chronicle/internal/schema"
	"chronicle/pkg/sentinel"
)

// Rollback failure taxonomy. These are the one class of audit-engine errors
// surfaced to a caller: rollback is the primary operation being requested, so
// administrators get a specific reason rather than a generic failure.
var (
	// ErrNotRollbackable: the record has no usable before-snapshot, no entity
	// identity, or its entity type is no longer registered.
	ErrNotRollbackable = errors.New("record not rollbackable")

	// ErrEntityGone: the target entity no longer exists. Rollback restores
	// state, it does not resurrect deleted entities.
	ErrEntityGone = errors.New("entity no longer exists")

	// ErrFailed: transactional failure during the restore; nothing was
	// persisted.
	ErrFailed = errors.New("rollback failed")
)

// Engine applies before-snapshots back onto live entities.
type Engine struct {
	registry *schema.Registry
	entities entity.Store
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// New constructs a rollback engine writing through the given entity store.
func New(registry *schema.Registry, entities entity.Store, logger *slog.Logger, m *metrics.Metrics) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{registry: registry, entities: entities, logger: logger, metrics: m}
}

// Rollback restores the entity referenced by the record to the recorded
// before-snapshot, inside a single transaction.
//
// Fields the current schema has dropped, and non-editable fields, are skipped:
// partial restore of what still applies beats an all-or-nothing failure under
// schema evolution. The restore persists through the normal write path, so it
// re-enters the interceptor and produces its own UPDATE record; rollback is a
// normal mutation from the engine's point of view. Applying the same record
// twice converges: once the fields already match, the second pass is a no-op
// write.
func (e *Engine) Rollback(ctx context.Context, record audit.Record) (any, error) {
	if record.Before == nil {
		e.metrics.IncrementRollback("not_rollbackable")
		return nil, fmt.Errorf("%w: record %s has no before-snapshot", ErrNotRollbackable, record.ID)
	}
	if record.EntityID == "" {
		e.metrics.IncrementRollback("not_rollbackable")
		return nil, fmt.Errorf("%w: record %s has no entity id", ErrNotRollbackable, record.ID)
	}
	d, ok := e.registry.Lookup(record.EntityType)
	if !ok {
		e.metrics.IncrementRollback("not_rollbackable")
		return nil, fmt.Errorf("%w: entity type %s is not registered", ErrNotRollbackable, record.EntityType)
	}

	var restored any
	err := e.entities.RunInTx(ctx, func(tx entity.Tx) error {
		current, err := tx.FindByID(ctx, record.EntityType, record.EntityID)
		if errors.Is(err, sentinel.ErrNotFound) {
			return ErrEntityGone
		}
		if err != nil {
			return fmt.Errorf("load current state: %w", err)
		}

		applied, err := d.Apply(current, record.Before)
		if err != nil {
			return fmt.Errorf("restore fields: %w", err)
		}

		if err := tx.Save(ctx, record.EntityType, current); err != nil {
			return fmt.Errorf("persist restored state: %w", err)
		}

		e.logger.InfoContext(ctx, "entity rolled back",
			"entity_type", record.EntityType,
			"entity_id", record.EntityID,
			"record_id", record.ID,
			"fields_restored", applied,
		)
		restored = current
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrEntityGone) {
			e.metrics.IncrementRollback("entity_gone")
			return nil, fmt.Errorf("%w: %s %s", ErrEntityGone, record.EntityType, record.EntityID)
		}
		e.metrics.IncrementRollback("failed")
		return nil, fmt.Errorf("%w: %w", ErrFailed, err)
	}

	e.metrics.IncrementRollback("restored")
	return restored, nil
}
