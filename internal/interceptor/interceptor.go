// Package interceptor pairs before/after snapshots around entity mutations
// and emits audit records. The persistence layer calls PreWrite/PreDelete
// before committing a mutation and PostWrite after it commits, for every
// registered entity type.
package interceptor

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"chronicle/internal/audit"
	"chronicle/internal/pending"
	"chronicle/internal/schema"
	"chronicle/pkg/requestcontext"
	"chronicle/pkg/sentinel"
)

// EntityReader loads the current persisted state of an entity. The pre-write
// hook uses it for the before-snapshot: the in-memory instance being saved
// has already received the new field values by that point, so only a fresh
// read reflects the prior state.
type EntityReader interface {
	FindByID(ctx context.Context, entityType, id string) (any, error)
}

// Interceptor is the hook pair every audited entity type is wired through.
//
// Hooks never return errors: auditing is a best-effort side channel and must
// be invisible on both the happy and the unhappy path of the mutation it
// describes. Failures are logged and counted instead.
//
// Concurrency: the interceptor takes no per-entity lock. Pairing is correct
// as long as the persistence layer serializes writes to one entity identity
// (row-level locking or equivalent); two writers interleaving on the same
// row can pair a before-snapshot from one with the after-snapshot of the
// other. Within one unit of work pre- and post-hooks of a mutation run in
// strict succession, so the staging/consuming pair itself never races.
type Interceptor struct {
	registry *schema.Registry
	cache    pending.Cache
	recorder *audit.Recorder
	reader   EntityReader
	logger   *slog.Logger
	tracer   trace.Tracer
}

// New constructs an interceptor. The reader is typically the same store whose
// writes the hooks wrap.
func New(registry *schema.Registry, cache pending.Cache, recorder *audit.Recorder, reader EntityReader, logger *slog.Logger) *Interceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Interceptor{
		registry: registry,
		cache:    cache,
		recorder: recorder,
		reader:   reader,
		logger:   logger,
		tracer:   otel.Tracer("chronicle/interceptor"),
	}
}

// PreWrite stages the before-snapshot for a create or update about to commit.
func (i *Interceptor) PreWrite(ctx context.Context, entityType string, entity any) {
	d, ok := i.registry.Lookup(entityType)
	if !ok {
		i.logger.ErrorContext(ctx, "pre-write for unregistered entity type", "entity_type", entityType)
		return
	}

	unitID := requestcontext.UnitID(ctx)
	id := d.GetID(entity)

	if id == "" {
		// Brand-new entity: stage an explicit no-prior-state marker under the
		// create key (no identity yet).
		i.stage(ctx, pending.Key{EntityType: entityType, UnitID: unitID}, nil)
		return
	}

	current, err := i.reader.FindByID(ctx, entityType, id)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			i.logger.WarnContext(ctx, "before-snapshot read failed",
				"error", err, "entity_type", entityType, "entity_id", id)
		}
		// No readable prior state: stage the absent marker and proceed; the
		// record simply carries no before-snapshot.
		i.stage(ctx, pending.Key{EntityType: entityType, EntityID: id, UnitID: unitID}, nil)
		return
	}

	i.stage(ctx, pending.Key{EntityType: entityType, EntityID: id, UnitID: unitID}, d.Snapshot(current))
}

// PostWrite serializes the now-persisted entity, consumes the staged
// before-snapshot, and appends the CREATE or UPDATE record.
func (i *Interceptor) PostWrite(ctx context.Context, entityType string, entity any) {
	d, ok := i.registry.Lookup(entityType)
	if !ok {
		i.logger.ErrorContext(ctx, "post-write for unregistered entity type", "entity_type", entityType)
		return
	}

	unitID := requestcontext.UnitID(ctx)
	id := d.GetID(entity)
	after := d.Snapshot(entity)

	record := audit.Record{
		Action:     audit.ActionUpdate,
		EntityType: entityType,
		EntityID:   id,
		After:      after,
	}

	before, staged, err := i.cache.Consume(ctx, pending.Key{EntityType: entityType, EntityID: id, UnitID: unitID})
	if err != nil {
		i.logger.ErrorContext(ctx, "pending consume failed",
			"error", err, "entity_type", entityType, "entity_id", id)
	}
	switch {
	case staged:
		record.Before = before
	default:
		_, createStaged, cerr := i.cache.Consume(ctx, pending.Key{EntityType: entityType, UnitID: unitID})
		if cerr != nil {
			i.logger.ErrorContext(ctx, "pending consume failed",
				"error", cerr, "entity_type", entityType)
		}
		if createStaged {
			record.Action = audit.ActionCreate
		} else {
			// Hook discipline broken or the entry was evicted; keep the
			// after-state rather than losing the mutation entirely.
			i.logger.WarnContext(ctx, "post-write without staged before-snapshot",
				"entity_type", entityType, "entity_id", id)
		}
	}

	i.emit(ctx, record)
}

// PreDelete captures the entity's final state and appends the DELETE record.
// There is no post-hook for deletes; the entity is gone after commit.
func (i *Interceptor) PreDelete(ctx context.Context, entityType string, entity any) {
	d, ok := i.registry.Lookup(entityType)
	if !ok {
		i.logger.ErrorContext(ctx, "pre-delete for unregistered entity type", "entity_type", entityType)
		return
	}

	i.emit(ctx, audit.Record{
		Action:     audit.ActionDelete,
		EntityType: entityType,
		EntityID:   d.GetID(entity),
		Before:     d.Snapshot(entity),
	})
}

func (i *Interceptor) stage(ctx context.Context, key pending.Key, before audit.Snapshot) {
	if err := i.cache.Stage(ctx, key, before); err != nil {
		i.logger.ErrorContext(ctx, "pending stage failed",
			"error", err, "entity_type", key.EntityType, "entity_id", key.EntityID)
	}
}

func (i *Interceptor) emit(ctx context.Context, record audit.Record) {
	ctx, span := i.tracer.Start(ctx, "audit.record",
		trace.WithAttributes(
			attribute.String("audit.action", string(record.Action)),
			attribute.String("audit.entity_type", record.EntityType),
		))
	defer span.End()

	record.ActorID, record.SourceIP, record.SessionKey = audit.Attribution(ctx)
	i.recorder.Record(ctx, record)
}
