// Package schema describes audited entity types to the engine.
//
// Instead of reflecting over every model at runtime, each participating type
// registers an explicit Descriptor at startup: an ordered field list with
// typed accessors. The descriptor is the single source of truth for what a
// snapshot contains and which fields a rollback may touch, which makes the
// skip-on-missing-field behavior explicit and testable.
package schema

import (
	"fmt"
	"sync"

	"chronicle/internal/audit"
)

// Kind classifies how a field value is flattened into a snapshot.
type Kind int

const (
	// KindScalar stores the value as-is.
	KindScalar Kind = iota
	// KindReference stores the referenced entity's raw identity, never a
	// nested snapshot. One level of flattening keeps snapshots small and
	// acyclic.
	KindReference
	// KindFile stores the logical name/path of a binary field, not its bytes.
	KindFile
)

// Field describes one concrete field of an entity's schema. Multi-valued
// relations are not representable here on purpose: they are not part of the
// owning entity's own state and never appear in snapshots.
type Field struct {
	Name     string
	Kind     Kind
	Editable bool

	// Get reads the field from an entity instance. Returning an error skips
	// the field in the snapshot rather than failing it; a lazily-loaded
	// relation that can no longer be resolved must not cost callers the
	// whole before-snapshot.
	Get func(entity any) (any, error)

	// Set assigns a snapshot value back onto an entity instance. Nil for
	// read-only fields; rollback skips those.
	Set func(entity any, value any) error
}

// Descriptor is the registered schema of one entity type.
type Descriptor struct {
	// Type is the namespaced label, e.g. "core.Candidate". Opaque to the
	// engine, supplied by the owning package.
	Type string

	// New constructs a zero-valued instance; used for cloning.
	New func() any

	// GetID and SetID access the entity's string identity. An empty ID marks
	// an entity not yet persisted.
	GetID func(entity any) string
	SetID func(entity any, id string)

	Fields []Field
}

func (d *Descriptor) validate() error {
	switch {
	case d.Type == "":
		return fmt.Errorf("descriptor missing type label")
	case d.New == nil:
		return fmt.Errorf("descriptor %s missing constructor", d.Type)
	case d.GetID == nil || d.SetID == nil:
		return fmt.Errorf("descriptor %s missing identity accessors", d.Type)
	}
	for _, f := range d.Fields {
		if f.Name == "" || f.Get == nil {
			return fmt.Errorf("descriptor %s has field without name or getter", d.Type)
		}
		if f.Editable && f.Set == nil {
			return fmt.Errorf("descriptor %s field %s editable without setter", d.Type, f.Name)
		}
	}
	return nil
}

// Snapshot serializes the entity into a flat field-name to value mapping.
// Unreadable fields are skipped, never fatal.
func (d *Descriptor) Snapshot(entity any) audit.Snapshot {
	snap := make(audit.Snapshot, len(d.Fields))
	for _, f := range d.Fields {
		value, err := f.Get(entity)
		if err != nil {
			continue
		}
		snap[f.Name] = value
	}
	return snap
}

// Apply assigns snapshot values onto the entity for every field that still
// exists on the current schema and is editable. Fields the schema has dropped
// since the snapshot was taken, and non-editable fields, are skipped silently:
// partial restore of what still applies beats an all-or-nothing failure.
// Returns the number of fields assigned and the first assignment error.
func (d *Descriptor) Apply(entity any, snap audit.Snapshot) (int, error) {
	applied := 0
	for _, f := range d.Fields {
		value, ok := snap[f.Name]
		if !ok {
			continue
		}
		if !f.Editable || f.Set == nil {
			continue
		}
		if err := f.Set(entity, value); err != nil {
			return applied, fmt.Errorf("assign field %s: %w", f.Name, err)
		}
		applied++
	}
	return applied, nil
}

// Clone builds an independent copy of the entity via the descriptor's
// accessors. Fields without setters keep their zero value in the copy.
func (d *Descriptor) Clone(entity any) any {
	clone := d.New()
	d.SetID(clone, d.GetID(entity))
	for _, f := range d.Fields {
		if f.Set == nil {
			continue
		}
		value, err := f.Get(entity)
		if err != nil {
			continue
		}
		_ = f.Set(clone, value)
	}
	return clone
}

// Registry maps entity-type labels to descriptors. Populated once at startup;
// safe for concurrent lookup.
type Registry struct {
	mu    sync.RWMutex
	types map[string]*Descriptor
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]*Descriptor)}
}

// Register adds a descriptor. Registering the audit record's own type is
// refused so the trail can never recursively audit itself.
func (r *Registry) Register(d *Descriptor) error {
	if err := d.validate(); err != nil {
		return err
	}
	if d.Type == audit.RecordEntityType {
		return fmt.Errorf("refusing to audit the audit trail itself (%s)", d.Type)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.types[d.Type]; exists {
		return fmt.Errorf("entity type %s already registered", d.Type)
	}
	r.types[d.Type] = d
	return nil
}

// Lookup resolves a type label to its descriptor.
func (r *Registry) Lookup(entityType string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.types[entityType]
	return d, ok
}
