package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"chronicle/internal/entity"
	"chronicle/internal/schema"
	"chronicle/pkg/sentinel"
)

// Store keeps entities in memory for tests and dev. Writes are serialized by
// a coarse write lock, which also provides the per-entity ordering the audit
// pairing relies on; reads take only the data lock so the pre-write hook can
// load prior state while a write is in flight.
type Store struct {
	registry *schema.Registry
	hooks    entity.Hooks

	writeMu sync.Mutex   // serializes Save/Delete including their hooks
	mu      sync.RWMutex // guards data
	data    map[string]map[string]any
}

// NewStore constructs an empty in-memory entity store. hooks may be nil for
// unaudited use.
func NewStore(registry *schema.Registry, hooks entity.Hooks) *Store {
	return &Store{
		registry: registry,
		hooks:    hooks,
		data:     make(map[string]map[string]any),
	}
}

// SetHooks wires the interceptor after construction; the interceptor's
// before-snapshot reader is this same store, so the two reference each other.
func (s *Store) SetHooks(hooks entity.Hooks) {
	s.hooks = hooks
}

func (s *Store) Save(ctx context.Context, entityType string, e any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.saveLocked(ctx, entityType, e)
}

func (s *Store) saveLocked(ctx context.Context, entityType string, e any) error {
	d, ok := s.registry.Lookup(entityType)
	if !ok {
		return fmt.Errorf("entity type %s not registered", entityType)
	}

	if s.hooks != nil {
		s.hooks.PreWrite(ctx, entityType, e)
	}

	if d.GetID(e) == "" {
		d.SetID(e, uuid.NewString())
	}
	stored := d.Clone(e)

	s.mu.Lock()
	if s.data[entityType] == nil {
		s.data[entityType] = make(map[string]any)
	}
	s.data[entityType][d.GetID(e)] = stored
	s.mu.Unlock()

	if s.hooks != nil {
		s.hooks.PostWrite(ctx, entityType, e)
	}
	return nil
}

// FindByID returns an independent copy of the stored entity.
func (s *Store) FindByID(_ context.Context, entityType, id string) (any, error) {
	d, ok := s.registry.Lookup(entityType)
	if !ok {
		return nil, fmt.Errorf("entity type %s not registered", entityType)
	}

	s.mu.RLock()
	stored, found := s.data[entityType][id]
	s.mu.RUnlock()
	if !found {
		return nil, fmt.Errorf("%s %s: %w", entityType, id, sentinel.ErrNotFound)
	}
	return d.Clone(stored), nil
}

func (s *Store) Delete(ctx context.Context, entityType, id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.deleteLocked(ctx, entityType, id)
}

func (s *Store) deleteLocked(ctx context.Context, entityType, id string) error {
	d, ok := s.registry.Lookup(entityType)
	if !ok {
		return fmt.Errorf("entity type %s not registered", entityType)
	}

	s.mu.RLock()
	stored, found := s.data[entityType][id]
	s.mu.RUnlock()
	if !found {
		return fmt.Errorf("%s %s: %w", entityType, id, sentinel.ErrNotFound)
	}

	if s.hooks != nil {
		s.hooks.PreDelete(ctx, entityType, d.Clone(stored))
	}

	s.mu.Lock()
	delete(s.data[entityType], id)
	s.mu.Unlock()
	return nil
}

// RunInTx holds the write lock for the duration of fn. The in-memory store
// has no partial-write window: fn mutates detached copies and the final Save
// is the only visible effect, so aborting is simply returning the error.
func (s *Store) RunInTx(ctx context.Context, fn func(tx entity.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return fn(&txView{store: s})
}

// txView exposes store operations inside RunInTx without re-taking the write
// lock.
type txView struct {
	store *Store
}

func (t *txView) Save(ctx context.Context, entityType string, e any) error {
	return t.store.saveLocked(ctx, entityType, e)
}

func (t *txView) FindByID(ctx context.Context, entityType, id string) (any, error) {
	return t.store.FindByID(ctx, entityType, id)
}

func (t *txView) Delete(ctx context.Context, entityType, id string) error {
	return t.store.deleteLocked(ctx, entityType, id)
}
