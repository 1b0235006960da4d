package interceptor_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chronicle/internal/audit"
	auditmemory "chronicle/internal/audit/store/memory"
	entitymemory "chronicle/internal/entity/memory"
	"chronicle/internal/interceptor"
	pendingmemory "chronicle/internal/pending/memory"
	"chronicle/internal/schema"
	"chronicle/internal/schema/schematest"
	"chronicle/pkg/requestcontext"
	"chronicle/pkg/testutil"
)

type fixture struct {
	registry *schema.Registry
	cache    *pendingmemory.Cache
	trail    *auditmemory.InMemoryStore
	entities *entitymemory.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	registry := schema.NewRegistry()
	require.NoError(t, registry.Register(schematest.CandidateDescriptor()))

	cache := pendingmemory.NewCache()
	trail := auditmemory.NewInMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	entities := entitymemory.NewStore(registry, nil)
	hooks := interceptor.New(registry, cache, audit.NewRecorder(trail, logger, nil), entities, logger)
	entities.SetHooks(hooks)

	return &fixture{registry: registry, cache: cache, trail: trail, entities: entities}
}

func (f *fixture) recordsFor(t *testing.T, entityID string) []audit.Record {
	t.Helper()
	records, err := f.trail.Find(context.Background(), audit.Filter{
		EntityType: schematest.CandidateType,
		EntityID:   entityID,
	})
	require.NoError(t, err)
	return records
}

func TestCreatePairing(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.ContextWithUnit("alice", "unit-1")

	candidate := &schematest.Candidate{Name: "Ada", Status: "Draft", Score: 80, OwnerID: "u-1"}
	require.NoError(t, f.entities.Save(ctx, schematest.CandidateType, candidate))
	require.NotEmpty(t, candidate.ID)

	records := f.recordsFor(t, candidate.ID)
	require.Len(t, records, 1, "exactly one record per create")

	record := records[0]
	assert.Equal(t, audit.ActionCreate, record.Action)
	assert.Nil(t, record.Before, "CREATE never carries a before-snapshot")
	assert.Equal(t, "Ada", record.After["name"])
	assert.Equal(t, "Draft", record.After["status"])
	assert.Equal(t, 80, record.After["score"])
	assert.Equal(t, "u-1", record.After["owner"])
}

func TestUpdatePairing(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.ContextWithUnit("alice", "unit-1")

	candidate := &schematest.Candidate{Name: "Ada", Status: "Draft"}
	require.NoError(t, f.entities.Save(ctx, schematest.CandidateType, candidate))

	candidate.Status = "Approved"
	require.NoError(t, f.entities.Save(ctx, schematest.CandidateType, candidate))

	records := f.recordsFor(t, candidate.ID)
	require.Len(t, records, 2)

	// Most recent first.
	update := records[0]
	assert.Equal(t, audit.ActionUpdate, update.Action)
	assert.Equal(t, "Draft", update.Before["status"], "before-snapshot reflects the persisted prior state")
	assert.Equal(t, "Approved", update.After["status"])
	assert.Equal(t, audit.ActionCreate, records[1].Action)
}

func TestUpdateWithMissingPriorState(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.ContextWithUnit("alice", "unit-1")

	// An entity that claims an identity the store has never seen: the
	// before-snapshot read finds nothing and the record carries no before.
	candidate := &schematest.Candidate{ID: uuid.NewString(), Name: "Ghost", Status: "Draft"}
	require.NoError(t, f.entities.Save(ctx, schematest.CandidateType, candidate))

	records := f.recordsFor(t, candidate.ID)
	require.Len(t, records, 1)
	assert.Equal(t, audit.ActionUpdate, records[0].Action)
	assert.Nil(t, records[0].Before)
	assert.Equal(t, "Ghost", records[0].After["name"])
}

func TestDeleteCapture(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.ContextWithUnit("alice", "unit-1")

	candidate := &schematest.Candidate{Name: "Ada", Status: "Approved"}
	require.NoError(t, f.entities.Save(ctx, schematest.CandidateType, candidate))
	require.NoError(t, f.entities.Delete(ctx, schematest.CandidateType, candidate.ID))

	records := f.recordsFor(t, candidate.ID)
	require.Len(t, records, 2)

	del := records[0]
	assert.Equal(t, audit.ActionDelete, del.Action)
	assert.Equal(t, "Approved", del.Before["status"])
	assert.Nil(t, del.After, "DELETE never carries an after-snapshot")
}

func TestAttributionFromContext(t *testing.T) {
	f := newFixture(t)
	ctx := requestcontext.WithUnitID(
		testutil.ContextWithActor("u-alice", "198.51.100.7", "sess-1"), "unit-1")

	candidate := &schematest.Candidate{Name: "Ada", Status: "Draft"}
	require.NoError(t, f.entities.Save(ctx, schematest.CandidateType, candidate))

	records := f.recordsFor(t, candidate.ID)
	require.Len(t, records, 1)
	assert.Equal(t, "u-alice", records[0].ActorID)
	assert.Equal(t, "198.51.100.7", records[0].SourceIP)
	assert.Equal(t, "sess-1", records[0].SessionKey)
}

func TestAttributionIsolationAcrossConcurrentUnits(t *testing.T) {
	f := newFixture(t)

	// Two concurrent units with different actors repeatedly mutate entities
	// of the same type; no record may carry the other unit's attribution.
	actors := []struct{ actor, ip string }{
		{"u-alice", "198.51.100.1"},
		{"u-bob", "198.51.100.2"},
	}

	var wg sync.WaitGroup
	ids := make([][]string, len(actors))
	for i, a := range actors {
		wg.Add(1)
		go func(i int, actor, ip string) {
			defer wg.Done()
			for n := 0; n < 20; n++ {
				ctx := requestcontext.WithUnitID(
					testutil.ContextWithActor(actor, ip, "sess-"+actor), uuid.NewString())
				candidate := &schematest.Candidate{Name: actor, Status: "Draft"}
				if err := f.entities.Save(ctx, schematest.CandidateType, candidate); err != nil {
					t.Error(err)
					return
				}
				candidate.Status = "Approved"
				if err := f.entities.Save(ctx, schematest.CandidateType, candidate); err != nil {
					t.Error(err)
					return
				}
				ids[i] = append(ids[i], candidate.ID)
			}
		}(i, a.actor, a.ip)
	}
	wg.Wait()

	for i, a := range actors {
		for _, id := range ids[i] {
			for _, record := range f.recordsFor(t, id) {
				assert.Equal(t, a.actor, record.ActorID, "attribution crossed units")
				assert.Equal(t, a.ip, record.SourceIP)
			}
		}
	}
}

// brokenStore fails every append.
type brokenStore struct{}

func (brokenStore) Append(context.Context, audit.Record) (audit.RecordID, error) {
	return uuid.Nil, errors.New("storage unavailable")
}

func (brokenStore) FindByID(context.Context, audit.RecordID) (audit.Record, error) {
	return audit.Record{}, errors.New("storage unavailable")
}

func (brokenStore) Find(context.Context, audit.Filter) ([]audit.Record, error) {
	return nil, errors.New("storage unavailable")
}

func TestAuditFailureDoesNotFailMutation(t *testing.T) {
	registry := schema.NewRegistry()
	require.NoError(t, registry.Register(schematest.CandidateDescriptor()))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	entities := entitymemory.NewStore(registry, nil)
	hooks := interceptor.New(registry, pendingmemory.NewCache(),
		audit.NewRecorder(brokenStore{}, logger, nil), entities, logger)
	entities.SetHooks(hooks)

	ctx := testutil.ContextWithUnit("alice", "unit-1")
	candidate := &schematest.Candidate{Name: "Ada", Status: "Draft"}

	require.NoError(t, entities.Save(ctx, schematest.CandidateType, candidate),
		"primary mutation must succeed even when audit persistence is down")

	loaded, err := entities.FindByID(ctx, schematest.CandidateType, candidate.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", loaded.(*schematest.Candidate).Name)
}

func TestOrphanedStagingIsReleasedWithUnit(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.ContextWithUnit("alice", "unit-1")

	candidate := &schematest.Candidate{Name: "Ada", Status: "Draft"}
	require.NoError(t, f.entities.Save(ctx, schematest.CandidateType, candidate))

	// Simulate a write that failed between pre- and post-hook: the staged
	// entry survives until the unit is released.
	hooks := interceptor.New(f.registry, f.cache,
		audit.NewRecorder(f.trail, slog.New(slog.NewTextHandler(io.Discard, nil)), nil),
		f.entities, nil)
	hooks.PreWrite(ctx, schematest.CandidateType, candidate)
	require.Equal(t, 1, f.cache.Len())

	require.NoError(t, f.cache.ReleaseUnit(ctx, "unit-1"))
	assert.Equal(t, 0, f.cache.Len(), "orphaned entry must not outlive its unit of work")
}
