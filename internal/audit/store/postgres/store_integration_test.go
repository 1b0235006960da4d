//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"chronicle/internal/audit"
	"chronicle/internal/audit/store/postgres"
	txcontext "chronicle/pkg/platform/tx"
	"chronicle/pkg/sentinel"
	"chronicle/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *postgres.Store
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
}

func (s *PostgresStoreSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(postgres.Migrate(ctx, s.postgres.DB))
	s.Require().NoError(s.postgres.TruncateTables(ctx, "audit_records"))
	// Fresh store per test: readiness is cached per instance.
	s.store = postgres.New(s.postgres.DB)
}

func (s *PostgresStoreSuite) TestReadinessGate() {
	ctx := context.Background()

	_, err := s.postgres.DB.ExecContext(ctx, "DROP TABLE audit_records")
	s.Require().NoError(err)

	unprovisioned := postgres.New(s.postgres.DB)
	_, err = unprovisioned.Append(ctx, audit.Record{
		Action:     audit.ActionSystem,
		EntityType: "system.Backup",
	})
	s.ErrorIs(err, audit.ErrStoreNotReady)

	s.Require().NoError(postgres.Migrate(ctx, s.postgres.DB))

	// The unprovisioned instance cached its verdict; a fresh one sees the table.
	_, err = unprovisioned.Append(ctx, audit.Record{
		Action:     audit.ActionSystem,
		EntityType: "system.Backup",
	})
	s.ErrorIs(err, audit.ErrStoreNotReady)

	provisioned := postgres.New(s.postgres.DB)
	id, err := provisioned.Append(ctx, audit.Record{
		Action:     audit.ActionSystem,
		EntityType: "system.Backup",
	})
	s.Require().NoError(err)
	s.NotEqual(uuid.Nil, id)
}

func (s *PostgresStoreSuite) TestAppendAndFindByID() {
	ctx := context.Background()

	id, err := s.store.Append(ctx, audit.Record{
		Action:     audit.ActionUpdate,
		EntityType: "core.Candidate",
		EntityID:   "c-1",
		Before:     audit.Snapshot{"status": "Draft", "score": float64(80)},
		After:      audit.Snapshot{"status": "Approved", "score": float64(95)},
		ActorID:    "u-42",
		SourceIP:   "203.0.113.9",
		SessionKey: "sess-abc",
	})
	s.Require().NoError(err)

	record, err := s.store.FindByID(ctx, id)
	s.Require().NoError(err)
	s.Equal(audit.ActionUpdate, record.Action)
	s.Equal("core.Candidate", record.EntityType)
	s.Equal("c-1", record.EntityID)
	s.Equal("Draft", record.Before["status"])
	s.Equal(float64(80), record.Before["score"])
	s.Equal("Approved", record.After["status"])
	s.Equal("u-42", record.ActorID)
	s.Equal("203.0.113.9", record.SourceIP)
	s.Equal("sess-abc", record.SessionKey)
	s.False(record.Timestamp.IsZero())
}

func (s *PostgresStoreSuite) TestAppendWithoutEntityIdentity() {
	ctx := context.Background()

	// FAILED_LOGIN has no entity id and no actor; those columns go NULL.
	id, err := s.store.Append(ctx, audit.Record{
		Action:     audit.ActionFailedLogin,
		EntityType: "auth.User",
		Before:     audit.Snapshot{"attemptedUsername": "ada"},
		SourceIP:   "203.0.113.9",
	})
	s.Require().NoError(err)

	record, err := s.store.FindByID(ctx, id)
	s.Require().NoError(err)
	s.Empty(record.EntityID)
	s.Empty(record.ActorID)
	s.Equal("ada", record.Before["attemptedUsername"])
}

func (s *PostgresStoreSuite) TestAppendRejectsInvariantViolations() {
	ctx := context.Background()

	_, err := s.store.Append(ctx, audit.Record{
		Action:     audit.ActionCreate,
		EntityType: "core.Candidate",
		EntityID:   "c-1",
		Before:     audit.Snapshot{"status": "Draft"},
	})
	s.Error(err, "CREATE must not carry a before-snapshot")
}

func (s *PostgresStoreSuite) TestFindFilters() {
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	appends := []audit.Record{
		{Action: audit.ActionCreate, EntityType: "core.Candidate", EntityID: "c-1", ActorID: "alice", After: audit.Snapshot{"v": float64(1)}, Timestamp: base},
		{Action: audit.ActionUpdate, EntityType: "core.Candidate", EntityID: "c-1", ActorID: "bob", Before: audit.Snapshot{"v": float64(1)}, After: audit.Snapshot{"v": float64(2)}, Timestamp: base.Add(time.Hour)},
		{Action: audit.ActionDelete, EntityType: "core.Position", EntityID: "p-1", ActorID: "alice", Before: audit.Snapshot{"v": float64(9)}, Timestamp: base.Add(2 * time.Hour)},
	}
	for _, r := range appends {
		_, err := s.store.Append(ctx, r)
		s.Require().NoError(err)
	}

	byEntity, err := s.store.Find(ctx, audit.Filter{EntityType: "core.Candidate", EntityID: "c-1"})
	s.Require().NoError(err)
	s.Len(byEntity, 2)
	s.Equal(audit.ActionUpdate, byEntity[0].Action, "most recent first")

	byActor, err := s.store.Find(ctx, audit.Filter{ActorID: "alice"})
	s.Require().NoError(err)
	s.Len(byActor, 2)

	byAction, err := s.store.Find(ctx, audit.Filter{Action: audit.ActionDelete})
	s.Require().NoError(err)
	s.Require().Len(byAction, 1)
	s.Equal("core.Position", byAction[0].EntityType)

	window, err := s.store.Find(ctx, audit.Filter{
		Since: base.Add(30 * time.Minute),
		Until: base.Add(90 * time.Minute),
	})
	s.Require().NoError(err)
	s.Len(window, 1)

	limited, err := s.store.Find(ctx, audit.Filter{Limit: 1})
	s.Require().NoError(err)
	s.Require().Len(limited, 1)
	s.Equal(audit.ActionDelete, limited[0].Action)
}

func (s *PostgresStoreSuite) TestFindByIDNotFound() {
	_, err := s.store.FindByID(context.Background(), uuid.New())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestAppendJoinsContextTransaction() {
	ctx := context.Background()

	tx, err := s.postgres.DB.BeginTx(ctx, nil)
	s.Require().NoError(err)

	txCtx := txcontext.WithTx(ctx, tx)
	id, err := s.store.Append(txCtx, audit.Record{
		Action:     audit.ActionUpdate,
		EntityType: "core.Candidate",
		EntityID:   "c-1",
		After:      audit.Snapshot{"status": "Approved"},
	})
	s.Require().NoError(err)

	// Rolling back the surrounding transaction discards the audit write too.
	s.Require().NoError(tx.Rollback())
	_, err = s.store.FindByID(ctx, id)
	s.ErrorIs(err, sentinel.ErrNotFound)

	tx, err = s.postgres.DB.BeginTx(ctx, nil)
	s.Require().NoError(err)
	id, err = s.store.Append(txcontext.WithTx(ctx, tx), audit.Record{
		Action:     audit.ActionUpdate,
		EntityType: "core.Candidate",
		EntityID:   "c-1",
		After:      audit.Snapshot{"status": "Approved"},
	})
	s.Require().NoError(err)
	s.Require().NoError(tx.Commit())

	record, err := s.store.FindByID(ctx, id)
	s.Require().NoError(err)
	s.Equal("Approved", record.After["status"])
}
