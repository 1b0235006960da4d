package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"chronicle/internal/audit"
	txcontext "chronicle/pkg/platform/tx"
	"chronicle/pkg/sentinel"
)

// Store persists audit records in PostgreSQL. Snapshots are stored as JSONB
// so old records stay readable as audited entity schemas evolve.
//
// Before the first write the store checks once whether the audit_records
// table exists. During initial schema bootstrap the table may not be there
// yet; in that state Append reports ErrStoreNotReady and the recorder skips
// silently. The result is cached for the process lifetime: once provisioned,
// the surface never reverts.
type Store struct {
	db *sql.DB

	readyOnce sync.Once
	ready     bool
}

// New creates a PostgreSQL-backed audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// execer joins the surrounding entity transaction when one travels in the
// context, so a rollback write and its audit record share one commit.
func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *Store) isReady(ctx context.Context) bool {
	s.readyOnce.Do(func() {
		var reg sql.NullString
		err := s.db.QueryRowContext(ctx, `SELECT to_regclass('audit_records')`).Scan(&reg)
		s.ready = err == nil && reg.Valid
	})
	return s.ready
}

// Append inserts one audit record. Idempotent on ID via ON CONFLICT DO NOTHING.
func (s *Store) Append(ctx context.Context, record audit.Record) (audit.RecordID, error) {
	if !s.isReady(ctx) {
		return uuid.Nil, audit.ErrStoreNotReady
	}
	if err := record.Validate(); err != nil {
		return uuid.Nil, fmt.Errorf("append audit record: %w", err)
	}

	record.ID = uuid.New()
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}

	before, err := marshalSnapshot(record.Before)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal before-snapshot: %w", err)
	}
	after, err := marshalSnapshot(record.After)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal after-snapshot: %w", err)
	}

	query := `
		INSERT INTO audit_records (
			id, action, entity_type, entity_id,
			before_snapshot, after_snapshot,
			actor_id, source_ip, session_key, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		record.ID,
		string(record.Action),
		record.EntityType,
		nullString(record.EntityID),
		before,
		after,
		nullString(record.ActorID),
		nullString(record.SourceIP),
		nullString(record.SessionKey),
		record.Timestamp,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert audit record: %w", err)
	}
	return record.ID, nil
}

// FindByID loads a single record.
func (s *Store) FindByID(ctx context.Context, id audit.RecordID) (audit.Record, error) {
	query := selectColumns + ` FROM audit_records WHERE id = $1`
	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return audit.Record{}, fmt.Errorf("query audit record: %w", err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return audit.Record{}, err
	}
	if len(records) == 0 {
		return audit.Record{}, fmt.Errorf("audit record %s: %w", id, sentinel.ErrNotFound)
	}
	return records[0], nil
}

// Find returns matching records, most recent first.
func (s *Store) Find(ctx context.Context, filter audit.Filter) ([]audit.Record, error) {
	var (
		conditions []string
		args       []any
	)
	add := func(cond string, value any) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if filter.EntityType != "" {
		add("entity_type = $%d", filter.EntityType)
	}
	if filter.EntityID != "" {
		add("entity_id = $%d", filter.EntityID)
	}
	if filter.ActorID != "" {
		add("actor_id = $%d", filter.ActorID)
	}
	if filter.Action != "" {
		add("action = $%d", string(filter.Action))
	}
	if !filter.Since.IsZero() {
		add("created_at >= $%d", filter.Since)
	}
	if !filter.Until.IsZero() {
		add("created_at <= $%d", filter.Until)
	}

	query := selectColumns + ` FROM audit_records`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

const selectColumns = `
	SELECT id, action, entity_type, entity_id,
	       before_snapshot, after_snapshot,
	       actor_id, source_ip, session_key, created_at`

func scanRecords(rows *sql.Rows) ([]audit.Record, error) {
	var records []audit.Record

	for rows.Next() {
		var (
			record     audit.Record
			action     string
			entityID   sql.NullString
			before     []byte
			after      []byte
			actorID    sql.NullString
			sourceIP   sql.NullString
			sessionKey sql.NullString
		)
		err := rows.Scan(
			&record.ID,
			&action,
			&record.EntityType,
			&entityID,
			&before,
			&after,
			&actorID,
			&sourceIP,
			&sessionKey,
			&record.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}

		record.Action = audit.Action(action)
		record.EntityID = entityID.String
		record.ActorID = actorID.String
		record.SourceIP = sourceIP.String
		record.SessionKey = sessionKey.String

		if record.Before, err = unmarshalSnapshot(before); err != nil {
			return nil, fmt.Errorf("decode before-snapshot: %w", err)
		}
		if record.After, err = unmarshalSnapshot(after); err != nil {
			return nil, fmt.Errorf("decode after-snapshot: %w", err)
		}

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit records: %w", err)
	}
	return records, nil
}

func marshalSnapshot(snap audit.Snapshot) (any, error) {
	if snap == nil {
		return nil, nil
	}
	return json.Marshal(snap)
}

func unmarshalSnapshot(raw []byte) (audit.Snapshot, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var snap audit.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
