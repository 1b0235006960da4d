package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"chronicle/internal/audit"
	"chronicle/pkg/sentinel"
)

// InMemoryStore keeps the audit trail in process memory for tests and dev.
// Append-only: records are never mutated after insertion, and reads return
// deep copies so callers cannot reach stored state.
type InMemoryStore struct {
	mu      sync.RWMutex
	records []audit.Record
	byID    map[audit.RecordID]int
	lastTS  time.Time
}

// NewInMemoryStore constructs an empty in-memory audit store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byID: make(map[audit.RecordID]int)}
}

func (s *InMemoryStore) Append(_ context.Context, record audit.Record) (audit.RecordID, error) {
	if err := record.Validate(); err != nil {
		return uuid.Nil, fmt.Errorf("append audit record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record = record.Clone()
	record.ID = uuid.New()
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}
	// Keep insertion order and timestamp order aligned even under clock skew.
	if record.Timestamp.Before(s.lastTS) {
		record.Timestamp = s.lastTS
	}
	s.lastTS = record.Timestamp

	s.byID[record.ID] = len(s.records)
	s.records = append(s.records, record)
	return record.ID, nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id audit.RecordID) (audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byID[id]
	if !ok {
		return audit.Record{}, fmt.Errorf("audit record %s: %w", id, sentinel.ErrNotFound)
	}
	return s.records[idx].Clone(), nil
}

// Find returns matching records, most recent first.
func (s *InMemoryStore) Find(_ context.Context, filter audit.Filter) ([]audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []audit.Record
	for i := len(s.records) - 1; i >= 0; i-- {
		if !filter.Matches(s.records[i]) {
			continue
		}
		out = append(out, s.records[i].Clone())
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// Len reports the number of stored records.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
