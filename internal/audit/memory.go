package audit

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store for tests and local development.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, rec *Record) error {
	s.mu.Lock()
	s.records = append(s.records, *rec)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) ListBySubject(_ context.Context, subject string, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterNewestFirst(s.records, limit, func(r Record) bool {
		return r.Subject == subject
	}), nil
}

func (s *MemoryStore) ListRecent(_ context.Context, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterNewestFirst(s.records, limit, func(Record) bool { return true }), nil
}

func filterNewestFirst(records []Record, limit int, keep func(Record) bool) []Record {
	if limit <= 0 {
		limit = 100
	}
	out := make([]Record, 0, limit)
	for i := len(records) - 1; i >= 0 && len(out) < limit; i-- {
		if keep(records[i]) {
			out = append(out, records[i])
		}
	}
	return out
}
