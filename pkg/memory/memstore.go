package memory

import (
	"context"
	"sync"
)

// DefaultMaxRecords bounds per-agent history when no limit is configured.
const DefaultMaxRecords = 1000

// MemoryStore keeps records in process memory. It is safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	max     int
	records map[string][]Record       // agent -> oldest first
	ids     map[string]struct{}       // record ids
	authors map[string]map[string]int // agent -> normalized author -> count
}

// NewMemoryStore creates an empty store keeping at most max records per agent.
func NewMemoryStore(max int) *MemoryStore {
	if max <= 0 {
		max = DefaultMaxRecords
	}
	return &MemoryStore{
		max:     max,
		records: make(map[string][]Record),
		ids:     make(map[string]struct{}),
		authors: make(map[string]map[string]int),
	}
}

// Append stores r unless its id is already present.
func (s *MemoryStore) Append(ctx context.Context, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLocked(r)
	return nil
}

func (s *MemoryStore) appendLocked(r Record) bool {
	if _, dup := s.ids[r.ID]; dup {
		return false
	}
	s.ids[r.ID] = struct{}{}

	list := append(s.records[r.AgentID], r)
	if len(list) > s.max {
		for _, old := range list[:len(list)-s.max] {
			delete(s.ids, old.ID)
			s.forgetAuthor(old)
		}
		list = append([]Record(nil), list[len(list)-s.max:]...)
	}
	s.records[r.AgentID] = list

	if a := normalizeAuthor(r.Author); a != "" {
		if s.authors[r.AgentID] == nil {
			s.authors[r.AgentID] = make(map[string]int)
		}
		s.authors[r.AgentID][a]++
	}
	return true
}

func (s *MemoryStore) forgetAuthor(r Record) {
	a := normalizeAuthor(r.Author)
	if a == "" {
		return
	}
	if m := s.authors[r.AgentID]; m != nil {
		if m[a]--; m[a] <= 0 {
			delete(m, a)
		}
	}
}

// Recent returns up to n records for agentID, oldest first.
func (s *MemoryStore) Recent(ctx context.Context, agentID string, n int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.records[agentID]
	if n > 0 && len(list) > n {
		list = list[len(list)-n:]
	}
	out := make([]Record, len(list))
	copy(out, list)
	return out, nil
}

// HasAuthor reports whether author has any record for agentID.
func (s *MemoryStore) HasAuthor(ctx context.Context, agentID, author string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authors[agentID][normalizeAuthor(author)] > 0, nil
}

// Len returns the total number of records held.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

// snapshot returns every record, grouped by agent.
func (s *MemoryStore) snapshot() map[string][]Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]Record, len(s.records))
	for k, v := range s.records {
		out[k] = append([]Record(nil), v...)
	}
	return out
}

var _ Store = (*MemoryStore)(nil)
