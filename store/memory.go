package store

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// InMemoryStore is a thread-safe in-memory job record store.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]*Record)}
}

// Load returns a copy of the record, or nil when the job is unknown.
func (s *InMemoryStore) Load(_ context.Context, jobID string) (*Record, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneRecord(s.records[jobID]), nil
}

// SaveIfVersion performs compare-and-set persistence.
func (s *InMemoryStore) SaveIfVersion(_ context.Context, rec *Record, expectedVersion int) (int, error) {
	rec, expectedVersion, err := normalize(rec, expectedVersion)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.records[rec.JobID]
	switch {
	case !ok && expectedVersion != 0:
		return 0, ErrVersionConflict
	case ok && current.Version != expectedVersion:
		return 0, ErrVersionConflict
	}
	rec.Version = expectedVersion + 1
	s.records[rec.JobID] = rec
	return rec.Version, nil
}

// List returns every record ordered by job id.
func (s *InMemoryStore) List(context.Context) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, cloneRecord(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JobID < out[j].JobID })
	return out, nil
}
