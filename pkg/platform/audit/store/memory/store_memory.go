package memory

import (
	"context"
	"sync"
	"time"

	audit "onboard/pkg/platform/audit"
)

// Store is the in-memory audit ledger: a per-subject index over one
// global append-ordered slice. Entries are copied on the way in and out
// so callers can never mutate the ledger.
type Store struct {
	mu        sync.RWMutex
	entries   []audit.Entry
	bySubject map[string][]int
}

func New() *Store {
	return &Store{bySubject: make(map[string][]int)}
}

func (s *Store) Append(_ context.Context, entry audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	s.bySubject[entry.SubjectID] = append(s.bySubject[entry.SubjectID], len(s.entries)-1)
	return nil
}

func (s *Store) ListBySubject(_ context.Context, subjectID string) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idxs := s.bySubject[subjectID]
	out := make([]audit.Entry, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, s.entries[i])
	}
	return out, nil
}

func (s *Store) ListBySubjectRange(_ context.Context, subjectID string, from, to time.Time) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Entry
	for _, i := range s.bySubject[subjectID] {
		e := s.entries[i]
		if e.Timestamp.Before(from) || e.Timestamp.After(to) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Len reports the total number of entries, for test assertions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
