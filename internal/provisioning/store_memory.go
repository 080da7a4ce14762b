package provisioning

import (
	"context"
	"sort"
	"sync"

	"onboard/pkg/domain"
	dErrors "onboard/pkg/domain-errors"
	"onboard/pkg/platform/sentinel"
)

// InMemory keeps provisioning requests with a per-employee index. All
// mutation goes through Apply, which enforces optimistic versioning.
type InMemory struct {
	mu         sync.RWMutex
	requests   map[domain.RequestID]*Request
	byEmployee map[domain.EmployeeID][]domain.RequestID
}

func NewInMemory() *InMemory {
	return &InMemory{
		requests:   make(map[domain.RequestID]*Request),
		byEmployee: make(map[domain.EmployeeID][]domain.RequestID),
	}
}

// Create inserts a new request.
func (s *InMemory) Create(_ context.Context, r *Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.requests[r.ID]; exists {
		return sentinel.ErrConflict
	}
	s.requests[r.ID] = r.clone()
	s.byEmployee[r.EmployeeID] = append(s.byEmployee[r.EmployeeID], r.ID)
	return nil
}

// FindByID returns a copy of one request.
func (s *InMemory) FindByID(_ context.Context, id domain.RequestID) (*Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.requests[id]; ok {
		return r.clone(), nil
	}
	return nil, sentinel.ErrNotFound
}

// ListByEmployee returns copies of all requests for one employee, oldest
// first.
func (s *InMemory) ListByEmployee(_ context.Context, employeeID domain.EmployeeID) ([]*Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byEmployee[employeeID]
	out := make([]*Request, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.requests[id].clone())
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Apply mutates one request under the store lock iff the caller's
// version matches the stored one, then bumps the version. A stale
// version yields Conflict{expected, actual} and no mutation.
func (s *InMemory) Apply(_ context.Context, id domain.RequestID, expectedVersion int64, apply func(*Request) error) (*Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if r.Version != expectedVersion {
		return nil, dErrors.VersionConflict(expectedVersion, r.Version)
	}
	working := r.clone()
	if err := apply(working); err != nil {
		return nil, err
	}
	working.Version++
	s.requests[id] = working
	return working.clone(), nil
}
