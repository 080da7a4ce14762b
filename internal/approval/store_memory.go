package approval

import (
	"context"
	"sync"

	"onboard/pkg/domain"
	"onboard/pkg/platform/sentinel"
)

// InMemory keeps approval tasks keyed by parent request id with a
// per-employee index for rerouting.
type InMemory struct {
	mu         sync.RWMutex
	tasks      map[domain.RequestID]*Task
	byEmployee map[domain.EmployeeID][]domain.RequestID
}

func NewInMemory() *InMemory {
	return &InMemory{
		tasks:      make(map[domain.RequestID]*Task),
		byEmployee: make(map[domain.EmployeeID][]domain.RequestID),
	}
}

// Create inserts a new task. One task per request; a second create for
// the same request is a conflict.
func (s *InMemory) Create(_ context.Context, task *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[task.RequestID]; exists {
		return sentinel.ErrConflict
	}
	s.tasks[task.RequestID] = task.clone()
	s.byEmployee[task.EmployeeID] = append(s.byEmployee[task.EmployeeID], task.RequestID)
	return nil
}

// FindByRequest returns a copy of the task for one request.
func (s *InMemory) FindByRequest(_ context.Context, requestID domain.RequestID) (*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.tasks[requestID]; ok {
		return t.clone(), nil
	}
	return nil, sentinel.ErrNotFound
}

// ListByEmployee returns copies of all tasks for one employee in
// creation order.
func (s *InMemory) ListByEmployee(_ context.Context, employeeID domain.EmployeeID) ([]*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byEmployee[employeeID]
	out := make([]*Task, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.tasks[id].clone())
	}
	return out, nil
}

// Execute runs validate-then-mutate on one task while holding the store
// lock.
func (s *InMemory) Execute(_ context.Context, requestID domain.RequestID, validate func(*Task) error, apply func(*Task)) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[requestID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if validate != nil {
		if err := validate(t); err != nil {
			return nil, err
		}
	}
	apply(t)
	return t.clone(), nil
}
