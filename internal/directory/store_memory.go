package directory

import (
	"context"
	"sync"

	"onboard/pkg/domain"
	"onboard/pkg/platform/sentinel"
)

// InMemory keeps employees in maps with email/phone indexes for
// duplicate detection. It favors clarity over performance; swapping in a
// SQL-backed store only requires honoring the same sentinel errors.
type InMemory struct {
	mu        sync.RWMutex
	employees map[domain.EmployeeID]*Employee
	byEmail   map[string]domain.EmployeeID
	byPhone   map[string]domain.EmployeeID
}

func NewInMemory() *InMemory {
	return &InMemory{
		employees: make(map[domain.EmployeeID]*Employee),
		byEmail:   make(map[string]domain.EmployeeID),
		byPhone:   make(map[string]domain.EmployeeID),
	}
}

// Create inserts a new employee. Returns sentinel.ErrConflict when the id
// already exists (rehire goes through Execute instead).
func (s *InMemory) Create(_ context.Context, e *Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.employees[e.ID]; exists {
		return sentinel.ErrConflict
	}
	s.employees[e.ID] = e.clone()
	s.index(e)
	return nil
}

// FindByID returns a copy of the employee.
func (s *InMemory) FindByID(_ context.Context, id domain.EmployeeID) (*Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.employees[id]; ok {
		return e.clone(), nil
	}
	return nil, sentinel.ErrNotFound
}

// FindActiveByEmail resolves the active employee holding a normalized
// email, if any.
func (s *InMemory) FindActiveByEmail(_ context.Context, email string) (domain.EmployeeID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[email]
	if !ok {
		return "", false
	}
	if e := s.employees[id]; e != nil && e.Active() {
		return id, true
	}
	return "", false
}

// FindActiveByPhone resolves the active employee holding a normalized
// phone, if any.
func (s *InMemory) FindActiveByPhone(_ context.Context, phone string) (domain.EmployeeID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byPhone[phone]
	if !ok {
		return "", false
	}
	if e := s.employees[id]; e != nil && e.Active() {
		return id, true
	}
	return "", false
}

// Execute runs validate-then-mutate while holding the store lock, the
// same pattern a SQL store implements with SELECT ... FOR UPDATE.
func (s *InMemory) Execute(_ context.Context, id domain.EmployeeID, validate func(*Employee) error, apply func(*Employee)) (*Employee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.employees[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if validate != nil {
		if err := validate(e); err != nil {
			return nil, err
		}
	}
	s.unindex(e)
	apply(e)
	s.index(e)
	return e.clone(), nil
}

// List returns all employees, for dev and test inspection.
func (s *InMemory) List(_ context.Context) []*Employee {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Employee, 0, len(s.employees))
	for _, e := range s.employees {
		out = append(out, e.clone())
	}
	return out
}

func (s *InMemory) index(e *Employee) {
	if e.Email != "" {
		s.byEmail[e.Email] = e.ID
	}
	if e.Phone != "" {
		s.byPhone[e.Phone] = e.ID
	}
}

func (s *InMemory) unindex(e *Employee) {
	if e.Email != "" && s.byEmail[e.Email] == e.ID {
		delete(s.byEmail, e.Email)
	}
	if e.Phone != "" && s.byPhone[e.Phone] == e.ID {
		delete(s.byPhone, e.Phone)
	}
}
