package training

import (
	"context"
	"sync"

	"onboard/pkg/domain"
	"onboard/pkg/platform/sentinel"
)

// InMemory keeps training records keyed by employee and course.
type InMemory struct {
	mu      sync.RWMutex
	records map[domain.EmployeeID]map[string]*Record
}

func NewInMemory() *InMemory {
	return &InMemory{records: make(map[domain.EmployeeID]map[string]*Record)}
}

// Upsert inserts or replaces the record for one employee and course.
func (s *InMemory) Upsert(_ context.Context, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byCourse, ok := s.records[record.EmployeeID]
	if !ok {
		byCourse = make(map[string]*Record)
		s.records[record.EmployeeID] = byCourse
	}
	clone := *record
	byCourse[record.CourseCode] = &clone
	return nil
}

// Find returns the record for one employee and course.
func (s *InMemory) Find(_ context.Context, employeeID domain.EmployeeID, courseCode string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.records[employeeID][courseCode]; ok {
		clone := *r
		return &clone, nil
	}
	return nil, sentinel.ErrNotFound
}

// ListByEmployee returns all records for one employee.
func (s *InMemory) ListByEmployee(_ context.Context, employeeID domain.EmployeeID) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Record, 0, len(s.records[employeeID]))
	for _, r := range s.records[employeeID] {
		clone := *r
		out = append(out, &clone)
	}
	return out, nil
}
