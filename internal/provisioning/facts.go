package provisioning

import (
	"context"
	"sync"

	"onboard/pkg/domain"
)

// FactLedger holds lifecycle facts that are not derived from training
// records: HRIS_created, NDA_signed, credential_rotation_required, and
// anything an external system pushes in.
type FactLedger struct {
	mu    sync.RWMutex
	facts map[domain.EmployeeID]domain.FactSet
}

func NewFactLedger() *FactLedger {
	return &FactLedger{facts: make(map[domain.EmployeeID]domain.FactSet)}
}

// Set records one fact value for an employee.
func (l *FactLedger) Set(_ context.Context, employeeID domain.EmployeeID, fact domain.Fact, value bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	set, ok := l.facts[employeeID]
	if !ok {
		set = make(domain.FactSet)
		l.facts[employeeID] = set
	}
	set[fact] = value
}

// For returns a copy of the employee's lifecycle facts.
func (l *FactLedger) For(_ context.Context, employeeID domain.EmployeeID) domain.FactSet {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(domain.FactSet, len(l.facts[employeeID]))
	for k, v := range l.facts[employeeID] {
		out[k] = v
	}
	return out
}
