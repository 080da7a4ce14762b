// Package training tracks completion facts against an external training
// record. Course content lives elsewhere; the engine only cares about
// assignment, due dates, and completion.
package training

import (
	"time"

	"onboard/pkg/domain"
)

// Record is one assigned course for one employee.
type Record struct {
	EmployeeID  domain.EmployeeID `json:"employee_id"`
	CourseCode  string            `json:"course_code"`
	AssignedAt  time.Time         `json:"assigned_at"`
	DueAt       time.Time         `json:"due_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// Completed reports whether a completion date is recorded.
func (r *Record) Completed() bool { return r.CompletedAt != nil }

// Overdue reports lateness: completed past the due date, or still open
// past the due date. Overdue drives escalation and revocation, never
// prerequisite blocking; a late completion still raises the passed fact.
func (r *Record) Overdue(now time.Time) bool {
	if r.CompletedAt != nil {
		return r.CompletedAt.After(r.DueAt)
	}
	return now.After(r.DueAt)
}

// Facts derives the training facts for a set of records at one instant.
func Facts(records []*Record, now time.Time) domain.FactSet {
	facts := make(domain.FactSet, len(records)*2)
	for _, r := range records {
		if r.Completed() {
			facts[domain.PassedFact(r.CourseCode)] = true
		}
		if r.Overdue(now) {
			facts[domain.OverdueFact(r.CourseCode)] = true
		}
	}
	return facts
}
