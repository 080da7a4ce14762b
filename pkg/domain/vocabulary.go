package domain

import "strings"

// EmploymentType distinguishes the contractual relationship. Policy
// constraints key off this (e.g. source-control access for contractors).
type EmploymentType string

const (
	EmploymentFTE        EmploymentType = "FTE"
	EmploymentContractor EmploymentType = "Contractor"
	EmploymentIntern     EmploymentType = "Intern"
)

// Valid reports whether the value is one of the known employment types.
func (t EmploymentType) Valid() bool {
	switch t {
	case EmploymentFTE, EmploymentContractor, EmploymentIntern:
		return true
	}
	return false
}

// ApproverRole names a slot in an approval route. Routes are ordered sets
// of roles; the Manager slot is re-targeted when an employee's manager
// changes.
type ApproverRole string

const (
	RoleManager  ApproverRole = "Manager"
	RoleHR       ApproverRole = "HR"
	RoleSecurity ApproverRole = "Security"
	RoleIT       ApproverRole = "IT"
)

// Fact is a named boolean signal about an employee, supplied by the
// directory, the training record, or lifecycle events. Facts are the only
// dynamic input to the eligibility evaluator.
type Fact string

const (
	FactHRISCreated                Fact = "HRIS_created"
	FactNDASigned                  Fact = "NDA_signed"
	FactCredentialRotationRequired Fact = "credential_rotation_required"
)

// PassedFact derives the completion fact name for a course code, e.g.
// "Security101_passed". Lateness does not negate it.
func PassedFact(courseCode string) Fact {
	return Fact(strings.TrimSpace(courseCode) + "_passed")
}

// OverdueFact derives the lateness fact name for a course code. It drives
// escalation and revocation, not prerequisite blocking.
func OverdueFact(courseCode string) Fact {
	return Fact(strings.TrimSpace(courseCode) + "_overdue")
}

// FactSet is the evaluator's view of all known facts for one employee.
// Absent keys are treated as false.
type FactSet map[Fact]bool

// Has reports whether the fact is present and true.
func (s FactSet) Has(f Fact) bool { return s[f] }

// Merge returns a new set containing both inputs; values in other win.
func (s FactSet) Merge(other FactSet) FactSet {
	out := make(FactSet, len(s)+len(other))
	for k, v := range s {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}
