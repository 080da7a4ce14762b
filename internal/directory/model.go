// Package directory holds normalized employee records with
// identity-resolution and lifecycle handling. Requests reference
// employees but never own them; anonymizing an employee leaves its
// request history intact.
package directory

import (
	"time"

	"onboard/pkg/domain"
)

// Status is the employee lifecycle state. Records are never hard-deleted;
// offboarding deactivates, privacy erasure anonymizes in place.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Location is the work location used for phone normalization defaults
// and timezone-aware scheduling by callers.
type Location struct {
	City     string `json:"city"`
	Country  string `json:"country"`
	Timezone string `json:"timezone"`
}

// Employee is the normalized directory record.
//
// Invariants:
//   - (Email, Phone) pair is unique across active employees; collisions
//     are flagged as DuplicateConflict, never silently merged
//   - ID is HRIS-assigned and stable for the row's lifetime, including
//     through anonymization and rehire
//   - StartDate is a date (midnight UTC); probation windows derive from it
type Employee struct {
	ID             domain.EmployeeID     `json:"id"`
	LegalName      string                `json:"legal_name"`
	PreferredName  string                `json:"preferred_name"`
	NameSlug       string                `json:"name_slug"`
	Email          string                `json:"email"`
	Phone          string                `json:"phone"`
	Department     string                `json:"department"`
	Role           string                `json:"role"`
	EmploymentType domain.EmploymentType `json:"employment_type"`
	ManagerID      *domain.EmployeeID    `json:"manager_id,omitempty"`
	StartDate      time.Time             `json:"start_date"`
	Location       Location              `json:"location"`
	DevicePrefs    []string              `json:"device_preferences,omitempty"`
	ShirtSize      string                `json:"shirt_size,omitempty"`
	Status         Status                `json:"status"`
	Anonymized     bool                  `json:"anonymized,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

func (e *Employee) Active() bool { return e.Status == StatusActive }

// Anonymize scrubs identifying fields in place. The row and its id
// survive so historical requests and audit entries keep a stable subject.
func (e *Employee) Anonymize(now time.Time) {
	e.LegalName = "redacted"
	e.PreferredName = ""
	e.NameSlug = ""
	e.Email = ""
	e.Phone = ""
	e.ShirtSize = ""
	e.DevicePrefs = nil
	e.Location = Location{}
	e.Anonymized = true
	e.Status = StatusInactive
	e.UpdatedAt = now
}

func (e *Employee) clone() *Employee {
	out := *e
	if e.ManagerID != nil {
		m := *e.ManagerID
		out.ManagerID = &m
	}
	out.DevicePrefs = append([]string(nil), e.DevicePrefs...)
	return &out
}

// IngestRecord is the raw HRIS payload before normalization. All fields
// are strings; the service validates and normalizes at the boundary.
type IngestRecord struct {
	ID             string   `json:"id"`
	LegalName      string   `json:"legal_name"`
	PreferredName  string   `json:"preferred_name"`
	Email          string   `json:"email"`
	Phone          string   `json:"phone"`
	Department     string   `json:"department"`
	Role           string   `json:"role"`
	EmploymentType string   `json:"employment_type"`
	ManagerID      string   `json:"manager_id"`
	StartDate      string   `json:"start_date"`
	Location       Location `json:"location"`
	DevicePrefs    []string `json:"device_preferences"`
	ShirtSize      string   `json:"shirt_size"`
}

// FieldPatch is a field-level upsert. Nil pointers leave fields
// untouched; date fields are ISO-8601 strings validated before apply.
type FieldPatch struct {
	PreferredName *string   `json:"preferred_name,omitempty"`
	Email         *string   `json:"email,omitempty"`
	Phone         *string   `json:"phone,omitempty"`
	Department    *string   `json:"department,omitempty"`
	Role          *string   `json:"role,omitempty"`
	ManagerID     *string   `json:"manager_id,omitempty"`
	StartDate     *string   `json:"start_date,omitempty"`
	ShirtSize     *string   `json:"shirt_size,omitempty"`
	DevicePrefs   *[]string `json:"device_preferences,omitempty"`
}
