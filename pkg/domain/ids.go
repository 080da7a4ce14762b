// Package domain holds the shared vocabulary of the provisioning engine:
// typed identifiers, employment types, approver roles, and fact names.
// Keeping these in one small package lets every layer agree on types
// without importing business logic.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "onboard/pkg/domain-errors"
)

// EmployeeID is the HRIS-assigned identifier (e.g. "E1001"). The engine
// never mints these itself; they arrive on ingestion and stay stable for
// the lifetime of the record, including through anonymization.
type EmployeeID string

// ParseEmployeeID validates an HRIS identifier at trust boundaries.
// IDs must be non-empty, at most 64 characters, and free of whitespace.
func ParseEmployeeID(s string) (EmployeeID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.Validation("employee_id", "employee id must not be empty")
	}
	if len(s) > 64 {
		return "", dErrors.Validation("employee_id", "employee id must be 64 characters or less")
	}
	if strings.ContainsAny(s, " \t\n") {
		return "", dErrors.Validation("employee_id", "employee id must not contain whitespace")
	}
	return EmployeeID(s), nil
}

func (id EmployeeID) String() string { return string(id) }

// RequestID identifies a provisioning request (access, device, or WFH).
// Minted by the engine as a UUID.
type RequestID uuid.UUID

func NewRequestID() RequestID { return RequestID(uuid.New()) }

// ParseRequestID rejects empty, malformed, and nil UUIDs.
func ParseRequestID(s string) (RequestID, error) {
	u, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return RequestID{}, dErrors.Validation("request_id", "request id must be a valid UUID")
	}
	if u == uuid.Nil {
		return RequestID{}, dErrors.Validation("request_id", "request id must not be the nil UUID")
	}
	return RequestID(u), nil
}

func (id RequestID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id RequestID) String() string { return uuid.UUID(id).String() }

// MarshalText renders the id in canonical UUID form so JSON and log
// output stay readable.
func (id RequestID) MarshalText() ([]byte, error) {
	return []byte(uuid.UUID(id).String()), nil
}

func (id *RequestID) UnmarshalText(b []byte) error {
	parsed, err := ParseRequestID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
