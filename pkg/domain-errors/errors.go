// Package domainerrors defines the coded error type returned by domain
// services. Codes are the machine-readable contract with the
// conversational layer; the engine never emits free-text explanations.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a domain error for the API boundary.
type Code string

const (
	// CodeBadRequest covers malformed requests that are not tied to a
	// single named field (use CodeValidation for those).
	CodeBadRequest Code = "bad_request"
	// CodeValidation is malformed or missing required input, always
	// rejected and never guessed. Details carry the offending field.
	CodeValidation Code = "validation_error"
	// CodeDuplicateConflict is a data-quality collision surfaced for human
	// resolution. Details carry the colliding id and differing fields.
	CodeDuplicateConflict Code = "duplicate_conflict"
	// CodeNotFound is an unknown entity id.
	CodeNotFound Code = "not_found"
	// CodeConflict is an optimistic-concurrency version mismatch, or a
	// state transition that is not legal from the current state. The
	// caller retries with fresh state.
	CodeConflict Code = "conflict"
	// CodeOutOfStock is an explicit reservation failure against a zero
	// stock ledger entry. The ledger never goes negative.
	CodeOutOfStock Code = "out_of_stock"
	// CodeUnauthorized is a missing or invalid actor credential.
	CodeUnauthorized Code = "unauthorized"
	// CodeInvariantViolation marks a broken domain invariant; these are
	// programming or data errors, not expected business outcomes.
	CodeInvariantViolation Code = "invariant_violation"
	// CodeInternal is everything the caller cannot act on.
	CodeInternal Code = "internal"
)

// Error is the coded domain error. Details are optional structured fields
// rendered into the JSON envelope (e.g. field name, colliding id).
type Error struct {
	Code    Code
	Message string
	Details map[string]any
	err     error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.err }

// New builds a coded error with no cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, err: err}
}

// WithDetail adds one structured detail field and returns the error for
// chaining.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// Validation builds a CodeValidation error naming the offending field.
func Validation(field, message string) *Error {
	return New(CodeValidation, message).WithDetail("field", field)
}

// Duplicate builds a CodeDuplicateConflict error referencing the existing
// record and the fields that collided (e.g. "email", "phone").
func Duplicate(existingID string, fields []string) *Error {
	return New(CodeDuplicateConflict, "record collides with an existing employee").
		WithDetail("existing_id", existingID).
		WithDetail("fields", fields)
}

// VersionConflict builds a CodeConflict error for optimistic-concurrency
// failures.
func VersionConflict(expected, actual int64) *Error {
	return New(CodeConflict, "version changed concurrently; retry with fresh state").
		WithDetail("expected_version", expected).
		WithDetail("actual_version", actual)
}

// HasCode reports whether err (or anything it wraps) carries the code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// DetailsOf extracts the structured details from err, if any.
func DetailsOf(err error) map[string]any {
	var de *Error
	if errors.As(err, &de) {
		return de.Details
	}
	return nil
}

// ToHTTPStatus maps codes to HTTP statuses for the transport layer.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest, CodeValidation:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeDuplicateConflict, CodeOutOfStock, CodeInvariantViolation:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
