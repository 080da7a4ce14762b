// Package fulfillment talks to external systems: account creation,
// device reservation, ticketing, and notifications. All of it can fail;
// the runner classifies failures and keeps the engine's promises about
// retries and fallbacks.
package fulfillment

import (
	"context"
	"errors"
	"fmt"

	"onboard/pkg/domain"
)

// Job is one outbound fulfillment action derived from a provisioning
// request.
type Job struct {
	RequestID  domain.RequestID
	EmployeeID domain.EmployeeID
	Item       string
	// Quantity is set for device reservations, zero otherwise.
	Quantity int
	// Revoke inverts the action: tear down instead of create.
	Revoke bool
}

// Adapter provisions and revokes access in the external system.
type Adapter interface {
	CreateAccount(ctx context.Context, job Job) error
	RevokeAccount(ctx context.Context, job Job) error
}

// Ticket is a fallback work item handed to humans when automation gives
// up.
type Ticket struct {
	RequestID  domain.RequestID
	EmployeeID domain.EmployeeID
	Item       string
	Summary    string
}

// Ticketer files fallback tickets.
type Ticketer interface {
	CreateTicket(ctx context.Context, ticket Ticket) (string, error)
}

// Notifier alerts HR/IT channels about degraded requests.
type Notifier interface {
	Notify(ctx context.Context, audience, message string) error
}

// retryableError marks transient failures worth retrying.
type retryableError struct{ err error }

func (e *retryableError) Error() string { return fmt.Sprintf("retryable: %v", e.err) }
func (e *retryableError) Unwrap() error { return e.err }

// fatalError marks permanent failures; retrying cannot help.
type fatalError struct{ err error }

func (e *fatalError) Error() string { return fmt.Sprintf("fatal: %v", e.err) }
func (e *fatalError) Unwrap() error { return e.err }

// Retryable wraps a transient adapter failure.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

// Fatal wraps a permanent adapter failure.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

// IsFatal reports whether err is marked permanent. Everything else,
// including unclassified errors, is treated as transient; only an
// explicit Fatal stops the retry loop early.
func IsFatal(err error) bool {
	var fatal *fatalError
	return errors.As(err, &fatal)
}
