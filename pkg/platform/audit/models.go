// Package audit is the append-only ledger of every decision and
// transition in the engine. Entries are immutable once appended and are
// the sole mechanism for reconstructing history, including for GDPR
// erasure requests.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Action names the event being recorded.
type Action string

const (
	// Directory events
	ActionEmployeeIngested Action = "employee_ingested"
	ActionEmployeePatched  Action = "employee_patched"
	ActionEmployeeErased   Action = "employee_erased"
	ActionEmployeeScrubbed Action = "employee_scrubbed"
	ActionEmployeeRehired  Action = "employee_rehired"
	ActionEmployeeOffboard Action = "employee_deactivated"
	ActionDuplicateFlagged Action = "duplicate_flagged"

	// Approval events
	ActionApprovalCreated  Action = "approval_created"
	ActionApprovalResolved Action = "approval_resolved"
	ActionApprovalRerouted Action = "approval_rerouted"

	// Provisioning events
	ActionRequestTransition Action = "request_transition"
	ActionFactChanged       Action = "fact_changed"
	ActionDepartmentMoved   Action = "department_moved"

	// Fulfillment events
	ActionStockReserved    Action = "stock_reserved"
	ActionFallbackTicket   Action = "fallback_ticket_created"
	ActionRevokeIssued     Action = "revoke_issued"
	ActionTrainingRecorded Action = "training_completion_recorded"
)

// Entry is one immutable ledger record. SubjectID is the employee or
// request the event is about; Actor is who caused it ("system" for
// engine-internal transitions).
type Entry struct {
	ID        uuid.UUID `json:"id"`
	SubjectID string    `json:"subject_id"`
	Action    Action    `json:"action"`
	OldState  string    `json:"old_state,omitempty"`
	NewState  string    `json:"new_state,omitempty"`
	Actor     string    `json:"actor"`
	Reason    string    `json:"reason,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Store is the persistence boundary. Append-only: no update or delete
// exists on purpose.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	ListBySubject(ctx context.Context, subjectID string) ([]Entry, error)
	ListBySubjectRange(ctx context.Context, subjectID string, from, to time.Time) ([]Entry, error)
}
