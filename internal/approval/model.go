// Package approval manages ApprovalTasks: ordered per-role approval
// slots attached to a provisioning request. Tasks resolve only when
// every required role approves; a single rejection is terminal for the
// parent request.
package approval

import (
	"time"

	"onboard/pkg/domain"
	dErrors "onboard/pkg/domain-errors"
)

// SlotStatus is the per-role decision state.
type SlotStatus string

const (
	SlotPending  SlotStatus = "pending"
	SlotApproved SlotStatus = "approved"
	SlotRejected SlotStatus = "rejected"
)

// Slot is one required role in the approval route. Target is the
// concrete approver the slot points at; for the Manager role that is the
// employee's manager id and it is re-targeted on manager change.
type Slot struct {
	Role      domain.ApproverRole `json:"role"`
	Status    SlotStatus          `json:"status"`
	Target    string              `json:"target,omitempty"`
	DecidedBy string              `json:"decided_by,omitempty"`
	DecidedAt time.Time           `json:"decided_at,omitzero"`
	Comment   string              `json:"comment,omitempty"`
}

// TaskStatus is the aggregate over all slots.
type TaskStatus string

const (
	TaskPending  TaskStatus = "pending"
	TaskResolved TaskStatus = "resolved"
	TaskRejected TaskStatus = "rejected"
)

// Task is the approval workflow state for one provisioning request.
//
// Invariants:
//   - Slots is the ordered route from the catalog at creation time; the
//     set of roles never changes after creation
//   - Status is derived: resolved iff every slot approved, rejected iff
//     any slot rejected
//   - recorded decisions survive rerouting; only pending Manager slots
//     are re-targeted
type Task struct {
	RequestID  domain.RequestID  `json:"request_id"`
	EmployeeID domain.EmployeeID `json:"employee_id"`
	Item       string            `json:"item"`
	// GroupScope is set for dedicated Security approvals over one
	// admin-tier group; empty for ordinary item approvals.
	GroupScope string     `json:"group_scope,omitempty"`
	Slots      []Slot     `json:"slots"`
	Status     TaskStatus `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// NewTask builds a pending task with one slot per required role, in
// route order. The Manager slot targets the employee's current manager.
func NewTask(requestID domain.RequestID, employeeID domain.EmployeeID, item string, roles []domain.ApproverRole, managerID *domain.EmployeeID, now time.Time) *Task {
	slots := make([]Slot, 0, len(roles))
	for _, role := range roles {
		slot := Slot{Role: role, Status: SlotPending}
		if role == domain.RoleManager && managerID != nil {
			slot.Target = string(*managerID)
		}
		slots = append(slots, slot)
	}
	return &Task{
		RequestID:  requestID,
		EmployeeID: employeeID,
		Item:       item,
		Slots:      slots,
		Status:     TaskPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Resolved reports whether every required role has approved.
func (t *Task) Resolved() bool { return t.Status == TaskResolved }

// Rejected reports whether any required role has rejected.
func (t *Task) Rejected() bool { return t.Status == TaskRejected }

func (t *Task) slot(role domain.ApproverRole) *Slot {
	for i := range t.Slots {
		if t.Slots[i].Role == role {
			return &t.Slots[i]
		}
	}
	return nil
}

// CanDecide validates a decision attempt without applying it.
func (t *Task) CanDecide(role domain.ApproverRole) error {
	if t.Status != TaskPending {
		return dErrors.New(dErrors.CodeConflict, "approval task is already "+string(t.Status))
	}
	slot := t.slot(role)
	if slot == nil {
		return dErrors.New(dErrors.CodeNotFound, "role is not part of this approval route")
	}
	if slot.Status != SlotPending {
		return dErrors.New(dErrors.CodeConflict, "role has already decided")
	}
	return nil
}

// Decide records one role's verdict and rolls up the task status.
// Callers validate with CanDecide first.
func (t *Task) Decide(role domain.ApproverRole, approve bool, actor, comment string, now time.Time) {
	slot := t.slot(role)
	if approve {
		slot.Status = SlotApproved
	} else {
		slot.Status = SlotRejected
	}
	slot.DecidedBy = actor
	slot.DecidedAt = now
	slot.Comment = comment
	t.UpdatedAt = now

	if !approve {
		t.Status = TaskRejected
		return
	}
	for _, s := range t.Slots {
		if s.Status != SlotApproved {
			return
		}
	}
	t.Status = TaskResolved
}

// Reroute re-targets still-pending Manager slots at the new manager.
// Recorded decisions are untouched. Returns true when anything changed.
func (t *Task) Reroute(newManagerID domain.EmployeeID, now time.Time) bool {
	changed := false
	for i := range t.Slots {
		s := &t.Slots[i]
		if s.Role == domain.RoleManager && s.Status == SlotPending && s.Target != string(newManagerID) {
			s.Target = string(newManagerID)
			changed = true
		}
	}
	if changed {
		t.UpdatedAt = now
	}
	return changed
}

func (t *Task) clone() *Task {
	out := *t
	out.Slots = append([]Slot(nil), t.Slots...)
	return &out
}
