// Package provisioning is the state machine at the center of the
// engine. Every request moves through explicit states, every transition
// re-invokes the eligibility evaluator, and every mutation is guarded by
// an optimistic version.
package provisioning

import (
	"time"

	"onboard/internal/eligibility"
	"onboard/pkg/domain"
	dErrors "onboard/pkg/domain-errors"
)

// RequestType distinguishes the request families that share the state
// machine.
type RequestType string

const (
	TypeAccess RequestType = "access"
	TypeDevice RequestType = "device"
	TypeGroup  RequestType = "group"
	TypeWFH    RequestType = "wfh"
)

// State is the provisioning lifecycle state.
type State string

const (
	StateDraft           State = "Draft"
	StateEligible        State = "Eligible"
	StatePendingApproval State = "PendingApproval"
	StateFulfilling      State = "Fulfilling"
	StateGranted         State = "Granted"
	StateBlocked         State = "Blocked"
	StateRevoked         State = "Revoked"
	StateFailed          State = "Failed"
)

// Terminal reports whether the state admits no further transitions.
// Blocked is deliberately absent: it holds until a re-evaluation is
// triggered. Granted is terminal for the forward path but still admits
// revocation (department move) and rehire reopening.
func (s State) Terminal() bool {
	return s == StateRevoked || s == StateFailed
}

// Open reports whether a fact change should re-evaluate a request in
// this state.
func (s State) Open() bool {
	switch s {
	case StateDraft, StateEligible, StatePendingApproval, StateBlocked:
		return true
	}
	return false
}

// legal transitions, keyed by source state.
var transitions = map[State][]State{
	StateDraft:           {StateEligible, StatePendingApproval, StateBlocked, StateRevoked},
	StateEligible:        {StateFulfilling, StatePendingApproval, StateBlocked, StateRevoked},
	StatePendingApproval: {StateEligible, StateFulfilling, StateBlocked, StateRevoked},
	StateBlocked:         {StateEligible, StatePendingApproval, StateBlocked, StateRevoked},
	StateFulfilling:      {StateGranted, StateFailed, StateBlocked, StateRevoked},
	// Granted admits revocation and the rehire reopening path only.
	StateGranted: {StateRevoked, StateEligible},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Request is the aggregate tracked by the state machine.
//
// Invariants:
//   - Version increases by exactly one on every committed mutation; a
//     writer presenting a stale version gets Conflict{expected, actual}
//   - Reasons mirrors the last Blocked decision, Approvers the last
//     PendingApproval decision; both are cleared on other states
//   - Rejected is a one-way marker: a rejected request never re-enters
//     evaluation, a fresh request must be created instead
type Request struct {
	ID         domain.RequestID  `json:"id"`
	EmployeeID domain.EmployeeID `json:"employee_id"`
	Type       RequestType       `json:"type"`
	Item       string            `json:"item"`
	// GroupScope is the single group this request covers; group requests
	// fan out one request per group so each advances independently.
	GroupScope string `json:"group_scope,omitempty"`
	// Quantity applies to device requests.
	Quantity  int                   `json:"quantity,omitempty"`
	WFHMode   eligibility.WFHMode   `json:"wfh_mode,omitempty"`
	State     State                 `json:"state"`
	Version   int64                 `json:"version"`
	Reasons   []string              `json:"reasons,omitempty"`
	Approvers []domain.ApproverRole `json:"approvers,omitempty"`
	// Degraded marks a Fulfilling request parked behind a fallback
	// ticket.
	Degraded bool   `json:"degraded,omitempty"`
	TicketID string `json:"ticket_id,omitempty"`
	Rejected bool   `json:"rejected,omitempty"`
	// StockRemaining snapshots the ledger right after a successful device
	// reservation.
	StockRemaining *int      `json:"stock_remaining,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewRequest builds a Draft request.
func NewRequest(employeeID domain.EmployeeID, reqType RequestType, item string, now time.Time) *Request {
	return &Request{
		ID:         domain.NewRequestID(),
		EmployeeID: employeeID,
		Type:       reqType,
		Item:       item,
		State:      StateDraft,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Transition moves the request to a new state, validating the edge.
// Callers hold the store lock; version bumping happens in the store.
func (r *Request) Transition(to State, now time.Time) error {
	if r.State == to && to != StateBlocked {
		return nil
	}
	if !CanTransition(r.State, to) {
		return dErrors.New(dErrors.CodeConflict, "illegal transition from "+string(r.State)+" to "+string(to))
	}
	r.State = to
	r.UpdatedAt = now
	if to != StateBlocked {
		r.Reasons = nil
	}
	if to != StatePendingApproval {
		r.Approvers = nil
	}
	return nil
}

func (r *Request) clone() *Request {
	out := *r
	out.Reasons = append([]string(nil), r.Reasons...)
	out.Approvers = append([]domain.ApproverRole(nil), r.Approvers...)
	if r.StockRemaining != nil {
		n := *r.StockRemaining
		out.StockRemaining = &n
	}
	return &out
}
