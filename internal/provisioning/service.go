package provisioning

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"onboard/internal/approval"
	"onboard/internal/catalog"
	"onboard/internal/directory"
	"onboard/internal/eligibility"
	"onboard/internal/fulfillment"
	"onboard/internal/platform/metrics"
	"onboard/internal/training"
	"onboard/pkg/domain"
	dErrors "onboard/pkg/domain-errors"
	"onboard/pkg/platform/audit"
	"onboard/pkg/platform/sentinel"
	"onboard/pkg/requestcontext"
)

// Store is the persistence boundary for provisioning requests.
type Store interface {
	Create(ctx context.Context, r *Request) error
	FindByID(ctx context.Context, id domain.RequestID) (*Request, error)
	ListByEmployee(ctx context.Context, employeeID domain.EmployeeID) ([]*Request, error)
	Apply(ctx context.Context, id domain.RequestID, expectedVersion int64, apply func(*Request) error) (*Request, error)
}

// EmployeeReader is the slice of the directory the machine needs.
type EmployeeReader interface {
	FindByID(ctx context.Context, id domain.EmployeeID) (*directory.Employee, error)
}

// Service orchestrates the provisioning state machine. Every trigger --
// creation, fact change, approval resolution, fulfillment callback --
// funnels through evaluateAndAdvance so decisions are never cached.
type Service struct {
	store     Store
	catalogs  *catalog.Store
	employees EmployeeReader
	approvals *approval.Manager
	training  *training.Service
	facts     *FactLedger
	runner    *fulfillment.Runner
	ledger    fulfillment.Ledger
	audit     *audit.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewService(
	store Store,
	catalogs *catalog.Store,
	employees EmployeeReader,
	approvals *approval.Manager,
	trainingSvc *training.Service,
	facts *FactLedger,
	runner *fulfillment.Runner,
	ledger fulfillment.Ledger,
	auditPub *audit.Publisher,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Service {
	return &Service{
		store:     store,
		catalogs:  catalogs,
		employees: employees,
		approvals: approvals,
		training:  trainingSvc,
		facts:     facts,
		runner:    runner,
		ledger:    ledger,
		audit:     auditPub,
		metrics:   m,
		logger:    logger,
	}
}

// CreateInput is one inbound provisioning request before fan-out.
type CreateInput struct {
	EmployeeID domain.EmployeeID
	Type       RequestType
	Item       string
	Groups     []string
	Quantity   int
	WFHMode    eligibility.WFHMode
}

// Create validates the input, fans it out into independent requests
// (one per group scope, one per device line), and runs the first
// evaluation on each.
func (s *Service) Create(ctx context.Context, in CreateInput) ([]*Request, error) {
	emp, err := s.activeEmployee(ctx, in.EmployeeID)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)

	drafts, err := s.fanOut(in, emp, now)
	if err != nil {
		return nil, err
	}

	out := make([]*Request, 0, len(drafts))
	for _, draft := range drafts {
		if err := s.store.Create(ctx, draft); err != nil {
			return nil, err
		}
		if err := s.audit.Emit(ctx, audit.Entry{
			SubjectID: string(draft.EmployeeID),
			Action:    audit.ActionRequestTransition,
			NewState:  string(StateDraft),
			Reason:    draft.Item,
			RequestID: draft.ID.String(),
		}); err != nil {
			return nil, err
		}
		advanced, err := s.evaluateAndAdvance(ctx, draft.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, advanced)
	}
	return out, nil
}

// fanOut expands one inbound request into independent drafts.
func (s *Service) fanOut(in CreateInput, emp *directory.Employee, now time.Time) ([]*Request, error) {
	cat := s.catalogs.Snapshot()

	switch in.Type {
	case TypeAccess:
		if in.Item == "" {
			return nil, dErrors.Validation("item", "access requests need an item name")
		}
		return []*Request{NewRequest(emp.ID, TypeAccess, in.Item, now)}, nil

	case TypeDevice:
		if in.Item == "" {
			return nil, dErrors.Validation("item", "device requests need an item name")
		}
		r := NewRequest(emp.ID, TypeDevice, in.Item, now)
		r.Quantity = in.Quantity
		if r.Quantity <= 0 {
			r.Quantity = 1
		}
		return []*Request{r}, nil

	case TypeGroup:
		if in.Item == "" {
			return nil, dErrors.Validation("item", "group requests need the group item name")
		}
		if len(in.Groups) == 0 {
			return nil, dErrors.Validation("groups", "group requests need at least one group")
		}
		out := make([]*Request, 0, len(in.Groups))
		for _, g := range in.Groups {
			r := NewRequest(emp.ID, TypeGroup, in.Item, now)
			r.GroupScope = g
			out = append(out, r)
		}
		return out, nil

	case TypeWFH:
		if in.WFHMode != eligibility.WFHModePermanent && in.WFHMode != eligibility.WFHModeTemporary {
			return nil, dErrors.Validation("wfh_mode", "wfh_mode must be permanent or temporary")
		}
		item := cat.WFHItem()
		if item == "" {
			return nil, dErrors.New(dErrors.CodeBadRequest, "catalog offers no work-from-home arrangement")
		}
		r := NewRequest(emp.ID, TypeWFH, item, now)
		r.WFHMode = in.WFHMode
		return []*Request{r}, nil
	}
	return nil, dErrors.Validation("type", "unknown request type")
}

// evaluateAndAdvance re-runs the evaluator for one request and applies
// the resulting transition. It is the single funnel for every trigger.
func (s *Service) evaluateAndAdvance(ctx context.Context, id domain.RequestID) (*Request, error) {
	req, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "request not found")
		}
		return nil, err
	}
	// Granted requests re-enter evaluation only through the explicit
	// rehire reopening, never through a generic trigger.
	if req.Rejected || req.State.Terminal() || req.State == StateFulfilling || req.State == StateGranted {
		return req, nil
	}

	decision, err := s.decide(ctx, req)
	if err != nil {
		return nil, err
	}

	switch decision.Outcome {
	case eligibility.OutcomeBlocked:
		blocked, err := s.transition(ctx, req, StateBlocked, func(r *Request) {
			r.Reasons = decision.Reasons
		})
		if err != nil {
			return nil, err
		}
		if req.GroupScope != "" && hasReason(decision.Reasons, eligibility.ReasonAdminGroup) {
			// The dedicated Security approval that can unblock this group
			// is opened eagerly so an approver has something to act on.
			if _, err := s.approvals.CreateForAdminGroup(ctx, req.ID, req.EmployeeID, req.Item, req.GroupScope); err != nil {
				return nil, err
			}
		}
		return blocked, nil

	case eligibility.OutcomePendingApproval:
		if _, err := s.approvals.CreateForRequest(ctx, req.ID, req.EmployeeID, req.Item, decision.Approvers, s.managerOf(ctx, req.EmployeeID)); err != nil {
			return nil, err
		}
		return s.transition(ctx, req, StatePendingApproval, func(r *Request) {
			r.Approvers = decision.Approvers
		})

	default:
		eligible := req
		if req.State != StateEligible {
			eligible, err = s.transition(ctx, req, StateEligible, nil)
			if err != nil {
				return nil, err
			}
		}
		return s.fulfill(ctx, eligible)
	}
}

// decide assembles the evaluator input from the live stores and times
// the call.
func (s *Service) decide(ctx context.Context, req *Request) (eligibility.Decision, error) {
	cat := s.catalogs.Snapshot()

	emp, err := s.employees.FindByID(ctx, req.EmployeeID)
	if err != nil {
		return eligibility.Decision{}, err
	}
	trainingFacts, err := s.training.FactsFor(ctx, req.EmployeeID)
	if err != nil {
		return eligibility.Decision{}, err
	}
	facts := s.facts.For(ctx, req.EmployeeID).Merge(trainingFacts)

	resolved := false
	if task, err := s.approvals.TaskForRequest(ctx, req.ID); err == nil {
		resolved = task.Resolved()
	} else if !dErrors.HasCode(err, dErrors.CodeNotFound) {
		return eligibility.Decision{}, err
	}
	secGroups, err := s.approvals.SecurityApprovedGroups(ctx, req.EmployeeID)
	if err != nil {
		return eligibility.Decision{}, err
	}

	in := eligibility.Input{
		Employee: eligibility.EmployeeSnapshot{
			ID:             emp.ID,
			EmploymentType: emp.EmploymentType,
			StartDate:      emp.StartDate,
		},
		Item:                   req.Item,
		Facts:                  facts,
		ApprovalResolved:       resolved,
		SecurityApprovedGroups: secGroups,
		WFHMode:                req.WFHMode,
		Now:                    requestcontext.Now(ctx),
	}

	started := time.Now()
	var decision eligibility.Decision
	if req.GroupScope != "" {
		decision = eligibility.EvaluateGroups(cat, in, []string{req.GroupScope})[0].Decision
	} else {
		decision = eligibility.Evaluate(cat, in)
	}
	s.metrics.ObserveEvaluate(time.Since(started).Seconds())
	s.metrics.IncDecision(string(decision.Outcome))
	return decision, nil
}

// fulfill drives an Eligible request through stock reservation and the
// external adapter. No store lock is held across the adapter call; the
// callback applies against the version captured when fulfillment began.
func (s *Service) fulfill(ctx context.Context, req *Request) (*Request, error) {
	if req.Type == TypeDevice {
		remaining, err := s.ledger.Reserve(ctx, req.Item, req.Quantity)
		if err != nil {
			if errors.Is(err, sentinel.ErrOutOfStock) {
				return s.transition(ctx, req, StateBlocked, func(r *Request) {
					r.Reasons = []string{"out_of_stock"}
				})
			}
			return nil, err
		}
		if err := s.audit.Emit(ctx, audit.Entry{
			SubjectID: string(req.EmployeeID),
			Action:    audit.ActionStockReserved,
			Reason:    req.Item,
			RequestID: req.ID.String(),
		}); err != nil {
			return nil, err
		}
		req, err = s.transition(ctx, req, StateFulfilling, func(r *Request) {
			r.StockRemaining = &remaining
		})
		if err != nil {
			return nil, err
		}
	} else {
		var err error
		req, err = s.transition(ctx, req, StateFulfilling, nil)
		if err != nil {
			return nil, err
		}
	}

	outcome, ticketID, runErr := s.runner.Run(ctx, fulfillment.Job{
		RequestID:  req.ID,
		EmployeeID: req.EmployeeID,
		Item:       req.Item,
		Quantity:   req.Quantity,
	})

	switch outcome {
	case fulfillment.OutcomeOK:
		granted, err := s.transition(ctx, req, StateGranted, func(r *Request) {
			r.Degraded = false
			r.TicketID = ""
		})
		if err != nil {
			// The request moved underneath the callback (revoked or
			// blocked while the adapter ran). Surface the conflict; a
			// compensating revoke is the operator's call.
			s.logger.Warn("fulfillment callback lost version race",
				"request_id", req.ID.String(),
				"error", err,
			)
			return nil, err
		}
		return granted, nil

	case fulfillment.OutcomeDegraded:
		return s.store.Apply(ctx, req.ID, req.Version, func(r *Request) error {
			// Still Fulfilling; parked behind the fallback ticket.
			r.Degraded = true
			r.TicketID = ticketID
			r.UpdatedAt = requestcontext.Now(ctx)
			return nil
		})

	default:
		failed, err := s.transition(ctx, req, StateFailed, nil)
		if err != nil {
			return nil, err
		}
		s.logger.Error("fulfillment failed permanently",
			"request_id", req.ID.String(),
			"item", req.Item,
			"error", runErr,
		)
		return failed, nil
	}
}

// ResolveApproval records one approver's verdict and advances the
// request accordingly. A rejection is terminal: the request blocks with
// a rejection marker and never re-enters evaluation.
func (s *Service) ResolveApproval(ctx context.Context, requestID domain.RequestID, role domain.ApproverRole, approve bool, comment string) (*Request, error) {
	req, err := s.store.FindByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "request not found")
		}
		return nil, err
	}

	task, err := s.approvals.Decide(ctx, requestID, role, approve, comment)
	if err != nil {
		return nil, err
	}

	switch {
	case task.Rejected():
		return s.transition(ctx, req, StateBlocked, func(r *Request) {
			r.Reasons = []string{"approval_rejected"}
			r.Rejected = true
		})
	case task.Resolved():
		return s.evaluateAndAdvance(ctx, requestID)
	default:
		// Route partially approved; nothing to advance yet.
		return req, nil
	}
}

// Cancel withdraws a request. Allowed outright in Draft, Eligible, and
// PendingApproval; a Fulfilling request needs a compensating revoke
// against the external system first.
func (s *Service) Cancel(ctx context.Context, requestID domain.RequestID) (*Request, error) {
	req, err := s.store.FindByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "request not found")
		}
		return nil, err
	}

	switch req.State {
	case StateDraft, StateEligible, StatePendingApproval:
		return s.transition(ctx, req, StateRevoked, func(r *Request) {
			r.Reasons = []string{"cancelled"}
		})

	case StateFulfilling:
		if err := s.revokeExternally(ctx, req); err != nil {
			return nil, err
		}
		return s.transition(ctx, req, StateRevoked, func(r *Request) {
			r.Reasons = []string{"cancelled"}
		})

	default:
		return nil, dErrors.New(dErrors.CodeConflict, "request in state "+string(req.State)+" cannot be cancelled")
	}
}

// Status returns the request and its approval task, if one exists.
func (s *Service) Status(ctx context.Context, requestID domain.RequestID) (*Request, *approval.Task, error) {
	req, err := s.store.FindByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil, dErrors.New(dErrors.CodeNotFound, "request not found")
		}
		return nil, nil, err
	}
	task, err := s.approvals.TaskForRequest(ctx, requestID)
	if err != nil {
		if !dErrors.HasCode(err, dErrors.CodeNotFound) {
			return nil, nil, err
		}
		task = nil
	}
	return req, task, nil
}

// ListByEmployee returns the employee's requests, oldest first.
func (s *Service) ListByEmployee(ctx context.Context, employeeID domain.EmployeeID) ([]*Request, error) {
	return s.store.ListByEmployee(ctx, employeeID)
}

// revokeExternally runs the compensating revoke and audits it. Device
// stock goes back to the ledger.
func (s *Service) revokeExternally(ctx context.Context, req *Request) error {
	_, _, err := s.runner.Run(ctx, fulfillment.Job{
		RequestID:  req.ID,
		EmployeeID: req.EmployeeID,
		Item:       req.Item,
		Quantity:   req.Quantity,
		Revoke:     true,
	})
	if err != nil {
		return err
	}
	if req.Type == TypeDevice && req.StockRemaining != nil {
		if err := s.ledger.Release(ctx, req.Item, req.Quantity); err != nil {
			return err
		}
	}
	return s.audit.Emit(ctx, audit.Entry{
		SubjectID: string(req.EmployeeID),
		Action:    audit.ActionRevokeIssued,
		Reason:    req.Item,
		RequestID: req.ID.String(),
	})
}

// transition applies one guarded state change, bumps metrics, and
// audits it.
func (s *Service) transition(ctx context.Context, req *Request, to State, mutate func(*Request)) (*Request, error) {
	from := req.State
	updated, err := s.store.Apply(ctx, req.ID, req.Version, func(r *Request) error {
		if err := r.Transition(to, requestcontext.Now(ctx)); err != nil {
			return err
		}
		if mutate != nil {
			mutate(r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncTransition(string(to))
	if err := s.audit.Emit(ctx, audit.Entry{
		SubjectID: string(req.EmployeeID),
		Action:    audit.ActionRequestTransition,
		OldState:  string(from),
		NewState:  string(to),
		Reason:    req.Item,
		RequestID: req.ID.String(),
	}); err != nil {
		return nil, err
	}
	return updated, nil
}

// activeEmployee loads the employee and insists on an active record.
func (s *Service) activeEmployee(ctx context.Context, id domain.EmployeeID) (*directory.Employee, error) {
	emp, err := s.employees.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "employee not found")
		}
		return nil, err
	}
	if !emp.Active() {
		return nil, dErrors.New(dErrors.CodeConflict, "employee is not active")
	}
	return emp, nil
}

// managerOf resolves the employee's manager id for Manager slot
// targeting. Best effort: a missing employee yields no target.
func (s *Service) managerOf(ctx context.Context, id domain.EmployeeID) *domain.EmployeeID {
	emp, err := s.employees.FindByID(ctx, id)
	if err != nil {
		return nil
	}
	return emp.ManagerID
}

func hasReason(reasons []string, want string) bool {
	for _, r := range reasons {
		if r == want {
			return true
		}
	}
	return false
}
