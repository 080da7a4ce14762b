package provisioning

import (
	"context"

	"golang.org/x/sync/errgroup"

	"onboard/internal/eligibility"
	"onboard/pkg/domain"
	"onboard/pkg/platform/audit"
	"onboard/pkg/requestcontext"
)

// OnHired seeds a new hire: the HRIS_created fact, required trainings,
// and Draft requests for the role's default items plus the hardware
// defaults. Called after the directory ingest commits.
func (s *Service) OnHired(ctx context.Context, employeeID domain.EmployeeID) error {
	s.facts.Set(ctx, employeeID, domain.FactHRISCreated, true)
	if err := s.training.AssignRequired(ctx, employeeID); err != nil {
		return err
	}

	emp, err := s.employees.FindByID(ctx, employeeID)
	if err != nil {
		return err
	}
	cat := s.catalogs.Snapshot()
	now := requestcontext.Now(ctx)

	for _, item := range cat.RoleDefaults(emp.Role) {
		draft := NewRequest(employeeID, TypeAccess, item, now)
		if err := s.createAndEvaluate(ctx, draft); err != nil {
			return err
		}
	}
	for _, dev := range cat.DeviceDefaults() {
		draft := NewRequest(employeeID, TypeDevice, dev.Item, now)
		draft.Quantity = dev.Quantity
		if err := s.createAndEvaluate(ctx, draft); err != nil {
			return err
		}
	}
	return nil
}

// OnRehire raises credential_rotation_required and sends every Granted
// credential-bearing item back through Eligible evaluation so its
// credentials are rotated, not reused.
func (s *Service) OnRehire(ctx context.Context, employeeID domain.EmployeeID) error {
	s.facts.Set(ctx, employeeID, domain.FactCredentialRotationRequired, true)
	if err := s.audit.Emit(ctx, audit.Entry{
		SubjectID: string(employeeID),
		Action:    audit.ActionFactChanged,
		NewState:  string(domain.FactCredentialRotationRequired),
	}); err != nil {
		return err
	}

	requests, err := s.store.ListByEmployee(ctx, employeeID)
	if err != nil {
		return err
	}
	cat := s.catalogs.Snapshot()

	for _, req := range requests {
		if req.State != StateGranted {
			continue
		}
		item, ok := cat.Item(req.Item)
		if !ok || !item.CredentialBearing {
			continue
		}
		reopened, err := s.transition(ctx, req, StateEligible, func(r *Request) {
			r.Degraded = false
			r.TicketID = ""
		})
		if err != nil {
			return err
		}
		if _, err := s.evaluateAndAdvance(ctx, reopened.ID); err != nil {
			return err
		}
	}
	return nil
}

// OnFactChange re-evaluates every open request for the employee. Each
// request advances independently; one blocked line never holds back its
// siblings.
func (s *Service) OnFactChange(ctx context.Context, employeeID domain.EmployeeID, changed domain.Fact) error {
	if err := s.audit.Emit(ctx, audit.Entry{
		SubjectID: string(employeeID),
		Action:    audit.ActionFactChanged,
		NewState:  string(changed),
	}); err != nil {
		return err
	}

	requests, err := s.store.ListByEmployee(ctx, employeeID)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, req := range requests {
		if !req.State.Open() || req.Rejected {
			continue
		}
		id := req.ID
		g.Go(func() error {
			_, err := s.evaluateAndAdvance(gctx, id)
			return err
		})
	}
	return g.Wait()
}

// OnDepartmentMove re-checks every Granted item under the employee's
// new role, revokes what the new position disallows, and drafts the new
// role's default items. The directory patch has already committed when
// this runs.
func (s *Service) OnDepartmentMove(ctx context.Context, employeeID domain.EmployeeID) error {
	emp, err := s.employees.FindByID(ctx, employeeID)
	if err != nil {
		return err
	}
	if err := s.audit.Emit(ctx, audit.Entry{
		SubjectID: string(employeeID),
		Action:    audit.ActionDepartmentMoved,
		NewState:  emp.Department,
	}); err != nil {
		return err
	}

	requests, err := s.store.ListByEmployee(ctx, employeeID)
	if err != nil {
		return err
	}

	cat := s.catalogs.Snapshot()
	for _, req := range requests {
		if req.State != StateGranted {
			continue
		}

		reasons, revoke := []string{"not_permitted_for_role"}, false
		if cat.RoleScoped(req.Item) && !cat.RoleHasItem(emp.Role, req.Item) {
			revoke = true
		} else {
			decision, err := s.decide(ctx, req)
			if err != nil {
				return err
			}
			if decision.Outcome == eligibility.OutcomeBlocked {
				reasons, revoke = decision.Reasons, true
			}
		}
		if !revoke {
			continue
		}

		if err := s.revokeExternally(ctx, req); err != nil {
			return err
		}
		if _, err := s.transition(ctx, req, StateRevoked, func(r *Request) {
			r.Reasons = reasons
		}); err != nil {
			return err
		}
	}

	// held is built from a fresh listing after the revocation sweep so an
	// item counts as covered when any surviving request carries it,
	// regardless of how the employee's requests are ordered.
	requests, err = s.store.ListByEmployee(ctx, employeeID)
	if err != nil {
		return err
	}
	held := make(map[string]bool, len(requests))
	for _, req := range requests {
		if req.State == StateGranted || req.State.Open() || req.State == StateFulfilling {
			held[req.Item] = true
		}
	}

	now := requestcontext.Now(ctx)
	for _, item := range cat.RoleDefaults(emp.Role) {
		if held[item] {
			continue
		}
		draft := NewRequest(employeeID, TypeAccess, item, now)
		if err := s.createAndEvaluate(ctx, draft); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) createAndEvaluate(ctx context.Context, draft *Request) error {
	if err := s.store.Create(ctx, draft); err != nil {
		return err
	}
	if err := s.audit.Emit(ctx, audit.Entry{
		SubjectID: string(draft.EmployeeID),
		Action:    audit.ActionRequestTransition,
		NewState:  string(StateDraft),
		Reason:    draft.Item,
		RequestID: draft.ID.String(),
	}); err != nil {
		return err
	}
	_, err := s.evaluateAndAdvance(ctx, draft.ID)
	return err
}
