package approval

import (
	"context"
	"errors"
	"log/slog"

	"onboard/pkg/domain"
	dErrors "onboard/pkg/domain-errors"
	"onboard/pkg/platform/audit"
	"onboard/pkg/platform/sentinel"
	"onboard/pkg/requestcontext"
)

// Store is the persistence boundary for approval tasks.
type Store interface {
	Create(ctx context.Context, task *Task) error
	FindByRequest(ctx context.Context, requestID domain.RequestID) (*Task, error)
	ListByEmployee(ctx context.Context, employeeID domain.EmployeeID) ([]*Task, error)
	Execute(ctx context.Context, requestID domain.RequestID, validate func(*Task) error, apply func(*Task)) (*Task, error)
}

// Manager owns the approval workflow.
type Manager struct {
	store  Store
	audit  *audit.Publisher
	logger *slog.Logger
}

func NewManager(store Store, auditPub *audit.Publisher, logger *slog.Logger) *Manager {
	return &Manager{store: store, audit: auditPub, logger: logger}
}

// CreateForRequest opens the approval route for a request. Idempotent:
// an existing task for the request is returned unchanged.
func (m *Manager) CreateForRequest(ctx context.Context, requestID domain.RequestID, employeeID domain.EmployeeID, item string, roles []domain.ApproverRole, managerID *domain.EmployeeID) (*Task, error) {
	if existing, err := m.store.FindByRequest(ctx, requestID); err == nil {
		return existing, nil
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, err
	}

	task := NewTask(requestID, employeeID, item, roles, managerID, requestcontext.Now(ctx))
	if err := m.store.Create(ctx, task); err != nil {
		return nil, err
	}
	if err := m.audit.Emit(ctx, audit.Entry{
		SubjectID: requestID.String(),
		Action:    audit.ActionApprovalCreated,
		NewState:  string(TaskPending),
	}); err != nil {
		return nil, err
	}
	return task, nil
}

// CreateForAdminGroup opens a dedicated Security approval over one
// admin-tier group scope.
func (m *Manager) CreateForAdminGroup(ctx context.Context, requestID domain.RequestID, employeeID domain.EmployeeID, item, group string) (*Task, error) {
	if existing, err := m.store.FindByRequest(ctx, requestID); err == nil {
		return existing, nil
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, err
	}

	task := NewTask(requestID, employeeID, item, []domain.ApproverRole{domain.RoleSecurity}, nil, requestcontext.Now(ctx))
	task.GroupScope = group
	if err := m.store.Create(ctx, task); err != nil {
		return nil, err
	}
	if err := m.audit.Emit(ctx, audit.Entry{
		SubjectID: requestID.String(),
		Action:    audit.ActionApprovalCreated,
		NewState:  string(TaskPending),
		Reason:    "admin group " + group,
	}); err != nil {
		return nil, err
	}
	return task, nil
}

// Decide records one role's verdict on a request's approval task.
func (m *Manager) Decide(ctx context.Context, requestID domain.RequestID, role domain.ApproverRole, approve bool, comment string) (*Task, error) {
	now := requestcontext.Now(ctx)
	actor := requestcontext.ActorID(ctx)

	task, err := m.store.Execute(ctx, requestID,
		func(t *Task) error { return t.CanDecide(role) },
		func(t *Task) { t.Decide(role, approve, actor, comment, now) },
	)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "no approval task for request")
		}
		return nil, err
	}

	verdict := "approved"
	if !approve {
		verdict = "rejected"
	}
	if err := m.audit.Emit(ctx, audit.Entry{
		SubjectID: requestID.String(),
		Action:    audit.ActionApprovalResolved,
		NewState:  string(task.Status),
		Reason:    string(role) + " " + verdict,
	}); err != nil {
		return nil, err
	}
	return task, nil
}

// TaskForRequest returns the approval task for one request, if any.
func (m *Manager) TaskForRequest(ctx context.Context, requestID domain.RequestID) (*Task, error) {
	task, err := m.store.FindByRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "no approval task for request")
		}
		return nil, err
	}
	return task, nil
}

// SecurityApprovedGroups returns the admin-tier group scopes for which
// the employee holds a resolved dedicated Security approval.
func (m *Manager) SecurityApprovedGroups(ctx context.Context, employeeID domain.EmployeeID) (map[string]bool, error) {
	tasks, err := m.store.ListByEmployee(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool)
	for _, t := range tasks {
		if t.GroupScope != "" && t.Resolved() {
			out[t.GroupScope] = true
		}
	}
	return out, nil
}

// RerouteForEmployee re-targets every still-pending Manager slot across
// the employee's open tasks. Called synchronously from the directory
// patch transaction so no slot ever points at a stale manager.
func (m *Manager) RerouteForEmployee(ctx context.Context, employeeID, newManagerID domain.EmployeeID) error {
	tasks, err := m.store.ListByEmployee(ctx, employeeID)
	if err != nil {
		return err
	}
	now := requestcontext.Now(ctx)

	for _, t := range tasks {
		if t.Status != TaskPending {
			continue
		}
		var changed bool
		_, err := m.store.Execute(ctx, t.RequestID, nil, func(task *Task) {
			changed = task.Reroute(newManagerID, now)
		})
		if err != nil {
			return err
		}
		if !changed {
			continue
		}
		m.logger.Info("approval rerouted",
			"request_id", t.RequestID.String(),
			"employee_id", string(employeeID),
			"new_manager_id", string(newManagerID),
		)
		if err := m.audit.Emit(ctx, audit.Entry{
			SubjectID: t.RequestID.String(),
			Action:    audit.ActionApprovalRerouted,
			Reason:    "manager changed to " + string(newManagerID),
		}); err != nil {
			return err
		}
	}
	return nil
}
