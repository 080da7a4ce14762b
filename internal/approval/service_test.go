package approval

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"onboard/pkg/domain"
	dErrors "onboard/pkg/domain-errors"
	"onboard/pkg/platform/audit"
	auditmem "onboard/pkg/platform/audit/store/memory"
	"onboard/pkg/requestcontext"
)

type ManagerSuite struct {
	suite.Suite
	ctx      context.Context
	store    *InMemory
	auditLog *auditmem.Store
	manager  *Manager
	now      time.Time
}

func (s *ManagerSuite) SetupTest() {
	s.now = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithActorID(requestcontext.WithTime(context.Background(), s.now), "mgr.alice")
	s.store = NewInMemory()
	s.auditLog = auditmem.New()
	s.manager = NewManager(s.store, audit.NewPublisher(s.auditLog), slog.New(slog.DiscardHandler))
}

func TestManagerSuite(t *testing.T) {
	suite.Run(t, new(ManagerSuite))
}

func (s *ManagerSuite) newTask(roles ...domain.ApproverRole) *Task {
	manager := domain.EmployeeID("M2001")
	task, err := s.manager.CreateForRequest(s.ctx, domain.NewRequestID(), "E1001", "GitHub", roles, &manager)
	s.Require().NoError(err)
	return task
}

func (s *ManagerSuite) TestManagerSlotTargetsManager() {
	task := s.newTask(domain.RoleManager, domain.RoleHR)
	s.Equal(TaskPending, task.Status)
	s.Require().Len(task.Slots, 2)
	s.Equal(domain.RoleManager, task.Slots[0].Role)
	s.Equal("M2001", task.Slots[0].Target)
	s.Empty(task.Slots[1].Target)
}

func (s *ManagerSuite) TestResolvesOnlyWhenAllRolesApprove() {
	task := s.newTask(domain.RoleManager, domain.RoleHR)

	after, err := s.manager.Decide(s.ctx, task.RequestID, domain.RoleManager, true, "")
	s.Require().NoError(err)
	s.Equal(TaskPending, after.Status)

	after, err = s.manager.Decide(s.ctx, task.RequestID, domain.RoleHR, true, "ok")
	s.Require().NoError(err)
	s.Equal(TaskResolved, after.Status)
	s.True(after.Resolved())
}

func (s *ManagerSuite) TestAnyRejectionIsTerminal() {
	task := s.newTask(domain.RoleManager, domain.RoleHR)

	after, err := s.manager.Decide(s.ctx, task.RequestID, domain.RoleHR, false, "policy")
	s.Require().NoError(err)
	s.Equal(TaskRejected, after.Status)

	// Nothing can be decided on a rejected task.
	_, err = s.manager.Decide(s.ctx, task.RequestID, domain.RoleManager, true, "")
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *ManagerSuite) TestDoubleDecisionConflicts() {
	task := s.newTask(domain.RoleManager, domain.RoleHR)

	_, err := s.manager.Decide(s.ctx, task.RequestID, domain.RoleManager, true, "")
	s.Require().NoError(err)
	_, err = s.manager.Decide(s.ctx, task.RequestID, domain.RoleManager, true, "")
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *ManagerSuite) TestUnknownRoleNotFound() {
	task := s.newTask(domain.RoleManager)
	_, err := s.manager.Decide(s.ctx, task.RequestID, domain.RoleSecurity, true, "")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ManagerSuite) TestReroutePreservesRecordedApprovals() {
	task := s.newTask(domain.RoleManager, domain.RoleHR)
	_, err := s.manager.Decide(s.ctx, task.RequestID, domain.RoleHR, true, "")
	s.Require().NoError(err)

	s.Require().NoError(s.manager.RerouteForEmployee(s.ctx, "E1001", "M2002"))

	after, err := s.manager.TaskForRequest(s.ctx, task.RequestID)
	s.Require().NoError(err)
	s.Equal("M2002", after.Slots[0].Target)
	s.Equal(SlotPending, after.Slots[0].Status)
	// The HR approval recorded before the reroute survives it.
	s.Equal(SlotApproved, after.Slots[1].Status)
	s.Equal("mgr.alice", after.Slots[1].DecidedBy)
}

func (s *ManagerSuite) TestRerouteSkipsDecidedTasks() {
	task := s.newTask(domain.RoleManager)
	_, err := s.manager.Decide(s.ctx, task.RequestID, domain.RoleManager, true, "")
	s.Require().NoError(err)

	before := s.auditLog.Len()
	s.Require().NoError(s.manager.RerouteForEmployee(s.ctx, "E1001", "M2002"))
	s.Equal(before, s.auditLog.Len())

	after, err := s.manager.TaskForRequest(s.ctx, task.RequestID)
	s.Require().NoError(err)
	s.Equal("M2001", after.Slots[0].Target)
}

func (s *ManagerSuite) TestCreateIsIdempotentPerRequest() {
	task := s.newTask(domain.RoleManager)
	again, err := s.manager.CreateForRequest(s.ctx, task.RequestID, "E1001", "GitHub", []domain.ApproverRole{domain.RoleManager, domain.RoleHR}, nil)
	s.Require().NoError(err)
	s.Len(again.Slots, 1)
}

func (s *ManagerSuite) TestSecurityApprovedGroups() {
	reqID := domain.NewRequestID()
	task, err := s.manager.CreateForAdminGroup(s.ctx, reqID, "E1001", "AzureAD-Groups", "sg-platform-admins")
	s.Require().NoError(err)
	s.Equal("sg-platform-admins", task.GroupScope)

	groups, err := s.manager.SecurityApprovedGroups(s.ctx, "E1001")
	s.Require().NoError(err)
	s.Empty(groups)

	_, err = s.manager.Decide(s.ctx, reqID, domain.RoleSecurity, true, "")
	s.Require().NoError(err)

	groups, err = s.manager.SecurityApprovedGroups(s.ctx, "E1001")
	s.Require().NoError(err)
	s.True(groups["sg-platform-admins"])
}
