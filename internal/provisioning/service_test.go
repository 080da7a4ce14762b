package provisioning

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"onboard/internal/approval"
	"onboard/internal/catalog"
	"onboard/internal/directory"
	"onboard/internal/eligibility"
	"onboard/internal/fulfillment"
	"onboard/internal/platform/config"
	"onboard/internal/training"
	"onboard/pkg/domain"
	dErrors "onboard/pkg/domain-errors"
	"onboard/pkg/platform/audit"
	auditmem "onboard/pkg/platform/audit/store/memory"
	"onboard/pkg/requestcontext"
)

// scriptAdapter lets tests script transient and permanent failures.
type scriptAdapter struct {
	mu           sync.Mutex
	failuresLeft int
	fatal        bool
	created      []fulfillment.Job
	revoked      []fulfillment.Job
}

func (a *scriptAdapter) CreateAccount(_ context.Context, job fulfillment.Job) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fatal {
		return fulfillment.Fatal(errors.New("connector rejects item"))
	}
	if a.failuresLeft > 0 {
		a.failuresLeft--
		return fulfillment.Retryable(errors.New("connector timeout"))
	}
	a.created = append(a.created, job)
	return nil
}

func (a *scriptAdapter) RevokeAccount(_ context.Context, job fulfillment.Job) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.revoked = append(a.revoked, job)
	return nil
}

func (a *scriptAdapter) createdItems() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.created))
	for _, j := range a.created {
		out = append(out, j.Item)
	}
	return out
}

func (a *scriptAdapter) revokedItems() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.revoked))
	for _, j := range a.revoked {
		out = append(out, j.Item)
	}
	return out
}

type EngineSuite struct {
	suite.Suite
	ctx       context.Context
	now       time.Time
	catalogs  *catalog.Store
	employees *directory.InMemory
	approvals *approval.Manager
	trainings *training.Service
	adapter   *scriptAdapter
	ticketer  *fulfillment.LogTicketer
	ledger    *fulfillment.MemoryLedger
	store     *InMemory
	auditLog  *auditmem.Store
	svc       *Service
}

func (s *EngineSuite) SetupTest() {
	s.now = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)

	cat, err := catalog.Load("../catalog/testdata/catalog.yaml")
	require.NoError(s.T(), err)
	s.catalogs = catalog.NewStore(cat)

	logger := slog.New(slog.DiscardHandler)
	s.auditLog = auditmem.New()
	auditPub := audit.NewPublisher(s.auditLog)

	s.employees = directory.NewInMemory()
	s.approvals = approval.NewManager(approval.NewInMemory(), auditPub, logger)
	s.trainings = training.NewService(training.NewInMemory(), s.catalogs, nil, auditPub, logger)

	s.adapter = &scriptAdapter{}
	s.ticketer = fulfillment.NewLogTicketer(logger)
	runner := fulfillment.NewRunner(s.adapter, s.ticketer, fulfillment.NewLogNotifier(logger), config.Fulfillment{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	}, auditPub, nil, logger)

	s.ledger = fulfillment.NewMemoryLedger()
	for _, item := range []string{"Laptop", "Monitor", "Docking"} {
		require.NoError(s.T(), s.ledger.SetStock(s.ctx, item, 5))
	}

	s.store = NewInMemory()
	s.svc = NewService(s.store, s.catalogs, s.employees, s.approvals, s.trainings, NewFactLedger(), runner, s.ledger, auditPub, nil, logger)
	s.trainings.SetListener(s.svc)
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

// addEmployee seeds the directory store directly; ingest-path behavior
// is covered in the directory package.
func (s *EngineSuite) addEmployee(id domain.EmployeeID, role string, empType domain.EmploymentType, start time.Time, managerID string) {
	e := &directory.Employee{
		ID:             id,
		LegalName:      "Test Person " + string(id),
		Email:          string(id) + "@example.com",
		Department:     role,
		Role:           role,
		EmploymentType: empType,
		StartDate:      start,
		Status:         directory.StatusActive,
		CreatedAt:      s.now,
		UpdatedAt:      s.now,
	}
	if managerID != "" {
		m := domain.EmployeeID(managerID)
		e.ManagerID = &m
	}
	s.Require().NoError(s.employees.Create(s.ctx, e))
}

func (s *EngineSuite) setFacts(id domain.EmployeeID, facts ...domain.Fact) {
	for _, f := range facts {
		s.svc.facts.Set(s.ctx, id, f, true)
	}
}

func (s *EngineSuite) createOne(in CreateInput) *Request {
	requests, err := s.svc.Create(s.ctx, in)
	s.Require().NoError(err)
	s.Require().Len(requests, 1)
	return requests[0]
}

func (s *EngineSuite) reload(id domain.RequestID) *Request {
	req, err := s.store.FindByID(s.ctx, id)
	s.Require().NoError(err)
	return req
}

func (s *EngineSuite) TestAccessGrantedWhenFactsPresent() {
	s.addEmployee("E1001", "Engineering", domain.EmploymentFTE, s.now.AddDate(0, -6, 0), "M2001")
	s.setFacts("E1001", domain.FactHRISCreated)

	req := s.createOne(CreateInput{EmployeeID: "E1001", Type: TypeAccess, Item: "Jira"})
	s.Equal(StateGranted, req.State)
	s.Equal([]string{"Jira"}, s.adapter.createdItems())
}

func (s *EngineSuite) TestBlockedReasonsAggregate() {
	s.addEmployee("E1001", "Engineering", domain.EmploymentFTE, s.now.AddDate(0, -6, 0), "M2001")
	s.setFacts("E1001", domain.FactHRISCreated)

	req := s.createOne(CreateInput{EmployeeID: "E1001", Type: TypeAccess, Item: "GitHub"})
	s.Equal(StateBlocked, req.State)
	s.Equal([]string{
		eligibility.MissingPrereqReason(domain.FactNDASigned),
		eligibility.MissingPrereqReason(domain.PassedFact("Security101")),
	}, req.Reasons)
	s.Empty(s.adapter.createdItems())
}

func (s *EngineSuite) TestTrainingCompletionAdvancesBlockedRequest() {
	s.addEmployee("E1001", "Engineering", domain.EmploymentFTE, s.now.AddDate(0, -6, 0), "M2001")
	s.setFacts("E1001", domain.FactHRISCreated)
	s.Require().NoError(s.trainings.AssignRequired(s.ctx, "E1001"))

	req := s.createOne(CreateInput{EmployeeID: "E1001", Type: TypeAccess, Item: "VPN"})
	s.Equal(StateBlocked, req.State)

	// Completing the course fires OnFactChange through the listener.
	s.Require().NoError(s.trainings.RecordCompletion(s.ctx, "E1001", "Security101", s.now))

	after := s.reload(req.ID)
	s.Equal(StateGranted, after.State)
	s.Equal([]string{"VPN"}, s.adapter.createdItems())
}

func (s *EngineSuite) TestApprovalRoute() {
	s.addEmployee("E1001", "Engineering", domain.EmploymentFTE, s.now.AddDate(0, -6, 0), "M2001")
	s.setFacts("E1001", domain.FactHRISCreated, domain.FactNDASigned, domain.PassedFact("Security101"))

	req := s.createOne(CreateInput{EmployeeID: "E1001", Type: TypeAccess, Item: "GitHub"})
	s.Equal(StatePendingApproval, req.State)
	s.Equal([]domain.ApproverRole{domain.RoleManager}, req.Approvers)

	task, err := s.approvals.TaskForRequest(s.ctx, req.ID)
	s.Require().NoError(err)
	s.Equal("M2001", task.Slots[0].Target)

	after, err := s.svc.ResolveApproval(s.ctx, req.ID, domain.RoleManager, true, "")
	s.Require().NoError(err)
	s.Equal(StateGranted, after.State)
	s.Equal([]string{"GitHub"}, s.adapter.createdItems())
}

func (s *EngineSuite) TestApprovalRejectionIsTerminal() {
	s.addEmployee("E1001", "Engineering", domain.EmploymentFTE, s.now.AddDate(0, -6, 0), "M2001")
	s.setFacts("E1001", domain.FactHRISCreated, domain.FactNDASigned, domain.PassedFact("Security101"))

	req := s.createOne(CreateInput{EmployeeID: "E1001", Type: TypeAccess, Item: "GitHub"})
	after, err := s.svc.ResolveApproval(s.ctx, req.ID, domain.RoleManager, false, "not needed for this role")
	s.Require().NoError(err)
	s.Equal(StateBlocked, after.State)
	s.True(after.Rejected)

	// A later fact change never resurrects a rejected request.
	s.Require().NoError(s.svc.OnFactChange(s.ctx, "E1001", domain.FactNDASigned))
	s.Equal(StateBlocked, s.reload(req.ID).State)
	s.Empty(s.adapter.createdItems())
}

func (s *EngineSuite) TestPermanentWFHInProbationNeedsManagerAndHR() {
	// Hired one week before "now": inside the 90-day FTE window.
	s.addEmployee("E1003", "Engineering", domain.EmploymentFTE, s.now.AddDate(0, 0, -7), "M2001")
	s.setFacts("E1003", domain.FactHRISCreated)

	req := s.createOne(CreateInput{EmployeeID: "E1003", Type: TypeWFH, WFHMode: eligibility.WFHModePermanent})
	s.Equal(StatePendingApproval, req.State)
	s.Equal([]domain.ApproverRole{domain.RoleManager, domain.RoleHR}, req.Approvers)

	mid, err := s.svc.ResolveApproval(s.ctx, req.ID, domain.RoleManager, true, "")
	s.Require().NoError(err)
	s.Equal(StatePendingApproval, mid.State)

	after, err := s.svc.ResolveApproval(s.ctx, req.ID, domain.RoleHR, true, "")
	s.Require().NoError(err)
	s.Equal(StateGranted, after.State)
}

func (s *EngineSuite) TestDeviceStockLinesAreIndependent() {
	s.Require().NoError(s.ledger.SetStock(s.ctx, "Laptop", 1))
	s.addEmployee("E1001", "Engineering", domain.EmploymentFTE, s.now.AddDate(0, -6, 0), "M2001")
	s.addEmployee("E1002", "Design", domain.EmploymentFTE, s.now.AddDate(0, -6, 0), "M2001")
	s.setFacts("E1001", domain.FactHRISCreated)
	s.setFacts("E1002", domain.FactHRISCreated)

	first := s.createOne(CreateInput{EmployeeID: "E1001", Type: TypeDevice, Item: "Laptop"})
	s.Equal(StateGranted, first.State)
	s.Require().NotNil(first.StockRemaining)
	s.Equal(0, *first.StockRemaining)

	// The exhausted laptop line blocks without queueing.
	second := s.createOne(CreateInput{EmployeeID: "E1002", Type: TypeDevice, Item: "Laptop"})
	s.Equal(StateBlocked, second.State)
	s.Equal([]string{"out_of_stock"}, second.Reasons)

	// An unrelated line for the same employee is unaffected.
	monitor := s.createOne(CreateInput{EmployeeID: "E1002", Type: TypeDevice, Item: "Monitor", Quantity: 2})
	s.Equal(StateGranted, monitor.State)
}

func (s *EngineSuite) TestRetryExhaustionDegradesNotFails() {
	s.addEmployee("E1001", "Engineering", domain.EmploymentFTE, s.now.AddDate(0, -6, 0), "M2001")
	s.setFacts("E1001", domain.FactHRISCreated)
	s.adapter.failuresLeft = 100

	req := s.createOne(CreateInput{EmployeeID: "E1001", Type: TypeAccess, Item: "Jira"})
	s.Equal(StateFulfilling, req.State)
	s.True(req.Degraded)
	s.NotEmpty(req.TicketID)
	s.EqualValues(1, s.ticketer.Created())
}

func (s *EngineSuite) TestFatalFulfillmentFails() {
	s.addEmployee("E1001", "Engineering", domain.EmploymentFTE, s.now.AddDate(0, -6, 0), "M2001")
	s.setFacts("E1001", domain.FactHRISCreated)
	s.adapter.fatal = true

	req := s.createOne(CreateInput{EmployeeID: "E1001", Type: TypeAccess, Item: "Jira"})
	s.Equal(StateFailed, req.State)
	s.Zero(s.ticketer.Created())
}

func (s *EngineSuite) TestStaleVersionConflicts() {
	s.addEmployee("E1001", "Engineering", domain.EmploymentFTE, s.now.AddDate(0, -6, 0), "M2001")

	req := s.createOne(CreateInput{EmployeeID: "E1001", Type: TypeAccess, Item: "GitHub"})
	stale := req.Version

	_, err := s.store.Apply(s.ctx, req.ID, stale, func(r *Request) error { return nil })
	s.Require().NoError(err)

	_, err = s.store.Apply(s.ctx, req.ID, stale, func(r *Request) error { return nil })
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	details := dErrors.DetailsOf(err)
	s.Equal(stale, details["expected_version"])
	s.Equal(stale+1, details["actual_version"])
}

func (s *EngineSuite) TestCancel() {
	s.addEmployee("E1001", "Engineering", domain.EmploymentFTE, s.now.AddDate(0, -6, 0), "M2001")
	s.setFacts("E1001", domain.FactHRISCreated, domain.FactNDASigned, domain.PassedFact("Security101"))

	pending := s.createOne(CreateInput{EmployeeID: "E1001", Type: TypeAccess, Item: "GitHub"})
	s.Equal(StatePendingApproval, pending.State)

	cancelled, err := s.svc.Cancel(s.ctx, pending.ID)
	s.Require().NoError(err)
	s.Equal(StateRevoked, cancelled.State)
	s.Equal([]string{"cancelled"}, cancelled.Reasons)

	granted := s.createOne(CreateInput{EmployeeID: "E1001", Type: TypeAccess, Item: "Jira"})
	s.Equal(StateGranted, granted.State)
	_, err = s.svc.Cancel(s.ctx, granted.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *EngineSuite) TestCancelFulfillingIssuesCompensatingRevoke() {
	s.addEmployee("E1001", "Engineering", domain.EmploymentFTE, s.now.AddDate(0, -6, 0), "M2001")
	s.setFacts("E1001", domain.FactHRISCreated)
	s.adapter.failuresLeft = 100

	req := s.createOne(CreateInput{EmployeeID: "E1001", Type: TypeAccess, Item: "Jira"})
	s.Require().Equal(StateFulfilling, req.State)

	s.adapter.mu.Lock()
	s.adapter.failuresLeft = 0
	s.adapter.mu.Unlock()

	cancelled, err := s.svc.Cancel(s.ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(StateRevoked, cancelled.State)
	s.Equal([]string{"Jira"}, s.adapter.revokedItems())
}

func (s *EngineSuite) TestRehireRotatesCredentialBearingGrants() {
	s.addEmployee("E1001", "Engineering", domain.EmploymentFTE, s.now.AddDate(0, -6, 0), "M2001")
	s.setFacts("E1001", domain.FactHRISCreated)

	email := s.createOne(CreateInput{EmployeeID: "E1001", Type: TypeAccess, Item: "Email"})
	jira := s.createOne(CreateInput{EmployeeID: "E1001", Type: TypeAccess, Item: "Jira"})
	s.Require().Equal(StateGranted, email.State)
	s.Require().Equal(StateGranted, jira.State)

	s.Require().NoError(s.svc.OnRehire(s.ctx, "E1001"))

	// Email is credential-bearing: re-fulfilled with fresh credentials.
	s.Equal(StateGranted, s.reload(email.ID).State)
	s.Equal([]string{"Email", "Jira", "Email"}, s.adapter.createdItems())

	facts := s.svc.facts.For(s.ctx, "E1001")
	s.True(facts.Has(domain.FactCredentialRotationRequired))
}

func (s *EngineSuite) TestDepartmentMoveRevokesAndDrafts() {
	// E1002 moves Design -> Engineering with Figma and Email granted.
	s.addEmployee("E1002", "Design", domain.EmploymentFTE, s.now.AddDate(0, -6, 0), "M2001")
	s.setFacts("E1002", domain.FactHRISCreated)

	figma := s.createOne(CreateInput{EmployeeID: "E1002", Type: TypeAccess, Item: "Figma"})
	email := s.createOne(CreateInput{EmployeeID: "E1002", Type: TypeAccess, Item: "Email"})
	s.Require().Equal(StateGranted, figma.State)
	s.Require().Equal(StateGranted, email.State)

	_, err := s.employees.Execute(s.ctx, "E1002", nil, func(e *directory.Employee) {
		e.Department = "Engineering"
		e.Role = "Engineering"
	})
	s.Require().NoError(err)
	s.Require().NoError(s.svc.OnDepartmentMove(s.ctx, "E1002"))

	// The Design-only grant is revoked, with a revoke call issued.
	s.Equal(StateRevoked, s.reload(figma.ID).State)
	s.Equal([]string{"Figma"}, s.adapter.revokedItems())
	// Email belongs to both roles and survives.
	s.Equal(StateGranted, s.reload(email.ID).State)

	// Fresh drafts exist for the new role's items the employee lacks.
	requests, err := s.svc.ListByEmployee(s.ctx, "E1002")
	s.Require().NoError(err)
	items := make(map[string]State)
	for _, r := range requests {
		items[r.Item] = r.State
	}
	s.Contains(items, "GitHub")
	s.Contains(items, "Jira")
	s.Contains(items, "VPN")
	s.Equal(StateBlocked, items["GitHub"])
}

func (s *EngineSuite) TestDepartmentMoveSkipsItemsWithOpenDuplicates() {
	s.addEmployee("E1004", "Design", domain.EmploymentFTE, s.now.AddDate(0, -6, 0), "M2001")
	s.setFacts("E1004", domain.FactHRISCreated)

	// An older VPN request blocked on training, then a granted duplicate
	// created once the course fact is present. Facts set directly on the
	// ledger do not re-evaluate the older request, so both stay as-is.
	blocked := s.createOne(CreateInput{EmployeeID: "E1004", Type: TypeAccess, Item: "VPN"})
	s.Require().Equal(StateBlocked, blocked.State)
	s.setFacts("E1004", domain.PassedFact("Security101"))
	granted := s.createOne(CreateInput{EmployeeID: "E1004", Type: TypeAccess, Item: "VPN"})
	s.Require().Equal(StateGranted, granted.State)

	// The course fact is withdrawn, so the move's re-check revokes the
	// granted VPN.
	s.svc.facts.Set(s.ctx, "E1004", domain.PassedFact("Security101"), false)
	_, err := s.employees.Execute(s.ctx, "E1004", nil, func(e *directory.Employee) {
		e.Department = "Engineering"
		e.Role = "Engineering"
	})
	s.Require().NoError(err)
	s.Require().NoError(s.svc.OnDepartmentMove(s.ctx, "E1004"))

	s.Equal(StateRevoked, s.reload(granted.ID).State)
	s.Equal(StateBlocked, s.reload(blocked.ID).State)

	// The older blocked request still covers VPN; the draft sweep must
	// not add a third one, whatever order the two were stored in.
	requests, err := s.svc.ListByEmployee(s.ctx, "E1004")
	s.Require().NoError(err)
	vpn := 0
	for _, r := range requests {
		if r.Item == "VPN" {
			vpn++
		}
	}
	s.Equal(2, vpn)
}

func (s *EngineSuite) TestAdminGroupScopesEvaluatedPerGroup() {
	s.addEmployee("E1001", "Engineering", domain.EmploymentFTE, s.now.AddDate(0, -6, 0), "M2001")
	s.setFacts("E1001", domain.FactHRISCreated)

	requests, err := s.svc.Create(s.ctx, CreateInput{
		EmployeeID: "E1001",
		Type:       TypeGroup,
		Item:       "AzureAD-Groups",
		Groups:     []string{"sg-engineering", "sg-platform-admins"},
	})
	s.Require().NoError(err)
	s.Require().Len(requests, 2)

	byGroup := map[string]*Request{}
	for _, r := range requests {
		byGroup[r.GroupScope] = r
	}

	// The plain group pends on the catalog route; the admin-tier group
	// blocks behind a dedicated Security approval.
	s.Equal(StatePendingApproval, byGroup["sg-engineering"].State)
	admin := byGroup["sg-platform-admins"]
	s.Equal(StateBlocked, admin.State)
	s.Equal([]string{eligibility.ReasonAdminGroup}, admin.Reasons)

	task, err := s.approvals.TaskForRequest(s.ctx, admin.ID)
	s.Require().NoError(err)
	s.Equal("sg-platform-admins", task.GroupScope)

	after, err := s.svc.ResolveApproval(s.ctx, admin.ID, domain.RoleSecurity, true, "")
	s.Require().NoError(err)
	s.Equal(StateGranted, after.State)
}

func (s *EngineSuite) TestOnHiredSeedsDefaultsAndTrainings() {
	s.addEmployee("E1001", "Engineering", domain.EmploymentFTE, s.now, "M2001")
	s.Require().NoError(s.svc.OnHired(s.ctx, "E1001"))

	requests, err := s.svc.ListByEmployee(s.ctx, "E1001")
	s.Require().NoError(err)

	states := map[string]State{}
	for _, r := range requests {
		states[r.Item] = r.State
	}
	// Email and Jira only need HRIS_created, which OnHired raises.
	s.Equal(StateGranted, states["Email"])
	s.Equal(StateGranted, states["Jira"])
	// VPN waits on Security101, GitHub on NDA and Security101.
	s.Equal(StateBlocked, states["VPN"])
	s.Equal(StateBlocked, states["GitHub"])
	// Hardware defaults flow through stock reservation.
	s.Equal(StateGranted, states["Laptop"])
	s.Equal(StateGranted, states["Monitor"])
	s.Equal(StateGranted, states["Docking"])

	facts, err := s.trainings.FactsFor(s.ctx, "E1001")
	s.Require().NoError(err)
	s.False(facts.Has(domain.PassedFact("Security101")))

	// Completing the assigned course later unblocks VPN.
	s.Require().NoError(s.trainings.RecordCompletion(s.ctx, "E1001", "Security101", s.now.AddDate(0, 0, 2)))
	requests, err = s.svc.ListByEmployee(s.ctx, "E1001")
	s.Require().NoError(err)
	for _, r := range requests {
		if r.Item == "VPN" {
			s.Equal(StateGranted, r.State)
		}
	}
}

func (s *EngineSuite) TestCreateForInactiveEmployeeConflicts() {
	s.addEmployee("E1001", "Engineering", domain.EmploymentFTE, s.now, "M2001")
	_, err := s.employees.Execute(s.ctx, "E1001", nil, func(e *directory.Employee) {
		e.Status = directory.StatusInactive
	})
	s.Require().NoError(err)

	_, err = s.svc.Create(s.ctx, CreateInput{EmployeeID: "E1001", Type: TypeAccess, Item: "Email"})
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	_, err = s.svc.Create(s.ctx, CreateInput{EmployeeID: "E9999", Type: TypeAccess, Item: "Email"})
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *EngineSuite) TestUnknownItemBlocks() {
	s.addEmployee("E1001", "Engineering", domain.EmploymentFTE, s.now, "M2001")
	req := s.createOne(CreateInput{EmployeeID: "E1001", Type: TypeAccess, Item: "Photoshop"})
	s.Equal(StateBlocked, req.State)
	s.Equal([]string{eligibility.ReasonUnknownItem}, req.Reasons)
}
