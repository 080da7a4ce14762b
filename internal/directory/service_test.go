package directory

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

type recordingRerouter struct {
	calls []struct {
		EmployeeID domain.EmployeeID
		ManagerID  domain.EmployeeID
	}
}

func (r *recordingRerouter) RerouteForEmployee(_ context.Context, employeeID, newManagerID domain.EmployeeID) error {
	r.calls = append(r.calls, struct {
		EmployeeID domain.EmployeeID
		ManagerID  domain.EmployeeID
	}{employeeID, newManagerID})
	return nil
}

type recordingHooks struct {
	hired   []domain.EmployeeID
	rehired []domain.EmployeeID
}

func (h *recordingHooks) OnHired(_ context.Context, id domain.EmployeeID) error {
	h.hired = append(h.hired, id)
	return nil
}

func (h *recordingHooks) OnRehire(_ context.Context, id domain.EmployeeID) error {
	h.rehired = append(h.rehired, id)
	return nil
}

// blockingHooks parks OnHired until released, standing in for a hire
// fan-out that is stuck in a fulfillment retry loop.
type blockingHooks struct {
	entered chan struct{}
	release chan struct{}
}

func (h *blockingHooks) OnHired(context.Context, domain.EmployeeID) error {
	close(h.entered)
	<-h.release
	return nil
}

func (h *blockingHooks) OnRehire(context.Context, domain.EmployeeID) error { return nil }

type ServiceSuite struct {
	suite.Suite
	ctx      context.Context
	now      time.Time
	store    *InMemory
	tx       StoreTx
	auditLog *auditmem.Store
	rerouter *recordingRerouter
	hooks    *recordingHooks
	service  *Service
}

func (s *ServiceSuite) SetupTest() {
	s.now = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.store = NewInMemory()
	s.tx = NewInMemoryStoreTx()
	s.auditLog = auditmem.New()
	s.rerouter = &recordingRerouter{}
	s.hooks = &recordingHooks{}
	s.service = NewService(
		s.store,
		s.tx,
		s.rerouter,
		s.hooks,
		audit.NewPublisher(s.auditLog),
		nil,
		slog.New(slog.DiscardHandler),
	)
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) record(id string) IngestRecord {
	return IngestRecord{
		ID:             id,
		LegalName:      "Nguyễn Thị Minh Anh",
		PreferredName:  "Anh",
		Email:          "Minh.Anh@Example.com",
		Phone:          "0912 345 678",
		Department:     "Engineering",
		Role:           "Engineering",
		EmploymentType: "FTE",
		StartDate:      "2025-03-17",
		Location:       Location{City: "Hanoi", Country: "VN", Timezone: "Asia/Ho_Chi_Minh"},
	}
}

func (s *ServiceSuite) TestIngestNormalizes() {
	id, err := s.service.Ingest(s.ctx, s.record("E1001"))
	s.Require().NoError(err)
	s.Equal(domain.EmployeeID("E1001"), id)

	e, err := s.service.Get(s.ctx, id)
	s.Require().NoError(err)
	s.Equal([]domain.EmployeeID{id}, s.hooks.hired)
	s.Equal("minh.anh@example.com", e.Email)
	s.Equal("+84912345678", e.Phone)
	s.Equal("nguyen-thi-minh-anh", e.NameSlug)
	s.Equal(StatusActive, e.Status)
	s.Equal(time.Date(2025, 3, 17, 0, 0, 0, 0, time.UTC), e.StartDate)
}

func (s *ServiceSuite) TestIngestFlagsDuplicateAcrossDiacritics() {
	_, err := s.service.Ingest(s.ctx, s.record("E1001"))
	s.Require().NoError(err)

	// Same person re-ingested under a new id with the ASCII rendering of
	// the name and a differently formatted phone number.
	dup := s.record("E1004")
	dup.LegalName = "Nguyen Thi Minh Anh"
	dup.Email = "minh.anh@example.com"
	dup.Phone = "+84 912-345-678"

	_, err = s.service.Ingest(s.ctx, dup)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeDuplicateConflict))
	details := dErrors.DetailsOf(err)
	s.Equal("E1001", details["existing_id"])
	s.ElementsMatch([]string{"email", "phone"}, details["fields"])

	// The conflict is flagged, never merged: no second record exists.
	_, err = s.service.Get(s.ctx, "E1004")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestIngestRejectsMalformedDate() {
	bad := s.record("E1002")
	bad.StartDate = "17/03/2025"
	_, err := s.service.Ingest(s.ctx, bad)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Equal("start_date", dErrors.DetailsOf(err)["field"])
}

func (s *ServiceSuite) TestIngestActiveIDConflicts() {
	_, err := s.service.Ingest(s.ctx, s.record("E1001"))
	s.Require().NoError(err)

	_, err = s.service.Ingest(s.ctx, s.record("E1001"))
	s.True(dErrors.HasCode(err, dErrors.CodeDuplicateConflict))
}

func (s *ServiceSuite) TestRehireReactivatesInPlace() {
	id, err := s.service.Ingest(s.ctx, s.record("E1001"))
	s.Require().NoError(err)
	s.Require().NoError(s.service.Deactivate(s.ctx, id))

	returning := s.record("E1001")
	returning.Department = "Design"
	returning.Role = "Design"
	_, err = s.service.Ingest(s.ctx, returning)
	s.Require().NoError(err)

	e, err := s.service.Get(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(StatusActive, e.Status)
	s.Equal("Design", e.Department)
	s.Equal([]domain.EmployeeID{id}, s.hooks.rehired)

	entries, err := audit.NewPublisher(s.auditLog).ListBySubject(s.ctx, "E1001")
	s.Require().NoError(err)
	actions := make([]audit.Action, 0, len(entries))
	for _, e := range entries {
		actions = append(actions, e.Action)
	}
	s.Contains(actions, audit.ActionEmployeeRehired)
}

func (s *ServiceSuite) TestIngestHookRunsAfterCommit() {
	_, err := s.service.Ingest(s.ctx, s.record("E1001"))
	s.Require().NoError(err)

	// A second service sharing the same store and transaction scope, with
	// a hire hook that stays in flight until released.
	hooks := &blockingHooks{entered: make(chan struct{}), release: make(chan struct{})}
	slow := NewService(
		s.store, s.tx, s.rerouter, hooks,
		audit.NewPublisher(s.auditLog), nil, slog.New(slog.DiscardHandler),
	)

	second := s.record("E1002")
	second.Email = "second@example.com"
	second.Phone = "+84 912 000 222"
	ingestDone := make(chan error, 1)
	go func() {
		_, err := slow.Ingest(s.ctx, second)
		ingestDone <- err
	}()

	select {
	case <-hooks.entered:
	case <-time.After(2 * time.Second):
		s.FailNow("hire hook never ran")
	}

	// The hook is still in flight, so the ingest transaction must already
	// be committed: an unrelated employee's patch goes straight through.
	patchDone := make(chan error, 1)
	go func() {
		name := "MA"
		_, err := s.service.Patch(s.ctx, "E1001", FieldPatch{PreferredName: &name})
		patchDone <- err
	}()
	select {
	case err := <-patchDone:
		s.NoError(err)
	case <-time.After(2 * time.Second):
		s.Fail("patch of an unrelated employee blocked behind a hire hook")
	}

	close(hooks.release)
	s.Require().NoError(<-ingestDone)
	s.Equal(StatusActive, s.mustGet("E1002").Status)
}

func (s *ServiceSuite) mustGet(id domain.EmployeeID) *Employee {
	s.T().Helper()
	e, err := s.service.Get(s.ctx, id)
	s.Require().NoError(err)
	return e
}

func (s *ServiceSuite) TestPatchManagerReroutesInSameTx() {
	id, err := s.service.Ingest(s.ctx, s.record("E1001"))
	s.Require().NoError(err)

	newManager := "M2002"
	updated, err := s.service.Patch(s.ctx, id, FieldPatch{ManagerID: &newManager})
	s.Require().NoError(err)
	s.Require().NotNil(updated.ManagerID)
	s.Equal(domain.EmployeeID("M2002"), *updated.ManagerID)

	s.Require().Len(s.rerouter.calls, 1)
	s.Equal(id, s.rerouter.calls[0].EmployeeID)
	s.Equal(domain.EmployeeID("M2002"), s.rerouter.calls[0].ManagerID)
}

func (s *ServiceSuite) TestPatchSameManagerDoesNotReroute() {
	rec := s.record("E1001")
	rec.ManagerID = "M2002"
	id, err := s.service.Ingest(s.ctx, rec)
	s.Require().NoError(err)

	same := "M2002"
	_, err = s.service.Patch(s.ctx, id, FieldPatch{ManagerID: &same})
	s.Require().NoError(err)
	s.Empty(s.rerouter.calls)
}

func (s *ServiceSuite) TestPatchRejectsMalformedDate() {
	id, err := s.service.Ingest(s.ctx, s.record("E1001"))
	s.Require().NoError(err)

	bad := "2025-13-40"
	_, err = s.service.Patch(s.ctx, id, FieldPatch{StartDate: &bad})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	// A rejected patch leaves the record untouched.
	e, err := s.service.Get(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(time.Date(2025, 3, 17, 0, 0, 0, 0, time.UTC), e.StartDate)
}

func (s *ServiceSuite) TestPatchEmailCollisionFlagsDuplicate() {
	_, err := s.service.Ingest(s.ctx, s.record("E1001"))
	s.Require().NoError(err)

	other := s.record("E1002")
	other.Email = "other@example.com"
	other.Phone = "+84 912 000 111"
	otherID, err := s.service.Ingest(s.ctx, other)
	s.Require().NoError(err)

	taken := "minh.anh@example.com"
	_, err = s.service.Patch(s.ctx, otherID, FieldPatch{Email: &taken})
	s.True(dErrors.HasCode(err, dErrors.CodeDuplicateConflict))
}

func (s *ServiceSuite) TestEraseAnonymizesInPlace() {
	id, err := s.service.Ingest(s.ctx, s.record("E1001"))
	s.Require().NoError(err)
	s.Require().NoError(s.service.Erase(s.ctx, id, false))

	e, err := s.service.Get(s.ctx, id)
	s.Require().NoError(err)
	s.True(e.Anonymized)
	s.Equal("redacted", e.LegalName)
	s.Empty(e.Email)
	s.Empty(e.Phone)
	s.Equal(StatusInactive, e.Status)

	// The freed email is reusable by a genuinely new employee.
	fresh := s.record("E1009")
	_, err = s.service.Ingest(s.ctx, fresh)
	s.NoError(err)
}

func (s *ServiceSuite) TestErasedIDNeverReused() {
	id, err := s.service.Ingest(s.ctx, s.record("E1001"))
	s.Require().NoError(err)
	s.Require().NoError(s.service.Erase(s.ctx, id, true))

	_, err = s.service.Ingest(s.ctx, s.record("E1001"))
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *ServiceSuite) TestDeactivateTwiceConflicts() {
	id, err := s.service.Ingest(s.ctx, s.record("E1001"))
	s.Require().NoError(err)
	s.Require().NoError(s.service.Deactivate(s.ctx, id))

	err = s.service.Deactivate(s.ctx, id)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}
