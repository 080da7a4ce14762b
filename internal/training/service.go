package training

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"onboard/internal/catalog"
	"onboard/pkg/domain"
	dErrors "onboard/pkg/domain-errors"
	"onboard/pkg/platform/audit"
	"onboard/pkg/platform/sentinel"
	"onboard/pkg/requestcontext"
)

// Store is the persistence boundary for training records.
type Store interface {
	Upsert(ctx context.Context, record *Record) error
	Find(ctx context.Context, employeeID domain.EmployeeID, courseCode string) (*Record, error)
	ListByEmployee(ctx context.Context, employeeID domain.EmployeeID) ([]*Record, error)
}

// FactListener reacts to a completion landing; implemented by
// provisioning to re-evaluate the employee's open requests.
type FactListener interface {
	OnFactChange(ctx context.Context, employeeID domain.EmployeeID, changed domain.Fact) error
}

// Service assigns required courses and records completions.
type Service struct {
	store    Store
	catalogs *catalog.Store
	listener FactListener
	audit    *audit.Publisher
	logger   *slog.Logger
}

func NewService(store Store, catalogs *catalog.Store, listener FactListener, auditPub *audit.Publisher, logger *slog.Logger) *Service {
	return &Service{store: store, catalogs: catalogs, listener: listener, audit: auditPub, logger: logger}
}

// SetListener wires the provisioning re-evaluation hook after
// construction; the two services reference each other.
func (s *Service) SetListener(listener FactListener) { s.listener = listener }

// AssignRequired creates one record per catalog training requirement for
// a new hire. Existing records are left alone so a rehire keeps history.
func (s *Service) AssignRequired(ctx context.Context, employeeID domain.EmployeeID) error {
	now := requestcontext.Now(ctx)
	for _, req := range s.catalogs.Snapshot().TrainingRequirements() {
		if _, err := s.store.Find(ctx, employeeID, req.CourseCode); err == nil {
			continue
		} else if !errors.Is(err, sentinel.ErrNotFound) {
			return err
		}
		record := &Record{
			EmployeeID: employeeID,
			CourseCode: req.CourseCode,
			AssignedAt: now,
			DueAt:      now.AddDate(0, 0, req.DueDays),
		}
		if err := s.store.Upsert(ctx, record); err != nil {
			return err
		}
	}
	return nil
}

// RecordCompletion stamps the completion date and triggers re-evaluation
// of the employee's open requests. A late completion still raises the
// passed fact; the overdue fact is derived, not stored.
func (s *Service) RecordCompletion(ctx context.Context, employeeID domain.EmployeeID, courseCode string, completedAt time.Time) error {
	record, err := s.store.Find(ctx, employeeID, courseCode)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "no training record for employee and course")
		}
		return err
	}
	if record.Completed() {
		return dErrors.New(dErrors.CodeConflict, "training completion already recorded")
	}

	record.CompletedAt = &completedAt
	if err := s.store.Upsert(ctx, record); err != nil {
		return err
	}

	if err := s.audit.Emit(ctx, audit.Entry{
		SubjectID: string(employeeID),
		Action:    audit.ActionTrainingRecorded,
		NewState:  string(domain.PassedFact(courseCode)),
	}); err != nil {
		return err
	}
	if record.Overdue(requestcontext.Now(ctx)) {
		s.logger.Warn("training completed past due date",
			"employee_id", string(employeeID),
			"course_code", courseCode,
		)
	}

	if s.listener != nil {
		return s.listener.OnFactChange(ctx, employeeID, domain.PassedFact(courseCode))
	}
	return nil
}

// Records returns the employee's assigned courses.
func (s *Service) Records(ctx context.Context, employeeID domain.EmployeeID) ([]*Record, error) {
	return s.store.ListByEmployee(ctx, employeeID)
}

// FactsFor derives the employee's training facts at the request time.
func (s *Service) FactsFor(ctx context.Context, employeeID domain.EmployeeID) (domain.FactSet, error) {
	records, err := s.store.ListByEmployee(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	return Facts(records, requestcontext.Now(ctx)), nil
}
