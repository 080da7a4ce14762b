package directory

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"onboard/internal/platform/metrics"
	"onboard/pkg/domain"
	dErrors "onboard/pkg/domain-errors"
	"onboard/pkg/platform/audit"
	"onboard/pkg/platform/sentinel"
	"onboard/pkg/requestcontext"
)

const startDateLayout = "2006-01-02"

// Store is the persistence boundary for employee records.
type Store interface {
	Create(ctx context.Context, e *Employee) error
	FindByID(ctx context.Context, id domain.EmployeeID) (*Employee, error)
	FindActiveByEmail(ctx context.Context, email string) (domain.EmployeeID, bool)
	FindActiveByPhone(ctx context.Context, phone string) (domain.EmployeeID, bool)
	Execute(ctx context.Context, id domain.EmployeeID, validate func(*Employee) error, apply func(*Employee)) (*Employee, error)
	List(ctx context.Context) []*Employee
}

// Rerouter re-targets pending Manager approval slots when an employee's
// manager changes. Implemented by the approval manager; invoked inside
// the same transaction as the patch so the two can never diverge.
type Rerouter interface {
	RerouteForEmployee(ctx context.Context, employeeID, newManagerID domain.EmployeeID) error
}

// LifecycleHooks lets provisioning react to directory lifecycle events
// without a package cycle. Hooks reach out to fulfillment adapters and
// may block on retries, so the service invokes them only after the
// directory transaction has committed.
type LifecycleHooks interface {
	// OnHired seeds facts, trainings, and default requests for a fresh
	// record.
	OnHired(ctx context.Context, employeeID domain.EmployeeID) error
	// OnRehire raises credential_rotation_required and re-opens Granted
	// credential-bearing items for the employee.
	OnRehire(ctx context.Context, employeeID domain.EmployeeID) error
}

// Service owns ingest, patch, and lifecycle for employee records.
type Service struct {
	store    Store
	tx       StoreTx
	rerouter Rerouter
	hooks    LifecycleHooks
	audit    *audit.Publisher
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewService(store Store, tx StoreTx, rerouter Rerouter, hooks LifecycleHooks, auditPub *audit.Publisher, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		tx:       tx,
		rerouter: rerouter,
		hooks:    hooks,
		audit:    auditPub,
		metrics:  m,
		logger:   logger,
	}
}

// Ingest validates and normalizes one HRIS record, then inserts it.
// A collision on normalized email or phone with a different active
// employee is flagged as a duplicate conflict, never merged. Ingesting
// the id of a deactivated, non-anonymized employee is a rehire: the
// existing row is reactivated in place.
func (s *Service) Ingest(ctx context.Context, record IngestRecord) (domain.EmployeeID, error) {
	employee, err := s.normalizeRecord(record)
	if err != nil {
		return "", err
	}

	// The hook runs fulfillment with its retry loop, so it must never
	// execute while the directory transaction is open. The transaction
	// records which lifecycle event happened; the hook fires after commit.
	var hook func(context.Context, domain.EmployeeID) error
	now := requestcontext.Now(ctx)
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		existing, findErr := s.store.FindByID(ctx, employee.ID)
		switch {
		case findErr == nil && existing.Active():
			return dErrors.Duplicate(string(existing.ID), []string{"id"})
		case findErr == nil && !existing.Anonymized:
			if err := s.rehire(ctx, employee, now); err != nil {
				return err
			}
			if s.hooks != nil {
				hook = s.hooks.OnRehire
			}
			return nil
		case findErr == nil:
			// Anonymized rows keep their id forever; the identity is gone.
			return dErrors.New(dErrors.CodeConflict, "employee id belongs to an erased record")
		case !errors.Is(findErr, sentinel.ErrNotFound):
			return findErr
		}

		if err := s.checkDuplicates(ctx, employee.ID, employee.Email, employee.Phone); err != nil {
			return err
		}

		employee.Status = StatusActive
		employee.CreatedAt = now
		employee.UpdatedAt = now
		if err := s.store.Create(ctx, employee); err != nil {
			return err
		}
		if err := s.audit.Emit(ctx, audit.Entry{
			SubjectID: string(employee.ID),
			Action:    audit.ActionEmployeeIngested,
			NewState:  string(StatusActive),
		}); err != nil {
			return err
		}
		if s.hooks != nil {
			hook = s.hooks.OnHired
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if hook != nil {
		if err := hook(ctx, employee.ID); err != nil {
			return "", err
		}
	}
	return employee.ID, nil
}

// rehire reactivates a deactivated row with the fresh HRIS fields.
// Runs inside the ingest transaction; the caller fires the rehire hook
// after commit.
func (s *Service) rehire(ctx context.Context, incoming *Employee, now time.Time) error {
	if err := s.checkDuplicates(ctx, incoming.ID, incoming.Email, incoming.Phone); err != nil {
		return err
	}

	_, err := s.store.Execute(ctx, incoming.ID, nil, func(e *Employee) {
		e.LegalName = incoming.LegalName
		e.PreferredName = incoming.PreferredName
		e.NameSlug = incoming.NameSlug
		e.Email = incoming.Email
		e.Phone = incoming.Phone
		e.Department = incoming.Department
		e.Role = incoming.Role
		e.EmploymentType = incoming.EmploymentType
		e.ManagerID = incoming.ManagerID
		e.StartDate = incoming.StartDate
		e.Location = incoming.Location
		e.DevicePrefs = incoming.DevicePrefs
		e.ShirtSize = incoming.ShirtSize
		e.Status = StatusActive
		e.UpdatedAt = now
	})
	if err != nil {
		return err
	}

	return s.audit.Emit(ctx, audit.Entry{
		SubjectID: string(incoming.ID),
		Action:    audit.ActionEmployeeRehired,
		OldState:  string(StatusInactive),
		NewState:  string(StatusActive),
	})
}

// Patch applies a field-level upsert. A manager change reroutes pending
// Manager approval slots synchronously inside the same transaction.
func (s *Service) Patch(ctx context.Context, id domain.EmployeeID, patch FieldPatch) (*Employee, error) {
	var updated *Employee
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		current, err := s.store.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "employee not found")
			}
			return err
		}

		changes, managerChanged, err := s.buildChanges(ctx, current, patch)
		if err != nil {
			return err
		}

		now := requestcontext.Now(ctx)
		updated, err = s.store.Execute(ctx, id, nil, func(e *Employee) {
			changes(e)
			e.UpdatedAt = now
		})
		if err != nil {
			return err
		}

		if managerChanged && updated.ManagerID != nil && s.rerouter != nil {
			if err := s.rerouter.RerouteForEmployee(ctx, id, *updated.ManagerID); err != nil {
				return err
			}
		}

		return s.audit.Emit(ctx, audit.Entry{
			SubjectID: string(id),
			Action:    audit.ActionEmployeePatched,
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// buildChanges validates the patch against the current record and
// returns the apply closure. Validation happens before any mutation so a
// bad patch leaves the record untouched.
func (s *Service) buildChanges(ctx context.Context, current *Employee, patch FieldPatch) (func(*Employee), bool, error) {
	var (
		apply          []func(*Employee)
		managerChanged bool
	)

	if patch.Email != nil {
		email, err := NormalizeEmail(*patch.Email)
		if err != nil {
			return nil, false, err
		}
		if email != current.Email {
			if existingID, ok := s.store.FindActiveByEmail(ctx, email); ok && existingID != current.ID {
				s.metrics.IncDuplicateConflict()
				return nil, false, dErrors.Duplicate(string(existingID), []string{"email"})
			}
		}
		apply = append(apply, func(e *Employee) { e.Email = email })
	}
	if patch.Phone != nil {
		phone, err := NormalizePhone(*patch.Phone, current.Location.Country)
		if err != nil {
			return nil, false, err
		}
		if phone != current.Phone {
			if existingID, ok := s.store.FindActiveByPhone(ctx, phone); ok && existingID != current.ID {
				s.metrics.IncDuplicateConflict()
				return nil, false, dErrors.Duplicate(string(existingID), []string{"phone"})
			}
		}
		apply = append(apply, func(e *Employee) { e.Phone = phone })
	}
	if patch.StartDate != nil {
		start, err := time.ParseInLocation(startDateLayout, *patch.StartDate, time.UTC)
		if err != nil {
			return nil, false, dErrors.Validation("start_date", "start_date must be an ISO-8601 date (YYYY-MM-DD)")
		}
		apply = append(apply, func(e *Employee) { e.StartDate = start })
	}
	if patch.ManagerID != nil {
		if *patch.ManagerID == "" {
			apply = append(apply, func(e *Employee) { e.ManagerID = nil })
		} else {
			managerID, err := domain.ParseEmployeeID(*patch.ManagerID)
			if err != nil {
				return nil, false, dErrors.Validation("manager_id", "manager_id is not a valid employee id")
			}
			if current.ManagerID == nil || *current.ManagerID != managerID {
				managerChanged = true
			}
			apply = append(apply, func(e *Employee) { e.ManagerID = &managerID })
		}
	}
	if patch.PreferredName != nil {
		name := *patch.PreferredName
		apply = append(apply, func(e *Employee) { e.PreferredName = name })
	}
	if patch.Department != nil {
		dept := *patch.Department
		apply = append(apply, func(e *Employee) { e.Department = dept })
	}
	if patch.Role != nil {
		role := *patch.Role
		apply = append(apply, func(e *Employee) { e.Role = role })
	}
	if patch.ShirtSize != nil {
		size := *patch.ShirtSize
		apply = append(apply, func(e *Employee) { e.ShirtSize = size })
	}
	if patch.DevicePrefs != nil {
		prefs := NormalizeDevicePrefs(*patch.DevicePrefs)
		apply = append(apply, func(e *Employee) { e.DevicePrefs = prefs })
	}

	return func(e *Employee) {
		for _, fn := range apply {
			fn(e)
		}
	}, managerChanged, nil
}

// Deactivate marks the employee inactive. The row survives for history
// and possible rehire.
func (s *Service) Deactivate(ctx context.Context, id domain.EmployeeID) error {
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		now := requestcontext.Now(ctx)
		_, err := s.store.Execute(ctx, id,
			func(e *Employee) error {
				if !e.Active() {
					return dErrors.New(dErrors.CodeConflict, "employee is already inactive")
				}
				return nil
			},
			func(e *Employee) {
				e.Status = StatusInactive
				e.UpdatedAt = now
			},
		)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "employee not found")
			}
			return err
		}
		return s.audit.Emit(ctx, audit.Entry{
			SubjectID: string(id),
			Action:    audit.ActionEmployeeOffboard,
			OldState:  string(StatusActive),
			NewState:  string(StatusInactive),
		})
	})
}

// Erase anonymizes identifying fields in place. The row and its id are
// retained so request history and audit trails keep a stable subject.
// legal=true marks a full legal erasure; both paths scrub the same
// fields but audit under distinct actions.
func (s *Service) Erase(ctx context.Context, id domain.EmployeeID, legal bool) error {
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		now := requestcontext.Now(ctx)
		_, err := s.store.Execute(ctx, id, nil, func(e *Employee) {
			e.Anonymize(now)
		})
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "employee not found")
			}
			return err
		}
		action := audit.ActionEmployeeErased
		if legal {
			action = audit.ActionEmployeeScrubbed
		}
		return s.audit.Emit(ctx, audit.Entry{
			SubjectID: string(id),
			Action:    action,
		})
	})
}

// Get returns one employee record.
func (s *Service) Get(ctx context.Context, id domain.EmployeeID) (*Employee, error) {
	e, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "employee not found")
		}
		return nil, err
	}
	return e, nil
}

// checkDuplicates flags active email/phone collisions, auditing and
// counting each one.
func (s *Service) checkDuplicates(ctx context.Context, id domain.EmployeeID, email, phone string) error {
	var fields []string
	var existing domain.EmployeeID
	if existingID, ok := s.store.FindActiveByEmail(ctx, email); ok && existingID != id {
		fields = append(fields, "email")
		existing = existingID
	}
	if existingID, ok := s.store.FindActiveByPhone(ctx, phone); ok && existingID != id {
		fields = append(fields, "phone")
		existing = existingID
	}
	if len(fields) == 0 {
		return nil
	}

	s.metrics.IncDuplicateConflict()
	s.logger.Warn("duplicate employee flagged",
		"incoming_id", string(id),
		"existing_id", string(existing),
		"fields", fields,
	)
	if err := s.audit.Emit(ctx, audit.Entry{
		SubjectID: string(id),
		Action:    audit.ActionDuplicateFlagged,
		Reason:    "collision with " + string(existing),
	}); err != nil {
		return err
	}
	return dErrors.Duplicate(string(existing), fields)
}

// normalizeRecord validates the raw HRIS payload and produces the
// normalized employee. No store access; pure validation.
func (s *Service) normalizeRecord(record IngestRecord) (*Employee, error) {
	id, err := domain.ParseEmployeeID(record.ID)
	if err != nil {
		return nil, dErrors.Validation("id", "employee id must be non-empty, at most 64 chars, without whitespace")
	}
	if record.LegalName == "" {
		return nil, dErrors.Validation("legal_name", "legal_name must not be empty")
	}
	empType := domain.EmploymentType(record.EmploymentType)
	if !empType.Valid() {
		return nil, dErrors.Validation("employment_type", "employment_type must be one of FTE, Contractor, Intern")
	}
	start, err := time.ParseInLocation(startDateLayout, record.StartDate, time.UTC)
	if err != nil {
		return nil, dErrors.Validation("start_date", "start_date must be an ISO-8601 date (YYYY-MM-DD)")
	}
	email, err := NormalizeEmail(record.Email)
	if err != nil {
		return nil, err
	}
	phone, err := NormalizePhone(record.Phone, record.Location.Country)
	if err != nil {
		return nil, err
	}

	e := &Employee{
		ID:             id,
		LegalName:      record.LegalName,
		PreferredName:  record.PreferredName,
		NameSlug:       NameSlug(record.LegalName),
		Email:          email,
		Phone:          phone,
		Department:     record.Department,
		Role:           record.Role,
		EmploymentType: empType,
		StartDate:      start,
		Location:       record.Location,
		DevicePrefs:    NormalizeDevicePrefs(record.DevicePrefs),
		ShirtSize:      record.ShirtSize,
	}
	if record.ManagerID != "" {
		managerID, err := domain.ParseEmployeeID(record.ManagerID)
		if err != nil {
			return nil, dErrors.Validation("manager_id", "manager_id is not a valid employee id")
		}
		e.ManagerID = &managerID
	}
	return e, nil
}
