// Package eligibility is the pure decision core. Evaluate has no I/O and
// no clock of its own; given the same snapshot, facts, and approval
// state it always returns the same decision, which is what makes every
// provisioning transition replayable from the audit log.
package eligibility

import (
	"time"

	"onboard/internal/catalog"
	"onboard/pkg/domain"
)

// Outcome is the decision head.
type Outcome string

const (
	OutcomeAllowed         Outcome = "Allowed"
	OutcomeBlocked         Outcome = "Blocked"
	OutcomePendingApproval Outcome = "PendingApproval"
)

// Blocked reason vocabulary. missing_prereq reasons are derived per fact.
const (
	ReasonUnknownItem    = "unknown_item"
	ReasonEmploymentType = "employment_type_constraint"
	ReasonAdminGroup     = "admin_group_requires_separate_approval"
	missingPrereqPrefix  = "missing_prereq:"
)

// MissingPrereqReason derives the blocked reason for one absent fact.
func MissingPrereqReason(f domain.Fact) string {
	return missingPrereqPrefix + string(f)
}

// Decision is the evaluator's verdict. Reasons is populated only for
// Blocked, Approvers only for PendingApproval; both are exhaustive for
// the call.
type Decision struct {
	Outcome   Outcome
	Reasons   []string
	Approvers []domain.ApproverRole
}

func allowed() Decision { return Decision{Outcome: OutcomeAllowed} }

func blocked(reasons ...string) Decision {
	return Decision{Outcome: OutcomeBlocked, Reasons: reasons}
}

func pending(approvers []domain.ApproverRole) Decision {
	return Decision{Outcome: OutcomePendingApproval, Approvers: approvers}
}

// WFHMode distinguishes a temporary arrangement from a permanent one.
type WFHMode string

const (
	WFHModeNone      WFHMode = ""
	WFHModeTemporary WFHMode = "temporary"
	WFHModePermanent WFHMode = "permanent"
)

// EmployeeSnapshot is the slice of the directory record the evaluator
// needs. Callers copy it out so the evaluator never touches a store.
type EmployeeSnapshot struct {
	ID             domain.EmployeeID
	EmploymentType domain.EmploymentType
	StartDate      time.Time
}

// Input is everything one evaluation depends on. Now is supplied by the
// caller, never read from the wall clock here.
type Input struct {
	Employee EmployeeSnapshot
	Item     string
	Facts    domain.FactSet
	// ApprovalResolved is true when a fully approved ApprovalTask exists
	// for the request under evaluation.
	ApprovalResolved bool
	// SecurityApprovedGroups holds admin-tier group names for which a
	// dedicated Security approval has been recorded.
	SecurityApprovedGroups map[string]bool
	// WFHMode applies only to arrangement items.
	WFHMode WFHMode
	Now     time.Time
}

// Evaluate runs the fixed check order against one catalog snapshot:
// unknown item, employment-type constraints, prerequisite facts
// (aggregating every missing one), approval routing, Allowed. Blocked
// dominates PendingApproval dominates Allowed.
func Evaluate(cat *catalog.Catalog, in Input) Decision {
	item, ok := cat.Item(in.Item)
	if !ok {
		return blocked(ReasonUnknownItem)
	}

	// Hard constraints are absolute; no approval overrides them.
	if item.DisallowedForType(in.Employee.EmploymentType) {
		return blocked(ReasonEmploymentType)
	}

	var missing []string
	for _, f := range item.Prerequisites {
		if !in.Facts.Has(f) {
			missing = append(missing, MissingPrereqReason(f))
		}
	}
	if len(missing) > 0 {
		return blocked(missing...)
	}

	// A permanent WFH request inside the probation window is forced
	// through Manager and HR approval no matter what else is true.
	if in.Item == cat.WFHItem() && in.WFHMode == WFHModePermanent {
		probation := cat.ProbationDays(in.Employee.EmploymentType)
		if in.Employee.StartDate.AddDate(0, 0, probation).After(in.Now) && !in.ApprovalResolved {
			return pending([]domain.ApproverRole{domain.RoleManager, domain.RoleHR})
		}
	}

	if len(item.ApproverRoles) > 0 && !in.ApprovalResolved {
		return pending(append([]domain.ApproverRole(nil), item.ApproverRoles...))
	}

	return allowed()
}

// GroupDecision pairs one requested group scope with its own verdict.
type GroupDecision struct {
	Group    string
	Decision Decision
}

// EvaluateGroups evaluates a group-scoped request per group, never as an
// all-or-nothing batch. Admin-tier groups stay blocked until a dedicated
// Security approval exists for that exact group; the other groups in the
// same call are judged independently.
func EvaluateGroups(cat *catalog.Catalog, in Input, groups []string) []GroupDecision {
	item, itemKnown := cat.Item(in.Item)
	base := Evaluate(cat, in)

	out := make([]GroupDecision, 0, len(groups))
	for _, group := range groups {
		if itemKnown && item.IsAdminGroup(group) && !in.SecurityApprovedGroups[group] {
			out = append(out, GroupDecision{Group: group, Decision: blocked(ReasonAdminGroup)})
			continue
		}
		out = append(out, GroupDecision{Group: group, Decision: base})
	}
	return out
}
