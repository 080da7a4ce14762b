// Package catalog holds the immutable, versioned policy data: per-role
// access matrices, device defaults, training requirements, approval
// routing, and probation settings. Rule evaluation happens elsewhere
// (internal/eligibility); this package only loads and serves snapshots.
package catalog

import (
	"sort"

	"onboard/pkg/domain"
)

// Category classifies an access item.
type Category string

const (
	CategoryAccount Category = "account"
	CategoryTool    Category = "tool"
	CategoryNetwork Category = "network"
	CategoryGroup   Category = "group"
	CategoryDevice  Category = "device"
	// CategoryArrangement covers work arrangements such as WFH. Not an
	// account in any external system, but it flows through the same
	// request lifecycle.
	CategoryArrangement Category = "arrangement"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryAccount, CategoryTool, CategoryNetwork, CategoryGroup, CategoryDevice, CategoryArrangement:
		return true
	}
	return false
}

// AccessItem is one catalog entry an employee can be granted.
type AccessItem struct {
	Name          string
	Category      Category
	Prerequisites []domain.Fact
	// DisallowedFor lists employment types for which the item is a hard
	// constraint. No approval overrides this; only a catalog change can.
	DisallowedFor []domain.EmploymentType
	// ApproverRoles is the ordered approval route. Empty means no
	// approval is required.
	ApproverRoles []domain.ApproverRole
	// AdminGroups names group scopes that always require a dedicated
	// Security approval. Only meaningful for CategoryGroup items.
	AdminGroups []string
	// CredentialBearing items are rotated on rehire rather than reused.
	CredentialBearing bool
}

// DisallowedForType reports whether the employment type hits a hard
// constraint on this item.
func (i AccessItem) DisallowedForType(t domain.EmploymentType) bool {
	for _, d := range i.DisallowedFor {
		if d == t {
			return true
		}
	}
	return false
}

// IsAdminGroup reports whether the named group scope is admin-tier.
func (i AccessItem) IsAdminGroup(group string) bool {
	for _, g := range i.AdminGroups {
		if g == group {
			return true
		}
	}
	return false
}

// RoleProfile maps a role to the items provisioned by default on hire
// and on department move.
type RoleProfile struct {
	Role         string
	DefaultItems []string
}

// DeviceDefault is the stock-managed hardware default for new hires.
type DeviceDefault struct {
	Item     string
	Quantity int
}

// TrainingRequirement assigns a course with a due window on hire.
type TrainingRequirement struct {
	CourseCode string
	DueDays    int
}

// Catalog is one immutable snapshot of policy data. Construct via Load;
// never mutate after construction.
type Catalog struct {
	Version       int
	items         map[string]AccessItem
	roles         map[string]RoleProfile
	devices       []DeviceDefault
	trainings     []TrainingRequirement
	probationDays map[domain.EmploymentType]int
	wfhItem       string
}

// Item resolves a catalog entry by name.
func (c *Catalog) Item(name string) (AccessItem, bool) {
	item, ok := c.items[name]
	return item, ok
}

// Items returns all entries sorted by name.
func (c *Catalog) Items() []AccessItem {
	out := make([]AccessItem, 0, len(c.items))
	for _, item := range c.items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RoleDefaults returns the default item names for a role, or nil for an
// unknown role.
func (c *Catalog) RoleDefaults(role string) []string {
	if p, ok := c.roles[role]; ok {
		return append([]string(nil), p.DefaultItems...)
	}
	return nil
}

// RoleHasItem reports whether the role's profile includes the item.
func (c *Catalog) RoleHasItem(role, item string) bool {
	for _, name := range c.roles[role].DefaultItems {
		if name == item {
			return true
		}
	}
	return false
}

// RoleScoped reports whether the item belongs to any role's profile.
// Role-scoped items are revoked on a move to a role that lacks them;
// everything else (devices, arrangements) survives role changes.
func (c *Catalog) RoleScoped(item string) bool {
	for _, p := range c.roles {
		for _, name := range p.DefaultItems {
			if name == item {
				return true
			}
		}
	}
	return false
}

// DeviceDefaults returns the hardware defaults for new hires.
func (c *Catalog) DeviceDefaults() []DeviceDefault {
	return append([]DeviceDefault(nil), c.devices...)
}

// TrainingRequirements returns the courses assigned on hire.
func (c *Catalog) TrainingRequirements() []TrainingRequirement {
	return append([]TrainingRequirement(nil), c.trainings...)
}

// ProbationDays returns the probation window length for an employment
// type (0 when the type has none configured).
func (c *Catalog) ProbationDays(t domain.EmploymentType) int {
	return c.probationDays[t]
}

// WFHItem names the catalog entry representing a work-from-home
// arrangement. Empty when the catalog does not offer one.
func (c *Catalog) WFHItem() string { return c.wfhItem }
