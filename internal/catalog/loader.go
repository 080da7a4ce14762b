package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"onboard/pkg/domain"
)

// File-level YAML schema. Field names match the catalog file shipped
// under config/.
type catalogFile struct {
	Version int `yaml:"version"`
	Items   []struct {
		Name              string   `yaml:"name"`
		Category          string   `yaml:"category"`
		Prerequisites     []string `yaml:"prerequisites"`
		DisallowedFor     []string `yaml:"disallowed_for"`
		ApproverRoles     []string `yaml:"approver_roles"`
		AdminGroups       []string `yaml:"admin_groups"`
		CredentialBearing bool     `yaml:"credential_bearing"`
	} `yaml:"items"`
	Roles []struct {
		Role         string   `yaml:"role"`
		DefaultItems []string `yaml:"default_items"`
	} `yaml:"roles"`
	Devices []struct {
		Item     string `yaml:"item"`
		Quantity int    `yaml:"quantity"`
	} `yaml:"devices"`
	Trainings []struct {
		CourseCode string `yaml:"course_code"`
		DueDays    int    `yaml:"due_days"`
	} `yaml:"trainings"`
	ProbationDays map[string]int `yaml:"probation_days"`
	WFHItem       string         `yaml:"wfh_item"`
}

// Load reads and validates a catalog file. The returned Catalog is
// immutable; reloads build a fresh one and swap atomically.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	return Parse(raw)
}

// Parse builds a Catalog from raw YAML.
func Parse(raw []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse catalog yaml: %w", err)
	}
	if file.Version <= 0 {
		return nil, fmt.Errorf("catalog version must be positive, got %d", file.Version)
	}

	cat := &Catalog{
		Version:       file.Version,
		items:         make(map[string]AccessItem, len(file.Items)),
		roles:         make(map[string]RoleProfile, len(file.Roles)),
		probationDays: make(map[domain.EmploymentType]int, len(file.ProbationDays)),
		wfhItem:       file.WFHItem,
	}

	for _, it := range file.Items {
		if it.Name == "" {
			return nil, fmt.Errorf("catalog item with empty name")
		}
		if _, dup := cat.items[it.Name]; dup {
			return nil, fmt.Errorf("duplicate catalog item %q", it.Name)
		}
		category := Category(it.Category)
		if !category.Valid() {
			return nil, fmt.Errorf("item %q: unknown category %q", it.Name, it.Category)
		}
		item := AccessItem{
			Name:              it.Name,
			Category:          category,
			AdminGroups:       it.AdminGroups,
			CredentialBearing: it.CredentialBearing,
		}
		for _, p := range it.Prerequisites {
			item.Prerequisites = append(item.Prerequisites, domain.Fact(p))
		}
		for _, d := range it.DisallowedFor {
			et := domain.EmploymentType(d)
			if !et.Valid() {
				return nil, fmt.Errorf("item %q: unknown employment type %q", it.Name, d)
			}
			item.DisallowedFor = append(item.DisallowedFor, et)
		}
		for _, r := range it.ApproverRoles {
			item.ApproverRoles = append(item.ApproverRoles, domain.ApproverRole(r))
		}
		cat.items[it.Name] = item
	}

	for _, r := range file.Roles {
		if r.Role == "" {
			return nil, fmt.Errorf("role profile with empty role name")
		}
		for _, name := range r.DefaultItems {
			if _, ok := cat.items[name]; !ok {
				return nil, fmt.Errorf("role %q references unknown item %q", r.Role, name)
			}
		}
		cat.roles[r.Role] = RoleProfile{Role: r.Role, DefaultItems: r.DefaultItems}
	}

	for _, d := range file.Devices {
		if d.Quantity <= 0 {
			return nil, fmt.Errorf("device default %q: quantity must be positive", d.Item)
		}
		if _, ok := cat.items[d.Item]; !ok {
			return nil, fmt.Errorf("device default %q is not a catalog item", d.Item)
		}
		cat.devices = append(cat.devices, DeviceDefault{Item: d.Item, Quantity: d.Quantity})
	}

	for _, tr := range file.Trainings {
		if tr.CourseCode == "" || tr.DueDays <= 0 {
			return nil, fmt.Errorf("training requirement needs a course code and positive due_days")
		}
		cat.trainings = append(cat.trainings, TrainingRequirement{CourseCode: tr.CourseCode, DueDays: tr.DueDays})
	}

	for t, days := range file.ProbationDays {
		et := domain.EmploymentType(t)
		if !et.Valid() {
			return nil, fmt.Errorf("probation_days: unknown employment type %q", t)
		}
		cat.probationDays[et] = days
	}

	if cat.wfhItem != "" {
		if _, ok := cat.items[cat.wfhItem]; !ok {
			return nil, fmt.Errorf("wfh_item %q is not a catalog item", cat.wfhItem)
		}
	}

	return cat, nil
}
