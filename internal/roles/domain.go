package roles

import (
	"sort"
	"time"
)

// RiskLevel classifies how dangerous a permission is to grant.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Role is a named permission bundle that may inherit from a parent role.
type Role struct {
	ID                 int64     `json:"id"`
	Name               string    `json:"name"`
	Description        string    `json:"description"`
	Level              int       `json:"level"`
	ParentRoleID       *int64    `json:"parent_role_id,omitempty"`
	Permissions        []string  `json:"permissions"`
	InheritanceEnabled bool      `json:"inheritance_enabled"`
	IsSystem           bool      `json:"is_system"`
	UserCount          int       `json:"user_count"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// HasParent reports whether the role declares a parent reference.
func (r Role) HasParent() bool {
	return r.ParentRoleID != nil
}

// Permission is read-only catalog data describing a grantable capability.
type Permission struct {
	ID        string    `json:"id"`
	Module    string    `json:"module"`
	Resource  string    `json:"resource"`
	Action    string    `json:"action"`
	RiskLevel RiskLevel `json:"risk_level"`
}

// RoleTreeNode is one role positioned inside the role forest.
type RoleTreeNode struct {
	Role     Role            `json:"role"`
	Depth    int             `json:"depth"`
	Children []*RoleTreeNode `json:"children"`
}

// Resolution reports every permission view of a role together with the
// soft conditions met while walking its parent chain.
type Resolution struct {
	RoleID           int64    `json:"role_id"`
	Direct           []string `json:"direct"`
	Inherited        []string `json:"inherited"`
	Effective        []string `json:"effective"`
	HighRiskCount    int      `json:"high_risk_count"`
	UnresolvedParent *int64   `json:"unresolved_parent,omitempty"`
	CyclePath        []int64  `json:"cycle_path,omitempty"`
}

// PermissionSet holds permission identifiers with set semantics.
type PermissionSet map[string]struct{}

// NewPermissionSet builds a set from the given identifiers.
func NewPermissionSet(ids ...string) PermissionSet {
	set := make(PermissionSet, len(ids))
	set.Add(ids...)
	return set
}

// Add inserts identifiers, ignoring blanks.
func (s PermissionSet) Add(ids ...string) {
	for _, id := range ids {
		if id == "" {
			continue
		}
		s[id] = struct{}{}
	}
}

// Union inserts every member of other.
func (s PermissionSet) Union(other PermissionSet) {
	for id := range other {
		s[id] = struct{}{}
	}
}

// Has reports membership.
func (s PermissionSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the members in ascending order.
func (s PermissionSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ListFilters narrows role listings.
type ListFilters struct {
	Search  string
	SortBy  string
	SortDir string
}
