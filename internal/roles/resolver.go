package roles

import (
	"sort"
)

// The functions in this file are pure: they read an immutable snapshot of
// roles and never touch storage, so they are safe for concurrent use.

// InheritedPermissions returns the permissions a role receives from its
// parent chain. Only inheritance-enabled links are followed. A missing
// parent ends the chain, and so does a revisited role.
func InheritedPermissions(role Role, all []Role) PermissionSet {
	inherited, _, _ := walkParents(role, indexRoles(all))
	return inherited
}

// EffectivePermissions returns the union of direct and inherited permissions.
func EffectivePermissions(role Role, all []Role) PermissionSet {
	effective := NewPermissionSet(role.Permissions...)
	effective.Union(InheritedPermissions(role, all))
	return effective
}

// HighRiskPermissionCount counts effective permissions flagged high risk in
// the catalog. Permissions absent from the catalog are not counted.
func HighRiskPermissionCount(role Role, all []Role, catalog []Permission) int {
	return countHighRisk(EffectivePermissions(role, all), catalog)
}

// Resolve computes every permission view for a role and surfaces the soft
// conditions hit on the way: an unresolved parent or a cycle.
func Resolve(role Role, all []Role, catalog []Permission) Resolution {
	direct := NewPermissionSet(role.Permissions...)
	inherited, unresolved, cycle := walkParents(role, indexRoles(all))
	effective := NewPermissionSet()
	effective.Union(direct)
	effective.Union(inherited)
	return Resolution{
		RoleID:           role.ID,
		Direct:           direct.Sorted(),
		Inherited:        inherited.Sorted(),
		Effective:        effective.Sorted(),
		HighRiskCount:    countHighRisk(effective, catalog),
		UnresolvedParent: unresolved,
		CyclePath:        cycle,
	}
}

// DetectCycles reports the first inheritance cycle found, scanning roles in
// id order. Only inheritance-enabled links take part.
func DetectCycles(all []Role) error {
	idx := indexRoles(all)
	for _, role := range sortedByID(idx) {
		if _, _, cycle := walkParents(role, idx); cycle != nil {
			return &CycleError{Path: cycle}
		}
	}
	return nil
}

// CheckParent validates assigning parentID to the role identified by roleID.
// Every parent link counts here, enabled or not, so the forest stays a forest.
func CheckParent(all []Role, roleID int64, parentID *int64) error {
	if parentID == nil {
		return nil
	}
	idx := indexRoles(all)
	if *parentID == roleID {
		return &CycleError{Path: []int64{roleID, roleID}}
	}
	if _, ok := idx[*parentID]; !ok {
		return ErrParentNotFound
	}
	path := []int64{roleID}
	visited := map[int64]struct{}{}
	current := *parentID
	for {
		path = append(path, current)
		if current == roleID {
			return &CycleError{Path: path}
		}
		if _, seen := visited[current]; seen {
			// pre-existing cycle not involving roleID
			return nil
		}
		visited[current] = struct{}{}
		role, ok := idx[current]
		if !ok || role.ParentRoleID == nil {
			return nil
		}
		current = *role.ParentRoleID
	}
}

// BuildForest arranges roles into trees under their resolvable parents.
// Roles with no parent, or whose parent is missing, become roots. Siblings
// are ordered by level, then name, then id. Roles caught in a parent cycle
// are unreachable from any root; the first of them in sibling order is
// promoted to a root so that every role appears exactly once.
func BuildForest(all []Role) []*RoleTreeNode {
	idx := indexRoles(all)
	ordered := sortedByID(idx)

	children := make(map[int64][]Role)
	roots := make([]Role, 0)
	for _, role := range ordered {
		if role.ParentRoleID == nil {
			roots = append(roots, role)
			continue
		}
		if _, ok := idx[*role.ParentRoleID]; !ok {
			roots = append(roots, role)
			continue
		}
		children[*role.ParentRoleID] = append(children[*role.ParentRoleID], role)
	}
	for id := range children {
		sortSiblings(children[id])
	}
	sortSiblings(roots)

	placed := make(map[int64]struct{}, len(idx))
	var build func(role Role, depth int) *RoleTreeNode
	build = func(role Role, depth int) *RoleTreeNode {
		placed[role.ID] = struct{}{}
		node := &RoleTreeNode{Role: role, Depth: depth, Children: []*RoleTreeNode{}}
		for _, child := range children[role.ID] {
			if _, done := placed[child.ID]; done {
				continue
			}
			node.Children = append(node.Children, build(child, depth+1))
		}
		return node
	}

	forest := make([]*RoleTreeNode, 0, len(roots))
	for _, root := range roots {
		forest = append(forest, build(root, 0))
	}

	for {
		remaining := make([]Role, 0)
		for _, role := range ordered {
			if _, done := placed[role.ID]; !done {
				remaining = append(remaining, role)
			}
		}
		if len(remaining) == 0 {
			break
		}
		sortSiblings(remaining)
		forest = append(forest, build(remaining[0], 0))
	}

	sort.SliceStable(forest, func(i, j int) bool {
		return lessRole(forest[i].Role, forest[j].Role)
	})
	return forest
}

// FlattenForest lists nodes depth-first in display order.
func FlattenForest(forest []*RoleTreeNode) []*RoleTreeNode {
	out := make([]*RoleTreeNode, 0)
	var walk func(nodes []*RoleTreeNode)
	walk = func(nodes []*RoleTreeNode) {
		for _, node := range nodes {
			out = append(out, node)
			walk(node.Children)
		}
	}
	walk(forest)
	return out
}

// walkParents follows enabled parent links from role, accumulating the
// direct permissions of each ancestor. It stops at a missing parent
// (returned as unresolved) or at a role already on the path (returned as
// the closed cycle path). At most len(idx)+1 steps are taken.
func walkParents(role Role, idx map[int64]Role) (PermissionSet, *int64, []int64) {
	inherited := NewPermissionSet()
	visited := map[int64]struct{}{role.ID: {}}
	path := []int64{role.ID}
	current := role
	for current.InheritanceEnabled && current.ParentRoleID != nil {
		parentID := *current.ParentRoleID
		parent, ok := idx[parentID]
		if !ok {
			return inherited, &parentID, nil
		}
		if _, seen := visited[parentID]; seen {
			return inherited, nil, closeCycle(path, parentID)
		}
		visited[parentID] = struct{}{}
		path = append(path, parentID)
		inherited.Add(parent.Permissions...)
		current = parent
	}
	return inherited, nil, nil
}

func closeCycle(path []int64, revisited int64) []int64 {
	start := 0
	for i, id := range path {
		if id == revisited {
			start = i
			break
		}
	}
	cycle := make([]int64, 0, len(path)-start+1)
	cycle = append(cycle, path[start:]...)
	return append(cycle, revisited)
}

func countHighRisk(set PermissionSet, catalog []Permission) int {
	count := 0
	seen := make(map[string]struct{}, len(catalog))
	for _, perm := range catalog {
		if perm.RiskLevel != RiskHigh {
			continue
		}
		if _, dup := seen[perm.ID]; dup {
			continue
		}
		seen[perm.ID] = struct{}{}
		if set.Has(perm.ID) {
			count++
		}
	}
	return count
}

// indexRoles maps roles by id; the first occurrence of an id wins.
func indexRoles(all []Role) map[int64]Role {
	idx := make(map[int64]Role, len(all))
	for _, role := range all {
		if _, exists := idx[role.ID]; exists {
			continue
		}
		idx[role.ID] = role
	}
	return idx
}

func sortedByID(idx map[int64]Role) []Role {
	out := make([]Role, 0, len(idx))
	for _, role := range idx {
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sortSiblings(list []Role) {
	sort.SliceStable(list, func(i, j int) bool { return lessRole(list[i], list[j]) })
}

func lessRole(a, b Role) bool {
	if a.Level != b.Level {
		return a.Level < b.Level
	}
	if a.Name != b.Name {
		return a.Name < b.Name
	}
	return a.ID < b.ID
}
