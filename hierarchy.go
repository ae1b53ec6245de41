package access

import (
	"errors"
	"sort"
)

// EffectiveRole is a role joined with everything it inherits: the union of its
// own permissions and all ancestors' permissions, plus the ancestor chain in
// walk order (nearest parent first).
type EffectiveRole struct {
	Role                 *Role    `json:"role"`
	EffectivePermissions []string `json:"effective_permissions"`
	AncestorChain        []string `json:"ancestor_chain,omitempty"`
}

// HasPermission reports whether perm is in the effective set (exact match;
// pattern matching against requests happens in the rule matcher).
func (er *EffectiveRole) HasPermission(perm string) bool {
	for _, p := range er.EffectivePermissions {
		if p == perm {
			return true
		}
	}
	return false
}

// ResolveHierarchy computes the effective permission closure for every role.
// Roles live in a flat table keyed by id; parents are referenced by id and the
// walk keeps an explicit visited set, so a cycle is detected the moment an id
// reappears. On a cycle the walk stops there, the role keeps the permissions
// collected so far, and a *ConfigurationError is reported for the
// administrator. The returned map is always usable, cycle or not.
//
// A parent id that resolves to no known role simply terminates the walk, like
// a root. Permission sets are sorted so resolution output is deterministic.
func ResolveHierarchy(roles []*Role) (map[string]*EffectiveRole, error) {
	byID := make(map[string]*Role, len(roles))
	for _, r := range roles {
		byID[r.ID] = r
	}

	out := make(map[string]*EffectiveRole, len(roles))
	var cfgErrs []error

	for _, r := range roles {
		perms := make(map[string]struct{}, len(r.Permissions))
		for _, p := range r.Permissions {
			perms[p] = struct{}{}
		}

		visited := map[string]bool{r.ID: true}
		chain := make([]string, 0, 4)

		cur := r
		for cur.ParentRole != "" {
			parent, ok := byID[cur.ParentRole]
			if !ok {
				break
			}
			if visited[parent.ID] {
				cycle := make([]string, 0, len(chain)+2)
				cycle = append(cycle, r.ID)
				cycle = append(cycle, chain...)
				cycle = append(cycle, parent.ID)
				cfgErrs = append(cfgErrs, &ConfigurationError{RoleID: r.ID, Cycle: cycle})
				break
			}
			visited[parent.ID] = true
			chain = append(chain, parent.ID)
			for _, p := range parent.Permissions {
				perms[p] = struct{}{}
			}
			cur = parent
		}

		eff := make([]string, 0, len(perms))
		for p := range perms {
			eff = append(eff, p)
		}
		sort.Strings(eff)

		out[r.ID] = &EffectiveRole{
			Role:                 r,
			EffectivePermissions: eff,
			AncestorChain:        chain,
		}
	}

	return out, errors.Join(cfgErrs...)
}
