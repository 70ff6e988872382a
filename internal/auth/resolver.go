package auth

import "time"

// ResolvePermissions merges the grants of every role assigned to an account
// into one PermissionView. For each resource appearing in any role:
//
//   - action flags are OR-ed across roles;
//   - scope is the maximum (Own < Section < Global) over the roles that
//     grant at least one action on the resource, so a read-only grant never
//     widens visibility;
//   - when no role grants an action, the entry still exists (read access is
//     implied by its presence) and scope falls back to the maximum over the
//     read-only rows.
//
// Resources absent from every role produce no entry: no entry means no
// access, never an error.
func ResolvePermissions(acct *Account, roles []Role, now time.Time) PermissionView {
	view := PermissionView{
		AccountID:       acct.ID,
		Email:           acct.Email,
		EmployeeID:      acct.EmployeeID,
		SectionID:       acct.SectionID,
		Grants:          make(map[string]ResourceGrant),
		PasswordExpired: acct.PasswordExpired(now),
	}

	// Track the read-only fallback scope separately; it only applies when
	// no action-granting row exists for the resource.
	readScope := make(map[string]Scope)

	for _, role := range roles {
		view.RoleIDs = append(view.RoleIDs, role.ID)
		for _, perm := range role.Grants {
			g := view.Grants[perm.Resource]
			g.Resource = perm.Resource
			g.CanCreate = g.CanCreate || perm.CanCreate
			g.CanEdit = g.CanEdit || perm.CanEdit
			g.CanDelete = g.CanDelete || perm.CanDelete
			if perm.GrantsAction() {
				if perm.Scope > g.Scope {
					g.Scope = perm.Scope
				}
			} else if perm.Scope > readScope[perm.Resource] {
				readScope[perm.Resource] = perm.Scope
			}
			view.Grants[perm.Resource] = g
		}
	}

	for resource, g := range view.Grants {
		if g.Scope == 0 {
			if fallback, ok := readScope[resource]; ok {
				g.Scope = fallback
			} else {
				g.Scope = ScopeOwn
			}
			view.Grants[resource] = g
		}
	}

	return view
}
