package auth

import "sort"

// Requirement is the declarative access contract of one operation. The
// absence of all three action flags means the operation only needs read
// access, which is implied by the resource entry existing in the caller's
// view. An empty Resource skips the grant lookup entirely (the operation is
// account-scoped rather than resource-scoped, e.g. password change).
type Requirement struct {
	Resource             string
	NeedCreate           bool
	NeedEdit             bool
	NeedDelete           bool
	SkipAuth             bool
	AllowExpiredPassword bool
}

// Decision is what the gate hands to an allowed operation. Scope filtering
// of the operation's own data query is the operation's responsibility, not
// the gate's.
type Decision struct {
	Scope Scope
	Grant ResourceGrant
}

// Registry is the static operation -> requirement table, populated once at
// startup and read-only afterwards.
type Registry struct {
	reqs map[string]Requirement
}

// NewRegistry returns an empty requirement table.
func NewRegistry() *Registry {
	return &Registry{reqs: make(map[string]Requirement)}
}

// Register records the requirement of an operation. Later registrations for
// the same operation overwrite earlier ones.
func (r *Registry) Register(operation string, req Requirement) {
	r.reqs[operation] = req
}

// Lookup returns the requirement declared for the operation.
func (r *Registry) Lookup(operation string) (Requirement, bool) {
	req, ok := r.reqs[operation]
	return req, ok
}

// Operations lists the registered operation identifiers, sorted. Used by
// startup logging and tests.
func (r *Registry) Operations() []string {
	out := make([]string, 0, len(r.reqs))
	for op := range r.reqs {
		out = append(out, op)
	}
	sort.Strings(out)
	return out
}

// Authorize evaluates a caller's view against an operation's requirement.
// Denials are ErrForbidden (chosen consistently over not-found shaping);
// a missing resource entry denies any check against it.
func Authorize(view PermissionView, req Requirement) (Decision, error) {
	if req.SkipAuth {
		return Decision{}, nil
	}
	if view.PasswordExpired && !req.AllowExpiredPassword {
		return Decision{}, ErrPasswordExpired
	}
	if req.Resource == "" {
		return Decision{}, nil
	}
	grant, ok := view.Grant(req.Resource)
	if !ok {
		return Decision{}, ErrForbidden
	}
	if req.NeedCreate && !grant.CanCreate {
		return Decision{}, ErrForbidden
	}
	if req.NeedEdit && !grant.CanEdit {
		return Decision{}, ErrForbidden
	}
	if req.NeedDelete && !grant.CanDelete {
		return Decision{}, ErrForbidden
	}
	return Decision{Scope: grant.Scope, Grant: grant}, nil
}
