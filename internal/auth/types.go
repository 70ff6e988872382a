package auth

import "time"

// Account is an identity record. Business data (employee profile, section
// membership) lives in the directory; the account only carries the references
// downstream scope filtering needs.
type Account struct {
	ID                string
	Email             string
	PasswordHash      string
	Active            bool
	EmployeeID        string
	SectionID         string
	LastAccessAt      time.Time
	PasswordExpiresAt *time.Time
	PasswordChangedAt time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// PasswordExpired reports whether the account must change its password
// before using the rest of the API.
func (a *Account) PasswordExpired(now time.Time) bool {
	return a.PasswordExpiresAt != nil && now.After(*a.PasswordExpiresAt)
}

// RefreshToken is a persisted refresh-token record. Only the hash of the
// opaque secret is stored; records are never deleted so a full rotation
// chain stays auditable.
type RefreshToken struct {
	ID         string
	AccountID  string
	TokenHash  string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	RevokedAt  *time.Time
	ReplacedBy string // hash of the successor, empty unless rotated out
}

// Revoked reports whether the record reached a terminal state
// (rotated out, logged out, or mass-revoked).
func (t *RefreshToken) Revoked() bool { return t.RevokedAt != nil }

// Expired reports whether the record passed its absolute expiry.
func (t *RefreshToken) Expired(now time.Time) bool { return now.After(t.ExpiresAt) }

// Usable reports whether the record may still be rotated.
func (t *RefreshToken) Usable(now time.Time) bool {
	return !t.Revoked() && !t.Expired(now)
}

// LoginAttempt is one row of the append-only attempt ledger. AccountID is
// empty when the attempted email matched no account; the row is still
// written so address throttling covers email enumeration.
type LoginAttempt struct {
	ID        string
	Email     string
	SourceIP  string
	AccountID string
	Success   bool
	CreatedAt time.Time
}

// Scope is the breadth of data visibility attached to a grant,
// ordered Own < Section < Global.
type Scope int

const (
	ScopeOwn Scope = iota + 1
	ScopeSection
	ScopeGlobal
)

func (s Scope) String() string {
	switch s {
	case ScopeOwn:
		return "own"
	case ScopeSection:
		return "section"
	case ScopeGlobal:
		return "global"
	default:
		return "unknown"
	}
}

// ParseScope maps the stored representation back to a Scope.
// Unknown values collapse to the narrowest scope.
func ParseScope(raw string) Scope {
	switch raw {
	case "global":
		return ScopeGlobal
	case "section":
		return ScopeSection
	default:
		return ScopeOwn
	}
}

// Role groups per-resource grants.
type Role struct {
	ID          string
	Name        string
	Description string
	Grants      []ResourcePermission
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ResourcePermission is a role's grant on one resource. At most one row
// exists per (role, resource) pair.
type ResourcePermission struct {
	RoleID    string
	Resource  string
	CanCreate bool
	CanEdit   bool
	CanDelete bool
	Scope     Scope
}

// GrantsAction reports whether the row grants at least one mutating action.
// Rows without any action convey read access only and do not widen scope
// during merge.
func (p ResourcePermission) GrantsAction() bool {
	return p.CanCreate || p.CanEdit || p.CanDelete
}

// ResourceGrant is one merged entry of a PermissionView.
type ResourceGrant struct {
	Resource  string
	CanCreate bool
	CanEdit   bool
	CanDelete bool
	Scope     Scope
}

// PermissionView is the per-request snapshot of a caller's effective
// permissions. It is built fresh for every authenticated request and
// never persisted.
type PermissionView struct {
	AccountID       string
	Email           string
	EmployeeID      string
	SectionID       string
	RoleIDs         []string
	Grants          map[string]ResourceGrant
	PasswordExpired bool
}

// Grant returns the merged entry for a resource. A missing entry means
// no access, never an error.
func (v PermissionView) Grant(resource string) (ResourceGrant, bool) {
	g, ok := v.Grants[resource]
	return g, ok
}
