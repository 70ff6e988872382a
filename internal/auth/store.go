package auth

import (
	"context"
	"time"
)

// Store describes the persistence operations required by the session and
// authorization core. WithinTx runs fn against a Store whose writes commit
// or roll back as one unit; the ledger write and the account/token mutation
// of a single call always share a transaction.
type Store interface {
	Accounts(ctx context.Context) AccountStore
	Roles(ctx context.Context) RoleStore
	RefreshTokens(ctx context.Context) RefreshTokenStore
	LoginAttempts(ctx context.Context) LoginAttemptStore

	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}

// AccountStore manages identity records.
type AccountStore interface {
	Find(ctx context.Context, id string) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	UpdateLastAccess(ctx context.Context, id string, at time.Time) error
	UpdatePassword(ctx context.Context, id, passwordHash string, changedAt time.Time) error
}

// RoleStore loads roles with their resource grants attached.
type RoleStore interface {
	ForAccount(ctx context.Context, accountID string) ([]Role, error)
}

// RefreshTokenStore manages the refresh-token lifecycle. Records are never
// deleted; revocation is a timestamp so the rotation chain stays auditable.
type RefreshTokenStore interface {
	Create(ctx context.Context, tok *RefreshToken) error
	// FindByHash must take a row lock where the backend supports one, so
	// concurrent rotations of the same token serialize and the loser
	// observes the revoked state.
	FindByHash(ctx context.Context, tokenHash string) (*RefreshToken, error)
	Revoke(ctx context.Context, id string, at time.Time, replacedBy string) error
	RevokeAllForAccount(ctx context.Context, accountID string, at time.Time) (int64, error)
}

// LoginAttemptStore is the append-only attempt ledger. Rows are immutable
// once written and only ever queried by count-since-timestamp.
type LoginAttemptStore interface {
	Append(ctx context.Context, attempt *LoginAttempt) error
	CountFailedByEmail(ctx context.Context, email string, since time.Time) (int, error)
	CountFailedBySource(ctx context.Context, sourceIP string, since time.Time) (int, error)
}
