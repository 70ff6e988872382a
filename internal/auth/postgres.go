package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// querier is satisfied by both *sql.DB and *sql.Tx so the same sub-store
// code serves transactional and plain access.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB // nil inside a transaction
	q  querier
}

// NewPGStore wraps an open database handle.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db, q: db}
}

func (s *PGStore) Accounts(context.Context) AccountStore { return &pgAccounts{q: s.q} }
func (s *PGStore) Roles(context.Context) RoleStore       { return &pgRoles{q: s.q} }
func (s *PGStore) RefreshTokens(context.Context) RefreshTokenStore {
	return &pgTokens{q: s.q}
}
func (s *PGStore) LoginAttempts(context.Context) LoginAttemptStore {
	return &pgAttempts{q: s.q}
}

// WithinTx runs fn inside a database transaction. Nested calls reuse the
// surrounding transaction.
func (s *PGStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	if s.db == nil {
		return fn(ctx, s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(ctx, &PGStore{q: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

// Accounts -----------------------------------------------------------------

type pgAccounts struct{ q querier }

const accountColumns = `id, email, password_hash, active, employee_id, section_id,
	last_access_at, password_expires_at, password_changed_at, created_at, updated_at`

func scanAccount(row *sql.Row) (*Account, error) {
	var (
		acct        Account
		lastAccess  sql.NullTime
		pwdExpires  sql.NullTime
		pwdChanged  sql.NullTime
		employeeID  sql.NullString
		sectionID   sql.NullString
	)
	err := row.Scan(&acct.ID, &acct.Email, &acct.PasswordHash, &acct.Active,
		&employeeID, &sectionID, &lastAccess, &pwdExpires, &pwdChanged,
		&acct.CreatedAt, &acct.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	acct.EmployeeID = employeeID.String
	acct.SectionID = sectionID.String
	if lastAccess.Valid {
		acct.LastAccessAt = lastAccess.Time
	}
	if pwdExpires.Valid {
		t := pwdExpires.Time
		acct.PasswordExpiresAt = &t
	}
	if pwdChanged.Valid {
		acct.PasswordChangedAt = pwdChanged.Time
	}
	return &acct, nil
}

func (s *pgAccounts) Find(ctx context.Context, id string) (*Account, error) {
	row := s.q.QueryRowContext(ctx,
		`select `+accountColumns+` from accounts where id=$1`, id)
	return scanAccount(row)
}

func (s *pgAccounts) FindByEmail(ctx context.Context, email string) (*Account, error) {
	row := s.q.QueryRowContext(ctx,
		`select `+accountColumns+` from accounts where email=$1`, email)
	return scanAccount(row)
}

func (s *pgAccounts) UpdateLastAccess(ctx context.Context, id string, at time.Time) error {
	_, err := s.q.ExecContext(ctx,
		`update accounts set last_access_at=$2, updated_at=$2 where id=$1`, id, at)
	return err
}

func (s *pgAccounts) UpdatePassword(ctx context.Context, id, passwordHash string, changedAt time.Time) error {
	_, err := s.q.ExecContext(ctx,
		`update accounts
		 set password_hash=$2, password_changed_at=$3, password_expires_at=null, updated_at=$3
		 where id=$1`, id, passwordHash, changedAt)
	return err
}

// Roles --------------------------------------------------------------------

type pgRoles struct{ q querier }

func (s *pgRoles) ForAccount(ctx context.Context, accountID string) ([]Role, error) {
	rows, err := s.q.QueryContext(ctx, `
		select r.id, r.name, r.description,
		       p.resource, p.can_create, p.can_edit, p.can_delete, p.scope
		from roles r
		join account_roles ar on ar.role_id = r.id
		left join role_permissions p on p.role_id = r.id
		where ar.account_id = $1
		order by r.id`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		res     []Role
		current *Role
	)
	for rows.Next() {
		var (
			id, name, desc string
			resource       sql.NullString
			canCreate      sql.NullBool
			canEdit        sql.NullBool
			canDelete      sql.NullBool
			scope          sql.NullString
		)
		if err := rows.Scan(&id, &name, &desc, &resource, &canCreate, &canEdit, &canDelete, &scope); err != nil {
			return nil, err
		}
		if current == nil || current.ID != id {
			res = append(res, Role{ID: id, Name: name, Description: desc})
			current = &res[len(res)-1]
		}
		if resource.Valid {
			current.Grants = append(current.Grants, ResourcePermission{
				RoleID:    id,
				Resource:  resource.String,
				CanCreate: canCreate.Bool,
				CanEdit:   canEdit.Bool,
				CanDelete: canDelete.Bool,
				Scope:     ParseScope(scope.String),
			})
		}
	}
	return res, rows.Err()
}

// Refresh tokens -----------------------------------------------------------

type pgTokens struct{ q querier }

func (s *pgTokens) Create(ctx context.Context, tok *RefreshToken) error {
	_, err := s.q.ExecContext(ctx, `
		insert into refresh_tokens(id, account_id, token_hash, created_at, expires_at)
		values ($1,$2,$3,$4,$5)`,
		tok.ID, tok.AccountID, tok.TokenHash, tok.CreatedAt, tok.ExpiresAt)
	return err
}

// FindByHash locks the row so concurrent rotations of the same token
// serialize; the second transaction observes the revoked state.
func (s *pgTokens) FindByHash(ctx context.Context, tokenHash string) (*RefreshToken, error) {
	row := s.q.QueryRowContext(ctx, `
		select id, account_id, token_hash, created_at, expires_at, revoked_at, replaced_by
		from refresh_tokens where token_hash=$1 for update`, tokenHash)
	var (
		tok        RefreshToken
		revokedAt  sql.NullTime
		replacedBy sql.NullString
	)
	err := row.Scan(&tok.ID, &tok.AccountID, &tok.TokenHash, &tok.CreatedAt,
		&tok.ExpiresAt, &revokedAt, &replacedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		tok.RevokedAt = &t
	}
	tok.ReplacedBy = replacedBy.String
	return &tok, nil
}

func (s *pgTokens) Revoke(ctx context.Context, id string, at time.Time, replacedBy string) error {
	_, err := s.q.ExecContext(ctx, `
		update refresh_tokens
		set revoked_at=$2, replaced_by=nullif($3,'')
		where id=$1 and revoked_at is null`, id, at, replacedBy)
	return err
}

func (s *pgTokens) RevokeAllForAccount(ctx context.Context, accountID string, at time.Time) (int64, error) {
	res, err := s.q.ExecContext(ctx, `
		update refresh_tokens set revoked_at=$2
		where account_id=$1 and revoked_at is null`, accountID, at)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Login attempts -----------------------------------------------------------

type pgAttempts struct{ q querier }

func (s *pgAttempts) Append(ctx context.Context, attempt *LoginAttempt) error {
	_, err := s.q.ExecContext(ctx, `
		insert into login_attempts(id, email, source_ip, account_id, success, created_at)
		values ($1,$2,$3,nullif($4,''),$5,$6)`,
		attempt.ID, attempt.Email, attempt.SourceIP, attempt.AccountID,
		attempt.Success, attempt.CreatedAt)
	return err
}

func (s *pgAttempts) CountFailedByEmail(ctx context.Context, email string, since time.Time) (int, error) {
	var count int
	err := s.q.QueryRowContext(ctx, `
		select count(*) from login_attempts
		where email=$1 and success=false and created_at >= $2`, email, since).Scan(&count)
	return count, err
}

func (s *pgAttempts) CountFailedBySource(ctx context.Context, sourceIP string, since time.Time) (int, error) {
	var count int
	err := s.q.QueryRowContext(ctx, `
		select count(*) from login_attempts
		where source_ip=$1 and success=false and created_at >= $2`, sourceIP, since).Scan(&count)
	return count, err
}
