package auth

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used by tests and by dev mode when no
// database is configured. Writes apply immediately; WithinTx only serializes
// whole calls, which is enough for single-process use.
type MemoryStore struct {
	txMu sync.Mutex

	mu           sync.RWMutex
	accounts     map[string]*Account
	emailIndex   map[string]string
	roles        map[string][]Role
	tokens       map[string]*RefreshToken
	tokensByHash map[string]string
	attempts     []LoginAttempt
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:     make(map[string]*Account),
		emailIndex:   make(map[string]string),
		roles:        make(map[string][]Role),
		tokens:       make(map[string]*RefreshToken),
		tokensByHash: make(map[string]string),
	}
}

// AddAccount registers an account. Intended for tests and dev seeding.
func (s *MemoryStore) AddAccount(acct Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := acct
	s.accounts[acct.ID] = &cp
	s.emailIndex[normalizeEmail(acct.Email)] = acct.ID
}

// GrantRoles assigns roles (with grants attached) to an account.
func (s *MemoryStore) GrantRoles(accountID string, roles ...Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[accountID] = append(s.roles[accountID], roles...)
}

func (s *MemoryStore) Accounts(context.Context) AccountStore           { return (*memAccounts)(s) }
func (s *MemoryStore) Roles(context.Context) RoleStore                 { return (*memRoles)(s) }
func (s *MemoryStore) RefreshTokens(context.Context) RefreshTokenStore { return (*memTokens)(s) }
func (s *MemoryStore) LoginAttempts(context.Context) LoginAttemptStore { return (*memAttempts)(s) }

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return fn(ctx, s)
}

type memAccounts MemoryStore

func (s *memAccounts) Find(_ context.Context, id string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *acct
	return &cp, nil
}

func (s *memAccounts) FindByEmail(_ context.Context, email string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.emailIndex[normalizeEmail(email)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s.accounts[id]
	return &cp, nil
}

func (s *memAccounts) UpdateLastAccess(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[id]
	if !ok {
		return ErrNotFound
	}
	acct.LastAccessAt = at
	acct.UpdatedAt = at
	return nil
}

func (s *memAccounts) UpdatePassword(_ context.Context, id, passwordHash string, changedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[id]
	if !ok {
		return ErrNotFound
	}
	acct.PasswordHash = passwordHash
	acct.PasswordChangedAt = changedAt
	acct.PasswordExpiresAt = nil
	acct.UpdatedAt = changedAt
	return nil
}

type memRoles MemoryStore

func (s *memRoles) ForAccount(_ context.Context, accountID string) ([]Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Role, len(s.roles[accountID]))
	copy(out, s.roles[accountID])
	return out, nil
}

type memTokens MemoryStore

func (s *memTokens) Create(_ context.Context, tok *RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *tok
	s.tokens[tok.ID] = &cp
	s.tokensByHash[tok.TokenHash] = tok.ID
	return nil
}

func (s *memTokens) FindByHash(_ context.Context, tokenHash string) (*RefreshToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.tokensByHash[tokenHash]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s.tokens[id]
	return &cp, nil
}

func (s *memTokens) Revoke(_ context.Context, id string, at time.Time, replacedBy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[id]
	if !ok {
		return ErrNotFound
	}
	if tok.RevokedAt == nil {
		ts := at
		tok.RevokedAt = &ts
		tok.ReplacedBy = replacedBy
	}
	return nil
}

func (s *memTokens) RevokeAllForAccount(_ context.Context, accountID string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, tok := range s.tokens {
		if tok.AccountID != accountID || tok.RevokedAt != nil {
			continue
		}
		ts := at
		tok.RevokedAt = &ts
		n++
	}
	return n, nil
}

type memAttempts MemoryStore

func (s *memAttempts) Append(_ context.Context, attempt *LoginAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, *attempt)
	return nil
}

func (s *memAttempts) CountFailedByEmail(_ context.Context, email string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	email = normalizeEmail(email)
	count := 0
	for _, a := range s.attempts {
		if !a.Success && a.Email == email && !a.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (s *memAttempts) CountFailedBySource(_ context.Context, sourceIP string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, a := range s.attempts {
		if !a.Success && a.SourceIP == sourceIP && !a.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}
