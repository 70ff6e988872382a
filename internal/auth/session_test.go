package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// stubHasher keeps credential tests fast and deterministic.
type stubHasher struct{}

func (stubHasher) Hash(plain string) (string, error) { return "hashed:" + plain, nil }
func (stubHasher) Verify(plain, hash string) bool    { return hash == "hashed:"+plain }

func testThrottle() ThrottlePolicy {
	return ThrottlePolicy{
		AccountThreshold: 3,
		AccountWindow:    15 * time.Minute,
		SourceThreshold:  5,
		SourceWindow:     10 * time.Minute,
	}
}

func newTestService(t *testing.T) (*Service, *MemoryStore, *fakeClock) {
	t.Helper()
	clk := &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	issuer, err := NewIssuer("test-secret", WithIssuerClock(clk.Now))
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	store := NewMemoryStore()
	svc, err := NewService(store, issuer,
		WithClock(clk.Now),
		WithHasher(stubHasher{}),
		WithThrottle(testThrottle()),
	)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, store, clk
}

func seedAccount(store *MemoryStore, id, email string) Account {
	acct := Account{
		ID:           id,
		Email:        email,
		PasswordHash: "hashed:correct-horse",
		Active:       true,
		EmployeeID:   "emp-" + id,
		SectionID:    "sec-1",
	}
	store.AddAccount(acct)
	return acct
}

func TestLoginSuccess(t *testing.T) {
	svc, store, clk := newTestService(t)
	seedAccount(store, "acc-1", "ada@example.org")
	ctx := context.Background()

	resp, err := svc.Login(ctx, "Ada@Example.org", "correct-horse", "10.0.0.1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if resp.AccessToken == "" || resp.RefreshToken == "" {
		t.Fatalf("expected both tokens, got %+v", resp)
	}
	if !resp.ExpiresAt.After(clk.Now()) {
		t.Fatalf("expected future expiry, got %v", resp.ExpiresAt)
	}
	if resp.PasswordExpired {
		t.Fatalf("password not expired, flag should be false")
	}

	acct, err := store.Accounts(ctx).Find(ctx, "acc-1")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if !acct.LastAccessAt.Equal(clk.Now()) {
		t.Fatalf("last access not updated: %v", acct.LastAccessAt)
	}
}

func TestLoginFailuresShareGenericMessage(t *testing.T) {
	svc, store, _ := newTestService(t)
	acct := seedAccount(store, "acc-1", "ada@example.org")
	ctx := context.Background()

	_, unknownErr := svc.Login(ctx, "nobody@example.org", "whatever", "10.0.0.1")
	_, wrongErr := svc.Login(ctx, acct.Email, "wrong-password", "10.0.0.1")

	if !errors.Is(unknownErr, ErrInvalidCredentials) || !errors.Is(wrongErr, ErrInvalidCredentials) {
		t.Fatalf("expected generic credential failure, got %v / %v", unknownErr, wrongErr)
	}
	if unknownErr.Error() != wrongErr.Error() {
		t.Fatalf("messages differ, enumeration possible: %q vs %q", unknownErr, wrongErr)
	}

	// Unknown email still leaves a ledger row.
	n, err := store.LoginAttempts(ctx).CountFailedBySource(ctx, "10.0.0.1", time.Time{})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 failed attempts on address, got %d", n)
	}
}

func TestLoginInactiveAccountRejected(t *testing.T) {
	svc, store, _ := newTestService(t)
	acct := seedAccount(store, "acc-1", "ada@example.org")
	acct.Active = false
	store.AddAccount(acct)

	_, err := svc.Login(context.Background(), acct.Email, "correct-horse", "10.0.0.1")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for inactive account, got %v", err)
	}
}

func TestAccountLockoutAfterThreshold(t *testing.T) {
	svc, store, clk := newTestService(t)
	acct := seedAccount(store, "acc-1", "ada@example.org")
	ctx := context.Background()

	for i := 0; i < testThrottle().AccountThreshold; i++ {
		if _, err := svc.Login(ctx, acct.Email, "wrong", "10.0.0.1"); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}

	// Correct password no longer helps inside the window.
	if _, err := svc.Login(ctx, acct.Email, "correct-horse", "10.0.0.1"); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected account lock, got %v", err)
	}

	clk.Advance(testThrottle().AccountWindow + time.Minute)
	if _, err := svc.Login(ctx, acct.Email, "correct-horse", "10.0.0.1"); err != nil {
		t.Fatalf("expected login after window elapsed, got %v", err)
	}
}

func TestAddressLockoutIsAccountIndependent(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	for i := 0; i < 6; i++ {
		seedAccount(store, fmt.Sprintf("acc-%d", i), fmt.Sprintf("user%d@example.org", i))
	}

	// Spray distinct accounts from one address; each account stays under
	// its own threshold.
	for i := 0; i < testThrottle().SourceThreshold; i++ {
		email := fmt.Sprintf("user%d@example.org", i)
		if _, err := svc.Login(ctx, email, "wrong", "203.0.113.7"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}

	if _, err := svc.Login(ctx, "user5@example.org", "correct-horse", "203.0.113.7"); !errors.Is(err, ErrAddressLocked) {
		t.Fatalf("expected address lock, got %v", err)
	}
	// The same account from a clean address is unaffected.
	if _, err := svc.Login(ctx, "user5@example.org", "correct-horse", "198.51.100.2"); err != nil {
		t.Fatalf("clean address should pass, got %v", err)
	}
}

func TestAddressLockoutWritesNoFurtherLedgerRows(t *testing.T) {
	svc, store, _ := newTestService(t)
	seedAccount(store, "acc-1", "ada@example.org")
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		seedAccount(store, fmt.Sprintf("spray-%d", i), fmt.Sprintf("spray%d@example.org", i))
	}
	for i := 0; i < testThrottle().SourceThreshold; i++ {
		_, _ = svc.Login(ctx, fmt.Sprintf("spray%d@example.org", i), "wrong", "203.0.113.7")
	}
	before, _ := store.LoginAttempts(ctx).CountFailedBySource(ctx, "203.0.113.7", time.Time{})

	if _, err := svc.Login(ctx, "ada@example.org", "correct-horse", "203.0.113.7"); !errors.Is(err, ErrAddressLocked) {
		t.Fatalf("expected address lock, got %v", err)
	}
	after, _ := store.LoginAttempts(ctx).CountFailedBySource(ctx, "203.0.113.7", time.Time{})
	if after != before {
		t.Fatalf("address lock must not append to the ledger: %d -> %d", before, after)
	}
}

func TestRefreshRotatesAndDetectsReuse(t *testing.T) {
	svc, store, _ := newTestService(t)
	seedAccount(store, "acc-1", "ada@example.org")
	ctx := context.Background()

	login, err := svc.Login(ctx, "ada@example.org", "correct-horse", "10.0.0.1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	first, err := svc.Refresh(ctx, login.RefreshToken, "10.0.0.1")
	if err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	if first.RefreshToken == login.RefreshToken {
		t.Fatalf("rotation must issue a new secret")
	}

	second, err := svc.Refresh(ctx, first.RefreshToken, "10.0.0.1")
	if err != nil {
		t.Fatalf("second refresh: %v", err)
	}

	// The login-time secret was rotated out; presenting it again is theft.
	if _, err := svc.Refresh(ctx, login.RefreshToken, "10.0.0.1"); !errors.Is(err, ErrTokenReused) {
		t.Fatalf("expected reuse detection, got %v", err)
	}

	// Mass revocation killed the still-unused latest secret too.
	if _, err := svc.Refresh(ctx, second.RefreshToken, "10.0.0.1"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected latest secret dead after mass revocation, got %v", err)
	}
}

func TestRotationLinksChain(t *testing.T) {
	svc, store, _ := newTestService(t)
	seedAccount(store, "acc-1", "ada@example.org")
	ctx := context.Background()

	login, err := svc.Login(ctx, "ada@example.org", "correct-horse", "10.0.0.1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	next, err := svc.Refresh(ctx, login.RefreshToken, "10.0.0.1")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	old, err := store.RefreshTokens(ctx).FindByHash(ctx, HashRefreshSecret(login.RefreshToken))
	if err != nil {
		t.Fatalf("FindByHash: %v", err)
	}
	if !old.Revoked() {
		t.Fatalf("rotated-out record must be revoked")
	}
	if old.ReplacedBy != HashRefreshSecret(next.RefreshToken) {
		t.Fatalf("replaced-by must point at the successor hash")
	}
}

func TestRefreshExpiredTokenNotRotated(t *testing.T) {
	svc, store, clk := newTestService(t)
	seedAccount(store, "acc-1", "ada@example.org")
	ctx := context.Background()

	login, err := svc.Login(ctx, "ada@example.org", "correct-horse", "10.0.0.1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	clk.Advance(8 * 24 * time.Hour)

	if _, err := svc.Refresh(ctx, login.RefreshToken, "10.0.0.1"); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected expired token error, got %v", err)
	}
	rec, err := store.RefreshTokens(ctx).FindByHash(ctx, HashRefreshSecret(login.RefreshToken))
	if err != nil {
		t.Fatalf("FindByHash: %v", err)
	}
	if rec.Revoked() {
		t.Fatalf("expired token must not be revoke-rotated")
	}
}

func TestRefreshAfterLogoutFails(t *testing.T) {
	svc, store, _ := newTestService(t)
	seedAccount(store, "acc-1", "ada@example.org")
	ctx := context.Background()

	login, err := svc.Login(ctx, "ada@example.org", "correct-horse", "10.0.0.1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := svc.Logout(ctx, login.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := svc.Refresh(ctx, login.RefreshToken, "10.0.0.1"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized after logout, got %v", err)
	}
}

func TestLogoutIdempotent(t *testing.T) {
	svc, store, clk := newTestService(t)
	seedAccount(store, "acc-1", "ada@example.org")
	ctx := context.Background()

	if err := svc.Logout(ctx, "never-issued-secret"); err != nil {
		t.Fatalf("logout of unknown token must succeed, got %v", err)
	}

	login, err := svc.Login(ctx, "ada@example.org", "correct-horse", "10.0.0.1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := svc.Logout(ctx, login.RefreshToken); err != nil {
		t.Fatalf("first logout: %v", err)
	}
	rec, _ := store.RefreshTokens(ctx).FindByHash(ctx, HashRefreshSecret(login.RefreshToken))
	firstRevokedAt := *rec.RevokedAt

	clk.Advance(time.Hour)
	if err := svc.Logout(ctx, login.RefreshToken); err != nil {
		t.Fatalf("second logout: %v", err)
	}
	rec, _ = store.RefreshTokens(ctx).FindByHash(ctx, HashRefreshSecret(login.RefreshToken))
	if !rec.RevokedAt.Equal(firstRevokedAt) {
		t.Fatalf("second logout must not change state: %v -> %v", firstRevokedAt, rec.RevokedAt)
	}
}

func TestPasswordExpiredFlagAndChange(t *testing.T) {
	svc, store, clk := newTestService(t)
	acct := seedAccount(store, "acc-1", "ada@example.org")
	expired := clk.Now().Add(-time.Hour)
	acct.PasswordExpiresAt = &expired
	store.AddAccount(acct)
	ctx := context.Background()

	resp, err := svc.Login(ctx, acct.Email, "correct-horse", "10.0.0.1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !resp.PasswordExpired {
		t.Fatalf("expected password_expired=true")
	}

	if err := svc.ChangePassword(ctx, acct.ID, "correct-horse", "new-secret-phrase"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}

	// The change revoked every session; log in again with the new password.
	if _, err := svc.Refresh(ctx, resp.RefreshToken, "10.0.0.1"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected old session revoked, got %v", err)
	}
	resp, err = svc.Login(ctx, acct.Email, "new-secret-phrase", "10.0.0.1")
	if err != nil {
		t.Fatalf("relogin: %v", err)
	}
	if resp.PasswordExpired {
		t.Fatalf("expiry must be cleared by the change")
	}
}

func TestChangePasswordRejectsWrongCurrent(t *testing.T) {
	svc, store, _ := newTestService(t)
	acct := seedAccount(store, "acc-1", "ada@example.org")

	err := svc.ChangePassword(context.Background(), acct.ID, "not-it", "new-secret")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}

func TestRefreshRecomputesPasswordExpiry(t *testing.T) {
	svc, store, clk := newTestService(t)
	acct := seedAccount(store, "acc-1", "ada@example.org")
	soon := clk.Now().Add(30 * time.Minute)
	acct.PasswordExpiresAt = &soon
	store.AddAccount(acct)
	ctx := context.Background()

	login, err := svc.Login(ctx, acct.Email, "correct-horse", "10.0.0.1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if login.PasswordExpired {
		t.Fatalf("not yet expired at login")
	}

	clk.Advance(time.Hour)
	refreshed, err := svc.Refresh(ctx, login.RefreshToken, "10.0.0.1")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if !refreshed.PasswordExpired {
		t.Fatalf("refresh must recompute the expired flag")
	}
}

func TestAuthenticateBuildsView(t *testing.T) {
	svc, store, _ := newTestService(t)
	acct := seedAccount(store, "acc-1", "ada@example.org")
	store.GrantRoles(acct.ID, Role{
		ID:   "role-hr",
		Name: "hr",
		Grants: []ResourcePermission{
			{RoleID: "role-hr", Resource: "employees", CanCreate: true, Scope: ScopeSection},
		},
	})
	ctx := context.Background()

	login, err := svc.Login(ctx, acct.Email, "correct-horse", "10.0.0.1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	view, err := svc.Authenticate(ctx, login.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if view.AccountID != acct.ID || view.EmployeeID != acct.EmployeeID || view.SectionID != acct.SectionID {
		t.Fatalf("view identity mismatch: %+v", view)
	}
	grant, ok := view.Grant("employees")
	if !ok || !grant.CanCreate || grant.Scope != ScopeSection {
		t.Fatalf("unexpected grant: %+v ok=%v", grant, ok)
	}

	if _, err := svc.Authenticate(ctx, "not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}
}
