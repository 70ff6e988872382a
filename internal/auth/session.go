package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"opsdesk.org/internal/ids"
)

// Service orchestrates login, refresh-token rotation and logout on top of
// the durable stores. It holds no per-request state; every call is handled
// independently.
type Service struct {
	store    Store
	issuer   *Issuer
	hasher   PasswordHasher
	throttle ThrottlePolicy
	now      func() time.Time
}

// Option configures Service behavior.
type Option func(*Service) error

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// WithThrottle overrides the brute-force lockout policy.
func WithThrottle(p ThrottlePolicy) Option {
	return func(s *Service) error {
		if p.AccountThreshold <= 0 || p.SourceThreshold <= 0 {
			return errors.New("auth: throttle thresholds must be positive")
		}
		s.throttle = p
		return nil
	}
}

// WithHasher overrides the password hasher.
func WithHasher(h PasswordHasher) Option {
	return func(s *Service) error {
		if h != nil {
			s.hasher = h
		}
		return nil
	}
}

// NewService constructs the session service.
func NewService(store Store, issuer *Issuer, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	if issuer == nil {
		return nil, errors.New("auth: issuer is required")
	}
	svc := &Service{
		store:    store,
		issuer:   issuer,
		hasher:   BcryptHasher{},
		throttle: DefaultThrottlePolicy(),
		now:      time.Now,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// AuthResponse is the result of a successful login or refresh.
type AuthResponse struct {
	AccessToken     string    `json:"access_token"`
	RefreshToken    string    `json:"refresh_token"`
	ExpiresAt       time.Time `json:"expires_at"`
	PasswordExpired bool      `json:"password_expired"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Login authenticates credentials from a source address. Ledger writes and
// account mutations of one call commit together: a denial outcome is decided
// inside the transaction but returned only after the attempt row is durable.
// Credential failures all surface as ErrInvalidCredentials; lockouts as
// ErrAddressLocked / ErrAccountLocked.
func (s *Service) Login(ctx context.Context, email, password, sourceIP string) (AuthResponse, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return AuthResponse{}, ErrInvalidCredentials
	}

	var (
		resp    AuthResponse
		outcome error
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Store) error {
		now := s.now().UTC()

		// Address axis first: a locked address is rejected without any
		// further ledger write and without revealing whether the account
		// exists.
		failedSrc, err := tx.LoginAttempts(ctx).CountFailedBySource(ctx, sourceIP, s.throttle.SourceSince(now))
		if err != nil {
			return err
		}
		if !s.throttle.AllowSource(failedSrc) {
			outcome = ErrAddressLocked
			return nil
		}

		acct, err := tx.Accounts(ctx).FindByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				// Unknown email still leaves a ledger row so address
				// throttling covers enumeration sweeps.
				if err := s.appendAttempt(ctx, tx, email, sourceIP, "", false, now); err != nil {
					return err
				}
				outcome = ErrInvalidCredentials
				return nil
			}
			return err
		}

		failedAcct, err := tx.LoginAttempts(ctx).CountFailedByEmail(ctx, email, s.throttle.AccountSince(now))
		if err != nil {
			return err
		}
		if !s.throttle.AllowAccount(failedAcct) {
			if err := s.appendAttempt(ctx, tx, email, sourceIP, acct.ID, false, now); err != nil {
				return err
			}
			outcome = ErrAccountLocked
			return nil
		}

		if !acct.Active || !s.hasher.Verify(password, acct.PasswordHash) {
			if err := s.appendAttempt(ctx, tx, email, sourceIP, acct.ID, false, now); err != nil {
				return err
			}
			outcome = ErrInvalidCredentials
			return nil
		}

		if err := s.appendAttempt(ctx, tx, email, sourceIP, acct.ID, true, now); err != nil {
			return err
		}
		if err := tx.Accounts(ctx).UpdateLastAccess(ctx, acct.ID, now); err != nil {
			return err
		}
		resp, err = s.issueSession(ctx, tx, acct, now)
		return err
	})
	if err != nil {
		return AuthResponse{}, fmt.Errorf("login: %w", err)
	}
	if outcome != nil {
		return AuthResponse{}, outcome
	}
	return resp, nil
}

// Refresh rotates a refresh token. Presenting a secret whose record is
// already revoked is treated as theft: every usable token of the account is
// revoked and the call fails with ErrTokenReused. Concurrent rotations of
// the same token serialize on the row lock; the loser observes the revoked
// state and lands on the reuse path, which is the intended conservative
// behavior under race.
func (s *Service) Refresh(ctx context.Context, rawSecret, sourceIP string) (AuthResponse, error) {
	rawSecret = strings.TrimSpace(rawSecret)
	if rawSecret == "" {
		return AuthResponse{}, ErrInvalidToken
	}
	hash := HashRefreshSecret(rawSecret)

	var (
		resp    AuthResponse
		outcome error
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Store) error {
		now := s.now().UTC()
		tokens := tx.RefreshTokens(ctx)

		rec, err := tokens.FindByHash(ctx, hash)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				outcome = ErrInvalidToken
				return nil
			}
			return err
		}
		if rec.Revoked() {
			if _, err := tokens.RevokeAllForAccount(ctx, rec.AccountID, now); err != nil {
				return err
			}
			outcome = ErrTokenReused
			return nil
		}
		if rec.Expired(now) {
			outcome = ErrTokenExpired
			return nil
		}

		acct, err := tx.Accounts(ctx).Find(ctx, rec.AccountID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				outcome = ErrInvalidToken
				return nil
			}
			return err
		}
		if !acct.Active {
			if err := tokens.Revoke(ctx, rec.ID, now, ""); err != nil {
				return err
			}
			outcome = ErrInvalidToken
			return nil
		}

		rawNext, err := s.issuer.NewRefreshSecret()
		if err != nil {
			return err
		}
		nextHash := HashRefreshSecret(rawNext)
		if err := tokens.Revoke(ctx, rec.ID, now, nextHash); err != nil {
			return err
		}
		next := &RefreshToken{
			ID:        ids.New(),
			AccountID: acct.ID,
			TokenHash: nextHash,
			CreatedAt: now,
			ExpiresAt: s.issuer.RefreshExpiry(now),
		}
		if err := tokens.Create(ctx, next); err != nil {
			return err
		}

		access, exp, err := s.issuer.AccessToken(acct.ID)
		if err != nil {
			return err
		}
		resp = AuthResponse{
			AccessToken:     access,
			RefreshToken:    rawNext,
			ExpiresAt:       exp,
			PasswordExpired: acct.PasswordExpired(now),
		}
		return nil
	})
	if err != nil {
		return AuthResponse{}, fmt.Errorf("refresh: %w", err)
	}
	if outcome != nil {
		return AuthResponse{}, outcome
	}
	return resp, nil
}

// Logout revokes the presented refresh token. It is idempotent: an unknown
// or already-revoked token is a no-op success, so logging out twice or
// logging out an expired session is harmless.
func (s *Service) Logout(ctx context.Context, rawSecret string) error {
	rawSecret = strings.TrimSpace(rawSecret)
	if rawSecret == "" {
		return nil
	}
	hash := HashRefreshSecret(rawSecret)

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Store) error {
		now := s.now().UTC()
		tokens := tx.RefreshTokens(ctx)
		rec, err := tokens.FindByHash(ctx, hash)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			return err
		}
		if rec.Revoked() {
			return nil
		}
		return tokens.Revoke(ctx, rec.ID, now, "")
	})
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// ChangePassword verifies the current password, stores the new hash, clears
// any password expiry and revokes every refresh token of the account so
// stolen sessions do not survive the change.
func (s *Service) ChangePassword(ctx context.Context, accountID, current, next string) error {
	if strings.TrimSpace(next) == "" {
		return ErrInvalidCredentials
	}

	var outcome error
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Store) error {
		now := s.now().UTC()
		acct, err := tx.Accounts(ctx).Find(ctx, accountID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				outcome = ErrUnauthorized
				return nil
			}
			return err
		}
		if !s.hasher.Verify(current, acct.PasswordHash) {
			outcome = ErrInvalidCredentials
			return nil
		}
		hash, err := s.hasher.Hash(next)
		if err != nil {
			return err
		}
		if err := tx.Accounts(ctx).UpdatePassword(ctx, acct.ID, hash, now); err != nil {
			return err
		}
		_, err = tx.RefreshTokens(ctx).RevokeAllForAccount(ctx, acct.ID, now)
		return err
	})
	if err != nil {
		return fmt.Errorf("change password: %w", err)
	}
	return outcome
}

// Authenticate validates an access token and builds the per-request
// permission view for its subject.
func (s *Service) Authenticate(ctx context.Context, rawToken string) (PermissionView, error) {
	claims, err := s.issuer.ParseAccessToken(rawToken)
	if err != nil {
		return PermissionView{}, ErrInvalidToken
	}
	view, err := s.PermissionViewFor(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnauthorized) {
			return PermissionView{}, ErrInvalidToken
		}
		return PermissionView{}, err
	}
	return view, nil
}

// PermissionViewFor loads the account and its roles and resolves them into
// one merged view. Inactive accounts never get a view.
func (s *Service) PermissionViewFor(ctx context.Context, accountID string) (PermissionView, error) {
	acct, err := s.store.Accounts(ctx).Find(ctx, accountID)
	if err != nil {
		return PermissionView{}, err
	}
	if !acct.Active {
		return PermissionView{}, ErrUnauthorized
	}
	roles, err := s.store.Roles(ctx).ForAccount(ctx, acct.ID)
	if err != nil {
		return PermissionView{}, err
	}
	return ResolvePermissions(acct, roles, s.now().UTC()), nil
}

func (s *Service) issueSession(ctx context.Context, tx Store, acct *Account, now time.Time) (AuthResponse, error) {
	access, exp, err := s.issuer.AccessToken(acct.ID)
	if err != nil {
		return AuthResponse{}, err
	}
	rawRefresh, err := s.issuer.NewRefreshSecret()
	if err != nil {
		return AuthResponse{}, err
	}
	rec := &RefreshToken{
		ID:        ids.New(),
		AccountID: acct.ID,
		TokenHash: HashRefreshSecret(rawRefresh),
		CreatedAt: now,
		ExpiresAt: s.issuer.RefreshExpiry(now),
	}
	if err := tx.RefreshTokens(ctx).Create(ctx, rec); err != nil {
		return AuthResponse{}, err
	}
	return AuthResponse{
		AccessToken:     access,
		RefreshToken:    rawRefresh,
		ExpiresAt:       exp,
		PasswordExpired: acct.PasswordExpired(now),
	}, nil
}

func (s *Service) appendAttempt(ctx context.Context, tx Store, email, sourceIP, accountID string, success bool, now time.Time) error {
	return tx.LoginAttempts(ctx).Append(ctx, &LoginAttempt{
		ID:        ids.New(),
		Email:     email,
		SourceIP:  sourceIP,
		AccountID: accountID,
		Success:   success,
		CreatedAt: now,
	})
}
