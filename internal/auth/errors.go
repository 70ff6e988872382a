package auth

import (
	"errors"
	"fmt"
)

// Sentinel outcomes of the session and authorization core. Every failure
// that crosses the package boundary is one of these (or wraps one);
// infrastructure errors surface separately and must not leak details.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")

	// Credential failures deliberately share one message so responses do
	// not reveal whether the email, the password, or the account state
	// was at fault.
	ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
	ErrAddressLocked      = fmt.Errorf("%w: too many attempts from this address", ErrUnauthorized)
	ErrAccountLocked      = fmt.Errorf("%w: account temporarily locked", ErrUnauthorized)

	ErrInvalidToken = fmt.Errorf("%w: invalid token", ErrUnauthorized)
	ErrTokenExpired = fmt.Errorf("%w: token expired", ErrUnauthorized)
	ErrTokenReused  = fmt.Errorf("%w: token reused, all sessions revoked", ErrUnauthorized)

	ErrPasswordExpired = fmt.Errorf("%w: password expired", ErrForbidden)
)
