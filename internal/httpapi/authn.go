package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"opsdesk.org/internal/audit"
	"opsdesk.org/internal/auth"
	"opsdesk.org/internal/obs"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// guard resolves the caller's permission view and checks it against the
// operation's declared requirement. On success it returns the request with
// the view attached to its context; on failure it has already written the
// response. Unregistered operations are denied.
func (a *API) guard(w http.ResponseWriter, r *http.Request, operation string) (*http.Request, auth.PermissionView, auth.Decision, bool) {
	req, ok := a.gate.Lookup(operation)
	if !ok {
		writeError(w, r, http.StatusForbidden, "forbidden")
		return r, auth.PermissionView{}, auth.Decision{}, false
	}
	if req.SkipAuth {
		return r, auth.PermissionView{}, auth.Decision{}, true
	}

	token, err := extractBearerToken(r.Header.Get(authHeader))
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, err.Error())
		return r, auth.PermissionView{}, auth.Decision{}, false
	}

	view, err := a.auth.Authenticate(r.Context(), token)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrTokenExpired):
			writeError(w, r, http.StatusUnauthorized, "token expired")
		case errors.Is(err, auth.ErrUnauthorized):
			writeError(w, r, http.StatusUnauthorized, "invalid token")
		default:
			writeError(w, r, http.StatusInternalServerError, "authentication error")
		}
		return r, auth.PermissionView{}, auth.Decision{}, false
	}

	r = r.WithContext(auth.ContextWithView(r.Context(), view))

	decision, err := auth.Authorize(view, req)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrPasswordExpired):
			writeError(w, r, http.StatusForbidden, "password expired")
		case errors.Is(err, auth.ErrForbidden):
			writeError(w, r, http.StatusForbidden, "forbidden")
		default:
			writeError(w, r, http.StatusInternalServerError, "authorization error")
		}
		return r, view, auth.Decision{}, false
	}
	return r, view, decision, true
}

// handleSessionError maps session-service failures to HTTP responses and
// emits the security signals tied to them. Credential failures stay
// indistinguishable from each other on the wire.
func (a *API) handleSessionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrAddressLocked):
		obs.CountLockout("address")
		obs.CountLogin("locked_address")
		_ = audit.LogEvent(r.Context(), "auth.lockout.address", map[string]any{
			"source": clientIP(r),
		})
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, auth.ErrAccountLocked):
		obs.CountLockout("account")
		obs.CountLogin("locked_account")
		_ = audit.LogEvent(r.Context(), "auth.lockout.account", map[string]any{
			"source": clientIP(r),
		})
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, auth.ErrTokenReused):
		obs.CountTokenReuse()
		_ = audit.LogEvent(r.Context(), "auth.token.reuse", map[string]any{
			"source": clientIP(r),
		})
		writeError(w, r, http.StatusUnauthorized, "invalid token")
	case errors.Is(err, auth.ErrTokenExpired):
		writeError(w, r, http.StatusUnauthorized, "token expired")
	case errors.Is(err, auth.ErrInvalidCredentials):
		obs.CountLogin("invalid")
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, r, http.StatusUnauthorized, "invalid token")
	case errors.Is(err, auth.ErrPasswordExpired):
		writeError(w, r, http.StatusForbidden, "password expired")
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "forbidden")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
