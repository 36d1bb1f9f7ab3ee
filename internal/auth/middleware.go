package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/noah-isme/greenmart/internal/common"
)

var (
	errNoToken       = errors.New("auth: token missing")
	errNotConfigured = errors.New("auth: service not configured")
)

// TokenParser verifies bearer tokens.
type TokenParser interface {
	ParseAccessToken(token string) (Claims, error)
}

// Middleware wires authentication context into HTTP handlers.
type Middleware struct {
	Service      TokenParser
	AccessCookie string
}

// Authenticate attaches the caller identity when a valid token is present and
// lets anonymous requests through.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if claims, err := m.identify(r); err == nil {
			r = r.WithContext(withClaims(r.Context(), claims))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAuth rejects requests without a verifiable token.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := m.identify(r)
		switch {
		case errors.Is(err, errNoToken):
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
		case err != nil:
			common.WriteError(w, err, http.StatusUnauthorized, "UNAUTHORIZED")
		default:
			next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
		}
	})
}

// RequireRole rejects authenticated callers lacking role. It must run after RequireAuth.
func (m Middleware) RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !common.HasRole(r.Context(), role) {
				common.JSONError(w, http.StatusForbidden, "FORBIDDEN", "insufficient role", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) identify(r *http.Request) (Claims, error) {
	if m.Service == nil {
		return Claims{}, errNotConfigured
	}
	token := bearerToken(r)
	if token == "" && m.AccessCookie != "" {
		if cookie, err := r.Cookie(m.AccessCookie); err == nil {
			token = strings.TrimSpace(cookie.Value)
		}
	}
	if token == "" {
		return Claims{}, errNoToken
	}
	return m.Service.ParseAccessToken(token)
}

func withClaims(ctx context.Context, claims Claims) context.Context {
	return common.WithRoles(common.WithUserID(ctx, claims.Subject), claims.Roles)
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
