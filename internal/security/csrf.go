package security

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/noah-isme/greenmart/internal/common"
)

// CSRF guards cookie-authenticated writes with a double-submit token. Bearer
// requests and requests without the access cookie pass untouched.
type CSRF struct {
	Header       string
	AccessCookie string
}

// Middleware enforces that unsafe methods carry a header matching the CSRF cookie.
func (c CSRF) Middleware(next http.Handler) http.Handler {
	name := strings.TrimSpace(c.Header)
	if name == "" {
		name = "X-CSRF-Token"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if safeMethod(r.Method) || !c.cookieAuthenticated(r) {
			next.ServeHTTP(w, r)
			return
		}
		token := strings.TrimSpace(r.Header.Get(name))
		cookie, err := r.Cookie(name)
		if token == "" || err != nil || cookie.Value == "" {
			common.JSONError(w, http.StatusForbidden, "CSRF_REQUIRED", "missing csrf token", nil)
			return
		}
		if len(token) != len(cookie.Value) || subtle.ConstantTimeCompare([]byte(token), []byte(cookie.Value)) != 1 {
			common.JSONError(w, http.StatusForbidden, "CSRF_INVALID", "invalid csrf token", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (c CSRF) cookieAuthenticated(r *http.Request) bool {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return false
	}
	if c.AccessCookie == "" {
		return false
	}
	_, err := r.Cookie(c.AccessCookie)
	return err == nil
}

func safeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}
