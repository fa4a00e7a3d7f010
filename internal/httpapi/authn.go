package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"theinternetcompany.one/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/v1/auth/login",
	"/v1/auth/refresh",
	"/v1/auth/logout",
	"/metrics",
	"/healthz",
	"/readyz",
	"/",
}

// withAuth authenticates every non-public request and hangs the verified
// claims on the context. Permission checks happen per handler.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token := accessTokenFromRequest(r)
		if token == "" {
			writeError(w, r, http.StatusUnauthorized, "missing bearer token")
			return
		}

		claims, err := a.auth.Authorize(r.Context(), token, "")
		if err != nil {
			if errors.Is(err, auth.ErrUnauthenticated) {
				writeError(w, r, http.StatusUnauthorized, "invalid token")
				return
			}
			writeError(w, r, http.StatusInternalServerError, "authentication error")
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.ContextWithClaims(r.Context(), claims)))
	})
}

// ensurePermission gates a handler on one permission key. Writes the error
// response itself and reports whether the handler may proceed.
func (a *API) ensurePermission(w http.ResponseWriter, r *http.Request, perm string) bool {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return false
	}
	if !claims.HasPermission(perm) {
		writeError(w, r, http.StatusForbidden, "permission denied")
		return false
	}
	return true
}

// accessTokenFromRequest reads the bearer header first, then the cookie a
// browser client carries.
func accessTokenFromRequest(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get(authHeader))
	if header != "" {
		if strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
			return strings.TrimSpace(header[len(bearer):])
		}
		return ""
	}
	if cookie, err := r.Cookie(accessCookie); err == nil {
		return cookie.Value
	}
	return ""
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
