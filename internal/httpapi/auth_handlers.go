package httpapi

import (
	"errors"
	"net/http"

	"theinternetcompany.one/internal/audit"
	"theinternetcompany.one/internal/auth"
	"theinternetcompany.one/internal/obs"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	pair, err := a.auth.Login(r.Context(), req.Email, req.Password, clientMetadata(r))
	if err != nil {
		a.handleAuthError(w, r, err, "login")
		return
	}

	obs.CountLogin("ok")
	_ = audit.Emit(r.Context(), audit.EventLogin, map[string]any{
		"email": req.Email,
		"ip":    clientIP(r),
	})

	a.setAuthCookies(w, pair)
	writeJSON(w, http.StatusOK, pair)
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	// The body is optional for cookie-carrying browser clients.
	var req refreshRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
	}
	token := refreshTokenFromRequest(r, req.RefreshToken)
	if token == "" {
		a.clearAuthCookies(w)
		writeError(w, r, http.StatusUnauthorized, "refresh token is required")
		return
	}

	pair, err := a.auth.Refresh(r.Context(), token, clientMetadata(r))
	if err != nil {
		// A failed rotation invalidates whatever the browser holds.
		a.clearAuthCookies(w)
		a.handleAuthError(w, r, err, "refresh")
		return
	}

	obs.CountRefresh("ok")
	_ = audit.Emit(r.Context(), audit.EventRefresh, map[string]any{
		"ip": clientIP(r),
	})

	a.setAuthCookies(w, pair)
	writeJSON(w, http.StatusOK, pair)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req logoutRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
	}
	token := refreshTokenFromRequest(r, req.RefreshToken)

	// Missing or garbage tokens still log the client out locally.
	if token != "" {
		if err := a.auth.Logout(r.Context(), token); err != nil {
			writeError(w, r, http.StatusInternalServerError, "logout failed")
			return
		}
		obs.CountRevocation("single")
		_ = audit.Emit(r.Context(), audit.EventLogout, nil)
	}

	a.clearAuthCookies(w)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (a *API) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	if err := a.auth.LogoutAll(r.Context(), userID); err != nil {
		writeError(w, r, http.StatusInternalServerError, "logout failed")
		return
	}

	obs.CountRevocation("user")
	_ = audit.Emit(r.Context(), audit.EventLogoutAll, nil)

	a.clearAuthCookies(w)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":     claims.Subject,
		"email":       claims.Email,
		"roles":       claims.Roles,
		"permissions": claims.Permissions,
	})
}

func (a *API) handleAuthError(w http.ResponseWriter, r *http.Request, err error, op string) {
	count := obs.CountLogin
	if op == "refresh" {
		count = obs.CountRefresh
	}
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		count("invalid_credentials")
		_ = audit.Emit(r.Context(), audit.EventLoginFailed, map[string]any{"ip": clientIP(r)})
		writeError(w, r, http.StatusUnauthorized, err.Error())
	case errors.Is(err, auth.ErrInvalidToken):
		count("invalid_token")
		writeError(w, r, http.StatusUnauthorized, err.Error())
	case errors.Is(err, auth.ErrSessionRevoked):
		count("session_revoked")
		writeError(w, r, http.StatusUnauthorized, err.Error())
	case errors.Is(err, auth.ErrStoreUnavailable):
		count("store_unavailable")
		writeError(w, r, http.StatusServiceUnavailable, "service unavailable")
	default:
		count("error")
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func clientMetadata(r *http.Request) auth.ClientMetadata {
	return auth.ClientMetadata{
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
	}
}
