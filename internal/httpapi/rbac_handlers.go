package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"theinternetcompany.one/internal/audit"
	"theinternetcompany.one/internal/auth"
)

type createUserRequest struct {
	Email    string   `json:"email"`
	Password string   `json:"password"`
	RoleIDs  []string `json:"role_ids"`
}

type updateUserRequest struct {
	Password *string `json:"password"`
	IsActive *bool   `json:"is_active"`
}

type assignRolesRequest struct {
	RoleIDs []string `json:"role_ids"`
}

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.ensurePermission(w, r, auth.PermUserView) {
		return
	}
	roles, err := a.rbac.ListRoles(r.Context())
	if err != nil {
		handleRBACError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.ensurePermission(w, r, auth.PermUserCreate) {
		return
	}
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.rbac.CreateUser(r.Context(), req.Email, req.Password, req.RoleIDs)
	if err != nil {
		handleRBACError(w, r, err)
		return
	}
	_ = audit.Emit(r.Context(), audit.EventUserCreated, map[string]any{
		"user_id": user.ID,
		"email":   user.Email,
		"roles":   req.RoleIDs,
	})
	w.Header().Set("Location", fmt.Sprintf("/v1/users/%s", user.ID))
	writeJSON(w, http.StatusCreated, user)
}

// handleUserScoped routes /v1/users/{id} and /v1/users/{id}/roles.
func (a *API) handleUserScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/users/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	userID := parts[0]

	switch {
	case len(parts) == 1:
		a.handleUserUpdate(w, r, userID)
	case len(parts) == 2 && parts[1] == "roles":
		a.handleUserRoles(w, r, userID)
	case len(parts) == 2 && parts[1] == "sessions":
		a.handleUserSessions(w, r, userID)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleUserUpdate(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPatch {
		methodNotAllowed(w, r, http.MethodPatch)
		return
	}
	if !a.ensurePermission(w, r, auth.PermUserUpdate) {
		return
	}
	var req updateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.rbac.UpdateUser(r.Context(), userID, req.Password, req.IsActive); err != nil {
		handleRBACError(w, r, err)
		return
	}
	// Disabling an account ends its sessions immediately rather than at the
	// next refresh attempt.
	if req.IsActive != nil && !*req.IsActive {
		if err := a.auth.LogoutAll(r.Context(), userID); err != nil {
			handleRBACError(w, r, err)
			return
		}
	}
	_ = audit.Emit(r.Context(), audit.EventUserUpdated, map[string]any{
		"user_id": userID,
	})
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (a *API) handleUserRoles(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	if !a.ensurePermission(w, r, auth.PermRoleAssign) {
		return
	}
	var req assignRolesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.rbac.AssignRoles(r.Context(), userID, req.RoleIDs); err != nil {
		handleRBACError(w, r, err)
		return
	}
	_ = audit.Emit(r.Context(), audit.EventRolesChanged, map[string]any{
		"user_id": userID,
		"roles":   req.RoleIDs,
	})
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleUserSessions lets an administrator revoke someone else's sessions.
func (a *API) handleUserSessions(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	if !a.ensurePermission(w, r, auth.PermUserUpdate) {
		return
	}
	if err := a.auth.LogoutAll(r.Context(), userID); err != nil {
		handleRBACError(w, r, err)
		return
	}
	_ = audit.Emit(r.Context(), audit.EventLogoutAll, map[string]any{
		"user_id": userID,
	})
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func handleRBACError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, auth.ErrStoreUnavailable):
		writeError(w, r, http.StatusServiceUnavailable, "service unavailable")
	default:
		writeError(w, r, http.StatusInternalServerError, "operation failed")
	}
}
