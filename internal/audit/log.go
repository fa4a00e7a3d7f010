// Package audit emits security-relevant events as structured log lines.
// Token material never appears in an event; callers pass session ids and
// token hashes at most.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"theinternetcompany.one/internal/auth"
	"theinternetcompany.one/internal/obs"
)

// Event names recorded by the auth surface.
const (
	EventLogin        = "auth.login"
	EventLoginFailed  = "auth.login_failed"
	EventRefresh      = "auth.refresh"
	EventLogout       = "auth.logout"
	EventLogoutAll    = "auth.logout_all"
	EventUserCreated  = "auth.user_created"
	EventUserUpdated  = "auth.user_updated"
	EventRolesChanged = "auth.roles_changed"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context so every
// event emitted while serving that request carries it.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the request id if one was attached.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// Emit writes one audit entry enriched with the request id and the
// authenticated actor from ctx, when present.
func Emit(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("audit: event name is required")
	}
	entry := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"type":  "audit",
		"event": event,
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		entry["request_id"] = rid
	}
	if claims, ok := auth.ClaimsFromContext(ctx); ok {
		entry["actor_id"] = claims.Subject
		entry["actor_email"] = claims.Email
	}
	if len(fields) > 0 {
		copied := make(map[string]any, len(fields))
		for k, v := range fields {
			copied[k] = v
		}
		entry["fields"] = copied
	} else {
		entry["fields"] = map[string]any{}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	obs.Logger().Println(string(data))
	return nil
}
