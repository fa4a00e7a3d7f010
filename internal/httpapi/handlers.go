// Package httpapi is the HTTP surface of the auth service.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"theinternetcompany.one/internal/auth"
	"theinternetcompany.one/internal/obs"
)

// ReadinessChecker reports whether the backing store can serve traffic.
type ReadinessChecker interface {
	Check(ctx context.Context) error
}

// ReadyProbe adapts the pg store's Ping to the readiness endpoint. A nil
// Pinger means the service runs storeless (tests) and is always ready.
type ReadyProbe struct {
	Pinger interface {
		Ping(ctx context.Context) error
	}
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.Pinger == nil {
		return nil
	}
	return rp.Pinger.Ping(ctx)
}

// API routes HTTP traffic to the auth core.
type API struct {
	mux     *http.ServeMux
	auth    *auth.Service
	rbac    *auth.RBACService
	ready   ReadinessChecker
	cookies CookieConfig
	version string
}

// Config carries API construction parameters.
type Config struct {
	Auth    *auth.Service
	RBAC    *auth.RBACService
	Ready   ReadinessChecker
	Cookies CookieConfig
	Version string
}

func New(cfg Config) *API {
	a := &API{
		mux:     http.NewServeMux(),
		auth:    cfg.Auth,
		rbac:    cfg.RBAC,
		ready:   cfg.Ready,
		cookies: cfg.Cookies,
		version: cfg.Version,
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/v1/auth/logout-all", a.handleLogoutAll)

	a.mux.HandleFunc("/v1/me", a.handleMe)
	a.mux.HandleFunc("/v1/roles", a.handleRoles)
	a.mux.HandleFunc("/v1/users", a.handleUsers)
	a.mux.HandleFunc("/v1/users/", a.handleUserScoped)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler assembles the middleware chain around the mux.
func (a *API) Handler() http.Handler {
	h := a.withAuth(a.mux)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, 20, 10)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "tic-auth",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if a.ready != nil {
		if err := a.ready.Check(r.Context()); err != nil {
			obs.SetReady(false)
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "not_ready",
				"error":  err.Error(),
			})
			return
		}
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
