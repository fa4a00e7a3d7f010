package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"theinternetcompany.one/internal/auth"
)

// stubStore is a minimal in-memory auth.Store for handler tests.
type stubStore struct {
	mu        sync.Mutex
	users     map[string]*auth.User
	emails    map[string]string
	userRoles map[string][]string
	grants    map[string][]string
	roles     map[string]auth.Role
	sessions  map[string]*auth.Session
	seq       int
}

func newStubStore() *stubStore {
	return &stubStore{
		users:     make(map[string]*auth.User),
		emails:    make(map[string]string),
		userRoles: make(map[string][]string),
		grants:    make(map[string][]string),
		roles:     make(map[string]auth.Role),
		sessions:  make(map[string]*auth.Session),
	}
}

func (s *stubStore) Users(context.Context) auth.UserStore             { return stubUsers{s} }
func (s *stubStore) Roles(context.Context) auth.RoleStore             { return stubRoles{s} }
func (s *stubStore) Permissions(context.Context) auth.PermissionStore { return stubPerms{s} }
func (s *stubStore) Sessions(context.Context) auth.SessionStore       { return stubSessions{s} }

type stubUsers struct{ *stubStore }

func (s stubUsers) Create(ctx context.Context, u *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.emails[u.Email]; taken {
		return auth.ErrConflict
	}
	s.seq++
	if u.ID == "" {
		u.ID = "user-" + strings.Repeat("x", s.seq)
	}
	copied := *u
	s.users[u.ID] = &copied
	s.emails[u.Email] = u.ID
	return nil
}

func (s stubUsers) Find(ctx context.Context, id string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (s stubUsers) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.emails[email]
	if !ok {
		return nil, auth.ErrNotFound
	}
	copied := *s.users[id]
	return &copied, nil
}

func (s stubUsers) Update(ctx context.Context, id string, upd auth.UserUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	if upd.PasswordHash != nil {
		u.PasswordHash = *upd.PasswordHash
	}
	if upd.IsActive != nil {
		u.IsActive = *upd.IsActive
	}
	return nil
}

type stubRoles struct{ *stubStore }

func (s stubRoles) Find(ctx context.Context, id string) (*auth.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return &r, nil
}

func (s stubRoles) List(ctx context.Context) ([]auth.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]auth.Role, 0, len(s.roles))
	for _, r := range s.roles {
		out = append(out, r)
	}
	return out, nil
}

func (s stubRoles) Ensure(ctx context.Context, names []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range names {
		if _, ok := s.roles[n]; !ok {
			s.roles[n] = auth.Role{ID: n, Name: n}
		}
	}
	return nil
}

func (s stubRoles) NamesForUser(ctx context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.userRoles[userID]...), nil
}

func (s stubRoles) ReplaceForUser(ctx context.Context, userID string, roleIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userRoles[userID] = append([]string(nil), roleIDs...)
	return nil
}

type stubPerms struct{ *stubStore }

func (s stubPerms) Ensure(ctx context.Context, keys []string) error { return nil }

func (s stubPerms) SetForRole(ctx context.Context, roleID string, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants[roleID] = append([]string(nil), keys...)
	return nil
}

func (s stubPerms) KeysForUser(ctx context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for _, role := range s.userRoles[userID] {
		keys = append(keys, s.grants[role]...)
	}
	return keys, nil
}

type stubSessions struct{ *stubStore }

func (s stubSessions) Create(ctx context.Context, session *auth.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *session
	s.sessions[session.ID] = &copied
	return nil
}

func (s stubSessions) FindActiveByHash(ctx context.Context, hash string) (*auth.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.TokenHash == hash && !sess.IsRevoked {
			copied := *sess
			return &copied, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (s stubSessions) Revoke(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || sess.IsRevoked {
		return false, nil
	}
	sess.IsRevoked = true
	return true, nil
}

func (s stubSessions) RevokeByHash(ctx context.Context, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.TokenHash == hash {
			sess.IsRevoked = true
		}
	}
	return nil
}

func (s stubSessions) RevokeAllForUser(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.UserID == userID {
			sess.IsRevoked = true
		}
	}
	return nil
}

type testEnv struct {
	store  *stubStore
	server *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := newStubStore()

	hash, err := auth.HashPassword("password123", 4)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	admin := &auth.User{ID: "admin-1", Email: "admin@example.com", PasswordHash: hash, IsActive: true}
	if err := (stubUsers{store}).Create(context.Background(), admin); err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	viewer := &auth.User{ID: "viewer-1", Email: "viewer@example.com", PasswordHash: hash, IsActive: true}
	if err := (stubUsers{store}).Create(context.Background(), viewer); err != nil {
		t.Fatalf("seed viewer: %v", err)
	}
	store.roles[auth.RoleAdmin] = auth.Role{ID: auth.RoleAdmin, Name: auth.RoleAdmin}
	store.roles[auth.RolePR] = auth.Role{ID: auth.RolePR, Name: auth.RolePR}
	store.grants[auth.RoleAdmin] = []string{auth.PermUserCreate, auth.PermUserUpdate, auth.PermUserView, auth.PermRoleAssign}
	store.grants[auth.RolePR] = []string{auth.PermNewsCreate}
	store.userRoles["admin-1"] = []string{auth.RoleAdmin}
	store.userRoles["viewer-1"] = []string{auth.RolePR}

	svc, err := auth.NewService(store, []byte("test-secret"), auth.WithIssuer("tic-test"))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	rbac, err := auth.NewRBACService(store)
	if err != nil {
		t.Fatalf("NewRBACService: %v", err)
	}

	api := New(Config{Auth: svc, RBAC: rbac, Version: "test"})
	server := httptest.NewServer(api.Handler())
	t.Cleanup(server.Close)
	return &testEnv{store: store, server: server}
}

func (e *testEnv) post(t *testing.T, path string, body any, mutate ...func(*http.Request)) *http.Response {
	t.Helper()
	return e.do(t, http.MethodPost, path, body, mutate...)
}

func (e *testEnv) do(t *testing.T, method, path string, body any, mutate ...func(*http.Request)) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, m := range mutate {
		m(req)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *testEnv) login(t *testing.T, email, password string) (auth.TokenPair, []*http.Cookie) {
	t.Helper()
	resp := e.post(t, "/v1/auth/login", loginRequest{Email: email, Password: password})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: unexpected status %d", resp.StatusCode)
	}
	var pair auth.TokenPair
	if err := json.NewDecoder(resp.Body).Decode(&pair); err != nil {
		t.Fatalf("decode pair: %v", err)
	}
	return pair, resp.Cookies()
}

func withBearer(token string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodGet, "/healthz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
}

func TestLoginSetsCookiesAndReturnsPair(t *testing.T) {
	env := newTestEnv(t)
	pair, cookies := env.login(t, "admin@example.com", "password123")
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected both tokens in the body")
	}

	var haveAccess, haveRefresh bool
	for _, c := range cookies {
		switch c.Name {
		case accessCookie:
			haveAccess = true
		case refreshCookie:
			haveRefresh = true
			if !c.HttpOnly {
				t.Fatal("refresh cookie must be httpOnly")
			}
			if c.Value != pair.RefreshToken {
				t.Fatal("cookie and body disagree on the refresh token")
			}
		}
	}
	if !haveAccess || !haveRefresh {
		t.Fatalf("auth cookies missing: %v", cookies)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	env := newTestEnv(t)
	resp := env.post(t, "/v1/auth/login", loginRequest{Email: "admin@example.com", Password: "wrong"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
}

func TestLoginRejectsMalformedBody(t *testing.T) {
	env := newTestEnv(t)
	resp := env.post(t, "/v1/auth/login", map[string]any{"email": "a@b.c", "bogus": true})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
}

func TestRefreshViaCookie(t *testing.T) {
	env := newTestEnv(t)
	_, cookies := env.login(t, "admin@example.com", "password123")

	resp := env.post(t, "/v1/auth/refresh", nil, func(r *http.Request) {
		for _, c := range cookies {
			r.AddCookie(c)
		}
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	var pair auth.TokenPair
	if err := json.NewDecoder(resp.Body).Decode(&pair); err != nil {
		t.Fatalf("decode pair: %v", err)
	}
	if pair.RefreshToken == "" {
		t.Fatal("expected rotated refresh token")
	}
}

func TestRefreshReplayClearsCookies(t *testing.T) {
	env := newTestEnv(t)
	pair, _ := env.login(t, "admin@example.com", "password123")

	first := env.post(t, "/v1/auth/refresh", refreshRequest{RefreshToken: pair.RefreshToken})
	if first.StatusCode != http.StatusOK {
		t.Fatalf("first refresh: %d", first.StatusCode)
	}

	second := env.post(t, "/v1/auth/refresh", refreshRequest{RefreshToken: pair.RefreshToken})
	if second.StatusCode != http.StatusUnauthorized {
		t.Fatalf("replayed refresh: %d", second.StatusCode)
	}
	for _, c := range second.Cookies() {
		if (c.Name == accessCookie || c.Name == refreshCookie) && c.MaxAge >= 0 {
			t.Fatalf("cookie %s not cleared on failure", c.Name)
		}
	}
}

func TestRefreshWithoutToken(t *testing.T) {
	env := newTestEnv(t)
	resp := env.post(t, "/v1/auth/refresh", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	env := newTestEnv(t)
	pair, _ := env.login(t, "admin@example.com", "password123")

	resp := env.post(t, "/v1/auth/logout", logoutRequest{RefreshToken: pair.RefreshToken})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout: %d", resp.StatusCode)
	}

	replay := env.post(t, "/v1/auth/refresh", refreshRequest{RefreshToken: pair.RefreshToken})
	if replay.StatusCode != http.StatusUnauthorized {
		t.Fatalf("refresh after logout: %d", replay.StatusCode)
	}
}

func TestLogoutAllRequiresAuth(t *testing.T) {
	env := newTestEnv(t)
	resp := env.post(t, "/v1/auth/logout-all", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
}

func TestLogoutAllEndsEverySession(t *testing.T) {
	env := newTestEnv(t)
	first, _ := env.login(t, "admin@example.com", "password123")
	second, _ := env.login(t, "admin@example.com", "password123")

	resp := env.post(t, "/v1/auth/logout-all", nil, withBearer(first.AccessToken))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout-all: %d", resp.StatusCode)
	}

	for _, pair := range []auth.TokenPair{first, second} {
		replay := env.post(t, "/v1/auth/refresh", refreshRequest{RefreshToken: pair.RefreshToken})
		if replay.StatusCode != http.StatusUnauthorized {
			t.Fatalf("refresh after logout-all: %d", replay.StatusCode)
		}
	}
}

func TestMe(t *testing.T) {
	env := newTestEnv(t)

	anon := env.do(t, http.MethodGet, "/v1/me", nil)
	if anon.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous /v1/me: %d", anon.StatusCode)
	}

	pair, _ := env.login(t, "admin@example.com", "password123")
	resp := env.do(t, http.MethodGet, "/v1/me", nil, withBearer(pair.AccessToken))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/v1/me: %d", resp.StatusCode)
	}
	var body struct {
		Email       string   `json:"email"`
		Roles       []string `json:"roles"`
		Permissions []string `json:"permissions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Email != "admin@example.com" || len(body.Roles) != 1 {
		t.Fatalf("unexpected identity: %+v", body)
	}
}

func TestCreateUserRequiresPermission(t *testing.T) {
	env := newTestEnv(t)

	viewerPair, _ := env.login(t, "viewer@example.com", "password123")
	denied := env.post(t, "/v1/users",
		createUserRequest{Email: "new@example.com", Password: "secret123"},
		withBearer(viewerPair.AccessToken))
	if denied.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", denied.StatusCode)
	}

	adminPair, _ := env.login(t, "admin@example.com", "password123")
	created := env.post(t, "/v1/users",
		createUserRequest{Email: "new@example.com", Password: "secret123", RoleIDs: []string{auth.RolePR}},
		withBearer(adminPair.AccessToken))
	if created.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", created.StatusCode)
	}
	if loc := created.Header.Get("Location"); !strings.HasPrefix(loc, "/v1/users/") {
		t.Fatalf("missing Location header: %q", loc)
	}

	// The new account can log in straight away.
	env.login(t, "new@example.com", "secret123")
}

func TestAssignRoles(t *testing.T) {
	env := newTestEnv(t)
	adminPair, _ := env.login(t, "admin@example.com", "password123")

	resp := env.do(t, http.MethodPut, "/v1/users/viewer-1/roles",
		assignRolesRequest{RoleIDs: []string{auth.RoleAdmin}},
		withBearer(adminPair.AccessToken))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("assign roles: %d", resp.StatusCode)
	}

	// Next login reflects the new role set.
	pair, _ := env.login(t, "viewer@example.com", "password123")
	me := env.do(t, http.MethodGet, "/v1/me", nil, withBearer(pair.AccessToken))
	var body struct {
		Roles []string `json:"roles"`
	}
	if err := json.NewDecoder(me.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Roles) != 1 || body.Roles[0] != auth.RoleAdmin {
		t.Fatalf("role change not visible: %v", body.Roles)
	}
}

func TestDeactivateUserEndsSessions(t *testing.T) {
	env := newTestEnv(t)
	viewerPair, _ := env.login(t, "viewer@example.com", "password123")
	adminPair, _ := env.login(t, "admin@example.com", "password123")

	inactive := false
	resp := env.do(t, http.MethodPatch, "/v1/users/viewer-1",
		updateUserRequest{IsActive: &inactive},
		withBearer(adminPair.AccessToken))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("deactivate: %d", resp.StatusCode)
	}

	replay := env.post(t, "/v1/auth/refresh", refreshRequest{RefreshToken: viewerPair.RefreshToken})
	if replay.StatusCode != http.StatusUnauthorized {
		t.Fatalf("refresh for disabled user: %d", replay.StatusCode)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodGet, "/v1/auth/login", nil)
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	if allow := resp.Header.Get("Allow"); !strings.Contains(allow, http.MethodPost) {
		t.Fatalf("Allow header missing POST: %q", allow)
	}
}
