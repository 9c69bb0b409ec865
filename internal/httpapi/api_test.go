package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	auditdomain "accessplane/internal/audit/domain"
	auditrepository "accessplane/internal/audit/repository"
	auditservice "accessplane/internal/audit/service"
	authservice "accessplane/internal/auth/service"
	"accessplane/internal/policy/engine"
	policyservice "accessplane/internal/policy/service"
	roledomain "accessplane/internal/role/domain"
	"accessplane/internal/security"
	sessiondomain "accessplane/internal/session/domain"
	sessionservice "accessplane/internal/session/service"
	userdomain "accessplane/internal/user/domain"
	userservice "accessplane/internal/user/service"
)

// In-memory repositories backing a full service stack for handler tests.

type memUsers struct {
	mu    sync.Mutex
	users map[string]*userdomain.User
}

func (m *memUsers) GetByID(_ context.Context, id string) (*userdomain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[id], nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*userdomain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (m *memUsers) List(_ context.Context, limit, offset int32) ([]*userdomain.User, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*userdomain.User
	for _, u := range m.users {
		out = append(out, u)
	}
	return out, int64(len(out)), nil
}

func (m *memUsers) CountByRoleID(_ context.Context, roleID string) (int64, error) { return 0, nil }

func (m *memUsers) Create(_ context.Context, u *userdomain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	return nil
}

func (m *memUsers) Update(_ context.Context, u *userdomain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	return nil
}

func (m *memUsers) Delete(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return false, nil
	}
	delete(m.users, id)
	return true, nil
}

func (m *memUsers) UpdateLastLogin(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		u.LastLoginAt = &at
	}
	return nil
}

type memRoles struct {
	roles map[string]*roledomain.RoleWithPermissions
}

func (m *memRoles) GetByID(_ context.Context, id string) (*roledomain.Role, error) {
	if r, ok := m.roles[id]; ok {
		return &r.Role, nil
	}
	return nil, nil
}

func (m *memRoles) GetByIDWithPermissions(_ context.Context, id string) (*roledomain.RoleWithPermissions, error) {
	return m.roles[id], nil
}

func (m *memRoles) GetByName(_ context.Context, name string) (*roledomain.Role, error) {
	return nil, nil
}

func (m *memRoles) List(_ context.Context) ([]*roledomain.Role, error) {
	var out []*roledomain.Role
	for _, r := range m.roles {
		role := r.Role
		out = append(out, &role)
	}
	return out, nil
}

func (m *memRoles) Create(_ context.Context, r *roledomain.Role) error { return nil }
func (m *memRoles) Update(_ context.Context, r *roledomain.Role) error { return nil }
func (m *memRoles) Delete(_ context.Context, id string) (bool, error)  { return false, nil }

type memSessions struct {
	mu       sync.Mutex
	sessions map[string]*sessiondomain.Session
}

func (m *memSessions) Create(_ context.Context, s *sessiondomain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sessions[s.TokenHash] = &cp
	return nil
}

func (m *memSessions) GetByTokenHash(_ context.Context, tokenHash string) (*sessiondomain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[tokenHash]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *memSessions) ClaimByTokenHash(_ context.Context, tokenHash string, now time.Time) (*sessiondomain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[tokenHash]
	if !ok || s.IsRevoked || !s.ExpiresAt.After(now) {
		return nil, nil
	}
	s.IsRevoked = true
	cp := *s
	return &cp, nil
}

func (m *memSessions) Revoke(_ context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[tokenHash]; ok {
		s.IsRevoked = true
	}
	return nil
}

func (m *memSessions) RevokeAllByUser(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, s := range m.sessions {
		if s.UserID == userID && !s.IsRevoked {
			s.IsRevoked = true
			n++
		}
	}
	return n, nil
}

func (m *memSessions) DeleteStale(_ context.Context, now time.Time) (int64, error) {
	return 0, nil
}

type memAudit struct {
	mu      sync.Mutex
	entries []*auditdomain.Entry
}

var _ auditrepository.Repository = (*memAudit)(nil)

func (m *memAudit) Create(_ context.Context, e *auditdomain.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *memAudit) GetByID(_ context.Context, id string) (*auditdomain.Entry, error) {
	return nil, nil
}

func (m *memAudit) List(_ context.Context, f auditdomain.Filter, limit, offset int32) ([]*auditdomain.Entry, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries, int64(len(m.entries)), nil
}

func (m *memAudit) Aggregate(_ context.Context, g auditdomain.GroupBy, start, end *time.Time) ([]*auditdomain.Aggregation, error) {
	return nil, nil
}

func (m *memAudit) Trail(_ context.Context, resource, resourceID string) ([]*auditdomain.Entry, error) {
	return nil, nil
}

func (m *memAudit) lastAction(t *testing.T) auditdomain.Action {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.entries) == 0 {
		t.Fatal("no audit entries recorded")
	}
	return m.entries[len(m.entries)-1].Action
}

type testEnv struct {
	srv   *httptest.Server
	audit *memAudit
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	tokens, err := security.NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	hasher := security.NewHasher(4)
	hash, err := hasher.Hash([]byte("password1"))
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	users := &memUsers{users: map[string]*userdomain.User{
		"u-admin":  {ID: "u-admin", Email: "admin@example.com", PasswordHash: hash, RoleID: "r-admin", IsActive: true},
		"u-viewer": {ID: "u-viewer", Email: "viewer@example.com", PasswordHash: hash, RoleID: "r-viewer", IsActive: true},
	}}
	roles := &memRoles{roles: map[string]*roledomain.RoleWithPermissions{
		"r-admin": {
			Role: roledomain.Role{ID: "r-admin", Name: "admin"},
			Permissions: []roledomain.RolePermission{
				{ID: "p1", Name: "users:manage", Resource: "users", Action: "manage"},
				{ID: "p2", Name: "roles:manage", Resource: "roles", Action: "manage"},
			},
		},
		"r-viewer": {
			Role: roledomain.Role{ID: "r-viewer", Name: "viewer"},
			Permissions: []roledomain.RolePermission{
				{ID: "p3", Name: "users:read", Resource: "users", Action: "read"},
			},
		},
	}}
	sessionStore := &memSessions{sessions: make(map[string]*sessiondomain.Session)}
	auditStore := &memAudit{}

	evaluator, err := engine.NewOPAEvaluator()
	if err != nil {
		t.Fatalf("NewOPAEvaluator: %v", err)
	}

	audit := auditservice.NewService(auditStore, nil)
	sessions := sessionservice.NewService(sessionStore, users, tokens)
	policy := policyservice.NewService(users, roles, evaluator)
	auth := authservice.NewService(users, sessions, hasher, audit)
	userSvc := userservice.NewService(users, roles, sessions, hasher, audit)

	api := New(Deps{
		Tokens:   tokens,
		Auth:     auth,
		Sessions: sessions,
		Policy:   policy,
		Users:    userSvc,
		Audit:    audit,
		Version:  "test",
	})

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, audit: auditStore}
}

func (e *testEnv) login(t *testing.T, email, password string) (access, refresh string) {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"email": email, "password": password})
	resp, err := http.Post(e.srv.URL+"/v1/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d, want 200", resp.StatusCode)
	}
	var out struct {
		Tokens struct {
			AccessToken  string `json:"access_token"`
			RefreshToken string `json:"refresh_token"`
		} `json:"tokens"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	return out.Tokens.AccessToken, out.Tokens.RefreshToken
}

func (e *testEnv) do(t *testing.T, method, path, token string, body []byte) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	return resp
}

func TestLoginAndMe(t *testing.T) {
	env := newTestEnv(t)
	access, _ := env.login(t, "viewer@example.com", "password1")

	resp := env.do(t, http.MethodGet, "/v1/auth/me", access, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me status = %d, want 200", resp.StatusCode)
	}
	var out struct {
		User struct {
			Email string `json:"email"`
		} `json:"user"`
		Permissions []string `json:"permissions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.User.Email != "viewer@example.com" {
		t.Errorf("email = %q, want viewer@example.com", out.User.Email)
	}
	if len(out.Permissions) != 1 || out.Permissions[0] != "users:read" {
		t.Errorf("permissions = %v, want [users:read]", out.Permissions)
	}
}

func TestLoginBadCredentials(t *testing.T) {
	env := newTestEnv(t)

	body, _ := json.Marshal(map[string]string{"email": "viewer@example.com", "password": "wrong"})
	resp, err := http.Post(env.srv.URL+"/v1/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
	if got := env.audit.lastAction(t); got != auditdomain.ActionLoginFailed {
		t.Errorf("audit action = %s, want LOGIN_FAILED", got)
	}
}

func TestAuthedRejectsMissingAndBadTokens(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/v1/auth/me", "", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no token status = %d, want 401", resp.StatusCode)
	}

	resp = env.do(t, http.MethodGet, "/v1/auth/me", "garbage", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad token status = %d, want 401", resp.StatusCode)
	}
}

func TestGuardedDeniesAndAudits(t *testing.T) {
	env := newTestEnv(t)
	access, _ := env.login(t, "viewer@example.com", "password1")

	// A viewer holds users:read only; the audit log listing needs audit-logs:read.
	resp := env.do(t, http.MethodGet, "/v1/audit-logs", access, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
	if got := env.audit.lastAction(t); got != auditdomain.ActionPermissionDenied {
		t.Errorf("audit action = %s, want PERMISSION_DENIED", got)
	}
}

func TestGuardedAllowsViaManageWildcard(t *testing.T) {
	env := newTestEnv(t)
	access, _ := env.login(t, "admin@example.com", "password1")

	// users:manage satisfies the users:read guard.
	resp := env.do(t, http.MethodGet, "/v1/users", access, nil)
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized {
		t.Fatalf("status = %d, want the guard to pass", resp.StatusCode)
	}
}

func TestRefreshRotationEndpoint(t *testing.T) {
	env := newTestEnv(t)
	_, refresh := env.login(t, "viewer@example.com", "password1")

	body, _ := json.Marshal(map[string]string{"refresh_token": refresh})
	resp := env.do(t, http.MethodPost, "/v1/auth/refresh", "", body)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh status = %d, want 200", resp.StatusCode)
	}

	// The consumed token cannot be replayed.
	resp2 := env.do(t, http.MethodPost, "/v1/auth/refresh", "", body)
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusUnauthorized {
		t.Errorf("replay status = %d, want 401", resp2.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}
