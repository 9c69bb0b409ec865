// Package httpapi is the HTTP surface over the auth, policy, directory and
// audit services.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"accessplane/internal/apperr"
	auditdomain "accessplane/internal/audit/domain"
	auditservice "accessplane/internal/audit/service"
	authservice "accessplane/internal/auth/service"
	permissionservice "accessplane/internal/permission/service"
	policyservice "accessplane/internal/policy/service"
	roleservice "accessplane/internal/role/service"
	"accessplane/internal/security"
	sessionservice "accessplane/internal/session/service"
	userservice "accessplane/internal/user/service"
)

// API is the HTTP layer.
type API struct {
	mux         *http.ServeMux
	db          *sql.DB
	tokens      *security.TokenProvider
	auth        *authservice.Service
	sessions    *sessionservice.Service
	policy      *policyservice.Service
	users       *userservice.Service
	roles       *roleservice.Service
	permissions *permissionservice.Service
	audit       *auditservice.Service
	version     string
}

// Deps bundles the services the API serves.
type Deps struct {
	DB          *sql.DB
	Tokens      *security.TokenProvider
	Auth        *authservice.Service
	Sessions    *sessionservice.Service
	Policy      *policyservice.Service
	Users       *userservice.Service
	Roles       *roleservice.Service
	Permissions *permissionservice.Service
	Audit       *auditservice.Service
	Version     string
}

// New wires the routes and returns the API.
func New(d Deps) *API {
	a := &API{
		mux:         http.NewServeMux(),
		db:          d.DB,
		tokens:      d.Tokens,
		auth:        d.Auth,
		sessions:    d.Sessions,
		policy:      d.Policy,
		users:       d.Users,
		roles:       d.Roles,
		permissions: d.Permissions,
		audit:       d.Audit,
		version:     d.Version,
	}

	a.mux.HandleFunc("GET /healthz", a.handleHealthz)
	a.mux.HandleFunc("GET /readyz", a.handleReadyz)

	a.mux.HandleFunc("POST /v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("POST /v1/auth/refresh", a.handleRefresh)
	a.mux.Handle("POST /v1/auth/logout", a.authed(a.handleLogout))
	a.mux.Handle("POST /v1/auth/password", a.authed(a.handleChangePassword))
	a.mux.Handle("GET /v1/auth/me", a.authed(a.handleMe))

	a.mux.Handle("GET /v1/users", a.guarded("users", "read", a.handleListUsers))
	a.mux.Handle("POST /v1/users", a.guarded("users", "create", a.handleCreateUser))
	a.mux.Handle("GET /v1/users/{id}", a.guarded("users", "read", a.handleGetUser))
	a.mux.Handle("PATCH /v1/users/{id}", a.guarded("users", "update", a.handleUpdateUser))
	a.mux.Handle("DELETE /v1/users/{id}", a.guarded("users", "delete", a.handleDeleteUser))
	a.mux.Handle("GET /v1/users/{id}/permissions", a.guarded("users", "read", a.handleUserPermissions))

	a.mux.Handle("GET /v1/roles", a.guarded("roles", "read", a.handleListRoles))
	a.mux.Handle("POST /v1/roles", a.guarded("roles", "create", a.handleCreateRole))
	a.mux.Handle("GET /v1/roles/{id}", a.guarded("roles", "read", a.handleGetRole))
	a.mux.Handle("PATCH /v1/roles/{id}", a.guarded("roles", "update", a.handleUpdateRole))
	a.mux.Handle("DELETE /v1/roles/{id}", a.guarded("roles", "delete", a.handleDeleteRole))

	a.mux.Handle("GET /v1/permissions", a.guarded("permissions", "read", a.handleListPermissions))
	a.mux.Handle("POST /v1/permissions", a.guarded("permissions", "create", a.handleCreatePermission))
	a.mux.Handle("GET /v1/permissions/{id}", a.guarded("permissions", "read", a.handleGetPermission))
	a.mux.Handle("PATCH /v1/permissions/{id}", a.guarded("permissions", "update", a.handleUpdatePermission))
	a.mux.Handle("DELETE /v1/permissions/{id}", a.guarded("permissions", "delete", a.handleDeletePermission))

	a.mux.Handle("GET /v1/audit-logs", a.guarded("audit-logs", "read", a.handleListAuditLogs))
	a.mux.Handle("GET /v1/audit-logs/aggregate", a.guarded("audit-logs", "read", a.handleAggregateAuditLogs))
	a.mux.Handle("GET /v1/audit-logs/trail", a.guarded("audit-logs", "read", a.handleAuditTrail))

	a.mux.Handle("POST /v1/policy/decide", a.authed(a.handleDecide))
	a.mux.Handle("POST /v1/policy/check", a.authed(a.handleCheck))

	return a
}

// Handler returns the http.Handler for the server.
func (a *API) Handler() http.Handler {
	return Logging(a.mux)
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "accessplane",
		"version": a.version,
	})
}

func (a *API) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if a.db != nil {
		if err := a.db.PingContext(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "not_ready",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}

// writeServiceError translates the error taxonomy to HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, apperr.ErrConflict):
		writeError(w, http.StatusConflict, "conflict")
	case errors.Is(err, apperr.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, apperr.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, apperr.ErrBadRequest):
		writeError(w, http.StatusBadRequest, "bad request")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func requestMeta(r *http.Request) auditdomain.RequestMeta {
	return auditdomain.RequestMeta{
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
	}
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func parseTimeParam(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

type ctxKey int

const identityKey ctxKey = 0

func withIdentity(ctx context.Context, id security.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFrom returns the authenticated identity stored by the auth middleware.
func IdentityFrom(ctx context.Context) (security.Identity, bool) {
	id, ok := ctx.Value(identityKey).(security.Identity)
	return id, ok
}
