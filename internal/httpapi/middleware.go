package httpapi

import (
	"log"
	"net/http"
	"strings"
	"time"

	auditdomain "accessplane/internal/audit/domain"
	permissiondomain "accessplane/internal/permission/domain"
)

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Logging: method, path, status, duration
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, code: 200}
		start := time.Now()
		next.ServeHTTP(sw, r)
		log.Printf("%s %s -> %d (%s)", r.Method, r.URL.Path, sw.code, time.Since(start))
	})
}

// authed validates the Bearer access token and stores the identity in the
// request context.
func (a *API) authed(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(raw, prefix) {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		id, err := a.tokens.ValidateAccess(strings.TrimPrefix(raw, prefix))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), id)))
	})
}

// guarded authenticates the caller and then requires the resource:action
// permission. Denials are written to the audit trail as PERMISSION_DENIED.
func (a *API) guarded(resource, action string, next http.HandlerFunc) http.Handler {
	return a.authed(func(w http.ResponseWriter, r *http.Request) {
		actor, _ := IdentityFrom(r.Context())
		decision, err := a.policy.Decide(r.Context(), actor.UserID, resource, action)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if !decision.Allowed {
			meta := requestMeta(r)
			if _, err := a.audit.Append(r.Context(), &auditdomain.Entry{
				ActorID:    actor.UserID,
				ActorEmail: actor.Email,
				Action:     auditdomain.ActionPermissionDenied,
				Resource:   resource,
				Metadata: map[string]any{
					"required": permissiondomain.Format(resource, action),
					"reason":   decision.Reason,
					"path":     r.URL.Path,
				},
				IPAddress: meta.IPAddress,
				UserAgent: meta.UserAgent,
			}); err != nil {
				log.Printf("httpapi: audit append failed: %v", err)
			}
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}
