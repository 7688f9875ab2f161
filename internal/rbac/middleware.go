package rbac

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/lastmile/cashdesk/internal/platform/httpx"
	"github.com/lastmile/cashdesk/internal/shared"
)

// Headers the upstream gateway forwards once it has authenticated the caller.
const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"
)

// Middleware wires role checks for HTTP handlers.
type Middleware struct {
	Logger *slog.Logger
}

// Identify loads the forwarded actor headers into the request context. Requests without a
// usable identity pass through anonymous and are stopped by RequireAny.
func (m Middleware) Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(HeaderActorID))
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			if m.Logger != nil {
				m.Logger.Warn("rbac parse actor id", slog.String("value", raw))
			}
			next.ServeHTTP(w, r)
			return
		}
		actor := shared.Actor{ID: id, Role: normalizeRole(r.Header.Get(HeaderActorRole))}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), actor)))
	})
}

// RequireAny ensures the current actor holds at least one of the given roles.
func (m Middleware) RequireAny(roles ...string) func(http.Handler) http.Handler {
	allowed := normalizeRoles(roles)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := shared.ActorFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			if len(allowed) == 0 || hasAnyRole(actor.Role, allowed) {
				next.ServeHTTP(w, r)
				return
			}
			if m.Logger != nil {
				m.Logger.Info("rbac denied",
					slog.Int64("actor_id", actor.ID),
					slog.String("role", actor.Role),
					slog.String("path", r.URL.Path),
				)
			}
			httpx.RespondError(w, httpx.ErrForbidden)
		})
	}
}

func normalizeRole(role string) string {
	return strings.TrimSpace(strings.ToLower(role))
}

func normalizeRoles(roles []string) map[string]struct{} {
	unique := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		r = normalizeRole(r)
		if r == "" {
			continue
		}
		unique[r] = struct{}{}
	}
	return unique
}

func hasAnyRole(role string, allowed map[string]struct{}) bool {
	_, ok := allowed[role]
	return ok
}
