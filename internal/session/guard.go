package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"admin-service/internal/models"
	redisrepo "admin-service/internal/repository/redis"
	"admin-service/internal/util"
)

type contextKey int

const sessionContextKey contextKey = iota

// Guard decides, on every admin-area request, whether the caller may
// proceed. Three outcomes: unknown token means 401 with a login redirect
// hint, a role outside the capable set means 403 with a dashboard redirect
// hint, and an admin-capable role lets the request through with the session
// published in the context.
//
// The store lookup is the sole validity check; there is no secondary
// confirmation round-trip. A store miss is authoritative: the guard clears
// residue and never emits a LOGOUT event for it.
type Guard struct {
	store   redisrepo.SessionStore
	monitor *Monitor
	logger  *zap.Logger
}

func NewGuard(store redisrepo.SessionStore, monitor *Monitor, logger *zap.Logger) *Guard {
	return &Guard{
		store:   store,
		monitor: monitor,
		logger:  logger,
	}
}

type guardResponse struct {
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
	Redirect string `json:"redirect,omitempty"`
}

// RequireAuth admits any valid session regardless of role. It backs the
// restricted dashboard surface that under-privileged roles land on.
func (g *Guard) RequireAuth(next http.Handler) http.Handler {
	return g.require(next, func(models.Role) bool { return true }, "")
}

// RequireAdmin admits only admin-capable roles (SuperAdmin, Admin).
func (g *Guard) RequireAdmin(next http.Handler) http.Handler {
	return g.require(next, models.Role.AdminCapable, "/dashboard")
}

// RequireSuperAdmin admits only SuperAdmin. Admin account management sits
// behind this.
func (g *Guard) RequireSuperAdmin(next http.Handler) http.Handler {
	return g.require(next, func(r models.Role) bool { return r == models.RoleSuperAdmin }, "/dashboard")
}

// RequireEditor admits roles allowed to mutate records; ViewMode is read-only.
func (g *Guard) RequireEditor(next http.Handler) http.Handler {
	return g.require(next, models.Role.CanEdit, "/dashboard")
}

func (g *Guard) require(next http.Handler, allowed func(models.Role) bool, redirect string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := BearerToken(r)
		if token == "" {
			writeGuardResponse(w, http.StatusUnauthorized, guardResponse{
				Error:    "authentication required",
				Redirect: "/login",
			})
			return
		}

		sess, err := g.store.Get(r.Context(), token)
		if err != nil {
			if errors.Is(err, redisrepo.ErrSessionNotFound) {
				// Invalidated or never existed. Tear down any monitor
				// residue; no LOGOUT event for this path.
				g.monitor.Stop(token)
				writeGuardResponse(w, http.StatusUnauthorized, guardResponse{
					Error:    "session invalid",
					Redirect: "/login",
				})
				return
			}
			g.logger.Error("Session lookup failed", util.ErrorField(err))
			writeGuardResponse(w, http.StatusServiceUnavailable, guardResponse{
				Error: "session store unavailable",
			})
			return
		}

		if !allowed(sess.Role) {
			g.logger.Debug("Under-privileged role redirected",
				util.String("role", sess.Role.String()),
				util.String("path", r.URL.Path))
			writeGuardResponse(w, http.StatusForbidden, guardResponse{
				Error:    "insufficient role",
				Redirect: redirect,
			})
			return
		}

		// Every authenticated request is a tracked interaction.
		g.monitor.Touch(token)
		if err := g.store.Touch(r.Context(), token, time.Now().UTC()); err != nil && !errors.Is(err, redisrepo.ErrSessionNotFound) {
			g.logger.Warn("Failed to record session activity", util.ErrorField(err))
		}

		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
	})
}

// WithSession publishes the resolved session into the request context.
func WithSession(ctx context.Context, sess *models.AdminSession) context.Context {
	return context.WithValue(ctx, sessionContextKey, sess)
}

// FromContext retrieves the session the guard published.
func FromContext(ctx context.Context) (*models.AdminSession, bool) {
	sess, ok := ctx.Value(sessionContextKey).(*models.AdminSession)
	return sess, ok
}

// BearerToken extracts the opaque session token from the request.
func BearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return ""
	}
	return strings.TrimSpace(auth[len(prefix):])
}

func writeGuardResponse(w http.ResponseWriter, status int, resp guardResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
