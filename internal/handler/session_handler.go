package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"admin-service/internal/service"
	"admin-service/internal/session"
	"admin-service/internal/util"
)

// SessionHandler handles HTTP requests for the session lifecycle: login,
// logout, activity reporting, and the inactivity warning flow.
type SessionHandler struct {
	sessionService *service.SessionService
	guard          *session.Guard
	logger         *zap.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessionService *service.SessionService, guard *session.Guard, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
		guard:          guard,
		logger:         logger,
	}
}

// RegisterRoutes registers all session routes
func (h *SessionHandler) RegisterRoutes(router chi.Router) {
	router.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(h.guard.RequireAuth)
			r.Post("/logout", h.Logout)
			r.Get("/session", h.SessionState)
			r.Post("/heartbeat", h.Heartbeat)
			r.Post("/confirm", h.Confirm)
			r.Post("/page", h.PageView)
		})
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	AdminID   string    `json:"admin_id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Login authenticates an admin and opens a session. The LOGIN activity
// event fires later, on the first dashboard page view.
func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(h.logger, w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	sess, err := h.sessionService.Login(ctx, req.Username, req.Password, r.RemoteAddr)
	if err != nil {
		respondWithError(h.logger, w, h.getStatusCode(err), err, "Login failed")
		return
	}

	resp := loginResponse{
		Token:     sess.Token,
		AdminID:   sess.AdminID,
		Username:  sess.Username,
		Role:      sess.Role.String(),
		ExpiresAt: sess.ExpiresAt,
	}

	respondWithJSON(h.logger, w, http.StatusOK, successResponse(resp, "Login successful"))
	h.logger.Info("Login via HTTP",
		util.String("username", sess.Username),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "Login"),
	)
}

// Logout ends the session. The LOGOUT event is attempted before the
// session clears; either way the token is dead afterwards.
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	token := session.BearerToken(r)
	if err := h.sessionService.Logout(ctx, token); err != nil {
		respondWithError(h.logger, w, http.StatusInternalServerError, err, "Logout failed")
		return
	}

	respondWithJSON(h.logger, w, http.StatusOK, successResponse(nil, "Logged out"))
}

type sessionStateResponse struct {
	AdminID       string     `json:"admin_id"`
	Username      string     `json:"username"`
	Role          string     `json:"role"`
	AdminCapable  bool       `json:"admin_capable"`
	ActivityState string     `json:"activity_state"`
	Deadline      *time.Time `json:"deadline,omitempty"`
	CurrentPage   string     `json:"current_page,omitempty"`
}

// SessionState reports the role and inactivity phase for the current
// session. The deadline is the next state transition: warning onset when
// ACTIVE, expiry when WARNING.
func (h *SessionHandler) SessionState(w http.ResponseWriter, r *http.Request) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		respondWithError(h.logger, w, http.StatusUnauthorized, errors.New("no session"), "Not authenticated")
		return
	}

	resp := sessionStateResponse{
		AdminID:      sess.AdminID,
		Username:     sess.Username,
		Role:         sess.Role.String(),
		AdminCapable: sess.Role.AdminCapable(),
		CurrentPage:  sess.CurrentPage,
	}

	if state, deadline, tracked := h.sessionService.MonitorState(sess.Token); tracked {
		resp.ActivityState = state.String()
		resp.Deadline = &deadline
	}

	respondWithJSON(h.logger, w, http.StatusOK, successResponse(resp, "Session state retrieved"))
}

// Heartbeat registers batched client-side interaction.
func (h *SessionHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		respondWithError(h.logger, w, http.StatusUnauthorized, errors.New("no session"), "Not authenticated")
		return
	}

	h.sessionService.Heartbeat(r.Context(), sess.Token)
	respondWithJSON(h.logger, w, http.StatusOK, successResponse(nil, "Activity recorded"))
}

// Confirm acknowledges the inactivity warning and restores a full idle
// window. Returns 410 when the session already expired.
func (h *SessionHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		respondWithError(h.logger, w, http.StatusUnauthorized, errors.New("no session"), "Not authenticated")
		return
	}

	if !h.sessionService.Confirm(r.Context(), sess.Token) {
		respondWithError(h.logger, w, http.StatusGone, errors.New("session no longer tracked"), "Session expired")
		return
	}

	respondWithJSON(h.logger, w, http.StatusOK, successResponse(nil, "Session extended"))
}

type pageViewRequest struct {
	Page string `json:"page"`
}

// PageView records an admin route change. The first dashboard landing also
// emits the once-per-session LOGIN event.
func (h *SessionHandler) PageView(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sess, ok := session.FromContext(ctx)
	if !ok {
		respondWithError(h.logger, w, http.StatusUnauthorized, errors.New("no session"), "Not authenticated")
		return
	}

	var req pageViewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(h.logger, w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	if req.Page == "/dashboard" {
		h.sessionService.ReachDashboard(ctx, sess)
	}

	if err := h.sessionService.RecordPageView(ctx, sess, req.Page); err != nil {
		respondWithError(h.logger, w, h.getStatusCode(err), err, "Failed to record page view")
		return
	}

	respondWithJSON(h.logger, w, http.StatusOK, successResponse(nil, "Page view recorded"))
}

// getStatusCode determines the appropriate HTTP status code for an error
func (h *SessionHandler) getStatusCode(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrSessionNotFound):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrAdminInactive):
		return http.StatusForbidden
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
