package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"admin-service/internal/service"
	"admin-service/internal/session"
	"admin-service/internal/util"
)

// AdminHandler handles HTTP requests for admin account management. The
// entire surface is restricted to the super-admin role.
type AdminHandler struct {
	adminService *service.AdminService
	guard        *session.Guard
	logger       *zap.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(adminService *service.AdminService, guard *session.Guard, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		adminService: adminService,
		guard:        guard,
		logger:       logger,
	}
}

// RegisterRoutes registers all admin account routes
func (h *AdminHandler) RegisterRoutes(router chi.Router) {
	router.Route("/admins", func(r chi.Router) {
		r.Use(h.guard.RequireSuperAdmin)

		r.Post("/", h.CreateAdmin)
		r.Get("/", h.ListAdmins)
		r.Patch("/{username}/role", h.UpdateRole)
		r.Patch("/{username}/password", h.ChangePassword)
		r.Patch("/{username}/active", h.SetActive)
	})
}

// CreateAdmin provisions a new admin account
func (h *AdminHandler) CreateAdmin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var req service.CreateAdminInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(h.logger, w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	sess, _ := session.FromContext(ctx)

	admin, err := h.adminService.CreateAdmin(ctx, req, sess.AdminID)
	if err != nil {
		respondWithError(h.logger, w, h.getStatusCode(err), err, "Failed to create admin")
		return
	}

	respondWithJSON(h.logger, w, http.StatusCreated, successResponse(admin, "Admin created successfully"))
	h.logger.Info("Admin created via HTTP",
		util.String("username", admin.Username),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "CreateAdmin"),
	)
}

// ListAdmins returns the admin roster
func (h *AdminHandler) ListAdmins(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	admins, err := h.adminService.ListAdmins(ctx, limit)
	if err != nil {
		respondWithError(h.logger, w, http.StatusInternalServerError, err, "Failed to list admins")
		return
	}

	respondWithJSON(h.logger, w, http.StatusOK, successResponse(admins, "Admins retrieved successfully"))
}

type updateRoleRequest struct {
	Role string `json:"role"`
}

// UpdateRole changes an account's privilege level
func (h *AdminHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	username := chi.URLParam(r, "username")

	var req updateRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(h.logger, w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	if err := h.adminService.UpdateRole(ctx, username, req.Role); err != nil {
		respondWithError(h.logger, w, h.getStatusCode(err), err, "Failed to update role")
		return
	}

	respondWithJSON(h.logger, w, http.StatusOK, successResponse(nil, "Role updated"))
}

type changePasswordRequest struct {
	Password string `json:"password"`
}

// ChangePassword rotates an account's password
func (h *AdminHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	username := chi.URLParam(r, "username")

	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(h.logger, w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	if err := h.adminService.ChangePassword(ctx, username, req.Password); err != nil {
		respondWithError(h.logger, w, h.getStatusCode(err), err, "Failed to change password")
		return
	}

	respondWithJSON(h.logger, w, http.StatusOK, successResponse(nil, "Password changed"))
}

type setActiveRequest struct {
	Active bool `json:"active"`
}

// SetActive enables or disables an account. Deactivation kills the
// account's live sessions immediately.
func (h *AdminHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	username := chi.URLParam(r, "username")

	var req setActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(h.logger, w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	if err := h.adminService.SetActive(ctx, username, req.Active); err != nil {
		respondWithError(h.logger, w, h.getStatusCode(err), err, "Failed to update active flag")
		return
	}

	respondWithJSON(h.logger, w, http.StatusOK, successResponse(nil, "Active flag updated"))
}

// getStatusCode determines the appropriate HTTP status code for an error
func (h *AdminHandler) getStatusCode(err error) int {
	switch {
	case errors.Is(err, service.ErrAdminNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidRole),
		errors.Is(err, service.ErrWeakPassword),
		errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrSuspiciousInput):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
