package handler

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"admin-service/internal/models"
	"admin-service/internal/service"
	"admin-service/internal/session"
	"admin-service/internal/util"
)

// LeadHandler handles HTTP requests for lead capture and the admin lead
// workbench. Capture is public; everything else sits behind the guard.
type LeadHandler struct {
	leadService *service.LeadService
	guard       *session.Guard
	logger      *zap.Logger
}

// NewLeadHandler creates a new lead handler
func NewLeadHandler(leadService *service.LeadService, guard *session.Guard, logger *zap.Logger) *LeadHandler {
	return &LeadHandler{
		leadService: leadService,
		guard:       guard,
		logger:      logger,
	}
}

// RegisterRoutes registers all lead routes
func (h *LeadHandler) RegisterRoutes(router chi.Router) {
	router.Route("/leads", func(r chi.Router) {
		// Public capture endpoint for the marketing forms
		r.Post("/", h.CreateLead)

		// Workbench surface: editors work the same leads they read, so the
		// whole surface shares one gate. ViewMode is shut out.
		r.Group(func(r chi.Router) {
			r.Use(h.guard.RequireEditor)
			r.Get("/status/{status}", h.ListByStatus)
			r.Get("/search", h.Search)
			r.Get("/{leadBucket}/{leadID}", h.GetLead)
			r.Patch("/{leadBucket}/{leadID}/status", h.UpdateStatus)
			r.Post("/bulk/status", h.BulkUpdateStatus)
			r.Get("/export/{status}", h.ExportCSV)
		})
	})
}

// CreateLead handles public lead capture
func (h *LeadHandler) CreateLead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var req service.CreateLeadInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(h.logger, w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	lead, err := h.leadService.CreateLead(ctx, req)
	if err != nil {
		respondWithError(h.logger, w, h.getStatusCode(err), err, "Failed to capture lead")
		return
	}

	respondWithJSON(h.logger, w, http.StatusCreated, successResponse(lead, "Lead captured successfully"))
	h.logger.Info("Lead captured via HTTP",
		util.String("lead_id", lead.LeadID),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "CreateLead"),
	)
}

// GetLead returns one lead with the phone number decrypted for admin view
func (h *LeadHandler) GetLead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	leadBucket, err := strconv.Atoi(chi.URLParam(r, "leadBucket"))
	if err != nil {
		respondWithError(h.logger, w, http.StatusBadRequest, err, "Invalid lead bucket")
		return
	}
	leadID := chi.URLParam(r, "leadID")

	lead, phone, err := h.leadService.GetLead(ctx, leadBucket, leadID)
	if err != nil {
		respondWithError(h.logger, w, h.getStatusCode(err), err, "Failed to get lead")
		return
	}

	respondWithJSON(h.logger, w, http.StatusOK, successResponse(map[string]interface{}{
		"lead":  lead,
		"phone": phone,
	}, "Lead retrieved successfully"))
}

// ListByStatus pages through leads in one pipeline stage
func (h *LeadHandler) ListByStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := chi.URLParam(r, "status")
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}

	var pageState []byte
	if token := r.URL.Query().Get("page_token"); token != "" {
		decoded, err := base64.URLEncoding.DecodeString(token)
		if err != nil {
			respondWithError(h.logger, w, http.StatusBadRequest, err, "Invalid page token")
			return
		}
		pageState = decoded
	}

	leads, nextState, err := h.leadService.ListLeadsByStatus(ctx, status, pageSize, pageState)
	if err != nil {
		respondWithError(h.logger, w, h.getStatusCode(err), err, "Failed to list leads")
		return
	}

	response := successResponse(leads, "Leads retrieved successfully")
	response.Meta = &Meta{
		PageSize: pageSize,
		Total:    len(leads),
	}
	if len(nextState) > 0 {
		response.Meta.PageToken = base64.URLEncoding.EncodeToString(nextState)
	}

	respondWithJSON(h.logger, w, http.StatusOK, response)
}

// Search queries the redacted lead index
func (h *LeadHandler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query := r.URL.Query().Get("q")
	if query == "" {
		respondWithError(h.logger, w, http.StatusBadRequest, errors.New("missing query"), "Query parameter q is required")
		return
	}
	size, _ := strconv.Atoi(r.URL.Query().Get("size"))

	hits, err := h.leadService.SearchLeads(ctx, query, size)
	if err != nil {
		respondWithError(h.logger, w, http.StatusInternalServerError, err, "Lead search failed")
		return
	}

	respondWithJSON(h.logger, w, http.StatusOK, successResponse(hits, "Search completed"))
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// UpdateStatus moves a single lead through the pipeline
func (h *LeadHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	leadBucket, err := strconv.Atoi(chi.URLParam(r, "leadBucket"))
	if err != nil {
		respondWithError(h.logger, w, http.StatusBadRequest, err, "Invalid lead bucket")
		return
	}
	leadID := chi.URLParam(r, "leadID")

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(h.logger, w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	sess, _ := session.FromContext(ctx)

	lead, err := h.leadService.UpdateLeadStatus(ctx, leadBucket, leadID, req.Status, sess.AdminID)
	if err != nil {
		respondWithError(h.logger, w, h.getStatusCode(err), err, "Failed to update lead status")
		return
	}

	respondWithJSON(h.logger, w, http.StatusOK, successResponse(lead, "Lead status updated"))
}

type bulkStatusRequest struct {
	Leads  []models.LeadRef `json:"leads"`
	Status string           `json:"status"`
}

// BulkUpdateStatus applies one status change to a batch of leads
func (h *LeadHandler) BulkUpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var req bulkStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(h.logger, w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if len(req.Leads) == 0 || len(req.Leads) > 100 {
		respondWithError(h.logger, w, http.StatusBadRequest, errors.New("batch size must be 1-100"), "Invalid batch size")
		return
	}

	sess, _ := session.FromContext(ctx)

	if err := h.leadService.BulkUpdateStatus(ctx, req.Leads, req.Status, sess.AdminID); err != nil {
		respondWithError(h.logger, w, h.getStatusCode(err), err, "Bulk status update failed")
		return
	}

	respondWithJSON(h.logger, w, http.StatusOK, successResponse(nil, "Lead statuses updated"))
	h.logger.Info("Bulk lead update via HTTP",
		util.Int("count", len(req.Leads)),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "BulkUpdateStatus"),
	)
}

// ExportCSV streams all leads of a status as a CSV download
func (h *LeadHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := chi.URLParam(r, "status")

	data, err := h.leadService.ExportLeadsCSV(ctx, status)
	if err != nil {
		respondWithError(h.logger, w, h.getStatusCode(err), err, "Failed to export leads")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="leads-`+status+`.csv"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.Error("Failed to write CSV response", util.ErrorField(err))
	}
}

// getStatusCode determines the appropriate HTTP status code for an error
func (h *LeadHandler) getStatusCode(err error) int {
	switch {
	case errors.Is(err, service.ErrLeadNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidLeadStatus), errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrSuspiciousInput):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
