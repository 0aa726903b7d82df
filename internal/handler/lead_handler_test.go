package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"admin-service/internal/bucketing"
	"admin-service/internal/config"
	"admin-service/internal/encryption"
	"admin-service/internal/models"
	redisrepo "admin-service/internal/repository/redis"
	"admin-service/internal/repository/scylla"
	"admin-service/internal/service"
	"admin-service/internal/session"
)

// stubStore resolves fixed tokens for guard tests.
type stubStore struct {
	sessions map[string]*models.AdminSession
}

func (s *stubStore) Create(_ context.Context, sess *models.AdminSession, _ time.Duration) error {
	s.sessions[sess.Token] = sess
	return nil
}

func (s *stubStore) Get(_ context.Context, token string) (*models.AdminSession, error) {
	sess, ok := s.sessions[token]
	if !ok {
		return nil, redisrepo.ErrSessionNotFound
	}
	return sess, nil
}

func (s *stubStore) Save(_ context.Context, sess *models.AdminSession) error {
	s.sessions[sess.Token] = sess
	return nil
}

func (s *stubStore) Touch(_ context.Context, token string, at time.Time) error {
	if sess, ok := s.sessions[token]; ok {
		sess.LastActivity = at
	}
	return nil
}

func (s *stubStore) MarkLoginLogged(context.Context, string) (bool, error) { return false, nil }
func (s *stubStore) Delete(_ context.Context, token string) error {
	delete(s.sessions, token)
	return nil
}
func (s *stubStore) DeleteAllForAdmin(context.Context, string) error { return nil }

var _ redisrepo.SessionStore = (*stubStore)(nil)

// stubLeadRepo holds one canned lead.
type stubLeadRepo struct {
	lead *models.Lead
}

func (r *stubLeadRepo) CreateLead(_ context.Context, lead *models.Lead) error {
	r.lead = lead
	return nil
}

func (r *stubLeadRepo) GetLeadByID(_ context.Context, bucket int, leadID string) (*models.Lead, error) {
	if r.lead == nil || r.lead.LeadBucket != bucket || r.lead.LeadID != leadID {
		return nil, scylla.ErrLeadNotFound
	}
	out := *r.lead
	return &out, nil
}

func (r *stubLeadRepo) UpdateLeadStatus(_ context.Context, lead *models.Lead, newStatus, assignedTo string) error {
	if r.lead == nil || r.lead.LeadID != lead.LeadID {
		return scylla.ErrLeadNotFound
	}
	r.lead.Status = newStatus
	r.lead.AssignedTo = assignedTo
	return nil
}

func (r *stubLeadRepo) ListLeadsByStatus(_ context.Context, status string, _ int, _ []byte) ([]*models.Lead, []byte, error) {
	if r.lead != nil && r.lead.Status == status {
		out := *r.lead
		return []*models.Lead{&out}, nil, nil
	}
	return nil, nil, nil
}

func (r *stubLeadRepo) HealthCheck(context.Context) error { return nil }

var _ scylla.LeadRepository = (*stubLeadRepo)(nil)

func newLeadRouter(t *testing.T) (chi.Router, *stubStore, *service.LeadService) {
	t.Helper()

	cfg := config.Get()
	store := &stubStore{sessions: make(map[string]*models.AdminSession)}
	monitor := session.NewMonitor(cfg.Session.IdleTimeout, cfg.Session.WarningDuration, session.Callbacks{}, zap.NewNop())
	t.Cleanup(monitor.StopAll)
	guard := session.NewGuard(store, monitor, zap.NewNop())

	leadService := service.NewLeadService(
		&stubLeadRepo{},
		nil,
		encryption.NewManager(cfg, nil),
		bucketing.NewManager(cfg),
		zap.NewNop(),
	)

	router := chi.NewRouter()
	NewLeadHandler(leadService, guard, zap.NewNop()).RegisterRoutes(router)
	return router, store, leadService
}

func seedSession(store *stubStore, token string, role models.Role) {
	store.sessions[token] = &models.AdminSession{
		Token:        token,
		AdminID:      "admin-" + token,
		Role:         role,
		CreatedAt:    time.Now().UTC(),
		LastActivity: time.Now().UTC(),
	}
}

func doRequest(t *testing.T, router chi.Router, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestLeadRoutes_CaptureIsPublic(t *testing.T) {
	router, _, _ := newLeadRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/leads", "",
		`{"name":"asha","phone":"+91-9876543210","course":"golang"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestLeadRoutes_EditorWorksTheFullSurface(t *testing.T) {
	router, store, leadService := newLeadRouter(t)
	seedSession(store, "tok-editor", models.RoleEditMode)

	lead, err := leadService.CreateLead(context.Background(), service.CreateLeadInput{
		Name: "asha", Phone: "+91-9876543210",
	})
	require.NoError(t, err)

	// Editors both read and mutate leads through the same gate
	rec := doRequest(t, router, http.MethodGet, "/leads/status/new", "tok-editor", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	path := fmt.Sprintf("/leads/%d/%s", lead.LeadBucket, lead.LeadID)
	rec = doRequest(t, router, http.MethodGet, path, "tok-editor", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodPatch, path+"/status", "tok-editor", `{"status":"contacted"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/leads/export/contacted", "tok-editor", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
}

func TestLeadRoutes_ViewModeIsRefused(t *testing.T) {
	router, store, _ := newLeadRouter(t)
	seedSession(store, "tok-viewer", models.RoleViewMode)

	for _, tc := range []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/leads/status/new"},
		{http.MethodGet, "/leads/1/some-id"},
		{http.MethodGet, "/leads/export/new"},
	} {
		rec := doRequest(t, router, tc.method, tc.path, "tok-viewer", "")
		assert.Equal(t, http.StatusForbidden, rec.Code, tc.path)
	}
}

func TestLeadRoutes_MissingTokenIsUnauthorized(t *testing.T) {
	router, _, _ := newLeadRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/leads/status/new", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
