package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"admin-service/internal/models"
	redisrepo "admin-service/internal/repository/redis"
)

// fakeStore is an in-memory SessionStore for guard tests.
type fakeStore struct {
	mu       sync.Mutex
	sessions map[string]*models.AdminSession
	failWith error
	touches  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: make(map[string]*models.AdminSession)}
}

func (f *fakeStore) Create(_ context.Context, s *models.AdminSession, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[s.Token] = s
	return nil
}

func (f *fakeStore) Get(_ context.Context, token string) (*models.AdminSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	s, ok := f.sessions[token]
	if !ok {
		return nil, redisrepo.ErrSessionNotFound
	}
	return s, nil
}

func (f *fakeStore) Save(_ context.Context, s *models.AdminSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[s.Token]; !ok {
		return redisrepo.ErrSessionNotFound
	}
	f.sessions[s.Token] = s
	return nil
}

func (f *fakeStore) Touch(_ context.Context, token string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[token]
	if !ok {
		return redisrepo.ErrSessionNotFound
	}
	s.LastActivity = at
	f.touches++
	return nil
}

func (f *fakeStore) MarkLoginLogged(_ context.Context, token string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[token]
	if !ok {
		return false, redisrepo.ErrSessionNotFound
	}
	if s.LoginLogged {
		return false, nil
	}
	s.LoginLogged = true
	return true, nil
}

func (f *fakeStore) Delete(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, token)
	return nil
}

func (f *fakeStore) DeleteAllForAdmin(_ context.Context, adminID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for token, s := range f.sessions {
		if s.AdminID == adminID {
			delete(f.sessions, token)
		}
	}
	return nil
}

var _ redisrepo.SessionStore = (*fakeStore)(nil)

func newTestGuard(store redisrepo.SessionStore) (*Guard, *Monitor) {
	monitor := NewMonitor(time.Hour, time.Minute, Callbacks{}, zap.NewNop())
	return NewGuard(store, monitor, zap.NewNop()), monitor
}

func seedSession(t *testing.T, store *fakeStore, token string, role models.Role) *models.AdminSession {
	t.Helper()
	sess := &models.AdminSession{
		Token:    token,
		AdminID:  "admin-1",
		Username: "ops",
		Role:     role,
	}
	require.NoError(t, store.Create(context.Background(), sess, time.Hour))
	return sess
}

func doGuarded(t *testing.T, mw func(http.Handler) http.Handler, token string) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	passed := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		passed = true
		_, ok := FromContext(r.Context())
		assert.True(t, ok)
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/admin/leads", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	mw(next).ServeHTTP(rec, req)
	return rec, passed
}

func decodeGuardBody(t *testing.T, rec *httptest.ResponseRecorder) guardResponse {
	t.Helper()
	var body guardResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestGuard_MissingTokenRedirectsToLogin(t *testing.T) {
	guard, _ := newTestGuard(newFakeStore())

	rec, passed := doGuarded(t, guard.RequireAdmin, "")

	assert.False(t, passed)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "/login", decodeGuardBody(t, rec).Redirect)
}

func TestGuard_UnknownTokenRedirectsToLogin(t *testing.T) {
	store := newFakeStore()
	guard, monitor := newTestGuard(store)

	// Monitor residue for the dead token must be torn down
	monitor.Start("stale-token")

	rec, passed := doGuarded(t, guard.RequireAdmin, "stale-token")

	assert.False(t, passed)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "/login", decodeGuardBody(t, rec).Redirect)

	_, tracked := monitor.State("stale-token")
	assert.False(t, tracked)
}

func TestGuard_UnderPrivilegedRoleRedirectsToDashboard(t *testing.T) {
	store := newFakeStore()
	guard, _ := newTestGuard(store)
	seedSession(t, store, "viewer-token", models.RoleViewMode)

	rec, passed := doGuarded(t, guard.RequireAdmin, "viewer-token")

	assert.False(t, passed)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "/dashboard", decodeGuardBody(t, rec).Redirect)
}

func TestGuard_AdminCapableRolePassesThrough(t *testing.T) {
	store := newFakeStore()
	guard, monitor := newTestGuard(store)
	seedSession(t, store, "admin-token", models.RoleAdmin)
	monitor.Start("admin-token")

	rec, passed := doGuarded(t, guard.RequireAdmin, "admin-token")

	assert.True(t, passed)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Passing through counts as a tracked interaction
	assert.Equal(t, 1, store.touches)
}

func TestGuard_SuperAdminGate(t *testing.T) {
	store := newFakeStore()
	guard, _ := newTestGuard(store)
	seedSession(t, store, "admin-token", models.RoleAdmin)
	seedSession(t, store, "root-token", models.RoleSuperAdmin)

	rec, passed := doGuarded(t, guard.RequireSuperAdmin, "admin-token")
	assert.False(t, passed)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, passed = doGuarded(t, guard.RequireSuperAdmin, "root-token")
	assert.True(t, passed)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGuard_EditorGateShutsOutViewMode(t *testing.T) {
	store := newFakeStore()
	guard, _ := newTestGuard(store)
	seedSession(t, store, "viewer-token", models.RoleViewMode)
	seedSession(t, store, "editor-token", models.RoleEditMode)

	_, passed := doGuarded(t, guard.RequireEditor, "viewer-token")
	assert.False(t, passed)

	_, passed = doGuarded(t, guard.RequireEditor, "editor-token")
	assert.True(t, passed)
}

func TestGuard_RequireAuthAdmitsAnyRole(t *testing.T) {
	store := newFakeStore()
	guard, _ := newTestGuard(store)
	seedSession(t, store, "viewer-token", models.RoleViewMode)

	rec, passed := doGuarded(t, guard.RequireAuth, "viewer-token")
	assert.True(t, passed)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGuard_StoreFailureIs503(t *testing.T) {
	store := newFakeStore()
	store.failWith = errors.New("connection refused")
	guard, _ := newTestGuard(store)

	rec, passed := doGuarded(t, guard.RequireAdmin, "any-token")

	assert.False(t, passed)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	// A store outage is not an invalidation; no redirect hint either way
	assert.Empty(t, decodeGuardBody(t, rec).Redirect)
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, BearerToken(req))

	req.Header.Set("Authorization", "Basic abc123")
	assert.Empty(t, BearerToken(req))

	req.Header.Set("Authorization", "Bearer  tok-99 ")
	assert.Equal(t, "tok-99", BearerToken(req))
}
