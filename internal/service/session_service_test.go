package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"admin-service/internal/activity"
	"admin-service/internal/config"
	"admin-service/internal/hashing"
	"admin-service/internal/models"
	redisrepo "admin-service/internal/repository/redis"
	"admin-service/internal/repository/scylla"
)

// memStore is an in-memory SessionStore for service tests.
type memStore struct {
	mu       sync.Mutex
	sessions map[string]*models.AdminSession
}

func newMemStore() *memStore {
	return &memStore{sessions: make(map[string]*models.AdminSession)}
}

func (m *memStore) Create(_ context.Context, s *models.AdminSession, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sessions[s.Token] = &cp
	return nil
}

func (m *memStore) Get(_ context.Context, token string) (*models.AdminSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[token]
	if !ok {
		return nil, redisrepo.ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) Save(_ context.Context, s *models.AdminSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.Token]; !ok {
		return redisrepo.ErrSessionNotFound
	}
	cp := *s
	m.sessions[s.Token] = &cp
	return nil
}

func (m *memStore) Touch(_ context.Context, token string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[token]
	if !ok {
		return redisrepo.ErrSessionNotFound
	}
	s.LastActivity = at
	return nil
}

func (m *memStore) MarkLoginLogged(_ context.Context, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[token]
	if !ok {
		return false, redisrepo.ErrSessionNotFound
	}
	if s.LoginLogged {
		return false, nil
	}
	s.LoginLogged = true
	return true, nil
}

func (m *memStore) Delete(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
	return nil
}

func (m *memStore) DeleteAllForAdmin(_ context.Context, adminID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for token, s := range m.sessions {
		if s.AdminID == adminID {
			delete(m.sessions, token)
		}
	}
	return nil
}

func (m *memStore) has(token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[token]
	return ok
}

var _ redisrepo.SessionStore = (*memStore)(nil)

// memAdminRepo holds admin fixtures keyed by username.
type memAdminRepo struct {
	mu     sync.Mutex
	admins map[string]*models.AdminUser
}

func newMemAdminRepo() *memAdminRepo {
	return &memAdminRepo{admins: make(map[string]*models.AdminUser)}
}

func (m *memAdminRepo) CreateAdmin(_ context.Context, admin *models.AdminUser) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.admins[admin.Username] = admin
	return nil
}

func (m *memAdminRepo) GetAdminByUsername(_ context.Context, username string) (*models.AdminUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	admin, ok := m.admins[username]
	if !ok {
		return nil, scylla.ErrAdminNotFound
	}
	return admin, nil
}

func (m *memAdminRepo) UpdateLastLogin(_ context.Context, username string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if admin, ok := m.admins[username]; ok {
		admin.LastLoginAt = &at
	}
	return nil
}

func (m *memAdminRepo) UpdateRole(_ context.Context, username string, role models.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if admin, ok := m.admins[username]; ok {
		admin.Role = role
	}
	return nil
}

func (m *memAdminRepo) UpdatePassword(_ context.Context, username, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if admin, ok := m.admins[username]; ok {
		admin.PasswordHash = passwordHash
	}
	return nil
}

func (m *memAdminRepo) SetActive(_ context.Context, username string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if admin, ok := m.admins[username]; ok {
		admin.IsActive = active
	}
	return nil
}

func (m *memAdminRepo) ListAdmins(_ context.Context, limit int) ([]*models.AdminUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.AdminUser, 0, len(m.admins))
	for _, admin := range m.admins {
		if len(out) >= limit {
			break
		}
		out = append(out, admin)
	}
	return out, nil
}

func (m *memAdminRepo) HealthCheck(context.Context) error { return nil }

var _ scylla.AdminRepository = (*memAdminRepo)(nil)

// recordingProducer captures activity events for assertions.
type recordingProducer struct {
	mu       sync.Mutex
	events   []models.ActivityEvent
	failWith error
}

func (p *recordingProducer) ProduceMessage(_ context.Context, _ string, _, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failWith != nil {
		return p.failWith
	}
	var event models.ActivityEvent
	if err := json.Unmarshal(value, &event); err != nil {
		return err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *recordingProducer) recorded() []models.ActivityEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.ActivityEvent, len(p.events))
	copy(out, p.events)
	return out
}

type sessionFixture struct {
	service  *SessionService
	store    *memStore
	repo     *memAdminRepo
	producer *recordingProducer
	hasher   *hashing.Hasher
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()

	cfg := config.Get()
	hasher := hashing.NewHasher(cfg)
	store := newMemStore()
	repo := newMemAdminRepo()
	producer := &recordingProducer{}
	activityLogger := activity.NewLogger(producer, nil, "admin-activity", zap.NewNop())

	svc := NewSessionService(repo, store, activityLogger, hasher, cfg, zap.NewNop())
	t.Cleanup(svc.Cleanup)

	return &sessionFixture{
		service:  svc,
		store:    store,
		repo:     repo,
		producer: producer,
		hasher:   hasher,
	}
}

func (f *sessionFixture) seedAdmin(t *testing.T, username, password string, role models.Role, active bool) *models.AdminUser {
	t.Helper()
	hash, err := f.hasher.HashPassword(password)
	require.NoError(t, err)
	admin := &models.AdminUser{
		AdminID:      "admin-" + username,
		Username:     username,
		Role:         role,
		PasswordHash: hash,
		IsActive:     active,
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, f.repo.CreateAdmin(context.Background(), admin))
	return admin
}

func TestSessionService_LoginSuccess(t *testing.T) {
	f := newSessionFixture(t)
	f.seedAdmin(t, "ops", "correct horse battery staple", models.RoleAdmin, true)

	sess, err := f.service.Login(context.Background(), "ops", "correct horse battery staple", "10.0.0.5:4123")
	require.NoError(t, err)
	require.NotEmpty(t, sess.Token)
	assert.Equal(t, models.RoleAdmin, sess.Role)
	assert.True(t, f.store.has(sess.Token))

	// The monitor tracks the session from login
	state, _, tracked := f.service.MonitorState(sess.Token)
	require.True(t, tracked)
	assert.Equal(t, "active", state.String())

	// No LOGIN event at authentication time; it belongs to dashboard landing
	assert.Empty(t, f.producer.recorded())
}

func TestSessionService_LoginDoesNotMonitorRestrictedRoles(t *testing.T) {
	f := newSessionFixture(t)
	f.seedAdmin(t, "viewer", "right-password-here", models.RoleViewMode, true)
	f.seedAdmin(t, "editor", "right-password-here", models.RoleEditMode, true)

	for _, username := range []string{"viewer", "editor"} {
		sess, err := f.service.Login(context.Background(), username, "right-password-here", "10.0.0.5:4123")
		require.NoError(t, err)
		assert.True(t, f.store.has(sess.Token))

		// Only admin-capable sessions are inactivity-monitored; these live
		// on the store TTL and never get an inactivity LOGOUT
		_, _, tracked := f.service.MonitorState(sess.Token)
		assert.False(t, tracked, username)
	}
}

func TestSessionService_LoginRejectsBadCredentials(t *testing.T) {
	f := newSessionFixture(t)
	f.seedAdmin(t, "ops", "right-password-here", models.RoleAdmin, true)

	_, err := f.service.Login(context.Background(), "ops", "wrong-password", "10.0.0.5:4123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = f.service.Login(context.Background(), "ghost", "whatever", "10.0.0.5:4123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestSessionService_LoginRejectsInactiveAdmin(t *testing.T) {
	f := newSessionFixture(t)
	f.seedAdmin(t, "ops", "right-password-here", models.RoleAdmin, false)

	_, err := f.service.Login(context.Background(), "ops", "right-password-here", "10.0.0.5:4123")
	assert.ErrorIs(t, err, ErrAdminInactive)
}

func TestSessionService_DashboardLoginEventFiresOnce(t *testing.T) {
	f := newSessionFixture(t)
	f.seedAdmin(t, "ops", "right-password-here", models.RoleAdmin, true)

	sess, err := f.service.Login(context.Background(), "ops", "right-password-here", "10.0.0.5:4123")
	require.NoError(t, err)

	f.service.ReachDashboard(context.Background(), sess)
	f.service.ReachDashboard(context.Background(), sess)

	require.Eventually(t, func() bool {
		return len(f.producer.recorded()) >= 1
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	events := f.producer.recorded()
	require.Len(t, events, 1)
	assert.Equal(t, models.ActionLogin, events[0].Action)
	assert.Equal(t, "/dashboard", events[0].Page)
}

func TestSessionService_LogoutEmitsEventThenClears(t *testing.T) {
	f := newSessionFixture(t)
	f.seedAdmin(t, "ops", "right-password-here", models.RoleAdmin, true)

	sess, err := f.service.Login(context.Background(), "ops", "right-password-here", "10.0.0.5:4123")
	require.NoError(t, err)

	require.NoError(t, f.service.Logout(context.Background(), sess.Token))

	assert.False(t, f.store.has(sess.Token))
	_, _, tracked := f.service.MonitorState(sess.Token)
	assert.False(t, tracked)

	events := f.producer.recorded()
	require.Len(t, events, 1)
	assert.Equal(t, models.ActionLogout, events[0].Action)
	assert.Equal(t, "explicit logout", events[0].Details)
}

func TestSessionService_LogoutClearsEvenWhenEventFails(t *testing.T) {
	f := newSessionFixture(t)
	f.seedAdmin(t, "ops", "right-password-here", models.RoleAdmin, true)

	sess, err := f.service.Login(context.Background(), "ops", "right-password-here", "10.0.0.5:4123")
	require.NoError(t, err)

	f.producer.failWith = errors.New("broker unreachable")

	require.NoError(t, f.service.Logout(context.Background(), sess.Token))
	assert.False(t, f.store.has(sess.Token))
}

func TestSessionService_LogoutUnknownTokenIsSilent(t *testing.T) {
	f := newSessionFixture(t)

	require.NoError(t, f.service.Logout(context.Background(), "never-existed"))
	assert.Empty(t, f.producer.recorded())
}

func TestSessionService_ExpireEmitsInactivityLogout(t *testing.T) {
	f := newSessionFixture(t)
	f.seedAdmin(t, "ops", "right-password-here", models.RoleAdmin, true)

	sess, err := f.service.Login(context.Background(), "ops", "right-password-here", "10.0.0.5:4123")
	require.NoError(t, err)

	f.service.expireSession(sess.Token)

	assert.False(t, f.store.has(sess.Token))

	events := f.producer.recorded()
	require.Len(t, events, 1)
	assert.Equal(t, models.ActionLogout, events[0].Action)
	assert.Equal(t, "inactivity timeout", events[0].Details)
}

func TestSessionService_InvalidateEmitsNothing(t *testing.T) {
	f := newSessionFixture(t)
	f.seedAdmin(t, "ops", "right-password-here", models.RoleAdmin, true)

	sess, err := f.service.Login(context.Background(), "ops", "right-password-here", "10.0.0.5:4123")
	require.NoError(t, err)

	f.service.Invalidate(context.Background(), sess.Token)

	assert.False(t, f.store.has(sess.Token))
	assert.Empty(t, f.producer.recorded())
}

func TestSessionService_PageViewPairsEndBeforeStart(t *testing.T) {
	f := newSessionFixture(t)
	f.seedAdmin(t, "ops", "right-password-here", models.RoleAdmin, true)

	sess, err := f.service.Login(context.Background(), "ops", "right-password-here", "10.0.0.5:4123")
	require.NoError(t, err)

	// First page: START only
	require.NoError(t, f.service.RecordPageView(context.Background(), sess, "/leads"))

	require.Eventually(t, func() bool {
		return len(f.producer.recorded()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	events := f.producer.recorded()
	assert.Equal(t, models.ActionPageViewStart, events[0].Action)
	assert.Equal(t, "/leads", events[0].Page)

	// Second page: END for /leads, then START for /admins
	require.NoError(t, f.service.RecordPageView(context.Background(), sess, "/admins"))

	require.Eventually(t, func() bool {
		return len(f.producer.recorded()) == 3
	}, 2*time.Second, 10*time.Millisecond)

	events = f.producer.recorded()
	assert.Equal(t, models.ActionPageViewEnd, events[1].Action)
	assert.Equal(t, "/leads", events[1].Page)
	assert.GreaterOrEqual(t, events[1].DurationMS, int64(0))
	assert.Equal(t, models.ActionPageViewStart, events[2].Action)
	assert.Equal(t, "/admins", events[2].Page)
}

func TestSessionService_SamePageDoesNotReemit(t *testing.T) {
	f := newSessionFixture(t)
	f.seedAdmin(t, "ops", "right-password-here", models.RoleAdmin, true)

	sess, err := f.service.Login(context.Background(), "ops", "right-password-here", "10.0.0.5:4123")
	require.NoError(t, err)

	require.NoError(t, f.service.RecordPageView(context.Background(), sess, "/leads"))
	require.NoError(t, f.service.RecordPageView(context.Background(), sess, "/leads"))

	require.Eventually(t, func() bool {
		return len(f.producer.recorded()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Len(t, f.producer.recorded(), 1)
}

func TestSessionService_ConfirmRequiresTrackedSession(t *testing.T) {
	f := newSessionFixture(t)
	f.seedAdmin(t, "ops", "right-password-here", models.RoleAdmin, true)

	sess, err := f.service.Login(context.Background(), "ops", "right-password-here", "10.0.0.5:4123")
	require.NoError(t, err)

	assert.True(t, f.service.Confirm(context.Background(), sess.Token))
	assert.False(t, f.service.Confirm(context.Background(), "ghost-token"))
}
