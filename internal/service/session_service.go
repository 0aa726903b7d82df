package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"admin-service/internal/activity"
	"admin-service/internal/config"
	"admin-service/internal/hashing"
	"admin-service/internal/models"
	redisrepo "admin-service/internal/repository/redis"
	"admin-service/internal/repository/scylla"
	"admin-service/internal/session"
	"admin-service/internal/util"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAdminInactive      = errors.New("admin account is inactive")
	ErrSessionNotFound    = errors.New("session not found")
	ErrInvalidInput       = errors.New("invalid input")
)

// SessionService owns the admin session lifecycle: login, logout, inactivity
// expiry, and the page-view/LOGIN audit instrumentation. It is the single
// authoritative writer of session state; the guard only reads.
type SessionService struct {
	adminRepo scylla.AdminRepository
	store     redisrepo.SessionStore
	monitor   *session.Monitor
	activity  *activity.Logger
	hasher    *hashing.Hasher
	cfg       *config.Config
	logger    *zap.Logger
}

func NewSessionService(
	adminRepo scylla.AdminRepository,
	store redisrepo.SessionStore,
	activityLogger *activity.Logger,
	hasher *hashing.Hasher,
	cfg *config.Config,
	logger *zap.Logger,
) *SessionService {
	s := &SessionService{
		adminRepo: adminRepo,
		store:     store,
		activity:  activityLogger,
		hasher:    hasher,
		cfg:       cfg,
		logger:    logger,
	}

	// The service owns the monitor so expiry feeds straight back into the
	// logout routine.
	s.monitor = session.NewMonitor(
		cfg.Session.IdleTimeout,
		cfg.Session.WarningDuration,
		session.Callbacks{
			OnExpire: s.expireSession,
		},
		logger,
	)

	return s
}

// Monitor exposes the inactivity monitor for the guard's activity touches.
func (s *SessionService) Monitor() *session.Monitor {
	return s.monitor
}

// Login verifies credentials, creates the session record, and for
// admin-capable roles arms the inactivity monitor. The LOGIN activity
// event is NOT emitted here; it fires once when the dashboard landing
// page is first reached.
func (s *SessionService) Login(ctx context.Context, username, password, remoteAddr string) (*models.AdminSession, error) {
	if username == "" || password == "" {
		return nil, fmt.Errorf("%w: username and password are required", ErrInvalidInput)
	}

	admin, err := s.adminRepo.GetAdminByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, scylla.ErrAdminNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up admin: %w", err)
	}

	if !admin.IsActive {
		return nil, ErrAdminInactive
	}

	ok, err := s.hasher.VerifyPassword(password, admin.PasswordHash)
	if err != nil || !ok {
		return nil, ErrInvalidCredentials
	}

	now := time.Now().UTC()
	sess := &models.AdminSession{
		Token:        uuid.New().String(),
		AdminID:      admin.AdminID,
		Username:     admin.Username,
		Role:         admin.Role,
		CreatedAt:    now,
		LastActivity: now,
		ExpiresAt:    now.Add(s.cfg.Session.TTL),
		IPAddress:    parseIP(remoteAddr),
	}

	if err := s.store.Create(ctx, sess, s.cfg.Session.TTL); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	// The inactivity monitor runs only while an admin-capable session
	// exists. Other roles live on the store TTL alone and never receive
	// an inactivity LOGOUT.
	if sess.Role.AdminCapable() {
		s.monitor.Start(sess.Token)
	}

	if err := s.adminRepo.UpdateLastLogin(ctx, admin.Username, now); err != nil {
		s.logger.Warn("Failed to record last login", util.ErrorField(err))
	}

	s.logger.Info("Admin logged in",
		util.String("admin_id", admin.AdminID),
		util.String("username", admin.Username),
		util.String("role", admin.Role.String()))

	return sess, nil
}

// Logout emits the LOGOUT event best-effort, then clears the session and
// tears down the monitor. The clear proceeds whatever the emission does.
func (s *SessionService) Logout(ctx context.Context, token string) error {
	sess, err := s.store.Get(ctx, token)
	if err != nil {
		if errors.Is(err, redisrepo.ErrSessionNotFound) {
			s.monitor.Stop(token)
			return nil
		}
		return fmt.Errorf("failed to resolve session for logout: %w", err)
	}

	logCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	s.activity.LogSync(logCtx, models.ActivityEvent{
		AdminID: sess.AdminID,
		Action:  models.ActionLogout,
		Page:    sess.CurrentPage,
		Details: "explicit logout",
	})
	cancel()

	if err := s.store.Delete(ctx, token); err != nil {
		s.logger.Error("Failed to delete session on logout", util.ErrorField(err))
	}
	s.monitor.Stop(token)

	s.logger.Info("Admin logged out", util.String("admin_id", sess.AdminID))
	return nil
}

// Invalidate clears a session presumed dead (the 401 path or an admin
// deactivation). No LOGOUT event is emitted.
func (s *SessionService) Invalidate(ctx context.Context, token string) {
	if err := s.store.Delete(ctx, token); err != nil {
		s.logger.Warn("Failed to delete invalidated session", util.ErrorField(err))
	}
	s.monitor.Stop(token)
}

// InvalidateAdmin clears every session an admin holds. Used when an account
// is deactivated; no LOGOUT events are emitted.
func (s *SessionService) InvalidateAdmin(ctx context.Context, adminID string) {
	if err := s.store.DeleteAllForAdmin(ctx, adminID); err != nil {
		s.logger.Warn("Failed to delete admin sessions", util.ErrorField(err))
	}
}

// expireSession is the monitor's expiry callback: identical to explicit
// logout from the caller's view, with the inactivity detail on the event.
func (s *SessionService) expireSession(token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess, err := s.store.Get(ctx, token)
	if err != nil {
		// Session raced away (explicit logout or TTL); nothing to do.
		return
	}

	s.activity.LogSync(ctx, models.ActivityEvent{
		AdminID: sess.AdminID,
		Action:  models.ActionLogout,
		Page:    sess.CurrentPage,
		Details: "inactivity timeout",
	})

	if err := s.store.Delete(ctx, token); err != nil {
		s.logger.Error("Failed to delete expired session", util.ErrorField(err))
	}

	s.logger.Info("Session expired after inactivity",
		util.String("admin_id", sess.AdminID))
}

// ReachDashboard emits the once-per-session LOGIN event when the dashboard
// landing page is first reached post-authentication.
func (s *SessionService) ReachDashboard(ctx context.Context, sess *models.AdminSession) {
	won, err := s.store.MarkLoginLogged(ctx, sess.Token)
	if err != nil {
		s.logger.Warn("Failed to mark login logged", util.ErrorField(err))
		return
	}
	if !won {
		return
	}

	s.activity.Log(models.ActivityEvent{
		AdminID: sess.AdminID,
		Action:  models.ActionLogin,
		Page:    "/dashboard",
		Details: "role=" + sess.Role.String(),
	})
}

// RecordPageView handles an admin route change: PAGE_VIEW_END for the
// outgoing page is enqueued before PAGE_VIEW_START for the incoming one.
// The duration is computed from the entry timestamp held on the session
// record, so rapid navigations attribute time to the correct page.
func (s *SessionService) RecordPageView(ctx context.Context, sess *models.AdminSession, page string) error {
	if page == "" {
		return fmt.Errorf("%w: page is required", ErrInvalidInput)
	}

	now := time.Now().UTC()

	if sess.CurrentPage != page {
		// END for the outgoing page goes on the topic before START for the
		// incoming one.
		events := make([]models.ActivityEvent, 0, 2)
		if sess.CurrentPage != "" {
			events = append(events, models.ActivityEvent{
				AdminID:    sess.AdminID,
				Action:     models.ActionPageViewEnd,
				Page:       sess.CurrentPage,
				DurationMS: now.Sub(sess.PageEnteredAt).Milliseconds(),
			})
		}
		events = append(events, models.ActivityEvent{
			AdminID: sess.AdminID,
			Action:  models.ActionPageViewStart,
			Page:    page,
		})
		s.activity.LogBatch(events...)

		sess.CurrentPage = page
		sess.PageEnteredAt = now
	}

	if err := s.store.Save(ctx, sess); err != nil {
		if errors.Is(err, redisrepo.ErrSessionNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("failed to save page state: %w", err)
	}

	return nil
}

// Confirm is the stay-logged-in acknowledgment from the warning prompt.
func (s *SessionService) Confirm(ctx context.Context, token string) bool {
	if !s.monitor.Confirm(token) {
		return false
	}
	if err := s.store.Touch(ctx, token, time.Now().UTC()); err != nil {
		s.logger.Warn("Failed to touch session on confirm", util.ErrorField(err))
	}
	return true
}

// Heartbeat registers client-side interaction (pointer, key, scroll)
// batched up by the admin UI.
func (s *SessionService) Heartbeat(ctx context.Context, token string) {
	s.monitor.Touch(token)
	if err := s.store.Touch(ctx, token, time.Now().UTC()); err != nil && !errors.Is(err, redisrepo.ErrSessionNotFound) {
		s.logger.Warn("Failed to touch session on heartbeat", util.ErrorField(err))
	}
}

// MonitorState reports the inactivity phase and next transition deadline
// for the session status endpoint.
func (s *SessionService) MonitorState(token string) (session.State, time.Time, bool) {
	state, ok := s.monitor.State(token)
	if !ok {
		return state, time.Time{}, false
	}
	deadline, _ := s.monitor.Deadline(token)
	return state, deadline, true
}

// Cleanup tears down all monitored sessions. Called on shutdown.
func (s *SessionService) Cleanup() {
	s.monitor.StopAll()
}

func parseIP(remoteAddr string) net.IP {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	return net.ParseIP(host)
}
