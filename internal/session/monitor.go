package session

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"admin-service/internal/util"
)

// State is the inactivity phase of a monitored session.
type State int

const (
	// StateActive means the session has seen activity within the idle window.
	StateActive State = iota
	// StateWarning means the idle window elapsed; the session is in its
	// grace period and clients should surface the stay-logged-in prompt.
	StateWarning
	// StateExpired is terminal; the expiry callback has run and the entry
	// is gone.
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateWarning:
		return "warning"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Callbacks are invoked off the monitor's lock, from timer goroutines.
// OnExpire runs exactly once per session, after which the entry is removed.
type Callbacks struct {
	OnWarning func(token string)
	OnExpire  func(token string)
}

// Monitor enforces idle-based automatic logout with a warning grace period.
//
// Each session holds a monotonic last-activity timestamp and a single
// scheduled timer whose deadline is recomputed on every reset. The timer is
// never duplicated: arming an already-monitored session replaces its entry,
// and Stop deterministically cancels the timer and removes the entry.
type Monitor struct {
	idleTimeout     time.Duration
	warningDuration time.Duration
	callbacks       Callbacks
	logger          *zap.Logger

	mu      sync.Mutex
	entries map[string]*entry

	// now is swappable for tests.
	now func() time.Time
}

type entry struct {
	state        State
	lastActivity time.Time
	warningSince time.Time
	timer        *time.Timer

	// gen stamps each armed timer. A callback carrying a stale generation
	// lost a race to a concurrent re-arm and must not touch the entry.
	gen uint64
}

func NewMonitor(idleTimeout, warningDuration time.Duration, callbacks Callbacks, logger *zap.Logger) *Monitor {
	return &Monitor{
		idleTimeout:     idleTimeout,
		warningDuration: warningDuration,
		callbacks:       callbacks,
		logger:          logger,
		entries:         make(map[string]*entry),
		now:             time.Now,
	}
}

// Start arms monitoring for a session. Arming an already-monitored token
// replaces its entry rather than stacking a second timer.
func (m *Monitor) Start(token string) {
	m.mu.Lock()
	if old, ok := m.entries[token]; ok {
		old.timer.Stop()
	}
	e := &entry{
		state:        StateActive,
		lastActivity: m.now(),
	}
	m.armIdleLocked(token, e, m.idleTimeout)
	m.entries[token] = e
	m.mu.Unlock()

	m.logger.Debug("Inactivity monitor armed",
		util.Duration("idle_timeout", m.idleTimeout),
		util.Duration("warning_duration", m.warningDuration))
}

// Touch registers a tracked interaction. In WARNING it dismisses the
// warning and returns the session to ACTIVE with a fresh idle window.
// Unknown tokens are ignored.
func (m *Monitor) Touch(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touchLocked(token)
}

// Confirm is the explicit "stay logged in" acknowledgment from the warning
// prompt. It reports whether the session was known to the monitor.
func (m *Monitor) Confirm(token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[token]; !ok {
		return false
	}
	m.touchLocked(token)
	return true
}

func (m *Monitor) touchLocked(token string) {
	e, ok := m.entries[token]
	if !ok {
		return
	}
	e.lastActivity = m.now()
	if e.state == StateWarning {
		e.state = StateActive
		e.warningSince = time.Time{}
	}
	// Last writer wins: any interaction restarts the full idle window.
	e.timer.Stop()
	m.armIdleLocked(token, e, m.idleTimeout)
}

// armIdleLocked and armWarningLocked replace the entry's single timer,
// bumping the generation so a callback from the displaced timer detects
// it has been superseded and stands down.
func (m *Monitor) armIdleLocked(token string, e *entry, d time.Duration) {
	e.gen++
	gen := e.gen
	e.timer = time.AfterFunc(d, func() { m.onIdleDeadline(token, e, gen) })
}

func (m *Monitor) armWarningLocked(token string, e *entry) {
	e.gen++
	gen := e.gen
	e.timer = time.AfterFunc(m.warningDuration, func() { m.onWarningDeadline(token, e, gen) })
}

// Stop tears down monitoring for a session: the timer is cancelled and the
// entry removed. Safe to call for unknown tokens.
func (m *Monitor) Stop(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[token]; ok {
		e.timer.Stop()
		delete(m.entries, token)
	}
}

// StopAll tears down every monitored session. Used on shutdown.
func (m *Monitor) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for token, e := range m.entries {
		e.timer.Stop()
		delete(m.entries, token)
	}
}

// State returns the session's phase and whether it is monitored at all.
func (m *Monitor) State(token string) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[token]
	if !ok {
		return StateExpired, false
	}
	return e.state, true
}

// Deadline returns when the session will next transition: the warning
// deadline while ACTIVE, the expiry deadline while WARNING.
func (m *Monitor) Deadline(token string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[token]
	if !ok {
		return time.Time{}, false
	}
	if e.state == StateWarning {
		return e.warningSince.Add(m.warningDuration), true
	}
	return e.lastActivity.Add(m.idleTimeout), true
}

// onIdleDeadline fires when the armed idle timer elapses. A touch that
// landed after this timer was scheduled moves the real deadline forward, so
// the deadline is recomputed from last activity and the timer re-armed for
// the remainder instead of transitioning early. A touch that won the lock
// between this timer firing and running already armed a replacement, which
// the generation check detects: the stale fire stands down without
// re-arming over the live timer.
func (m *Monitor) onIdleDeadline(token string, fired *entry, gen uint64) {
	m.mu.Lock()
	e, ok := m.entries[token]
	if !ok || e != fired || e.gen != gen || e.state != StateActive {
		// Torn down, replaced, or superseded between fire and lock
		// acquisition.
		m.mu.Unlock()
		return
	}

	deadline := e.lastActivity.Add(m.idleTimeout)
	if now := m.now(); now.Before(deadline) {
		m.armIdleLocked(token, e, deadline.Sub(now))
		m.mu.Unlock()
		return
	}

	e.state = StateWarning
	e.warningSince = m.now()
	m.armWarningLocked(token, e)
	m.mu.Unlock()

	m.logger.Info("Session idle, warning issued",
		util.Duration("idle_timeout", m.idleTimeout))
	if m.callbacks.OnWarning != nil {
		m.callbacks.OnWarning(token)
	}
}

// onWarningDeadline fires when the grace period elapses without a confirm
// or interaction. The entry is removed under the lock before the callback
// runs, which is what makes the expiry exactly-once.
func (m *Monitor) onWarningDeadline(token string, fired *entry, gen uint64) {
	m.mu.Lock()
	e, ok := m.entries[token]
	if !ok || e != fired || e.gen != gen || e.state != StateWarning {
		m.mu.Unlock()
		return
	}
	e.state = StateExpired
	e.timer.Stop()
	delete(m.entries, token)
	m.mu.Unlock()

	m.logger.Info("Session expired after warning grace period",
		util.Duration("warning_duration", m.warningDuration))
	if m.callbacks.OnExpire != nil {
		m.callbacks.OnExpire(token)
	}
}
