package session

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestMonitor(idle, warning time.Duration, cb Callbacks) *Monitor {
	return NewMonitor(idle, warning, cb, zap.NewNop())
}

func TestMonitor_IdleLeadsToWarningThenExpiry(t *testing.T) {
	var warnings, expirations int32
	warned := make(chan string, 1)
	expired := make(chan string, 1)

	m := newTestMonitor(40*time.Millisecond, 40*time.Millisecond, Callbacks{
		OnWarning: func(token string) {
			atomic.AddInt32(&warnings, 1)
			warned <- token
		},
		OnExpire: func(token string) {
			atomic.AddInt32(&expirations, 1)
			expired <- token
		},
	})
	defer m.StopAll()

	m.Start("tok-1")

	state, ok := m.State("tok-1")
	require.True(t, ok)
	require.Equal(t, StateActive, state)

	select {
	case token := <-warned:
		require.Equal(t, "tok-1", token)
	case <-time.After(2 * time.Second):
		t.Fatal("warning callback never fired")
	}

	state, ok = m.State("tok-1")
	require.True(t, ok)
	require.Equal(t, StateWarning, state)

	select {
	case token := <-expired:
		require.Equal(t, "tok-1", token)
	case <-time.After(2 * time.Second):
		t.Fatal("expiry callback never fired")
	}

	// The entry is gone once the expiry callback has run
	_, ok = m.State("tok-1")
	require.False(t, ok)

	assert.Equal(t, int32(1), atomic.LoadInt32(&warnings))
	assert.Equal(t, int32(1), atomic.LoadInt32(&expirations))
}

func TestMonitor_TouchKeepsSessionActive(t *testing.T) {
	var warnings int32
	m := newTestMonitor(60*time.Millisecond, 60*time.Millisecond, Callbacks{
		OnWarning: func(string) { atomic.AddInt32(&warnings, 1) },
	})
	defer m.StopAll()

	m.Start("tok-2")

	// Keep touching well inside the idle window for several windows' worth
	deadline := time.Now().Add(250 * time.Millisecond)
	for time.Now().Before(deadline) {
		m.Touch("tok-2")
		time.Sleep(15 * time.Millisecond)
	}

	state, ok := m.State("tok-2")
	require.True(t, ok)
	assert.Equal(t, StateActive, state)
	assert.Equal(t, int32(0), atomic.LoadInt32(&warnings))
}

func TestMonitor_ConfirmDuringWarningRestoresFullWindow(t *testing.T) {
	warned := make(chan struct{}, 1)
	var expirations int32

	m := newTestMonitor(30*time.Millisecond, 500*time.Millisecond, Callbacks{
		OnWarning: func(string) { warned <- struct{}{} },
		OnExpire:  func(string) { atomic.AddInt32(&expirations, 1) },
	})
	defer m.StopAll()

	m.Start("tok-3")

	select {
	case <-warned:
	case <-time.After(2 * time.Second):
		t.Fatal("warning callback never fired")
	}

	confirmedAt := time.Now()
	require.True(t, m.Confirm("tok-3"))

	state, ok := m.State("tok-3")
	require.True(t, ok)
	assert.Equal(t, StateActive, state)

	// The restored deadline is a full idle window from the confirm
	deadline, ok := m.Deadline("tok-3")
	require.True(t, ok)
	assert.WithinDuration(t, confirmedAt.Add(30*time.Millisecond), deadline, 25*time.Millisecond)

	assert.Equal(t, int32(0), atomic.LoadInt32(&expirations))
}

func TestMonitor_ConfirmUnknownToken(t *testing.T) {
	m := newTestMonitor(time.Minute, time.Minute, Callbacks{})
	defer m.StopAll()

	assert.False(t, m.Confirm("never-started"))
}

func TestMonitor_StopPreventsCallbacks(t *testing.T) {
	var fired int32
	m := newTestMonitor(30*time.Millisecond, 30*time.Millisecond, Callbacks{
		OnWarning: func(string) { atomic.AddInt32(&fired, 1) },
		OnExpire:  func(string) { atomic.AddInt32(&fired, 1) },
	})

	m.Start("tok-4")
	m.Stop("tok-4")

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&fired))

	_, ok := m.State("tok-4")
	assert.False(t, ok)
}

func TestMonitor_StartReplacesExistingEntry(t *testing.T) {
	var expirations int32
	expired := make(chan struct{}, 4)

	m := newTestMonitor(30*time.Millisecond, 30*time.Millisecond, Callbacks{
		OnExpire: func(string) {
			atomic.AddInt32(&expirations, 1)
			expired <- struct{}{}
		},
	})
	defer m.StopAll()

	// Re-arming must not stack a second timer chain
	m.Start("tok-5")
	m.Start("tok-5")
	m.Start("tok-5")

	select {
	case <-expired:
	case <-time.After(2 * time.Second):
		t.Fatal("expiry callback never fired")
	}

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&expirations))
}

func TestMonitor_ExpiryIsExactlyOnceUnderConcurrentTeardown(t *testing.T) {
	var expirations int32

	m := newTestMonitor(20*time.Millisecond, 20*time.Millisecond, Callbacks{
		OnExpire: func(string) { atomic.AddInt32(&expirations, 1) },
	})
	defer m.StopAll()

	const sessions = 50
	for i := 0; i < sessions; i++ {
		m.Start(token(i))
	}

	// Race explicit teardown against the warning chain for half the sessions
	var wg sync.WaitGroup
	for i := 0; i < sessions; i += 2 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			time.Sleep(time.Duration(i) * time.Millisecond)
			m.Stop(token(i))
		}(i)
	}
	wg.Wait()

	time.Sleep(300 * time.Millisecond)

	// Every session either expired once or was stopped first; never both,
	// never twice
	assert.LessOrEqual(t, atomic.LoadInt32(&expirations), int32(sessions))
	for i := 0; i < sessions; i++ {
		_, ok := m.State(token(i))
		assert.False(t, ok)
	}
}

func TestMonitor_DeadlineWhileActive(t *testing.T) {
	m := newTestMonitor(time.Hour, time.Minute, Callbacks{})
	defer m.StopAll()

	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }

	m.Start("tok-6")

	deadline, ok := m.Deadline("tok-6")
	require.True(t, ok)
	assert.Equal(t, base.Add(time.Hour), deadline)

	// A touch pushes the deadline forward
	later := base.Add(10 * time.Minute)
	m.now = func() time.Time { return later }
	m.Touch("tok-6")

	deadline, ok = m.Deadline("tok-6")
	require.True(t, ok)
	assert.Equal(t, later.Add(time.Hour), deadline)
}

func TestMonitor_StaleIdleFireStandsDown(t *testing.T) {
	m := newTestMonitor(time.Hour, time.Minute, Callbacks{})
	defer m.StopAll()

	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }

	m.Start("tok-7")

	m.mu.Lock()
	e := m.entries["tok-7"]
	staleGen := e.gen
	m.mu.Unlock()

	// A touch lands while the original idle timer is (notionally) already
	// in flight: it arms a replacement timer and bumps the generation.
	m.Touch("tok-7")

	m.mu.Lock()
	liveTimer := e.timer
	liveGen := e.gen
	m.mu.Unlock()
	require.NotEqual(t, staleGen, liveGen)

	// The displaced timer's callback runs last. It must stand down without
	// overwriting the live timer or transitioning the session.
	m.onIdleDeadline("tok-7", e, staleGen)

	m.mu.Lock()
	assert.Same(t, liveTimer, e.timer)
	assert.Equal(t, liveGen, e.gen)
	assert.Equal(t, StateActive, e.state)
	m.mu.Unlock()
}

func TestMonitor_StateUnknownToken(t *testing.T) {
	m := newTestMonitor(time.Minute, time.Minute, Callbacks{})
	defer m.StopAll()

	_, ok := m.State("ghost")
	assert.False(t, ok)

	_, ok = m.Deadline("ghost")
	assert.False(t, ok)

	// Touch and Stop on unknown tokens are no-ops
	m.Touch("ghost")
	m.Stop("ghost")
}

func token(i int) string {
	return fmt.Sprintf("tok-batch-%d", i)
}
