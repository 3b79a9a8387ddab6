// Package background tracks whether the host environment is visible to the
// user and decides when timer-driven work should be suspended to save
// battery and CPU. It only consumes a boolean visibility signal; detecting
// visibility is the host's job.
package background

import (
	"log/slog"
	"sync"
	"time"

	"svw.info/sudoku-replay/internal/clock"
)

// DefaultGracePeriod is how long the host stays hidden before the manager
// escalates into deep pause.
const DefaultGracePeriod = 30 * time.Second

// Event describes one decision change pushed to subscribers.
type Event struct {
	Hidden      bool
	ShouldPause bool
	DeepPause   bool
}

// Manager owns the pause decision. Consumers read it or subscribe; only the
// host visibility feed and the Force* overrides write it.
type Manager struct {
	mu      sync.Mutex
	log     *slog.Logger
	clk     clock.Clock
	grace   time.Duration
	hidden  bool
	forced  bool
	deep    bool
	timer   clock.Timer
	subs    map[int]func(Event)
	nextSub int
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock substitutes the timer source, for tests.
func WithClock(c clock.Clock) Option { return func(m *Manager) { m.clk = c } }

// WithGracePeriod overrides how long hidden lasts before deep pause.
func WithGracePeriod(d time.Duration) Option { return func(m *Manager) { m.grace = d } }

// WithLogger sets the logger for subscriber panics.
func WithLogger(l *slog.Logger) Option { return func(m *Manager) { m.log = l } }

// NewManager builds a Manager in the visible, unforced state.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		log:   slog.Default(),
		clk:   clock.Real(),
		grace: DefaultGracePeriod,
		subs:  make(map[int]func(Event)),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// SetHidden feeds the host visibility signal. Hiding arms the deep-pause
// grace timer; becoming visible clears deep pause.
func (m *Manager) SetHidden(hidden bool) {
	m.mu.Lock()
	if m.hidden == hidden {
		m.mu.Unlock()
		return
	}
	m.hidden = hidden
	if hidden {
		if m.grace > 0 {
			m.timer = m.clk.AfterFunc(m.grace, m.enterDeepPause)
		}
	} else {
		if m.timer != nil {
			m.timer.Stop()
			m.timer = nil
		}
		m.deep = false
	}
	ev := m.eventLocked()
	m.mu.Unlock()
	m.notify(ev)
}

func (m *Manager) enterDeepPause() {
	m.mu.Lock()
	if !m.hidden || m.deep {
		m.mu.Unlock()
		return
	}
	m.deep = true
	ev := m.eventLocked()
	m.mu.Unlock()
	m.log.Debug("entering deep pause", "grace", m.grace)
	m.notify(ev)
}

// ForcePause suspends operations regardless of visibility.
func (m *Manager) ForcePause() {
	m.mu.Lock()
	if m.forced {
		m.mu.Unlock()
		return
	}
	m.forced = true
	ev := m.eventLocked()
	m.mu.Unlock()
	m.notify(ev)
}

// ForceResume lifts a manual pause. It does not override a hidden host.
func (m *Manager) ForceResume() {
	m.mu.Lock()
	if !m.forced {
		m.mu.Unlock()
		return
	}
	m.forced = false
	ev := m.eventLocked()
	m.mu.Unlock()
	m.notify(ev)
}

// IsHidden reports the last host visibility signal.
func (m *Manager) IsHidden() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hidden
}

// ShouldPauseOperations is the single decision consumers gate their timers on.
func (m *Manager) ShouldPauseOperations() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hidden || m.forced || m.deep
}

// IsInDeepPause reports whether the grace period has elapsed while hidden.
func (m *Manager) IsInDeepPause() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deep
}

// Subscribe registers fn for decision changes and returns an unsubscribe
// function. fn runs on the goroutine that triggered the change.
func (m *Manager) Subscribe(fn func(Event)) func() {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

func (m *Manager) eventLocked() Event {
	return Event{
		Hidden:      m.hidden,
		ShouldPause: m.hidden || m.forced || m.deep,
		DeepPause:   m.deep,
	}
}

// notify fans the event out. A panicking subscriber must not take down the
// visibility path, so panics are caught and logged.
func (m *Manager) notify(ev Event) {
	m.mu.Lock()
	fns := make([]func(Event), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.mu.Unlock()
	for _, fn := range fns {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.log.Error("visibility subscriber panicked", "panic", r)
				}
			}()
			fn(ev)
		}()
	}
}
