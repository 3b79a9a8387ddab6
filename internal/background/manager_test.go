package background

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"svw.info/sudoku-replay/internal/clock"
)

func TestVisibleByDefault(t *testing.T) {
	m := NewManager()
	require.False(t, m.IsHidden())
	require.False(t, m.ShouldPauseOperations())
	require.False(t, m.IsInDeepPause())
}

func TestHiddenPausesImmediately(t *testing.T) {
	clk := clock.NewFake()
	m := NewManager(WithClock(clk))

	m.SetHidden(true)
	require.True(t, m.IsHidden())
	require.True(t, m.ShouldPauseOperations())
	require.False(t, m.IsInDeepPause(), "deep pause waits for the grace period")
}

func TestDeepPauseAfterGracePeriod(t *testing.T) {
	clk := clock.NewFake()
	m := NewManager(WithClock(clk), WithGracePeriod(30*time.Second))

	m.SetHidden(true)
	clk.Advance(29 * time.Second)
	require.False(t, m.IsInDeepPause())

	clk.Advance(time.Second)
	require.True(t, m.IsInDeepPause())
	require.True(t, m.ShouldPauseOperations())
}

func TestBecomingVisibleCancelsGraceAndDeepPause(t *testing.T) {
	clk := clock.NewFake()
	m := NewManager(WithClock(clk), WithGracePeriod(30*time.Second))

	m.SetHidden(true)
	clk.Advance(10 * time.Second)
	m.SetHidden(false)
	require.False(t, m.ShouldPauseOperations())

	// The canceled grace timer must not fire later.
	clk.Advance(time.Minute)
	require.False(t, m.IsInDeepPause())

	// Deep pause clears the moment the host is visible again.
	m.SetHidden(true)
	clk.Advance(31 * time.Second)
	require.True(t, m.IsInDeepPause())
	m.SetHidden(false)
	require.False(t, m.IsInDeepPause())
	require.False(t, m.ShouldPauseOperations())
}

func TestForcePauseOverridesVisibility(t *testing.T) {
	m := NewManager(WithClock(clock.NewFake()))

	m.ForcePause()
	require.True(t, m.ShouldPauseOperations())
	require.False(t, m.IsHidden())

	m.ForceResume()
	require.False(t, m.ShouldPauseOperations())
}

func TestForceResumeDoesNotOverrideHidden(t *testing.T) {
	m := NewManager(WithClock(clock.NewFake()))
	m.SetHidden(true)
	m.ForcePause()
	m.ForceResume()
	require.True(t, m.ShouldPauseOperations(), "the host is still hidden")
}

func TestSubscribeDeliversDecisionChanges(t *testing.T) {
	clk := clock.NewFake()
	m := NewManager(WithClock(clk), WithGracePeriod(30*time.Second))

	var mu sync.Mutex
	var events []Event
	unsub := m.Subscribe(func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})

	m.SetHidden(true)
	clk.Advance(30 * time.Second)
	m.SetHidden(false)

	mu.Lock()
	require.Equal(t, []Event{
		{Hidden: true, ShouldPause: true},
		{Hidden: true, ShouldPause: true, DeepPause: true},
		{},
	}, events)
	n := len(events)
	mu.Unlock()

	unsub()
	m.SetHidden(true)
	mu.Lock()
	require.Equal(t, n, len(events), "unsubscribed callbacks see nothing")
	mu.Unlock()
}

func TestRedundantSignalsDoNotNotify(t *testing.T) {
	m := NewManager(WithClock(clock.NewFake()))
	var mu sync.Mutex
	count := 0
	m.Subscribe(func(Event) { mu.Lock(); count++; mu.Unlock() })

	m.SetHidden(false)
	m.ForceResume()
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 0, count)
}

func TestSubscriberPanicDoesNotStopDelivery(t *testing.T) {
	m := NewManager(WithClock(clock.NewFake()))
	var mu sync.Mutex
	delivered := 0
	m.Subscribe(func(Event) { panic("boom") })
	m.Subscribe(func(Event) { mu.Lock(); delivered++; mu.Unlock() })

	m.SetHidden(true)
	m.SetHidden(false)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 2, delivered)
}
