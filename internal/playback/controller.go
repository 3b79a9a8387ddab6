// Package playback replays a fetched solver solution onto mutable puzzle
// state one move at a time: delay-driven auto-advance, pause/resume, manual
// scrubbing over an append-only snapshot history, and suspension while the
// host environment is hidden.
package playback

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"svw.info/sudoku-replay/internal/background"
	"svw.info/sudoku-replay/internal/clock"
	"svw.info/sudoku-replay/internal/domain"
	"svw.info/sudoku-replay/internal/telemetry"
)

// DefaultStepDelay paces production playback.
const DefaultStepDelay = 300 * time.Millisecond

// Direction labels a manual navigation step.
type Direction string

const (
	DirectionBack    Direction = "back"
	DirectionForward Direction = "forward"
)

// Fetcher obtains a complete ordered solution for a position.
type Fetcher interface {
	Fetch(ctx context.Context, board domain.Grid, cands domain.Candidates, givens domain.Grid) (*domain.MoveSequence, error)
}

// Config wires a Controller to its collaborators. The Get*/Apply* callbacks
// are required; every On* callback is optional and no-ops when absent.
type Config struct {
	// Puzzle state access. The caller owns the state; the controller reads
	// it to build solve requests and writes only through ApplyMove/ApplyState.
	GetBoard      func() domain.Grid
	GetCandidates func() domain.Candidates
	GetGivens     func() domain.Grid
	ApplyMove     func(board domain.Grid, cands domain.Candidates, move domain.Move, newIndex int)
	ApplyState    func(snap domain.Snapshot)
	ResetToGivens func()
	IsComplete    func() bool

	// Outcome callbacks.
	OnError               func(msg string)
	OnUnpinpointableError func(msg string, userEntryCount int)
	OnStatus              func(msg string)
	OnErrorFixed          func(msg string, resume func())
	OnStepNavigate        func(snap domain.Snapshot, dir Direction)

	Fetcher    Fetcher
	Background *background.Manager
	StepDelay  time.Duration
	Clock      clock.Clock
	Logger     *slog.Logger
	Metrics    *telemetry.Metrics
}

// Controller owns one move stream at a time. Safe for concurrent use; all
// callbacks run without the internal lock held.
type Controller struct {
	cfg   Config
	log   *slog.Logger
	clk   clock.Clock
	delay time.Duration

	mu                sync.Mutex
	closed            bool
	epoch             int // bumped on stop/restart/close; stale async work is dropped
	fetching          bool
	active            bool
	paused            bool
	awaitingResume    bool // fix-error acknowledgment pending
	waitingBackground bool // tick withheld until the host is visible again
	seq               *domain.MoveSequence
	hist              history
	cur               int // snapshot cursor; -1 when no sequence is loaded
	frontier          int // highest snapshot index reached by forward playback
	total             int
	lastCompleted     int
	timer             clock.Timer
	unsub             func()
}

// New validates cfg and returns a ready Controller.
func New(cfg Config) (*Controller, error) {
	if cfg.Fetcher == nil {
		return nil, errors.New("playback: Fetcher is required")
	}
	if cfg.GetBoard == nil || cfg.GetCandidates == nil || cfg.GetGivens == nil {
		return nil, errors.New("playback: board accessors are required")
	}
	if cfg.ApplyMove == nil || cfg.ApplyState == nil {
		return nil, errors.New("playback: ApplyMove and ApplyState are required")
	}
	if cfg.StepDelay <= 0 {
		cfg.StepDelay = DefaultStepDelay
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	pc := &Controller{
		cfg:   cfg,
		log:   cfg.Logger.With("component", "playback"),
		clk:   cfg.Clock,
		delay: cfg.StepDelay,
		cur:   -1,
	}
	if cfg.Background != nil {
		pc.unsub = cfg.Background.Subscribe(pc.onVisibility)
	}
	return pc, nil
}

// Start fetches a full solution for the current position and begins playback,
// applying the first move synchronously. It is a no-op when a fetch or a
// sequence is already in flight, or when the puzzle is already complete. The
// returned error is also reported through OnError.
func (pc *Controller) Start(ctx context.Context) error {
	pc.mu.Lock()
	if pc.closed || pc.fetching || pc.active {
		pc.mu.Unlock()
		return nil
	}
	pc.mu.Unlock()

	if pc.cfg.IsComplete != nil && pc.cfg.IsComplete() {
		return nil
	}

	// Pre-playback state, captured before the fetch so snapshot 0 matches
	// exactly what the solver saw.
	board := pc.cfg.GetBoard()
	cands := pc.cfg.GetCandidates()
	givens := pc.cfg.GetGivens()

	pc.mu.Lock()
	if pc.closed || pc.fetching || pc.active {
		pc.mu.Unlock()
		return nil
	}
	pc.fetching = true
	epoch := pc.epoch
	pc.mu.Unlock()

	started := pc.clk.Now()
	seq, err := pc.cfg.Fetcher.Fetch(ctx, board, cands, givens)
	if m := pc.cfg.Metrics; m != nil {
		m.FetchDuration.Observe(pc.clk.Now().Sub(started).Seconds())
	}

	pc.mu.Lock()
	if pc.closed || epoch != pc.epoch {
		// Stopped or torn down mid-fetch: the result is inert.
		pc.mu.Unlock()
		return nil
	}
	pc.fetching = false
	if err != nil {
		pc.resetLocked()
		pc.mu.Unlock()
		if m := pc.cfg.Metrics; m != nil {
			m.FetchFailures.Inc()
		}
		pc.log.Warn("solve fetch failed", "err", err)
		if pc.cfg.OnError != nil {
			pc.cfg.OnError(err.Error())
		}
		return err
	}
	if len(seq.Moves) == 0 {
		// Already solved: legitimate no-op.
		pc.mu.Unlock()
		return nil
	}

	pc.active = true
	pc.paused = false
	pc.seq = seq
	pc.total = len(seq.Moves)
	pc.cur = 0
	pc.frontier = 0
	pc.hist.Reset(domain.Snapshot{Board: board, Candidates: cands})
	if m := pc.cfg.Metrics; m != nil {
		m.SessionsActive.Inc()
	}
	pc.log.Info("playback started", "moves", pc.total, "solved", seq.Solved)

	// Move 0 is applied immediately, with no initial delay.
	cbs := pc.advanceLocked(epoch)
	pc.mu.Unlock()
	run(cbs)
	return nil
}

// Stop cancels playback from any state, preserving the cursor position in
// LastCompletedSteps for UI reporting.
func (pc *Controller) Stop() {
	pc.mu.Lock()
	pc.resetLocked()
	pc.mu.Unlock()
}

// Restart resets puzzle state to the givens and starts a fresh playback.
func (pc *Controller) Restart(ctx context.Context) error {
	pc.Stop()
	if pc.cfg.ResetToGivens != nil {
		pc.cfg.ResetToGivens()
	}
	return pc.Start(ctx)
}

// SolveFromGivens is Restart under the name the UI uses for "solve the
// original puzzle, ignoring my entries".
func (pc *Controller) SolveFromGivens(ctx context.Context) error {
	return pc.Restart(ctx)
}

// TogglePause flips between auto-advance and manual suspension. No-op while
// idle or fetching.
func (pc *Controller) TogglePause() {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if !pc.active {
		return
	}
	if pc.paused {
		pc.paused = false
		pc.awaitingResume = false
		if pc.cur < pc.total {
			pc.scheduleLocked(pc.epoch)
		}
		return
	}
	pc.paused = true
	pc.stopTimerLocked()
	pc.waitingBackground = false
}

// StepBack moves the cursor one snapshot back and replays it. Manual
// navigation always suspends auto-play.
func (pc *Controller) StepBack() {
	pc.mu.Lock()
	if !pc.active || pc.cur <= 0 {
		pc.mu.Unlock()
		return
	}
	pc.pauseForNavLocked()
	pc.cur--
	snap, _ := pc.hist.At(pc.cur)
	pc.mu.Unlock()

	pc.cfg.ApplyState(snap)
	if pc.cfg.OnStepNavigate != nil {
		pc.cfg.OnStepNavigate(snap, DirectionBack)
	}
}

// StepForward moves the cursor one position forward. Behind the applied
// frontier it replays the stored snapshot; at the frontier it executes the
// next move through the dispatcher, staying paused either way.
func (pc *Controller) StepForward() {
	pc.mu.Lock()
	if !pc.active || pc.cur >= pc.total {
		pc.mu.Unlock()
		return
	}
	pc.pauseForNavLocked()

	if pc.cur < pc.frontier {
		pc.cur++
		snap, _ := pc.hist.At(pc.cur)
		pc.mu.Unlock()
		pc.cfg.ApplyState(snap)
		if pc.cfg.OnStepNavigate != nil {
			pc.cfg.OnStepNavigate(snap, DirectionForward)
		}
		return
	}

	cbs := pc.advanceLocked(pc.epoch)
	snap, ok := pc.hist.At(pc.cur)
	pc.mu.Unlock()
	run(cbs)
	if ok && pc.cfg.OnStepNavigate != nil {
		pc.cfg.OnStepNavigate(snap, DirectionForward)
	}
}

// Close tears the controller down: pending timers are canceled, an in-flight
// fetch becomes inert, and no callback fires afterwards.
func (pc *Controller) Close() {
	pc.mu.Lock()
	pc.resetLocked()
	pc.closed = true
	unsub := pc.unsub
	pc.unsub = nil
	pc.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// --- observable state ---

func (pc *Controller) IsAutoSolving() bool { pc.mu.Lock(); defer pc.mu.Unlock(); return pc.active }
func (pc *Controller) IsPaused() bool      { pc.mu.Lock(); defer pc.mu.Unlock(); return pc.paused }
func (pc *Controller) IsFetching() bool    { pc.mu.Lock(); defer pc.mu.Unlock(); return pc.fetching }
func (pc *Controller) CurrentIndex() int   { pc.mu.Lock(); defer pc.mu.Unlock(); return pc.cur }
func (pc *Controller) TotalMoves() int     { pc.mu.Lock(); defer pc.mu.Unlock(); return pc.total }

// LastCompletedSteps reports how far the previous playback got before it was
// stopped or finished.
func (pc *Controller) LastCompletedSteps() int {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.lastCompleted
}

func (pc *Controller) CanStepBack() bool {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.active && pc.cur > 0
}

func (pc *Controller) CanStepForward() bool {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.active && pc.cur < pc.total
}

// --- internals (locked unless noted) ---

// advanceLocked consumes the move at the cursor, records its snapshot, and
// decides the continuation. Returned callbacks must run after unlocking.
func (pc *Controller) advanceLocked(epoch int) []func() {
	m := &pc.seq.Moves[pc.cur]
	isLast := pc.cur == pc.total-1
	d := dispatch(m, isLast)

	prev, _ := pc.hist.At(pc.cur)
	snap := domain.Snapshot{Move: m}
	if d.applyState {
		snap.Board = m.Board
		if d.clearCandidates {
			snap.Candidates = domain.Candidates{}
		} else {
			snap.Candidates = m.Candidates
		}
	} else {
		// Skip kinds carry the previous state forward so the store stays
		// index-aligned with the cursor.
		snap.Board = prev.Board
		snap.Candidates = prev.Candidates
	}
	pc.hist.Append(snap)
	pc.cur++
	if pc.cur > pc.frontier {
		pc.frontier = pc.cur
	}
	newIndex := pc.cur

	var cbs []func()
	if d.applyState {
		if mt := pc.cfg.Metrics; mt != nil {
			mt.MovesApplied.Inc()
		}
		board, cands, mv := snap.Board, snap.Candidates, *m
		cbs = append(cbs, func() { pc.cfg.ApplyMove(board, cands, mv, newIndex) })
	} else if mt := pc.cfg.Metrics; mt != nil {
		mt.MovesSkipped.Inc()
	}
	if d.status != "" && pc.cfg.OnStatus != nil {
		fn, msg := pc.cfg.OnStatus, d.status
		cbs = append(cbs, func() { fn(msg) })
	}

	switch {
	case d.cont == contStop:
		if d.errMsg != "" {
			if d.unpinpointable && pc.cfg.OnUnpinpointableError != nil {
				fn, msg, n := pc.cfg.OnUnpinpointableError, d.errMsg, m.UserEntryCount
				cbs = append(cbs, func() { fn(msg, n) })
			} else if !d.unpinpointable && pc.cfg.OnError != nil {
				fn, msg := pc.cfg.OnError, d.errMsg
				cbs = append(cbs, func() { fn(msg) })
			}
		}
		pc.resetLocked()

	case d.cont == contPause && pc.cfg.OnErrorFixed != nil:
		pc.paused = true
		pc.awaitingResume = true
		pc.stopTimerLocked()
		fn, msg := pc.cfg.OnErrorFixed, m.Explanation
		resume := pc.resumeFunc(epoch)
		cbs = append(cbs, func() { fn(msg, resume) })

	default:
		// contAdvance, or a fix-error with nobody listening: keep going.
		if pc.cur < pc.total {
			if !pc.paused {
				pc.scheduleLocked(epoch)
			}
		} else if !pc.paused {
			pc.log.Info("playback finished", "steps", pc.cur)
			pc.resetLocked()
		}
	}
	return cbs
}

// scheduleLocked arms the delay timer for the next move, unless the host is
// hidden, in which case the tick is withheld until visibility returns.
func (pc *Controller) scheduleLocked(epoch int) {
	if bg := pc.cfg.Background; bg != nil && bg.ShouldPauseOperations() {
		pc.waitingBackground = true
		return
	}
	pc.timer = pc.clk.AfterFunc(pc.delay, func() { pc.tick(epoch) })
}

// tick runs on timer expiry. Every guard is re-checked: the controller may
// have been stopped, paused, or backgrounded since the timer was armed.
func (pc *Controller) tick(epoch int) {
	pc.mu.Lock()
	if pc.closed || epoch != pc.epoch || !pc.active || pc.paused || pc.cur >= pc.total {
		pc.mu.Unlock()
		return
	}
	if bg := pc.cfg.Background; bg != nil && bg.ShouldPauseOperations() {
		pc.waitingBackground = true
		pc.mu.Unlock()
		return
	}
	cbs := pc.advanceLocked(epoch)
	pc.mu.Unlock()
	run(cbs)
}

// onVisibility re-arms the scheduler when a withheld tick becomes runnable.
func (pc *Controller) onVisibility(ev background.Event) {
	if ev.ShouldPause {
		return
	}
	pc.mu.Lock()
	if !pc.closed && pc.active && !pc.paused && pc.waitingBackground {
		pc.waitingBackground = false
		pc.scheduleLocked(pc.epoch)
	}
	pc.mu.Unlock()
}

// resumeFunc builds the acknowledgment gate handed to OnErrorFixed. Invoking
// it after a stop or restart is harmless.
func (pc *Controller) resumeFunc(epoch int) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			pc.mu.Lock()
			if pc.closed || epoch != pc.epoch || !pc.active || !pc.awaitingResume {
				pc.mu.Unlock()
				return
			}
			pc.awaitingResume = false
			pc.paused = false
			if pc.cur < pc.total {
				pc.scheduleLocked(epoch)
			} else {
				pc.log.Info("playback finished", "steps", pc.cur)
				pc.resetLocked()
			}
			pc.mu.Unlock()
		})
	}
}

func (pc *Controller) pauseForNavLocked() {
	pc.paused = true
	pc.awaitingResume = false
	pc.waitingBackground = false
	pc.stopTimerLocked()
}

func (pc *Controller) stopTimerLocked() {
	if pc.timer != nil {
		pc.timer.Stop()
		pc.timer = nil
	}
}

// resetLocked returns the controller to Idle: timer canceled, sequence and
// history discarded, epoch bumped so stale fetches and ticks are dropped.
func (pc *Controller) resetLocked() {
	pc.stopTimerLocked()
	if pc.cur >= 0 {
		pc.lastCompleted = pc.cur
	}
	if pc.active {
		if m := pc.cfg.Metrics; m != nil {
			m.SessionsActive.Dec()
		}
	}
	pc.active = false
	pc.paused = false
	pc.fetching = false
	pc.awaitingResume = false
	pc.waitingBackground = false
	pc.seq = nil
	pc.hist.Clear()
	pc.cur = -1
	pc.frontier = -1
	pc.total = 0
	pc.epoch++
}

func run(cbs []func()) {
	for _, f := range cbs {
		f()
	}
}
