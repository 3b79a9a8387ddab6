package playback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"svw.info/sudoku-replay/internal/background"
	"svw.info/sudoku-replay/internal/clock"
	"svw.info/sudoku-replay/internal/domain"
)

// stubFetcher returns a canned sequence or error, optionally blocking until
// released so tests can observe in-flight fetch states.
type stubFetcher struct {
	mu      sync.Mutex
	seq     *domain.MoveSequence
	err     error
	calls   int
	entered chan struct{} // closed-ish: one token per Fetch entry, if non-nil
	release chan struct{} // Fetch waits on this, if non-nil
}

func (f *stubFetcher) Fetch(ctx context.Context, board domain.Grid, cands domain.Candidates, givens domain.Grid) (*domain.MoveSequence, error) {
	f.mu.Lock()
	f.calls++
	entered, release := f.entered, f.release
	seq, err := f.seq, f.err
	f.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if release != nil {
		<-release
	}
	if seq == nil {
		return nil, err
	}
	// Fresh copy per call; the controller owns what it receives.
	cp := *seq
	cp.Moves = append([]domain.Move(nil), seq.Moves...)
	return &cp, err
}

func (f *stubFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// harness owns the puzzle state and records every callback.
type harness struct {
	mu     sync.Mutex
	board  domain.Grid
	cands  domain.Candidates
	givens domain.Grid
	resets int

	applied  []domain.Move
	indices  []int
	errs     []string
	unpin    []string
	unpinCnt []int
	statuses []string
	fixMsgs  []string
	resume   func()
	navs     []Direction
	navSnaps []domain.Snapshot
}

func (h *harness) config(f Fetcher) Config {
	return Config{
		GetBoard:      func() domain.Grid { h.mu.Lock(); defer h.mu.Unlock(); return h.board },
		GetCandidates: func() domain.Candidates { h.mu.Lock(); defer h.mu.Unlock(); return h.cands },
		GetGivens:     func() domain.Grid { h.mu.Lock(); defer h.mu.Unlock(); return h.givens },
		ApplyMove: func(board domain.Grid, cands domain.Candidates, move domain.Move, newIndex int) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.board = board
			h.cands = cands
			h.applied = append(h.applied, move)
			h.indices = append(h.indices, newIndex)
		},
		ApplyState: func(snap domain.Snapshot) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.board = snap.Board
			h.cands = snap.Candidates
		},
		ResetToGivens: func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.board = h.givens
			h.cands = domain.Candidates{}
			h.resets++
		},
		OnError: func(msg string) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.errs = append(h.errs, msg)
		},
		OnUnpinpointableError: func(msg string, n int) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.unpin = append(h.unpin, msg)
			h.unpinCnt = append(h.unpinCnt, n)
		},
		OnStatus: func(msg string) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.statuses = append(h.statuses, msg)
		},
		OnErrorFixed: func(msg string, resume func()) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.fixMsgs = append(h.fixMsgs, msg)
			h.resume = resume
		},
		OnStepNavigate: func(snap domain.Snapshot, dir Direction) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.navs = append(h.navs, dir)
			h.navSnaps = append(h.navSnaps, snap)
		},
		Fetcher: f,
	}
}

func (h *harness) appliedCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.applied)
}

// placeSeq builds n placement moves on top of start: move i sets cell i to
// digit (i%9)+1, each carrying the cumulative board.
func placeSeq(start domain.Grid, n int) *domain.MoveSequence {
	g := start
	moves := make([]domain.Move, 0, n)
	for i := 0; i < n; i++ {
		d := uint8(i%9 + 1)
		g[i] = d
		moves = append(moves, domain.Move{
			Step:      i,
			Technique: "Naked Single",
			Action:    domain.ActionPlace,
			Digit:     d,
			Cells:     []domain.CellCoord{domain.CoordOf(i)},
			Board:     g,
		})
	}
	return &domain.MoveSequence{Solved: true, Moves: moves}
}

func newTestController(t *testing.T, h *harness, f Fetcher, mod func(*Config)) (*Controller, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake()
	cfg := h.config(f)
	cfg.Clock = clk
	cfg.StepDelay = 100 * time.Millisecond
	if mod != nil {
		mod(&cfg)
	}
	pc, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(pc.Close)
	return pc, clk
}

func TestNewRequiresFetcher(t *testing.T) {
	h := &harness{}
	cfg := h.config(nil)
	_, err := New(cfg)
	require.Error(t, err)
}

func TestStartAppliesFirstMoveImmediately(t *testing.T) {
	h := &harness{}
	f := &stubFetcher{seq: placeSeq(h.board, 3)}
	pc, clk := newTestController(t, h, f, nil)

	require.NoError(t, pc.Start(context.Background()))

	require.Equal(t, 1, h.appliedCount())
	require.Equal(t, 1, pc.CurrentIndex())
	require.Equal(t, 3, pc.TotalMoves())
	require.True(t, pc.IsAutoSolving())
	require.False(t, pc.IsPaused())
	require.Equal(t, 1, clk.Pending())
	require.Equal(t, uint8(1), h.board[0])
}

func TestTimedAdvanceToCompletion(t *testing.T) {
	h := &harness{}
	f := &stubFetcher{seq: placeSeq(h.board, 3)}
	pc, clk := newTestController(t, h, f, nil)

	require.NoError(t, pc.Start(context.Background()))

	clk.Advance(100 * time.Millisecond)
	require.Equal(t, 2, h.appliedCount())
	require.Equal(t, 2, pc.CurrentIndex())

	clk.Advance(100 * time.Millisecond)
	require.Equal(t, 3, h.appliedCount())

	// Natural exhaustion returns the controller to idle.
	require.False(t, pc.IsAutoSolving())
	require.Equal(t, -1, pc.CurrentIndex())
	require.Equal(t, 3, pc.LastCompletedSteps())
	require.Equal(t, 0, clk.Pending())
	require.Equal(t, []int{1, 2, 3}, h.indices)
	require.Equal(t, uint8(3), h.board[2])
}

func TestStartIsNoOpWhileActive(t *testing.T) {
	h := &harness{}
	f := &stubFetcher{seq: placeSeq(h.board, 3)}
	pc, _ := newTestController(t, h, f, nil)

	require.NoError(t, pc.Start(context.Background()))
	require.NoError(t, pc.Start(context.Background()))
	require.Equal(t, 1, f.callCount())
	require.Equal(t, 1, h.appliedCount())
}

func TestStartIsNoOpWhileFetching(t *testing.T) {
	h := &harness{}
	f := &stubFetcher{
		seq:     placeSeq(h.board, 2),
		entered: make(chan struct{}, 2),
		release: make(chan struct{}),
	}
	pc, _ := newTestController(t, h, f, nil)

	done := make(chan error, 1)
	go func() { done <- pc.Start(context.Background()) }()
	<-f.entered
	require.True(t, pc.IsFetching())

	// A second start while the fetch is in flight must not refetch.
	require.NoError(t, pc.Start(context.Background()))

	close(f.release)
	require.NoError(t, <-done)
	require.Equal(t, 1, f.callCount())
	require.Equal(t, 1, h.appliedCount())
}

func TestStartWhenCompleteIsNoOp(t *testing.T) {
	h := &harness{}
	f := &stubFetcher{seq: placeSeq(h.board, 1)}
	pc, _ := newTestController(t, h, f, func(cfg *Config) {
		cfg.IsComplete = func() bool { return true }
	})

	require.NoError(t, pc.Start(context.Background()))
	require.Equal(t, 0, f.callCount())
	require.False(t, pc.IsAutoSolving())
}

func TestFetchErrorIsReportedVerbatim(t *testing.T) {
	h := &harness{}
	f := &stubFetcher{err: errors.New("Network error")}
	pc, _ := newTestController(t, h, f, nil)

	err := pc.Start(context.Background())
	require.EqualError(t, err, "Network error")

	h.mu.Lock()
	defer h.mu.Unlock()
	require.Equal(t, []string{"Network error"}, h.errs)
	require.False(t, pc.IsAutoSolving())
	require.Equal(t, 0, len(h.applied))
}

func TestStopMidFetchLeavesResultInert(t *testing.T) {
	h := &harness{}
	f := &stubFetcher{
		seq:     placeSeq(h.board, 3),
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	pc, clk := newTestController(t, h, f, nil)

	done := make(chan error, 1)
	go func() { done <- pc.Start(context.Background()) }()
	<-f.entered
	pc.Stop()
	close(f.release)

	require.NoError(t, <-done)
	require.Equal(t, 0, h.appliedCount())
	require.False(t, pc.IsAutoSolving())
	require.Equal(t, 0, clk.Pending())
}

func TestCloseMidFetchLeavesResultInert(t *testing.T) {
	h := &harness{}
	f := &stubFetcher{
		seq:     placeSeq(h.board, 3),
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	pc, _ := newTestController(t, h, f, nil)

	done := make(chan error, 1)
	go func() { done <- pc.Start(context.Background()) }()
	<-f.entered
	pc.Close()
	close(f.release)

	require.NoError(t, <-done)
	require.Equal(t, 0, h.appliedCount())
}

func TestStopPreservesLastCompletedSteps(t *testing.T) {
	h := &harness{}
	f := &stubFetcher{seq: placeSeq(h.board, 5)}
	pc, clk := newTestController(t, h, f, nil)

	require.NoError(t, pc.Start(context.Background()))
	clk.Advance(100 * time.Millisecond)
	require.Equal(t, 2, pc.CurrentIndex())

	pc.Stop()
	require.False(t, pc.IsAutoSolving())
	require.Equal(t, -1, pc.CurrentIndex())
	require.Equal(t, 2, pc.LastCompletedSteps())
	require.Equal(t, 0, clk.Pending())
}

func TestTogglePause(t *testing.T) {
	h := &harness{}
	f := &stubFetcher{seq: placeSeq(h.board, 3)}
	pc, clk := newTestController(t, h, f, nil)

	require.NoError(t, pc.Start(context.Background()))
	pc.TogglePause()
	require.True(t, pc.IsPaused())
	require.Equal(t, 0, clk.Pending())

	clk.Advance(time.Second)
	require.Equal(t, 1, h.appliedCount())

	pc.TogglePause()
	require.False(t, pc.IsPaused())
	clk.Advance(100 * time.Millisecond)
	require.Equal(t, 2, h.appliedCount())
}

func TestStepBackThenForwardReplaysSnapshots(t *testing.T) {
	h := &harness{}
	f := &stubFetcher{seq: placeSeq(h.board, 3)}
	pc, clk := newTestController(t, h, f, nil)

	require.NoError(t, pc.Start(context.Background()))
	clk.Advance(100 * time.Millisecond) // index 2
	boardAfter2 := h.board

	pc.StepBack()
	require.True(t, pc.IsPaused())
	require.Equal(t, 1, pc.CurrentIndex())
	require.Equal(t, uint8(1), h.board[0])
	require.Equal(t, uint8(0), h.board[1], "second move must be rolled back")
	require.Equal(t, 0, clk.Pending(), "manual navigation cancels the timer")

	pc.StepForward()
	require.Equal(t, 2, pc.CurrentIndex())
	require.Equal(t, boardAfter2, h.board)
	require.True(t, pc.IsPaused(), "stepping forward does not resume auto-play")

	h.mu.Lock()
	defer h.mu.Unlock()
	require.Equal(t, []Direction{DirectionBack, DirectionForward}, h.navs)
	// Replaying a stored snapshot is not a fresh move application.
	require.Equal(t, 2, len(h.applied))
}

func TestStepBackAtStartIsNoOp(t *testing.T) {
	h := &harness{}
	f := &stubFetcher{seq: placeSeq(h.board, 3)}
	pc, _ := newTestController(t, h, f, nil)

	require.NoError(t, pc.Start(context.Background()))
	// Index 1 can go back to the pre-playback snapshot, index 0 cannot.
	require.True(t, pc.CanStepBack())
	pc.StepBack()
	require.Equal(t, 0, pc.CurrentIndex())
	require.False(t, pc.CanStepBack())
	pc.StepBack()
	require.Equal(t, 0, pc.CurrentIndex())
	require.Equal(t, uint8(0), h.board[0], "back at index 0 shows the pre-playback board")
}

func TestStepForwardAtFrontierExecutesNextMove(t *testing.T) {
	h := &harness{}
	f := &stubFetcher{seq: placeSeq(h.board, 3)}
	pc, clk := newTestController(t, h, f, nil)

	require.NoError(t, pc.Start(context.Background()))

	pc.StepForward()
	require.Equal(t, 2, pc.CurrentIndex())
	require.Equal(t, 2, h.appliedCount(), "frontier step applies a fresh move")
	require.True(t, pc.IsPaused())
	require.Equal(t, 0, clk.Pending())

	pc.StepForward()
	require.Equal(t, 3, pc.CurrentIndex())
	require.Equal(t, 3, h.appliedCount())
	require.True(t, pc.IsAutoSolving(), "exhausting moves while paused keeps the session open")
	require.False(t, pc.CanStepForward())
	pc.StepForward()
	require.Equal(t, 3, h.appliedCount())
}

func TestContradictionMidSequenceIsSkipped(t *testing.T) {
	h := &harness{}
	seq := placeSeq(h.board, 2)
	skip := domain.Move{Action: domain.ActionContradiction, Explanation: "transient"}
	seq.Moves = []domain.Move{skip, seq.Moves[0], seq.Moves[1]}
	f := &stubFetcher{seq: seq}
	pc, clk := newTestController(t, h, f, nil)

	require.NoError(t, pc.Start(context.Background()))
	// The skip consumed a slot without touching state.
	require.Equal(t, 1, pc.CurrentIndex())
	require.Equal(t, 0, h.appliedCount())
	require.Equal(t, 1, clk.Pending())

	clk.Advance(200 * time.Millisecond)
	require.Equal(t, 2, h.appliedCount())
	h.mu.Lock()
	defer h.mu.Unlock()
	require.Empty(t, h.errs)
}

func TestContradictionAsLastMoveStopsWithError(t *testing.T) {
	h := &harness{}
	seq := placeSeq(h.board, 1)
	seq.Moves = append(seq.Moves, domain.Move{Action: domain.ActionContradiction})
	seq.Solved = false
	f := &stubFetcher{seq: seq}
	pc, clk := newTestController(t, h, f, nil)

	require.NoError(t, pc.Start(context.Background()))
	clk.Advance(100 * time.Millisecond)

	require.False(t, pc.IsAutoSolving())
	h.mu.Lock()
	defer h.mu.Unlock()
	require.Equal(t, []string{msgContradiction}, h.errs)
}

func TestUnpinpointableErrorMove(t *testing.T) {
	h := &harness{}
	seq := &domain.MoveSequence{Moves: []domain.Move{{
		Action:         domain.ActionError,
		UserEntryCount: 5,
	}}}
	f := &stubFetcher{seq: seq}
	pc, _ := newTestController(t, h, f, nil)

	require.NoError(t, pc.Start(context.Background()))
	require.False(t, pc.IsAutoSolving())

	h.mu.Lock()
	defer h.mu.Unlock()
	require.Equal(t, []string{msgUnpinpointable}, h.unpin)
	require.Equal(t, []int{5}, h.unpinCnt)
	require.Empty(t, h.errs)
}

func TestDiagnosticMoveReportsStatusAndContinues(t *testing.T) {
	h := &harness{}
	seq := placeSeq(h.board, 1)
	diag := domain.Move{Action: domain.ActionDiagnostic, Explanation: "corrected 1 entry"}
	seq.Moves = append([]domain.Move{diag}, seq.Moves...)
	f := &stubFetcher{seq: seq}
	pc, clk := newTestController(t, h, f, nil)

	require.NoError(t, pc.Start(context.Background()))
	clk.Advance(100 * time.Millisecond)

	h.mu.Lock()
	defer h.mu.Unlock()
	require.Equal(t, []string{"corrected 1 entry"}, h.statuses)
	require.Equal(t, 1, len(h.applied))
}

func TestClearCandidatesMoveEmptiesPencilMarks(t *testing.T) {
	h := &harness{}
	h.cands[0] = domain.NewCandidateSet(1, 2, 3)
	seq := &domain.MoveSequence{Solved: true, Moves: []domain.Move{{
		Action:     domain.ActionClearCandidates,
		Candidates: h.cands, // stale marks on the move; the dispatcher discards them
	}}}
	f := &stubFetcher{seq: seq}
	pc, _ := newTestController(t, h, f, nil)

	require.NoError(t, pc.Start(context.Background()))
	require.Equal(t, domain.Candidates{}, h.cands)
	require.Equal(t, 1, h.appliedCount())
}

func TestFixErrorPausesUntilAcknowledged(t *testing.T) {
	h := &harness{}
	rest := placeSeq(h.board, 1)
	fix := domain.Move{
		Action:      domain.ActionFixError,
		Explanation: "R1C2 corrected to 4",
		Board:       h.board,
	}
	seq := &domain.MoveSequence{Solved: true, Moves: append([]domain.Move{fix}, rest.Moves...)}
	f := &stubFetcher{seq: seq}
	pc, clk := newTestController(t, h, f, nil)

	require.NoError(t, pc.Start(context.Background()))
	require.True(t, pc.IsPaused())
	require.Equal(t, 1, h.appliedCount(), "the correction itself is applied")
	require.Equal(t, 0, clk.Pending())

	h.mu.Lock()
	require.Equal(t, []string{"R1C2 corrected to 4"}, h.fixMsgs)
	resume := h.resume
	h.mu.Unlock()
	require.NotNil(t, resume)

	clk.Advance(time.Second)
	require.Equal(t, 1, h.appliedCount(), "nothing advances before the acknowledgment")

	resume()
	require.False(t, pc.IsPaused())
	clk.Advance(100 * time.Millisecond)
	require.Equal(t, 2, h.appliedCount())

	resume() // second acknowledgment is harmless
	require.Equal(t, 2, h.appliedCount())
}

func TestBackgroundHiddenWithholdsTicks(t *testing.T) {
	h := &harness{}
	f := &stubFetcher{seq: placeSeq(h.board, 3)}
	clk := clock.NewFake()
	bg := background.NewManager(background.WithClock(clk))
	pc, _ := newTestController(t, h, f, func(cfg *Config) {
		cfg.Clock = clk
		cfg.Background = bg
	})

	require.NoError(t, pc.Start(context.Background()))
	bg.SetHidden(true)

	// The armed timer fires but the tick is withheld.
	clk.Advance(100 * time.Millisecond)
	require.Equal(t, 1, h.appliedCount())
	require.True(t, pc.IsAutoSolving())
	require.False(t, pc.IsPaused(), "hidden is not a user pause")

	// Visibility returns: the schedule re-arms and playback proceeds.
	bg.SetHidden(false)
	clk.Advance(100 * time.Millisecond)
	require.Equal(t, 2, h.appliedCount())
}

func TestRestartResetsToGivensAndRefetches(t *testing.T) {
	h := &harness{}
	h.givens[0] = 9
	h.board = h.givens
	h.board[1] = 5 // user entry
	f := &stubFetcher{seq: placeSeq(h.givens, 2)}
	pc, _ := newTestController(t, h, f, nil)

	require.NoError(t, pc.Start(context.Background()))
	pc.Stop()
	require.NoError(t, pc.Restart(context.Background()))

	require.Equal(t, 2, f.callCount(), "restart performs its own fetch")
	h.mu.Lock()
	defer h.mu.Unlock()
	require.Equal(t, 1, h.resets)
}

func TestHistoryMatchesCursor(t *testing.T) {
	h := &harness{}
	seq := placeSeq(h.board, 2)
	skip := domain.Move{Action: domain.ActionDiagnostic, Explanation: "note"}
	seq.Moves = []domain.Move{seq.Moves[0], skip, seq.Moves[1]}
	f := &stubFetcher{seq: seq}
	pc, clk := newTestController(t, h, f, nil)

	require.NoError(t, pc.Start(context.Background()))
	clk.Advance(100 * time.Millisecond) // consume the diagnostic

	// Step back over the skip: the carried-forward snapshot keeps the board
	// identical to the state after move 0.
	boardAfterSkip := h.board
	pc.StepBack()
	require.Equal(t, 1, pc.CurrentIndex())
	require.Equal(t, boardAfterSkip, h.board)
}
