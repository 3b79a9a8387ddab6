package httpadapter

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"svw.info/sudoku-replay/internal/background"
	"svw.info/sudoku-replay/internal/domain"
	"svw.info/sudoku-replay/internal/fetch"
	"svw.info/sudoku-replay/internal/playback"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// clientMsg is one command from the connected client.
type clientMsg struct {
	Type       string      `json:"type"`
	Board      domain.Grid `json:"board,omitempty"`
	Candidates [][]int     `json:"candidates,omitempty"`
	Givens     domain.Grid `json:"givens,omitempty"`
	Hidden     bool        `json:"hidden,omitempty"`
}

// serverMsg is one event pushed to the client.
type serverMsg struct {
	Type           string       `json:"type"`
	SessionID      string       `json:"sessionId,omitempty"`
	Index          int          `json:"index,omitempty"`
	Total          int          `json:"total,omitempty"`
	Move           *domain.Move `json:"move,omitempty"`
	Board          *domain.Grid `json:"board,omitempty"`
	Candidates     [][]int      `json:"candidates,omitempty"`
	Direction      string       `json:"direction,omitempty"`
	Message        string       `json:"message,omitempty"`
	UserEntryCount int          `json:"userEntryCount,omitempty"`
}

// session is one live playback connection: puzzle state, a controller, and a
// single writer goroutine that owns the websocket write side.
type session struct {
	id   string
	conn *websocket.Conn
	log  *slog.Logger

	mu     sync.Mutex
	board  domain.Grid
	cands  domain.Candidates
	givens domain.Grid
	resume func() // pending fix-error acknowledgment, nil when none

	ctrl *playback.Controller
	bg   *background.Manager
	out  chan serverMsg
	done chan struct{}
}

// handlePlayback upgrades the connection and runs one playback session until
// the client goes away.
func (h *Handler) handlePlayback(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "err", err)
		return
	}

	s := &session{
		id:   uuid.NewString(),
		conn: conn,
		out:  make(chan serverMsg, 64),
		done: make(chan struct{}),
	}
	s.log = h.log.With("component", "ws", "session", s.id)

	bgOpts := []background.Option{background.WithLogger(s.log)}
	if h.grace > 0 {
		bgOpts = append(bgOpts, background.WithGracePeriod(h.grace))
	}
	s.bg = background.NewManager(bgOpts...)

	ctrl, err := playback.New(playback.Config{
		GetBoard:      s.getBoard,
		GetCandidates: s.getCandidates,
		GetGivens:     s.getGivens,
		ApplyMove:     s.applyMove,
		ApplyState:    s.applyState,
		ResetToGivens: s.resetToGivens,
		IsComplete:    s.isComplete,

		OnError:               s.onError,
		OnUnpinpointableError: s.onUnpinpointableError,
		OnStatus:              s.onStatus,
		OnErrorFixed:          s.onErrorFixed,
		OnStepNavigate:        s.onStepNavigate,

		Fetcher:    fetch.New(h.UC.StepSolver, s.log),
		Background: s.bg,
		StepDelay:  h.stepDelay,
		Logger:     s.log,
		Metrics:    h.metrics,
	})
	if err != nil {
		s.log.Error("playback setup failed", "err", err)
		conn.Close()
		return
	}
	s.ctrl = ctrl

	s.log.Info("session opened", "remote", conn.RemoteAddr())
	go s.writeLoop()
	s.send(serverMsg{Type: "hello", SessionID: s.id})
	s.readLoop()

	ctrl.Close()
	close(s.done)
	conn.Close()
	s.log.Info("session closed")
}

// writeLoop is the only goroutine that writes to the connection.
func (s *session) writeLoop() {
	for {
		select {
		case msg := <-s.out:
			s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := s.conn.WriteJSON(msg); err != nil {
				s.log.Debug("write failed", "err", err)
				return
			}
		case <-s.done:
			return
		}
	}
}

// send enqueues without blocking playback; a slow client loses events rather
// than stalling the controller.
func (s *session) send(msg serverMsg) {
	select {
	case s.out <- msg:
	default:
		s.log.Warn("outbound queue full, dropping event", "type", msg.Type)
	}
}

func (s *session) readLoop() {
	for {
		var msg clientMsg
		if err := s.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("read failed", "err", err)
			}
			return
		}
		s.handle(msg)
	}
}

func (s *session) handle(msg clientMsg) {
	switch msg.Type {
	case "init":
		s.mu.Lock()
		s.board = msg.Board
		s.cands = domain.CandidatesFromLists(msg.Candidates)
		s.givens = msg.Givens
		s.mu.Unlock()

	case "start":
		// Start blocks through the solve fetch; keep the read loop live.
		go func() { _ = s.ctrl.Start(context.Background()) }()

	case "solve_from_givens":
		go func() { _ = s.ctrl.SolveFromGivens(context.Background()) }()

	case "restart":
		go func() { _ = s.ctrl.Restart(context.Background()) }()

	case "stop":
		s.ctrl.Stop()
		s.send(serverMsg{Type: "stopped", Index: s.ctrl.LastCompletedSteps()})

	case "pause":
		s.ctrl.TogglePause()

	case "step_back":
		s.ctrl.StepBack()

	case "step_forward":
		s.ctrl.StepForward()

	case "visibility":
		s.bg.SetHidden(msg.Hidden)

	case "ack_fix":
		s.mu.Lock()
		resume := s.resume
		s.resume = nil
		s.mu.Unlock()
		if resume != nil {
			resume()
		}

	default:
		s.log.Debug("unknown message type", "type", msg.Type)
	}
}

// --- playback.Config wiring ---

func (s *session) getBoard() domain.Grid {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.board
}

func (s *session) getCandidates() domain.Candidates {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cands
}

func (s *session) getGivens() domain.Grid {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.givens
}

func (s *session) applyMove(board domain.Grid, cands domain.Candidates, move domain.Move, newIndex int) {
	s.mu.Lock()
	s.board = board
	s.cands = cands
	s.mu.Unlock()

	m := move
	s.send(serverMsg{
		Type:       "move",
		Index:      newIndex,
		Total:      s.ctrl.TotalMoves(),
		Move:       &m,
		Board:      &board,
		Candidates: cands.Lists(),
	})
	if !s.ctrl.IsAutoSolving() && !s.ctrl.IsPaused() {
		// The controller went idle during this advance: the sequence ended.
		s.send(serverMsg{Type: "done", Index: s.ctrl.LastCompletedSteps()})
	}
}

func (s *session) applyState(snap domain.Snapshot) {
	s.mu.Lock()
	s.board = snap.Board
	s.cands = snap.Candidates
	s.mu.Unlock()
}

func (s *session) resetToGivens() {
	s.mu.Lock()
	s.board = s.givens
	s.cands = domain.Candidates{}
	s.mu.Unlock()
}

func (s *session) isComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.board.IsComplete()
}

func (s *session) onError(msg string) {
	s.send(serverMsg{Type: "error", Message: msg})
}

func (s *session) onUnpinpointableError(msg string, userEntryCount int) {
	s.send(serverMsg{Type: "error", Message: msg, UserEntryCount: userEntryCount})
}

func (s *session) onStatus(msg string) {
	s.send(serverMsg{Type: "status", Message: msg})
}

func (s *session) onErrorFixed(msg string, resume func()) {
	s.mu.Lock()
	s.resume = resume
	s.mu.Unlock()
	s.send(serverMsg{Type: "error_fixed", Message: msg})
}

func (s *session) onStepNavigate(snap domain.Snapshot, dir playback.Direction) {
	board := snap.Board
	cands := snap.Candidates
	var mv *domain.Move
	var idx int
	if snap.Move != nil {
		m := *snap.Move
		mv = &m
		idx = m.Step + 1
	}
	s.send(serverMsg{
		Type:       "state",
		Index:      idx,
		Total:      s.ctrl.TotalMoves(),
		Move:       mv,
		Board:      &board,
		Candidates: cands.Lists(),
		Direction:  string(dir),
	})
}
