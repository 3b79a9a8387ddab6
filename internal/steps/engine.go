// Package steps is the in-process solve collaborator: it produces the full
// ordered move path the playback engine replays, using human solving
// techniques backed by an exact solver for ground truth on user entries.
package steps

import (
	"context"
	"fmt"
	"log/slog"

	"svw.info/sudoku-replay/internal/domain"
	"svw.info/sudoku-replay/internal/ports"
)

// DefaultMaxFixable is how many wrong user entries get auto-corrected before
// the engine gives up with an error move instead.
const DefaultMaxFixable = 3

// maxPathLen bounds the technique loop; a 9x9 path never needs more.
const maxPathLen = 200

// Engine derives step-by-step solutions. It needs a full-grid solver to
// establish the intended solution before walking techniques.
type Engine struct {
	full       ports.Solver
	log        *slog.Logger
	maxFixable int
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxFixable overrides the auto-correction budget.
func WithMaxFixable(n int) Option { return func(e *Engine) { e.maxFixable = n } }

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.log = l } }

// NewEngine builds a step solver on top of the given exact solver.
func NewEngine(full ports.Solver, opts ...Option) *Engine {
	e := &Engine{full: full, log: slog.Default(), maxFixable: DefaultMaxFixable}
	for _, o := range opts {
		o(e)
	}
	return e
}

// SolvePath returns the ordered move list for the position. A complete valid
// board yields zero moves with Solved=true; a position the techniques cannot
// finish yields Solved=false.
func (e *Engine) SolvePath(ctx context.Context, req domain.SolveRequest) (*domain.MoveSequence, error) {
	if req.Board.IsComplete() {
		return &domain.MoveSequence{Solved: true}, nil
	}

	// Ground truth from the givens alone; correct user entries match it.
	solution, _, err := e.full.Solve(ctx, &domain.Board{Values: req.Givens})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// The givens admit no solution: one contradiction move, nothing else
		// playback can do with it.
		m := domain.Move{
			Action:      domain.ActionContradiction,
			Explanation: "The puzzle's given clues have no valid solution.",
			Board:       req.Board,
			Candidates:  req.Candidates,
		}
		return &domain.MoveSequence{Solved: false, Moves: []domain.Move{m}}, nil
	}

	var moves []domain.Move
	grid := req.Board

	// Reconcile user entries against the solution before running techniques.
	wrong, entered := wrongEntries(&grid, &req.Givens, &solution.Values)
	if len(wrong) > e.maxFixable {
		m := domain.Move{
			Action:         domain.ActionError,
			Explanation:    fmt.Sprintf("Too many incorrect entries (%d) to continue solving.", len(wrong)),
			UserEntryCount: entered,
			Board:          grid,
			Candidates:     req.Candidates,
		}
		return &domain.MoveSequence{Solved: false, Moves: []domain.Move{m}}, nil
	}
	for _, idx := range wrong {
		coord := domain.CoordOf(idx)
		old := grid[idx]
		grid[idx] = solution.Values[idx]
		moves = append(moves, domain.Move{
			Technique:   "Error Correction",
			Action:      domain.ActionFixError,
			Digit:       solution.Values[idx],
			Cells:       []domain.CellCoord{coord},
			Explanation: fmt.Sprintf("R%dC%d cannot be %d; corrected to %d.", coord.Row+1, coord.Col+1, old, solution.Values[idx]),
			Highlight:   domain.Highlight{Primary: []domain.CellCoord{coord}},
			Board:       grid,
			Candidates:  computeCandidates(&grid),
		})
	}
	if len(wrong) > 0 {
		moves = append(moves, domain.Move{
			Action:      domain.ActionDiagnostic,
			Explanation: fmt.Sprintf("Corrected %d incorrect entries; continuing with logic techniques.", len(wrong)),
			Board:       grid,
			Candidates:  computeCandidates(&grid),
		})
	}

	// Baseline pencil marks. If the caller's marks disagree with what the
	// position allows, clear them before the technique walk.
	cands := computeCandidates(&grid)
	if staleCandidates(&req.Candidates, &cands) {
		moves = append(moves, domain.Move{
			Technique:   "Pencil Mark Reset",
			Action:      domain.ActionClearCandidates,
			Explanation: "Pencil marks were out of date and have been cleared.",
			Board:       grid,
			Candidates:  domain.Candidates{},
		})
	}

	// Technique walk.
	progressed := false
	for !grid.IsComplete() && len(moves) < maxPathLen {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		m, ok := e.nextTechnique(&grid, &cands)
		if !ok {
			if !progressed && len(moves) == 0 {
				// Nothing applicable at all; the fetcher reports this as
				// beyond the solver.
				return &domain.MoveSequence{Solved: false}, nil
			}
			moves = append(moves, domain.Move{
				Action:      domain.ActionStalled,
				Explanation: "No applicable technique for the remaining cells.",
				Board:       grid,
				Candidates:  cands,
			})
			return sequence(false, moves), nil
		}
		progressed = true
		moves = append(moves, m)
	}

	e.log.Debug("solve path derived", "moves", len(moves))
	return sequence(true, moves), nil
}

// sequence stamps sequential step indices on its way out.
func sequence(solved bool, moves []domain.Move) *domain.MoveSequence {
	for i := range moves {
		moves[i].Step = i
	}
	return &domain.MoveSequence{Solved: solved, Moves: moves}
}

// wrongEntries lists user-filled cells that contradict the solution, along
// with how many cells the user filled in total.
func wrongEntries(g *domain.Grid, givens *domain.Grid, solution *domain.Grid) (wrong []int, entered int) {
	for i := range g {
		if givens[i] != 0 || g[i] == 0 {
			continue
		}
		entered++
		if g[i] != solution[i] {
			wrong = append(wrong, i)
		}
	}
	return wrong, entered
}

// staleCandidates reports whether the caller's marks claim a digit the
// position forbids, on any empty cell that has marks at all.
func staleCandidates(got, want *domain.Candidates) bool {
	for i := range got {
		if got[i] == 0 {
			continue
		}
		for _, d := range got[i].Digits() {
			if !want[i].Has(d) {
				return true
			}
		}
	}
	return false
}
