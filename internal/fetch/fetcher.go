// Package fetch turns one solve request into a normalized move sequence,
// translating collaborator failures into the fixed errors the playback
// layer reports.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"svw.info/sudoku-replay/internal/domain"
	"svw.info/sudoku-replay/internal/ports"
)

var (
	// ErrFetchFailed replaces solver failures that carry no usable message,
	// including panics inside the collaborator.
	ErrFetchFailed = errors.New("failed to get solution")
	// ErrAdvancedTechniques means the solver returned no moves for an
	// unsolved position: the puzzle needs techniques it does not implement.
	ErrAdvancedTechniques = errors.New("puzzle requires techniques beyond the available solver")
)

// Fetcher asks a StepSolver for a complete ordered solution.
type Fetcher struct {
	solver ports.StepSolver
	log    *slog.Logger
}

func New(s ports.StepSolver, log *slog.Logger) *Fetcher {
	if log == nil {
		log = slog.Default()
	}
	return &Fetcher{solver: s, log: log.With("component", "fetch")}
}

// Fetch requests a full move path for the current position. The collaborator
// may run to completion even if the caller has moved on; cancellation of the
// result is the caller's concern.
func (f *Fetcher) Fetch(ctx context.Context, board domain.Grid, cands domain.Candidates, givens domain.Grid) (seq *domain.MoveSequence, err error) {
	defer func() {
		if r := recover(); r != nil {
			f.log.Error("step solver panicked", "panic", r)
			seq = nil
			err = ErrFetchFailed
		}
	}()

	seq, err = f.solver.SolvePath(ctx, domain.SolveRequest{
		Board:      board,
		Candidates: cands,
		Givens:     givens,
	})
	if err != nil {
		return nil, fmt.Errorf("solve path: %w", err)
	}
	if seq == nil {
		return nil, ErrFetchFailed
	}
	if len(seq.Moves) == 0 && !seq.Solved {
		return nil, ErrAdvancedTechniques
	}
	// Moves arrive in solution order; make the step index authoritative so
	// downstream consumers never depend on slice position alone.
	for i := range seq.Moves {
		seq.Moves[i].Step = i
	}
	f.log.Debug("solution fetched", "moves", len(seq.Moves), "solved", seq.Solved)
	return seq, nil
}
