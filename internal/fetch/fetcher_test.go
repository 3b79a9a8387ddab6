package fetch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"svw.info/sudoku-replay/internal/domain"
)

type stubSolver struct {
	seq   *domain.MoveSequence
	err   error
	panic bool
	got   domain.SolveRequest
}

func (s *stubSolver) SolvePath(ctx context.Context, req domain.SolveRequest) (*domain.MoveSequence, error) {
	s.got = req
	if s.panic {
		panic("index out of range")
	}
	return s.seq, s.err
}

func TestFetchReindexesSteps(t *testing.T) {
	s := &stubSolver{seq: &domain.MoveSequence{Solved: true, Moves: []domain.Move{
		{Step: 7, Action: domain.ActionPlace},
		{Step: 7, Action: domain.ActionPlace},
		{Step: 0, Action: domain.ActionPlace},
	}}}
	f := New(s, nil)

	var board, givens domain.Grid
	board[0], givens[0] = 5, 5
	var cands domain.Candidates
	cands[1] = domain.NewCandidateSet(2, 3)

	seq, err := f.Fetch(context.Background(), board, cands, givens)
	require.NoError(t, err)
	for i, m := range seq.Moves {
		require.Equal(t, i, m.Step)
	}
	require.Equal(t, board, s.got.Board)
	require.Equal(t, cands, s.got.Candidates)
	require.Equal(t, givens, s.got.Givens)
}

func TestFetchPropagatesSolverError(t *testing.T) {
	s := &stubSolver{err: errors.New("connection refused")}
	f := New(s, nil)

	_, err := f.Fetch(context.Background(), domain.Grid{}, domain.Candidates{}, domain.Grid{})
	require.ErrorContains(t, err, "connection refused")
}

func TestFetchRecoversSolverPanic(t *testing.T) {
	f := New(&stubSolver{panic: true}, nil)

	seq, err := f.Fetch(context.Background(), domain.Grid{}, domain.Candidates{}, domain.Grid{})
	require.Nil(t, seq)
	require.ErrorIs(t, err, ErrFetchFailed)
	require.EqualError(t, err, "failed to get solution")
}

func TestFetchNilSequenceIsFailure(t *testing.T) {
	f := New(&stubSolver{}, nil)

	_, err := f.Fetch(context.Background(), domain.Grid{}, domain.Candidates{}, domain.Grid{})
	require.ErrorIs(t, err, ErrFetchFailed)
}

func TestFetchEmptyUnsolvedMeansAdvancedTechniques(t *testing.T) {
	f := New(&stubSolver{seq: &domain.MoveSequence{Solved: false}}, nil)

	_, err := f.Fetch(context.Background(), domain.Grid{}, domain.Candidates{}, domain.Grid{})
	require.ErrorIs(t, err, ErrAdvancedTechniques)
}

func TestFetchEmptySolvedIsFine(t *testing.T) {
	f := New(&stubSolver{seq: &domain.MoveSequence{Solved: true}}, nil)

	seq, err := f.Fetch(context.Background(), domain.Grid{}, domain.Candidates{}, domain.Grid{})
	require.NoError(t, err)
	require.True(t, seq.Solved)
	require.Empty(t, seq.Moves)
}
