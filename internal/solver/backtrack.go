package solver

import "svw.info/sudoku-replay/internal/domain"

// BacktrackingSolver is a straightforward recursive solver.
type BacktrackingSolver struct{}

func NewBacktrackingSolver() *BacktrackingSolver { return &BacktrackingSolver{} }

// --- helpers used by Solve/Unique (in other files) ---

// Allowed reports whether v can go at (r,c) without a row/col/box conflict.
func Allowed(g *domain.Grid, r, c int, v uint8) bool {
	for i := 0; i < 9; i++ {
		if g[r*9+i] == v || g[i*9+c] == v {
			return false
		}
	}
	br, bc := (r/3)*3, (c/3)*3
	for dr := 0; dr < 3; dr++ {
		for dc := 0; dc < 3; dc++ {
			if g[(br+dr)*9+bc+dc] == v {
				return false
			}
		}
	}
	return true
}

func findEmpty(g *domain.Grid) (int, int, bool) {
	for i, v := range g {
		if v == 0 {
			return i / 9, i % 9, true
		}
	}
	return 0, 0, false
}
