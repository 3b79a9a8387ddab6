package generator

import (
	"context"
	"math/rand"
	"time"

	"svw.info/sudoku-replay/internal/domain"
	"svw.info/sudoku-replay/internal/ports"
	"svw.info/sudoku-replay/internal/solver"
)

func targetGivens(d domain.Difficulty) int {
	switch d {
	case domain.Easy:
		return 40
	case domain.Medium:
		return 34
	case domain.Hard:
		return 28
	default:
		return 24 // Expert
	}
}

// Generate creates a puzzle with a unique solution using seed and target difficulty.
func (g *UniqueGenerator) Generate(ctx context.Context, seed int64, diff domain.Difficulty) (*domain.Puzzle, ports.Stats, error) {
	start := time.Now()
	rng := rand.New(rand.NewSource(seed))
	// 1) full random solution
	var full domain.Grid
	if !fillRandom(ctx, rng, &full) {
		return nil, ports.Stats{}, context.Canceled
	}
	// 2) carve out clues while preserving uniqueness
	puz := full // working puzzle grid
	var fixed [domain.GridSize]bool
	for i := range fixed {
		fixed[i] = true
	}
	positions := make([]int, domain.GridSize)
	for i := range positions {
		positions[i] = i
	}
	rng.Shuffle(len(positions), func(i, j int) { positions[i], positions[j] = positions[j], positions[i] })

	target := targetGivens(diff)
	deadline := start.Add(900 * time.Millisecond)
	nodes := 0

	for _, pos := range positions {
		if time.Now().After(deadline) {
			break
		}
		// stop if target reached
		if countGivens(&puz) <= target {
			break
		}
		if puz[pos] == 0 {
			continue
		}
		old := puz[pos]
		puz[pos] = 0
		fixed[pos] = false
		unique, st, _ := g.Solver.Unique(ctx, &domain.Board{Values: puz})
		nodes += st.Nodes
		if !unique {
			// revert
			puz[pos] = old
			fixed[pos] = true
		}
	}

	p := &domain.Puzzle{
		ID:         "",
		Seed:       seed,
		Difficulty: diff,
		Board:      domain.Board{Values: puz, Fixed: fixed},
		CreatedAt:  time.Now().UnixNano(),
	}
	return p, ports.Stats{Nodes: nodes, Duration: time.Since(start)}, nil
}

func countGivens(g *domain.Grid) int {
	n := 0
	for _, v := range g {
		if v != 0 {
			n++
		}
	}
	return n
}

// fillRandom solves an empty grid into a full valid solution by random ordering.
func fillRandom(ctx context.Context, rng *rand.Rand, grid *domain.Grid) bool {
	var nums [9]uint8
	for i := 0; i < 9; i++ {
		nums[i] = uint8(i + 1)
	}
	var dfs func(int, int) bool
	dfs = func(r, c int) bool {
		if ctx.Err() != nil {
			return false
		}
		if r == 9 {
			return true
		}
		nr, nc := r, c+1
		if nc == 9 {
			nr, nc = r+1, 0
		}
		// random order
		rng.Shuffle(9, func(i, j int) { nums[i], nums[j] = nums[j], nums[i] })
		for _, v := range nums {
			if solver.Allowed(grid, r, c, v) {
				grid[r*9+c] = v
				if dfs(nr, nc) {
					return true
				}
				grid[r*9+c] = 0
			}
		}
		return false
	}
	return dfs(0, 0)
}
