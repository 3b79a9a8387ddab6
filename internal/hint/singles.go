package hint

import (
	"context"
	"fmt"

	"svw.info/sudoku-replay/internal/domain"
	"svw.info/sudoku-replay/internal/solver"
)

// Singles implements a minimal Hinter that suggests naked singles.
type Singles struct{}

func NewSingles() *Singles { return &Singles{} }

// Hint returns the first found naked single if max tier allows it.
func (h *Singles) Hint(ctx context.Context, b *domain.Board, max domain.StrategyTier) (domain.Hint, bool, error) {
	if max < domain.StrategySingles {
		return domain.Hint{}, false, nil
	}
	for i, val := range b.Values {
		if val != 0 {
			continue
		}
		r, c := i/9, i%9
		v, ok := soleCandidate(&b.Values, r, c)
		if ok {
			msg := fmt.Sprintf("Single: only %d fits here", v)
			return domain.Hint{
				Message:  msg,
				Cells:    []domain.CellCoord{{Row: r, Col: c}},
				Strategy: domain.StrategySingles,
			}, true, nil
		}
	}
	return domain.Hint{}, false, nil
}

func soleCandidate(g *domain.Grid, r, c int) (uint8, bool) {
	var last uint8
	count := 0
	for v := uint8(1); v <= 9; v++ {
		if solver.Allowed(g, r, c, v) {
			count++
			last = v
			if count > 1 {
				return 0, false
			}
		}
	}
	return last, count == 1
}
