package steps

import (
	"fmt"

	"svw.info/sudoku-replay/internal/domain"
	"svw.info/sudoku-replay/internal/solver"
)

var (
	docNakedSingle  = domain.TechniqueDoc{Title: "Naked Single", Slug: "naked-single", URL: "https://www.sudokuwiki.org/Getting_Started"}
	docHiddenSingle = domain.TechniqueDoc{Title: "Hidden Single", Slug: "hidden-single", URL: "https://www.sudokuwiki.org/Getting_Started"}
	docPointing     = domain.TechniqueDoc{Title: "Pointing Pair", Slug: "pointing-pair", URL: "https://www.sudokuwiki.org/Intersection_Removal"}
)

// nextTechnique finds the cheapest applicable technique and applies it to the
// working grid and candidates, returning the resulting move.
func (e *Engine) nextTechnique(g *domain.Grid, c *domain.Candidates) (domain.Move, bool) {
	if m, ok := nakedSingle(g, c); ok {
		return m, true
	}
	if m, ok := hiddenSingle(g, c); ok {
		return m, true
	}
	if m, ok := pointingPair(g, c); ok {
		return m, true
	}
	return domain.Move{}, false
}

// computeCandidates derives pencil marks from scratch: allowed digits on
// empty cells, zero on filled ones.
func computeCandidates(g *domain.Grid) domain.Candidates {
	var out domain.Candidates
	for i := range g {
		if g[i] != 0 {
			continue
		}
		r, c := i/9, i%9
		for v := uint8(1); v <= 9; v++ {
			if solver.Allowed(g, r, c, v) {
				out[i] = out[i].Add(v)
			}
		}
	}
	return out
}

func place(g *domain.Grid, c *domain.Candidates, idx int, d uint8, technique, expl string, doc domain.TechniqueDoc, secondary []domain.CellCoord) domain.Move {
	coord := domain.CoordOf(idx)
	g[idx] = d
	*c = computeCandidates(g)
	return domain.Move{
		Technique:   technique,
		Action:      domain.ActionPlace,
		Digit:       d,
		Cells:       []domain.CellCoord{coord},
		Explanation: expl,
		Doc:         doc,
		Highlight:   domain.Highlight{Primary: []domain.CellCoord{coord}, Secondary: secondary},
		Board:       *g,
		Candidates:  *c,
	}
}

func nakedSingle(g *domain.Grid, c *domain.Candidates) (domain.Move, bool) {
	for i := range g {
		if g[i] != 0 {
			continue
		}
		if d, ok := c[i].Sole(); ok {
			coord := domain.CoordOf(i)
			expl := fmt.Sprintf("R%dC%d has a single candidate: %d.", coord.Row+1, coord.Col+1, d)
			return place(g, c, i, d, "Naked Single", expl, docNakedSingle, nil), true
		}
	}
	return domain.Move{}, false
}

// unit index sets: 9 rows, 9 cols, 9 boxes.
var units = buildUnits()

type unit struct {
	name  string
	cells [9]int
}

func buildUnits() []unit {
	var out []unit
	for r := 0; r < 9; r++ {
		u := unit{name: fmt.Sprintf("row %d", r+1)}
		for c := 0; c < 9; c++ {
			u.cells[c] = r*9 + c
		}
		out = append(out, u)
	}
	for c := 0; c < 9; c++ {
		u := unit{name: fmt.Sprintf("column %d", c+1)}
		for r := 0; r < 9; r++ {
			u.cells[r] = r*9 + c
		}
		out = append(out, u)
	}
	for b := 0; b < 9; b++ {
		u := unit{name: fmt.Sprintf("box %d", b+1)}
		br, bc := (b/3)*3, (b%3)*3
		for k := 0; k < 9; k++ {
			u.cells[k] = (br+k/3)*9 + bc + k%3
		}
		out = append(out, u)
	}
	return out
}

func hiddenSingle(g *domain.Grid, c *domain.Candidates) (domain.Move, bool) {
	for _, u := range units {
		for d := uint8(1); d <= 9; d++ {
			spot := -1
			count := 0
			for _, idx := range u.cells {
				if g[idx] == 0 && c[idx].Has(d) {
					spot = idx
					count++
					if count > 1 {
						break
					}
				}
			}
			if count != 1 {
				continue
			}
			// A naked single would have been found already; only report when
			// the cell still has alternatives.
			if _, sole := c[spot].Sole(); sole {
				continue
			}
			coord := domain.CoordOf(spot)
			expl := fmt.Sprintf("%d fits only R%dC%d within %s.", d, coord.Row+1, coord.Col+1, u.name)
			secondary := make([]domain.CellCoord, 0, 8)
			for _, idx := range u.cells {
				if idx != spot {
					secondary = append(secondary, domain.CoordOf(idx))
				}
			}
			return place(g, c, spot, d, "Hidden Single", expl, docHiddenSingle, secondary), true
		}
	}
	return domain.Move{}, false
}

// pointingPair: a digit confined to one row (or column) within a box
// eliminates that digit from the rest of the line.
func pointingPair(g *domain.Grid, c *domain.Candidates) (domain.Move, bool) {
	for b := 0; b < 9; b++ {
		br, bc := (b/3)*3, (b%3)*3
		for d := uint8(1); d <= 9; d++ {
			var spots []int
			for k := 0; k < 9; k++ {
				idx := (br+k/3)*9 + bc + k%3
				if g[idx] == 0 && c[idx].Has(d) {
					spots = append(spots, idx)
				}
			}
			if len(spots) < 2 {
				continue
			}
			if m, ok := lineElimination(g, c, b, d, spots, true); ok {
				return m, true
			}
			if m, ok := lineElimination(g, c, b, d, spots, false); ok {
				return m, true
			}
		}
	}
	return domain.Move{}, false
}

func lineElimination(g *domain.Grid, c *domain.Candidates, box int, d uint8, spots []int, byRow bool) (domain.Move, bool) {
	line := lineOf(spots[0], byRow)
	for _, idx := range spots[1:] {
		if lineOf(idx, byRow) != line {
			return domain.Move{}, false
		}
	}
	var elims []domain.Elimination
	for k := 0; k < 9; k++ {
		idx := k + line*9
		if !byRow {
			idx = k*9 + line
		}
		if boxOf(idx) == box || g[idx] != 0 || !c[idx].Has(d) {
			continue
		}
		c[idx] = c[idx].Remove(d)
		elims = append(elims, domain.Elimination{Cell: domain.CoordOf(idx), Digit: d})
	}
	if len(elims) == 0 {
		return domain.Move{}, false
	}
	axis := "row"
	if !byRow {
		axis = "column"
	}
	primary := make([]domain.CellCoord, 0, len(spots))
	for _, idx := range spots {
		primary = append(primary, domain.CoordOf(idx))
	}
	secondary := make([]domain.CellCoord, 0, len(elims))
	for _, e := range elims {
		secondary = append(secondary, e.Cell)
	}
	return domain.Move{
		Technique:    "Pointing Pair",
		Action:       domain.ActionPlace,
		Digit:        d,
		Cells:        primary,
		Eliminations: elims,
		Explanation:  fmt.Sprintf("%d in box %d is confined to one %s; removed elsewhere on that %s.", d, box+1, axis, axis),
		Doc:          docPointing,
		Highlight:    domain.Highlight{Primary: primary, Secondary: secondary},
		Board:        *g,
		Candidates:   *c,
	}, true
}

func lineOf(idx int, byRow bool) int {
	if byRow {
		return idx / 9
	}
	return idx % 9
}

func boxOf(idx int) int {
	return idx/9/3*3 + idx%9/3
}
