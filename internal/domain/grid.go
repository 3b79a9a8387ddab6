package domain

import "encoding/json"

// GridSize is the number of cells on a standard board.
const GridSize = 81

// Grid holds the 81 cell values in row-major order, 0 = empty.
type Grid [GridSize]uint8

// CellCoord identifies a cell on the board.
type CellCoord struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Index returns the row-major cell index.
func (c CellCoord) Index() int { return c.Row*9 + c.Col }

// CoordOf converts a row-major index back to a coordinate.
func CoordOf(i int) CellCoord { return CellCoord{Row: i / 9, Col: i % 9} }

// IsComplete reports whether every cell is filled.
func (g *Grid) IsComplete() bool {
	for _, v := range g {
		if v == 0 {
			return false
		}
	}
	return true
}

// CandidateSet is a set of pencil-mark digits 1..9 stored as a bitmask.
type CandidateSet uint16

// NewCandidateSet builds a set from the given digits.
func NewCandidateSet(digits ...uint8) CandidateSet {
	var s CandidateSet
	for _, d := range digits {
		s = s.Add(d)
	}
	return s
}

func (s CandidateSet) Add(d uint8) CandidateSet {
	if d < 1 || d > 9 {
		return s
	}
	return s | 1<<d
}

func (s CandidateSet) Remove(d uint8) CandidateSet { return s &^ (1 << d) }

func (s CandidateSet) Has(d uint8) bool { return s&(1<<d) != 0 }

func (s CandidateSet) Len() int {
	n := 0
	for d := uint8(1); d <= 9; d++ {
		if s.Has(d) {
			n++
		}
	}
	return n
}

// Sole returns the single digit in the set, if the set has exactly one.
func (s CandidateSet) Sole() (uint8, bool) {
	if s.Len() != 1 {
		return 0, false
	}
	for d := uint8(1); d <= 9; d++ {
		if s.Has(d) {
			return d, true
		}
	}
	return 0, false
}

// Digits lists the member digits in ascending order.
func (s CandidateSet) Digits() []uint8 {
	out := make([]uint8, 0, s.Len())
	for d := uint8(1); d <= 9; d++ {
		if s.Has(d) {
			out = append(out, d)
		}
	}
	return out
}

// Candidates holds one pencil-mark set per cell.
type Candidates [GridSize]CandidateSet

// Lists converts to the plain array-of-arrays shape used at call boundaries.
func (c *Candidates) Lists() [][]int {
	out := make([][]int, GridSize)
	for i, s := range c {
		for _, d := range s.Digits() {
			out[i] = append(out[i], int(d))
		}
	}
	return out
}

// MarshalJSON renders the array-of-arrays shape rather than raw bitmasks.
func (c Candidates) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Lists())
}

// UnmarshalJSON accepts the array-of-arrays shape, tolerating null entries.
func (c *Candidates) UnmarshalJSON(data []byte) error {
	var lists [][]int
	if err := json.Unmarshal(data, &lists); err != nil {
		return err
	}
	*c = CandidatesFromLists(lists)
	return nil
}

// CandidatesFromLists converts the boundary shape back. Null, missing, and
// short entries become empty sets, never nil.
func CandidatesFromLists(lists [][]int) Candidates {
	var out Candidates
	for i := 0; i < len(lists) && i < GridSize; i++ {
		for _, d := range lists[i] {
			if d >= 1 && d <= 9 {
				out[i] = out[i].Add(uint8(d))
			}
		}
	}
	return out
}

// Board holds current values and which cells are fixed givens.
type Board struct {
	Values Grid           `json:"board"`
	Fixed  [GridSize]bool `json:"fixed,omitempty"`
}

// Givens returns the original clue digits, 0 where the cell is user-editable.
func (b *Board) Givens() Grid {
	var g Grid
	for i, v := range b.Values {
		if b.Fixed[i] {
			g[i] = v
		}
	}
	return g
}
