package domain

// ActionKind tags a solver move with how playback should treat it.
type ActionKind string

const (
	// ActionPlace is a standard placement or candidate elimination.
	ActionPlace ActionKind = "place"
	// ActionContradiction marks a position the solver could not reconcile.
	ActionContradiction ActionKind = "contradiction"
	// ActionError means the solver gave up over too many incorrect entries.
	ActionError ActionKind = "error"
	// ActionDiagnostic is narration only, no board change.
	ActionDiagnostic ActionKind = "diagnostic"
	// ActionUnpinpointableError is a detected but unlocalizable user mistake.
	ActionUnpinpointableError ActionKind = "unpinpointable-error"
	// ActionStalled means the solver ran out of applicable techniques mid-path.
	ActionStalled ActionKind = "stalled"
	// ActionClearCandidates resets the pencil marks alongside the move's board.
	ActionClearCandidates ActionKind = "clear-candidates"
	// ActionFixError auto-corrects a wrong user entry and asks for acknowledgment.
	ActionFixError ActionKind = "fix-error"
)

// Elimination removes one candidate digit from one cell.
type Elimination struct {
	Cell  CellCoord `json:"cell"`
	Digit uint8     `json:"digit"`
}

// TechniqueDoc points at documentation for a solving technique.
type TechniqueDoc struct {
	Title string `json:"title,omitempty"`
	Slug  string `json:"slug,omitempty"`
	URL   string `json:"url,omitempty"`
}

// Highlight marks cells the UI should emphasize for a move.
type Highlight struct {
	Primary   []CellCoord `json:"primary,omitempty"`
	Secondary []CellCoord `json:"secondary,omitempty"`
}

// Move is one solver-produced instruction. Board and Candidates carry the
// full puzzle state after the move so playback can record and replay it
// without re-deriving anything. Moves are immutable once received.
type Move struct {
	Step           int           `json:"step"`
	Technique      string        `json:"technique,omitempty"`
	Action         ActionKind    `json:"action"`
	Digit          uint8         `json:"digit,omitempty"`
	Cells          []CellCoord   `json:"cells,omitempty"`
	Eliminations   []Elimination `json:"eliminations,omitempty"`
	Explanation    string        `json:"explanation,omitempty"`
	Doc            TechniqueDoc  `json:"doc,omitempty"`
	Highlight      Highlight     `json:"highlight,omitempty"`
	UserEntryCount int           `json:"userEntryCount,omitempty"`
	Board          Grid          `json:"board"`
	Candidates     Candidates    `json:"candidates"`
}

// MoveSequence is the complete ordered solution from one solve request.
type MoveSequence struct {
	Solved bool   `json:"solved"`
	Moves  []Move `json:"moves"`
}

// Snapshot is a recorded puzzle state paired with the move that produced it.
// Move is nil for the pre-playback state.
type Snapshot struct {
	Board      Grid       `json:"board"`
	Candidates Candidates `json:"candidates"`
	Move       *Move      `json:"move,omitempty"`
}

// SolveRequest is the input handed to a step solver.
type SolveRequest struct {
	Board      Grid       `json:"board"`
	Candidates Candidates `json:"candidates"`
	Givens     Grid       `json:"givens"`
}
