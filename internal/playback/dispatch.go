package playback

import "svw.info/sudoku-replay/internal/domain"

// Fixed user-facing messages for solver-side diagnostics.
const (
	msgContradiction  = "puzzle has a contradiction that could not be resolved"
	msgUnpinpointable = "a mistake was detected in your entries but could not be pinpointed"
)

// continuation says what playback does after one move is consumed.
type continuation int

const (
	// contAdvance keeps playing: schedule the next move, or finish cleanly
	// when the sequence is exhausted.
	contAdvance continuation = iota
	// contStop terminates playback, optionally with an error callback.
	contStop
	// contPause applies the move, then defers the next step to an explicit
	// resume acknowledgment.
	contPause
)

// directive is the dispatcher's decision for one move, made explicit so the
// control-flow contract is a testable value rather than a side effect of
// which callback happened to fire.
type directive struct {
	cont            continuation
	applyState      bool // mutate puzzle state and record a real snapshot
	clearCandidates bool // snapshot gets empty candidate sets
	status          string
	errMsg          string
	unpinpointable  bool // route errMsg through OnUnpinpointableError
	fixError        bool // fire OnErrorFixed with a resume gate
}

// dispatch classifies a move by action kind. isLast matters for the skip
// kinds: a skipped move with nothing after it must stop rather than spin.
func dispatch(m *domain.Move, isLast bool) directive {
	switch m.Action {
	case domain.ActionContradiction:
		if isLast {
			return directive{cont: contStop, errMsg: msgContradiction}
		}
		return directive{cont: contAdvance}
	case domain.ActionError:
		return directive{cont: contStop, errMsg: explanationOr(m, msgUnpinpointable), unpinpointable: true}
	case domain.ActionDiagnostic:
		return directive{cont: contAdvance, status: m.Explanation}
	case domain.ActionUnpinpointableError, domain.ActionStalled:
		return directive{cont: contStop, errMsg: explanationOr(m, msgUnpinpointable), unpinpointable: true}
	case domain.ActionClearCandidates:
		return directive{cont: contAdvance, applyState: true, clearCandidates: true}
	case domain.ActionFixError:
		return directive{cont: contPause, applyState: true, fixError: true}
	default:
		// Standard placement/elimination, and any kind a newer solver emits
		// that we do not recognize.
		return directive{cont: contAdvance, applyState: true}
	}
}

func explanationOr(m *domain.Move, fallback string) string {
	if m.Explanation != "" {
		return m.Explanation
	}
	return fallback
}
