package playback

import "svw.info/sudoku-replay/internal/domain"

// history is the append-only snapshot store backing step navigation.
// Index 0 is the pre-playback state; entry i is the state after i moves.
// Entries are never mutated; a new fetch replaces the whole list.
type history struct {
	snaps []domain.Snapshot
}

// Reset discards everything and seeds the store with the pre-playback state.
func (h *history) Reset(initial domain.Snapshot) {
	h.snaps = append(h.snaps[:0:0], initial)
}

// Clear drops the store entirely (no sequence loaded).
func (h *history) Clear() { h.snaps = nil }

// Append records the state after one more move.
func (h *history) Append(s domain.Snapshot) { h.snaps = append(h.snaps, s) }

// At returns the snapshot at index i.
func (h *history) At(i int) (domain.Snapshot, bool) {
	if i < 0 || i >= len(h.snaps) {
		return domain.Snapshot{}, false
	}
	return h.snaps[i], true
}

func (h *history) Len() int { return len(h.snaps) }
