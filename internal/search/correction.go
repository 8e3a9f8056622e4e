package search

import (
	"github.com/hiraoka/shogizero/internal/shogi"
)

// CorrectionHistory adjusts static evaluation based on search results.
// When the search discovers the static eval was wrong, it records the
// error and applies corrections to similar positions in the future.
type CorrectionHistory struct {
	positionCorr [65536]int16
}

// NewCorrectionHistory creates a new correction history table.
func NewCorrectionHistory() *CorrectionHistory {
	return &CorrectionHistory{}
}

// Get returns the correction value for a position, to be added to the
// static evaluation.
func (ch *CorrectionHistory) Get(pos *shogi.Position) int {
	idx := pos.Hash & 0xFFFF
	return int(ch.positionCorr[idx])
}

// Update records a correction based on the difference between the
// static evaluation and the search result, using a gravity update
// toward the newly observed error.
func (ch *CorrectionHistory) Update(pos *shogi.Position, searchScore, staticEval, depth int) {
	if depth < 1 {
		return
	}
	diff := searchScore - staticEval
	bonus := diff * depth / 8
	if bonus > 256 {
		bonus = 256
	} else if bonus < -256 {
		bonus = -256
	}

	idx := pos.Hash & 0xFFFF
	old := int(ch.positionCorr[idx])
	newVal := old + (bonus-old)/16
	if newVal > 16000 {
		newVal = 16000
	} else if newVal < -16000 {
		newVal = -16000
	}
	ch.positionCorr[idx] = int16(newVal)
}

// Snapshot returns a copy of the correction table suitable for
// persisting (see internal/persist.Store.SaveCorrectionHistory).
func (ch *CorrectionHistory) Snapshot() []int16 {
	out := make([]int16, len(ch.positionCorr))
	copy(out, ch.positionCorr[:])
	return out
}

// Restore loads a previously persisted correction table. A table of the
// wrong length (from a size mismatch across engine versions) is ignored
// rather than partially applied.
func (ch *CorrectionHistory) Restore(table []int16) {
	if len(table) != len(ch.positionCorr) {
		return
	}
	copy(ch.positionCorr[:], table)
}

// Clear resets all correction values.
func (ch *CorrectionHistory) Clear() {
	for i := range ch.positionCorr {
		ch.positionCorr[i] = 0
	}
}

// Age scales down all correction values between searches.
func (ch *CorrectionHistory) Age() {
	for i := range ch.positionCorr {
		ch.positionCorr[i] /= 2
	}
}
