// Package nnue implements the efficiently-updatable evaluator: weight
// loading, the per-perspective accumulator with incremental updates,
// and the affine/clipped-ReLU layer stack, over Shogi's
// board-plus-hand HalfKP-style feature space.
package nnue

import "github.com/hiraoka/shogizero/internal/shogi"

// MaxLookback bounds how many plies EnsureComputed will walk back
// searching for a computed ancestor accumulator before giving up and
// forcing a full recomputation, per the lazy-propagation design.
const MaxLookback = 8

// DirtyPiece records one piece's board movement for an accumulator
// update: From/To are board squares (shogi.NoSquare for a drop's
// missing origin or a capture's missing destination).
type DirtyPiece struct {
	Piece shogi.Piece
	From  shogi.Square // shogi.NoSquare if this piece was dropped from hand
	To    shogi.Square // shogi.NoSquare if this piece was captured
}

// HandDelta records one hand-count change: the thermometer feature for
// "Color holds at least Count of Kind" switched on (Add) or off.
type HandDelta struct {
	Color shogi.Color
	Kind  shogi.PieceType // always the unpromoted base kind
	Count int             // 1-indexed thermometer step that flipped
	Add   bool
}

// DirtyState is the set of feature changes a single DoMove produced.
// At most three piece entries (a promotion splits the mover into a
// remove and an add, plus a captured piece leaving the board) and one
// hand delta (the captured piece entering the mover's hand, or the
// dropped piece leaving it).
type DirtyState struct {
	Pieces     [3]DirtyPiece
	Count      int
	Hands      [1]HandDelta
	HandCount  int
}

// Accumulator holds one position's feature-transformer output for both
// perspectives. KingSquare and Mirror snapshot the king bucket the
// values were computed against, so forward-applied diffs keep indexing
// consistently until the next refresh.
type Accumulator struct {
	Values     [2][]int16 // [perspective][L1Size]
	Computed   [2]bool
	KingSquare [2]shogi.Square
	Mirror     [2]bool
	Dirty      DirtyState
	HasDirty   bool
}

func newAccumulator(l1 int) *Accumulator {
	return &Accumulator{
		Values: [2][]int16{make([]int16, l1), make([]int16, l1)},
	}
}

// AccumulatorStack is a push/pop stack of accumulators, one per ply of
// search: Push after DoMove, Pop after UndoMove.
type AccumulatorStack struct {
	stack []*Accumulator
	top   int
	net   *Network
}

// NewAccumulatorStack allocates a stack deep enough for shogi.MaxPly.
func NewAccumulatorStack(net *Network) *AccumulatorStack {
	s := &AccumulatorStack{net: net}
	s.stack = make([]*Accumulator, shogi.MaxPly+1)
	for i := range s.stack {
		s.stack[i] = newAccumulator(net.L1Size)
	}
	return s
}

// Current returns the accumulator for the present ply.
func (s *AccumulatorStack) Current() *Accumulator { return s.stack[s.top] }

// Push advances to a fresh slot for the next ply, carrying forward the
// dirty-piece diff that EnsureComputed will consume.
func (s *AccumulatorStack) Push(dirty DirtyState) {
	s.top++
	next := s.stack[s.top]
	next.Computed = [2]bool{false, false}
	next.Dirty = dirty
	next.HasDirty = true
}

// Pop returns to the previous ply's accumulator (already computed, no
// work needed — this is the point of keeping a stack at all).
func (s *AccumulatorStack) Pop() { s.top-- }

// Reset drops back to the root accumulator and marks it stale, used
// when starting a new search or a new game.
func (s *AccumulatorStack) Reset() {
	s.top = 0
	s.stack[0].Computed = [2]bool{false, false}
	s.stack[0].HasDirty = false
}

// RefreshRoot fully computes the root (ply 0) accumulator from pos.
func (s *AccumulatorStack) RefreshRoot(pos *shogi.Position) {
	s.top = 0
	root := s.stack[0]
	root.Dirty = DirtyState{}
	root.HasDirty = false
	s.computeFull(root, pos, shogi.Black)
	s.computeFull(root, pos, shogi.White)
}

func (s *AccumulatorStack) computeFull(acc *Accumulator, pos *shogi.Position, perspective shogi.Color) {
	fs := s.net.Features
	copy(acc.Values[perspective], s.net.FeatureBiases)
	idx := make([]int32, 0, 64)
	idx = fs.ActiveFeatures(pos, perspective, idx)
	for _, f := range idx {
		active.addInt16(acc.Values[perspective], s.net.featureRow(f))
	}
	acc.Computed[perspective] = true
	acc.KingSquare[perspective] = pos.KingSquare[perspective]
	_, acc.Mirror[perspective] = fs.kingBucket(pos.KingSquare[perspective])
}

// EnsureComputed guarantees the current accumulator's perspective is
// up to date, walking back through dirty diffs up to MaxLookback plies
// to find the nearest computed ancestor and applying every diff forward
// from there. A move of perspective's own king invalidates the whole
// incremental chain for that perspective (the feature space is keyed by
// that king's square), forcing a full recompute — for that side only,
// the other perspective's chain stays intact.
func (s *AccumulatorStack) EnsureComputed(pos *shogi.Position, perspective shogi.Color) {
	cur := s.stack[s.top]
	if cur.Computed[perspective] {
		return
	}
	if s.top == 0 {
		s.computeFull(cur, pos, perspective)
		return
	}

	kingMoved := func(ds *DirtyState) bool {
		for _, dp := range ds.Pieces[:ds.Count] {
			if dp.Piece.Type() == shogi.King && dp.Piece.Color() == perspective {
				return true
			}
		}
		return false
	}

	// Walk back to the nearest computed ancestor, at most MaxLookback plies.
	i := s.top
	depth := 0
	for {
		layer := s.stack[i]
		if !layer.HasDirty || kingMoved(&layer.Dirty) {
			s.computeFull(cur, pos, perspective)
			return
		}
		if i == 1 || depth >= MaxLookback || s.stack[i-1].Computed[perspective] {
			break
		}
		i--
		depth++
	}
	if !s.stack[i-1].Computed[perspective] {
		s.computeFull(cur, pos, perspective)
		return
	}

	// Apply every ply's diff forward from the computed ancestor.
	copy(cur.Values[perspective], s.stack[i-1].Values[perspective])
	cur.KingSquare[perspective] = s.stack[i-1].KingSquare[perspective]
	cur.Mirror[perspective] = s.stack[i-1].Mirror[perspective]
	for ; i <= s.top; i++ {
		layer := s.stack[i]
		for _, dp := range layer.Dirty.Pieces[:layer.Dirty.Count] {
			s.applyDirty(cur, perspective, dp)
		}
		for _, hd := range layer.Dirty.Hands[:layer.Dirty.HandCount] {
			s.applyHand(cur, perspective, hd)
		}
	}
	cur.Computed[perspective] = true
}

func (s *AccumulatorStack) applyDirty(acc *Accumulator, perspective shogi.Color, dp DirtyPiece) {
	fs := s.net.Features
	if !fs.includesPiece(dp.Piece.Type()) {
		// Under HalfKP kings carry no piece features of their own; a
		// king move only matters through the forced-refresh rule
		// handled by the caller. (The perspective's own king never
		// reaches here under any layout — its move forces a refresh.)
		return
	}
	bucket, _ := fs.kingBucket(acc.KingSquare[perspective])
	mirrored := acc.Mirror[perspective]
	base := bucket * fs.FeEnd()
	if dp.To.IsValid() {
		active.addInt16(acc.Values[perspective], s.net.featureRow(int32(base+fs.boardFeatureIndex(dp.Piece, dp.To, mirrored))))
	}
	if dp.From.IsValid() {
		active.subInt16(acc.Values[perspective], s.net.featureRow(int32(base+fs.boardFeatureIndex(dp.Piece, dp.From, mirrored))))
	}
}

func (s *AccumulatorStack) applyHand(acc *Accumulator, perspective shogi.Color, hd HandDelta) {
	fs := s.net.Features
	bucket, _ := fs.kingBucket(acc.KingSquare[perspective])
	base := bucket * fs.FeEnd()
	row := s.net.featureRow(int32(base + fs.handFeatureIndex(hd.Color, hd.Kind, hd.Count)))
	if hd.Add {
		active.addInt16(acc.Values[perspective], row)
	} else {
		active.subInt16(acc.Values[perspective], row)
	}
}
