package nnue

import "github.com/hiraoka/shogizero/internal/shogi"

// ComputeDirtyState derives the feature diff m will produce, expressed
// as board-feature piece movements plus at most one hand thermometer
// flip. Must be called BEFORE pos.DoMove, while the position still
// holds the pre-move piece placement and hand counts. The result feeds
// AccumulatorStack.Push so EnsureComputed can update incrementally
// instead of refreshing; king moves still ride through here as piece
// entries and trigger the forced refresh for the moving side inside
// EnsureComputed.
func ComputeDirtyState(pos *shogi.Position, m shogi.Move) DirtyState {
	us := pos.SideToMove
	var ds DirtyState

	if m.IsDrop() {
		pt := m.DropPiece()
		ds.Pieces[0] = DirtyPiece{Piece: shogi.NewPiece(us, pt), From: shogi.NoSquare, To: m.To()}
		ds.Count = 1
		cnt := int(pos.Hands[us].Count[shogi.HandKindIndex(pt)])
		ds.Hands[0] = HandDelta{Color: us, Kind: pt, Count: cnt, Add: false}
		ds.HandCount = 1
		return ds
	}

	from, to := m.From(), m.To()
	moving := pos.PieceAt(from)

	if captured := pos.PieceAt(to); captured != shogi.NoPiece {
		ds.Pieces[ds.Count] = DirtyPiece{Piece: captured, From: to, To: shogi.NoSquare}
		ds.Count++
		base := captured.Type().Unpromote()
		cnt := int(pos.Hands[us].Count[shogi.HandKindIndex(base)])
		ds.Hands[0] = HandDelta{Color: us, Kind: base, Count: cnt + 1, Add: true}
		ds.HandCount = 1
	}

	if m.IsPromotion() {
		ds.Pieces[ds.Count] = DirtyPiece{Piece: moving, From: from, To: shogi.NoSquare}
		ds.Count++
		promoted := shogi.NewPiece(us, moving.Type().Promote())
		ds.Pieces[ds.Count] = DirtyPiece{Piece: promoted, From: shogi.NoSquare, To: to}
		ds.Count++
	} else {
		ds.Pieces[ds.Count] = DirtyPiece{Piece: moving, From: from, To: to}
		ds.Count++
	}
	return ds
}
