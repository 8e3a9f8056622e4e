package shogi

// UndoInfo carries everything DoMove consumed from the position so
// UndoMove can restore it exactly — a small snapshot rather than a
// reversible-diff scheme, which is simplest to get right for a
// position shaped by both a board and two hands.
type UndoInfo struct {
	Captured     Piece
	MovedFrom    Piece // the piece as it was before promotion, for board moves
	PrevHash     uint64
}

// DoMove applies m to p and returns the information needed to undo it.
// The caller is responsible for having verified m is at least
// pseudo-legal; DoMove does not re-validate.
func (p *Position) DoMove(m Move) UndoInfo {
	us := p.SideToMove
	var undo UndoInfo
	undo.PrevHash = p.Hash

	to := m.To()
	if m.IsDrop() {
		pt := m.DropPiece()
		pc := NewPiece(us, pt)
		p.Board[to] = pc
		p.Hash ^= ZobristPiece(us, pt, to)
		kind := HandKindIndex(pt)
		cnt := int(p.Hands[us].Count[kind])
		p.Hash ^= ZobristHand(us, kind, cnt)
		p.Hands[us].Remove(pt)
		p.Hash ^= ZobristHand(us, kind, cnt-1)
	} else {
		from := m.From()
		moving := p.Board[from]
		undo.MovedFrom = moving
		captured := p.Board[to]
		undo.Captured = captured

		p.Hash ^= ZobristPiece(us, moving.Type(), from)
		if captured != NoPiece {
			p.Hash ^= ZobristPiece(captured.Color(), captured.Type(), to)
			base := captured.Type().Unpromote()
			kind := HandKindIndex(base)
			cnt := int(p.Hands[us].Count[kind])
			p.Hash ^= ZobristHand(us, kind, cnt)
			p.Hands[us].Add(base)
			p.Hash ^= ZobristHand(us, kind, cnt+1)
		}

		newType := moving.Type()
		if m.IsPromotion() {
			newType = newType.Promote()
		}
		newPiece := NewPiece(us, newType)
		p.Board[from] = NoPiece
		p.Board[to] = newPiece
		p.Hash ^= ZobristPiece(us, newType, to)

		if newType == King {
			p.KingSquare[us] = to
		}
	}

	p.SideToMove = us.Other()
	p.Hash ^= ZobristTurn()
	p.Ply++
	p.pushHistory()
	return undo
}

// UndoMove reverses the effect of DoMove(m) using the saved undo info.
func (p *Position) UndoMove(m Move, undo UndoInfo) {
	p.popHistory()
	p.Ply--
	us := p.SideToMove.Other()
	p.SideToMove = us

	to := m.To()
	if m.IsDrop() {
		pt := m.DropPiece()
		p.Board[to] = NoPiece
		p.Hands[us].Add(pt)
	} else {
		from := m.From()
		moving := undo.MovedFrom
		p.Board[from] = moving
		p.Board[to] = undo.Captured
		if moving.Type() == King {
			p.KingSquare[us] = from
		}
		if undo.Captured != NoPiece {
			base := undo.Captured.Type().Unpromote()
			p.Hands[us].Remove(base)
		}
	}
	p.Hash = undo.PrevHash
}

// DoNullMove passes the turn without moving, used by null-move pruning.
// It returns the previous hash to pass to UndoNullMove.
func (p *Position) DoNullMove() uint64 {
	prev := p.Hash
	p.SideToMove = p.SideToMove.Other()
	p.Hash ^= ZobristTurn()
	p.Ply++
	p.pushHistory()
	return prev
}

// UndoNullMove reverses DoNullMove.
func (p *Position) UndoNullMove(prevHash uint64) {
	p.popHistory()
	p.Ply--
	p.SideToMove = p.SideToMove.Other()
	p.Hash = prevHash
}
