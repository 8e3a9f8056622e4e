package shogi

// MaxPly bounds search depth and the fixed-size per-ply buffers the
// search package allocates against a Position (undo stack, killer
// tables, etc).
const MaxPly = 246

// Position is a complete Shogi position: the 81-square board, each
// side's hand, whose turn it is, and the Zobrist key used by the
// transposition table and repetition detection. 81 squares do not fit
// a single uint64 cleanly, so the board is a plain mailbox array — see
// DESIGN.md for the tradeoff. KingSquare is maintained incrementally
// by DoMove/UndoMove so check detection never scans for the king.
type Position struct {
	Board      [NumSquares]Piece
	Hands      [ColorCount]Hand
	SideToMove Color
	Ply        int

	Hash uint64

	KingSquare [ColorCount]Square

	// history is the Zobrist key of every position reached so far in
	// the game (including the current one, pushed in DoMove), used for
	// sennichite (repetition) detection.
	history []uint64
}

// NewPosition returns the standard Shogi starting position.
func NewPosition() *Position {
	p := &Position{}
	p.setupStandard()
	p.history = make([]uint64, 0, 256)
	p.history = append(p.history, p.Hash)
	return p
}

// Clone returns a deep copy of p, including its repetition history.
// Every Lazy SMP worker searches its own clone so concurrent DoMove/
// UndoMove calls never race on shared state.
func (p *Position) Clone() *Position {
	c := *p
	c.history = make([]uint64, len(p.history))
	copy(c.history, p.history)
	return &c
}

func (p *Position) setupStandard() {
	for i := range p.Board {
		p.Board[i] = NoPiece
	}
	place := func(file, rank int, c Color, pt PieceType) {
		sq := NewSquare(file, rank)
		p.Board[sq] = NewPiece(c, pt)
	}
	// White (gote) back three ranks, rank 1 = back rank nearest White's
	// own side from Black's viewpoint... standard layout: White occupies
	// ranks a-c (1-3), Black occupies ranks g-i (7-9).
	backRank := []PieceType{Lance, Knight, Silver, Gold, King, Gold, Silver, Knight, Lance}
	for file := 1; file <= 9; file++ {
		place(file, 1, White, backRank[file-1])
		place(file, 9, Black, backRank[file-1])
	}
	place(2, 2, White, Bishop)
	place(8, 2, White, Rook)
	place(8, 8, Black, Bishop)
	place(2, 8, Black, Rook)
	for file := 1; file <= 9; file++ {
		place(file, 3, White, Pawn)
		place(file, 7, Black, Pawn)
	}
	p.SideToMove = Black
	p.recomputeDerived()
}

// recomputeDerived rebuilds KingSquare and Hash from Board/Hands/SideToMove.
// Used after setup and SFEN parsing; DoMove/UndoMove maintain these
// incrementally instead for performance.
func (p *Position) recomputeDerived() {
	p.Hash = 0
	for sq := Square(0); int(sq) < NumSquares; sq++ {
		pc := p.Board[sq]
		if pc == NoPiece {
			continue
		}
		p.Hash ^= ZobristPiece(pc.Color(), pc.Type(), sq)
		if pc.Type() == King {
			p.KingSquare[pc.Color()] = sq
		}
	}
	for c := Color(0); c < ColorCount; c++ {
		for kind := 0; kind < NumPieceKinds; kind++ {
			p.Hash ^= ZobristHand(c, kind, int(p.Hands[c].Count[kind]))
		}
	}
	if p.SideToMove == White {
		p.Hash ^= ZobristTurn()
	}
}

// PieceAt returns the piece on sq, or NoPiece.
func (p *Position) PieceAt(sq Square) Piece { return p.Board[sq] }

// IsEmpty reports whether sq holds no piece.
func (p *Position) IsEmpty(sq Square) bool { return p.Board[sq] == NoPiece }

// InCheck reports whether c's king is currently attacked.
func (p *Position) InCheck(c Color) bool {
	return p.IsAttacked(p.KingSquare[c], c.Other())
}

// PushHistory records the current hash for repetition detection; called
// by DoMove.
func (p *Position) pushHistory() { p.history = append(p.history, p.Hash) }

func (p *Position) popHistory() { p.history = p.history[:len(p.history)-1] }

// RepetitionCount returns how many times the current position's hash
// has occurred earlier in the recorded game history (excluding the
// current entry itself).
func (p *Position) RepetitionCount() int {
	n := 0
	cur := p.Hash
	for i := 0; i < len(p.history)-1; i++ {
		if p.history[i] == cur {
			n++
		}
	}
	return n
}

// History returns every Zobrist key reached so far in the game,
// including the current position, for a caller (the search engine) that
// needs its own copy to extend with in-tree moves during search.
func (p *Position) History() []uint64 {
	out := make([]uint64, len(p.history))
	copy(out, p.history)
	return out
}

// IsSennichite reports fourfold repetition (this exact position,
// including hands and side to move, has occurred 4 times total).
func (p *Position) IsSennichite() bool { return p.RepetitionCount() >= 3 }

// ResetHistory clears recorded game history and reseeds it with the
// current position, used when the USI driver starts a fresh game.
func (p *Position) ResetHistory() {
	p.history = p.history[:0]
	p.history = append(p.history, p.Hash)
}

// impassePoints returns a piece's contribution to the 27-point jishogi
// count: 5 for a rook or bishop (promoted or not), 1 for anything else
// except the king, which scores 0.
func impassePoints(pt PieceType) int {
	switch pt.Unpromote() {
	case Rook, Bishop:
		return 5
	case King:
		return 0
	default:
		return 1
	}
}

// ImpasseScore returns c's 27-point jishogi (nyugyoku) score: 5 points
// per rook/bishop and 1 point per other non-king piece, counting both
// c's pieces sitting in the enemy's three-rank camp and everything in
// c's hand. Callers are responsible for the entry precondition (c's
// king must have reached the enemy camp) and for the legal-move/check
// conditions the impasse rule additionally requires; this only totals
// the material count used against the 28/27-point thresholds.
func (p *Position) ImpasseScore(c Color) int {
	score := 0
	for sq := Square(0); int(sq) < NumSquares; sq++ {
		pc := p.Board[sq]
		if pc == NoPiece || pc.Color() != c || pc.Type() == King {
			continue
		}
		if !sq.InPromotionZone(c) {
			continue
		}
		score += impassePoints(pc.Type())
	}
	for kind := 0; kind < NumPieceKinds; kind++ {
		pt := handKinds[kind]
		score += impassePoints(pt) * int(p.Hands[c].Count[HandKindIndex(pt)])
	}
	return score
}

// CanDeclareWin reports whether the side to move satisfies the full
// nyugyoku (impasse) declaration conditions: own king in the enemy
// camp, not in check, at least ten other own pieces in the camp, and an
// ImpasseScore of 28 points for Black / 27 for White.
func (p *Position) CanDeclareWin() bool {
	c := p.SideToMove
	if !p.KingSquare[c].InPromotionZone(c) {
		return false
	}
	if p.InCheck(c) {
		return false
	}
	inZone := 0
	for sq := Square(0); int(sq) < NumSquares; sq++ {
		pc := p.Board[sq]
		if pc == NoPiece || pc.Color() != c || pc.Type() == King {
			continue
		}
		if sq.InPromotionZone(c) {
			inZone++
		}
	}
	if inZone < 10 {
		return false
	}
	need := 28
	if c == White {
		need = 27
	}
	return p.ImpasseScore(c) >= need
}
