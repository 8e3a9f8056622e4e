package shogi

// delta is a (file, rank) step.
type delta struct{ df, dr int }

var kingDeltas = []delta{{1, 0}, {-1, 0}, {0, 1}, {0, -1}, {1, 1}, {1, -1}, {-1, 1}, {-1, -1}}
var orthoDeltas = []delta{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
var diagDeltas = []delta{{1, 1}, {1, -1}, {-1, 1}, {-1, -1}}

// forward returns +1 for White (moves toward higher ranks) and -1 for
// Black (moves toward lower ranks), the sign every directional piece's
// delta table is built from.
func forward(c Color) int {
	if c == Black {
		return -1
	}
	return 1
}

func pawnDeltas(c Color) []delta { return []delta{{0, forward(c)}} }

func knightDeltas(c Color) []delta {
	f := forward(c)
	return []delta{{1, 2 * f}, {-1, 2 * f}}
}

func silverDeltas(c Color) []delta {
	f := forward(c)
	return []delta{{0, f}, {1, f}, {-1, f}, {1, -f}, {-1, -f}}
}

func goldDeltas(c Color) []delta {
	f := forward(c)
	return []delta{{0, f}, {1, f}, {-1, f}, {1, 0}, {-1, 0}, {0, -f}}
}

// stepDeltas returns the non-sliding move pattern for pt as color c,
// or nil if pt is a sliding piece (handled by slideDirs instead).
func stepDeltas(pt PieceType, c Color) []delta {
	switch pt {
	case Pawn:
		return pawnDeltas(c)
	case Knight:
		return knightDeltas(c)
	case Silver:
		return silverDeltas(c)
	case Gold, ProPawn, ProLance, ProKnight, ProSilver:
		return goldDeltas(c)
	case King:
		return kingDeltas
	case Horse:
		return orthoDeltas
	case Dragon:
		return diagDeltas
	default:
		return nil
	}
}

// slideDirs returns the sliding directions for pt, or nil if pt never slides.
func slideDirs(pt PieceType, c Color) []delta {
	switch pt {
	case Lance:
		return []delta{{0, forward(c)}}
	case Bishop, Horse:
		return diagDeltas
	case Rook, Dragon:
		return orthoDeltas
	default:
		return nil
	}
}

// IsAttacked reports whether sq is attacked by any of byColor's pieces.
func (p *Position) IsAttacked(sq Square, byColor Color) bool {
	f, r := sq.File(), sq.Rank()
	// Stepping attackers: a byColor piece at (f,r)+delta(pt, byColor.Other())
	// reaches sq, by symmetry of the step pattern.
	for _, pt := range []PieceType{Pawn, Knight, Silver, Gold, ProPawn, ProLance, ProKnight, ProSilver, King, Horse, Dragon} {
		for _, d := range stepDeltas(pt, byColor.Other()) {
			nf, nr := f+d.df, r+d.dr
			if !onBoard(nf, nr) {
				continue
			}
			cand := p.Board[NewSquare(nf, nr)]
			if cand.Color() == byColor && cand.Type() == pt {
				return true
			}
		}
	}
	// Sliding attackers: cast a ray from sq in each slide direction and
	// see whether the first occupied square holds a matching slider.
	for _, pt := range []PieceType{Lance, Bishop, Rook, Horse, Dragon} {
		for _, d := range slideDirs(pt, byColor.Other()) {
			nf, nr := f+d.df, r+d.dr
			for onBoard(nf, nr) {
				cand := p.Board[NewSquare(nf, nr)]
				if cand != NoPiece {
					if cand.Color() == byColor && cand.Type() == pt {
						return true
					}
					break
				}
				nf += d.df
				nr += d.dr
			}
		}
	}
	return false
}

// boardAttacks reports whether the piece sitting at from (on the given
// raw board, not necessarily p.Board) attacks to, respecting blockers
// for sliders. Used by AttackersTo to drive static exchange evaluation
// against a scratch copy of the board rather than the live position.
func boardAttacks(board *[NumSquares]Piece, from, to Square) bool {
	pc := board[from]
	if pc == NoPiece {
		return false
	}
	pt, c := pc.Type(), pc.Color()
	f, r := from.File(), from.Rank()
	tf, tr := to.File(), to.Rank()
	for _, d := range stepDeltas(pt, c) {
		if f+d.df == tf && r+d.dr == tr {
			return true
		}
	}
	for _, d := range slideDirs(pt, c) {
		nf, nr := f+d.df, r+d.dr
		for onBoard(nf, nr) {
			if nf == tf && nr == tr {
				return true
			}
			if board[NewSquare(nf, nr)] != NoPiece {
				break
			}
			nf += d.df
			nr += d.dr
		}
	}
	return false
}

// AttackersTo returns every square holding a c-colored piece on board
// that attacks to. Unlike IsAttacked (a single yes/no probe used during
// move legality checking), this enumerates every attacker so a caller
// can repeatedly pull out the least valuable one, the way static
// exchange evaluation swaps captures off a square one at a time.
func AttackersTo(board *[NumSquares]Piece, to Square, c Color) []Square {
	var attackers []Square
	for s := Square(0); int(s) < NumSquares; s++ {
		pc := board[s]
		if pc == NoPiece || pc.Color() != c {
			continue
		}
		if boardAttacks(board, s, to) {
			attackers = append(attackers, s)
		}
	}
	return attackers
}

// GeneratePseudoLegal appends every pseudo-legal board move and drop for
// SideToMove into ml (legality w.r.t. leaving one's own king in check is
// filtered by GenerateLegal).
func (p *Position) GeneratePseudoLegal(ml *MoveList) {
	us := p.SideToMove
	for sq := Square(0); int(sq) < NumSquares; sq++ {
		pc := p.Board[sq]
		if pc == NoPiece || pc.Color() != us {
			continue
		}
		p.genPieceMoves(sq, pc, ml)
	}
	p.genDrops(ml)
}

func (p *Position) genPieceMoves(from Square, pc Piece, ml *MoveList) {
	us := pc.Color()
	pt := pc.Type()
	f, r := from.File(), from.Rank()

	tryAdd := func(to Square) {
		target := p.Board[to]
		if target != NoPiece && target.Color() == us {
			return
		}
		mustPromote, canPromote := promotionOptions(pt, us, from, to)
		if !mustPromote {
			ml.Add(NewBoardMove(from, to, false))
		}
		if canPromote {
			ml.Add(NewBoardMove(from, to, true))
		}
	}

	for _, d := range stepDeltas(pt, us) {
		nf, nr := f+d.df, r+d.dr
		if !onBoard(nf, nr) {
			continue
		}
		tryAdd(NewSquare(nf, nr))
	}
	for _, d := range slideDirs(pt, us) {
		nf, nr := f+d.df, r+d.dr
		for onBoard(nf, nr) {
			to := NewSquare(nf, nr)
			tryAdd(to)
			if p.Board[to] != NoPiece {
				break
			}
			nf += d.df
			nr += d.dr
		}
	}
}

// promotionOptions reports, for a piece of type pt moving from->to,
// whether a non-promoting move is legal (mustPromote==false allows it)
// and whether a promoting move is offered at all (canPromote).
// A move must promote when leaving the piece immobile forever otherwise
// (a Pawn/Lance reaching the last rank, a Knight reaching the last two).
func promotionOptions(pt PieceType, c Color, from, to Square) (mustPromote, canPromote bool) {
	if !pt.CanPromote() {
		return false, false
	}
	inZone := from.InPromotionZone(c) || to.InPromotionZone(c)
	if !inZone {
		return false, false
	}
	canPromote = true
	lastRank := 1
	secondLastRank := 2
	if c == White {
		lastRank, secondLastRank = 9, 8
	}
	switch pt {
	case Pawn, Lance:
		if to.Rank() == lastRank {
			return true, true
		}
	case Knight:
		if to.Rank() == lastRank || to.Rank() == secondLastRank {
			return true, true
		}
	}
	return false, canPromote
}

// genDrops appends every legal drop for SideToMove's hand.
func (p *Position) genDrops(ml *MoveList) {
	us := p.SideToMove
	hand := p.Hands[us]
	for _, pt := range handKinds {
		if hand.Count[HandKindIndex(pt)] == 0 {
			continue
		}
		for sq := Square(0); int(sq) < NumSquares; sq++ {
			if p.Board[sq] != NoPiece {
				continue
			}
			if !p.dropLegalSquare(pt, us, sq) {
				continue
			}
			ml.Add(NewDropMove(pt, sq))
		}
	}
}

// dropLegalSquare checks the drop-specific restrictions: no-mobility
// squares, nifu, and uchifuzume (the last by simulating the drop).
// King-safety (dropping while leaving or remaining in check) is filtered
// by GenerateLegal like any other move.
func (p *Position) dropLegalSquare(pt PieceType, us Color, sq Square) bool {
	lastRank, secondLastRank := 1, 2
	if us == White {
		lastRank, secondLastRank = 9, 8
	}
	r := sq.Rank()
	switch pt {
	case Pawn:
		if r == lastRank {
			return false
		}
		if p.hasPawnOnFile(us, sq.File()) {
			return false // nifu
		}
		if p.dropPawnIsMate(sq, us) {
			return false // uchifuzume
		}
	case Lance:
		if r == lastRank {
			return false
		}
	case Knight:
		if r == lastRank || r == secondLastRank {
			return false
		}
	}
	return true
}

func (p *Position) hasPawnOnFile(c Color, file int) bool {
	for rank := 1; rank <= 9; rank++ {
		pc := p.Board[NewSquare(file, rank)]
		if pc.Color() == c && pc.Type() == Pawn {
			return true
		}
	}
	return false
}

// dropPawnIsMate reports whether dropping a pawn of color us on sq would
// deliver immediate checkmate (the uchifuzume prohibition): the pawn
// must check the enemy king, and the enemy must have no legal reply.
func (p *Position) dropPawnIsMate(sq Square, us Color) bool {
	them := us.Other()
	f := forward(us)
	if !onBoard(sq.File(), sq.Rank()+f) {
		return false
	}
	checkSq := NewSquare(sq.File(), sq.Rank()+f)
	if checkSq != p.KingSquare[them] {
		return false
	}
	// Simulate the drop and test whether the defender has any legal move.
	p.Board[sq] = NewPiece(us, Pawn)
	p.Hands[us].Remove(Pawn)
	if p.InCheck(us) {
		// The drop leaves our own king attacked, so GenerateLegal rejects
		// it anyway; stop before the defender's replies could capture it.
		p.Hands[us].Add(Pawn)
		p.Board[sq] = NoPiece
		return false
	}
	p.SideToMove = them
	var ml MoveList
	p.GenerateLegal(&ml)
	mate := ml.Len() == 0
	p.SideToMove = us
	p.Hands[us].Add(Pawn)
	p.Board[sq] = NoPiece
	return mate
}

// GenerateLegal appends every fully legal move for SideToMove into ml.
func (p *Position) GenerateLegal(ml *MoveList) {
	var pseudo MoveList
	p.GeneratePseudoLegal(&pseudo)
	us := p.SideToMove
	for i := 0; i < pseudo.Len(); i++ {
		m := pseudo.Get(i)
		undo := p.DoMove(m)
		if !p.InCheck(us) {
			ml.Add(m)
		}
		p.UndoMove(m, undo)
	}
}
