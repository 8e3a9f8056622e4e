package search

import (
	"github.com/hiraoka/shogizero/internal/shogi"
)

// Move ordering priorities: TT move first, then captures by MVV-LVA
// plus capture history, killers and the counter-move, then quiets
// ranked by history.
const (
	TTMoveScore     = 10000000
	GoodCaptureBase = 1000000
	KillerScore1    = 900000
	KillerScore2    = 800000
	BadCaptureBase  = -100000
)

// isCapture reports whether m, played against pos, captures a piece.
// Drops always land on an empty square and can never capture.
func isCapture(pos *shogi.Position, m shogi.Move) bool {
	return !m.IsDrop() && pos.PieceAt(m.To()) != shogi.NoPiece
}

// MoveOrderer handles move ordering for the search: [from][to]-indexed
// butterfly tables sized for Shogi (81 squares, 14 piece kinds, and a
// synthetic from-axis for drops).
type MoveOrderer struct {
	killers [MaxPly][2]shogi.Move

	// history is indexed [from][to]; drops use fromSquare 81+pieceType
	// as a synthetic "from" so they share the table without a third axis.
	history [256][81]int

	counterMoves [32][81]shogi.Move

	// captureHistory indexed [attackerPieceType][toSquare][capturedPieceType]
	captureHistory [shogi.PieceTypeCount][81][shogi.PieceTypeCount]int

	continuation *ContinuationHistory
}

// dropHistoryIndex maps a drop move's piece type onto a synthetic "from"
// slot past the 81 real squares, so the history table can score drops
// with the same machinery as board moves.
func dropHistoryIndex(m shogi.Move) int {
	if m.IsDrop() {
		return shogi.NumSquares + int(m.DropPiece())
	}
	return int(m.From())
}

// NewMoveOrderer creates a new move orderer.
func NewMoveOrderer() *MoveOrderer {
	return &MoveOrderer{continuation: NewContinuationHistory()}
}

// Clear resets the move orderer for a new search.
func (mo *MoveOrderer) Clear() {
	for i := range mo.killers {
		mo.killers[i][0] = shogi.NoMove
		mo.killers[i][1] = shogi.NoMove
	}
	for i := range mo.history {
		for j := range mo.history[i] {
			mo.history[i][j] /= 2
		}
	}
	for i := range mo.counterMoves {
		for j := range mo.counterMoves[i] {
			mo.counterMoves[i][j] = shogi.NoMove
		}
	}
	for i := range mo.captureHistory {
		for j := range mo.captureHistory[i] {
			for k := range mo.captureHistory[i][j] {
				mo.captureHistory[i][j][k] /= 2
			}
		}
	}
	mo.continuation.Age()
}

// ScoreMoves assigns scores to moves for ordering.
func (mo *MoveOrderer) ScoreMoves(pos *shogi.Position, moves *shogi.MoveList, ply int, ttMove shogi.Move) []int {
	scores := make([]int, moves.Len())
	for i := 0; i < moves.Len(); i++ {
		scores[i] = mo.scoreMove(pos, moves.Get(i), ply, ttMove)
	}
	return scores
}

// ScoreMovesWithCounter assigns scores including counter-move and
// continuation-history bonuses layered on top of the base score.
func (mo *MoveOrderer) ScoreMovesWithCounter(pos *shogi.Position, moves *shogi.MoveList, ply int, ttMove, prevMove shogi.Move) []int {
	scores := make([]int, moves.Len())
	counterMove := mo.GetCounterMove(prevMove, pos)

	var prevPiece shogi.Piece = shogi.NoPiece
	if prevMove != shogi.NoMove && !prevMove.IsDrop() {
		prevPiece = pos.PieceAt(prevMove.To())
	}

	for i := 0; i < moves.Len(); i++ {
		move := moves.Get(i)
		scores[i] = mo.scoreMove(pos, move, ply, ttMove)

		if move == counterMove && scores[i] < KillerScore2 {
			scores[i] = KillerScore2 - 10000
		}

		if !isCapture(pos, move) && !move.IsPromotion() && move != ttMove {
			movePiece := movingPiece(pos, move)
			cmh := mo.continuation.Score(prevPiece, prevMove.To(), movePiece, move.To())
			scores[i] += cmh / 2
		}
	}
	return scores
}

// movingPiece returns the piece a move puts on its destination square,
// before any promotion is applied.
func movingPiece(pos *shogi.Position, m shogi.Move) shogi.Piece {
	if m.IsDrop() {
		return shogi.NewPiece(pos.SideToMove, m.DropPiece())
	}
	return pos.PieceAt(m.From())
}

func (mo *MoveOrderer) scoreMove(pos *shogi.Position, m shogi.Move, ply int, ttMove shogi.Move) int {
	if m == ttMove {
		return TTMoveScore
	}

	if isCapture(pos, m) {
		attackerPiece := movingPiece(pos, m)
		attacker := attackerPiece.Type()
		victim := pos.PieceAt(m.To()).Type()

		score := GoodCaptureBase + (victim.Value()-attacker.Value()/10)*10
		score += mo.GetCaptureHistoryScore(attacker, m.To(), victim) / 4

		if attacker.Value() < victim.Value() {
			score += 10000
		}
		return score
	}

	if m.IsPromotion() {
		return GoodCaptureBase - 1000 + movingPiece(pos, m).Type().Value()/10
	}

	if m == mo.killers[ply][0] {
		return KillerScore1
	}
	if m == mo.killers[ply][1] {
		return KillerScore2
	}

	return mo.history[dropHistoryIndex(m)][m.To()]
}

// SortMoves sorts moves by their scores (descending); a plain selection
// sort, sufficient for Shogi's wider but still small branching factor.
func SortMoves(moves *shogi.MoveList, scores []int) {
	n := moves.Len()
	for i := 0; i < n-1; i++ {
		best := i
		for j := i + 1; j < n; j++ {
			if scores[j] > scores[best] {
				best = j
			}
		}
		if best != i {
			moves.Swap(i, best)
			scores[i], scores[best] = scores[best], scores[i]
		}
	}
}

// PickMove selects the best remaining move and moves it to position index.
func PickMove(moves *shogi.MoveList, scores []int, index int) {
	best := index
	for j := index + 1; j < moves.Len(); j++ {
		if scores[j] > scores[best] {
			best = j
		}
	}
	if best != index {
		moves.Swap(index, best)
		scores[index], scores[best] = scores[best], scores[index]
	}
}

// UpdateKillers adds a killer move at the given ply.
func (mo *MoveOrderer) UpdateKillers(m shogi.Move, ply int) {
	if ply >= MaxPly {
		return
	}
	if mo.killers[ply][0] == m {
		return
	}
	mo.killers[ply][1] = mo.killers[ply][0]
	mo.killers[ply][0] = m
}

// UpdateHistory updates the history score for a quiet move.
func (mo *MoveOrderer) UpdateHistory(m shogi.Move, depth int, isGood bool) {
	idx := dropHistoryIndex(m)
	to := m.To()
	bonus := depth * depth
	if isGood {
		mo.history[idx][to] += bonus
		if mo.history[idx][to] > 400000 {
			for i := range mo.history {
				for j := range mo.history[i] {
					mo.history[i][j] /= 2
				}
			}
		}
	} else {
		mo.history[idx][to] -= bonus
		if mo.history[idx][to] < -400000 {
			mo.history[idx][to] = -400000
		}
	}
}

// UpdateCounterMove updates the counter move table.
func (mo *MoveOrderer) UpdateCounterMove(prevMove, counterMove shogi.Move, pos *shogi.Position) {
	if prevMove == shogi.NoMove {
		return
	}
	piece := pos.PieceAt(prevMove.To())
	if piece == shogi.NoPiece {
		return
	}
	mo.counterMoves[piece][prevMove.To()] = counterMove
}

// GetCounterMove returns the counter move for a previous move.
func (mo *MoveOrderer) GetCounterMove(prevMove shogi.Move, pos *shogi.Position) shogi.Move {
	if prevMove == shogi.NoMove {
		return shogi.NoMove
	}
	piece := pos.PieceAt(prevMove.To())
	if piece == shogi.NoPiece {
		return shogi.NoMove
	}
	return mo.counterMoves[piece][prevMove.To()]
}

// GetHistoryScore returns the history score for a move.
func (mo *MoveOrderer) GetHistoryScore(m shogi.Move) int {
	return mo.history[dropHistoryIndex(m)][m.To()]
}

// UpdateCaptureHistory updates the capture history for a move.
func (mo *MoveOrderer) UpdateCaptureHistory(attacker shogi.PieceType, toSq shogi.Square, victim shogi.PieceType, depth int, isGood bool) {
	bonus := depth * depth
	if isGood {
		mo.captureHistory[attacker][toSq][victim] += bonus
		if mo.captureHistory[attacker][toSq][victim] > 400000 {
			mo.scaleCaptureHistory()
		}
	} else {
		mo.captureHistory[attacker][toSq][victim] -= bonus
		if mo.captureHistory[attacker][toSq][victim] < -400000 {
			mo.captureHistory[attacker][toSq][victim] = -400000
		}
	}
}

func (mo *MoveOrderer) scaleCaptureHistory() {
	for i := range mo.captureHistory {
		for j := range mo.captureHistory[i] {
			for k := range mo.captureHistory[i][j] {
				mo.captureHistory[i][j][k] /= 2
			}
		}
	}
}

// GetCaptureHistoryScore returns the capture history score for a capture move.
func (mo *MoveOrderer) GetCaptureHistoryScore(attacker shogi.PieceType, toSq shogi.Square, victim shogi.PieceType) int {
	return mo.captureHistory[attacker][toSq][victim]
}
