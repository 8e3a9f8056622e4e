package search

import "github.com/hiraoka/shogizero/internal/shogi"

// maxContHist clamps continuation-history entries; int16 storage keeps
// the two-move-pair table (2592 x 2592 slots) around 13 MB per worker
// instead of the 50+ MB a word-sized cell would cost.
const maxContHist = 16000

// PieceToHistory is one ply's continuation-history table: given the
// piece that just moved and its destination, it scores a follow-up
// move by the piece landing on its own destination square. Indexed
// [pieceByte][toSquare].
type PieceToHistory [32][shogi.NumSquares]int16

// ContinuationHistory holds one PieceToHistory per (piece, to) pair
// reached so far, addressed the same way, so a search ply can fetch
// "how did moves following this move pattern score historically" in
// one step — a flat arena indexed by (piece, to) pairs, the same
// addressing scheme the butterfly tables in ordering.go use for
// single moves.
type ContinuationHistory struct {
	tables [32][shogi.NumSquares]PieceToHistory
}

// NewContinuationHistory creates an empty continuation history.
func NewContinuationHistory() *ContinuationHistory {
	return &ContinuationHistory{}
}

// GetContinuationHistoryTable returns the table addressed by the move
// (piece, to) that was just played, for the child ply to consult.
func (ch *ContinuationHistory) GetContinuationHistoryTable(piece shogi.Piece, to shogi.Square) *PieceToHistory {
	return &ch.tables[piece][to]
}

// Score looks up how well movePiece->moveTo followed prevPiece->prevTo historically.
func (ch *ContinuationHistory) Score(prevPiece shogi.Piece, prevTo shogi.Square, movePiece shogi.Piece, moveTo shogi.Square) int {
	if prevPiece == shogi.NoPiece {
		return 0
	}
	return int(ch.tables[prevPiece][prevTo][movePiece][moveTo])
}

// Update records a bonus/malus for movePiece->moveTo following
// prevPiece->prevTo, with a gravity term pulling saturated entries back
// toward zero so the table keeps adapting instead of pinning at the clamp.
func (ch *ContinuationHistory) Update(prevPiece shogi.Piece, prevTo shogi.Square, movePiece shogi.Piece, moveTo shogi.Square, depth int, isGood bool) {
	if prevPiece == shogi.NoPiece || movePiece == shogi.NoPiece {
		return
	}
	bonus := min(depth*depth, 1200)
	if !isGood {
		bonus = -bonus
	}
	cell := &ch.tables[prevPiece][prevTo][movePiece][moveTo]
	v := int(*cell)
	v += bonus - v*abs(bonus)/maxContHist
	if v > maxContHist {
		v = maxContHist
	} else if v < -maxContHist {
		v = -maxContHist
	}
	*cell = int16(v)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// Age halves every entry between searches, like the other history tables.
func (ch *ContinuationHistory) Age() {
	for i := range ch.tables {
		for j := range ch.tables[i] {
			t := &ch.tables[i][j]
			for k := range t {
				for l := range t[k] {
					t[k][l] /= 2
				}
			}
		}
	}
}

// SharedHistory is a mutex-free, best-effort history table shared
// across Lazy SMP workers: concurrent increments may race, but the
// values only steer move ordering (never correctness), so a torn
// update costs at worst a slightly worse pick order.
type SharedHistory struct {
	table [shogi.NumSquares + int(shogi.PieceTypeCount)][shogi.NumSquares]int32
}

// NewSharedHistory creates an empty shared history table.
func NewSharedHistory() *SharedHistory { return &SharedHistory{} }

// Get returns the shared history score for a from/to pair.
func (sh *SharedHistory) Get(from, to int) int {
	return int(sh.table[from][to])
}

// Update adds bonus to the shared history score for a from/to pair.
func (sh *SharedHistory) Update(from, to, bonus int) {
	sh.table[from][to] += int32(bonus)
	if sh.table[from][to] > 400000 {
		sh.table[from][to] = 400000
	} else if sh.table[from][to] < -400000 {
		sh.table[from][to] = -400000
	}
}
