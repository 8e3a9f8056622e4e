package shogi

// Zobrist hash keys. Unlike chess, a Shogi position's identity also
// depends on each side's hand (captured pieces awaiting a drop), so the
// key must fold in hand piece counts, not just board occupancy.
var (
	zobristPiece [ColorCount][PieceTypeCount][NumSquares]uint64
	zobristHand  [ColorCount][NumPieceKinds][19]uint64 // up to 18 pawns in hand
	zobristTurn  uint64
)

func init() {
	initZobrist()
}

// prng is a small xorshift64* generator with a fixed seed, used only to
// fill the Zobrist tables deterministically (not for move randomization).
type prng struct{ state uint64 }

func newPRNG(seed uint64) *prng { return &prng{state: seed} }

func (p *prng) next() uint64 {
	p.state ^= p.state >> 12
	p.state ^= p.state << 25
	p.state ^= p.state >> 27
	return p.state * 0x2545F4914F6CDD1D
}

func initZobrist() {
	rng := newPRNG(0x53484F4749303031) // "SHOGI001"

	for c := Color(0); c < ColorCount; c++ {
		for pt := Pawn; pt < PieceTypeCount; pt++ {
			for sq := 0; sq < NumSquares; sq++ {
				zobristPiece[c][pt][sq] = rng.next()
			}
		}
		for kind := 0; kind < NumPieceKinds; kind++ {
			for n := 0; n < 19; n++ {
				zobristHand[c][kind][n] = rng.next()
			}
		}
	}
	zobristTurn = rng.next()
}

// ZobristPiece returns the key contribution of c's pt sitting on sq.
func ZobristPiece(c Color, pt PieceType, sq Square) uint64 {
	return zobristPiece[c][pt][sq]
}

// ZobristHand returns the key contribution of c holding count pieces of
// the given droppable kind index (see HandKindIndex).
func ZobristHand(c Color, kind, count int) uint64 {
	if count >= len(zobristHand[c][kind]) {
		count = len(zobristHand[c][kind]) - 1
	}
	return zobristHand[c][kind][count]
}

// ZobristTurn is XORed in whenever it is White to move.
func ZobristTurn() uint64 { return zobristTurn }
