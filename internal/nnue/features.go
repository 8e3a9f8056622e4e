package nnue

import "github.com/hiraoka/shogizero/internal/shogi"

// Feature indexing for the feature set named in the weight file
// header: each perspective's input is keyed by its own king square
// together with pieces on the board (by type, color, and square) and
// every piece held in hand (by type, color, and a thermometer-coded
// count), giving captured pieces their own feature slots instead of
// folding them into the board-square space.

// FeatureSet selects the input-plane layout a network was trained
// with. HalfKP keys every non-king piece by the friendly king's
// square; HalfKA additionally gives both kings piece planes of their
// own; HalfKA_hm folds the king's square through a horizontal mirror,
// halving the king-bucket axis for positions that are left/right
// reflections of each other.
type FeatureSet uint8

const (
	HalfKP FeatureSet = iota
	HalfKA
	HalfKAhm
)

// ParseFeatureSet maps a header FEATURES value to its FeatureSet. An
// empty name defaults to HalfKP.
func ParseFeatureSet(name string) (FeatureSet, bool) {
	switch name {
	case "", "HalfKP":
		return HalfKP, true
	case "HalfKA":
		return HalfKA, true
	case "HalfKA_hm":
		return HalfKAhm, true
	default:
		return HalfKP, false
	}
}

func (fs FeatureSet) String() string {
	switch fs {
	case HalfKA:
		return "HalfKA"
	case HalfKAhm:
		return "HalfKA_hm"
	default:
		return "HalfKP"
	}
}

const (
	maxHandCount = 18
	handFeatures = 2 * shogi.NumPieceKinds * maxHandCount
)

// pieceKindsPerColor is the number of board piece planes per color:
// HalfKP has no king planes, the HalfKA layouts give kings their own.
func (fs FeatureSet) pieceKindsPerColor() int {
	if fs == HalfKP {
		return 13
	}
	return 14
}

func (fs FeatureSet) boardFeatures() int {
	return 2 * fs.pieceKindsPerColor() * shogi.NumSquares
}

// FeEnd is the size of one perspective's piece-feature space, before
// multiplying by the king bucket.
func (fs FeatureSet) FeEnd() int {
	return fs.boardFeatures() + handFeatures
}

// kingBuckets is the number of distinct own-king placements the input
// distinguishes: every square, or the mirror-folded half board.
func (fs FeatureSet) kingBuckets() int {
	if fs == HalfKAhm {
		return 45
	}
	return shogi.NumSquares
}

// InputSize is the total input dimension per perspective.
func (fs FeatureSet) InputSize() int {
	return fs.kingBuckets() * fs.FeEnd()
}

// kingBucket maps the perspective's king square to its bucket index,
// also reporting whether the half-mirror layouts folded the board (in
// which case every piece square must be mirrored the same way).
func (fs FeatureSet) kingBucket(kingSq shogi.Square) (int, bool) {
	if fs != HalfKAhm {
		return int(kingSq), false
	}
	f, r := kingSq.File(), kingSq.Rank()
	mirrored := f > 5
	if mirrored {
		f = 10 - f
	}
	return (f-1)*shogi.NumRanks + (r - 1), mirrored
}

func orientSquare(sq shogi.Square, mirrored bool) shogi.Square {
	if !mirrored {
		return sq
	}
	return shogi.NewSquare(10-sq.File(), sq.Rank())
}

// kindIndex maps a piece type to its plane within one color's block.
func (fs FeatureSet) kindIndex(pt shogi.PieceType) int {
	if fs == HalfKP && pt > shogi.King {
		return int(pt) - 2 // skip NoPieceType(0) and the absent King plane
	}
	return int(pt) - 1 // skip NoPieceType(0)
}

// boardFeatureIndex returns the piece-feature offset (within one
// perspective's FeEnd-sized block) for a board piece.
func (fs FeatureSet) boardFeatureIndex(pc shogi.Piece, sq shogi.Square, mirrored bool) int {
	colorOffset := 0
	if pc.Color() == shogi.White {
		colorOffset = fs.pieceKindsPerColor() * shogi.NumSquares
	}
	return colorOffset + fs.kindIndex(pc.Type())*shogi.NumSquares + int(orientSquare(sq, mirrored))
}

// handFeatureIndex returns the piece-feature offset for the count-th
// copy of kind pt held by color c (count is 1-indexed: the feature for
// "at least 1 in hand", "at least 2 in hand", etc — thermometer coding,
// which keeps hand counts order-preserving in the input space).
func (fs FeatureSet) handFeatureIndex(c shogi.Color, pt shogi.PieceType, count int) int {
	kind := shogi.HandKindIndex(pt)
	colorOffset := 0
	if c == shogi.White {
		colorOffset = shogi.NumPieceKinds * maxHandCount
	}
	return fs.boardFeatures() + colorOffset + kind*maxHandCount + (count - 1)
}

// includesPiece reports whether pt gets a board feature at all under fs.
func (fs FeatureSet) includesPiece(pt shogi.PieceType) bool {
	return fs != HalfKP || pt != shogi.King
}

// ActiveFeatures appends every active feature index for perspective's
// half of the input, keyed by perspective's own king.
func (fs FeatureSet) ActiveFeatures(pos *shogi.Position, perspective shogi.Color, out []int32) []int32 {
	bucket, mirrored := fs.kingBucket(pos.KingSquare[perspective])
	base := bucket * fs.FeEnd()
	for sq := shogi.Square(0); int(sq) < shogi.NumSquares; sq++ {
		pc := pos.PieceAt(sq)
		if pc == shogi.NoPiece || !fs.includesPiece(pc.Type()) {
			continue
		}
		out = append(out, int32(base+fs.boardFeatureIndex(pc, sq, mirrored)))
	}
	for _, c := range [2]shogi.Color{shogi.Black, shogi.White} {
		hand := pos.Hands[c]
		for _, pt := range [shogi.NumPieceKinds]shogi.PieceType{shogi.Pawn, shogi.Lance, shogi.Knight, shogi.Silver, shogi.Gold, shogi.Bishop, shogi.Rook} {
			n := int(hand.Count[shogi.HandKindIndex(pt)])
			for k := 1; k <= n; k++ {
				out = append(out, int32(base+fs.handFeatureIndex(c, pt, k)))
			}
		}
	}
	return out
}
