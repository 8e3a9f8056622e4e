package shogi

import "fmt"

// Square is one of the 81 board squares, encoded as (file-1)*9 + (rank-1)
// with file and rank both in [1,9]. File 9 is the leftmost file from
// Black's point of view (as in USI notation); rank 1 is the "a" rank.
type Square uint8

const (
	NumSquares       = 81
	NumFiles         = 9
	NumRanks         = 9
	NoSquare   Square = 255
)

// NewSquare builds a square from 1-indexed file and rank.
func NewSquare(file, rank int) Square {
	return Square((file-1)*NumFiles + (rank - 1))
}

// File returns the 1-indexed file (1-9).
func (sq Square) File() int { return int(sq)/NumFiles + 1 }

// Rank returns the 1-indexed rank (1-9, "a" through "i").
func (sq Square) Rank() int { return int(sq)%NumFiles + 1 }

// IsValid reports whether sq is one of the 81 real squares.
func (sq Square) IsValid() bool { return int(sq) < NumSquares }

// String renders USI square notation, e.g. "7g".
func (sq Square) String() string {
	if !sq.IsValid() {
		return "*"
	}
	return fmt.Sprintf("%d%c", sq.File(), 'a'+sq.Rank()-1)
}

// ParseSquare parses USI square notation, e.g. "7g" -> file 7, rank g(=7).
func ParseSquare(s string) (Square, error) {
	if len(s) != 2 {
		return NoSquare, fmt.Errorf("invalid square: %q", s)
	}
	file := int(s[0] - '0')
	rank := int(s[1]-'a') + 1
	if file < 1 || file > 9 || rank < 1 || rank > 9 {
		return NoSquare, fmt.Errorf("invalid square: %q", s)
	}
	return NewSquare(file, rank), nil
}

// Mirror returns the square rotated 180 degrees, used to view the board
// from the other side (e.g. for promotion-zone and pawn-direction checks).
func (sq Square) Mirror() Square {
	return NewSquare(NumFiles+1-sq.File(), NumRanks+1-sq.Rank())
}

// InPromotionZone reports whether sq lies in c's promotion zone: ranks
// 1-3 for Black, ranks 7-9 for White.
func (sq Square) InPromotionZone(c Color) bool {
	r := sq.Rank()
	if c == Black {
		return r <= 3
	}
	return r >= 7
}

// onBoard reports whether 1-indexed file/rank coordinates are on the board.
func onBoard(file, rank int) bool {
	return file >= 1 && file <= 9 && rank >= 1 && rank <= 9
}
