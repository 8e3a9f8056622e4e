package shogi

import (
	"fmt"
	"strconv"
	"strings"
)

// StartSFEN is the SFEN string for the standard starting position.
const StartSFEN = "lnsgkgsnl/1r5b1/ppppppppp/9/9/9/PPPPPPPPP/1B5R1/LNSGKGSNL b - 1"

var sfenPieceType = map[byte]PieceType{
	'P': Pawn, 'L': Lance, 'N': Knight, 'S': Silver, 'G': Gold,
	'B': Bishop, 'R': Rook, 'K': King,
}

// ParseSFEN builds a Position from an SFEN string: board, side to move,
// hands, move number.
func ParseSFEN(sfen string) (*Position, error) {
	fields := strings.Fields(sfen)
	if len(fields) < 3 {
		return nil, fmt.Errorf("invalid sfen: %q", sfen)
	}
	p := &Position{}
	for i := range p.Board {
		p.Board[i] = NoPiece
	}

	ranks := strings.Split(fields[0], "/")
	if len(ranks) != 9 {
		return nil, fmt.Errorf("invalid sfen board: %q", fields[0])
	}
	for ri, rankStr := range ranks {
		rank := ri + 1
		file := 9
		promo := false
		for i := 0; i < len(rankStr); i++ {
			ch := rankStr[i]
			switch {
			case ch == '+':
				promo = true
			case ch >= '1' && ch <= '9':
				n, _ := strconv.Atoi(string(ch))
				file -= n
			default:
				c := Black
				upper := ch
				if ch >= 'a' && ch <= 'z' {
					c = White
					upper = ch - ('a' - 'A')
				}
				pt, ok := sfenPieceType[upper]
				if !ok {
					return nil, fmt.Errorf("invalid sfen piece: %c", ch)
				}
				if promo {
					pt = pt.Promote()
					promo = false
				}
				p.Board[NewSquare(file, rank)] = NewPiece(c, pt)
				file--
			}
		}
	}

	switch fields[1] {
	case "b":
		p.SideToMove = Black
	case "w":
		p.SideToMove = White
	default:
		return nil, fmt.Errorf("invalid side to move: %q", fields[1])
	}

	if fields[2] != "-" {
		count := 0
		for i := 0; i < len(fields[2]); i++ {
			ch := fields[2][i]
			if ch >= '0' && ch <= '9' {
				count = count*10 + int(ch-'0')
				continue
			}
			n := count
			if n == 0 {
				n = 1
			}
			c := Black
			upper := ch
			if ch >= 'a' && ch <= 'z' {
				c = White
				upper = ch - ('a' - 'A')
			}
			pt, ok := sfenPieceType[upper]
			if !ok {
				return nil, fmt.Errorf("invalid hand piece: %c", ch)
			}
			p.Hands[c].Count[HandKindIndex(pt)] = uint8(n)
			count = 0
		}
	}

	if len(fields) >= 4 {
		if n, err := strconv.Atoi(fields[3]); err == nil {
			p.Ply = n - 1
		}
	}

	p.recomputeDerived()
	p.history = make([]uint64, 0, 256)
	p.history = append(p.history, p.Hash)
	return p, nil
}

// SFEN serializes p back to SFEN notation.
func (p *Position) SFEN() string {
	var sb strings.Builder
	for rank := 1; rank <= 9; rank++ {
		empty := 0
		for file := 9; file >= 1; file-- {
			pc := p.Board[NewSquare(file, rank)]
			if pc == NoPiece {
				empty++
				continue
			}
			if empty > 0 {
				sb.WriteString(strconv.Itoa(empty))
				empty = 0
			}
			sb.WriteString(pc.SFENChar())
		}
		if empty > 0 {
			sb.WriteString(strconv.Itoa(empty))
		}
		if rank != 9 {
			sb.WriteByte('/')
		}
	}
	sb.WriteByte(' ')
	sb.WriteString(p.SideToMove.String())
	sb.WriteByte(' ')

	handStr := ""
	for _, pt := range []PieceType{Rook, Bishop, Gold, Silver, Knight, Lance, Pawn} {
		n := p.Hands[Black].Count[HandKindIndex(pt)]
		if n > 0 {
			if n > 1 {
				handStr += strconv.Itoa(int(n))
			}
			handStr += string(pieceTypeChar[pt])
		}
	}
	for _, pt := range []PieceType{Rook, Bishop, Gold, Silver, Knight, Lance, Pawn} {
		n := p.Hands[White].Count[HandKindIndex(pt)]
		if n > 0 {
			if n > 1 {
				handStr += strconv.Itoa(int(n))
			}
			handStr += strings.ToLower(string(pieceTypeChar[pt]))
		}
	}
	if handStr == "" {
		handStr = "-"
	}
	sb.WriteString(handStr)
	sb.WriteByte(' ')
	sb.WriteString(strconv.Itoa(p.Ply + 1))
	return sb.String()
}
