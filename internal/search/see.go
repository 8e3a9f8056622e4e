package search

import "github.com/hiraoka/shogizero/internal/shogi"

// SEE performs static exchange evaluation on m, returning the net
// material gain (from the mover's side) of the capture sequence that
// follows if both sides keep recapturing with their least valuable
// attacker. Used to prune losing captures before quiescence search
// wastes nodes on them. The swap-off loop runs shogi.AttackersTo
// against a scratch copy of the mailbox board, so the live position is
// never mutated mid-scan.
func SEE(pos *shogi.Position, m shogi.Move) int {
	if m.IsDrop() {
		return 0
	}
	from, to := m.From(), m.To()
	attacker := pos.PieceAt(from)
	if attacker == shogi.NoPiece {
		return 0
	}
	victim := pos.PieceAt(to)
	if victim == shogi.NoPiece {
		return 0
	}

	board := pos.Board // value copy; safe to mutate for the swap-off scan

	var gain [32]int
	depth := 0
	gain[depth] = victim.Type().Value()
	if m.IsPromotion() {
		gain[depth] += attacker.Type().Promote().Value() - attacker.Type().Value()
	}

	curValue := attacker.Type().Value()
	if m.IsPromotion() {
		curValue = attacker.Type().Promote().Value()
	}
	board[from] = shogi.NoPiece
	board[to] = attacker
	side := attacker.Color().Other()

	for {
		depth++
		if depth >= len(gain) {
			break
		}
		gain[depth] = curValue - gain[depth-1]
		if max(-gain[depth-1], gain[depth]) < 0 {
			break
		}

		sq, piece, ok := leastValuableAttacker(&board, to, side)
		if !ok {
			break
		}
		board[sq] = shogi.NoPiece
		curValue = piece.Type().Value()
		board[to] = piece
		side = side.Other()
	}

	for depth--; depth > 0; depth-- {
		if -gain[depth] < gain[depth-1] {
			gain[depth-1] = -gain[depth]
		}
	}
	return gain[0]
}

// leastValuableAttacker finds the cheapest c-colored piece on board that
// attacks to, used to drive SEE's swap-off loop one recapture at a time.
func leastValuableAttacker(board *[shogi.NumSquares]shogi.Piece, to shogi.Square, c shogi.Color) (shogi.Square, shogi.Piece, bool) {
	attackers := shogi.AttackersTo(board, to, c)
	if len(attackers) == 0 {
		return 0, shogi.NoPiece, false
	}
	best := attackers[0]
	bestPiece := board[best]
	for _, sq := range attackers[1:] {
		pc := board[sq]
		if pc.Type().Value() < bestPiece.Type().Value() {
			best = sq
			bestPiece = pc
		}
	}
	return best, bestPiece, true
}
