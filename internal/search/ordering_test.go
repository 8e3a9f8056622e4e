package search

import (
	"testing"

	"github.com/hiraoka/shogizero/internal/shogi"
)

func TestTTMoveOrderedFirst(t *testing.T) {
	pos := shogi.NewPosition()
	var moves shogi.MoveList
	pos.GenerateLegal(&moves)

	ttMove := mustMove(t, pos, "2g2f")
	mo := NewMoveOrderer()
	scores := mo.ScoreMoves(pos, &moves, 0, ttMove)
	PickMove(&moves, scores, 0)
	if moves.Get(0) != ttMove {
		t.Errorf("expected TT move %s first, got %s", ttMove, moves.Get(0))
	}
}

func TestCapturesOrderedBeforeQuiets(t *testing.T) {
	// Black rook can take the pawn on 5c; every other move is quiet.
	pos := mustParse(t, "4k4/9/4p4/9/4R4/9/9/9/4K4 b - 1")
	var moves shogi.MoveList
	pos.GenerateLegal(&moves)

	mo := NewMoveOrderer()
	scores := mo.ScoreMoves(pos, &moves, 0, shogi.NoMove)
	PickMove(&moves, scores, 0)
	first := moves.Get(0)
	if !isCapture(pos, first) {
		t.Errorf("expected a capture first, got %s", first)
	}
}

func TestKillersOrderedAboveOtherQuiets(t *testing.T) {
	pos := shogi.NewPosition()
	var moves shogi.MoveList
	pos.GenerateLegal(&moves)

	killer := mustMove(t, pos, "6g6f")
	mo := NewMoveOrderer()
	mo.UpdateKillers(killer, 3)

	scores := mo.ScoreMoves(pos, &moves, 3, shogi.NoMove)
	PickMove(&moves, scores, 0)
	if moves.Get(0) != killer {
		t.Errorf("expected killer %s first among quiets, got %s", killer, moves.Get(0))
	}
}

// TestPickMoveYieldsEachMoveOnce drains the picker and checks the list
// stays a permutation: no move yielded twice, none dropped.
func TestPickMoveYieldsEachMoveOnce(t *testing.T) {
	pos := shogi.NewPosition()
	var moves shogi.MoveList
	pos.GenerateLegal(&moves)

	before := map[shogi.Move]int{}
	for i := 0; i < moves.Len(); i++ {
		before[moves.Get(i)]++
	}

	mo := NewMoveOrderer()
	scores := mo.ScoreMoves(pos, &moves, 0, shogi.NoMove)
	seen := map[shogi.Move]int{}
	for i := 0; i < moves.Len(); i++ {
		PickMove(&moves, scores, i)
		seen[moves.Get(i)]++
	}
	for m, n := range seen {
		if n != 1 {
			t.Fatalf("move %s yielded %d times", m, n)
		}
		if before[m] != 1 {
			t.Fatalf("picker invented move %s", m)
		}
	}
	if len(seen) != len(before) {
		t.Fatalf("picker yielded %d distinct moves, list had %d", len(seen), len(before))
	}
}

func TestHistoryUpdateMovesScore(t *testing.T) {
	pos := shogi.NewPosition()
	good := mustMove(t, pos, "7g7f")
	bad := mustMove(t, pos, "1g1f")

	mo := NewMoveOrderer()
	mo.UpdateHistory(good, 6, true)
	mo.UpdateHistory(bad, 6, false)

	if mo.GetHistoryScore(good) <= 0 {
		t.Errorf("good quiet should have positive history, got %d", mo.GetHistoryScore(good))
	}
	if mo.GetHistoryScore(bad) >= 0 {
		t.Errorf("punished quiet should have negative history, got %d", mo.GetHistoryScore(bad))
	}
	if mo.GetHistoryScore(good) <= mo.GetHistoryScore(bad) {
		t.Error("good quiet must outrank punished quiet")
	}
}

func TestDropHistoryIndexDistinctFromBoardMoves(t *testing.T) {
	drop := shogi.NewDropMove(shogi.Pawn, shogi.NewSquare(5, 5))
	board := shogi.NewBoardMove(shogi.NewSquare(1, 1), shogi.NewSquare(5, 5), false)
	if dropHistoryIndex(drop) == dropHistoryIndex(board) {
		t.Error("drops must not share history rows with board moves")
	}
	if dropHistoryIndex(drop) < shogi.NumSquares {
		t.Error("drop history rows must live past the board-square range")
	}
}

func TestContinuationHistoryUpdateAndScore(t *testing.T) {
	ch := NewContinuationHistory()
	prev := shogi.NewPiece(shogi.White, shogi.Pawn)
	cur := shogi.NewPiece(shogi.Black, shogi.Silver)
	prevTo, curTo := shogi.NewSquare(3, 4), shogi.NewSquare(4, 5)

	ch.Update(prev, prevTo, cur, curTo, 8, true)
	if ch.Score(prev, prevTo, cur, curTo) <= 0 {
		t.Error("expected a positive continuation score after a bonus")
	}
	// Saturation: repeated bonuses must stay clamped.
	for i := 0; i < 1000; i++ {
		ch.Update(prev, prevTo, cur, curTo, 10, true)
	}
	if got := ch.Score(prev, prevTo, cur, curTo); got > maxContHist {
		t.Errorf("continuation score %d exceeds clamp %d", got, maxContHist)
	}
	if ch.Score(shogi.NoPiece, prevTo, cur, curTo) != 0 {
		t.Error("no-previous-move lookups must score 0")
	}
}
