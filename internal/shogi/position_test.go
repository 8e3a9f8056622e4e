package shogi

import "testing"

func TestStartingPositionNotInCheck(t *testing.T) {
	pos := NewPosition()
	if pos.InCheck(Black) || pos.InCheck(White) {
		t.Fatal("neither side should be in check at game start")
	}
}

func TestDropGoldGivesCheck(t *testing.T) {
	// White king alone on 5a, Black to move with a Gold in hand and its
	// own king on 5i far away; dropping Gold on 5b should check the king.
	pos, err := ParseSFEN("4k4/9/9/9/9/9/9/9/4K4 b G 1")
	if err != nil {
		t.Fatal(err)
	}
	to := NewSquare(5, 2)
	m := NewDropMove(Gold, to)
	var ml MoveList
	pos.GenerateLegal(&ml)
	if !ml.Contains(m) {
		t.Fatalf("expected gold drop on 5b to be legal, moves: %v", ml.Slice())
	}
	undo := pos.DoMove(m)
	if !pos.InCheck(White) {
		t.Error("expected white king to be in check after gold drop")
	}
	pos.UndoMove(m, undo)
}

func TestCanDeclareWin(t *testing.T) {
	// Black king plus ten other pieces inside White's camp: two rooks
	// and eight pawns on the board (18 points) and two bishops in hand
	// (10 points) reach Black's 28-point declaration threshold.
	pos, err := ParseSFEN("KRR6/PPPP5/4PPPP1/9/9/9/9/9/4k4 b 2B 1")
	if err != nil {
		t.Fatal(err)
	}
	if got := pos.ImpasseScore(Black); got != 28 {
		t.Fatalf("impasse points = %d, want 28 (18 on the board + 10 in hand)", got)
	}
	if !pos.CanDeclareWin() {
		t.Error("expected the declaration conditions to be met")
	}

	// Without the bishops in hand the count drops to 18 < 28.
	short, err := ParseSFEN("KRR6/PPPP5/4PPPP1/9/9/9/9/9/4k4 b - 1")
	if err != nil {
		t.Fatal(err)
	}
	if short.CanDeclareWin() {
		t.Error("18 points must not satisfy Black's 28-point threshold")
	}
}

func TestSennichiteDetection(t *testing.T) {
	pos := NewPosition()
	// Shuffle a pair of generals out and back three times, so the
	// starting position occurs four times in all.
	moves := []string{"3i4h", "3a4b", "4h3i", "4b3a"}
	for rep := 0; rep < 3; rep++ {
		for _, ms := range moves {
			m, err := ParseMove(ms, pos)
			if err != nil {
				t.Fatal(err)
			}
			pos.DoMove(m)
		}
	}
	if !pos.IsSennichite() {
		t.Error("expected sennichite after repeating the position four times")
	}
}
