package shogi

import "testing"

// perft counts leaf nodes at the given depth, the standard way to
// exercise move generation and do/undo correctness together.
func perft(p *Position, depth int) int64 {
	if depth == 0 {
		return 1
	}
	var ml MoveList
	p.GenerateLegal(&ml)
	if depth == 1 {
		return int64(ml.Len())
	}
	var nodes int64
	for i := 0; i < ml.Len(); i++ {
		m := ml.Get(i)
		undo := p.DoMove(m)
		nodes += perft(p, depth-1)
		p.UndoMove(m, undo)
	}
	return nodes
}

// TestPerftStartingPositionDepth1 checks the well-known fact that Black
// has exactly 30 legal moves from the standard starting position.
func TestPerftStartingPositionDepth1(t *testing.T) {
	pos := NewPosition()
	if got := perft(pos, 1); got != 30 {
		t.Errorf("perft(1) = %d, want 30", got)
	}
}

// TestPerftStartingPositionDepth2 checks the standard depth-2 node count.
func TestPerftStartingPositionDepth2(t *testing.T) {
	pos := NewPosition()
	if got := perft(pos, 2); got != 900 {
		t.Errorf("perft(2) = %d, want 900", got)
	}
}

// TestPerftStartingPositionDepth3 checks the published depth-3 count.
func TestPerftStartingPositionDepth3(t *testing.T) {
	pos := NewPosition()
	if got := perft(pos, 3); got != 25470 {
		t.Errorf("perft(3) = %d, want 25470", got)
	}
}

// TestPerftStartingPositionDepth4 checks the published depth-4 count,
// the shallowest depth whose tree passes through positions with a piece
// in hand (after Black's ply-3 captures); no drop is playable before
// depth 5.
func TestPerftStartingPositionDepth4(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping deep perft in -short mode")
	}
	pos := NewPosition()
	if got := perft(pos, 4); got != 719731 {
		t.Errorf("perft(4) = %d, want 719731", got)
	}
}

// TestDoUndoRoundTrip verifies that applying and unapplying every legal
// move from the starting position restores the Zobrist hash exactly,
// the minimum bar for a correct make/unmake implementation.
func TestDoUndoRoundTrip(t *testing.T) {
	pos := NewPosition()
	originalHash := pos.Hash
	var ml MoveList
	pos.GenerateLegal(&ml)
	if ml.Len() == 0 {
		t.Fatal("expected legal moves from starting position")
	}
	for i := 0; i < ml.Len(); i++ {
		m := ml.Get(i)
		undo := pos.DoMove(m)
		pos.UndoMove(m, undo)
		if pos.Hash != originalHash {
			t.Fatalf("move %s: hash mismatch after undo: got %x want %x", m, pos.Hash, originalHash)
		}
	}
}

// TestNifuIllegal checks that a pawn cannot be dropped on a file that
// already holds one of the dropping side's unpromoted pawns.
func TestNifuIllegal(t *testing.T) {
	pos, err := ParseSFEN("lnsgkgsnl/1r5b1/p1ppppppp/9/9/9/PPPPPPPPP/1B5R1/LNSGKGSNL b P 1")
	if err != nil {
		t.Fatal(err)
	}
	var ml MoveList
	pos.GenerateLegal(&ml)
	for i := 0; i < ml.Len(); i++ {
		m := ml.Get(i)
		if m.IsDrop() && m.DropPiece() == Pawn && m.To().File() == 9 {
			t.Errorf("nifu violation not filtered: %s", m)
		}
	}
}

// TestSFENRoundTrip checks that parsing and re-serializing the starting
// SFEN reproduces it.
func TestSFENRoundTrip(t *testing.T) {
	pos, err := ParseSFEN(StartSFEN)
	if err != nil {
		t.Fatal(err)
	}
	if got := pos.SFEN(); got != StartSFEN {
		t.Errorf("SFEN round trip = %q, want %q", got, StartSFEN)
	}
}
