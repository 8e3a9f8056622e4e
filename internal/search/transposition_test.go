package search

import (
	"sync"
	"testing"

	"github.com/hiraoka/shogizero/internal/shogi"
)

func TestEntryPackUnpackRoundTrip(t *testing.T) {
	cases := []struct {
		name  string
		move  shogi.Move
		depth int
		score int
		flag  TTFlag
		isPV  bool
		age   uint8
	}{
		{"quiet move", shogi.NewBoardMove(shogi.NewSquare(7, 7), shogi.NewSquare(7, 6), false), 12, 35, TTExact, true, 0},
		{"drop", shogi.NewDropMove(shogi.Gold, shogi.NewSquare(5, 2)), 1, -640, TTUpperBound, false, 200},
		{"promotion", shogi.NewBoardMove(shogi.NewSquare(8, 8), shogi.NewSquare(2, 2), true), 99, MateScore - 4, TTLowerBound, false, 255},
		{"no move", shogi.NoMove, 0, -MateScore + 9, TTExact, false, 17},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := unpackEntry(packEntry(tc.move, tc.depth, tc.score, tc.flag, tc.isPV, tc.age))
			if got.Move != tc.move || got.Depth != tc.depth || got.Score != tc.score ||
				got.Flag != tc.flag || got.IsPV != tc.isPV || got.Age != tc.age {
				t.Fatalf("round trip mismatch: got %+v", got)
			}
		})
	}
}

func TestStoreProbe(t *testing.T) {
	tt := NewTranspositionTable(1)
	key := uint64(0xDEADBEEFCAFEF00D)
	move := shogi.NewBoardMove(shogi.NewSquare(2, 7), shogi.NewSquare(2, 6), false)

	if _, ok := tt.Probe(key); ok {
		t.Fatal("probe of an empty table should miss")
	}
	tt.Store(key, 8, 120, TTExact, move, true)
	entry, ok := tt.Probe(key)
	if !ok {
		t.Fatal("expected a hit after store")
	}
	if entry.Move != move || entry.Depth != 8 || entry.Score != 120 || entry.Flag != TTExact {
		t.Fatalf("wrong entry after store: %+v", entry)
	}

	// A same-key store at greater depth replaces in place.
	tt.Store(key, 10, 90, TTLowerBound, move, false)
	entry, ok = tt.Probe(key)
	if !ok || entry.Depth != 10 || entry.Score != 90 || entry.Flag != TTLowerBound {
		t.Fatalf("same-key overwrite failed: %+v", entry)
	}
}

func TestNewSearchAgesEntries(t *testing.T) {
	tt := NewTranspositionTable(1)
	key := uint64(0x1234)
	tt.Store(key, 5, 50, TTExact, shogi.NoMove, false)
	tt.NewSearch()
	// The entry survives across generations; only HashFull's view of
	// freshness and the replacement metric change.
	if _, ok := tt.Probe(key); !ok {
		t.Fatal("entry should still be probeable after a generation bump")
	}
	if hf := tt.HashFull(); hf != 0 {
		t.Fatalf("stale-generation entries should not count toward hashfull, got %d", hf)
	}
}

func TestMateScoreAdjustment(t *testing.T) {
	// "Mate in 7 more plies" stored at ply 5 is made position-independent
	// (MateScore-7) in the table; reading it back at any ply must again
	// yield the distance from that node.
	stored := AdjustScoreToTT(MateScore-12, 5)
	if stored != MateScore-7 {
		t.Fatalf("position-independent form = %d, want %d", stored, MateScore-7)
	}
	if got := AdjustScoreFromTT(stored, 5); got != MateScore-12 {
		t.Fatalf("to/from TT at same ply: got %d, want %d", got, MateScore-12)
	}
	if got, want := AdjustScoreFromTT(stored, 9), MateScore-16; got != want {
		t.Fatalf("from TT at deeper ply: got %d, want %d", got, want)
	}
	if AdjustScoreToTT(250, 30) != 250 || AdjustScoreFromTT(-250, 30) != -250 {
		t.Fatal("non-mate scores must pass through unchanged")
	}
}

// TestTearTolerance hammers one small table from many goroutines. Every
// writer derives its payload move deterministically from its key, so a
// reader that gets a validated hit can verify the payload belongs to
// the key it asked for — a torn or foreign payload surfacing through
// Probe would break that pairing.
func TestTearTolerance(t *testing.T) {
	tt := NewTranspositionTable(1)
	const (
		goroutines = 16
		iterations = 20000
		keySpace   = 1 << 12 // small enough to force heavy cluster sharing
	)

	moveForKey := func(key uint64) shogi.Move {
		return shogi.Move(key % (1 << 20))
	}
	scoreForKey := func(key uint64) int {
		return int(key%20000) - 10000
	}

	var wg sync.WaitGroup
	errCh := make(chan string, goroutines)
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(seed uint64) {
			defer wg.Done()
			rng := seed*2862933555777941757 + 3037000493
			for i := 0; i < iterations; i++ {
				rng = rng*2862933555777941757 + 3037000493
				key := (rng >> 16) % keySpace
				if rng&1 == 0 {
					tt.Store(key, int(key%64), scoreForKey(key), TTFlag(key%3), moveForKey(key), false)
					continue
				}
				entry, ok := tt.Probe(key)
				if !ok {
					continue
				}
				if entry.Move != moveForKey(key) || entry.Score != scoreForKey(key) {
					select {
					case errCh <- "validated probe returned a payload from a different key":
					default:
					}
					return
				}
			}
		}(uint64(g + 1))
	}
	wg.Wait()
	select {
	case msg := <-errCh:
		t.Fatal(msg)
	default:
	}
}

func TestHashFullClimbs(t *testing.T) {
	tt := NewTranspositionTable(1)
	rng := uint64(1)
	for i := 0; i < 1_000_000; i++ {
		rng = rng*6364136223846793005 + 1442695040888963407
		tt.Store(rng, int(rng%32), int(rng%1000), TTExact, shogi.NoMove, false)
	}
	if hf := tt.HashFull(); hf < 900 {
		t.Fatalf("expected a saturated 1MB table to report near-full, got %d permille", hf)
	}
}
