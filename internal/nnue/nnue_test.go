package nnue

import (
	"sort"
	"testing"

	"github.com/hiraoka/shogizero/internal/shogi"
)

func TestWeightsRoundTrip(t *testing.T) {
	net := randomNetwork(HalfKP, 32, 16, 16)
	data, err := EncodeWeights(net)
	if err != nil {
		t.Fatal(err)
	}
	got, err := LoadWeightsFromBytes(data)
	if err != nil {
		t.Fatal(err)
	}
	if got.L1Size != net.L1Size || got.L2Size != net.L2Size || got.L3Size != net.L3Size {
		t.Fatalf("dims mismatch: got (%d,%d,%d) want (%d,%d,%d)", got.L1Size, got.L2Size, got.L3Size, net.L1Size, net.L2Size, net.L3Size)
	}
	if len(got.FeatureWeight) != len(net.FeatureWeight) {
		t.Fatalf("feature weight length mismatch")
	}
}

func TestPlaceholderDimFallback(t *testing.T) {
	net := randomNetwork(HalfKP, 16, 32, 32)
	data, err := EncodeWeights(net)
	if err != nil {
		t.Fatal(err)
	}
	// Corrupt the header to declare the placeholder (256,256) dims while
	// the payload is still sized for the true (32,32) architecture.
	corrupted := []byte("NNUE\nVERSION 1\nFEATURES HalfKP\nACC_DIM 16\nL2 256\nL3 256\nACTIVATION ClippedReLU\nFORMAT int8\nEND_HEADER\n")
	headerEnd := indexEndHeader(data)
	corrupted = append(corrupted, data[headerEnd:]...)

	got, err := LoadWeightsFromBytes(corrupted)
	if err != nil {
		t.Fatalf("expected placeholder-dim recovery to succeed: %v", err)
	}
	if got.L2Size != 32 || got.L3Size != 32 {
		t.Fatalf("recovered dims = (%d,%d), want (32,32)", got.L2Size, got.L3Size)
	}
}

func TestFeatureSetLoading(t *testing.T) {
	t.Run("each supported set round-trips", func(t *testing.T) {
		for _, fs := range []FeatureSet{HalfKP, HalfKA, HalfKAhm} {
			net := randomNetwork(fs, 16, 16, 16)
			data, err := EncodeWeights(net)
			if err != nil {
				t.Fatalf("%s: encode: %v", fs, err)
			}
			got, err := LoadWeightsFromBytes(data)
			if err != nil {
				t.Fatalf("%s: load: %v", fs, err)
			}
			if got.Features != fs {
				t.Fatalf("loaded feature set = %s, want %s", got.Features, fs)
			}
			if len(got.FeatureWeight) != fs.InputSize()*16 {
				t.Fatalf("%s: transformer sized %d, want %d", fs, len(got.FeatureWeight), fs.InputSize()*16)
			}
		}
	})

	t.Run("unknown set rejected", func(t *testing.T) {
		net := randomNetwork(HalfKP, 16, 16, 16)
		data, err := EncodeWeights(net)
		if err != nil {
			t.Fatal(err)
		}
		swapped := []byte("NNUE\nVERSION 1\nFEATURES FullKAS\nACC_DIM 16\nL2 16\nL3 16\nACTIVATION ClippedReLU\nFORMAT int8\nEND_HEADER\n")
		swapped = append(swapped, data[indexEndHeader(data):]...)
		if _, err := LoadWeightsFromBytes(swapped); err == nil {
			t.Fatal("an unknown feature set name must fail loading")
		}
	})

	t.Run("mislabeled set caught by size check", func(t *testing.T) {
		// A HalfKA header over a HalfKP-sized payload must fail rather
		// than mis-slice the transformer.
		net := randomNetwork(HalfKP, 16, 16, 16)
		data, err := EncodeWeights(net)
		if err != nil {
			t.Fatal(err)
		}
		swapped := []byte("NNUE\nVERSION 1\nFEATURES HalfKA\nACC_DIM 16\nL2 16\nL3 16\nACTIVATION ClippedReLU\nFORMAT int8\nEND_HEADER\n")
		swapped = append(swapped, data[indexEndHeader(data):]...)
		if _, err := LoadWeightsFromBytes(swapped); err == nil {
			t.Fatal("a HalfKA header over a HalfKP payload must fail the size check")
		}
	})
}

func TestTruncatedPayloadRejected(t *testing.T) {
	net := randomNetwork(HalfKP, 16, 16, 16)
	data, err := EncodeWeights(net)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := LoadWeightsFromBytes(data[:len(data)-8]); err == nil {
		t.Fatal("expected a truncated payload to fail loading")
	}
}

func indexEndHeader(data []byte) int {
	marker := []byte("END_HEADER\n")
	for i := 0; i+len(marker) <= len(data); i++ {
		match := true
		for j, b := range marker {
			if data[i+j] != b {
				match = false
				break
			}
		}
		if match {
			return i + len(marker)
		}
	}
	return 0
}

// playAndPush parses each USI move, verifies it is legal, and advances
// both the position and the accumulator stack the way the search does.
func playAndPush(t *testing.T, pos *shogi.Position, stack *AccumulatorStack, moves []string) {
	t.Helper()
	for _, ms := range moves {
		m, err := shogi.ParseMove(ms, pos)
		if err != nil {
			t.Fatalf("parse %q: %v", ms, err)
		}
		var legal shogi.MoveList
		pos.GenerateLegal(&legal)
		if !legal.Contains(m) {
			t.Fatalf("scripted move %q is not legal in %s", ms, pos.SFEN())
		}
		dirty := ComputeDirtyState(pos, m)
		pos.DoMove(m)
		stack.Push(dirty)
	}
}

func requireAccumulatorsMatch(t *testing.T, net *Network, stack *AccumulatorStack, pos *shogi.Position) {
	t.Helper()
	stack.EnsureComputed(pos, shogi.Black)
	stack.EnsureComputed(pos, shogi.White)

	fresh := NewAccumulatorStack(net)
	fresh.RefreshRoot(pos)

	for _, c := range [2]shogi.Color{shogi.Black, shogi.White} {
		inc := stack.Current().Values[c]
		direct := fresh.Current().Values[c]
		for i := range inc {
			if inc[i] != direct[i] {
				t.Fatalf("perspective %v: accumulator mismatch at %d: incremental=%d direct=%d", c, i, inc[i], direct[i])
			}
		}
	}
}

// TestAccumulatorEquivalenceQuietMoves checks the one-piece incremental
// diff against a full recomputation.
func TestAccumulatorEquivalenceQuietMoves(t *testing.T) {
	net := randomNetwork(HalfKP, 32, 0, 0)
	stack := NewAccumulatorStack(net)
	pos := shogi.NewPosition()
	stack.RefreshRoot(pos)

	playAndPush(t, pos, stack, []string{"7g7f", "3c3d", "2g2f", "8c8d"})
	requireAccumulatorsMatch(t, net, stack, pos)
}

// TestAccumulatorEquivalenceCapturesAndDrops walks a sequence containing
// a promoting capture, a recapture, and a drop — every hand-thermometer
// transition the diff path supports — and checks the incrementally
// maintained accumulator stays exactly equal to a from-scratch refresh.
func TestAccumulatorEquivalenceCapturesAndDrops(t *testing.T) {
	net := randomNetwork(HalfKP, 32, 0, 0)
	stack := NewAccumulatorStack(net)
	pos := shogi.NewPosition()
	stack.RefreshRoot(pos)

	playAndPush(t, pos, stack, []string{"7g7f", "3c3d", "8h2b+", "3a2b", "B*5e"})
	requireAccumulatorsMatch(t, net, stack, pos)
}

// TestAccumulatorKingMoveForcesRefresh ensures a king move invalidates
// the moving side's incremental chain without corrupting either
// perspective's values.
func TestAccumulatorKingMoveForcesRefresh(t *testing.T) {
	net := randomNetwork(HalfKP, 32, 0, 0)
	stack := NewAccumulatorStack(net)
	pos := shogi.NewPosition()
	stack.RefreshRoot(pos)

	playAndPush(t, pos, stack, []string{"7g7f", "3c3d", "5i5h", "5a4b"})
	requireAccumulatorsMatch(t, net, stack, pos)
}

// TestAccumulatorEquivalenceAcrossFeatureSets replays the capture/drop
// and king-move sequences under every feature-set layout: HalfKA must
// track the opponent king's own feature plane incrementally, and
// HalfKA_hm must keep its mirror fold consistent between a refresh and
// the diffs applied on top of it.
func TestAccumulatorEquivalenceAcrossFeatureSets(t *testing.T) {
	sequences := map[string][]string{
		"captures and drops": {"7g7f", "3c3d", "8h2b+", "3a2b", "B*5e"},
		// The white king wanders while Black's never moves, so Black's
		// chain must fold the opponent-king plane diffs in incrementally.
		"opponent king moves": {"7g7f", "5a4b", "2g2f", "4b3b"},
	}
	for _, fs := range []FeatureSet{HalfKA, HalfKAhm} {
		for name, seq := range sequences {
			t.Run(fs.String()+"/"+name, func(t *testing.T) {
				net := randomNetwork(fs, 32, 0, 0)
				stack := NewAccumulatorStack(net)
				pos := shogi.NewPosition()
				stack.RefreshRoot(pos)

				playAndPush(t, pos, stack, seq)
				requireAccumulatorsMatch(t, net, stack, pos)
			})
		}
	}
}

// TestHalfKAhmMirrorFold: king placements that are horizontal mirror
// images of each other must land in the same bucket, and the piece
// squares must fold with the king.
func TestHalfKAhmMirrorFold(t *testing.T) {
	left, errL := shogi.ParseSFEN("2k6/9/9/9/4p4/9/9/9/2K6 b - 1")
	if errL != nil {
		t.Fatal(errL)
	}
	right, errR := shogi.ParseSFEN("6k2/9/9/9/4p4/9/9/9/6K2 b - 1")
	if errR != nil {
		t.Fatal(errR)
	}
	lf := HalfKAhm.ActiveFeatures(left, shogi.Black, nil)
	rf := HalfKAhm.ActiveFeatures(right, shogi.Black, nil)
	if len(lf) != len(rf) {
		t.Fatalf("mirrored positions produce %d vs %d features", len(lf), len(rf))
	}
	// Board scan order differs between the two positions, so compare as sets.
	sort.Slice(lf, func(i, j int) bool { return lf[i] < lf[j] })
	sort.Slice(rf, func(i, j int) bool { return rf[i] < rf[j] })
	for i := range lf {
		if lf[i] != rf[i] {
			t.Fatalf("feature %d differs between mirror images: %d vs %d", i, lf[i], rf[i])
		}
	}
}

// TestAccumulatorPopRestoresAncestor verifies that Pop after Push leaves
// the previous frame untouched, the property that makes the stack
// discipline free on unmake.
func TestAccumulatorPopRestoresAncestor(t *testing.T) {
	net := randomNetwork(HalfKP, 32, 0, 0)
	stack := NewAccumulatorStack(net)
	pos := shogi.NewPosition()
	stack.RefreshRoot(pos)

	before := append([]int16(nil), stack.Current().Values[shogi.Black]...)

	m, err := shogi.ParseMove("7g7f", pos)
	if err != nil {
		t.Fatal(err)
	}
	dirty := ComputeDirtyState(pos, m)
	undo := pos.DoMove(m)
	stack.Push(dirty)
	stack.EnsureComputed(pos, shogi.Black)
	pos.UndoMove(m, undo)
	stack.Pop()

	after := stack.Current().Values[shogi.Black]
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("root accumulator changed at %d after push/pop: %d vs %d", i, before[i], after[i])
		}
	}
}

// TestKernelParity checks that the unrolled AVX2/SSE-tier kernels agree
// with the scalar ground truth they fall back to, the property that
// lets the dispatcher pick any tier without changing search results.
func TestKernelParity(t *testing.T) {
	t.Run("addInt16", func(t *testing.T) {
		a1 := make([]int16, 37)
		a2 := make([]int16, 37)
		src := make([]int16, 37)
		for i := range src {
			src[i] = int16(i*7 - 50)
		}
		addInt16AVX2(a1, src)
		addInt16Generic(a2, src)
		for i := range a1 {
			if a1[i] != a2[i] {
				t.Fatalf("AVX2 add diverges from scalar at %d: %d vs %d", i, a1[i], a2[i])
			}
		}
	})

	t.Run("subInt16", func(t *testing.T) {
		a1 := make([]int16, 41)
		a2 := make([]int16, 41)
		src := make([]int16, 41)
		for i := range src {
			a1[i] = int16(i * 3)
			a2[i] = int16(i * 3)
			src[i] = int16(100 - i*9)
		}
		subInt16SSE(a1, src)
		subInt16Generic(a2, src)
		for i := range a1 {
			if a1[i] != a2[i] {
				t.Fatalf("SSE sub diverges from scalar at %d: %d vs %d", i, a1[i], a2[i])
			}
		}
	})

	t.Run("dotInt8", func(t *testing.T) {
		rng := newPRNGLocal(99)
		for trial := 0; trial < 100; trial++ {
			n := 1 + int(rng.next()%97)
			w := make([]int8, n)
			in := make([]uint8, n)
			for i := range w {
				w[i] = int8(rng.next()%255) - 127
				in[i] = uint8(rng.next() % 128)
			}
			if got, want := dotInt8AVX2(w, in), dotInt8Generic(w, in); got != want {
				t.Fatalf("trial %d (n=%d): AVX2 dot = %d, scalar = %d", trial, n, got, want)
			}
		}
	})
}

func TestClippedReLUShiftAndSaturation(t *testing.T) {
	in := []int32{-500, -1, 0, 63, 64, 8191, 8192, 1 << 20}
	out := make([]uint8, len(in))
	clippedReLUGeneric(in, out, 6)
	want := []uint8{0, 0, 0, 0, 1, 127, 127, 127}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("clippedReLU(%d >> 6) = %d, want %d", in[i], out[i], want[i])
		}
	}
}

// TestEvaluatorDeterministic: the placeholder network is seeded, so two
// independently constructed evaluators must agree on every position —
// the property that keeps test runs and Lazy SMP workers consistent
// before a real weight file is configured.
func TestEvaluatorDeterministic(t *testing.T) {
	ev1, err := NewEvaluator("")
	if err != nil {
		t.Fatal(err)
	}
	ev2, err := NewEvaluator("")
	if err != nil {
		t.Fatal(err)
	}
	pos := shogi.NewPosition()
	if a, b := ev1.Evaluate(pos), ev2.Evaluate(pos); a != b {
		t.Fatalf("same seed, same position, different evals: %d vs %d", a, b)
	}
}
