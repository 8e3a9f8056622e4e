package nnue

import (
	"fmt"

	"github.com/hiraoka/shogizero/internal/shogi"
)

// Network holds a fully loaded, quantized feature-transformer plus
// affine layer stack. L2 of zero gives the first affine layer L1Size
// outputs; L3 of zero means the output layer reads that first affine
// layer's clipped-ReLU directly, with no second hidden layer.
type Network struct {
	Features FeatureSet
	L1Size   int
	L2Size   int
	L3Size   int

	FeatureBiases []int16 // [L1Size]
	FeatureWeight []int16 // [Features.InputSize() * L1Size], row-major by feature

	L1Weights []int8  // [2*L1Size * L2Size] (both perspectives concatenated)
	L1Biases  []int32 // [L2Size]
	L2Weights []int8  // [L2Size * L3Size]
	L2Biases  []int32 // [L3Size]
	OutWeights []int8 // [L3Size]
	OutBias    int32
}

// featureRow returns the weight row for feature index f (length L1Size).
func (n *Network) featureRow(f int32) []int16 {
	off := int(f) * n.L1Size
	return n.FeatureWeight[off : off+n.L1Size]
}

// randomNetwork builds a network with small deterministic pseudo-random
// weights, used when no weight file is supplied (tests, "EvalFile"
// unset).
func randomNetwork(fs FeatureSet, l1, l2, l3 int) *Network {
	n := &Network{Features: fs, L1Size: l1, L2Size: l2, L3Size: l3}
	rng := newPRNGLocal(0xC0FFEE)
	n.FeatureBiases = make([]int16, l1)
	n.FeatureWeight = make([]int16, fs.InputSize()*l1)
	for i := range n.FeatureWeight {
		n.FeatureWeight[i] = int16(rng.next()%41) - 20
	}
	out2 := l2
	if out2 == 0 {
		out2 = l1
	}
	n.L1Weights = make([]int8, 2*l1*out2)
	for i := range n.L1Weights {
		n.L1Weights[i] = int8(rng.next()%17) - 8
	}
	n.L1Biases = make([]int32, out2)
	if l3 > 0 {
		n.L2Weights = make([]int8, l2*l3)
		for i := range n.L2Weights {
			n.L2Weights[i] = int8(rng.next()%17) - 8
		}
		n.L2Biases = make([]int32, l3)
		n.OutWeights = make([]int8, l3)
	} else {
		n.OutWeights = make([]int8, out2)
	}
	for i := range n.OutWeights {
		n.OutWeights[i] = int8(rng.next()%17) - 8
	}
	return n
}

type lcg struct{ s uint64 }

func newPRNGLocal(seed uint64) *lcg { return &lcg{s: seed} }
func (r *lcg) next() uint64 {
	r.s = r.s*6364136223846793005 + 1442695040888963407
	return r.s >> 16
}

// Evaluator wraps a Network and its AccumulatorStack into the
// evaluation interface the search package consumes.
type Evaluator struct {
	Net   *Network
	Stack *AccumulatorStack
}

// NewEvaluator loads weights from path, or falls back to a random
// network when path is empty (useful for tests and a first "isready"
// before EvalFile is configured).
func NewEvaluator(path string) (*Evaluator, error) {
	var net *Network
	if path == "" {
		// Keep the placeholder architecture small: the feature transformer
		// dominates memory at one row per input feature per L1 column,
		// and nothing about a random-weight net justifies a
		// tournament-sized L1.
		net = randomNetwork(HalfKP, 64, 16, 16)
	} else {
		var err error
		net, err = LoadWeights(path)
		if err != nil {
			return nil, fmt.Errorf("load NNUE weights: %w", err)
		}
	}
	return &Evaluator{Net: net, Stack: NewAccumulatorStack(net)}, nil
}

// Evaluate returns the position's score in centipawns from stm's
// perspective.
func (e *Evaluator) Evaluate(pos *shogi.Position) int {
	stm := pos.SideToMove
	them := stm.Other()
	e.Stack.EnsureComputed(pos, stm)
	e.Stack.EnsureComputed(pos, them)
	return e.Net.forward(e.Stack.Current(), stm, them)
}

func (n *Network) forward(acc *Accumulator, stm, them shogi.Color) int {
	clipped := make([]uint8, 2*n.L1Size)
	active.clippedReLU(widen(acc.Values[stm]), clipped[:n.L1Size], 0)
	active.clippedReLU(widen(acc.Values[them]), clipped[n.L1Size:], 0)

	out2 := n.L2Size
	if out2 == 0 {
		out2 = n.L1Size
	}
	l1out := make([]int32, out2)
	for j := 0; j < out2; j++ {
		row := n.L1Weights[j*2*n.L1Size : (j+1)*2*n.L1Size]
		l1out[j] = n.L1Biases[j] + active.dotInt8(row, clipped)
	}

	if n.L3Size == 0 {
		sum := n.OutBias
		l1clipped := make([]uint8, out2)
		active.clippedReLU(l1out, l1clipped, 6)
		sum += active.dotInt8(n.OutWeights, l1clipped)
		return int(sum) * 600 / (127 * 64)
	}

	l1clipped := make([]uint8, out2)
	active.clippedReLU(l1out, l1clipped, 6)
	l2out := make([]int32, n.L3Size)
	for j := 0; j < n.L3Size; j++ {
		row := n.L2Weights[j*out2 : (j+1)*out2]
		l2out[j] = n.L2Biases[j] + active.dotInt8(row, l1clipped)
	}
	l2clipped := make([]uint8, n.L3Size)
	active.clippedReLU(l2out, l2clipped, 6)
	sum := n.OutBias + active.dotInt8(n.OutWeights, l2clipped)
	return int(sum) * 600 / (127 * 64)
}

// widen converts an int16 slice to int32 for the shared clippedReLU kernel.
func widen(in []int16) []int32 {
	out := make([]int32, len(in))
	for i, v := range in {
		out[i] = int32(v)
	}
	return out
}
