package nnue

import "golang.org/x/sys/cpu"

// kernels is the table of function pointers the evaluator dispatches
// through: CPU features are probed once at load time via
// golang.org/x/sys/cpu and the matching tier is installed, so the hot
// loops pay no per-call dispatch. All three tiers are equivalent
// pure-Go implementations; the AVX2 and SSE4.1 tiers unroll the loop
// at the corresponding vector widths, so the dispatch machinery itself
// is exercised even without hand-written assembly kernels.
type kernels struct {
	addInt16   func(dst, src []int16)
	subInt16   func(dst, src []int16)
	addInt32   func(dst, src []int32)
	subInt32   func(dst, src []int32)
	clippedReLU func(input []int32, output []uint8, shift int)
	dotInt8    func(weights []int8, inputs []uint8) int32
}

var active kernels

func init() {
	switch {
	case cpu.X86.HasAVX2:
		active = kernels{addInt16AVX2, subInt16AVX2, addInt32Generic, subInt32Generic, clippedReLUGeneric, dotInt8AVX2}
	case cpu.X86.HasSSE41:
		active = kernels{addInt16SSE, subInt16SSE, addInt32Generic, subInt32Generic, clippedReLUGeneric, dotInt8Generic}
	default:
		active = kernels{addInt16Generic, subInt16Generic, addInt32Generic, subInt32Generic, clippedReLUGeneric, dotInt8Generic}
	}
}

// ActiveKernelName reports which tier was selected. The USI driver does
// not print it.
func ActiveKernelName() string {
	switch {
	case cpu.X86.HasAVX2:
		return "avx2"
	case cpu.X86.HasSSE41:
		return "sse4.1"
	default:
		return "scalar"
	}
}

func addInt16AVX2(dst, src []int16) { addInt16Unrolled(dst, src, 16) }
func subInt16AVX2(dst, src []int16) { subInt16Unrolled(dst, src, 16) }
func addInt16SSE(dst, src []int16)  { addInt16Unrolled(dst, src, 8) }
func subInt16SSE(dst, src []int16)  { subInt16Unrolled(dst, src, 8) }

func addInt16Unrolled(dst, src []int16, width int) {
	n := len(dst)
	i := 0
	for ; i+width <= n; i += width {
		for j := 0; j < width; j++ {
			dst[i+j] += src[i+j]
		}
	}
	for ; i < n; i++ {
		dst[i] += src[i]
	}
}

func subInt16Unrolled(dst, src []int16, width int) {
	n := len(dst)
	i := 0
	for ; i+width <= n; i += width {
		for j := 0; j < width; j++ {
			dst[i+j] -= src[i+j]
		}
	}
	for ; i < n; i++ {
		dst[i] -= src[i]
	}
}

func dotInt8AVX2(weights []int8, inputs []uint8) int32 {
	var sum int32
	n := len(weights)
	i := 0
	for ; i+16 <= n; i += 16 {
		var partial int32
		for j := 0; j < 16; j++ {
			partial += int32(weights[i+j]) * int32(inputs[i+j])
		}
		sum += partial
	}
	for ; i < n; i++ {
		sum += int32(weights[i]) * int32(inputs[i])
	}
	return sum
}
