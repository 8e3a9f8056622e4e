package nnue

// Scalar tier of the kernel dispatch table (see simd.go); also the
// ground truth the SIMD-parity tests compare the faster tiers against.

func addInt16Generic(dst, src []int16) {
	for i := range dst {
		dst[i] += src[i]
	}
}

func subInt16Generic(dst, src []int16) {
	for i := range dst {
		dst[i] -= src[i]
	}
}

func addInt32Generic(dst, src []int32) {
	for i := range dst {
		dst[i] += src[i]
	}
}

func subInt32Generic(dst, src []int32) {
	for i := range dst {
		dst[i] -= src[i]
	}
}

func clippedReLUGeneric(input []int32, output []uint8, shift int) {
	for i := range input {
		v := input[i] >> shift
		if v < 0 {
			v = 0
		} else if v > 127 {
			v = 127
		}
		output[i] = uint8(v)
	}
}

func dotInt8Generic(weights []int8, inputs []uint8) int32 {
	var sum int32
	for i := range weights {
		sum += int32(weights[i]) * int32(inputs[i])
	}
	return sum
}
