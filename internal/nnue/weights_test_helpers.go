package nnue

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// EncodeWeights serializes net back into the textual-header + binary
// payload format LoadWeights expects. Exercised by the package's own
// round-trip test; not needed by the USI driver at runtime.
func EncodeWeights(net *Network) ([]byte, error) {
	var header bytes.Buffer
	fmt.Fprintf(&header, "NNUE\nVERSION 1\nFEATURES %s\nACC_DIM %d\n", net.Features, net.L1Size)
	if net.L2Size > 0 {
		fmt.Fprintf(&header, "L2 %d\n", net.L2Size)
	}
	if net.L3Size > 0 {
		fmt.Fprintf(&header, "L3 %d\n", net.L3Size)
	}
	header.WriteString("ACTIVATION ClippedReLU\nFORMAT int8\nEND_HEADER\n")

	var payload bytes.Buffer
	w := func(v interface{}) error { return binary.Write(&payload, binary.LittleEndian, v) }
	for _, err := range []error{
		w(net.FeatureBiases),
		w(net.FeatureWeight),
		w(net.L1Weights),
		w(net.L1Biases),
	} {
		if err != nil {
			return nil, err
		}
	}
	if net.L3Size > 0 {
		if err := w(net.L2Weights); err != nil {
			return nil, err
		}
		if err := w(net.L2Biases); err != nil {
			return nil, err
		}
	}
	if err := w(net.OutWeights); err != nil {
		return nil, err
	}
	if err := w(net.OutBias); err != nil {
		return nil, err
	}
	return append(header.Bytes(), payload.Bytes()...), nil
}
