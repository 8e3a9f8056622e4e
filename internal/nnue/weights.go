package nnue

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// weightHeader is the parsed form of the textual header that precedes
// the binary weight payload:
//
//	NNUE
//	VERSION <n>
//	FEATURES <name>
//	ACC_DIM <L1>
//	L2 <n>          (optional, 0 if absent)
//	L3 <n>          (optional, 0 if absent)
//	ACTIVATION <name>
//	FORMAT <name>
//	END_HEADER
type weightHeader struct {
	version  int
	features string
	l1, l2, l3 int
}

// placeholderDim is the value some weight exporters leave in the header
// when the true (L2,L3) pair was decided after the header template was
// generated; the loader must detect this and recover the true dims from
// the file's actual size.
const placeholderDim = 256

// candidateDims lists the architecture sizes this engine ships support
// for, tried in order when the header declares the placeholder dims.
// A header with any other (L2,L3) that doesn't match the file's actual
// length fails loading instead.
var candidateDims = [][2]int{{32, 32}, {16, 32}, {16, 16}, {8, 32}, {0, 0}}

// LoadWeights reads and validates an NNUE weight file from path.
func LoadWeights(path string) (*Network, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read weights file: %w", err)
	}
	return LoadWeightsFromBytes(data)
}

// LoadWeightsFromBytes parses the header then the binary payload.
func LoadWeightsFromBytes(data []byte) (*Network, error) {
	headerEnd := bytes.Index(data, []byte("END_HEADER\n"))
	if headerEnd < 0 {
		return nil, fmt.Errorf("missing END_HEADER in weights file")
	}
	header, err := parseHeader(data[:headerEnd])
	if err != nil {
		return nil, err
	}
	fs, ok := ParseFeatureSet(header.features)
	if !ok {
		return nil, fmt.Errorf("unknown feature set %q", header.features)
	}
	payload := data[headerEnd+len("END_HEADER\n"):]

	l2, l3 := header.l2, header.l3
	if l2 == placeholderDim && l3 == placeholderDim {
		if got, detected := detectDims(fs, header.l1, len(payload)); detected {
			l2, l3 = got[0], got[1]
		} else {
			return nil, fmt.Errorf("weights file declares placeholder (L2,L3)=(256,256) and no known architecture matches its size (%d bytes)", len(payload))
		}
	} else if want := expectedPayloadSize(fs, header.l1, l2, l3); want != len(payload) {
		return nil, fmt.Errorf("weights file payload size %d does not match header-declared architecture (want %d bytes for %s L1=%d L2=%d L3=%d)", len(payload), want, fs, header.l1, l2, l3)
	}

	return decodePayload(payload, fs, header.l1, l2, l3)
}

func parseHeader(b []byte) (weightHeader, error) {
	var h weightHeader
	sc := bufio.NewScanner(bytes.NewReader(b))
	sawMagic := false
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		switch fields[0] {
		case "NNUE":
			sawMagic = true
		case "VERSION":
			if len(fields) < 2 {
				return h, fmt.Errorf("malformed VERSION header line")
			}
			h.version, _ = strconv.Atoi(fields[1])
		case "FEATURES":
			if len(fields) < 2 {
				return h, fmt.Errorf("malformed FEATURES header line")
			}
			h.features = fields[1]
		case "ACC_DIM":
			if len(fields) < 2 {
				return h, fmt.Errorf("malformed ACC_DIM header line")
			}
			h.l1, _ = strconv.Atoi(fields[1])
		case "L2":
			if len(fields) >= 2 {
				h.l2, _ = strconv.Atoi(fields[1])
			}
		case "L3":
			if len(fields) >= 2 {
				h.l3, _ = strconv.Atoi(fields[1])
			}
		case "ACTIVATION", "FORMAT":
			// informational only, no behavior depends on these today
		}
	}
	if !sawMagic {
		return h, fmt.Errorf("missing NNUE magic header line")
	}
	if h.l1 <= 0 {
		return h, fmt.Errorf("missing or invalid ACC_DIM")
	}
	return h, nil
}

func expectedPayloadSize(fs FeatureSet, l1, l2, l3 int) int {
	size := 2*l1 + 2*fs.InputSize()*l1 // feature biases + weights, int16
	out2 := l2
	if out2 == 0 {
		out2 = l1
	}
	size += 2 * l1 * out2 // L1 weights, int8 -> 1 byte each but both perspectives
	size += 4 * out2      // L1 biases, int32
	if l3 > 0 {
		size += out2 * l3 // L2 weights, int8
		size += 4 * l3     // L2 biases, int32
		size += l3         // out weights, int8
	} else {
		size += out2 // out weights, int8
	}
	size += 4 // out bias, int32
	return size
}

func detectDims(fs FeatureSet, l1, payloadLen int) ([2]int, bool) {
	for _, dims := range candidateDims {
		if expectedPayloadSize(fs, l1, dims[0], dims[1]) == payloadLen {
			return dims, true
		}
	}
	return [2]int{}, false
}

func decodePayload(data []byte, fs FeatureSet, l1, l2, l3 int) (*Network, error) {
	n := &Network{Features: fs, L1Size: l1, L2Size: l2, L3Size: l3}
	r := bytes.NewReader(data)

	n.FeatureBiases = make([]int16, l1)
	if err := binary.Read(r, binary.LittleEndian, &n.FeatureBiases); err != nil {
		return nil, fmt.Errorf("read feature biases: %w", err)
	}
	n.FeatureWeight = make([]int16, fs.InputSize()*l1)
	if err := binary.Read(r, binary.LittleEndian, &n.FeatureWeight); err != nil {
		return nil, fmt.Errorf("read feature weights: %w", err)
	}

	out2 := l2
	if out2 == 0 {
		out2 = l1
	}
	n.L1Weights = make([]int8, 2*l1*out2)
	if err := binary.Read(r, binary.LittleEndian, &n.L1Weights); err != nil {
		return nil, fmt.Errorf("read L1 weights: %w", err)
	}
	n.L1Biases = make([]int32, out2)
	if err := binary.Read(r, binary.LittleEndian, &n.L1Biases); err != nil {
		return nil, fmt.Errorf("read L1 biases: %w", err)
	}

	if l3 > 0 {
		n.L2Weights = make([]int8, out2*l3)
		if err := binary.Read(r, binary.LittleEndian, &n.L2Weights); err != nil {
			return nil, fmt.Errorf("read L2 weights: %w", err)
		}
		n.L2Biases = make([]int32, l3)
		if err := binary.Read(r, binary.LittleEndian, &n.L2Biases); err != nil {
			return nil, fmt.Errorf("read L2 biases: %w", err)
		}
		n.OutWeights = make([]int8, l3)
	} else {
		n.OutWeights = make([]int8, out2)
	}
	if err := binary.Read(r, binary.LittleEndian, &n.OutWeights); err != nil {
		return nil, fmt.Errorf("read output weights: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &n.OutBias); err != nil {
		return nil, fmt.Errorf("read output bias: %w", err)
	}
	return n, nil
}
