package search

import (
	"sync/atomic"

	"github.com/hiraoka/shogizero/internal/shogi"
)

// TTFlag indicates the type of bound a stored score represents.
type TTFlag uint8

const (
	TTExact      TTFlag = iota // exact score
	TTLowerBound               // failed high (beta cutoff)
	TTUpperBound               // failed low
)

// TTEntry is a decoded transposition table probe result.
type TTEntry struct {
	Move  shogi.Move
	Score int
	Depth int
	Flag  TTFlag
	IsPV  bool
	Age   uint8
}

// ttSlot is one lock-free, tear-tolerant transposition slot, matching
// on the full 64-bit key (short-fingerprint schemes alias badly enough
// to poison the search with foreign entries). Concurrent workers Probe
// and Store the same slot without a mutex; a torn read (the data word
// updated between the two atomic loads below) is caught because the
// XORed check word will no longer match the freshly loaded data word,
// and the probe is treated as a miss — the same trick Stockfish's own
// TTEntry::save/read pair uses, just over a full key instead of a
// 16-bit fingerprint.
type ttSlot struct {
	checkXorData atomic.Uint64
	data         atomic.Uint64
}

// packed layout within data: bits 0-19 move, 20-27 depth+128, 28-29 flag,
// 30 isPV, 31-38 age, 39-54 score+32768 (i16 range, biased to unsigned).
func packEntry(move shogi.Move, depth, score int, flag TTFlag, isPV bool, age uint8) uint64 {
	var pv uint64
	if isPV {
		pv = 1
	}
	d := uint64(depth + 128)
	s := uint64(int64(score) + 32768)
	return uint64(move&0xFFFFF) |
		(d&0xFF)<<20 |
		uint64(flag&3)<<28 |
		pv<<30 |
		uint64(age)<<31 |
		(s&0xFFFF)<<39
}

func unpackEntry(data uint64) TTEntry {
	move := shogi.Move(data & 0xFFFFF)
	depth := int((data>>20)&0xFF) - 128
	flag := TTFlag((data >> 28) & 3)
	isPV := (data>>30)&1 != 0
	age := uint8((data >> 31) & 0xFF)
	score := int((data>>39)&0xFFFF) - 32768
	return TTEntry{Move: move, Depth: depth, Flag: flag, IsPV: isPV, Age: age, Score: score}
}

func (s *ttSlot) store(key uint64, data uint64) {
	s.data.Store(data)
	s.checkXorData.Store(key ^ data)
}

func (s *ttSlot) load(key uint64) (uint64, bool) {
	data := s.data.Load()
	check := s.checkXorData.Load()
	// An empty slot (both words zero) would otherwise validate for key 0.
	if data != 0 && check^data == key {
		return data, true
	}
	return 0, false
}

// ttCluster groups 3 slots, approximating one cache line the way
// Stockfish's Cluster does, so a probe touches one cache line instead
// of scattering across the table.
type ttCluster struct {
	slots [3]ttSlot
}

// TranspositionTable is the shared, concurrently-accessed search cache.
type TranspositionTable struct {
	clusters []ttCluster
	mask     uint64
	age      uint8
}

// NewTranspositionTable allocates a table of roughly sizeMB megabytes.
func NewTranspositionTable(sizeMB int) *TranspositionTable {
	const clusterSize = 3 * 16 // 3 slots * 2 words * 8 bytes
	numClusters := (uint64(sizeMB) * 1024 * 1024) / clusterSize
	numClusters = roundDownToPowerOf2(numClusters)
	if numClusters == 0 {
		numClusters = 1
	}
	return &TranspositionTable{
		clusters: make([]ttCluster, numClusters),
		mask:     numClusters - 1,
	}
}

func roundDownToPowerOf2(n uint64) uint64 {
	if n == 0 {
		return 0
	}
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return (n + 1) >> 1
}

// Prefetch is a no-op hint point: Go's standard library exposes no
// portable cache-prefetch intrinsic without cgo or hand-written
// assembly (see DESIGN.md). The call site in the search loop still
// issues it, so wiring in a real prefetch later needs no call-site
// changes.
func (tt *TranspositionTable) Prefetch(hash uint64) {}

// Probe looks up hash in the table.
func (tt *TranspositionTable) Probe(hash uint64) (TTEntry, bool) {
	cluster := &tt.clusters[hash&tt.mask]
	for i := range cluster.slots {
		if data, ok := cluster.slots[i].load(hash); ok {
			return unpackEntry(data), true
		}
	}
	return TTEntry{}, false
}

// Store saves a result into one of the cluster's 3 slots. Slots are
// scanned in order and the first one that is empty, or that already
// holds hash with a stored depth no greater than the new one or from an
// older generation, is written; failing that, the slot scoring worst
// under ((256+gen-slot.gen)&0xFF) - depth is replaced.
func (tt *TranspositionTable) Store(hash uint64, depth, score int, flag TTFlag, move shogi.Move, isPV bool) {
	cluster := &tt.clusters[hash&tt.mask]
	data := packEntry(move, depth, score, flag, isPV, tt.age)

	worstIdx := 0
	worstScore := -1
	for i := range cluster.slots {
		existing, ok := cluster.slots[i].load(hash)
		if ok {
			e := unpackEntry(existing)
			if depth >= e.Depth || tt.age != e.Age {
				cluster.slots[i].store(hash, data)
				return
			}
			worstVal := int((256+int(tt.age)-int(e.Age))&0xFF) - e.Depth
			if worstVal > worstScore {
				worstScore = worstVal
				worstIdx = i
			}
			continue
		}
		rawData := cluster.slots[i].data.Load()
		if rawData == 0 {
			cluster.slots[i].store(hash, data)
			return
		}
		e := unpackEntry(rawData)
		worstVal := int((256+int(tt.age)-int(e.Age))&0xFF) - e.Depth
		if worstVal > worstScore {
			worstScore = worstVal
			worstIdx = i
		}
	}
	cluster.slots[worstIdx].store(hash, data)
}

// NewSearch bumps the generation counter, marking every existing entry
// as one generation older for replacement purposes.
func (tt *TranspositionTable) NewSearch() { tt.age++ }

// Clear zeroes the whole table.
func (tt *TranspositionTable) Clear() {
	for i := range tt.clusters {
		tt.clusters[i] = ttCluster{}
	}
	tt.age = 0
}

// HashFull samples the first 999 slots (333 clusters) and reports how full the table
// is in parts per thousand, the USI "info hashfull" value.
func (tt *TranspositionTable) HashFull() int {
	sampleClusters := 1000 / 3
	if sampleClusters > len(tt.clusters) {
		sampleClusters = len(tt.clusters)
	}
	if sampleClusters == 0 {
		return 0
	}
	used, total := 0, 0
	for i := 0; i < sampleClusters; i++ {
		for j := range tt.clusters[i].slots {
			total++
			raw := tt.clusters[i].slots[j].data.Load()
			if raw != 0 && unpackEntry(raw).Age == tt.age {
				used++
			}
		}
	}
	return used * 1000 / total
}

// AdjustScoreFromTT converts a mate score read from the table (stored
// as distance-from-root-independent) into one relative to ply.
func AdjustScoreFromTT(score, ply int) int {
	if score >= MateScore-MaxPly {
		return score - ply
	}
	if score <= -MateScore+MaxPly {
		return score + ply
	}
	return score
}

// AdjustScoreToTT is the inverse of AdjustScoreFromTT, applied before storing.
func AdjustScoreToTT(score, ply int) int {
	if score >= MateScore-MaxPly {
		return score + ply
	}
	if score <= -MateScore+MaxPly {
		return score - ply
	}
	return score
}
