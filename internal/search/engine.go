// Package search implements iterative-deepening alpha-beta search over
// Shogi positions: move ordering, a lock-free transposition table, NNUE
// evaluation with incremental accumulator updates, and Lazy SMP worker
// coordination, driven by a USI frontend.
package search

import (
	"log"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hiraoka/shogizero/internal/nnue"
	"github.com/hiraoka/shogizero/internal/shogi"
)

// MaxPly bounds search depth and every fixed-size per-ply table the
// search package keeps (killers, PV, search stack).
const MaxPly = shogi.MaxPly

// MateScore and Infinity bound the search window; MateScore minus a
// position's ply-from-root gives the score reported for "mate in N".
const (
	MateScore = 30000
	Infinity  = 32000
)

// NumWorkers is the number of parallel search workers (matches CPU cores).
var NumWorkers = runtime.GOMAXPROCS(0)

// SearchInfo carries one iteration's progress for a USI "info" line.
type SearchInfo struct {
	Depth    int
	Score    int
	Nodes    uint64
	Time     time.Duration
	PV       []shogi.Move
	HashFull int // permille of hash table used
}

// SearchLimits specifies constraints on a fixed-depth or fixed-time search.
type SearchLimits struct {
	Depth    int
	Nodes    uint64
	MoveTime time.Duration
	Infinite bool
	MultiPV  int
}

// SearchResult contains the result of a single PV search.
type SearchResult struct {
	Move  shogi.Move
	Score int
	PV    []shogi.Move
	Depth int
}

// Difficulty is a coarse playing-strength knob for non-tournament use
// (USI engines are normally driven by time controls instead).
type Difficulty int

const (
	Easy Difficulty = iota
	Medium
	Hard
)

// DifficultySettings maps difficulty to search limits.
var DifficultySettings = map[Difficulty]SearchLimits{
	Easy:   {Depth: 3, MoveTime: 500 * time.Millisecond},
	Medium: {Depth: 7, MoveTime: 1 * time.Second},
	Hard:   {Depth: 40, MoveTime: 3 * time.Second},
}

// Engine coordinates a pool of Lazy SMP workers sharing a transposition
// table, shared history table, and NNUE network.
type Engine struct {
	workers       []*Worker
	tt            *TranspositionTable
	sharedHistory *SharedHistory
	stopFlag      atomic.Bool

	difficulty Difficulty

	rootPosHashes []uint64

	useNNUE bool
	nnueNet *nnue.Network

	// OnInfo, when set, is called once per completed iteration so a USI
	// driver can emit an "info" line.
	OnInfo func(SearchInfo)
}

// NewEngine creates a new engine with the given transposition table size
// in megabytes.
func NewEngine(ttSizeMB int) *Engine {
	tt := NewTranspositionTable(ttSizeMB)
	sharedHistory := NewSharedHistory()

	e := &Engine{
		tt:            tt,
		sharedHistory: sharedHistory,
		difficulty:    Medium,
		workers:       make([]*Worker, NumWorkers),
	}

	log.Printf("[search] creating %d workers (GOMAXPROCS=%d)", NumWorkers, runtime.GOMAXPROCS(0))

	for i := 0; i < NumWorkers; i++ {
		e.workers[i] = NewWorker(i, tt, sharedHistory, &e.stopFlag)
	}

	return e
}

// SetDifficulty sets the engine difficulty used by Search (the
// convenience, non-time-control entry point).
func (e *Engine) SetDifficulty(d Difficulty) { e.difficulty = d }

// SetPositionHistory records the game's position history (for sennichite
// detection) before a Search/SearchWithUSILimits call.
func (e *Engine) SetPositionHistory(hashes []uint64) {
	e.rootPosHashes = make([]uint64, len(hashes))
	copy(e.rootPosHashes, hashes)
	for _, w := range e.workers {
		w.SetRootHistory(hashes)
	}
}

// Search finds the best move using the engine's configured Difficulty.
func (e *Engine) Search(pos *shogi.Position) shogi.Move {
	limits := DifficultySettings[e.difficulty]
	return e.SearchWithLimits(pos, limits)
}

// SearchWithLimits finds the best move under depth/node/time limits,
// running Lazy SMP workers in parallel.
func (e *Engine) SearchWithLimits(pos *shogi.Position, limits SearchLimits) shogi.Move {
	e.stopFlag.Store(false)
	e.tt.NewSearch()
	for _, w := range e.workers {
		w.Reset()
	}

	startTime := time.Now()
	var bestMove shogi.Move
	var bestScore int
	var bestPV []shogi.Move
	var bestDepth int
	bestWorker := int(^uint(0) >> 1)

	maxDepth := MaxPly
	if limits.Depth > 0 {
		maxDepth = limits.Depth
	}

	var deadline time.Time
	if limits.MoveTime > 0 {
		deadline = startTime.Add(limits.MoveTime)
	}

	resultCh := make(chan WorkerResult, NumWorkers*maxDepth)
	var wg sync.WaitGroup
	for i := 0; i < NumWorkers; i++ {
		wg.Add(1)
		go e.workerSearch(i, pos, maxDepth, resultCh, &wg)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(resultCh)
		close(done)
	}()

resultLoop:
	for {
		select {
		case result, ok := <-resultCh:
			if !ok {
				break resultLoop
			}
			if result.Move != shogi.NoMove && betterRootVote(result, bestDepth, bestScore, bestWorker) {
				bestMove, bestScore, bestPV, bestDepth = result.Move, result.Score, result.PV, result.Depth
				bestWorker = result.WorkerID
				e.reportInfo(bestDepth, bestScore, bestPV, startTime)
				if bestScore > MateScore-100 || bestScore < -MateScore+100 {
					e.stopFlag.Store(true)
					break resultLoop
				}
			}
			if !deadline.IsZero() && time.Now().After(deadline) {
				e.stopFlag.Store(true)
				break resultLoop
			}
			if limits.Nodes > 0 && e.getTotalNodes() >= limits.Nodes {
				e.stopFlag.Store(true)
				break resultLoop
			}
		case <-done:
			// done closes right after resultCh; take the finished
			// iterations still buffered there before leaving.
			for result := range resultCh {
				if result.Move != shogi.NoMove && betterRootVote(result, bestDepth, bestScore, bestWorker) {
					bestMove, bestScore, bestPV, bestDepth = result.Move, result.Score, result.PV, result.Depth
					bestWorker = result.WorkerID
					e.reportInfo(bestDepth, bestScore, bestPV, startTime)
				}
			}
			break resultLoop
		}
	}

	e.stopFlag.Store(true)
	<-done
	return bestMove
}

// SearchWithUSILimits finds the best move using full USI time controls
// (btime/wtime/byoyomi/inc), tracking move stability to stop early once
// the best move has settled.
func (e *Engine) SearchWithUSILimits(pos *shogi.Position, limits USILimits, ply int) shogi.Move {
	tm := NewTimeManager()
	tm.Init(limits, pos.SideToMove, ply)

	e.stopFlag.Store(false)
	e.tt.NewSearch()
	for _, w := range e.workers {
		w.Reset()
	}

	startTime := time.Now()
	var bestMove shogi.Move
	var bestScore int
	var bestPV []shogi.Move
	var bestDepth int
	bestWorker := int(^uint(0) >> 1)
	var lastBestMove shogi.Move
	var stabilityCount, instabilityCount int

	maxDepth := MaxPly
	if limits.Depth > 0 {
		maxDepth = limits.Depth
	}

	resultCh := make(chan WorkerResult, NumWorkers*maxDepth)
	var wg sync.WaitGroup
	for i := 0; i < NumWorkers; i++ {
		wg.Add(1)
		go e.workerSearch(i, pos, maxDepth, resultCh, &wg)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(resultCh)
		close(done)
	}()

resultLoop:
	for {
		select {
		case result, ok := <-resultCh:
			if !ok {
				break resultLoop
			}
			if result.Move != shogi.NoMove && betterRootVote(result, bestDepth, bestScore, bestWorker) {
				if result.Depth > bestDepth {
					if result.Move == lastBestMove {
						stabilityCount++
						instabilityCount = 0
					} else {
						instabilityCount++
						stabilityCount = 0
						tm.AdjustForInstability(instabilityCount)
					}
					lastBestMove = result.Move
				}

				bestMove, bestScore, bestPV, bestDepth = result.Move, result.Score, result.PV, result.Depth
				bestWorker = result.WorkerID
				e.reportInfo(bestDepth, bestScore, bestPV, startTime)

				if bestScore > MateScore-100 || bestScore < -MateScore+100 {
					e.stopFlag.Store(true)
					break resultLoop
				}
				if tm.PastOptimum() && stabilityCount >= 4 {
					e.stopFlag.Store(true)
					break resultLoop
				}
			}
			if tm.ShouldStop() {
				e.stopFlag.Store(true)
				break resultLoop
			}
			if limits.Nodes > 0 && e.getTotalNodes() >= limits.Nodes {
				e.stopFlag.Store(true)
				break resultLoop
			}
		case <-done:
			break resultLoop
		}
	}

	e.stopFlag.Store(true)
	<-done
	return bestMove
}

// betterRootVote ranks one worker's iteration against the current best
// root vote: higher completed depth wins, then higher score, and an
// exact tie goes to the lower-numbered worker so the outcome doesn't
// depend on channel arrival order.
func betterRootVote(result WorkerResult, bestDepth, bestScore, bestWorker int) bool {
	if result.Depth != bestDepth {
		return result.Depth > bestDepth
	}
	if result.Score != bestScore {
		return result.Score > bestScore
	}
	return result.WorkerID < bestWorker
}

func (e *Engine) reportInfo(depth, score int, pv []shogi.Move, startTime time.Time) {
	if e.OnInfo == nil {
		return
	}
	e.OnInfo(SearchInfo{
		Depth:    depth,
		Score:    score,
		Nodes:    e.getTotalNodes(),
		Time:     time.Since(startTime),
		PV:       pv,
		HashFull: e.tt.HashFull(),
	})
}

// workerSearch runs iterative deepening in one worker goroutine, using
// depth staggering (helper workers skip shallow depths) and dynamic
// aspiration windows scaled by recent score volatility.
func (e *Engine) workerSearch(workerID int, pos *shogi.Position, maxDepth int, resultCh chan<- WorkerResult, wg *sync.WaitGroup) {
	defer wg.Done()

	worker := e.workers[workerID]
	worker.InitSearch(pos)

	var prevScore int
	startDepth := 1
	switch {
	case workerID >= 6:
		startDepth = 4
	case workerID >= 3:
		startDepth = 3
	case workerID >= 1:
		startDepth = 2
	}

	recentScores := make([]int, 0, 10)

	for depth := startDepth; depth <= maxDepth; depth++ {
		if e.stopFlag.Load() {
			return
		}

		var move shogi.Move
		var score int

		if depth >= 5 && prevScore != 0 {
			volatility := 0
			if len(recentScores) >= 2 {
				lo, hi := recentScores[0], recentScores[0]
				for _, s := range recentScores {
					if s < lo {
						lo = s
					}
					if s > hi {
						hi = s
					}
				}
				volatility = hi - lo
			}

			var window int
			switch {
			case volatility > 400:
				window = 150 + volatility/4
			case volatility < 50:
				window = 17
			default:
				window = 50 + volatility/8
			}
			window += (workerID % 8) * 3

			alpha := prevScore - window
			beta := prevScore + window
			retryCount := 0
			for {
				move, score = worker.SearchDepth(depth, alpha, beta)
				if e.stopFlag.Load() {
					return
				}
				if score <= alpha {
					retryCount++
					if retryCount >= 2 {
						alpha = -Infinity
					} else {
						alpha = prevScore - window*2
					}
				} else if score >= beta {
					retryCount++
					if retryCount >= 2 {
						beta = Infinity
					} else {
						beta = prevScore + window*2
					}
				} else {
					break
				}
				if alpha == -Infinity && beta == Infinity {
					break
				}
			}
		} else {
			move, score = worker.SearchDepth(depth, -Infinity, Infinity)
		}

		if e.stopFlag.Load() {
			return
		}

		prevScore = score
		recentScores = append(recentScores, score)
		if len(recentScores) > 10 {
			recentScores = recentScores[1:]
		}

		resultCh <- WorkerResult{
			WorkerID: workerID,
			Depth:    depth,
			Score:    score,
			Move:     move,
			PV:       worker.GetPV(),
			Nodes:    worker.Nodes(),
		}
	}
}

func (e *Engine) getTotalNodes() uint64 {
	var total uint64
	for _, w := range e.workers {
		total += w.Nodes()
	}
	return total
}

// SearchMultiPV finds the top limits.MultiPV principal variations by
// repeatedly searching with the previous best moves excluded at root.
func (e *Engine) SearchMultiPV(pos *shogi.Position, limits SearchLimits) []SearchResult {
	numPV := limits.MultiPV
	if numPV <= 0 {
		numPV = 1
	}

	results := make([]SearchResult, 0, numPV)
	excluded := make([]shogi.Move, 0, numPV)

	for i := 0; i < numPV; i++ {
		move, score, pv, depth := e.searchWithExclusions(pos, limits, excluded)
		if move == shogi.NoMove {
			break
		}
		results = append(results, SearchResult{Move: move, Score: score, PV: pv, Depth: depth})
		excluded = append(excluded, move)
	}

	for i := 0; i < len(results)-1; i++ {
		best := i
		for j := i + 1; j < len(results); j++ {
			if results[j].Score > results[best].Score {
				best = j
			}
		}
		if best != i {
			results[i], results[best] = results[best], results[i]
		}
	}
	return results
}

// searchWithExclusions runs a single-worker search (worker 0) excluding
// the given root moves, used to build up Multi-PV results one line at
// a time.
func (e *Engine) searchWithExclusions(pos *shogi.Position, limits SearchLimits, excluded []shogi.Move) (shogi.Move, int, []shogi.Move, int) {
	worker := e.workers[0]
	e.stopFlag.Store(false)
	worker.Reset()
	worker.SetExcludedMoves(excluded)
	e.tt.NewSearch()
	worker.InitSearch(pos)

	startTime := time.Now()
	var bestMove shogi.Move
	var bestScore, bestDepth int

	maxDepth := MaxPly
	if limits.Depth > 0 {
		maxDepth = limits.Depth
	}

	var deadline time.Time
	if limits.MoveTime > 0 {
		deadline = startTime.Add(limits.MoveTime)
	}

	for depth := 1; depth <= maxDepth; depth++ {
		if !deadline.IsZero() && time.Now().After(deadline) {
			break
		}
		move, score := worker.SearchDepth(depth, -Infinity, Infinity)
		if worker.stopped() {
			break
		}
		if move != shogi.NoMove {
			bestMove, bestScore, bestDepth = move, score, depth
		}
		if score > MateScore-100 || score < -MateScore+100 {
			break
		}
	}

	pv := worker.GetPV()
	worker.SetExcludedMoves(nil)
	return bestMove, bestScore, pv, bestDepth
}

// Stop signals all workers to halt their current search.
func (e *Engine) Stop() { e.stopFlag.Store(true) }

// Clear resets the transposition table and every worker's move-ordering state.
func (e *Engine) Clear() {
	e.tt.Clear()
	for _, w := range e.workers {
		w.orderer.Clear()
		w.corrHistory.Clear()
	}
}

// Perft counts leaf nodes reachable in depth plies, for move-generation testing.
func (e *Engine) Perft(pos *shogi.Position, depth int) uint64 {
	if depth == 0 {
		return 1
	}
	var moves shogi.MoveList
	pos.GenerateLegal(&moves)
	if depth == 1 {
		return uint64(moves.Len())
	}
	var nodes uint64
	for i := 0; i < moves.Len(); i++ {
		m := moves.Get(i)
		undo := pos.DoMove(m)
		nodes += e.Perft(pos, depth-1)
		pos.UndoMove(m, undo)
	}
	return nodes
}

// LoadNNUE loads an NNUE network file and initializes every worker's
// evaluator against it. An empty path loads a small deterministic
// placeholder network (useful before "setoption EvalFile" arrives).
func (e *Engine) LoadNNUE(path string) error {
	ev, err := nnue.NewEvaluator(path)
	if err != nil {
		return err
	}
	e.nnueNet = ev.Net
	e.useNNUE = true
	for _, w := range e.workers {
		w.initNNUE(e.nnueNet)
	}
	return nil
}

// SnapshotCorrection returns worker 0's correction-history table for
// persistence across USI sessions. Every worker ages the same shared
// style of table independently; worker 0's is representative enough to
// seed a fresh session with (see internal/persist).
func (e *Engine) SnapshotCorrection() []int16 { return e.workers[0].corrHistory.Snapshot() }

// RestoreCorrection seeds every worker's correction-history table from a
// previously persisted snapshot.
func (e *Engine) RestoreCorrection(table []int16) {
	for _, w := range e.workers {
		w.corrHistory.Restore(table)
	}
}

// SetHashSize rebuilds the transposition table at sizeMB megabytes,
// called from "setoption name USI_Hash value <mb>". Any in-flight search
// must be stopped first; stale entries are simply dropped.
func (e *Engine) SetHashSize(sizeMB int) {
	e.tt = NewTranspositionTable(sizeMB)
	for _, w := range e.workers {
		w.tt = e.tt
	}
}

// SetThreads rebuilds the worker pool at n threads, called from
// "setoption name Threads value <n>".
func (e *Engine) SetThreads(n int) {
	if n < 1 {
		n = 1
	}
	NumWorkers = n
	e.workers = make([]*Worker, n)
	for i := 0; i < n; i++ {
		e.workers[i] = NewWorker(i, e.tt, e.sharedHistory, &e.stopFlag)
		if e.nnueNet != nil {
			e.workers[i].initNNUE(e.nnueNet)
		}
	}
	if len(e.rootPosHashes) > 0 {
		e.SetPositionHistory(e.rootPosHashes)
	}
}

// UseNNUE returns whether NNUE evaluation is active.
func (e *Engine) UseNNUE() bool { return e.useNNUE }

// HasNNUE returns whether an NNUE network has been loaded.
func (e *Engine) HasNNUE() bool { return e.nnueNet != nil }

// ScoreToString converts a centipawn score to USI's "cp"/"mate" display form.
func ScoreToString(score int) string {
	if score > MateScore-100 {
		mateIn := (MateScore - score + 1) / 2
		return "mate " + strconv.Itoa(mateIn)
	}
	if score < -MateScore+100 {
		mateIn := (MateScore + score + 1) / 2
		return "mate -" + strconv.Itoa(mateIn)
	}
	return "cp " + strconv.Itoa(score)
}
