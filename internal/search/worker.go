package search

import (
	"math"
	"sync/atomic"

	"github.com/hiraoka/shogizero/internal/nnue"
	"github.com/hiraoka/shogizero/internal/shogi"
)

// lmrReductions is a precomputed late-move-reduction table: reduction
// grows with both the remaining depth and how far down the ordered move
// list we are. The logarithmic fit is empirical, not derived; treat the
// constants as opaque.
var lmrReductions [64][64]int

func init() {
	for d := 1; d < 64; d++ {
		for m := 1; m < 64; m++ {
			lmrReductions[d][m] = int(0.5 + math.Log(float64(d))*math.Log(float64(m))/2.1)
		}
	}
}

// PVTable stores the principal variation found at each ply, filled in
// triangular form by negamax as it backs up from leaves to the root.
type PVTable struct {
	length [MaxPly]int
	moves  [MaxPly][MaxPly]shogi.Move
}

// SearchStack carries per-ply state negamax needs from its parent (the
// move just played and its continuation-history slot), the usual
// Stockfish-style search stack frame.
type SearchStack struct {
	currentMove         shogi.Move
	movedPiece          shogi.Piece
	moveTo              shogi.Square
	continuationHistory *PieceToHistory
}

// Worker is one Lazy SMP search thread: its own position copy, move
// ordering, and search stacks, sharing the transposition table and
// shared history table with its sibling workers.
type Worker struct {
	id int

	pos     *shogi.Position
	orderer *MoveOrderer

	nodes uint64
	pv    PVTable

	undoStack   [MaxPly]shogi.UndoInfo
	evalStack   [MaxPly]int
	searchStack [MaxPly]SearchStack

	// posHistoryBuffer mirrors the game history plus this search's
	// in-tree moves, for sennichite detection without allocating per
	// node; checkHistoryBuffer records, per entry, whether the side to
	// move was in check there (false for pre-root game entries, whose
	// check state is unknown — they can then never count as perpetual).
	posHistoryBuffer   [768]uint64
	checkHistoryBuffer [768]bool
	posHistoryLen      int
	rootPosHashes      []uint64

	excludedRootMoves []shogi.Move

	tt            *TranspositionTable
	sharedHistory *SharedHistory
	corrHistory   *CorrectionHistory
	stopFlag      *atomic.Bool

	useNNUE   bool
	evaluator *nnue.Evaluator

	debug bool

	resultCh chan<- WorkerResult
	depth    int

	optimism [2]int
	avgScore int

	rootDelta int
	nmpMinPly int
}

// WorkerResult is one worker's finished iteration, sent back to the engine.
type WorkerResult struct {
	WorkerID int
	Depth    int
	Score    int
	Move     shogi.Move
	PV       []shogi.Move
	Nodes    uint64
}

// NewWorker creates a search worker sharing tt and sharedHistory with its
// siblings.
func NewWorker(id int, tt *TranspositionTable, sharedHistory *SharedHistory, stopFlag *atomic.Bool) *Worker {
	return &Worker{
		id:            id,
		orderer:       NewMoveOrderer(),
		tt:            tt,
		sharedHistory: sharedHistory,
		corrHistory:   NewCorrectionHistory(),
		stopFlag:      stopFlag,
	}
}

// initNNUE gives this worker its own NNUE evaluator (accumulator stack)
// over the shared, read-only network.
func (w *Worker) initNNUE(net *nnue.Network) {
	w.evaluator = &nnue.Evaluator{Net: net, Stack: nnue.NewAccumulatorStack(net)}
	w.useNNUE = true
}

// ID returns the worker's index.
func (w *Worker) ID() int { return w.id }

// Nodes returns the number of nodes searched by this worker.
func (w *Worker) Nodes() uint64 { return w.nodes }

// Reset clears per-search state ahead of a new Search call.
func (w *Worker) Reset() {
	w.nodes = 0
	w.orderer.Clear()
	w.avgScore = -Infinity
	w.optimism[0] = 0
	w.optimism[1] = 0
	w.nmpMinPly = 0
}

// UpdateOptimism recomputes the per-side optimism term from the running
// average root score: a side doing well leans further into its own
// static eval.
func (w *Worker) UpdateOptimism() {
	avg := w.avgScore
	if avg == -Infinity {
		w.optimism[0], w.optimism[1] = 0, 0
		return
	}
	us := int(w.pos.SideToMove)
	absAvg := avg
	if absAvg < 0 {
		absAvg = -absAvg
	}
	w.optimism[us] = (142 * avg) / (absAvg + 91)
	w.optimism[1-us] = -w.optimism[us]
}

// UpdateAvgScore folds score into the running average used by UpdateOptimism.
func (w *Worker) UpdateAvgScore(score int) {
	if w.avgScore == -Infinity {
		w.avgScore = score
	} else {
		w.avgScore = (score + w.avgScore) / 2
	}
}

// SetRootHistory copies the game's position history in for sennichite detection.
func (w *Worker) SetRootHistory(hashes []uint64) {
	w.rootPosHashes = make([]uint64, len(hashes))
	copy(w.rootPosHashes, hashes)
}

// SetResultChannel sets the channel iteration results are published on.
func (w *Worker) SetResultChannel(ch chan<- WorkerResult) { w.resultCh = ch }

// SetExcludedMoves sets root moves to skip (used by Multi-PV).
func (w *Worker) SetExcludedMoves(moves []shogi.Move) { w.excludedRootMoves = moves }

// InitSearch prepares the worker to search pos. pos is cloned so this
// worker's DoMove/UndoMove calls never race against sibling workers
// searching the same root position concurrently.
func (w *Worker) InitSearch(pos *shogi.Position) {
	w.pos = pos.Clone()
	if w.evaluator != nil {
		w.evaluator.Stack.RefreshRoot(w.pos)
	}

	rootLen := len(w.rootPosHashes)
	if rootLen > 640 {
		rootLen = 640
		copy(w.posHistoryBuffer[:rootLen], w.rootPosHashes[len(w.rootPosHashes)-640:])
	} else {
		copy(w.posHistoryBuffer[:rootLen], w.rootPosHashes)
	}
	for i := 0; i < rootLen; i++ {
		w.checkHistoryBuffer[i] = false
	}
	w.posHistoryBuffer[rootLen] = w.pos.Hash
	w.checkHistoryBuffer[rootLen] = w.pos.InCheck(w.pos.SideToMove)
	w.posHistoryLen = rootLen + 1
}

// Pos returns the position currently being searched (for debugging).
func (w *Worker) Pos() *shogi.Position { return w.pos }

// doMove applies m and keeps the NNUE accumulator stack in step: the
// feature diff is derived from the pre-move position, then pushed after
// the board mutates so the new stack top describes the new position.
func (w *Worker) doMove(m shogi.Move) shogi.UndoInfo {
	if w.useNNUE && w.evaluator != nil {
		dirty := nnue.ComputeDirtyState(w.pos, m)
		undo := w.pos.DoMove(m)
		w.evaluator.Stack.Push(dirty)
		return undo
	}
	return w.pos.DoMove(m)
}

// undoMove reverses doMove, popping the accumulator frame with it.
func (w *Worker) undoMove(m shogi.Move, undo shogi.UndoInfo) {
	w.pos.UndoMove(m, undo)
	if w.useNNUE && w.evaluator != nil {
		w.evaluator.Stack.Pop()
	}
}

// doNullMove passes the turn; the board is untouched, so the pushed
// accumulator frame carries an empty diff.
func (w *Worker) doNullMove() uint64 {
	prev := w.pos.DoNullMove()
	if w.useNNUE && w.evaluator != nil {
		w.evaluator.Stack.Push(nnue.DirtyState{})
	}
	return prev
}

func (w *Worker) undoNullMove(prevHash uint64) {
	w.pos.UndoNullMove(prevHash)
	if w.useNNUE && w.evaluator != nil {
		w.evaluator.Stack.Pop()
	}
}

// SearchDepth searches to depth within [alpha, beta] and publishes the
// result if a result channel is set.
func (w *Worker) SearchDepth(depth, alpha, beta int) (shogi.Move, int) {
	w.depth = depth
	w.UpdateOptimism()

	score := w.negamax(depth, 0, alpha, beta, shogi.NoMove, shogi.NoMove, false)
	w.UpdateAvgScore(score)

	var bestMove shogi.Move
	if w.pv.length[0] > 0 {
		bestMove = w.pv.moves[0][0]
	}
	if bestMove == shogi.NoMove && !w.stopFlag.Load() {
		var moves shogi.MoveList
		w.pos.GenerateLegal(&moves)
		if moves.Len() > 0 {
			bestMove = moves.Get(0)
		}
	}

	if w.resultCh != nil && !w.stopFlag.Load() {
		w.resultCh <- WorkerResult{
			WorkerID: w.id,
			Depth:    depth,
			Score:    score,
			Move:     bestMove,
			PV:       w.GetPV(),
			Nodes:    w.nodes,
		}
	}
	return bestMove, score
}

// evaluate returns the static evaluation of the current position, plus
// this search's optimism term for the side to move.
func (w *Worker) evaluate() int {
	var eval int
	if w.useNNUE && w.evaluator != nil {
		eval = w.evaluator.Evaluate(w.pos)
	} else {
		eval = materialEval(w.pos)
	}
	eval += w.optimism[w.pos.SideToMove] / 32
	eval += w.corrHistory.Get(w.pos)
	return eval
}

// materialEval is the fallback evaluation used before an NNUE network is
// loaded: plain material count, board and hand, from the mover's side.
func materialEval(pos *shogi.Position) int {
	var score int
	for sq := shogi.Square(0); int(sq) < shogi.NumSquares; sq++ {
		pc := pos.PieceAt(sq)
		if pc == shogi.NoPiece {
			continue
		}
		v := pc.Type().Value()
		if pc.Color() == shogi.Black {
			score += v
		} else {
			score -= v
		}
	}
	for _, pt := range handKindsForEval {
		black := int(pos.Hands[shogi.Black].Count[shogi.HandKindIndex(pt)])
		white := int(pos.Hands[shogi.White].Count[shogi.HandKindIndex(pt)])
		score += (black - white) * pt.Value()
	}
	if pos.SideToMove == shogi.Black {
		return score
	}
	return -score
}

var handKindsForEval = []shogi.PieceType{
	shogi.Pawn, shogi.Lance, shogi.Knight, shogi.Silver, shogi.Gold, shogi.Bishop, shogi.Rook,
}

// stopped reports whether this search has been told to stop.
func (w *Worker) stopped() bool { return w.stopFlag.Load() }

// GetPV returns the principal variation found at the root.
func (w *Worker) GetPV() []shogi.Move {
	pv := make([]shogi.Move, w.pv.length[0])
	copy(pv, w.pv.moves[0][:w.pv.length[0]])
	return pv
}

func (w *Worker) isExcludedRootMove(move shogi.Move) bool {
	for _, excluded := range w.excludedRootMoves {
		if move == excluded {
			return true
		}
	}
	return false
}

// repetitionScore detects sennichite (fourfold repetition), the only
// draw Shogi recognizes during search (there is no fifty-move rule and,
// unlike chess, no stalemate draw). A plain repetition scores 0, but a
// cycle in which one side checked on every one of its turns is a
// perpetual check, which the rules turn against the checker: the
// perpetually-checked side gets a mate-like winning score instead.
func (w *Worker) repetitionScore(ply int) (bool, int) {
	t := w.posHistoryLen - 1
	if t < 0 {
		return false, 0
	}
	cur := w.posHistoryBuffer[t]
	count := 1
	last := -1
	for i := t - 1; i >= 0; i-- {
		if w.posHistoryBuffer[i] == cur {
			count++
			if last < 0 {
				last = i
			}
		}
	}
	if count < 4 {
		return false, 0
	}

	// Examine the final cycle. Entries alternate side to move; the ones
	// sharing the current entry's parity are "our" turns.
	usAlwaysChecked, themAlwaysChecked := true, true
	for i := last + 1; i <= t; i++ {
		if (t-i)%2 == 0 {
			usAlwaysChecked = usAlwaysChecked && w.checkHistoryBuffer[i]
		} else {
			themAlwaysChecked = themAlwaysChecked && w.checkHistoryBuffer[i]
		}
	}
	if usAlwaysChecked {
		// The opponent checked us on every move of the cycle; perpetual
		// check loses for the checker.
		return true, MateScore - ply
	}
	if themAlwaysChecked {
		return true, -MateScore + ply
	}
	return true, 0
}

func (w *Worker) pushSearchHistory(hash uint64, inCheck bool) {
	if w.posHistoryLen < len(w.posHistoryBuffer) {
		w.posHistoryBuffer[w.posHistoryLen] = hash
		w.checkHistoryBuffer[w.posHistoryLen] = inCheck
		w.posHistoryLen++
	}
}

func (w *Worker) popSearchHistory() {
	if w.posHistoryLen > 0 {
		w.posHistoryLen--
	}
}

// pushCurrent records the just-reached position (after a doMove) in the
// repetition buffer, tagging whether its side to move sits in check.
func (w *Worker) pushCurrent() {
	w.pushSearchHistory(w.pos.Hash, w.pos.InCheck(w.pos.SideToMove))
}

// negamax searches the current position to depth, returning a score
// from the side-to-move's perspective. excludedMove, when set, skips
// that one move (used by singular-extension verification; Multi-PV root
// exclusion goes through SetExcludedMoves instead); cutNode hints that this node is expected to fail
// high, steering reduction amounts.
func (w *Worker) negamax(depth, ply int, alpha, beta int, prevMove, excludedMove shogi.Move, cutNode bool) int {
	if ply >= MaxPly-1 {
		return w.evaluate()
	}
	if w.nodes&2047 == 0 && w.stopFlag.Load() {
		return 0
	}
	w.nodes++

	pvNode := beta-alpha > 1
	w.pv.length[ply] = ply

	if ply > 0 {
		if rep, repScore := w.repetitionScore(ply); rep {
			return repScore
		}
		// Mate distance pruning: a mate score from here can't beat one
		// already found closer to the root.
		alpha = max(alpha, -MateScore+ply)
		beta = min(beta, MateScore-ply)
		if alpha >= beta {
			return alpha
		}
	}

	if depth <= 0 {
		return w.quiescence(ply, alpha, beta)
	}

	us := w.pos.SideToMove
	inCheck := w.pos.InCheck(us)

	// Nyugyoku: an entering-kings position meeting the declaration
	// conditions is an immediate rules win for the side to move.
	if ply > 0 && !inCheck && w.pos.KingSquare[us].InPromotionZone(us) && w.pos.CanDeclareWin() {
		return MateScore - ply
	}

	w.tt.Prefetch(w.pos.Hash)

	var ttMove shogi.Move
	var ttScore, ttDepth int
	var ttFlag TTFlag
	ttHit := false
	if excludedMove == shogi.NoMove {
		if entry, ok := w.tt.Probe(w.pos.Hash); ok {
			ttHit = true
			ttMove = entry.Move
			ttDepth = entry.Depth
			ttFlag = entry.Flag
			ttScore = AdjustScoreFromTT(entry.Score, ply)
			if !pvNode && entry.Depth >= depth {
				switch entry.Flag {
				case TTExact:
					return ttScore
				case TTLowerBound:
					if ttScore >= beta {
						return ttScore
					}
				case TTUpperBound:
					if ttScore <= alpha {
						return ttScore
					}
				}
			}
		}
	}

	// Internal iterative reduction: without a TT move to seed ordering,
	// shave a ply off so the cheaper shallow search can find one.
	if !ttHit && depth >= 4 && !inCheck {
		depth--
	}

	var staticEval int
	if inCheck {
		staticEval = -MateScore + ply
		w.evalStack[ply] = staticEval
	} else {
		staticEval = w.evaluate()
		w.evalStack[ply] = staticEval
	}

	improving := ply >= 2 && !inCheck && staticEval > w.evalStack[ply-2]

	if !pvNode && !inCheck && excludedMove == shogi.NoMove {
		// Razoring: static eval is so far below alpha at shallow depth that
		// only a tactical shot in quiescence could save the position, so
		// skip straight to quiescence rather than spending a full ply on it.
		if depth <= 3 && staticEval+250+depth*175 < alpha {
			razorScore := w.quiescence(ply, alpha, beta)
			if razorScore <= alpha {
				return razorScore
			}
		}

		// Reverse futility pruning: if static eval already clears beta by
		// a depth-scaled margin, assume the full search would too.
		if depth <= 8 && staticEval-depth*90 >= beta && beta > -MateScore+MaxPly {
			return staticEval
		}

		// Null-move pruning: pass the turn and see if the opponent still
		// can't beat beta even with a free move. Skipped inside the
		// verification window (nmpMinPly) and when staticEval trails beta.
		if depth >= 3 && staticEval >= beta && ply >= w.nmpMinPly && hasNonPawnMaterial(w.pos, us) {
			r := 3 + depth/6 + min((staticEval-beta)/200, 3)
			prevHash := w.doNullMove()
			w.pushCurrent()
			score := -w.negamax(depth-r, ply+1, -beta, -beta+1, shogi.NoMove, shogi.NoMove, !cutNode)
			w.popSearchHistory()
			w.undoNullMove(prevHash)
			if w.stopFlag.Load() {
				return 0
			}
			if score >= beta {
				if score > MateScore-MaxPly {
					score = beta
				}
				if w.nmpMinPly > 0 || depth < 12 {
					return score
				}
				// Verification search at reduced depth with null moves
				// disabled down this subtree, guarding against zugzwang.
				w.nmpMinPly = ply + 3*(depth-r)/4
				verified := w.negamax(depth-r, ply, beta-1, beta, prevMove, shogi.NoMove, false)
				w.nmpMinPly = 0
				if w.stopFlag.Load() {
					return 0
				}
				if verified >= beta {
					return score
				}
			}
		}

		// ProbCut: a reduced-depth search of the position after a capture
		// that already clears beta by a healthy margin is strong evidence
		// the full-depth search would too.
		probCutBeta := beta + 200
		if depth >= 5 && beta < MateScore-MaxPly {
			var pcMoves shogi.MoveList
			w.pos.GeneratePseudoLegal(&pcMoves)
			for i := 0; i < pcMoves.Len(); i++ {
				m := pcMoves.Get(i)
				if !isCapture(w.pos, m) && !m.IsPromotion() {
					continue
				}
				if SEE(w.pos, m) < probCutBeta-staticEval {
					continue
				}
				undo := w.doMove(m)
				if w.pos.InCheck(us) {
					w.undoMove(m, undo)
					continue
				}
				w.pushCurrent()
				score := -w.quiescence(ply+1, -probCutBeta, -probCutBeta+1)
				if score >= probCutBeta {
					score = -w.negamax(depth-4, ply+1, -probCutBeta, -probCutBeta+1, m, shogi.NoMove, !cutNode)
				}
				w.popSearchHistory()
				w.undoMove(m, undo)
				if w.stopFlag.Load() {
					return 0
				}
				if score >= probCutBeta {
					return score
				}
			}
		}
	}

	var moves shogi.MoveList
	w.pos.GeneratePseudoLegal(&moves)

	var prevPiece shogi.Piece = shogi.NoPiece
	if prevMove != shogi.NoMove && !prevMove.IsDrop() {
		prevPiece = w.pos.PieceAt(prevMove.To())
	}
	scores := w.orderer.ScoreMovesWithCounter(w.pos, &moves, ply, ttMove, prevMove)

	legalCount := 0
	quietsTried := make([]shogi.Move, 0, 32)
	bestScore := -Infinity
	bestMove := shogi.NoMove
	originalAlpha := alpha

	for i := 0; i < moves.Len(); i++ {
		PickMove(&moves, scores, i)
		m := moves.Get(i)

		if ply == 0 && w.isExcludedRootMove(m) {
			continue
		}
		if m == excludedMove {
			continue
		}

		// Singular extension: the TT move is the only move that doesn't
		// immediately fall well short of the TT's own bound, so spend an
		// extra ply exploring it.
		extension := 0
		if ply > 0 && depth >= 6 && m == ttMove && excludedMove == shogi.NoMove &&
			ttHit && ttDepth >= depth-3 && ttFlag != TTUpperBound &&
			ttScore > -MateScore+MaxPly && ttScore < MateScore-MaxPly {
			singularBeta := ttScore - 2*depth
			singularDepth := (depth - 1) / 2
			singularScore := w.negamax(singularDepth, ply, singularBeta-1, singularBeta, prevMove, m, cutNode)
			if w.stopFlag.Load() {
				return 0
			}
			switch {
			case singularScore < singularBeta-20 && !pvNode:
				extension = 2 // double extension: the TT move is clearly singular
			case singularScore < singularBeta:
				extension = 1
			case singularBeta >= beta:
				// Multi-cut: a move other than the TT move would also beat
				// beta, so this node fails high without searching further.
				return singularBeta
			case ttScore >= beta || cutNode:
				extension = -1
			}
		}

		// History pruning: a quiet move whose local history plus shared
		// history score falls below -2000*depth is not worth a ply at
		// shallow depth.
		if !pvNode && !inCheck && legalCount > 0 && depth <= 4 &&
			m != ttMove && !isCapture(w.pos, m) && !m.IsPromotion() &&
			bestScore > -MateScore+MaxPly &&
			w.orderer.GetHistoryScore(m)+w.sharedHistory.Get(dropHistoryIndex(m), int(m.To())) < -2000*depth {
			continue
		}

		seeLosing := isCapture(w.pos, m) && !pvNode && !inCheck && depth <= 8 && SEE(w.pos, m) < -20*depth*depth

		undo := w.doMove(m)
		if w.pos.InCheck(us) {
			w.undoMove(m, undo)
			continue
		}
		legalCount++

		capture := undo.Captured != shogi.NoPiece
		givesCheck := w.pos.InCheck(w.pos.SideToMove)

		// Late move pruning / futility pruning for quiet moves deep in
		// the ordered list of a losing-ish non-PV node.
		if !pvNode && !inCheck && !capture && !givesCheck && legalCount > 1 {
			if depth <= 6 && legalCount > 3+depth*depth {
				w.undoMove(m, undo)
				continue
			}
			if depth <= 6 && staticEval+100+depth*80 <= alpha {
				w.undoMove(m, undo)
				continue
			}
		}

		if seeLosing {
			w.undoMove(m, undo)
			continue
		}

		w.pushCurrent()
		w.searchStack[ply].currentMove = m
		movedPiece := movingPieceAfter(w.pos, m, undo)
		w.searchStack[ply].movedPiece = movedPiece
		w.searchStack[ply].moveTo = m.To()
		w.searchStack[ply].continuationHistory = w.orderer.continuation.GetContinuationHistoryTable(movedPiece, m.To())

		newDepth := depth - 1 + extension
		var score int

		if depth >= 3 && legalCount > 1 && !capture && !inCheck {
			r := lmrReductions[min(depth, 63)][min(legalCount, 63)]
			if cutNode {
				r++
			}
			if pvNode {
				r--
			}
			if !improving {
				r++
			}
			if givesCheck {
				r--
			}
			lr := newDepth - r
			if lr < 1 {
				lr = 1
			}
			score = -w.negamax(lr, ply+1, -alpha-1, -alpha, m, shogi.NoMove, true)
			if score > alpha && lr < newDepth {
				score = -w.negamax(newDepth, ply+1, -alpha-1, -alpha, m, shogi.NoMove, !cutNode)
			}
		} else if !pvNode || legalCount > 1 {
			score = -w.negamax(newDepth, ply+1, -alpha-1, -alpha, m, shogi.NoMove, !cutNode)
		} else {
			score = alpha + 1 // force the PV search branch below
		}

		if pvNode && (legalCount == 1 || score > alpha) {
			score = -w.negamax(newDepth, ply+1, -beta, -alpha, m, shogi.NoMove, false)
		}

		w.popSearchHistory()
		w.undoMove(m, undo)

		if w.stopFlag.Load() {
			return 0
		}

		if score > bestScore {
			bestScore = score
			bestMove = m

			if score > alpha {
				alpha = score
				w.pv.moves[ply][ply] = m
				for j := ply + 1; j < w.pv.length[ply+1]; j++ {
					w.pv.moves[ply][j] = w.pv.moves[ply+1][j]
				}
				w.pv.length[ply] = w.pv.length[ply+1]

				if score >= beta {
					if !capture && !m.IsPromotion() {
						w.orderer.UpdateKillers(m, ply)
						w.orderer.UpdateHistory(m, depth, true)
						w.orderer.UpdateCounterMove(prevMove, m, w.pos)
						w.sharedHistory.Update(dropHistoryIndex(m), int(m.To()), depth*depth)
						w.orderer.continuation.Update(prevPiece, prevMove.To(), movedPiece, m.To(), depth, true)
						w.updateContinuationHistories(ply, movedPiece, m.To(), depth, true)
						for _, quiet := range quietsTried {
							w.orderer.UpdateHistory(quiet, depth, false)
						}
					} else if capture {
						w.orderer.UpdateCaptureHistory(movedPiece.Type(), m.To(), undo.Captured.Type(), depth, true)
					}
					break
				}
			}
		}
		if !capture && !m.IsPromotion() {
			quietsTried = append(quietsTried, m)
		}
	}

	if legalCount == 0 {
		if excludedMove != shogi.NoMove {
			// Singular-search probe found no alternative; report alpha so
			// the caller's comparison against the TT score is unaffected.
			return alpha
		}
		// No stalemate in Shogi: zero legal moves is an immediate loss
		// for the side to move.
		return -MateScore + ply
	}

	if excludedMove == shogi.NoMove {
		flag := TTExact
		if bestScore <= originalAlpha {
			flag = TTUpperBound
		} else if bestScore >= beta {
			flag = TTLowerBound
		}
		w.tt.Store(w.pos.Hash, depth, AdjustScoreToTT(bestScore, ply), flag, bestMove, pvNode)

		if !inCheck && bestMove != shogi.NoMove {
			quietBest := !isCapture(w.pos, bestMove) && !bestMove.IsPromotion()
			if quietBest || bestScore >= staticEval {
				w.corrHistory.Update(w.pos, bestScore, staticEval, depth)
			}
		}
	}

	return bestScore
}

// movingPieceAfter returns the piece that made m as it stood before any
// promotion (the dropped piece for a drop), reconstructed from the move
// and its undo info rather than re-read from the board; this is the
// same convention movingPiece in ordering.go uses when scoring moves.
func movingPieceAfter(pos *shogi.Position, m shogi.Move, undo shogi.UndoInfo) shogi.Piece {
	if m.IsDrop() {
		return shogi.NewPiece(pos.SideToMove.Other(), m.DropPiece())
	}
	return undo.MovedFrom
}

// hasNonPawnMaterial reports whether c has any piece besides pawns and
// the king, the usual null-move-pruning zugzwang guard; Shogi's drop
// rule makes pure zugzwang rarer than in chess, but the guard is cheap
// and king-and-pawns endings are exactly where a null search misleads.
func hasNonPawnMaterial(pos *shogi.Position, c shogi.Color) bool {
	for sq := shogi.Square(0); int(sq) < shogi.NumSquares; sq++ {
		pc := pos.PieceAt(sq)
		if pc == shogi.NoPiece || pc.Color() != c {
			continue
		}
		if pc.Type() != shogi.Pawn && pc.Type() != shogi.King {
			return true
		}
	}
	for _, pt := range handKindsForEval {
		if pt != shogi.Pawn && pos.Hands[c].Count[shogi.HandKindIndex(pt)] > 0 {
			return true
		}
	}
	return false
}

// quiescence resolves captures and promotions until the position is
// "quiet", avoiding the horizon effect at the end of the main search.
func (w *Worker) quiescence(ply, alpha, beta int) int {
	return w.quiescenceInternal(ply, 0, alpha, beta)
}

func (w *Worker) quiescenceInternal(ply, qPly, alpha, beta int) int {
	if ply >= MaxPly-1 {
		return w.evaluate()
	}
	if w.nodes&2047 == 0 && w.stopFlag.Load() {
		return 0
	}
	w.nodes++
	w.pv.length[ply] = ply

	us := w.pos.SideToMove
	inCheck := w.pos.InCheck(us)

	var ttMove shogi.Move
	if entry, ok := w.tt.Probe(w.pos.Hash); ok {
		ttMove = entry.Move
		score := AdjustScoreFromTT(entry.Score, ply)
		switch entry.Flag {
		case TTExact:
			return score
		case TTLowerBound:
			if score >= beta {
				return score
			}
		case TTUpperBound:
			if score <= alpha {
				return score
			}
		}
	}

	var standPat int
	if !inCheck {
		standPat = w.evaluate()
		if standPat >= beta {
			return standPat
		}
		if standPat > alpha {
			alpha = standPat
		}
	} else {
		standPat = -MateScore + ply
	}

	var moves shogi.MoveList
	if inCheck {
		w.pos.GenerateLegal(&moves)
		if moves.Len() == 0 {
			return -MateScore + ply
		}
	} else {
		w.pos.GeneratePseudoLegal(&moves)
	}
	scores := w.orderer.ScoreMoves(w.pos, &moves, ply, ttMove)

	bestScore := standPat
	for i := 0; i < moves.Len(); i++ {
		PickMove(&moves, scores, i)
		m := moves.Get(i)

		capture := isCapture(w.pos, m)
		if !inCheck && !capture && !m.IsPromotion() {
			continue
		}
		if !inCheck && capture {
			// Delta pruning: even winning the captured piece outright
			// can't recover a position already hopelessly behind alpha.
			victimValue := qsCaptureValue(w.pos, m)
			if standPat+victimValue+200 < alpha {
				continue
			}
			if SEE(w.pos, m) < 0 {
				continue
			}
		}

		undo := w.doMove(m)
		if w.pos.InCheck(us) {
			w.undoMove(m, undo)
			continue
		}

		score := -w.quiescenceInternal(ply+1, qPly+1, -beta, -alpha)
		w.undoMove(m, undo)

		if w.stopFlag.Load() {
			return 0
		}

		if score > bestScore {
			bestScore = score
			if score > alpha {
				alpha = score
				w.pv.moves[ply][ply] = m
				for j := ply + 1; j < w.pv.length[ply+1]; j++ {
					w.pv.moves[ply][j] = w.pv.moves[ply+1][j]
				}
				w.pv.length[ply] = w.pv.length[ply+1]
				if score >= beta {
					break
				}
			}
		}
	}

	return bestScore
}

// qsCaptureValue returns the value of the piece a capture move removes,
// used by quiescence's delta pruning.
func qsCaptureValue(pos *shogi.Position, m shogi.Move) int {
	victim := pos.PieceAt(m.To())
	if victim == shogi.NoPiece {
		return 0
	}
	return victim.Type().Value()
}

// updateContinuationHistories credits or penalizes the moves played 1,
// 2, 4, and 6 plies back for leading into this cutoff (or failure).
func (w *Worker) updateContinuationHistories(ply int, piece shogi.Piece, toSq shogi.Square, depth int, isGood bool) {
	for _, i := range [...]int{1, 2, 4, 6} {
		if ply-i < 0 {
			break
		}
		prev := &w.searchStack[ply-i]
		if prev.continuationHistory == nil {
			continue
		}
		w.orderer.continuation.Update(prev.movedPiece, prev.moveTo, piece, toSq, depth, isGood)
	}
}
