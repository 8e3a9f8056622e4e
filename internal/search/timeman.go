package search

import (
	"time"

	"github.com/hiraoka/shogizero/internal/shogi"
)

// USILimits contains USI "go" time control parameters.
type USILimits struct {
	Time      [2]time.Duration // btime, wtime (remaining time for each color)
	Inc       [2]time.Duration // binc, winc (increment per move, "fischer" rule)
	Byoyomi   time.Duration    // fixed per-move reserve after main time is exhausted
	MoveTime  time.Duration    // fixed time per move (overrides other time controls)
	Depth     int              // maximum search depth
	Nodes     uint64           // maximum nodes to search
	Infinite  bool             // search until stopped
	Ponder    bool             // ponder mode
}

// TimeManager handles time allocation for searches.
type TimeManager struct {
	optimumTime time.Duration
	maximumTime time.Duration
	startTime   time.Time
}

// NewTimeManager creates a new time manager.
func NewTimeManager() *TimeManager {
	return &TimeManager{}
}

// byoyomiSafety is subtracted from the byoyomi reserve so a move never
// overruns it and causes a loss on time.
const byoyomiSafety = 50 * time.Millisecond

// Init initializes the time manager for a new search. ply is the
// current game ply (half-move number).
func (tm *TimeManager) Init(limits USILimits, us shogi.Color, ply int) {
	tm.startTime = time.Now()

	if limits.MoveTime > 0 {
		tm.optimumTime = limits.MoveTime
		tm.maximumTime = limits.MoveTime
		return
	}

	if limits.Infinite || (limits.Time[us] == 0 && limits.MoveTime == 0 && limits.Byoyomi == 0) {
		tm.optimumTime = time.Hour
		tm.maximumTime = time.Hour
		return
	}

	// Byoyomi-only mode (main time exhausted, or a byoyomi-only game):
	// soft and hard limits both collapse to the reserve minus a safety
	// margin, since there is no "remaining time" to budget across moves.
	if limits.Time[us] == 0 && limits.Byoyomi > 0 {
		budget := limits.Byoyomi - byoyomiSafety
		if budget < 10*time.Millisecond {
			budget = 10 * time.Millisecond
		}
		tm.optimumTime = budget
		tm.maximumTime = budget
		return
	}

	timeLeft := limits.Time[us]
	inc := limits.Inc[us]

	mtg := 50 - ply/4
	if mtg < 10 {
		mtg = 10
	}
	if mtg > 50 {
		mtg = 50
	}

	baseTime := timeLeft / time.Duration(mtg)
	baseTime += inc * 9 / 10
	if limits.Byoyomi > 0 {
		// Treat the per-move byoyomi reserve as additional budget once
		// the main clock is thin, the way USI engines lean on it.
		baseTime += limits.Byoyomi * 8 / 10
	}

	tm.optimumTime = baseTime
	if ply < 8 {
		tm.optimumTime = baseTime * 85 / 100
	}

	maxFromOptimum := tm.optimumTime * 5
	maxFromRemaining := timeLeft*8/10 + limits.Byoyomi

	if maxFromOptimum < maxFromRemaining {
		tm.maximumTime = maxFromOptimum
	} else {
		tm.maximumTime = maxFromRemaining
	}

	safetyMargin := timeLeft*95/100 + limits.Byoyomi
	if tm.maximumTime > safetyMargin {
		tm.maximumTime = safetyMargin
	}

	if tm.optimumTime < 10*time.Millisecond {
		tm.optimumTime = 10 * time.Millisecond
	}
	if tm.maximumTime < 50*time.Millisecond {
		tm.maximumTime = 50 * time.Millisecond
	}
}

// Elapsed returns the time elapsed since search started.
func (tm *TimeManager) Elapsed() time.Duration { return time.Since(tm.startTime) }

// OptimumTime returns the target time for this move.
func (tm *TimeManager) OptimumTime() time.Duration { return tm.optimumTime }

// MaximumTime returns the maximum time allowed.
func (tm *TimeManager) MaximumTime() time.Duration { return tm.maximumTime }

// ShouldStop returns true if we should stop searching.
func (tm *TimeManager) ShouldStop() bool { return tm.Elapsed() >= tm.maximumTime }

// PastOptimum returns true if we've exceeded the optimum time.
func (tm *TimeManager) PastOptimum() bool { return tm.Elapsed() >= tm.optimumTime }

// AdjustForStability adjusts time allocation based on best move stability.
func (tm *TimeManager) AdjustForStability(stability int) {
	switch {
	case stability >= 6:
		tm.optimumTime = tm.optimumTime * 40 / 100
	case stability >= 4:
		tm.optimumTime = tm.optimumTime * 60 / 100
	case stability >= 2:
		tm.optimumTime = tm.optimumTime * 80 / 100
	}
}

// AdjustForInstability increases time when the best move keeps changing.
func (tm *TimeManager) AdjustForInstability(changes int) {
	switch {
	case changes >= 4:
		tm.optimumTime = tm.optimumTime * 200 / 100
	case changes >= 2:
		tm.optimumTime = tm.optimumTime * 150 / 100
	default:
		return
	}
	if tm.optimumTime > tm.maximumTime {
		tm.optimumTime = tm.maximumTime
	}
}
