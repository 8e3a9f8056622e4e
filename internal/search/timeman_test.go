package search

import (
	"testing"
	"time"

	"github.com/hiraoka/shogizero/internal/shogi"
)

func TestTimeManagerMoveTimeOverride(t *testing.T) {
	tm := NewTimeManager()
	tm.Init(USILimits{MoveTime: 750 * time.Millisecond, Time: [2]time.Duration{time.Minute, time.Minute}}, shogi.Black, 20)
	if tm.OptimumTime() != 750*time.Millisecond || tm.MaximumTime() != 750*time.Millisecond {
		t.Fatalf("movetime must pin both limits, got optimum=%v maximum=%v", tm.OptimumTime(), tm.MaximumTime())
	}
}

func TestTimeManagerByoyomiOnly(t *testing.T) {
	tm := NewTimeManager()
	tm.Init(USILimits{Byoyomi: 1000 * time.Millisecond}, shogi.White, 60)
	want := 1000*time.Millisecond - byoyomiSafety
	if tm.OptimumTime() != want || tm.MaximumTime() != want {
		t.Fatalf("byoyomi-only: soft and hard must both be byoyomi minus safety, got optimum=%v maximum=%v", tm.OptimumTime(), tm.MaximumTime())
	}
}

func TestTimeManagerInfinite(t *testing.T) {
	tm := NewTimeManager()
	tm.Init(USILimits{Infinite: true}, shogi.Black, 0)
	if tm.MaximumTime() < time.Minute {
		t.Fatalf("infinite searches must not time out on their own, got %v", tm.MaximumTime())
	}
	if tm.ShouldStop() {
		t.Fatal("infinite search should never report ShouldStop immediately")
	}
}

func TestTimeManagerMainTimeBudget(t *testing.T) {
	tm := NewTimeManager()
	tm.Init(USILimits{Time: [2]time.Duration{10 * time.Minute, 10 * time.Minute}}, shogi.Black, 30)
	if tm.OptimumTime() <= 0 {
		t.Fatal("optimum must be positive with main time on the clock")
	}
	if tm.OptimumTime() > tm.MaximumTime() {
		t.Fatalf("optimum %v exceeds maximum %v", tm.OptimumTime(), tm.MaximumTime())
	}
	if tm.MaximumTime() > 10*time.Minute {
		t.Fatalf("maximum %v exceeds remaining clock", tm.MaximumTime())
	}
}

func TestTimeManagerInstabilityExtendsWithinMaximum(t *testing.T) {
	tm := NewTimeManager()
	tm.Init(USILimits{Time: [2]time.Duration{time.Minute, time.Minute}}, shogi.Black, 40)
	before := tm.OptimumTime()
	tm.AdjustForInstability(4)
	if tm.OptimumTime() <= before {
		t.Fatal("instability must extend the optimum time")
	}
	if tm.OptimumTime() > tm.MaximumTime() {
		t.Fatal("extended optimum must stay within the hard limit")
	}
}
