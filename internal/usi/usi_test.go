package usi

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hiraoka/shogizero/internal/persist"
)

// syncBuffer is a mutex-guarded output sink: the driver writes bestmove
// lines from its search goroutine while tests poll the contents.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
}

func newTestDriver(t *testing.T) (*Driver, *syncBuffer) {
	t.Helper()
	store, err := persist.OpenAt(t.TempDir())
	if err != nil {
		t.Fatalf("persist.OpenAt: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	buf := &syncBuffer{}
	return newWithStore(buf, store), buf
}

func waitForBestmove(t *testing.T, buf *syncBuffer, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if strings.Contains(buf.String(), "bestmove") {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("bestmove never arrived")
}

func TestHandleUSIAdvertisesOptions(t *testing.T) {
	d, buf := newTestDriver(t)
	d.handleUSI()

	out := buf.String()
	for _, want := range []string{"id name", "usiok", "USI_Hash", "Threads", "MultiPV", "EvalFile"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestHandlePositionStartpos(t *testing.T) {
	d, _ := newTestDriver(t)
	d.handlePosition([]string{"startpos"})
	if d.pos.SFEN() != "lnsgkgsnl/1r5b1/ppppppppp/9/9/9/PPPPPPPPP/1B5R1/LNSGKGSNL b - 1" {
		t.Errorf("unexpected sfen after startpos: %s", d.pos.SFEN())
	}
}

func TestHandlePositionStartposWithMoves(t *testing.T) {
	d, _ := newTestDriver(t)
	d.handlePosition([]string{"startpos", "moves", "7g7f"})
	if d.pos.SideToMove.String() != "w" {
		t.Errorf("expected white to move after one ply, got %s", d.pos.SideToMove.String())
	}
}

func TestHandlePositionSFEN(t *testing.T) {
	d, _ := newTestDriver(t)
	sfen := []string{"sfen", "4k4/9/9/9/9/9/9/9/9", "b", "G", "1"}
	d.handlePosition(sfen)
	if d.pos.SFEN() != "4k4/9/9/9/9/9/9/9/9 b G 1" {
		t.Errorf("unexpected sfen round-trip: %s", d.pos.SFEN())
	}
}

func TestHandleSetOptionUSIHash(t *testing.T) {
	d, _ := newTestDriver(t)
	d.handleSetOption([]string{"name", "USI_Hash", "value", "64"})
	if d.opts.HashMB != 64 {
		t.Errorf("expected HashMB=64, got %d", d.opts.HashMB)
	}
}

func TestHandleSetOptionUSIPonder(t *testing.T) {
	d, _ := newTestDriver(t)
	d.handleSetOption([]string{"name", "USI_Ponder", "value", "true"})
	if !d.ponder {
		t.Error("expected ponder to be enabled")
	}
}

func TestGoAndStopDoNotDeadlock(t *testing.T) {
	d, buf := newTestDriver(t)
	d.handlePosition([]string{"startpos"})
	d.handleGo([]string{"movetime", "50"})
	waitForBestmove(t, buf, 2*time.Second)
}

// TestStopEndsInfiniteSearchPromptly issues "go infinite", lets the
// search spin up, then stops it; bestmove must follow quickly since
// workers poll the stop flag every couple thousand nodes.
func TestStopEndsInfiniteSearchPromptly(t *testing.T) {
	d, buf := newTestDriver(t)
	d.handlePosition([]string{"startpos"})
	d.handleGo([]string{"infinite"})
	time.Sleep(50 * time.Millisecond)

	d.handleStop()
	waitForBestmove(t, buf, time.Second)
}

// TestSingleBestmovePerGo races stop against searches of varying length
// and checks exactly one bestmove line is emitted for each go command,
// no matter where the stop lands.
func TestSingleBestmovePerGo(t *testing.T) {
	d, buf := newTestDriver(t)
	d.handlePosition([]string{"startpos"})

	rounds := 25
	if testing.Short() {
		rounds = 5
	}
	for i := 0; i < rounds; i++ {
		buf.Reset()
		d.handleGo([]string{"movetime", "40"})
		time.Sleep(time.Duration(i%5) * 10 * time.Millisecond)
		d.handleStop()
		d.handleStop() // a second stop must be harmless
		waitForBestmove(t, buf, 2*time.Second)

		// Allow any straggling writes to land, then count.
		time.Sleep(20 * time.Millisecond)
		if got := strings.Count(buf.String(), "bestmove"); got != 1 {
			t.Fatalf("round %d: %d bestmove lines, want exactly 1:\n%s", i, got, buf.String())
		}
	}
}

// TestMultiPVEmitsRankedLines checks that MultiPV > 1 produces one info
// line per ranked variation plus a single bestmove.
func TestMultiPVEmitsRankedLines(t *testing.T) {
	d, buf := newTestDriver(t)
	d.handleSetOption([]string{"name", "MultiPV", "value", "3"})
	d.handlePosition([]string{"startpos"})
	d.handleGo([]string{"depth", "3"})
	waitForBestmove(t, buf, 5*time.Second)

	out := buf.String()
	if !strings.Contains(out, "multipv 1") || !strings.Contains(out, "multipv 2") {
		t.Errorf("expected at least two ranked multipv lines, got:\n%s", out)
	}
	if strings.Count(out, "bestmove") != 1 {
		t.Errorf("expected exactly one bestmove, got:\n%s", out)
	}
}
