// Package usi implements the USI (Universal Shogi Interface) protocol
// loop: it decodes GUI commands off stdin, drives internal/search, and
// encodes responses back onto stdout, covering drops, promotions, and
// byoyomi time controls.
package usi

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hiraoka/shogizero/internal/persist"
	"github.com/hiraoka/shogizero/internal/search"
	"github.com/hiraoka/shogizero/internal/shogi"
)

const (
	engineName   = "ShogiZero"
	engineAuthor = "hiraoka"
)

// Driver runs the USI command loop against a search.Engine.
type Driver struct {
	engine *search.Engine
	pos    *shogi.Position
	store  *persist.Store
	opts   persist.EngineOptions

	ponder     bool
	minThinkMs int

	out  *bufio.Writer
	wmu  sync.Mutex // stdout is the protocol channel; one line at a time

	mu        sync.Mutex
	searching bool
	stopFn    func()
}

// New builds a Driver writing responses to out. It opens the persisted
// option/correction-history store (best-effort: a failure to open just
// disables persistence rather than blocking the engine from running).
func New(out io.Writer) *Driver {
	store, err := persist.Open()
	if err != nil {
		log.Printf("[usi] persistence unavailable, continuing without it: %v", err)
		store = nil
	}
	return newWithStore(out, store)
}

// newWithStore builds a Driver against an already-open store (or nil to
// disable persistence), letting tests inject a temp-directory store
// instead of touching the real platform data directory.
func newWithStore(out io.Writer, store *persist.Store) *Driver {
	opts := persist.DefaultEngineOptions()
	if store != nil {
		if loaded, err := store.LoadOptions(); err == nil {
			opts = loaded
		}
	}

	eng := search.NewEngine(opts.HashMB)
	if opts.Threads > 1 {
		eng.SetThreads(opts.Threads)
	}
	if store != nil {
		if table, err := store.LoadCorrectionHistory(); err == nil && table != nil {
			eng.RestoreCorrection(table)
		}
	}

	d := &Driver{
		engine: eng,
		pos:    shogi.NewPosition(),
		store:  store,
		opts:   opts,
		out:    bufio.NewWriter(out),
	}
	eng.OnInfo = d.sendInfo
	return d
}

// Run reads commands from in until "quit" or EOF, blocking the caller.
func (d *Driver) Run(in io.Reader) {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if d.dispatch(line) {
			break
		}
	}
	d.persistState()
}

func (d *Driver) dispatch(line string) (quit bool) {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]
	switch cmd {
	case "usi":
		d.handleUSI()
	case "isready":
		d.handleIsReady()
	case "setoption":
		d.handleSetOption(args)
	case "usinewgame":
		d.handleNewGame()
	case "position":
		d.handlePosition(args)
	case "go":
		d.handleGo(args)
	case "stop":
		d.handleStop()
	case "ponderhit":
		// The engine does not search differently in ponder mode, so a
		// ponderhit is a no-op: the in-flight search just keeps running.
	case "quit":
		d.handleStop()
		return true
	case "d":
		d.send(d.pos.SFEN())
	default:
		d.send(fmt.Sprintf("info string unknown command: %s", cmd))
	}
	return false
}

func (d *Driver) send(s string) {
	d.wmu.Lock()
	d.out.WriteString(s)
	d.out.WriteByte('\n')
	d.out.Flush()
	d.wmu.Unlock()
}

func (d *Driver) handleUSI() {
	d.send("id name " + engineName)
	d.send("id author " + engineAuthor)
	d.send("option name USI_Hash type spin default 16 min 1 max 65536")
	d.send("option name Threads type spin default 1 min 1 max 512")
	d.send("option name MultiPV type spin default 1 min 1 max 10")
	d.send("option name EvalFile type string default <empty>")
	d.send("option name USI_Ponder type check default false")
	d.send("option name MinThinkMs type spin default 0 min 0 max 60000")
	d.send("usiok")
}

func (d *Driver) handleIsReady() {
	if d.opts.EvalFile != "" && !d.engine.HasNNUE() {
		if err := d.engine.LoadNNUE(d.opts.EvalFile); err != nil {
			d.send(fmt.Sprintf("info string failed to load eval file %q: %v", d.opts.EvalFile, err))
		}
	}
	d.send("readyok")
}

// SetOption applies a single USI option by name/value, the same path
// "setoption name <name> value <value>" takes, for a CLI entrypoint that
// wants to preconfigure the engine (e.g. -evalfile) before Run starts.
func (d *Driver) SetOption(name, value string) {
	d.handleSetOption([]string{"name", name, "value", value})
}

func (d *Driver) handleSetOption(args []string) {
	if len(args) == 0 || args[0] != "name" {
		return
	}
	args = args[1:]
	valueIdx := -1
	for i, a := range args {
		if a == "value" {
			valueIdx = i
			break
		}
	}
	var name, value string
	if valueIdx == -1 {
		name = strings.Join(args, " ")
	} else {
		name = strings.Join(args[:valueIdx], " ")
		value = strings.Join(args[valueIdx+1:], " ")
	}

	switch name {
	case "USI_Hash":
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			d.opts.HashMB = n
			d.engine.SetHashSize(n)
		}
	case "Threads":
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			d.opts.Threads = n
			d.engine.SetThreads(n)
		}
	case "MultiPV":
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			d.opts.MultiPV = n
		}
	case "EvalFile":
		d.opts.EvalFile = value
		if value != "" {
			if err := d.engine.LoadNNUE(value); err != nil {
				d.send(fmt.Sprintf("info string failed to load eval file %q: %v", value, err))
			}
		}
	case "USI_Ponder":
		d.ponder = value == "true"
	case "MinThinkMs":
		if n, err := strconv.Atoi(value); err == nil && n >= 0 {
			d.minThinkMs = n
		}
	}
	d.persistState()
}

func (d *Driver) handleNewGame() {
	d.pos = shogi.NewPosition()
	d.engine.Clear()
}

// handlePosition parses "position [startpos|sfen <sfen>] [moves ...]".
func (d *Driver) handlePosition(args []string) {
	if len(args) == 0 {
		return
	}

	movesIdx := len(args)
	for i, a := range args {
		if a == "moves" {
			movesIdx = i
			break
		}
	}

	var pos *shogi.Position
	switch args[0] {
	case "startpos":
		pos = shogi.NewPosition()
	case "sfen":
		sfenFields := args[1:movesIdx]
		parsed, err := shogi.ParseSFEN(strings.Join(sfenFields, " "))
		if err != nil {
			d.send(fmt.Sprintf("info string invalid sfen: %v", err))
			return
		}
		pos = parsed
	default:
		return
	}

	if movesIdx < len(args) {
		for _, ms := range args[movesIdx+1:] {
			m, err := shogi.ParseMove(ms, pos)
			if err != nil {
				d.send(fmt.Sprintf("info string invalid move %q: %v", ms, err))
				break
			}
			pos.DoMove(m)
		}
	}
	d.pos = pos
}

func (d *Driver) handleGo(args []string) {
	limits := search.USILimits{}
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "btime":
			i++
			limits.Time[shogi.Black] = parseMsArg(args, i)
		case "wtime":
			i++
			limits.Time[shogi.White] = parseMsArg(args, i)
		case "binc":
			i++
			limits.Inc[shogi.Black] = parseMsArg(args, i)
		case "winc":
			i++
			limits.Inc[shogi.White] = parseMsArg(args, i)
		case "byoyomi":
			i++
			limits.Byoyomi = parseMsArg(args, i)
		case "movetime":
			i++
			limits.MoveTime = parseMsArg(args, i)
		case "depth":
			i++
			if i < len(args) {
				limits.Depth, _ = strconv.Atoi(args[i])
			}
		case "nodes":
			i++
			if i < len(args) {
				n, _ := strconv.ParseUint(args[i], 10, 64)
				limits.Nodes = n
			}
		case "infinite":
			limits.Infinite = true
		case "ponder":
			limits.Ponder = true
		}
	}

	d.mu.Lock()
	if d.searching {
		d.mu.Unlock()
		return
	}
	d.searching = true
	stopCh := make(chan struct{})
	d.stopFn = func() { close(stopCh) }
	d.mu.Unlock()

	pos := d.pos
	go func() {
		d.engine.SetPositionHistory(pos.History())
		start := time.Now()
		var move shogi.Move
		if d.opts.MultiPV > 1 {
			move = d.searchMultiPV(pos, limits)
		} else {
			move = d.engine.SearchWithUSILimits(pos, limits, pos.Ply)
		}
		if d.minThinkMs > 0 {
			if rem := time.Duration(d.minThinkMs)*time.Millisecond - time.Since(start); rem > 0 {
				time.Sleep(rem)
			}
		}

		d.mu.Lock()
		d.searching = false
		d.stopFn = nil
		d.mu.Unlock()

		if move == shogi.NoMove {
			d.send("bestmove resign")
			return
		}
		d.send("bestmove " + move.String())
	}()
}

// searchMultiPV runs the exclusion-based Multi-PV search and reports
// each ranked line on its own "info multipv" row, returning the top
// line's move for the bestmove reply.
func (d *Driver) searchMultiPV(pos *shogi.Position, limits search.USILimits) shogi.Move {
	sl := search.SearchLimits{
		Depth:    limits.Depth,
		Nodes:    limits.Nodes,
		MoveTime: limits.MoveTime,
		MultiPV:  d.opts.MultiPV,
	}
	if sl.MoveTime == 0 && limits.Byoyomi > 0 {
		sl.MoveTime = limits.Byoyomi
	}
	if sl.Depth == 0 && sl.MoveTime == 0 {
		sl.Depth = 10
	}

	results := d.engine.SearchMultiPV(pos, sl)
	if len(results) == 0 {
		return shogi.NoMove
	}
	for rank, r := range results {
		var pv strings.Builder
		for i, m := range r.PV {
			if i > 0 {
				pv.WriteByte(' ')
			}
			pv.WriteString(m.String())
		}
		d.send(fmt.Sprintf("info depth %d multipv %d score %s pv %s",
			r.Depth, rank+1, search.ScoreToString(r.Score), pv.String()))
	}
	return results[0].Move
}

func parseMsArg(args []string, i int) time.Duration {
	if i >= len(args) {
		return 0
	}
	n, err := strconv.Atoi(args[i])
	if err != nil {
		return 0
	}
	return time.Duration(n) * time.Millisecond
}

func (d *Driver) handleStop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.searching {
		d.engine.Stop()
	}
}

// sendInfo emits one USI "info" line per completed iteration.
func (d *Driver) sendInfo(info search.SearchInfo) {
	var pv strings.Builder
	for i, m := range info.PV {
		if i > 0 {
			pv.WriteByte(' ')
		}
		pv.WriteString(m.String())
	}

	nps := uint64(0)
	if ms := info.Time.Milliseconds(); ms > 0 {
		nps = info.Nodes * 1000 / uint64(ms)
	}

	d.send(fmt.Sprintf("info depth %d score %s nodes %d nps %d hashfull %d time %d pv %s",
		info.Depth, search.ScoreToString(info.Score), info.Nodes, nps, info.HashFull,
		info.Time.Milliseconds(), pv.String()))
}

// persistState saves the engine's current options and correction-history
// table, called after every setoption and at shutdown so the next USI
// session starts where this one left off.
func (d *Driver) persistState() {
	if d.store == nil {
		return
	}
	if err := d.store.SaveOptions(d.opts); err != nil {
		log.Printf("[usi] save options: %v", err)
	}
	if err := d.store.SaveCorrectionHistory(d.engine.SnapshotCorrection()); err != nil {
		log.Printf("[usi] save correction history: %v", err)
	}
}
