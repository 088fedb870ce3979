// Package dispatch implements the keystroke→action table spec.md §4.8
// describes: a static table mapping printable keys to a required context,
// a handler, and help text, driven by an input source that multiplexes
// stdin and an optional control FIFO on a single per-read timeout.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kaelwave/wavetuner/internal/catalog"
	"github.com/kaelwave/wavetuner/internal/player"
	"github.com/kaelwave/wavetuner/internal/rpc"
)

// Context is the bit-set over {global, station, song} spec.md §3 names.
type Context int

const (
	CtxGlobal Context = 1 << iota
	CtxStation
	CtxSong
)

// Has reports whether required is fully satisfied by the current bits.
func (c Context) Has(required Context) bool {
	return c&required == required
}

// Action is one entry in the static dispatch table.
type Action struct {
	Required Context
	Handler  func(ctx context.Context, d *Dispatcher) error
	Help     string
}

// State is the mutable selection the dispatcher reasons about: which
// station is tuned in and which song is current. It is distinct from
// player.State (per-playback) and catalog's collections (server-derived).
type State struct {
	mu             sync.RWMutex
	StationID      string
	CurrentSong    *catalog.Song
	ActivePlayer   *player.Player
}

// current computes the context bits from the current selection.
func (s *State) current() Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ctx := CtxGlobal
	if s.StationID != "" {
		ctx |= CtxStation
	}
	if s.CurrentSong != nil {
		ctx |= CtxSong
	}
	return ctx
}

// SetStation updates the tuned-in station, clearing the current song.
func (s *State) SetStation(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StationID = id
	s.CurrentSong = nil
	s.ActivePlayer = nil
}

// SetSong updates the current song and its player.
func (s *State) SetSong(song *catalog.Song, p *player.Player) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CurrentSong = song
	s.ActivePlayer = p
}

// Snapshot returns the current station id, song, and player under lock.
func (s *State) Snapshot() (stationID string, song *catalog.Song, p *player.Player) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.StationID, s.CurrentSong, s.ActivePlayer
}

// InputSource abstracts the keystroke source so the default
// stdin-plus-control-FIFO implementation can be swapped for a fake in
// tests. NextKey blocks for at most timeout, returning ok=false on
// timeout (used to drive the once-per-second clock redraw).
type InputSource interface {
	NextKey(timeout time.Duration) (key rune, ok bool, err error)
}

// Dispatcher owns the static table, the selection state, and the RpcEngine
// it dispatches to.
type Dispatcher struct {
	Table  map[rune]Action
	State  *State
	Engine *rpc.Engine
	Input  InputSource

	lastClockRedraw time.Time
	onClockTick     func(d *Dispatcher)
}

// New builds a Dispatcher with table installed and state zeroed.
func New(engine *rpc.Engine, input InputSource, table map[rune]Action) *Dispatcher {
	return &Dispatcher{
		Table:  table,
		State:  &State{},
		Engine: engine,
		Input:  input,
	}
}

// OnClockTick installs a callback invoked once per second of idle input,
// used to redraw the play-clock (spec.md §4.8).
func (d *Dispatcher) OnClockTick(fn func(d *Dispatcher)) {
	d.onClockTick = fn
}

// Run drives the read/dispatch loop until ctx is cancelled or the quit
// action is invoked (signaled by returning errQuit from a handler).
func (d *Dispatcher) Run(ctx context.Context) error {
	const clockInterval = time.Second
	d.lastClockRedraw = time.Now()

	for {
		if ctx.Err() != nil {
			return nil
		}
		key, ok, err := d.Input.NextKey(clockInterval)
		if err != nil {
			return err
		}
		if !ok {
			if time.Since(d.lastClockRedraw) >= clockInterval && d.onClockTick != nil {
				d.onClockTick(d)
				d.lastClockRedraw = time.Now()
			}
			continue
		}

		if err := d.Dispatch(ctx, key); err != nil {
			if err == errQuit {
				return nil
			}
			slog.Warn("dispatch: action failed", "key", string(key), "error", err)
		}
	}
}

// errQuit is the internal sentinel a quit action's handler returns to
// unwind Run cleanly.
var errQuit = fmt.Errorf("quit requested")

// ErrQuit is the sentinel handlers return from the quit action.
func ErrQuit() error { return errQuit }

// Dispatch looks up key, checks its required context, and invokes its
// handler. A context mismatch returns a directed error rather than
// invoking the handler (spec.md §4.8).
func (d *Dispatcher) Dispatch(ctx context.Context, key rune) error {
	action, ok := d.Table[key]
	if !ok {
		return fmt.Errorf("unbound key %q", key)
	}
	current := d.State.current()
	if !current.Has(action.Required) {
		return directedContextError(action.Required, current)
	}
	return action.Handler(ctx, d)
}

func directedContextError(required, current Context) error {
	if required.Has(CtxStation) && !current.Has(CtxStation) {
		return fmt.Errorf("no station selected")
	}
	if required.Has(CtxSong) && !current.Has(CtxSong) {
		return fmt.Errorf("no song playing")
	}
	return fmt.Errorf("action unavailable")
}
