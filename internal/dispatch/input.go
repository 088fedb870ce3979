package dispatch

import (
	"bufio"
	"io"
	"log/slog"
	"os"
	"time"
)

// keyRead is one decoded rune (or error) read off a source.
type keyRead struct {
	key rune
	err error
}

// StdinInput is the default InputSource: it multiplexes stdin and an
// optional control FIFO (spec.md §6's control channel for scripted/remote
// control) behind a single channel, each fed by its own read goroutine,
// and bounds NextKey to timeout so the caller's clock redraw still fires
// on idle input.
type StdinInput struct {
	reads chan keyRead
}

// NewStdinInput starts the background readers. controlPath is optional;
// an empty string disables the control FIFO.
func NewStdinInput(controlPath string) *StdinInput {
	in := &StdinInput{reads: make(chan keyRead, 16)}
	in.pump(os.Stdin, "stdin")
	if controlPath != "" {
		go in.openControl(controlPath)
	}
	return in
}

func (in *StdinInput) openControl(path string) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		slog.Warn("dispatch: control fifo unavailable", "path", path, "error", err)
		return
	}
	in.pump(f, "control")
}

// pump starts a goroutine reading one rune at a time from r onto in.reads.
func (in *StdinInput) pump(r io.Reader, label string) {
	reader := bufio.NewReader(r)
	go func() {
		for {
			key, _, err := reader.ReadRune()
			if err != nil {
				in.reads <- keyRead{err: err}
				if err == io.EOF {
					return
				}
				slog.Warn("dispatch: input source error", "source", label, "error", err)
				return
			}
			in.reads <- keyRead{key: key}
		}
	}()
}

// NextKey blocks for at most timeout waiting for a keystroke from either
// source. ok is false on timeout, which callers use to drive the
// once-per-second play-clock redraw (spec.md §4.8).
func (in *StdinInput) NextKey(timeout time.Duration) (rune, bool, error) {
	select {
	case r := <-in.reads:
		if r.err != nil {
			if r.err == io.EOF {
				return 0, false, nil
			}
			return 0, false, r.err
		}
		return r.key, true, nil
	case <-time.After(timeout):
		return 0, false, nil
	}
}
