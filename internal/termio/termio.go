// Package termio is the terminal I/O collaborator spec.md §1 lists as an
// out-of-scope interface: echo toggling for password prompts, line
// editing for text input, and the status-line protocol spec.md §7
// describes (type-specific prefix/suffix, always prefixed by an ANSI
// erase-line so it never corrupts the in-place play-clock).
package termio

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// MessageType selects the prefix/suffix spec.md §7 attaches to a status
// line.
type MessageType int

const (
	Info MessageType = iota
	Playing
	Time
	Err
	Question
	List
)

func (t MessageType) prefix() string {
	switch t {
	case Playing:
		return "|>  "
	case Time:
		return "#   "
	case Err:
		return "E>  "
	case Question:
		return "?   "
	case List:
		return "     "
	default:
		return "i   "
	}
}

// eraseLine is the ANSI sequence spec.md §7 requires before every status
// emission: clear from cursor to end of line, then return to column 0.
const eraseLine = "\x1b[K\r"

// Terminal is the line editor / echo toggle / status-line collaborator.
// Console is the default implementation; tests substitute a buffer-backed
// fake.
type Terminal interface {
	// Status writes one status line, always erasing the previous line
	// first so it never corrupts an in-place redraw (spec.md §7).
	Status(t MessageType, format string, args ...any)
	// ReadLine reads one line of visible input (station names, search
	// text).
	ReadLine(prompt string) (string, error)
	// ReadPassword reads one line with echo disabled.
	ReadPassword(prompt string) (string, error)
}

// Console is the default Terminal, backed by stdin/stdout and
// golang.org/x/term for raw-mode password entry.
type Console struct {
	In  *os.File
	Out io.Writer

	reader *bufio.Reader
}

// NewConsole builds a Console over stdin/stdout.
func NewConsole() *Console {
	return &Console{In: os.Stdin, Out: os.Stdout, reader: bufio.NewReader(os.Stdin)}
}

// Status implements Terminal.
func (c *Console) Status(t MessageType, format string, args ...any) {
	fmt.Fprint(c.Out, eraseLine)
	fmt.Fprint(c.Out, t.prefix())
	fmt.Fprintf(c.Out, format, args...)
	fmt.Fprintln(c.Out)
}

// ReadLine implements Terminal.
func (c *Console) ReadLine(prompt string) (string, error) {
	fmt.Fprint(c.Out, prompt)
	line, err := c.reader.ReadString('\n')
	return trimNewline(line), err
}

// ReadPassword implements Terminal, disabling local echo for the
// duration of the read via golang.org/x/term.
func (c *Console) ReadPassword(prompt string) (string, error) {
	fmt.Fprint(c.Out, prompt)
	fd := int(c.In.Fd())
	if !term.IsTerminal(fd) {
		// Not a real tty (piped input, tests): fall back to a plain
		// line read rather than failing the raw-mode syscall.
		return c.ReadLine("")
	}
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(c.Out)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func trimNewline(s string) string {
	if n := len(s); n > 0 && s[n-1] == '\n' {
		s = s[:n-1]
	}
	if n := len(s); n > 0 && s[n-1] == '\r' {
		s = s[:n-1]
	}
	return s
}
