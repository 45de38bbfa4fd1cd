package control

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownCommand is returned by ParseCommand for unrecognised input.
var ErrUnknownCommand = errors.New("control: unknown command")

// Command is an operator instruction to the scheduler.
type Command int

// Commands.
const (
	Pause Command = iota + 1
	Resume
	Quit
)

// String returns the command word.
func (c Command) String() string {
	switch c {
	case Pause:
		return "pause"
	case Resume:
		return "resume"
	case Quit:
		return "quit"
	default:
		return fmt.Sprintf("command(%d)", int(c))
	}
}

// ParseCommand accepts the single-key console shortcuts (q, w, r) and the
// full words, case-insensitively and ignoring surrounding whitespace.
func ParseCommand(s string) (Command, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "w", "pause":
		return Pause, nil
	case "r", "resume":
		return Resume, nil
	case "q", "quit":
		return Quit, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownCommand, s)
	}
}
