package cli

import (
	"os"

	"golang.org/x/term"
)

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// Width returns the column count of the terminal behind f, or 0 when f is
// not a terminal.
func Width(f *os.File) int {
	if !IsTerminal(f) {
		return 0
	}
	w, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}
	return w
}

// NewTerminalDisplay returns a Display on stdout, styled and wrapped when
// stdout is a terminal.
func NewTerminalDisplay() *Display {
	return NewDisplay(os.Stdout, Width(os.Stdout), IsTerminal(os.Stdout))
}
