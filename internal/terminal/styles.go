// Package terminal provides styled stderr output and TTY detection.
package terminal

import (
	"os"

	"github.com/fatih/color"
	"golang.org/x/term"
)

var (
	infoColor    = color.New(color.FgCyan)
	successColor = color.New(color.FgGreen)
	warningColor = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed)
	dimColor     = color.New(color.Faint)
	phaseColor   = color.New(color.FgMagenta, color.Bold)
)

// SetColorsEnabled toggles color output globally.
func SetColorsEnabled(enabled bool) {
	color.NoColor = !enabled
}

// ColorsEnabled reports whether color output is enabled.
func ColorsEnabled() bool {
	return !color.NoColor
}

// WithColorsDisabled runs fn with colors disabled, then restores the
// previous state. Intended for tests.
func WithColorsDisabled(fn func()) {
	prev := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = prev }()
	fn()
}

// IsTTY returns true if the given file descriptor is a TTY.
func IsTTY(fd int) bool {
	return term.IsTerminal(fd)
}

// IsStdoutTTY returns true if stdout is a TTY.
func IsStdoutTTY() bool {
	return IsTTY(int(os.Stdout.Fd()))
}

// IsStderrTTY returns true if stderr is a TTY.
func IsStderrTTY() bool {
	return IsTTY(int(os.Stderr.Fd()))
}

// GetTerminalWidth returns the terminal width, or 80 if detection fails.
func GetTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return 80
	}
	return width
}
