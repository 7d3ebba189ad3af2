package terminal

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

// Style represents a log message style.
type Style string

const (
	StyleInfo    Style = "info"
	StyleSuccess Style = "success"
	StyleWarning Style = "warning"
	StyleError   Style = "error"
	StyleDim     Style = "dim"
	StylePhase   Style = "phase"
)

func styleOf(s Style) *color.Color {
	switch s {
	case StyleSuccess:
		return successColor
	case StyleWarning:
		return warningColor
	case StyleError:
		return errorColor
	case StyleDim:
		return dimColor
	case StylePhase:
		return phaseColor
	default:
		return infoColor
	}
}

// Logger provides styled logging, stderr by default.
type Logger struct {
	out   io.Writer
	isTTY bool
}

// NewLogger creates a logger writing to stderr.
func NewLogger() *Logger {
	return &Logger{
		out:   os.Stderr,
		isTTY: IsStderrTTY(),
	}
}

// NewTestLogger creates a logger writing to w, for capturing output in tests.
func NewTestLogger(w io.Writer) *Logger {
	return &Logger{out: w}
}

// Log prints a styled log message.
func (l *Logger) Log(msg string, style Style) {
	// Clear any in-progress line when attached to a terminal.
	if l.isTTY {
		fmt.Fprint(l.out, "\r\033[K")
	}
	tag := dimColor.Sprint("[") + styleOf(style).Sprint("arl") + dimColor.Sprint("]")
	fmt.Fprintf(l.out, "%s %s\n", tag, msg)
}

// Logf prints a formatted styled log message.
func (l *Logger) Logf(style Style, format string, args ...any) {
	l.Log(fmt.Sprintf(format, args...), style)
}

// Log prints a styled log message to stderr (package-level function).
func Log(msg string, style Style) {
	NewLogger().Log(msg, style)
}

// Logf prints a formatted styled log message to stderr (package-level function).
func Logf(style Style, format string, args ...any) {
	Log(fmt.Sprintf(format, args...), style)
}
