package terminal

import (
	"fmt"
	"strings"
	"time"
)

// MaxReportWidth is the maximum width for rendered reports.
const MaxReportWidth = 90

// FormatDuration formats a duration in human-readable form.
func FormatDuration(d time.Duration) string {
	secs := d.Seconds()
	if secs < 60 {
		return fmt.Sprintf("%.1fs", secs)
	}
	mins := int(secs / 60)
	return fmt.Sprintf("%dm %.1fs", mins, secs-float64(mins*60))
}

// WrapText wraps text to width, prefixing each line with indent.
func WrapText(text string, width int, indent string) string {
	if width <= len(indent) {
		return indent + text
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}

	var lines []string
	var line strings.Builder
	line.WriteString(indent)
	lineWidth := len(indent)

	for i, word := range words {
		if i == 0 {
			line.WriteString(word)
			lineWidth += len(word)
			continue
		}
		if lineWidth+1+len(word) > width {
			lines = append(lines, line.String())
			line.Reset()
			line.WriteString(indent)
			line.WriteString(word)
			lineWidth = len(indent) + len(word)
		} else {
			line.WriteString(" ")
			line.WriteString(word)
			lineWidth += 1 + len(word)
		}
	}

	if line.Len() > 0 {
		lines = append(lines, line.String())
	}
	return strings.Join(lines, "\n")
}

// ReportWidth returns the report width capped at MaxReportWidth.
func ReportWidth() int {
	w := GetTerminalWidth()
	if w > MaxReportWidth {
		return MaxReportWidth
	}
	return w
}
