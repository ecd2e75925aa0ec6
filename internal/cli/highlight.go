package cli

import (
	"strings"

	"github.com/Amchestnut/KotlinRunnerX/internal/diagnostics"
)

// highlightLine colors one line of run output for a terminal: location
// spans become cyan and underlined so they read as clickable, and
// stderr lines are red around them. Returns the line untouched when
// color is off.
func highlightLine(line string, stderr bool, matches []diagnostics.Match) string {
	if !colorEnabled() {
		return line
	}
	base := ""
	if stderr {
		base = colorRed
	}
	return paintSpans(line, base, matches)
}

// paintSpans applies the span and base colors unconditionally; the
// caller decides whether color is appropriate. Matches must be
// non-overlapping and ordered by start, which is what ScanLine yields.
func paintSpans(line, base string, matches []diagnostics.Match) string {
	paint := func(text, color string) string {
		if text == "" || color == "" {
			return text
		}
		return color + text + colorReset
	}

	if len(matches) == 0 {
		return paint(line, base)
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		if m.Start < last || m.End > len(line) {
			continue
		}
		b.WriteString(paint(line[last:m.Start], base))
		b.WriteString(paint(line[m.Start:m.End], colorCyan+colorUnderline))
		last = m.End
	}
	b.WriteString(paint(line[last:], base))
	return b.String()
}
