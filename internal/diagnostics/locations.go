// Package diagnostics extracts source locations from compiler and
// runtime output and maps them to caret offsets in the script text.
// It is pure text analysis with no coupling to process execution.
package diagnostics

import (
	"regexp"
	"sort"
	"strconv"

	"github.com/Amchestnut/KotlinRunnerX/internal/models"
)

// Ref is a 1-based line/column position in the script.
type Ref struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// MatchKind identifies which pattern family produced a match.
type MatchKind string

const (
	KindCompileError MatchKind = "compile-error"
	KindStackFrame   MatchKind = "stack-frame"
)

// Match is one clickable location span found in a single output line.
// Start and End are byte offsets into the scanned line; Text is the
// exact span content.
type Match struct {
	Start int       `json:"start"`
	End   int       `json:"end"`
	Text  string    `json:"text"`
	Ref   Ref       `json:"ref"`
	Kind  MatchKind `json:"kind"`
}

// Compiler diagnostics name the script with a line/column pair followed
// by the error marker: "script.kts:12:5: error: type mismatch". The
// token only counts at the start of the line or after a path separator;
// a longer filename that merely ends in the token is a different file.
// The span stops after the column digits; the trailing colon and marker
// are not part of the clickable text. Stack frames carry a parenthesized
// file:line with no column: "at App.run(script.kts:47)".
var (
	compileErrorPattern = regexp.MustCompile(
		`(?:^|[\\/])(` + regexp.QuoteMeta(models.ScriptFileName) + `:(\d+):(\d+)):\s+error\b`)
	stackFramePattern = regexp.MustCompile(
		`\((` + regexp.QuoteMeta(models.ScriptFileName) + `:(\d+))\)`)
)

// ScanLine finds every location span in one line of output. Each pattern
// family is applied left to right without overlap; where a stack-frame
// candidate overlaps a compile-error span, the compile-error match wins.
// Results are ordered by span start. Lines with no locations return an
// empty slice; ScanLine never fails.
func ScanLine(line string) []Match {
	var matches []Match

	for _, m := range compileErrorPattern.FindAllStringSubmatchIndex(line, -1) {
		start, end := m[2], m[3]
		matches = append(matches, Match{
			Start: start,
			End:   end,
			Text:  line[start:end],
			Ref: Ref{
				Line:   parsePosition(line[m[4]:m[5]]),
				Column: parsePosition(line[m[6]:m[7]]),
			},
			Kind: KindCompileError,
		})
	}

	for _, m := range stackFramePattern.FindAllStringSubmatchIndex(line, -1) {
		start, end := m[2], m[3]
		if overlapsAny(matches, start, end) {
			continue
		}
		matches = append(matches, Match{
			Start: start,
			End:   end,
			Text:  line[start:end],
			Ref: Ref{
				Line:   parsePosition(line[m[4]:m[5]]),
				Column: 1,
			},
			Kind: KindStackFrame,
		})
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Start < matches[j].Start })
	return matches
}

// parsePosition converts a digit run to a 1-based position. Zero and
// digit runs that do not fit an int both fall back to 1; the span
// itself stays intact either way.
func parsePosition(digits string) int {
	n, err := strconv.Atoi(digits)
	if err != nil || n < 1 {
		return 1
	}
	return n
}

func overlapsAny(matches []Match, start, end int) bool {
	for _, m := range matches {
		if start < m.End && end > m.Start {
			return true
		}
	}
	return false
}
