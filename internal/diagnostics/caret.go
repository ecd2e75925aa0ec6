package diagnostics

import (
	"strings"
	"unicode/utf8"
)

// CaretOffset maps a 1-based line/column ref to a 0-based character
// offset into text, counting runes the way an editor buffer does. It is
// total: line and column clamp to 1, a line past the end of text clamps
// to the end, and a column past the end of its line clamps to the line
// end. The result is always within [0, rune length of text].
func CaretOffset(text string, ref Ref) int {
	line := ref.Line
	if line < 1 {
		line = 1
	}
	col := ref.Column
	if col < 1 {
		col = 1
	}

	offset := 0
	rest := text
	for cur := 1; cur < line; cur++ {
		idx := strings.IndexByte(rest, '\n')
		if idx < 0 {
			return offset + utf8.RuneCountInString(rest)
		}
		offset += utf8.RuneCountInString(rest[:idx]) + 1
		rest = rest[idx+1:]
	}

	steps := col - 1
	for _, r := range rest {
		if steps == 0 || r == '\n' {
			break
		}
		offset++
		steps--
	}
	return offset
}
