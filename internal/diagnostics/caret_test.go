package diagnostics

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestCaretOffset(t *testing.T) {
	text := "a\nbb\nccc"

	tests := []struct {
		name string
		ref  Ref
		want int
	}{
		{"start of text", Ref{Line: 1, Column: 1}, 0},
		{"within line", Ref{Line: 2, Column: 2}, 3},
		{"end of line", Ref{Line: 2, Column: 3}, 4},
		{"column clamps to line end", Ref{Line: 1, Column: 50}, 1},
		{"line past end clamps to text end", Ref{Line: 5, Column: 1}, 8},
		{"last line", Ref{Line: 3, Column: 2}, 6},
		{"zero ref clamps to start", Ref{Line: 0, Column: 0}, 0},
		{"negative ref clamps to start", Ref{Line: -3, Column: -1}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CaretOffset(text, tt.ref))
		})
	}
}

func TestCaretOffsetEmptyText(t *testing.T) {
	assert.Equal(t, 0, CaretOffset("", Ref{Line: 1, Column: 1}))
	assert.Equal(t, 0, CaretOffset("", Ref{Line: 9, Column: 9}))
}

func TestCaretOffsetCountsRunes(t *testing.T) {
	text := "héllo\nwörld"

	// Line 2 starts after five runes and the newline.
	assert.Equal(t, 6, CaretOffset(text, Ref{Line: 2, Column: 1}))
	assert.Equal(t, 8, CaretOffset(text, Ref{Line: 2, Column: 3}))
}

func TestCaretOffsetNeverExceedsText(t *testing.T) {
	texts := []string{"", "x", "a\nbb\nccc", "trailing newline\n", "héllo"}
	refs := []Ref{{1, 1}, {0, 0}, {100, 100}, {3, 9}, {2, 1}}

	for _, text := range texts {
		for _, ref := range refs {
			got := CaretOffset(text, ref)
			assert.GreaterOrEqual(t, got, 0)
			assert.LessOrEqual(t, got, utf8.RuneCountInString(text))
		}
	}
}
