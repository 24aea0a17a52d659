package fence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOpen(t *testing.T) {
	tests := []struct {
		line   string
		marker string
		lang   string
		ok     bool
	}{
		{"```", "```", "", true},
		{"```go", "```", "go", true},
		{"````mermaid title", "````", "mermaid", true},
		{"   ~~~ sh", "~~~", "sh", true},
		{"~~~x`y", "~~~", "x`y", true},
		{"```x`y", "", "", false},
		{"``", "", "", false},
		{"    ```", "", "", false},
		{"text ```", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			marker, lang, ok := Open(tt.line)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.marker, marker)
			assert.Equal(t, tt.lang, lang)
		})
	}
}

func TestCloses(t *testing.T) {
	assert.True(t, Closes("```", "```"))
	assert.True(t, Closes("`````  ", "```"))
	assert.False(t, Closes("``", "```"))
	assert.False(t, Closes("~~~", "```"))
	assert.False(t, Closes("``` go", "```"))
}

func TestTracker(t *testing.T) {
	lines := []string{"a", "```md", "# not", "```", "b", "```x`y", "c"}
	want := []bool{false, true, true, true, false, false, false}

	var tr Tracker
	for i, line := range lines {
		assert.Equal(t, want[i], tr.Next(line), "line %d %q", i, line)
	}
	assert.False(t, tr.Inside())
}

func TestLines(t *testing.T) {
	assert.Nil(t, Lines(""))
	assert.Equal(t, []string{"a", "b"}, Lines("a\r\nb\n"))
	assert.Equal(t, []string{"a", ""}, Lines("a\n\n"))
}

func TestCodeSpans(t *testing.T) {
	tests := []struct {
		line  string
		spans [][2]int
	}{
		{"no code", nil},
		{"`a` and `b`", [][2]int{{0, 3}, {8, 11}}},
		{"``a`b`` x", [][2]int{{0, 7}}},
		{"`open only", nil},
		{"``a` `b``", [][2]int{{0, 9}}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			assert.Equal(t, tt.spans, CodeSpans(tt.line))
		})
	}
	assert.True(t, InSpan([][2]int{{2, 5}}, 2))
	assert.False(t, InSpan([][2]int{{2, 5}}, 5))
}
