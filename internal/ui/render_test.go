package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveThemeAuto(t *testing.T) {
	tests := []struct {
		theme string
		dark  bool
		want  string
	}{
		{"auto", true, "dark"},
		{"auto", false, "light"},
		{"", true, "dark"},
	}
	for _, tt := range tests {
		t.Run(tt.theme+"/"+tt.want, func(t *testing.T) {
			calls := 0
			g := NewGlamourRenderer(tt.theme)
			g.ResolveTheme(func() bool {
				calls++
				return tt.dark
			})
			assert.Equal(t, tt.want, g.Theme)
			assert.Equal(t, 1, calls)
		})
	}
}

func TestResolveThemeExplicit(t *testing.T) {
	g := NewGlamourRenderer("dracula")
	g.ResolveTheme(func() bool {
		t.Fatal("background queried for an explicit theme")
		return true
	})
	assert.Equal(t, "dracula", g.Theme)
}

func TestGlamourRendererRebuildsOnWidth(t *testing.T) {
	g := NewGlamourRenderer("auto")
	g.ResolveTheme(func() bool { return true })

	out, err := g.Render("# Title\n\nsome text\n", 40)
	require.NoError(t, err)
	assert.Contains(t, out, "Title")
	first := g.tr

	_, err = g.Render("# Title\n", 40)
	require.NoError(t, err)
	assert.Same(t, first, g.tr)

	_, err = g.Render("# Title\n", 60)
	require.NoError(t, err)
	assert.NotSame(t, first, g.tr)
	assert.Equal(t, 60, g.width)
}

func TestGlamourRendererBadStyleFile(t *testing.T) {
	g := NewGlamourRenderer("/nonexistent/style.json")
	_, err := g.Render("# x\n", 40)
	assert.ErrorContains(t, err, "glamour renderer")
}
