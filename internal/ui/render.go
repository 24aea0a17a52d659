package ui

import (
	"fmt"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/styles"
)

// SectionRenderer turns one Markdown section into terminal output.
type SectionRenderer interface {
	Render(markdown string, width int) (string, error)
}

// GlamourRenderer renders with glamour. A term renderer is kept per wrap
// width and rebuilt when the width changes.
type GlamourRenderer struct {
	// Theme is "auto", a glamour standard style name or a style file path.
	// "auto" must be resolved with ResolveTheme before rendering starts;
	// until then it renders with the dark style.
	Theme string

	width int
	tr    *glamour.TermRenderer
}

// NewGlamourRenderer creates a renderer for theme.
func NewGlamourRenderer(theme string) *GlamourRenderer {
	return &GlamourRenderer{Theme: theme}
}

// ResolveTheme replaces an "auto" theme with dark or light. hasDark is
// only called for "auto".
func (g *GlamourRenderer) ResolveTheme(hasDark func() bool) {
	if g.Theme != "" && g.Theme != "auto" {
		return
	}
	g.Theme = styles.LightStyle
	if hasDark() {
		g.Theme = styles.DarkStyle
	}
	g.tr = nil
}

// Render implements SectionRenderer.
func (g *GlamourRenderer) Render(markdown string, width int) (string, error) {
	if g.tr == nil || g.width != width {
		tr, err := glamour.NewTermRenderer(g.styleOption(), glamour.WithWordWrap(width))
		if err != nil {
			return "", fmt.Errorf("glamour renderer: %w", err)
		}
		g.tr, g.width = tr, width
	}
	return g.tr.Render(markdown)
}

func (g *GlamourRenderer) styleOption() glamour.TermRendererOption {
	switch {
	case g.Theme == "" || g.Theme == "auto":
		return glamour.WithStandardStyle(styles.DarkStyle)
	case styles.DefaultStyles[g.Theme] != nil:
		return glamour.WithStandardStyle(g.Theme)
	}
	return glamour.WithStylePath(g.Theme)
}
