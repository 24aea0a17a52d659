package ui

import (
	"github.com/charmbracelet/lipgloss"
)

// StyleManager encapsulates all TUI styles
type StyleManager struct {
	// Sidebar styles
	SidebarTitle lipgloss.Style
	TocItem      lipgloss.Style
	TocActive    lipgloss.Style
	TocDeep      lipgloss.Style
	Cursor       lipgloss.Style
	Selected     lipgloss.Style

	// Chrome styles
	Border    lipgloss.Style
	StatusBar lipgloss.Style
	Title     lipgloss.Style
	Dim       lipgloss.Style
	Error     lipgloss.Style

	// Colors for direct access
	SelectedBg  lipgloss.Color
	BorderColor lipgloss.Color
}

// DefaultStyles returns a StyleManager with default styles
func DefaultStyles() *StyleManager {
	s := &StyleManager{
		SelectedBg:  lipgloss.Color("236"),
		BorderColor: lipgloss.Color("240"),
	}
	s.SidebarTitle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("245"))
	s.TocItem = lipgloss.NewStyle()
	s.TocActive = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	s.TocDeep = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	s.Cursor = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	s.Selected = lipgloss.NewStyle().Background(s.SelectedBg)
	s.Border = lipgloss.NewStyle().
		Border(lipgloss.NormalBorder(), false, true, false, false).
		BorderForeground(s.BorderColor)
	s.StatusBar = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	s.Title = lipgloss.NewStyle().Bold(true)
	s.Dim = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	s.Error = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	return s
}

// WithSelection returns a copy of the given style with the selected background applied
func (s *StyleManager) WithSelection(style lipgloss.Style) lipgloss.Style {
	return style.Background(s.SelectedBg)
}

// tocStyle picks the entry style by heading level
func (s *StyleManager) tocStyle(level int, active bool) lipgloss.Style {
	switch {
	case active:
		return s.TocActive
	case level >= 4:
		return s.TocDeep
	default:
		return s.TocItem
	}
}
