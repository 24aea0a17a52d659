package ui

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"

	"github.com/gubarz/mdr/internal/document"
)

// ============================================================================
// Source
// ============================================================================

// Source supplies snapshots. reload.Coordinator implements it.
type Source interface {
	Snapshot() *document.Snapshot
	Poll() (*document.Snapshot, bool)
}

// Options tunes the viewer.
type Options struct {
	// Title is shown in the status bar.
	Title string
	// Interval is how often the source is polled. Default: 500ms.
	Interval time.Duration
	// TOCWidth is the sidebar width in cells. Default: 32.
	TOCWidth int
	// Renderer renders sections. Default: glamour with the auto style.
	Renderer SectionRenderer
	// Styles overrides DefaultStyles.
	Styles *StyleManager
	// Logger overrides the default slog logger.
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.Interval <= 0 {
		o.Interval = 500 * time.Millisecond
	}
	if o.TOCWidth <= 0 {
		o.TOCWidth = 32
	}
	if o.Renderer == nil {
		o.Renderer = NewGlamourRenderer("auto")
	}
	if o.Styles == nil {
		o.Styles = DefaultStyles()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// ============================================================================
// Poll Tick
// ============================================================================

// pollMsg asks the model to check the source for a new snapshot
type pollMsg struct{}

// pollTick returns a command that triggers a poll after d
func pollTick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg {
		return pollMsg{}
	})
}

// ============================================================================
// Model
// ============================================================================

// focusArea is the pane receiving navigation keys
type focusArea int

const (
	focusContent focusArea = iota
	focusTOC
)

// Model is the terminal viewer. It consumes the section sequence of a
// snapshot, renders each section once and caches the result until the
// next reload or width change.
type Model struct {
	src    Source
	opts   Options
	styles *StyleManager
	keys   keyMap
	help   help.Model

	snap     *document.Snapshot
	viewport viewport.Model
	width    int
	height   int
	ready    bool
	quitting bool

	showTOC   bool
	focus     focusArea
	cursor    int // selected TOC entry
	tocOffset int

	cache      map[int]string
	cacheWidth int
	offsets    []int // first content line of each section

	// scrollTarget is a section index, consumed by the next render pass.
	scrollTarget int
	hasTarget    bool

	renderErr error
}

// New creates a viewer for src.
func New(src Source, opts Options) Model {
	opts.defaults()
	return Model{
		src:     src,
		opts:    opts,
		styles:  opts.Styles,
		keys:    defaultKeyMap(),
		help:    help.New(),
		snap:    src.Snapshot(),
		showTOC: true,
		cache:   make(map[int]string),
	}
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return pollTick(m.opts.Interval)
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.layout()
		m.renderPass()
		return m, nil

	case pollMsg:
		if snap, changed := m.src.Poll(); changed {
			m.apply(snap)
		}
		return m, pollTick(m.opts.Interval)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}
	return m, nil
}

// apply swaps in a new snapshot. Cached section renders belong to the old
// section sequence and are discarded; the scroll position is kept.
func (m *Model) apply(snap *document.Snapshot) {
	m.snap = snap
	clear(m.cache)
	m.setCursor(m.cursor)
	m.opts.Logger.Debug("tui: reloaded", "version", snap.Version, "sections", len(snap.Sections))
	m.renderPass()
}

// handleKey processes keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit
	case key.Matches(msg, m.keys.ToggleTOC):
		m.showTOC = !m.showTOC
		if !m.showTOC {
			m.focus = focusContent
		}
		m.layout()
		m.renderPass()
		return m, nil
	case key.Matches(msg, m.keys.Focus):
		if m.sidebarWidth() > 0 && m.focus == focusContent {
			m.focus = focusTOC
			if toc, ok := m.activeTOC(); ok {
				m.setCursor(toc)
			}
		} else {
			m.focus = focusContent
		}
		return m, nil
	case key.Matches(msg, m.keys.NextHead):
		m.jumpHeading(1)
		return m, nil
	case key.Matches(msg, m.keys.PrevHead):
		m.jumpHeading(-1)
		return m, nil
	}

	if m.focus == focusTOC {
		switch {
		case key.Matches(msg, m.keys.Up):
			m.moveCursor(-1)
		case key.Matches(msg, m.keys.Down):
			m.moveCursor(1)
		case key.Matches(msg, m.keys.Top):
			m.setCursor(0)
		case key.Matches(msg, m.keys.Bottom):
			m.setCursor(len(m.snap.TOC) - 1)
		case key.Matches(msg, m.keys.Select):
			m.activate(m.cursor)
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Top):
		m.viewport.GotoTop()
		return m, nil
	case key.Matches(msg, m.keys.Bottom):
		m.viewport.GotoBottom()
		return m, nil
	}
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// moveCursor moves the TOC cursor by delta, clamping to valid range
func (m *Model) moveCursor(delta int) {
	m.setCursor(m.cursor + delta)
}

// setCursor places the TOC cursor and keeps it inside the sidebar window
func (m *Model) setCursor(i int) {
	m.cursor = clamp(i, 0, max(0, len(m.snap.TOC)-1))
	rows := maxInt(m.viewport.Height-1, 1)
	offset := m.tocOffset
	scrollWindow(m.cursor, len(m.snap.TOC), rows, &offset)
	m.tocOffset = offset
}

// activate sets the scroll target to the section of TOC entry i
func (m *Model) activate(i int) {
	idx, ok := m.snap.SectionIndex(i)
	if !ok {
		return
	}
	m.setCursor(i)
	m.scrollTarget = idx
	m.hasTarget = true
	m.renderPass()
}

// jumpHeading activates the heading delta entries away from the current one
func (m *Model) jumpHeading(delta int) {
	if len(m.snap.TOC) == 0 {
		return
	}
	cur, ok := m.activeTOC()
	switch {
	case ok:
		cur += delta
	case delta > 0:
		cur = 0 // still in the preamble
	default:
		return
	}
	if cur >= 0 && cur < len(m.snap.TOC) {
		m.activate(cur)
	}
}

// currentSection returns the section at the top of the viewport
func (m *Model) currentSection() int {
	cur := 0
	for i, off := range m.offsets {
		if off > m.viewport.YOffset {
			break
		}
		cur = i
	}
	return cur
}

// activeTOC maps the current section back onto its TOC entry
func (m *Model) activeTOC() (int, bool) {
	if len(m.offsets) == 0 {
		return 0, false
	}
	toc := m.currentSection()
	if m.snap.HasPreamble {
		toc--
	}
	if toc < 0 || toc >= len(m.snap.TOC) {
		return 0, false
	}
	return toc, true
}

// ============================================================================
// Layout and Rendering
// ============================================================================

// sidebarWidth returns the TOC width, or 0 when hidden or too narrow
func (m *Model) sidebarWidth() int {
	if !m.showTOC || m.width < m.opts.TOCWidth+20 {
		return 0
	}
	return m.opts.TOCWidth
}

// layout sizes the viewport to the terminal
func (m *Model) layout() {
	w := m.width
	if sw := m.sidebarWidth(); sw > 0 {
		w -= sw + 1 // border
	}
	h := maxInt(m.height-1, 1) // status bar
	if !m.ready {
		m.viewport = viewport.New(w, h)
		m.ready = true
		return
	}
	m.viewport.Width = w
	m.viewport.Height = h
}

// renderPass rebuilds the viewport content from the section cache and
// consumes a pending scroll target.
func (m *Model) renderPass() {
	if !m.ready || m.snap == nil {
		return
	}
	width := m.viewport.Width
	if width != m.cacheWidth {
		clear(m.cache)
		m.cacheWidth = width
	}

	b := getBuilder()
	defer putBuilder(b)
	offsets := make([]int, 0, len(m.snap.Sections))
	line := 0
	m.renderErr = nil
	for i, section := range m.snap.Sections {
		out, ok := m.cache[i]
		if !ok {
			out = m.renderSection(section, width)
			m.cache[i] = out
		}
		offsets = append(offsets, line)
		b.WriteString(out)
		line += strings.Count(out, "\n")
	}
	if len(m.snap.Sections) == 0 {
		b.WriteString(m.styles.Dim.Render("(empty document)"))
	}
	m.offsets = offsets
	m.viewport.SetContent(b.String())

	if m.hasTarget {
		m.hasTarget = false
		if m.scrollTarget < len(offsets) {
			m.viewport.SetYOffset(offsets[m.scrollTarget])
		}
	}
}

// renderSection renders one section; a failure shows the source as-is
func (m *Model) renderSection(section string, width int) string {
	out, err := m.opts.Renderer.Render(section, width)
	if err != nil {
		m.renderErr = err
		m.opts.Logger.Debug("tui: section render failed", "error", err)
		out = m.styles.Error.Render("render error: "+err.Error()) + "\n" + section
	}
	if !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	return out
}

// View implements tea.Model
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "loading…"
	}

	body := m.viewport.View()
	if sw := m.sidebarWidth(); sw > 0 {
		side := m.styles.Border.
			Width(sw).
			Height(m.viewport.Height).
			Render(m.renderTOC(sw, m.viewport.Height))
		body = lipgloss.JoinHorizontal(lipgloss.Top, side, body)
	}
	return body + "\n" + m.renderStatus()
}

// renderTOC renders the sidebar lines
func (m Model) renderTOC(width, height int) string {
	b := getBuilder()
	defer putBuilder(b)

	b.WriteString(m.styles.SidebarTitle.Render("CONTENTS"))
	rows := maxInt(height-1, 1)
	entries := m.snap.TOC
	if len(entries) == 0 {
		b.WriteString("\n" + m.styles.Dim.Render("no headings"))
		return b.String()
	}

	active, hasActive := m.activeTOC()
	offset := m.tocOffset
	start, end := scrollWindow(m.cursor, len(entries), rows, &offset)
	for i := start; i < end; i++ {
		e := entries[i]
		label := strings.Repeat("  ", clamp(e.Level-1, 0, 5)) + e.Text
		label = truncate.StringWithTail(label, uint(maxInt(width-2, 1)), "…")

		style := m.styles.tocStyle(e.Level, hasActive && i == active)
		prefix := "  "
		if m.focus == focusTOC && i == m.cursor {
			prefix = m.styles.Cursor.Render("› ")
			style = m.styles.WithSelection(style)
		}
		b.WriteString("\n" + prefix + style.Render(label))
	}
	return b.String()
}

// renderStatus renders the bottom bar: title, version, position and keys
func (m Model) renderStatus() string {
	left := m.styles.Title.Render(m.opts.Title)
	if m.snap != nil {
		left += m.styles.Dim.Render(fmt.Sprintf(" v%d", m.snap.Version))
	}
	if m.renderErr != nil {
		left += " " + m.styles.Error.Render("render error")
	}
	right := m.styles.StatusBar.Render(fmt.Sprintf("%3.f%%", m.viewport.ScrollPercent()*100))

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	mid := ""
	if gap > 10 {
		m.help.Width = gap
		mid = truncate.StringWithTail(m.help.View(m.keys), uint(gap), "…")
	}
	pad := maxInt(m.width-lipgloss.Width(left)-lipgloss.Width(mid)-lipgloss.Width(right), 1)
	line := left + " " + mid + strings.Repeat(" ", maxInt(pad-1, 0)) + right
	return truncate.String(line, uint(maxInt(m.width, 1)))
}
