package document

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"
)

// Mode selects the rendered form a Pipeline produces.
type Mode int

const (
	// ModeWhole renders one HTML body, for surfaces that replace their
	// whole content on every change.
	ModeWhole Mode = iota
	// ModeSections splits Markdown into sections, for surfaces that patch
	// and cache per section.
	ModeSections
)

func (m Mode) String() string {
	switch m {
	case ModeWhole:
		return "whole"
	case ModeSections:
		return "sections"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Snapshot is the complete result of one parse pass. It is never modified
// after Build returns; a reparse produces a new Snapshot.
type Snapshot struct {
	Source string
	TOC    []TocEntry

	// ModeWhole
	Body    string // Rendered HTML
	TOCHTML string // <li> fragment for the sidebar list

	// ModeSections
	HasPreamble bool
	Sections    []string

	Version  uint64
	LoadedAt time.Time
}

// SectionIndex maps a TOC entry index onto the section that holds its
// heading.
func (s *Snapshot) SectionIndex(tocIndex int) (int, bool) {
	if tocIndex < 0 || tocIndex >= len(s.TOC) {
		return 0, false
	}
	idx := tocIndex
	if s.HasPreamble {
		idx++
	}
	if idx >= len(s.Sections) {
		return 0, false
	}
	return idx, true
}

// ResourceResolver rewrites embedded image references.
type ResourceResolver interface {
	Markdown(text string) string
	HTML(text string) string
}

// Pipeline turns source text into a Snapshot.
type Pipeline struct {
	Mode     Mode
	Parser   *Parser
	Resolver ResourceResolver // Optional
	Diagrams *Diagrams        // Optional
	Logger   *slog.Logger     // Optional
}

// Build runs the pipeline over source. It performs no I/O of its own
// beyond what the diagram renderer does.
func (p *Pipeline) Build(ctx context.Context, source []byte) (*Snapshot, error) {
	parser := p.Parser
	if parser == nil {
		parser = NewParser()
	}
	snap := &Snapshot{
		Source:   string(source),
		LoadedAt: time.Now(),
	}

	switch p.Mode {
	case ModeWhole:
		toc, body, err := parser.Parse(source)
		if err != nil {
			return nil, err
		}
		body = p.Diagrams.ReplaceHTML(ctx, body)
		if p.Resolver != nil {
			body = p.Resolver.HTML(body)
		}
		snap.TOC = toc
		snap.Body = body
		snap.TOCHTML = RenderTOC(toc)

	case ModeSections:
		snap.TOC = parser.TOC(source)
		md := p.Diagrams.PreprocessMarkdown(ctx, snap.Source)
		if p.Resolver != nil {
			md = p.Resolver.Markdown(md)
		}
		snap.HasPreamble, snap.Sections = Split(md)

	default:
		return nil, fmt.Errorf("unknown pipeline mode %v", p.Mode)
	}

	p.logger().Debug("document built",
		"mode", p.Mode,
		"headings", len(snap.TOC),
		"sections", len(snap.Sections),
		"bytes", len(source))
	return snap, nil
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

// RenderTOC renders TOC entries as sidebar list items.
func RenderTOC(entries []TocEntry) string {
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, `<li class="toc-h%d"><a href="#%s">%s</a></li>`,
			e.Level, html.EscapeString(e.Anchor), html.EscapeString(e.Text))
	}
	return b.String()
}
