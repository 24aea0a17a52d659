package document

import (
	"bytes"
	"fmt"
	"regexp"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// TocEntry is one heading of the document, in document order.
type TocEntry struct {
	Level  int    // Heading level, 1..6
	Text   string // Plain heading text
	Anchor string // Slug(Text), also the rendered heading id
}

// Extensions returns the fixed extension set used for both the structural
// (TOC) pass and the HTML pass.
func Extensions() []goldmark.Extender {
	return []goldmark.Extender{
		extension.Strikethrough,
		extension.Table,
		extension.Linkify,
		extension.TaskList,
		extension.Footnote,
	}
}

// Parser wraps goldmark. A single goldmark instance and a single parsed
// tree feed both the TOC and the rendered body, so heading ids and TOC
// anchors cannot drift apart.
type Parser struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

// ParserOption configures a Parser.
type ParserOption func(*Parser)

// WithSanitizer runs the rendered body through policy. A nil policy
// disables sanitizing.
func WithSanitizer(policy *bluemonday.Policy) ParserOption {
	return func(p *Parser) { p.policy = policy }
}

// NewParser creates a parser with the fixed extension set. Raw HTML in the
// source is omitted from the output.
func NewParser(opts ...ParserOption) *Parser {
	p := &Parser{
		md: goldmark.New(goldmark.WithExtensions(Extensions()...)),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// TOC extracts the table of contents without rendering.
func (p *Parser) TOC(source []byte) []TocEntry {
	doc := p.md.Parser().Parse(text.NewReader(source))
	return assignAnchors(doc, source)
}

// Parse returns the TOC and the rendered HTML body. Every heading in the
// body carries id="<anchor>" matching its TOC entry.
func (p *Parser) Parse(source []byte) ([]TocEntry, string, error) {
	doc := p.md.Parser().Parse(text.NewReader(source))
	toc := assignAnchors(doc, source)

	var buf bytes.Buffer
	if err := p.md.Renderer().Render(&buf, source, doc); err != nil {
		return nil, "", fmt.Errorf("render markdown: %w", err)
	}

	body := buf.String()
	if p.policy != nil {
		body = p.policy.Sanitize(body)
	}
	return toc, body, nil
}

// assignAnchors walks the tree once, collecting TOC entries and writing the
// same anchor onto each heading node as its id attribute.
func assignAnchors(doc ast.Node, source []byte) []TocEntry {
	var entries []TocEntry
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		txt := headingText(h, source)
		anchor := Slug(txt)
		h.SetAttributeString("id", []byte(anchor))
		entries = append(entries, TocEntry{Level: h.Level, Text: txt, Anchor: anchor})
		return ast.WalkSkipChildren, nil
	})
	return entries
}

// headingText concatenates the text and code span content below h,
// ignoring emphasis, links and other inline markup. Backslash escapes and
// character references outside code spans are resolved the way the HTML
// renderer resolves them.
func headingText(h *ast.Heading, source []byte) string {
	var b, pending bytes.Buffer
	flush := func() {
		b.Write(unescapeInline(pending.Bytes()))
		pending.Reset()
	}

	_ = ast.Walk(h, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n := n.(type) {
		case *ast.Text:
			seg := n.Segment.Value(source)
			if _, inCode := n.Parent().(*ast.CodeSpan); inCode {
				flush()
				b.Write(seg)
			} else {
				pending.Write(seg)
			}
			if n.SoftLineBreak() {
				pending.WriteByte(' ')
			}
		case *ast.String:
			flush()
			b.Write(n.Value)
		case *ast.AutoLink:
			flush()
			b.Write(n.Label(source))
			return ast.WalkSkipChildren, nil
		case *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	flush()
	return b.String()
}

func unescapeInline(seg []byte) []byte {
	out := util.UnescapePunctuations(seg)
	out = util.ResolveNumericReferences(out)
	return util.ResolveEntityNames(out)
}

var (
	codeLanguageClass = regexp.MustCompile(`^language-[\w+#.-]+$`)
	checkboxType      = regexp.MustCompile(`^checkbox$`)
)

// SanitizePolicy is the UGC policy extended with what the renderer emits:
// heading ids, code language classes, footnote markup and task list
// checkboxes.
func SanitizePolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("id").OnElements("h1", "h2", "h3", "h4", "h5", "h6", "li", "sup", "div")
	p.AllowAttrs("class").Matching(codeLanguageClass).OnElements("code")
	p.AllowAttrs("class", "role").OnElements("a", "div", "sup", "hr", "li")
	p.AllowElements("input", "section")
	p.AllowAttrs("type").Matching(checkboxType).OnElements("input")
	p.AllowAttrs("checked", "disabled").OnElements("input")
	p.AllowAttrs("align").OnElements("th", "td")
	p.AllowStyles("text-align").OnElements("th", "td")
	return p
}
