package document

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"html"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/gubarz/mdr/internal/fence"
	"github.com/gubarz/mdr/internal/resolve"
)

// DefaultDiagramLanguage is the fenced code language treated as a diagram.
const DefaultDiagramLanguage = "mermaid"

// DiagramRenderer turns the body of a fenced diagram block into markup,
// typically SVG. Implementations report failures as errors; they must not
// panic.
type DiagramRenderer interface {
	RenderDiagram(ctx context.Context, lang, source string) (string, error)
}

// DiagramRendererFunc adapts a function to DiagramRenderer.
type DiagramRendererFunc func(ctx context.Context, lang, source string) (string, error)

// RenderDiagram calls f.
func (f DiagramRendererFunc) RenderDiagram(ctx context.Context, lang, source string) (string, error) {
	return f(ctx, lang, source)
}

// Diagrams substitutes rendered diagrams for fenced diagram blocks. A
// failing block is replaced by a visible error marker and never affects
// the rest of the document.
type Diagrams struct {
	Renderer DiagramRenderer
	Language string       // Fence language, DefaultDiagramLanguage if empty
	Dir      string       // Where SVGs for the Markdown path are written
	Logger   *slog.Logger // Optional

	once  sync.Once
	block *regexp.Regexp
}

func (d *Diagrams) language() string {
	if d.Language == "" {
		return DefaultDiagramLanguage
	}
	return d.Language
}

func (d *Diagrams) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

func (d *Diagrams) enabled() bool {
	return d != nil && d.Renderer != nil
}

// blockPattern matches a rendered diagram code block. It is compiled on
// first use; Language must not change afterwards.
func (d *Diagrams) blockPattern() *regexp.Regexp {
	d.once.Do(func() {
		d.block = regexp.MustCompile(`(?s)<pre><code class="language-` + regexp.QuoteMeta(d.language()) + `">(.*?)</code></pre>`)
	})
	return d.block
}

// ReplaceHTML finds rendered <pre><code class="language-LANG"> blocks in body
// and replaces each with the rendered diagram or an error block.
func (d *Diagrams) ReplaceHTML(ctx context.Context, body string) string {
	if !d.enabled() {
		return body
	}
	lang := d.language()
	re := d.blockPattern()

	return re.ReplaceAllStringFunc(body, func(block string) string {
		m := re.FindStringSubmatch(block)
		src := html.UnescapeString(m[1])
		svg, err := d.Renderer.RenderDiagram(ctx, lang, src)
		if err != nil {
			d.logger().Debug("diagram render failed", "lang", lang, "error", err)
			return diagramErrorHTML(err, src)
		}
		d.logger().Debug("diagram rendered", "lang", lang, "bytes", len(svg))
		return `<div class="mermaid-diagram">` + svg + `</div>`
	})
}

func diagramErrorHTML(err error, src string) string {
	return fmt.Sprintf(`<div class="mermaid-error"><strong>Diagram error:</strong> %s<pre><code>%s</code></pre></div>`,
		html.EscapeString(err.Error()), html.EscapeString(src))
}

// PreprocessMarkdown replaces diagram fences in Markdown source for
// surfaces that render Markdown themselves. A rendered diagram is written
// to Dir as SVG and referenced as an image; a failure becomes a quoted
// error marker followed by the diagram source as plain code.
func (d *Diagrams) PreprocessMarkdown(ctx context.Context, markdown string) string {
	if !d.enabled() {
		return markdown
	}
	lang := d.language()

	var out strings.Builder
	var block strings.Builder
	var marker, opening string
	inDiagram := false

	for _, line := range fence.Lines(markdown) {
		switch {
		case marker == "":
			if m, info, ok := fence.Open(line); ok {
				marker = m
				if info == lang {
					inDiagram = true
					opening = line
					block.Reset()
					continue
				}
			}
		case fence.Closes(line, marker):
			marker = ""
			if inDiagram {
				inDiagram = false
				out.WriteString(d.renderMarkdownBlock(ctx, lang, block.String()))
				continue
			}
		case inDiagram:
			block.WriteString(line)
			block.WriteByte('\n')
			continue
		}
		out.WriteString(line)
		out.WriteByte('\n')
	}

	// An unterminated diagram fence is left as it was written.
	if inDiagram {
		out.WriteString(opening + "\n")
		out.WriteString(block.String())
	}
	return out.String()
}

func (d *Diagrams) renderMarkdownBlock(ctx context.Context, lang, src string) string {
	svg, err := d.Renderer.RenderDiagram(ctx, lang, src)
	if err == nil {
		var path string
		path, err = d.writeSVG(src, svg)
		if err == nil {
			d.logger().Debug("diagram rendered", "lang", lang, "path", path)
			return fmt.Sprintf("![%s diagram](%s)\n", lang, resolve.FileURL(path))
		}
	}
	d.logger().Debug("diagram render failed", "lang", lang, "error", err)

	var b strings.Builder
	fmt.Fprintf(&b, "> **Diagram error:** %s\n\n", strings.ReplaceAll(err.Error(), "\n", " "))
	b.WriteString("```text\n")
	b.WriteString(src)
	b.WriteString("```\n")
	return b.String()
}

func (d *Diagrams) writeSVG(src, svg string) (string, error) {
	dir := d.Dir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "mdr", "diagrams")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("diagram dir: %w", err)
	}
	sum := sha256.Sum256([]byte(src))
	path := filepath.Join(dir, hex.EncodeToString(sum[:8])+".svg")
	if err := os.WriteFile(path, []byte(svg), 0o644); err != nil {
		return "", fmt.Errorf("write diagram: %w", err)
	}
	return path, nil
}
