// Package resolve rewrites relative image references so that a viewer
// whose document root is not the Markdown file's directory can still load
// them.
package resolve

import (
	"html"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gubarz/mdr/internal/fence"
)

var (
	markdownImage = regexp.MustCompile(`!\[([^\]]*)\]\(([^)\s]+)(\s+"[^"]*")?\)`)
	htmlImage     = regexp.MustCompile(`<img\s+src="([^"]+)"`)
)

// Resolver maps image references onto absolute, loadable locations.
type Resolver struct {
	// BaseDir is the canonical directory relative references resolve
	// against.
	BaseDir string
	// URL turns an absolute file path into the reference written back. It
	// defaults to FileURL.
	URL func(path string) string
	// Prefix marks references this resolver already produced when URL
	// emits something other than file:// URLs (for example "/_local").
	Prefix string
	// Logger is optional.
	Logger *slog.Logger
}

// New returns a Resolver for the directory containing file. The directory
// is canonicalized once; if that fails the cleaned path is used as-is.
func New(file string) *Resolver {
	dir := filepath.Dir(file)
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	if real, err := filepath.EvalSymlinks(dir); err == nil {
		dir = real
	}
	return &Resolver{BaseDir: dir}
}

// Markdown rewrites ![alt](src "title") references. Fenced code blocks
// and inline code spans are left as written.
func (r *Resolver) Markdown(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	var fences fence.Tracker
	for _, line := range strings.SplitAfter(text, "\n") {
		if fences.Next(strings.TrimRight(line, "\r\n")) {
			b.WriteString(line)
			continue
		}
		b.WriteString(r.markdownLine(line))
	}
	return b.String()
}

func (r *Resolver) markdownLine(line string) string {
	matches := markdownImage.FindAllStringSubmatchIndex(line, -1)
	if matches == nil {
		return line
	}
	spans := fence.CodeSpans(line)

	var b strings.Builder
	last := 0
	for _, m := range matches {
		if fence.InSpan(spans, m[0]) {
			continue
		}
		target, ok := r.lookup(line[m[4]:m[5]])
		if !ok {
			continue
		}
		title := ""
		if m[6] >= 0 {
			title = line[m[6]:m[7]]
		}
		b.WriteString(line[last:m[0]])
		b.WriteString("![" + line[m[2]:m[3]] + "](" + target + title + ")")
		last = m[1]
	}
	b.WriteString(line[last:])
	return b.String()
}

// HTML rewrites <img src="..."> references in rendered output.
func (r *Resolver) HTML(text string) string {
	return htmlImage.ReplaceAllStringFunc(text, func(ref string) string {
		m := htmlImage.FindStringSubmatch(ref)
		target, ok := r.lookup(html.UnescapeString(m[1]))
		if !ok {
			return ref
		}
		return `<img src="` + html.EscapeString(target) + `"`
	})
}

// lookup returns the rewritten reference for src, or false when src must
// be left untouched: it already carries a scheme or this resolver's prefix,
// or it names a file that does not exist.
func (r *Resolver) lookup(src string) (string, bool) {
	if src == "" || hasScheme(src) || strings.HasPrefix(src, "#") {
		return "", false
	}
	if r.Prefix != "" && strings.HasPrefix(src, r.Prefix+"/") {
		return "", false
	}

	name := src
	if unescaped, err := url.PathUnescape(src); err == nil {
		name = unescaped
	}
	path := filepath.FromSlash(name)
	if !filepath.IsAbs(path) {
		path = filepath.Join(r.BaseDir, path)
	}

	if _, err := os.Stat(path); err != nil {
		r.logger().Debug("image not resolved", "src", src, "path", path)
		return "", false
	}

	toURL := r.URL
	if toURL == nil {
		toURL = FileURL
	}
	target := toURL(path)
	r.logger().Debug("image resolved", "src", src, "target", target)
	return target, true
}

func (r *Resolver) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

// hasScheme reports whether ref is a URL with a scheme (http:, data:,
// file:, mailto: ...). Single letter schemes are Windows drive letters.
func hasScheme(ref string) bool {
	u, err := url.Parse(ref)
	if err != nil {
		return strings.Contains(ref, "://") || strings.HasPrefix(ref, "data:")
	}
	return len(u.Scheme) > 1
}

// FileURL returns the file:// URL for an absolute path.
func FileURL(path string) string {
	return (&url.URL{Scheme: "file", Path: slashPath(path)}).String()
}

// PrefixURL returns a function mapping absolute paths under prefix, for
// surfaces that serve local files over HTTP.
func PrefixURL(prefix string) func(string) string {
	return func(path string) string {
		return prefix + (&url.URL{Path: slashPath(path)}).EscapedPath()
	}
}

// PathFromPrefixURL reverses PrefixURL for an already unescaped request
// path.
func PathFromPrefixURL(prefix, reqPath string) (string, bool) {
	rest, ok := strings.CutPrefix(reqPath, prefix)
	if !ok || !strings.HasPrefix(rest, "/") {
		return "", false
	}
	if len(rest) > 2 && rest[2] == ':' {
		// "/C:/dir/file" on Windows.
		rest = rest[1:]
	}
	return filepath.FromSlash(rest), true
}

func slashPath(path string) string {
	p := filepath.ToSlash(path)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}
