// Package fence follows fenced code blocks while Markdown is scanned line
// by line.
package fence

import (
	"regexp"
	"strings"
)

// A backtick fence's info string cannot contain a backtick; such a line
// is an inline code span instead.
var opening = regexp.MustCompile("^ {0,3}(?:(`{3,})([^`]*)|(~{3,})(.*))$")

// Open reports whether line opens a fenced code block. marker is the run
// of fence characters and lang the first word of the info string.
func Open(line string) (marker, lang string, ok bool) {
	m := opening.FindStringSubmatch(line)
	if m == nil {
		return "", "", false
	}
	marker, info := m[1], m[2]
	if marker == "" {
		marker, info = m[3], m[4]
	}
	if fields := strings.Fields(info); len(fields) > 0 {
		lang = fields[0]
	}
	return marker, lang, true
}

// Closes reports whether line closes a fence opened with marker: the same
// character, at least as many times, and nothing else on the line.
func Closes(line, marker string) bool {
	trimmed := strings.TrimSpace(line)
	if len(trimmed) < len(marker) {
		return false
	}
	return strings.Trim(trimmed, marker[:1]) == ""
}

// Tracker remembers the open fence across lines.
type Tracker struct {
	marker string
}

// Next consumes line and reports whether it belongs to a fenced block,
// opening and closing fence lines included.
func (t *Tracker) Next(line string) bool {
	if t.marker != "" {
		if Closes(line, t.marker) {
			t.marker = ""
		}
		return true
	}
	if marker, _, ok := Open(line); ok {
		t.marker = marker
		return true
	}
	return false
}

// Inside reports whether a fence is open.
func (t *Tracker) Inside() bool { return t.marker != "" }

// Lines breaks s into lines without terminators. A trailing newline does
// not produce an extra empty line, and CRLF endings are accepted.
func Lines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.Split(strings.TrimSuffix(s, "\n"), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}

// CodeSpans returns the byte ranges of inline code spans on line. A
// backtick run opens a span closed by the next run of the same length;
// an unmatched run is literal text.
func CodeSpans(line string) [][2]int {
	var spans [][2]int
	for i := 0; i < len(line); {
		if line[i] != '`' {
			i++
			continue
		}
		n := runLen(line, i)
		end := -1
		for j := i + n; j < len(line); {
			if line[j] != '`' {
				j++
				continue
			}
			m := runLen(line, j)
			if m == n {
				end = j + m
				break
			}
			j += m
		}
		if end < 0 {
			i += n
			continue
		}
		spans = append(spans, [2]int{i, end})
		i = end
	}
	return spans
}

func runLen(s string, i int) int {
	n := 0
	for i+n < len(s) && s[i+n] == '`' {
		n++
	}
	return n
}

// InSpan reports whether offset lies inside one of spans.
func InSpan(spans [][2]int, offset int) bool {
	for _, sp := range spans {
		if offset >= sp[0] && offset < sp[1] {
			return true
		}
	}
	return false
}
