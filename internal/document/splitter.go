package document

import (
	"regexp"
	"strings"

	"github.com/gubarz/mdr/internal/fence"
)

// An ATX heading: up to three spaces, one to six '#', then a space, a tab
// or the end of the line.
var headingLine = regexp.MustCompile(`^ {0,3}#{1,6}(?:[ \t]|$)`)

// Split partitions markdown at heading lines for incremental rendering.
//
// A heading line starts a new section unless it is the first content.
// Headings inside fenced code blocks do not split. Each returned section
// keeps its own heading line and every line up to the next heading,
// newline-terminated. hasPreamble reports whether the first section is
// content that precedes any heading, in which case TOC entry i maps to
// section i+1.
func Split(markdown string) (hasPreamble bool, sections []string) {
	var current strings.Builder
	var fences fence.Tracker

	for _, line := range fence.Lines(markdown) {
		if !fences.Next(line) && isHeadingLine(line) && current.Len() > 0 {
			sections = append(sections, current.String())
			current.Reset()
		}
		current.WriteString(line)
		current.WriteByte('\n')
	}
	if current.Len() > 0 {
		sections = append(sections, current.String())
	}

	if len(sections) > 0 {
		first, _, _ := strings.Cut(sections[0], "\n")
		hasPreamble = !isHeadingLine(first)
	}
	return hasPreamble, sections
}

func isHeadingLine(line string) bool {
	return headingLine.MatchString(line)
}
