package document

import (
	"strings"
	"unicode"
)

// Slug converts heading text into the anchor id shared by TOC entries and
// rendered heading ids.
//
// Letters, digits, '-' and '_' survive (lowercased). Spaces separate words
// and every other rune is blanked; the words are then joined without a
// separator, so "Getting Started" becomes "gettingstarted" while
// "getting-started" stays as written. Identical texts always produce the
// same slug; collisions are not numbered.
func Slug(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if isSlugRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), "")
}

func isSlugRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsNumber(r) || r == '-' || r == '_'
}
