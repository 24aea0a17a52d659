package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlug(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{name: "single word", text: "Only", want: "only"},
		{name: "punctuation dropped", text: "Hello, World!", want: "helloworld"},
		{name: "words concatenate", text: "Getting Started", want: "gettingstarted"},
		{name: "hyphen kept", text: "Getting-Started", want: "getting-started"},
		{name: "underscore kept", text: "snake_case Name", want: "snake_casename"},
		{name: "digits kept", text: "Step 2: Build", want: "step2build"},
		{name: "whitespace runs", text: "  a \t b  ", want: "ab"},
		{name: "unicode letters", text: "Über Größe", want: "übergröße"},
		{name: "all punctuation", text: "!!! ???", want: ""},
		{name: "empty", text: "", want: ""},
		{name: "code span text", text: "Use go test", want: "usegotest"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Slug(tt.text))
		})
	}
}

func TestSlugDeterministic(t *testing.T) {
	for _, text := range []string{"Hello, World!", "A  b", "Ünïcode – dash", "x_y-z"} {
		first := Slug(text)
		for range 5 {
			assert.Equal(t, first, Slug(text), "text %q", text)
		}
	}
}

func TestSlugIdenticalTextsCollide(t *testing.T) {
	assert.Equal(t, Slug("Usage"), Slug("Usage"))
	assert.Equal(t, Slug("Usage!"), Slug("usage"))
}
