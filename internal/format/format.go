// Package format renders reminder templates.
//
// A template is plain text with single-character directives introduced by
// '%' (e.g. "You spent %c minutes on %h"). Each directive is backed by a
// zero-argument expansion evaluated lazily: only directives whose trigger
// character actually appears in the template are evaluated, and each is
// evaluated at most once per Render call even if it occurs repeatedly.
package format

import (
	"fmt"
	"strings"
)

// Directive binds a trigger character to an expansion producing its value.
// Expansions run fresh on every Render call (no caching across calls).
type Directive struct {
	Char   rune
	Expand func() (string, error)
}

// DirectiveError reports a failed expansion, e.g. a task directive
// evaluated while nothing is clocked in. Callers rendering the
// empty-activity text should not reference such directives.
type DirectiveError struct {
	Char rune
	Err  error
}

func (e *DirectiveError) Error() string {
	return fmt.Sprintf("format: directive %%%c: %v", e.Char, e.Err)
}

func (e *DirectiveError) Unwrap() error { return e.Err }

// Render substitutes every "%<char>" occurrence with the value of the
// matching directive. Unknown directives pass through literally; template
// authoring stays forgiving. On a duplicate trigger character the
// last-registered directive wins.
//
// '%' is never an escape character: "%%" is two ordinary characters, and
// the second '%' may still introduce a directive ("%%h" renders as '%'
// followed by the value of %h).
func Render(template string, directives []Directive) (string, error) {
	// Fast path: nothing to substitute, evaluate nothing.
	if !strings.ContainsRune(template, '%') {
		return template, nil
	}

	byChar := make(map[rune]func() (string, error), len(directives))
	for _, d := range directives {
		if d.Expand != nil {
			byChar[d.Char] = d.Expand
		}
	}

	var (
		b      strings.Builder
		values map[rune]string
		runes  = []rune(template)
	)
	b.Grow(len(template))

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '%' || i+1 >= len(runes) {
			b.WriteRune(r)
			continue
		}
		next := runes[i+1]
		expand, ok := byChar[next]
		if !ok {
			// Unknown directive: keep "%<char>" literally.
			b.WriteRune(r)
			continue
		}
		val, cached := values[next]
		if !cached {
			v, err := expand()
			if err != nil {
				return "", &DirectiveError{Char: next, Err: err}
			}
			if values == nil {
				values = make(map[rune]string, 4)
			}
			values[next] = v
			val = v
		}
		b.WriteString(val)
		i++ // consume the trigger character
	}
	return b.String(), nil
}
