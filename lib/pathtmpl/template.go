// Package pathtmpl renders the {var} templates used for change messages and
// commands.
//
// A template is compiled once into a list of literal and variable segments.
// Compilation validates brace matching and variable names so that rendering
// can never fail afterwards.
package pathtmpl

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// Names lists the variables computed from a changed path.
var Names = []string{
	"path", "rpath", "dir", "rdir", "name", "ext", "name.ext", "pwd", "rname",
}

func isKnown(name string) bool {
	for _, n := range Names {
		if n == name {
			return true
		}
	}
	return false
}

type segment struct {
	variable bool
	text     string
}

type Template struct {
	src  string
	segs []segment
}

type Option func(*compiler)

// AllowExtra accepts any well formed variable name. Names which are neither
// builtin nor provided at render time expand to the empty string.
func AllowExtra() Option {
	return func(c *compiler) {
		c.allowExtra = true
	}
}

type compiler struct {
	src        string
	allowExtra bool
	segs       []segment
	lit        strings.Builder
}

func (c *compiler) flush() {
	if c.lit.Len() > 0 {
		c.segs = append(c.segs, segment{text: c.lit.String()})
		c.lit.Reset()
	}
}

func (c *compiler) fail(pos int, token, format string, args ...any) error {
	return &TemplateError{
		Template: c.src,
		Pos:      pos,
		Token:    token,
		Msg:      fmt.Sprintf(format, args...),
	}
}

// Compile parses src. {name} references a variable, {{ and }} stand for
// literal braces. Anything else involving braces is an error.
func Compile(src string, opts ...Option) (*Template, error) {
	c := compiler{src: src}
	for _, opt := range opts {
		opt(&c)
	}

	i := 0
	for i < len(src) {
		switch src[i] {
		case '{':
			if i+1 < len(src) && src[i+1] == '{' {
				c.lit.WriteByte('{')
				i += 2
				continue
			}
			end := strings.IndexAny(src[i+1:], "{}")
			if end < 0 || src[i+1+end] == '{' {
				return nil, c.fail(i, "", "unmatched '{'")
			}
			name := src[i+1 : i+1+end]
			if err := c.checkName(i, name); err != nil {
				return nil, err
			}
			c.flush()
			c.segs = append(c.segs, segment{variable: true, text: name})
			i += end + 2
		case '}':
			if i+1 < len(src) && src[i+1] == '}' {
				c.lit.WriteByte('}')
				i += 2
				continue
			}
			return nil, c.fail(i, "", "unmatched '}'")
		default:
			c.lit.WriteByte(src[i])
			i++
		}
	}
	c.flush()

	return &Template{src: src, segs: c.segs}, nil
}

func (c *compiler) checkName(pos int, name string) error {
	token := "{" + name + "}"
	if name == "" {
		return c.fail(pos, token, "empty variable name")
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_' || r == '.' || r == '-':
		default:
			return c.fail(pos, token, "invalid character %q in variable name", r)
		}
	}
	if isKnown(name) || c.allowExtra {
		return nil
	}
	err := c.fail(pos, token, "unknown variable").(*TemplateError)
	err.Suggestion = suggest(name)
	return err
}

func suggest(token string) string {
	ranks := fuzzy.RankFindFold(token, Names)
	if len(ranks) > 0 {
		sort.Sort(ranks)
		return ranks[0].Target
	}
	best, bestDist := "", 3
	for _, n := range Names {
		d := fuzzy.LevenshteinDistance(strings.ToLower(token), n)
		if d < bestDist {
			best, bestDist = n, d
		}
	}
	return best
}

// MustCompile is like Compile but panics on error. Only for constants.
func MustCompile(src string, opts ...Option) *Template {
	t, err := Compile(src, opts...)
	if err != nil {
		panic(err)
	}
	return t
}

// Render expands all variables. Missing variables expand to nothing.
func (t *Template) Render(vars Vars) string {
	var b strings.Builder
	for _, s := range t.segs {
		if s.variable {
			b.WriteString(vars[s.text])
		} else {
			b.WriteString(s.text)
		}
	}
	return b.String()
}

// References returns the variable names used by the template, in order of
// first appearance.
func (t *Template) References() []string {
	var refs []string
	seen := make(map[string]bool)
	for _, s := range t.segs {
		if s.variable && !seen[s.text] {
			seen[s.text] = true
			refs = append(refs, s.text)
		}
	}
	return refs
}

func (t *Template) String() string {
	return t.src
}

// TemplateError reports a compilation failure.
type TemplateError struct {
	Template   string
	Pos        int
	Token      string
	Msg        string
	Suggestion string
}

func (e *TemplateError) Error() string {
	msg := fmt.Sprintf("template %q: %s", e.Template, e.Msg)
	if e.Token != "" {
		msg += " " + e.Token
	}
	msg += fmt.Sprintf(" at offset %d", e.Pos)
	if e.Suggestion != "" {
		msg += fmt.Sprintf(" (did you mean {%s}?)", e.Suggestion)
	}
	return msg
}
