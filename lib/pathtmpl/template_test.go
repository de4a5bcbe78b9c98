package pathtmpl

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	vars := NewVars("/a/b/c.txt", "/a")
	vectors := []struct {
		src      string
		expected string
	}{
		{src: "{path}", expected: "/a/b/c.txt"},
		{src: "{{literal}}", expected: "{literal}"},
		{src: "{{path}}", expected: "{path}"},
		{src: "{{{path}}}", expected: "{/a/b/c.txt}"},
		{src: "Change Detected: {path}", expected: "Change Detected: /a/b/c.txt"},
		{src: "{rpath} in {rdir}", expected: "b/c.txt in b"},
		{src: "{name}.{ext} = {name.ext}", expected: "c.txt = c.txt"},
		{src: "cd {dir} && make", expected: "cd /a/b && make"},
		{src: "", expected: ""},
		{src: "no vars at all", expected: "no vars at all"},
		{src: "awk '{{print $1}}' {path}", expected: "awk '{print $1}' /a/b/c.txt"},
	}
	for _, vec := range vectors {
		t.Run(vec.src, func(t *testing.T) {
			tmpl, err := Compile(vec.src)
			require.NoError(t, err)
			assert.Equal(t, vec.expected, tmpl.Render(vars))
			assert.Equal(t, vec.src, tmpl.String())
		})
	}
}

func TestCompileErrors(t *testing.T) {
	vectors := []struct {
		src   string
		pos   int
		token string
	}{
		{src: "{pth}", pos: 0, token: "{pth}"},
		{src: "x {path", pos: 2},
		{src: "x }", pos: 2},
		{src: "{a{b}}", pos: 0},
		{src: "{}", pos: 0, token: "{}"},
		{src: "{pa th}", pos: 0, token: "{pa th}"},
		{src: "ok {path} then }", pos: 15},
	}
	for _, vec := range vectors {
		t.Run(vec.src, func(t *testing.T) {
			_, err := Compile(vec.src)
			require.Error(t, err)
			var terr *TemplateError
			require.True(t, errors.As(err, &terr))
			assert.Equal(t, vec.pos, terr.Pos)
			assert.Equal(t, vec.token, terr.Token)
			assert.Equal(t, vec.src, terr.Template)
		})
	}
}

func TestUnknownVariableSuggestion(t *testing.T) {
	_, err := Compile("make {pth}")
	var terr *TemplateError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, "path", terr.Suggestion)
	assert.Contains(t, err.Error(), "{pth}")
	assert.Contains(t, err.Error(), "did you mean {path}?")

	_, err = Compile("{zzzzzz}")
	require.True(t, errors.As(err, &terr))
	assert.Empty(t, terr.Suggestion)
}

func TestAllowExtra(t *testing.T) {
	_, err := Compile("{pages} pages")
	assert.Error(t, err)

	tmpl, err := Compile("{name}: {pages} pages{missing}", AllowExtra())
	require.NoError(t, err)
	vars := NewVars("/doc/thesis.pdf", "/doc").With(map[string]string{"pages": "42"})
	assert.Equal(t, "thesis: 42 pages", tmpl.Render(vars))
	assert.Equal(t, []string{"name", "pages", "missing"}, tmpl.References())

	_, err = Compile("{}", AllowExtra())
	assert.Error(t, err)
}

func TestMustCompile(t *testing.T) {
	assert.NotPanics(t, func() { MustCompile("{path}") })
	assert.Panics(t, func() { MustCompile("{") })
}
