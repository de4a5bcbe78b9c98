package report

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.sr.ht/~rjarry/onchange/lib/pathtmpl"
)

func TestParseColorMode(t *testing.T) {
	vectors := []struct {
		value string
		mode  ColorMode
		err   bool
	}{
		{value: "", mode: ColorAuto},
		{value: "auto", mode: ColorAuto},
		{value: "ALWAYS", mode: ColorAlways},
		{value: "never", mode: ColorNever},
		{value: "sometimes", err: true},
	}
	for _, vec := range vectors {
		t.Run(vec.value, func(t *testing.T) {
			mode, err := ParseColorMode(vec.value)
			if vec.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, vec.mode, mode)
		})
	}
}

func TestPlainLabels(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, ColorNever)
	c.Printf(Watching, "%s %s", "/a", "/b")
	c.Printf(Run, "make\n")
	c.Errorf("boom")
	assert.Equal(t, "Watching: /a /b\nRun: make\nError: boom\n", buf.String())
}

func TestColorLabels(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, ColorAlways)
	c.Printf(Run, "make")
	assert.Contains(t, buf.String(), "\x1b[")
	assert.Contains(t, buf.String(), "Run")
	assert.True(t, strings.HasSuffix(buf.String(), ": make\n"))
}

func TestAutoWithoutTerminal(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, ColorAuto)
	c.Printf(Rule, "tex")
	assert.Equal(t, "Rule: tex\n", buf.String())
}

func TestLineWriter(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, ColorNever)
	w := c.LineWriter()
	_, _ = w.Write([]byte("partial "))
	assert.Empty(t, buf.String())
	_, _ = w.Write([]byte("line\nsecond"))
	assert.Equal(t, "partial line\n", buf.String())
	require.NoError(t, w.Close())
	assert.Equal(t, "partial line\nsecond\n", buf.String())
}

func TestConcurrentWritersKeepLines(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, ColorNever)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w := c.LineWriter()
			defer w.Close()
			line := strings.Repeat(fmt.Sprint(i), 50) + "\n"
			for j := 0; j < 20; j++ {
				// split every line over several writes
				_, _ = w.Write([]byte(line[:10]))
				_, _ = w.Write([]byte(line[10:]))
			}
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 8*20)
	for _, line := range lines {
		require.Len(t, line, 50)
		assert.Equal(t, strings.Repeat(line[:1], 50), line)
	}
}

func TestReporter(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, ColorNever)
	vars := pathtmpl.NewVars("/home/u/proj/sub/x.md", "/home/u/proj")

	NewReporter(c, pathtmpl.MustCompile("{rpath}")).Report(vars)
	assert.Equal(t, "sub/x.md\n", buf.String())

	buf.Reset()
	NewReporter(c, pathtmpl.MustCompile("Change Detected: {path}")).Report(vars)
	assert.Equal(t, "Change Detected: /home/u/proj/sub/x.md\n", buf.String())

	buf.Reset()
	NewReporter(c, nil).Report(vars)
	assert.Empty(t, buf.String())
}
