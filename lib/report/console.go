// Package report writes everything the user is meant to read: watched
// targets, detected changes, commands being run and per event errors.
// Diagnostics go through lib/log instead.
package report

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
)

type ColorMode int

const (
	ColorAuto ColorMode = iota
	ColorAlways
	ColorNever
)

func ParseColorMode(value string) (ColorMode, error) {
	switch strings.ToLower(value) {
	case "", "auto":
		return ColorAuto, nil
	case "always", "yes", "on":
		return ColorAlways, nil
	case "never", "no", "off":
		return ColorNever, nil
	}
	return ColorAuto, fmt.Errorf("invalid color mode %q, expected auto, always or never", value)
}

func (m ColorMode) String() string {
	switch m {
	case ColorAlways:
		return "always"
	case ColorNever:
		return "never"
	}
	return "auto"
}

type Label string

const (
	Watching Label = "Watching"
	Run      Label = "Run"
	Rule     Label = "Rule"
	Error    Label = "Error"
)

var labelColors = map[Label]string{
	Watching: "3",
	Run:      "1",
	Rule:     "4",
	Error:    "1",
}

// Console serializes writes to the user facing stream. Every call emits
// whole lines, so output of concurrent commands is never mixed within a line.
type Console struct {
	mu     sync.Mutex
	out    io.Writer
	styles map[Label]lipgloss.Style
}

type fdWriter interface {
	Fd() uintptr
}

func colorProfile(out io.Writer, r *lipgloss.Renderer, mode ColorMode) termenv.Profile {
	switch mode {
	case ColorNever:
		return termenv.Ascii
	case ColorAlways:
		if p := r.ColorProfile(); p != termenv.Ascii {
			return p
		}
		return termenv.ANSI
	}
	if f, ok := out.(fdWriter); ok && isatty.IsTerminal(f.Fd()) {
		return r.ColorProfile()
	}
	return termenv.Ascii
}

func NewConsole(out io.Writer, mode ColorMode) *Console {
	r := lipgloss.NewRenderer(out)
	r.SetColorProfile(colorProfile(out, r, mode))
	styles := make(map[Label]lipgloss.Style, len(labelColors))
	for label, color := range labelColors {
		styles[label] = r.NewStyle().Bold(true).Foreground(lipgloss.Color(color))
	}
	return &Console{out: out, styles: styles}
}

func (c *Console) write(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = io.WriteString(c.out, s)
}

// Printf writes one "Label: message" line.
func (c *Console) Printf(label Label, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	msg = strings.TrimRight(msg, "\n")
	c.write(c.styles[label].Render(string(label)) + ": " + msg + "\n")
}

// Println writes s as is, followed by a newline.
func (c *Console) Println(s string) {
	c.write(strings.TrimRight(s, "\n") + "\n")
}

func (c *Console) Errorf(format string, args ...any) {
	c.Printf(Error, format, args...)
}

// LineWriter returns a writer which forwards complete lines to the console.
// A trailing partial line is emitted on Close.
func (c *Console) LineWriter() *LineWriter {
	return &LineWriter{console: c}
}

type LineWriter struct {
	mu      sync.Mutex
	console *Console
	buf     bytes.Buffer
}

func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf.Write(p)
	for {
		i := bytes.IndexByte(w.buf.Bytes(), '\n')
		if i < 0 {
			break
		}
		line := w.buf.Next(i + 1)
		w.console.write(string(line))
	}
	return len(p), nil
}

func (w *LineWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf.Len() > 0 {
		w.console.write(w.buf.String() + "\n")
		w.buf.Reset()
	}
	return nil
}
