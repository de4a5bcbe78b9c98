package engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.sr.ht/~rjarry/onchange/lib/dispatch"
	"git.sr.ht/~rjarry/onchange/lib/pathtmpl"
	"git.sr.ht/~rjarry/onchange/lib/report"
	"git.sr.ht/~rjarry/onchange/lib/watchers"
	"git.sr.ht/~rjarry/onchange/models"
)

type fakeWatcher struct {
	events chan models.RawEvent
	errors chan error
	// Add fails for these paths
	missing map[string]bool
	mu      sync.Mutex
	added   []models.WatchTarget
	closed  bool
}

func newFakeWatcher(missing ...string) *fakeWatcher {
	w := &fakeWatcher{
		events:  make(chan models.RawEvent, 16),
		errors:  make(chan error, 1),
		missing: make(map[string]bool),
	}
	for _, m := range missing {
		w.missing[m] = true
	}
	return w
}

func (w *fakeWatcher) Add(t models.WatchTarget) error {
	if w.missing[t.Path] {
		return &watchers.WatchError{Path: t.Path, Err: os.ErrNotExist}
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.added = append(w.added, t)
	return nil
}

func (w *fakeWatcher) Events() <-chan models.RawEvent { return w.events }
func (w *fakeWatcher) Errors() <-chan error           { return w.errors }

func (w *fakeWatcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *fakeWatcher) change(path string) {
	w.events <- models.RawEvent{Path: path, ObservedAt: time.Now()}
}

func (w *fakeWatcher) factory() watchers.WatcherFactoryFunc {
	return func(watchers.Options) (watchers.Watcher, error) {
		return w, nil
	}
}

type fakeRunner struct {
	mu    sync.Mutex
	calls []string
}

func (r *fakeRunner) Run(ctx context.Context, cmdline string, stdout, stderr io.Writer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, cmdline)
	return nil
}

func (r *fakeRunner) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// syncBuffer is written by the console and read by the test concurrently.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type harness struct {
	engine *Engine
	out    *syncBuffer
	runner *fakeRunner
	cancel context.CancelFunc
	done   chan error
}

func startEngine(t *testing.T, cfg Config, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		out:    &syncBuffer{},
		runner: &fakeRunner{},
		done:   make(chan error, 1),
	}
	if cfg.DebounceWindow == 0 {
		cfg.DebounceWindow = 20 * time.Millisecond
	}
	var err error
	h.engine, err = New(cfg, h.runner, report.NewConsole(h.out, report.ColorNever), opts...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- h.engine.Run(ctx) }()
	t.Cleanup(func() { h.stop(t) })
	return h
}

func (h *harness) stop(t *testing.T) {
	h.cancel()
	select {
	case err := <-h.done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop")
	}
}

func (h *harness) waitOutput(t *testing.T, expected string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.out.String() == expected
	}, 5*time.Second, 5*time.Millisecond)
}

func TestReportOnlyRelativePath(t *testing.T) {
	w := newFakeWatcher()
	h := startEngine(t, Config{
		Targets: []models.WatchTarget{{Path: "/proj", Recursive: true}},
		Message: pathtmpl.MustCompile("{rpath}"),
		Pwd:     "/proj",
	}, WithWatchers(w.factory(), nil))

	h.waitOutput(t, "Watching: /proj/...\n")
	w.change("/proj/sub/x.md")
	w.change("/proj/sub/x.md")
	h.waitOutput(t, "Watching: /proj/...\nsub/x.md\n")

	// nothing else shows up later
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, "Watching: /proj/...\nsub/x.md\n", h.out.String())
	assert.Empty(t, h.runner.Calls())
}

func TestExplicitCommand(t *testing.T) {
	w := newFakeWatcher()
	h := startEngine(t, Config{
		Targets: []models.WatchTarget{{Path: "/proj"}},
		Message: pathtmpl.MustCompile("Change Detected: {path}"),
		Dispatch: dispatch.Config{
			Command: pathtmpl.MustCompile("gcc -c {name.ext}"),
		},
		Pwd: "/proj",
	}, WithWatchers(w.factory(), nil))

	h.waitOutput(t, "Watching: /proj\n")
	w.change("/proj/main.c")
	h.waitOutput(t, "Watching: /proj\n"+
		"Change Detected: /proj/main.c\n"+
		"Run: gcc -c main.c\n")
	assert.Equal(t, []string{"gcc -c main.c"}, h.runner.Calls())
}

func TestIgnorePatterns(t *testing.T) {
	w := newFakeWatcher()
	h := startEngine(t, Config{
		Targets: []models.WatchTarget{{Path: "/proj", Recursive: true}},
		Message: pathtmpl.MustCompile("{rpath}"),
		Ignore:  []string{"*.swp", "build/*", "/proj/.git/*"},
		Dispatch: dispatch.Config{
			Command: pathtmpl.MustCompile("make"),
		},
		Pwd: "/proj",
	}, WithWatchers(w.factory(), nil))

	h.waitOutput(t, "Watching: /proj/...\n")
	w.change("/proj/.main.c.swp")
	w.change("/proj/build/main.o")
	w.change("/proj/.git/index")
	w.change("/proj/main.c")
	h.waitOutput(t, "Watching: /proj/...\nmain.c\nRun: make\n")
	assert.Equal(t, []string{"make"}, h.runner.Calls())
}

func TestUnwatchableTargetDropped(t *testing.T) {
	w := newFakeWatcher("/missing")
	h := startEngine(t, Config{
		Targets: []models.WatchTarget{{Path: "/missing"}, {Path: "/proj"}},
		Pwd:     "/proj",
	}, WithWatchers(w.factory(), nil))

	h.waitOutput(t, "Error: cannot watch /missing: file does not exist\n"+
		"Watching: /proj\n")
	w.mu.Lock()
	assert.Equal(t, []models.WatchTarget{{Path: "/proj"}}, w.added)
	w.mu.Unlock()
}

func TestWatcherErrorsAreNotFatal(t *testing.T) {
	w := newFakeWatcher()
	h := startEngine(t, Config{
		Targets: []models.WatchTarget{{Path: "/proj"}},
		Message: pathtmpl.MustCompile("{name.ext}"),
		Pwd:     "/proj",
	}, WithWatchers(w.factory(), nil))

	h.waitOutput(t, "Watching: /proj\n")
	w.errors <- errors.New("queue overflow")
	h.waitOutput(t, "Watching: /proj\nError: queue overflow\n")
	w.change("/proj/a.txt")
	h.waitOutput(t, "Watching: /proj\nError: queue overflow\na.txt\n")
}

func TestNoTargets(t *testing.T) {
	w := newFakeWatcher("/a", "/b")
	var out bytes.Buffer
	e, err := New(Config{
		Targets: []models.WatchTarget{{Path: "/a"}, {Path: "/b"}},
		Pwd:     "/",
	}, &fakeRunner{}, report.NewConsole(&out, report.ColorNever), WithWatchers(w.factory(), nil))
	require.NoError(t, err)

	err = e.Run(context.Background())
	assert.ErrorIs(t, err, ErrNoTargets)
	assert.True(t, w.closed)
	assert.NotContains(t, out.String(), "Watching")
}

func TestFallbackToPolling(t *testing.T) {
	poller := newFakeWatcher()
	failing := func(watchers.Options) (watchers.Watcher, error) {
		return nil, errors.New("too many open files")
	}
	h := startEngine(t, Config{
		Targets: []models.WatchTarget{{Path: "/proj"}},
		Message: pathtmpl.MustCompile("{path}"),
		Pwd:     "/proj",
	}, WithWatchers(failing, poller.factory()))

	h.waitOutput(t, "Watching: /proj\n")
	poller.change("/proj/a")
	h.waitOutput(t, "Watching: /proj\n/proj/a\n")
}

func TestForcedPolling(t *testing.T) {
	native := newFakeWatcher()
	poller := newFakeWatcher()
	h := startEngine(t, Config{
		Targets: []models.WatchTarget{{Path: "/proj"}},
		Poll:    true,
		Pwd:     "/proj",
	}, WithWatchers(native.factory(), poller.factory()))

	h.waitOutput(t, "Watching: /proj\n")
	assert.Empty(t, native.added)
	poller.mu.Lock()
	assert.Len(t, poller.added, 1)
	poller.mu.Unlock()
}

func TestTrialRun(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	runner := &fakeRunner{}
	cfg := Config{
		Targets: []models.WatchTarget{
			{Path: filepath.Join(dir, "a.md")},
			{Path: filepath.Join(dir, "b.md")},
		},
		Message: pathtmpl.MustCompile("{rname}"),
		Dispatch: dispatch.Config{
			Mode:    models.Concurrent,
			Command: pathtmpl.MustCompile("pandoc {name.ext} -o {name}.html"),
		},
		Pwd: dir,
	}
	e, err := New(cfg, runner, report.NewConsole(&out, report.ColorNever))
	require.NoError(t, err)
	require.NoError(t, e.TrialRun(context.Background()))

	assert.Equal(t, "./a.md\nRun: pandoc a.md -o a.html\n"+
		"./b.md\nRun: pandoc b.md -o b.html\n", out.String())
	assert.ElementsMatch(t, []string{
		"pandoc a.md -o a.html",
		"pandoc b.md -o b.html",
	}, runner.Calls())
}
