// Package engine wires a watcher backend, the debouncer, the reporter and
// the dispatcher together and runs the event loop.
package engine

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/danwakefield/fnmatch"

	"git.sr.ht/~rjarry/onchange/lib/debounce"
	"git.sr.ht/~rjarry/onchange/lib/dispatch"
	"git.sr.ht/~rjarry/onchange/lib/log"
	"git.sr.ht/~rjarry/onchange/lib/pathtmpl"
	"git.sr.ht/~rjarry/onchange/lib/report"
	"git.sr.ht/~rjarry/onchange/lib/watchers"
	"git.sr.ht/~rjarry/onchange/lib/xdg"
	"git.sr.ht/~rjarry/onchange/models"
)

var ErrNoTargets = errors.New("no path could be watched")

type Config struct {
	Targets []models.WatchTarget
	// force the polling backend
	Poll           bool
	PollInterval   time.Duration
	DebounceWindow time.Duration
	BufferSize     int
	// nil disables change lines
	Message *pathtmpl.Template
	// fnmatch patterns, tried against the absolute path, the path relative
	// to Pwd and the base name
	Ignore   []string
	Dispatch dispatch.Config
	// defaults to the current directory
	Pwd string
}

type Engine struct {
	cfg        Config
	console    *report.Console
	reporter   *report.Reporter
	dispatcher *dispatch.Dispatcher
	native     watchers.WatcherFactoryFunc
	poll       watchers.WatcherFactoryFunc
}

type Option func(*Engine)

// WithWatchers replaces the native and polling backends.
func WithWatchers(native, poll watchers.WatcherFactoryFunc) Option {
	return func(e *Engine) {
		if native != nil {
			e.native = native
		}
		if poll != nil {
			e.poll = poll
		}
	}
}

func New(cfg Config, runner dispatch.Runner, console *report.Console, opts ...Option) (*Engine, error) {
	if cfg.Pwd == "" {
		pwd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		cfg.Pwd = pwd
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = watchers.DefaultBufferSize
	}
	e := &Engine{
		cfg:        cfg,
		console:    console,
		reporter:   report.NewReporter(console, cfg.Message),
		dispatcher: dispatch.New(cfg.Dispatch, runner, console),
		native:     watchers.NewWatcher,
		poll:       watchers.NewPollWatcher,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Engine) openWatcher() (watchers.Watcher, error) {
	opts := watchers.Options{
		PollInterval: e.cfg.PollInterval,
		BufferSize:   e.cfg.BufferSize,
	}
	if !e.cfg.Poll {
		w, err := e.native(opts)
		if err == nil {
			return w, nil
		}
		log.Warnf("native watcher unavailable, polling instead: %v", err)
	}
	return e.poll(opts)
}

// Run watches the targets until ctx is cancelled. Only startup failures are
// returned. Changes which did not settle and commands still running when ctx
// is cancelled are abandoned.
func (e *Engine) Run(ctx context.Context) error {
	w, err := e.openWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	var watched []string
	for _, t := range e.cfg.Targets {
		if err := w.Add(t); err != nil {
			log.Warnf("%v", err)
			e.console.Errorf("%v", err)
			continue
		}
		watched = append(watched, xdg.TildeHome(t.String()))
	}
	if len(watched) == 0 {
		return ErrNoTargets
	}
	e.console.Printf(report.Watching, "%s", strings.Join(watched, " "))

	changes := make(chan models.ChangeEvent, e.cfg.BufferSize)
	go debounce.New(e.cfg.DebounceWindow).Run(ctx, w.Events(), changes)

	errs := w.Errors()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-changes:
			if !ok {
				return nil
			}
			log.Debugf("change: %s", ev)
			e.Handle(ctx, ev.Path)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			log.Errorf("watcher: %v", err)
			e.console.Errorf("%v", err)
		}
	}
}

// TrialRun handles every target once as if it had changed, without
// watching, and waits for all commands to exit.
func (e *Engine) TrialRun(ctx context.Context) error {
	for _, t := range e.cfg.Targets {
		if ctx.Err() != nil {
			break
		}
		e.Handle(ctx, t.Path)
	}
	e.dispatcher.Wait()
	return nil
}

func (e *Engine) ignored(vars pathtmpl.Vars) bool {
	for _, pattern := range e.cfg.Ignore {
		for _, name := range []string{vars["path"], vars["rpath"], vars["name.ext"]} {
			if fnmatch.Match(pattern, name, 0) {
				log.Debugf("%s: ignored by %q", vars["path"], pattern)
				return true
			}
		}
	}
	return false
}

// Handle reports a change of path and dispatches its action.
func (e *Engine) Handle(ctx context.Context, path string) {
	vars := pathtmpl.NewVars(path, e.cfg.Pwd)
	if e.ignored(vars) {
		return
	}
	vars, err := e.dispatcher.Variables(ctx, vars)
	if err != nil {
		log.Warnf("%v", err)
		e.console.Errorf("%v", err)
	}
	e.reporter.Report(vars)
	if err := e.dispatcher.Dispatch(ctx, vars); err != nil {
		log.Tracef("%s: %v", path, err)
	}
}
