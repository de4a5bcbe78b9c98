package watchers

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"git.sr.ht/~rjarry/onchange/models"
)

// Watcher is a file system watcher
type Watcher interface {
	// Adds a file or directory to the watcher. Paths must be absolute.
	Add(models.WatchTarget) error
	// Changed files. Closed after Close.
	Events() <-chan models.RawEvent
	// Asynchronous backend failures, never fatal.
	Errors() <-chan error
	Close() error
}

type Options struct {
	// Scan period of the polling backend.
	PollInterval time.Duration
	// Capacity of the Events channel.
	BufferSize int
}

const (
	DefaultPollInterval = 500 * time.Millisecond
	DefaultBufferSize   = 256
)

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.BufferSize <= 0 {
		o.BufferSize = DefaultBufferSize
	}
	return o
}

// WatchError is returned by Add when a target cannot be observed.
type WatchError struct {
	Path string
	Err  error
}

func (e *WatchError) Error() string {
	return fmt.Sprintf("cannot watch %s: %v", e.Path, e.Err)
}

func (e *WatchError) Unwrap() error {
	return e.Err
}

type WatcherFactoryFunc func(Options) (Watcher, error)

var watcherFactory WatcherFactoryFunc

func RegisterWatcherFactory(fn WatcherFactoryFunc) {
	watcherFactory = fn
}

// NewWatcher returns the native backend for the current platform.
func NewWatcher(opts Options) (Watcher, error) {
	if watcherFactory == nil {
		return nil, fmt.Errorf("Unsupported OS: %s", runtime.GOOS)
	}
	return watcherFactory(opts.withDefaults())
}

// target is a WatchTarget whose kind has been checked at Add time.
type target struct {
	models.WatchTarget
	dir bool
}

func statTarget(t models.WatchTarget) (target, error) {
	if !filepath.IsAbs(t.Path) {
		return target{}, &WatchError{
			Path: t.Path,
			Err:  fmt.Errorf("path is not absolute"),
		}
	}
	info, err := os.Stat(t.Path)
	if err != nil {
		return target{}, &WatchError{Path: t.Path, Err: err}
	}
	return target{WatchTarget: t, dir: info.IsDir()}, nil
}

// covers tells whether a change of path is relevant for the target.
func (t *target) covers(path string) bool {
	switch {
	case !t.dir:
		return path == t.Path
	case t.Recursive:
		return strings.HasPrefix(path, strings.TrimSuffix(t.Path, "/")+"/")
	default:
		return filepath.Dir(path) == filepath.Clean(t.Path)
	}
}

// targetSet is shared by the backends to filter raw notifications, since
// file targets are observed through their parent directory.
type targetSet struct {
	sync.Mutex
	list []target
}

func (s *targetSet) add(t target) {
	s.Lock()
	defer s.Unlock()
	s.list = append(s.list, t)
}

func (s *targetSet) covers(path string) bool {
	s.Lock()
	defer s.Unlock()
	for i := range s.list {
		if s.list[i].covers(path) {
			return true
		}
	}
	return false
}

// recursive tells whether a directory created at path must be registered.
func (s *targetSet) recursive(path string) bool {
	s.Lock()
	defer s.Unlock()
	for i := range s.list {
		t := &s.list[i]
		if t.dir && t.Recursive && t.covers(path) {
			return true
		}
	}
	return false
}

func (s *targetSet) snapshot() []target {
	s.Lock()
	defer s.Unlock()
	return append([]target(nil), s.list...)
}

// emitter owns the output channels of a backend.
type emitter struct {
	events    chan models.RawEvent
	errors    chan error
	done      chan struct{}
	closeOnce sync.Once
}

func newEmitter(opts Options) emitter {
	return emitter{
		events: make(chan models.RawEvent, opts.BufferSize),
		errors: make(chan error, 16),
		done:   make(chan struct{}),
	}
}

func (e *emitter) Events() <-chan models.RawEvent {
	return e.events
}

func (e *emitter) Errors() <-chan error {
	return e.errors
}

// emit blocks while the buffer is full, unless the watcher is closed.
func (e *emitter) emit(path string) bool {
	select {
	case e.events <- models.RawEvent{Path: path, ObservedAt: time.Now()}:
		return true
	case <-e.done:
		return false
	}
}

// fail never blocks, errors are dropped when nobody reads them.
func (e *emitter) fail(err error) {
	select {
	case e.errors <- err:
	default:
	}
}

func (e *emitter) stop() bool {
	stopped := false
	e.closeOnce.Do(func() {
		close(e.done)
		stopped = true
	})
	return stopped
}

func (e *emitter) finish() {
	close(e.events)
	close(e.errors)
}
