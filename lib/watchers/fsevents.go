//go:build darwin

package watchers

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsevents"

	"git.sr.ht/~rjarry/onchange/lib/log"
	"git.sr.ht/~rjarry/onchange/models"
)

func init() {
	RegisterWatcherFactory(newDarwinWatcher)
}

const changeFlags = fsevents.ItemCreated | fsevents.ItemRemoved |
	fsevents.ItemRenamed | fsevents.ItemModified

type darwinWatcher struct {
	emitter
	latency time.Duration
	targets targetSet
	mu      sync.Mutex
	streams []*stream
	wg      sync.WaitGroup
}

func newDarwinWatcher(opts Options) (Watcher, error) {
	watcher := &darwinWatcher{
		emitter: newEmitter(opts),
		latency: 50 * time.Millisecond,
	}
	return watcher, nil
}

// FSEvents reports paths with symlinks resolved (/var is /private/var), they
// are translated back below the root that was given.
type stream struct {
	es       *fsevents.EventStream
	root     string
	resolved string
}

func (s *stream) translate(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if s.resolved != s.root && strings.HasPrefix(path, s.resolved+"/") {
		path = s.root + strings.TrimPrefix(path, s.resolved)
	}
	return path
}

func (w *darwinWatcher) watch(s *stream) {
	defer log.PanicHandler()
	defer w.wg.Done()
	for {
		select {
		case events := <-s.es.Events:
			for _, ev := range events {
				if ev.Flags&fsevents.ItemIsDir != 0 ||
					ev.Flags&changeFlags == 0 {
					continue
				}
				path := s.translate(ev.Path)
				if !w.targets.covers(path) {
					continue
				}
				log.Tracef("fsevents: %#x %s", ev.Flags, path)
				if !w.emit(path) {
					return
				}
			}
		case <-w.done:
			return
		}
	}
}

func (w *darwinWatcher) Add(t models.WatchTarget) error {
	tgt, err := statTarget(t)
	if err != nil {
		return err
	}
	root := tgt.Path
	if !tgt.dir {
		root = filepath.Dir(root)
	}
	// FSEvents recurses natively, depth is restricted by the target filter
	es := &fsevents.EventStream{
		Paths:   []string{root},
		Latency: w.latency,
		Flags:   fsevents.FileEvents | fsevents.WatchRoot,
		Events:  make(chan []fsevents.Event, 16),
	}
	s := &stream{es: es, root: root, resolved: root}
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		s.resolved = resolved
	}
	if err := es.Start(); err != nil {
		return &WatchError{Path: t.Path, Err: err}
	}
	w.targets.add(tgt)
	w.mu.Lock()
	w.streams = append(w.streams, s)
	w.mu.Unlock()
	w.wg.Add(1)
	go w.watch(s)
	log.Debugf("fsevents: watching %s", t)
	return nil
}

func (w *darwinWatcher) Close() error {
	if !w.stop() {
		return nil
	}
	w.mu.Lock()
	for _, s := range w.streams {
		s.es.Stop()
	}
	w.mu.Unlock()
	w.wg.Wait()
	w.finish()
	return nil
}
