package watchers

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"git.sr.ht/~rjarry/onchange/lib/log"
	"git.sr.ht/~rjarry/onchange/models"
)

var plog = log.NewLogger("poll")

type fileState struct {
	size  int64
	mode  fs.FileMode
	mtime time.Time
}

func stateOf(info fs.FileInfo) fileState {
	return fileState{
		size:  info.Size(),
		mode:  info.Mode(),
		mtime: info.ModTime(),
	}
}

func (s fileState) equal(o fileState) bool {
	return s.size == o.size && s.mode == o.mode && s.mtime.Equal(o.mtime)
}

type pollWatcher struct {
	emitter
	interval time.Duration
	targets  targetSet
	// serializes Add with scans
	mu    sync.Mutex
	files map[string]fileState
	wg    sync.WaitGroup
}

// NewPollWatcher returns a backend that compares file metadata every
// PollInterval. It works everywhere, including network file systems where
// native notifications are not delivered.
func NewPollWatcher(opts Options) (Watcher, error) {
	opts = opts.withDefaults()
	w := &pollWatcher{
		emitter:  newEmitter(opts),
		interval: opts.PollInterval,
		files:    make(map[string]fileState),
	}
	w.wg.Add(1)
	go w.loop()
	return w, nil
}

func (w *pollWatcher) Add(t models.WatchTarget) error {
	tgt, err := statTarget(t)
	if err != nil {
		return err
	}
	// baseline, no events for what already exists
	found := make(map[string]fileState)
	w.mu.Lock()
	scanTarget(&tgt, found)
	for path, st := range found {
		w.files[path] = st
	}
	w.targets.add(tgt)
	w.mu.Unlock()
	plog.Debugf("watching %s (%d files)", t, len(found))
	return nil
}

func (w *pollWatcher) loop() {
	defer log.PanicHandler()
	defer w.wg.Done()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			for _, path := range w.scan() {
				if !w.emit(path) {
					return
				}
			}
		case <-w.done:
			return
		}
	}
}

// scan returns the sorted list of paths which were created, modified or
// removed since the previous scan.
func (w *pollWatcher) scan() []string {
	w.mu.Lock()
	found := make(map[string]fileState)
	for _, tgt := range w.targets.snapshot() {
		tgt := tgt
		scanTarget(&tgt, found)
	}
	var changed []string
	for path, st := range found {
		if prev, ok := w.files[path]; !ok || !prev.equal(st) {
			changed = append(changed, path)
		}
	}
	for path := range w.files {
		if _, ok := found[path]; !ok {
			changed = append(changed, path)
		}
	}
	w.files = found
	w.mu.Unlock()

	sort.Strings(changed)
	return changed
}

func scanTarget(t *target, found map[string]fileState) {
	if !t.dir {
		info, err := os.Stat(t.Path)
		if err == nil && !info.IsDir() {
			found[t.Path] = stateOf(info)
		}
		return
	}
	if !t.Recursive {
		entries, err := os.ReadDir(t.Path)
		if err != nil {
			plog.Tracef("%s: %v", t.Path, err)
			return
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			found[filepath.Join(t.Path, e.Name())] = stateOf(info)
		}
		return
	}
	_ = filepath.WalkDir(t.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			plog.Tracef("%s: %v", path, err)
			if d != nil && d.IsDir() && path != t.Path {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		found[path] = stateOf(info)
		return nil
	})
}

func (w *pollWatcher) Close() error {
	if !w.stop() {
		return nil
	}
	w.wg.Wait()
	w.finish()
	return nil
}
