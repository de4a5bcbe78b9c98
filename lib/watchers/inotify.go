//go:build !darwin
// +build !darwin

package watchers

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"git.sr.ht/~rjarry/onchange/lib/log"
	"git.sr.ht/~rjarry/onchange/models"
)

func init() {
	RegisterWatcherFactory(newInotifyWatcher)
}

type inotifyWatcher struct {
	emitter
	w       *fsnotify.Watcher
	targets targetSet
}

func newInotifyWatcher(opts Options) (Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	watcher := &inotifyWatcher{
		emitter: newEmitter(opts),
		w:       w,
	}
	go watcher.watch()
	return watcher, nil
}

func (w *inotifyWatcher) watch() {
	defer log.PanicHandler()
	defer w.finish()
	for {
		select {
		case ev, ok := <-w.w.Events:
			if !ok {
				return
			}
			if !w.handle(ev) {
				return
			}
		case err, ok := <-w.w.Errors:
			if !ok {
				return
			}
			log.Warnf("inotify: %v", err)
			w.fail(err)
		case <-w.done:
			return
		}
	}
}

func (w *inotifyWatcher) handle(ev fsnotify.Event) bool {
	// permission and timestamp changes only
	if ev.Op == fsnotify.Chmod {
		return true
	}
	if ev.Has(fsnotify.Create) {
		info, err := os.Lstat(ev.Name)
		if err == nil && info.IsDir() {
			if w.targets.recursive(ev.Name) {
				return w.addTree(ev.Name, true)
			}
			return true
		}
	}
	if !w.targets.covers(ev.Name) {
		return true
	}
	log.Tracef("inotify: %s %s", ev.Op, ev.Name)
	return w.emit(ev.Name)
}

// addTree registers root and every directory below it. When notify is set,
// files already present are reported since they may have been written before
// the directory was watched.
func (w *inotifyWatcher) addTree(root string, notify bool) bool {
	keep := true
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// vanished or unreadable below the root
			log.Debugf("inotify: %s: %v", path, err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if err := w.w.Add(path); err != nil {
				log.Warnf("inotify: %s: %v", path, err)
				w.fail(&WatchError{Path: path, Err: err})
			}
			return nil
		}
		if notify && !w.emit(path) {
			keep = false
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		log.Debugf("inotify: walk %s: %v", root, err)
	}
	return keep
}

func (w *inotifyWatcher) Add(t models.WatchTarget) error {
	tgt, err := statTarget(t)
	if err != nil {
		return err
	}
	switch {
	case !tgt.dir:
		// editors often replace files with a rename, watching the parent
		// keeps the file observed afterwards
		err = w.w.Add(filepath.Dir(tgt.Path))
	case tgt.Recursive:
		err = filepath.WalkDir(tgt.Path, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return w.w.Add(path)
			}
			return nil
		})
	default:
		err = w.w.Add(tgt.Path)
	}
	if err != nil {
		return &WatchError{Path: t.Path, Err: err}
	}
	w.targets.add(tgt)
	log.Debugf("inotify: watching %s", t)
	return nil
}

func (w *inotifyWatcher) Close() error {
	if !w.stop() {
		return nil
	}
	return w.w.Close()
}
