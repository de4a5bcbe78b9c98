// Package debounce coalesces bursts of raw file system events into a single
// change per path.
package debounce

import (
	"context"
	"time"

	"git.sr.ht/~rjarry/onchange/lib/log"
	"git.sr.ht/~rjarry/onchange/models"
)

var logger = log.NewLogger("debounce")

type pending struct {
	first time.Time
	last  time.Time
	timer *time.Timer
	gen   uint64
}

type firing struct {
	path string
	gen  uint64
}

// Debouncer emits a ChangeEvent for a path once no raw event was observed
// for it during a full window. Paths are debounced independently.
type Debouncer struct {
	window  time.Duration
	pending map[string]*pending
	fired   chan firing
	done    chan struct{}
}

func New(window time.Duration) *Debouncer {
	return &Debouncer{
		window:  window,
		pending: make(map[string]*pending),
		fired:   make(chan firing),
	}
}

// Run consumes in until ctx is cancelled or in is closed and every pending
// path has settled. Pending paths are discarded on cancellation. out is
// closed when Run returns. Run must only be called once.
func (d *Debouncer) Run(ctx context.Context, in <-chan models.RawEvent, out chan<- models.ChangeEvent) {
	defer log.PanicHandler()
	defer close(out)
	d.done = make(chan struct{})
	defer close(d.done)
	defer d.drop()

	for {
		if in == nil && len(d.pending) == 0 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-in:
			if !ok {
				in = nil
				continue
			}
			if d.window <= 0 {
				ce := models.ChangeEvent{
					Path:      ev.Path,
					FirstSeen: ev.ObservedAt,
					LastSeen:  ev.ObservedAt,
				}
				if !d.send(ctx, out, ce) {
					return
				}
				continue
			}
			d.observe(ev)
		case f := <-d.fired:
			p, ok := d.pending[f.path]
			if !ok || p.gen != f.gen {
				// superseded by a later event
				continue
			}
			delete(d.pending, f.path)
			ce := models.ChangeEvent{
				Path:      f.path,
				FirstSeen: p.first,
				LastSeen:  p.last,
			}
			if !d.send(ctx, out, ce) {
				return
			}
		}
	}
}

func (d *Debouncer) observe(ev models.RawEvent) {
	p, ok := d.pending[ev.Path]
	if ok {
		p.timer.Stop()
		p.gen++
		if ev.ObservedAt.After(p.last) {
			p.last = ev.ObservedAt
		}
	} else {
		p = &pending{first: ev.ObservedAt, last: ev.ObservedAt}
		d.pending[ev.Path] = p
	}
	f := firing{path: ev.Path, gen: p.gen}
	done := d.done
	p.timer = time.AfterFunc(d.window, func() {
		select {
		case d.fired <- f:
		case <-done:
		}
	})
	logger.Tracef("%s gen=%d", ev.Path, p.gen)
}

func (d *Debouncer) send(ctx context.Context, out chan<- models.ChangeEvent, ev models.ChangeEvent) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (d *Debouncer) drop() {
	for path, p := range d.pending {
		p.timer.Stop()
		logger.Debugf("dropped pending change of %s", path)
		delete(d.pending, path)
	}
}
