package models

import (
	"fmt"
	"time"
)

// A WatchTarget is one path given on the command line
type WatchTarget struct {
	Path      string
	Recursive bool
}

func (t WatchTarget) String() string {
	if t.Recursive {
		return t.Path + "/..."
	}
	return t.Path
}

// A RawEvent is emitted by a watcher backend every time it notices that a
// file was created, written, renamed or removed.
type RawEvent struct {
	// Absolute path of the changed file, never the watched directory
	Path       string
	ObservedAt time.Time
}

// A ChangeEvent is a burst of raw events on the same path that settled for
// at least one debounce window.
type ChangeEvent struct {
	Path      string
	FirstSeen time.Time
	LastSeen  time.Time
}

func (e ChangeEvent) String() string {
	return fmt.Sprintf("%s (%s..%s)", e.Path,
		e.FirstSeen.Format("15:04:05.000"),
		e.LastSeen.Format("15:04:05.000"))
}

type ExecutionMode int

const (
	Serial ExecutionMode = iota
	Concurrent
)

func (m ExecutionMode) String() string {
	switch m {
	case Serial:
		return "serial"
	case Concurrent:
		return "concurrent"
	}
	return fmt.Sprintf("ExecutionMode(%d)", int(m))
}
