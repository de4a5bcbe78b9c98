package log

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

type LogLevel int

const (
	TRACE LogLevel = 5
	DEBUG LogLevel = 10
	INFO  LogLevel = 20
	WARN  LogLevel = 30
	ERROR LogLevel = 40
)

func (l LogLevel) String() string {
	switch l {
	case TRACE:
		return "trace"
	case DEBUG:
		return "debug"
	case INFO:
		return "info"
	case WARN:
		return "warn"
	case ERROR:
		return "error"
	}
	return fmt.Sprintf("level(%d)", int(l))
}

var prefixes = map[LogLevel]string{
	TRACE: "TRACE ",
	DEBUG: "DEBUG ",
	INFO:  "INFO  ",
	WARN:  "WARN  ",
	ERROR: "ERROR ",
}

var (
	mu       sync.RWMutex
	loggers  map[LogLevel]*log.Logger
	minLevel LogLevel = WARN

	// file we opened ourselves and must close on re-init
	logfile io.Closer

	BuildInfo string
)

// Init sets the destination of all diagnostic messages. A nil writer
// disables logging entirely. If w is an *os.File other than stdout/stderr,
// it is closed on the next call to Init.
func Init(w io.Writer, level LogLevel) error {
	mu.Lock()
	defer mu.Unlock()

	if logfile != nil {
		if err := logfile.Close(); err != nil {
			return err
		}
		logfile = nil
	}
	loggers = nil
	minLevel = level
	if w == nil {
		return nil
	}
	if f, ok := w.(*os.File); ok && f != os.Stdout && f != os.Stderr {
		logfile = f
	}
	flags := log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile
	loggers = make(map[LogLevel]*log.Logger, len(prefixes))
	for lvl, prefix := range prefixes {
		loggers[lvl] = log.New(w, prefix, flags)
	}
	return nil
}

// OpenFile opens (or creates) a log file in append mode.
func OpenFile(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
}

func ParseLevel(value string) (LogLevel, error) {
	switch strings.ToLower(value) {
	case "trace":
		return TRACE, nil
	case "debug":
		return DEBUG, nil
	case "info":
		return INFO, nil
	case "warn", "warning":
		return WARN, nil
	case "err", "error":
		return ERROR, nil
	}
	return 0, fmt.Errorf("%s: invalid log level", value)
}

// Enabled reports whether messages at the given level are written anywhere.
func Enabled(level LogLevel) bool {
	mu.RLock()
	defer mu.RUnlock()
	return loggers != nil && level >= minLevel
}

type Logger interface {
	Tracef(string, ...any)
	Debugf(string, ...any)
	Infof(string, ...any)
	Warnf(string, ...any)
	Errorf(string, ...any)
}

type logger struct {
	name      string
	calldepth int
}

// NewLogger returns a logger which prefixes all messages with [name].
func NewLogger(name string) Logger {
	return &logger{name: name, calldepth: 3}
}

func (l *logger) output(level LogLevel, message string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	if loggers == nil || level < minLevel {
		return
	}
	if len(args) > 0 {
		message = fmt.Sprintf(message, args...)
	}
	if l.name != "" {
		message = fmt.Sprintf("[%s] %s", l.name, message)
	}
	loggers[level].Output(l.calldepth, message) //nolint:errcheck // we can't do anything with what we log
}

func (l *logger) Tracef(message string, args ...any) {
	l.output(TRACE, message, args...)
}

func (l *logger) Debugf(message string, args ...any) {
	l.output(DEBUG, message, args...)
}

func (l *logger) Infof(message string, args ...any) {
	l.output(INFO, message, args...)
}

func (l *logger) Warnf(message string, args ...any) {
	l.output(WARN, message, args...)
}

func (l *logger) Errorf(message string, args ...any) {
	l.output(ERROR, message, args...)
}

var root = logger{calldepth: 4}

func Tracef(message string, args ...any) {
	root.Tracef(message, args...)
}

func Debugf(message string, args ...any) {
	root.Debugf(message, args...)
}

func Infof(message string, args ...any) {
	root.Infof(message, args...)
}

func Warnf(message string, args ...any) {
	root.Warnf(message, args...)
}

func Errorf(message string, args ...any) {
	root.Errorf(message, args...)
}
