package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"
)

// PanicHandler writes a stack trace to a crash log in the temp dir and on
// stderr, then re-panics. Deferred at the top of every goroutine.
func PanicHandler() {
	r := recover()
	if r == nil {
		return
	}

	filename := filepath.Join(os.TempDir(),
		time.Now().Format("onchange-crash-20060102-150405.log"))

	panicLog, err := os.OpenFile(filename, os.O_SYNC|os.O_APPEND|os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
	if err != nil {
		// we tried, not possible. bye
		panic(r)
	}
	defer panicLog.Close()

	outputs := io.MultiWriter(panicLog, os.Stderr)

	// if any error happens here, we do not care.
	fmt.Fprintln(panicLog, strings.Repeat("#", 80))
	fmt.Fprintf(panicLog, "onchange %s crashed at %s\n", BuildInfo,
		time.Now().Format("2006-01-02T15:04:05.000000-0700"))
	fmt.Fprintln(panicLog, strings.Repeat("#", 80))
	fmt.Fprintf(outputs, "%s\n", panicMessage)
	fmt.Fprintf(panicLog, "Error: %v\n\n", r)
	panicLog.Write(debug.Stack()) //nolint:errcheck // crashing anyway
	fmt.Fprintf(os.Stderr, "\nThis error was also written to: %s\n", filename)
	panic(r)
}

const panicMessage = `
onchange has encountered a critical error and has terminated. The stack trace
below and the command line you used are needed to reproduce the crash.
`
