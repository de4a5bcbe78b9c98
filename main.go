package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"git.sr.ht/~rjarry/onchange/lib/log"
)

// set at build time
var Version string = "dev"

func buildInfo() string {
	return fmt.Sprintf("%s (%s %s %s)", Version,
		runtime.Version(), runtime.GOARCH, runtime.GOOS)
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

func main() {
	defer log.PanicHandler()
	log.BuildInfo = buildInfo()

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCommand()
	err := cmd.ExecuteContext(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		stop()
		die("%s", err)
	}
}
