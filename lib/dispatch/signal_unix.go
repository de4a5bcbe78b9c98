//go:build !windows
// +build !windows

package dispatch

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

func signalOf(state *os.ProcessState) string {
	ws, ok := state.Sys().(syscall.WaitStatus)
	if !ok || !ws.Signaled() {
		return ""
	}
	return unix.SignalName(ws.Signal())
}
