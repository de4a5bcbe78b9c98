//go:build windows
// +build windows

package dispatch

import "os"

func signalOf(*os.ProcessState) string {
	return ""
}
