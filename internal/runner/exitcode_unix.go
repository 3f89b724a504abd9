//go:build !windows

package runner

import (
	"os"
	"syscall"
)

// signalExitCode reports a child killed by a signal the way shells do:
// 128 plus the signal number.
func signalExitCode(state *os.ProcessState) int {
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return 1
}
