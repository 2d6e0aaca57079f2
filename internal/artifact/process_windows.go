//go:build windows

package artifact

import "os"

// processAlive reports whether pid names a running process. FindProcess
// opens a handle on windows and fails when the process is gone.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	_ = p.Release()
	return true
}
