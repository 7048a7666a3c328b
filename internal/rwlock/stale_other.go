//go:build !unix

package rwlock

// processAlive cannot probe processes on this platform, so every positive
// pid is assumed to be running and nothing is reported stale.
func processAlive(pid int) bool {
	return pid > 0
}
