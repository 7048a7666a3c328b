package rwlock

// StaleEntry describes a locked path whose holders are no longer running.
type StaleEntry struct {
	Path string
	Mode string
	PIDs []int
}

// Stale reports entries of state held only by processes that are not alive
// on this host. It never modifies state; reclaiming is left to an operator.
func Stale(state State) []StaleEntry {
	return staleWith(state, processAlive)
}

func staleWith(state State, alive func(int) bool) []StaleEntry {
	var out []StaleEntry
	for _, p := range state.Paths() {
		entry := state[p]
		holders := entry.Holders()
		if len(holders) == 0 {
			continue
		}

		dead := true
		for _, pid := range holders {
			if alive(pid) {
				dead = false
				break
			}
		}
		if dead {
			out = append(out, StaleEntry{Path: p, Mode: entry.Mode(), PIDs: holders})
		}
	}
	return out
}
