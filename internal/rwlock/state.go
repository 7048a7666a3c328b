package rwlock

import (
	"encoding/json"
	"sort"
)

// Entry is the lock state of one path. A pid of zero means no writer.
type Entry struct {
	Writer  int   `json:"writer,omitempty"`
	Readers []int `json:"readers,omitempty"`
}

// Empty reports whether the entry holds nothing.
func (e *Entry) Empty() bool {
	return e == nil || (e.Writer == 0 && len(e.Readers) == 0)
}

// Mode returns "write", "read" or "" for an empty entry.
func (e *Entry) Mode() string {
	switch {
	case e.Empty():
		return ""
	case e.Writer != 0:
		return "write"
	default:
		return "read"
	}
}

// Holders returns the pids holding the entry.
func (e *Entry) Holders() []int {
	if e.Empty() {
		return nil
	}
	if e.Writer != 0 {
		return []int{e.Writer}
	}
	out := make([]int, len(e.Readers))
	copy(out, e.Readers)
	return out
}

// State maps canonical repo-relative paths to their lock entries.
// An absent key means the path is free.
type State map[string]*Entry

// Paths returns the locked paths in sorted order.
func (s State) Paths() []string {
	paths := make([]string, 0, len(s))
	for p := range s {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Clone returns a deep copy of the state.
func (s State) Clone() State {
	out := make(State, len(s))
	for p, e := range s {
		if e == nil {
			continue
		}
		c := &Entry{Writer: e.Writer}
		if e.Readers != nil {
			c.Readers = append([]int(nil), e.Readers...)
		}
		out[p] = c
	}
	return out
}

// prune drops the entry for path if it no longer holds anything.
func (s State) prune(path string) {
	if e, ok := s[path]; ok && e.Empty() {
		delete(s, path)
	}
}

// decodeState parses a lock document. Anything it cannot make sense of is
// treated as absent: an unparsable document yields an empty state, and a
// field of the wrong shape is dropped from its entry.
func decodeState(data []byte) State {
	state := make(State)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return state
	}

	for path, msg := range raw {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(msg, &fields); err != nil {
			continue
		}

		entry := &Entry{}
		if w, ok := fields["writer"]; ok {
			var writer int
			if json.Unmarshal(w, &writer) == nil {
				entry.Writer = writer
			}
		}
		if r, ok := fields["readers"]; ok {
			var readers []int
			if json.Unmarshal(r, &readers) == nil && len(readers) > 0 {
				entry.Readers = readers
			}
		}

		if !entry.Empty() {
			state[path] = entry
		}
	}
	return state
}
