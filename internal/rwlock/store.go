package rwlock

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
)

// DocumentName is the file name of the lock document.
const DocumentName = "rwlock"

// Store loads and saves the lock document. It performs no locking of its
// own: callers must hold the repository gate for the whole load/mutate/save
// window or concurrent updates will be lost.
type Store struct {
	fs   afero.Fs
	path string
}

// NewStore returns a Store for the document at path on fs.
func NewStore(fs afero.Fs, path string) *Store {
	return &Store{fs: fs, path: path}
}

// Path returns the document location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the document. A missing, unreadable or malformed document is
// an empty State, never an error.
func (s *Store) Load() State {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		return make(State)
	}
	return decodeState(data)
}

// Edit loads the document, hands it to fn for in-place mutation and, if fn
// succeeds, writes it back. When fn returns an error nothing is written, so
// partial mutations made by fn are discarded.
func (s *Store) Edit(fn func(State) error) error {
	state := s.Load()
	if err := fn(state); err != nil {
		return err
	}
	return s.save(state)
}

// save writes state atomically: data goes to a temporary file that is then
// renamed over the document.
func (s *Store) save(state State) error {
	for p := range state {
		state.prune(p)
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal lock document: %w", err)
	}

	if err := s.fs.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create lock document directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		_ = s.fs.Remove(tmp) // best-effort cleanup
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
