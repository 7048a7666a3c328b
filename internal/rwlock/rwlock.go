package rwlock

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/efiop/dvc/internal/errors"
	"github.com/efiop/dvc/internal/lock"
	"github.com/efiop/dvc/internal/logging"
)

// RWLock grants read and write claims on repository paths to one process
// identifier. Claims are recorded in the shared lock document and are
// visible to every other dvc process on the host.
type RWLock struct {
	store  *Store
	gate   *lock.Gate
	pid    int
	root   string
	logger *logging.Logger
}

// Option configures an RWLock.
type Option func(*RWLock)

// WithPID sets the process identifier that owns the claims. Defaults to
// os.Getpid().
func WithPID(pid int) Option {
	return func(l *RWLock) {
		l.pid = pid
	}
}

// WithRoot sets the repository root used to make absolute paths relative.
func WithRoot(root string) Option {
	return func(l *RWLock) {
		l.root = root
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *logging.Logger) Option {
	return func(l *RWLock) {
		l.logger = logger
	}
}

// New returns an RWLock that records claims in store while holding gate.
func New(store *Store, gate *lock.Gate, opts ...Option) *RWLock {
	l := &RWLock{
		store: store,
		gate:  gate,
		pid:   os.Getpid(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = logging.OrNop(l.logger).WithPID(l.pid)
	return l
}

// PID returns the process identifier that owns this lock's claims.
func (l *RWLock) PID() int {
	return l.pid
}

// Acquire claims reads and writes atomically. Either every path is claimed
// or, on the first conflict, a *errors.ResourceBusyError is returned and the
// document is left untouched.
//
// The same path must not appear twice in one call: read registrations are
// not deduplicated, and a path in both sets conflicts with itself.
func (l *RWLock) Acquire(reads, writes []string) (*Guard, error) {
	reads = l.canonicalAll(reads)
	writes = l.canonicalAll(writes)

	err := l.gate.Do(func() error {
		return l.store.Edit(func(state State) error {
			if err := acquireRead(state, reads, l.pid); err != nil {
				return err
			}
			return acquireWrite(state, writes, l.pid)
		})
	})
	if err != nil {
		if errors.Is(err, errors.ErrResourceBusy) {
			l.logger.Failure("path lock conflict", err)
		}
		return nil, err
	}

	l.logger.Debug("paths locked", "reads", reads, "writes", writes)
	return &Guard{lock: l, reads: reads, writes: writes}, nil
}

// With acquires reads and writes, runs fn, and releases the claims on every
// exit path including a panic in fn. An error from fn takes precedence; a
// release failure is joined to it.
func (l *RWLock) With(reads, writes []string, fn func() error) (err error) {
	guard, err := l.Acquire(reads, writes)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := guard.Release(); rerr != nil {
			err = errors.Join(err, rerr)
		}
	}()

	return fn()
}

// Snapshot returns a consistent copy of the lock document.
func (l *RWLock) Snapshot() (State, error) {
	var state State
	err := l.gate.Do(func() error {
		state = l.store.Load()
		return nil
	})
	return state, err
}

// Clear removes the entries for paths regardless of who holds them and
// returns how many were removed. It exists for operators recovering from a
// crashed process; normal callers release through their Guard.
func (l *RWLock) Clear(paths []string) (int, error) {
	paths = l.canonicalAll(paths)

	removed := 0
	err := l.gate.Do(func() error {
		return l.store.Edit(func(state State) error {
			for _, p := range paths {
				if _, ok := state[p]; ok {
					delete(state, p)
					removed++
				}
			}
			return nil
		})
	})
	if err != nil {
		return 0, err
	}

	l.logger.Info("path locks cleared", "paths", paths, "removed", removed)
	return removed, nil
}

func (l *RWLock) release(reads, writes []string) error {
	err := l.gate.Do(func() error {
		return l.store.Edit(func(state State) error {
			releaseWrite(state, writes, l.pid)
			releaseRead(state, reads, l.pid)
			return nil
		})
	})
	if err != nil {
		return err
	}

	l.logger.Debug("paths unlocked", "reads", reads, "writes", writes)
	return nil
}

// canonical maps p to the key used in the lock document: slash-separated,
// cleaned and, when it lies under the root, relative to it.
func (l *RWLock) canonical(p string) string {
	if l.root != "" && filepath.IsAbs(p) {
		if rel, err := filepath.Rel(l.root, p); err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			p = rel
		}
	}
	return filepath.ToSlash(filepath.Clean(p))
}

func (l *RWLock) canonicalAll(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = l.canonical(p)
	}
	return out
}

// Guard represents claims obtained by Acquire.
type Guard struct {
	lock     *RWLock
	reads    []string
	writes   []string
	mu       sync.Mutex
	released bool
}

// Reads returns the canonical read paths held by the guard.
func (g *Guard) Reads() []string {
	return g.reads
}

// Writes returns the canonical write paths held by the guard.
func (g *Guard) Writes() []string {
	return g.writes
}

// Release gives back the guard's claims. Calling it again after a
// successful release is a no-op; after a failed release it tries again.
func (g *Guard) Release() error {
	if g == nil {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.released {
		return nil
	}
	if err := g.lock.release(g.reads, g.writes); err != nil {
		return err
	}
	g.released = true
	return nil
}

func acquireRead(state State, paths []string, pid int) error {
	for _, p := range paths {
		entry, ok := state[p]
		if ok && entry != nil && entry.Writer != 0 {
			return errors.NewWriterBusyError(p, entry.Writer)
		}
		if !ok || entry == nil {
			entry = &Entry{}
			state[p] = entry
		}
		entry.Readers = append(entry.Readers, pid)
	}
	return nil
}

func acquireWrite(state State, paths []string, pid int) error {
	for _, p := range paths {
		if entry, ok := state[p]; ok && entry != nil {
			if entry.Writer != 0 {
				return errors.NewWriterBusyError(p, entry.Writer)
			}
			if len(entry.Readers) > 0 {
				return errors.NewReadersBusyError(p, entry.Readers)
			}
		}
		state[p] = &Entry{Writer: pid}
	}
	return nil
}

func releaseWrite(state State, paths []string, pid int) {
	for _, p := range paths {
		entry, ok := state[p]
		if !ok || entry == nil {
			continue
		}
		if entry.Writer == pid {
			entry.Writer = 0
		}
		state.prune(p)
	}
}

func releaseRead(state State, paths []string, pid int) {
	for _, p := range paths {
		entry, ok := state[p]
		if !ok || entry == nil {
			continue
		}
		for i, r := range entry.Readers {
			if r == pid {
				entry.Readers = append(entry.Readers[:i], entry.Readers[i+1:]...)
				break
			}
		}
		if len(entry.Readers) == 0 {
			entry.Readers = nil
		}
		state.prune(p)
	}
}
