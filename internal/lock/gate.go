package lock

import (
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/efiop/dvc/internal/errors"
	"github.com/efiop/dvc/internal/logging"
)

// DefaultRetryDelay is how long Lock waits before its single retry.
const DefaultRetryDelay = 5 * time.Second

// locker is the subset of *flock.Flock the gate relies on.
type locker interface {
	TryLock() (bool, error)
	Unlock() error
}

// Gate is a named, host-local mutual-exclusion primitive backed by an
// advisory lock on a file.
type Gate struct {
	mu         sync.Mutex // serializes holders within this process
	path       string
	fl         locker
	retryDelay time.Duration
	sleep      func(time.Duration)
	logger     *logging.Logger
	held       bool
}

// Option configures a Gate.
type Option func(*Gate)

// WithRetryDelay overrides the delay before the single retry.
func WithRetryDelay(d time.Duration) Option {
	return func(g *Gate) {
		g.retryDelay = d
	}
}

// WithLogger attaches a logger for contention diagnostics.
func WithLogger(l *logging.Logger) Option {
	return func(g *Gate) {
		g.logger = l
	}
}

// New creates a Gate for the lock artifact at path. The artifact is created
// on first Lock; its parent directory must already exist.
func New(path string, opts ...Option) *Gate {
	g := &Gate{
		path:       path,
		fl:         flock.New(path),
		retryDelay: DefaultRetryDelay,
		sleep:      time.Sleep,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = logging.OrNop(g.logger)
	return g
}

// Lock claims the gate. On contention it sleeps the retry delay and tries
// exactly once more before returning a *errors.LockError.
func (g *Gate) Lock() error {
	g.mu.Lock()

	ok, err := g.tryLock()
	if err != nil {
		g.mu.Unlock()
		return err
	}
	if ok {
		return nil
	}

	g.logger.Warn("repository lock contended, retrying",
		"path", g.path,
		"delay", g.retryDelay.String(),
	)
	g.sleep(g.retryDelay)

	ok, err = g.tryLock()
	if err != nil {
		g.mu.Unlock()
		return err
	}
	if !ok {
		g.mu.Unlock()
		g.logger.Error("failed to acquire repository lock", "path", g.path)
		return errors.NewLockError(g.path)
	}
	return nil
}

func (g *Gate) tryLock() (bool, error) {
	ok, err := g.fl.TryLock()
	if err != nil {
		return false, fmt.Errorf("lock %s: %w", g.path, err)
	}
	if ok {
		g.held = true
		g.logger.Debug("repository lock acquired", "path", g.path)
	}
	return ok, nil
}

// Unlock releases the gate. It is a no-op if the gate is not held.
func (g *Gate) Unlock() error {
	if !g.held {
		return nil
	}
	g.held = false
	defer g.mu.Unlock()

	if err := g.fl.Unlock(); err != nil {
		return fmt.Errorf("unlock %s: %w", g.path, err)
	}
	g.logger.Debug("repository lock released", "path", g.path)
	return nil
}

// Do runs fn while holding the gate. The gate is released on every exit
// path, including when fn returns an error or panics. An unlock failure is
// reported only if fn itself succeeded.
func (g *Gate) Do(fn func() error) (err error) {
	if err := g.Lock(); err != nil {
		return err
	}
	defer func() {
		if uerr := g.Unlock(); uerr != nil && err == nil {
			err = uerr
		}
	}()

	return fn()
}
