// Package repo locates a dvc repository and knows where its internal files
// live.
package repo

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/efiop/dvc/internal/errors"
	"github.com/efiop/dvc/internal/lock"
	"github.com/efiop/dvc/internal/logging"
	"github.com/efiop/dvc/internal/rwlock"
)

const (
	// DirName is the repository's internal metadata directory.
	DirName = ".dvc"
	// TmpDirName holds transient state such as the lock document.
	TmpDirName = "tmp"
	// LockFileName is the repository gate's lock artifact.
	LockFileName = "lock"
)

// Repo is a dvc repository rooted at Root.
type Repo struct {
	Root string
}

// Find walks up from start looking for a directory containing .dvc.
func Find(start string) (*Repo, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", start, err)
	}

	for {
		info, err := os.Stat(filepath.Join(dir, DirName))
		if err == nil && info.IsDir() {
			return &Repo{Root: dir}, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, errors.Wrapf(errors.ErrNotDvcRepository, "%s", start)
		}
		dir = parent
	}
}

// Init creates the internal directory layout under root. It is safe to run
// on an existing repository.
func Init(root string) (*Repo, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", root, err)
	}
	r := &Repo{Root: abs}

	if err := os.MkdirAll(r.TmpDir(), 0755); err != nil {
		return nil, fmt.Errorf("create %s: %w", r.TmpDir(), err)
	}

	ignore := filepath.Join(r.DvcDir(), ".gitignore")
	if _, err := os.Stat(ignore); os.IsNotExist(err) {
		content := "/" + LockFileName + "\n/" + TmpDirName + "\n"
		if err := os.WriteFile(ignore, []byte(content), 0644); err != nil {
			return nil, fmt.Errorf("write %s: %w", ignore, err)
		}
	}
	return r, nil
}

// DvcDir returns the internal metadata directory.
func (r *Repo) DvcDir() string {
	return filepath.Join(r.Root, DirName)
}

// TmpDir returns the directory for transient bookkeeping.
func (r *Repo) TmpDir() string {
	return filepath.Join(r.DvcDir(), TmpDirName)
}

// LockPath returns the gate's lock artifact path.
func (r *Repo) LockPath() string {
	return filepath.Join(r.DvcDir(), LockFileName)
}

// DocumentPath returns the path lock document location.
func (r *Repo) DocumentPath() string {
	return filepath.Join(r.TmpDir(), rwlock.DocumentName)
}

// ConfigPath returns the repository-local config file.
func (r *Repo) ConfigPath() string {
	return filepath.Join(r.DvcDir(), "config.yaml")
}

// Gate returns the repository-wide exclusive gate.
func (r *Repo) Gate(logger *logging.Logger) *lock.Gate {
	return lock.New(r.LockPath(), lock.WithLogger(logger))
}

// RWLock returns a path lock backed by this repository's gate and lock
// document, owned by the current process unless opts say otherwise.
func (r *Repo) RWLock(logger *logging.Logger, opts ...rwlock.Option) *rwlock.RWLock {
	store := rwlock.NewStore(afero.NewOsFs(), r.DocumentPath())
	opts = append([]rwlock.Option{rwlock.WithRoot(r.Root), rwlock.WithLogger(logger)}, opts...)
	return rwlock.New(store, r.Gate(logger), opts...)
}
