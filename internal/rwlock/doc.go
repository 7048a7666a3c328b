// Package rwlock coordinates path-granular read/write access between dvc
// processes that share one repository.
//
// Each operation declares the paths it reads (dependencies) and the paths it
// writes (outputs) before touching the filesystem. [RWLock.Acquire] records
// those claims in a small JSON document, `.dvc/tmp/rwlock`, and refuses the
// whole request if any path conflicts with another process:
//
//   - a read fails if the path has a writer
//   - a write fails if the path has a writer, then if it has any readers
//
// A path is therefore free, read-locked by a set of pids, or write-locked by
// a single pid. There is no upgrade from read to write and no waiting.
//
// # Transactions
//
// The document has no in-memory owner. Every access is one transaction:
// take the repository [lock.Gate], load the document, mutate the [State],
// save it, release the gate. A failed acquire returns before the save, so
// nothing from a rejected request is ever persisted.
//
// # Basic Usage
//
//	rw := rwlock.New(rwlock.NewStore(afero.NewOsFs(), docPath), gate, rwlock.WithRoot(root))
//	err := rw.With([]string{"data/raw"}, []string{"data/clean"}, func() error {
//	    return transform()
//	})
//
// # Crashes
//
// The gate is an OS lock and disappears with its holder. Entries in the
// document do not: if a process dies while holding paths, its pid stays
// recorded until an operator clears it (see [RWLock.Clear] and [Stale]).
package rwlock
