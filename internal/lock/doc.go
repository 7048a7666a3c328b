// Package lock provides the repository-wide exclusive gate used by every
// dvc command that touches shared bookkeeping.
//
// A [Gate] names a lock artifact on disk (by default `.dvc/lock`) and holds
// an OS advisory lock on it (flock(2) on Unix, LockFileEx on Windows). At
// most one process on the host holds a given gate. If the holder dies the
// operating system drops the lock, so the gate itself never goes stale.
//
// # Acquisition Policy
//
// [Gate.Lock] tries once, sleeps [DefaultRetryDelay] on contention, and tries
// exactly once more. If the second attempt also loses it returns a
// *errors.LockError carrying the fixed remediation message. There is no
// queueing and no user-visible timeout knob.
//
// # Basic Usage
//
//	gate := lock.New(filepath.Join(root, ".dvc", "lock"))
//	err := gate.Do(func() error {
//	    // exclusive section
//	    return nil
//	})
//
// A Gate is safe for concurrent use. Goroutines of one process queue on an
// in-process mutex before competing for the file lock, so the retry policy
// only ever applies between processes.
package lock
