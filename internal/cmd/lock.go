package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/efiop/dvc/internal/errors"
	"github.com/efiop/dvc/internal/rwlock"
	"github.com/efiop/dvc/internal/ui"
	"github.com/efiop/dvc/internal/watch"
)

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Inspect and repair path locks",
	Long: `Inspect and repair the path locks recorded in .dvc/tmp/rwlock.

A process that dies while holding path locks leaves its entries behind.
Use "dvc lock status --stale" to find them and "dvc lock clear" to remove
them once you are sure the holder is gone.`,
}

var lockStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which paths are locked and by whom",
	Args:  cobra.NoArgs,
	RunE:  runLockStatus,
}

var lockClearCmd = &cobra.Command{
	Use:   "clear <path>...",
	Short: "Remove path lock entries",
	Long: `Remove the lock entries for the given paths regardless of who holds them.

Relative paths are resolved against the current directory (or --cd), so
"dvc lock clear foo" run from <repo>/sub clears the entry for sub/foo.

This is an operator tool for recovering from crashed processes. Clearing
an entry that a live process still holds lets others write to data that
process is using.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runLockClear,
}

var lockWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-render lock status whenever it changes",
	Args:  cobra.NoArgs,
	RunE:  runLockWatch,
}

var (
	lockStatusStale bool
	lockStatusJSON  bool
)

func init() {
	rootCmd.AddCommand(lockCmd)
	lockCmd.AddCommand(lockStatusCmd, lockClearCmd, lockWatchCmd)

	lockStatusCmd.Flags().BoolVar(&lockStatusStale, "stale", false, "Only show entries whose holders are no longer running")
	lockStatusCmd.Flags().BoolVar(&lockStatusJSON, "json", false, "Print entries as JSON")
}

func runLockStatus(cmd *cobra.Command, args []string) error {
	lock, cleanup, err := openRWLock(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	return printLockStatus(cmd.OutOrStdout(), lock, lockStatusStale, lockStatusJSON)
}

func printLockStatus(out io.Writer, lock *rwlock.RWLock, onlyStale, asJSON bool) error {
	state, err := lock.Snapshot()
	if err != nil {
		return err
	}

	rows := ui.LockRows(state, rwlock.Stale(state))
	if onlyStale {
		stale := rows[:0]
		for _, row := range rows {
			if !row.Alive {
				stale = append(stale, row)
			}
		}
		rows = stale
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}
	return ui.RenderLocks(out, rows)
}

func runLockClear(cmd *cobra.Command, args []string) error {
	lock, cleanup, err := openRWLock(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	paths, err := resolvePaths(workDir(cmd), args)
	if err != nil {
		return err
	}
	removed, err := lock.Clear(paths)
	if err != nil {
		return errors.Wrap(err, "failed to clear locks")
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Removed %d of %d lock entries.\n", removed, len(args))
	return nil
}

// resolvePaths makes relative args absolute against dir so the lock maps them
// to their repository-relative keys.
func resolvePaths(dir string, args []string) ([]string, error) {
	base, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s", dir)
	}
	paths := make([]string, len(args))
	for i, arg := range args {
		if filepath.IsAbs(arg) {
			paths[i] = arg
		} else {
			paths[i] = filepath.Join(base, arg)
		}
	}
	return paths, nil
}

func runLockWatch(cmd *cobra.Command, args []string) error {
	r, err := findRepo(cmd)
	if err != nil {
		return err
	}
	lock, cleanup, err := openRWLock(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	render := func() {
		_, _ = fmt.Fprintln(out)
		if err := printLockStatus(out, lock, false, false); err != nil {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		}
	}

	render()
	return watch.New(r.DocumentPath()).Run(ctx, render)
}

// openRWLock builds the path lock for the enclosing repository along with
// a cleanup that closes its logger.
func openRWLock(cmd *cobra.Command) (*rwlock.RWLock, func(), error) {
	r, err := findRepo(cmd)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(cmd, r, cfg)
	if err != nil {
		return nil, nil, err
	}
	return r.RWLock(logger), func() { _ = logger.Close() }, nil
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
