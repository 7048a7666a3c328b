package stage

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/efiop/dvc/internal/errors"
	"github.com/efiop/dvc/internal/logging"
	"github.com/efiop/dvc/internal/rwlock"
)

// DefaultShell runs stage commands when no shell is configured.
const DefaultShell = "sh"

// waitDelay bounds how long a cancelled command's leftover children may keep
// its output pipes open.
const waitDelay = 2 * time.Second

// Runner executes stages under path locks.
type Runner struct {
	lock   *rwlock.RWLock
	shell  string
	stdout io.Writer
	stderr io.Writer
	logger *logging.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithShell sets the shell used as `<shell> -c <cmd>`.
func WithShell(shell string) RunnerOption {
	return func(r *Runner) {
		if shell != "" {
			r.shell = shell
		}
	}
}

// WithOutput redirects the command's stdout and stderr.
func WithOutput(stdout, stderr io.Writer) RunnerOption {
	return func(r *Runner) {
		r.stdout = stdout
		r.stderr = stderr
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *logging.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// NewRunner returns a Runner that claims paths through lock.
func NewRunner(lock *rwlock.RWLock, opts ...RunnerOption) *Runner {
	r := &Runner{
		lock:   lock,
		shell:  DefaultShell,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.OrNop(r.logger)
	return r
}

// Run read-locks the stage's dependencies and write-locks its outputs, then
// runs the command. The locks are held until the command exits. A busy path
// is returned as is so callers can report it or retry later.
func (r *Runner) Run(ctx context.Context, st *Stage) error {
	if err := st.Validate(); err != nil {
		return errors.NewStageError("invalid stage", err).WithStage(st.File())
	}

	logger := r.logger.WithStage(st.File())
	deps, outs := st.DepPaths(), st.OutPaths()

	return r.lock.With(deps, outs, func() error {
		for _, dep := range deps {
			if _, err := os.Stat(dep); err != nil {
				return errors.NewStageError("missing dependency", err).WithStage(st.File())
			}
		}
		for _, out := range outs {
			if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
				return fmt.Errorf("create output directory: %w", err)
			}
		}

		logger.Info("running stage", "cmd", st.Cmd, "deps", len(deps), "outs", len(outs))
		start := time.Now()

		cmd := exec.CommandContext(ctx, r.shell, "-c", st.Cmd)
		cmd.Dir = st.Dir()
		cmd.Stdout = r.stdout
		cmd.Stderr = r.stderr
		cmd.WaitDelay = waitDelay

		if err := cmd.Run(); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				logger.Warn("stage interrupted", "cmd", st.Cmd, "error", ctxErr.Error())
				return errors.NewStageError("interrupted", ctxErr).WithStage(st.File()).WithCommand(st.Cmd)
			}
			stageErr := errors.NewStageError(err.Error(), errors.ErrStageFailed).WithStage(st.File()).WithCommand(st.Cmd)
			logger.Failure("stage failed", stageErr, "cmd", st.Cmd)
			return stageErr
		}

		logger.Info("stage finished", "cmd", st.Cmd, "duration", time.Since(start).String())
		return nil
	})
}
