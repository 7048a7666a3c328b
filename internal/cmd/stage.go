package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/efiop/dvc/internal/stage"
)

var stageCmd = &cobra.Command{
	Use:   "stage",
	Short: "Work with pipeline stages",
}

var stageRunCmd = &cobra.Command{
	Use:   "run <stage-file>",
	Short: "Run a stage while holding its path locks",
	Long: `Run the command of a stage file.

Dependencies are locked for reading and outputs for writing before the
command starts, and released when it exits. If another dvc process holds
a conflicting lock the stage is not run and the command fails with a
message naming the busy path and its holder.

Stage files are YAML:

  cmd: python train.py
  deps:
    - path: data/features
  outs:
    - path: model.pkl`,
	Args: cobra.ExactArgs(1),
	RunE: runStageRun,
}

func init() {
	rootCmd.AddCommand(stageCmd)
	stageCmd.AddCommand(stageRunCmd)
}

func runStageRun(cmd *cobra.Command, args []string) error {
	r, err := findRepo(cmd)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	file := args[0]
	if !filepath.IsAbs(file) {
		file = filepath.Join(workDir(cmd), file)
	}
	st, err := stage.Load(file)
	if err != nil {
		return err
	}

	logger, err := newLogger(cmd, r, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := stage.NewRunner(r.RWLock(logger),
		stage.WithShell(cfg.Stage.Shell),
		stage.WithOutput(cmd.OutOrStdout(), cmd.ErrOrStderr()),
		stage.WithLogger(logger),
	)
	if err := runner.Run(ctx, st); err != nil {
		return logInternal(logger, err)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Stage '%s' finished.\n", args[0])
	return nil
}
