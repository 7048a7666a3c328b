package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/efiop/dvc/internal/repo"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize dvc in the current directory",
	Long: `Initialize dvc in the current directory.
This creates a .dvc directory holding the repository lock and the path
lock document under .dvc/tmp.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	r, err := repo.Init(workDir(cmd))
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintln(out, "Initialized dvc repository.")
	_, _ = fmt.Fprintf(out, "Metadata directory: %s\n", r.DvcDir())
	return nil
}
