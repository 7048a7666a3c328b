package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/efiop/dvc/internal/config"
	"github.com/efiop/dvc/internal/errors"
	"github.com/efiop/dvc/internal/logging"
	"github.com/efiop/dvc/internal/repo"
)

var rootCmd = &cobra.Command{
	Use:   "dvc",
	Short: "Data version control",
	Long: `dvc runs pipeline stages against a shared working tree.

Commands that touch the repository serialize on .dvc/lock, and stages
claim their dependencies for reading and their outputs for writing, so
concurrent dvc processes never step on each other's data.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// FormatError renders err for the terminal. A busy path gets a hint that
// the command can simply be run again.
func FormatError(err error) string {
	msg := "ERROR: " + err.Error()
	if errors.IsLockError(err) && errors.IsRetryable(err) {
		msg += "\nAnother dvc process is using this path; run the command again once it finishes."
	}
	return msg
}

// SetVersion enables the --version flag.
func SetVersion(v string) {
	rootCmd.Version = v
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is .dvc/config.yaml, then $HOME/.config/dvc/config.yaml)")
	rootCmd.PersistentFlags().String("cd", "", "change to this directory before running the command")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		if r, err := repo.Find(workDir(rootCmd)); err == nil {
			viper.AddConfigPath(r.DvcDir())
		}
		viper.AddConfigPath(config.ConfigDir())
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("DVC")
	// e.g., DVC_LOGGING_LEVEL for logging.level
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}

// workDir returns the --cd directory or the process working directory.
func workDir(cmd *cobra.Command) string {
	if dir, _ := cmd.Root().PersistentFlags().GetString("cd"); dir != "" {
		return dir
	}
	if cwd, err := os.Getwd(); err == nil {
		return cwd
	}
	return "."
}

// findRepo locates the repository enclosing the working directory.
func findRepo(cmd *cobra.Command) (*repo.Repo, error) {
	return repo.Find(workDir(cmd))
}

// loadConfig returns the validated configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newLogger opens the repository log when logging is enabled. The caller
// must Close it.
func newLogger(cmd *cobra.Command, r *repo.Repo, cfg *config.Config) (*logging.Logger, error) {
	if !cfg.Logging.Enabled {
		return logging.NopLogger(), nil
	}
	logger, err := logging.NewLogger(r.TmpDir(), cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	return logger.WithCommand(cmd.CommandPath()), nil
}

// logInternal records err in the repository log unless it is a user-facing
// error, which the terminal output already explains.
func logInternal(logger *logging.Logger, err error) error {
	if err != nil && !errors.IsUserFacing(err) {
		logger.Failure("command failed", err)
	}
	return err
}
