package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/efiop/dvc/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or modify dvc configuration",
	Long: `View or modify dvc configuration.

Without arguments, displays the current configuration.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in .dvc/config.yaml, or in the user's
config file with --global.

Valid keys:
  logging.enabled  - Write a JSON log to .dvc/tmp/dvc.log (true/false)
  logging.level    - debug, info, warn, error
  stage.shell      - Shell used to run stage commands (default: sh)`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file search paths",
	Args:  cobra.NoArgs,
	RunE:  runConfigPath,
}

var configSetGlobal bool

// configKeys maps settable keys to their value type.
var configKeys = map[string]string{
	"logging.enabled": "bool",
	"logging.level":   "string",
	"stage.shell":     "string",
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd, configSetCmd, configPathCmd)

	configSetCmd.Flags().BoolVar(&configSetGlobal, "global", false, "Write to the user config file instead of the repository")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if used := viper.ConfigFileUsed(); used != "" {
		_, _ = fmt.Fprintf(out, "Config file: %s\n\n", used)
	} else {
		_, _ = fmt.Fprintf(out, "Config file: (none - using defaults)\n\n")
	}

	_, _ = fmt.Fprintln(out, "logging:")
	_, _ = fmt.Fprintf(out, "  enabled: %v\n", cfg.Logging.Enabled)
	_, _ = fmt.Fprintf(out, "  level: %s\n", cfg.Logging.Level)
	_, _ = fmt.Fprintln(out, "stage:")
	_, _ = fmt.Fprintf(out, "  shell: %s\n", cfg.Stage.Shell)
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]

	keyType, ok := configKeys[key]
	if !ok {
		keys := make([]string, 0, len(configKeys))
		for k := range configKeys {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return fmt.Errorf("unknown configuration key: %s (valid: %s)", key, strings.Join(keys, ", "))
	}

	var typed any = value
	if keyType == "bool" {
		if value != "true" && value != "false" {
			return fmt.Errorf("invalid value for %s: expected true or false", key)
		}
		typed = value == "true"
	}

	var target string
	if configSetGlobal {
		target = config.ConfigFile()
	} else {
		r, err := findRepo(cmd)
		if err != nil {
			return err
		}
		target = r.ConfigPath()
	}

	// Edit only the target file so values from other layers are not copied into it.
	file := viper.New()
	file.SetConfigFile(target)
	if _, err := os.Stat(target); err == nil {
		if err := file.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read %s: %w", target, err)
		}
	}
	file.Set(key, typed)

	candidate := config.Default()
	if err := file.Unmarshal(candidate); err != nil {
		return err
	}
	if errs := candidate.Validate(); len(errs) > 0 {
		return config.ValidationErrors(errs)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := file.WriteConfigAs(target); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %v in %s\n", key, typed, target)
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if used := viper.ConfigFileUsed(); used != "" {
		_, _ = fmt.Fprintf(out, "Active config: %s\n", used)
	}

	_, _ = fmt.Fprintln(out, "Search paths:")
	n := 1
	if r, err := findRepo(cmd); err == nil {
		_, _ = fmt.Fprintf(out, "  %d. %s\n", n, r.ConfigPath())
		n++
	}
	_, _ = fmt.Fprintf(out, "  %d. %s\n", n, config.ConfigFile())
	_, _ = fmt.Fprintln(out, "\nEnvironment variables: DVC_* (e.g., DVC_LOGGING_LEVEL)")
	return nil
}
