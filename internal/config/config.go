package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config represents the complete dvc configuration
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Stage   StageConfig   `mapstructure:"stage"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled writes a JSON log to .dvc/tmp/dvc.log (default: false)
	Enabled bool `mapstructure:"enabled"`
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
}

// StageConfig controls how stage commands are executed
type StageConfig struct {
	// Shell runs stage commands as `<shell> -c <cmd>` (default: "sh")
	Shell string `mapstructure:"shell"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Enabled: false,
			Level:   "info",
		},
		Stage: StageConfig{
			Shell: "sh",
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)

	viper.SetDefault("stage.shell", defaults.Stage.Shell)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration, falling back to defaults when the
// loaded values do not validate.
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "dvc")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".dvc"
	}
	return filepath.Join(home, ".config", "dvc")
}

// ConfigFile returns the path to the user-level config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
