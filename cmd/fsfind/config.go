package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/fsfind/pkg/fsfind/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Manage fsfind configuration settings.

The configuration is shared by fsfind and fsfindd and is loaded from
$XDG_CONFIG_HOME/fsfind/config.json unless --config is given.

Environment variables can override config file settings using the FSFIND_ prefix:
  FSFIND_DATABASE_PATH=/srv/index.db
  FSFIND_LOG_LEVEL=debug
  FSFIND_HISTORY_RETENTION_DAYS=7`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the current configuration settings from all sources.`,
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit configuration file",
	Long: `Open the configuration file in your default editor.

The editor is determined by:
  1. $VISUAL environment variable
  2. $EDITOR environment variable
  3. Falls back to 'vi'

If the config file doesn't exist, a default one will be created first.`,
	Args:        cobra.NoArgs,
	Annotations: map[string]string{annotationNoBootstrap: "true"},
	RunE:        runConfigEdit,
}

var configInitCmd = &cobra.Command{
	Use:         "init",
	Short:       "Create default configuration file",
	Long:        `Create a default configuration file if one doesn't exist.`,
	Args:        cobra.NoArgs,
	Annotations: map[string]string{annotationNoBootstrap: "true"},
	RunE:        runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:         "path",
	Short:       "Show configuration file path",
	Long:        `Display the path to the configuration file.`,
	Args:        cobra.NoArgs,
	Annotations: map[string]string{annotationNoBootstrap: "true"},
	RunE:        runConfigPath,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

// configFilePath returns the --config path or the default one.
func configFilePath() (string, error) {
	if cfgFile != "" {
		return config.ExpandPath(cfgFile)
	}
	return config.DefaultConfigPath(), nil
}

// runConfigShow displays the current configuration.
func runConfigShow(cmd *cobra.Command, _ []string) error {
	cfg, err := loadedConfig()
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()

	if _, err := os.Stat(cfg.Source); err == nil {
		fmt.Fprintf(w, "Config file: %s\n\n", cfg.Source)
	} else {
		fmt.Fprintf(w, "Config file: %s (not found, using defaults)\n\n", cfg.Source)
	}

	fmt.Fprintln(w, "Current Configuration:")
	fmt.Fprintln(w, "----------------------")
	fmt.Fprintf(w, "watch_paths:             %s\n", strings.Join(cfg.WatchPaths, ", "))
	fmt.Fprintf(w, "database_path:           %s\n", cfg.DatabasePath)
	fmt.Fprintf(w, "exclude_patterns:        %s\n", strings.Join(cfg.ExcludePatterns, ", "))
	fmt.Fprintf(w, "max_depth:               %d\n", cfg.MaxDepth)
	fmt.Fprintf(w, "batch_size:              %d\n", cfg.BatchSize)
	fmt.Fprintf(w, "log_level:               %s\n", cfg.LogLevel)
	fmt.Fprintf(w, "log_path:                %s\n", cfg.ResolvedLogPath())
	fmt.Fprintf(w, "stats_interval:          %s\n", cfg.StatsInterval)
	fmt.Fprintf(w, "metrics_addr:            %s\n", valueOrNone(cfg.MetricsAddr))
	fmt.Fprintf(w, "pid_path:                %s\n", cfg.ResolvedPIDPath())
	fmt.Fprintf(w, "logging.rotation:        max_size=%s max_age=%d max_backups=%d daily=%t compress=%t\n",
		cfg.Logging.Rotation.MaxSize, cfg.Logging.Rotation.MaxAge,
		cfg.Logging.Rotation.MaxBackups, cfg.Logging.Rotation.Daily, cfg.Logging.Rotation.Compress)
	fmt.Fprintf(w, "history.enabled:         %t\n", cfg.History.Enabled)
	fmt.Fprintf(w, "history.path:            %s\n", cfg.History.Path)
	fmt.Fprintf(w, "history.retention_days:  %d\n", cfg.History.RetentionDays)

	fmt.Fprintln(w, "\nEnvironment Overrides:")
	fmt.Fprintln(w, "----------------------")
	overrides := envOverrides(os.Environ())
	if len(overrides) == 0 {
		fmt.Fprintln(w, "(none)")
	}
	for _, kv := range overrides {
		fmt.Fprintln(w, kv)
	}

	return nil
}

// envOverrides returns the FSFIND_ variables in env.
func envOverrides(env []string) []string {
	var out []string
	for _, kv := range env {
		if strings.HasPrefix(kv, "FSFIND_") {
			out = append(out, kv)
		}
	}
	return out
}

func valueOrNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

// runConfigEdit opens the config file in an editor.
func runConfigEdit(_ *cobra.Command, _ []string) error {
	configPath, err := configFilePath()
	if err != nil {
		return err
	}
	// Ensure config file exists
	if _, err := config.LoadOrCreate(configPath); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}

	// Determine editor
	editor := os.Getenv("VISUAL")
	if editor == "" {
		editor = os.Getenv("EDITOR")
	}
	if editor == "" {
		editor = "vi"
	}

	printVerbose("Opening %s with %s", configPath, editor)

	editorCmd := exec.Command(editor, configPath) //nolint:gosec // user-chosen editor
	editorCmd.Stdin = os.Stdin
	editorCmd.Stdout = os.Stdout
	editorCmd.Stderr = os.Stderr

	if err := editorCmd.Run(); err != nil {
		return fmt.Errorf("editor command failed: %w", err)
	}

	return nil
}

// runConfigInit creates a default config file.
func runConfigInit(_ *cobra.Command, _ []string) error {
	configPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if config already exists
	if _, err := os.Stat(configPath); err == nil {
		printInfo("Config file already exists: %s", configPath)
		printInfo("Use 'fsfind config edit' to modify it.")
		return nil
	}

	cfg, err := config.LoadOrCreate(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}

	printInfo("Created default config file: %s", cfg.Source)
	return nil
}

// runConfigPath shows the config file path.
func runConfigPath(cmd *cobra.Command, _ []string) error {
	configPath, err := configFilePath()
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), configPath)

	if _, err := os.Stat(configPath); err == nil {
		printVerbose("File exists")
	} else if errors.Is(err, os.ErrNotExist) {
		printVerbose("File does not exist (will use defaults)")
	}

	return nil
}
