package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jamesainslie/fsfind/pkg/fsfind/config"
	"github.com/jamesainslie/fsfind/pkg/fsfind/logging"
)

// annotationNoBootstrap marks commands that run without loading the
// configuration or starting logging.
const annotationNoBootstrap = "fsfind/no-bootstrap"

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "fsfind",
		Short: "Search an index of filesystem metadata",
		Long: `fsfind answers name, path, size and recency queries from a SQLite index
of filesystem metadata instead of walking the disk.

The index is loaded from a snapshot with 'fsfind ingest' and kept current
by the fsfindd daemon.

Examples:
  fsfind ingest snapshot.json.zst    # Load a snapshot into the index
  fsfind search report               # Smart search by name
  fsfind search -p src/main          # Match anywhere in the path
  fsfind search --size-min 1G        # Largest files over 1 GiB
  fsfind search --recent 3           # Files modified in the last 3 days
  fsfind search -i                   # Interactive search
  fsfind daemon start                # Start the incremental updater`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: initializeLogging,
		PersistentPostRun: func(*cobra.Command, []string) { _ = logging.Close() },
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.config/fsfind/config.json)")
	rootCmd.PersistentFlags().String("db", "", "index database (default: database_path from the config)")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "minimal output")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug output")

	// Bind flags to viper
	bindFlag("db", rootCmd.PersistentFlags().Lookup("db"))
	bindFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	bindFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// flagBinding ties a viper key to a command flag.
type flagBinding struct {
	key  string
	flag *pflag.Flag
}

var flagBindings []flagBinding

// bindFlag binds flag to key and remembers the binding for rebindFlags.
func bindFlag(key string, flag *pflag.Flag) {
	flagBindings = append(flagBindings, flagBinding{key: key, flag: flag})
	_ = viper.BindPFlag(key, flag)
}

// rebindFlags restores every flag binding after viper.Reset.
func rebindFlags() {
	for _, b := range flagBindings {
		_ = viper.BindPFlag(b.key, b.flag)
	}
}

// initConfig sets up environment overrides for command flags. The
// configuration file itself is read by config.Load in initializeLogging.
func initConfig() {
	viper.SetEnvPrefix("FSFIND")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("search.limit", config.DefaultSearchLimit)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// getVerbose returns true if verbose mode is enabled.
func getVerbose() bool {
	return viper.GetBool("verbose")
}

// getQuiet returns true if quiet mode is enabled.
func getQuiet() bool {
	return viper.GetBool("quiet")
}

// printVerbose prints a message if verbose mode is enabled.
func printVerbose(format string, args ...any) {
	if getVerbose() && !getQuiet() {
		fmt.Fprintf(os.Stderr, "[DEBUG] "+format+"\n", args...)
	}
}

// printInfo prints a message if quiet mode is not enabled.
func printInfo(format string, args ...any) {
	if !getQuiet() {
		fmt.Printf(format+"\n", args...)
	}
}
