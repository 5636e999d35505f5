package main

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/fsfind/pkg/daemon/store"
)

// Stamped by the stavefile through -ldflags -X.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var versionShort bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long: `Print the fsfind version, the commit and date it was built from, and
the index schema version this build reads and writes.`,
	Args:        cobra.NoArgs,
	Annotations: map[string]string{annotationNoBootstrap: "true"},
	Run:         runVersion,
}

func init() {
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "print only the version number")
	rootCmd.AddCommand(versionCmd)
}

// buildVersion falls back to the module version recorded by go install
// when the binary was not stamped.
func buildVersion() string {
	if version != "dev" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return version
}

func runVersion(cmd *cobra.Command, _ []string) {
	out := cmd.OutOrStdout()
	if versionShort {
		fmt.Fprintln(out, buildVersion())
		return
	}
	fmt.Fprintf(out, "fsfind %s\n", buildVersion())
	for _, kv := range [][2]string{
		{"commit", commit},
		{"built", date},
		{"schema", fmt.Sprint(store.CurrentSchemaVersion)},
		{"go", runtime.Version()},
		{"os/arch", runtime.GOOS + "/" + runtime.GOARCH},
	} {
		fmt.Fprintf(out, "  %-8s %s\n", kv[0]+":", kv[1])
	}
}
