package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version information (set by build flags)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "triagehost",
	Short: "Live-host triage artifact collector",
	Long: `triagehost - Live-host triage artifact collector

Collects volatile and forensic artifacts from the local system in a single
pass: running processes, network connections, persistence mechanisms,
event logs, and execution evidence (prefetch, shimcache). Results are
written as a stable JSON document and can be sealed into an
integrity-verified evidence package.

Run with administrative privileges for complete collection; without them
some collectors degrade and the scan reports PartiallyFailed.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "triagehost %s (commit: %s, built: %s)\n", version, commit, date)
	},
}
