package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	appVersion = "dev"
	appCommit  = "none"
	appDate    = "unknown"
)

// SetVersionInfo sets the version information injected via ldflags.
func SetVersionInfo(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

var rootCmd = &cobra.Command{
	Use:   "tdk",
	Short: "taskdeck - coordination engine for autonomous coding agents",
	Long: `taskdeck (tdk) coordinates autonomous coding-agent work: it tracks tasks
through their lifecycle as JSON documents in status-named directories,
schedules the next eligible task respecting dependencies, and carries
operator instructions to running agents over the steering channel.

State lives on the shared filesystem; every command reads it fresh, so
any number of agent sessions, dashboards, and operators can work against
the same task base concurrently.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("tdk %s\ncommit: %s\nbuilt:  %s\n", appVersion, appCommit, appDate)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
