package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var repairApply bool

var repairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Find and fix dangling dependency references",
	Long: `Scan every non-terminal task for dependency references that resolve
to no task, and propose rewrites by case-insensitive and unique-substring
matching. Scheduling itself never fuzzy-matches; proposals only take
effect when applied here.

Without --apply, prints the report and changes nothing.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := Repairer.Scan()
		if err != nil {
			return fmt.Errorf("scanning dependencies: %w", err)
		}

		if repairApply && len(report.Proposals) > 0 {
			if err := Repairer.Apply(report); err != nil {
				return fmt.Errorf("applying repairs: %w", err)
			}
		}

		out, err := yaml.Marshal(report)
		if err != nil {
			return fmt.Errorf("rendering report: %w", err)
		}
		os.Stdout.Write(out)
		return nil
	},
}

func init() {
	repairCmd.Flags().BoolVar(&repairApply, "apply", false, "rewrite dependencies per the proposals")
	rootCmd.AddCommand(repairCmd)
}
