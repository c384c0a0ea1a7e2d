package cli

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Evaluate alert conditions against the live task and process state",
	RunE: func(cmd *cobra.Command, args []string) error {
		alerts, err := AlertEngine.Evaluate()
		if err != nil {
			return fmt.Errorf("evaluating alerts: %w", err)
		}

		if len(alerts) == 0 {
			fmt.Println("No active alerts")
			return nil
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Severity", "Condition", "Message"})
		for _, a := range alerts {
			t.AppendRow(table.Row{a.Severity, a.Condition, a.Message})
		}
		t.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(alertsCmd)
}
