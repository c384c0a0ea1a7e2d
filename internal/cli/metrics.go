package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var metricsSince time.Duration

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Summarize event-log activity",
	RunE: func(cmd *cobra.Command, args []string) error {
		if MetricsCalc == nil {
			return fmt.Errorf("event log unavailable, metrics disabled")
		}

		since := time.Now().Add(-metricsSince)
		metrics, err := MetricsCalc.Calculate(since)
		if err != nil {
			return fmt.Errorf("calculating metrics: %w", err)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(metrics)
	},
}

func init() {
	metricsCmd.Flags().DurationVar(&metricsSince, "since", 24*time.Hour, "how far back to tally events")
	rootCmd.AddCommand(metricsCmd)
}
