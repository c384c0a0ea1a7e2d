package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/taskdeck/internal/core"
)

var (
	nextPool string
	nextJSON bool
)

var nextCmd = &cobra.Command{
	Use:   "next",
	Short: "Pick the highest-priority unblocked task",
	Long: `Select the next actionable task from the chosen pool. A task is
actionable when every dependency resolves to a done task by exact id,
name, or slug match.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		pool := Scheduler
		if nextPool != "" {
			pool = core.Pool(nextPool)
			if !core.ValidPool(pool) {
				return fmt.Errorf("unknown pool %q (want analysed or todo)", nextPool)
			}
		}

		selection, err := Tasks.GetNext(pool)
		if err != nil {
			return fmt.Errorf("selecting next task: %w", err)
		}

		if nextJSON {
			return json.NewEncoder(os.Stdout).Encode(selection)
		}

		if selection.Task == nil {
			fmt.Printf("No actionable %s task (%d blocked on dependencies)\n",
				pool, selection.BlockedCount)
			return nil
		}
		t := selection.Task
		fmt.Printf("%s  %s\n", shortID(t.ID), t.Name)
		fmt.Printf("  priority %d, effort %s, category %s\n", t.Priority, t.Effort, t.Category)
		if t.Description != "" {
			fmt.Printf("  %s\n", t.Description)
		}
		return nil
	},
}

func init() {
	nextCmd.Flags().StringVar(&nextPool, "pool", "", "candidate pool (analysed or todo)")
	nextCmd.Flags().BoolVar(&nextJSON, "json", false, "emit JSON instead of text")
	rootCmd.AddCommand(nextCmd)
}
