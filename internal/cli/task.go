package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/valter-silva-au/taskdeck/internal/storage"
	"github.com/valter-silva-au/taskdeck/pkg/models"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Create, inspect, and advance tasks",
}

var (
	createDescription string
	createCategory    string
	createPriority    int
	createEffort      string
	createDeps        []string
	createCriteria    []string
	createSteps       []string
)

var taskCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a task in the todo queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		task, err := Tasks.Create(storage.TaskDraft{
			Name:               args[0],
			Description:        createDescription,
			Category:           models.Category(createCategory),
			Priority:           createPriority,
			Effort:             models.Effort(createEffort),
			Dependencies:       createDeps,
			AcceptanceCriteria: createCriteria,
			Steps:              createSteps,
		})
		if err != nil {
			return fmt.Errorf("creating task: %w", err)
		}
		fmt.Printf("Created %s (%s)\n", task.ID, task.Slug())
		return nil
	},
}

var taskImportCmd = &cobra.Command{
	Use:   "import <file.json>",
	Short: "Bulk-create tasks from a JSON array of drafts",
	Long: `Read a JSON array of task drafts and create them all. Entries fail
independently; dependencies may reference earlier entries of the same file
by name or slug.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading import file: %w", err)
		}
		var drafts []storage.TaskDraft
		if err := json.Unmarshal(data, &drafts); err != nil {
			return fmt.Errorf("parsing import file: %w", err)
		}

		result, err := Tasks.CreateBulk(drafts)
		if err != nil {
			return fmt.Errorf("importing tasks: %w", err)
		}

		fmt.Printf("Created %d of %d tasks\n", len(result.Created), len(drafts))
		for _, be := range result.Errors {
			fmt.Printf("  entry %d failed: %s\n", be.Index, be.Error)
		}
		return nil
	},
}

var (
	listStatus   string
	listCategory string
	listEffort   string
	listLimit    int
	listJSON     bool
)

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks sorted by ascending priority",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := storage.TaskFilter{
			Category: models.Category(listCategory),
			Effort:   models.Effort(listEffort),
			Limit:    listLimit,
		}
		if listStatus != "" {
			status := models.Status(listStatus)
			if !models.ValidStatus(status) {
				return fmt.Errorf("unknown status %q", listStatus)
			}
			filter.Statuses = []models.Status{status}
		}

		tasks, err := Tasks.List(filter)
		if err != nil {
			return fmt.Errorf("listing tasks: %w", err)
		}

		if listJSON {
			return json.NewEncoder(os.Stdout).Encode(tasks)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"ID", "Name", "Status", "Pri", "Effort", "Category", "Deps"})
		for _, task := range tasks {
			t.AppendRow(table.Row{
				shortID(task.ID), task.Name, task.Status, task.Priority,
				task.Effort, task.Category, strings.Join(task.Dependencies, ", "),
			})
		}
		t.Render()
		return nil
	},
}

var taskGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Print one task as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		task, err := Tasks.Get(args[0])
		if err != nil {
			return fmt.Errorf("getting task: %w", err)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(task)
	},
}

var taskStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate task counts and remaining effort",
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := Tasks.Stats()
		if err != nil {
			return fmt.Errorf("computing stats: %w", err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Status", "Count"})
		for _, status := range models.Statuses {
			if n := stats.ByStatus[status]; n > 0 {
				t.AppendRow(table.Row{status, n})
			}
		}
		t.AppendFooter(table.Row{"total", stats.Total})
		t.Render()

		fmt.Printf("Remaining effort: %.1f days  Completed: %.1f days\n",
			stats.RemainingDays, stats.CompletedDays)
		return nil
	},
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	taskCreateCmd.Flags().StringVar(&createDescription, "description", "", "longer description of the work")
	taskCreateCmd.Flags().StringVar(&createCategory, "category", "feature", "category (core, feature, enhancement, bugfix, infrastructure, ui-ux)")
	taskCreateCmd.Flags().IntVar(&createPriority, "priority", 100, "priority (lower is more urgent)")
	taskCreateCmd.Flags().StringVar(&createEffort, "effort", "M", "effort size (XS, S, M, L, XL)")
	taskCreateCmd.Flags().StringSliceVar(&createDeps, "depends-on", nil, "dependency references (id, exact name, or slug)")
	taskCreateCmd.Flags().StringSliceVar(&createCriteria, "criteria", nil, "acceptance criteria")
	taskCreateCmd.Flags().StringSliceVar(&createSteps, "step", nil, "implementation steps")

	taskListCmd.Flags().StringVar(&listStatus, "status", "", "filter by status")
	taskListCmd.Flags().StringVar(&listCategory, "category", "", "filter by category")
	taskListCmd.Flags().StringVar(&listEffort, "effort", "", "filter by effort")
	taskListCmd.Flags().IntVar(&listLimit, "limit", 0, "maximum tasks to show")
	taskListCmd.Flags().BoolVar(&listJSON, "json", false, "emit JSON instead of a table")

	taskCmd.AddCommand(taskCreateCmd, taskImportCmd, taskListCmd, taskGetCmd, taskStatsCmd)
	rootCmd.AddCommand(taskCmd)
}
