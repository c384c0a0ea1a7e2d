package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/taskdeck/pkg/models"
)

var markCmd = &cobra.Command{
	Use:   "mark",
	Short: "Move a task through its lifecycle",
}

func reportTask(task *models.Task) {
	fmt.Printf("%s is now %s\n", shortID(task.ID), task.Status)
}

var markAnalysingCmd = &cobra.Command{
	Use:   "analysing <id>",
	Short: "Begin analysis of a todo task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		task, err := Tasks.MarkAnalysing(args[0])
		if err != nil {
			return err
		}
		reportTask(task)
		return nil
	},
}

var analysisFile string

var markAnalysedCmd = &cobra.Command{
	Use:   "analysed <id>",
	Short: "Record completed analysis for a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var analysis *models.Analysis
		if analysisFile != "" {
			data, err := os.ReadFile(analysisFile)
			if err != nil {
				return fmt.Errorf("reading analysis file: %w", err)
			}
			analysis = &models.Analysis{}
			if err := json.Unmarshal(data, analysis); err != nil {
				return fmt.Errorf("parsing analysis file: %w", err)
			}
		}
		task, err := Tasks.MarkAnalysed(args[0], analysis)
		if err != nil {
			return err
		}
		reportTask(task)
		return nil
	},
}

var markInProgressCmd = &cobra.Command{
	Use:   "in-progress <id>",
	Short: "Claim a task for active work",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		task, err := Tasks.MarkInProgress(args[0])
		if err != nil {
			return err
		}
		reportTask(task)
		return nil
	},
}

var markDoneCmd = &cobra.Command{
	Use:   "done <id>",
	Short: "Complete a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		task, err := Tasks.MarkDone(args[0])
		if err != nil {
			return err
		}
		reportTask(task)
		return nil
	},
}

var skipReason string

var markSkippedCmd = &cobra.Command{
	Use:   "skipped <id>",
	Short: "Set a task aside with a reason",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		task, err := Tasks.MarkSkipped(args[0], skipReason)
		if err != nil {
			return err
		}
		reportTask(task)
		return nil
	},
}

var inputQuestion string

var markNeedsInputCmd = &cobra.Command{
	Use:   "needs-input <id>",
	Short: "Park a task on an open question",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		task, err := Tasks.MarkNeedsInput(args[0], inputQuestion)
		if err != nil {
			return err
		}
		reportTask(task)
		return nil
	},
}

var (
	splitProposalFile string
	splitChildren     []string
)

var markSplitCmd = &cobra.Command{
	Use:   "split <id>",
	Short: "Retire a task in favour of smaller child tasks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var proposal *models.SplitProposal
		if splitProposalFile != "" {
			data, err := os.ReadFile(splitProposalFile)
			if err != nil {
				return fmt.Errorf("reading proposal file: %w", err)
			}
			proposal = &models.SplitProposal{}
			if err := json.Unmarshal(data, proposal); err != nil {
				return fmt.Errorf("parsing proposal file: %w", err)
			}
		}
		task, err := Tasks.MarkSplit(args[0], proposal, splitChildren)
		if err != nil {
			return err
		}
		reportTask(task)
		return nil
	},
}

var markCancelledCmd = &cobra.Command{
	Use:   "cancelled <id>",
	Short: "Cancel a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		task, err := Tasks.MarkCancelled(args[0])
		if err != nil {
			return err
		}
		reportTask(task)
		return nil
	},
}

var requeueCmd = &cobra.Command{
	Use:   "requeue <id>",
	Short: "Return a skipped, parked, or split task to the todo queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		task, err := Tasks.Requeue(args[0])
		if err != nil {
			return err
		}
		reportTask(task)
		return nil
	},
}

func init() {
	markAnalysedCmd.Flags().StringVar(&analysisFile, "analysis", "", "JSON file with analysis findings")
	markSkippedCmd.Flags().StringVar(&skipReason, "reason", "", "why the task is being skipped")
	markSkippedCmd.MarkFlagRequired("reason")
	markNeedsInputCmd.Flags().StringVar(&inputQuestion, "question", "", "the question blocking the task")
	markNeedsInputCmd.MarkFlagRequired("question")
	markSplitCmd.Flags().StringVar(&splitProposalFile, "proposal", "", "JSON file describing the split")
	markSplitCmd.Flags().StringSliceVar(&splitChildren, "child", nil, "IDs of replacement child tasks")

	markCmd.AddCommand(markAnalysingCmd, markAnalysedCmd, markInProgressCmd,
		markDoneCmd, markSkippedCmd, markNeedsInputCmd, markSplitCmd, markCancelledCmd)
	rootCmd.AddCommand(markCmd, requeueCmd)
}
