package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/valter-silva-au/taskdeck/pkg/models"
)

var steeringCmd = &cobra.Command{
	Use:   "steering",
	Short: "Send whispers to running processes and read their heartbeats",
}

var whisperPriority string

var whisperCmd = &cobra.Command{
	Use:   "whisper <process-id> <instruction>",
	Short: "Queue an instruction for a process",
	Long: `Append an instruction to the process's whisper log. The process
receives it on its next heartbeat; each whisper is delivered exactly once.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		priority := models.WhisperPriority(whisperPriority)
		if !models.ValidWhisperPriority(priority) {
			return fmt.Errorf("unknown priority %q (want normal, urgent, or abort)", whisperPriority)
		}
		if err := Steering.Whisper(args[0], args[1], priority); err != nil {
			return fmt.Errorf("sending whisper: %w", err)
		}
		fmt.Printf("Whisper queued for %s\n", args[0])
		return nil
	},
}

var (
	heartbeatStatus     string
	heartbeatNextAction string
)

var heartbeatCmd = &cobra.Command{
	Use:   "heartbeat <process-id>",
	Short: "Report liveness and collect pending whispers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := Steering.Heartbeat(args[0], heartbeatStatus, heartbeatNextAction)
		if err != nil {
			return fmt.Errorf("recording heartbeat: %w", err)
		}
		return json.NewEncoder(os.Stdout).Encode(result)
	},
}

var processesCmd = &cobra.Command{
	Use:   "processes",
	Short: "List known process status records",
	RunE: func(cmd *cobra.Command, args []string) error {
		records, err := Steering.Processes()
		if err != nil {
			return fmt.Errorf("listing processes: %w", err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"ID", "Status", "Last Heartbeat", "Cursor", "Next Action"})
		for _, r := range records {
			last := ""
			if !r.LastHeartbeat.IsZero() {
				last = r.LastHeartbeat.Format("2006-01-02 15:04:05")
			}
			t.AppendRow(table.Row{r.ID, r.Status, last, r.LastWhisperIndex, r.HeartbeatNextAction})
		}
		t.Render()
		return nil
	},
}

func init() {
	whisperCmd.Flags().StringVar(&whisperPriority, "priority", "normal", "whisper priority (normal, urgent, abort)")
	heartbeatCmd.Flags().StringVar(&heartbeatStatus, "status", "", "current activity description")
	heartbeatCmd.Flags().StringVar(&heartbeatNextAction, "next-action", "", "what the process plans to do next")

	steeringCmd.AddCommand(whisperCmd, heartbeatCmd, processesCmd)
	rootCmd.AddCommand(steeringCmd)
}
