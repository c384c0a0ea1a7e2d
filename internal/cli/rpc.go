package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/taskdeck/internal/dispatch"
)

var rpcCmd = &cobra.Command{
	Use:   "rpc [method]",
	Short: "Invoke a tool method and print its envelope",
	Long: `Call a registered tool method directly. Parameters are read as a JSON
object from stdin, or from --params. With no method argument, lists the
registered methods instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			for _, m := range Dispatcher.Methods() {
				fmt.Println(m)
			}
			return nil
		}

		raw := rpcParams
		if raw == "" {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("reading params from stdin: %w", err)
			}
			raw = string(data)
		}

		params := dispatch.Args{}
		if strings.TrimSpace(raw) != "" {
			if err := json.Unmarshal([]byte(raw), &params); err != nil {
				return fmt.Errorf("parsing params: %w", err)
			}
		}

		env := Dispatcher.Dispatch(args[0], params)
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(env)
	},
}

var rpcParams string

func init() {
	rpcCmd.Flags().StringVar(&rpcParams, "params", "", "JSON object of parameters (default: read stdin)")
	rootCmd.AddCommand(rpcCmd)
}
