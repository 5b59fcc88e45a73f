package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/demewebsolutions/truai/internal/orchestrator"
)

var (
	submitUser string
	submitTier string
)

var submitCmd = &cobra.Command{
	Use:   "submit <prompt>",
	Short: "Submit a prompt through the governance pipeline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildEngine()
		if err != nil {
			return err
		}
		defer deps.Close()

		result, err := deps.engine.Submit(cmd.Context(), &orchestrator.SubmitRequest{
			UserID:        submitUser,
			Prompt:        args[0],
			PreferredTier: submitTier,
		})
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

func init() {
	submitCmd.Flags().StringVar(&submitUser, "user", "local", "user ID to attribute the task to")
	submitCmd.Flags().StringVar(&submitTier, "tier", "auto", "preferred tier (auto, cheap, mid, high)")
	rootCmd.AddCommand(submitCmd)
}

// printJSON writes indented JSON to stdout (logs stay on stderr).
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	return nil
}
