package cmd

import (
	"github.com/spf13/cobra"

	"github.com/demewebsolutions/truai/internal/orchestrator"
)

var (
	approveUser   string
	approveTarget string
)

var approveCmd = &cobra.Command{
	Use:   "approve <task-id> <APPROVE|REJECT|SAVE_ONLY>",
	Short: "Decide a held task",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildEngine()
		if err != nil {
			return err
		}
		defer deps.Close()

		result, err := deps.engine.Decide(cmd.Context(), approveUser, args[0], orchestrator.Action(args[1]), approveTarget)
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

var overrideCmd = &cobra.Command{
	Use:   "override <task-id> <RELEASE|EXECUTE>",
	Short: "Admin override for a locked task",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildEngine()
		if err != nil {
			return err
		}
		defer deps.Close()

		result, err := deps.engine.Override(cmd.Context(), "admin", args[0], orchestrator.OverrideAction(args[1]))
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

func init() {
	approveCmd.Flags().StringVar(&approveUser, "user", "local", "user ID making the decision")
	approveCmd.Flags().StringVar(&approveTarget, "target", "production", "decision target")
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(overrideCmd)
}
