package cmd

import (
	"time"

	"github.com/spf13/cobra"
)

var (
	auditUser  string
	auditEvent string
	auditLimit int
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "List audit trail entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildEngine()
		if err != nil {
			return err
		}
		defer deps.Close()

		entries, err := deps.auditStore.List(cmd.Context(), auditUser, auditEvent, time.Time{}, time.Time{}, auditLimit)
		if err != nil {
			return err
		}
		return printJSON(entries)
	},
}

func init() {
	auditCmd.Flags().StringVar(&auditUser, "user", "", "filter by acting user")
	auditCmd.Flags().StringVar(&auditEvent, "event", "", "filter by event name")
	auditCmd.Flags().IntVar(&auditLimit, "limit", 50, "maximum entries")
	rootCmd.AddCommand(auditCmd)
}
