package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/demewebsolutions/truai/internal/doctor"
)

var doctorSkipProvider bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check installation health (config, state databases, provider)",
	RunE: func(cmd *cobra.Command, args []string) error {
		report := doctor.Run(cmd.Context(), doctor.Options{SkipProvider: doctorSkipProvider})
		if err := printJSON(report); err != nil {
			return err
		}
		if report.Status == "fail" {
			return fmt.Errorf("doctor found %d failing check(s)", report.Summary.Fail)
		}
		return nil
	},
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorSkipProvider, "skip-provider", false, "skip provider connectivity checks")
	rootCmd.AddCommand(doctorCmd)
}
