package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"subtitle-assistant/internal/diagnostics"
	"subtitle-assistant/internal/domain"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check ffmpeg, the recognizer, the model and the output directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			report := diagnostics.NewChecker().Run(ctx.settings)

			rows := make([][]string, 0, len(report.Items))
			for _, item := range report.Items {
				rows = append(rows, []string{
					item.ID,
					strings.ToUpper(string(item.Status)),
					item.Message,
					item.Hint,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Check", "Status", "Detail", "Hint"}, rows, nil))

			if report.HasFailures {
				return errors.New("one or more checks failed")
			}
			for _, item := range report.Items {
				if item.Status == domain.DiagnosticStatusWarn {
					fmt.Fprintln(cmd.OutOrStdout(), "Ready with warnings")
					return nil
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Ready")
			return nil
		},
	}
}
