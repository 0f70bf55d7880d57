package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"distill/internal/deps"
)

func newDepsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "deps",
		Short: "Check external tool availability",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			missingRequired := false

			for _, status := range deps.Check(cmd.Context(), cfg) {
				if status.Available {
					message := "Ready"
					if status.Command != "" {
						message = fmt.Sprintf("Ready (command: %s)", status.Command)
					}
					fmt.Fprintln(out, renderStatusLine(status.Name, statusOK, message, colorize))
					continue
				}
				kind := statusError
				if status.Optional {
					kind = statusWarn
				} else {
					missingRequired = true
				}
				detail := status.Detail
				if detail == "" {
					detail = "not available"
				}
				fmt.Fprintln(out, renderStatusLine(status.Name, kind, detail, colorize))
			}

			if missingRequired {
				return fmt.Errorf("required dependencies are missing")
			}
			return nil
		},
	}
}
