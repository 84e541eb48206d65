package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/squadron/internal/config"
	"github.com/ShayCichocki/squadron/internal/signals"
)

var stopCmd = &cobra.Command{
	Use:   "stop [reason]",
	Short: "Ask a running team to stop after the current iteration",
	Long: `Write a stop signal into the state directory.

Running specialists finish their current iteration, checkpoint and end
BLOCKED with the given reason. The signal is cleared when the next run
starts.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		reason := strings.TrimSpace(strings.Join(args, " "))
		if err := signals.SendStop(cfg.SignalsDir(), reason); err != nil {
			return err
		}
		printStatus(cmd.OutOrStdout(), "✓", "Stop signal sent", color.FgGreen)
		return nil
	},
}
