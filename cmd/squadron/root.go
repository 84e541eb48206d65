package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "squadron",
	Short: "Team-lead orchestrator for AI coding specialists",
	Long: `Squadron hands a task to a team lead that analyzes it, dispatches
specialists (bugfix, featurebuilder, testwriter, codequality, advisor) in
parallel on the shared working tree, validates their results against a
quorum, synthesizes one outcome and verifies it with the project's own
build and test commands.

Every specialist iteration is checkpointed under .squadron/sessions, so an
interrupted run can be resumed with 'squadron resume'.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(checkpointCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
