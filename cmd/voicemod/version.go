package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.GetVersionInfo())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
