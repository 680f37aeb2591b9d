package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "trackd",
	Short: "Build tracking and orchestration status backend",
	Long: `trackd records the lifecycle of automated builds driven by a
workflow engine.

Use this CLI to:
- Serve the dashboard REST API
- Import archived build history
- Inspect the running version`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(versionCmd)
}
