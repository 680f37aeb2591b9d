package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"trackd.sh/internal/api"
	"trackd.sh/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the trackd API server",
	Long: `Start the REST API that the dashboard and the workflow engine talk to.

Configuration comes from TRACKD_* environment variables, optionally
overlaid by a config.toml in the working directory.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	cfg := config.Load()

	server, err := api.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	return server.Run()
}
