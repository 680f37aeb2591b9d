package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"trackd.sh/internal/database"
	"trackd.sh/internal/importer"
)

var (
	importDBPath string
	importDir    string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import archived build history",
	Long: `Replay an archive directory into the database.

The archive contains an index.json listing builds and one JSONL file of
log lines per build under builds/. Builds that already exist are skipped.`,
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVar(&importDBPath, "db", "./trackd.db", "Database file path")
	importCmd.Flags().StringVar(&importDir, "dir", "", "Archive directory to import")
	importCmd.MarkFlagRequired("dir")
}

func runImport(cmd *cobra.Command, args []string) error {
	db, err := database.Open(database.DefaultConfig(importDBPath))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	stats, err := importer.New(db).Run(cmd.Context(), importDir)
	if err != nil {
		return err
	}

	fmt.Printf("Imported %d builds (%d skipped), %d log lines, %d errors\n",
		stats.BuildsImported, stats.BuildsSkipped, stats.LogsImported, stats.Errors)
	return nil
}
