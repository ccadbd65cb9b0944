// Package importcsv implements the registry CSV import command.
package importcsv

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/tattler-mx/tattler-go/internal/config"
	"github.com/tattler-mx/tattler-go/internal/datastore"
	"github.com/tattler-mx/tattler-go/internal/ingest"
)

// Command creates the importcsv command, which loads the national registry
// CSV export into the registry collection.
func Command(ctx *config.Context) *cobra.Command {
	var drop bool

	cmd := &cobra.Command{
		Use:   "importcsv",
		Short: "Import the registry restaurant CSV export",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, ctx.Settings, drop)
		},
	}

	cmd.Flags().StringVar(&ctx.Settings.Ingest.CSVPath, "file", ctx.Settings.Ingest.CSVPath, "Path to the registry CSV export")
	cmd.Flags().BoolVar(&drop, "drop", false, "Drop the registry collection before importing")

	return cmd
}

func runImport(cmd *cobra.Command, settings *config.Settings, drop bool) error {
	defer ingest.Close()

	store, err := datastore.NewMongo(settings.Mongo.URI, settings.Mongo.Database, settings.Mongo.Timeout, slog.Default())
	if err != nil {
		return fmt.Errorf("error creating datastore: %w", err)
	}

	summary, err := ingest.ImportRegistryCSV(cmd.Context(), store, settings.Ingest.CSVPath, ingest.ImportOptions{Drop: drop})
	if err != nil {
		return err
	}

	fmt.Printf("Registry import complete: %d processed, %d inserted, %d modified, %d unchanged, %d skipped\n",
		summary.Processed, summary.Inserted, summary.Modified, summary.Unchanged, summary.Skipped)
	return nil
}
