// Package maintain implements one-off data maintenance commands.
package maintain

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/tattler-mx/tattler-go/internal/config"
	"github.com/tattler-mx/tattler-go/internal/datastore"
	"github.com/tattler-mx/tattler-go/internal/ingest"
)

// Command creates the maintain command group.
func Command(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "maintain",
		Short: "Run data maintenance tasks",
	}

	cmd.AddCommand(backfillCommand(ctx), renormalizeCommand(ctx))

	return cmd
}

func backfillCommand(ctx *config.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "backfill-data-id",
		Short: "Copy data_id from raw provider payloads to the document top level",
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ingest.Close()

			store, err := newStore(ctx.Settings)
			if err != nil {
				return err
			}
			updated, err := ingest.BackfillDataID(cmd.Context(), store)
			if err != nil {
				return err
			}
			fmt.Printf("Backfill complete: %d restaurants updated\n", updated)
			return nil
		},
	}
}

func renormalizeCommand(ctx *config.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "renormalize-reviews",
		Short: "Re-derive review fields from the stored raw provider payloads",
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ingest.Close()

			store, err := newStore(ctx.Settings)
			if err != nil {
				return err
			}
			summary, err := ingest.RenormalizeReviews(cmd.Context(), store)
			if err != nil {
				return err
			}
			fmt.Printf("Renormalize complete: %d processed, %d modified, %d unchanged, %d skipped\n",
				summary.Processed, summary.Modified, summary.Unchanged, summary.Skipped)
			return nil
		},
	}
}

func newStore(settings *config.Settings) (*datastore.Mongo, error) {
	store, err := datastore.NewMongo(settings.Mongo.URI, settings.Mongo.Database, settings.Mongo.Timeout, slog.Default())
	if err != nil {
		return nil, fmt.Errorf("error creating datastore: %w", err)
	}
	return store, nil
}
