// Package places implements the place download and import commands.
package places

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/tattler-mx/tattler-go/internal/config"
	"github.com/tattler-mx/tattler-go/internal/datastore"
	"github.com/tattler-mx/tattler-go/internal/ingest"
	"github.com/tattler-mx/tattler-go/internal/pipeline"
	"github.com/tattler-mx/tattler-go/internal/serpapi"
)

// Command creates the places command group: download pulls raw place pages
// from the provider into capture files, import loads those files into the
// maps collection.
func Command(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "places",
		Short: "Download and import restaurant places",
	}

	cmd.AddCommand(downloadCommand(ctx), importCommand(ctx))

	return cmd
}

func downloadCommand(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download place search pages from the provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDownload(cmd, ctx.Settings)
		},
	}

	cmd.Flags().StringVar(&ctx.Settings.Ingest.RawDir, "raw-dir", ctx.Settings.Ingest.RawDir, "Directory for raw capture files")
	cmd.Flags().IntVar(&ctx.Settings.Ingest.MaxPlacesTotal, "max-total", ctx.Settings.Ingest.MaxPlacesTotal, "Global place ceiling for the sweep")
	cmd.Flags().IntVar(&ctx.Settings.Ingest.MaxPagesPerQuery, "max-pages", ctx.Settings.Ingest.MaxPagesPerQuery, "Page ceiling per query")
	cmd.Flags().IntVar(&ctx.Settings.SerpAPI.RequestLimit, "limit", ctx.Settings.SerpAPI.RequestLimit, "Provider request budget for the run")

	return cmd
}

func importCommand(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import raw place capture files into the maps collection",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, ctx.Settings)
		},
	}

	cmd.Flags().StringVar(&ctx.Settings.Ingest.RawDir, "raw-dir", ctx.Settings.Ingest.RawDir, "Directory of raw capture files")

	return cmd
}

func runDownload(cmd *cobra.Command, settings *config.Settings) error {
	defer ingest.Close()

	client, err := newClient(settings)
	if err != nil {
		return err
	}
	defer client.Close()

	summary, err := ingest.DownloadPlaces(cmd.Context(), client, ingest.DownloadOptions{
		RawDir:       settings.Ingest.RawDir,
		Queries:      settings.Ingest.Queries,
		Cities:       settings.Ingest.Cities,
		Budget:       pipeline.NewRequestBudget(settings.SerpAPI.RequestLimit),
		MaxTotal:     settings.Ingest.MaxPlacesTotal,
		MaxPagesPerQ: settings.Ingest.MaxPagesPerQuery,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Place download complete: %d pages captured, %d skipped\n", summary.Processed, summary.Skipped)
	return nil
}

func runImport(cmd *cobra.Command, settings *config.Settings) error {
	defer ingest.Close()

	store, err := datastore.NewMongo(settings.Mongo.URI, settings.Mongo.Database, settings.Mongo.Timeout, slog.Default())
	if err != nil {
		return fmt.Errorf("error creating datastore: %w", err)
	}

	summary, err := ingest.ImportPlacesDir(cmd.Context(), store, settings.Ingest.RawDir)
	if err != nil {
		return err
	}
	if err := store.EnsureIndexes(cmd.Context()); err != nil {
		return fmt.Errorf("error ensuring indexes: %w", err)
	}

	fmt.Printf("Place import complete: %d processed, %d inserted, %d modified, %d unchanged, %d skipped\n",
		summary.Processed, summary.Inserted, summary.Modified, summary.Unchanged, summary.Skipped)
	return nil
}

func newClient(settings *config.Settings) (*serpapi.Client, error) {
	cfg := serpapi.DefaultConfig()
	cfg.APIKey = settings.SerpAPI.APIKey
	if settings.SerpAPI.BaseURL != "" {
		cfg.BaseURL = settings.SerpAPI.BaseURL
	}
	if settings.SerpAPI.Language != "" {
		cfg.Language = settings.SerpAPI.Language
	}
	if settings.SerpAPI.GoogleDomain != "" {
		cfg.GoogleDomain = settings.SerpAPI.GoogleDomain
	}
	if settings.SerpAPI.Timeout > 0 {
		cfg.Timeout = settings.SerpAPI.Timeout
	}
	if settings.SerpAPI.CacheTTL > 0 {
		cfg.CacheTTL = settings.SerpAPI.CacheTTL
	}
	return serpapi.NewClient(cfg)
}
