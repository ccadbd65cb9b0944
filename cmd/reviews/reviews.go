// Package reviews implements the review refresh command.
package reviews

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

// Command creates the reviews command, which runs one budget-bound review
// refresh sweep over restaurants due for a fetch.
func Command(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reviews",
		Short: "Fetch reviews for restaurants due for a refresh",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRefresh(cmd, ctx.Settings)
		},
	}

	cmd.Flags().IntVar(&ctx.Settings.Ingest.BatchRestaurants, "batch", ctx.Settings.Ingest.BatchRestaurants, "Restaurants selected per sweep")
	cmd.Flags().IntVar(&ctx.Settings.Ingest.ReviewsPerRestaurant, "per-restaurant", ctx.Settings.Ingest.ReviewsPerRestaurant, "Review target per restaurant")
	cmd.Flags().IntVar(&ctx.Settings.Ingest.CooldownHours, "cooldown-hours", ctx.Settings.Ingest.CooldownHours, "Refresh cooldown window in hours")
	cmd.Flags().IntVar(&ctx.Settings.SerpAPI.RequestLimit, "limit", ctx.Settings.SerpAPI.RequestLimit, "Provider request budget for the run")

	return cmd
}

func runRefresh(cmd *cobra.Command, settings *config.Settings) error {
	defer ingest.Close()

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
	client, err := serpapi.NewClient(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	store, err := datastore.NewMongo(settings.Mongo.URI, settings.Mongo.Database, settings.Mongo.Timeout, slog.Default())
	if err != nil {
		return fmt.Errorf("error creating datastore: %w", err)
	}

	summary, err := ingest.RefreshReviews(cmd.Context(), client, store, ingest.RefreshOptions{
		BatchRestaurants:     settings.Ingest.BatchRestaurants,
		ReviewsPerRestaurant: settings.Ingest.ReviewsPerRestaurant,
		Cooldown:             settings.Cooldown(),
		Budget:               pipeline.NewRequestBudget(settings.SerpAPI.RequestLimit),
	})
	if err != nil {
		return err
	}

	fmt.Printf("Review refresh complete: %d restaurants, %d reviews upserted, %d requests, %d skipped\n",
		summary.Parents, summary.Upserts, summary.Requests, summary.Skipped)
	return nil
}
