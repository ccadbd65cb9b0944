package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tattler-mx/tattler-go/internal/datastore"
	"github.com/tattler-mx/tattler-go/internal/errors"
	"github.com/tattler-mx/tattler-go/internal/model"
	"github.com/tattler-mx/tattler-go/internal/pipeline"
	"github.com/tattler-mx/tattler-go/internal/serpapi"
)

// DownloadOptions bounds a place download sweep. The budget is shared with
// any other fetch activity in the same run.
type DownloadOptions struct {
	RawDir       string
	Queries      []string
	Cities       []string
	Budget       *pipeline.RequestBudget
	MaxTotal     int
	MaxPagesPerQ int
}

// DownloadPlaces drives the provider's continuation-token pagination for
// each query/city combination, writing every non-empty page as a capture
// file under RawDir. The sequence for one query ends on a missing token, an
// empty page, the per-query page ceiling or a request failure; the whole
// sweep ends when the global item ceiling or the request budget is reached.
func DownloadPlaces(ctx context.Context, client *serpapi.Client, opts DownloadOptions) (*Summary, error) {
	if err := os.MkdirAll(opts.RawDir, 0o755); err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryFileIO).
			Component("ingest").
			Context("dir", opts.RawDir).
			Build()
	}

	summary := &Summary{}
	total := 0

sweep:
	for _, query := range opts.Queries {
		for _, city := range opts.Cities {
			fetched, err := downloadQuery(ctx, client, opts, query+" "+city, city, &total)
			summary.Processed += fetched
			if err != nil {
				// Request failures end this query's sequence, not the sweep.
				summary.Skipped++
				logger.Warn("place download failed", "city", city, "error", err)
			}
			if opts.MaxTotal > 0 && total >= opts.MaxTotal {
				break sweep
			}
			if opts.Budget != nil && opts.Budget.Exhausted() {
				logger.Warn("request budget reached, stopping place download sweep",
					"used", opts.Budget.Used(), "limit", opts.Budget.Limit())
				break sweep
			}
		}
	}

	logger.Info("place download sweep finished", "items", summary.Processed, "failed_queries", summary.Skipped)
	return summary, nil
}

func downloadQuery(ctx context.Context, client *serpapi.Client, opts DownloadOptions, query, city string, total *int) (int, error) {
	fetched := 0
	pageToken := ""
	for pageNum := 1; ; pageNum++ {
		if opts.MaxPagesPerQ > 0 && pageNum > opts.MaxPagesPerQ {
			return fetched, nil
		}
		if opts.MaxTotal > 0 && *total >= opts.MaxTotal {
			return fetched, nil
		}
		if opts.Budget != nil && !opts.Budget.Allow() {
			return fetched, nil
		}
		if opts.Budget != nil {
			opts.Budget.Use()
		}

		page, err := client.SearchMaps(ctx, query, pageToken)
		if err != nil {
			return fetched, err
		}
		if len(page.LocalResults) == 0 {
			logger.Debug("no results for query page", "query", query, "page", pageNum)
			return fetched, nil
		}

		if err := writeCapture(opts.RawDir, city, pageNum, page); err != nil {
			return fetched, err
		}
		fetched += len(page.LocalResults)
		*total += len(page.LocalResults)

		pageToken = page.NextPageToken()
		if pageToken == "" {
			return fetched, nil
		}
	}
}

func writeCapture(dir, city string, page int, data any) error {
	name := fmt.Sprintf("google_%s_page%d.json", strings.ReplaceAll(city, " ", "_"), page)
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, name), raw, 0o644); err != nil {
		return errors.New(err).
			Category(errors.CategoryFileIO).
			Component("ingest").
			Context("file", name).
			Build()
	}
	logger.Info("saved capture page", "file", name)
	return nil
}

// ImportPlacesDir sweeps a directory of provider capture files in listing
// order and upserts every place by google_place_id. Files that fail to
// parse and entries without a place_id are skipped with a count.
func ImportPlacesDir(ctx context.Context, store datastore.Store, dir string) (*Summary, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryFileIO).
			Component("ingest").
			Context("dir", dir).
			Build()
	}

	summary := &Summary{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		raw, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			summary.Skipped++
			logger.Warn("could not read capture file", "file", entry.Name(), "error", err)
			continue
		}
		var capture map[string]any
		if err := json.Unmarshal(raw, &capture); err != nil {
			summary.Skipped++
			logger.Warn("could not parse capture file", "file", entry.Name(), "error", err)
			continue
		}

		places, _ := capture["local_results"].([]any)
		if places == nil {
			places, _ = capture["results"].([]any)
		}
		logger.Info("processing capture file", "file", entry.Name(), "places", len(places))

		for _, p := range places {
			placeMap, ok := p.(map[string]any)
			if !ok {
				summary.Skipped++
				continue
			}
			summary.Processed++

			restaurant, err := pipeline.NormalizeMapsPlace(placeMap)
			if err != nil {
				summary.Skipped++
				logger.Warn("skipping entry without place_id", "file", entry.Name())
				continue
			}

			doc, err := datastore.ToDocument(restaurant)
			if err != nil {
				summary.Skipped++
				continue
			}
			outcome, err := pipeline.Upsert(ctx, store, model.CollMapsRestaurants,
				pipeline.MapsIngestKey(restaurant.GooglePlaceID), doc)
			if err != nil {
				summary.Skipped++
				logger.Warn("place upsert failed", "place_id", restaurant.GooglePlaceID, "error", err)
				continue
			}
			countOutcome(summary, outcome)
		}
	}

	logger.Info("place import sweep finished",
		"dir", dir,
		"processed", summary.Processed,
		"upserted", summary.Upserted(),
		"skipped", summary.Skipped)
	return summary, nil
}
