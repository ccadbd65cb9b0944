package ingest

import (
	"context"
	"encoding/csv"
	"io"
	"os"

	"golang.org/x/text/encoding/charmap"

	"github.com/tattler-mx/tattler-go/internal/datastore"
	"github.com/tattler-mx/tattler-go/internal/errors"
	"github.com/tattler-mx/tattler-go/internal/model"
	"github.com/tattler-mx/tattler-go/internal/pipeline"
)

// ImportOptions controls the registry CSV import.
type ImportOptions struct {
	// Drop discards the existing collection before importing. This is the
	// historical full-reload behavior: it destroys soft-delete history and
	// is only reachable by explicit opt-in. The default path upserts per
	// registry id so re-runs preserve envelope fields.
	Drop bool
}

// ImportRegistryCSV ingests a registry CSV export (latin-1 encoded) into
// the registry restaurant collection. Rows without an id or without valid
// coordinates are skipped with a count; the registry collection schema
// mandates a location, so the rejection happens here rather than in the
// normalizer. Indexes are ensured after the import.
func ImportRegistryCSV(ctx context.Context, store datastore.Store, path string, opts ImportOptions) (*Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryFileIO).
			Component("ingest").
			Context("path", path).
			Build()
	}
	defer func() {
		_ = f.Close()
	}()

	if opts.Drop {
		logger.Warn("dropping registry collection before import; soft-delete history will be lost",
			"collection", model.CollRegistryRestaurants)
		if err := store.Drop(ctx, model.CollRegistryRestaurants); err != nil {
			return nil, err
		}
	}

	reader := csv.NewReader(charmap.ISO8859_1.NewDecoder().Reader(f))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryFileParsing).
			Component("ingest").
			Context("path", path).
			Build()
	}

	summary := &Summary{}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			summary.Skipped++
			logger.Warn("skipping malformed CSV row", "error", err)
			continue
		}
		summary.Processed++

		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			}
		}

		restaurant, err := pipeline.NormalizeRegistryRow(row)
		if err != nil {
			summary.Skipped++
			continue
		}
		if restaurant.Location == nil {
			// Registry schema mandates a location; the row is ingestable
			// without one but this collection rejects it.
			summary.Skipped++
			logger.Warn("skipping registry row without valid coordinates", "id", restaurant.ID)
			continue
		}

		doc, err := datastore.ToDocument(restaurant)
		if err != nil {
			summary.Skipped++
			logger.Warn("skipping registry row that failed to encode", "id", restaurant.ID, "error", err)
			continue
		}

		outcome, err := pipeline.Upsert(ctx, store, model.CollRegistryRestaurants, pipeline.RegistryKey(restaurant.ID), doc)
		if err != nil {
			summary.Skipped++
			logger.Warn("registry upsert failed", "id", restaurant.ID, "error", err)
			continue
		}
		countOutcome(summary, outcome)
	}

	if err := store.EnsureIndexes(ctx); err != nil {
		return summary, err
	}

	logger.Info("registry CSV import finished",
		"path", path,
		"processed", summary.Processed,
		"upserted", summary.Upserted(),
		"skipped", summary.Skipped)
	return summary, nil
}

func countOutcome(summary *Summary, outcome pipeline.Outcome) {
	switch outcome {
	case pipeline.OutcomeInserted:
		summary.Inserted++
	case pipeline.OutcomeModified:
		summary.Modified++
	default:
		summary.Unchanged++
	}
}
