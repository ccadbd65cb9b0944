package ingest

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/tattler-mx/tattler-go/internal/datastore"
	"github.com/tattler-mx/tattler-go/internal/model"
	"github.com/tattler-mx/tattler-go/internal/pipeline"
)

// BackfillDataID reconciles the top-level data_id of mapping-provider
// restaurants from the retained raw payload. Ingestion upserts by
// google_place_id because data_id is not reliably present at that point;
// this sweep lifts it once known. Returns the number of updated documents.
func BackfillDataID(ctx context.Context, store datastore.Store) (int, error) {
	docs, err := store.Find(ctx, model.CollMapsRestaurants,
		bson.M{"raw_google_data.data_id": bson.M{"$exists": true, "$ne": nil}}, nil)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, doc := range docs {
		raw, ok := doc["raw_google_data"].(bson.M)
		if !ok {
			continue
		}
		dataID, _ := raw["data_id"].(string)
		if dataID == "" {
			continue
		}
		current, _ := doc["data_id"].(string)
		if current == dataID {
			continue
		}
		if _, err := store.UpdateOne(ctx, model.CollMapsRestaurants,
			bson.M{"_id": doc["_id"]},
			bson.M{"$set": bson.M{"data_id": dataID}}, false); err != nil {
			logger.Warn("data_id backfill failed", "id", doc["_id"], "error", err)
			continue
		}
		updated++
	}

	logger.Info("data_id backfill finished", "updated", updated)
	return updated, nil
}

// RenormalizeReviews re-runs review normalization from the retained raw
// payloads, upserting the refreshed shape by composite key. Documents with
// no raw payload or no derivable review_id are skipped with a count.
func RenormalizeReviews(ctx context.Context, store datastore.Store) (*Summary, error) {
	docs, err := store.Find(ctx, model.CollReviews, bson.M{}, nil)
	if err != nil {
		return nil, err
	}

	summary := &Summary{}
	for _, doc := range docs {
		summary.Processed++

		raw, ok := doc["raw_google_review"].(bson.M)
		if !ok {
			summary.Skipped++
			continue
		}
		dataID, _ := doc["data_id"].(string)
		placeID, _ := doc["google_place_id"].(string)

		review, err := pipeline.NormalizeReview(raw, dataID, placeID)
		if err != nil {
			summary.Skipped++
			continue
		}
		key, err := pipeline.ReviewKey(review.ReviewID, review.DataID)
		if err != nil {
			summary.Skipped++
			continue
		}
		normDoc, err := datastore.ToDocument(review)
		if err != nil {
			summary.Skipped++
			continue
		}
		outcome, err := pipeline.Upsert(ctx, store, model.CollReviews, key, normDoc)
		if err != nil {
			summary.Skipped++
			logger.Warn("review renormalization upsert failed", "review_id", review.ReviewID, "error", err)
			continue
		}
		countOutcome(summary, outcome)
	}

	logger.Info("review renormalization finished",
		"processed", summary.Processed,
		"upserted", summary.Upserted(),
		"skipped", summary.Skipped)
	return summary, nil
}
