package ingest

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/tattler-mx/tattler-go/internal/datastore"
	"github.com/tattler-mx/tattler-go/internal/model"
	"github.com/tattler-mx/tattler-go/internal/pipeline"
	"github.com/tattler-mx/tattler-go/internal/serpapi"
)

// RefreshOptions configures a review refresh sweep.
type RefreshOptions struct {
	BatchRestaurants     int
	ReviewsPerRestaurant int
	Cooldown             time.Duration
	Budget               *pipeline.RequestBudget
}

// RefreshSummary is the run-level report of a review refresh sweep.
type RefreshSummary struct {
	Parents  int
	Upserts  int
	Requests int
	Skipped  int
}

// FetchResult reports one parent's fetch: how many reviews were upserted
// and whether an external request was actually issued.
type FetchResult struct {
	Upserts   int
	Requested bool
}

// RefreshReviews selects due parents and fetches the first page of reviews
// for each, upserting up to the per-parent target. Parents whose fetch was
// requested get their last_reviews_fetched_at stamped even when the request
// failed: a permanently failing parent must not cause a retry storm against
// the budget. The sweep stops early once the budget is exhausted.
func RefreshReviews(ctx context.Context, client *serpapi.Client, store datastore.Store, opts RefreshOptions) (*RefreshSummary, error) {
	parents, err := pipeline.SelectDue(ctx, store, opts.BatchRestaurants, opts.Cooldown)
	if err != nil {
		return nil, err
	}
	logger.Info("selected restaurants for review refresh", "count", len(parents))

	summary := &RefreshSummary{Parents: len(parents)}
	for _, parent := range parents {
		if parent.DataID == "" || parent.PlaceID == "" {
			summary.Skipped++
			logger.Warn("skipping restaurant without data_id or google_place_id", "name", parent.Name)
			continue
		}

		res := fetchParentReviews(ctx, client, store, parent, opts.ReviewsPerRestaurant, opts.Budget)
		summary.Upserts += res.Upserts
		if res.Requested {
			summary.Requests++
			// Stamped regardless of fetch outcome; see function comment.
			now := time.Now()
			if _, err := store.UpdateOne(ctx, model.CollMapsRestaurants,
				pipeline.MapsAPIKey(parent.DataID),
				bson.M{"$set": bson.M{"last_reviews_fetched_at": now, "modified_at": now}}, false); err != nil {
				logger.Warn("could not stamp last_reviews_fetched_at", "data_id", parent.DataID, "error", err)
			}
		}

		if opts.Budget != nil && opts.Budget.Exhausted() {
			logger.Warn("request budget reached, stopping review refresh sweep",
				"used", opts.Budget.Used(), "limit", opts.Budget.Limit())
			break
		}
	}

	logger.Info("review refresh sweep finished",
		"parents", summary.Parents,
		"upserts", summary.Upserts,
		"requests", summary.Requests,
		"skipped", summary.Skipped)
	return summary, nil
}

// fetchParentReviews fetches and upserts the first page of reviews for one
// parent. It returns without a request when the dependent collection
// already holds enough reviews for the parent (zero-cost skip) or when the
// global budget is exhausted (hard stop). Individual upsert failures are
// logged and counted but never abort the batch.
func fetchParentReviews(ctx context.Context, client *serpapi.Client, store datastore.Store, parent pipeline.DueParent, perParent int, budget *pipeline.RequestBudget) FetchResult {
	existing, err := store.Count(ctx, model.CollReviews, bson.M{"data_id": parent.DataID})
	if err != nil {
		logger.Warn("could not check existing reviews", "data_id", parent.DataID, "error", err)
	} else if int(existing) >= perParent {
		logger.Debug("skipping fetch, enough reviews stored",
			"data_id", parent.DataID, "existing", existing)
		return FetchResult{}
	}

	if budget != nil && !budget.Allow() {
		return FetchResult{}
	}
	if budget != nil {
		budget.Use()
	}

	page, err := client.FetchReviews(ctx, parent.DataID)
	if err != nil {
		// The request was spent; the caller still stamps the parent.
		logger.Error("review fetch failed", "data_id", parent.DataID, "name", parent.Name, "error", err)
		return FetchResult{Requested: true}
	}
	if len(page.Reviews) == 0 {
		logger.Warn("no reviews found on first page", "data_id", parent.DataID, "name", parent.Name)
		return FetchResult{Requested: true}
	}

	reviews := page.Reviews
	if len(reviews) > perParent {
		// First N, no ranking.
		reviews = reviews[:perParent]
	}

	result := FetchResult{Requested: true}
	for _, raw := range reviews {
		review, err := pipeline.NormalizeReview(raw, parent.DataID, parent.PlaceID)
		if err != nil {
			logger.Warn("skipping review without review_id", "data_id", parent.DataID)
			continue
		}
		key, err := pipeline.ReviewKey(review.ReviewID, review.DataID)
		if err != nil {
			logger.Warn("skipping review with incomplete key", "data_id", parent.DataID, "error", err)
			continue
		}
		doc, err := datastore.ToDocument(review)
		if err != nil {
			logger.Warn("review encode failed", "review_id", review.ReviewID, "error", err)
			continue
		}
		outcome, err := pipeline.Upsert(ctx, store, model.CollReviews, key, doc)
		if err != nil {
			logger.Warn("review upsert failed", "review_id", review.ReviewID, "error", err)
			continue
		}
		if outcome == pipeline.OutcomeInserted || outcome == pipeline.OutcomeModified {
			result.Upserts++
		}
	}

	logger.Info("upserted reviews for restaurant",
		"name", parent.Name, "data_id", parent.DataID, "upserts", result.Upserts)
	return result
}
