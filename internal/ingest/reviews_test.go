package ingest

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/tattler-mx/tattler-go/internal/datastore/memstore"
	"github.com/tattler-mx/tattler-go/internal/model"
	"github.com/tattler-mx/tattler-go/internal/pipeline"
)

func seedMapsParent(t *testing.T, store *memstore.Store, dataID string) {
	t.Helper()
	require.NoError(t, store.Insert(model.CollMapsRestaurants, bson.M{
		"data_id":         dataID,
		"google_place_id": "place-" + dataID,
		"name":            "Restaurant " + dataID,
		"deleted":         false,
	}))
}

func reviewsResponse(reviews ...map[string]any) httpmock.Responder {
	return httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]any{"reviews": reviews})
}

func TestRefreshReviewsUpsertsPerParentTarget(t *testing.T) {
	client, transport := newMockedClient(t)
	store := memstore.New()
	seedMapsParent(t, store, "d1")

	transport.RegisterResponder(http.MethodGet, "https://serpapi.com/search.json",
		reviewsResponse(
			map[string]any{"review_id": "r1", "user": map[string]any{"name": "Ana"}, "rating": 5.0},
			map[string]any{"review_id": "r2", "rating": 4.0},
			map[string]any{"review_id": "r3", "rating": 3.0},
		))

	summary, err := RefreshReviews(context.Background(), client, store, RefreshOptions{
		BatchRestaurants:     5,
		ReviewsPerRestaurant: 2,
		Cooldown:             24 * time.Hour,
		Budget:               pipeline.NewRequestBudget(10),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Parents)
	assert.Equal(t, 1, summary.Requests)
	assert.Equal(t, 2, summary.Upserts, "only the first N reviews are stored")

	count, err := store.Count(context.Background(), model.CollReviews, bson.M{"data_id": "d1"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	doc, err := store.FindOne(context.Background(), model.CollReviews,
		bson.M{"review_id": "r1", "data_id": "d1"})
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "Ana", doc["author"])
	assert.Equal(t, "place-d1", doc["google_place_id"])
	assert.Equal(t, false, doc["deleted"])

	// The parent is stamped so the cooldown keeps it out of the next sweep.
	parent, err := store.FindOne(context.Background(), model.CollMapsRestaurants, bson.M{"data_id": "d1"})
	require.NoError(t, err)
	assert.NotNil(t, parent["last_reviews_fetched_at"])
}

func TestRefreshReviewsZeroCostSkip(t *testing.T) {
	client, transport := newMockedClient(t)
	store := memstore.New()
	seedMapsParent(t, store, "d1")
	require.NoError(t, store.Insert(model.CollReviews, bson.M{
		"review_id": "r-old", "data_id": "d1", "deleted": false,
	}))

	transport.RegisterResponder(http.MethodGet, "https://serpapi.com/search.json",
		reviewsResponse(map[string]any{"review_id": "r-new"}))

	budget := pipeline.NewRequestBudget(10)
	summary, err := RefreshReviews(context.Background(), client, store, RefreshOptions{
		BatchRestaurants:     5,
		ReviewsPerRestaurant: 1,
		Cooldown:             24 * time.Hour,
		Budget:               budget,
	})
	require.NoError(t, err)

	assert.Equal(t, 0, transport.GetTotalCallCount(), "enough reviews stored, no request made")
	assert.Equal(t, 0, summary.Requests)
	assert.Equal(t, 0, budget.Used())

	// No request means no stamp: the parent stays eligible for the day the
	// target is raised.
	parent, err := store.FindOne(context.Background(), model.CollMapsRestaurants, bson.M{"data_id": "d1"})
	require.NoError(t, err)
	assert.NotContains(t, parent, "last_reviews_fetched_at")
}

func TestRefreshReviewsBudgetHardStop(t *testing.T) {
	client, transport := newMockedClient(t)
	store := memstore.New()
	seedMapsParent(t, store, "d1")
	seedMapsParent(t, store, "d2")

	transport.RegisterResponder(http.MethodGet, "https://serpapi.com/search.json",
		reviewsResponse(map[string]any{"review_id": "r1"}))

	budget := pipeline.NewRequestBudget(1)
	summary, err := RefreshReviews(context.Background(), client, store, RefreshOptions{
		BatchRestaurants:     5,
		ReviewsPerRestaurant: 3,
		Cooldown:             24 * time.Hour,
		Budget:               budget,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, transport.GetTotalCallCount(), "exhaustion stops the sweep before the next request")
	assert.Equal(t, 1, summary.Requests)
	assert.True(t, budget.Exhausted())

	stamped, err := store.Count(context.Background(), model.CollMapsRestaurants,
		bson.M{"last_reviews_fetched_at": bson.M{"$exists": true}})
	require.NoError(t, err)
	assert.EqualValues(t, 1, stamped, "only the fetched parent is stamped")
}

func TestRefreshReviewsExhaustedBudgetMakesNoCalls(t *testing.T) {
	client, transport := newMockedClient(t)
	store := memstore.New()
	seedMapsParent(t, store, "d1")

	transport.RegisterResponder(http.MethodGet, "https://serpapi.com/search.json",
		reviewsResponse(map[string]any{"review_id": "r1"}))

	budget := pipeline.NewRequestBudget(1)
	budget.Use()

	summary, err := RefreshReviews(context.Background(), client, store, RefreshOptions{
		BatchRestaurants:     5,
		ReviewsPerRestaurant: 3,
		Cooldown:             24 * time.Hour,
		Budget:               budget,
	})
	require.NoError(t, err)

	assert.Equal(t, 0, transport.GetTotalCallCount())
	assert.Equal(t, 0, summary.Requests)
	assert.Equal(t, 0, summary.Upserts)
}

func TestRefreshReviewsFailedFetchStillStampsParent(t *testing.T) {
	client, transport := newMockedClient(t)
	store := memstore.New()
	seedMapsParent(t, store, "d1")

	transport.RegisterResponder(http.MethodGet, "https://serpapi.com/search.json",
		httpmock.NewStringResponder(http.StatusInternalServerError, "provider down"))

	summary, err := RefreshReviews(context.Background(), client, store, RefreshOptions{
		BatchRestaurants:     5,
		ReviewsPerRestaurant: 3,
		Cooldown:             24 * time.Hour,
		Budget:               pipeline.NewRequestBudget(10),
	})
	require.NoError(t, err, "a failed parent fetch never aborts the sweep")

	assert.Equal(t, 1, summary.Requests)
	assert.Equal(t, 0, summary.Upserts)

	// Stamping failed fetches prevents a retry storm against a parent that
	// will keep failing.
	parent, err := store.FindOne(context.Background(), model.CollMapsRestaurants, bson.M{"data_id": "d1"})
	require.NoError(t, err)
	assert.NotNil(t, parent["last_reviews_fetched_at"])
}

func TestRefreshReviewsSkipsMalformedReviews(t *testing.T) {
	client, transport := newMockedClient(t)
	store := memstore.New()
	seedMapsParent(t, store, "d1")

	transport.RegisterResponder(http.MethodGet, "https://serpapi.com/search.json",
		reviewsResponse(
			map[string]any{"text": "no id at all"},
			map[string]any{"review_id": "r-ok"},
		))

	summary, err := RefreshReviews(context.Background(), client, store, RefreshOptions{
		BatchRestaurants:     5,
		ReviewsPerRestaurant: 5,
		Cooldown:             24 * time.Hour,
		Budget:               pipeline.NewRequestBudget(10),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Upserts)

	count, err := store.Count(context.Background(), model.CollReviews, bson.M{"data_id": "d1"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}
