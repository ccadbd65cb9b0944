package pipeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/tattler-mx/tattler-go/internal/datastore/memstore"
	"github.com/tattler-mx/tattler-go/internal/model"
)

func seedParent(t *testing.T, store *memstore.Store, dataID string, fetchedAt *time.Time) {
	t.Helper()
	doc := bson.M{
		"data_id":         dataID,
		"google_place_id": "place-" + dataID,
		"name":            "Restaurant " + dataID,
		"deleted":         false,
	}
	if fetchedAt != nil {
		doc["last_reviews_fetched_at"] = *fetchedAt
	}
	require.NoError(t, store.Insert(model.CollMapsRestaurants, doc))
}

func seedReview(t *testing.T, store *memstore.Store, reviewID, dataID string) {
	t.Helper()
	require.NoError(t, store.Insert(model.CollReviews, bson.M{
		"review_id": reviewID,
		"data_id":   dataID,
		"deleted":   false,
	}))
}

func TestSelectDuePrefersParentsWithoutReviews(t *testing.T) {
	store := memstore.New()

	seedParent(t, store, "bare", nil)
	seedParent(t, store, "covered", nil)
	seedReview(t, store, "r1", "covered")

	parents, err := SelectDue(context.Background(), store, 1, 24*time.Hour)
	require.NoError(t, err)
	require.Len(t, parents, 1)
	assert.Equal(t, "bare", parents[0].DataID)
	assert.Equal(t, "place-bare", parents[0].PlaceID)
}

func TestSelectDueFallbackFillsWithCoveredParents(t *testing.T) {
	store := memstore.New()

	seedParent(t, store, "bare", nil)
	seedParent(t, store, "covered", nil)
	seedReview(t, store, "r1", "covered")

	parents, err := SelectDue(context.Background(), store, 5, 24*time.Hour)
	require.NoError(t, err)
	require.Len(t, parents, 2)

	ids := []string{parents[0].DataID, parents[1].DataID}
	assert.Contains(t, ids, "bare")
	assert.Contains(t, ids, "covered")
}

func TestSelectDueNeverDuplicatesKeys(t *testing.T) {
	store := memstore.New()
	for i := 0; i < 4; i++ {
		seedParent(t, store, fmt.Sprintf("d%d", i), nil)
	}

	parents, err := SelectDue(context.Background(), store, 10, 24*time.Hour)
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, p := range parents {
		assert.False(t, seen[p.DataID], "duplicate key %s", p.DataID)
		seen[p.DataID] = true
	}
	assert.Len(t, parents, 4)
}

func TestSelectDueRespectsBatchSize(t *testing.T) {
	store := memstore.New()
	for i := 0; i < 10; i++ {
		seedParent(t, store, fmt.Sprintf("d%d", i), nil)
	}

	parents, err := SelectDue(context.Background(), store, 3, 24*time.Hour)
	require.NoError(t, err)
	assert.Len(t, parents, 3)
}

func TestSelectDueHonorsCooldown(t *testing.T) {
	store := memstore.New()

	recent := time.Now().Add(-1 * time.Hour)
	stale := time.Now().Add(-48 * time.Hour)
	seedParent(t, store, "recent", &recent)
	seedParent(t, store, "stale", &stale)
	seedParent(t, store, "never", nil)

	parents, err := SelectDue(context.Background(), store, 10, 24*time.Hour)
	require.NoError(t, err)

	ids := make([]string, 0, len(parents))
	for _, p := range parents {
		ids = append(ids, p.DataID)
	}
	assert.Contains(t, ids, "stale")
	assert.Contains(t, ids, "never")
	assert.NotContains(t, ids, "recent", "parents inside the cooldown window are never selected")
}

func TestSelectDueCooldownBoundsFallbackToo(t *testing.T) {
	store := memstore.New()

	// One parent already covered by reviews, fetched an hour ago. The
	// fallback fill must not re-select it while it is inside the window.
	recent := time.Now().Add(-1 * time.Hour)
	seedParent(t, store, "covered", &recent)
	seedReview(t, store, "r1", "covered")

	parents, err := SelectDue(context.Background(), store, 5, 24*time.Hour)
	require.NoError(t, err)
	assert.Empty(t, parents)
}

func TestSelectDueSkipsDeletedAndKeyless(t *testing.T) {
	store := memstore.New()

	require.NoError(t, store.Insert(model.CollMapsRestaurants, bson.M{
		"data_id":         "gone",
		"google_place_id": "place-gone",
		"deleted":         true,
	}))
	require.NoError(t, store.Insert(model.CollMapsRestaurants, bson.M{
		"google_place_id": "no-data-id",
	}))
	seedParent(t, store, "ok", nil)

	parents, err := SelectDue(context.Background(), store, 10, 24*time.Hour)
	require.NoError(t, err)
	require.Len(t, parents, 1)
	assert.Equal(t, "ok", parents[0].DataID)
}

func TestSelectDueZeroBatch(t *testing.T) {
	store := memstore.New()
	seedParent(t, store, "d1", nil)

	parents, err := SelectDue(context.Background(), store, 0, time.Hour)
	require.NoError(t, err)
	assert.Empty(t, parents)
}
