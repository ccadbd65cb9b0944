package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/tattler-mx/tattler-go/internal/datastore/memstore"
	"github.com/tattler-mx/tattler-go/internal/errors"
	"github.com/tattler-mx/tattler-go/internal/model"
)

func TestUpsertInsertSetsEnvelope(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()

	outcome, err := Upsert(ctx, store, model.CollMapsRestaurants,
		MapsAPIKey("d1"), bson.M{"name": "El Rey del Cabrito"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeInserted, outcome)

	doc, err := store.FindOne(ctx, model.CollMapsRestaurants, MapsAPIKey("d1"))
	require.NoError(t, err)
	require.NotNil(t, doc)

	assert.Equal(t, false, doc["deleted"])
	assert.Nil(t, doc["deleted_at"])
	assert.NotNil(t, doc["created_at"])
	assert.NotNil(t, doc["modified_at"])
	assert.Equal(t, "El Rey del Cabrito", doc["name"])
}

func TestUpsertIsIdempotentPerKey(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := Upsert(ctx, store, model.CollMapsRestaurants,
			MapsAPIKey("d1"), bson.M{"name": "La Nacional"})
		require.NoError(t, err)
	}

	count, err := store.Count(ctx, model.CollMapsRestaurants, bson.M{"data_id": "d1"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, count, "retries must never duplicate the key")
}

func TestUpsertPreservesCreatedAtOnUpdate(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	key := MapsAPIKey("d1")

	_, err := Upsert(ctx, store, model.CollMapsRestaurants, key, bson.M{"name": "v1"})
	require.NoError(t, err)
	first, err := store.FindOne(ctx, model.CollMapsRestaurants, key)
	require.NoError(t, err)
	createdAt := first["created_at"]

	outcome, err := Upsert(ctx, store, model.CollMapsRestaurants, key, bson.M{"name": "v2"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeModified, outcome)

	second, err := store.FindOne(ctx, model.CollMapsRestaurants, key)
	require.NoError(t, err)
	assert.Equal(t, "v2", second["name"])
	assert.Equal(t, createdAt, second["created_at"], "created_at is first-insert only")
}

func TestUpsertStripsCallerIdentityFields(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()

	_, err := Upsert(ctx, store, model.CollMapsRestaurants, MapsAPIKey("d1"), bson.M{
		"_id":     "forged",
		"data_id": "other-key",
		"deleted": true,
		"name":    "Honest Restaurant",
	})
	require.NoError(t, err)

	doc, err := store.FindOne(ctx, model.CollMapsRestaurants, MapsAPIKey("d1"))
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "d1", doc["data_id"], "key fields come from the filter, not the payload")
	assert.Equal(t, false, doc["deleted"], "envelope fields cannot be forged through the payload")
	assert.NotEqual(t, "forged", doc["_id"])
}

func TestUpdateExistingNotFound(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()

	_, err := UpdateExisting(ctx, store, model.CollMapsRestaurants,
		MapsAPIKey("missing"), bson.M{"name": "x"})
	assert.True(t, errors.IsNotFound(err))
}

func TestUpdateExistingStampsModifiedAt(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	key := MapsAPIKey("d1")

	_, err := Upsert(ctx, store, model.CollMapsRestaurants, key, bson.M{"name": "before"})
	require.NoError(t, err)

	doc, err := UpdateExisting(ctx, store, model.CollMapsRestaurants, key, bson.M{
		"name":    "after",
		"data_id": "cannot-change",
	})
	require.NoError(t, err)
	assert.Equal(t, "after", doc["name"])
	assert.Equal(t, "d1", doc["data_id"])
	assert.NotNil(t, doc["modified_at"])
}

func TestSoftDeleteLifecycle(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	key := MapsAPIKey("d1")

	_, err := Upsert(ctx, store, model.CollMapsRestaurants, key, bson.M{"name": "Doomed"})
	require.NoError(t, err)

	require.NoError(t, SoftDelete(ctx, store, model.CollMapsRestaurants, key))

	// The document survives physically but is invisible through the
	// soft-delete filter.
	raw, err := store.FindOne(ctx, model.CollMapsRestaurants, key)
	require.NoError(t, err)
	require.NotNil(t, raw)
	assert.Equal(t, true, raw["deleted"])
	assert.NotNil(t, raw["deleted_at"])

	hidden, err := store.FindOne(ctx, model.CollMapsRestaurants, NotDeleted(key))
	require.NoError(t, err)
	assert.Nil(t, hidden)

	// Second delete of the same key fails with not-found.
	err = SoftDelete(ctx, store, model.CollMapsRestaurants, key)
	assert.True(t, errors.IsNotFound(err))

	// A later update through the live-document path fails too.
	_, err = UpdateExisting(ctx, store, model.CollMapsRestaurants, key, bson.M{"name": "Lazarus"})
	assert.True(t, errors.IsNotFound(err))
}

func TestNotDeletedDoesNotMutateInput(t *testing.T) {
	in := bson.M{"data_id": "d1"}
	out := NotDeleted(in)

	assert.NotContains(t, in, "deleted")
	assert.Contains(t, out, "deleted")
	assert.Equal(t, bson.M{"$ne": true}, out["deleted"])
}

func TestNotDeletedMatchesDocsWithoutFlag(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()

	// Legacy documents predating the envelope have no deleted field at all;
	// $ne true must still match them.
	require.NoError(t, store.Insert(model.CollMapsRestaurants, bson.M{"data_id": "legacy"}))

	doc, err := store.FindOne(ctx, model.CollMapsRestaurants, NotDeleted(MapsAPIKey("legacy")))
	require.NoError(t, err)
	assert.NotNil(t, doc)
}

func TestTouch(t *testing.T) {
	now := time.Now()
	set := Touch(bson.M{"name": "x"}, now)
	assert.Equal(t, now, set["modified_at"])
}
