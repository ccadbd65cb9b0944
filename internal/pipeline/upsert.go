package pipeline

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/tattler-mx/tattler-go/internal/datastore"
	"github.com/tattler-mx/tattler-go/internal/errors"
)

// Outcome reports what an upsert did to the target document.
type Outcome int

const (
	OutcomeUnchanged Outcome = iota
	OutcomeInserted
	OutcomeModified
)

func (o Outcome) String() string {
	switch o {
	case OutcomeInserted:
		return "inserted"
	case OutcomeModified:
		return "modified"
	default:
		return "unchanged"
	}
}

// envelope fields force-set on the insert path only. Subsequent passes must
// never overwrite them.
func createDefaults(now time.Time) bson.M {
	return bson.M{
		"deleted":    false,
		"deleted_at": nil,
		"created_at": now,
	}
}

// Upsert applies a normalized document under its natural-key filter using
// update-with-upsert, guaranteeing at most one document per key regardless
// of retries or concurrent callers. Caller-supplied storage ids are
// stripped and key fields are forced to the filter's values so identity can
// never be overridden. Envelope defaults are set only on first insert.
func Upsert(ctx context.Context, store datastore.Store, coll string, key, doc bson.M) (Outcome, error) {
	set := bson.M{}
	for k, v := range doc {
		set[k] = v
	}
	delete(set, "_id")
	// These belong to $setOnInsert; carrying them in $set both conflicts
	// with the update document and would overwrite first-insert values.
	delete(set, "deleted")
	delete(set, "deleted_at")
	delete(set, "created_at")
	for k, v := range key {
		set[k] = v
	}
	now := time.Now()
	Touch(set, now)

	res, err := store.UpdateOne(ctx, coll, key, bson.M{
		"$set":         set,
		"$setOnInsert": createDefaults(now),
	}, true)
	if err != nil {
		return OutcomeUnchanged, err
	}

	switch {
	case res.Inserted():
		return OutcomeInserted, nil
	case res.ModifiedCount > 0:
		return OutcomeModified, nil
	default:
		return OutcomeUnchanged, nil
	}
}

// UpdateExisting applies a partial update to a live document. The target is
// re-read through the soft-delete filter first: updating a missing or
// already-deleted key fails with not-found. Identity fields cannot be
// changed through updates.
func UpdateExisting(ctx context.Context, store datastore.Store, coll string, key, updates bson.M) (bson.M, error) {
	existing, err := store.FindOne(ctx, coll, NotDeleted(key))
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, notFoundError(coll, key)
	}

	set := bson.M{}
	for k, v := range updates {
		set[k] = v
	}
	delete(set, "_id")
	for k := range key {
		delete(set, k)
	}
	Touch(set, time.Now())

	if _, err := store.UpdateOne(ctx, coll, key, bson.M{"$set": set}, false); err != nil {
		return nil, err
	}
	return store.FindOne(ctx, coll, key)
}

// SoftDelete marks a document logically deleted, stamping deleted_at and
// modified_at in a single atomic update. The document is never removed. A
// second delete on the same key fails with not-found by design; callers may
// treat that as success-equivalent.
func SoftDelete(ctx context.Context, store datastore.Store, coll string, key bson.M) error {
	existing, err := store.FindOne(ctx, coll, NotDeleted(key))
	if err != nil {
		return err
	}
	if existing == nil {
		return notFoundError(coll, key)
	}

	now := time.Now()
	_, err = store.UpdateOne(ctx, coll, key, bson.M{"$set": bson.M{
		"deleted":     true,
		"deleted_at":  now,
		"modified_at": now,
	}}, false)
	return err
}

func notFoundError(coll string, key bson.M) error {
	return errors.Newf("document not found in %s", coll).
		Category(errors.CategoryNotFound).
		Component("pipeline").
		Context("key", key).
		Build()
}
