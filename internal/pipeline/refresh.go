package pipeline

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/tattler-mx/tattler-go/internal/datastore"
	"github.com/tattler-mx/tattler-go/internal/model"
)

// DueParent is a restaurant selected for a dependent-collection refresh.
type DueParent struct {
	DataID  string
	PlaceID string
	Name    string
}

// SelectDue chooses which restaurants are due for a review refresh. The
// primary set is parents with usable identifiers, outside the cooldown
// window and with zero reviews referencing them (a lookup anti-join). When
// the primary set is smaller than batch, the remainder is filled with
// otherwise-eligible parents that already have reviews, without duplicating
// any key already chosen. Selection is advisory, not transactional:
// concurrent runs may pick overlapping parents and the system tolerates the
// redundant fetches.
func SelectDue(ctx context.Context, store datastore.Store, batch int, cooldown time.Duration) ([]DueParent, error) {
	if batch <= 0 {
		return nil, nil
	}
	cutoff := time.Now().Add(-cooldown)

	eligible := NotDeleted(bson.M{
		"data_id":         bson.M{"$exists": true, "$ne": nil},
		"google_place_id": bson.M{"$exists": true, "$ne": nil},
		"$or": []bson.M{
			{"last_reviews_fetched_at": bson.M{"$exists": false}},
			{"last_reviews_fetched_at": bson.M{"$lte": cutoff}},
		},
	})

	pipeline := []bson.M{
		{"$match": eligible},
		{"$lookup": bson.M{
			"from": model.CollReviews,
			"let":  bson.M{"dataId": "$data_id"},
			"pipeline": []bson.M{
				{"$match": bson.M{"$expr": bson.M{"$eq": []any{"$data_id", "$$dataId"}}}},
				{"$limit": 1},
			},
			"as": "existing_reviews",
		}},
		{"$match": bson.M{"existing_reviews": bson.M{"$size": 0}}},
		{"$project": bson.M{"data_id": 1, "google_place_id": 1, "name": 1}},
		{"$limit": batch},
	}

	docs, err := store.Aggregate(ctx, model.CollMapsRestaurants, pipeline)
	if err != nil {
		return nil, err
	}

	chosen := make(map[string]bool, batch)
	parents := make([]DueParent, 0, batch)
	for _, doc := range docs {
		p := parentFromDoc(doc)
		if p.DataID == "" || chosen[p.DataID] {
			continue
		}
		chosen[p.DataID] = true
		parents = append(parents, p)
	}

	// Fallback fill: stale parents that already have reviews. Unlike the
	// anti-join set this re-reads the same eligibility filter, so the
	// cooldown stamp still bounds how often the same pool is re-selected.
	if len(parents) < batch {
		fallback, err := store.Find(ctx, model.CollMapsRestaurants, eligible, &datastore.FindOptions{
			Limit:      int64(batch),
			Projection: bson.M{"data_id": 1, "google_place_id": 1, "name": 1},
		})
		if err != nil {
			return nil, err
		}
		for _, doc := range fallback {
			if len(parents) >= batch {
				break
			}
			p := parentFromDoc(doc)
			if p.DataID == "" || chosen[p.DataID] {
				continue
			}
			chosen[p.DataID] = true
			parents = append(parents, p)
		}
	}

	return parents, nil
}

func parentFromDoc(doc bson.M) DueParent {
	str := func(key string) string {
		s, _ := doc[key].(string)
		return s
	}
	return DueParent{
		DataID:  str("data_id"),
		PlaceID: str("google_place_id"),
		Name:    str("name"),
	}
}
