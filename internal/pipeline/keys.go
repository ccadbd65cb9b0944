package pipeline

import (
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/tattler-mx/tattler-go/internal/errors"
)

// GenerateID returns a collision-resistant opaque identifier. Generation
// happens exactly once, at create time; update paths never mint ids.
func GenerateID() string {
	return uuid.New().String()
}

// RegistryKey is the upsert filter for registry restaurants, keyed by the
// registry id.
func RegistryKey(id string) bson.M {
	return bson.M{"id": id}
}

// MapsAPIKey is the upsert filter for mapping-provider restaurants at the
// API level, keyed by data_id.
func MapsAPIKey(dataID string) bson.M {
	return bson.M{"data_id": dataID}
}

// MapsIngestKey is the upsert filter used during ingestion, keyed by
// google_place_id: capture payloads carry no reliable data_id yet, a
// separate reconciliation step backfills it from the raw payload.
func MapsIngestKey(placeID string) bson.M {
	return bson.M{"google_place_id": placeID}
}

// ReviewKey is the compound upsert filter for reviews. Both parts are
// required; the store enforces the pair unique.
func ReviewKey(reviewID, dataID string) (bson.M, error) {
	if reviewID == "" || dataID == "" {
		return nil, errors.Newf("review key requires both review_id and data_id").
			Category(errors.CategoryValidation).
			Component("pipeline").
			Build()
	}
	return bson.M{"review_id": reviewID, "data_id": dataID}, nil
}
