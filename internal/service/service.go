// Package service implements the collection-facing operations the HTTP
// layer calls into: restaurant and review CRUD, geosearch and text search,
// with the soft-delete invariant applied centrally.
package service

import (
	"context"
	"math"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/tattler-mx/tattler-go/internal/datastore"
	"github.com/tattler-mx/tattler-go/internal/errors"
	"github.com/tattler-mx/tattler-go/internal/model"
	"github.com/tattler-mx/tattler-go/internal/pipeline"
)

// Pagination describes one page of a list response.
type Pagination struct {
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Pages int   `json:"pages"`
}

// DefaultSearchRadiusMeters bounds a location search when the caller does
// not supply a distance.
const DefaultSearchRadiusMeters = 1000

func newPagination(total int64, page, limit int) *Pagination {
	pages := 0
	if limit > 0 {
		pages = int(math.Ceil(float64(total) / float64(limit)))
	}
	return &Pagination{Total: total, Page: page, Limit: limit, Pages: pages}
}

// listCollection pages through a collection excluding soft-deleted
// documents.
func listCollection(ctx context.Context, store datastore.Store, coll string, page, limit int) ([]bson.M, *Pagination, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	filter := pipeline.NotDeleted(bson.M{})

	docs, err := store.Find(ctx, coll, filter, &datastore.FindOptions{
		Skip:  int64((page - 1) * limit),
		Limit: int64(limit),
	})
	if err != nil {
		return nil, nil, err
	}
	total, err := store.Count(ctx, coll, filter)
	if err != nil {
		return nil, nil, err
	}
	if docs == nil {
		docs = []bson.M{}
	}
	return docs, newPagination(total, page, limit), nil
}

// normalizeLocation coerces a caller-supplied location into a validated
// GeoJSON point in place. Malformed coordinates are rejected before
// persistence, never silently truncated.
func normalizeLocation(payload bson.M) error {
	rawLoc, ok := payload["location"]
	if !ok || rawLoc == nil {
		return nil
	}
	locMap, ok := toMap(rawLoc)
	if !ok {
		return badRequest("location must be an object with coordinates")
	}
	coords, ok := toFloatSlice(locMap["coordinates"])
	if !ok || len(coords) != 2 {
		return badRequest("location.coordinates must be [longitude, latitude]")
	}
	point := model.NewGeoPoint(coords[0], coords[1])
	if err := point.Validate(); err != nil {
		return err
	}
	payload["location"] = bson.M{"type": point.Type, "coordinates": point.Coordinates}
	return nil
}

func badRequest(msg string) error {
	return errors.Newf("%s", msg).
		Category(errors.CategoryValidation).
		Component("service").
		Build()
}

func validateCoordinates(lon, lat float64) error {
	if math.IsNaN(lon) || math.IsInf(lon, 0) || math.IsNaN(lat) || math.IsInf(lat, 0) {
		return badRequest("invalid coordinates")
	}
	return nil
}

func toMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case bson.M:
		return m, true
	default:
		return nil, false
	}
}

func toFloatSlice(v any) ([]float64, bool) {
	var raw []any
	switch s := v.(type) {
	case []any:
		raw = s
	case []float64:
		return s, true
	default:
		return nil, false
	}
	out := make([]float64, 0, len(raw))
	for _, e := range raw {
		switch n := e.(type) {
		case float64:
			out = append(out, n)
		case int:
			out = append(out, float64(n))
		case int32:
			out = append(out, float64(n))
		case int64:
			out = append(out, float64(n))
		default:
			return nil, false
		}
	}
	return out, true
}
