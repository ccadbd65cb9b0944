package service

import (
	"context"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/tattler-mx/tattler-go/internal/datastore"
	"github.com/tattler-mx/tattler-go/internal/errors"
	"github.com/tattler-mx/tattler-go/internal/model"
	"github.com/tattler-mx/tattler-go/internal/pipeline"
)

// RestaurantService exposes the mapping-provider restaurant collection,
// keyed by data_id.
type RestaurantService struct {
	store  datastore.Store
	logger *slog.Logger
}

// NewRestaurantService creates the restaurant service.
func NewRestaurantService(store datastore.Store, logger *slog.Logger) *RestaurantService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RestaurantService{store: store, logger: logger.With("service", "restaurants")}
}

// List returns one page of restaurants, excluding soft-deleted documents.
func (s *RestaurantService) List(ctx context.Context, page, limit int) ([]bson.M, *Pagination, error) {
	docs, pagination, err := listCollection(ctx, s.store, model.CollMapsRestaurants, page, limit)
	if err != nil {
		return nil, nil, err
	}
	s.logger.Info("retrieved restaurants", "count", len(docs), "page", pagination.Page)
	return docs, pagination, nil
}

// Get fetches one restaurant by data_id; soft-deleted restaurants resolve
// as not found.
func (s *RestaurantService) Get(ctx context.Context, dataID string) (bson.M, error) {
	doc, err := s.store.FindOne(ctx, model.CollMapsRestaurants,
		pipeline.NotDeleted(pipeline.MapsAPIKey(dataID)))
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, errors.Newf("restaurant with data_id %s not found", dataID).
			Category(errors.CategoryNotFound).
			Component("service").
			Build()
	}
	return doc, nil
}

// Create upserts a restaurant by data_id, generating one when the caller
// supplies none. Generation happens exactly once, at create time. The
// envelope create fields are force-set on insert only.
func (s *RestaurantService) Create(ctx context.Context, payload bson.M) (bson.M, error) {
	dataID, _ := payload["data_id"].(string)
	if dataID == "" {
		dataID = pipeline.GenerateID()
	}
	if err := normalizeLocation(payload); err != nil {
		return nil, err
	}

	key := pipeline.MapsAPIKey(dataID)
	if _, err := pipeline.Upsert(ctx, s.store, model.CollMapsRestaurants, key, payload); err != nil {
		return nil, err
	}
	s.logger.Info("created or updated restaurant", "data_id", dataID)
	return s.store.FindOne(ctx, model.CollMapsRestaurants, key)
}

// StrictCreate behaves like Create but fails with a conflict when the
// data_id already exists, even as a soft-deleted document: resurrecting a
// deleted key through create would silently undo the deletion.
func (s *RestaurantService) StrictCreate(ctx context.Context, payload bson.M) (bson.M, error) {
	dataID, _ := payload["data_id"].(string)
	if dataID == "" {
		return s.Create(ctx, payload)
	}
	existing, err := s.store.FindOne(ctx, model.CollMapsRestaurants, pipeline.MapsAPIKey(dataID))
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, errors.Newf("restaurant with data_id %s already exists", dataID).
			Category(errors.CategoryConflict).
			Component("service").
			Build()
	}
	return s.Create(ctx, payload)
}

// Update applies a partial update to a live restaurant. Identity fields
// and the storage id cannot be changed.
func (s *RestaurantService) Update(ctx context.Context, dataID string, updates bson.M) (bson.M, error) {
	if err := normalizeLocation(updates); err != nil {
		return nil, err
	}
	doc, err := pipeline.UpdateExisting(ctx, s.store, model.CollMapsRestaurants,
		pipeline.MapsAPIKey(dataID), updates)
	if err != nil {
		return nil, err
	}
	s.logger.Info("updated restaurant", "data_id", dataID)
	return doc, nil
}

// Delete soft-deletes a restaurant. A second delete on the same data_id
// fails with not found.
func (s *RestaurantService) Delete(ctx context.Context, dataID string) error {
	if err := pipeline.SoftDelete(ctx, s.store, model.CollMapsRestaurants, pipeline.MapsAPIKey(dataID)); err != nil {
		return err
	}
	s.logger.Info("soft-deleted restaurant", "data_id", dataID)
	return nil
}

// SearchNearby returns restaurants within maxMeters of the given point,
// closest first.
func (s *RestaurantService) SearchNearby(ctx context.Context, lon, lat float64, maxMeters int) ([]bson.M, error) {
	if err := validateCoordinates(lon, lat); err != nil {
		return nil, err
	}
	if maxMeters <= 0 {
		maxMeters = DefaultSearchRadiusMeters
	}
	docs, err := s.store.Near(ctx, model.CollMapsRestaurants, "location", lon, lat, maxMeters,
		pipeline.NotDeleted(bson.M{}))
	if err != nil {
		return nil, err
	}
	s.logger.Info("location search", "lon", lon, "lat", lat, "max_meters", maxMeters, "found", len(docs))
	if docs == nil {
		docs = []bson.M{}
	}
	return docs, nil
}

// SearchText runs a full-text search over the collection.
func (s *RestaurantService) SearchText(ctx context.Context, query string) ([]bson.M, error) {
	if query == "" {
		return nil, badRequest("search query is required")
	}
	docs, err := s.store.TextSearch(ctx, model.CollMapsRestaurants, query, pipeline.NotDeleted(bson.M{}))
	if err != nil {
		return nil, err
	}
	s.logger.Info("text search", "query", query, "found", len(docs))
	if docs == nil {
		docs = []bson.M{}
	}
	return docs, nil
}
