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

// RegistryService exposes the registry restaurant collection, keyed by the
// registry id. The registry schema mandates a location on every document.
type RegistryService struct {
	store  datastore.Store
	logger *slog.Logger
}

// NewRegistryService creates the registry service.
func NewRegistryService(store datastore.Store, logger *slog.Logger) *RegistryService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RegistryService{store: store, logger: logger.With("service", "registry")}
}

// List returns one page of registry restaurants.
func (s *RegistryService) List(ctx context.Context, page, limit int) ([]bson.M, *Pagination, error) {
	return listCollection(ctx, s.store, model.CollRegistryRestaurants, page, limit)
}

// Get fetches one registry restaurant by id.
func (s *RegistryService) Get(ctx context.Context, id string) (bson.M, error) {
	doc, err := s.store.FindOne(ctx, model.CollRegistryRestaurants,
		pipeline.NotDeleted(pipeline.RegistryKey(id)))
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, errors.Newf("registry restaurant %s not found", id).
			Category(errors.CategoryNotFound).
			Component("service").
			Build()
	}
	return doc, nil
}

// Create upserts a registry restaurant, generating an id when the caller
// supplies none. A location is required by the collection schema.
func (s *RegistryService) Create(ctx context.Context, payload bson.M) (bson.M, error) {
	id, _ := payload["id"].(string)
	if id == "" {
		id = pipeline.GenerateID()
	}
	if payload["location"] == nil {
		return nil, badRequest("location is required for registry restaurants")
	}
	if err := normalizeLocation(payload); err != nil {
		return nil, err
	}

	key := pipeline.RegistryKey(id)
	if _, err := pipeline.Upsert(ctx, s.store, model.CollRegistryRestaurants, key, payload); err != nil {
		return nil, err
	}
	s.logger.Info("created or updated registry restaurant", "id", id)
	return s.store.FindOne(ctx, model.CollRegistryRestaurants, key)
}

// Update applies a partial update to a live registry restaurant.
func (s *RegistryService) Update(ctx context.Context, id string, updates bson.M) (bson.M, error) {
	if err := normalizeLocation(updates); err != nil {
		return nil, err
	}
	return pipeline.UpdateExisting(ctx, s.store, model.CollRegistryRestaurants,
		pipeline.RegistryKey(id), updates)
}

// Delete soft-deletes a registry restaurant.
func (s *RegistryService) Delete(ctx context.Context, id string) error {
	return pipeline.SoftDelete(ctx, s.store, model.CollRegistryRestaurants, pipeline.RegistryKey(id))
}

// SearchNearby returns registry restaurants within maxMeters of a point.
func (s *RegistryService) SearchNearby(ctx context.Context, lon, lat float64, maxMeters int) ([]bson.M, error) {
	if err := validateCoordinates(lon, lat); err != nil {
		return nil, err
	}
	if maxMeters <= 0 {
		maxMeters = DefaultSearchRadiusMeters
	}
	docs, err := s.store.Near(ctx, model.CollRegistryRestaurants, "location", lon, lat, maxMeters,
		pipeline.NotDeleted(bson.M{}))
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []bson.M{}
	}
	return docs, nil
}

// SearchText runs a full-text search over the registry collection.
func (s *RegistryService) SearchText(ctx context.Context, query string) ([]bson.M, error) {
	if query == "" {
		return nil, badRequest("search query is required")
	}
	docs, err := s.store.TextSearch(ctx, model.CollRegistryRestaurants, query, pipeline.NotDeleted(bson.M{}))
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []bson.M{}
	}
	return docs, nil
}
