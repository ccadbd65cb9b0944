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

// ReviewService exposes the review collection. The composite
// (review_id, data_id) pair is the upsert key; lookups by review_id alone
// treat it as unique in practice, matching the unique compound index.
type ReviewService struct {
	store  datastore.Store
	logger *slog.Logger
}

// NewReviewService creates the review service.
func NewReviewService(store datastore.Store, logger *slog.Logger) *ReviewService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReviewService{store: store, logger: logger.With("service", "reviews")}
}

// List returns one page of reviews, excluding soft-deleted documents.
func (s *ReviewService) List(ctx context.Context, page, limit int) ([]bson.M, *Pagination, error) {
	docs, pagination, err := listCollection(ctx, s.store, model.CollReviews, page, limit)
	if err != nil {
		return nil, nil, err
	}
	s.logger.Info("listed reviews", "count", len(docs), "page", pagination.Page)
	return docs, pagination, nil
}

// Get fetches one review by review_id.
func (s *ReviewService) Get(ctx context.Context, reviewID string) (bson.M, error) {
	doc, err := s.store.FindOne(ctx, model.CollReviews,
		pipeline.NotDeleted(bson.M{"review_id": reviewID}))
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, reviewNotFound(reviewID)
	}
	return doc, nil
}

// ListByRestaurant returns all live reviews referencing a restaurant.
// data_id is a weak reference: no restaurant existence check is performed.
func (s *ReviewService) ListByRestaurant(ctx context.Context, dataID string) ([]bson.M, error) {
	docs, err := s.store.Find(ctx, model.CollReviews,
		pipeline.NotDeleted(bson.M{"data_id": dataID}), nil)
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []bson.M{}
	}
	return docs, nil
}

// Create upserts a review by its composite key. Both key parts are
// required.
func (s *ReviewService) Create(ctx context.Context, payload bson.M) (bson.M, error) {
	reviewID, _ := payload["review_id"].(string)
	dataID, _ := payload["data_id"].(string)
	key, err := pipeline.ReviewKey(reviewID, dataID)
	if err != nil {
		return nil, err
	}
	if _, err := pipeline.Upsert(ctx, s.store, model.CollReviews, key, payload); err != nil {
		return nil, err
	}
	s.logger.Info("created or updated review", "review_id", reviewID, "data_id", dataID)
	return s.store.FindOne(ctx, model.CollReviews, key)
}

// StrictCreate fails with a conflict when the composite key already
// exists.
func (s *ReviewService) StrictCreate(ctx context.Context, payload bson.M) (bson.M, error) {
	reviewID, _ := payload["review_id"].(string)
	dataID, _ := payload["data_id"].(string)
	key, err := pipeline.ReviewKey(reviewID, dataID)
	if err != nil {
		return nil, err
	}
	existing, err := s.store.FindOne(ctx, model.CollReviews, key)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, errors.Newf("review %s for restaurant %s already exists", reviewID, dataID).
			Category(errors.CategoryConflict).
			Component("service").
			Build()
	}
	return s.Create(ctx, payload)
}

// Update applies a partial update to a live review.
func (s *ReviewService) Update(ctx context.Context, reviewID string, updates bson.M) (bson.M, error) {
	doc, err := pipeline.UpdateExisting(ctx, s.store, model.CollReviews,
		bson.M{"review_id": reviewID}, updates)
	if err != nil {
		return nil, err
	}
	s.logger.Info("updated review", "review_id", reviewID)
	return doc, nil
}

// Delete soft-deletes a review. A second delete fails with not found.
func (s *ReviewService) Delete(ctx context.Context, reviewID string) error {
	if err := pipeline.SoftDelete(ctx, s.store, model.CollReviews, bson.M{"review_id": reviewID}); err != nil {
		return err
	}
	s.logger.Info("soft-deleted review", "review_id", reviewID)
	return nil
}

func reviewNotFound(reviewID string) error {
	return errors.Newf("review %s not found", reviewID).
		Category(errors.CategoryNotFound).
		Component("service").
		Build()
}
