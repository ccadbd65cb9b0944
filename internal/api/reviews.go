package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson"
)

// initReviewRoutes registers the review endpoints.
func (c *Controller) initReviewRoutes() {
	g := c.Group.Group("/reviews")
	g.GET("", c.ListReviews)
	g.GET("/data/:data_id", c.GetReviewsByRestaurant)
	g.GET("/:review_id", c.GetReview)
	g.POST("", c.CreateReview)
	g.PUT("/:review_id", c.UpdateReview)
	g.DELETE("/:review_id", c.DeleteReview)
}

// ReviewListResponse is the payload of the paginated review list.
type ReviewListResponse struct {
	Reviews    []bson.M `json:"reviews"`
	Pagination any      `json:"pagination"`
}

// ListReviews handles GET /reviews with pagination.
func (c *Controller) ListReviews(ctx echo.Context) error {
	page, limit, ok := c.pageParams(ctx, 200)
	if !ok {
		return nil
	}

	docs, pagination, err := c.reviews.List(ctx.Request().Context(), page, limit)
	if err != nil {
		return c.HandleError(ctx, err, "Error listing reviews")
	}
	return c.OK(ctx, http.StatusOK, &ReviewListResponse{Reviews: docs, Pagination: pagination})
}

// GetReview handles GET /reviews/:review_id.
func (c *Controller) GetReview(ctx echo.Context) error {
	reviewID := ctx.Param("review_id")
	if reviewID == "" {
		return c.BadRequest(ctx, "review_id is required")
	}

	doc, err := c.reviews.Get(ctx.Request().Context(), reviewID)
	if err != nil {
		return c.HandleError(ctx, err, "Error getting review")
	}
	return c.OK(ctx, http.StatusOK, doc)
}

// GetReviewsByRestaurant handles GET /reviews/data/:data_id.
func (c *Controller) GetReviewsByRestaurant(ctx echo.Context) error {
	dataID := ctx.Param("data_id")
	if dataID == "" {
		return c.BadRequest(ctx, "data_id is required")
	}

	docs, err := c.reviews.ListByRestaurant(ctx.Request().Context(), dataID)
	if err != nil {
		return c.HandleError(ctx, err, "Error getting reviews for restaurant")
	}
	return c.OK(ctx, http.StatusOK, docs)
}

// CreateReview handles POST /reviews; review_id and data_id are required.
func (c *Controller) CreateReview(ctx echo.Context) error {
	payload := bson.M{}
	if err := ctx.Bind(&payload); err != nil {
		return c.BadRequest(ctx, "Invalid request body")
	}

	doc, err := c.reviews.Create(ctx.Request().Context(), payload)
	if err != nil {
		return c.HandleError(ctx, err, "Error creating review")
	}
	return c.OK(ctx, http.StatusCreated, doc)
}

// UpdateReview handles PUT /reviews/:review_id.
func (c *Controller) UpdateReview(ctx echo.Context) error {
	reviewID := ctx.Param("review_id")
	if reviewID == "" {
		return c.BadRequest(ctx, "review_id is required")
	}
	updates := bson.M{}
	if err := ctx.Bind(&updates); err != nil {
		return c.BadRequest(ctx, "Invalid request body")
	}

	doc, err := c.reviews.Update(ctx.Request().Context(), reviewID, updates)
	if err != nil {
		return c.HandleError(ctx, err, "Error updating review")
	}
	return c.OK(ctx, http.StatusOK, doc)
}

// DeleteReview handles DELETE /reviews/:review_id (soft delete).
func (c *Controller) DeleteReview(ctx echo.Context) error {
	reviewID := ctx.Param("review_id")
	if reviewID == "" {
		return c.BadRequest(ctx, "review_id is required")
	}

	if err := c.reviews.Delete(ctx.Request().Context(), reviewID); err != nil {
		return c.HandleError(ctx, err, "Error deleting review")
	}
	return c.OK(ctx, http.StatusOK, bson.M{"message": "Soft deleted", "review_id": reviewID})
}
