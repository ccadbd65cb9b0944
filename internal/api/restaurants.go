package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson"
)

// initRestaurantRoutes registers the restaurant endpoints. The search
// routes precede the parameterized get so /search/* never binds as a
// data_id.
func (c *Controller) initRestaurantRoutes() {
	g := c.Group.Group("/restaurants")
	g.GET("", c.ListRestaurants)
	g.GET("/search/location", c.SearchRestaurantsByLocation)
	g.GET("/search/text", c.SearchRestaurantsByText)
	g.GET("/:data_id", c.GetRestaurant)
	g.POST("", c.CreateRestaurant)
	g.PUT("/:data_id", c.UpdateRestaurant)
	g.DELETE("/:data_id", c.DeleteRestaurant)
}

// RestaurantListResponse is the payload of the paginated restaurant list.
type RestaurantListResponse struct {
	Restaurants []bson.M `json:"restaurants"`
	Pagination  any      `json:"pagination"`
}

// SearchResponse is the payload of both search endpoints.
type SearchResponse struct {
	Count       int      `json:"count"`
	Restaurants []bson.M `json:"restaurants"`
}

// ListRestaurants handles GET /restaurants with pagination.
func (c *Controller) ListRestaurants(ctx echo.Context) error {
	page, limit, ok := c.pageParams(ctx, 100)
	if !ok {
		return nil
	}

	docs, pagination, err := c.restaurants.List(ctx.Request().Context(), page, limit)
	if err != nil {
		return c.HandleError(ctx, err, "Error fetching restaurants")
	}
	return c.OK(ctx, http.StatusOK, &RestaurantListResponse{Restaurants: docs, Pagination: pagination})
}

// GetRestaurant handles GET /restaurants/:data_id.
func (c *Controller) GetRestaurant(ctx echo.Context) error {
	dataID := ctx.Param("data_id")
	if dataID == "" {
		return c.BadRequest(ctx, "Restaurant data_id is required")
	}

	doc, err := c.restaurants.Get(ctx.Request().Context(), dataID)
	if err != nil {
		return c.HandleError(ctx, err, "Error fetching restaurant")
	}
	return c.OK(ctx, http.StatusOK, doc)
}

// CreateRestaurant handles POST /restaurants. The create path is an upsert
// by data_id; a missing data_id is generated server-side.
func (c *Controller) CreateRestaurant(ctx echo.Context) error {
	payload := bson.M{}
	if err := ctx.Bind(&payload); err != nil {
		return c.BadRequest(ctx, "Invalid request body")
	}

	doc, err := c.restaurants.Create(ctx.Request().Context(), payload)
	if err != nil {
		return c.HandleError(ctx, err, "Error creating restaurant")
	}
	return c.OK(ctx, http.StatusCreated, doc)
}

// UpdateRestaurant handles PUT /restaurants/:data_id with partial updates.
func (c *Controller) UpdateRestaurant(ctx echo.Context) error {
	dataID := ctx.Param("data_id")
	if dataID == "" {
		return c.BadRequest(ctx, "Restaurant data_id is required")
	}
	updates := bson.M{}
	if err := ctx.Bind(&updates); err != nil {
		return c.BadRequest(ctx, "Invalid request body")
	}

	doc, err := c.restaurants.Update(ctx.Request().Context(), dataID, updates)
	if err != nil {
		return c.HandleError(ctx, err, "Error updating restaurant")
	}
	return c.OK(ctx, http.StatusOK, doc)
}

// DeleteRestaurant handles DELETE /restaurants/:data_id (soft delete).
func (c *Controller) DeleteRestaurant(ctx echo.Context) error {
	dataID := ctx.Param("data_id")
	if dataID == "" {
		return c.BadRequest(ctx, "Restaurant data_id is required")
	}

	if err := c.restaurants.Delete(ctx.Request().Context(), dataID); err != nil {
		return c.HandleError(ctx, err, "Error deleting restaurant")
	}
	return c.OK(ctx, http.StatusOK, bson.M{"message": "Soft deleted", "data_id": dataID})
}

// SearchRestaurantsByLocation handles GET /restaurants/search/location.
func (c *Controller) SearchRestaurantsByLocation(ctx echo.Context) error {
	lonParam := ctx.QueryParam("longitude")
	latParam := ctx.QueryParam("latitude")
	if lonParam == "" || latParam == "" {
		return c.BadRequest(ctx, "Longitude and latitude are required")
	}
	lon, lonErr := strconv.ParseFloat(lonParam, 64)
	lat, latErr := strconv.ParseFloat(latParam, 64)
	if lonErr != nil || latErr != nil {
		return c.BadRequest(ctx, "Invalid coordinates")
	}
	distance, _ := strconv.Atoi(ctx.QueryParam("distance"))

	docs, err := c.restaurants.SearchNearby(ctx.Request().Context(), lon, lat, distance)
	if err != nil {
		return c.HandleError(ctx, err, "Error searching restaurants by location")
	}
	return c.OK(ctx, http.StatusOK, &SearchResponse{Count: len(docs), Restaurants: docs})
}

// SearchRestaurantsByText handles GET /restaurants/search/text.
func (c *Controller) SearchRestaurantsByText(ctx echo.Context) error {
	query := ctx.QueryParam("q")
	if query == "" {
		return c.BadRequest(ctx, "Search query is required")
	}

	docs, err := c.restaurants.SearchText(ctx.Request().Context(), query)
	if err != nil {
		return c.HandleError(ctx, err, "Error searching restaurants by text")
	}
	return c.OK(ctx, http.StatusOK, &SearchResponse{Count: len(docs), Restaurants: docs})
}

// pageParams validates the page/limit query parameters, writing a 400
// response itself when they are out of range.
func (c *Controller) pageParams(ctx echo.Context, maxLimit int) (page, limit int, ok bool) {
	page = 1
	limit = 20
	if p := ctx.QueryParam("page"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 {
			_ = c.BadRequest(ctx, "page must be a positive integer")
			return 0, 0, false
		}
		page = n
	}
	if l := ctx.QueryParam("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 || n > maxLimit {
			_ = c.BadRequest(ctx, "limit is out of range")
			return 0, 0, false
		}
		limit = n
	}
	return page, limit, true
}
