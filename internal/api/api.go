// Package api provides the REST layer over the restaurant and review
// services. Handlers are thin adapters: parameter validation, a call into
// the service, and the JSON success envelope.
package api

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/tattler-mx/tattler-go/internal/config"
	"github.com/tattler-mx/tattler-go/internal/datastore"
	"github.com/tattler-mx/tattler-go/internal/errors"
	"github.com/tattler-mx/tattler-go/internal/logging"
	"github.com/tattler-mx/tattler-go/internal/service"
)

// Controller manages the API routes and handlers
type Controller struct {
	Echo     *echo.Echo
	Group    *echo.Group
	Settings *config.Settings

	restaurants *service.RestaurantService
	reviews     *service.ReviewService
	store       datastore.Store

	apiLogger      *slog.Logger
	apiLoggerClose func() error
	startTime      time.Time
}

// New creates the API controller and registers all routes under /api/v1.
func New(settings *config.Settings, store datastore.Store) *Controller {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	apiLogger, closeLogger, err := logging.NewFileLogger("logs/api.log", "api", slog.LevelInfo)
	if err != nil {
		log.Printf("Failed to initialize API log file: %v", err)
		apiLogger = slog.Default()
		closeLogger = func() error { return nil }
	}

	c := &Controller{
		Echo:           e,
		Group:          e.Group("/api/v1"),
		Settings:       settings,
		restaurants:    service.NewRestaurantService(store, apiLogger),
		reviews:        service.NewReviewService(store, apiLogger),
		store:          store,
		apiLogger:      apiLogger,
		apiLoggerClose: closeLogger,
		startTime:      time.Now(),
	}

	c.initRestaurantRoutes()
	c.initReviewRoutes()
	c.initHealthRoutes()

	return c
}

// Start begins serving on addr and blocks until the server stops.
func (c *Controller) Start(addr string) error {
	c.apiLogger.Info("API server starting", "addr", addr)
	return c.Echo.Start(addr)
}

// Shutdown stops the server gracefully and closes the API log file.
func (c *Controller) Shutdown(ctx context.Context) error {
	err := c.Echo.Shutdown(ctx)
	if c.apiLoggerClose != nil {
		if cerr := c.apiLoggerClose(); cerr != nil {
			log.Printf("Error closing API logger: %v", cerr)
		}
	}
	return err
}

// SuccessResponse is the envelope every successful response carries.
type SuccessResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

// ErrorResponse is the envelope every failure carries. Diagnostic detail is
// included only outside production-like configuration.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    int    `json:"code"`
	Error   string `json:"error,omitempty"`
}

// OK writes a success envelope with the given status code.
func (c *Controller) OK(ctx echo.Context, code int, data any) error {
	return ctx.JSON(code, &SuccessResponse{Success: true, Data: data})
}

// HandleError maps an error to its HTTP status and writes the failure
// envelope.
func (c *Controller) HandleError(ctx echo.Context, err error, message string) error {
	code := errors.HTTPStatus(err)

	c.apiLogger.Error("API error",
		"message", message,
		"error", err.Error(),
		"code", code,
		"path", ctx.Request().URL.Path,
		"method", ctx.Request().Method,
		"ip", ctx.RealIP())

	resp := &ErrorResponse{Message: message, Code: code}
	if c.Settings != nil && c.Settings.Debug {
		resp.Error = err.Error()
	}
	return ctx.JSON(code, resp)
}

// BadRequest writes a 400 failure envelope for request validation errors
// detected in the handler itself.
func (c *Controller) BadRequest(ctx echo.Context, message string) error {
	return ctx.JSON(http.StatusBadRequest, &ErrorResponse{
		Message: message,
		Code:    http.StatusBadRequest,
	})
}
