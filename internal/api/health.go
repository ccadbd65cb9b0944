package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

func (c *Controller) initHealthRoutes() {
	c.Echo.GET("/health", c.Health)
}

// HealthResponse reports service liveness and store reachability.
type HealthResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	Database      string  `json:"database"`
}

// Health handles GET /health. The store is pinged per request; a failing
// ping degrades the status without failing the endpoint.
func (c *Controller) Health(ctx echo.Context) error {
	resp := &HealthResponse{
		Status:        "ok",
		UptimeSeconds: time.Since(c.startTime).Seconds(),
		Database:      "ok",
	}
	if err := c.store.Ping(ctx.Request().Context()); err != nil {
		resp.Status = "degraded"
		resp.Database = "unreachable"
		c.apiLogger.Warn("health check: store unreachable", "error", err)
	}
	return c.OK(ctx, http.StatusOK, resp)
}
