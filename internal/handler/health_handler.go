package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"taskhub/prometheus"
)

// HealthCheck reports liveness and storage reachability.
func (h *Handler) HealthCheck(c echo.Context) error {
	database := "connected"
	status := "ok"
	code := http.StatusOK

	sqlDB, err := h.db.DB()
	if err != nil || sqlDB.PingContext(c.Request().Context()) != nil {
		database = "disconnected"
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	return c.JSON(code, echo.Map{
		"status":   status,
		"database": database,
	})
}

// Metrics serves the Prometheus registry.
func (h *Handler) Metrics(c echo.Context) error {
	handler := prometheus.GetPrometheusHandler()
	handler.ServeHTTP(c.Response(), c.Request())
	return nil
}
