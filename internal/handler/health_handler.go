package handler

import (
	"net/http"

	"support-api/pkg/database"
	"support-api/prometheus"

	"github.com/labstack/echo/v4"
)

// MetricsHandler exposes the Prometheus metrics endpoint
var MetricsHandler = echo.WrapHandler(prometheus.GetPrometheusHandler())

// HealthCheck reports service and database health
func HealthCheck(c echo.Context) error {
	status := "ok"
	dbStatus := "ok"

	if sqlDB, err := database.GetDB().DB(); err != nil || sqlDB.Ping() != nil {
		status = "degraded"
		dbStatus = "unreachable"
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, echo.Map{
		"status":   status,
		"database": dbStatus,
	})
}

// Index describes the service
func Index(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"service": "support-api",
		"status":  "running",
	})
}
