package handler // declare the package name; contains HTTP handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Root identifies the service.
func Root(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"status": "ok", "service": "selenly-backend"})
}

// Health is a simple health-check endpoint used by load balancers and
// monitoring systems to verify that the service is running.
func Health(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}
