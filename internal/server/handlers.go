// Package server provides the HTTP server whose traffic is response-logged.
package server

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// Handler holds the HTTP handlers
type Handler struct{}

// NewHandler creates a new handler
func NewHandler() *Handler {
	return &Handler{}
}

// Health handles GET /health
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Check handles GET and POST /check.
// A status query parameter selects the reply status, e.g. /check?status=404.
func (h *Handler) Check(c echo.Context) error {
	status := http.StatusOK
	if raw := c.QueryParam("status"); raw != "" {
		code, err := strconv.Atoi(raw)
		if err != nil || code < 200 || code > 599 {
			return echo.NewHTTPError(http.StatusBadRequest, "status must be an integer between 200 and 599")
		}
		status = code
	}
	return c.JSON(status, map[string]string{"status": "ok"})
}
