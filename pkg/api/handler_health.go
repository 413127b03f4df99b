package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/clinscribe/clinscribe/pkg/version"
)

// healthHandler handles GET /health. The core has no hard external
// dependencies at rest (embedding and LLM clients are lazy), so this only
// reports liveness.
func (s *Server) healthHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": version.AppName,
		"version": version.GitCommit,
	})
}
