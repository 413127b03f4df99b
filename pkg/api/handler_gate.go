package api

import (
	"errors"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/clinscribe/clinscribe/pkg/embedding"
	"github.com/clinscribe/clinscribe/pkg/gate"
)

// gateEvaluateHandler handles POST /api/v1/gate/evaluate. The response body
// is the full decision; the HTTP status mirrors Decision.StatusCode (200 on
// admit, 409 on deny).
func (s *Server) gateEvaluateHandler(c *echo.Context) error {
	if !s.authorized(c.Request()) {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	var req gate.Request
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text is required")
	}

	decision, err := s.gate.Evaluate(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, embedding.ErrProtocol) {
			return echo.NewHTTPError(http.StatusBadGateway, "embedding provider returned an invalid response")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "gate evaluation failed")
	}
	return c.JSON(decision.StatusCode, decision)
}

// gateResetHandler handles POST /api/v1/gate/reset: clears all per-note
// state and the cached embedding client.
func (s *Server) gateResetHandler(c *echo.Context) error {
	if !s.authorized(c.Request()) {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	s.gate.Reset()
	return c.JSON(http.StatusOK, map[string]string{"status": "reset"})
}
