package api

import (
	"context"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/clinscribe/clinscribe/pkg/compose"
)

// composeSubmitHandler handles POST /api/v1/compose: starts a job and
// returns its compose id. Processing continues in the background; progress
// flows through the compose stream channel.
func (s *Server) composeSubmitHandler(c *echo.Context) error {
	if !s.authorized(c.Request()) {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	var job compose.Job
	if err := c.Bind(&job); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	// Jobs detach from the request; cancellation is explicit via the cancel
	// endpoint, not the submitter's disconnect.
	id, err := s.composeMgr.Submit(context.WithoutCancel(c.Request().Context()), job)
	if err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.JSON(http.StatusAccepted, map[string]string{"composeId": id})
}

// composeStatusHandler handles GET /api/v1/compose/:id.
func (s *Server) composeStatusHandler(c *echo.Context) error {
	if !s.authorized(c.Request()) {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	state, ok := s.composeMgr.Latest(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "compose job not found")
	}
	return c.JSON(http.StatusOK, state)
}

// composeCancelHandler handles POST /api/v1/compose/:id/cancel.
func (s *Server) composeCancelHandler(c *echo.Context) error {
	if !s.authorized(c.Request()) {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	if !s.composeMgr.Cancel(c.Param("id")) {
		return echo.NewHTTPError(http.StatusNotFound, "compose job not found")
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "cancelling"})
}
