package api

import (
	"net/http"

	"github.com/coder/websocket"
	echo "github.com/labstack/echo/v5"

	"github.com/clinscribe/clinscribe/pkg/stream"
)

// wsHandler upgrades GET /ws/:channel to a WebSocket subscription on one
// encounter's delta stream. The encounter id comes from the encounterId (or
// encounter_id) query parameter.
func (s *Server) wsHandler(c *echo.Context) error {
	hub, ok := s.hubs[c.Param("channel")]
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "unknown stream channel")
	}

	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		// Origin validation is delegated to the fronting gateway.
		InsecureSkipVerify: true,
	})
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	sub := stream.NewWSSubscriber(ctx, conn, s.cfg.Stream.WriteTimeout)

	if !s.authorized(c.Request()) {
		sub.ClosePolicyViolation("unauthorized")
		return nil
	}

	encounterID := c.QueryParam("encounterId")
	if encounterID == "" {
		encounterID = c.QueryParam("encounter_id")
	}
	if encounterID == "" {
		sub.ClosePolicyViolation("encounterId is required")
		return nil
	}

	if err := hub.Subscribe(encounterID, sub); err != nil {
		sub.Close("subscribe failed")
		return nil
	}
	defer hub.Unsubscribe(encounterID, sub)

	// Blocks until the client disconnects.
	sub.ReceiveLoop()
	sub.Close("")
	return nil
}
