// Package api exposes the orchestration core over HTTP: gate evaluation,
// prompt building, compose job control, and the per-encounter WebSocket
// delta streams.
package api

import (
	"context"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/clinscribe/clinscribe/pkg/compose"
	"github.com/clinscribe/clinscribe/pkg/config"
	"github.com/clinscribe/clinscribe/pkg/gate"
	"github.com/clinscribe/clinscribe/pkg/prompt"
	"github.com/clinscribe/clinscribe/pkg/stream"
)

// Authenticator approves or rejects an incoming request. A nil authenticator
// allows everything; deployments front this service with their own gateway.
type Authenticator func(r *http.Request) bool

// Server wires the subsystems to HTTP routes.
type Server struct {
	cfg        *config.Config
	gate       *gate.Gate
	prompts    *prompt.Builder
	composeMgr *compose.Manager
	hubs       map[string]*stream.Hub
	auth       Authenticator

	echo *echo.Echo
	http *http.Server
}

// NewServer creates the server and registers all routes.
func NewServer(cfg *config.Config, g *gate.Gate, prompts *prompt.Builder, composeMgr *compose.Manager, hubs map[string]*stream.Hub, auth Authenticator) *Server {
	s := &Server{
		cfg:        cfg,
		gate:       g,
		prompts:    prompts,
		composeMgr: composeMgr,
		hubs:       hubs,
		auth:       auth,
	}

	e := echo.New()
	e.Use(securityHeaders())

	e.GET("/health", s.healthHandler)

	v1 := e.Group("/api/v1")
	v1.POST("/gate/evaluate", s.gateEvaluateHandler)
	v1.POST("/gate/reset", s.gateResetHandler)
	v1.POST("/prompt/build", s.promptBuildHandler)
	v1.POST("/compose", s.composeSubmitHandler)
	v1.GET("/compose/:id", s.composeStatusHandler)
	v1.POST("/compose/:id/cancel", s.composeCancelHandler)

	e.GET("/ws/:channel", s.wsHandler)

	s.echo = e
	return s
}

// Echo returns the underlying router, used by tests to drive requests
// without a listener.
func (s *Server) Echo() *echo.Echo { return s.echo }

// Start listens on addr and blocks until the server stops.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{Addr: addr, Handler: s.echo}
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// authorized applies the optional authenticator.
func (s *Server) authorized(r *http.Request) bool {
	return s.auth == nil || s.auth(r)
}
