// Package service exposes registered workflows over HTTP so other
// engine instances can dispatch them as remote backends. The endpoint
// shapes mirror what the invoker's remote dispatch expects: POST
// /execute with {workflow_name, parent_state}, JSON results back.
package service

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"flowweaver/internal/invoker"
	"flowweaver/internal/registry"
	"flowweaver/internal/version"
)

// Server serves workflow execution and metadata endpoints.
type Server struct {
	registry *registry.Registry
	invoker  *invoker.Invoker
	echo     *echo.Echo
	port     int
}

// New creates a Server for the given registry and invoker.
func New(reg *registry.Registry, inv *invoker.Invoker, port int) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	s := &Server{registry: reg, invoker: inv, echo: e, port: port}

	e.POST("/execute", s.handleExecute)
	e.GET("/metadata", s.handleMetadata)
	e.GET("/metadata/:name", s.handleWorkflowMetadata)
	e.GET("/health", s.handleHealth)

	return s
}

// Start listens on the configured port until the server is shut down.
func (s *Server) Start() error {
	return s.echo.Start(fmt.Sprintf(":%d", s.port))
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler returns the underlying HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

type executeRequest struct {
	WorkflowName string         `json:"workflow_name"`
	ParentState  map[string]any `json:"parent_state"`
}

// handleExecute runs one workflow and returns its canonical result.
// Execution failures are reported inside the result body with a 200
// status; only an unknown workflow or a bad request is an HTTP error.
func (s *Server) handleExecute(c echo.Context) error {
	var req executeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body: "+err.Error())
	}
	if req.WorkflowName == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "workflow_name is required")
	}

	meta, err := s.registry.GetOrFail(req.WorkflowName)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}

	result := s.invoker.Invoke(c.Request().Context(), meta, req.ParentState)
	return c.JSON(http.StatusOK, result)
}

// handleMetadata lists all registered workflows.
func (s *Server) handleMetadata(c echo.Context) error {
	return c.JSON(http.StatusOK, s.registry.ListAll())
}

// handleWorkflowMetadata returns one workflow's metadata.
func (s *Server) handleWorkflowMetadata(c echo.Context) error {
	meta, ok := s.registry.Get(c.Param("name"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "workflow not found")
	}
	return c.JSON(http.StatusOK, meta)
}

// handleHealth reports service liveness and registry size.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":    "healthy",
		"version":   version.Get(),
		"workflows": s.registry.Len(),
	})
}
