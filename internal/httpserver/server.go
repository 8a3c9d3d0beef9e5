package httpserver

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/SayHoang/plantidentify/internal/conf"
	"github.com/SayHoang/plantidentify/internal/feedback"
	"github.com/SayHoang/plantidentify/internal/logging"
	"github.com/SayHoang/plantidentify/internal/observability"
)

// Server encapsulates the Echo instance and the API controller.
type Server struct {
	Echo       *echo.Echo
	Settings   *conf.Settings
	controller *Controller
}

// NewServer initializes the HTTP server with all routes registered. It does
// not start listening, call Start for that.
func NewServer(settings *conf.Settings, workflow *feedback.Workflow,
	metrics *observability.Metrics) (*Server, error) {

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	controller, err := New(e, settings, workflow, metrics)
	if err != nil {
		return nil, err
	}

	return &Server{
		Echo:       e,
		Settings:   settings,
		controller: controller,
	}, nil
}

// Start serves requests until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	logging.Info("HTTP server starting", "address", s.Settings.Server.Address)
	err := s.Echo.Start(s.Settings.Server.Address)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and releases controller resources.
func (s *Server) Shutdown(ctx context.Context) error {
	s.controller.Shutdown()
	return s.Echo.Shutdown(ctx)
}
