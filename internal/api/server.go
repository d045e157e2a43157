package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"snapcam/internal/api/handlers"
	"snapcam/internal/config"
	"snapcam/internal/services"
)

type Server struct {
	config    *config.Config
	router    *gin.Engine
	server    *http.Server
	container *services.ServiceContainer

	healthHandler  *handlers.HealthHandler
	streamHandler  *handlers.StreamHandler
	configHandler  *handlers.ConfigHandler
	captureHandler *handlers.CaptureHandler
	systemHandler  *handlers.SystemHandler
}

func NewServer(cfg *config.Config, container *services.ServiceContainer) (*Server, error) {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		config:         cfg,
		router:         gin.New(),
		container:      container,
		healthHandler:  handlers.NewHealthHandler(container),
		streamHandler:  handlers.NewStreamHandler(container),
		configHandler:  handlers.NewConfigHandler(container),
		captureHandler: handlers.NewCaptureHandler(container),
		systemHandler:  handlers.NewSystemHandler(container),
	}

	s.setupMiddleware()
	s.setupRoutes()
	s.setupSwagger()

	// WriteTimeout stays zero: /stream and /ws are long lived
	s.server = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("Starting snapcam HTTP server")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown ends open streams first so the HTTP server can drain, then stops
// the server and every service.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.container.PublisherSvc.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to end open streams")
	}

	httpErr := s.server.Shutdown(ctx)
	if httpErr != nil {
		log.Error().Err(httpErr).Msg("HTTP server shutdown failed")
	}

	return errors.Join(httpErr, s.container.Shutdown(ctx))
}
