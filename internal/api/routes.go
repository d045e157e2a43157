package api

import (
	"snapcam/internal/api/handlers"
)

func (s *Server) setupRoutes() {
	s.router.GET("/", handlers.Index)
	s.router.GET("/health", s.healthHandler.HealthCheck)
	s.router.GET("/status", s.healthHandler.Status)

	s.router.GET("/stream", s.streamHandler.MJPEG)
	s.router.GET("/ws", s.streamHandler.WebSocket)

	s.router.GET("/config", s.configHandler.GetConfig)
	s.router.POST("/config", s.configHandler.UpdateConfig)

	s.router.POST("/capture", s.captureHandler.Capture)

	system := s.router.Group("/system")
	{
		system.GET("/stats", s.systemHandler.GetStats)
	}
}
