package publisher

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"snapcam/internal/services/camera"
	"snapcam/internal/services/publisher/mjpeg"
	"snapcam/internal/services/publisher/websocket"
)

// Source opens an independent frame stream per client.
type Source interface {
	OpenStream(ctx context.Context) (camera.FrameStream, error)
}

// Service serves live frames over MJPEG and WebSocket.
type Service struct {
	mjpegPublisher *mjpeg.Publisher
	wsPublisher    *websocket.Publisher
}

func NewService(src Source, logger zerolog.Logger) *Service {
	return &Service{
		mjpegPublisher: mjpeg.NewPublisher(src, logger.With().Str("transport", "mjpeg").Logger()),
		wsPublisher:    websocket.NewPublisher(src, logger.With().Str("transport", "websocket").Logger()),
	}
}

func (s *Service) StreamMJPEGHTTP(w http.ResponseWriter, r *http.Request) error {
	return s.mjpegPublisher.ServeStream(w, r)
}

func (s *Service) StreamWebSocket(w http.ResponseWriter, r *http.Request) error {
	return s.wsPublisher.ServeStream(w, r)
}

// Clients reports connected clients per transport.
func (s *Service) Clients() map[string]int {
	return map[string]int{
		"mjpeg":     s.mjpegPublisher.Active(),
		"websocket": s.wsPublisher.Active(),
	}
}

// Shutdown ends every open stream so the HTTP server can drain.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mjpegPublisher.Shutdown()
	s.wsPublisher.Shutdown()
	return nil
}
