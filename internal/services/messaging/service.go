package messaging

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"snapcam/internal/config"
	"snapcam/internal/models"
)

// CaptureFunc performs a capture for a remote request.
type CaptureFunc func(ctx context.Context, base string) (*models.SavedImage, error)

// ErrorKindFunc maps an error to the kind string used by the HTTP API.
type ErrorKindFunc func(err error) string

type Service struct {
	conn   *nats.Conn
	cfg    *config.Config
	logger zerolog.Logger
}

func NewService(cfg *config.Config, logger zerolog.Logger) (*Service, error) {
	opts := []nats.Option{
		nats.Name("snapcam-" + cfg.InstanceID),
		nats.Timeout(cfg.NatsConnectTimeout),
		nats.ReconnectWait(cfg.NatsReconnectWait),
		nats.MaxReconnects(cfg.NatsMaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	conn, err := nats.Connect(cfg.NatsURL, opts...)
	if err != nil {
		return nil, err
	}

	logger.Info().Str("url", cfg.NatsURL).Msg("NATS connection established")

	return &Service{
		conn:   conn,
		cfg:    cfg,
		logger: logger,
	}, nil
}

func (s *Service) Publish(subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}

	return s.conn.Publish(subject, payload)
}

// PublishCapture announces a saved capture on CaptureSubject.
func (s *Service) PublishCapture(evt models.CaptureEvent) error {
	return s.Publish(s.cfg.CaptureSubject, evt)
}

// PublishCameraEvent announces a camera state change on
// CameraEventsSubject.<state>.
func (s *Service) PublishCameraEvent(evt models.CameraEvent) error {
	return s.Publish(s.cfg.CameraEventsSubject+"."+evt.State.String(), evt)
}

// captureRequest is the payload of a remote capture request.
type captureRequest struct {
	Name string `json:"name"`
}

// ServeCaptureRequests answers request-reply captures on subject with the
// same body POST /capture returns.
func (s *Service) ServeCaptureRequests(subject string, capture CaptureFunc, kind ErrorKindFunc, timeout time.Duration) (*nats.Subscription, error) {
	return s.conn.QueueSubscribe(subject, "snapcam-capture", func(msg *nats.Msg) {
		s.respond(msg, handleCaptureRequest(msg.Data, capture, kind, timeout))
	})
}

func handleCaptureRequest(data []byte, capture CaptureFunc, kind ErrorKindFunc, timeout time.Duration) interface{} {
	var req captureRequest
	if len(data) > 0 {
		if err := json.Unmarshal(data, &req); err != nil {
			return models.ErrorResponse{Kind: "invalid", Error: "invalid request body", Message: err.Error()}
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	saved, err := capture(ctx, strings.TrimSpace(req.Name))
	if err != nil {
		return models.ErrorResponse{Kind: kind(err), Error: "capture failed", Message: err.Error()}
	}
	return models.CaptureResponse{OK: true, SavedImage: *saved}
}

func (s *Service) respond(msg *nats.Msg, body interface{}) {
	if msg.Reply == "" {
		return
	}
	payload, err := json.Marshal(body)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode NATS reply")
		return
	}
	if err := msg.Respond(payload); err != nil {
		s.logger.Warn().Err(err).Str("subject", msg.Subject).Msg("Failed to reply to NATS request")
	}
}

func (s *Service) IsConnected() bool {
	return s.conn != nil && s.conn.IsConnected()
}

func (s *Service) Shutdown(ctx context.Context) error {
	if s.conn == nil {
		return nil
	}

	// Try graceful drain with timeout, fallback to immediate close
	done := make(chan struct{})
	s.conn.SetClosedHandler(func(*nats.Conn) { close(done) })
	if err := s.conn.Drain(); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to drain NATS connection gracefully, closing immediately")
		s.conn.Close()
		return nil
	}

	select {
	case <-done:
	case <-time.After(s.cfg.NatsDrainTimeout):
		s.logger.Warn().Msg("NATS drain timed out, closing")
		s.conn.Close()
	case <-ctx.Done():
		s.conn.Close()
	}
	return nil
}
