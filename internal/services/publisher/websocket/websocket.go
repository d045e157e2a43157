// Package websocket pushes camera frames to browsers as binary WebSocket
// messages, one JPEG per message.
package websocket

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"snapcam/internal/models"
	"snapcam/internal/services/camera"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Source opens an independent frame stream per client.
type Source interface {
	OpenStream(ctx context.Context) (camera.FrameStream, error)
}

type Publisher struct {
	src      Source
	upgrader websocket.Upgrader
	ctx      context.Context
	cancel   context.CancelFunc
	active   atomic.Int32
	logger   zerolog.Logger
}

func NewPublisher(src Source, logger zerolog.Logger) *Publisher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Publisher{
		src: src,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}
}

// ServeStream opens a frame stream and upgrades the connection. When the
// stream cannot be opened the error is returned before the upgrade so the
// caller can answer with a normal HTTP error.
func (p *Publisher) ServeStream(w http.ResponseWriter, r *http.Request) error {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(p.ctx, cancel)
	defer stop()

	stream, err := p.src.OpenStream(ctx)
	if err != nil {
		return err
	}
	defer func() {
		cancel()
		stream.Close()
	}()

	conn, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client
		p.logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("Error upgrading websocket connection")
		return nil
	}
	defer conn.Close()

	p.active.Add(1)
	defer p.active.Add(-1)
	p.logger.Info().Str("remote", r.RemoteAddr).Msg("Websocket connection established")

	// the reader only handles control frames; it ends the stream when the
	// peer closes
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					p.logger.Debug().Err(err).Msg("Websocket read error")
				}
				return
			}
		}
	}()

	results := make(chan next, 1)
	go func() {
		for {
			f, err := stream.Next(ctx)
			select {
			case results <- next{frame: f, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case res := <-results:
			if res.err != nil {
				code, text := websocket.CloseNormalClosure, "stream ended"
				if !errors.Is(res.err, context.Canceled) {
					code, text = websocket.CloseTryAgainLater, res.err.Error()
				}
				_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(writeWait))
				return nil
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.BinaryMessage, res.frame.Data); err != nil {
				p.logger.Debug().Err(err).Msg("Error writing frame to websocket")
				return nil
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return nil
			}
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), time.Now().Add(writeWait))
			return nil
		}
	}
}

type next struct {
	frame *models.Frame
	err   error
}

// Active reports the number of connected websocket clients.
func (p *Publisher) Active() int {
	return int(p.active.Load())
}

// Shutdown closes every open connection.
func (p *Publisher) Shutdown() {
	p.logger.Info().Int("active", p.Active()).Msg("Websocket publisher shutting down")
	p.cancel()
}
