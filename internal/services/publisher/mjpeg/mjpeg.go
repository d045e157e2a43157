package mjpeg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/rs/zerolog"

	"snapcam/internal/services/camera"
)

const boundary = "frame"

// Source opens an independent frame stream per client.
type Source interface {
	OpenStream(ctx context.Context) (camera.FrameStream, error)
}

type Publisher struct {
	src    Source
	ctx    context.Context
	cancel context.CancelFunc
	active atomic.Int32
	logger zerolog.Logger
}

func NewPublisher(src Source, logger zerolog.Logger) *Publisher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Publisher{src: src, ctx: ctx, cancel: cancel, logger: logger}
}

// ServeStream writes a multipart/x-mixed-replace stream until the client goes
// away, the camera stops or the publisher shuts down. An error is returned
// only when the stream could not be opened; nothing has been written then.
func (p *Publisher) ServeStream(w http.ResponseWriter, r *http.Request) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return errors.New("streaming unsupported")
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(p.ctx, cancel)
	defer stop()

	stream, err := p.src.OpenStream(ctx)
	if err != nil {
		return err
	}
	defer stream.Close()

	p.active.Add(1)
	defer p.active.Add(-1)

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+boundary)
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sent := 0
	for {
		frame, err := stream.Next(ctx)
		if err != nil {
			p.finish(w, flusher, r, sent, err)
			return nil
		}
		if err := writePart(w, frame.Data); err != nil {
			p.logger.Debug().Err(err).Str("remote", r.RemoteAddr).Int("frames", sent).Msg("MJPEG client went away")
			return nil
		}
		flusher.Flush()
		sent++
	}
}

func (p *Publisher) finish(w io.Writer, flusher http.Flusher, r *http.Request, sent int, cause error) {
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		p.logger.Debug().Str("remote", r.RemoteAddr).Int("frames", sent).Msg("MJPEG stream closed")
		return
	}

	// the camera ended the stream; close the multipart body cleanly
	if _, err := io.WriteString(w, "--"+boundary+"--\r\n"); err == nil {
		flusher.Flush()
	}
	p.logger.Info().Err(cause).Str("remote", r.RemoteAddr).Int("frames", sent).Msg("MJPEG stream ended by camera")
}

func writePart(w io.Writer, jpeg []byte) error {
	header := fmt.Sprintf("--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", boundary, len(jpeg))
	if _, err := io.WriteString(w, header); err != nil {
		return err
	}
	if _, err := w.Write(jpeg); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\r\n")
	return err
}

// Active reports the number of connected stream clients.
func (p *Publisher) Active() int {
	return int(p.active.Load())
}

// Shutdown ends every open stream.
func (p *Publisher) Shutdown() {
	p.logger.Info().Int("active", p.Active()).Msg("MJPEG publisher shutting down")
	p.cancel()
}
