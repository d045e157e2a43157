// Package health exposes the camera state over the standard gRPC health
// checking protocol so supervisors can probe snapcam without HTTP.
package health

import (
	"context"
	"fmt"
	"net"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"snapcam/internal/models"
)

// CameraService is the health service name that follows the camera state.
// The empty service name reports the process itself.
const CameraService = "snapcam.Camera"

type Service struct {
	srv    *grpc.Server
	hs     *health.Server
	logger zerolog.Logger
}

func NewService(logger zerolog.Logger) *Service {
	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(CameraService, healthpb.HealthCheckResponse_NOT_SERVING)

	return &Service{srv: srv, hs: hs, logger: logger}
}

// ListenAndServe listens on port and serves in the background.
func (s *Service) ListenAndServe(port int) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	s.Serve(lis)
	return nil
}

// Serve serves on lis in the background.
func (s *Service) Serve(lis net.Listener) {
	s.logger.Info().Str("addr", lis.Addr().String()).Msg("gRPC health server listening")
	go func() {
		if err := s.srv.Serve(lis); err != nil {
			s.logger.Error().Err(err).Msg("gRPC health server stopped")
		}
	}()
}

// OnCameraEvent tracks camera state changes. The camera is serving while it
// is running and not degraded.
func (s *Service) OnCameraEvent(evt models.CameraEvent) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if evt.State == models.CameraStateRunning && !evt.Degraded {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.hs.SetServingStatus(CameraService, status)
}

func (s *Service) Shutdown(ctx context.Context) error {
	s.hs.Shutdown()

	done := make(chan struct{})
	go func() {
		s.srv.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.srv.Stop()
	}
	return nil
}
