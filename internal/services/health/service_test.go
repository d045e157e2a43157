package health

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"snapcam/internal/models"
)

func newClient(t *testing.T, s *Service) healthpb.HealthClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s.Serve(lis)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	t.Cleanup(func() {
		conn.Close()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return healthpb.NewHealthClient(conn)
}

func check(t *testing.T, client healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("Check(%q) error = %v", service, err)
	}
	return resp.GetStatus()
}

func TestCameraHealthFollowsEvents(t *testing.T) {
	s := NewService(zerolog.Nop())
	client := newClient(t, s)

	if got := check(t, client, ""); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("process status = %s, want SERVING", got)
	}
	if got := check(t, client, CameraService); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("camera status before start = %s, want NOT_SERVING", got)
	}

	steps := []struct {
		evt  models.CameraEvent
		want healthpb.HealthCheckResponse_ServingStatus
	}{
		{models.CameraEvent{State: models.CameraStateRunning}, healthpb.HealthCheckResponse_SERVING},
		{models.CameraEvent{State: models.CameraStateRunning, Degraded: true}, healthpb.HealthCheckResponse_NOT_SERVING},
		{models.CameraEvent{State: models.CameraStateRunning}, healthpb.HealthCheckResponse_SERVING},
		{models.CameraEvent{State: models.CameraStateStopped}, healthpb.HealthCheckResponse_NOT_SERVING},
	}
	for i, step := range steps {
		s.OnCameraEvent(step.evt)
		if got := check(t, client, CameraService); got != step.want {
			t.Errorf("step %d: status = %s, want %s", i, got, step.want)
		}
	}
}
