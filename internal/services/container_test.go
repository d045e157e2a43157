package services

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"snapcam/internal/config"
	"snapcam/internal/models"
	"snapcam/internal/services/source"
	"snapcam/internal/services/source/synthetic"
)

// fakeVideoTree lays out /dev/videoN and sysfs name files under a temp dir.
func fakeVideoTree(t *testing.T, names map[int]string) *source.Discovery {
	t.Helper()
	root := t.TempDir()
	for idx, name := range names {
		dev := filepath.Join(root, "dev", "video"+strconv.Itoa(idx))
		if err := os.MkdirAll(filepath.Dir(dev), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(dev, nil, 0o644); err != nil {
			t.Fatal(err)
		}
		sys := filepath.Join(root, "sys", "video"+strconv.Itoa(idx))
		if err := os.MkdirAll(sys, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(sys, "name"), []byte(name+"\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return source.NewDiscoveryAt(filepath.Join(root, "dev", "video*"), filepath.Join(root, "sys"))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		InstanceID:           "test",
		MaxFPS:               100,
		JPEGQuality:          80,
		MaxConsecutiveErrors: 3,
		ReadRetryDelay:       time.Millisecond,
		ReopenAfter:          2,
		SnapshotTimeout:      time.Second,
		StopTimeout:          time.Second,
		ReconnectBackoffMin:  5 * time.Millisecond,
		ReconnectBackoffMax:  20 * time.Millisecond,
		SaveDirDefault:       dir,
		SaveDirFallback:      filepath.Join(dir, "fallback"),
		PanicRestartDelay:    10 * time.Millisecond,
	}
}

func newContainer(t *testing.T, cfg *config.Config, discovery *source.Discovery) (*ServiceContainer, *synthetic.Opener) {
	t.Helper()
	opener := synthetic.NewOpener(32, 24, 2*time.Millisecond)
	sc, err := NewServiceContainer(cfg, opener, discovery)
	if err != nil {
		t.Fatalf("NewServiceContainer() error = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = sc.Shutdown(ctx)
	})
	return sc, opener
}

func TestStartupTarget(t *testing.T) {
	discovery := fakeVideoTree(t, map[int]string{0: "Integrated Camera", 2: "Logitech BRIO"})

	tests := []struct {
		name      string
		index     int
		camName   string
		wantIndex int
	}{
		{"index only", 1, "", 1},
		{"name resolves", 0, "brio", 2},
		{"unknown name keeps index", 4, "missing", 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.CameraIndex = tt.index
			cfg.CameraName = tt.camName
			sc, _ := newContainer(t, cfg, discovery)

			got := sc.StartupTarget(context.Background())
			if got.Index != tt.wantIndex {
				t.Errorf("StartupTarget().Index = %d, want %d", got.Index, tt.wantIndex)
			}
			if got.Name != tt.camName {
				t.Errorf("StartupTarget().Name = %q, want %q", got.Name, tt.camName)
			}
		})
	}
}

func TestStartOpensCamera(t *testing.T) {
	cfg := testConfig(t)
	cfg.CameraIndex = 1
	sc, opener := newContainer(t, cfg, fakeVideoTree(t, nil))

	if err := sc.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	st := sc.CameraManager.Status()
	if st.State != models.CameraStateRunning || st.Index != 1 {
		t.Errorf("status = %s/%d, want running/1", st.State, st.Index)
	}
	if opener.OpenCount(1) != 1 {
		t.Errorf("OpenCount(1) = %d, want 1", opener.OpenCount(1))
	}

	saved, err := sc.CaptureSvc.Capture(context.Background(), "cell")
	if err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	if filepath.Dir(saved.Path) != cfg.SaveDirDefault {
		t.Errorf("saved to %q, want dir %q", saved.Path, cfg.SaveDirDefault)
	}
}

func TestStartWithoutCameraStillServes(t *testing.T) {
	cfg := testConfig(t)
	sc, opener := newContainer(t, cfg, fakeVideoTree(t, nil))
	opener.SetUnavailable(0, true)

	if err := sc.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v, want nil", err)
	}
	if _, err := sc.CaptureSvc.Capture(context.Background(), "x"); ErrorKind(err) != KindNoCamera {
		t.Errorf("Capture() kind = %q, want %q", ErrorKind(err), KindNoCamera)
	}
}

func TestSaveDirFromConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.SaveDir = filepath.Join(t.TempDir(), "override")
	sc, _ := newContainer(t, cfg, fakeVideoTree(t, nil))

	if got := sc.CaptureSvc.SaveDirOverride(); got != cfg.SaveDir {
		t.Errorf("SaveDirOverride() = %q, want %q", got, cfg.SaveDir)
	}
}

func TestStartWithHealthPortTaken(t *testing.T) {
	lis, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer lis.Close()

	cfg := testConfig(t)
	cfg.GRPCEnabled = true
	cfg.GRPCPort = lis.Addr().(*net.TCPAddr).Port
	sc, _ := newContainer(t, cfg, fakeVideoTree(t, nil))

	if err := sc.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v, want nil", err)
	}
	if st := sc.CameraManager.Status(); st.State != models.CameraStateRunning {
		t.Errorf("camera state = %s, want running", st.State)
	}
}
