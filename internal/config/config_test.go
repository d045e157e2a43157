package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t, "CONFIG_FILE", "HOST", "PORT", "CAMERA_INDEX", "CAMERA_BACKEND", "CAMERA_NAME_FALLBACK",
		"CAMERA_WIDTH", "CAMERA_HEIGHT", "SNAPSHOT_TIMEOUT", "SAVE_DIR_FALLBACK")

	cfg := Load()

	if cfg.Port != 5000 {
		t.Errorf("Port = %d, want 5000", cfg.Port)
	}
	if cfg.CameraIndex != 0 || cfg.CameraBackend != "auto" || !cfg.CameraNameFallback {
		t.Errorf("camera = %d/%q/%v", cfg.CameraIndex, cfg.CameraBackend, cfg.CameraNameFallback)
	}
	if cfg.CameraWidth != 1920 || cfg.CameraHeight != 1080 {
		t.Errorf("resolution = %dx%d, want 1920x1080", cfg.CameraWidth, cfg.CameraHeight)
	}
	if cfg.SnapshotTimeout != 2*time.Second {
		t.Errorf("SnapshotTimeout = %s", cfg.SnapshotTimeout)
	}
	if filepath.Base(cfg.SaveDirFallback) != "captured_images" {
		t.Errorf("SaveDirFallback = %q", cfg.SaveDirFallback)
	}
	if cfg.Addr() != "127.0.0.1:5000" {
		t.Errorf("Addr() = %q", cfg.Addr())
	}
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("CAMERA_INDEX", "2")
	t.Setenv("CAMERA_NAME", "Logitech")
	t.Setenv("CAMERA_BACKEND", "v4l2,any")
	t.Setenv("CAMERA_NAME_FALLBACK", "false")
	t.Setenv("SAVE_DIR", "/data/shots")
	t.Setenv("FILENAME_WINDOWS", "true")
	t.Setenv("SNAPSHOT_TIMEOUT", "750ms")
	t.Setenv("MAX_FPS", "not-a-number")

	cfg := Load()

	if cfg.CameraIndex != 2 || cfg.CameraName != "Logitech" || cfg.CameraBackend != "v4l2,any" {
		t.Errorf("camera = %d/%q/%q", cfg.CameraIndex, cfg.CameraName, cfg.CameraBackend)
	}
	if cfg.CameraNameFallback {
		t.Error("CameraNameFallback = true, want false")
	}
	if cfg.SaveDir != "/data/shots" || !cfg.FilenameWindows {
		t.Errorf("capture = %q/%v", cfg.SaveDir, cfg.FilenameWindows)
	}
	if cfg.SnapshotTimeout != 750*time.Millisecond {
		t.Errorf("SnapshotTimeout = %s", cfg.SnapshotTimeout)
	}
	if cfg.MaxFPS != 30 {
		t.Errorf("MaxFPS = %d, want default for unparsable value", cfg.MaxFPS)
	}
}

func TestLoadFileWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapcam.yaml")
	raw := `
server:
  port: 9090
camera:
  index: 1
  name: "USB Camera"
  name_fallback: false
capture:
  save_dir: /srv/captures
  windows_filenames: true
nats:
  enabled: true
  url: nats://broker:4222
`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "")
	t.Setenv("CAMERA_NAME", "")
	t.Setenv("CAMERA_INDEX", "3")

	cfg := Load()

	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090 from file", cfg.Port)
	}
	if cfg.CameraIndex != 3 {
		t.Errorf("CameraIndex = %d, want env value 3", cfg.CameraIndex)
	}
	if cfg.CameraName != "USB Camera" || cfg.CameraNameFallback {
		t.Errorf("camera = %q/%v", cfg.CameraName, cfg.CameraNameFallback)
	}
	if cfg.SaveDir != "/srv/captures" || !cfg.FilenameWindows {
		t.Errorf("capture = %q/%v", cfg.SaveDir, cfg.FilenameWindows)
	}
	if !cfg.NatsEnabled || cfg.NatsURL != "nats://broker:4222" {
		t.Errorf("nats = %v/%q", cfg.NatsEnabled, cfg.NatsURL)
	}
}

func TestLoadBadFileIsIgnored(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("server: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "")

	cfg := Load()
	if cfg.Port != 5000 {
		t.Errorf("Port = %d, want default 5000", cfg.Port)
	}
}
