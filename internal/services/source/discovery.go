package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
)

// DeviceInfo describes a camera found by a best-effort probe.
type DeviceInfo struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	Path  string `json:"path,omitempty"`
}

// Discovery enumerates video devices without opening them.
type Discovery struct {
	devGlob  string
	sysClass string
	enabled  bool
}

// NewDiscovery returns a Discovery for the running OS. Only Linux exposes
// device names; other platforms report nothing and callers fall back to the
// configured index.
func NewDiscovery() *Discovery {
	return &Discovery{
		devGlob:  "/dev/video*",
		sysClass: "/sys/class/video4linux",
		enabled:  runtime.GOOS == "linux",
	}
}

// NewDiscoveryAt reads devices from the given roots.
func NewDiscoveryAt(devGlob, sysClass string) *Discovery {
	return &Discovery{devGlob: devGlob, sysClass: sysClass, enabled: true}
}

// Devices returns the probed devices ordered by index.
func (d *Discovery) Devices(ctx context.Context) ([]DeviceInfo, error) {
	if !d.enabled {
		return nil, nil
	}

	paths, err := filepath.Glob(d.devGlob)
	if err != nil {
		return nil, fmt.Errorf("scan video devices: %w", err)
	}

	devices := make([]DeviceInfo, 0, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return devices, err
		}

		base := filepath.Base(path)
		if !strings.HasPrefix(base, "video") {
			continue
		}
		index, err := strconv.Atoi(strings.TrimPrefix(base, "video"))
		if err != nil {
			continue
		}

		name := readFirstLine(filepath.Join(d.sysClass, base, "name"))
		if name == "" {
			name = path
		}
		devices = append(devices, DeviceInfo{Index: index, Name: name, Path: path})
	}

	sort.Slice(devices, func(i, j int) bool { return devices[i].Index < devices[j].Index })
	return devices, nil
}

// Resolve finds the first device whose name contains name, case-insensitively.
func (d *Discovery) Resolve(ctx context.Context, name string) (int, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return 0, fmt.Errorf("%w: empty device name", ErrDeviceUnavailable)
	}

	devices, err := d.Devices(ctx)
	if err != nil {
		return 0, err
	}
	for _, dev := range devices {
		if strings.Contains(strings.ToLower(dev.Name), name) {
			return dev.Index, nil
		}
	}
	return 0, fmt.Errorf("%w: no device named %q", ErrDeviceUnavailable, name)
}

func readFirstLine(path string) string {
	raw, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	line := string(raw)
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	return strings.TrimSpace(line)
}
