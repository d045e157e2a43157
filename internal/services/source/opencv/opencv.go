// Package opencv implements the frame source adapter on top of gocv.
package opencv

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"

	"snapcam/internal/services/source"
)

// Backend pairs a gocv capture API with a readable name.
type Backend struct {
	Name string
	API  gocv.VideoCaptureAPI
}

var knownBackends = map[string]gocv.VideoCaptureAPI{
	"any":          gocv.VideoCaptureAny,
	"v4l2":         gocv.VideoCaptureV4l2,
	"dshow":        gocv.VideoCaptureDshow,
	"msmf":         gocv.VideoCaptureMSMF,
	"avfoundation": gocv.VideoCaptureAVFoundation,
	"gstreamer":    gocv.VideoCaptureGstreamer,
	"ffmpeg":       gocv.VideoCaptureFFmpeg,
}

// DefaultBackends returns the preference order for the running OS.
func DefaultBackends() []Backend {
	switch runtime.GOOS {
	case "windows":
		return []Backend{{"msmf", gocv.VideoCaptureMSMF}, {"dshow", gocv.VideoCaptureDshow}, {"any", gocv.VideoCaptureAny}}
	case "darwin":
		return []Backend{{"avfoundation", gocv.VideoCaptureAVFoundation}, {"any", gocv.VideoCaptureAny}}
	default:
		return []Backend{{"v4l2", gocv.VideoCaptureV4l2}, {"any", gocv.VideoCaptureAny}}
	}
}

// ParseBackends turns a comma separated preference ("v4l2,any") into
// backends. "auto" or an empty string selects DefaultBackends.
func ParseBackends(pref string) ([]Backend, error) {
	pref = strings.TrimSpace(strings.ToLower(pref))
	if pref == "" || pref == "auto" {
		return DefaultBackends(), nil
	}

	var backends []Backend
	for _, name := range strings.Split(pref, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		api, ok := knownBackends[name]
		if !ok {
			return nil, fmt.Errorf("unknown camera backend %q", name)
		}
		backends = append(backends, Backend{Name: name, API: api})
	}
	if len(backends) == 0 {
		return DefaultBackends(), nil
	}
	return backends, nil
}

// Options configures an Opener.
type Options struct {
	Backends     []Backend
	Width        int
	Height       int
	NameFallback bool
	Discovery    *source.Discovery
}

// Opener opens cameras with gocv, trying each backend in order.
type Opener struct {
	opt Options
}

// NewOpener creates an Opener.
func NewOpener(opt Options) *Opener {
	if len(opt.Backends) == 0 {
		opt.Backends = DefaultBackends()
	}
	return &Opener{opt: opt}
}

// Open tries every backend for the target index. When that fails and name
// fallback is enabled, the target name is resolved to an index and the
// backends are tried again.
func (o *Opener) Open(ctx context.Context, target source.Target) (source.Device, error) {
	dev, err := o.openIndex(ctx, target.Index)
	if err == nil {
		return dev, nil
	}

	if !o.opt.NameFallback || target.Name == "" || o.opt.Discovery == nil {
		return nil, err
	}

	index, rerr := o.opt.Discovery.Resolve(ctx, target.Name)
	if rerr != nil {
		return nil, fmt.Errorf("%w (name lookup: %v)", err, rerr)
	}
	if index == target.Index {
		return nil, err
	}

	log.Info().
		Str("name", target.Name).
		Int("index", index).
		Msg("Resolved camera name to index")

	return o.openIndex(ctx, index)
}

func (o *Opener) openIndex(ctx context.Context, index int) (source.Device, error) {
	var tried []string
	for _, b := range o.opt.Backends {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		cap, err := gocv.OpenVideoCaptureWithAPI(index, b.API)
		if err != nil || !cap.IsOpened() {
			if cap != nil {
				cap.Close()
			}
			log.Debug().
				Int("index", index).
				Str("backend", b.Name).
				Msg("Camera backend failed to open device")
			tried = append(tried, b.Name)
			continue
		}

		if o.opt.Width > 0 {
			cap.Set(gocv.VideoCaptureFrameWidth, float64(o.opt.Width))
		}
		if o.opt.Height > 0 {
			cap.Set(gocv.VideoCaptureFrameHeight, float64(o.opt.Height))
		}

		log.Info().
			Int("index", index).
			Str("backend", b.Name).
			Float64("actual_width", cap.Get(gocv.VideoCaptureFrameWidth)).
			Float64("actual_height", cap.Get(gocv.VideoCaptureFrameHeight)).
			Float64("actual_fps", cap.Get(gocv.VideoCaptureFPS)).
			Msg("VideoCapture opened")

		return &device{cap: cap, backend: b.Name, mat: gocv.NewMat()}, nil
	}
	return nil, fmt.Errorf("%w: index %d (tried %s)", source.ErrDeviceUnavailable, index, strings.Join(tried, ", "))
}

var propertyIDs = map[source.Property]gocv.VideoCaptureProperties{
	source.PropertyBrightness: gocv.VideoCaptureBrightness,
	source.PropertyContrast:   gocv.VideoCaptureContrast,
	source.PropertySaturation: gocv.VideoCaptureSaturation,
	source.PropertyGain:       gocv.VideoCaptureGain,
	source.PropertyExposure:   gocv.VideoCaptureExposure,
	source.PropertyWidth:      gocv.VideoCaptureFrameWidth,
	source.PropertyHeight:     gocv.VideoCaptureFrameHeight,
	source.PropertyFPS:        gocv.VideoCaptureFPS,
}

type device struct {
	mu      sync.Mutex
	cap     *gocv.VideoCapture
	mat     gocv.Mat
	backend string
	closed  bool
}

func (d *device) Backend() string { return d.backend }

func (d *device) Read() (source.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, fmt.Errorf("%w: device closed", source.ErrReadFailure)
	}
	if ok := d.cap.Read(&d.mat); !ok {
		return nil, fmt.Errorf("%w: cannot read device", source.ErrReadFailure)
	}
	if d.mat.Empty() {
		return nil, fmt.Errorf("%w: empty frame", source.ErrReadFailure)
	}
	return &matImage{mat: d.mat.Clone()}, nil
}

func (d *device) Get(p source.Property) (float64, error) {
	id, ok := propertyIDs[p]
	if !ok {
		return 0, fmt.Errorf("%w: %s", source.ErrUnsupported, p)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, fmt.Errorf("%w: device closed", source.ErrUnsupported)
	}

	v := d.cap.Get(id)
	if v == -1 {
		return 0, fmt.Errorf("%w: %s", source.ErrUnsupported, p)
	}
	return v, nil
}

// Set applies the value and reads it back; drivers that silently ignore a
// property report zero afterwards.
func (d *device) Set(p source.Property, value float64) error {
	id, ok := propertyIDs[p]
	if !ok {
		return fmt.Errorf("%w: %s", source.ErrUnsupported, p)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return fmt.Errorf("%w: device closed", source.ErrUnsupported)
	}

	d.cap.Set(id, value)
	if got := d.cap.Get(id); got == -1 || (got == 0 && value != 0) {
		return fmt.Errorf("%w: %s", source.ErrUnsupported, p)
	}
	return nil
}

func (d *device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	d.mat.Close()
	return d.cap.Close()
}

type matImage struct {
	mat gocv.Mat
}

func (m *matImage) Width() int  { return m.mat.Cols() }
func (m *matImage) Height() int { return m.mat.Rows() }

func (m *matImage) Encode(quality int) ([]byte, error) {
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, m.mat, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}
	defer buf.Close()

	b := buf.GetBytes()
	jpeg := make([]byte, len(b))
	copy(jpeg, b)
	return jpeg, nil
}

func (m *matImage) Close() error {
	return m.mat.Close()
}
