// Package synthetic provides a software camera that renders a test pattern.
// It backs CAMERA_BACKEND=synthetic for running without hardware, and lets
// tests script open and read failures.
package synthetic

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"time"

	"snapcam/internal/services/source"
)

// Opener opens synthetic devices. The zero value is not usable; use
// NewOpener.
type Opener struct {
	mu          sync.Mutex
	width       int
	height      int
	frameDelay  time.Duration
	unavailable map[int]bool
	devices     map[int][]*Device
	opens       []int
}

// NewOpener creates an opener where every index can be opened.
func NewOpener(width, height int, frameDelay time.Duration) *Opener {
	if width <= 0 {
		width = 64
	}
	if height <= 0 {
		height = 48
	}
	return &Opener{
		width:       width,
		height:      height,
		frameDelay:  frameDelay,
		unavailable: make(map[int]bool),
		devices:     make(map[int][]*Device),
	}
}

// SetUnavailable makes Open fail for index.
func (o *Opener) SetUnavailable(index int, unavailable bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.unavailable[index] = unavailable
}

// Open implements source.Opener.
func (o *Opener) Open(ctx context.Context, target source.Target) (source.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.opens = append(o.opens, target.Index)
	if o.unavailable[target.Index] {
		return nil, fmt.Errorf("%w: synthetic index %d", source.ErrDeviceUnavailable, target.Index)
	}

	dev := &Device{
		index:  target.Index,
		width:  o.width,
		height: o.height,
		delay:  o.frameDelay,
		props: map[source.Property]float64{
			source.PropertyBrightness: 128,
			source.PropertyContrast:   32,
			source.PropertyWidth:      float64(o.width),
			source.PropertyHeight:     float64(o.height),
		},
	}
	o.devices[target.Index] = append(o.devices[target.Index], dev)
	return dev, nil
}

// Last returns the most recently opened device for index, or nil.
func (o *Opener) Last(index int) *Device {
	o.mu.Lock()
	defer o.mu.Unlock()
	devs := o.devices[index]
	if len(devs) == 0 {
		return nil
	}
	return devs[len(devs)-1]
}

// OpenCount reports how many times Open was called for index.
func (o *Opener) OpenCount(index int) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, i := range o.opens {
		if i == index {
			n++
		}
	}
	return n
}

// OpenDevices counts devices that are currently open.
func (o *Opener) OpenDevices() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, devs := range o.devices {
		for _, d := range devs {
			if !d.Closed() {
				n++
			}
		}
	}
	return n
}

// Device is a synthetic camera.
type Device struct {
	mu        sync.Mutex
	index     int
	width     int
	height    int
	delay     time.Duration
	failReads bool
	closed    bool
	reads     int
	gate      chan struct{}
	parked    int
	props     map[source.Property]float64
}

// FailReads makes subsequent reads fail until cleared.
func (d *Device) FailReads(fail bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failReads = fail
}

// Hold makes Read block until Release, like a driver stuck on an unplugged
// camera.
func (d *Device) Hold() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gate == nil {
		d.gate = make(chan struct{})
	}
}

// Release unblocks reads parked by Hold.
func (d *Device) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gate != nil {
		close(d.gate)
		d.gate = nil
	}
}

// Parked reports whether a Read is currently blocked by Hold.
func (d *Device) Parked() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.parked > 0
}

// Closed reports whether Close was called.
func (d *Device) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Reads reports the number of successful reads.
func (d *Device) Reads() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reads
}

func (d *Device) Backend() string { return "synthetic" }

func (d *Device) Read() (source.Image, error) {
	if d.delay > 0 {
		time.Sleep(d.delay)
	}

	d.mu.Lock()
	if gate := d.gate; gate != nil {
		d.parked++
		d.mu.Unlock()
		<-gate
		d.mu.Lock()
		d.parked--
	}
	defer d.mu.Unlock()
	if d.closed {
		return nil, fmt.Errorf("%w: device closed", source.ErrReadFailure)
	}
	if d.failReads {
		return nil, fmt.Errorf("%w: synthetic failure", source.ErrReadFailure)
	}
	d.reads++
	return &Image{index: d.index, n: d.reads, width: d.width, height: d.height}, nil
}

func (d *Device) Get(p source.Property) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.props[p]
	if !ok {
		return 0, fmt.Errorf("%w: %s", source.ErrUnsupported, p)
	}
	return v, nil
}

func (d *Device) Set(p source.Property, value float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.props[p]; !ok {
		return fmt.Errorf("%w: %s", source.ErrUnsupported, p)
	}
	d.props[p] = value
	return nil
}

func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Image is one rendered test pattern frame.
type Image struct {
	index  int
	n      int
	width  int
	height int
}

func (i *Image) Width() int   { return i.width }
func (i *Image) Height() int  { return i.height }
func (i *Image) Close() error { return nil }

// Encode renders a moving bar whose hue depends on the device index.
func (i *Image) Encode(quality int) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, i.width, i.height))
	base := color.RGBA{R: uint8(40 * i.index), G: 64, B: uint8(255 - 40*i.index), A: 255}
	bar := i.n % i.width
	for y := 0; y < i.height; y++ {
		for x := 0; x < i.width; x++ {
			if x == bar {
				img.Set(x, y, color.White)
				continue
			}
			img.Set(x, y, base)
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}
	return buf.Bytes(), nil
}
