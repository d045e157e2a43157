// Package source defines the frame source adapter used by the camera manager.
//
// A Device is a single open camera. Every call on a Device may block on the
// driver, so the camera manager only ever touches it from its acquisition
// goroutine.
package source

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDeviceUnavailable is returned when no backend could open the device.
	ErrDeviceUnavailable = errors.New("device unavailable")
	// ErrReadFailure is returned for a failed or empty frame read.
	ErrReadFailure = errors.New("frame read failed")
	// ErrUnsupported is returned when the driver does not support a property.
	ErrUnsupported = errors.New("property unsupported")
)

// Property names a best-effort device setting.
type Property string

const (
	PropertyBrightness Property = "brightness"
	PropertyContrast   Property = "contrast"
	PropertySaturation Property = "saturation"
	PropertyGain       Property = "gain"
	PropertyExposure   Property = "exposure"
	PropertyWidth      Property = "width"
	PropertyHeight     Property = "height"
	PropertyFPS        Property = "fps"
)

// Properties lists every property the adapter knows how to address.
var Properties = []Property{
	PropertyBrightness,
	PropertyContrast,
	PropertySaturation,
	PropertyGain,
	PropertyExposure,
	PropertyWidth,
	PropertyHeight,
	PropertyFPS,
}

// ParseProperty validates a property name coming from the API.
func ParseProperty(name string) (Property, error) {
	p := Property(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Properties {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupported, name)
}

// Target identifies the device to open. Name is only consulted when name
// based lookup is enabled on the opener.
type Target struct {
	Index int    `json:"index" yaml:"index"`
	Name  string `json:"name,omitempty" yaml:"name"`
}

func (t Target) String() string {
	if t.Name != "" {
		return fmt.Sprintf("%d (%s)", t.Index, t.Name)
	}
	return fmt.Sprintf("%d", t.Index)
}

// Image is a single raw frame owned by the caller until Close.
type Image interface {
	Encode(quality int) ([]byte, error)
	Width() int
	Height() int
	Close() error
}

// Device is an open camera.
type Device interface {
	// Read blocks until the driver delivers one frame.
	Read() (Image, error)
	Get(p Property) (float64, error)
	Set(p Property, value float64) error
	// Backend reports the backend that opened the device.
	Backend() string
	// Close releases the device. Calling it more than once is a no-op.
	Close() error
}

// Opener opens devices.
type Opener interface {
	Open(ctx context.Context, target Target) (Device, error)
}
