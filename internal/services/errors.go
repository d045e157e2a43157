package services

import (
	"context"
	"errors"
	"net/http"

	"snapcam/internal/services/camera"
	"snapcam/internal/services/capture"
	"snapcam/internal/services/settings"
	"snapcam/internal/services/source"
)

// Error kinds shared by the HTTP API, the UI and NATS replies.
const (
	KindNoCamera          = "no_camera"
	KindCameraLost        = "camera_lost"
	KindDeviceUnavailable = "device_unavailable"
	KindIOFailure         = "io_failure"
	KindConflict          = "conflict"
	KindInvalid           = "invalid"
	KindTimeout           = "timeout"
	KindInternal          = "internal"
)

// Classify maps an error to its kind and HTTP status.
func Classify(err error) (string, int) {
	switch {
	case errors.Is(err, settings.ErrInvalid), errors.Is(err, source.ErrUnsupported):
		return KindInvalid, http.StatusBadRequest
	case errors.Is(err, capture.ErrConflict):
		return KindConflict, http.StatusConflict
	case errors.Is(err, capture.ErrIOFailure):
		return KindIOFailure, http.StatusInternalServerError
	case errors.Is(err, camera.ErrNoCamera), errors.Is(err, camera.ErrStopped):
		return KindNoCamera, http.StatusServiceUnavailable
	case errors.Is(err, camera.ErrCameraLost):
		return KindCameraLost, http.StatusServiceUnavailable
	case errors.Is(err, source.ErrDeviceUnavailable):
		return KindDeviceUnavailable, http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout, http.StatusGatewayTimeout
	}
	return KindInternal, http.StatusInternalServerError
}

// ErrorKind is Classify without the status.
func ErrorKind(err error) string {
	kind, _ := Classify(err)
	return kind
}
