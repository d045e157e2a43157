package camera

import "errors"

var (
	// ErrNoCamera means the manager never opened a device.
	ErrNoCamera = errors.New("no camera")
	// ErrCameraLost means the device stopped producing frames and the
	// manager is trying to recover it.
	ErrCameraLost = errors.New("camera lost")
	// ErrStopped is returned to waiters once the manager has been stopped.
	ErrStopped = errors.New("camera manager stopped")
)
