package camera

import "errors"

// Sentinel errors for the camera adapter.
var (
	ErrAlreadyStarted     = errors.New("camera session already started")
	ErrNilDevice          = errors.New("camera device is nil")
	ErrNilPublisher       = errors.New("frame publisher is nil")
	ErrUnsupportedBackend = errors.New("camera backend not supported by this build")
	ErrCameraUnavailable  = errors.New("camera unavailable")
	ErrNotOpen            = errors.New("camera device not open")
	ErrSessionStopped     = errors.New("camera session stopped")
)
