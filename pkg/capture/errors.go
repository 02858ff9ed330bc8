package capture

import "errors"

// Sentinel errors for common error conditions.
var (
	// ErrNoDevice is returned by New when no Device is supplied.
	ErrNoDevice = errors.New("capture: device required")

	// ErrDeviceClosed is returned when reading from a device that is not open.
	ErrDeviceClosed = errors.New("capture: device not open")

	// ErrReadFailed is returned when the device produced no frame.
	ErrReadFailed = errors.New("capture: frame read failed")

	// ErrInvalidResolution is returned for unusable or unparseable sizes.
	ErrInvalidResolution = errors.New("capture: invalid resolution")

	// ErrEmptyFrame is returned when resizing a frame without pixels.
	ErrEmptyFrame = errors.New("capture: empty frame")
)
