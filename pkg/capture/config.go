// Package capture runs a background camera acquisition worker and
// exposes the freshest frames to any number of concurrent readers.
//
// A FrameSource owns a Device (OpenCV, mock, ...), keeps reading from it
// on its own goroutine, and recovers from missing or detached cameras by
// backing off and reopening. Readers never block on device I/O:
//
//	src, _ := capture.New(capture.DefaultConfig(), cvdevice.New())
//	src.Start()
//	defer src.Stop()
//
//	if frame, ok := src.GetFrame(); ok {
//		// use frame
//	}
package capture

import (
	"fmt"
	"time"
)

// Resolution is a frame size in pixels.
// A non-positive dimension means "not configured".
type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// IsSet reports whether both dimensions are positive.
func (r Resolution) IsSet() bool {
	return r.Width > 0 && r.Height > 0
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// MaxDimension bounds each side of a requested or resized frame.
const MaxDimension = 8192

// Validate rejects negative sides and sides above MaxDimension.
// Zero is allowed and means unset.
func (r Resolution) Validate() error {
	if r.Width < 0 || r.Height < 0 || r.Width > MaxDimension || r.Height > MaxDimension {
		return fmt.Errorf("%w: %v (each side must be 0..%d)", ErrInvalidResolution, r, MaxDimension)
	}
	return nil
}

// Config holds FrameSource settings.
type Config struct {
	// DeviceIndex selects the camera (0 = first device).
	DeviceIndex int `json:"device_index"`

	// BufferSize is how many recent frames are retained.
	// Default: 2, minimum 1.
	BufferSize int `json:"buffer_size"`

	// ReconnectBackoff is the pause after a failed open or read.
	// Default: 500ms
	ReconnectBackoff time.Duration `json:"reconnect_backoff"`

	// CaptureResolution is requested from the device on every open.
	// Zero leaves the device default.
	CaptureResolution Resolution `json:"capture_resolution"`

	// InferenceResolution is the size GetFrameForInference resizes to.
	// Zero passes frames through unchanged.
	InferenceResolution Resolution `json:"inference_resolution"`

	// TargetFPS is requested from the device. <= 0 leaves the device default.
	TargetFPS float64 `json:"target_fps"`

	// FPSWindow is how many capture timestamps feed the rolling FPS.
	// Default: 30, minimum 2.
	FPSWindow int `json:"fps_window"`
}

const (
	DefaultBufferSize       = 2
	DefaultReconnectBackoff = 500 * time.Millisecond
	DefaultFPSWindow        = 30

	minBufferSize = 1
	minFPSWindow  = 2
)

// DefaultConfig returns a Config for the first camera at its native mode.
func DefaultConfig() Config {
	return Config{
		DeviceIndex:      0,
		BufferSize:       DefaultBufferSize,
		ReconnectBackoff: DefaultReconnectBackoff,
		FPSWindow:        DefaultFPSWindow,
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.DeviceIndex < 0 {
		return fmt.Errorf("device_index must be >= 0, got %d", c.DeviceIndex)
	}
	if c.ReconnectBackoff < 0 {
		return fmt.Errorf("reconnect_backoff must not be negative, got %v", c.ReconnectBackoff)
	}
	if err := c.CaptureResolution.Validate(); err != nil {
		return fmt.Errorf("capture_resolution: %w", err)
	}
	if err := c.InferenceResolution.Validate(); err != nil {
		return fmt.Errorf("inference_resolution: %w", err)
	}
	return nil
}

// normalized raises sizes to their minimums and fills a missing backoff.
func (c Config) normalized() Config {
	if c.BufferSize < minBufferSize {
		c.BufferSize = minBufferSize
	}
	if c.FPSWindow < minFPSWindow {
		c.FPSWindow = minFPSWindow
	}
	if c.ReconnectBackoff <= 0 {
		c.ReconnectBackoff = DefaultReconnectBackoff
	}
	return c
}
