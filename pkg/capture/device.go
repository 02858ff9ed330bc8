package capture

// Property identifies a device setting readable with Get and writable with Set.
type Property int

const (
	// PropFrameWidth is the capture width in pixels.
	PropFrameWidth Property = iota
	// PropFrameHeight is the capture height in pixels.
	PropFrameHeight
	// PropFPS is the capture frame rate.
	PropFPS
)

func (p Property) String() string {
	switch p {
	case PropFrameWidth:
		return "frame_width"
	case PropFrameHeight:
		return "frame_height"
	case PropFPS:
		return "fps"
	default:
		return "unknown"
	}
}

// Device is a camera handle from an underlying capture library.
//
// A FrameSource only calls a Device from one goroutine at a time, so
// implementations need not be safe for concurrent use.
type Device interface {
	// Open opens the camera at index. Opening an open device reopens it.
	Open(index int) error

	// IsOpen reports whether the handle is usable.
	IsOpen() bool

	// Read blocks until the next frame is available. The returned frame
	// must not share memory with the device or with earlier frames.
	Read() (Frame, error)

	// Release closes the handle. Releasing a closed device is a no-op.
	Release() error

	// Get returns the value the device reports for prop, or 0 if unknown.
	Get(prop Property) float64

	// Set requests a value for prop. It reports whether the device accepted
	// the request; the device may still clamp the value.
	Set(prop Property, value float64) bool

	// Name returns the backend name (e.g., "opencv", "mock").
	Name() string
}

// Resizer scales frames.
type Resizer interface {
	// Resize returns a new frame of exactly the requested size using
	// area averaging. The input is not modified.
	Resize(f Frame, size Resolution) (Frame, error)
}
