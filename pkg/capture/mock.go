package capture

import (
	"log/slog"
	"sync"
	"time"
)

// MockDevice is a synthetic camera for tests and hardware-less runs.
// It can be scripted to fail opens or reads and to clamp requested
// resolutions to a fixed supported mode.
type MockDevice struct {
	logger *slog.Logger

	mu       sync.Mutex
	open     bool
	detached bool
	width    int
	height   int
	fps      float64
	channels int
	mode     Resolution // zero = accept any requested size

	// Scripted failures
	openFailures  int // remaining opens that fail
	readFailAfter int // successful reads before readFails kick in, -1 = never
	readFails     int

	pace     bool
	lastRead time.Time
	seq      uint64

	// Stats
	openAttempts []time.Time
	opens        int
	releases     int
	reads        int
	readErrors   int
}

// MockDeviceOption configures a MockDevice.
type MockDeviceOption func(*MockDevice)

// WithOpenFailures makes the first n Open calls fail.
func WithOpenFailures(n int) MockDeviceOption {
	return func(m *MockDevice) {
		m.openFailures = n
	}
}

// WithReadFailures makes count reads fail once after successful reads have happened.
func WithReadFailures(after, count int) MockDeviceOption {
	return func(m *MockDevice) {
		m.readFailAfter = after
		m.readFails = count
	}
}

// WithSupportedMode makes the device report w x h regardless of the requested size.
func WithSupportedMode(w, h int) MockDeviceOption {
	return func(m *MockDevice) {
		m.mode = Resolution{Width: w, Height: h}
		m.width, m.height = w, h
	}
}

// WithResolution sets the initial frame size.
func WithResolution(w, h int) MockDeviceOption {
	return func(m *MockDevice) {
		m.width, m.height = w, h
	}
}

// WithFrameRate paces Read to fps frames per second. Zero disables pacing.
func WithFrameRate(fps float64) MockDeviceOption {
	return func(m *MockDevice) {
		m.fps = fps
		m.pace = fps > 0
	}
}

// WithChannels sets the bytes per pixel of generated frames (1, 3 or 4).
func WithChannels(c int) MockDeviceOption {
	return func(m *MockDevice) {
		m.channels = c
	}
}

// NewMockDevice creates a mock camera producing 640x480 BGR frames at 30 FPS.
func NewMockDevice(logger *slog.Logger, opts ...MockDeviceOption) *MockDevice {
	if logger == nil {
		logger = slog.Default()
	}

	m := &MockDevice{
		logger:        logger,
		width:         640,
		height:        480,
		fps:           30,
		channels:      3,
		pace:          true,
		readFailAfter: -1,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Open implements Device.
func (m *MockDevice) Open(index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.openAttempts = append(m.openAttempts, time.Now())

	if m.detached {
		return ErrDeviceClosed
	}
	if m.openFailures > 0 {
		m.openFailures--
		return ErrDeviceClosed
	}

	m.open = true
	m.opens++
	m.logger.Debug("mock camera opened", "index", index, "width", m.width, "height", m.height)
	return nil
}

// IsOpen implements Device.
func (m *MockDevice) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

// Read implements Device.
func (m *MockDevice) Read() (Frame, error) {
	m.mu.Lock()
	if !m.open {
		m.mu.Unlock()
		return Frame{}, ErrDeviceClosed
	}
	if m.detached || (m.readFailAfter >= 0 && m.reads >= m.readFailAfter && m.readFails > 0) {
		if !m.detached {
			m.readFails--
		}
		m.readErrors++
		m.mu.Unlock()
		return Frame{}, ErrReadFailed
	}

	var wait time.Duration
	if m.pace && m.fps > 0 && !m.lastRead.IsZero() {
		wait = time.Until(m.lastRead.Add(time.Duration(float64(time.Second) / m.fps)))
	}
	m.mu.Unlock()

	// Sleep outside the lock so stats stay readable.
	if wait > 0 {
		time.Sleep(wait)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastRead = time.Now()
	m.seq++
	m.reads++
	return m.generate(), nil
}

// generate draws a diagonal gradient shifted by the frame number, so
// pixel (0,0) always holds byte(seq).
func (m *MockDevice) generate() Frame {
	stride := m.width * m.channels
	data := make([]byte, stride*m.height)
	for y := 0; y < m.height; y++ {
		row := data[y*stride:]
		for x := 0; x < m.width; x++ {
			v := byte(x + y + int(m.seq))
			for c := 0; c < m.channels; c++ {
				row[x*m.channels+c] = v
			}
		}
	}
	return Frame{
		Data:     data,
		Width:    m.width,
		Height:   m.height,
		Channels: m.channels,
	}
}

// Release implements Device.
func (m *MockDevice) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.releases++
	m.open = false
	return nil
}

// Get implements Device.
func (m *MockDevice) Get(prop Property) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch prop {
	case PropFrameWidth:
		return float64(m.width)
	case PropFrameHeight:
		return float64(m.height)
	case PropFPS:
		return m.fps
	}
	return 0
}

// Set implements Device. Sizes clamp to the supported mode if one is set.
func (m *MockDevice) Set(prop Property, value float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.open {
		return false
	}
	if (prop == PropFrameWidth || prop == PropFrameHeight) && (value <= 0 || value > MaxDimension) {
		return false
	}

	switch prop {
	case PropFrameWidth:
		m.width = int(value)
		if m.mode.IsSet() {
			m.width = m.mode.Width
		}
	case PropFrameHeight:
		m.height = int(value)
		if m.mode.IsSet() {
			m.height = m.mode.Height
		}
	case PropFPS:
		m.fps = value
	default:
		return false
	}
	return true
}

// Name returns "mock".
func (m *MockDevice) Name() string {
	return "mock"
}

// Detach simulates unplugging the camera: reads and opens fail until Attach.
func (m *MockDevice) Detach() {
	m.mu.Lock()
	m.detached = true
	m.mu.Unlock()
}

// Attach reverses Detach.
func (m *MockDevice) Attach() {
	m.mu.Lock()
	m.detached = false
	m.mu.Unlock()
}

// OpenAttempts returns the time of every Open call.
func (m *MockDevice) OpenAttempts() []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]time.Time, len(m.openAttempts))
	copy(out, m.openAttempts)
	return out
}

// Opens returns the number of successful Open calls.
func (m *MockDevice) Opens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens
}

// Releases returns the number of Release calls.
func (m *MockDevice) Releases() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.releases
}

// Reads returns the number of successful reads.
func (m *MockDevice) Reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

// ReadErrors returns the number of failed reads.
func (m *MockDevice) ReadErrors() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readErrors
}

// Ensure MockDevice implements Device.
var _ Device = (*MockDevice)(nil)
