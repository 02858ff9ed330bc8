package capture

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// FrameSource reads a camera on a background goroutine and serves the
// freshest frames to concurrent readers.
//
// The device handle belongs to the worker goroutine while it runs.
// Settings that need the device (capture resolution) are posted to the
// worker, which applies them between reads.
type FrameSource struct {
	id      string
	backend string // device.Name(), cached so readers never touch the device
	device  Device
	resizer Resizer
	logger  *slog.Logger

	cfgMu sync.RWMutex
	cfg   Config

	// Frame buffer
	bufMu    sync.Mutex
	frames   *ring[Frame]
	seq      uint64
	hasFrame atomic.Bool

	// Capture timestamps for FPS
	tsMu   sync.Mutex
	stamps *ring[time.Time]

	nativeMu sync.RWMutex
	native   Resolution

	reconfigure chan struct{}

	// Worker lifecycle
	mu      sync.Mutex
	running bool
	active  atomic.Bool // mirrors running for lock-free readers
	stop    chan struct{}
	done    chan struct{}

	// Stats
	framesCaptured atomic.Uint64
	openFailures   atomic.Uint64
	readFailures   atomic.Uint64
	reconnects     atomic.Uint64
	everOpened     atomic.Bool
	deviceOpen     atomic.Bool
	lastFrameAt    atomic.Int64
}

// Option configures a FrameSource.
type Option func(*FrameSource)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *FrameSource) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithResizer sets the resizer used by GetFrameForInference.
// Defaults to BoxResizer.
func WithResizer(r Resizer) Option {
	return func(s *FrameSource) {
		if r != nil {
			s.resizer = r
		}
	}
}

// New creates a FrameSource and tries to open the device once.
// A missing camera is not an error: the worker keeps retrying after Start.
func New(cfg Config, device Device, opts ...Option) (*FrameSource, error) {
	if device == nil {
		return nil, ErrNoDevice
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	cfg = cfg.normalized()

	s := &FrameSource{
		id:          uuid.NewString(),
		backend:     device.Name(),
		device:      device,
		resizer:     BoxResizer{},
		logger:      slog.Default(),
		cfg:         cfg,
		frames:      newRing[Frame](cfg.BufferSize),
		stamps:      newRing[time.Time](cfg.FPSWindow),
		reconfigure: make(chan struct{}, 1),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.logger = s.logger.With("source", s.id[:8], "backend", s.backend, "device", cfg.DeviceIndex)

	s.logger.Info("creating frame source",
		"buffer_size", cfg.BufferSize,
		"fps_window", cfg.FPSWindow,
		"backoff_ms", cfg.ReconnectBackoff.Milliseconds(),
		"capture", cfg.CaptureResolution,
		"inference", cfg.InferenceResolution,
		"target_fps", cfg.TargetFPS,
	)

	if err := device.Open(cfg.DeviceIndex); err != nil {
		s.openFailures.Add(1)
		s.logger.Warn("camera not available yet, will retry after start", "error", err)
	} else {
		s.everOpened.Store(true)
		s.deviceOpen.Store(true)
		s.applySettings()
	}

	return s, nil
}

// ID returns the unique identifier of this source.
func (s *FrameSource) ID() string {
	return s.id
}

// Start launches the acquisition worker. It returns immediately and is a
// no-op if the worker is already running.
func (s *FrameSource) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}

	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.running = true
	s.active.Store(true)

	go s.run(s.stop, s.done)

	s.logger.Info("frame source started")
}

// Stop halts the worker and waits for it to release the device.
// It is safe to call Stop multiple times, and before Start.
func (s *FrameSource) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		// No worker owns the device; release whatever New opened.
		s.releaseDevice()
		return
	}

	close(s.stop)
	<-s.done

	s.running = false
	s.active.Store(false)
	s.stop = nil
	s.done = nil

	s.logger.Info("frame source stopped", "frames", s.framesCaptured.Load())
}

// Running reports whether the worker is running.
func (s *FrameSource) Running() bool {
	return s.active.Load()
}

// run is the acquisition loop. It exits only when stop is closed.
func (s *FrameSource) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer s.releaseDevice()

	streak := 0 // consecutive open failures
	for {
		select {
		case <-stop:
			return
		default:
		}

		if !s.device.IsOpen() {
			if err := s.device.Open(s.deviceIndex()); err != nil {
				s.openFailures.Add(1)
				streak++
				if streak == 1 {
					s.logger.Warn("camera open failed, retrying", "error", err, "backoff", s.backoff())
				} else {
					s.logger.Debug("camera open failed", "error", err, "attempt", streak)
				}
				if !s.sleep(stop) {
					return
				}
				continue
			}

			if s.everOpened.Swap(true) {
				s.reconnects.Add(1)
			}
			streak = 0
			s.deviceOpen.Store(true)
			s.logger.Info("camera opened")
			s.applySettings()
		}

		select {
		case <-s.reconfigure:
			s.applySettings()
		default:
		}

		frame, err := s.device.Read()
		if err == nil && frame.Empty() {
			err = ErrReadFailed
		}
		if err != nil {
			s.readFailures.Add(1)
			s.logger.Warn("camera read failed, reopening", "error", err, "backoff", s.backoff())
			s.releaseDevice()
			if !s.sleep(stop) {
				return
			}
			continue
		}

		s.publish(frame)
	}
}

// sleep waits one backoff interval. It returns false if stop was closed.
func (s *FrameSource) sleep(stop <-chan struct{}) bool {
	timer := time.NewTimer(s.backoff())
	defer timer.Stop()

	select {
	case <-stop:
		return false
	case <-timer.C:
		return true
	}
}

func (s *FrameSource) publish(frame Frame) {
	now := time.Now()

	s.bufMu.Lock()
	s.seq++
	frame.Seq = s.seq
	frame.Timestamp = now
	s.frames.push(frame)
	s.bufMu.Unlock()

	s.tsMu.Lock()
	s.stamps.push(now)
	s.tsMu.Unlock()

	s.hasFrame.Store(true)
	s.framesCaptured.Add(1)
	s.lastFrameAt.Store(now.UnixNano())
}

// applySettings requests the configured mode, then records what the
// device actually reports, since cameras clamp to supported modes.
func (s *FrameSource) applySettings() {
	cfg := s.Config()

	if cfg.CaptureResolution.Width > 0 {
		s.device.Set(PropFrameWidth, float64(cfg.CaptureResolution.Width))
	}
	if cfg.CaptureResolution.Height > 0 {
		s.device.Set(PropFrameHeight, float64(cfg.CaptureResolution.Height))
	}
	if cfg.TargetFPS > 0 {
		s.device.Set(PropFPS, cfg.TargetFPS)
	}

	native := Resolution{
		Width:  int(s.device.Get(PropFrameWidth)),
		Height: int(s.device.Get(PropFrameHeight)),
	}

	s.nativeMu.Lock()
	s.native = native
	s.nativeMu.Unlock()

	s.logger.Info("camera configured",
		"requested", cfg.CaptureResolution,
		"native", native,
		"fps", s.device.Get(PropFPS),
	)
}

func (s *FrameSource) releaseDevice() {
	s.deviceOpen.Store(false)
	if err := s.device.Release(); err != nil {
		s.logger.Warn("camera release failed", "error", err)
	}
}

// GetFrame returns a copy of the most recent frame.
// ok is false until the first frame has been captured.
func (s *FrameSource) GetFrame() (frame Frame, ok bool) {
	if !s.hasFrame.Load() {
		return Frame{}, false
	}

	s.bufMu.Lock()
	defer s.bufMu.Unlock()

	latest, ok := s.frames.latest()
	if !ok {
		return Frame{}, false
	}
	return latest.Clone(), true
}

// GetFrameForInference returns the most recent frame resized to the
// inference resolution. The frame is returned as captured when no
// inference resolution is set, when the native resolution is not known
// yet, or when the frame already has the target size. Frames buffered
// before a mode change keep their old size and are still resized.
func (s *FrameSource) GetFrameForInference() (Frame, bool) {
	frame, ok := s.GetFrame()
	if !ok {
		return Frame{}, false
	}

	target := s.InferenceResolution()
	native := s.NativeResolution()
	if !target.IsSet() || !native.IsSet() || frame.Size() == target {
		return frame, true
	}

	resized, err := s.resizer.Resize(frame, target)
	if err != nil {
		s.logger.Warn("inference resize failed", "error", err, "from", frame.Size(), "to", target)
		return Frame{}, false
	}
	return resized, true
}

// Buffered returns copies of all buffered frames, oldest first.
func (s *FrameSource) Buffered() []Frame {
	s.bufMu.Lock()
	frames := s.frames.snapshot()
	s.bufMu.Unlock()

	for i := range frames {
		frames[i] = frames[i].Clone()
	}
	return frames
}

// FPS returns the capture rate over the timestamp window, or 0 when
// fewer than two frames have been seen.
func (s *FrameSource) FPS() float64 {
	s.tsMu.Lock()
	defer s.tsMu.Unlock()

	oldest, _ := s.stamps.oldest()
	newest, _ := s.stamps.latest()
	return rollingFPS(s.stamps.len(), oldest, newest)
}

func rollingFPS(count int, oldest, newest time.Time) float64 {
	if count < 2 {
		return 0
	}
	elapsed := newest.Sub(oldest).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(count-1) / elapsed
}

// NativeResolution returns the size the device reported after the last
// configuration. It is zero until the device has been opened.
func (s *FrameSource) NativeResolution() Resolution {
	s.nativeMu.RLock()
	defer s.nativeMu.RUnlock()
	return s.native
}

// Config returns a copy of the current configuration.
func (s *FrameSource) Config() Config {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg
}

// CaptureResolution returns the requested capture size.
func (s *FrameSource) CaptureResolution() Resolution {
	return s.Config().CaptureResolution
}

// SetCaptureResolution changes the requested capture size. A running
// worker applies it before its next read. When the worker is stopped an
// open device is reconfigured immediately; a closed one picks the size
// up on its next open. Sizes rejected by Resolution.Validate are
// ignored.
func (s *FrameSource) SetCaptureResolution(r Resolution) {
	if err := r.Validate(); err != nil {
		s.logger.Warn("ignoring capture resolution", "error", err)
		return
	}

	s.cfgMu.Lock()
	s.cfg.CaptureResolution = r
	s.cfgMu.Unlock()

	s.logger.Debug("capture resolution changed", "resolution", r)

	// mu serializes with Start, so no worker owns the device below.
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		if s.device.IsOpen() {
			s.applySettings()
		}
		return
	}

	select {
	case s.reconfigure <- struct{}{}:
	default:
		// A request is already pending and will read the new value.
	}
}

// InferenceResolution returns the size GetFrameForInference resizes to.
func (s *FrameSource) InferenceResolution() Resolution {
	return s.Config().InferenceResolution
}

// SetInferenceResolution changes the inference size. It never touches
// the device. Sizes rejected by Resolution.Validate are ignored.
func (s *FrameSource) SetInferenceResolution(r Resolution) {
	if err := r.Validate(); err != nil {
		s.logger.Warn("ignoring inference resolution", "error", err)
		return
	}

	s.cfgMu.Lock()
	s.cfg.InferenceResolution = r
	s.cfgMu.Unlock()

	s.logger.Debug("inference resolution changed", "resolution", r)
}

func (s *FrameSource) deviceIndex() int {
	return s.Config().DeviceIndex
}

func (s *FrameSource) backoff() time.Duration {
	return s.Config().ReconnectBackoff
}

// Stats contains statistics about the frame source.
type Stats struct {
	// ID identifies the source instance.
	ID string `json:"id"`

	// Backend is the device backend name.
	Backend string `json:"backend"`

	// FramesCaptured is the total number of frames published.
	FramesCaptured uint64 `json:"frames_captured"`

	// OpenFailures counts failed device opens.
	OpenFailures uint64 `json:"open_failures"`

	// ReadFailures counts failed reads (each triggers a reopen).
	ReadFailures uint64 `json:"read_failures"`

	// Reconnects counts successful reopens after the first open.
	Reconnects uint64 `json:"reconnects"`

	// Running indicates if the worker is running.
	Running bool `json:"running"`

	// DeviceOpen indicates if the camera handle is currently open.
	DeviceOpen bool `json:"device_open"`

	// FPS is the rolling capture rate.
	FPS float64 `json:"fps"`

	// NativeResolution is the size reported by the device.
	NativeResolution Resolution `json:"native_resolution"`

	// LastFrameAt is when the latest frame arrived (zero if none).
	LastFrameAt time.Time `json:"last_frame_at"`
}

// Stats returns a snapshot of source statistics.
func (s *FrameSource) Stats() Stats {
	var last time.Time
	if ns := s.lastFrameAt.Load(); ns != 0 {
		last = time.Unix(0, ns)
	}

	return Stats{
		ID:               s.id,
		Backend:          s.backend,
		FramesCaptured:   s.framesCaptured.Load(),
		OpenFailures:     s.openFailures.Load(),
		ReadFailures:     s.readFailures.Load(),
		Reconnects:       s.reconnects.Load(),
		Running:          s.Running(),
		DeviceOpen:       s.deviceOpen.Load(),
		FPS:              s.FPS(),
		NativeResolution: s.NativeResolution(),
		LastFrameAt:      last,
	}
}
