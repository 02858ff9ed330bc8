// Package preview serves a live view of a capture.FrameSource over HTTP
// and websockets: status JSON, JPEG snapshots, resolution controls and a
// pushed frame feed for dashboards.
package preview

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"github.com/teslashibe/go-framegrab/pkg/capture"
	"github.com/teslashibe/go-framegrab/pkg/hub"
)

// Source is the part of capture.FrameSource the preview uses.
type Source interface {
	GetFrame() (capture.Frame, bool)
	GetFrameForInference() (capture.Frame, bool)
	Stats() capture.Stats
	CaptureResolution() capture.Resolution
	SetCaptureResolution(capture.Resolution)
	InferenceResolution() capture.Resolution
	SetInferenceResolution(capture.Resolution)
}

// Config holds preview server settings.
type Config struct {
	// Addr is the listen address, e.g. ":8181".
	Addr string

	// FPS is the websocket frame push rate. 0 disables the frame feed.
	FPS float64

	// Quality is the JPEG quality (1-100).
	Quality int

	// CORS allows cross-origin requests from any origin.
	CORS bool
}

// DefaultConfig returns the default preview settings.
func DefaultConfig() Config {
	return Config{
		Addr:    ":8181",
		FPS:     10,
		Quality: 80,
		CORS:    true,
	}
}

// Status is the JSON document served at /api/status and pushed on /ws/status.
type Status struct {
	capture.Stats
	CaptureResolution   capture.Resolution `json:"capture_resolution"`
	InferenceResolution capture.Resolution `json:"inference_resolution"`
	Viewers             int                `json:"viewers"`
}

// Server is the preview HTTP server.
type Server struct {
	app    *fiber.App
	cfg    Config
	source Source
	logger *slog.Logger

	cameraHub *hub.Hub
	statusHub *hub.Hub
}

// NewServer builds the routes. Call Run to serve.
func NewServer(cfg Config, source Source, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Quality < 1 || cfg.Quality > 100 {
		cfg.Quality = DefaultConfig().Quality
	}

	s := &Server{
		cfg:       cfg,
		source:    source,
		logger:    logger,
		cameraHub: hub.New("camera", logger),
		statusHub: hub.New("status", logger),
	}

	app := fiber.New(fiber.Config{
		AppName:               "framegrab preview",
		DisableStartupMessage: true,
	})

	if cfg.CORS {
		app.Use(cors.New())
	}

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/frame.jpg", s.handleFrame)
	api.Get("/inference.jpg", s.handleInferenceFrame)
	api.Put("/resolution/capture", s.handleSetCaptureResolution)
	api.Put("/resolution/inference", s.handleSetInferenceResolution)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/camera", websocket.New(s.cameraHub.Serve))
	app.Get("/ws/status", websocket.New(s.statusHub.Serve))

	s.app = app
	return s
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	go s.cameraHub.Run(ctx)
	go s.statusHub.Run(ctx)
	go s.pushFrames(ctx)
	go s.pushStatus(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listen(s.cfg.Addr)
	}()

	s.logger.Info("preview server listening", "addr", s.cfg.Addr)

	select {
	case <-ctx.Done():
		return s.app.ShutdownWithTimeout(5 * time.Second)
	case err := <-errCh:
		return err
	}
}

// Status assembles the current status document.
func (s *Server) Status() Status {
	return Status{
		Stats:               s.source.Stats(),
		CaptureResolution:   s.source.CaptureResolution(),
		InferenceResolution: s.source.InferenceResolution(),
		Viewers:             s.cameraHub.ClientCount(),
	}
}

// pushFrames sends new frames to camera viewers at the configured rate.
// Encoding is skipped while nobody is watching.
func (s *Server) pushFrames(ctx context.Context) {
	if s.cfg.FPS <= 0 {
		return
	}

	ticker := time.NewTicker(time.Duration(float64(time.Second) / s.cfg.FPS))
	defer ticker.Stop()

	var lastSeq uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.cameraHub.ClientCount() == 0 {
				continue
			}
			frame, ok := s.source.GetFrame()
			if !ok || frame.Seq == lastSeq {
				continue
			}
			data, err := encodeJPEG(frame.Image(), s.cfg.Quality)
			if err != nil {
				s.logger.Warn("preview encode failed", "error", err)
				continue
			}
			lastSeq = frame.Seq
			s.cameraHub.BroadcastBinary(data)
		}
	}
}

// pushStatus sends the status document to status viewers once a second.
func (s *Server) pushStatus(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.statusHub.ClientCount() == 0 {
				continue
			}
			if err := s.statusHub.BroadcastJSON(s.Status()); err != nil {
				s.logger.Warn("status encode failed", "error", err)
			}
		}
	}
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
