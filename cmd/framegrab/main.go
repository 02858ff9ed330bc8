// framegrab - background camera capture with a live preview server
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/teslashibe/go-framegrab/internal/config"
	"github.com/teslashibe/go-framegrab/internal/log"
	"github.com/teslashibe/go-framegrab/pkg/capture"
	"github.com/teslashibe/go-framegrab/pkg/capture/cvdevice"
	"github.com/teslashibe/go-framegrab/pkg/preview"
)

const statusInterval = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "framegrab: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := log.Init(log.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})

	device, opts := buildDevice(cfg)
	opts = append(opts, capture.WithLogger(log.Component("capture")))

	source, err := capture.New(cfg.CaptureConfig(), device, opts...)
	if err != nil {
		return fmt.Errorf("create frame source: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	source.Start()
	defer func() {
		source.Stop()
		if c, ok := device.(interface{ Close() error }); ok {
			c.Close()
		}
		logger.Info("framegrab stopped")
	}()

	logger.Info("framegrab started",
		"backend", cfg.Backend,
		"device", cfg.Camera.DeviceIndex,
		"preview", cfg.Preview.Enabled)

	errCh := make(chan error, 1)
	if cfg.Preview.Enabled {
		srv := preview.NewServer(preview.Config{
			Addr:    cfg.Preview.Addr,
			FPS:     cfg.Preview.FPS,
			Quality: cfg.Preview.Quality,
			CORS:    cfg.Preview.CORS,
		}, source, log.Component("preview"))

		go func() {
			errCh <- srv.Run(ctx)
		}()
	}

	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if cfg.Preview.Enabled {
				if err := <-errCh; err != nil {
					logger.Warn("preview shutdown", "error", err)
				}
			}
			return nil
		case err := <-errCh:
			return fmt.Errorf("preview server: %w", err)
		case <-ticker.C:
			st := source.Stats()
			logger.Info("capture status",
				"fps", fmt.Sprintf("%.1f", st.FPS),
				"frames", st.FramesCaptured,
				"device_open", st.DeviceOpen,
				"reconnects", st.Reconnects,
				"read_failures", st.ReadFailures,
				"native", st.NativeResolution)
		}
	}
}

// loadConfig layers defaults, the TOML file, environment and flags.
func loadConfig() (config.File, error) {
	path := flag.String("config", "", "Path to TOML config (default: ./"+config.DefaultPath+" if present)")
	backend := flag.String("backend", "", "Camera backend: opencv or mock")
	device := flag.Int("device", -1, "Camera device index")
	res := flag.String("resolution", "", "Requested capture mode: WxH or a preset ("+strings.Join(capture.PresetNames(), ", ")+")")
	infer := flag.String("inference", "", "Inference resolution: WxH or a preset")
	addr := flag.String("addr", "", "Preview listen address")
	noPreview := flag.Bool("no-preview", false, "Disable the preview server")
	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		return cfg, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}

	if *backend != "" {
		cfg.Backend = config.Backend(*backend)
	}
	if *device >= 0 {
		cfg.Camera.DeviceIndex = *device
	}
	if *res != "" {
		r, err := capture.ParseResolution(*res)
		if err != nil {
			return cfg, fmt.Errorf("-resolution: %w", err)
		}
		cfg.Camera.CaptureWidth, cfg.Camera.CaptureHeight = r.Width, r.Height
	}
	if *infer != "" {
		r, err := capture.ParseResolution(*infer)
		if err != nil {
			return cfg, fmt.Errorf("-inference: %w", err)
		}
		cfg.Camera.InferenceWidth, cfg.Camera.InferenceHeight = r.Width, r.Height
	}
	if *addr != "" {
		cfg.Preview.Addr = *addr
	}
	if *noPreview {
		cfg.Preview.Enabled = false
	}
	if *debug {
		cfg.Log.Level = "debug"
	}

	return cfg, cfg.Validate()
}

func buildDevice(cfg config.File) (capture.Device, []capture.Option) {
	if cfg.Backend == config.BackendMock {
		return capture.NewMockDevice(log.Component("mock")), nil
	}
	return cvdevice.New(), []capture.Option{capture.WithResizer(cvdevice.Resizer{})}
}
