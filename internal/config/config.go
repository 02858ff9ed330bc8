// Package config loads go-framegrab settings from a TOML file and the
// environment.
//
// Precedence, lowest first: Default(), the TOML file, environment
// variables, then command-line flags applied by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/teslashibe/go-framegrab/pkg/capture"
)

// DefaultPath is the config file looked up when none is given.
const DefaultPath = "framegrab.toml"

// Backend names a camera implementation.
type Backend string

const (
	// BackendOpenCV reads a real camera through GoCV.
	BackendOpenCV Backend = "opencv"
	// BackendMock generates synthetic frames.
	BackendMock Backend = "mock"
)

// Duration is a time.Duration written as a string ("500ms", "2s") in TOML.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Camera mirrors capture.Config.
type Camera struct {
	DeviceIndex      int      `toml:"device_index"`
	BufferSize       int      `toml:"buffer_size"`
	ReconnectBackoff Duration `toml:"reconnect_backoff"`
	CaptureWidth     int      `toml:"capture_width"`
	CaptureHeight    int      `toml:"capture_height"`
	InferenceWidth   int      `toml:"inference_width"`
	InferenceHeight  int      `toml:"inference_height"`
	TargetFPS        float64  `toml:"target_fps"`
	FPSWindow        int      `toml:"fps_window"`
}

// Preview configures the HTTP preview server.
type Preview struct {
	Enabled bool    `toml:"enabled"`
	Addr    string  `toml:"addr"`
	FPS     float64 `toml:"fps"`     // websocket frame push rate
	Quality int     `toml:"quality"` // JPEG quality 1-100
	CORS    bool    `toml:"cors"`
}

// Log configures internal/log.
type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// File is the full configuration.
type File struct {
	Backend Backend `toml:"backend"`
	Camera  Camera  `toml:"camera"`
	Preview Preview `toml:"preview"`
	Log     Log     `toml:"log"`
}

// Default returns the built-in configuration.
func Default() File {
	cc := capture.DefaultConfig()
	return File{
		Backend: BackendOpenCV,
		Camera: Camera{
			DeviceIndex:      cc.DeviceIndex,
			BufferSize:       cc.BufferSize,
			ReconnectBackoff: Duration(cc.ReconnectBackoff),
			FPSWindow:        cc.FPSWindow,
		},
		Preview: Preview{
			Enabled: true,
			Addr:    ":8181",
			FPS:     10,
			Quality: 80,
			CORS:    true,
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path over Default(). A missing file at DefaultPath is not
// an error; a missing explicit path is.
func Load(path string) (File, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides settings from environment variables:
// CAMERA_INDEX, CAMERA_BACKEND, PREVIEW_ADDR, LOG_LEVEL, LOG_FORMAT.
func (f *File) ApplyEnv() error {
	if v := os.Getenv("CAMERA_INDEX"); v != "" {
		idx, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CAMERA_INDEX: %w", err)
		}
		f.Camera.DeviceIndex = idx
	}
	if v := os.Getenv("CAMERA_BACKEND"); v != "" {
		f.Backend = Backend(v)
	}
	if v := os.Getenv("PREVIEW_ADDR"); v != "" {
		f.Preview.Addr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		f.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		f.Log.Format = v
	}
	return nil
}

// Validate checks the settings that capture.Config does not cover.
func (f *File) Validate() error {
	switch f.Backend {
	case BackendOpenCV, BackendMock:
	default:
		return fmt.Errorf("backend must be %q or %q, got %q", BackendOpenCV, BackendMock, f.Backend)
	}
	if f.Preview.Quality < 1 || f.Preview.Quality > 100 {
		return fmt.Errorf("preview quality must be between 1 and 100, got %d", f.Preview.Quality)
	}
	if f.Preview.FPS < 0 {
		return fmt.Errorf("preview fps must not be negative, got %v", f.Preview.FPS)
	}
	cc := f.CaptureConfig()
	return cc.Validate()
}

// CaptureConfig converts the camera section to a capture.Config.
func (f *File) CaptureConfig() capture.Config {
	c := f.Camera
	return capture.Config{
		DeviceIndex:         c.DeviceIndex,
		BufferSize:          c.BufferSize,
		ReconnectBackoff:    time.Duration(c.ReconnectBackoff),
		CaptureResolution:   capture.Resolution{Width: c.CaptureWidth, Height: c.CaptureHeight},
		InferenceResolution: capture.Resolution{Width: c.InferenceWidth, Height: c.InferenceHeight},
		TargetFPS:           c.TargetFPS,
		FPSWindow:           c.FPSWindow,
	}
}
