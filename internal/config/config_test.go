package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/teslashibe/go-framegrab/pkg/capture"
)

const sampleTOML = `
backend = "mock"

[camera]
device_index = 2
buffer_size = 4
reconnect_backoff = "250ms"
capture_width = 1280
capture_height = 720
inference_width = 224
inference_height = 224
target_fps = 15.0
fps_window = 60

[preview]
addr = ":9000"
quality = 70

[log]
level = "debug"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "framegrab.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_File(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleTOML))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Backend != BackendMock {
		t.Errorf("Backend: got %q", cfg.Backend)
	}
	if cfg.Preview.Addr != ":9000" || cfg.Preview.Quality != 70 {
		t.Errorf("Preview: got %+v", cfg.Preview)
	}
	// Keys absent from the file keep their defaults.
	if !cfg.Preview.Enabled || cfg.Preview.FPS != 10 {
		t.Errorf("Preview defaults lost: %+v", cfg.Preview)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "text" {
		t.Errorf("Log: got %+v", cfg.Log)
	}

	want := capture.Config{
		DeviceIndex:         2,
		BufferSize:          4,
		ReconnectBackoff:    250 * time.Millisecond,
		CaptureResolution:   capture.Resolution{Width: 1280, Height: 720},
		InferenceResolution: capture.Resolution{Width: 224, Height: 224},
		TargetFPS:           15,
		FPSWindow:           60,
	}
	if got := cfg.CaptureConfig(); got != want {
		t.Errorf("CaptureConfig:\n got  %+v\n want %+v", got, want)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestLoad_MissingFiles(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("Expected error for missing explicit path")
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Missing default file should not fail: %v", err)
	}
	if cfg != Default() {
		t.Errorf("Expected defaults, got %+v", cfg)
	}
}

func TestLoad_InvalidFile(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "syntax", body: "backend = "},
		{name: "bad duration", body: "[camera]\nreconnect_backoff = \"soon\""},
		{name: "wrong type", body: "[camera]\ndevice_index = \"zero\""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.body)); err == nil {
				t.Error("Expected parse error")
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("CAMERA_INDEX", "3")
	t.Setenv("CAMERA_BACKEND", "mock")
	t.Setenv("PREVIEW_ADDR", "127.0.0.1:7000")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("LOG_FORMAT", "json")

	cfg := Default()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv failed: %v", err)
	}

	if cfg.Camera.DeviceIndex != 3 {
		t.Errorf("DeviceIndex: got %d", cfg.Camera.DeviceIndex)
	}
	if cfg.Backend != BackendMock {
		t.Errorf("Backend: got %q", cfg.Backend)
	}
	if cfg.Preview.Addr != "127.0.0.1:7000" {
		t.Errorf("Addr: got %q", cfg.Preview.Addr)
	}
	if cfg.Log.Level != "warn" || cfg.Log.Format != "json" {
		t.Errorf("Log: got %+v", cfg.Log)
	}
}

func TestApplyEnv_BadIndex(t *testing.T) {
	t.Setenv("CAMERA_INDEX", "first")

	cfg := Default()
	if err := cfg.ApplyEnv(); err == nil {
		t.Error("Expected error for non-numeric CAMERA_INDEX")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*File)
		wantErr bool
	}{
		{name: "defaults", mutate: func(f *File) {}, wantErr: false},
		{name: "unknown backend", mutate: func(f *File) { f.Backend = "v4l2" }, wantErr: true},
		{name: "quality too high", mutate: func(f *File) { f.Preview.Quality = 101 }, wantErr: true},
		{name: "negative preview fps", mutate: func(f *File) { f.Preview.FPS = -1 }, wantErr: true},
		{name: "negative device", mutate: func(f *File) { f.Camera.DeviceIndex = -1 }, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate: err=%v, wantErr=%v", err, tc.wantErr)
			}
		})
	}
}

func TestDuration_Text(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("1.5s")); err != nil {
		t.Fatalf("UnmarshalText failed: %v", err)
	}
	if time.Duration(d) != 1500*time.Millisecond {
		t.Errorf("Got %v", time.Duration(d))
	}

	text, _ := d.MarshalText()
	if string(text) != "1.5s" {
		t.Errorf("MarshalText: got %q", text)
	}
}
