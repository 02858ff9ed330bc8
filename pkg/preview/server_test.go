package preview

import (
	"bytes"
	"context"
	"encoding/json"
	"image/jpeg"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/teslashibe/go-framegrab/pkg/capture"
)

type fakeSource struct {
	mu        sync.Mutex
	frame     capture.Frame
	hasFrame  bool
	inference capture.Resolution
	capture   capture.Resolution
	native    capture.Resolution
}

func (f *fakeSource) GetFrame() (capture.Frame, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frame.Clone(), f.hasFrame
}

func (f *fakeSource) GetFrameForInference() (capture.Frame, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.hasFrame {
		return capture.Frame{}, false
	}
	if !f.inference.IsSet() {
		return f.frame.Clone(), true
	}
	out, err := capture.BoxResizer{}.Resize(f.frame, f.inference)
	return out, err == nil
}

func (f *fakeSource) Stats() capture.Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return capture.Stats{ID: "fake", Backend: "fake", NativeResolution: f.native, Running: true}
}

func (f *fakeSource) CaptureResolution() capture.Resolution {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.capture
}

func (f *fakeSource) SetCaptureResolution(r capture.Resolution) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.capture = r
}

func (f *fakeSource) InferenceResolution() capture.Resolution {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inference
}

func (f *fakeSource) SetInferenceResolution(r capture.Resolution) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inference = r
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testFrame(w, h int) capture.Frame {
	data := make([]byte, w*h*3)
	for i := range data {
		data[i] = byte(i)
	}
	return capture.Frame{Data: data, Width: w, Height: h, Channels: 3, Seq: 7, Timestamp: time.Now()}
}

func TestHealthz(t *testing.T) {
	s := NewServer(DefaultConfig(), &fakeSource{}, quietLogger())

	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestStatus(t *testing.T) {
	src := &fakeSource{
		capture:   capture.Resolution{Width: 1280, Height: 720},
		inference: capture.Resolution{Width: 320, Height: 240},
		native:    capture.Resolution{Width: 1280, Height: 720},
	}
	s := NewServer(DefaultConfig(), src, quietLogger())

	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var got map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["id"] != "fake" {
		t.Errorf("id = %v, want fake", got["id"])
	}
	for _, key := range []string{"capture_resolution", "inference_resolution", "native_resolution", "viewers", "fps"} {
		if _, ok := got[key]; !ok {
			t.Errorf("status missing %q", key)
		}
	}
}

func TestFrame_NoSignal(t *testing.T) {
	s := NewServer(DefaultConfig(), &fakeSource{}, quietLogger())

	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/api/frame.jpg", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
	img, err := jpeg.Decode(resp.Body)
	if err != nil {
		t.Fatalf("placeholder is not a jpeg: %v", err)
	}
	if b := img.Bounds(); b.Dx() != placeholderWidth || b.Dy() != placeholderHeight {
		t.Errorf("placeholder = %dx%d, want %dx%d", b.Dx(), b.Dy(), placeholderWidth, placeholderHeight)
	}
}

func TestFrame_Latest(t *testing.T) {
	src := &fakeSource{frame: testFrame(64, 48), hasFrame: true}
	s := NewServer(DefaultConfig(), src, quietLogger())

	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/api/frame.jpg", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if got := resp.Header.Get("X-Frame-Seq"); got != "7" {
		t.Errorf("X-Frame-Seq = %q, want 7", got)
	}
	img, err := jpeg.Decode(resp.Body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 64 || b.Dy() != 48 {
		t.Errorf("frame = %dx%d, want 64x48", b.Dx(), b.Dy())
	}
}

func TestInferenceFrame_Resized(t *testing.T) {
	src := &fakeSource{
		frame:     testFrame(64, 48),
		hasFrame:  true,
		inference: capture.Resolution{Width: 16, Height: 12},
	}
	s := NewServer(DefaultConfig(), src, quietLogger())

	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/api/inference.jpg", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	img, err := jpeg.Decode(resp.Body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 16 || b.Dy() != 12 {
		t.Errorf("inference frame = %dx%d, want 16x12", b.Dx(), b.Dy())
	}
}

func TestSetResolution(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
	}{
		{"capture", "/api/resolution/capture", `{"width":1280,"height":720}`, http.StatusOK},
		{"inference", "/api/resolution/inference", `{"width":320,"height":240}`, http.StatusOK},
		{"clear", "/api/resolution/inference", `{"width":0,"height":0}`, http.StatusOK},
		{"negative", "/api/resolution/capture", `{"width":-1,"height":720}`, http.StatusBadRequest},
		{"oversized inference", "/api/resolution/inference", `{"width":200000,"height":200000}`, http.StatusBadRequest},
		{"oversized capture", "/api/resolution/capture", `{"width":8193,"height":720}`, http.StatusBadRequest},
		{"largest allowed", "/api/resolution/capture", `{"width":8192,"height":8192}`, http.StatusOK},
		{"malformed", "/api/resolution/capture", `{"width":`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeSource{inference: capture.Resolution{Width: 8, Height: 8}}
			s := NewServer(DefaultConfig(), src, quietLogger())

			req := httptest.NewRequest(http.MethodPut, tt.path, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")

			resp, err := s.App().Test(req)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestSetResolution_Applied(t *testing.T) {
	src := &fakeSource{}
	s := NewServer(DefaultConfig(), src, quietLogger())

	req := httptest.NewRequest(http.MethodPut, "/api/resolution/capture", strings.NewReader(`{"width":1280,"height":720}`))
	req.Header.Set("Content-Type", "application/json")
	if _, err := s.App().Test(req); err != nil {
		t.Fatalf("request failed: %v", err)
	}

	if got := src.CaptureResolution(); got != (capture.Resolution{Width: 1280, Height: 720}) {
		t.Errorf("capture resolution = %v, want 1280x720", got)
	}
}

func TestSetResolution_OversizedLeavesSourceUnchanged(t *testing.T) {
	src := &fakeSource{
		frame:     testFrame(64, 48),
		hasFrame:  true,
		inference: capture.Resolution{Width: 16, Height: 12},
	}
	s := NewServer(DefaultConfig(), src, quietLogger())

	req := httptest.NewRequest(http.MethodPut, "/api/resolution/inference", strings.NewReader(`{"width":200000,"height":200000}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.App().Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}

	if got := src.InferenceResolution(); got != (capture.Resolution{Width: 16, Height: 12}) {
		t.Errorf("inference resolution = %v, want unchanged 16x12", got)
	}

	resp, err = s.App().Test(httptest.NewRequest(http.MethodGet, "/api/inference.jpg", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("inference frame status = %d, want 200", resp.StatusCode)
	}
}

func TestWebSocketRequiresUpgrade(t *testing.T) {
	s := NewServer(DefaultConfig(), &fakeSource{}, quietLogger())

	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/ws/camera", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusUpgradeRequired {
		t.Errorf("status = %d, want 426", resp.StatusCode)
	}
}

func TestEncodeJPEG(t *testing.T) {
	data, err := encodeJPEG(testFrame(8, 8).Image(), 90)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !bytes.HasPrefix(data, []byte{0xff, 0xd8}) {
		t.Error("output does not start with a JPEG SOI marker")
	}
}

func TestWebSocketFeeds(t *testing.T) {
	dev := capture.NewMockDevice(quietLogger(), capture.WithResolution(32, 24), capture.WithFrameRate(200))
	cfg := capture.DefaultConfig()
	cfg.ReconnectBackoff = 20 * time.Millisecond

	src, err := capture.New(cfg, dev, capture.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("capture.New: %v", err)
	}
	src.Start()
	defer src.Stop()

	pcfg := DefaultConfig()
	pcfg.Addr = ":18181"
	pcfg.FPS = 50
	s := NewServer(pcfg, src, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	// Give the listener a moment to come up.
	time.Sleep(100 * time.Millisecond)

	t.Run("camera", func(t *testing.T) {
		conn, _, err := websocket.DefaultDialer.Dial("ws://localhost:18181/ws/camera", nil)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		defer conn.Close()

		conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		kind, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if kind != websocket.BinaryMessage {
			t.Errorf("message type = %d, want binary", kind)
		}
		img, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if b := img.Bounds(); b.Dx() != 32 || b.Dy() != 24 {
			t.Errorf("frame = %dx%d, want 32x24", b.Dx(), b.Dy())
		}
	})

	t.Run("status", func(t *testing.T) {
		conn, _, err := websocket.DefaultDialer.Dial("ws://localhost:18181/ws/status", nil)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		defer conn.Close()

		conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		var status Status
		if err := conn.ReadJSON(&status); err != nil {
			t.Fatalf("read: %v", err)
		}
		if status.ID != src.ID() {
			t.Errorf("status id = %q, want %q", status.ID, src.ID())
		}
		if !status.Running {
			t.Error("status should report running")
		}
	})
}
