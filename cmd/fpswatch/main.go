// fpswatch - prints the capture rate of a running framegrab instance
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/teslashibe/go-framegrab/internal/httpc"
	"github.com/teslashibe/go-framegrab/pkg/capture"
	"github.com/teslashibe/go-framegrab/pkg/preview"
)

func main() {
	addr := flag.String("addr", "localhost:8181", "framegrab preview address (host:port)")
	capRes := flag.String("capture", "", "Set capture resolution before watching, WxH or preset, e.g. 720p")
	inferRes := flag.String("inference", "", "Set inference resolution before watching, WxH or preset, e.g. qvga")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *addr, *capRes, *inferRes); err != nil {
		fmt.Fprintf(os.Stderr, "fpswatch: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, addr, capRes, inferRes string) error {
	base := "http://" + addr

	if err := setResolution(ctx, base+"/api/resolution/capture", capRes); err != nil {
		return err
	}
	if err := setResolution(ctx, base+"/api/resolution/inference", inferRes); err != nil {
		return err
	}

	var status preview.Status
	if err := httpc.GetJSON(ctx, base+"/api/status", &status); err != nil {
		return fmt.Errorf("fetch status: %w", err)
	}
	fmt.Printf("source %s (%s) native=%v capture=%v inference=%v\n",
		status.ID, status.Backend, status.NativeResolution,
		status.CaptureResolution, status.InferenceResolution)

	u := url.URL{Scheme: "ws", Host: addr, Path: "/ws/status"}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("connect %s: %w", u.String(), err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read status: %w", err)
		}

		var st preview.Status
		if err := json.Unmarshal(data, &st); err != nil {
			return fmt.Errorf("decode status: %w", err)
		}
		fmt.Println(formatStatus(st))
	}
}

func setResolution(ctx context.Context, endpoint, value string) error {
	if value == "" {
		return nil
	}
	r, err := capture.ParseResolution(value)
	if err != nil {
		return err
	}
	req := preview.ResolutionRequest{Width: r.Width, Height: r.Height}
	if err := httpc.PutJSON(ctx, endpoint, req, nil); err != nil {
		return fmt.Errorf("set resolution: %w", err)
	}
	return nil
}

func formatStatus(st preview.Status) string {
	state := "open"
	if !st.DeviceOpen {
		state = "closed"
	}
	age := "-"
	if !st.LastFrameAt.IsZero() {
		age = time.Since(st.LastFrameAt).Round(time.Millisecond).String()
	}
	return fmt.Sprintf("%s  fps=%5.1f  frames=%d  device=%s  native=%v  reconnects=%d  last=%s  viewers=%d",
		time.Now().Format(time.TimeOnly), st.FPS, st.FramesCaptured, state,
		nativeOrUnknown(st.NativeResolution), st.Reconnects, age, st.Viewers)
}

func nativeOrUnknown(r capture.Resolution) string {
	if !r.IsSet() {
		return "unknown"
	}
	return r.String()
}
