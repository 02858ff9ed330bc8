// Package cvdevice implements capture.Device and capture.Resizer on top of
// OpenCV through GoCV.
package cvdevice

import (
	"fmt"
	"image"

	"github.com/teslashibe/go-framegrab/pkg/capture"
	"gocv.io/x/gocv"
)

// Device is an OpenCV VideoCapture handle.
// Like the FrameSource that owns it, it is driven from one goroutine.
type Device struct {
	webcam *gocv.VideoCapture
	mat    gocv.Mat // reused between reads
}

// New returns a closed device; call Open to attach a camera.
func New() *Device {
	return &Device{mat: gocv.NewMat()}
}

// Open implements capture.Device.
func (d *Device) Open(index int) error {
	if d.webcam != nil {
		d.webcam.Close()
		d.webcam = nil
	}

	webcam, err := gocv.OpenVideoCapture(index)
	if err != nil {
		return fmt.Errorf("open camera %d: %w", index, err)
	}
	if !webcam.IsOpened() {
		webcam.Close()
		return fmt.Errorf("open camera %d: %w", index, capture.ErrDeviceClosed)
	}

	d.webcam = webcam
	return nil
}

// IsOpen implements capture.Device.
func (d *Device) IsOpen() bool {
	return d.webcam != nil && d.webcam.IsOpened()
}

// Read implements capture.Device. The pixels are copied out of the
// reusable Mat, so the returned frame owns its data.
func (d *Device) Read() (capture.Frame, error) {
	if d.webcam == nil {
		return capture.Frame{}, capture.ErrDeviceClosed
	}
	if ok := d.webcam.Read(&d.mat); !ok || d.mat.Empty() {
		return capture.Frame{}, capture.ErrReadFailed
	}
	if _, err := matType(d.mat.Channels()); err != nil {
		return capture.Frame{}, fmt.Errorf("%w: %v", capture.ErrReadFailed, err)
	}
	return frameFromMat(d.mat), nil
}

// Release implements capture.Device.
func (d *Device) Release() error {
	if d.webcam == nil {
		return nil
	}
	err := d.webcam.Close()
	d.webcam = nil
	return err
}

// Close releases the camera and the reusable Mat. The device cannot be
// reopened afterwards.
func (d *Device) Close() error {
	err := d.Release()
	d.mat.Close()
	return err
}

// Get implements capture.Device.
func (d *Device) Get(prop capture.Property) float64 {
	if d.webcam == nil {
		return 0
	}
	cvProp, ok := properties[prop]
	if !ok {
		return 0
	}
	return d.webcam.Get(cvProp)
}

// Set implements capture.Device. OpenCV does not report whether the
// driver honoured the request; read it back with Get.
func (d *Device) Set(prop capture.Property, value float64) bool {
	if d.webcam == nil {
		return false
	}
	cvProp, ok := properties[prop]
	if !ok {
		return false
	}
	d.webcam.Set(cvProp, value)
	return true
}

// Name returns "opencv".
func (d *Device) Name() string {
	return "opencv"
}

var properties = map[capture.Property]gocv.VideoCaptureProperties{
	capture.PropFrameWidth:  gocv.VideoCaptureFrameWidth,
	capture.PropFrameHeight: gocv.VideoCaptureFrameHeight,
	capture.PropFPS:         gocv.VideoCaptureFPS,
}

// Resizer scales frames with cv::resize and INTER_AREA.
type Resizer struct{}

// Resize implements capture.Resizer.
func (Resizer) Resize(f capture.Frame, size capture.Resolution) (capture.Frame, error) {
	if !size.IsSet() {
		return capture.Frame{}, capture.ErrInvalidResolution
	}
	if f.Empty() {
		return capture.Frame{}, capture.ErrEmptyFrame
	}

	mt, err := matType(f.Channels)
	if err != nil {
		return capture.Frame{}, err
	}

	src, err := gocv.NewMatFromBytes(f.Height, f.Width, mt, f.Data)
	if err != nil {
		return capture.Frame{}, fmt.Errorf("wrap frame: %w", err)
	}
	defer src.Close()

	dst := gocv.NewMat()
	defer dst.Close()

	gocv.Resize(src, &dst, image.Pt(size.Width, size.Height), 0, 0, gocv.InterpolationArea)
	if dst.Empty() {
		return capture.Frame{}, fmt.Errorf("resize to %v produced no pixels", size)
	}

	out := frameFromMat(dst)
	out.Timestamp = f.Timestamp
	out.Seq = f.Seq
	return out, nil
}

func matType(channels int) (gocv.MatType, error) {
	switch channels {
	case 1:
		return gocv.MatTypeCV8UC1, nil
	case 3:
		return gocv.MatTypeCV8UC3, nil
	case 4:
		return gocv.MatTypeCV8UC4, nil
	default:
		return 0, fmt.Errorf("unsupported channel count %d", channels)
	}
}

func frameFromMat(m gocv.Mat) capture.Frame {
	return capture.Frame{
		Data:     m.ToBytes(),
		Width:    m.Cols(),
		Height:   m.Rows(),
		Channels: m.Channels(),
	}
}

// Ensure Device and Resizer implement the capture interfaces.
var (
	_ capture.Device  = (*Device)(nil)
	_ capture.Resizer = Resizer{}
)
