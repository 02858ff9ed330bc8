package capture

import (
	"image"
	"time"
)

// Frame is one decoded image sample from the camera.
//
// Data holds Height rows of Width pixels, each pixel Channels bytes,
// in OpenCV order: gray (1), BGR (3) or BGRA (4).
// Frames handed out by a FrameSource are private copies; callers may
// modify them freely.
type Frame struct {
	Data     []byte
	Width    int
	Height   int
	Channels int

	// Timestamp is when the worker received the frame.
	Timestamp time.Time

	// Seq numbers frames in capture order, starting at 1.
	Seq uint64
}

// Empty reports whether the frame has no pixels.
func (f Frame) Empty() bool {
	return f.Width <= 0 || f.Height <= 0 || len(f.Data) == 0
}

// Size returns the frame dimensions.
func (f Frame) Size() Resolution {
	return Resolution{Width: f.Width, Height: f.Height}
}

// Stride returns the number of bytes per row.
func (f Frame) Stride() int {
	return f.Width * f.Channels
}

// Clone returns a deep copy of the frame.
func (f Frame) Clone() Frame {
	c := f
	if f.Data != nil {
		c.Data = make([]byte, len(f.Data))
		copy(c.Data, f.Data)
	}
	return c
}

// Image converts the frame to RGBA for display or encoding. Frames with
// other than 1, 3 or 4 channels, or short data, give a blank image.
func (f Frame) Image() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	if f.Empty() || len(f.Data) < f.Stride()*f.Height {
		return img
	}
	switch f.Channels {
	case 1, 3, 4:
	default:
		return img
	}

	for y := 0; y < f.Height; y++ {
		src := f.Data[y*f.Stride():]
		dst := img.Pix[y*img.Stride:]
		for x := 0; x < f.Width; x++ {
			s := src[x*f.Channels:]
			d := dst[x*4 : x*4+4]
			if f.Channels == 1 {
				d[0], d[1], d[2] = s[0], s[0], s[0]
			} else {
				d[0], d[1], d[2] = s[2], s[1], s[0]
			}
			d[3] = 0xff
		}
	}
	return img
}
