package preview

import (
	"image"
	"time"

	"github.com/fogleman/gg"
)

const (
	placeholderWidth  = 640
	placeholderHeight = 480
)

// placeholder draws the "no signal" card shown before the first frame.
func placeholder(width, height int, text string, now time.Time) image.Image {
	if width <= 0 || height <= 0 {
		width, height = placeholderWidth, placeholderHeight
	}

	dc := gg.NewContext(width, height)
	dc.SetRGB(0.08, 0.08, 0.1)
	dc.Clear()

	cx, cy := float64(width)/2, float64(height)/2
	scale := float64(height) / 120
	if scale < 1 {
		scale = 1
	}

	// The built-in font is 13px tall; scale it rather than loading a TTF.
	dc.Push()
	dc.ScaleAbout(scale, scale, cx, cy)
	dc.SetRGB(0.9, 0.9, 0.9)
	dc.DrawStringAnchored(text, cx, cy, 0.5, 0.5)
	dc.Pop()

	dc.SetRGB(0.6, 0.6, 0.6)
	dc.DrawStringAnchored(now.Format(time.DateTime), float64(width)-10, float64(height)-10, 1, 0)

	return dc.Image()
}
