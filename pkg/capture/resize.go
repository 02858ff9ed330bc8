package capture

import "math"

// BoxResizer resizes frames in pure Go by averaging the source area each
// output pixel covers. It matches OpenCV's INTER_AREA when shrinking and
// degrades to weighted nearest sampling when enlarging.
type BoxResizer struct{}

type areaTap struct {
	src    int
	weight float32
}

// areaTaps returns, for each destination index, the source indices it
// covers and their normalized coverage.
func areaTaps(srcLen, dstLen int) [][]areaTap {
	scale := float64(srcLen) / float64(dstLen)
	taps := make([][]areaTap, dstLen)
	for i := range taps {
		lo := float64(i) * scale
		hi := lo + scale
		first := int(math.Floor(lo))
		last := int(math.Ceil(hi))
		if last > srcLen {
			last = srcLen
		}
		for j := first; j < last; j++ {
			cover := math.Min(hi, float64(j+1)) - math.Max(lo, float64(j))
			if cover <= 0 {
				continue
			}
			taps[i] = append(taps[i], areaTap{src: j, weight: float32(cover / scale)})
		}
	}
	return taps
}

// Resize implements Resizer.
func (BoxResizer) Resize(f Frame, size Resolution) (Frame, error) {
	if !size.IsSet() {
		return Frame{}, ErrInvalidResolution
	}
	if err := size.Validate(); err != nil {
		return Frame{}, err
	}
	if f.Empty() || f.Channels <= 0 || len(f.Data) < f.Stride()*f.Height {
		return Frame{}, ErrEmptyFrame
	}
	if size == f.Size() {
		return f.Clone(), nil
	}

	ch := f.Channels
	xTaps := areaTaps(f.Width, size.Width)
	yTaps := areaTaps(f.Height, size.Height)

	// Horizontal pass: f.Height rows of size.Width pixels.
	tmp := make([]float32, f.Height*size.Width*ch)
	for y := 0; y < f.Height; y++ {
		row := f.Data[y*f.Stride():]
		out := tmp[y*size.Width*ch:]
		for x, taps := range xTaps {
			for _, t := range taps {
				for c := 0; c < ch; c++ {
					out[x*ch+c] += float32(row[t.src*ch+c]) * t.weight
				}
			}
		}
	}

	// Vertical pass.
	dst := make([]byte, size.Height*size.Width*ch)
	acc := make([]float32, size.Width*ch)
	for y, taps := range yTaps {
		for i := range acc {
			acc[i] = 0
		}
		for _, t := range taps {
			row := tmp[t.src*size.Width*ch:]
			for i := range acc {
				acc[i] += row[i] * t.weight
			}
		}
		out := dst[y*size.Width*ch:]
		for i, v := range acc {
			out[i] = clampByte(v)
		}
	}

	return Frame{
		Data:      dst,
		Width:     size.Width,
		Height:    size.Height,
		Channels:  ch,
		Timestamp: f.Timestamp,
		Seq:       f.Seq,
	}, nil
}

func clampByte(v float32) byte {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return byte(v + 0.5)
	}
}
