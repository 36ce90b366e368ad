// Package model contains domain models passed between layers.
package model

import "time"

// Pixel encodings understood by the pipeline.
const (
	EncodingRGBA = "rgba"
	EncodingBGR  = "bgr"
	EncodingGray = "gray"
)

// Frame is one captured image. Frames are treated as immutable once captured;
// consumers that keep or modify pixels work on a Clone.
type Frame struct {
	ID         string
	Seq        uint64
	Width      int
	Height     int
	Encoding   string
	Data       []byte
	CapturedAt time.Time
}

// Clone returns a deep copy of the frame.
func (f Frame) Clone() Frame {
	out := f
	if f.Data != nil {
		out.Data = make([]byte, len(f.Data))
		copy(out.Data, f.Data)
	}
	return out
}

// BytesPerPixel returns the pixel stride for the frame encoding, or 0 when unknown.
func (f Frame) BytesPerPixel() int {
	switch f.Encoding {
	case EncodingRGBA:
		return 4
	case EncodingBGR:
		return 3
	case EncodingGray:
		return 1
	default:
		return 0
	}
}

// Valid reports whether the pixel buffer matches the declared geometry.
func (f Frame) Valid() bool {
	bpp := f.BytesPerPixel()
	return bpp > 0 && f.Width > 0 && f.Height > 0 && len(f.Data) == f.Width*f.Height*bpp
}
