package overlay

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/disintegration/imaging"
	"github.com/okian/posture/internal/domain/model"
)

// ErrBadFrame is returned for frames whose pixels do not match their geometry.
var ErrBadFrame = errors.New("frame pixels do not match geometry")

// ToImage wraps or converts frame pixels as an image. RGBA frames share the
// frame's pixel slice; callers must not modify the result.
func ToImage(f model.Frame) (image.Image, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("%w: %dx%d %s with %d bytes", ErrBadFrame, f.Width, f.Height, f.Encoding, len(f.Data))
	}
	rect := image.Rect(0, 0, f.Width, f.Height)
	switch f.Encoding {
	case model.EncodingRGBA:
		return &image.NRGBA{Pix: f.Data, Stride: f.Width * 4, Rect: rect}, nil
	case model.EncodingGray:
		return &image.Gray{Pix: f.Data, Stride: f.Width, Rect: rect}, nil
	default:
		img := image.NewNRGBA(rect)
		for i, j := 0, 0; i < len(f.Data); i, j = i+3, j+4 {
			img.Pix[j] = f.Data[i+2]
			img.Pix[j+1] = f.Data[i+1]
			img.Pix[j+2] = f.Data[i]
			img.Pix[j+3] = 0xff
		}
		return img, nil
	}
}

// FromImage converts an NRGBA image into an RGBA frame carrying the
// identity and timestamp of src.
func FromImage(src model.Frame, img *image.NRGBA) model.Frame {
	b := img.Bounds()
	if img.Stride != b.Dx()*4 || b.Min != (image.Point{}) {
		img = imaging.Clone(img)
	}
	return model.Frame{
		ID:         src.ID,
		Seq:        src.Seq,
		Width:      b.Dx(),
		Height:     b.Dy(),
		Encoding:   model.EncodingRGBA,
		Data:       img.Pix,
		CapturedAt: src.CapturedAt,
	}
}

// EncodeJPEG writes f as a JPEG.
func EncodeJPEG(w io.Writer, f model.Frame, quality int) error {
	img, err := ToImage(f)
	if err != nil {
		return err
	}
	return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality))
}

func statusColor(s model.PostureStatus) color.NRGBA {
	switch s {
	case model.StatusGood:
		return color.NRGBA{R: 0x52, G: 0xc4, B: 0x1a, A: 0xff}
	case model.StatusSlouch:
		return color.NRGBA{R: 0xff, G: 0x4d, B: 0x4f, A: 0xff}
	default:
		return color.NRGBA{R: 0x8c, G: 0x8c, B: 0x8c, A: 0xff}
	}
}

// line draws a thick segment between two pixel points.
func line(img *image.NRGBA, a, b image.Point, c color.NRGBA, thickness int) {
	dx, dy := abs(b.X-a.X), -abs(b.Y-a.Y)
	sx, sy := 1, 1
	if a.X > b.X {
		sx = -1
	}
	if a.Y > b.Y {
		sy = -1
	}
	e := dx + dy
	x, y := a.X, a.Y
	for {
		dot(img, image.Pt(x, y), c, thickness)
		if x == b.X && y == b.Y {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x += sx
		}
		if e2 <= dx {
			e += dx
			y += sy
		}
	}
}

// dot fills a square of side 2r+1 centered on p, clipped to the image.
func dot(img *image.NRGBA, p image.Point, c color.NRGBA, r int) {
	b := img.Bounds()
	for y := p.Y - r; y <= p.Y+r; y++ {
		for x := p.X - r; x <= p.X+r; x++ {
			if (image.Point{X: x, Y: y}).In(b) {
				img.SetNRGBA(x, y, c)
			}
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
