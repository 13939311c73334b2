// Package rimage holds the immutable frame buffer handed from capture to inference, plus the
// conversions needed to get images in and out of it.
package rimage

import (
	"image"
	"image/color"
	"time"

	"github.com/pkg/errors"
)

// PixelFormat names the byte layout of a pixel.
type PixelFormat string

// PixelFormatBGRA is 8 bits each of blue, green, red and alpha. It is the only format produced by
// the capture drivers.
const PixelFormatBGRA = PixelFormat("BGRA")

// BytesPerPixel returns the pixel size of the format, or 0 when unknown.
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case PixelFormatBGRA:
		return 4
	default:
		return 0
	}
}

// ImageBuffer is an owned, immutable, rectangular pixel buffer with its capture timestamp.
// Constructors copy the pixel data and nothing hands out the backing slice, so a buffer may be
// shared between goroutines without locking.
type ImageBuffer struct {
	width, height int
	format        PixelFormat
	pix           []byte
	capturedAt    time.Time
}

var _ image.Image = (*ImageBuffer)(nil)

// NewImageBuffer copies pix into a new buffer. pix must hold exactly width*height pixels of format
// with no row padding.
func NewImageBuffer(width, height int, format PixelFormat, pix []byte, capturedAt time.Time) (*ImageBuffer, error) {
	bpp := format.BytesPerPixel()
	if bpp == 0 {
		return nil, errors.Errorf("unsupported pixel format %q", format)
	}
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("image dimensions must be positive, got %dx%d", width, height)
	}
	if len(pix) != width*height*bpp {
		return nil, errors.Errorf("expected %d bytes for a %dx%d %s image, got %d",
			width*height*bpp, width, height, format, len(pix))
	}
	owned := make([]byte, len(pix))
	copy(owned, pix)
	return &ImageBuffer{width: width, height: height, format: format, pix: owned, capturedAt: capturedAt}, nil
}

// Width in pixels.
func (b *ImageBuffer) Width() int { return b.width }

// Height in pixels.
func (b *ImageBuffer) Height() int { return b.height }

// Format returns the pixel format.
func (b *ImageBuffer) Format() PixelFormat { return b.format }

// CapturedAt is the time the frame was read from its source.
func (b *ImageBuffer) CapturedAt() time.Time { return b.capturedAt }

// Stride is the number of bytes per row.
func (b *ImageBuffer) Stride() int { return b.width * b.format.BytesPerPixel() }

// Bytes returns a copy of the raw pixel bytes.
func (b *ImageBuffer) Bytes() []byte {
	out := make([]byte, len(b.pix))
	copy(out, b.pix)
	return out
}

// BGRAAt returns the raw channels at (x, y). Coordinates outside the buffer return zeros.
func (b *ImageBuffer) BGRAAt(x, y int) (blue, green, red, alpha uint8) {
	if x < 0 || y < 0 || x >= b.width || y >= b.height {
		return 0, 0, 0, 0
	}
	i := y*b.Stride() + x*4
	return b.pix[i], b.pix[i+1], b.pix[i+2], b.pix[i+3]
}

// ColorModel implements image.Image.
func (b *ImageBuffer) ColorModel() color.Model { return color.NRGBAModel }

// Bounds implements image.Image.
func (b *ImageBuffer) Bounds() image.Rectangle { return image.Rect(0, 0, b.width, b.height) }

// At implements image.Image.
func (b *ImageBuffer) At(x, y int) color.Color {
	blue, green, red, alpha := b.BGRAAt(x, y)
	return color.NRGBA{R: red, G: green, B: blue, A: alpha}
}
