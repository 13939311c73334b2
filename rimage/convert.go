package rimage

import (
	"image"
	"image/color"
	"time"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	"github.com/pkg/errors"
)

// FromImage converts any image into an owned BGRA buffer stamped with capturedAt.
func FromImage(img image.Image, capturedAt time.Time) (*ImageBuffer, error) {
	if b, ok := img.(*ImageBuffer); ok {
		if b.capturedAt.Equal(capturedAt) {
			return b, nil
		}
		return &ImageBuffer{width: b.width, height: b.height, format: b.format, pix: b.pix, capturedAt: capturedAt}, nil
	}
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("cannot convert empty image with bounds %v", bounds)
	}
	pix := make([]byte, width*height*4)
	switch src := img.(type) {
	case *image.NRGBA:
		for y := 0; y < height; y++ {
			start := src.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			row := src.Pix[start : start+width*4]
			for x := 0; x < width; x++ {
				s, d := x*4, (y*width+x)*4
				pix[d], pix[d+1], pix[d+2], pix[d+3] = row[s+2], row[s+1], row[s], row[s+3]
			}
		}
	default:
		i := 0
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				c, _ := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
				pix[i], pix[i+1], pix[i+2], pix[i+3] = c.B, c.G, c.R, c.A
				i += 4
			}
		}
	}
	return &ImageBuffer{width: width, height: height, format: PixelFormatBGRA, pix: pix, capturedAt: capturedAt}, nil
}

// ValidateRotation returns an error unless degrees is a multiple of 90.
func ValidateRotation(degrees int) error {
	if degrees%90 != 0 {
		return errors.Errorf("rotation must be a multiple of 90 degrees, got %d", degrees)
	}
	return nil
}

// Rotate turns img counter-clockwise by degrees, which must be a multiple of 90.
func Rotate(img image.Image, degrees int) (image.Image, error) {
	if err := ValidateRotation(degrees); err != nil {
		return nil, err
	}
	switch ((degrees % 360) + 360) % 360 {
	case 0:
		return img, nil
	case 90:
		return imaging.Rotate90(img), nil
	case 180:
		return imaging.Rotate180(img), nil
	default:
		return imaging.Rotate270(img), nil
	}
}

// Resize scales buf to width x height with bilinear interpolation, keeping the capture time.
func Resize(buf *ImageBuffer, width, height int) (*ImageBuffer, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("resize target must be positive, got %dx%d", width, height)
	}
	if buf.width == width && buf.height == height {
		return buf, nil
	}
	resized := resize.Resize(uint(width), uint(height), buf, resize.Bilinear)
	return FromImage(resized, buf.capturedAt)
}

// ChannelOrder selects the plane order produced by ToCHWFloat32.
type ChannelOrder int

const (
	// ChannelOrderRGB emits red, green, blue planes.
	ChannelOrderRGB ChannelOrder = iota
	// ChannelOrderBGR emits blue, green, red planes.
	ChannelOrderBGR
)

// ToCHWFloat32 unpacks buf into three planes of height*width values scaled to [0, 1], the layout
// most image models take as input. Alpha is dropped.
func ToCHWFloat32(buf *ImageBuffer, order ChannelOrder) []float32 {
	plane := buf.width * buf.height
	out := make([]float32, 3*plane)
	for i := 0; i < plane; i++ {
		blue, green, red := buf.pix[i*4], buf.pix[i*4+1], buf.pix[i*4+2]
		first, third := red, blue
		if order == ChannelOrderBGR {
			first, third = blue, red
		}
		out[i] = float32(first) / 255
		out[plane+i] = float32(green) / 255
		out[2*plane+i] = float32(third) / 255
	}
	return out
}
