// Package fake implements a capture driver that synthesizes frames, optionally paced to a frame
// rate and limited to a frame count.
package fake

import (
	"context"
	"image"
	"image/color"
	"io"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"go.viam.com/livevision/components/camera"
	"go.viam.com/livevision/logging"
	"go.viam.com/livevision/registry"
	"go.viam.com/livevision/rimage"
)

// ModelName is the registered source type.
const ModelName = "fake"

const (
	initialWidth  = 1280
	initialHeight = 720
)

// The synthesized patterns.
const (
	PatternGradient = "gradient"
	PatternBars     = "bars"
)

func init() {
	registry.RegisterSource(ModelName, registry.NewSourceRegistration(
		func(ctx context.Context, conf *Config, logger logging.Logger) (*Camera, error) {
			return NewCamera(conf, clock.New(), logger)
		}))
}

// Config are the attributes of the fake camera config.
type Config struct {
	Width     int     `json:"width,omitempty"`
	Height    int     `json:"height,omitempty"`
	FrameRate float64 `json:"frame_rate,omitempty"`
	// Count ends the stream with io.EOF after that many frames. Zero streams forever.
	Count   int    `json:"count,omitempty"`
	Pattern string `json:"pattern,omitempty"`
}

// Validate checks that the config attributes are valid for a fake camera.
func (conf *Config) Validate(path string) error {
	if conf.Height%2 != 0 {
		return errors.Errorf("%s: odd-number resolutions cannot be rendered, cannot use a height of %d", path, conf.Height)
	}
	if conf.Width%2 != 0 {
		return errors.Errorf("%s: odd-number resolutions cannot be rendered, cannot use a width of %d", path, conf.Width)
	}
	if conf.Width < 0 || conf.Height < 0 || conf.FrameRate < 0 || conf.Count < 0 {
		return errors.Errorf("%s: width, height, frame_rate and count must not be negative", path)
	}
	switch conf.Pattern {
	case "", PatternGradient, PatternBars:
	default:
		return errors.Errorf("%s: unknown pattern %q", path, conf.Pattern)
	}
	return nil
}

// resolution fills in a missing side keeping 16:9, rounding up to an even size.
func resolution(width, height int) (int, int) {
	switch {
	case width > 0 && height > 0:
		return width, height
	case width > 0:
		newHeight := int(float64(initialHeight) * float64(width) / float64(initialWidth))
		if newHeight%2 != 0 {
			newHeight++
		}
		return width, newHeight
	case height > 0:
		newWidth := int(float64(initialWidth) * float64(height) / float64(initialHeight))
		if newWidth%2 != 0 {
			newWidth++
		}
		return newWidth, height
	default:
		return initialWidth, initialHeight
	}
}

// Camera synthesizes frames. The bars pattern shifts by one column per frame so consecutive
// frames differ.
type Camera struct {
	Width, Height int
	conf          Config
	clk           clock.Clock
	logger        logging.Logger

	mu     sync.Mutex
	ticker *clock.Ticker
	frame  int
	base   *image.NRGBA
}

// NewCamera returns a fake camera paced by clk.
func NewCamera(conf *Config, clk clock.Clock, logger logging.Logger) (*Camera, error) {
	if conf == nil {
		conf = &Config{}
	}
	if err := conf.Validate("fake"); err != nil {
		return nil, err
	}
	width, height := resolution(conf.Width, conf.Height)
	c := &Camera{Width: width, Height: height, conf: *conf, clk: clk, logger: logger}
	if c.conf.Pattern == PatternBars {
		c.base = bars(width, height)
	} else {
		c.base = gradient(width, height)
	}
	return c, nil
}

// Open starts the frame clock and rewinds the frame count.
func (c *Camera) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frame = 0
	if c.conf.FrameRate > 0 {
		c.ticker = c.clk.Ticker(time.Duration(float64(time.Second) / c.conf.FrameRate))
	}
	return nil
}

// Read waits for the next tick and returns the next frame.
func (c *Camera) Read(ctx context.Context) (image.Image, error) {
	c.mu.Lock()
	ticker := c.ticker
	c.mu.Unlock()
	if ticker != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conf.Count > 0 && c.frame >= c.conf.Count {
		return nil, io.EOF
	}
	n := c.frame
	c.frame++
	img := shift(c.base, n)
	return rimage.NewImageBuffer(img.Rect.Dx(), img.Rect.Dy(), rimage.PixelFormatBGRA, toBGRA(img), c.clk.Now())
}

// Close stops the frame clock.
func (c *Camera) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ticker != nil {
		c.ticker.Stop()
		c.ticker = nil
	}
	return nil
}

var _ camera.Driver = (*Camera)(nil)

// gradient is a yellow to blue gradient from the top left corner.
func gradient(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	totalDist := math.Hypot(float64(width), float64(height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			dist := math.Hypot(float64(x), float64(y)) / totalDist
			img.SetNRGBA(x, y, color.NRGBA{uint8(255 - (255 * dist)), uint8(255 - (255 * dist)), uint8(255 * dist), 255})
		}
	}
	return img
}

// bars is three vertical bars of blue, green and red.
func bars(width, height int) *image.NRGBA {
	palette := []color.NRGBA{{B: 255, A: 255}, {G: 255, A: 255}, {R: 255, A: 255}}
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		c := palette[x*len(palette)/width]
		for y := 0; y < height; y++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

// shift rolls img left by n columns.
func shift(img *image.NRGBA, n int) *image.NRGBA {
	width := img.Rect.Dx()
	n %= width
	if n == 0 {
		return img
	}
	out := image.NewNRGBA(img.Rect)
	for y := 0; y < img.Rect.Dy(); y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+width*4]
		dst := out.Pix[y*out.Stride : y*out.Stride+width*4]
		copy(dst, row[n*4:])
		copy(dst[(width-n)*4:], row[:n*4])
	}
	return out
}

func toBGRA(img *image.NRGBA) []byte {
	pix := make([]byte, len(img.Pix))
	for i := 0; i < len(pix); i += 4 {
		pix[i], pix[i+1], pix[i+2], pix[i+3] = img.Pix[i+2], img.Pix[i+1], img.Pix[i], img.Pix[i+3]
	}
	return pix
}
