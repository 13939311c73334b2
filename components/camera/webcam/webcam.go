// Package webcam implements a capture driver for local cameras through pion/mediadevices.
package webcam

import (
	"context"
	"image"
	"strings"
	"sync"
	"time"

	"github.com/pion/mediadevices"
	mediadevicescamera "github.com/pion/mediadevices/pkg/driver/camera"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/io/video"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"go.viam.com/livevision/components/camera"
	"go.viam.com/livevision/logging"
	"go.viam.com/livevision/registry"
	"go.viam.com/livevision/rimage"
	"go.viam.com/livevision/utils"
)

// ModelName is the registered source type.
const ModelName = "webcam"

// Session preset used when no resolution is configured.
const (
	defaultWidth  = 1280
	defaultHeight = 720
)

// DefaultPreferredLabels ranks devices when no path is configured: a telephoto camera first,
// then a dual camera, then a wide angle one.
var DefaultPreferredLabels = []string{"telephoto", "dual", "wide"}

var errClosed = errors.New("camera has been closed")

func init() {
	registry.RegisterSource(ModelName, registry.NewSourceRegistration(
		func(ctx context.Context, conf *Config, logger logging.Logger) (*Webcam, error) {
			return NewWebcam(conf, logger), nil
		}))
}

// Config is the native config attribute struct for webcams.
type Config struct {
	Debug           bool     `json:"debug,omitempty"`
	Format          string   `json:"format,omitempty"`
	Path            string   `json:"video_path"`
	Width           int      `json:"width_px,omitempty"`
	Height          int      `json:"height_px,omitempty"`
	FrameRate       float32  `json:"frame_rate,omitempty"`
	PreferredLabels []string `json:"preferred_labels,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (c *Config) Validate(path string) error {
	if c.Width < 0 || c.Height < 0 {
		return errors.Errorf(
			"%s: got illegal negative dimensions for width_px and height_px (%d, %d) fields set for webcam camera",
			path, c.Width, c.Height)
	}
	if c.FrameRate < 0 {
		return errors.Errorf(
			"%s: got illegal negative frame rate (%.2f) field set for webcam camera",
			path, c.FrameRate)
	}
	return nil
}

// makeConstraints is a helper that returns constraints to mediadevices in order to find and make a video source.
// Constraints are specifications for the video stream such as frame format, resolution etc.
func makeConstraints(conf *Config, deviceID string, logger logging.Logger) mediadevices.MediaStreamConstraints {
	return mediadevices.MediaStreamConstraints{
		Video: func(constraint *mediadevices.MediaTrackConstraints) {
			if deviceID != "" {
				constraint.DeviceID = prop.StringExact(deviceID)
			}
			if conf.Width > 0 {
				constraint.Width = prop.IntExact(conf.Width)
			} else {
				constraint.Width = prop.IntRanged{Min: 0, Ideal: defaultWidth, Max: 4096}
			}

			if conf.Height > 0 {
				constraint.Height = prop.IntExact(conf.Height)
			} else {
				constraint.Height = prop.IntRanged{Min: 0, Ideal: defaultHeight, Max: 2160}
			}

			if conf.FrameRate > 0.0 {
				constraint.FrameRate = prop.FloatExact(conf.FrameRate)
			} else {
				constraint.FrameRate = prop.FloatRanged{Min: 0.0, Ideal: 30.0, Max: 140.0}
			}

			if conf.Format == "" {
				constraint.FrameFormat = prop.FrameFormatOneOf{
					frame.FormatI420,
					frame.FormatI444,
					frame.FormatYUY2,
					frame.FormatUYVY,
					frame.FormatRGBA,
					frame.FormatMJPEG,
					frame.FormatNV12,
					frame.FormatNV21,
				}
			} else {
				constraint.FrameFormat = prop.FrameFormatExact(conf.Format)
			}

			if conf.Debug {
				logger.Debugf("constraints: %v", constraint)
			}
		},
	}
}

// chooseDevice picks the capture device. An explicit path must match a label or device id.
// Otherwise the first label containing a preferred name wins, in preference order, falling back
// to the first camera.
func chooseDevice(devices []mediadevices.MediaDeviceInfo, path string, preferred []string) (mediadevices.MediaDeviceInfo, error) {
	var cams []mediadevices.MediaDeviceInfo
	for _, d := range devices {
		if d.Kind == mediadevices.VideoInput {
			cams = append(cams, d)
		}
	}
	if len(cams) == 0 {
		return mediadevices.MediaDeviceInfo{}, errors.New("found no webcams")
	}
	if path != "" {
		for _, d := range cams {
			label := strings.Split(d.Label, mediadevicescamera.LabelSeparator)[0]
			if d.DeviceID == path || label == path || d.Label == path {
				return d, nil
			}
		}
		return mediadevices.MediaDeviceInfo{}, errors.Errorf("no webcam found at %q", path)
	}
	for _, want := range preferred {
		want = strings.ToLower(want)
		for _, d := range cams {
			if strings.Contains(strings.ToLower(d.Label), want) {
				return d, nil
			}
		}
	}
	return cams[0], nil
}

// Webcam is a mediadevices backed capture driver.
type Webcam struct {
	conf   Config
	logger logging.Logger

	mu     sync.Mutex
	track  mediadevices.Track
	reader video.Reader
	label  string
}

// NewWebcam returns a closed webcam. Open selects and opens the device.
func NewWebcam(conf *Config, logger logging.Logger) *Webcam {
	c := *conf
	if len(c.PreferredLabels) == 0 {
		c.PreferredLabels = DefaultPreferredLabels
	}
	return &Webcam{conf: c, logger: logger}
}

// Open finds the device and starts streaming from it.
func (w *Webcam) Open(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.reader != nil {
		return nil
	}
	mediadevicescamera.Initialize()
	device, err := chooseDevice(mediadevices.EnumerateDevices(), w.conf.Path, w.conf.PreferredLabels)
	if err != nil {
		return err
	}
	stream, err := mediadevices.GetUserMedia(makeConstraints(&w.conf, device.DeviceID, w.logger))
	if err != nil {
		return errors.Wrapf(err, "cannot open webcam %q", device.Label)
	}
	tracks := stream.GetVideoTracks()
	if len(tracks) == 0 {
		return errors.Errorf("webcam %q has no video track", device.Label)
	}
	vt, err := utils.AssertType[*mediadevices.VideoTrack](tracks[0])
	if err != nil {
		//nolint:errcheck
		tracks[0].Close()
		return errors.Wrapf(err, "webcam %q gave an unexpected track", device.Label)
	}
	w.track = vt
	w.reader = vt.NewReader(false)
	w.label = device.Label
	w.logger.Infow("opened webcam", "label", device.Label, "id", device.DeviceID)
	return nil
}

type readResult struct {
	buf *rimage.ImageBuffer
	err error
}

// Read copies the next frame out of the driver's buffer. The driver's reader cannot be
// interrupted, so it runs on its own goroutine and Read returns as soon as ctx is done; the
// abandoned frame is released when the device delivers it or is closed.
func (w *Webcam) Read(ctx context.Context) (image.Image, error) {
	w.mu.Lock()
	reader := w.reader
	label := w.label
	w.mu.Unlock()
	if reader == nil {
		return nil, errClosed
	}
	result := make(chan readResult, 1)
	goutils.PanicCapturingGo(func() {
		img, release, err := reader.Read()
		if release != nil {
			defer release()
		}
		if err != nil {
			result <- readResult{err: errors.Wrapf(err, "cannot read from webcam %q", label)}
			return
		}
		buf, err := rimage.FromImage(img, time.Now())
		result <- readResult{buf: buf, err: err}
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-result:
		if r.err != nil {
			return nil, r.err
		}
		return r.buf, nil
	}
}

// Close releases the device.
func (w *Webcam) Close(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.track == nil {
		return nil
	}
	err := w.track.Close()
	w.track = nil
	w.reader = nil
	return err
}

var _ camera.Driver = (*Webcam)(nil)
