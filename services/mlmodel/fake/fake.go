// Package fake implements a model that segments a frame by its dominant colour channel. It needs
// no model file, which makes it the default for demos and end-to-end tests.
package fake

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.opencensus.io/trace"
	goutils "go.viam.com/utils"

	"go.viam.com/livevision/logging"
	"go.viam.com/livevision/ml"
	"go.viam.com/livevision/registry"
	"go.viam.com/livevision/rimage"
	"go.viam.com/livevision/services/mlmodel"
)

// ModelName is the registered model type.
const ModelName = "fake"

// Labels name the output channels in order.
var Labels = ml.LabelTable{"blue", "green", "red"}

func init() {
	registry.RegisterModel(ModelName, registry.NewModelRegistration(
		func(ctx context.Context, conf *Config, logger logging.Logger) (mlmodel.Service, error) {
			return NewModel(conf, logger), nil
		}))
}

// Config sets the declared input size and an artificial per call latency.
type Config struct {
	Width   int           `json:"width"`
	Height  int           `json:"height"`
	Latency time.Duration `json:"latency"`
}

// Validate ensures all parts of the config are valid.
func (conf *Config) Validate(path string) error {
	if conf.Width < 0 || conf.Height < 0 || conf.Latency < 0 {
		return errors.Errorf("%s: width, height and latency must not be negative", path)
	}
	return nil
}

// Model is the colour segmenter. Its output is [1, 3, height, width] holding the blue, green
// and red intensity of every pixel, so the decoded class of a pixel is its strongest channel.
type Model struct {
	conf   Config
	logger logging.Logger
	calls  atomic.Int64
	closed atomic.Bool
}

// NewModel returns a colour segmenter. A nil conf accepts any input size with no latency.
func NewModel(conf *Config, logger logging.Logger) *Model {
	m := &Model{logger: logger}
	if conf != nil {
		m.conf = *conf
	}
	return m
}

// Run implements mlmodel.Service.
func (m *Model) Run(ctx context.Context, input *rimage.ImageBuffer) (*ml.Tensor, error) {
	_, span := trace.StartSpan(ctx, "service::mlmodel::fake::Run")
	defer span.End()

	if m.closed.Load() {
		return nil, mlmodel.ErrClosed
	}
	m.calls.Add(1)
	if m.conf.Latency > 0 && !goutils.SelectContextOrWait(ctx, m.conf.Latency) {
		return nil, ctx.Err()
	}
	data := rimage.ToCHWFloat32(input, rimage.ChannelOrderBGR)
	return ml.NewTensor([]int{1, len(Labels), input.Height(), input.Width()}, data)
}

// Metadata implements mlmodel.Service.
func (m *Model) Metadata(ctx context.Context) (mlmodel.MLMetadata, error) {
	return mlmodel.MLMetadata{
		ModelName:        ModelName,
		ModelType:        mlmodel.ModelTypeSegmenter,
		ModelDescription: "segments pixels by dominant colour channel",
		Input: mlmodel.InputInfo{
			Width:  m.conf.Width,
			Height: m.conf.Height,
			Format: rimage.PixelFormatBGRA,
		},
		Output: mlmodel.TensorInfo{
			Name:  "channel_intensity",
			Shape: []int{1, len(Labels), m.conf.Height, m.conf.Width},
		},
	}, nil
}

// Calls returns the number of Run calls that reached the model.
func (m *Model) Calls() int64 { return m.calls.Load() }

// Close implements mlmodel.Service.
func (m *Model) Close(ctx context.Context) error {
	m.closed.Store(true)
	return nil
}
