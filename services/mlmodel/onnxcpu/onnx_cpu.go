// Package onnxcpu runs ONNX model files on the host's CPU through OpenCV's DNN module, as an
// implementation of the ML model service.
package onnxcpu

import (
	"context"
	"image"
	"os"
	fp "path/filepath"
	"sync"

	"github.com/pkg/errors"
	"go.opencensus.io/trace"
	"gocv.io/x/gocv"
	"gorgonia.org/tensor"

	"go.viam.com/livevision/logging"
	"go.viam.com/livevision/ml"
	"go.viam.com/livevision/registry"
	"go.viam.com/livevision/rimage"
	"go.viam.com/livevision/services/mlmodel"
	"go.viam.com/livevision/utils"
)

// ModelName is the registered model type.
const ModelName = "onnx_cpu"

func init() {
	registry.RegisterModel(ModelName, registry.NewModelRegistration(
		func(ctx context.Context, conf *Config, logger logging.Logger) (mlmodel.Service, error) {
			return NewONNXCPUModel(ctx, conf, logger)
		}))
}

// Config contains the parameters of an onnx_cpu model.
type Config struct {
	ModelPath   string    `json:"model_path"`
	LabelPath   string    `json:"label_path"`
	ModelType   string    `json:"model_type"`
	InputWidth  int       `json:"input_width"`
	InputHeight int       `json:"input_height"`
	OutputName  string    `json:"output_name"`
	OutputShape []int     `json:"output_shape"`
	Scale       float64   `json:"scale"`
	Mean        []float64 `json:"mean"`
	// SwapRB feeds the network RGB instead of OpenCV's native BGR.
	SwapRB bool `json:"swap_rb"`
}

// Validate ensures all parts of the config are valid.
func (conf *Config) Validate(path string) error {
	if conf.ModelPath == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "model_path")
	}
	if conf.InputWidth <= 0 || conf.InputHeight <= 0 {
		return utils.NewConfigValidationError(path,
			errors.Errorf("input_width and input_height must be positive, got %dx%d", conf.InputWidth, conf.InputHeight))
	}
	switch mlmodel.ModelType(conf.ModelType) {
	case mlmodel.ModelTypeSegmenter, mlmodel.ModelTypeDetector:
	default:
		return utils.NewConfigValidationError(path, errors.Errorf("unknown model_type %q", conf.ModelType))
	}
	if len(conf.Mean) != 0 && len(conf.Mean) != 3 {
		return utils.NewConfigValidationError(path, errors.New("mean must have 3 values"))
	}
	return nil
}

// Model is a loaded ONNX network. Calls are serialized by a mutex since an OpenCV net holds per
// call state.
type Model struct {
	conf     Config
	metadata mlmodel.MLMetadata
	logger   logging.Logger

	mu     sync.Mutex
	net    gocv.Net
	closed bool
}

// NewONNXCPUModel loads the network named by conf.
func NewONNXCPUModel(ctx context.Context, conf *Config, logger logging.Logger) (*Model, error) {
	_, span := trace.StartSpan(ctx, "service::mlmodel::onnxcpu::NewONNXCPUModel")
	defer span.End()

	if conf == nil {
		return nil, errors.New("could not find parameters")
	}
	fullpath, err := fp.Abs(conf.ModelPath)
	if err != nil {
		fullpath = conf.ModelPath
	}
	if _, err := os.Stat(fullpath); err != nil {
		return nil, errors.Wrapf(err, "file not found at %s", fullpath)
	}
	net := gocv.ReadNetFromONNX(fullpath)
	if net.Empty() {
		return nil, errors.Errorf("could not load model from %s", fullpath)
	}
	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		logger.Warnw("could not set preferable backend", "error", err)
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		logger.Warnw("could not set preferable target", "error", err)
	}

	c := *conf
	if c.Scale == 0 {
		c.Scale = 1.0 / 255.0
	}
	m := &Model{conf: c, net: net, logger: logger}
	m.metadata = m.buildMetadata()
	logger.Infow("loaded model", "path", fullpath, "type", c.ModelType, "input", image.Pt(c.InputWidth, c.InputHeight))
	return m, nil
}

func (m *Model) buildMetadata() mlmodel.MLMetadata {
	md := mlmodel.MLMetadata{
		ModelName: fp.Base(m.conf.ModelPath),
		ModelType: mlmodel.ModelType(m.conf.ModelType),
		Input: mlmodel.InputInfo{
			Width:  m.conf.InputWidth,
			Height: m.conf.InputHeight,
			Format: rimage.PixelFormatBGRA,
		},
		Output: mlmodel.TensorInfo{
			Name:  m.conf.OutputName,
			Shape: append([]int(nil), m.conf.OutputShape...),
		},
	}
	if m.conf.LabelPath != "" {
		md.Output.AssociatedFiles = []mlmodel.File{{
			Name:      m.conf.LabelPath,
			LabelType: mlmodel.LabelTypeTensorAxis,
		}}
	}
	return md
}

// Run converts the frame to a blob, runs the network forward and copies the output out of OpenCV.
func (m *Model) Run(ctx context.Context, input *rimage.ImageBuffer) (*ml.Tensor, error) {
	_, span := trace.StartSpan(ctx, "service::mlmodel::onnxcpu::Run")
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, mlmodel.ErrClosed
	}

	bgra, err := gocv.NewMatFromBytes(input.Height(), input.Width(), gocv.MatTypeCV8UC4, input.Bytes())
	if err != nil {
		return nil, errors.Wrap(err, "cannot wrap frame")
	}
	defer bgra.Close()
	bgr := gocv.NewMat()
	defer bgr.Close()
	gocv.CvtColor(bgra, &bgr, gocv.ColorBGRAToBGR)

	mean := gocv.NewScalar(0, 0, 0, 0)
	if len(m.conf.Mean) == 3 {
		mean = gocv.NewScalar(m.conf.Mean[0], m.conf.Mean[1], m.conf.Mean[2], 0)
	}
	blob := gocv.BlobFromImage(bgr, m.conf.Scale, image.Pt(m.conf.InputWidth, m.conf.InputHeight), mean, m.conf.SwapRB, false)
	defer blob.Close()

	m.net.SetInput(blob, "")
	output := m.net.Forward(m.conf.OutputName)
	defer output.Close()
	if output.Empty() {
		return nil, errors.Errorf("model %q produced no output", m.metadata.ModelName)
	}

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, errors.Wrap(err, "cannot read output")
	}
	// data aliases OpenCV memory released by output.Close; FromDense copies it out.
	return ml.FromDense(tensor.New(tensor.WithShape(output.Size()...), tensor.WithBacking(data)))
}

// Metadata returns what the model was configured with.
func (m *Model) Metadata(ctx context.Context) (mlmodel.MLMetadata, error) {
	return m.metadata, nil
}

// Close releases the network. Further Run calls fail with mlmodel.ErrClosed.
func (m *Model) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return m.net.Close()
}
