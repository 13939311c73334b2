// Package pipeline wires frame sources to one inference stage and a decoder, and hands every
// decoded frame to a sink.
//
// Each source delivers frames on its own delivery goroutine, which runs the model and the decoder
// for that frame. Several sources may share the model; the stage's busy policy decides what
// happens when they collide.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/livevision/components/camera"
	"go.viam.com/livevision/logging"
	"go.viam.com/livevision/ml"
	"go.viam.com/livevision/ml/inference"
	"go.viam.com/livevision/rimage"
	"go.viam.com/livevision/services/mlmodel"
	"go.viam.com/livevision/vision/objectdetection"
	"go.viam.com/livevision/vision/segmentation"
)

// Config controls how frames flow through a pipeline.
type Config struct {
	// Name identifies the pipeline in logs. A random name is used when empty.
	Name string
	// DropLateFrames keeps latency bounded by discarding frames that cannot be processed in time.
	// Sources replace undelivered frames and the stage applies BusyPolicy. Without it every frame
	// is processed in order and the stage waits.
	DropLateFrames bool
	// BusyPolicy is queue or reject when dropping late frames. Defaults to queue.
	BusyPolicy inference.BusyPolicy
	// Labels name the model's classes. When empty they are read from the model's label file.
	Labels ml.LabelTable
	// Rotation is applied to every frame at capture.
	Rotation int
	// Detection configures decoding for detector models.
	Detection DetectionConfig
}

// DetectionConfig configures the decoder and postprocessing of detector output.
type DetectionConfig struct {
	Layout     objectdetection.Layout
	Threshold  float64
	Transposed bool
	// NMSIoU enables non-maximum suppression when positive.
	NMSIoU float64
	// LabelFilter keeps only detections with these labels when not empty.
	LabelFilter []string
	// DisplayWidth and DisplayHeight size the display space boxes are mapped to. When zero the
	// frame size is used.
	DisplayWidth, DisplayHeight float64
}

// DefaultConfig drops late frames using the queue policy.
func DefaultConfig() Config {
	return Config{
		DropLateFrames: true,
		BusyPolicy:     inference.BusyPolicyQueue,
		Detection: DetectionConfig{
			Layout:    objectdetection.LayoutObjectness,
			Threshold: 0.5,
			NMSIoU:    0.45,
		},
	}
}

func (conf Config) policy() (inference.BusyPolicy, error) {
	if !conf.DropLateFrames {
		if conf.BusyPolicy != "" && conf.BusyPolicy != inference.BusyPolicyWait {
			return "", errors.Errorf("busy policy %q drops frames but drop_late_frames is false", conf.BusyPolicy)
		}
		return inference.BusyPolicyWait, nil
	}
	switch conf.BusyPolicy {
	case "":
		return inference.BusyPolicyQueue, nil
	case inference.BusyPolicyQueue, inference.BusyPolicyReject:
		return conf.BusyPolicy, nil
	case inference.BusyPolicyWait:
		return "", errors.New("busy policy wait keeps every frame but drop_late_frames is true")
	default:
		return "", conf.BusyPolicy.Validate()
	}
}

// NamedDriver is a capture driver and the name its frames are reported under.
type NamedDriver struct {
	Name   string
	Driver camera.Driver
}

// Result is the outcome of one delivered frame. Exactly one of ClassMap, Detections and Err is
// meaningful, depending on the model type and whether the frame failed.
type Result struct {
	Source     string
	Seq        uint64
	CapturedAt time.Time
	ClassMap   *segmentation.ClassMap
	Detections []objectdetection.Detection
	Err        error
	// Latency is the time from capture to the end of decoding.
	Latency time.Duration
}

// A Sink receives results. It is called from the delivery goroutine of the result's source.
type Sink func(Result)

// Pipeline runs sources into a shared inference stage.
type Pipeline struct {
	name     string
	conf     Config
	model    mlmodel.Service
	stage    *inference.Stage
	metadata mlmodel.MLMetadata
	labels   ml.LabelTable
	decoder  objectdetection.Decoder
	post     []objectdetection.Postprocessor
	sink     Sink
	logger   logging.Logger

	sources []*camera.Source
	names   []string

	mu      sync.Mutex
	started bool

	stats *statsRecorder
}

// New checks that the model and labels agree and builds a stopped pipeline. The pipeline owns the
// model and closes it in Close. Label or shape disagreements are configuration errors.
func New(
	ctx context.Context,
	drivers []NamedDriver,
	model mlmodel.Service,
	conf Config,
	sink Sink,
	logger logging.Logger,
) (*Pipeline, error) {
	if len(drivers) == 0 {
		return nil, errors.New("pipeline needs at least one source")
	}
	if logger == nil {
		logger = logging.Global().Sublogger("pipeline")
	}
	if sink == nil {
		sink = func(Result) {}
	}
	if conf.Name == "" {
		conf.Name = "pipeline-" + uuid.NewString()[:8]
	}
	logger = logger.Sublogger(conf.Name)

	policy, err := conf.policy()
	if err != nil {
		return nil, err
	}
	stage, err := inference.NewStage(ctx, model, policy, logger.Sublogger("inference"))
	if err != nil {
		return nil, err
	}
	md := stage.Metadata()
	labels, err := resolveLabels(conf.Labels, md)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		name:     conf.Name,
		conf:     conf,
		model:    model,
		stage:    stage,
		metadata: md,
		labels:   labels,
		sink:     sink,
		logger:   logger,
		stats:    newStatsRecorder(),
	}
	if md.ModelType == mlmodel.ModelTypeDetector {
		if err := p.setupDetector(); err != nil {
			return nil, err
		}
	}

	seen := map[string]bool{}
	for i, d := range drivers {
		name := d.Name
		if name == "" {
			return nil, errors.Errorf("source %d has no name", i)
		}
		if seen[name] {
			return nil, errors.Errorf("duplicate source name %q", name)
		}
		seen[name] = true
		src, err := camera.NewSource(d.Driver, p.consumer(name), camera.Options{
			Name:           name,
			DropLateFrames: conf.DropLateFrames,
			Rotation:       conf.Rotation,
		}, logger)
		if err != nil {
			return nil, errors.Wrapf(err, "source %q", name)
		}
		p.sources = append(p.sources, src)
		p.names = append(p.names, name)
	}
	return p, nil
}

// resolveLabels picks the configured labels, or those of the model's label file, and checks them
// against a segmenter's channel count.
func resolveLabels(configured ml.LabelTable, md mlmodel.MLMetadata) (ml.LabelTable, error) {
	labels := configured
	if len(labels) == 0 {
		if f, ok := md.LabelFile(); ok {
			loaded, err := ml.LoadLabels(f.Name)
			if err != nil {
				return nil, err
			}
			labels = loaded
		}
	}
	if len(labels) > 0 {
		if err := labels.Validate(); err != nil {
			return nil, err
		}
	}
	if md.ModelType != mlmodel.ModelTypeSegmenter {
		return labels, nil
	}
	channels, err := md.Channels()
	if err != nil {
		return nil, err
	}
	if len(labels) != channels {
		return nil, &segmentation.ShapeMismatchError{Channels: channels, Labels: len(labels)}
	}
	return labels, nil
}

func (p *Pipeline) setupDetector() error {
	dc := p.conf.Detection
	if dc.Layout == "" {
		dc.Layout = objectdetection.LayoutObjectness
	}
	p.decoder = objectdetection.Decoder{
		Layout:      dc.Layout,
		Threshold:   dc.Threshold,
		InputWidth:  p.metadata.Input.Width,
		InputHeight: p.metadata.Input.Height,
		Transposed:  dc.Transposed,
	}
	if err := p.decoder.Validate(); err != nil {
		return err
	}
	// the attribute axis is the last one, or the middle one when transposed
	shape := p.metadata.Output.Shape
	attrs := shape[len(shape)-1]
	if dc.Transposed {
		attrs = shape[len(shape)-2]
	}
	if want := len(p.labels) + 4; attrs > 0 && len(p.labels) > 0 {
		if dc.Layout == objectdetection.LayoutObjectness {
			want++
		}
		if attrs != want {
			return &objectdetection.ShapeMismatchError{Attrs: attrs, Labels: len(p.labels), Layout: dc.Layout}
		}
	}
	if dc.NMSIoU > 0 {
		p.post = append(p.post, objectdetection.NewNMS(dc.NMSIoU))
	}
	if len(dc.LabelFilter) > 0 {
		p.post = append(p.post, objectdetection.NewLabelFilter(dc.LabelFilter...))
	}
	return nil
}

// Name returns the pipeline's name.
func (p *Pipeline) Name() string { return p.name }

// Labels returns the label table in use.
func (p *Pipeline) Labels() ml.LabelTable { return append(ml.LabelTable(nil), p.labels...) }

// Metadata returns the model metadata.
func (p *Pipeline) Metadata() mlmodel.MLMetadata { return p.metadata }

// Start starts every source. If one cannot acquire its device the ones already started are
// stopped and the *camera.AcquisitionError is returned.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}
	for i, src := range p.sources {
		if err := src.Start(ctx); err != nil {
			for _, started := range p.sources[:i] {
				err = multierr.Combine(err, started.Stop(ctx))
			}
			return err
		}
	}
	p.started = true
	p.logger.Infow("started", "sources", p.names, "model", p.metadata.ModelName,
		"drop_late_frames", p.conf.DropLateFrames, "busy_policy", p.stage.Policy())
	return nil
}

// Stop stops every source. A model call in flight completes and its result is delivered; no
// model call starts after Stop returns.
func (p *Pipeline) Stop(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return nil
	}
	var err error
	for _, src := range p.sources {
		err = multierr.Combine(err, src.Stop(ctx))
	}
	p.started = false
	p.logger.Infow("stopped", "stats", p.Stats())
	return err
}

// Wait blocks until every source has stopped delivering, which for finite drivers happens once
// they are exhausted.
func (p *Pipeline) Wait(ctx context.Context) error {
	for _, src := range p.sources {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-src.Done():
		}
	}
	return nil
}

// Close stops the pipeline and closes the model.
func (p *Pipeline) Close(ctx context.Context) error {
	return multierr.Combine(p.Stop(ctx), p.model.Close(ctx))
}

func (p *Pipeline) consumer(name string) camera.Consumer {
	return func(ctx context.Context, f camera.Frame) {
		res := p.process(ctx, name, f)
		res.Latency = time.Since(res.CapturedAt)
		p.stats.record(res)
		p.sink(res)
	}
}

func (p *Pipeline) process(ctx context.Context, name string, f camera.Frame) Result {
	res := Result{Source: name, Seq: f.Seq, CapturedAt: f.CapturedAt()}

	buf, err := p.fitInput(f.Image)
	if err != nil {
		res.Err = err
		return res
	}
	out, err := p.stage.Infer(ctx, buf)
	if err != nil {
		res.Err = err
		return res
	}
	switch p.metadata.ModelType {
	case mlmodel.ModelTypeSegmenter:
		res.ClassMap, res.Err = segmentation.Decode(out, p.labels)
	case mlmodel.ModelTypeDetector:
		var dets []objectdetection.Detection
		if dets, res.Err = p.decoder.Decode(out, p.labels, p.displayTransform(f.Image)); res.Err == nil {
			res.Detections = objectdetection.Apply(dets, p.post...)
		}
	}
	if res.Err != nil {
		p.logger.Debugw("cannot decode output", "source", name, "seq", f.Seq, "error", res.Err)
	}
	return res
}

// fitInput resizes a frame to the model's declared input size.
func (p *Pipeline) fitInput(buf *rimage.ImageBuffer) (*rimage.ImageBuffer, error) {
	in := p.metadata.Input
	w, h := buf.Width(), buf.Height()
	if in.Width > 0 {
		w = in.Width
	}
	if in.Height > 0 {
		h = in.Height
	}
	return rimage.Resize(buf, w, h)
}

func (p *Pipeline) displayTransform(frame *rimage.ImageBuffer) objectdetection.Transform {
	w, h := p.conf.Detection.DisplayWidth, p.conf.Detection.DisplayHeight
	if w <= 0 || h <= 0 {
		w, h = float64(frame.Width()), float64(frame.Height())
	}
	return objectdetection.ScaleTo(w, h)
}
