// Package config defines the file format that describes a pipeline: its sources, its model and how
// frames flow between them.
package config

import (
	"fmt"

	"github.com/pkg/errors"

	"go.viam.com/livevision/logging"
	"go.viam.com/livevision/ml"
	"go.viam.com/livevision/ml/inference"
	"go.viam.com/livevision/pipeline"
	"go.viam.com/livevision/registry"
	"go.viam.com/livevision/rimage"
	"go.viam.com/livevision/utils"
	"go.viam.com/livevision/vision/objectdetection"
)

// Config describes a pipeline.
type Config struct {
	Sources  []Source       `json:"sources"`
	Model    Model          `json:"model"`
	Pipeline PipelineConfig `json:"pipeline"`
	Log      logging.Config `json:"log"`

	ConfigFilePath string `json:"-"`
}

// Source is a named frame source of a registered driver type.
type Source struct {
	Name       string             `json:"name"`
	Type       string             `json:"type"`
	Attributes utils.AttributeMap `json:"attributes,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (s *Source) Validate(path string) error {
	if s.Name == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "name")
	}
	if s.Type == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "type")
	}
	reg := registry.SourceLookup(s.Type)
	if reg == nil {
		return utils.NewConfigValidationError(path,
			errors.Errorf("unknown source type %q, known types are %v", s.Type, registry.RegisteredSources()))
	}
	if reg.Validate != nil {
		return reg.Validate(path, s.Attributes)
	}
	return nil
}

// Model is a registered model binding.
type Model struct {
	Type       string             `json:"type"`
	Attributes utils.AttributeMap `json:"attributes,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (m *Model) Validate(path string) error {
	if m.Type == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "type")
	}
	reg := registry.ModelLookup(m.Type)
	if reg == nil {
		return utils.NewConfigValidationError(path,
			errors.Errorf("unknown model type %q, known types are %v", m.Type, registry.RegisteredModels()))
	}
	if reg.Validate != nil {
		return reg.Validate(path, m.Attributes)
	}
	return nil
}

// PipelineConfig is how frames flow from the sources through the model.
type PipelineConfig struct {
	Name string `json:"name,omitempty"`
	// DropLateFrames defaults to true.
	DropLateFrames *bool              `json:"drop_late_frames,omitempty"`
	BusyPolicy     inference.BusyPolicy `json:"busy_policy,omitempty"`
	Labels         []string           `json:"labels,omitempty"`
	LabelPath      string             `json:"label_path,omitempty"`
	Rotation       int                `json:"rotation,omitempty"`
	Detection      *DetectionConfig   `json:"detection,omitempty"`
}

// DetectionConfig configures detector output decoding.
type DetectionConfig struct {
	Layout        objectdetection.Layout `json:"layout,omitempty"`
	Threshold     *float64               `json:"threshold,omitempty"`
	Transposed    bool                   `json:"transposed,omitempty"`
	NMSIoU        *float64               `json:"nms_iou,omitempty"`
	LabelFilter   []string               `json:"label_filter,omitempty"`
	DisplayWidth  float64                `json:"display_width,omitempty"`
	DisplayHeight float64                `json:"display_height,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (pc *PipelineConfig) Validate(path string) error {
	if pc.BusyPolicy != "" {
		if err := pc.BusyPolicy.Validate(); err != nil {
			return utils.NewConfigValidationError(path, err)
		}
	}
	if len(pc.Labels) > 0 && pc.LabelPath != "" {
		return utils.NewConfigValidationError(path, errors.New("labels and label_path cannot both be set"))
	}
	if len(pc.Labels) > 0 {
		if err := ml.LabelTable(pc.Labels).Validate(); err != nil {
			return utils.NewConfigValidationError(path, err)
		}
	}
	if err := rimage.ValidateRotation(pc.Rotation); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	if _, err := pc.ToPipeline(); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	return nil
}

// ToPipeline converts the file form to pipeline.Config, applying defaults. Labels are not loaded
// from label_path here.
func (pc *PipelineConfig) ToPipeline() (pipeline.Config, error) {
	conf := pipeline.DefaultConfig()
	conf.Name = pc.Name
	if pc.DropLateFrames != nil {
		conf.DropLateFrames = *pc.DropLateFrames
	}
	switch {
	case pc.BusyPolicy != "":
		conf.BusyPolicy = pc.BusyPolicy
	case !conf.DropLateFrames:
		conf.BusyPolicy = inference.BusyPolicyWait
	}
	switch {
	case conf.DropLateFrames && conf.BusyPolicy == inference.BusyPolicyWait:
		return conf, errors.New("busy_policy wait keeps every frame, set drop_late_frames to false")
	case !conf.DropLateFrames && conf.BusyPolicy != inference.BusyPolicyWait:
		return conf, errors.Errorf("busy_policy %s drops frames, set drop_late_frames to true", conf.BusyPolicy)
	}
	conf.Labels = ml.LabelTable(pc.Labels)
	conf.Rotation = pc.Rotation
	if dc := pc.Detection; dc != nil {
		if dc.Layout != "" {
			conf.Detection.Layout = dc.Layout
		}
		if dc.Threshold != nil {
			conf.Detection.Threshold = *dc.Threshold
		}
		if dc.NMSIoU != nil {
			conf.Detection.NMSIoU = *dc.NMSIoU
		}
		conf.Detection.Transposed = dc.Transposed
		conf.Detection.LabelFilter = dc.LabelFilter
		conf.Detection.DisplayWidth = dc.DisplayWidth
		conf.Detection.DisplayHeight = dc.DisplayHeight
	}
	dec := objectdetection.Decoder{Layout: conf.Detection.Layout, Threshold: conf.Detection.Threshold}
	if err := dec.Validate(); err != nil {
		return conf, err
	}
	if conf.Detection.NMSIoU < 0 || conf.Detection.NMSIoU > 1 {
		return conf, errors.Errorf("nms_iou must be in [0, 1], got %v", conf.Detection.NMSIoU)
	}
	return conf, nil
}

// Ensure ensures all parts of the config are valid.
func (c *Config) Ensure() error {
	if len(c.Sources) == 0 {
		return errors.New("at least one source is required")
	}
	names := map[string]bool{}
	for idx := 0; idx < len(c.Sources); idx++ {
		path := fmt.Sprintf("%s.%d", "sources", idx)
		if err := c.Sources[idx].Validate(path); err != nil {
			return err
		}
		if names[c.Sources[idx].Name] {
			return utils.NewConfigValidationError(path, errors.Errorf("duplicate source name %q", c.Sources[idx].Name))
		}
		names[c.Sources[idx].Name] = true
	}
	if err := c.Model.Validate("model"); err != nil {
		return err
	}
	if err := c.Pipeline.Validate("pipeline"); err != nil {
		return err
	}
	return c.Log.Validate("log")
}
