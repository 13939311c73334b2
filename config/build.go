package config

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/livevision/logging"
	"go.viam.com/livevision/ml"
	"go.viam.com/livevision/pipeline"
	"go.viam.com/livevision/registry"
)

// Build constructs the drivers and model a config names and wires them into a stopped pipeline.
// The drivers' and model's packages must have been imported so that they are registered.
func Build(ctx context.Context, cfg *Config, sink pipeline.Sink, logger logging.Logger) (*pipeline.Pipeline, error) {
	conf, err := cfg.Pipeline.ToPipeline()
	if err != nil {
		return nil, err
	}
	if cfg.Pipeline.LabelPath != "" {
		labels, err := ml.LoadLabels(cfg.Pipeline.LabelPath)
		if err != nil {
			return nil, err
		}
		conf.Labels = labels
	}

	drivers := make([]pipeline.NamedDriver, 0, len(cfg.Sources))
	for _, s := range cfg.Sources {
		reg := registry.SourceLookup(s.Type)
		if reg == nil {
			return nil, errors.Errorf("unknown source type %q", s.Type)
		}
		d, err := reg.Constructor(ctx, s.Attributes, logger.Sublogger(s.Name))
		if err != nil {
			return nil, errors.Wrapf(err, "cannot build source %q", s.Name)
		}
		drivers = append(drivers, pipeline.NamedDriver{Name: s.Name, Driver: d})
	}

	reg := registry.ModelLookup(cfg.Model.Type)
	if reg == nil {
		return nil, errors.Errorf("unknown model type %q", cfg.Model.Type)
	}
	model, err := reg.Constructor(ctx, cfg.Model.Attributes, logger.Sublogger("model"))
	if err != nil {
		return nil, errors.Wrap(err, "cannot build model")
	}
	p, err := pipeline.New(ctx, drivers, model, conf, sink, logger)
	if err != nil {
		return nil, multierr.Combine(err, model.Close(ctx))
	}
	return p, nil
}
