// Package registry operates the global registry of frame source drivers and model bindings.
// Implementations register themselves from init so that importing a package makes its type
// available to config files.
package registry

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"go.viam.com/livevision/components/camera"
	"go.viam.com/livevision/logging"
	"go.viam.com/livevision/services/mlmodel"
	"go.viam.com/livevision/utils"
)

type (
	// A CreateDriver creates a capture driver from its attributes.
	CreateDriver func(ctx context.Context, attrs utils.AttributeMap, logger logging.Logger) (camera.Driver, error)

	// A CreateModel creates a model binding from its attributes.
	CreateModel func(ctx context.Context, attrs utils.AttributeMap, logger logging.Logger) (mlmodel.Service, error)

	// A ValidateAttributes checks attributes without opening any device or file. path locates
	// the attributes in the config for error messages.
	ValidateAttributes func(path string, attrs utils.AttributeMap) error
)

// SourceRegistration stores a driver constructor (mandatory) and validator.
type SourceRegistration struct {
	Constructor CreateDriver
	Validate    ValidateAttributes
}

// ModelRegistration stores a model constructor (mandatory) and validator.
type ModelRegistration struct {
	Constructor CreateModel
	Validate    ValidateAttributes
}

// all registries
var (
	sourceRegistry = map[string]SourceRegistration{}
	modelRegistry  = map[string]ModelRegistration{}
)

// NewSourceRegistration builds a registration whose attributes decode into the typed config C.
// When C implements utils.Validator it is validated before the constructor runs.
func NewSourceRegistration[C any, D camera.Driver](
	ctor func(ctx context.Context, conf C, logger logging.Logger) (D, error),
) SourceRegistration {
	return SourceRegistration{
		Constructor: func(ctx context.Context, attrs utils.AttributeMap, logger logging.Logger) (camera.Driver, error) {
			conf, err := utils.ValidatedConfig[C]("source", attrs)
			if err != nil {
				return nil, err
			}
			return ctor(ctx, conf, logger)
		},
		Validate: validateAs[C],
	}
}

// NewModelRegistration builds a registration whose attributes decode into the typed config C.
func NewModelRegistration[C any, S mlmodel.Service](
	ctor func(ctx context.Context, conf C, logger logging.Logger) (S, error),
) ModelRegistration {
	return ModelRegistration{
		Constructor: func(ctx context.Context, attrs utils.AttributeMap, logger logging.Logger) (mlmodel.Service, error) {
			conf, err := utils.ValidatedConfig[C]("model", attrs)
			if err != nil {
				return nil, err
			}
			return ctor(ctx, conf, logger)
		},
		Validate: validateAs[C],
	}
}

func validateAs[C any](path string, attrs utils.AttributeMap) error {
	_, err := utils.ValidatedConfig[C](path, attrs)
	return err
}

// RegisterSource registers a driver type to a registration.
func RegisterSource(typeName string, registration SourceRegistration) {
	if _, old := sourceRegistry[typeName]; old {
		panic(errors.Errorf("trying to register two sources with same type %s", typeName))
	}
	if registration.Constructor == nil {
		panic(errors.Errorf("cannot register a nil constructor for source type %s", typeName))
	}
	sourceRegistry[typeName] = registration
}

// RegisterModel registers a model type to a registration.
func RegisterModel(typeName string, registration ModelRegistration) {
	if _, old := modelRegistry[typeName]; old {
		panic(errors.Errorf("trying to register two models with same type %s", typeName))
	}
	if registration.Constructor == nil {
		panic(errors.Errorf("cannot register a nil constructor for model type %s", typeName))
	}
	modelRegistry[typeName] = registration
}

// SourceLookup looks up a source registration by type. nil is returned if there is no
// registration.
func SourceLookup(typeName string) *SourceRegistration {
	registration, ok := sourceRegistry[typeName]
	if ok {
		return &registration
	}
	return nil
}

// ModelLookup looks up a model registration by type. nil is returned if there is no
// registration.
func ModelLookup(typeName string) *ModelRegistration {
	registration, ok := modelRegistry[typeName]
	if ok {
		return &registration
	}
	return nil
}

// RegisteredSources returns the sorted registered source types.
func RegisteredSources() []string {
	names := lo.Keys(sourceRegistry)
	sort.Strings(names)
	return names
}

// RegisteredModels returns the sorted registered model types.
func RegisteredModels() []string {
	names := lo.Keys(modelRegistry)
	sort.Strings(names)
	return names
}

// DeregisterSource removes a source type. It exists for tests.
func DeregisterSource(typeName string) {
	delete(sourceRegistry, typeName)
}

// DeregisterModel removes a model type. It exists for tests.
func DeregisterModel(typeName string) {
	delete(modelRegistry, typeName)
}
