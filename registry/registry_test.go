package registry

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/livevision/logging"
	"go.viam.com/livevision/testutils/inject"
	"go.viam.com/livevision/utils"
)

type testConfig struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func (conf *testConfig) Validate(path string) error {
	if conf.Name == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "name")
	}
	return nil
}

func TestSourceRegistry(t *testing.T) {
	const typeName = "test_source"
	logger := logging.NewTestLogger(t)

	var got *testConfig
	RegisterSource(typeName, NewSourceRegistration(
		func(ctx context.Context, conf *testConfig, logger logging.Logger) (*inject.Driver, error) {
			got = conf
			return inject.NewDriver(), nil
		}))
	defer DeregisterSource(typeName)

	test.That(t, func() { RegisterSource(typeName, SourceRegistration{}) }, test.ShouldPanic)
	test.That(t, func() { RegisterSource("nil_ctor", SourceRegistration{}) }, test.ShouldPanic)
	test.That(t, RegisteredSources(), test.ShouldContain, typeName)
	test.That(t, SourceLookup("nope"), test.ShouldBeNil)

	reg := SourceLookup(typeName)
	test.That(t, reg, test.ShouldNotBeNil)

	d, err := reg.Constructor(context.Background(), utils.AttributeMap{"name": "cam", "count": 3}, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d, test.ShouldNotBeNil)
	test.That(t, got, test.ShouldResemble, &testConfig{Name: "cam", Count: 3})

	_, err = reg.Constructor(context.Background(), utils.AttributeMap{"count": 3}, logger)
	test.That(t, err, test.ShouldBeError, utils.NewConfigValidationFieldRequiredError("source", "name"))

	test.That(t, reg.Validate("sources.0", utils.AttributeMap{"name": "cam"}), test.ShouldBeNil)
	err = reg.Validate("sources.0", utils.AttributeMap{"name": "cam", "extra": true})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "extra")
}

func TestModelRegistry(t *testing.T) {
	const typeName = "test_model"
	logger := logging.NewTestLogger(t)

	RegisterModel(typeName, NewModelRegistration(
		func(ctx context.Context, conf testConfig, logger logging.Logger) (*inject.MLModel, error) {
			if conf.Count < 0 {
				return nil, errors.New("negative count")
			}
			return inject.NewMLModel(), nil
		}))
	defer DeregisterModel(typeName)

	test.That(t, func() { RegisterModel(typeName, ModelRegistration{}) }, test.ShouldPanic)
	test.That(t, RegisteredModels(), test.ShouldContain, typeName)
	test.That(t, ModelLookup("nope"), test.ShouldBeNil)

	reg := ModelLookup(typeName)
	test.That(t, reg, test.ShouldNotBeNil)
	m, err := reg.Constructor(context.Background(), utils.AttributeMap{"count": 1}, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, m, test.ShouldNotBeNil)

	_, err = reg.Constructor(context.Background(), utils.AttributeMap{"count": -1}, logger)
	test.That(t, err, test.ShouldBeError, errors.New("negative count"))

	DeregisterModel(typeName)
	test.That(t, ModelLookup(typeName), test.ShouldBeNil)
}
