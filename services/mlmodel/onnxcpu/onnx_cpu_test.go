package onnxcpu

import (
	"context"
	"testing"

	"go.viam.com/test"

	"go.viam.com/livevision/logging"
)

func TestConfigValidate(t *testing.T) {
	conf := &Config{ModelPath: "model.onnx", InputWidth: 640, InputHeight: 640, ModelType: "object_detector"}
	test.That(t, conf.Validate("model"), test.ShouldBeNil)

	missing := *conf
	missing.ModelPath = ""
	test.That(t, missing.Validate("model"), test.ShouldBeError, `model: "model_path" is required`)

	badSize := *conf
	badSize.InputHeight = 0
	test.That(t, badSize.Validate("model"), test.ShouldNotBeNil)

	badType := *conf
	badType.ModelType = "classifier"
	test.That(t, badType.Validate("model"), test.ShouldNotBeNil)

	badMean := *conf
	badMean.Mean = []float64{0.5}
	test.That(t, badMean.Validate("model"), test.ShouldNotBeNil)
}

func TestMissingModelFile(t *testing.T) {
	conf := &Config{ModelPath: "/nonexistent/model.onnx", InputWidth: 4, InputHeight: 4, ModelType: "segmenter"}
	_, err := NewONNXCPUModel(context.Background(), conf, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "file not found")

	_, err = NewONNXCPUModel(context.Background(), nil, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeError, "could not find parameters")
}
