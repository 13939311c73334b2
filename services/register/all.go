// Package register registers all model bindings
package register

import (
	// register models.
	_ "go.viam.com/livevision/services/mlmodel/fake"
	_ "go.viam.com/livevision/services/mlmodel/onnxcpu"
)
