// Package mlmodel defines the interface of an inference engine that takes one image buffer and
// returns one output tensor, along with the metadata describing what it accepts and produces.
package mlmodel

import (
	"context"

	"github.com/pkg/errors"

	"go.viam.com/livevision/ml"
	"go.viam.com/livevision/rimage"
)

// Service runs a model. Implementations need not be safe for concurrent Run calls; callers
// serialize through an inference stage.
type Service interface {
	Run(ctx context.Context, input *rimage.ImageBuffer) (*ml.Tensor, error)
	Metadata(ctx context.Context) (MLMetadata, error)
	Close(ctx context.Context) error
}

// ModelType says which decoder understands a model's output.
type ModelType string

// The supported model types.
const (
	ModelTypeSegmenter = ModelType("segmenter")
	ModelTypeDetector  = ModelType("object_detector")
)

// MLMetadata describes a model.
type MLMetadata struct {
	ModelName        string
	ModelType        ModelType
	ModelDescription string
	Input            InputInfo
	Output           TensorInfo
}

// InputInfo is the image a model accepts. A zero Width or Height accepts any size along that axis.
type InputInfo struct {
	Width  int
	Height int
	Format rimage.PixelFormat
}

// TensorInfo describes the output tensor. Non-positive entries of Shape accept any size.
type TensorInfo struct {
	Name            string // e.g. segmentation_mask
	Description     string
	Shape           []int
	AssociatedFiles []File
}

// File is a file shipped alongside a model.
type File struct {
	Name        string // e.g. category_labels.txt
	Description string
	LabelType   LabelType // TENSOR_VALUE, or TENSOR_AXIS
}

// LabelType describes how labels from the file are assigned to the sensors. TENSOR_VALUE means that
// labels are the actual value in the tensor. TENSOR_AXIS means that labels are positional within the
// tensor axis.
type LabelType string

// The label types.
const (
	LabelTypeUnspecified = LabelType("UNSPECIFIED")
	LabelTypeTensorValue = LabelType("TENSOR_VALUE")
	LabelTypeTensorAxis  = LabelType("TENSOR_AXIS")
)

// Validate checks the metadata is usable by a decoder.
func (md MLMetadata) Validate() error {
	if md.Input.Width < 0 || md.Input.Height < 0 {
		return errors.Errorf("model %q declares negative input size %dx%d", md.ModelName, md.Input.Width, md.Input.Height)
	}
	if md.Input.Format.BytesPerPixel() == 0 {
		return errors.Errorf("model %q declares unsupported input format %q", md.ModelName, md.Input.Format)
	}
	switch md.ModelType {
	case ModelTypeSegmenter:
		if len(md.Output.Shape) != 4 {
			return errors.Errorf("segmenter %q must declare a 4-D output shape, got %v", md.ModelName, md.Output.Shape)
		}
		if md.Output.Shape[1] <= 0 {
			return errors.Errorf("segmenter %q must declare its channel count, got %v", md.ModelName, md.Output.Shape)
		}
	case ModelTypeDetector:
		if n := len(md.Output.Shape); n != 2 && n != 3 {
			return errors.Errorf("detector %q must declare a 2-D or 3-D output shape, got %v", md.ModelName, md.Output.Shape)
		}
	default:
		return errors.Errorf("model %q has unknown type %q", md.ModelName, md.ModelType)
	}
	return nil
}

// Channels returns the number of classes a segmenter scores per pixel.
func (md MLMetadata) Channels() (int, error) {
	if md.ModelType != ModelTypeSegmenter || len(md.Output.Shape) != 4 {
		return 0, errors.Errorf("model %q of type %q has no channel axis", md.ModelName, md.ModelType)
	}
	return md.Output.Shape[1], nil
}

// LabelFile returns the associated file naming positions along the class axis, if any.
func (md MLMetadata) LabelFile() (File, bool) {
	for _, f := range md.Output.AssociatedFiles {
		if f.LabelType == LabelTypeTensorAxis {
			return f, true
		}
	}
	return File{}, false
}

// ErrClosed is returned by Run after Close.
var ErrClosed = errors.New("model is closed")
