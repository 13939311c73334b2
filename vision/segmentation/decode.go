package segmentation

import (
	"fmt"

	"github.com/pkg/errors"

	"go.viam.com/livevision/ml"
)

// ShapeMismatchError is returned when the channel axis of a tensor and the label table disagree.
type ShapeMismatchError struct {
	Channels int
	Labels   int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("tensor has %d channels but there are %d labels", e.Channels, e.Labels)
}

// EmptyTensorError is returned for a tensor with no cells to classify.
type EmptyTensorError struct {
	Shape []int
}

func (e *EmptyTensorError) Error() string {
	return fmt.Sprintf("tensor of shape %v has no cells to classify", e.Shape)
}

func check(t *ml.Tensor, labels ml.LabelTable) error {
	if t == nil {
		return errors.New("no tensor to decode")
	}
	if t.Dims() != 4 {
		return errors.Errorf("segmentation needs a [batch, channels, height, width] tensor, got shape %v", t.Shape())
	}
	if channels := t.Dim(1); channels != len(labels) {
		return &ShapeMismatchError{Channels: channels, Labels: len(labels)}
	}
	if t.Dim(0) == 0 || t.Dim(1) == 0 || t.Dim(2) == 0 || t.Dim(3) == 0 {
		return &EmptyTensorError{Shape: t.Shape()}
	}
	return nil
}

// Decode assigns every cell of the first batch entry the channel with the highest score, the
// lowest channel on ties. The tensor is laid out [batch, channels, height, width].
func Decode(t *ml.Tensor, labels ml.LabelTable) (*ClassMap, error) {
	if err := check(t, labels); err != nil {
		return nil, err
	}
	return decodeBatch(t, 0, labels), nil
}

// DecodeAll decodes every batch entry.
func DecodeAll(t *ml.Tensor, labels ml.LabelTable) ([]*ClassMap, error) {
	if err := check(t, labels); err != nil {
		return nil, err
	}
	maps := make([]*ClassMap, t.Dim(0))
	for b := range maps {
		maps[b] = decodeBatch(t, b, labels)
	}
	return maps, nil
}

func decodeBatch(t *ml.Tensor, b int, labels ml.LabelTable) *ClassMap {
	channels, height, width := t.Dim(1), t.Dim(2), t.Dim(3)
	cm := newClassMap(width, height, labels)
	base := b * t.Stride(0)
	plane := t.Stride(1)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			cell := y*width + x
			best, _ := t.ArgmaxAlong(base+cell, plane, channels)
			cm.classes[cell] = int32(best)
		}
	}
	return cm
}
