package objectdetection

import (
	"fmt"

	"github.com/pkg/errors"

	"go.viam.com/livevision/ml"
)

// Layout is the order of the attributes of one candidate.
type Layout string

const (
	// LayoutObjectness is [x, y, w, h, objectness, class scores...].
	LayoutObjectness = Layout("objectness")
	// LayoutClassScores is [x, y, w, h, class scores...], where the best class score is the
	// confidence.
	LayoutClassScores = Layout("class_scores")
)

func (l Layout) boxAttrs() int {
	if l == LayoutClassScores {
		return 4
	}
	return 5
}

// ShapeMismatchError is returned when the attributes of a candidate do not fit the label table.
type ShapeMismatchError struct {
	Attrs  int
	Labels int
	Layout Layout
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("candidates have %d attributes, which does not fit %d labels in the %s layout",
		e.Attrs, e.Labels, e.Layout)
}

// Decoder reads a [batch, candidates, attrs] or [candidates, attrs] tensor, or with Transposed
// set a [batch, attrs, candidates] tensor. Box coordinates are centers and sizes in model input
// pixels. A zero InputWidth or InputHeight means they are already normalized.
type Decoder struct {
	Layout      Layout
	Threshold   float64
	InputWidth  int
	InputHeight int
	Transposed  bool
}

// Validate checks the decoder settings.
func (d Decoder) Validate() error {
	switch d.Layout {
	case LayoutObjectness, LayoutClassScores:
	default:
		return errors.Errorf("unknown candidate layout %q", d.Layout)
	}
	if d.Threshold < 0 || d.Threshold > 1 {
		return errors.Errorf("threshold must be in [0, 1], got %v", d.Threshold)
	}
	if d.InputWidth < 0 || d.InputHeight < 0 {
		return errors.Errorf("input size must not be negative, got %dx%d", d.InputWidth, d.InputHeight)
	}
	return nil
}

type view struct {
	t          *ml.Tensor
	base       int
	candidates int
	attrs      int
	transposed bool
}

// offset of attribute a of candidate i, and the distance between consecutive attributes.
func (v view) offset(i, a int) int {
	if v.transposed {
		return v.base + a*v.candidates + i
	}
	return v.base + i*v.attrs + a
}

func (v view) attrStride() int {
	if v.transposed {
		return v.candidates
	}
	return 1
}

func (v view) at(i, a int) float64 {
	return float64(v.t.Flat(v.offset(i, a)))
}

func (d Decoder) view(t *ml.Tensor) (view, error) {
	if t == nil {
		return view{}, errors.New("no tensor to decode")
	}
	shape := t.Shape()
	v := view{t: t, transposed: d.Transposed}
	switch len(shape) {
	case 2:
		if d.Transposed {
			v.attrs, v.candidates = shape[0], shape[1]
		} else {
			v.candidates, v.attrs = shape[0], shape[1]
		}
	case 3:
		if shape[0] == 0 {
			return v, nil
		}
		if d.Transposed {
			v.attrs, v.candidates = shape[1], shape[2]
		} else {
			v.candidates, v.attrs = shape[1], shape[2]
		}
	default:
		return view{}, errors.Errorf("detection needs a 2-D or 3-D tensor, got shape %v", shape)
	}
	return v, nil
}

// Decode returns one detection per candidate whose confidence is at least the threshold, in
// candidate order. Only the first batch entry is read. When labels is empty the class count is
// taken from the tensor and labels are class indices.
//
// Boxes are normalized, flipped to a bottom-left origin with y' = 1 - y - h, and then mapped
// through tr.
func (d Decoder) Decode(t *ml.Tensor, labels ml.LabelTable, tr Transform) ([]Detection, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	v, err := d.view(t)
	if err != nil {
		return nil, err
	}
	boxAttrs := d.Layout.boxAttrs()
	classes := v.attrs - boxAttrs
	if v.candidates == 0 {
		return []Detection{}, nil
	}
	if classes <= 0 || (len(labels) > 0 && classes != len(labels)) {
		return nil, &ShapeMismatchError{Attrs: v.attrs, Labels: len(labels), Layout: d.Layout}
	}

	scaleX, scaleY := 1.0, 1.0
	if d.InputWidth > 0 && d.InputHeight > 0 {
		scaleX, scaleY = 1/float64(d.InputWidth), 1/float64(d.InputHeight)
	}

	out := []Detection{}
	for i := 0; i < v.candidates; i++ {
		class, score := t.ArgmaxAlong(v.offset(i, boxAttrs), v.attrStride(), classes)
		conf := float64(score)
		if d.Layout == LayoutObjectness {
			conf *= v.at(i, 4)
		}
		if !(conf >= d.Threshold) {
			continue
		}
		w, h := v.at(i, 2)*scaleX, v.at(i, 3)*scaleY
		x, y := v.at(i, 0)*scaleX-w/2, v.at(i, 1)*scaleY-h/2
		box := Rect{X: x, Y: 1 - y - h, W: w, H: h}
		out = append(out, Detection{
			Box:        tr.Rect(box),
			ClassID:    class,
			Label:      labels.Label(class),
			Confidence: conf,
		})
	}
	return out, nil
}
