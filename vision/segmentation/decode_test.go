package segmentation

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/livevision/ml"
)

var rgb = ml.LabelTable{"background", "person", "car"}

func TestDecode(t *testing.T) {
	// channel-major [1, 3, 2, 2]: channel 0 then 1 then 2, each a 2x2 plane
	data := []float32{
		0.9, 0.1, 0.0, 0.1, // background
		0.05, 0.8, 0.2, 0.2, // person
		0.05, 0.1, 0.8, 0.7, // car
	}
	tt, err := ml.NewTensor([]int{1, 3, 2, 2}, data)
	test.That(t, err, test.ShouldBeNil)

	cm, err := Decode(tt, rgb)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cm.Width(), test.ShouldEqual, 2)
	test.That(t, cm.Height(), test.ShouldEqual, 2)
	test.That(t, cm.Rows(), test.ShouldResemble, [][]int{{0, 1}, {2, 2}})
	test.That(t, cm.At(1, 0), test.ShouldEqual, 1)
	test.That(t, cm.Label(0, 1), test.ShouldEqual, "car")
	test.That(t, cm.Counts(), test.ShouldResemble, []int{1, 1, 2})
	test.That(t, cm.Coverage(), test.ShouldResemble, map[string]float64{"background": 0.25, "person": 0.25, "car": 0.5})
	test.That(t, cm.Dominant(), test.ShouldEqual, 2)
	test.That(t, cm.NumClasses(), test.ShouldEqual, 3)

	// the map owns its memory
	rows := cm.Rows()
	rows[0][0] = 2
	test.That(t, cm.At(0, 0), test.ShouldEqual, 0)
	labels := cm.Labels()
	labels[0] = "sky"
	test.That(t, cm.Label(0, 0), test.ShouldEqual, "background")

	// a point past the right edge must not wrap into the next row
	test.That(t, func() { cm.At(2, 0) }, test.ShouldPanicWith, "segmentation: point (2, 0) outside 2x2 class map")
	test.That(t, func() { cm.At(0, -1) }, test.ShouldPanic)
	test.That(t, func() { cm.Label(0, 2) }, test.ShouldPanic)
}

func TestDecodeTiesAndNaN(t *testing.T) {
	nan := float32(math.NaN())
	// [1, 3, 1, 3]
	data := []float32{
		0.5, 0.2, nan,
		0.5, 0.7, 0.1,
		0.5, 0.7, 0.2,
	}
	tt, err := ml.NewTensor([]int{1, 3, 1, 3}, data)
	test.That(t, err, test.ShouldBeNil)
	cm, err := Decode(tt, rgb)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cm.Rows(), test.ShouldResemble, [][]int{{0, 1, 2}})
}

func TestDecodeAll(t *testing.T) {
	// two batch entries of [2, 1, 2]
	data := []float32{
		1, 0, 0, 1,
		0, 1, 1, 0,
	}
	tt, err := ml.NewTensor([]int{2, 2, 1, 2}, data)
	test.That(t, err, test.ShouldBeNil)
	labels := ml.LabelTable{"a", "b"}

	maps, err := DecodeAll(tt, labels)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, maps, test.ShouldHaveLength, 2)
	test.That(t, maps[0].Rows(), test.ShouldResemble, [][]int{{0, 1}})
	test.That(t, maps[1].Rows(), test.ShouldResemble, [][]int{{1, 0}})

	first, err := Decode(tt, labels)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, first.Rows(), test.ShouldResemble, maps[0].Rows())
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode(nil, rgb)
	test.That(t, err, test.ShouldNotBeNil)

	flat, err := ml.NewTensor([]int{3, 4}, make([]float32, 12))
	test.That(t, err, test.ShouldBeNil)
	_, err = Decode(flat, rgb)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "[3 4]")

	two, err := ml.NewTensor([]int{1, 2, 2, 2}, make([]float32, 8))
	test.That(t, err, test.ShouldBeNil)
	_, err = Decode(two, rgb)
	var mismatch *ShapeMismatchError
	test.That(t, errors.As(err, &mismatch), test.ShouldBeTrue)
	test.That(t, mismatch.Channels, test.ShouldEqual, 2)
	test.That(t, mismatch.Labels, test.ShouldEqual, 3)

	// the channel count is checked before emptiness
	emptyTwo, err := ml.NewTensor([]int{1, 2, 0, 2}, nil)
	test.That(t, err, test.ShouldBeNil)
	_, err = Decode(emptyTwo, rgb)
	test.That(t, errors.As(err, &mismatch), test.ShouldBeTrue)

	var empty *EmptyTensorError
	for _, shape := range [][]int{{0, 3, 2, 2}, {1, 3, 0, 2}, {1, 3, 2, 0}} {
		tt, err := ml.NewTensor(shape, nil)
		test.That(t, err, test.ShouldBeNil)
		_, err = Decode(tt, rgb)
		test.That(t, errors.As(err, &empty), test.ShouldBeTrue)
		test.That(t, empty.Shape, test.ShouldResemble, shape)
		_, err = DecodeAll(tt, rgb)
		test.That(t, errors.As(err, &empty), test.ShouldBeTrue)
	}

	_, err = Decode(two, ml.LabelTable{})
	test.That(t, errors.As(err, &mismatch), test.ShouldBeTrue)
}

func BenchmarkDecode(b *testing.B) {
	const w, h = 160, 120
	data := make([]float32, 3*w*h)
	for i := range data {
		data[i] = float32(i%7) / 7
	}
	tt, err := ml.NewTensor([]int{1, 3, h, w}, data)
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Decode(tt, rgb); err != nil {
			b.Fatal(err)
		}
	}
}
