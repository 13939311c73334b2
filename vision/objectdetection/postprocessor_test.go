package objectdetection

import (
	"testing"

	"go.viam.com/test"
)

func TestRect(t *testing.T) {
	a := Rect{X: 0, Y: 0, W: 2, H: 2}
	b := Rect{X: 1, Y: 1, W: 2, H: 2}
	test.That(t, a.Intersect(b), test.ShouldResemble, Rect{X: 1, Y: 1, W: 1, H: 1})
	test.That(t, a.IoU(b), test.ShouldAlmostEqual, 1.0/7.0, 1e-9)
	test.That(t, a.IoU(a), test.ShouldEqual, 1.0)
	test.That(t, a.IoU(Rect{X: 5, Y: 5, W: 1, H: 1}), test.ShouldEqual, 0.0)
	test.That(t, Rect{W: -1, H: 3}.Area(), test.ShouldEqual, 0.0)
}

func TestPostprocessors(t *testing.T) {
	dets := []Detection{
		{Box: Rect{W: 10, H: 10}, ClassID: 0, Label: "cat", Confidence: 0.6},
		{Box: Rect{X: 1, W: 10, H: 10}, ClassID: 0, Label: "cat", Confidence: 0.9},
		{Box: Rect{X: 1, W: 10, H: 10}, ClassID: 1, Label: "dog", Confidence: 0.8},
		{Box: Rect{X: 50, W: 2, H: 2}, ClassID: 0, Label: "cat", Confidence: 0.3},
	}

	nms := NewNMS(0.5)(dets)
	test.That(t, nms, test.ShouldHaveLength, 3)
	test.That(t, nms[0].Confidence, test.ShouldEqual, 0.9)
	test.That(t, nms[1].Label, test.ShouldEqual, "dog")
	test.That(t, nms[2].Confidence, test.ShouldEqual, 0.3)
	// input untouched
	test.That(t, dets[0].Confidence, test.ShouldEqual, 0.6)

	test.That(t, NewScoreFilter(0.6)(dets), test.ShouldHaveLength, 3)
	test.That(t, NewAreaFilter(50)(dets), test.ShouldHaveLength, 3)
	test.That(t, NewLabelFilter("dog")(dets), test.ShouldResemble, []Detection{dets[2]})

	out := Apply(dets, NewScoreFilter(0.5), NewNMS(0.5), NewLabelFilter("cat"))
	test.That(t, out, test.ShouldHaveLength, 1)
	test.That(t, out[0].Confidence, test.ShouldEqual, 0.9)
	test.That(t, Apply(dets), test.ShouldResemble, dets)
}
