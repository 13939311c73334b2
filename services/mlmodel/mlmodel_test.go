package mlmodel

import (
	"testing"

	"go.viam.com/test"

	"go.viam.com/livevision/rimage"
)

func TestMetadataValidate(t *testing.T) {
	md := MLMetadata{
		ModelName: "seg",
		ModelType: ModelTypeSegmenter,
		Input:     InputInfo{Width: 4, Height: 4, Format: rimage.PixelFormatBGRA},
		Output:    TensorInfo{Shape: []int{1, 21, 4, 4}},
	}
	test.That(t, md.Validate(), test.ShouldBeNil)
	channels, err := md.Channels()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, channels, test.ShouldEqual, 21)

	_, ok := md.LabelFile()
	test.That(t, ok, test.ShouldBeFalse)
	md.Output.AssociatedFiles = []File{
		{Name: "values.txt", LabelType: LabelTypeTensorValue},
		{Name: "labels.txt", LabelType: LabelTypeTensorAxis},
	}
	f, ok := md.LabelFile()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, f.Name, test.ShouldEqual, "labels.txt")

	bad := md
	bad.Output.Shape = []int{1, 0, 4, 4}
	test.That(t, bad.Validate(), test.ShouldNotBeNil)

	bad = md
	bad.Output.Shape = []int{21, 4, 4}
	test.That(t, bad.Validate(), test.ShouldNotBeNil)

	bad = md
	bad.Input.Format = "RGB"
	test.That(t, bad.Validate(), test.ShouldNotBeNil)

	bad = md
	bad.ModelType = "classifier"
	test.That(t, bad.Validate(), test.ShouldNotBeNil)

	det := MLMetadata{
		ModelName: "det",
		ModelType: ModelTypeDetector,
		Input:     InputInfo{Format: rimage.PixelFormatBGRA},
		Output:    TensorInfo{Shape: []int{1, -1, 85}},
	}
	test.That(t, det.Validate(), test.ShouldBeNil)
	_, err = det.Channels()
	test.That(t, err, test.ShouldNotBeNil)
}
