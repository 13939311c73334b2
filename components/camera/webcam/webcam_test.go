package webcam

import (
	"context"
	"image"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/io/video"
	"go.viam.com/test"
	gotestutils "go.viam.com/utils/testutils"

	"go.viam.com/livevision/logging"
)

func TestChooseDevice(t *testing.T) {
	devices := []mediadevices.MediaDeviceInfo{
		{DeviceID: "mic", Kind: mediadevices.AudioInput, Label: "Built-in Telephoto Microphone"},
		{DeviceID: "a", Kind: mediadevices.VideoInput, Label: "Back Wide Camera"},
		{DeviceID: "b", Kind: mediadevices.VideoInput, Label: "Back Dual Camera"},
		{DeviceID: "c", Kind: mediadevices.VideoInput, Label: "Back Telephoto Camera"},
	}

	d, err := chooseDevice(devices, "", DefaultPreferredLabels)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d.DeviceID, test.ShouldEqual, "c")

	d, err = chooseDevice(devices[:3], "", DefaultPreferredLabels)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d.DeviceID, test.ShouldEqual, "b")

	d, err = chooseDevice(devices, "", []string{"usb"})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d.DeviceID, test.ShouldEqual, "a")

	d, err = chooseDevice(devices, "Back Dual Camera", DefaultPreferredLabels)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d.DeviceID, test.ShouldEqual, "b")

	_, err = chooseDevice(devices, "/dev/video9", DefaultPreferredLabels)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = chooseDevice(devices[:1], "", DefaultPreferredLabels)
	test.That(t, err, test.ShouldBeError, "found no webcams")
}

func TestConfig(t *testing.T) {
	test.That(t, (&Config{Width: -1}).Validate("source"), test.ShouldNotBeNil)
	test.That(t, (&Config{FrameRate: -1}).Validate("source"), test.ShouldNotBeNil)
	test.That(t, (&Config{Width: 640, Height: 480}).Validate("source"), test.ShouldBeNil)

	w := NewWebcam(&Config{}, logging.NewTestLogger(t))
	test.That(t, w.conf.PreferredLabels, test.ShouldResemble, DefaultPreferredLabels)

	var c mediadevices.MediaTrackConstraints
	makeConstraints(&Config{}, "", w.logger).Video(&c)
	test.That(t, c.Width, test.ShouldNotBeNil)
}

func TestReadBeforeOpen(t *testing.T) {
	w := NewWebcam(&Config{}, logging.NewTestLogger(t))
	_, err := w.Read(context.Background())
	test.That(t, err, test.ShouldEqual, errClosed)
	test.That(t, w.Close(context.Background()), test.ShouldBeNil)
}

func TestReadHonorsContext(t *testing.T) {
	unblock := make(chan struct{})
	var released atomic.Bool
	w := NewWebcam(&Config{}, logging.NewTestLogger(t))
	w.reader = video.ReaderFunc(func() (image.Image, func(), error) {
		<-unblock
		return image.NewNRGBA(image.Rect(0, 0, 2, 2)), func() { released.Store(true) }, nil
	})
	w.label = "stalled"

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := w.Read(ctx)
	test.That(t, err, test.ShouldEqual, context.DeadlineExceeded)

	// the abandoned frame is still released once the device hands it over
	close(unblock)
	gotestutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, released.Load(), test.ShouldBeTrue)
	})
}
