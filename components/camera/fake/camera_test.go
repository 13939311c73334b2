package fake

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.viam.com/test"

	"go.viam.com/livevision/logging"
	"go.viam.com/livevision/registry"
	"go.viam.com/livevision/rimage"
	"go.viam.com/livevision/utils"
)

func TestResolution(t *testing.T) {
	w, h := resolution(0, 0)
	test.That(t, []int{w, h}, test.ShouldResemble, []int{1280, 720})
	// one unspecified side should keep 16:9 aspect ratio
	w, h = resolution(320, 0)
	test.That(t, []int{w, h}, test.ShouldResemble, []int{320, 180})
	w, h = resolution(0, 180)
	test.That(t, []int{w, h}, test.ShouldResemble, []int{320, 180})
	w, h = resolution(640, 480)
	test.That(t, []int{w, h}, test.ShouldResemble, []int{640, 480})
}

func TestConfigValidate(t *testing.T) {
	test.That(t, (&Config{Width: 321}).Validate("path"), test.ShouldNotBeNil)
	test.That(t, (&Config{Height: 321}).Validate("path"), test.ShouldNotBeNil)
	test.That(t, (&Config{Count: -1}).Validate("path"), test.ShouldNotBeNil)
	test.That(t, (&Config{Pattern: "plaid"}).Validate("path"), test.ShouldNotBeNil)
	test.That(t, (&Config{Width: 4, Height: 2, Pattern: PatternBars}).Validate("path"), test.ShouldBeNil)
}

func TestFiniteBars(t *testing.T) {
	logger := logging.NewTestLogger(t)
	cam, err := NewCamera(&Config{Width: 6, Height: 2, Count: 2, Pattern: PatternBars}, clock.NewMock(), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cam.Open(context.Background()), test.ShouldBeNil)

	img, err := cam.Read(context.Background())
	test.That(t, err, test.ShouldBeNil)
	buf, ok := img.(*rimage.ImageBuffer)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, buf.Width(), test.ShouldEqual, 6)
	b, g, r, _ := buf.BGRAAt(0, 0)
	test.That(t, []uint8{b, g, r}, test.ShouldResemble, []uint8{255, 0, 0})
	b, g, r, _ = buf.BGRAAt(5, 1)
	test.That(t, []uint8{b, g, r}, test.ShouldResemble, []uint8{0, 0, 255})

	// the second frame is shifted left by a column
	img, err = cam.Read(context.Background())
	test.That(t, err, test.ShouldBeNil)
	b, g, r, _ = img.(*rimage.ImageBuffer).BGRAAt(5, 0)
	test.That(t, []uint8{b, g, r}, test.ShouldResemble, []uint8{255, 0, 0})

	_, err = cam.Read(context.Background())
	test.That(t, err, test.ShouldEqual, io.EOF)

	// reopening rewinds
	test.That(t, cam.Close(context.Background()), test.ShouldBeNil)
	test.That(t, cam.Open(context.Background()), test.ShouldBeNil)
	_, err = cam.Read(context.Background())
	test.That(t, err, test.ShouldBeNil)
}

func TestPacedByClock(t *testing.T) {
	logger := logging.NewTestLogger(t)
	mock := clock.NewMock()
	cam, err := NewCamera(&Config{Width: 2, Height: 2, FrameRate: 10}, mock, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cam.Open(context.Background()), test.ShouldBeNil)
	defer cam.Close(context.Background())

	got := make(chan time.Time, 1)
	go func() {
		img, err := cam.Read(context.Background())
		if err == nil {
			got <- img.(*rimage.ImageBuffer).CapturedAt()
		}
	}()
	select {
	case <-got:
		t.Fatal("frame produced before the clock ticked")
	case <-time.After(10 * time.Millisecond):
	}
	mock.Add(100 * time.Millisecond)
	test.That(t, (<-got).Equal(mock.Now()), test.ShouldBeTrue)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = cam.Read(ctx)
	test.That(t, err, test.ShouldEqual, context.Canceled)
}

func TestRegistered(t *testing.T) {
	reg := registry.SourceLookup(ModelName)
	test.That(t, reg, test.ShouldNotBeNil)
	driver, err := reg.Constructor(context.Background(), utils.AttributeMap{"width": 4, "height": 2, "count": 1}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	cam, ok := driver.(*Camera)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, cam.Width, test.ShouldEqual, 4)
	test.That(t, reg.Validate("source", utils.AttributeMap{"width": 3}), test.ShouldNotBeNil)
}
