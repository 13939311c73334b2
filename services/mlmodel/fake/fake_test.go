package fake

import (
	"context"
	"testing"
	"time"

	"go.viam.com/test"

	"go.viam.com/livevision/logging"
	"go.viam.com/livevision/registry"
	"go.viam.com/livevision/rimage"
	"go.viam.com/livevision/services/mlmodel"
	"go.viam.com/livevision/utils"
)

func TestRun(t *testing.T) {
	logger := logging.NewTestLogger(t)
	m := NewModel(nil, logger)

	// one blue pixel, one red pixel
	buf, err := rimage.NewImageBuffer(2, 1, rimage.PixelFormatBGRA, []byte{200, 10, 10, 255, 10, 10, 200, 255}, time.Now())
	test.That(t, err, test.ShouldBeNil)

	out, err := m.Run(context.Background(), buf)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.Shape(), test.ShouldResemble, []int{1, 3, 1, 2})
	idx, _ := out.ArgmaxAlong(0, 2, 3)
	test.That(t, Labels[idx], test.ShouldEqual, "blue")
	idx, _ = out.ArgmaxAlong(1, 2, 3)
	test.That(t, Labels[idx], test.ShouldEqual, "red")
	test.That(t, m.Calls(), test.ShouldEqual, 1)

	md, err := m.Metadata(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, md.Validate(), test.ShouldBeNil)
	test.That(t, out.MatchesShape(md.Output.Shape), test.ShouldBeTrue)

	test.That(t, m.Close(context.Background()), test.ShouldBeNil)
	_, err = m.Run(context.Background(), buf)
	test.That(t, err, test.ShouldEqual, mlmodel.ErrClosed)
}

func TestLatencyHonoursContext(t *testing.T) {
	m := NewModel(&Config{Latency: time.Hour}, logging.NewTestLogger(t))
	buf, err := rimage.NewImageBuffer(1, 1, rimage.PixelFormatBGRA, []byte{0, 0, 0, 255}, time.Now())
	test.That(t, err, test.ShouldBeNil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Run(ctx, buf)
	test.That(t, err, test.ShouldEqual, context.Canceled)
}

func TestRegistered(t *testing.T) {
	reg := registry.ModelLookup(ModelName)
	test.That(t, reg, test.ShouldNotBeNil)
	test.That(t, reg.Validate("model", utils.AttributeMap{"width": -1}), test.ShouldNotBeNil)

	svc, err := reg.Constructor(context.Background(), utils.AttributeMap{"width": 8, "height": 6}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	md, err := svc.Metadata(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, md.Input.Width, test.ShouldEqual, 8)
	test.That(t, md.Output.Shape, test.ShouldResemble, []int{1, 3, 6, 8})
}
