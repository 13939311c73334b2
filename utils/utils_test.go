package utils

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.viam.com/test"
)

type someIfc interface{ Do() }

func TestAssertType(t *testing.T) {
	v, err := AssertType[string]("hello")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, v, test.ShouldEqual, "hello")

	_, err = AssertType[int]("hello")
	test.That(t, err, test.ShouldBeError, "expected int but got string")

	_, err = AssertType[someIfc](5)
	test.That(t, err, test.ShouldBeError, "expected implementation of utils.someIfc but got int")
}

func TestStoppableWorkers(t *testing.T) {
	var running atomic.Int32
	started := make(chan struct{}, 2)
	worker := func(ctx context.Context) {
		running.Add(1)
		started <- struct{}{}
		<-ctx.Done()
		running.Add(-1)
	}
	sw := NewStoppableWorkers(worker, worker)
	<-started
	<-started
	test.That(t, running.Load(), test.ShouldEqual, 2)

	sw.Stop()
	test.That(t, running.Load(), test.ShouldEqual, 0)
	test.That(t, sw.Context().Err(), test.ShouldNotBeNil)

	// adding after Stop starts nothing
	sw.AddWorkers(worker)
	test.That(t, running.Load(), test.ShouldEqual, 0)
}

func TestStoppableWorkersParentCancel(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	sw := NewStoppableWorkersWithContext(parent, func(ctx context.Context) {
		<-ctx.Done()
		close(done)
	})
	cancel()
	<-done
	sw.Stop()
}

type fakeAttrs struct {
	Path     string        `json:"path"`
	Count    int           `json:"count"`
	Interval time.Duration `json:"interval"`
}

func (f *fakeAttrs) Validate(path string) error {
	if f.Path == "" {
		return NewConfigValidationFieldRequiredError(path, "path")
	}
	return nil
}

func TestNativeConfig(t *testing.T) {
	attrs := AttributeMap{"path": "/tmp/x", "count": 3.0, "interval": "33ms"}
	test.That(t, attrs.Has("path"), test.ShouldBeTrue)
	test.That(t, attrs.String("count"), test.ShouldEqual, "")

	conf, err := NativeConfig[*fakeAttrs](attrs)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, conf.Path, test.ShouldEqual, "/tmp/x")
	test.That(t, conf.Count, test.ShouldEqual, 3)
	test.That(t, conf.Interval, test.ShouldEqual, 33*time.Millisecond)

	byValue, err := NativeConfig[fakeAttrs](attrs)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, byValue.Count, test.ShouldEqual, 3)

	_, err = NativeConfig[*fakeAttrs](AttributeMap{"pth": "/tmp/x"})
	test.That(t, err, test.ShouldNotBeNil)

	_, err = ValidatedConfig[*fakeAttrs]("source", AttributeMap{})
	test.That(t, err, test.ShouldBeError, `source: "path" is required`)
}
