// Package camera turns a capture Driver into a FrameSource that pushes frames to a single
// consumer from its own delivery goroutine.
//
// With DropLateFrames set, capture and delivery meet at a one-slot mailbox: a frame that arrives
// while the previous one is still undelivered replaces it and is counted as dropped. Without it,
// every frame is queued in capture order and delivered. The queue is unbounded, so when the
// consumer is slower than the driver latency grows for as long as the source runs.
package camera

import (
	"context"
	"image"
	"time"

	"go.viam.com/livevision/rimage"
)

// Driver is a device or file sequence that yields images. Read blocks until an image is
// available and returns io.EOF when a finite driver is exhausted. The Source calls Read from
// one goroutine at a time. Read must return once ctx is done, and Close may be called while a
// Read is in progress.
type Driver interface {
	Open(ctx context.Context) error
	Read(ctx context.Context) (image.Image, error)
	Close(ctx context.Context) error
}

// Frame is one captured image and its position in the capture sequence, starting at 1.
type Frame struct {
	Seq   uint64
	Image *rimage.ImageBuffer
}

// CapturedAt is when the frame was read from the driver.
func (f Frame) CapturedAt() time.Time {
	return f.Image.CapturedAt()
}

// Consumer receives frames. It runs on the delivery goroutine, never on the capture goroutine,
// and is never called concurrently with itself. The context it receives is not cancelled by
// Stop, which waits for the call to return instead. A panic in the consumer is logged and the
// next frame is delivered as usual.
type Consumer func(ctx context.Context, f Frame)

// Stats counts frames since the source was created.
type Stats struct {
	Captured   int64
	Delivered  int64
	Dropped    int64
	ReadErrors int64
}
