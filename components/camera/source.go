package camera

import (
	"context"
	"image"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"go.viam.com/livevision/logging"
	"go.viam.com/livevision/rimage"
	"go.viam.com/livevision/utils"
)

// Options configure a Source. Use DefaultOptions for the zero-latency behaviour.
type Options struct {
	// Name identifies the source in logs and errors.
	Name string
	// DropLateFrames replaces an undelivered frame with a newer one instead of queueing it.
	DropLateFrames bool
	// Rotation turns every frame counter-clockwise by 0, 90, 180 or 270 degrees.
	Rotation int
	// OnDrop is called on the capture goroutine with every frame dropped by the mailbox.
	OnDrop func(Frame)
	// ReadErrorBackoff is the pause after a failed read. Defaults to 100ms.
	ReadErrorBackoff time.Duration
}

// DefaultOptions drops late frames.
func DefaultOptions() Options {
	return Options{Name: "camera", DropLateFrames: true}
}

// Source captures frames from a Driver and delivers them to a Consumer.
type Source struct {
	driver   Driver
	consumer Consumer
	opts     Options
	logger   logging.Logger

	// lifecycle serializes Start and Stop. mu guards the run state and is never held while
	// waiting for the workers, so a consumer may call Running or Done at any time.
	lifecycle sync.Mutex
	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	workers   utils.StoppableWorkers
	done      chan struct{}

	seq                                     atomic.Uint64
	captured, delivered, dropped, readErrors atomic.Int64
}

// NewSource returns a stopped source.
func NewSource(driver Driver, consumer Consumer, opts Options, logger logging.Logger) (*Source, error) {
	if driver == nil {
		return nil, errors.New("frame source needs a driver")
	}
	if consumer == nil {
		return nil, ErrNoConsumer
	}
	if err := rimage.ValidateRotation(opts.Rotation); err != nil {
		return nil, err
	}
	if opts.ReadErrorBackoff <= 0 {
		opts.ReadErrorBackoff = 100 * time.Millisecond
	}
	if opts.Name == "" {
		opts.Name = "camera"
	}
	done := make(chan struct{})
	close(done)
	return &Source{
		driver:   driver,
		consumer: consumer,
		opts:     opts,
		logger:   logger.Sublogger(opts.Name),
		done:     done,
	}, nil
}

// Start opens the driver and begins capturing. It does nothing if the source is running. A
// driver that fails to open yields an *AcquisitionError and leaves the source stopped.
func (s *Source) Start(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if s.Running() {
		return nil
	}
	if err := s.driver.Open(ctx); err != nil {
		return &AcquisitionError{Source: s.opts.Name, Err: err}
	}

	h := newHandoff(s.opts.DropLateFrames)
	done := make(chan struct{})
	runCtx, cancel := context.WithCancel(context.Background())
	workers := utils.NewStoppableWorkersWithContext(runCtx,
		func(ctx context.Context) { s.capture(ctx, h) },
		func(ctx context.Context) {
			defer close(done)
			s.deliver(ctx, h)
		},
	)

	s.mu.Lock()
	s.done = done
	s.cancel = cancel
	s.workers = workers
	s.running = true
	s.mu.Unlock()
	s.logger.Infow("started", "drop_late_frames", s.opts.DropLateFrames, "rotation", s.opts.Rotation)
	return nil
}

// Stop halts capture, releases the driver and waits for an in-flight delivery to return. No
// frame is delivered after Stop returns. It does nothing if the source is stopped.
//
// The driver is closed before the capture goroutine is joined, so a Read blocked on a stalled
// device is released by Close. Stop must not be called from the Consumer.
func (s *Source) Stop(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel, workers := s.cancel, s.workers
	s.mu.Unlock()

	cancel()
	err := s.driver.Close(ctx)
	workers.Stop()
	s.logger.Infow("stopped", "stats", s.Stats())
	return errors.Wrap(err, "cannot release capture device")
}

// Running reports whether Start has succeeded and Stop has not been called since.
func (s *Source) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Done is closed once the current run stops delivering, either because Stop was called or
// because the driver reported io.EOF and every admitted frame was delivered.
func (s *Source) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Stats returns a snapshot of the frame counters.
func (s *Source) Stats() Stats {
	return Stats{
		Captured:   s.captured.Load(),
		Delivered:  s.delivered.Load(),
		Dropped:    s.dropped.Load(),
		ReadErrors: s.readErrors.Load(),
	}
}

func (s *Source) capture(ctx context.Context, h *handoff) {
	defer h.close()
	for ctx.Err() == nil {
		img, err := s.driver.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, io.EOF) {
				s.logger.Debug("driver exhausted")
				return
			}
			s.readErrors.Add(1)
			s.logger.Debugw("read failed", "error", err)
			if !goutils.SelectContextOrWait(ctx, s.opts.ReadErrorBackoff) {
				return
			}
			continue
		}
		buf, err := s.toBuffer(img)
		if err != nil {
			s.readErrors.Add(1)
			s.logger.Debugw("cannot convert frame", "error", err)
			continue
		}
		f := Frame{Seq: s.seq.Add(1), Image: buf}
		s.captured.Add(1)
		if replaced, dropped := h.put(f); dropped {
			s.dropped.Add(1)
			if s.opts.OnDrop != nil {
				s.opts.OnDrop(replaced)
			}
		}
	}
}

// toBuffer keeps a driver supplied capture time when there is one.
func (s *Source) toBuffer(img image.Image) (*rimage.ImageBuffer, error) {
	capturedAt := time.Now()
	if buf, ok := img.(*rimage.ImageBuffer); ok && !buf.CapturedAt().IsZero() {
		capturedAt = buf.CapturedAt()
	}
	rotated, err := rimage.Rotate(img, s.opts.Rotation)
	if err != nil {
		return nil, err
	}
	return rimage.FromImage(rotated, capturedAt)
}

func (s *Source) deliver(ctx context.Context, h *handoff) {
	consumerCtx := context.WithoutCancel(ctx)
	for {
		f, ok := h.take(ctx)
		if !ok || ctx.Err() != nil {
			return
		}
		s.consume(consumerCtx, f)
		s.delivered.Add(1)
	}
}

// consume calls the consumer, recovering a panic so that later frames are still delivered.
func (s *Source) consume(ctx context.Context, f Frame) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorw("consumer panicked", "seq", f.Seq, "panic", r)
		}
	}()
	s.consumer(ctx, f)
}
