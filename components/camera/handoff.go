package camera

import (
	"context"
	"sync"
)

// handoff passes frames from the capture goroutine to the delivery goroutine. In latest mode
// it holds at most one frame and a put replaces an undelivered frame. Otherwise it is an
// unbounded FIFO.
type handoff struct {
	latest bool

	mu     sync.Mutex
	frames []Frame
	closed bool
	ready  chan struct{}
}

func newHandoff(latest bool) *handoff {
	return &handoff{latest: latest, ready: make(chan struct{}, 1)}
}

// put adds f. When f replaces an undelivered frame, that frame is returned with true.
func (h *handoff) put(f Frame) (Frame, bool) {
	h.mu.Lock()
	var replaced Frame
	var dropped bool
	if h.latest && len(h.frames) == 1 {
		replaced, dropped = h.frames[0], true
		h.frames[0] = f
	} else {
		h.frames = append(h.frames, f)
	}
	h.mu.Unlock()

	select {
	case h.ready <- struct{}{}:
	default:
	}
	return replaced, dropped
}

// take blocks for the oldest frame. It returns false when ctx is done, or when the handoff was
// closed and is empty.
func (h *handoff) take(ctx context.Context) (Frame, bool) {
	for {
		h.mu.Lock()
		if len(h.frames) > 0 {
			f := h.frames[0]
			h.frames[0] = Frame{}
			h.frames = h.frames[1:]
			h.mu.Unlock()
			return f, true
		}
		closed := h.closed
		h.mu.Unlock()
		if closed {
			return Frame{}, false
		}

		select {
		case <-ctx.Done():
			return Frame{}, false
		case <-h.ready:
		}
	}
}

// close marks the end of input. Frames already held are still handed out.
func (h *handoff) close() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	select {
	case h.ready <- struct{}{}:
	default:
	}
}

// pending is the number of undelivered frames.
func (h *handoff) pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.frames)
}
