package pipeline

import (
	"sync"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"

	"go.viam.com/livevision/components/camera"
	"go.viam.com/livevision/ml/inference"
)

// latencyWindow is how many recent latencies the percentiles are computed over.
const latencyWindow = 512

// Stats summarizes a pipeline since it was created.
type Stats struct {
	// Produced is the number of frames captured by all sources.
	Produced int64
	// Delivered is the number of frames that reached the pipeline.
	Delivered int64
	// Dropped counts frames discarded by a source mailbox or by the stage's busy policy.
	Dropped int64
	// Failed counts frames whose inference or decoding failed.
	Failed int64
	// Completed counts decoded frames.
	Completed int64

	LatencyMean time.Duration
	LatencyP50  time.Duration
	LatencyP95  time.Duration

	Sources map[string]camera.Stats
	Stage   inference.Stats
}

type statsRecorder struct {
	mu        sync.Mutex
	completed int64
	failed    int64
	dropped   int64
	latencies []float64
	next      int
}

func newStatsRecorder() *statsRecorder {
	return &statsRecorder{latencies: make([]float64, 0, latencyWindow)}
}

func (r *statsRecorder) record(res Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case errors.Is(res.Err, inference.ErrBusy), errors.Is(res.Err, inference.ErrFrameDropped):
		r.dropped++
		return
	case res.Err != nil:
		r.failed++
		return
	}
	r.completed++
	ms := float64(res.Latency) / float64(time.Millisecond)
	if len(r.latencies) < latencyWindow {
		r.latencies = append(r.latencies, ms)
		return
	}
	r.latencies[r.next] = ms
	r.next = (r.next + 1) % latencyWindow
}

func (r *statsRecorder) fill(s *Stats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.Completed = r.completed
	s.Failed = r.failed
	s.Dropped += r.dropped
	if len(r.latencies) == 0 {
		return
	}
	data := stats.Float64Data(r.latencies)
	toDuration := func(ms float64, err error) time.Duration {
		if err != nil {
			return 0
		}
		return time.Duration(ms * float64(time.Millisecond))
	}
	s.LatencyMean = toDuration(stats.Mean(data))
	s.LatencyP50 = toDuration(stats.Percentile(data, 50))
	s.LatencyP95 = toDuration(stats.Percentile(data, 95))
}

// Stats returns a snapshot of the counters and recent latencies.
func (p *Pipeline) Stats() Stats {
	s := Stats{
		Sources: make(map[string]camera.Stats, len(p.sources)),
		Stage:   p.stage.Stats(),
	}
	for i, src := range p.sources {
		st := src.Stats()
		s.Sources[p.names[i]] = st
		s.Produced += st.Captured
		s.Delivered += st.Delivered
		s.Dropped += st.Dropped
	}
	p.stats.fill(&s)
	return s
}
