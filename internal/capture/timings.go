package capture

import (
	"sync"
	"time"
)

// Phase names used in the render profile.
const (
	PhaseSurfaceUpdate = "surface-update"
	PhaseBarrierWait   = "barrier-wait"
	PhaseCapture       = "capture"
)

// Timings holds the per-phase durations measured for one frame.
type Timings struct {
	Frame         int
	SurfaceUpdate time.Duration
	BarrierWait   time.Duration
	Capture       time.Duration
}

// PhaseStats aggregates one phase across all frames.
type PhaseStats struct {
	Average time.Duration
	Max     time.Duration
	Total   time.Duration
}

// Profile summarizes a profiled capture run.
type Profile struct {
	Frames          int
	SurfaceUpdate   PhaseStats
	BarrierWait     PhaseStats
	Capture         PhaseStats
	Bottleneck      string
	FramesPerSecond float64
}

type timingRecorder struct {
	mu      sync.Mutex
	timings []Timings
}

func newTimingRecorder(capacity int) *timingRecorder {
	return &timingRecorder{timings: make([]Timings, 0, capacity)}
}

func (r *timingRecorder) record(t Timings) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timings = append(r.timings, t)
}

func (r *timingRecorder) profile(wall time.Duration) *Profile {
	r.mu.Lock()
	defer r.mu.Unlock()
	return BuildProfile(r.timings, wall)
}

// BuildProfile aggregates per-frame timings into a profile. The bottleneck
// is whichever phase's summed time is largest.
func BuildProfile(timings []Timings, wall time.Duration) *Profile {
	if len(timings) == 0 {
		return nil
	}
	profile := &Profile{Frames: len(timings)}
	for _, t := range timings {
		accumulate(&profile.SurfaceUpdate, t.SurfaceUpdate)
		accumulate(&profile.BarrierWait, t.BarrierWait)
		accumulate(&profile.Capture, t.Capture)
	}
	finalize(&profile.SurfaceUpdate, len(timings))
	finalize(&profile.BarrierWait, len(timings))
	finalize(&profile.Capture, len(timings))

	profile.Bottleneck = PhaseSurfaceUpdate
	largest := profile.SurfaceUpdate.Total
	if profile.BarrierWait.Total > largest {
		profile.Bottleneck = PhaseBarrierWait
		largest = profile.BarrierWait.Total
	}
	if profile.Capture.Total > largest {
		profile.Bottleneck = PhaseCapture
	}

	if wall > 0 {
		profile.FramesPerSecond = float64(len(timings)) / wall.Seconds()
	}
	return profile
}

func accumulate(stats *PhaseStats, d time.Duration) {
	stats.Total += d
	if d > stats.Max {
		stats.Max = d
	}
}

func finalize(stats *PhaseStats, frames int) {
	if frames > 0 {
		stats.Average = stats.Total / time.Duration(frames)
	}
}
