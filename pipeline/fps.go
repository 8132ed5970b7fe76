package pipeline

import "time"

// fpsCounter tracks instantaneous frame rate (1/dt per pass), deliberately
// not smoothed — per util/fps.py's own comment, noise is accepted rather
// than hiding a stall behind an average.
type fpsCounter struct {
	last time.Time
	fps  float64
}

func newFPSCounter(now time.Time) *fpsCounter {
	return &fpsCounter{last: now}
}

func (f *fpsCounter) update(now time.Time) {
	dt := now.Sub(f.last).Seconds()
	if dt > 0 {
		f.fps = 1 / dt
	}
	f.last = now
}
