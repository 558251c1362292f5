package graph

import "sync"

// AreaWatch logs when the hull area crosses a fixed threshold, in either
// direction. It is optional instrumentation wired through OnHullArea, not
// part of the command protocol.
type AreaWatch struct {
	threshold float64
	logf      func(format string, args ...interface{})

	mu    sync.Mutex
	above bool
}

// NewAreaWatch returns a watch that reports crossings of threshold through
// logf. Register its Observe method with Store.OnHullArea.
func NewAreaWatch(threshold float64, logf func(format string, args ...interface{})) *AreaWatch {
	return &AreaWatch{threshold: threshold, logf: logf}
}

// Observe inspects one computed area. Only transitions are reported, a
// stream of areas on the same side of the threshold stays quiet. Safe for
// concurrent queries.
func (w *AreaWatch) Observe(area float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch {
	case area >= w.threshold && !w.above:
		w.above = true
		w.logf("hull area %g reached the %g threshold", area, w.threshold)
	case area < w.threshold && w.above:
		w.above = false
		w.logf("hull area %g dropped below the %g threshold", area, w.threshold)
	}
}
