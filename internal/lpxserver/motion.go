package lpxserver

import (
	"gonum.org/v1/gonum/stat"

	"github.com/lpxlab/retina/internal/lpxscan"
)

// motionSampleGrid is the side length of the coarse grid motionScorer
// samples from each frame. Sampling a fixed small grid rather than
// every pixel keeps the motion-adaptive skip decision cheap regardless
// of source resolution.
const motionSampleGrid = 48

// motionScorer computes a mean-absolute-difference motion score
// against the previous frame's downsampled grayscale grid, used by the
// capture task to drive adaptive frame skipping for webcam sources.
type motionScorer struct {
	prev []float64 // grayscale samples from the previous frame, or nil
}

// score samples frame onto a fixed grid, converts to grayscale, and
// returns the mean absolute difference against the previous call's
// grid (0 on the first call, since there is nothing to compare
// against).
func (m *motionScorer) score(frame lpxscan.Frame) float64 {
	w, h := frame.Dimensions()
	samples := make([]float64, motionSampleGrid*motionSampleGrid)
	if w <= 0 || h <= 0 {
		m.prev = samples
		return 0
	}

	i := 0
	for gy := 0; gy < motionSampleGrid; gy++ {
		y := gy * h / motionSampleGrid
		for gx := 0; gx < motionSampleGrid; gx++ {
			x := gx * w / motionSampleGrid
			b, g, r := frame.At(x, y)
			samples[i] = grayscale(b, g, r)
			i++
		}
	}

	if m.prev == nil {
		m.prev = samples
		return 0
	}

	diffs := make([]float64, len(samples))
	for i := range samples {
		d := samples[i] - m.prev[i]
		if d < 0 {
			d = -d
		}
		diffs[i] = d
	}
	m.prev = samples
	return stat.Mean(diffs, nil)
}

func grayscale(b, g, r uint8) float64 {
	return 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
}
