package lpxserver

import (
	"math"
	"sync/atomic"
)

// fixation holds the scan centre offset (x_ofs, y_ofs) as a pair of
// atomic float64s: the Broadcast task writes it when applying a
// movement command, the Processing task reads it at the top of every
// scan, and a plain atomic load/store pair is sufficient since there
// is exactly one writer and one reader role (never simultaneous
// writers).
type fixation struct {
	xBits atomic.Uint64
	yBits atomic.Uint64
}

func (f *fixation) set(x, y float64) {
	f.xBits.Store(math.Float64bits(x))
	f.yBits.Store(math.Float64bits(y))
}

func (f *fixation) get() (x, y float64) {
	return math.Float64frombits(f.xBits.Load()), math.Float64frombits(f.yBits.Load())
}

// clampFixation bounds x, y to +/- frac*mapWidth, keeping the scan region
// inside the valid map regardless of accumulated movement commands.
func clampFixation(x, y float64, mapWidth int, frac float64) (float64, float64) {
	bound := frac * float64(mapWidth)
	return clampFloat(x, -bound, bound), clampFloat(y, -bound, bound)
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
