// Package lpxtest centralises synthetic test fixtures so scan and
// render tests never depend on a real capture device or a real .bin
// scan-tables file on disk, mirroring the reference repository's
// internal/testutil helpers adapted to this project's domain.
package lpxtest

import (
	"math"

	"github.com/lpxlab/retina/internal/lpxtables"
)

// SyntheticTablesSpec configures a small, hand-built scan-tables
// instance suitable for unit tests: a small map, a small fovea, and a
// periphery that maps every remaining pixel to one of a handful of
// cells via simple concentric rings. It is not geometrically faithful
// to a real log-polar spiral; it exists to exercise the scanner,
// renderer, and codec's bookkeeping without requiring a real table.
type SyntheticTablesSpec struct {
	MapWidth    int
	SpiralPer   float64
	FoveaRadius int // pixels; every pixel within this radius of map center is a fovea cell
	RingWidth   int // pixels per peripheral ring/cell
}

// DefaultSyntheticTablesSpec returns a small, fast-to-build spec.
func DefaultSyntheticTablesSpec() SyntheticTablesSpec {
	return SyntheticTablesSpec{
		MapWidth:    200,
		SpiralPer:   63.5,
		FoveaRadius: 10,
		RingWidth:   4,
	}
}

// BuildSyntheticTables constructs an in-memory *lpxtables.Tables
// matching spec, without touching disk.
func BuildSyntheticTables(spec SyntheticTablesSpec) *lpxtables.Tables {
	w := spec.MapWidth
	cx, cy := w/2, w/2

	var innerCells []lpxtables.Position
	foveaCount := 0
	for y := -spec.FoveaRadius; y <= spec.FoveaRadius; y++ {
		for x := -spec.FoveaRadius; x <= spec.FoveaRadius; x++ {
			if x*x+y*y <= spec.FoveaRadius*spec.FoveaRadius {
				innerCells = append(innerCells, lpxtables.Position{X: x + cx, Y: y + cy})
				foveaCount++
			}
		}
	}
	lastFoveaIndex := foveaCount - 1

	// Build outer rings keyed by radius bucket, in increasing pixel-index
	// order (row-major over the map), matching the tables' ascending
	// outerPixelIndex invariant.
	type cellAt struct {
		pixelIdx int
		cellIdx  int
	}
	var cells []cellAt
	nextCell := lastFoveaIndex + 1
	ringToCell := map[int]int{}

	for y := 0; y < w; y++ {
		for x := 0; x < w; x++ {
			dx, dy := x-cx, y-cy
			r := math.Sqrt(float64(dx*dx + dy*dy))
			if int(r) <= spec.FoveaRadius {
				continue // covered by the fovea pass
			}
			ring := int(r) / spec.RingWidth
			cellIdx, ok := ringToCell[ring]
			if !ok {
				cellIdx = nextCell
				ringToCell[ring] = cellIdx
				nextCell++
			}
			pixelIdx := y*w + x
			cells = append(cells, cellAt{pixelIdx: pixelIdx, cellIdx: cellIdx})
		}
	}

	outerPixelIndex := make([]int32, len(cells))
	outerPixelCellIdx := make([]int32, len(cells))
	for i, c := range cells {
		outerPixelIndex[i] = int32(c.pixelIdx)
		outerPixelCellIdx[i] = int32(c.cellIdx)
	}

	lastCellIndex := nextCell - 1

	return lpxtables.NewForTest(
		w,
		spec.SpiralPer,
		outerPixelIndex,
		outerPixelCellIdx,
		innerCells,
		lastFoveaIndex,
		lastCellIndex,
	)
}

// SyntheticFrame is a minimal BGR or grayscale raster buffer used by
// scanner tests in place of an OpenCV-backed frame.
type SyntheticFrame struct {
	Width, Height int
	Channels      int // 1 or 3
	Pix           []uint8
}

// NewUniformFrame returns a frame of the given size where every pixel
// carries the given BGR triple (channels=3).
func NewUniformFrame(width, height int, b, g, r uint8) SyntheticFrame {
	f := SyntheticFrame{Width: width, Height: height, Channels: 3, Pix: make([]uint8, width*height*3)}
	for i := 0; i < width*height; i++ {
		f.Pix[i*3+0] = b
		f.Pix[i*3+1] = g
		f.Pix[i*3+2] = r
	}
	return f
}

// Dimensions implements lpxscan.Frame.
func (f SyntheticFrame) Dimensions() (width, height int) {
	return f.Width, f.Height
}

// At returns the BGR triple at (x, y), replicating the single channel
// across all three if the frame is grayscale.
func (f SyntheticFrame) At(x, y int) (b, g, r uint8) {
	if x < 0 || x >= f.Width || y < 0 || y >= f.Height {
		return 0, 0, 0
	}
	if f.Channels == 1 {
		v := f.Pix[y*f.Width+x]
		return v, v, v
	}
	idx := (y*f.Width + x) * 3
	return f.Pix[idx], f.Pix[idx+1], f.Pix[idx+2]
}
