package lpxrender

import (
	"fmt"
	"math"
	"sync"

	"github.com/lpxlab/retina/internal/lpxerr"
	"github.com/lpxlab/retina/internal/lpximage"
)

// foveaRadiusPixels is the output-space radius within which a pixel is
// always recomputed directly from (u, v) rather than through the
// scaled/offset cell index, matching the reference renderer's fixed
// fovea-region cutoff.
const foveaRadiusPixels = 100.0

// rowBandThreshold mirrors the scanner's row-band granularity: bands
// smaller than this run inline rather than spawning a goroutine.
const rowBandThreshold = 10

// maxRowBands bounds how many row bands a render splits into.
const maxRowBands = 4

// Renderer rasterises an *lpximage.Image back into an RGBA-less BGR
// raster by inverse-mapping each output pixel through cellIndexOf. It
// holds no state tying it to a single image; the same Renderer can
// render any Image built from any Tables.
type Renderer struct{}

// New returns a Renderer. There is no per-tables setup step: unlike
// the scanner, the inverse mapping needs only spiralPer, which travels
// with the Image being rendered.
func New() *Renderer {
	return &Renderer{}
}

// Output is a simple row-major BGR raster, matching lpximage's cell
// color layout per pixel.
type Output struct {
	Width, Height int
	Pix           []uint8 // len == Width*Height*3, BGR per pixel
}

// NewOutput allocates a black Output of the given size.
func NewOutput(width, height int) *Output {
	return &Output{Width: width, Height: height, Pix: make([]uint8, width*height*3)}
}

func (o *Output) set(x, y int, b, g, r uint8) {
	idx := (y*o.Width + x) * 3
	o.Pix[idx+0] = b
	o.Pix[idx+1] = g
	o.Pix[idx+2] = r
}

// Render draws img into an Output of the given size at the given
// scale; the scale-dependent cell offset is derived from scale and the
// output/source size ratio. Fovea pixels and pixels within foveaRadiusPixels of
// centre are recomputed directly from (u, v); all others go through
// the scale-adjusted cell index. SkipCell values are left as
// background black.
func (r *Renderer) Render(img *lpximage.Image, width, height int, scale float64) (*Output, error) {
	if img == nil || img.Len() <= 0 {
		return nil, fmt.Errorf("lpxrender: %w", lpxerr.ErrInvalidFrame)
	}
	if scale <= 0 {
		scale = 1
	}

	out := NewOutput(width, height)
	maxLen := img.Len()
	spiralPer := img.SpiralPer
	lastFovea := img.Tables.LastFoveaIndex

	wScale := float64(width) / float64(img.Width)
	hScale := float64(height) / float64(img.Height)
	canvasRatio := wScale
	if hScale > canvasRatio {
		canvasRatio = hScale
	}
	scaleFactor := canvasRatio * scale
	cellOffset := cellArrayOffset(scaleFactor, spiralPer)

	centerX, centerY := width/2, height/2

	rowWork := func(y int) {
		for x := 0; x < width; x++ {
			relX := float64(x - centerX)
			relY := float64(y - centerY)
			distFromCenter := math.Hypot(relX, relY)

			cellIdx := cellIndexOf(relX, relY, spiralPer)
			if cellIdx < 0 || cellIdx >= maxLen {
				cellIdx = 0
			}

			isFovea := cellIdx <= lastFovea || distFromCenter < foveaRadiusPixels
			if isFovea {
				direct := cellIndexOf(relX, relY, spiralPer)
				cellIdx = clamp(direct, 0, maxLen-1)
			}
			cellIdx = clamp(cellIdx, 0, maxLen-1)

			iCell := cellIdx
			if !isFovea {
				iCell = cellOffset + cellIdx
				if iCell < 0 || iCell >= maxLen {
					iCell = cellIdx
				}
			}

			if img.Cells[iCell] == lpximage.SkipCell {
				continue
			}

			b, g, rr := lpximage.UnpackBGR(img.Cells[iCell])
			out.set(x, y, b, g, rr)
		}
	}

	runRowBands(0, height, rowWork)
	return out, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// runRowBands splits [top, bottom) into up to maxRowBands contiguous
// bands, processing small workloads inline.
func runRowBands(top, bottom int, work func(row int)) {
	total := bottom - top
	if total <= 0 {
		return
	}

	bands := maxRowBands
	if total/bands < rowBandThreshold {
		bands = (total + rowBandThreshold - 1) / rowBandThreshold
		if bands < 1 {
			bands = 1
		}
	}
	if bands > maxRowBands {
		bands = maxRowBands
	}

	bandHeight := (total + bands - 1) / bands

	var wg sync.WaitGroup
	for b := 0; b < bands; b++ {
		start := top + b*bandHeight
		end := start + bandHeight
		if end > bottom {
			end = bottom
		}
		if start >= end {
			continue
		}
		if end-start < rowBandThreshold {
			for row := start; row < end; row++ {
				work(row)
			}
			continue
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for row := start; row < end; row++ {
				work(row)
			}
		}(start, end)
	}
	wg.Wait()
}
