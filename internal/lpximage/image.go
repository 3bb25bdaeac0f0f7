// Package lpximage owns the per-frame log-polar cell buffer: the
// packed BGR cell array, the scan accumulators the Scanner writes
// into, and the frame's scan geometry (source dimensions, fixation
// offset, inherited spiral period).
package lpximage

import (
	"fmt"
	"sync/atomic"

	"github.com/lpxlab/retina/internal/lpxerr"
	"github.com/lpxlab/retina/internal/lpxtables"
)

// SkipCell is the sentinel cell value the Renderer treats as
// "no data, leave background black".
const SkipCell uint32 = 0x00200400

// Image is one frame's worth of log-polar cells plus the scratch
// accumulators used while scanning. An Image can be reused
// frame-to-frame: Reset() clears the accumulators in place rather than
// reallocating. The streaming server allocates a fresh Image for each
// scanned frame, since every Image it scans is handed to the broadcast
// queue.
type Image struct {
	Tables *lpxtables.Tables

	Width, Height int
	XOfs, YOfs    float64
	SpiralPer     float64

	Cells []uint32

	// Scratch accumulators, one entry per cell, live only during a
	// scan; Phase D folds them into Cells and Reset clears them for
	// the next frame. Atomic so the Scanner's row-band goroutines can
	// fetch-add into them directly with no per-scan allocation or copy.
	AccR, AccG, AccB []atomic.Int64
	Count            []atomic.Int64
}

// New allocates an Image sized to tables.LastCellIndex+1, zeroed.
func New(tables *lpxtables.Tables, width, height int) (*Image, error) {
	if tables == nil || tables.LastCellIndex <= 0 {
		return nil, fmt.Errorf("lpximage: %w", lpxerr.ErrInvalidTables)
	}
	if tables.SpiralPer < 0.1 {
		return nil, fmt.Errorf("lpximage: spiralPer %.3f too small: %w", tables.SpiralPer, lpxerr.ErrInvalidTables)
	}

	n := tables.LastCellIndex + 1
	return &Image{
		Tables:    tables,
		Width:     width,
		Height:    height,
		SpiralPer: tables.SpiralPer,
		Cells:     make([]uint32, n),
		AccR:      make([]atomic.Int64, n),
		AccG:      make([]atomic.Int64, n),
		AccB:      make([]atomic.Int64, n),
		Count:     make([]atomic.Int64, n),
	}, nil
}

// Reset clears the scratch accumulators in place. Phase B (fovea) may
// write to Cells directly before Reset is next called; Reset does not
// touch Cells at all, only the accumulators, matching the reference
// scanner's reset phase.
func (img *Image) Reset() {
	for i := range img.AccR {
		img.AccR[i].Store(0)
		img.AccG[i].Store(0)
		img.AccB[i].Store(0)
		img.Count[i].Store(0)
	}
}

// Len returns the number of cells, i.e. Tables.LastCellIndex+1.
func (img *Image) Len() int {
	return len(img.Cells)
}

// SetPosition records the fixation offset used for the frame that is
// about to be (or was just) scanned.
func (img *Image) SetPosition(xOfs, yOfs float64) {
	img.XOfs, img.YOfs = xOfs, yOfs
}

// PackBGR packs 8-bit B, G, R components into the wire/cell format:
// low byte blue, next byte green, next byte red. Bit-exact with the
// reference implementation's packColor.
func PackBGR(b, g, r uint8) uint32 {
	return uint32(b) | uint32(g)<<8 | uint32(r)<<16
}

// UnpackBGR is the inverse of PackBGR.
func UnpackBGR(cell uint32) (b, g, r uint8) {
	b = uint8(cell & 0xFF)
	g = uint8((cell >> 8) & 0xFF)
	r = uint8((cell >> 16) & 0xFF)
	return
}
