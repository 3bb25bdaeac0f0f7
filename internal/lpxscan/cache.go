// Package lpxscan rasterises a source video frame into an LP Image
// using the cached pixel-to-cell lookup table derived from a Tables
// instance, plus the multithreaded scanner that drives the three scan
// phases (fovea, peripheral, finalise).
package lpxscan

import (
	"fmt"

	"github.com/lpxlab/retina/internal/lpxerr"
	"github.com/lpxlab/retina/internal/lpxtables"
)

// Cache is the derived, one-shot pixelToCell lookup: a flat array of
// size mapWidth*mapWidth giving, for every scan-map pixel index, the
// cell index it maps to. It replaces the scanner's per-pixel
// predecessor search over OuterPixelIndex with an O(1) array read,
// which is the dominant latency win documented for the peripheral
// pass. Built once at server start from the Scan Tables and never
// mutated afterwards; safe for unsynchronised concurrent reads.
type Cache struct {
	MapWidth int
	cells    []int32
}

// BuildCache derives a Cache from tables. OuterPixelIndex/
// OuterPixelCellIdx describe boundaries, not every pixel, so gaps
// between listed boundaries are forward-filled with the last named
// cell index, matching the reference scanner's predecessor-search
// semantics (CellIndexForPixel) but computed once instead of per pixel.
func BuildCache(tables *lpxtables.Tables) (*Cache, error) {
	if tables == nil || tables.MapWidth <= 0 {
		return nil, fmt.Errorf("lpxscan: %w", lpxerr.ErrInvalidTables)
	}

	n := tables.MapWidth * tables.MapWidth
	cells := make([]int32, n)

	boundaries := tables.OuterPixelIndex
	cellIdx := tables.OuterPixelCellIdx
	if len(boundaries) != len(cellIdx) {
		return nil, fmt.Errorf("lpxscan: mismatched table array lengths: %w", lpxerr.ErrInvalidTables)
	}

	b := 0
	var current int32 = -1
	for pixelIdx := 0; pixelIdx < n; pixelIdx++ {
		for b < len(boundaries) && int(boundaries[b]) <= pixelIdx {
			current = cellIdx[b]
			b++
		}
		cells[pixelIdx] = current
	}

	return &Cache{MapWidth: tables.MapWidth, cells: cells}, nil
}

// Lookup returns the cell index mapped to pixelIdx, or (0, false) if
// pixelIdx is out of range or precedes the first boundary.
func (c *Cache) Lookup(pixelIdx int) (int32, bool) {
	if pixelIdx < 0 || pixelIdx >= len(c.cells) {
		return 0, false
	}
	v := c.cells[pixelIdx]
	if v < 0 {
		return 0, false
	}
	return v, true
}

// Len returns the number of entries in the cache (mapWidth^2).
func (c *Cache) Len() int {
	return len(c.cells)
}
