package lpxscan

import (
	"fmt"
	"sync"

	"github.com/lpxlab/retina/internal/lpxerr"
	"github.com/lpxlab/retina/internal/lpximage"
	"github.com/lpxlab/retina/internal/lpxtables"
)

// Frame is the minimal pixel source the Scanner needs. A real webcam
// or video-file frame and the synthetic fixtures in lpxtest both
// satisfy it.
type Frame interface {
	// Dimensions returns the frame's pixel width and height.
	Dimensions() (width, height int)
	// At returns the BGR triple at (x, y); out-of-range reads are the
	// implementation's responsibility to clamp or zero.
	At(x, y int) (b, g, r uint8)
}

// peripheralRowBandThreshold is the minimum row-band height (in rows)
// worth spawning a goroutine for; smaller bands are processed inline.
const peripheralRowBandThreshold = 10

// maxPeripheralBands bounds how many row bands Phase C ever splits
// the workload into, matching the reference scanner's four-way split.
const maxPeripheralBands = 4

// Scanner rasterises frames into LP Images using a Tables/Cache pair
// loaded once at startup. A Scanner is stateless and safe to share
// across goroutines; all per-scan mutable state lives in the target
// *lpximage.Image passed to Scan.
type Scanner struct {
	tables *lpxtables.Tables
	cache  *Cache
}

// New builds a Scanner over tables, deriving its Cache.
func New(tables *lpxtables.Tables) (*Scanner, error) {
	if err := validateTables(tables); err != nil {
		return nil, err
	}
	cache, err := BuildCache(tables)
	if err != nil {
		return nil, err
	}
	return &Scanner{tables: tables, cache: cache}, nil
}

func validateTables(tables *lpxtables.Tables) error {
	if tables == nil {
		return fmt.Errorf("lpxscan: %w", lpxerr.ErrInvalidTables)
	}
	if tables.LastFoveaIndex <= 0 || tables.LastFoveaIndex >= tables.LastCellIndex {
		return fmt.Errorf("lpxscan: lastFoveaIndex %d invalid for lastCellIndex %d: %w",
			tables.LastFoveaIndex, tables.LastCellIndex, lpxerr.ErrInvalidFoveaRange)
	}
	return nil
}

// Scan rasterises frame into img, centred on fixation (cx, cy) in
// frame pixel coordinates. img must have been allocated from the same
// Tables this Scanner was built with (lpximage.New(s.tables, ...)).
func (s *Scanner) Scan(frame Frame, img *lpximage.Image, cx, cy float64) error {
	if frame == nil {
		return fmt.Errorf("lpxscan: %w", lpxerr.ErrEmptyFrame)
	}
	fw, fh := frame.Dimensions()
	if fw <= 0 || fh <= 0 {
		return fmt.Errorf("lpxscan: %w", lpxerr.ErrEmptyFrame)
	}
	if img == nil || img.Len() != s.tables.LastCellIndex+1 {
		return fmt.Errorf("lpxscan: image not sized for this scanner's tables: %w", lpxerr.ErrInvalidTables)
	}

	img.Reset()
	s.scanFovea(frame, img, cx, cy, fw, fh)
	s.scanPeripheral(frame, img, cx, cy, fw, fh)
	finalise(img)

	img.SetPosition(cx-float64(fw)/2, cy-float64(fh)/2)
	return nil
}

// scanFovea is Phase B: single-threaded direct sampling of the fovea
// cells, writing straight into img.Cells with no averaging.
func (s *Scanner) scanFovea(frame Frame, img *lpximage.Image, cx, cy float64, fw, fh int) {
	half := float64(s.tables.MapWidth) / 2
	for i, mp := range s.tables.InnerCells {
		x := int(cx) + mp.X - int(half)
		y := int(cy) + mp.Y - int(half)
		if x < 0 || x >= fw || y < 0 || y >= fh {
			continue
		}
		b, g, r := frame.At(x, y)

		var k int
		if i <= s.tables.LastFoveaIndex && i < img.Len() {
			k = i
		} else if i < len(s.tables.OuterPixelCellIdx) {
			k = int(s.tables.OuterPixelCellIdx[i])
		} else {
			continue
		}
		if k < 0 || k >= img.Len() {
			continue
		}
		img.Cells[k] = lpximage.PackBGR(b, g, r)
	}
}

// scanPeripheral is Phase C: the parallel accumulation pass over the
// cache's mapped pixel square, excluding fovea cells (Phase B owns
// those) and clipped to the frame.
func (s *Scanner) scanPeripheral(frame Frame, img *lpximage.Image, cx, cy float64, fw, fh int) {
	mapWidth := s.tables.MapWidth

	top, bottom, left, right := peripheralBox(cx, cy, mapWidth, fw, fh)
	if top >= bottom || left >= right {
		return
	}

	rowWork := func(kRow int) {
		for j := left; j < right; j++ {
			pixelIdx := (mapWidth/2 - int(cx)) + mapWidth*(mapWidth/2-int(cy)+kRow) + j
			if pixelIdx < 0 || pixelIdx >= mapWidth*mapWidth {
				continue
			}
			cellIdx, ok := s.cache.Lookup(pixelIdx)
			if !ok {
				continue
			}
			idx := int(cellIdx)
			if idx <= s.tables.LastFoveaIndex || idx >= img.Len() {
				continue
			}
			b, g, r := frame.At(j, kRow)
			img.AccB[idx].Add(int64(b))
			img.AccG[idx].Add(int64(g))
			img.AccR[idx].Add(int64(r))
			img.Count[idx].Add(1)
		}
	}

	runRowBands(top, bottom, rowWork)
}

// peripheralBox returns the frame-pixel rows/columns worth visiting
// during Phase C. pixelIdx in rowWork only resolves to a cache entry
// when its column falls within cx +/- mapWidth/2 and its row within
// cy +/- mapWidth/2 (the map square the cache was built over);
// anything outside that box can never hit a valid lookup. Bounding by
// mapWidth directly, rather than by a spiral radius derived from
// LastCellIndex, avoids a radius that can overflow int on realistic
// table sizes or fall short of the table's actual mapped region on
// small ones; mapWidth has no such failure mode since it is also the
// size of the cache's own backing array.
func peripheralBox(cx, cy float64, mapWidth, fw, fh int) (top, bottom, left, right int) {
	mapHalf := float64(mapWidth) / 2
	top = clampInt(int(cy-mapHalf), 0, fh)
	bottom = clampInt(int(cy+mapHalf)+1, 0, fh)
	left = clampInt(int(cx-mapHalf), 0, fw)
	right = clampInt(int(cx+mapHalf)+1, 0, fw)
	return top, bottom, left, right
}

// finalise is Phase D: average accumulated sums into packed cells.
func finalise(img *lpximage.Image) {
	for i := 0; i < img.Len(); i++ {
		if count := img.Count[i].Load(); count > 0 {
			r := uint8(img.AccR[i].Load() / count)
			g := uint8(img.AccG[i].Load() / count)
			b := uint8(img.AccB[i].Load() / count)
			img.Cells[i] = lpximage.PackBGR(b, g, r)
		} else if i > img.Tables.LastFoveaIndex {
			img.Cells[i] = 0
		}
		// else: leave Phase B's fovea value untouched.
	}
}

// runRowBands splits [top, bottom) into up to maxPeripheralBands
// contiguous bands and runs work(row) for every row in each band,
// spawning a goroutine per band only when the band is large enough to
// be worth the overhead.
func runRowBands(top, bottom int, work func(row int)) {
	total := bottom - top
	if total <= 0 {
		return
	}

	bands := maxPeripheralBands
	if total/bands < peripheralRowBandThreshold {
		bands = (total + peripheralRowBandThreshold - 1) / peripheralRowBandThreshold
		if bands < 1 {
			bands = 1
		}
	}
	if bands > maxPeripheralBands {
		bands = maxPeripheralBands
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
		if end-start < peripheralRowBandThreshold {
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

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
